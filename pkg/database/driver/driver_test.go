package driver

import (
	"context"
	"path/filepath"
	"testing"

	"Cloud_Animator/config"
)

func TestOpenSelectsBackend(t *testing.T) {
	ctx := context.Background()

	cfg := &config.Config{}
	cfg.Database.Driver = config.DriverNone
	store, err := Open(ctx, cfg)
	if err != nil || store != nil {
		t.Fatalf("none driver = %v, %v", store, err)
	}

	cfg.Database.Driver = config.DriverSQLite
	cfg.Database.Path = filepath.Join(t.TempDir(), "nested", "catalog.db")
	store, err = Open(ctx, cfg)
	if err != nil {
		t.Fatalf("sqlite driver: %v", err)
	}
	defer store.Close(ctx)
	if store.Reports() == nil || store.Frames() == nil {
		t.Fatalf("store missing sub-stores")
	}

	cfg.Database.Driver = "cassandra"
	if _, err := Open(ctx, cfg); err == nil {
		t.Fatalf("expected error for unknown driver")
	}
}
