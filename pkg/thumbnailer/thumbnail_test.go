package thumbnailer

import (
	"bytes"
	"encoding/base64"
	"image/color"
	"image/jpeg"
	"path/filepath"
	"strings"
	"testing"

	"github.com/disintegration/imaging"
)

func TestCover(t *testing.T) {
	src := imaging.New(640, 480, color.NRGBA{R: 200, G: 100, B: 50, A: 255})
	path := filepath.Join(t.TempDir(), "frame.png")
	if err := imaging.Save(src, path); err != nil {
		t.Fatal(err)
	}
	uri, err := Cover(path)
	if err != nil {
		t.Fatalf("Cover: %v", err)
	}
	const prefix = "data:image/jpeg;base64,"
	if !strings.HasPrefix(uri, prefix) {
		t.Fatalf("unexpected prefix: %.40s", uri)
	}
	data, err := base64.StdEncoding.DecodeString(strings.TrimPrefix(uri, prefix))
	if err != nil {
		t.Fatalf("decode base64: %v", err)
	}
	cfg, err := jpeg.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		t.Fatalf("decode jpeg: %v", err)
	}
	if cfg.Width != CoverWidth || cfg.Height != CoverHeight {
		t.Fatalf("size = %dx%d", cfg.Width, cfg.Height)
	}
}

func TestCoverMissingFile(t *testing.T) {
	if _, err := Cover(filepath.Join(t.TempDir(), "none.png")); err == nil {
		t.Fatalf("expected error")
	}
}
