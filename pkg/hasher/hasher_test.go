package hasher

import (
	"image"
	"image/color"
	"os"
	"path/filepath"
	"testing"
)

func TestContentKey(t *testing.T) {
	dir := t.TempDir()
	a := filepath.Join(dir, "a.tif")
	b := filepath.Join(dir, "b.tif")
	os.WriteFile(a, []byte("same"), 0o644)
	os.WriteFile(b, []byte("same"), 0o644)

	ka, err := ContentKey(a, "fixed", "srs=EPSG:6372")
	if err != nil {
		t.Fatal(err)
	}
	kb, _ := ContentKey(b, "fixed", "srs=EPSG:6372")
	if ka != kb {
		t.Fatal("identical content and parameters must give the same key")
	}
	kc, _ := ContentKey(a, "per-file", "srs=EPSG:6372")
	if kc == ka {
		t.Fatal("changing a parameter must change the key")
	}
	if _, err := ContentKey(filepath.Join(dir, "missing"), "x"); err == nil {
		t.Fatal("expected error for a missing file")
	}
}

func TestCalculateSHA256MatchesBytes(t *testing.T) {
	p := filepath.Join(t.TempDir(), "f")
	os.WriteFile(p, []byte("payload"), 0o644)
	got, err := CalculateSHA256(p)
	if err != nil {
		t.Fatal(err)
	}
	if got != CalculateSHA256FromBytes([]byte("payload")) {
		t.Fatalf("hash mismatch: %s", got)
	}
}

func TestPerceptualHashStable(t *testing.T) {
	img := image.NewRGBA(image.Rect(0, 0, 32, 32))
	for y := 0; y < 32; y++ {
		for x := 0; x < 32; x++ {
			img.Set(x, y, color.RGBA{R: uint8(x * 8), G: uint8(y * 8), B: 100, A: 255})
		}
	}
	if CalculatePerceptualHashFromImage(img) != CalculatePerceptualHashFromImage(img) {
		t.Fatal("perceptual hash must be deterministic")
	}
}
