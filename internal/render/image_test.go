package render

import (
	"bytes"
	"image"
	"image/color"
	"image/jpeg"
	"testing"
)

func solid(w, h int, c color.Color) *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.Set(x, y, c)
		}
	}
	return img
}

func TestFit(t *testing.T) {
	tests := []struct {
		name         string
		w, h         int
		maxW, maxH   int
		wantW, wantH int
	}{
		{"a4 portrait into landscape box", 298, 421, 200, 150, 106, 150},
		{"wide slide", 480, 270, 200, 150, 200, 113},
		{"word box", 612, 792, 280, 320, 247, 320},
		{"already small", 100, 80, 200, 150, 100, 80},
		{"no box", 400, 400, 0, 0, 400, 400},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Fit(solid(tt.w, tt.h, color.White), tt.maxW, tt.maxH).Bounds()
			if got.Dx() != tt.wantW || got.Dy() != tt.wantH {
				t.Fatalf("Fit = %dx%d, want %dx%d", got.Dx(), got.Dy(), tt.wantW, tt.wantH)
			}
		})
	}
}

func TestGrayAndJPEG(t *testing.T) {
	src := solid(20, 10, color.RGBA{R: 200, G: 10, B: 10, A: 255})
	g := Gray(src)
	if g.Bounds().Dx() != 20 || g.Bounds().Dy() != 10 {
		t.Fatalf("gray bounds = %v", g.Bounds())
	}

	data, err := EncodeJPEG(g, 0)
	if err != nil {
		t.Fatal(err)
	}
	cfg, err := jpeg.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		t.Fatalf("not a jpeg: %v", err)
	}
	if cfg.Width != 20 || cfg.Height != 10 {
		t.Fatalf("jpeg = %dx%d", cfg.Width, cfg.Height)
	}
}

func TestDPI(t *testing.T) {
	if DPI(0.5) != 36 || DPI(2) != 144 {
		t.Fatalf("DPI(0.5)=%v DPI(2)=%v", DPI(0.5), DPI(2))
	}
}
