package raster

import (
	"bytes"
	"fmt"
	"image"
	"image/png"
	"math"

	"golang.org/x/image/draw"
)

// fitPixels shrinks a PNG so that width*height stays within maxPixels and
// returns the new encoding with the scale factor applied. Images already
// within the limit are returned unchanged with factor 1.
func fitPixels(data []byte, maxPixels int) ([]byte, image.Point, float64, error) {
	cfg, err := png.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		return nil, image.Point{}, 0, fmt.Errorf("decode png header: %w", err)
	}
	size := image.Pt(cfg.Width, cfg.Height)
	pixels := cfg.Width * cfg.Height
	if maxPixels <= 0 || pixels <= maxPixels {
		return data, size, 1, nil
	}

	src, err := png.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, image.Point{}, 0, fmt.Errorf("decode png: %w", err)
	}

	factor := math.Sqrt(float64(maxPixels) / float64(pixels))
	w := max(1, int(float64(cfg.Width)*factor))
	h := max(1, int(float64(cfg.Height)*factor))

	dst := image.NewGray(image.Rect(0, 0, w, h))
	draw.CatmullRom.Scale(dst, dst.Bounds(), src, src.Bounds(), draw.Src, nil)

	var buf bytes.Buffer
	if err := png.Encode(&buf, dst); err != nil {
		return nil, image.Point{}, 0, fmt.Errorf("encode png: %w", err)
	}
	return buf.Bytes(), image.Pt(w, h), factor, nil
}
