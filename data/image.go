package data

import (
	"fmt"
	"image"
	_ "image/jpeg" // Essential: Registers JPEG format
	_ "image/png"
	"os"

	"golang.org/x/image/draw"

	"github.com/b0tShaman/neurotrain/ml"
)

// ConvertImage1D loads an image of any size, resizes it to targetW×targetH
// and returns its grayscale pixels in row-major order, scaled to [0, 1].
func ConvertImage1D(path string, targetW, targetH int) ([]float64, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	src, _, err := image.Decode(f)
	if err != nil {
		return nil, fmt.Errorf("decode %s: %w", path, err)
	}
	return Grayscale(src, targetW, targetH), nil
}

// Grayscale resizes src and flattens it into luminance values in [0, 1].
func Grayscale(src image.Image, targetW, targetH int) []float64 {
	dst := image.NewRGBA(image.Rect(0, 0, targetW, targetH))
	draw.CatmullRom.Scale(dst, dst.Rect, src, src.Bounds(), draw.Over, nil)

	out := make([]float64, 0, targetW*targetH)
	bounds := dst.Bounds()
	for y := bounds.Min.Y; y < bounds.Max.Y; y++ {
		for x := bounds.Min.X; x < bounds.Max.X; x++ {
			r, g, b, _ := dst.At(x, y).RGBA()
			// Standard Grayscale formula
			gray := 0.299*float64(r>>8) + 0.587*float64(g>>8) + 0.114*float64(b>>8)
			out = append(out, gray/255)
		}
	}
	return out
}

// ImagesToDataset loads each image as one single-channel column. labels[i]
// is the target column of paths[i]; sample ids are the path positions.
func ImagesToDataset(paths []string, labels [][]float64, targetW, targetH int) (*ml.Dataset, error) {
	if len(paths) != len(labels) {
		return nil, fmt.Errorf("%d images but %d labels", len(paths), len(labels))
	}
	columns := make([][]float64, len(paths))
	for i, p := range paths {
		pixels, err := ConvertImage1D(p, targetW, targetH)
		if err != nil {
			return nil, err
		}
		columns[i] = pixels
	}
	return ml.NewDataset(nil, ml.FromColumnLeading(columns), ml.FromColumnLeading(labels))
}
