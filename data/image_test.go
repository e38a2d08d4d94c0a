package data

import (
	"image"
	"image/color"
	"image/png"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writePNG(t *testing.T, path string, img image.Image) {
	t.Helper()
	f, err := os.Create(path)
	require.NoError(t, err)
	defer f.Close()
	require.NoError(t, png.Encode(f, img))
}

func uniformGray(w, h int, v uint8) *image.Gray {
	img := image.NewGray(image.Rect(0, 0, w, h))
	for i := range img.Pix {
		img.Pix[i] = v
	}
	return img
}

func TestGrayscale(t *testing.T) {
	pixels := Grayscale(uniformGray(8, 8, 255), 4, 2)
	require.Len(t, pixels, 8)
	for _, p := range pixels {
		assert.InDelta(t, 1.0, p, 0.01)
	}

	for _, p := range Grayscale(uniformGray(3, 3, 0), 5, 5) {
		assert.InDelta(t, 0.0, p, 0.01)
	}
}

func TestGrayscaleKeepsLayout(t *testing.T) {
	// left half black, right half white
	img := image.NewGray(image.Rect(0, 0, 4, 4))
	for y := 0; y < 4; y++ {
		for x := 2; x < 4; x++ {
			img.SetGray(x, y, color.Gray{Y: 255})
		}
	}
	pixels := Grayscale(img, 4, 4)
	assert.Less(t, pixels[0], 0.5)
	assert.Greater(t, pixels[3], 0.5)
	assert.Less(t, pixels[12], 0.5)
	assert.Greater(t, pixels[15], 0.5)
}

func TestImagesToDataset(t *testing.T) {
	dir := t.TempDir()
	dark := filepath.Join(dir, "dark.png")
	light := filepath.Join(dir, "light.png")
	writePNG(t, dark, uniformGray(10, 10, 0))
	writePNG(t, light, uniformGray(6, 6, 255))

	ds, err := ImagesToDataset([]string{dark, light}, [][]float64{{1, 0}, {0, 1}}, 3, 3)
	require.NoError(t, err)
	assert.Equal(t, 9, ds.X.Rows())
	assert.Equal(t, 2, ds.Len())
	assert.InDelta(t, 0.0, ds.X.Sum()-ds.X.SliceColumns(1, 2).Sum(), 0.05)
	assert.InDelta(t, 9.0, ds.X.SliceColumns(1, 2).Sum(), 0.05)
	assert.Equal(t, []float64{0, 1}, ds.Y.Column(1))

	_, err = ImagesToDataset([]string{dark}, nil, 3, 3)
	assert.Error(t, err)
	_, err = ConvertImage1D(filepath.Join(dir, "nope.png"), 3, 3)
	assert.Error(t, err)
}
