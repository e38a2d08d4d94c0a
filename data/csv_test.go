package data

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const housing = `id,rooms,area,price
7,3,80.5,1.2
3,2,60,0.9
9,4,120,2.1
`

func TestReadCSV(t *testing.T) {
	ds, err := ReadCSV(strings.NewReader(housing), []string{"price"}, "id")
	require.NoError(t, err)
	assert.Equal(t, []int{7, 3, 9}, ds.IDs)
	assert.Equal(t, 3, ds.Len())
	assert.Equal(t, [][]float64{{3, 2, 4}, {80.5, 60, 120}}, ds.X.ToRowLeading())
	assert.Equal(t, [][]float64{{1.2, 0.9, 2.1}}, ds.Y.ToRowLeading())
}

func TestReadCSVWithoutIDs(t *testing.T) {
	ds, err := ReadCSV(strings.NewReader("a,b,y1,y2\n1,2,0,1\n3,4,1,0\n"), []string{"y1", "y2"}, "")
	require.NoError(t, err)
	assert.Equal(t, []int{0, 1}, ds.IDs)
	assert.Equal(t, 2, ds.X.Rows())
	assert.Equal(t, 2, ds.Y.Rows())
	assert.Equal(t, []float64{0, 1}, ds.Y.Column(0))
}

func TestReadCSVErrors(t *testing.T) {
	for name, tc := range map[string]struct {
		body   string
		target string
		id     string
	}{
		"empty":          {"", "y", ""},
		"missing target": {"a,b\n1,2\n", "y", ""},
		"missing id":     {"a,y\n1,2\n", "y", "id"},
		"not a number":   {"a,y\n1,x\n", "y", ""},
		"bad id":         {"id,a,y\n1.5,1,2\n", "y", "id"},
		"ragged":         {"a,y\n1,2\n3\n", "y", ""},
		"no rows":        {"a,y\n", "y", ""},
		"duplicate id":   {"id,a,y\n3,1,2\n3,4,5\n", "y", "id"},
	} {
		t.Run(name, func(t *testing.T) {
			_, err := ReadCSV(strings.NewReader(tc.body), []string{tc.target}, tc.id)
			assert.Error(t, err)
		})
	}
}

func TestLoadCSV(t *testing.T) {
	path := filepath.Join(t.TempDir(), "housing.csv")
	require.NoError(t, os.WriteFile(path, []byte(housing), 0o644))
	ds, err := LoadCSV(path, []string{"price"}, "id")
	require.NoError(t, err)
	assert.Equal(t, 3, ds.Len())

	_, err = LoadCSV(filepath.Join(t.TempDir(), "missing.csv"), []string{"price"}, "")
	assert.ErrorIs(t, err, os.ErrNotExist)
}
