package fx_test

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vk/cmipconv/internal/model"
	"github.com/vk/cmipconv/internal/pipeline"
	"github.com/vk/cmipconv/internal/testutil"
	"github.com/vk/cmipconv/modules/fx"
)

func TestCellArea(t *testing.T) {
	// --- Arrange ---
	path := filepath.Join(t.TempDir(), "area_000101_000112.nc")
	testutil.WriteNetCDF(t, path, testutil.NetCDF{
		Dims:    []string{"lat", "lon"},
		Lengths: []int{1, 2},
		Vars: []testutil.NCVar{
			{Name: "lat", Dims: []string{"lat"}, Data: []float64{0}},
			{Name: "lon", Dims: []string{"lon"}, Data: []float64{90, 270}},
			{Name: "area", Dims: []string{"lat", "lon"}, Data: []float64{1e-4, 2e-4}},
		},
	})
	in := &pipeline.Inputs{Variable: "areacella", Lead: "area", Files: model.FileSet{"area": {path}}}
	tr, err := fx.NewCellArea(&fx.CellAreaArgs{})
	require.NoError(t, err)

	// --- Act ---
	got, err := tr.Fixed(context.Background(), in)

	// --- Assert ---
	require.NoError(t, err)
	r2 := fx.EarthRadius * fx.EarthRadius
	assert.InDeltaSlice(t, []float64{1e-4 * r2, 2e-4 * r2}, got, 1)
}

func TestCellArea_MissingInput(t *testing.T) {
	tr, err := fx.NewCellArea(&fx.CellAreaArgs{Radius: 1})
	require.NoError(t, err)

	_, err = tr.Fixed(context.Background(), &pipeline.Inputs{Variable: "areacella", Lead: "area", Files: model.FileSet{}})

	var missing *model.MissingInputError
	assert.ErrorAs(t, err, &missing)
}
