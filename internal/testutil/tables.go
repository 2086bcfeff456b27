package testutil

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

// TableEntry is one variable_entry of a fabricated destination table.
type TableEntry struct {
	Units      string `json:"units"`
	Positive   string `json:"positive"`
	Dimensions string `json:"dimensions"`
	Frequency  string `json:"frequency,omitempty"`
}

// WriteTable writes a destination table named name into dir.
func WriteTable(t testing.TB, dir, name, tableID string, entries map[string]TableEntry) string {
	t.Helper()
	doc := map[string]any{
		"Header": map[string]any{
			"table_id":      "Table " + tableID,
			"realm":         "atmos",
			"missing_value": 1e20,
		},
		"variable_entry": entries,
	}
	return writeJSON(t, filepath.Join(dir, name), doc)
}

// StandardTables writes the tables used by the built-in handlers.
func StandardTables(t testing.TB, dir string) {
	t.Helper()
	WriteTable(t, dir, "CMIP6_Amon.json", "Amon", map[string]TableEntry{
		"pr":      {Units: "kg m-2 s-1", Dimensions: "longitude latitude time"},
		"evspsbl": {Units: "kg m-2 s-1", Dimensions: "longitude latitude time"},
		"tas":     {Units: "K", Dimensions: "longitude latitude time height2m"},
		"rlut":    {Units: "W m-2", Positive: "up", Dimensions: "longitude latitude time"},
		"rsus":    {Units: "W m-2", Positive: "up", Dimensions: "longitude latitude time"},
		"rsuscs":  {Units: "W m-2", Positive: "up", Dimensions: "longitude latitude time"},
	})
	WriteTable(t, dir, "CMIP6_day.json", "day", map[string]TableEntry{
		"pr":   {Units: "kg m-2 s-1", Dimensions: "longitude latitude time"},
		"tas":  {Units: "K", Dimensions: "longitude latitude time height2m"},
		"rlut": {Units: "W m-2", Positive: "up", Dimensions: "longitude latitude time"},
	})
	WriteTable(t, dir, "CMIP6_Lmon.json", "Lmon", map[string]TableEntry{
		"mrfso": {Units: "kg m-2", Dimensions: "longitude latitude time"},
	})
	WriteTable(t, dir, "CMIP6_fx.json", "fx", map[string]TableEntry{
		"areacella": {Units: "m2", Dimensions: "longitude latitude"},
	})
	WriteTable(t, dir, "CMIP6_Omon.json", "Omon", map[string]TableEntry{
		"tos":   {Units: "degC", Dimensions: "longitude latitude time"},
		"tosga": {Units: "degC", Dimensions: "time"},
		"masso": {Units: "kg", Dimensions: "time"},
	})
	WriteTable(t, dir, "CMIP6_AERmon.json", "AERmon", map[string]TableEntry{
		"emiso2": {Units: "kg m-2 s-1", Dimensions: "longitude latitude time"},
	})
	WriteTable(t, dir, "CMIP6_SImon.json", "SImon", map[string]TableEntry{
		"sitimefrac": {Units: "1", Dimensions: "longitude latitude time"},
	})
}

// Metadata returns dataset metadata resembling a user_metadata.json file.
func Metadata() map[string]any {
	return map[string]any{
		"activity_id":    "CMIP",
		"institution_id": "E3SM-Project",
		"source_id":      "E3SM-1-0",
		"experiment_id":  "piControl",
		"variant_label":  "r1i1p1f1",
		"grid_label":     "gr",
		"outpath":        "CMIP6",
		"license":        "CMIP6 model data produced by E3SM-Project is licensed under a Creative Commons Attribution-ShareAlike 4.0 International License",
	}
}

// WriteMetadata writes Metadata() to path and returns path.
func WriteMetadata(t testing.TB, path string) string {
	t.Helper()
	return writeJSON(t, path, Metadata())
}

func writeJSON(t testing.TB, path string, v any) string {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	data, err := json.MarshalIndent(v, "", "    ")
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(path, data, 0o644))
	return path
}
