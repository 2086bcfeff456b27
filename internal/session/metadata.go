package session

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/tidwall/gjson"
)

// Metadata is the dataset description shared by every output of a run.
type Metadata struct {
	raw []byte
}

// ReadMetadata loads a dataset metadata JSON file.
func ReadMetadata(path string) (*Metadata, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read dataset metadata: %w", err)
	}
	if !gjson.ValidBytes(data) {
		return nil, fmt.Errorf("dataset metadata %s is not valid JSON", path)
	}
	return &Metadata{raw: data}, nil
}

// Get returns a string field, or "".
func (m *Metadata) Get(key string) string {
	if m == nil {
		return ""
	}
	return gjson.GetBytes(m.raw, gjsonEscape(key)).String()
}

// Attributes returns the string-valued top-level fields as global attributes,
// sorted by key. Comment keys (leading '#') and outpath are left out.
func (m *Metadata) Attributes() [][2]string {
	if m == nil {
		return nil
	}
	var out [][2]string
	gjson.ParseBytes(m.raw).ForEach(func(key, value gjson.Result) bool {
		k := key.String()
		if strings.HasPrefix(k, "#") || k == "outpath" || value.Type != gjson.String {
			return true
		}
		out = append(out, [2]string{k, value.String()})
		return true
	})
	sort.Slice(out, func(i, j int) bool { return out[i][0] < out[j][0] })
	return out
}

var drsDefaults = map[string]string{
	"activity_id":    "CMIP",
	"institution_id": "unknown",
	"grid_label":     "gr",
}

func (m *Metadata) drs(key string) (string, error) {
	if v := m.Get(key); v != "" {
		return v, nil
	}
	if v, ok := drsDefaults[key]; ok {
		return v, nil
	}
	return "", fmt.Errorf("dataset metadata is missing %q", key)
}

// OutputPath returns the directory-tree path of the artifact for variable v
// of table tableID under root.
func (m *Metadata) OutputPath(root, tableID, v string) (string, error) {
	keys := []string{"activity_id", "institution_id", "source_id", "experiment_id", "variant_label", "grid_label"}
	vals := make(map[string]string, len(keys))
	for _, k := range keys {
		s, err := m.drs(k)
		if err != nil {
			return "", err
		}
		vals[k] = s
	}
	dir := filepath.Join(root, "CMIP6",
		vals["activity_id"], vals["institution_id"], vals["source_id"], vals["experiment_id"],
		vals["variant_label"], tableID, v, vals["grid_label"])
	name := strings.Join([]string{
		v, tableID, vals["source_id"], vals["experiment_id"], vals["variant_label"], vals["grid_label"],
	}, "_") + ".nc"
	return filepath.Join(dir, name), nil
}

// ReadAttributes loads a JSON object of extra global attributes. Scalar
// values are kept in their JSON text form; nested values are rejected.
func ReadAttributes(path string) (map[string]string, error) {
	if path == "" {
		return nil, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read custom metadata: %w", err)
	}
	root := gjson.ParseBytes(data)
	if !gjson.ValidBytes(data) || !root.IsObject() {
		return nil, fmt.Errorf("custom metadata %s must be a JSON object", path)
	}
	out := make(map[string]string)
	var bad string
	root.ForEach(func(key, value gjson.Result) bool {
		if value.IsObject() || value.IsArray() {
			bad = key.String()
			return false
		}
		out[key.String()] = value.String()
		return true
	})
	if bad != "" {
		return nil, fmt.Errorf("custom metadata %s: attribute %q is not a scalar", path, bad)
	}
	return out, nil
}
