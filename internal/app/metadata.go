package app

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/tidwall/gjson"
	"github.com/tidwall/sjson"
)

// MetadataCopyName is the copy of the dataset metadata the sessions read.
const MetadataCopyName = "user_metadata.json"

// copyMetadata copies the dataset metadata into outDir with its outpath
// pointing at outDir, and returns the path of the copy.
func copyMetadata(src, outDir string) (string, error) {
	data, err := os.ReadFile(src)
	if err != nil {
		return "", fmt.Errorf("failed to read user metadata: %w", err)
	}
	if !gjson.ValidBytes(data) {
		return "", fmt.Errorf("user metadata %s is not valid JSON", src)
	}
	abs, err := filepath.Abs(outDir)
	if err != nil {
		return "", err
	}
	data, err = sjson.SetBytes(data, "outpath", abs)
	if err != nil {
		return "", fmt.Errorf("failed to rewrite outpath: %w", err)
	}
	dst := filepath.Join(outDir, MetadataCopyName)
	if err := os.WriteFile(dst, data, 0o644); err != nil {
		return "", fmt.Errorf("failed to write metadata copy: %w", err)
	}
	return dst, nil
}
