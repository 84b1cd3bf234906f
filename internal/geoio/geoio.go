// Package geoio reads analysis inputs from GeoJSON and shapefiles and writes
// analysis results back out. Inputs are expected in a single projected
// frame; nothing here reprojects.
package geoio

import (
	"os"
	"path/filepath"
	"strings"

	"github.com/rotisserie/eris"
)

// Format is an on-disk vector format.
type Format int

const (
	FormatUnknown Format = iota
	FormatGeoJSON
	FormatShapefile
	FormatShapefileZIP
)

// DetectFormat guesses the format of path from its extension. A directory
// is treated as a shapefile directory.
func DetectFormat(path string) Format {
	if fi, err := os.Stat(path); err == nil && fi.IsDir() {
		return FormatShapefile
	}
	switch strings.ToLower(filepath.Ext(path)) {
	case ".geojson", ".json":
		return FormatGeoJSON
	case ".shp":
		return FormatShapefile
	case ".zip":
		return FormatShapefileZIP
	default:
		return FormatUnknown
	}
}

// findFileByExt finds the first file with the given extension in a directory.
func findFileByExt(dir, ext string) (string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return "", eris.Wrap(err, "geoio: read directory")
	}
	for _, e := range entries {
		if !e.IsDir() && strings.HasSuffix(strings.ToLower(e.Name()), ext) {
			return filepath.Join(dir, e.Name()), nil
		}
	}
	return "", eris.Errorf("geoio: no %s file found in %s", ext, dir)
}

// ensureDir creates the parent directory of path.
func ensureDir(path string) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return eris.Wrapf(err, "geoio: create directory %s", dir)
	}
	return nil
}
