// Package geotest holds shapefile fixtures shared by the geo and tiger tests.
package geotest

import (
	"os"
	"strings"
	"testing"

	"github.com/jonas-p/go-shp"
	"github.com/stretchr/testify/require"
)

// CloseShapefile closes w and moves the attribute file to <base>.dbf.
// go-shp v0.1.1 names it <base>dbf (no dot), which readers never find.
func CloseShapefile(t *testing.T, w *shp.Writer, shpPath string) {
	t.Helper()
	w.Close()

	base := strings.TrimSuffix(shpPath, ".shp")
	if _, err := os.Stat(base + "dbf"); err == nil {
		require.NoError(t, os.Rename(base+"dbf", base+".dbf"))
	}
	require.FileExists(t, base+".dbf")
}
