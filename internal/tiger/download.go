package tiger

import (
	"archive/zip"
	"context"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
)

// Download fetches a TIGER/Line ZIP into destDir and extracts it. Returns the
// path to the extracted .shp file. An existing non-empty ZIP is reused.
func Download(ctx context.Context, client *http.Client, url, destDir string) (string, error) {
	log := zap.L().With(
		zap.String("component", "tiger.download"),
		zap.String("url", url),
	)

	if err := os.MkdirAll(destDir, 0o755); err != nil {
		return "", eris.Wrap(err, "tiger: create dest dir")
	}

	zipName := url[strings.LastIndex(url, "/")+1:]
	zipPath := filepath.Join(destDir, zipName)

	if info, err := os.Stat(zipPath); err == nil && info.Size() > 0 {
		log.Debug("zip already cached, skipping download", zap.String("path", zipPath))
	} else {
		log.Info("downloading tract boundaries")
		if err := downloadFile(ctx, client, url, zipPath); err != nil {
			return "", eris.Wrap(err, "tiger: download shapefile")
		}
	}

	extractDir := filepath.Join(destDir, strings.TrimSuffix(zipName, ".zip"))
	if err := os.MkdirAll(extractDir, 0o755); err != nil {
		return "", eris.Wrap(err, "tiger: create extract dir")
	}
	if err := extractZIP(zipPath, extractDir); err != nil {
		return "", eris.Wrap(err, "tiger: extract ZIP")
	}

	shpPath, err := findFileByExt(extractDir, ".shp")
	if err != nil {
		return "", eris.Wrap(err, "tiger: find .shp file")
	}
	return shpPath, nil
}

// downloadFile streams url into dest. The body lands in a temporary file
// first so an interrupted transfer never leaves a truncated ZIP at dest.
func downloadFile(ctx context.Context, client *http.Client, url, dest string) error {
	if client == nil {
		client = &http.Client{Timeout: 10 * time.Minute}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return eris.Wrap(err, "build request")
	}

	resp, err := client.Do(req)
	if err != nil {
		return eris.Wrap(err, "download")
	}
	defer resp.Body.Close() //nolint:errcheck

	if resp.StatusCode != http.StatusOK {
		return eris.Errorf("download returned status %d", resp.StatusCode)
	}

	tmp := dest + ".part"
	f, err := os.Create(tmp)
	if err != nil {
		return eris.Wrap(err, "create file")
	}
	if _, err := io.Copy(f, resp.Body); err != nil {
		_ = f.Close()
		_ = os.Remove(tmp)
		return eris.Wrap(err, "write file")
	}
	if err := f.Close(); err != nil {
		_ = os.Remove(tmp)
		return eris.Wrap(err, "close file")
	}
	return os.Rename(tmp, dest)
}

// extractZIP flattens a ZIP archive into destDir.
func extractZIP(zipPath, destDir string) error {
	r, err := zip.OpenReader(zipPath)
	if err != nil {
		return eris.Wrap(err, "open zip")
	}
	defer r.Close() //nolint:errcheck

	for _, f := range r.File {
		if f.FileInfo().IsDir() {
			continue
		}
		if err := extractEntry(f, filepath.Join(destDir, filepath.Base(f.Name))); err != nil {
			return err
		}
	}
	return nil
}

func extractEntry(f *zip.File, destPath string) error {
	rc, err := f.Open()
	if err != nil {
		return eris.Wrapf(err, "open zip entry %s", f.Name)
	}
	defer rc.Close() //nolint:errcheck

	out, err := os.Create(destPath)
	if err != nil {
		return eris.Wrapf(err, "create %s", destPath)
	}
	if _, err := io.Copy(out, rc); err != nil {
		_ = out.Close()
		return eris.Wrapf(err, "extract %s", f.Name)
	}
	return out.Close()
}

// findFileByExt finds the first file with the given extension in a directory.
func findFileByExt(dir, ext string) (string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return "", eris.Wrap(err, "read directory")
	}
	for _, e := range entries {
		if !e.IsDir() && strings.HasSuffix(strings.ToLower(e.Name()), ext) {
			return filepath.Join(dir, e.Name()), nil
		}
	}
	return "", eris.Errorf("no %s file found in %s", ext, dir)
}
