package stage

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"sync"

	"github.com/spatialpipe/spatialpipe/internal/fsgate"
	"github.com/spatialpipe/spatialpipe/internal/models"
	"github.com/spatialpipe/spatialpipe/internal/platform"
)

// Download fetches every URL of the dataset into its destination directory,
// renaming each file with the configured prefix. URLs fan out in parallel
// with no ordering dependency; one transfer's failure leaves the others
// unaffected, and the joined error names each failed URL.
func (e *Executor) Download(ctx context.Context, ds models.DatasetDescriptor) error {
	if err := os.MkdirAll(ds.DestDir, 0755); err != nil {
		return &models.StageError{Type: models.ErrInternalError, Stage: ds.Name, Path: ds.DestDir, Err: err}
	}

	errs := make([]error, len(ds.URLs))
	var wg sync.WaitGroup
	for i, u := range ds.URLs {
		wg.Add(1)
		go func() {
			defer wg.Done()
			errs[i] = e.fetchOne(ctx, ds, u)
		}()
	}
	wg.Wait()

	return errors.Join(errs...)
}

// fetchOne downloads a single URL into a private scratch directory, so the
// produced filename is exactly what the transport tool wrote rather than a
// guess from modification times, then renames it with the dataset prefix
// into the destination directory.
func (e *Executor) fetchOne(ctx context.Context, ds models.DatasetDescriptor, rawURL string) error {
	if target := predictedTarget(ds, rawURL); target != "" && fsgate.ExistsNonEmpty(target) {
		slog.Info("download target present, skipping", "dataset", ds.Name, "url", rawURL, "target", target)
		return nil
	}

	scratch, err := os.MkdirTemp(ds.DestDir, ".fetch-*")
	if err != nil {
		return &models.StageError{Type: models.ErrInternalError, Stage: ds.Name, Path: ds.DestDir, Err: err}
	}
	defer os.RemoveAll(scratch)

	slog.Info("downloading", "dataset", ds.Name, "url", rawURL)

	code, err := e.runner.Run(ctx, e.strat.FetchArgs(rawURL), platform.RunOptions{Dir: scratch})
	if err == nil && code != 0 {
		err = fmt.Errorf("transport exited with code %d", code)
	}
	if err != nil {
		return &models.StageError{Type: models.ErrTransportFailed, Stage: ds.Name, Path: rawURL, Err: err}
	}

	entries, err := os.ReadDir(scratch)
	if err != nil {
		return &models.StageError{Type: models.ErrInternalError, Stage: ds.Name, Path: scratch, Err: err}
	}

	var published int
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		src := filepath.Join(scratch, entry.Name())
		dst := filepath.Join(ds.DestDir, ds.RenamePrefix+entry.Name())
		if err := os.Rename(src, dst); err != nil {
			return &models.StageError{Type: models.ErrInternalError, Stage: ds.Name, Path: dst, Err: err}
		}
		slog.Info("download complete", "dataset", ds.Name, "file", dst)
		published++
	}

	if published == 0 {
		return &models.StageError{
			Type:  models.ErrTransportFailed,
			Stage: ds.Name,
			Path:  rawURL,
			Err:   fmt.Errorf("transport produced no file"),
		}
	}
	return nil
}

// predictedTarget is the destination path assuming the server names the file
// after the URL's last path segment. Used only for the skip-if-exists check;
// a server that picks a different name just costs a re-download.
func predictedTarget(ds models.DatasetDescriptor, rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil {
		return ""
	}
	base := path.Base(u.Path)
	if base == "." || base == "/" || base == "" {
		return ""
	}
	return filepath.Join(ds.DestDir, ds.RenamePrefix+base)
}
