package persist

import (
	"os"
	"path/filepath"

	"github.com/canonical/landscape-client-sub002/errors"
)

// WriteAtomic writes `data` to `path` by first writing to a temporary file
// in the same directory and then renaming it into place, so a crash
// mid-write never leaves a half-written file visible at `path`. Exported so
// other components (the message store, in particular) that keep their own
// on-disk records alongside the Persist tree get the same guarantee.
func WriteAtomic(path string, data []byte) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return errors.Wrap(err, "failed to create parent directory")
	}

	tmp, err := os.CreateTemp(dir, filepath.Base(path)+".tmp-*")
	if err != nil {
		return errors.Wrap(err, "failed to create temp file")
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmpName)
		return errors.Wrap(err, "failed to write temp file")
	}
	if err := tmp.Sync(); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmpName)
		return errors.Wrap(err, "failed to sync temp file")
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmpName)
		return errors.Wrap(err, "failed to close temp file")
	}
	if err := os.Rename(tmpName, path); err != nil {
		_ = os.Remove(tmpName)
		return errors.Wrap(err, "failed to rename temp file into place")
	}
	return nil
}
