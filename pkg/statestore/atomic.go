package statestore

import (
	"os"
	"path/filepath"
)

// writeFileAtomic writes data to path by writing to a sibling temp file
// and renaming over the target, so a crash mid-write never leaves a
// partially-written file in place (spec §6: "Atomic writes (write-to-
// temp, rename)").
func writeFileAtomic(path string, data []byte, perm os.FileMode) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, perm); err != nil {
		return err
	}
	if err := os.Rename(tmp, path); err != nil {
		os.Remove(tmp)
		return err
	}
	return nil
}
