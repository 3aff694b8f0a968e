package scaffold

import (
	"fmt"
	"os"
	"path/filepath"
)

// CheckExisting returns an error if dir already holds a params file.
func CheckExisting(dir string) error {
	path := filepath.Join(dir, ParamsFile)
	if _, err := os.Stat(path); err == nil {
		return fmt.Errorf("found existing %s\n\nUse 'gridtrust init --force' to overwrite it", path)
	}
	return nil
}
