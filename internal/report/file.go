package report

import (
	"fmt"
	"os"
	"time"
)

// WriteFileAtomic writes data to path via a temp file and rename, so a
// concurrent textfile collector never sees a partial file.
func WriteFileAtomic(path string, data []byte) error {
	tmpPath := fmt.Sprintf("%s.%d.tmp", path, time.Now().UnixNano())
	if err := os.WriteFile(tmpPath, data, 0o644); err != nil {
		return fmt.Errorf("write temp export: %w", err)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		_ = os.Remove(tmpPath)
		return fmt.Errorf("replace export file: %w", err)
	}
	return nil
}
