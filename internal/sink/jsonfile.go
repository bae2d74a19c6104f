package sink

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
)

// JSONFileSink writes the export as a pretty-printed JSON file named
// after the job's date range, e.g.
// student_news_report_2025-08-18_to_2025-08-24.json. The write is
// atomic: content goes to a temp file in the same directory, then a
// rename swaps it into place, so a crashed run never leaves a
// truncated report.
type JSONFileSink struct {
	dir string
}

// NewJSONFileSink creates a file sink rooted at dir.
func NewJSONFileSink(dir string) *JSONFileSink {
	return &JSONFileSink{dir: dir}
}

// Write persists the export and returns the file path.
func (s *JSONFileSink) Write(ctx context.Context, export *Export) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	if err := os.MkdirAll(s.dir, 0o755); err != nil {
		return "", fmt.Errorf("create output dir: %w", err)
	}

	name := fmt.Sprintf("student_news_report_%s_to_%s.json", export.WindowStart, export.WindowEnd)
	path := filepath.Join(s.dir, name)

	data, err := json.MarshalIndent(export, "", "  ")
	if err != nil {
		return "", fmt.Errorf("encode export: %w", err)
	}

	tmp, err := os.CreateTemp(s.dir, name+".tmp-*")
	if err != nil {
		return "", fmt.Errorf("create temp file: %w", err)
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmpName)
		return "", fmt.Errorf("write export: %w", err)
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmpName)
		return "", fmt.Errorf("close temp file: %w", err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		_ = os.Remove(tmpName)
		return "", fmt.Errorf("finalize export: %w", err)
	}
	return path, nil
}
