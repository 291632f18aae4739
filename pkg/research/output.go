package research

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/Thesius-ai/thesius-deepresearch-cli/pkg/domain"
)

// DatasetFileName returns the output file name for a dataset written at t.
func DatasetFileName(t time.Time) string {
	return "final_dataset_output_" + t.Format("20060102_150405") + ".json"
}

// WriteDataset writes the final dataset of s as an indented JSON array into dir
// and returns the file path.
func WriteDataset(dir string, at time.Time, s domain.State) (string, error) {
	records := s.Sequence(FieldFinalDataset)
	if records == nil {
		records = []any{}
	}

	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "  ")
	if err := enc.Encode(records); err != nil {
		return "", fmt.Errorf("failed to encode dataset: %w", err)
	}

	if err := os.MkdirAll(dir, 0755); err != nil {
		return "", fmt.Errorf("failed to create output directory: %w", err)
	}
	path := filepath.Join(dir, DatasetFileName(at))
	if err := os.WriteFile(path, buf.Bytes(), 0644); err != nil {
		return "", fmt.Errorf("failed to write dataset: %w", err)
	}
	return path, nil
}
