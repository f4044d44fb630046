package export

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/rebeliceyang/lazyvar/internal/models"
)

// ExportToCSV exports profile entries to a CSV file. The body column holds
// the serialized workspace.
func ExportToCSV(entries []models.ProfileEntry, path string) error {
	file, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create CSV file: %w", err)
	}
	defer func() { _ = file.Close() }()

	writer := csv.NewWriter(file)

	header := []string{"Name", "Description", "Analysis", "Tags", "Body", "Created", "Updated", "Last Used", "Usage Count"}
	if err := writer.Write(header); err != nil {
		return fmt.Errorf("failed to write CSV header: %w", err)
	}

	for _, e := range entries {
		lastUsed := ""
		if !e.LastUsed.IsZero() {
			lastUsed = e.LastUsed.Format("2006-01-02 15:04:05")
		}

		row := []string{
			e.Name,
			e.Description,
			e.Analysis,
			strings.Join(e.Tags, ", "),
			e.Body,
			e.CreatedAt.Format("2006-01-02 15:04:05"),
			e.UpdatedAt.Format("2006-01-02 15:04:05"),
			lastUsed,
			fmt.Sprintf("%d", e.UsageCount),
		}
		if err := writer.Write(row); err != nil {
			return fmt.Errorf("failed to write CSV row: %w", err)
		}
	}

	writer.Flush()
	if err := writer.Error(); err != nil {
		return fmt.Errorf("failed to flush CSV file: %w", err)
	}
	return nil
}

// ExportToJSON exports profile entries to an indented JSON file
func ExportToJSON(entries []models.ProfileEntry, path string) error {
	if entries == nil {
		entries = []models.ProfileEntry{}
	}
	data, err := json.MarshalIndent(entries, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal profiles to JSON: %w", err)
	}

	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write JSON file: %w", err)
	}

	return nil
}
