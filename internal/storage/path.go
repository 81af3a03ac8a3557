package storage

import (
	"fmt"
	"path"
	"regexp"
	"time"
)

var pathComponentPattern = regexp.MustCompile(`^[a-zA-Z0-9][a-zA-Z0-9._-]{0,127}$`)

// BuildFeedbackArchivePath returns the object key of one archived exploration
// log row, partitioned by model explore and by the UTC day and hour it was
// recorded.
func BuildFeedbackArchivePath(modelExplore string, createdAt time.Time, logID int64) (string, error) {
	if err := validatePathComponent(modelExplore, "model explore"); err != nil {
		return "", err
	}
	if logID <= 0 {
		return "", fmt.Errorf("log id must be > 0")
	}

	ts := createdAt.UTC()
	return path.Join(
		"model_explore="+modelExplore,
		fmt.Sprintf("date=%04d-%02d-%02d", ts.Year(), ts.Month(), ts.Day()),
		fmt.Sprintf("hour=%02d", ts.Hour()),
		fmt.Sprintf("log-%010d.parquet", logID),
	), nil
}

func validatePathComponent(value, field string) error {
	if !pathComponentPattern.MatchString(value) {
		return fmt.Errorf("invalid %s: %q", field, value)
	}
	return nil
}
