package storage

import (
	"fmt"
	"path"
	"regexp"
	"strings"
	"time"
)

var pathComponentPattern = regexp.MustCompile(`^[a-zA-Z0-9][a-zA-Z0-9._-]{0,127}$`)

// BuildAuditBatchPath lays audit batches out by UTC date and hour so the
// report can narrow a scan to a time range by prefix.
func BuildAuditBatchPath(prefix string, at time.Time, batchID string) (string, error) {
	if err := validatePrefix(prefix); err != nil {
		return "", err
	}
	if err := validatePathComponent(batchID, "batch id"); err != nil {
		return "", err
	}
	ts := at.UTC()
	return path.Join(
		prefix,
		fmt.Sprintf("date=%04d-%02d-%02d", ts.Year(), ts.Month(), ts.Day()),
		fmt.Sprintf("hour=%02d", ts.Hour()),
		fmt.Sprintf("audit-%s.parquet", batchID),
	), nil
}

func validatePrefix(prefix string) error {
	for _, part := range strings.Split(strings.Trim(prefix, "/"), "/") {
		if err := validatePathComponent(part, "prefix component"); err != nil {
			return err
		}
	}
	return nil
}

func validatePathComponent(value, field string) error {
	if !pathComponentPattern.MatchString(value) {
		return fmt.Errorf("invalid %s: %q", field, value)
	}
	return nil
}
