package service

import (
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/google/uuid"
)

// ErrInvalidBatchID indicates the string is not a batch_YYYYMMDD_HHMMSS_xxxxxxxx id
var ErrInvalidBatchID = errors.New("invalid batch id")

const batchTimeLayout = "20060102_150405"

var batchIDPattern = regexp.MustCompile(`^batch_(\d{8}_\d{6})_([0-9a-f]{8})$`)

// NewBatchID returns batch_<UTC timestamp>_<8 hex chars of a random UUID>.
func NewBatchID(now time.Time) string {
	suffix := strings.ReplaceAll(uuid.NewString(), "-", "")[:8]
	return fmt.Sprintf("batch_%s_%s", now.UTC().Format(batchTimeLayout), suffix)
}

// BatchTime extracts the embedded UTC timestamp from a batch id.
func BatchTime(id string) (time.Time, error) {
	m := batchIDPattern.FindStringSubmatch(id)
	if m == nil {
		return time.Time{}, fmt.Errorf("%w: %q", ErrInvalidBatchID, id)
	}
	t, err := time.Parse(batchTimeLayout, m[1])
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: %v", ErrInvalidBatchID, err)
	}
	return t, nil
}
