package core

import (
	"encoding/json"
	"fmt"
	"time"
)

// TimestampLayout renders instants in UTC with every fractional digit, so
// stored timestamps compare as strings in time order.
const TimestampLayout = "2006-01-02T15:04:05.000000000Z"

// Timestamp is a time stored in documents at a fixed width. Use it for any
// field that filters or sorts by time.
type Timestamp struct {
	time.Time
}

func NewTimestamp(t time.Time) Timestamp {
	return Timestamp{Time: t.UTC()}
}

func (t Timestamp) String() string {
	return t.UTC().Format(TimestampLayout)
}

func (t Timestamp) MarshalJSON() ([]byte, error) {
	return json.Marshal(t.String())
}

// UnmarshalJSON accepts any RFC 3339 time, including the fixed layout.
func (t *Timestamp) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return fmt.Errorf("timestamp: %w", err)
	}
	parsed, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return fmt.Errorf("timestamp: %w", err)
	}
	t.Time = parsed.UTC()
	return nil
}
