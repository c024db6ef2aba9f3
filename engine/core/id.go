package core

import (
	"fmt"

	"github.com/segmentio/ksuid"
)

// ID identifies a stored document. Generated IDs are KSUIDs, so they sort
// by creation time, but any non-empty string supplied by the caller is kept.
type ID string

func (id ID) String() string {
	return string(id)
}

// NewID generates a new KSUID-backed identifier.
func NewID() (ID, error) {
	k, err := ksuid.NewRandom()
	if err != nil {
		return "", fmt.Errorf("generating ID: %w", err)
	}
	return ID(k.String()), nil
}
