package utils

import (
	"github.com/google/uuid"
)

// GenerateID returns a new random identifier
func GenerateID() string {
	return uuid.NewString()
}

// GenerateOrderedID returns a time-ordered (v7) identifier, so ids sort in
// creation order. Falls back to a random id if the clock source fails.
func GenerateOrderedID() string {
	id, err := uuid.NewV7()
	if err != nil {
		return uuid.NewString()
	}
	return id.String()
}
