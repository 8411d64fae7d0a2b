package utils

import "github.com/google/uuid"

// NewID returns a globally unique identifier.
func NewID() string {
	return uuid.NewString()
}
