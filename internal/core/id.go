package core

import "github.com/google/uuid"

// NewID returns a globally unique identifier for periods and expenses.
func NewID() string {
	return uuid.NewString()
}
