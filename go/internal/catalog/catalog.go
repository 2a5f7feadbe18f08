// Package catalog holds the server-side metadata of mock tests. Countdown
// durations are taken from here instead of trusting the client.
package catalog

import (
	"context"
	"errors"
)

var ErrTestNotFound = errors.New("mock test not found")

// MockTest is the part of a mock test's metadata the timer needs
type MockTest struct {
	ID              string `yaml:"id" json:"id"`
	Name            string `yaml:"name" json:"name"`
	DurationSeconds int    `yaml:"duration_seconds" json:"duration_seconds"`
}

// Catalog resolves the countdown length of a mock test
type Catalog interface {
	Duration(ctx context.Context, testID string) (int, error)
}
