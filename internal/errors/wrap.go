package errors

import (
	"errors"
	"fmt"
)

// Wrap wraps an error with context.
func Wrap(err error, message string) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", message, err)
}

// WrapWithCategory wraps an error message with a specific category.
func WrapWithCategory(err error, message string, category error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %v: %w", message, err, category)
}

// IsCategory checks if error belongs to a specific category
func IsCategory(err error, category error) bool {
	if err == nil {
		return false
	}
	return errors.Is(err, category)
}

// Configuration wraps a message as a configuration error
func Configuration(message string) error {
	return fmt.Errorf("%s: %w", message, ErrConfiguration)
}

// APIDisabled wraps a message as an api-disabled error
func APIDisabled(message string) error {
	return fmt.Errorf("%s: %w", message, ErrAPIDisabled)
}

// RateLimit wraps a message as a rate limit error
func RateLimit(message string) error {
	return fmt.Errorf("%s: %w", message, ErrRateLimit)
}

// Provider wraps a message as a terminal provider error
func Provider(message string) error {
	return fmt.Errorf("%s: %w", message, ErrProvider)
}

// MessageShape wraps a message as a message shape error
func MessageShape(message string) error {
	return fmt.Errorf("%s: %w", message, ErrMessageShape)
}

// Internal wraps a message as an internal error
func Internal(message string) error {
	return fmt.Errorf("%s: %w", message, ErrInternal)
}

// IsRateLimit checks if an error is transient provider throttling.
func IsRateLimit(err error) bool {
	if err == nil {
		return false
	}
	return errors.Is(err, ErrRateLimit)
}
