package validation

import (
	"errors"
	"strings"
)

func ValidateName(name string) error {
	trimmed := strings.TrimSpace(name)

	if trimmed == "" {
		return errors.New("full name is required")
	}
	if len(trimmed) > 255 {
		return errors.New("full name is too long (max 255 characters)")
	}

	return nil
}

// ValidatePhone allows digits, spaces and the usual separators, up to 50 characters.
func ValidatePhone(phone string) error {
	if len(phone) > 50 {
		return errors.New("phone number is too long (max 50 characters)")
	}

	digits := 0
	for _, r := range phone {
		switch {
		case r >= '0' && r <= '9':
			digits++
		case strings.ContainsRune(" +-().", r):
		default:
			return errors.New("phone number contains invalid characters")
		}
	}
	if digits < 5 {
		return errors.New("phone number is too short")
	}

	return nil
}
