package validation

import (
	"fmt"
	"regexp"
	"strings"
	"unicode/utf8"
)

var ErrValidationFailed = fmt.Errorf("validation failed")

const (
	MaxSymbolLength       = 32
	MaxCurrencyCodeLength = 3
	MaxTypeLabelLength    = 128
)

var (
	symbolRegex       = regexp.MustCompile(`^[A-Za-z0-9._-]+$`)
	currencyCodeRegex = regexp.MustCompile(`^[A-Z]{3}$`)
)

// ValidateStringNotEmpty checks if a string is not empty after trimming.
func ValidateStringNotEmpty(s, fieldName string) error {
	if strings.TrimSpace(s) == "" {
		return fmt.Errorf("%w: %s cannot be empty", ErrValidationFailed, fieldName)
	}
	return nil
}

// ValidateStringMaxLength checks if a string's UTF-8 character count is within max bounds.
func ValidateStringMaxLength(s string, maxLength int, fieldName string) error {
	if utf8.RuneCountInString(s) > maxLength {
		return fmt.Errorf("%w: %s exceeds maximum length of %d characters", ErrValidationFailed, fieldName, maxLength)
	}
	return nil
}

// ValidateSymbol checks that an asset identifier is a short token without spaces.
func ValidateSymbol(s string) error {
	if err := ValidateStringNotEmpty(s, "symbol"); err != nil {
		return err
	}
	if err := ValidateStringMaxLength(s, MaxSymbolLength, "symbol"); err != nil {
		return err
	}
	if !symbolRegex.MatchString(s) {
		return fmt.Errorf("%w: symbol ('%s') must be alphanumeric", ErrValidationFailed, s)
	}
	return nil
}

// ValidateTypeLabel checks the transaction type label of a raw row.
func ValidateTypeLabel(s string) error {
	if err := ValidateStringNotEmpty(s, "type"); err != nil {
		return err
	}
	return ValidateStringMaxLength(s, MaxTypeLabelLength, "type")
}

// ValidateCurrencyCode checks if a non-empty currency code is 3 uppercase letters.
func ValidateCurrencyCode(s string) error {
	if s == "" {
		return nil
	}
	if !currencyCodeRegex.MatchString(s) {
		return fmt.Errorf("%w: currency code ('%s') is not 3 uppercase letters", ErrValidationFailed, s)
	}
	return nil
}
