// backend/src/security/validation/field_validator.go
package validation

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"unicode/utf8"

	"cloud.google.com/go/civil"
	"github.com/shopspring/decimal"
	"github.com/username/bondfolio/backend/src/logger"
)

var ErrValidationFailed = fmt.Errorf("validation failed")

const (
	DefaultMaxStringLength = 255
	MaxSeriesLength        = 16
	MaxCurrencyCodeLength  = 3
	MinPasswordLength      = 8
)

// --- String Validators ---

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

// ValidateStringRegex checks if a string matches a given regex pattern.
func ValidateStringRegex(s string, pattern *regexp.Regexp, fieldName, formatDescription string) error {
	if !pattern.MatchString(s) {
		return fmt.Errorf("%w: %s ('%s') is not in the expected format (%s)", ErrValidationFailed, fieldName, s, formatDescription)
	}
	return nil
}

// --- Numeric Validators ---

// ValidateDecimalString parses an exact decimal (comma or dot separator) and
// checks it against the optional bounds. A nil bound is not enforced.
func ValidateDecimalString(s, fieldName string, minVal, maxVal *decimal.Decimal) (decimal.Decimal, error) {
	trimmed := strings.ReplaceAll(strings.TrimSpace(s), ",", ".")
	if err := ValidateStringNotEmpty(trimmed, fieldName); err != nil {
		return decimal.Zero, err
	}
	val, err := decimal.NewFromString(trimmed)
	if err != nil {
		return decimal.Zero, fmt.Errorf("%w: %s ('%s') is not a valid decimal", ErrValidationFailed, fieldName, s)
	}
	if err := ValidateDecimalRange(val, fieldName, minVal, maxVal); err != nil {
		return decimal.Zero, err
	}
	return val, nil
}

// ValidateDecimalRange checks an already parsed decimal against the optional bounds.
func ValidateDecimalRange(val decimal.Decimal, fieldName string, minVal, maxVal *decimal.Decimal) error {
	if minVal != nil && val.LessThan(*minVal) {
		logger.L.Warn("Decimal value below minimum", "field", fieldName, "value", val.String(), "min", minVal.String())
		return fmt.Errorf("%w: %s must be at least %s, got %s", ErrValidationFailed, fieldName, minVal, val)
	}
	if maxVal != nil && val.GreaterThan(*maxVal) {
		logger.L.Warn("Decimal value above maximum", "field", fieldName, "value", val.String(), "max", maxVal.String())
		return fmt.Errorf("%w: %s must be at most %s, got %s", ErrValidationFailed, fieldName, maxVal, val)
	}
	return nil
}

// ValidatePositiveDecimal requires val > 0.
func ValidatePositiveDecimal(val decimal.Decimal, fieldName string) error {
	if !val.IsPositive() {
		return fmt.Errorf("%w: %s must be positive, got %s", ErrValidationFailed, fieldName, val)
	}
	return nil
}

// ValidateIntString parses a string to int and checks if it's within a range.
func ValidateIntString(s, fieldName string, minVal, maxVal int) (int, error) {
	trimmed := strings.TrimSpace(s)
	if err := ValidateStringNotEmpty(trimmed, fieldName); err != nil {
		return 0, err
	}
	val, err := strconv.Atoi(trimmed)
	if err != nil {
		return 0, fmt.Errorf("%w: %s ('%s') is not a valid integer: %v", ErrValidationFailed, fieldName, s, err)
	}
	return val, ValidateIntRange(val, fieldName, minVal, maxVal)
}

// ValidateIntRange checks minVal <= val <= maxVal.
func ValidateIntRange(val int, fieldName string, minVal, maxVal int) error {
	if val < minVal || val > maxVal {
		logger.L.Warn("Integer value out of range", "field", fieldName, "value", val, "min", minVal, "max", maxVal)
		return fmt.Errorf("%w: %s must be between %d and %d, got %d", ErrValidationFailed, fieldName, minVal, maxVal, val)
	}
	return nil
}

// --- Date Validators ---

// ValidateDateString checks if a string is a valid calendar date in "YYYY-MM-DD" format.
func ValidateDateString(s, fieldName string) (civil.Date, error) {
	trimmed := strings.TrimSpace(s)
	if err := ValidateStringNotEmpty(trimmed, fieldName); err != nil {
		return civil.Date{}, err
	}
	d, err := civil.ParseDate(trimmed)
	if err != nil || !d.IsValid() {
		return civil.Date{}, fmt.Errorf("%w: %s ('%s') is not a valid date (expected YYYY-MM-DD)", ErrValidationFailed, fieldName, s)
	}
	return d, nil
}

// ValidateDateRange requires start <= end.
func ValidateDateRange(start, end civil.Date) error {
	if end.Before(start) {
		return fmt.Errorf("%w: end date %s is before start date %s", ErrValidationFailed, end, start)
	}
	return nil
}

// --- Specific Format Validators ---

var (
	seriesRegex       = regexp.MustCompile(`^[A-Z]{3}[0-9]{4}$`)
	currencyCodeRegex = regexp.MustCompile(`^[A-Z]{3}$`)
	emailRegex        = regexp.MustCompile(`^[a-zA-Z0-9._%+\-]+@[a-zA-Z0-9.\-]+\.[a-zA-Z]{2,}$`)
	usernameRegex     = regexp.MustCompile(`^[a-zA-Z0-9_.\-]{3,50}$`)
)

// ValidateSeries checks a bond series code, e.g. "ROD0130" (three letters, maturity month and year).
func ValidateSeries(s string) error {
	trimmed := strings.TrimSpace(s)
	if err := ValidateStringNotEmpty(trimmed, "series"); err != nil {
		return err
	}
	if err := ValidateStringMaxLength(trimmed, MaxSeriesLength, "series"); err != nil {
		return err
	}
	return ValidateStringRegex(trimmed, seriesRegex, "series", "3 uppercase letters followed by 4 digits")
}

// ValidateCurrencyCode checks if currency code is 3 uppercase letters.
func ValidateCurrencyCode(s string) error {
	trimmed := strings.ToUpper(strings.TrimSpace(s))
	if err := ValidateStringMaxLength(trimmed, MaxCurrencyCodeLength, "Currency Code"); err != nil {
		return err
	}
	if !currencyCodeRegex.MatchString(trimmed) {
		return fmt.Errorf("%w: Currency Code ('%s') is not in the expected format (3 uppercase letters)", ErrValidationFailed, s)
	}
	return nil
}

// ValidateEmail checks the basic shape of an email address.
func ValidateEmail(s string) error {
	trimmed := strings.TrimSpace(s)
	if err := ValidateStringMaxLength(trimmed, DefaultMaxStringLength, "email"); err != nil {
		return err
	}
	return ValidateStringRegex(trimmed, emailRegex, "email", "name@domain.tld")
}

// ValidateUsername allows 3 to 50 letters, digits, dots, dashes and underscores.
func ValidateUsername(s string) error {
	return ValidateStringRegex(strings.TrimSpace(s), usernameRegex, "username", "3-50 letters, digits, '.', '-' or '_'")
}

// ValidatePassword enforces the minimum password length.
func ValidatePassword(s string) error {
	if utf8.RuneCountInString(s) < MinPasswordLength {
		return fmt.Errorf("%w: password must be at least %d characters long", ErrValidationFailed, MinPasswordLength)
	}
	return ValidateStringMaxLength(s, 72, "password") // bcrypt limit
}
