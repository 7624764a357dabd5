// backend/src/security/validation/content_scanner.go
package validation

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/username/bondfolio/backend/src/logger"
)

var (
	// Common XSS vectors. Contextual output encoding is the primary defense.
	xssPatternsRegex = regexp.MustCompile(
		`(?i)<script|onerror=|onmouseover=|onfocus=|onload=|javascript:|vbscript:|<iframe|<object|<embed|<applet|<style|<link|<img\s+src\s*=\s*['"]?\s*(javascript|data):`,
	)
	// Formula injection characters at the start of a cell. '-' is left out so negative numbers still parse.
	formulaInjectionPrefixRegex = regexp.MustCompile(`^[=+@\t\r]`)
)

func truncateForLog(s string, maxLen int) string {
	if len(s) > maxLen {
		return s[:maxLen] + "..."
	}
	return s
}

// CheckXSSPatterns detects basic XSS patterns.
func CheckXSSPatterns(s, fieldName, contextID string) error {
	if xssPatternsRegex.MatchString(s) {
		errMsg := fmt.Sprintf("potential XSS pattern detected in field '%s'", fieldName)
		logger.L.Warn(errMsg, "contextID", contextID, "contentPreview", truncateForLog(s, 50))
		return fmt.Errorf("%w: %s", ErrValidationFailed, errMsg)
	}
	return nil
}

// CheckFormulaInjection detects if a string starts with characters common in CSV formula injection.
func CheckFormulaInjection(s, fieldName, contextID string) error {
	prefixToCheck := strings.TrimSpace(s)
	if len(prefixToCheck) > 10 {
		prefixToCheck = prefixToCheck[:10]
	}
	if formulaInjectionPrefixRegex.MatchString(prefixToCheck) {
		errMsg := fmt.Sprintf("potential formula injection pattern detected in field '%s'", fieldName)
		logger.L.Warn(errMsg, "contextID", contextID, "contentPreview", truncateForLog(s, 50))
		return fmt.Errorf("%w: %s", ErrValidationFailed, errMsg)
	}
	return nil
}

// ScanCSVContent runs the XSS check over a whole text upload and the formula
// check over every comma or semicolon separated cell.
func ScanCSVContent(content, contextID string) error {
	if err := CheckXSSPatterns(content, "file", contextID); err != nil {
		return err
	}
	for i, line := range strings.Split(content, "\n") {
		for _, cell := range strings.FieldsFunc(line, func(r rune) bool { return r == ',' || r == ';' }) {
			if err := CheckFormulaInjection(strings.Trim(strings.TrimSpace(cell), `"`), fmt.Sprintf("line %d", i+1), contextID); err != nil {
				return err
			}
		}
	}
	return nil
}
