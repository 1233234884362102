// Package validation provides centralized input validation for telemetry.
package validation

import (
	"fmt"
	"unicode"
	"unicode/utf8"

	"github.com/xtxerr/telemetry/internal/errors"
)

// =============================================================================
// Token Validation
// =============================================================================

// FieldRules defines the validation rules for short client-supplied tokens
// such as request ids.
type FieldRules struct {
	MaxLength       int
	AllowEmpty      bool
	AllowWhitespace bool
}

// ValidateField checks value against rules. Failures wrap
// errors.ErrMalformedPayload and name the field.
func ValidateField(field, value string, rules FieldRules) error {
	if value == "" && !rules.AllowEmpty {
		return errors.NewMalformed(field, "must not be empty")
	}
	if len(value) > rules.MaxLength {
		return errors.NewMalformed(field, fmt.Sprintf("exceeds %d bytes", rules.MaxLength))
	}
	if !utf8.ValidString(value) {
		return errors.NewMalformed(field, "is not valid UTF-8")
	}

	for i, r := range value {
		if r < 32 || r == 127 {
			return errors.NewMalformed(field, fmt.Sprintf("contains a control character at position %d", i))
		}
		if !rules.AllowWhitespace && unicode.IsSpace(r) {
			return errors.NewMalformed(field, fmt.Sprintf("contains whitespace at position %d", i))
		}
	}

	return nil
}

// =============================================================================
// SQL Identifier Validation
// =============================================================================

// MaxIdentifierLength bounds table and column names.
const MaxIdentifierLength = 64

// ValidateIdentifier checks that name can be spliced into a statement as a
// table or column name: ASCII letters, digits and underscores, not starting
// with a digit.
func ValidateIdentifier(name string) error {
	if name == "" {
		return fmt.Errorf("identifier cannot be empty")
	}
	if len(name) > MaxIdentifierLength {
		return fmt.Errorf("identifier too long: maximum %d characters allowed", MaxIdentifierLength)
	}

	for i, r := range name {
		switch {
		case r == '_', r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z':
		case r >= '0' && r <= '9':
			if i == 0 {
				return fmt.Errorf("identifier %q cannot start with a digit", name)
			}
		default:
			return fmt.Errorf("invalid character '%c' at position %d in identifier %q", r, i, name)
		}
	}

	return nil
}
