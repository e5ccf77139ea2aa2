package auth

import (
	"strings"

	"github.com/local/supportbot/internal/errs"
)

// NormalizePhone strips every non-digit character and rewrites an 11-digit
// number beginning with "7" to begin with "8" instead, matching how the
// partner sheet stores Russian mobile numbers. Any other shape is rejected.
//
// This is the one deliberately stdlib-only piece of the auth service: no
// example in the retrieval pack imports a phone-parsing library (the
// libphonenumber family never appears), and the rule itself is a fixed
// 11-digit rewrite, not general E.164 parsing, so pulling in a parsing
// library would add a dependency the rule doesn't need.
func NormalizePhone(raw string) (string, error) {
	var digits strings.Builder
	for _, r := range raw {
		if r >= '0' && r <= '9' {
			digits.WriteRune(r)
		}
	}
	d := digits.String()
	if len(d) != 11 {
		return "", errs.NewValidation("phone must contain 11 digits", nil)
	}
	switch d[0] {
	case '7':
		return "8" + d[1:], nil
	case '8':
		return d, nil
	default:
		return "", errs.NewValidation("phone must begin with 7 or 8", nil)
	}
}
