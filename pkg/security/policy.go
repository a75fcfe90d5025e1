package security

import (
	"unicode"
)

// MinPasswordLength is the shortest password accepted at registration.
const MinPasswordLength = 8

// PolicyViolation names one unmet password rule, keyed for API error details.
type PolicyViolation struct {
	Rule    string
	Message string
}

// CheckPasswordPolicy returns every rule the password breaks: minimum length,
// at least one lower case letter, one upper case letter, one digit and one
// symbol. An empty result means the password is acceptable.
func CheckPasswordPolicy(password string) []PolicyViolation {
	var lower, upper, digit, symbol bool
	for _, r := range password {
		switch {
		case unicode.IsLower(r):
			lower = true
		case unicode.IsUpper(r):
			upper = true
		case unicode.IsDigit(r):
			digit = true
		case unicode.IsPunct(r) || unicode.IsSymbol(r):
			symbol = true
		}
	}

	var out []PolicyViolation
	if len([]rune(password)) < MinPasswordLength {
		out = append(out, PolicyViolation{Rule: "min_length", Message: "password must be at least 8 characters"})
	}
	if !lower {
		out = append(out, PolicyViolation{Rule: "lowercase", Message: "password needs a lower case letter"})
	}
	if !upper {
		out = append(out, PolicyViolation{Rule: "uppercase", Message: "password needs an upper case letter"})
	}
	if !digit {
		out = append(out, PolicyViolation{Rule: "digit", Message: "password needs a digit"})
	}
	if !symbol {
		out = append(out, PolicyViolation{Rule: "symbol", Message: "password needs a symbol"})
	}
	return out
}
