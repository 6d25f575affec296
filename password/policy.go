package password

import "fmt"

// Policy is the set of composition rules a new password must satisfy.
type Policy struct {
	MinLength              int
	RequireDigit           bool
	RequireUppercase       bool
	RequireLowercase       bool
	RequireNonAlphanumeric bool
}

// DefaultPolicy requires eight characters mixing digits, both letter cases
// and a symbol.
func DefaultPolicy() Policy {
	return Policy{
		MinLength:              8,
		RequireDigit:           true,
		RequireUppercase:       true,
		RequireLowercase:       true,
		RequireNonAlphanumeric: true,
	}
}

// Check returns one human-readable message per violated rule, in a stable
// order. An empty result means the password is acceptable.
func (p Policy) Check(plain string) []string {
	var digit, upper, lower, symbol bool
	for i := 0; i < len(plain); i++ {
		c := plain[i]
		switch {
		case c >= '0' && c <= '9':
			digit = true
		case c >= 'A' && c <= 'Z':
			upper = true
		case c >= 'a' && c <= 'z':
			lower = true
		default:
			symbol = true
		}
	}

	var violations []string
	if len(plain) < p.MinLength {
		violations = append(violations, fmt.Sprintf("Passwords must be at least %d characters.", p.MinLength))
	}
	if p.RequireNonAlphanumeric && !symbol {
		violations = append(violations, "Passwords must have at least one non alphanumeric character.")
	}
	if p.RequireDigit && !digit {
		violations = append(violations, "Passwords must have at least one digit ('0'-'9').")
	}
	if p.RequireLowercase && !lower {
		violations = append(violations, "Passwords must have at least one lowercase ('a'-'z').")
	}
	if p.RequireUppercase && !upper {
		violations = append(violations, "Passwords must have at least one uppercase ('A'-'Z').")
	}
	return violations
}
