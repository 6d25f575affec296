package password

import "testing"

func TestDefaultPolicy(t *testing.T) {
	policy := DefaultPolicy()

	tests := []struct {
		name       string
		password   string
		violations int
	}{
		{name: "strong", password: "Str0ng!Pass", violations: 0},
		{name: "too short", password: "S0!a", violations: 1},
		{name: "no digit", password: "Strong!Pass", violations: 1},
		{name: "no symbol", password: "Str0ngPass", violations: 1},
		{name: "no upper", password: "str0ng!pass", violations: 1},
		{name: "no lower", password: "STR0NG!PASS", violations: 1},
		{name: "empty", password: "", violations: 5},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			got := policy.Check(tc.password)
			if len(got) != tc.violations {
				t.Fatalf("Check(%q) = %v, want %d violations", tc.password, got, tc.violations)
			}
		})
	}
}

func TestPolicyDisabledRules(t *testing.T) {
	policy := Policy{MinLength: 4}
	if got := policy.Check("abcd"); len(got) != 0 {
		t.Fatalf("expected no violations, got %v", got)
	}
}
