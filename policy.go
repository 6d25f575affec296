package shopauth

import "time"

// Policy is a named authorization rule evaluated against a Principal from
// either auth mode.
type Policy struct {
	Name  string
	allow func(p *Principal, now time.Time) bool
}

// Allows reports whether p satisfies the policy at now. A nil principal
// never does.
func (pol Policy) Allows(p *Principal, now time.Time) bool {
	if p == nil || pol.allow == nil {
		return false
	}
	return pol.allow(p, now)
}

// Built-in policies.
var (
	RequireAdminRole     = rolePolicy("RequireAdminRole", RoleAdmin)
	RequireManagerRole   = rolePolicy("RequireManagerRole", RoleManager)
	RequireModeratorRole = rolePolicy("RequireModeratorRole", RoleModerator)
	AdminOrManager       = rolePolicy("AdminOrManager", RoleAdmin, RoleManager)

	VerifiedUser = Policy{
		Name: "VerifiedUser",
		allow: func(p *Principal, _ time.Time) bool {
			return p.EmailConfirmed
		},
	}

	MinimumAge18 = Policy{
		Name: "MinimumAge18",
		allow: func(p *Principal, now time.Time) bool {
			return p.DateOfBirth != nil && ageAt(*p.DateOfBirth, now) >= 18
		},
	}
)

func rolePolicy(name string, roles ...string) Policy {
	return Policy{
		Name: name,
		allow: func(p *Principal, _ time.Time) bool {
			for _, r := range roles {
				if p.InRole(r) {
					return true
				}
			}
			return false
		},
	}
}

// ageAt counts completed years between birth and now.
func ageAt(birth, now time.Time) int {
	birth = birth.UTC()
	now = now.UTC()
	age := now.Year() - birth.Year()
	if now.Month() < birth.Month() || (now.Month() == birth.Month() && now.Day() < birth.Day()) {
		age--
	}
	return age
}

// Authorize evaluates pol against p using the engine clock.
func (e *Engine) Authorize(p *Principal, pol Policy) bool {
	return pol.Allows(p, e.now())
}
