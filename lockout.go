package shopauth

import (
	"context"
	"time"
)

// isLockedOut reports whether u's lockout window is open at now.
func isLockedOut(u *User, now time.Time) bool {
	return u.LockoutEnabled && u.LockoutEnd != nil && now.Before(*u.LockoutEnd)
}

// registerFailure counts one failed credential check. Reaching
// MaxFailedAttempts opens a lockout window of Lockout.Duration and resets
// the counter. It reports whether the account is locked afterwards.
func (e *Engine) registerFailure(ctx context.Context, userID string) (bool, error) {
	var locked, justLocked bool
	_, err := e.store.UpdateUser(ctx, userID, func(u *User) error {
		locked, justLocked = false, false
		if !u.LockoutEnabled {
			return nil
		}
		now := e.now()
		if isLockedOut(u, now) {
			locked = true
			return nil
		}

		u.AccessFailedCount++
		if u.AccessFailedCount >= e.config.Lockout.MaxFailedAttempts {
			end := now.Add(e.config.Lockout.Duration).UTC()
			u.LockoutEnd = &end
			u.AccessFailedCount = 0
			locked, justLocked = true, true
		}
		return nil
	})
	if err != nil {
		return false, storeErr(err)
	}

	if justLocked {
		e.metricInc(MetricAccountLocked)
		e.emitAudit(ctx, auditEventAccountLocked, false, userID, "", ErrLockedOut, func() map[string]string {
			return map[string]string{"duration": e.config.Lockout.Duration.String()}
		})
		e.logger.Warn("account locked out", zapUserID(userID))
	}
	return locked, nil
}

// resetFailures zeroes the failure counter after a complete sign-in.
func (e *Engine) resetFailures(ctx context.Context, u *User) error {
	if u.AccessFailedCount == 0 && u.LockoutEnd == nil {
		return nil
	}
	_, err := e.store.UpdateUser(ctx, u.ID, func(cur *User) error {
		cur.AccessFailedCount = 0
		if cur.LockoutEnd != nil && !e.now().Before(*cur.LockoutEnd) {
			cur.LockoutEnd = nil
		}
		return nil
	})
	return storeErr(err)
}

// LockoutState reports a user's failure counter and lockout end, for the
// manage-account view and administration.
func (e *Engine) LockoutState(ctx context.Context, userID string) (failedCount int, lockedUntil *time.Time, err error) {
	u, err := e.userByID(ctx, userID)
	if err != nil {
		return 0, nil, err
	}
	if isLockedOut(u, e.now()) {
		return u.AccessFailedCount, cloneTime(u.LockoutEnd), nil
	}
	return u.AccessFailedCount, nil, nil
}
