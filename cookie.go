package shopauth

import (
	"context"
	"errors"
	"fmt"

	"github.com/MrEthical07/shopauth/internal"
	"github.com/MrEthical07/shopauth/session"
	"go.uber.org/zap"
)

// SignIn starts a cookie session for user. rememberMe selects the long,
// persistent lifetime; otherwise the session idles out after
// Session.IdleTimeout. The caller writes the returned SessionID into the
// session cookie.
func (e *Engine) SignIn(ctx context.Context, user *User, rememberMe bool) (*session.Session, error) {
	if e == nil || e.sessions == nil {
		return nil, ErrEngineNotReady
	}
	id, err := internal.NewSessionID()
	if err != nil {
		return nil, err
	}

	lifetime := e.config.Session.IdleTimeout
	if rememberMe {
		lifetime = e.config.Session.RememberMeLifetime
	}
	sess := &session.Session{
		SessionID:     id,
		UserID:        user.ID,
		SecurityStamp: user.SecurityStamp,
		Persistent:    rememberMe,
		Lifetime:      lifetime,
		CreatedAt:     e.now().Unix(),
	}
	if err := e.sessions.Save(ctx, sess); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}

	e.metricInc(MetricSessionCreated)
	e.emitAudit(ctx, auditEventSessionCreated, true, user.ID, id, nil, func() map[string]string {
		if rememberMe {
			return map[string]string{"persistent": "true"}
		}
		return nil
	})
	return sess, nil
}

// Authenticate resolves a session cookie to its principal. Sessions whose
// stored security stamp no longer matches the user's current stamp are
// deleted and rejected, so password changes and two-factor changes sign
// out every other browser.
func (e *Engine) Authenticate(ctx context.Context, sessionID string) (*Principal, error) {
	if e == nil || e.sessions == nil {
		return nil, ErrEngineNotReady
	}
	sess, err := e.sessions.Get(ctx, sessionID)
	if err != nil {
		if errors.Is(err, session.ErrNotFound) {
			return nil, ErrSessionInvalid
		}
		if errors.Is(err, session.ErrRedisUnavailable) {
			return nil, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
		}
		// undecodable record
		_ = e.sessions.Delete(ctx, sessionID)
		return nil, ErrSessionInvalid
	}

	user, err := e.userByID(ctx, sess.UserID)
	if err != nil {
		if !isNotFound(err) {
			return nil, err
		}
		e.rejectSession(ctx, sess, "user_missing")
		return nil, ErrSessionInvalid
	}
	if user.SecurityStamp != sess.SecurityStamp {
		e.rejectSession(ctx, sess, "stamp_changed")
		return nil, ErrSessionInvalid
	}

	p := principalFromUser(user)
	p.SessionID = sess.SessionID
	return p, nil
}

func (e *Engine) rejectSession(ctx context.Context, sess *session.Session, why string) {
	if err := e.sessions.Delete(ctx, sess.SessionID); err != nil {
		e.logger.Warn("stale session delete failed", zap.Error(err))
	}
	e.metricInc(MetricSessionInvalidated)
	e.emitAudit(ctx, auditEventSessionRejected, false, sess.UserID, sess.SessionID, ErrSessionInvalid, reason(why))
}

// RefreshSignIn replaces sessionID with a session carrying the user's
// current security stamp. Call it after the signed-in user changes their
// own password or two-factor settings so the current browser stays signed
// in while every other session is invalidated.
func (e *Engine) RefreshSignIn(ctx context.Context, sessionID string) (*session.Session, error) {
	old, err := e.sessions.Get(ctx, sessionID)
	if err != nil {
		if errors.Is(err, session.ErrRedisUnavailable) {
			return nil, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
		}
		return nil, ErrSessionInvalid
	}
	user, err := e.userByID(ctx, old.UserID)
	if err != nil {
		if isNotFound(err) {
			return nil, ErrSessionInvalid
		}
		return nil, err
	}
	if err := e.sessions.Delete(ctx, sessionID); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	return e.SignIn(ctx, user, old.Persistent)
}

// SignOut deletes the session immediately. Unknown ids are ignored.
func (e *Engine) SignOut(ctx context.Context, sessionID string) error {
	if e == nil || e.sessions == nil {
		return ErrEngineNotReady
	}
	if err := e.sessions.Delete(ctx, sessionID); err != nil {
		return fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	e.metricInc(MetricLogout)
	e.emitAudit(ctx, auditEventLogoutSession, true, "", sessionID, nil, nil)
	return nil
}

// SignOutEverywhere deletes every cookie session of userID.
func (e *Engine) SignOutEverywhere(ctx context.Context, userID string) error {
	if err := e.sessions.DeleteAllForUser(ctx, userID); err != nil {
		return fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	e.metricInc(MetricSessionInvalidated)
	return nil
}
