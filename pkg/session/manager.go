// Package session owns the lifetime of session credentials: creation at
// login, resolution into an execution context on every request, explicit
// revocation, and the periodic sweep of expired rows.
package session

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/skarvik/accountd/pkg/api/store"
	"github.com/skarvik/accountd/pkg/hashgate"
)

// Login outcomes that are safe to show to clients. Unknown username,
// deactivated account, and wrong password are deliberately a single error
// so the response cannot reveal which one happened.
var (
	ErrBadLogin      = errors.New("bad login")
	ErrAccountLocked = errors.New("account locked")
)

const sessionKeyBytes = 32

// Config carries the parsed durations the manager needs.
type Config struct {
	// LoginDelay is the base artificial delay; actual delays are drawn
	// from [LoginDelay, 1.2*LoginDelay).
	LoginDelay time.Duration

	// SessionTTL and ExtendedSessionTTL are the short and "remember me"
	// session lifetimes.
	SessionTTL         time.Duration
	ExtendedSessionTTL time.Duration

	// SweepInterval is the pause between expired-session sweeps.
	SweepInterval time.Duration
}

// Manager creates, resolves, revokes, and sweeps sessions.
type Manager struct {
	log   logrus.FieldLogger
	store store.Store
	gate  *hashgate.Gate
	cfg   Config

	// now is the time source; swapped in tests so expiry-boundary cases
	// need no sleeping.
	now func() time.Time
}

// NewManager creates a session manager.
func NewManager(
	log logrus.FieldLogger,
	st store.Store,
	gate *hashgate.Gate,
	cfg Config,
) *Manager {
	return &Manager{
		log:   log.WithField("component", "session"),
		store: st,
		gate:  gate,
		cfg:   cfg,
		now:   func() time.Time { return time.Now().UTC() },
	}
}

// generateKey creates a cryptographically random session key. With 256
// bits of entropy a collision is practically impossible; an actual unique
// violation on insert is treated as an internal fault, never retried.
func generateKey() (string, error) {
	b := make([]byte, sessionKeyBytes)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("generating random bytes: %w", err)
	}

	return hex.EncodeToString(b), nil
}

// Create mints a session for userID. The cleartext key is only available
// on the returned record; it is never retrievable again.
func (m *Manager) Create(
	ctx context.Context, userID int, extended bool,
) (*store.Session, error) {
	key, err := generateKey()
	if err != nil {
		return nil, err
	}

	ttl := m.cfg.SessionTTL
	if extended {
		ttl = m.cfg.ExtendedSessionTTL
	}

	sess := &store.Session{
		Key:    key,
		UserID: userID,
		Until:  m.now().Add(ttl),
	}

	if err := m.store.CreateSession(ctx, sess); err != nil {
		if errors.Is(err, store.ErrKeyCollision) {
			m.log.WithField("userid", userID).
				Error("Session key collision; this should never happen")
		}

		return nil, err
	}

	return sess, nil
}

// Resolve maps a session key to an execution context. A missing, revoked,
// or expired key yields (nil, nil); revocation takes effect on the very
// next call because nothing is cached.
func (m *Manager) Resolve(
	ctx context.Context, key string,
) (*store.Permissions, error) {
	return m.store.ResolveSessionKey(ctx, key, m.now())
}

// Revoke deletes a session by key. Revoking an unknown key is a no-op.
func (m *Manager) Revoke(ctx context.Context, key string) error {
	return m.store.DeleteSessionByKey(ctx, key)
}

// RevokeAll deletes every session belonging to userID. Used after
// password changes and deactivation.
func (m *Manager) RevokeAll(ctx context.Context, userID int) error {
	return m.store.DeleteSessionsByUser(ctx, userID)
}

// RunSweeper deletes expired sessions, then sleeps for the configured
// interval, until ctx is cancelled. A sweep failure is returned instead of
// retried: the fault may be permanent, and the supervisor's policy is to
// terminate the process rather than silently stop cleaning up.
func (m *Manager) RunSweeper(ctx context.Context) error {
	for {
		deleted, err := m.store.DeleteExpiredSessions(ctx, m.now())
		if err != nil {
			return fmt.Errorf("sweeping expired sessions: %w", err)
		}

		if deleted > 0 {
			m.log.WithField("count", deleted).Debug("Swept expired sessions")
		}

		select {
		case <-ctx.Done():
			return nil
		case <-time.After(m.cfg.SweepInterval):
		}
	}
}
