package session

import (
	"context"
	"errors"
	"math/rand/v2"
	"time"

	"github.com/skarvik/accountd/pkg/api/store"
)

// Login authenticates username/password and mints a session, keeping the
// response time independent of why an attempt failed.
//
// The real procedure races a timer armed with a random delay drawn from
// [LoginDelay, 1.2*LoginDelay). When the procedure wins, the remainder of
// the delay is waited out, so every outcome decided before the deadline
// leaves at the same time. When the timer wins, the procedure was slower
// than the configured floor: that leaks timing, so it is logged loudly,
// but the result is still returned as normally as possible.
func (m *Manager) Login(
	ctx context.Context, username, password string, extended bool,
) (*store.Session, error) {
	delay := m.cfg.LoginDelay
	if jitter := int64(delay) / 5; jitter > 0 {
		delay += time.Duration(rand.Int64N(jitter))
	}

	timer := time.NewTimer(delay)
	defer timer.Stop()

	type outcome struct {
		sess *store.Session
		err  error
	}

	resCh := make(chan outcome, 1)

	go func() {
		sess, err := m.loginInner(ctx, username, password, extended)
		resCh <- outcome{sess: sess, err: err}
	}()

	select {
	case <-timer.C:
		m.log.Warn(
			"Login took longer than the configured delay; " +
				"response timing may reveal whether accounts exist",
		)

		res := <-resCh

		return res.sess, res.err
	case res := <-resCh:
		select {
		case <-timer.C:
		case <-ctx.Done():
			return nil, ctx.Err()
		}

		return res.sess, res.err
	}
}

// loginInner is the observable-timing login procedure. It exits early on
// failure, which is exactly why callers must only reach it through Login.
func (m *Manager) loginInner(
	ctx context.Context, username, password string, extended bool,
) (*store.Session, error) {
	user, err := m.store.GetUserByUsername(ctx, username)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, ErrBadLogin
		}

		return nil, err
	}

	// A cleared hash means the account is deactivated. It must fail
	// identically to an unknown username: in both cases no hashing has
	// happened yet, and the client error is the same.
	if user.PasswordHash == nil {
		return nil, ErrBadLogin
	}

	ok, err := m.gate.Verify(ctx, *user.PasswordHash, password)
	if err != nil {
		return nil, err
	}

	if !ok {
		return nil, ErrBadLogin
	}

	if user.Locked {
		return nil, ErrAccountLocked
	}

	return m.Create(ctx, user.ID, extended)
}
