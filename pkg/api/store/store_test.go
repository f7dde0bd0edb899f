package store

import (
	"context"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/skarvik/accountd/pkg/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T) Store {
	t.Helper()

	s := NewStore(logrus.New(), &config.DatabaseConfig{
		Driver: "sqlite",
		SQLite: config.SQLiteConfig{Path: ":memory:"},
	})

	require.NoError(t, s.Start(context.Background()))
	t.Cleanup(func() { _ = s.Stop() })

	return s
}

func strPtr(s string) *string { return &s }
func intPtr(i int) *int       { return &i }
func boolPtr(b bool) *bool    { return &b }

func TestUserRoundTrip(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	user := &User{Username: "alice", PasswordHash: strPtr("$hash")}
	require.NoError(t, s.CreateUser(ctx, user))
	assert.NotZero(t, user.ID)

	byID, err := s.GetUserByID(ctx, user.ID)
	require.NoError(t, err)
	assert.Equal(t, "alice", byID.Username)

	byName, err := s.GetUserByUsername(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, user.ID, byName.ID)

	_, err = s.GetUserByUsername(ctx, "nobody")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestCreateUser_DuplicateUsername(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.CreateUser(ctx, &User{Username: "alice"}))

	err := s.CreateUser(ctx, &User{Username: "alice"})
	assert.ErrorIs(t, err, ErrUsernameTaken)
}

func TestListUsers_Filters(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	for _, u := range []User{
		{Username: "alice", Admin: true},
		{Username: "bob"},
		{Username: "carol", Locked: true},
	} {
		user := u
		require.NoError(t, s.CreateUser(ctx, &user))
	}

	tests := []struct {
		name   string
		filter UserFilter
		want   []string
	}{
		{
			name:   "default order is username asc",
			filter: UserFilter{},
			want:   []string{"alice", "bob", "carol"},
		},
		{
			name:   "admin only",
			filter: UserFilter{AdminEq: boolPtr(true)},
			want:   []string{"alice"},
		},
		{
			name:   "unlocked only",
			filter: UserFilter{LockedEq: boolPtr(false)},
			want:   []string{"alice", "bob"},
		},
		{
			name:   "username substring",
			filter: UserFilter{UsernameContains: strPtr("aro")},
			want:   []string{"carol"},
		},
		{
			name: "desc with limit",
			filter: UserFilter{
				OrderBy: "username_desc",
				Limit:   intPtr(2),
			},
			want: []string{"carol", "bob"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			users, err := s.ListUsers(ctx, tt.filter)
			require.NoError(t, err)

			names := make([]string, 0, len(users))
			for i := range users {
				names = append(names, users[i].Username)
			}

			assert.Equal(t, tt.want, names)
		})
	}

	t.Run("unknown order rejected", func(t *testing.T) {
		_, err := s.ListUsers(ctx, UserFilter{OrderBy: "password_asc"})
		assert.Error(t, err)
	})
}

func TestSetPasswordHash(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	user := &User{Username: "alice", PasswordHash: strPtr("$old")}
	require.NoError(t, s.CreateUser(ctx, user))

	require.NoError(t, s.SetPasswordHash(ctx, user.ID, strPtr("$new")))

	got, err := s.GetUserByID(ctx, user.ID)
	require.NoError(t, err)
	require.NotNil(t, got.PasswordHash)
	assert.Equal(t, "$new", *got.PasswordHash)

	// Deactivate by clearing the hash.
	require.NoError(t, s.SetPasswordHash(ctx, user.ID, nil))

	got, err = s.GetUserByID(ctx, user.ID)
	require.NoError(t, err)
	assert.Nil(t, got.PasswordHash)

	assert.ErrorIs(t, s.SetPasswordHash(ctx, 999, strPtr("$x")), ErrNotFound)
}

func TestSeedAdmin(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.SeedAdmin(ctx, "$first"))

	admin, err := s.GetUserByID(ctx, BuiltinAdminID)
	require.NoError(t, err)
	assert.Equal(t, "admin", admin.Username)
	assert.True(t, admin.Admin)
	assert.False(t, admin.Locked)
	require.NotNil(t, admin.PasswordHash)
	assert.Equal(t, "$first", *admin.PasswordHash)

	// Re-seeding must reset a tampered admin row, not duplicate it.
	admin.Username = "renamed"
	admin.Locked = true
	require.NoError(t, s.UpdateUser(ctx, admin))

	require.NoError(t, s.SeedAdmin(ctx, "$second"))

	admin, err = s.GetUserByID(ctx, BuiltinAdminID)
	require.NoError(t, err)
	assert.Equal(t, "admin", admin.Username)
	assert.False(t, admin.Locked)
	assert.Equal(t, "$second", *admin.PasswordHash)

	users, err := s.ListUsers(ctx, UserFilter{})
	require.NoError(t, err)
	assert.Len(t, users, 1)
}

func TestResolveSessionKey(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	now := time.Now().UTC()

	user := &User{Username: "alice", Admin: true}
	require.NoError(t, s.CreateUser(ctx, user))

	session := &Session{
		Key:    "key-1",
		UserID: user.ID,
		Until:  now.Add(time.Hour),
	}
	require.NoError(t, s.CreateSession(ctx, session))

	perms, err := s.ResolveSessionKey(ctx, "key-1", now)
	require.NoError(t, err)
	require.NotNil(t, perms)
	assert.Equal(t, "alice", perms.Username)
	assert.Equal(t, user.ID, perms.UserID)
	assert.True(t, perms.Admin)

	// Unknown key yields no context, not an error.
	perms, err = s.ResolveSessionKey(ctx, "missing", now)
	require.NoError(t, err)
	assert.Nil(t, perms)

	// Exactly at the expiry instant the session is no longer valid:
	// validity requires until strictly greater than now.
	perms, err = s.ResolveSessionKey(ctx, "key-1", session.Until)
	require.NoError(t, err)
	assert.Nil(t, perms)

	perms, err = s.ResolveSessionKey(
		ctx, "key-1", session.Until.Add(time.Nanosecond),
	)
	require.NoError(t, err)
	assert.Nil(t, perms)
}

func TestCreateSession_KeyCollision(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	user := &User{Username: "alice"}
	require.NoError(t, s.CreateUser(ctx, user))

	until := time.Now().UTC().Add(time.Hour)
	require.NoError(t, s.CreateSession(ctx, &Session{
		Key: "same", UserID: user.ID, Until: until,
	}))

	err := s.CreateSession(ctx, &Session{
		Key: "same", UserID: user.ID, Until: until,
	})
	assert.ErrorIs(t, err, ErrKeyCollision)
}

func TestSessionDeletion(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	now := time.Now().UTC()

	alice := &User{Username: "alice"}
	bob := &User{Username: "bob"}
	require.NoError(t, s.CreateUser(ctx, alice))
	require.NoError(t, s.CreateUser(ctx, bob))

	mk := func(key string, userID int) *Session {
		sess := &Session{Key: key, UserID: userID, Until: now.Add(time.Hour)}
		require.NoError(t, s.CreateSession(ctx, sess))

		return sess
	}

	aliceSess := mk("alice-1", alice.ID)
	bobSess := mk("bob-1", bob.ID)
	mk("bob-2", bob.ID)

	t.Run("delete by key is idempotent", func(t *testing.T) {
		require.NoError(t, s.DeleteSessionByKey(ctx, "alice-1"))
		require.NoError(t, s.DeleteSessionByKey(ctx, "alice-1"))

		perms, err := s.ResolveSessionKey(ctx, "alice-1", now)
		require.NoError(t, err)
		assert.Nil(t, perms)
	})

	t.Run("owner scoped delete", func(t *testing.T) {
		// Alice cannot delete Bob's session.
		err := s.DeleteUserSessionByID(ctx, alice.ID, bobSess.ID)
		assert.ErrorIs(t, err, ErrNotFound)

		require.NoError(t, s.DeleteUserSessionByID(ctx, bob.ID, bobSess.ID))
	})

	t.Run("delete all for user", func(t *testing.T) {
		require.NoError(t, s.DeleteSessionsByUser(ctx, bob.ID))

		sessions, err := s.ListSessions(
			ctx, SessionFilter{UserIDEq: &bob.ID}, now,
		)
		require.NoError(t, err)
		assert.Empty(t, sessions)
	})

	t.Run("delete by id", func(t *testing.T) {
		assert.ErrorIs(t, s.DeleteSessionByID(ctx, aliceSess.ID), ErrNotFound)

		fresh := mk("alice-2", alice.ID)
		require.NoError(t, s.DeleteSessionByID(ctx, fresh.ID))
	})
}

func TestDeleteExpiredSessions(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	now := time.Now().UTC()

	user := &User{Username: "alice"}
	require.NoError(t, s.CreateUser(ctx, user))

	expired := &Session{Key: "old", UserID: user.ID, Until: now.Add(-time.Minute)}
	active := &Session{Key: "new", UserID: user.ID, Until: now.Add(time.Minute)}
	require.NoError(t, s.CreateSession(ctx, expired))
	require.NoError(t, s.CreateSession(ctx, active))

	deleted, err := s.DeleteExpiredSessions(ctx, now)
	require.NoError(t, err)
	assert.Equal(t, int64(1), deleted)

	// The active session survives the sweep.
	perms, err := s.ResolveSessionKey(ctx, "new", now)
	require.NoError(t, err)
	assert.NotNil(t, perms)

	// Sweeping again is a no-op.
	deleted, err = s.DeleteExpiredSessions(ctx, now)
	require.NoError(t, err)
	assert.Zero(t, deleted)
}

func TestListSessions_Filters(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	now := time.Now().UTC()

	alice := &User{Username: "alice"}
	bob := &User{Username: "bob"}
	require.NoError(t, s.CreateUser(ctx, alice))
	require.NoError(t, s.CreateUser(ctx, bob))

	for i, spec := range []struct {
		key    string
		userID int
		until  time.Time
	}{
		{"s1", alice.ID, now.Add(1 * time.Hour)},
		{"s2", alice.ID, now.Add(2 * time.Hour)},
		{"s3", bob.ID, now.Add(3 * time.Hour)},
		{"gone", bob.ID, now.Add(-time.Hour)},
	} {
		require.NoError(t, s.CreateSession(ctx, &Session{
			Key: spec.key, UserID: spec.userID, Until: spec.until,
		}), "session %d", i)
	}

	t.Run("expired excluded", func(t *testing.T) {
		sessions, err := s.ListSessions(ctx, SessionFilter{}, now)
		require.NoError(t, err)
		assert.Len(t, sessions, 3)
	})

	t.Run("by user", func(t *testing.T) {
		sessions, err := s.ListSessions(
			ctx, SessionFilter{UserIDEq: &alice.ID}, now,
		)
		require.NoError(t, err)
		assert.Len(t, sessions, 2)
	})

	t.Run("until window and order", func(t *testing.T) {
		lte := now.Add(150 * time.Minute)

		sessions, err := s.ListSessions(ctx, SessionFilter{
			UntilLte: &lte,
			OrderBy:  "until_desc",
		}, now)
		require.NoError(t, err)
		require.Len(t, sessions, 2)
		assert.True(t, sessions[0].Until.After(sessions[1].Until))
	})
}
