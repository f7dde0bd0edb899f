package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/glebarez/sqlite"
	"github.com/sirupsen/logrus"
	"github.com/skarvik/accountd/pkg/config"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// Sentinel errors callers distinguish with errors.Is. Everything else a
// Store method returns is an internal storage fault.
var (
	// ErrNotFound marks a lookup or targeted delete that matched no row.
	ErrNotFound = errors.New("not found")

	// ErrUsernameTaken marks a unique violation on users.username.
	ErrUsernameTaken = errors.New("username taken")

	// ErrKeyCollision marks a unique violation on sessions.key. With
	// 256-bit random keys this is practically impossible, so it is an
	// internal fault and is never retried.
	ErrKeyCollision = errors.New("session key collision")
)

// Store provides persistence for users and sessions.
type Store interface {
	Start(ctx context.Context) error
	Stop() error

	// User access.
	GetUserByID(ctx context.Context, id int) (*User, error)
	GetUserByUsername(ctx context.Context, username string) (*User, error)
	ListUsers(ctx context.Context, filter UserFilter) ([]User, error)
	CreateUser(ctx context.Context, user *User) error
	UpdateUser(ctx context.Context, user *User) error
	DeleteUser(ctx context.Context, id int) error
	SetPasswordHash(ctx context.Context, id int, hash *string) error
	SeedAdmin(ctx context.Context, hash string) error

	// Session access. Sessions are created and deleted, never updated.
	CreateSession(ctx context.Context, session *Session) error
	ResolveSessionKey(
		ctx context.Context, key string, now time.Time,
	) (*Permissions, error)
	ListSessions(
		ctx context.Context, filter SessionFilter, now time.Time,
	) ([]Session, error)
	DeleteSessionByKey(ctx context.Context, key string) error
	DeleteSessionByID(ctx context.Context, id int) error
	DeleteUserSessionByID(ctx context.Context, userID, id int) error
	DeleteSessionsByUser(ctx context.Context, userID int) error
	DeleteExpiredSessions(ctx context.Context, now time.Time) (int64, error)
}

// Compile-time interface check.
var _ Store = (*store)(nil)

type store struct {
	log logrus.FieldLogger
	cfg *config.DatabaseConfig
	db  *gorm.DB
}

// NewStore creates a new Store backed by the configured database driver.
func NewStore(
	log logrus.FieldLogger,
	cfg *config.DatabaseConfig,
) Store {
	return &store{
		log: log.WithField("component", "store"),
		cfg: cfg,
	}
}

// Start opens the database connection and runs migrations.
func (s *store) Start(ctx context.Context) error {
	var (
		dialector gorm.Dialector
		err       error
	)

	gormCfg := &gorm.Config{
		Logger: logger.Discard,
		// Needed so unique violations surface as gorm.ErrDuplicatedKey
		// on both drivers.
		TranslateError: true,
	}

	switch s.cfg.Driver {
	case "sqlite":
		dialector = sqlite.Open(s.cfg.SQLite.Path)
	case "postgres":
		dsn := fmt.Sprintf(
			"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
			s.cfg.Postgres.Host,
			s.cfg.Postgres.Port,
			s.cfg.Postgres.User,
			s.cfg.Postgres.Password,
			s.cfg.Postgres.Database,
			s.cfg.Postgres.SSLMode,
		)
		dialector = postgres.Open(dsn)
	default:
		return fmt.Errorf("unsupported database driver: %s", s.cfg.Driver)
	}

	s.db, err = gorm.Open(dialector, gormCfg)
	if err != nil {
		return fmt.Errorf("opening database: %w", err)
	}

	if err := s.db.WithContext(ctx).AutoMigrate(
		&User{},
		&Session{},
	); err != nil {
		return fmt.Errorf("running migrations: %w", err)
	}

	s.log.WithField("driver", s.cfg.Driver).Info("Database connected")

	return nil
}

// Stop closes the underlying database connection.
func (s *store) Stop() error {
	if s.db == nil {
		return nil
	}

	sqlDB, err := s.db.DB()
	if err != nil {
		return fmt.Errorf("getting underlying db: %w", err)
	}

	return sqlDB.Close()
}

// --- User access ---

func (s *store) GetUserByID(ctx context.Context, id int) (*User, error) {
	var user User
	if err := s.db.WithContext(ctx).First(&user, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}

		return nil, fmt.Errorf("getting user by id: %w", err)
	}

	return &user, nil
}

func (s *store) GetUserByUsername(
	ctx context.Context, username string,
) (*User, error) {
	var user User
	if err := s.db.WithContext(ctx).
		Where("username = ?", username).
		First(&user).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}

		return nil, fmt.Errorf("getting user by username: %w", err)
	}

	return &user, nil
}

func (s *store) ListUsers(
	ctx context.Context, filter UserFilter,
) ([]User, error) {
	order, ok := UserOrders[filter.OrderBy]
	if !ok {
		return nil, fmt.Errorf("unknown user order %q", filter.OrderBy)
	}

	q := s.db.WithContext(ctx).Model(&User{})

	if filter.IDLte != nil {
		q = q.Where("id <= ?", *filter.IDLte)
	}

	if filter.IDMte != nil {
		q = q.Where("id >= ?", *filter.IDMte)
	}

	if filter.UsernameContains != nil {
		q = q.Where("username LIKE ?", "%"+*filter.UsernameContains+"%")
	}

	if filter.AdminEq != nil {
		q = q.Where("admin = ?", *filter.AdminEq)
	}

	if filter.LockedEq != nil {
		q = q.Where("locked = ?", *filter.LockedEq)
	}

	if filter.Limit != nil {
		q = q.Limit(*filter.Limit)
	}

	var users []User
	if err := q.Order(order).Find(&users).Error; err != nil {
		return nil, fmt.Errorf("listing users: %w", err)
	}

	return users, nil
}

func (s *store) CreateUser(ctx context.Context, user *User) error {
	if err := s.db.WithContext(ctx).Create(user).Error; err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return ErrUsernameTaken
		}

		return fmt.Errorf("creating user: %w", err)
	}

	return nil
}

func (s *store) UpdateUser(ctx context.Context, user *User) error {
	if err := s.db.WithContext(ctx).Save(user).Error; err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return ErrUsernameTaken
		}

		return fmt.Errorf("updating user: %w", err)
	}

	return nil
}

func (s *store) DeleteUser(ctx context.Context, id int) error {
	result := s.db.WithContext(ctx).Delete(&User{}, id)
	if result.Error != nil {
		return fmt.Errorf("deleting user: %w", result.Error)
	}

	if result.RowsAffected == 0 {
		return ErrNotFound
	}

	return nil
}

// SetPasswordHash replaces a user's credential. A nil hash deactivates the
// account; it does not revoke sessions, callers decide that.
func (s *store) SetPasswordHash(
	ctx context.Context, id int, hash *string,
) error {
	result := s.db.WithContext(ctx).
		Model(&User{}).
		Where("id = ?", id).
		Update("password_hash", hash)
	if result.Error != nil {
		return fmt.Errorf("setting password hash: %w", result.Error)
	}

	if result.RowsAffected == 0 {
		return ErrNotFound
	}

	return nil
}

// SeedAdmin upserts the built-in admin account with the given hash,
// resetting username, role, and lock state so a bad admin edit can always
// be recovered by restarting with a known password.
func (s *store) SeedAdmin(ctx context.Context, hash string) error {
	now := time.Now().UTC()

	if err := s.db.WithContext(ctx).Exec(
		`INSERT INTO users (id, username, password_hash, admin, locked, created_at, updated_at)
		 VALUES (?, 'admin', ?, ?, ?, ?, ?)
		 ON CONFLICT (id) DO UPDATE
		 SET username = 'admin', password_hash = ?, admin = ?, locked = ?, updated_at = ?`,
		BuiltinAdminID, hash, true, false, now, now,
		hash, true, false, now,
	).Error; err != nil {
		return fmt.Errorf("seeding admin user: %w", err)
	}

	s.log.Info("Built-in admin account seeded")

	return nil
}

// --- Session access ---

func (s *store) CreateSession(
	ctx context.Context, session *Session,
) error {
	if err := s.db.WithContext(ctx).Create(session).Error; err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return ErrKeyCollision
		}

		return fmt.Errorf("creating session: %w", err)
	}

	return nil
}

// ResolveSessionKey joins an unexpired session to its owning user. A
// missing or expired key yields (nil, nil): "no context" is a legitimate
// outcome, not a fault.
func (s *store) ResolveSessionKey(
	ctx context.Context, key string, now time.Time,
) (*Permissions, error) {
	var perms Permissions

	err := s.db.WithContext(ctx).
		Model(&Session{}).
		Select("users.username", "sessions.user_id", "users.admin").
		Joins("JOIN users ON users.id = sessions.user_id").
		Where("sessions.key = ? AND sessions.until > ?", key, now).
		First(&perms).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}

		return nil, fmt.Errorf("resolving session key: %w", err)
	}

	return &perms, nil
}

func (s *store) ListSessions(
	ctx context.Context, filter SessionFilter, now time.Time,
) ([]Session, error) {
	order, ok := SessionOrders[filter.OrderBy]
	if !ok {
		return nil, fmt.Errorf("unknown session order %q", filter.OrderBy)
	}

	q := s.db.WithContext(ctx).
		Model(&Session{}).
		Where("until > ?", now)

	if filter.IDLte != nil {
		q = q.Where("id <= ?", *filter.IDLte)
	}

	if filter.IDMte != nil {
		q = q.Where("id >= ?", *filter.IDMte)
	}

	if filter.UserIDEq != nil {
		q = q.Where("user_id = ?", *filter.UserIDEq)
	}

	if filter.UntilLte != nil {
		q = q.Where("until <= ?", *filter.UntilLte)
	}

	if filter.UntilMte != nil {
		q = q.Where("until >= ?", *filter.UntilMte)
	}

	if filter.Limit != nil {
		q = q.Limit(*filter.Limit)
	}

	var sessions []Session
	if err := q.Order(order).Find(&sessions).Error; err != nil {
		return nil, fmt.Errorf("listing sessions: %w", err)
	}

	return sessions, nil
}

// DeleteSessionByKey revokes a session. Deleting an absent key is not an
// error; logout must be idempotent.
func (s *store) DeleteSessionByKey(ctx context.Context, key string) error {
	if err := s.db.WithContext(ctx).
		Where("key = ?", key).
		Delete(&Session{}).Error; err != nil {
		return fmt.Errorf("deleting session by key: %w", err)
	}

	return nil
}

func (s *store) DeleteSessionByID(ctx context.Context, id int) error {
	result := s.db.WithContext(ctx).Delete(&Session{}, id)
	if result.Error != nil {
		return fmt.Errorf("deleting session by id: %w", result.Error)
	}

	if result.RowsAffected == 0 {
		return ErrNotFound
	}

	return nil
}

// DeleteUserSessionByID deletes a session only when it belongs to userID,
// so it is safe to call with unvalidated ids from self-service routes.
func (s *store) DeleteUserSessionByID(
	ctx context.Context, userID, id int,
) error {
	result := s.db.WithContext(ctx).
		Where("user_id = ?", userID).
		Delete(&Session{}, id)
	if result.Error != nil {
		return fmt.Errorf("deleting user session: %w", result.Error)
	}

	if result.RowsAffected == 0 {
		return ErrNotFound
	}

	return nil
}

func (s *store) DeleteSessionsByUser(ctx context.Context, userID int) error {
	if err := s.db.WithContext(ctx).
		Where("user_id = ?", userID).
		Delete(&Session{}).Error; err != nil {
		return fmt.Errorf("deleting sessions for user: %w", err)
	}

	return nil
}

func (s *store) DeleteExpiredSessions(
	ctx context.Context, now time.Time,
) (int64, error) {
	result := s.db.WithContext(ctx).
		Where("until < ?", now).
		Delete(&Session{})
	if result.Error != nil {
		return 0, fmt.Errorf("deleting expired sessions: %w", result.Error)
	}

	if result.RowsAffected > 0 {
		s.log.WithField("count", result.RowsAffected).
			Debug("Cleaned up expired sessions")
	}

	return result.RowsAffected, nil
}
