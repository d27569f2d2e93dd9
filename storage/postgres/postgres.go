// Package postgres provides a PostgreSQL implementation of the gotier.Store interface.
// Every write is a single UPDATE statement so concurrent events for the same
// user resolve as last-write-wins without explicit locking.
package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/mihaimyh/gotier/pkg/gotier"
)

const uniqueViolation = "23505"

const userColumns = `id, COALESCE(name, ''), COALESCE(email, ''), email_verified, COALESCE(image, ''),
	access_level, COALESCE(stripe_customer_id, ''), created_at, updated_at`

// Storage implements gotier.Store using PostgreSQL
type Storage struct {
	pool   *pgxpool.Pool
	config Config
}

// Config holds PostgreSQL storage configuration
type Config struct {
	// ConnectionString is the PostgreSQL connection string
	ConnectionString string

	// Pool configuration
	MaxConns        int32
	MinConns        int32
	MaxConnLifetime time.Duration
	MaxConnIdleTime time.Duration

	// MigrationsTable overrides goose's version table name
	MigrationsTable string
}

// DefaultConfig returns a Config with sensible defaults
func DefaultConfig() Config {
	return Config{
		MaxConns:        10,
		MinConns:        2,
		MaxConnLifetime: time.Hour,
		MaxConnIdleTime: 30 * time.Minute,
		MigrationsTable: "goose_db_version",
	}
}

// New creates a new PostgreSQL storage adapter
func New(ctx context.Context, config Config) (*Storage, error) {
	if config.ConnectionString == "" {
		return nil, fmt.Errorf("connection string is required")
	}

	poolConfig, err := pgxpool.ParseConfig(config.ConnectionString)
	if err != nil {
		return nil, fmt.Errorf("failed to parse connection string: %w", err)
	}

	if config.MaxConns > 0 {
		poolConfig.MaxConns = config.MaxConns
	}
	if config.MinConns > 0 {
		poolConfig.MinConns = config.MinConns
	}
	if config.MaxConnLifetime > 0 {
		poolConfig.MaxConnLifetime = config.MaxConnLifetime
	}
	if config.MaxConnIdleTime > 0 {
		poolConfig.MaxConnIdleTime = config.MaxConnIdleTime
	}

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to create connection pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return &Storage{pool: pool, config: config}, nil
}

// Close closes the PostgreSQL connection pool
func (s *Storage) Close() {
	if s.pool != nil {
		s.pool.Close()
	}
}

// Ping checks database connectivity
func (s *Storage) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

// FindByID implements gotier.Store
func (s *Storage) FindByID(ctx context.Context, id string) (*gotier.User, error) {
	return s.queryUser(ctx, `SELECT `+userColumns+` FROM users WHERE id = $1`, id)
}

// FindByEmail implements gotier.Store
func (s *Storage) FindByEmail(ctx context.Context, email string) (*gotier.User, error) {
	if email == "" {
		return nil, gotier.ErrNotFound
	}
	return s.queryUser(ctx, `SELECT `+userColumns+` FROM users WHERE email = $1`, email)
}

// FindByExternalCustomerID implements gotier.Store
func (s *Storage) FindByExternalCustomerID(ctx context.Context, customerID string) (*gotier.User, error) {
	if customerID == "" {
		return nil, gotier.ErrNotFound
	}
	return s.queryUser(ctx, `SELECT `+userColumns+` FROM users WHERE stripe_customer_id = $1`, customerID)
}

// Create implements gotier.Store
func (s *Storage) Create(ctx context.Context, nu gotier.NewUser) (*gotier.User, error) {
	level := nu.AccessLevel
	if level == "" {
		level = gotier.AccessFree
	}
	if !level.Valid() {
		return nil, fmt.Errorf("%w: %q", gotier.ErrInvalidAccessLevel, level)
	}

	u, err := s.queryUser(ctx,
		`INSERT INTO users (id, name, email, email_verified, image, access_level, stripe_customer_id)
			VALUES ($1, NULLIF($2::text, ''), NULLIF($3::text, ''), $4, NULLIF($5::text, ''), $6, NULLIF($7::text, ''))
			RETURNING `+userColumns,
		uuid.NewString(), nu.Name, nu.Email, nu.EmailVerified, nu.Image, string(level), nu.StripeCustomerID)
	if err != nil {
		return nil, fmt.Errorf("failed to create user: %w", err)
	}
	return u, nil
}

// LinkExternalCustomerID implements gotier.Store
func (s *Storage) LinkExternalCustomerID(ctx context.Context, userID, customerID string) error {
	if !gotier.IsValidCustomerID(customerID) {
		return fmt.Errorf("%w: %q", gotier.ErrInvalidCustomerID, customerID)
	}
	return s.exec(ctx,
		`UPDATE users SET stripe_customer_id = $2, updated_at = now() WHERE id = $1`,
		userID, customerID)
}

// ClearExternalCustomerID implements gotier.Store
func (s *Storage) ClearExternalCustomerID(ctx context.Context, userID string) error {
	return s.exec(ctx,
		`UPDATE users SET stripe_customer_id = NULL, access_level = 'free', updated_at = now() WHERE id = $1`,
		userID)
}

// SetAccessLevel implements gotier.Store
func (s *Storage) SetAccessLevel(ctx context.Context, userID string, level gotier.AccessLevel) error {
	if !level.Valid() {
		return fmt.Errorf("%w: %q", gotier.ErrInvalidAccessLevel, level)
	}
	return s.exec(ctx,
		`UPDATE users SET access_level = $2, updated_at = now() WHERE id = $1`,
		userID, string(level))
}

// UpdateFields implements gotier.Store. The email column is only written
// while it is NULL or empty.
func (s *Storage) UpdateFields(ctx context.Context, userID string, update gotier.UserUpdate) (*gotier.User, error) {
	u, err := s.queryUser(ctx,
		`UPDATE users SET
			name = COALESCE($2::text, name),
			email = CASE WHEN COALESCE(email, '') = '' THEN COALESCE(NULLIF($3::text, ''), email) ELSE email END,
			image = COALESCE($4::text, image),
			updated_at = now()
			WHERE id = $1
			RETURNING `+userColumns,
		userID, update.Name, update.Email, update.Image)
	if err != nil {
		return nil, fmt.Errorf("failed to update user: %w", err)
	}
	return u, nil
}

func (s *Storage) queryUser(ctx context.Context, query string, args ...any) (*gotier.User, error) {
	var u gotier.User
	var level string
	err := s.pool.QueryRow(ctx, query, args...).Scan(
		&u.ID, &u.Name, &u.Email, &u.EmailVerified, &u.Image,
		&level, &u.StripeCustomerID, &u.CreatedAt, &u.UpdatedAt,
	)
	if err != nil {
		return nil, mapError(err)
	}
	u.AccessLevel = gotier.AccessLevel(level)
	return &u, nil
}

func (s *Storage) exec(ctx context.Context, query string, args ...any) error {
	tag, err := s.pool.Exec(ctx, query, args...)
	if err != nil {
		return mapError(err)
	}
	if tag.RowsAffected() == 0 {
		return gotier.ErrNotFound
	}
	return nil
}

// mapError translates driver errors into the gotier taxonomy
func mapError(err error) error {
	if errors.Is(err, pgx.ErrNoRows) {
		return gotier.ErrNotFound
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
		return fmt.Errorf("%w: %s", gotier.ErrConflict, pgErr.ConstraintName)
	}
	return err
}
