// Package userstore is a SQL-backed [authengine.UserRepository] built on
// Bun. It works against any dialect Bun supports; tests and small
// deployments use the bundled SQLite driver.
package userstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/uptrace/bun"

	authengine "github.com/sessionlab/authengine"
)

// userModel is the Bun model for account records. Permissions are stored
// as a JSON array so the schema does not change when tags are added.
type userModel struct {
	bun.BaseModel `bun:"table:users,alias:usr"`

	ID           string    `bun:"id,pk"`
	Username     string    `bun:"username,notnull,unique"`
	Email        string    `bun:"email,notnull,unique"`
	PasswordHash string    `bun:"password_hash,notnull"`
	State        int       `bun:"state,notnull"`
	Permissions  []string  `bun:"permissions,type:jsonb"`
	CreatedAt    time.Time `bun:"created_at,notnull"`
	UpdatedAt    time.Time `bun:"updated_at,notnull"`
}

// Store implements [authengine.UserRepository] over a Bun database handle.
type Store struct {
	db *bun.DB
}

var _ authengine.UserRepository = (*Store)(nil)

// New creates a [Store]. The users table must already exist; call
// [Store.CreateSchema] for tests and fresh deployments.
func New(db *bun.DB) *Store {
	return &Store{db: db}
}

// CreateSchema creates the users table when it does not exist.
func (s *Store) CreateSchema(ctx context.Context) error {
	_, err := s.db.NewCreateTable().
		Model((*userModel)(nil)).
		IfNotExists().
		Exec(ctx)
	return err
}

// GetByID implements [authengine.UserRepository].
func (s *Store) GetByID(ctx context.Context, id string) (*authengine.UserRecord, error) {
	var model userModel
	err := s.db.NewSelect().
		Model(&model).
		Where("id = ?", id).
		Scan(ctx)
	if err != nil {
		return nil, mapScanErr(err)
	}
	return toRecord(&model), nil
}

// GetByUsername implements [authengine.UserRepository]. The lookup is
// case-insensitive.
func (s *Store) GetByUsername(ctx context.Context, username string) (*authengine.UserRecord, error) {
	var model userModel
	err := s.db.NewSelect().
		Model(&model).
		Where("LOWER(username) = ?", strings.ToLower(username)).
		Scan(ctx)
	if err != nil {
		return nil, mapScanErr(err)
	}
	return toRecord(&model), nil
}

// GetByEmail implements [authengine.UserRepository]. The lookup is
// case-insensitive.
func (s *Store) GetByEmail(ctx context.Context, email string) (*authengine.UserRecord, error) {
	var model userModel
	err := s.db.NewSelect().
		Model(&model).
		Where("LOWER(email) = ?", strings.ToLower(email)).
		Scan(ctx)
	if err != nil {
		return nil, mapScanErr(err)
	}
	return toRecord(&model), nil
}

// Create implements [authengine.UserRepository]. Unique violations on
// username or email surface as [authengine.ErrAlreadyExists].
func (s *Store) Create(ctx context.Context, input authengine.CreateUserInput) (*authengine.UserRecord, error) {
	now := time.Now().UTC()
	model := &userModel{
		ID:           uuid.NewString(),
		Username:     input.Username,
		Email:        input.Email,
		PasswordHash: input.PasswordHash,
		State:        int(input.State),
		Permissions:  input.Permissions,
		CreatedAt:    now,
		UpdatedAt:    now,
	}

	if _, err := s.db.NewInsert().Model(model).Exec(ctx); err != nil {
		if isUniqueViolation(err) {
			return nil, fmt.Errorf("%w: username or email", authengine.ErrAlreadyExists)
		}
		return nil, err
	}
	return toRecord(model), nil
}

// UpdateState implements [authengine.UserRepository].
func (s *Store) UpdateState(ctx context.Context, id string, state authengine.UserState) error {
	res, err := s.db.NewUpdate().
		Model((*userModel)(nil)).
		Set("state = ?", int(state)).
		Set("updated_at = ?", time.Now().UTC()).
		Where("id = ?", id).
		Exec(ctx)
	if err != nil {
		return err
	}
	return requireRow(res)
}

// UpdatePasswordHash implements [authengine.UserRepository].
func (s *Store) UpdatePasswordHash(ctx context.Context, id, passwordHash string) error {
	res, err := s.db.NewUpdate().
		Model((*userModel)(nil)).
		Set("password_hash = ?", passwordHash).
		Set("updated_at = ?", time.Now().UTC()).
		Where("id = ?", id).
		Exec(ctx)
	if err != nil {
		return err
	}
	return requireRow(res)
}

func toRecord(m *userModel) *authengine.UserRecord {
	return &authengine.UserRecord{
		ID:           m.ID,
		Username:     m.Username,
		Email:        m.Email,
		PasswordHash: m.PasswordHash,
		State:        authengine.UserState(m.State),
		Permissions:  m.Permissions,
		CreatedAt:    m.CreatedAt,
		UpdatedAt:    m.UpdatedAt,
	}
}

func mapScanErr(err error) error {
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("%w: user", authengine.ErrNotFound)
	}
	return err
}

func requireRow(res sql.Result) error {
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return fmt.Errorf("%w: user", authengine.ErrNotFound)
	}
	return nil
}

// isUniqueViolation matches the driver-specific error text for unique
// constraint breaches. Bun does not normalize these across dialects.
func isUniqueViolation(err error) bool {
	if err == nil {
		return false
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "unique constraint") ||
		strings.Contains(msg, "duplicate key") ||
		strings.Contains(msg, "duplicate entry")
}
