package db

import (
	"database/sql"
	"errors"
	"fmt"
	"time"

	"plantstation/internal/models"
)

type UserRepository struct {
	db *DB
}

func NewUserRepository(db *DB) *UserRepository {
	return &UserRepository{db: db}
}

// Create inserts a new user in the pending (inactive) state. The account only
// becomes active through a verified activation token.
func (r *UserRepository) Create(email, username, passwordHash string) (*models.User, error) {
	now := time.Now().UTC()

	result, err := r.db.Exec(
		`INSERT INTO users (email, username, password_hash, active, registered_on) VALUES (?, ?, ?, 0, ?)`,
		email, username, passwordHash, now,
	)
	if err != nil {
		if mapped := mapUniqueConstraint(err); mapped != err {
			return nil, mapped
		}
		return nil, fmt.Errorf("creating user: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("reading new user id: %w", err)
	}

	return &models.User{
		ID:           id,
		Email:        email,
		Username:     username,
		PasswordHash: passwordHash,
		Active:       false,
		RegisteredOn: now,
	}, nil
}

func (r *UserRepository) FindByID(id int64) (*models.User, error) {
	return r.findOne(`SELECT id, email, username, password_hash, active, registered_on, last_login FROM users WHERE id = ?`, id)
}

func (r *UserRepository) FindByEmail(email string) (*models.User, error) {
	return r.findOne(`SELECT id, email, username, password_hash, active, registered_on, last_login FROM users WHERE email = ?`, email)
}

// Activate flips the account to active. Re-activating an already active user
// is harmless.
func (r *UserRepository) Activate(id int64) error {
	result, err := r.db.Exec(`UPDATE users SET active = 1 WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("activating user: %w", err)
	}
	return checkRowsAffected(result)
}

func (r *UserRepository) UpdateLastLogin(id int64, at time.Time) error {
	result, err := r.db.Exec(`UPDATE users SET last_login = ? WHERE id = ?`, at.UTC(), id)
	if err != nil {
		return fmt.Errorf("updating last login: %w", err)
	}
	return checkRowsAffected(result)
}

func (r *UserRepository) UpdatePassword(id int64, passwordHash string) error {
	result, err := r.db.Exec(`UPDATE users SET password_hash = ? WHERE id = ?`, passwordHash, id)
	if err != nil {
		return fmt.Errorf("updating password: %w", err)
	}
	return checkRowsAffected(result)
}

func (r *UserRepository) UpdateProfile(id int64, email, username string) error {
	result, err := r.db.Exec(
		`UPDATE users SET email = ?, username = ? WHERE id = ?`,
		email, username, id,
	)
	if err != nil {
		if mapped := mapUniqueConstraint(err); mapped != err {
			return mapped
		}
		return fmt.Errorf("updating profile: %w", err)
	}
	return checkRowsAffected(result)
}

func (r *UserRepository) findOne(query string, args ...any) (*models.User, error) {
	var u models.User
	var lastLogin sql.NullTime

	err := r.db.QueryRow(query, args...).Scan(
		&u.ID,
		&u.Email,
		&u.Username,
		&u.PasswordHash,
		&u.Active,
		&u.RegisteredOn,
		&lastLogin,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("querying user: %w", err)
	}

	u.LastLogin = nullTimeToPtr(lastLogin)

	return &u, nil
}
