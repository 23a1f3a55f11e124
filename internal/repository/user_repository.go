package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"strings"

	"github.com/iliyamo/storefront/internal/model"
	"github.com/iliyamo/storefront/internal/utils"
)

// UserRepo stores credentials and auth-side metadata in the 'users' table.
type UserRepo struct{ DB *sql.DB }

func NewUserRepo(db *sql.DB) *UserRepo { return &UserRepo{DB: db} }

var ErrEmailExists = errors.New("email already exists")

// Create hashes the password, inserts the user and returns the stored credential.
func (r *UserRepo) Create(ctx context.Context, email, password, role string, meta model.Metadata, cost int) (model.Credential, error) {
	email = normalizeEmail(email)
	hash, err := utils.HashPassword(password, cost)
	if err != nil {
		return model.Credential{}, err
	}
	metaJSON, err := json.Marshal(meta)
	if err != nil {
		return model.Credential{}, err
	}
	id := newID()
	_, err = r.DB.ExecContext(ctx,
		"INSERT INTO users (id, email, password_hash, role, metadata) VALUES (?,?,?,?,?)",
		id, email, hash, role, metaJSON)
	if err != nil {
		if isDuplicate(err) {
			return model.Credential{}, ErrEmailExists
		}
		return model.Credential{}, err
	}
	return r.GetByID(ctx, id)
}

const userColumns = "id,email,password_hash,role,metadata,is_active,created_at,updated_at"

// GetByEmail fetches a user by normalized email.
func (r *UserRepo) GetByEmail(ctx context.Context, email string) (model.Credential, error) {
	row := r.DB.QueryRowContext(ctx,
		"SELECT "+userColumns+" FROM users WHERE email=? LIMIT 1", normalizeEmail(email))
	return scanCredential(row)
}

// GetByID fetches a user by id.
func (r *UserRepo) GetByID(ctx context.Context, id string) (model.Credential, error) {
	row := r.DB.QueryRowContext(ctx,
		"SELECT "+userColumns+" FROM users WHERE id=? LIMIT 1", id)
	return scanCredential(row)
}

// UpdateMetadata overwrites the auth-side metadata document.
func (r *UserRepo) UpdateMetadata(ctx context.Context, id string, meta model.Metadata) error {
	metaJSON, err := json.Marshal(meta)
	if err != nil {
		return err
	}
	return affectedOrNotFound(r.DB.ExecContext(ctx,
		"UPDATE users SET metadata=? WHERE id=?", metaJSON, id))
}

// Delete removes a credential together with its refresh tokens.
func (r *UserRepo) Delete(ctx context.Context, id string) error {
	tx, err := r.DB.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx, "DELETE FROM refresh_tokens WHERE user_id=?", id); err != nil {
		_ = tx.Rollback()
		return err
	}
	if err := affectedOrNotFound(tx.ExecContext(ctx, "DELETE FROM users WHERE id=?", id)); err != nil {
		_ = tx.Rollback()
		return err
	}
	return tx.Commit()
}

func scanCredential(row *sql.Row) (model.Credential, error) {
	var (
		c    model.Credential
		meta []byte
	)
	err := row.Scan(&c.ID, &c.Email, &c.PasswordHash, &c.Role, &meta, &c.IsActive, &c.CreatedAt, &c.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return model.Credential{}, ErrNotFound
	}
	if err != nil {
		return model.Credential{}, err
	}
	if len(meta) > 0 {
		if err := json.Unmarshal(meta, &c.Metadata); err != nil {
			return model.Credential{}, err
		}
	}
	return c, nil
}

func normalizeEmail(email string) string { return strings.ToLower(strings.TrimSpace(email)) }
