package repository

import (
	"context"
	"database/sql"
	"errors"

	"github.com/iliyamo/storefront/internal/model"
)

// ProfileRepo manages the 'profiles' table keyed by identity id.
type ProfileRepo struct{ DB *sql.DB }

func NewProfileRepo(db *sql.DB) *ProfileRepo { return &ProfileRepo{DB: db} }

// Upsert creates the profile or merges the set fields into an existing one.
// Nil fields keep their stored value.
func (r *ProfileRepo) Upsert(ctx context.Context, id string, fields model.ProfileFields) error {
	_, err := r.DB.ExecContext(ctx, `
		INSERT INTO profiles (id, email, full_name, avatar_url) VALUES (?,?,?,?)
		ON DUPLICATE KEY UPDATE
			email      = COALESCE(VALUES(email), email),
			full_name  = COALESCE(VALUES(full_name), full_name),
			avatar_url = COALESCE(VALUES(avatar_url), avatar_url)`,
		id, nullStringPtr(fields.Email), nullStringPtr(fields.FullName), nullStringPtr(fields.AvatarURL))
	return err
}

const profileColumns = "id, email, full_name, avatar_url, username, website, updated_at"

// Get returns one profile or ErrNotFound.
func (r *ProfileRepo) Get(ctx context.Context, id string) (model.Profile, error) {
	row := r.DB.QueryRowContext(ctx, "SELECT "+profileColumns+" FROM profiles WHERE id=? LIMIT 1", id)
	var p model.Profile
	err := scanProfile(row.Scan, &p)
	if errors.Is(err, sql.ErrNoRows) {
		return model.Profile{}, ErrNotFound
	}
	return p, err
}

// List returns profiles newest first for the admin customer view.
func (r *ProfileRepo) List(ctx context.Context, limit, offset int) ([]model.Profile, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := r.DB.QueryContext(ctx,
		"SELECT "+profileColumns+" FROM profiles ORDER BY created_at DESC LIMIT ? OFFSET ?", limit, offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := []model.Profile{}
	for rows.Next() {
		var p model.Profile
		if err := scanProfile(rows.Scan, &p); err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

// Count returns the number of stored profiles.
func (r *ProfileRepo) Count(ctx context.Context) (int, error) {
	var n int
	err := r.DB.QueryRowContext(ctx, "SELECT COUNT(*) FROM profiles").Scan(&n)
	return n, err
}

func scanProfile(scan func(dest ...any) error, p *model.Profile) error {
	var email, fullName, avatar, username, website sql.NullString
	if err := scan(&p.ID, &email, &fullName, &avatar, &username, &website, &p.UpdatedAt); err != nil {
		return err
	}
	p.Email, p.FullName, p.AvatarURL = email.String, fullName.String, avatar.String
	p.Username, p.Website = username.String, website.String
	return nil
}
