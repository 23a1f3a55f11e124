package repository

import (
	"context"
	"database/sql"
	"errors"

	"github.com/iliyamo/storefront/internal/model"
)

// ReviewRepo manages product reviews.  Every write also refreshes the
// product's denormalized rating and review_count in the same transaction.
type ReviewRepo struct{ db *sql.DB }

func NewReviewRepo(db *sql.DB) *ReviewRepo { return &ReviewRepo{db: db} }

// Create stores a review by userID for productID.
func (r *ReviewRepo) Create(ctx context.Context, userID, productID string, rating int, comment string) (model.Review, error) {
	id := newID()
	err := r.inTx(ctx, func(tx *sql.Tx) error {
		if err := exists(ctx, tx, "products", productID); err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx,
			"INSERT INTO reviews (id, product_id, user_id, rating, comment) VALUES (?,?,?,?,?)",
			id, productID, userID, rating, nullString(comment)); err != nil {
			return err
		}
		return refreshRating(ctx, tx, productID)
	})
	if err != nil {
		return model.Review{}, err
	}
	return r.get(ctx, id)
}

// Update changes rating and comment of a review owned by userID.
func (r *ReviewRepo) Update(ctx context.Context, userID, id string, rating int, comment string) (model.Review, error) {
	err := r.inTx(ctx, func(tx *sql.Tx) error {
		productID, err := r.ownedProduct(ctx, tx, userID, id)
		if err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx,
			"UPDATE reviews SET rating = ?, comment = ? WHERE id = ?", rating, nullString(comment), id); err != nil {
			return err
		}
		return refreshRating(ctx, tx, productID)
	})
	if err != nil {
		return model.Review{}, err
	}
	return r.get(ctx, id)
}

// Delete removes a review owned by userID.
func (r *ReviewRepo) Delete(ctx context.Context, userID, id string) error {
	return r.inTx(ctx, func(tx *sql.Tx) error {
		productID, err := r.ownedProduct(ctx, tx, userID, id)
		if err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx, "DELETE FROM reviews WHERE id = ?", id); err != nil {
			return err
		}
		return refreshRating(ctx, tx, productID)
	})
}

// ownedProduct returns the review's product id, ErrNotFound when the review
// is missing and ErrForbidden when it belongs to someone else.
func (r *ReviewRepo) ownedProduct(ctx context.Context, tx *sql.Tx, userID, id string) (string, error) {
	var productID, owner string
	err := tx.QueryRowContext(ctx,
		"SELECT product_id, user_id FROM reviews WHERE id = ? FOR UPDATE", id).Scan(&productID, &owner)
	if errors.Is(err, sql.ErrNoRows) {
		return "", ErrNotFound
	}
	if err != nil {
		return "", err
	}
	if owner != userID {
		return "", ErrForbidden
	}
	return productID, nil
}

func (r *ReviewRepo) get(ctx context.Context, id string) (model.Review, error) {
	var (
		rv      model.Review
		comment sql.NullString
	)
	err := r.db.QueryRowContext(ctx,
		"SELECT id, product_id, user_id, rating, comment, created_at, updated_at FROM reviews WHERE id = ?", id).
		Scan(&rv.ID, &rv.ProductID, &rv.UserID, &rv.Rating, &comment, &rv.CreatedAt, &rv.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return model.Review{}, ErrNotFound
	}
	rv.Comment = comment.String
	return rv, err
}

func (r *ReviewRepo) inTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	if err := fn(tx); err != nil {
		_ = tx.Rollback()
		return err
	}
	return tx.Commit()
}

func refreshRating(ctx context.Context, tx *sql.Tx, productID string) error {
	_, err := tx.ExecContext(ctx, `UPDATE products SET
		rating = (SELECT AVG(rating) FROM reviews WHERE product_id = ?),
		review_count = (SELECT COUNT(*) FROM reviews WHERE product_id = ?)
		WHERE id = ?`, productID, productID, productID)
	return err
}

// listReviews returns a product's reviews newest first with reviewer profiles.
func listReviews(ctx context.Context, q queryer, productID string) ([]model.Review, error) {
	rows, err := q.QueryContext(ctx, `
		SELECT r.id, r.product_id, r.user_id, r.rating, r.comment, r.created_at, r.updated_at,
			pr.id, pr.email, pr.full_name, pr.avatar_url, pr.username, pr.website, pr.updated_at
		FROM reviews r LEFT JOIN profiles pr ON pr.id = r.user_id
		WHERE r.product_id = ?
		ORDER BY r.created_at DESC`, productID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := []model.Review{}
	for rows.Next() {
		var (
			rv                                          model.Review
			comment                                     sql.NullString
			pid, email, name, avatar, username, website sql.NullString
			pUpdated                                    sql.NullTime
		)
		if err := rows.Scan(&rv.ID, &rv.ProductID, &rv.UserID, &rv.Rating, &comment, &rv.CreatedAt, &rv.UpdatedAt,
			&pid, &email, &name, &avatar, &username, &website, &pUpdated); err != nil {
			return nil, err
		}
		rv.Comment = comment.String
		if pid.Valid {
			rv.User = &model.Profile{
				ID: pid.String, Email: email.String, FullName: name.String, AvatarURL: avatar.String,
				Username: username.String, Website: website.String, UpdatedAt: timeOrZero(pUpdated),
			}
		}
		out = append(out, rv)
	}
	return out, rows.Err()
}
