package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/ornate/go-jewelry-api/internal/model"
)

var ErrDuplicateReview = errors.New("user already reviewed this product")

type ReviewRepository interface {
	Create(ctx context.Context, review *model.Review) error
	ListByProductID(ctx context.Context, productID uuid.UUID) ([]model.Review, error)
	GetByProductAndUser(ctx context.Context, productID, userID uuid.UUID) (*model.Review, error)
}

type pgReviewRepo struct{ pool *pgxpool.Pool }

func NewReviewRepository(pool *pgxpool.Pool) ReviewRepository {
	return &pgReviewRepo{pool: pool}
}

func (r *pgReviewRepo) Create(ctx context.Context, review *model.Review) error {
	review.ID = uuid.New()
	err := r.pool.QueryRow(ctx,
		`INSERT INTO reviews (id, product_id, user_id, user_name, rating, comment, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, NOW(), NOW())
		 ON CONFLICT (product_id, user_id) DO NOTHING
		 RETURNING created_at, updated_at`,
		review.ID, review.ProductID, review.UserID, review.UserName, review.Rating, review.Comment,
	).Scan(&review.CreatedAt, &review.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return ErrDuplicateReview
		}
		return fmt.Errorf("create review: %w", err)
	}
	return nil
}

func (r *pgReviewRepo) ListByProductID(ctx context.Context, productID uuid.UUID) ([]model.Review, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT id, product_id, user_id, user_name, rating, comment, created_at, updated_at
		 FROM reviews WHERE product_id = $1 ORDER BY created_at DESC`, productID,
	)
	if err != nil {
		return nil, fmt.Errorf("list reviews: %w", err)
	}
	defer rows.Close()

	var reviews []model.Review
	for rows.Next() {
		var rv model.Review
		if err := rows.Scan(&rv.ID, &rv.ProductID, &rv.UserID, &rv.UserName, &rv.Rating, &rv.Comment, &rv.CreatedAt, &rv.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan review: %w", err)
		}
		reviews = append(reviews, rv)
	}
	return reviews, nil
}

func (r *pgReviewRepo) GetByProductAndUser(ctx context.Context, productID, userID uuid.UUID) (*model.Review, error) {
	rv := &model.Review{}
	err := r.pool.QueryRow(ctx,
		`SELECT id, product_id, user_id, user_name, rating, comment, created_at, updated_at
		 FROM reviews WHERE product_id = $1 AND user_id = $2`, productID, userID,
	).Scan(&rv.ID, &rv.ProductID, &rv.UserID, &rv.UserName, &rv.Rating, &rv.Comment, &rv.CreatedAt, &rv.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("get review: %w", err)
	}
	return rv, nil
}
