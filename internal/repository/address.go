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

type AddressRepository interface {
	Create(ctx context.Context, addr *model.Address) error
	GetByID(ctx context.Context, id uuid.UUID) (*model.Address, error)
	ListByUserID(ctx context.Context, userID uuid.UUID) ([]model.Address, error)
	Update(ctx context.Context, addr *model.Address) error
	Delete(ctx context.Context, id uuid.UUID) error
	ClearDefault(ctx context.Context, userID uuid.UUID) error
}

type pgAddressRepo struct{ pool *pgxpool.Pool }

func NewAddressRepository(pool *pgxpool.Pool) AddressRepository {
	return &pgAddressRepo{pool: pool}
}

const addressColumns = `id, user_id, full_name, line1, line2, city, state, postal_code,
	country, phone, is_default, created_at, updated_at`

func scanAddress(row pgx.Row) (*model.Address, error) {
	a := &model.Address{}
	err := row.Scan(
		&a.ID, &a.UserID, &a.FullName, &a.Line1, &a.Line2, &a.City, &a.State,
		&a.PostalCode, &a.Country, &a.Phone, &a.IsDefault, &a.CreatedAt, &a.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return a, nil
}

func (r *pgAddressRepo) Create(ctx context.Context, addr *model.Address) error {
	addr.ID = uuid.New()
	err := r.pool.QueryRow(ctx,
		`INSERT INTO addresses (id, user_id, full_name, line1, line2, city, state, postal_code,
			country, phone, is_default, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, NOW(), NOW())
		 RETURNING created_at, updated_at`,
		addr.ID, addr.UserID, addr.FullName, addr.Line1, addr.Line2, addr.City, addr.State,
		addr.PostalCode, addr.Country, addr.Phone, addr.IsDefault,
	).Scan(&addr.CreatedAt, &addr.UpdatedAt)
	if err != nil {
		return fmt.Errorf("create address: %w", err)
	}
	return nil
}

func (r *pgAddressRepo) GetByID(ctx context.Context, id uuid.UUID) (*model.Address, error) {
	a, err := scanAddress(r.pool.QueryRow(ctx,
		`SELECT `+addressColumns+` FROM addresses WHERE id = $1`, id,
	))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("get address: %w", err)
	}
	return a, nil
}

func (r *pgAddressRepo) ListByUserID(ctx context.Context, userID uuid.UUID) ([]model.Address, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT `+addressColumns+` FROM addresses WHERE user_id = $1 ORDER BY is_default DESC, created_at`,
		userID,
	)
	if err != nil {
		return nil, fmt.Errorf("list addresses: %w", err)
	}
	defer rows.Close()

	var addrs []model.Address
	for rows.Next() {
		a, err := scanAddress(rows)
		if err != nil {
			return nil, fmt.Errorf("scan address: %w", err)
		}
		addrs = append(addrs, *a)
	}
	return addrs, nil
}

func (r *pgAddressRepo) Update(ctx context.Context, addr *model.Address) error {
	err := r.pool.QueryRow(ctx,
		`UPDATE addresses SET full_name=$2, line1=$3, line2=$4, city=$5, state=$6,
			postal_code=$7, country=$8, phone=$9, is_default=$10, updated_at=NOW()
		 WHERE id=$1 RETURNING updated_at`,
		addr.ID, addr.FullName, addr.Line1, addr.Line2, addr.City, addr.State,
		addr.PostalCode, addr.Country, addr.Phone, addr.IsDefault,
	).Scan(&addr.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil
		}
		return fmt.Errorf("update address: %w", err)
	}
	return nil
}

func (r *pgAddressRepo) Delete(ctx context.Context, id uuid.UUID) error {
	ct, err := r.pool.Exec(ctx, `DELETE FROM addresses WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete address: %w", err)
	}
	if ct.RowsAffected() == 0 {
		return pgx.ErrNoRows
	}
	return nil
}

func (r *pgAddressRepo) ClearDefault(ctx context.Context, userID uuid.UUID) error {
	_, err := r.pool.Exec(ctx,
		`UPDATE addresses SET is_default = false, updated_at = NOW() WHERE user_id = $1 AND is_default`,
		userID,
	)
	if err != nil {
		return fmt.Errorf("clear default address: %w", err)
	}
	return nil
}
