package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/ornate/go-jewelry-api/internal/inventory"
	"github.com/ornate/go-jewelry-api/internal/model"
)

const productColumns = `id, name, description, category, image_url, price, active,
	inventory_kind, stock, sizes, colors, created_at, updated_at`

type ProductRepository interface {
	Create(ctx context.Context, product *model.Product) error
	GetByID(ctx context.Context, id uuid.UUID) (*model.Product, error)
	List(ctx context.Context, limit, offset int, search, category, sort, order string) ([]model.Product, int, error)
	Update(ctx context.Context, product *model.Product) error
	Delete(ctx context.Context, id uuid.UUID) error
	RestoreStock(ctx context.Context, productID uuid.UUID, size, color string, qty int) error
}

type pgProductRepo struct{ pool *pgxpool.Pool }

func NewProductRepository(pool *pgxpool.Pool) ProductRepository {
	return &pgProductRepo{pool: pool}
}

func scanProduct(row pgx.Row) (*model.Product, error) {
	p := &model.Product{}
	err := row.Scan(
		&p.ID, &p.Name, &p.Description, &p.Category, &p.ImageURL, &p.Price, &p.Active,
		&p.InventoryKind, &p.Stock, &p.Sizes, &p.Colors, &p.CreatedAt, &p.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return p, nil
}

func (r *pgProductRepo) Create(ctx context.Context, product *model.Product) error {
	product.ID = uuid.New()
	query := `INSERT INTO products (id, name, description, category, image_url, price, active,
				inventory_kind, stock, sizes, colors, created_at, updated_at)
			  VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, NOW(), NOW())
			  RETURNING created_at, updated_at`
	err := r.pool.QueryRow(ctx, query,
		product.ID, product.Name, product.Description, product.Category, product.ImageURL,
		product.Price, product.Active, product.InventoryKind, product.Stock,
		product.Sizes, product.Colors,
	).Scan(&product.CreatedAt, &product.UpdatedAt)
	if err != nil {
		return fmt.Errorf("create product: %w", err)
	}
	return nil
}

func (r *pgProductRepo) GetByID(ctx context.Context, id uuid.UUID) (*model.Product, error) {
	p, err := scanProduct(r.pool.QueryRow(ctx,
		`SELECT `+productColumns+` FROM products WHERE id = $1`, id,
	))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("get product: %w", err)
	}
	return p, nil
}

func (r *pgProductRepo) List(ctx context.Context, limit, offset int, search, category, sort, order string) ([]model.Product, int, error) {
	allowedSorts := map[string]bool{"name": true, "price": true, "created_at": true}
	if !allowedSorts[sort] {
		sort = "created_at"
	}
	if order != "asc" && order != "desc" {
		order = "desc"
	}

	filter := `WHERE ($1 = '' OR name ILIKE '%' || $1 || '%' OR description ILIKE '%' || $1 || '%')
		AND ($2 = '' OR category = $2)`

	var total int
	if err := r.pool.QueryRow(ctx, `SELECT COUNT(*) FROM products `+filter, search, category).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count products: %w", err)
	}

	query := fmt.Sprintf(`SELECT %s FROM products %s ORDER BY %s %s LIMIT $3 OFFSET $4`,
		productColumns, filter, sort, order)

	rows, err := r.pool.Query(ctx, query, search, category, limit, offset)
	if err != nil {
		return nil, 0, fmt.Errorf("list products: %w", err)
	}
	defer rows.Close()

	var products []model.Product
	for rows.Next() {
		p, err := scanProduct(rows)
		if err != nil {
			return nil, 0, fmt.Errorf("scan product: %w", err)
		}
		products = append(products, *p)
	}
	return products, total, nil
}

func (r *pgProductRepo) Update(ctx context.Context, product *model.Product) error {
	query := `UPDATE products SET name=$2, description=$3, category=$4, image_url=$5, price=$6,
				active=$7, inventory_kind=$8, stock=$9, sizes=$10, colors=$11, updated_at=NOW()
			  WHERE id=$1 RETURNING updated_at`
	err := r.pool.QueryRow(ctx, query,
		product.ID, product.Name, product.Description, product.Category, product.ImageURL,
		product.Price, product.Active, product.InventoryKind, product.Stock,
		product.Sizes, product.Colors,
	).Scan(&product.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil
		}
		return fmt.Errorf("update product: %w", err)
	}
	return nil
}

func (r *pgProductRepo) Delete(ctx context.Context, id uuid.UUID) error {
	ct, err := r.pool.Exec(ctx, `DELETE FROM products WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete product: %w", err)
	}
	if ct.RowsAffected() == 0 {
		return pgx.ErrNoRows
	}
	return nil
}

// RestoreStock returns qty units to one product's resolved stock slot.
// Each call is its own transaction so the cancel path can keep going
// when one item fails.
func (r *pgProductRepo) RestoreStock(ctx context.Context, productID uuid.UUID, size, color string, qty int) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	if err := restoreStockTx(ctx, tx, productID, size, color, qty); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

func restoreStockTx(ctx context.Context, tx pgx.Tx, productID uuid.UUID, size, color string, qty int) error {
	p, err := lockProduct(ctx, tx, productID)
	if err != nil {
		return err
	}
	if err := inventory.Restore(p, size, color, qty); err != nil {
		return fmt.Errorf("restore stock: %w", err)
	}
	return saveStock(ctx, tx, p)
}

// decrementStockTx takes qty units inside the caller's transaction.
// Flat stock uses an atomic conditional update; variant stock locks
// the row, mutates the resolved entry and writes the record back.
// Zero rows affected on the flat path reports insufficient stock.
func decrementStockTx(ctx context.Context, tx pgx.Tx, productID uuid.UUID, size, color string, qty int) error {
	p, err := lockProduct(ctx, tx, productID)
	if err != nil {
		return err
	}
	if p.InventoryKind == model.InventoryFlat || (size == "" && color == "") {
		ct, err := tx.Exec(ctx,
			`UPDATE products SET stock = stock - $2, updated_at = NOW() WHERE id = $1 AND stock >= $2`,
			productID, qty,
		)
		if err != nil {
			return fmt.Errorf("decrement stock: %w", err)
		}
		if ct.RowsAffected() == 0 {
			// The row is locked, so p.Stock is the current count.
			return &inventory.StockError{Product: p.Name, Requested: qty, Available: p.Stock}
		}
		return nil
	}
	if err := inventory.Decrement(p, size, color, qty); err != nil {
		return err
	}
	return saveStock(ctx, tx, p)
}

func lockProduct(ctx context.Context, tx pgx.Tx, id uuid.UUID) (*model.Product, error) {
	p, err := scanProduct(tx.QueryRow(ctx,
		`SELECT `+productColumns+` FROM products WHERE id = $1 FOR UPDATE`, id,
	))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("product %s: %w", id, pgx.ErrNoRows)
		}
		return nil, fmt.Errorf("lock product: %w", err)
	}
	return p, nil
}

func saveStock(ctx context.Context, tx pgx.Tx, p *model.Product) error {
	_, err := tx.Exec(ctx,
		`UPDATE products SET stock = $2, sizes = $3, colors = $4, updated_at = NOW() WHERE id = $1`,
		p.ID, p.Stock, p.Sizes, p.Colors,
	)
	if err != nil {
		return fmt.Errorf("save stock: %w", err)
	}
	return nil
}
