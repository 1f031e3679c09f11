package postgres

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	domproduct "example.com/pod-fulfillment/internal/domain/product"
)

type ProductRepository struct {
	pool *pgxpool.Pool
}

func NewProductRepository(pool *pgxpool.Pool) *ProductRepository {
	return &ProductRepository{pool: pool}
}

const productColumns = `id, seller_id, name, image_url, price, is_active`

func (r *ProductRepository) GetByID(ctx context.Context, id int64) (*domproduct.Product, error) {
	var p domproduct.Product
	err := r.pool.QueryRow(ctx, `SELECT `+productColumns+` FROM products WHERE id = $1`, id).
		Scan(&p.ID, &p.SellerID, &p.Name, &p.ImageURL, &p.Price, &p.IsActive)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, domproduct.ErrProductNotFound
	}
	if err != nil {
		return nil, storageErr(err)
	}
	return &p, nil
}

func (r *ProductRepository) GetByIDs(ctx context.Context, ids []int64) ([]*domproduct.Product, error) {
	if len(ids) == 0 {
		return []*domproduct.Product{}, nil
	}

	rows, err := r.pool.Query(ctx, `SELECT `+productColumns+` FROM products WHERE id = ANY($1)`, ids)
	if err != nil {
		return nil, storageErr(err)
	}
	defer rows.Close()

	var products []*domproduct.Product
	for rows.Next() {
		var p domproduct.Product
		if err := rows.Scan(&p.ID, &p.SellerID, &p.Name, &p.ImageURL, &p.Price, &p.IsActive); err != nil {
			return nil, err
		}
		products = append(products, &p)
	}
	return products, storageErr(rows.Err())
}
