package mysql

import (
	"context"
	"database/sql"
	"errors"

	domproduct "example.com/pod-fulfillment/internal/domain/product"
)

type ProductRepository struct {
	db *sql.DB
}

func NewProductRepository(db *sql.DB) *ProductRepository {
	return &ProductRepository{db: db}
}

const productColumns = `id, seller_id, name, image_url, price, is_active`

func (r *ProductRepository) GetByID(ctx context.Context, id int64) (*domproduct.Product, error) {
	row := r.db.QueryRowContext(ctx, `
        SELECT `+productColumns+`
        FROM products WHERE id = ?
    `, id)

	var p domproduct.Product
	if err := row.Scan(&p.ID, &p.SellerID, &p.Name, &p.ImageURL, &p.Price, &p.IsActive); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domproduct.ErrProductNotFound
		}
		return nil, storageErr(err)
	}
	return &p, nil
}

func (r *ProductRepository) GetByIDs(ctx context.Context, ids []int64) ([]*domproduct.Product, error) {
	if len(ids) == 0 {
		return []*domproduct.Product{}, nil
	}

	in, args := inClause(ids)
	rows, err := r.db.QueryContext(ctx, `
        SELECT `+productColumns+`
        FROM products
        WHERE id IN `+in, args...)
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
