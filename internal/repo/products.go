package repo

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/SergeyBogomolovv/checkout-service/internal/entities"
	"github.com/SergeyBogomolovv/checkout-service/pkg/trm"

	sq "github.com/Masterminds/squirrel"
	"github.com/jmoiron/sqlx"
)

var productColumns = []string{"id", "name", "slug", "price_cents", "stock", "active", "image_url"}

type productsRepo struct {
	db *sqlx.DB
	qb sq.StatementBuilderType
}

func NewProductsRepo(db *sqlx.DB) *productsRepo {
	return &productsRepo{
		db: db,
		qb: sq.StatementBuilder.PlaceholderFormat(sq.Dollar),
	}
}

func (r *productsRepo) GetProduct(ctx context.Context, id int64) (entities.Product, error) {
	query, args := r.qb.Select(productColumns...).
		From("products").
		Where(sq.Eq{"id": id}).
		MustSql()

	return r.getProduct(ctx, query, args)
}

func (r *productsRepo) GetProductBySlug(ctx context.Context, slug string) (entities.Product, error) {
	query, args := r.qb.Select(productColumns...).
		From("products").
		Where(sq.Eq{"slug": slug}).
		MustSql()

	return r.getProduct(ctx, query, args)
}

func (r *productsRepo) getProduct(ctx context.Context, query string, args []any) (entities.Product, error) {
	var product Product
	err := r.getContext(ctx, &product, query, args...)
	if errors.Is(err, sql.ErrNoRows) {
		return entities.Product{}, entities.ErrProductNotFound
	}
	if err != nil {
		return entities.Product{}, fmt.Errorf("failed to get product: %w", err)
	}
	return ProductToEntity(product), nil
}

func (r *productsRepo) ListProducts(ctx context.Context) ([]entities.Product, error) {
	query, args := r.qb.Select(productColumns...).
		From("products").
		Where(sq.Eq{"active": true}).
		OrderBy("name").
		MustSql()

	var products []Product
	if err := r.selectContext(ctx, &products, query, args...); err != nil {
		return nil, fmt.Errorf("failed to select products: %w", err)
	}

	result := make([]entities.Product, 0, len(products))
	for _, p := range products {
		result = append(result, ProductToEntity(p))
	}
	return result, nil
}

// DecrementStock атомарно резервирует qty единиц товара.
// Условие stock >= qty не даёт уйти в минус при конкурентных оформлениях.
func (r *productsRepo) DecrementStock(ctx context.Context, productID int64, qty int) error {
	query, args := r.qb.Update("products").
		Set("stock", sq.Expr("stock - ?", qty)).
		Where(sq.Eq{"id": productID}).
		Where(sq.GtOrEq{"stock": qty}).
		MustSql()

	res, err := r.execContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("failed to decrement stock: %w", err)
	}

	ok, err := affected(res)
	if err != nil {
		return err
	}
	if !ok {
		return entities.ErrInsufficientStock
	}
	return nil
}

// RestoreStock возвращает qty единиц на склад при отмене или провале оплаты.
func (r *productsRepo) RestoreStock(ctx context.Context, productID int64, qty int) error {
	query, args := r.qb.Update("products").
		Set("stock", sq.Expr("stock + ?", qty)).
		Where(sq.Eq{"id": productID}).
		MustSql()

	if _, err := r.execContext(ctx, query, args...); err != nil {
		return fmt.Errorf("failed to restore stock: %w", err)
	}
	return nil
}

func (r *productsRepo) execContext(ctx context.Context, query string, args ...any) (sql.Result, error) {
	tx := trm.ExtractTx(ctx)
	if tx != nil {
		return tx.ExecContext(ctx, query, args...)
	}
	return r.db.ExecContext(ctx, query, args...)
}

func (r *productsRepo) getContext(ctx context.Context, dest any, query string, args ...any) error {
	tx := trm.ExtractTx(ctx)
	if tx != nil {
		return tx.GetContext(ctx, dest, query, args...)
	}
	return r.db.GetContext(ctx, dest, query, args...)
}

func (r *productsRepo) selectContext(ctx context.Context, dest any, query string, args ...any) error {
	tx := trm.ExtractTx(ctx)
	if tx != nil {
		return tx.SelectContext(ctx, dest, query, args...)
	}
	return r.db.SelectContext(ctx, dest, query, args...)
}
