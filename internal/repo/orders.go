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

var orderColumns = []string{
	"id", "user_id", "total_cents", "status", "payment_method",
	"shipping_address", "phone", "payment_ref", "created_at",
}

type ordersRepo struct {
	db *sqlx.DB
	qb sq.StatementBuilderType
}

func NewOrdersRepo(db *sqlx.DB) *ordersRepo {
	return &ordersRepo{
		db: db,
		qb: sq.StatementBuilder.PlaceholderFormat(sq.Dollar),
	}
}

// SaveOrder вставляет заказ и возвращает сгенерированный id.
func (r *ordersRepo) SaveOrder(ctx context.Context, o entities.Order) (int64, error) {
	query, args := r.qb.Insert("orders").
		Columns("user_id", "total_cents", "status", "payment_method", "shipping_address", "phone", "payment_ref").
		Values(
			o.UserID, o.TotalCents, string(o.Status), string(o.PaymentMethod),
			o.ShippingAddress, o.Phone, nullString(o.PaymentRef),
		).
		Suffix("RETURNING id").
		MustSql()

	var id int64
	if err := r.getContext(ctx, &id, query, args...); err != nil {
		return 0, fmt.Errorf("failed to save order: %w", err)
	}
	return id, nil
}

func (r *ordersRepo) SaveItems(ctx context.Context, orderID int64, items []entities.OrderItem) error {
	if len(items) == 0 {
		return nil
	}

	q := r.qb.Insert("order_items").
		Columns("order_id", "product_id", "name", "quantity", "price_cents")

	for _, it := range items {
		q = q.Values(orderID, it.ProductID, it.Name, it.Quantity, it.PriceCents)
	}

	query, args := q.MustSql()
	if _, err := r.execContext(ctx, query, args...); err != nil {
		return fmt.Errorf("failed to save order items: %w", err)
	}
	return nil
}

func (r *ordersRepo) GetOrderByID(ctx context.Context, orderID int64) (entities.Order, error) {
	query, args := r.qb.Select(orderColumns...).
		From("orders").
		Where(sq.Eq{"id": orderID}).
		MustSql()

	return r.getOrder(ctx, query, args)
}

// GetOrderByPaymentRef находит заказ по correlation id провайдера.
func (r *ordersRepo) GetOrderByPaymentRef(ctx context.Context, ref string) (entities.Order, error) {
	query, args := r.qb.Select(orderColumns...).
		From("orders").
		Where(sq.Eq{"payment_ref": ref}).
		MustSql()

	return r.getOrder(ctx, query, args)
}

func (r *ordersRepo) getOrder(ctx context.Context, query string, args []any) (entities.Order, error) {
	var order Order
	err := r.getContext(ctx, &order, query, args...)
	if errors.Is(err, sql.ErrNoRows) {
		return entities.Order{}, entities.ErrOrderNotFound
	}
	if err != nil {
		return entities.Order{}, fmt.Errorf("failed to get order: %w", err)
	}

	query, args = r.qb.Select("order_id", "product_id", "name", "quantity", "price_cents").
		From("order_items").
		Where(sq.Eq{"order_id": order.ID}).
		MustSql()

	var items []OrderItem
	if err := r.selectContext(ctx, &items, query, args...); err != nil {
		return entities.Order{}, fmt.Errorf("failed to get order items: %w", err)
	}

	return OrderToEntity(order, items), nil
}

func (r *ordersRepo) ListOrdersByUser(ctx context.Context, userID string) ([]entities.Order, error) {
	query, args := r.qb.Select(orderColumns...).
		From("orders").
		Where(sq.Eq{"user_id": userID}).
		OrderBy("created_at DESC").
		MustSql()

	var orders []Order
	if err := r.selectContext(ctx, &orders, query, args...); err != nil {
		return nil, fmt.Errorf("failed to select orders: %w", err)
	}

	if len(orders) == 0 {
		return []entities.Order{}, nil
	}

	ids := make([]int64, len(orders))
	for i, o := range orders {
		ids[i] = o.ID
	}

	query, args = r.qb.Select("order_id", "product_id", "name", "quantity", "price_cents").
		From("order_items").
		Where(sq.Eq{"order_id": ids}).
		MustSql()

	var items []OrderItem
	if err := r.selectContext(ctx, &items, query, args...); err != nil {
		return nil, fmt.Errorf("failed to select order items: %w", err)
	}

	itemsMap := make(map[int64][]OrderItem, len(ids))
	for _, it := range items {
		itemsMap[it.OrderID] = append(itemsMap[it.OrderID], it)
	}

	result := make([]entities.Order, 0, len(orders))
	for _, o := range orders {
		result = append(result, OrderToEntity(o, itemsMap[o.ID]))
	}
	return result, nil
}

// SetPaymentRef сохраняет correlation id принятого платёжного запроса.
func (r *ordersRepo) SetPaymentRef(ctx context.Context, orderID int64, ref string) error {
	query, args := r.qb.Update("orders").
		Set("payment_ref", ref).
		Where(sq.Eq{"id": orderID}).
		MustSql()

	if _, err := r.execContext(ctx, query, args...); err != nil {
		return fmt.Errorf("failed to set payment ref: %w", err)
	}
	return nil
}

// MarkPaid переводит pending-заказ в paid и записывает ссылку провайдера.
// Возвращает false, если заказ уже не pending - повторная доставка
// подтверждения тогда ничего не меняет.
func (r *ordersRepo) MarkPaid(ctx context.Context, orderID int64, providerRef string) (bool, error) {
	query, args := r.qb.Update("orders").
		Set("status", string(entities.StatusPaid)).
		Set("payment_ref", providerRef).
		Where(sq.Eq{"id": orderID, "status": string(entities.StatusPending)}).
		MustSql()

	res, err := r.execContext(ctx, query, args...)
	if err != nil {
		return false, fmt.Errorf("failed to mark order paid: %w", err)
	}
	return affected(res)
}

// TransitionStatus переводит заказ из pending в указанный статус.
func (r *ordersRepo) TransitionStatus(ctx context.Context, orderID int64, to entities.OrderStatus) (bool, error) {
	query, args := r.qb.Update("orders").
		Set("status", string(to)).
		Where(sq.Eq{"id": orderID, "status": string(entities.StatusPending)}).
		MustSql()

	res, err := r.execContext(ctx, query, args...)
	if err != nil {
		return false, fmt.Errorf("failed to transition order status: %w", err)
	}
	return affected(res)
}

func affected(res sql.Result) (bool, error) {
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

func (r *ordersRepo) execContext(ctx context.Context, query string, args ...any) (sql.Result, error) {
	tx := trm.ExtractTx(ctx)
	if tx != nil {
		return tx.ExecContext(ctx, query, args...)
	}
	return r.db.ExecContext(ctx, query, args...)
}

func (r *ordersRepo) getContext(ctx context.Context, dest any, query string, args ...any) error {
	tx := trm.ExtractTx(ctx)
	if tx != nil {
		return tx.GetContext(ctx, dest, query, args...)
	}
	return r.db.GetContext(ctx, dest, query, args...)
}

func (r *ordersRepo) selectContext(ctx context.Context, dest any, query string, args ...any) error {
	tx := trm.ExtractTx(ctx)
	if tx != nil {
		return tx.SelectContext(ctx, dest, query, args...)
	}
	return r.db.SelectContext(ctx, dest, query, args...)
}
