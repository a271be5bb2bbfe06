package service

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/SergeyBogomolovv/checkout-service/internal/entities"
	"github.com/SergeyBogomolovv/checkout-service/internal/events"
	"github.com/SergeyBogomolovv/checkout-service/internal/payment"
	"github.com/SergeyBogomolovv/checkout-service/pkg/trm"
	"github.com/SergeyBogomolovv/checkout-service/pkg/utils"
)

type OrderRepo interface {
	SaveOrder(ctx context.Context, o entities.Order) (int64, error)
	SaveItems(ctx context.Context, orderID int64, items []entities.OrderItem) error
	GetOrderByID(ctx context.Context, orderID int64) (entities.Order, error)
	GetOrderByPaymentRef(ctx context.Context, ref string) (entities.Order, error)
	ListOrdersByUser(ctx context.Context, userID string) ([]entities.Order, error)
	SetPaymentRef(ctx context.Context, orderID int64, ref string) error

	// Переходы условные (только из pending), повторное применение
	// возвращает false и ничего не меняет
	MarkPaid(ctx context.Context, orderID int64, providerRef string) (bool, error)
	TransitionStatus(ctx context.Context, orderID int64, to entities.OrderStatus) (bool, error)
}

type EventPublisher interface {
	Publish(ctx context.Context, event events.OrderEvent) error
}

type CheckoutService struct {
	logger    *slog.Logger
	txManager trm.Manager
	orders    OrderRepo
	products  ProductRepo
	store     CartStore
	gateways  map[entities.PaymentMethod]payment.Gateway
	publisher EventPublisher
}

func NewCheckoutService(
	logger *slog.Logger,
	txManager trm.Manager,
	orders OrderRepo,
	products ProductRepo,
	store CartStore,
	gateways map[entities.PaymentMethod]payment.Gateway,
	publisher EventPublisher,
) *CheckoutService {
	return &CheckoutService{
		logger:    logger.With(slog.String("service", "checkout")),
		txManager: txManager,
		orders:    orders,
		products:  products,
		store:     store,
		gateways:  gateways,
		publisher: publisher,
	}
}

type CheckoutInput struct {
	Method          entities.PaymentMethod
	ShippingAddress string
	Phone           string
}

type CheckoutResult struct {
	OrderID     int64
	RedirectURL string
}

// Checkout превращает корзину в pending-заказ: цены снимаются с каталога
// и замораживаются в позициях, остаток резервируется декрементом.
// Всё внутри одной транзакции - либо заказ создан и склад списан
// целиком, либо не произошло ничего.
func (s *CheckoutService) Checkout(ctx context.Context, userID string, in CheckoutInput) (CheckoutResult, error) {
	if !in.Method.Valid() {
		return CheckoutResult{}, entities.ErrInvalidPayment
	}

	cart, err := s.store.Get(ctx, userID)
	if err != nil {
		return CheckoutResult{}, err
	}
	if cart.Empty() {
		return CheckoutResult{}, entities.ErrEmptyCart
	}

	var order entities.Order
	createOrder := func() error {
		return s.txManager.Do(ctx, func(ctx context.Context) error {
			items := make([]entities.OrderItem, 0, len(cart))
			var total int64

			for _, line := range cart.Snapshot() {
				product, err := s.products.GetProduct(ctx, line.ProductID)
				if err != nil {
					return err
				}
				if !product.Active {
					return entities.ErrProductNotFound
				}
				if err := s.products.DecrementStock(ctx, product.ID, line.Quantity); err != nil {
					return err
				}

				items = append(items, entities.OrderItem{
					ProductID:  product.ID,
					Name:       product.Name,
					Quantity:   line.Quantity,
					PriceCents: product.PriceCents,
				})
				total += int64(line.Quantity) * product.PriceCents
			}

			order = entities.Order{
				UserID:          userID,
				TotalCents:      total,
				Status:          entities.StatusPending,
				PaymentMethod:   in.Method,
				ShippingAddress: in.ShippingAddress,
				Phone:           in.Phone,
				CreatedAt:       time.Now(),
				Items:           items,
			}

			id, err := s.orders.SaveOrder(ctx, order)
			if err != nil {
				return err
			}
			order.ID = id

			return s.orders.SaveItems(ctx, id, items)
		})
	}

	cfg := utils.RetryConfig{
		InitialDelay: 100 * time.Millisecond,
		MaxAttempts:  3,
		Multiplier:   2,
	}
	if err := utils.Retry(cfg, createOrder,
		entities.ErrInsufficientStock, entities.ErrProductNotFound); err != nil {
		return CheckoutResult{}, err
	}

	s.logger.Debug("order created",
		slog.Int64("order_id", order.ID), slog.Int64("total_cents", order.TotalCents))
	s.publish(ctx, order, events.TypeOrderCreated)

	result := CheckoutResult{OrderID: order.ID}
	if in.Method == entities.PaymentCard {
		begin, err := s.gateways[entities.PaymentCard].Begin(ctx, order)
		if err != nil {
			// заказ остаётся pending, оплату можно повторить
			s.logger.ErrorContext(ctx, "failed to open card session",
				slog.Int64("order_id", order.ID), slog.Any("error", err))
			return result, entities.ErrProviderUnavailable
		}
		result.RedirectURL = begin.RedirectURL
	}
	return result, nil
}

// InitiatePush отправляет push-запрос на телефон плательщика.
// Принятый запрос фиксируется correlation id, оплата подтвердится колбэком.
func (s *CheckoutService) InitiatePush(ctx context.Context, userID string, orderID int64, phone string) (string, error) {
	order, err := s.ownedOrder(ctx, userID, orderID)
	if err != nil {
		return "", err
	}
	if order.Status != entities.StatusPending {
		return "", entities.ErrOrderNotPending
	}
	if order.PaymentMethod != entities.PaymentMpesa {
		return "", entities.ErrInvalidPayment
	}
	if phone != "" {
		order.Phone = phone
	}

	begin, err := s.gateways[entities.PaymentMpesa].Begin(ctx, order)
	if err != nil {
		s.logger.ErrorContext(ctx, "failed to initiate push payment",
			slog.Int64("order_id", orderID), slog.Any("error", err))
		return "", entities.ErrProviderUnavailable
	}

	if err := s.orders.SetPaymentRef(ctx, orderID, begin.Reference); err != nil {
		return "", err
	}
	return begin.Reference, nil
}

// HandlePushCallback обрабатывает асинхронный итог push-платежа.
// Колбэк с неизвестным correlation id подтверждается без каких-либо
// мутаций, чтобы провайдер не ретраил и ничего не узнал о заказах.
func (s *CheckoutService) HandlePushCallback(ctx context.Context, cb payment.PushCallback) error {
	order, err := s.orders.GetOrderByPaymentRef(ctx, cb.CheckoutRequestID)
	if errors.Is(err, entities.ErrOrderNotFound) {
		s.logger.Warn("push callback for unknown correlation id",
			slog.String("checkout_request_id", cb.CheckoutRequestID))
		return nil
	}
	if err != nil {
		return err
	}

	if cb.Success() {
		return s.settle(ctx, order, cb.Receipt)
	}

	s.logger.Info("push payment failed",
		slog.Int64("order_id", order.ID),
		slog.Int("result_code", cb.ResultCode),
		slog.String("description", cb.Description))
	return s.fail(ctx, order)
}

// ConfirmCardReturn - синхронная нога settlement: пользователь вернулся
// на success URL с токеном session. Безопасно выполнять сколько угодно раз.
func (s *CheckoutService) ConfirmCardReturn(ctx context.Context, userID string, orderID int64, sessionToken string) (entities.Order, error) {
	order, err := s.ownedOrder(ctx, userID, orderID)
	if err != nil {
		return entities.Order{}, err
	}
	if order.Paid() || sessionToken == "" || order.PaymentMethod != entities.PaymentCard {
		return order, nil
	}

	res, err := s.gateways[entities.PaymentCard].Confirm(ctx, sessionToken)
	if err != nil {
		// неоднозначная ошибка провайдера не повод менять статус
		s.logger.ErrorContext(ctx, "failed to verify card session",
			slog.Int64("order_id", orderID), slog.Any("error", err))
		return order, entities.ErrProviderUnavailable
	}
	if !res.OK {
		return order, nil
	}

	if err := s.settle(ctx, order, res.ProviderRef); err != nil {
		return entities.Order{}, err
	}
	return s.orders.GetOrderByID(ctx, orderID)
}

// HandleCardSettlement применяет подтверждённый вебхук.
// Payload к этому моменту уже проверен подписью.
func (s *CheckoutService) HandleCardSettlement(ctx context.Context, notice payment.SettlementNotice) error {
	if !notice.Paid {
		return nil
	}

	order, err := s.orders.GetOrderByID(ctx, notice.OrderID)
	if errors.Is(err, entities.ErrOrderNotFound) {
		s.logger.Warn("card settlement for unknown order", slog.Int64("order_id", notice.OrderID))
		return nil
	}
	if err != nil {
		return err
	}
	return s.settle(ctx, order, notice.ProviderRef)
}

// Cancel отменяет pending-заказ владельца и возвращает остаток на склад.
// Отмена не pending-заказа отклоняется: восстановление остатка привязано
// к единственному переходу из pending и не может выполниться дважды.
func (s *CheckoutService) Cancel(ctx context.Context, userID string, orderID int64) error {
	order, err := s.ownedOrder(ctx, userID, orderID)
	if err != nil {
		return err
	}
	if order.Status != entities.StatusPending {
		return entities.ErrOrderNotCancellable
	}

	err = s.txManager.Do(ctx, func(ctx context.Context) error {
		ok, err := s.orders.TransitionStatus(ctx, orderID, entities.StatusCancelled)
		if err != nil {
			return err
		}
		if !ok {
			return entities.ErrOrderNotCancellable
		}
		return s.restoreItems(ctx, order)
	})
	if err != nil {
		return err
	}

	order.Status = entities.StatusCancelled
	s.publish(ctx, order, events.TypeOrderCancelled)
	return nil
}

// Status отдаёт состояние заказа для поллинга. Для pending push-заказа
// с принятым запросом дополнительно сверяется с провайдером: ошибка или
// таймаут сверки оставляют заказ pending.
func (s *CheckoutService) Status(ctx context.Context, userID string, orderID int64) (entities.Order, error) {
	order, err := s.ownedOrder(ctx, userID, orderID)
	if err != nil {
		return entities.Order{}, err
	}

	if order.Status == entities.StatusPending &&
		order.PaymentMethod == entities.PaymentMpesa && order.PaymentRef != "" {
		res, err := s.gateways[entities.PaymentMpesa].Confirm(ctx, order.PaymentRef)
		if err == nil && res.OK {
			if err := s.settle(ctx, order, res.ProviderRef); err != nil {
				return entities.Order{}, err
			}
			order.Status = entities.StatusPaid
			order.PaymentRef = res.ProviderRef
		}
	}
	return order, nil
}

func (s *CheckoutService) GetOrder(ctx context.Context, userID string, orderID int64) (entities.Order, error) {
	return s.ownedOrder(ctx, userID, orderID)
}

func (s *CheckoutService) ListOrders(ctx context.Context, userID string) ([]entities.Order, error) {
	return s.orders.ListOrdersByUser(ctx, userID)
}

// settle - единственный путь в paid. Условный переход делает повторную
// доставку подтверждения no-op: корзина чистится и событие уходит только
// при первом применении.
func (s *CheckoutService) settle(ctx context.Context, order entities.Order, providerRef string) error {
	ok, err := s.orders.MarkPaid(ctx, order.ID, providerRef)
	if err != nil {
		return err
	}
	if !ok {
		s.logger.Debug("settlement already applied", slog.Int64("order_id", order.ID))
		return nil
	}

	if err := s.store.Delete(ctx, order.UserID); err != nil {
		s.logger.Error("failed to clear cart after settlement",
			slog.Int64("order_id", order.ID), slog.Any("error", err))
	}

	order.Status = entities.StatusPaid
	order.PaymentRef = providerRef
	s.logger.Info("order paid",
		slog.Int64("order_id", order.ID), slog.String("payment_ref", providerRef))
	s.publish(ctx, order, events.TypeOrderPaid)
	return nil
}

func (s *CheckoutService) fail(ctx context.Context, order entities.Order) error {
	var transitioned bool
	err := s.txManager.Do(ctx, func(ctx context.Context) error {
		ok, err := s.orders.TransitionStatus(ctx, order.ID, entities.StatusFailed)
		if err != nil {
			return err
		}
		if !ok {
			return nil
		}
		transitioned = true
		return s.restoreItems(ctx, order)
	})
	if err != nil {
		return err
	}

	if transitioned {
		order.Status = entities.StatusFailed
		s.publish(ctx, order, events.TypeOrderFailed)
	}
	return nil
}

func (s *CheckoutService) restoreItems(ctx context.Context, order entities.Order) error {
	for _, it := range order.Items {
		if err := s.products.RestoreStock(ctx, it.ProductID, it.Quantity); err != nil {
			return err
		}
	}
	return nil
}

func (s *CheckoutService) ownedOrder(ctx context.Context, userID string, orderID int64) (entities.Order, error) {
	order, err := s.orders.GetOrderByID(ctx, orderID)
	if err != nil {
		return entities.Order{}, err
	}
	if order.UserID != userID {
		return entities.Order{}, entities.ErrUnauthorized
	}
	return order, nil
}

func (s *CheckoutService) publish(ctx context.Context, order entities.Order, eventType string) {
	if s.publisher == nil {
		return
	}
	event := events.OrderEvent{
		Type:       eventType,
		OrderID:    order.ID,
		UserID:     order.UserID,
		TotalCents: order.TotalCents,
		Status:     string(order.Status),
		At:         time.Now().UTC(),
	}
	if err := s.publisher.Publish(ctx, event); err != nil {
		s.logger.Error("failed to publish order event",
			slog.String("type", eventType), slog.Int64("order_id", order.ID), slog.Any("error", err))
	}
}
