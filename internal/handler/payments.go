package handler

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"

	"github.com/SergeyBogomolovv/checkout-service/internal/entities"
	"github.com/SergeyBogomolovv/checkout-service/internal/payment"
	"github.com/SergeyBogomolovv/checkout-service/internal/service"
	"github.com/SergeyBogomolovv/checkout-service/pkg/utils"
)

type CheckoutService interface {
	Checkout(ctx context.Context, userID string, in service.CheckoutInput) (service.CheckoutResult, error)
	InitiatePush(ctx context.Context, userID string, orderID int64, phone string) (string, error)
	HandlePushCallback(ctx context.Context, cb payment.PushCallback) error
	ConfirmCardReturn(ctx context.Context, userID string, orderID int64, sessionToken string) (entities.Order, error)
	HandleCardSettlement(ctx context.Context, notice payment.SettlementNotice) error
	Cancel(ctx context.Context, userID string, orderID int64) error
	Status(ctx context.Context, userID string, orderID int64) (entities.Order, error)
	GetOrder(ctx context.Context, userID string, orderID int64) (entities.Order, error)
	ListOrders(ctx context.Context, userID string) ([]entities.Order, error)
}

// WebhookParser проверяет подпись вебхука карточного провайдера.
type WebhookParser interface {
	ParseWebhook(payload []byte, signature string) (payment.SettlementNotice, error)
}

func (h *HTTPHandler) Checkout(w http.ResponseWriter, r *http.Request) {
	userID, ok := h.user(w, r)
	if !ok {
		return
	}

	var req CheckoutRequest
	if err := utils.DecodeBody(r, &req); err != nil {
		utils.WriteError(w, "invalid request body", http.StatusBadRequest)
		return
	}
	if err := h.validate.Struct(req); err != nil {
		utils.WriteValidationError(w, err)
		return
	}

	result, err := h.checkout.Checkout(r.Context(), userID, service.CheckoutInput{
		Method:          entities.PaymentMethod(req.PaymentMethod),
		ShippingAddress: req.ShippingAddress,
		Phone:           req.Phone,
	})
	if err != nil && !errors.Is(err, entities.ErrProviderUnavailable) {
		checkoutsTotal.WithLabelValues(req.PaymentMethod, "rejected").Inc()
		h.writeServiceError(r.Context(), w, err)
		return
	}

	checkoutsTotal.WithLabelValues(req.PaymentMethod, "created").Inc()

	// заказ создан, но hosted-сессию открыть не вышло - отдаём заказ,
	// клиент может попробовать оплату ещё раз
	if err != nil {
		utils.WriteJSON(w, CheckoutResponse{OrderID: result.OrderID}, http.StatusBadGateway)
		return
	}
	utils.WriteJSON(w, CheckoutResponse{OrderID: result.OrderID, RedirectURL: result.RedirectURL}, http.StatusCreated)
}

func (h *HTTPHandler) StkPush(w http.ResponseWriter, r *http.Request) {
	userID, ok := h.user(w, r)
	if !ok {
		return
	}

	var req StkPushRequest
	if err := utils.DecodeBody(r, &req); err != nil {
		utils.WriteError(w, "invalid request body", http.StatusBadRequest)
		return
	}
	if err := h.validate.Struct(req); err != nil {
		utils.WriteValidationError(w, err)
		return
	}

	ref, err := h.checkout.InitiatePush(r.Context(), userID, req.OrderID, req.Phone)
	if errors.Is(err, entities.ErrProviderUnavailable) {
		utils.WriteJSON(w, StkPushResponse{
			Success: false,
			Message: "failed to initiate payment, try again",
		}, http.StatusBadGateway)
		return
	}
	if err != nil {
		h.writeServiceError(r.Context(), w, err)
		return
	}

	utils.WriteJSON(w, StkPushResponse{
		Success:           true,
		Message:           "check your phone and enter PIN",
		CheckoutRequestID: ref,
	}, http.StatusOK)
}

// MpesaCallback принимает асинхронный итог push-платежа.
// Провайдеру всегда отвечаем 200: наличие или отсутствие заказа
// не должно быть видно снаружи и не должно вызывать ретраи.
func (h *HTTPHandler) MpesaCallback(w http.ResponseWriter, r *http.Request) {
	cb, err := payment.ParseCallback(r.Body)
	if err != nil {
		callbacksRejected.WithLabelValues("mpesa").Inc()
		h.logger.Warn("malformed mpesa callback", slog.Any("error", err))
		utils.WriteJSON(w, MpesaAck{ResultCode: 1, ResultDesc: "Rejected"}, http.StatusOK)
		return
	}

	if err := h.checkout.HandlePushCallback(r.Context(), cb); err != nil {
		h.logger.ErrorContext(r.Context(), "failed to handle mpesa callback",
			slog.String("checkout_request_id", cb.CheckoutRequestID), slog.Any("error", err))
		utils.WriteJSON(w, MpesaAck{ResultCode: 1, ResultDesc: "Rejected"}, http.StatusOK)
		return
	}

	settlementsTotal.WithLabelValues("mpesa", settlementOutcome(cb.Success())).Inc()
	utils.WriteJSON(w, MpesaAck{ResultCode: 0, ResultDesc: "Accepted"}, http.StatusOK)
}

func (h *HTTPHandler) PaymentStatus(w http.ResponseWriter, r *http.Request) {
	userID, ok := h.user(w, r)
	if !ok {
		return
	}
	orderID, ok := h.orderID(w, r)
	if !ok {
		return
	}

	order, err := h.checkout.Status(r.Context(), userID, orderID)
	if err != nil {
		h.writeServiceError(r.Context(), w, err)
		return
	}
	utils.WriteJSON(w, PaymentStatusToJSON(order), http.StatusOK)
}

// PaymentSuccess - возвратная нога карточной оплаты. Токен session из
// query проверяется у провайдера, подтверждение идемпотентно.
func (h *HTTPHandler) PaymentSuccess(w http.ResponseWriter, r *http.Request) {
	userID, ok := h.user(w, r)
	if !ok {
		return
	}
	orderID, ok := h.orderID(w, r)
	if !ok {
		return
	}

	order, err := h.checkout.ConfirmCardReturn(r.Context(), userID, orderID, r.URL.Query().Get("session_id"))
	if err != nil {
		h.writeServiceError(r.Context(), w, err)
		return
	}

	if order.Paid() {
		settlementsTotal.WithLabelValues("stripe", "paid").Inc()
	}
	utils.WriteJSON(w, OrderEntityToJSON(order), http.StatusOK)
}

func (h *HTTPHandler) CancelOrder(w http.ResponseWriter, r *http.Request) {
	userID, ok := h.user(w, r)
	if !ok {
		return
	}
	orderID, ok := h.orderID(w, r)
	if !ok {
		return
	}

	if err := h.checkout.Cancel(r.Context(), userID, orderID); err != nil {
		h.writeServiceError(r.Context(), w, err)
		return
	}

	order, err := h.checkout.GetOrder(r.Context(), userID, orderID)
	if err != nil {
		h.writeServiceError(r.Context(), w, err)
		return
	}
	utils.WriteJSON(w, OrderEntityToJSON(order), http.StatusOK)
}

// StripeWebhook принимает события карточного провайдера.
// Невалидная подпись отклоняется без каких-либо мутаций.
func (h *HTTPHandler) StripeWebhook(w http.ResponseWriter, r *http.Request) {
	payload, err := io.ReadAll(r.Body)
	if err != nil {
		utils.WriteError(w, "failed to read body", http.StatusBadRequest)
		return
	}

	notice, err := h.webhooks.ParseWebhook(payload, r.Header.Get("Stripe-Signature"))
	if err != nil {
		callbacksRejected.WithLabelValues("stripe").Inc()
		h.logger.Warn("rejected stripe webhook", slog.Any("error", err))
		utils.WriteError(w, "invalid signature", http.StatusBadRequest)
		return
	}

	if !notice.Paid {
		utils.WriteJSON(w, map[string]string{"status": "ignored"}, http.StatusOK)
		return
	}

	if err := h.checkout.HandleCardSettlement(r.Context(), notice); err != nil {
		// 500 заставит провайдера ретраить доставку
		h.logger.ErrorContext(r.Context(), "failed to handle stripe webhook",
			slog.Int64("order_id", notice.OrderID), slog.Any("error", err))
		utils.WriteError(w, "internal server error", http.StatusInternalServerError)
		return
	}

	settlementsTotal.WithLabelValues("stripe", "paid").Inc()
	utils.WriteJSON(w, map[string]string{"status": "success"}, http.StatusOK)
}

func settlementOutcome(success bool) string {
	if success {
		return "paid"
	}
	return "failed"
}
