package payment

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strconv"

	"github.com/SergeyBogomolovv/checkout-service/internal/config"
	"github.com/SergeyBogomolovv/checkout-service/internal/entities"

	"github.com/stripe/stripe-go/v79"
	"github.com/stripe/stripe-go/v79/client"
	"github.com/stripe/stripe-go/v79/webhook"
)

const eventCheckoutCompleted = "checkout.session.completed"

type StripeGateway struct {
	logger *slog.Logger
	cfg    config.Stripe
	api    *client.API
}

func NewStripeGateway(logger *slog.Logger, cfg config.Stripe) *StripeGateway {
	api := &client.API{}
	api.Init(cfg.SecretKey, nil)

	return &StripeGateway{
		logger: logger.With(slog.String("gateway", "stripe")),
		cfg:    cfg,
		api:    api,
	}
}

// Begin открывает hosted checkout session. Цены передаются
// в минимальных единицах валюты, id заказа едет в metadata.
func (g *StripeGateway) Begin(ctx context.Context, order entities.Order) (BeginResult, error) {
	lineItems := make([]*stripe.CheckoutSessionLineItemParams, 0, len(order.Items))
	for _, it := range order.Items {
		lineItems = append(lineItems, &stripe.CheckoutSessionLineItemParams{
			PriceData: &stripe.CheckoutSessionLineItemPriceDataParams{
				Currency:   stripe.String(g.cfg.Currency),
				UnitAmount: stripe.Int64(it.PriceCents),
				ProductData: &stripe.CheckoutSessionLineItemPriceDataProductDataParams{
					Name: stripe.String(it.Name),
				},
			},
			Quantity: stripe.Int64(int64(it.Quantity)),
		})
	}

	params := &stripe.CheckoutSessionParams{
		Mode:               stripe.String(string(stripe.CheckoutSessionModePayment)),
		PaymentMethodTypes: stripe.StringSlice([]string{"card"}),
		LineItems:          lineItems,
		SuccessURL:         stripe.String(fmt.Sprintf("%s/%d?session_id={CHECKOUT_SESSION_ID}", g.cfg.SuccessURL, order.ID)),
		CancelURL:          stripe.String(fmt.Sprintf("%s/%d", g.cfg.CancelURL, order.ID)),
	}
	params.Context = ctx
	params.AddMetadata("order_id", strconv.FormatInt(order.ID, 10))

	sess, err := g.api.CheckoutSessions.New(params)
	if err != nil {
		return BeginResult{}, fmt.Errorf("failed to create checkout session: %w", err)
	}

	return BeginResult{RedirectURL: sess.URL, Reference: sess.ID}, nil
}

// Confirm синхронно проверяет состояние session по токену,
// с которым пользователь вернулся на success URL.
func (g *StripeGateway) Confirm(ctx context.Context, reference string) (SettlementResult, error) {
	params := &stripe.CheckoutSessionParams{}
	params.Context = ctx

	sess, err := g.api.CheckoutSessions.Get(reference, params)
	if err != nil {
		return SettlementResult{}, fmt.Errorf("failed to retrieve checkout session: %w", err)
	}

	result := SettlementResult{OK: sess.PaymentStatus == stripe.CheckoutSessionPaymentStatusPaid}
	if sess.PaymentIntent != nil {
		result.ProviderRef = sess.PaymentIntent.ID
	}
	return result, nil
}

// ParseWebhook проверяет подпись вебхука и достаёт id заказа из metadata.
// Непригодные для settlement события возвращаются с Paid=false.
func (g *StripeGateway) ParseWebhook(payload []byte, signature string) (SettlementNotice, error) {
	event, err := webhook.ConstructEvent(payload, signature, g.cfg.WebhookSecret)
	if err != nil {
		return SettlementNotice{}, fmt.Errorf("webhook signature verification failed: %w", err)
	}

	if event.Type != eventCheckoutCompleted {
		g.logger.Debug("ignoring webhook event", slog.String("type", string(event.Type)))
		return SettlementNotice{}, nil
	}

	var sess stripe.CheckoutSession
	if err := json.Unmarshal(event.Data.Raw, &sess); err != nil {
		return SettlementNotice{}, fmt.Errorf("failed to decode webhook event: %w", err)
	}

	orderID, err := strconv.ParseInt(sess.Metadata["order_id"], 10, 64)
	if err != nil {
		return SettlementNotice{}, fmt.Errorf("webhook event without order_id metadata: %w", err)
	}

	notice := SettlementNotice{OrderID: orderID, Paid: true}
	if sess.PaymentIntent != nil {
		notice.ProviderRef = sess.PaymentIntent.ID
	}
	return notice, nil
}
