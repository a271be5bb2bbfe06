package payment

import (
	"context"

	"github.com/SergeyBogomolovv/checkout-service/internal/entities"
)

// BeginResult - результат инициации платежа.
// Карточный провайдер отдаёт URL hosted-страницы,
// push-провайдер - correlation id принятого запроса.
type BeginResult struct {
	RedirectURL string
	Reference   string
}

type SettlementResult struct {
	OK          bool
	ProviderRef string
}

// SettlementNotice - проверенное асинхронное уведомление провайдера.
type SettlementNotice struct {
	OrderID     int64
	ProviderRef string
	Paid        bool
}

// PushCallback - разобранный колбэк push-платежа.
type PushCallback struct {
	CheckoutRequestID string
	ResultCode        int
	Description       string
	Receipt           string
}

func (c PushCallback) Success() bool {
	return c.ResultCode == 0
}

// Gateway - набор возможностей платёжного адаптера. Новый провайдер
// подключается реализацией этого интерфейса, оркестратор о провайдерах
// ничего не знает кроме выбора по payment method.
type Gateway interface {
	Begin(ctx context.Context, order entities.Order) (BeginResult, error)
	Confirm(ctx context.Context, reference string) (SettlementResult, error)
}
