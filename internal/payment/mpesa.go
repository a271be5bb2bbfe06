package payment

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/SergeyBogomolovv/checkout-service/internal/config"
	"github.com/SergeyBogomolovv/checkout-service/internal/entities"
)

const (
	timestampLayout = "20060102150405"
	countryPrefix   = "254"
)

// MpesaGateway - адаптер Daraja STK push. Провайдер отвечает на запрос
// только подтверждением приёма, реальный итог платежа приходит колбэком.
type MpesaGateway struct {
	logger *slog.Logger
	cfg    config.Mpesa
	client *http.Client
	now    func() time.Time
}

func NewMpesaGateway(logger *slog.Logger, cfg config.Mpesa) *MpesaGateway {
	return &MpesaGateway{
		logger: logger.With(slog.String("gateway", "mpesa")),
		cfg:    cfg,
		// таймаут ограничивает каждый внешний вызов, зависший провайдер
		// оставляет заказ pending
		client: &http.Client{Timeout: cfg.Timeout},
		now:    time.Now,
	}
}

type stkPushRequest struct {
	BusinessShortCode string `json:"BusinessShortCode"`
	Password          string `json:"Password"`
	Timestamp         string `json:"Timestamp"`
	TransactionType   string `json:"TransactionType"`
	Amount            int64  `json:"Amount"`
	PartyA            string `json:"PartyA"`
	PartyB            string `json:"PartyB"`
	PhoneNumber       string `json:"PhoneNumber"`
	CallBackURL       string `json:"CallBackURL"`
	AccountReference  string `json:"AccountReference"`
	TransactionDesc   string `json:"TransactionDesc"`
}

type stkPushResponse struct {
	ResponseCode      string `json:"ResponseCode"`
	CheckoutRequestID string `json:"CheckoutRequestID"`
	CustomerMessage   string `json:"CustomerMessage"`
}

// Begin отправляет STK push на телефон заказа и возвращает
// CheckoutRequestID как correlation id будущего колбэка.
func (g *MpesaGateway) Begin(ctx context.Context, order entities.Order) (BeginResult, error) {
	token, err := g.accessToken(ctx)
	if err != nil {
		return BeginResult{}, err
	}

	password, timestamp := g.password()
	phone := NormalizePhone(order.Phone)

	payload := stkPushRequest{
		BusinessShortCode: g.cfg.Shortcode,
		Password:          password,
		Timestamp:         timestamp,
		TransactionType:   "CustomerPayBillOnline",
		Amount:            WholeUnits(order.TotalCents),
		PartyA:            phone,
		PartyB:            g.cfg.Shortcode,
		PhoneNumber:       phone,
		CallBackURL:       g.cfg.CallbackURL,
		AccountReference:  fmt.Sprintf("Order%d", order.ID),
		TransactionDesc:   fmt.Sprintf("Payment for order #%d", order.ID),
	}

	var res stkPushResponse
	if err := g.post(ctx, "/mpesa/stkpush/v1/processrequest", token, payload, &res); err != nil {
		return BeginResult{}, err
	}

	if res.ResponseCode != "0" {
		return BeginResult{}, fmt.Errorf("stk push rejected: %s", res.CustomerMessage)
	}

	return BeginResult{Reference: res.CheckoutRequestID}, nil
}

type stkQueryRequest struct {
	BusinessShortCode string `json:"BusinessShortCode"`
	Password          string `json:"Password"`
	Timestamp         string `json:"Timestamp"`
	CheckoutRequestID string `json:"CheckoutRequestID"`
}

type stkQueryResponse struct {
	ResponseCode string `json:"ResponseCode"`
	ResultCode   string `json:"ResultCode"`
	ResultDesc   string `json:"ResultDesc"`
}

// Confirm опрашивает состояние ранее принятого STK-запроса.
// Используется как сверка, пока колбэк ещё не пришёл.
func (g *MpesaGateway) Confirm(ctx context.Context, reference string) (SettlementResult, error) {
	token, err := g.accessToken(ctx)
	if err != nil {
		return SettlementResult{}, err
	}

	password, timestamp := g.password()
	payload := stkQueryRequest{
		BusinessShortCode: g.cfg.Shortcode,
		Password:          password,
		Timestamp:         timestamp,
		CheckoutRequestID: reference,
	}

	var res stkQueryResponse
	if err := g.post(ctx, "/mpesa/stkpushquery/v1/query", token, payload, &res); err != nil {
		return SettlementResult{}, err
	}

	// query не возвращает receipt, ссылкой остаётся correlation id
	return SettlementResult{OK: res.ResultCode == "0", ProviderRef: reference}, nil
}

type tokenResponse struct {
	AccessToken string `json:"access_token"`
}

// accessToken выполняет client-credentials обмен. Токен короткоживущий
// и запрашивается на каждый вызов, без кеша между запросами.
func (g *MpesaGateway) accessToken(ctx context.Context) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet,
		g.cfg.BaseURL+"/oauth/v1/generate?grant_type=client_credentials", nil)
	if err != nil {
		return "", fmt.Errorf("failed to create token request: %w", err)
	}
	req.SetBasicAuth(g.cfg.ConsumerKey, g.cfg.ConsumerSecret)

	resp, err := g.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("failed to fetch access token: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("token endpoint returned %d", resp.StatusCode)
	}

	var res tokenResponse
	if err := json.NewDecoder(resp.Body).Decode(&res); err != nil {
		return "", fmt.Errorf("failed to decode token response: %w", err)
	}
	if res.AccessToken == "" {
		return "", errors.New("empty access token")
	}
	return res.AccessToken, nil
}

func (g *MpesaGateway) post(ctx context.Context, path, token string, payload, dest any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, g.cfg.BaseURL+path, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Content-Type", "application/json")

	resp, err := g.client.Do(req)
	if err != nil {
		return fmt.Errorf("request to %s failed: %w", path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("%s returned %d", path, resp.StatusCode)
	}

	if err := json.NewDecoder(resp.Body).Decode(dest); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}

// password = base64(shortcode + passkey + timestamp)
func (g *MpesaGateway) password() (string, string) {
	timestamp := g.now().Format(timestampLayout)
	password := base64.StdEncoding.EncodeToString([]byte(g.cfg.Shortcode + g.cfg.Passkey + timestamp))
	return password, timestamp
}

// NormalizePhone приводит номер к формату 2547XXXXXXXX:
// убирает '+', ведущий ноль меняет на код страны.
func NormalizePhone(phone string) string {
	phone = strings.ReplaceAll(strings.TrimSpace(phone), "+", "")
	switch {
	case strings.HasPrefix(phone, countryPrefix):
		return phone
	case strings.HasPrefix(phone, "0"):
		return countryPrefix + phone[1:]
	default:
		return countryPrefix + phone
	}
}

// WholeUnits переводит внутренние центы в целые единицы валюты,
// которые принимает Daraja.
func WholeUnits(cents int64) int64 {
	return (cents + 50) / 100
}

type callbackEnvelope struct {
	Body struct {
		StkCallback struct {
			MerchantRequestID string `json:"MerchantRequestID"`
			CheckoutRequestID string `json:"CheckoutRequestID"`
			ResultCode        int    `json:"ResultCode"`
			ResultDesc        string `json:"ResultDesc"`
			CallbackMetadata  struct {
				Item []struct {
					Name  string `json:"Name"`
					Value any    `json:"Value"`
				} `json:"Item"`
			} `json:"CallbackMetadata"`
		} `json:"stkCallback"`
	} `json:"Body"`
}

// ParseCallback декодирует envelope асинхронного колбэка Daraja.
// Без CheckoutRequestID колбэк нечем сопоставить с заказом.
func ParseCallback(r io.Reader) (PushCallback, error) {
	var envelope callbackEnvelope
	if err := json.NewDecoder(r).Decode(&envelope); err != nil {
		return PushCallback{}, fmt.Errorf("failed to decode callback: %w", err)
	}

	cb := envelope.Body.StkCallback
	if cb.CheckoutRequestID == "" {
		return PushCallback{}, errors.New("callback without CheckoutRequestID")
	}

	result := PushCallback{
		CheckoutRequestID: cb.CheckoutRequestID,
		ResultCode:        cb.ResultCode,
		Description:       cb.ResultDesc,
	}
	for _, item := range cb.CallbackMetadata.Item {
		if item.Name == "MpesaReceiptNumber" {
			if receipt, ok := item.Value.(string); ok {
				result.Receipt = receipt
			}
		}
	}
	return result, nil
}
