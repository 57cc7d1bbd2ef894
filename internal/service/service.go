package service

import (
	"context"
	"errors"
	"math"
	"math/rand/v2"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/iurnickita/muralshop/internal/model"
	"github.com/iurnickita/muralshop/internal/payout"
	"github.com/iurnickita/muralshop/internal/service/config"
	"github.com/iurnickita/muralshop/internal/service/muralclient"
	"github.com/iurnickita/muralshop/internal/store"
)

type Service interface {
	CreateOrder(ctx context.Context, items []model.OrderItem, subtotal float64) (model.Order, error)
	GetOrder(ctx context.Context, id string) (model.Order, error)
	ListOrders(ctx context.Context, limit int) ([]model.Order, error)
	ListOrdersByStatus(ctx context.Context, status string, limit int) ([]model.Order, error)
	ProcessWebhook(ctx context.Context, body map[string]any) (WebhookResult, error)
	Poll(ctx context.Context) (PollResult, error)
	DepositAddress() string
}

var (
	ErrInvalidInput = errors.New("invalid input")
	ErrNotFound     = errors.New("not found")
)

// Типы событий Mural, означающие входящий платеж.
// Сверка по подстроке либо точному совпадению
var paymentEvents = []string{"account_credited", "deposit.completed", "transfer.completed"}

// Допуск при сравнении суммы транзакции с уникальной суммой заказа
const amountTolerance = 0.000001

type WebhookResult struct {
	Processed bool
	Reason    string
	OrderID   string
	PayoutID  string
	PayoutErr string
	Note      string
}

type PollResult struct {
	Checked int
	Matched int
	Message string
}

type service struct {
	cfg    config.Config
	store  store.Store
	mural  muralclient.MuralClient
	payout payout.Payout
	zaplog *zap.Logger
}

func NewService(cfg config.Config, store store.Store, zaplog *zap.Logger) Service {
	mural := muralclient.NewMuralClient(cfg.MuralAddr, cfg.MuralAPIKey, cfg.MuralTransferAPIKey)
	payout := payout.NewPayout(cfg.CounterpartyID, cfg.PayoutMethodID, store, mural, zaplog)

	return &service{
		cfg:    cfg,
		store:  store,
		mural:  mural,
		payout: payout,
		zaplog: zaplog,
	}
}

func (service *service) CreateOrder(ctx context.Context, items []model.OrderItem, subtotal float64) (model.Order, error) {
	if len(items) == 0 {
		return model.Order{}, ErrInvalidInput
	}
	if subtotal <= 0 {
		return model.Order{}, ErrInvalidInput
	}
	for _, item := range items {
		if item.Quantity < 1 || item.Price < 0 {
			return model.Order{}, ErrInvalidInput
		}
	}

	order := model.Order{
		ID:           "ord_" + uuid.NewString(),
		Items:        items,
		Subtotal:     subtotal,
		UniqueAmount: uniqueAmount(subtotal),
		Status:       model.OrderStatusPending,
		CreatedAt:    time.Now().UTC(),
	}

	err := service.store.OrderPost(ctx, order)
	if err != nil {
		return model.Order{}, err
	}

	service.zaplog.Info("order created",
		zap.String("order", order.ID),
		zap.Float64("uniqueAmount", order.UniqueAmount))

	return order, nil
}

// uniqueAmount добавляет к сумме заказа случайные микро-центы [0, 0.01),
// чтобы различать одновременные заказы с одинаковой стоимостью
func uniqueAmount(subtotal float64) float64 {
	microCents := float64(rand.IntN(10000)) / 1000000
	return round6(subtotal + microCents)
}

func round6(value float64) float64 {
	return math.Round(value*1000000) / 1000000
}

func (service *service) GetOrder(ctx context.Context, id string) (model.Order, error) {
	order, err := service.store.OrderGet(ctx, id)
	if err != nil {
		if errors.Is(err, store.ErrNoRows) {
			return model.Order{}, ErrNotFound
		}
		return model.Order{}, err
	}
	return order, nil
}

func (service *service) ListOrders(ctx context.Context, limit int) ([]model.Order, error) {
	return service.store.OrderList(ctx, limit)
}

func (service *service) ListOrdersByStatus(ctx context.Context, status string, limit int) ([]model.Order, error) {
	return service.store.OrderListByStatus(ctx, status, limit)
}

func (service *service) DepositAddress() string {
	return service.cfg.DepositAddress
}

// ProcessWebhook обрабатывает событие Mural. Неподходящие события
// подтверждаются, но не обрабатываются: повторная доставка не ошибка
func (service *service) ProcessWebhook(ctx context.Context, body map[string]any) (WebhookResult, error) {
	eventType := eventTypeOf(body)
	if !isPaymentEvent(eventType) {
		service.zaplog.Info("ignoring webhook event", zap.String("eventType", eventType))
		return WebhookResult{}, nil
	}

	webhookPayload := payloadOf(body)
	amount := amountOf(webhookPayload, body)
	if amount <= 0 {
		service.zaplog.Info("no valid amount in webhook payload")
		return WebhookResult{Reason: "no_amount"}, nil
	}

	order, err := service.store.OrderFindByAmount(ctx, amount)
	if err != nil {
		if errors.Is(err, store.ErrNoRows) {
			service.zaplog.Info("no matching order", zap.Float64("amount", amount))
			return WebhookResult{Reason: "no_matching_order"}, nil
		}
		return WebhookResult{}, err
	}

	if order.Status != model.OrderStatusPending {
		service.zaplog.Info("order already processed",
			zap.String("order", order.ID), zap.String("status", order.Status))
		return WebhookResult{Reason: "already_processed"}, nil
	}

	return service.processPayment(ctx, order, txHashOf(webhookPayload, body))
}

// Poll сверяет последние транзакции счета с ожидающими заказами.
// Запасной путь на случай пропавшего вебхука или истекшего
// индекса по сумме
func (service *service) Poll(ctx context.Context) (PollResult, error) {
	pending, err := service.store.OrderListPending(ctx)
	if err != nil {
		return PollResult{}, err
	}
	if len(pending) == 0 {
		return PollResult{Message: "no pending orders"}, nil
	}

	if service.cfg.AccountID == "" {
		return PollResult{
			Checked: len(pending),
			Message: "mural account not configured",
		}, nil
	}

	transactions, err := service.mural.ListAccountTransactions(ctx, service.cfg.AccountID, 50)
	if err != nil {
		return PollResult{}, err
	}

	var deposits []muralclient.Transaction
	for _, tx := range transactions {
		if tx.Type == "deposit" || tx.Type == "credit" {
			deposits = append(deposits, tx)
		}
	}

	matched := 0
	for _, order := range pending {
		for _, tx := range deposits {
			txAmount, err := strconv.ParseFloat(tx.Amount, 64)
			if err != nil {
				continue
			}
			if math.Abs(txAmount-order.UniqueAmount) < amountTolerance {
				// первое совпадение выигрывает
				result, err := service.processPayment(ctx, order, tx.TransactionHash)
				if err != nil {
					service.zaplog.Error("poll payment processing failed",
						zap.String("order", order.ID), zap.Error(err))
				} else if result.Processed {
					matched++
				}
				break
			}
		}
	}

	return PollResult{Checked: len(pending), Matched: matched}, nil
}

// processPayment: общий финал обоих путей сверки.
// pending -> paid атомарно, затем попытка выплаты.
// Ошибка выплаты не откатывает paid
func (service *service) processPayment(ctx context.Context, order model.Order, txHash string) (WebhookResult, error) {
	now := time.Now().UTC()
	_, err := service.store.OrderAdvanceStatus(ctx, order.ID, model.OrderStatusPending, model.OrderStatusPaid,
		func(o *model.Order) {
			o.PaidAt = &now
			o.TransactionHash = txHash
		})
	if err != nil {
		if errors.Is(err, store.ErrStatusConflict) {
			// конкурирующий обработчик успел раньше
			return WebhookResult{Reason: "already_processed", OrderID: order.ID}, nil
		}
		return WebhookResult{}, err
	}

	service.zaplog.Info("order paid",
		zap.String("order", order.ID), zap.String("tx", txHash))

	result := WebhookResult{Processed: true, OrderID: order.ID}

	payoutResult := service.payout.Attempt(ctx, order)
	switch {
	case payoutResult.Skipped:
		result.Note = "no payout method configured"
	case payoutResult.Err != nil:
		result.PayoutErr = payoutResult.Err.Error()
	default:
		result.PayoutID = payoutResult.PayoutID
	}

	return result, nil
}

// Извлечение полей вебхука. Формат Mural плавает,
// поэтому перебираем известные варианты ключей

func eventTypeOf(body map[string]any) string {
	for _, key := range []string{"eventType", "event", "type"} {
		if s, ok := body[key].(string); ok && s != "" {
			return s
		}
	}
	return ""
}

func isPaymentEvent(eventType string) bool {
	if eventType == "" {
		return false
	}
	for _, event := range paymentEvents {
		if eventType == event || strings.Contains(eventType, event) {
			return true
		}
	}
	return false
}

func payloadOf(body map[string]any) map[string]any {
	for _, key := range []string{"payload", "data"} {
		if m, ok := body[key].(map[string]any); ok {
			return m
		}
	}
	return body
}

func amountOf(webhookPayload map[string]any, body map[string]any) float64 {
	for _, key := range []string{"amount", "value", "tokenAmount"} {
		if v := toFloat(webhookPayload[key]); v > 0 {
			return v
		}
	}
	return toFloat(body["amount"])
}

func toFloat(value any) float64 {
	switch v := value.(type) {
	case float64:
		return v
	case string:
		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return 0
		}
		return f
	default:
		return 0
	}
}

func txHashOf(webhookPayload map[string]any, body map[string]any) string {
	for _, key := range []string{"transactionHash", "txHash", "hash"} {
		if s, ok := webhookPayload[key].(string); ok && s != "" {
			return s
		}
	}
	if s, ok := body["transactionHash"].(string); ok {
		return s
	}
	return ""
}
