package service

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/iurnickita/muralshop/internal/model"
	"github.com/iurnickita/muralshop/internal/payout"
	"github.com/iurnickita/muralshop/internal/service/config"
	"github.com/iurnickita/muralshop/internal/service/muralclient"
	"github.com/iurnickita/muralshop/internal/store"
)

// Заглушка Mural API
type fakeMural struct {
	transactions []muralclient.Transaction
	fxRate       float64
	fxErr        error
	txCalls      int
}

func (f *fakeMural) GetAccount(ctx context.Context, accountID string) (muralclient.Account, error) {
	return muralclient.Account{}, nil
}

func (f *fakeMural) ListAccountTransactions(ctx context.Context, accountID string, limit int) ([]muralclient.Transaction, error) {
	f.txCalls++
	return f.transactions, nil
}

func (f *fakeMural) GetFxRate(ctx context.Context, from string, to string) (muralclient.FxRate, error) {
	if f.fxErr != nil {
		return muralclient.FxRate{}, f.fxErr
	}
	return muralclient.FxRate{Rate: f.fxRate}, nil
}

func (f *fakeMural) CreatePayout(ctx context.Context, amount float64, counterpartyID string, payoutMethodID string, memo string) (muralclient.Payout, error) {
	return muralclient.Payout{ID: "po_1", Status: "created"}, nil
}

func (f *fakeMural) ExecutePayout(ctx context.Context, payoutID string) (muralclient.Payout, error) {
	return muralclient.Payout{ID: payoutID, Status: "executed"}, nil
}

func newTestService(t *testing.T, cfg config.Config, mural *fakeMural) (*service, store.Store) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	orderStore := store.NewStoreWithClient(client)
	zaplog := zap.NewNop()

	svc := &service{
		cfg:    cfg,
		store:  orderStore,
		mural:  mural,
		payout: payout.NewPayout(cfg.CounterpartyID, cfg.PayoutMethodID, orderStore, mural, zaplog),
		zaplog: zaplog,
	}
	return svc, orderStore
}

var coffeeItems = []model.OrderItem{{ID: "coffee-beans", Name: "Colombian Coffee Beans", Price: 24.99, Quantity: 1}}

func TestCreateOrderValidation(t *testing.T) {
	svc, _ := newTestService(t, config.Config{}, &fakeMural{})
	ctx := context.Background()

	// Пустой список позиций
	_, err := svc.CreateOrder(ctx, nil, 24.99)
	require.ErrorIs(t, err, ErrInvalidInput)

	// Нулевая сумма
	_, err = svc.CreateOrder(ctx, coffeeItems, 0)
	require.ErrorIs(t, err, ErrInvalidInput)

	// Некорректное количество
	badItems := []model.OrderItem{{ID: "coffee-beans", Name: "Colombian Coffee Beans", Price: 24.99, Quantity: 0}}
	_, err = svc.CreateOrder(ctx, badItems, 24.99)
	require.ErrorIs(t, err, ErrInvalidInput)
}

func TestCreateOrderUniqueAmount(t *testing.T) {
	svc, _ := newTestService(t, config.Config{}, &fakeMural{})
	ctx := context.Background()

	for i := 0; i < 20; i++ {
		order, err := svc.CreateOrder(ctx, coffeeItems, 24.99)
		require.NoError(t, err)
		require.Equal(t, model.OrderStatusPending, order.Status)

		// Смещение в [0, 0.01), округление до 6 знаков
		offset := order.UniqueAmount - order.Subtotal
		require.GreaterOrEqual(t, offset, 0.0)
		require.Less(t, offset, 0.01)
		require.Equal(t, round6(order.UniqueAmount), order.UniqueAmount)
		require.GreaterOrEqual(t, order.UniqueAmount, 24.99)
		require.Less(t, order.UniqueAmount, 25.00)
	}
}

func TestWebhookPaid(t *testing.T) {
	svc, orderStore := newTestService(t, config.Config{}, &fakeMural{})
	ctx := context.Background()

	order, err := svc.CreateOrder(ctx, coffeeItems, 24.99)
	require.NoError(t, err)

	body := map[string]any{
		"eventType": "deposit.completed",
		"payload": map[string]any{
			"amount":          order.UniqueAmount,
			"transactionHash": "0xabc",
		},
	}

	result, err := svc.ProcessWebhook(ctx, body)
	require.NoError(t, err)
	require.True(t, result.Processed)
	require.Equal(t, order.ID, result.OrderID)
	// выплаты не настроены
	require.Equal(t, "no payout method configured", result.Note)

	dbOrder, err := orderStore.OrderGet(ctx, order.ID)
	require.NoError(t, err)
	require.Equal(t, model.OrderStatusPaid, dbOrder.Status)
	require.Equal(t, "0xabc", dbOrder.TransactionHash)
	require.NotNil(t, dbOrder.PaidAt)

	// Повторная доставка того же события: идемпотентный пропуск
	result, err = svc.ProcessWebhook(ctx, body)
	require.NoError(t, err)
	require.False(t, result.Processed)
	require.Equal(t, "already_processed", result.Reason)

	unchanged, err := orderStore.OrderGet(ctx, order.ID)
	require.NoError(t, err)
	require.Equal(t, dbOrder, unchanged)
}

func TestWebhookPayoutFailure(t *testing.T) {
	// Выплаты настроены, но курс недоступен
	cfg := config.Config{CounterpartyID: "cp_1", PayoutMethodID: "pm_1"}
	svc, orderStore := newTestService(t, cfg, &fakeMural{fxErr: errors.New("mural down")})
	ctx := context.Background()

	order, err := svc.CreateOrder(ctx, coffeeItems, 24.99)
	require.NoError(t, err)

	result, err := svc.ProcessWebhook(ctx, map[string]any{
		"eventType": "deposit.completed",
		"payload":   map[string]any{"amount": order.UniqueAmount},
	})
	require.NoError(t, err)

	// Платеж проведен, ошибка выплаты только в ответе
	require.True(t, result.Processed)
	require.Contains(t, result.PayoutErr, "fx rate")

	dbOrder, err := orderStore.OrderGet(ctx, order.ID)
	require.NoError(t, err)
	require.Equal(t, model.OrderStatusPaid, dbOrder.Status)
}

func TestWebhookIgnoredEvent(t *testing.T) {
	svc, orderStore := newTestService(t, config.Config{}, &fakeMural{})
	ctx := context.Background()

	order, err := svc.CreateOrder(ctx, coffeeItems, 24.99)
	require.NoError(t, err)

	result, err := svc.ProcessWebhook(ctx, map[string]any{
		"eventType": "some.other.event",
		"payload":   map[string]any{"amount": order.UniqueAmount},
	})
	require.NoError(t, err)
	require.False(t, result.Processed)

	dbOrder, err := orderStore.OrderGet(ctx, order.ID)
	require.NoError(t, err)
	require.Equal(t, model.OrderStatusPending, dbOrder.Status)
}

func TestWebhookNoAmount(t *testing.T) {
	svc, _ := newTestService(t, config.Config{}, &fakeMural{})

	result, err := svc.ProcessWebhook(context.Background(), map[string]any{
		"eventType": "deposit.completed",
		"payload":   map[string]any{"note": "hello"},
	})
	require.NoError(t, err)
	require.False(t, result.Processed)
	require.Equal(t, "no_amount", result.Reason)
}

func TestWebhookNoMatchingOrder(t *testing.T) {
	svc, _ := newTestService(t, config.Config{}, &fakeMural{})

	result, err := svc.ProcessWebhook(context.Background(), map[string]any{
		"eventType": "account_credited",
		"payload":   map[string]any{"amount": "77.123456"},
	})
	require.NoError(t, err)
	require.False(t, result.Processed)
	require.Equal(t, "no_matching_order", result.Reason)
}

func TestPollNoPending(t *testing.T) {
	mural := &fakeMural{}
	svc, _ := newTestService(t, config.Config{AccountID: "acc_1"}, mural)

	result, err := svc.Poll(context.Background())
	require.NoError(t, err)
	require.Equal(t, 0, result.Checked)
	require.Equal(t, 0, result.Matched)
	// без ожидающих заказов транзакции не запрашиваются
	require.Equal(t, 0, mural.txCalls)
}

func TestPollAccountUnconfigured(t *testing.T) {
	mural := &fakeMural{}
	svc, _ := newTestService(t, config.Config{}, mural)
	ctx := context.Background()

	_, err := svc.CreateOrder(ctx, coffeeItems, 24.99)
	require.NoError(t, err)

	result, err := svc.Poll(ctx)
	require.NoError(t, err)
	require.Equal(t, 1, result.Checked)
	require.Equal(t, 0, result.Matched)
	require.NotEmpty(t, result.Message)
	require.Equal(t, 0, mural.txCalls)
}

func TestPollMatch(t *testing.T) {
	mural := &fakeMural{}
	svc, orderStore := newTestService(t, config.Config{AccountID: "acc_1"}, mural)
	ctx := context.Background()

	order, err := svc.CreateOrder(ctx, coffeeItems, 24.99)
	require.NoError(t, err)

	// Депозит в пределах допуска 0.000001 и нерелевантные транзакции
	mural.transactions = []muralclient.Transaction{
		{ID: "tx_0", Type: "withdrawal", Amount: fmt.Sprintf("%.6f", order.UniqueAmount)},
		{ID: "tx_1", Type: "deposit", Amount: fmt.Sprintf("%.7f", order.UniqueAmount+0.0000005), TransactionHash: "0xdef"},
	}

	result, err := svc.Poll(ctx)
	require.NoError(t, err)
	require.Equal(t, 1, result.Checked)
	require.Equal(t, 1, result.Matched)

	dbOrder, err := orderStore.OrderGet(ctx, order.ID)
	require.NoError(t, err)
	require.Equal(t, model.OrderStatusPaid, dbOrder.Status)
	require.Equal(t, "0xdef", dbOrder.TransactionHash)
}

func TestPollToleranceMiss(t *testing.T) {
	mural := &fakeMural{}
	svc, orderStore := newTestService(t, config.Config{AccountID: "acc_1"}, mural)
	ctx := context.Background()

	order, err := svc.CreateOrder(ctx, coffeeItems, 24.99)
	require.NoError(t, err)

	// Отклонение 0.00001 - вне допуска
	mural.transactions = []muralclient.Transaction{
		{ID: "tx_1", Type: "deposit", Amount: fmt.Sprintf("%.6f", order.UniqueAmount+0.00001)},
	}

	result, err := svc.Poll(ctx)
	require.NoError(t, err)
	require.Equal(t, 1, result.Checked)
	require.Equal(t, 0, result.Matched)

	dbOrder, err := orderStore.OrderGet(ctx, order.ID)
	require.NoError(t, err)
	require.Equal(t, model.OrderStatusPending, dbOrder.Status)
}

func TestWebhookFieldExtraction(t *testing.T) {
	tests := []struct {
		name      string
		body      map[string]any
		eventType string
		amount    float64
		txHash    string
	}{
		{
			name: "canonical",
			body: map[string]any{
				"eventType": "deposit.completed",
				"payload":   map[string]any{"amount": "12.5", "transactionHash": "0x1"},
			},
			eventType: "deposit.completed",
			amount:    12.5,
			txHash:    "0x1",
		},
		{
			name: "alternate keys",
			body: map[string]any{
				"event": "account_credited",
				"data":  map[string]any{"value": 3.25, "txHash": "0x2"},
			},
			eventType: "account_credited",
			amount:    3.25,
			txHash:    "0x2",
		},
		{
			name: "flat body",
			body: map[string]any{
				"type":   "transfer.completed",
				"amount": "7.75",
				"hash":   "0x3",
			},
			eventType: "transfer.completed",
			amount:    7.75,
			txHash:    "0x3",
		},
		{
			name: "token amount",
			body: map[string]any{
				"eventType": "mural.deposit.completed.v1",
				"payload":   map[string]any{"tokenAmount": "9.000001"},
			},
			eventType: "mural.deposit.completed.v1",
			amount:    9.000001,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			require.Equal(t, tt.eventType, eventTypeOf(tt.body))
			require.True(t, isPaymentEvent(eventTypeOf(tt.body)))

			webhookPayload := payloadOf(tt.body)
			require.Equal(t, tt.amount, amountOf(webhookPayload, tt.body))
			require.Equal(t, tt.txHash, txHashOf(webhookPayload, tt.body))
		})
	}

	require.False(t, isPaymentEvent(""))
	require.False(t, isPaymentEvent("counterparty.created"))
}
