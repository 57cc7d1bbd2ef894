package payout

import (
	"context"
	"fmt"
	"math"

	"go.uber.org/zap"

	"github.com/iurnickita/muralshop/internal/model"
	"github.com/iurnickita/muralshop/internal/service/muralclient"
	"github.com/iurnickita/muralshop/internal/store"
)

// Payout проводит выплату по оплаченному заказу:
// курс USDC->COP, конвертация, создание и исполнение выплаты в Mural.
// Ошибка на любом шаге оставляет заказ в достигнутом статусе
// (paid либо payout_pending), отката и ретраев нет
type Payout interface {
	Attempt(ctx context.Context, order model.Order) Result
}

type Result struct {
	// Skipped - выплаты не настроены, это не ошибка
	Skipped  bool
	PayoutID string
	Status   string
	Err      error
}

type payout struct {
	counterpartyID string
	payoutMethodID string
	store          store.Store
	mural          muralclient.MuralClient
	zaplog         *zap.Logger
}

func NewPayout(counterpartyID string, payoutMethodID string, store store.Store, mural muralclient.MuralClient, zaplog *zap.Logger) Payout {
	return &payout{
		counterpartyID: counterpartyID,
		payoutMethodID: payoutMethodID,
		store:          store,
		mural:          mural,
		zaplog:         zaplog,
	}
}

func (payout *payout) Attempt(ctx context.Context, order model.Order) Result {
	if payout.counterpartyID == "" || payout.payoutMethodID == "" {
		payout.zaplog.Info("payout not configured, skipping",
			zap.String("order", order.ID))
		return Result{Skipped: true}
	}

	// Курс
	rate, err := payout.mural.GetFxRate(ctx, "USDC", "COP")
	if err != nil {
		// заказ остается в paid
		payout.zaplog.Error("fx rate failed",
			zap.String("order", order.ID), zap.Error(err))
		return Result{Err: fmt.Errorf("fx rate: %w", err)}
	}
	copAmount := round2(order.UniqueAmount * rate.Rate)

	payout.zaplog.Info("payout started",
		zap.String("order", order.ID),
		zap.Float64("rate", rate.Rate),
		zap.String("rateValidUntil", rate.ValidUntil),
		zap.Float64("copAmount", copAmount))

	// paid -> payout_pending, фиксируем курс и сумму
	_, err = payout.store.OrderAdvanceStatus(ctx, order.ID, model.OrderStatusPaid, model.OrderStatusPayoutPending,
		func(o *model.Order) {
			o.CopAmount = copAmount
			o.ExchangeRate = rate.Rate
		})
	if err != nil {
		return Result{Err: fmt.Errorf("order %s to payout_pending: %w", order.ID, err)}
	}

	// Создание и исполнение выплаты, без шага подтверждения
	created, err := payout.mural.CreatePayout(ctx, order.UniqueAmount, payout.counterpartyID, payout.payoutMethodID, "Order "+order.ID)
	if err != nil {
		// заказ остается в payout_pending
		payout.zaplog.Error("payout create failed",
			zap.String("order", order.ID), zap.Error(err))
		return Result{Err: fmt.Errorf("create payout: %w", err)}
	}
	executed, err := payout.mural.ExecutePayout(ctx, created.ID)
	if err != nil {
		payout.zaplog.Error("payout execute failed",
			zap.String("order", order.ID),
			zap.String("payout", created.ID), zap.Error(err))
		return Result{Err: fmt.Errorf("execute payout %s: %w", created.ID, err)}
	}

	// payout_pending -> payout_completed
	_, err = payout.store.OrderAdvanceStatus(ctx, order.ID, model.OrderStatusPayoutPending, model.OrderStatusPayoutCompleted,
		func(o *model.Order) {
			o.PayoutID = executed.ID
			o.PayoutStatus = executed.Status
		})
	if err != nil {
		return Result{Err: fmt.Errorf("order %s to payout_completed: %w", order.ID, err)}
	}

	payout.zaplog.Info("payout completed",
		zap.String("order", order.ID),
		zap.String("payout", executed.ID),
		zap.String("payoutStatus", executed.Status))

	return Result{PayoutID: executed.ID, Status: executed.Status}
}

func round2(value float64) float64 {
	return math.Round(value*100) / 100
}
