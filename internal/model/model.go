package model

import "time"

// Заказ магазина. Хранится в Redis целиком как JSON,
// в том же виде отдается через API

type Order struct {
	ID              string      `json:"id"`
	Items           []OrderItem `json:"items"`
	Subtotal        float64     `json:"subtotal"`
	UniqueAmount    float64     `json:"uniqueAmount"`
	Status          string      `json:"status"`
	CreatedAt       time.Time   `json:"createdAt"`
	PaidAt          *time.Time  `json:"paidAt,omitempty"`
	TransactionHash string      `json:"transactionHash,omitempty"`
	PayoutID        string      `json:"payoutId,omitempty"`
	PayoutStatus    string      `json:"payoutStatus,omitempty"`
	CopAmount       float64     `json:"copAmount,omitempty"`
	ExchangeRate    float64     `json:"exchangeRate,omitempty"`
}

type OrderItem struct {
	ID       string  `json:"id"`
	Name     string  `json:"name"`
	Price    float64 `json:"price"`
	Quantity int     `json:"quantity"`
}

// Статусы заказа. Движение только вперед:
// pending -> paid -> payout_pending -> payout_completed.
// failed зарезервирован для ручной обработки
const (
	OrderStatusPending         = "pending"
	OrderStatusPaid            = "paid"
	OrderStatusPayoutPending   = "payout_pending"
	OrderStatusPayoutCompleted = "payout_completed"
	OrderStatusFailed          = "failed"
)
