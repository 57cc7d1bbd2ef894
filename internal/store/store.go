package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/iurnickita/muralshop/internal/model"
	"github.com/iurnickita/muralshop/internal/store/config"
)

type Store interface {
	OrderPost(ctx context.Context, order model.Order) error
	OrderGet(ctx context.Context, id string) (model.Order, error)
	OrderList(ctx context.Context, limit int) ([]model.Order, error)
	OrderListByStatus(ctx context.Context, status string, limit int) ([]model.Order, error)
	OrderListPending(ctx context.Context) ([]model.Order, error)
	OrderFindByAmount(ctx context.Context, amount float64) (model.Order, error)
	OrderAdvanceStatus(ctx context.Context, id string, from string, to string, mutate func(*model.Order)) (model.Order, error)
}

var (
	ErrNoRows         = errors.New("no rows")
	ErrStatusConflict = errors.New("status conflict")
)

const (
	orderKeyPrefix    = "order:"
	orderIndexKey     = "orders:index"
	amountIndexPrefix = "orders:by-amount:"

	// Индекс сумма->заказ живет час: за это время покупатель
	// либо оплатил, либо заказ ловится опросом транзакций
	amountIndexTTL = time.Hour
)

// Отклонения суммы для поиска по индексу.
// Компенсируют дрейф представления float у отправителя
var amountDeltas = [4]float64{0.000001, -0.000001, 0.000002, -0.000002}

type store struct {
	client *redis.Client
}

func NewStore(cfg config.Config) (Store, error) {
	opts, err := redis.ParseURL(cfg.RedisURL)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}

	client := redis.NewClient(opts)
	if err := client.Ping(context.Background()).Err(); err != nil {
		return nil, fmt.Errorf("redis ping: %w", err)
	}

	return &store{client: client}, nil
}

// NewStoreWithClient подключает готовый клиент (тесты)
func NewStoreWithClient(client *redis.Client) Store {
	return &store{client: client}
}

func amountKey(amount float64) string {
	return fmt.Sprintf("%s%.6f", amountIndexPrefix, amount)
}

func (store *store) OrderPost(ctx context.Context, order model.Order) error {
	raw, err := json.Marshal(order)
	if err != nil {
		return err
	}

	// Запись заказа
	err = store.client.Set(ctx, orderKeyPrefix+order.ID, raw, 0).Err()
	if err != nil {
		return err
	}

	// Индекс по времени создания
	err = store.client.ZAdd(ctx, orderIndexKey, redis.Z{
		Score:  float64(order.CreatedAt.UnixMilli()),
		Member: order.ID,
	}).Err()
	if err != nil {
		return err
	}

	// Индекс по уникальной сумме, для сопоставления платежа
	err = store.client.Set(ctx, amountKey(order.UniqueAmount), order.ID, amountIndexTTL).Err()
	if err != nil {
		return err
	}

	return nil
}

func (store *store) OrderGet(ctx context.Context, id string) (model.Order, error) {
	raw, err := store.client.Get(ctx, orderKeyPrefix+id).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return model.Order{}, ErrNoRows
		}
		return model.Order{}, err
	}

	var order model.Order
	err = json.Unmarshal(raw, &order)
	if err != nil {
		return model.Order{}, err
	}
	return order, nil
}

func (store *store) OrderList(ctx context.Context, limit int) ([]model.Order, error) {
	// ID заказов, сначала новые
	ids, err := store.client.ZRevRange(ctx, orderIndexKey, 0, int64(limit)-1).Result()
	if err != nil {
		return nil, err
	}

	var orders []model.Order
	for _, id := range ids {
		order, err := store.OrderGet(ctx, id)
		if err != nil {
			if errors.Is(err, ErrNoRows) {
				continue
			}
			return nil, err
		}
		orders = append(orders, order)
	}
	return orders, nil
}

func (store *store) OrderListByStatus(ctx context.Context, status string, limit int) ([]model.Order, error) {
	// Отдельного индекса по статусу нет, фильтруем список.
	// Берем с запасом, чтобы после фильтра осталось до limit
	orders, err := store.OrderList(ctx, limit*2)
	if err != nil {
		return nil, err
	}

	var filtered []model.Order
	for _, order := range orders {
		if order.Status == status {
			filtered = append(filtered, order)
			if len(filtered) == limit {
				break
			}
		}
	}
	return filtered, nil
}

func (store *store) OrderListPending(ctx context.Context) ([]model.Order, error) {
	return store.OrderListByStatus(ctx, model.OrderStatusPending, 50)
}

func (store *store) OrderFindByAmount(ctx context.Context, amount float64) (model.Order, error) {
	// Точное совпадение с точностью 6 знаков
	id, err := store.client.Get(ctx, amountKey(amount)).Result()
	if err == nil {
		return store.OrderGet(ctx, id)
	}
	if !errors.Is(err, redis.Nil) {
		return model.Order{}, err
	}

	// Поиск с отклонениями
	for _, delta := range amountDeltas {
		id, err := store.client.Get(ctx, amountKey(amount+delta)).Result()
		if err == nil {
			return store.OrderGet(ctx, id)
		}
		if !errors.Is(err, redis.Nil) {
			return model.Order{}, err
		}
	}

	return model.Order{}, ErrNoRows
}

// OrderAdvanceStatus переводит заказ в статус to атомарно:
// WATCH на ключе заказа, запись через MULTI/EXEC. Если from непустой
// и текущий статус другой, либо заказ параллельно изменили -
// ErrStatusConflict. Так два конкурирующих обработчика (вебхук + опрос,
// повторная доставка вебхука) не проведут один платеж дважды
func (store *store) OrderAdvanceStatus(ctx context.Context, id string, from string, to string, mutate func(*model.Order)) (model.Order, error) {
	key := orderKeyPrefix + id
	var updated model.Order

	err := store.client.Watch(ctx, func(tx *redis.Tx) error {
		raw, err := tx.Get(ctx, key).Bytes()
		if err != nil {
			if errors.Is(err, redis.Nil) {
				return ErrNoRows
			}
			return err
		}

		var order model.Order
		if err := json.Unmarshal(raw, &order); err != nil {
			return err
		}

		if from != "" && order.Status != from {
			return ErrStatusConflict
		}

		order.Status = to
		if mutate != nil {
			mutate(&order)
		}

		newRaw, err := json.Marshal(order)
		if err != nil {
			return err
		}

		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, key, newRaw, 0)
			return nil
		})
		if err != nil {
			return err
		}

		updated = order
		return nil
	}, key)

	if errors.Is(err, redis.TxFailedErr) {
		// ключ изменили между чтением и записью
		return model.Order{}, ErrStatusConflict
	}
	if err != nil {
		return model.Order{}, err
	}
	return updated, nil
}
