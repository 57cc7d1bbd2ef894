package handler

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/iurnickita/muralshop/internal/handler/config"
	"github.com/iurnickita/muralshop/internal/logger"
	"github.com/iurnickita/muralshop/internal/model"
	"github.com/iurnickita/muralshop/internal/product"
	"github.com/iurnickita/muralshop/internal/service"
)

func Serve(cfg config.Config, service service.Service, zaplog *zap.Logger) error {
	h := newHandler(service, zaplog)
	router := h.newRouter()

	srv := &http.Server{
		Addr:    cfg.ServerAddr,
		Handler: router,
	}

	return srv.ListenAndServe()
}

type handler struct {
	service service.Service
	zaplog  *zap.Logger
}

func newHandler(service service.Service, zaplog *zap.Logger) *handler {
	return &handler{
		service: service,
		zaplog:  zaplog,
	}
}

func (h *handler) newRouter() *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/products", logger.RequestLogMdlw(h.GetProducts, h.zaplog))
	mux.HandleFunc("POST /api/orders", logger.RequestLogMdlw(h.PostOrder, h.zaplog))
	mux.HandleFunc("GET /api/orders", logger.RequestLogMdlw(h.GetOrders, h.zaplog))
	mux.HandleFunc("GET /api/orders/{id}", logger.RequestLogMdlw(h.GetOrder, h.zaplog))
	mux.HandleFunc("POST /api/webhooks/mural", logger.RequestLogMdlw(h.PostWebhook, h.zaplog))
	mux.HandleFunc("GET /api/webhooks/mural", logger.RequestLogMdlw(h.GetWebhook, h.zaplog))
	mux.HandleFunc("POST /api/poll", logger.RequestLogMdlw(h.Poll, h.zaplog))
	mux.HandleFunc("GET /api/poll", logger.RequestLogMdlw(h.Poll, h.zaplog))

	return mux
}

func (h *handler) GetProducts(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, product.Catalog())
}

type PostOrderJSONRequest struct {
	Items    []model.OrderItem `json:"items"`
	Subtotal float64           `json:"subtotal"`
}

type PostOrderJSONResponse struct {
	model.Order
	DepositAddress string `json:"depositAddress,omitempty"`
}

func (h *handler) PostOrder(w http.ResponseWriter, r *http.Request) {
	var orderJSON PostOrderJSONRequest
	err := json.NewDecoder(r.Body).Decode(&orderJSON)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	order, err := h.service.CreateOrder(r.Context(), orderJSON.Items, orderJSON.Subtotal)
	if err != nil {
		switch {
		case errors.Is(err, service.ErrInvalidInput):
			http.Error(w, err.Error(), http.StatusBadRequest)
		default:
			http.Error(w, err.Error(), http.StatusInternalServerError)
		}
		return
	}

	writeJSON(w, http.StatusCreated, PostOrderJSONResponse{
		Order:          order,
		DepositAddress: h.service.DepositAddress(),
	})
}

type GetOrdersJSONResponse struct {
	Orders []model.Order `json:"orders"`
}

func (h *handler) GetOrders(w http.ResponseWriter, r *http.Request) {
	var orders []model.Order
	var err error

	// Необязательный фильтр по статусу
	status := r.URL.Query().Get("status")
	if status != "" {
		orders, err = h.service.ListOrdersByStatus(r.Context(), status, 100)
	} else {
		orders, err = h.service.ListOrders(r.Context(), 100)
	}
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	if orders == nil {
		orders = []model.Order{}
	}

	writeJSON(w, http.StatusOK, GetOrdersJSONResponse{Orders: orders})
}

func (h *handler) GetOrder(w http.ResponseWriter, r *http.Request) {
	order, err := h.service.GetOrder(r.Context(), r.PathValue("id"))
	if err != nil {
		switch {
		case errors.Is(err, service.ErrNotFound):
			http.Error(w, err.Error(), http.StatusNotFound)
		default:
			http.Error(w, err.Error(), http.StatusInternalServerError)
		}
		return
	}

	writeJSON(w, http.StatusOK, order)
}

type WebhookJSONResponse struct {
	Received    bool   `json:"received"`
	Processed   bool   `json:"processed"`
	Reason      string `json:"reason,omitempty"`
	OrderID     string `json:"orderId,omitempty"`
	PayoutID    string `json:"payoutId,omitempty"`
	PayoutError string `json:"payoutError,omitempty"`
	Note        string `json:"note,omitempty"`
}

func (h *handler) PostWebhook(w http.ResponseWriter, r *http.Request) {
	var body map[string]any
	err := json.NewDecoder(r.Body).Decode(&body)
	if err != nil {
		// единственный не-200 ответ вебхука
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	result, err := h.service.ProcessWebhook(r.Context(), body)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	writeJSON(w, http.StatusOK, WebhookJSONResponse{
		Received:    true,
		Processed:   result.Processed,
		Reason:      result.Reason,
		OrderID:     result.OrderID,
		PayoutID:    result.PayoutID,
		PayoutError: result.PayoutErr,
		Note:        result.Note,
	})
}

type GetWebhookJSONResponse struct {
	Status    string    `json:"status"`
	Message   string    `json:"message"`
	Timestamp time.Time `json:"timestamp"`
}

// проба доступности вебхука для настройки интеграции
func (h *handler) GetWebhook(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, GetWebhookJSONResponse{
		Status:    "ok",
		Message:   "mural webhook endpoint is active",
		Timestamp: time.Now().UTC(),
	})
}

type PollJSONResponse struct {
	Checked int    `json:"checked"`
	Matched int    `json:"matched"`
	Message string `json:"message,omitempty"`
}

func (h *handler) Poll(w http.ResponseWriter, r *http.Request) {
	result, err := h.service.Poll(r.Context())
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	writeJSON(w, http.StatusOK, PollJSONResponse{
		Checked: result.Checked,
		Matched: result.Matched,
		Message: result.Message,
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	responseJSON, err := json.Marshal(v)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	w.Write(responseJSON)
}
