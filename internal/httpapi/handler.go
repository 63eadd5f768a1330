package httpapi

import (
	"encoding/json"
	"errors"
	"expvar"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/sanskar-mk2/auto-print-demo/internal/models"
	"github.com/sanskar-mk2/auto-print-demo/internal/store"
	"github.com/sanskar-mk2/auto-print-demo/internal/token"
)

const defaultPollLimit = 5

type Handler struct {
	store store.OrderStore
}

func NewHandler(store store.OrderStore) *Handler {
	return &Handler{store: store}
}

func (h *Handler) Routes() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", h.handleHealth)
	mux.Handle("/metrics", expvar.Handler())
	mux.HandleFunc("/api/restaurants", h.handleRestaurants)
	mux.HandleFunc("/api/restaurants/verify", h.handleVerifyToken)
	mux.HandleFunc("/api/orders", h.handleSubmitOrder)
	mux.HandleFunc("/api/orders/poll", h.handlePollOrders)
	mux.HandleFunc("/api/logs/js", h.handleClientLog)
	return mux
}

func (h *Handler) handleHealth(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	w.WriteHeader(http.StatusOK)
}

type registerRequest struct {
	Name string `json:"name"`
}

func (h *Handler) handleRestaurants(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodPost:
		h.handleRegisterRestaurant(w, r)
	case http.MethodGet:
		h.handleListRestaurants(w, r)
	default:
		w.WriteHeader(http.StatusMethodNotAllowed)
	}
}

func (h *Handler) handleRegisterRestaurant(w http.ResponseWriter, r *http.Request) {
	var req registerRequest
	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_json", "invalid JSON payload")
		return
	}

	name := strings.TrimSpace(req.Name)
	if name == "" {
		writeError(w, http.StatusBadRequest, "invalid_request", "name is required")
		return
	}

	issued, err := token.New()
	if err != nil {
		writeError(w, http.StatusInternalServerError, "storage_error", "could not issue token")
		return
	}

	restaurant, err := h.store.CreateRestaurant(r.Context(), name, issued)
	if err != nil {
		status, code, msg := mapError(err)
		writeError(w, status, code, msg)
		return
	}

	writeJSON(w, http.StatusOK, restaurant)
}

func (h *Handler) handleListRestaurants(w http.ResponseWriter, r *http.Request) {
	restaurants, err := h.store.ListRestaurants(r.Context())
	if err != nil {
		status, code, msg := mapError(err)
		writeError(w, status, code, msg)
		return
	}
	if restaurants == nil {
		restaurants = []models.Restaurant{}
	}
	writeJSON(w, http.StatusOK, restaurants)
}

type verifyResponse struct {
	ID    int64  `json:"id"`
	Name  string `json:"name"`
	Token string `json:"token"`
}

func (h *Handler) handleVerifyToken(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	tok := tokenFromRequest(r)
	if tok == "" {
		writeError(w, http.StatusBadRequest, "invalid_request", "token is required")
		return
	}

	restaurant, err := h.store.GetRestaurantByToken(r.Context(), tok)
	if err != nil {
		status, code, msg := mapError(err)
		writeError(w, status, code, msg)
		return
	}

	writeJSON(w, http.StatusOK, verifyResponse{
		ID:    restaurant.ID,
		Name:  restaurant.Name,
		Token: restaurant.Token,
	})
}

// submitOrderRequest uses pointer fields so a missing restaurant_id or total
// is distinguishable from a zero value. The item list is passed through
// untouched; the store does not reconcile it with total.
type submitOrderRequest struct {
	RestaurantID *int64             `json:"restaurant_id"`
	Table        *string            `json:"table"`
	Items        []models.OrderItem `json:"items"`
	Total        *float64           `json:"total"`
}

type submitOrderResponse struct {
	OK bool  `json:"ok"`
	ID int64 `json:"id"`
}

func (h *Handler) handleSubmitOrder(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	var req submitOrderRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", "invalid order payload")
		return
	}
	if req.RestaurantID == nil {
		writeError(w, http.StatusBadRequest, "invalid_request", "restaurant_id is required and must be an integer")
		return
	}
	if req.Total == nil {
		writeError(w, http.StatusBadRequest, "invalid_request", "total is required and must be a number")
		return
	}
	items := req.Items
	if items == nil {
		items = []models.OrderItem{}
	}

	orderID, err := h.store.CreateOrder(r.Context(), store.CreateOrderInput{
		RestaurantID: *req.RestaurantID,
		Table:        req.Table,
		Items:        items,
		Total:        *req.Total,
		CreatedAt:    time.Now().UTC(),
	})
	if err != nil {
		status, code, msg := mapError(err)
		writeError(w, status, code, msg)
		return
	}

	writeJSON(w, http.StatusOK, submitOrderResponse{OK: true, ID: orderID})
}

func (h *Handler) handlePollOrders(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	tok := tokenFromRequest(r)
	if tok == "" {
		writeError(w, http.StatusBadRequest, "invalid_request", "token is required")
		return
	}

	limit := defaultPollLimit
	if limitRaw := strings.TrimSpace(r.URL.Query().Get("limit")); limitRaw != "" {
		parsed, err := strconv.Atoi(limitRaw)
		if err != nil || parsed < 0 {
			writeError(w, http.StatusBadRequest, "invalid_request", "limit must be a non-negative integer")
			return
		}
		limit = parsed
	}

	orders, err := h.store.ClaimOrders(r.Context(), tok, limit)
	if err != nil {
		status, code, msg := mapError(err)
		writeError(w, status, code, msg)
		return
	}
	if orders == nil {
		orders = []models.OrderView{}
	}

	writeJSON(w, http.StatusOK, orders)
}

type clientLogRequest struct {
	Time      string  `json:"time"`
	Type      string  `json:"type"`
	Message   string  `json:"message"`
	Stack     *string `json:"stack"`
	UserAgent *string `json:"userAgent"`
	Source    *string `json:"source"`
	Line      *int    `json:"line"`
	Col       *int    `json:"col"`
	Reason    *string `json:"reason"`
}

// handleClientLog is a pure write-through sink for frontend error reports.
// Failures are reported in the body, never as an HTTP error, so a broken
// telemetry pipeline cannot break the page that is already failing.
func (h *Handler) handleClientLog(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	var req clientLogRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusOK, map[string]interface{}{"ok": false, "error": "invalid JSON payload"})
		return
	}

	err := h.store.CreateClientLog(r.Context(), store.ClientLogInput{
		Time:      req.Time,
		Type:      req.Type,
		Message:   req.Message,
		Stack:     req.Stack,
		UserAgent: req.UserAgent,
		Source:    req.Source,
		Line:      req.Line,
		Col:       req.Col,
		Reason:    req.Reason,
	})
	if err != nil {
		writeJSON(w, http.StatusOK, map[string]interface{}{"ok": false, "error": err.Error()})
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{"ok": true})
}

func mapError(err error) (int, string, string) {
	switch {
	case errors.Is(err, store.ErrDuplicateName):
		return http.StatusConflict, "duplicate_name", "a restaurant with that name already exists"
	case errors.Is(err, store.ErrDuplicateToken):
		return http.StatusConflict, "duplicate_token", "token collision, retry registration"
	case errors.Is(err, store.ErrTokenNotFound):
		return http.StatusNotFound, "unknown_token", "no restaurant matches that token"
	case errors.Is(err, store.ErrRestaurantNotFound):
		return http.StatusBadRequest, "invalid_request", "restaurant_id does not reference a known restaurant"
	default:
		return http.StatusInternalServerError, "storage_error", "storage failure, nothing was recorded"
	}
}

type errorResponse struct {
	Error responseError `json:"error"`
}

type responseError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func writeError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, errorResponse{
		Error: responseError{
			Code:    code,
			Message: message,
		},
	})
}

func writeJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if payload == nil {
		return
	}
	_ = json.NewEncoder(w).Encode(payload)
}
