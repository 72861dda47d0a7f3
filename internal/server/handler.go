// Package server exposes the coordination engine over HTTP and streams
// events to station clients over SSE.
package server

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/antonio12761/roxy-bar-sub000/internal/events"
	"github.com/antonio12761/roxy-bar-sub000/internal/logger"
	"github.com/antonio12761/roxy-bar-sub000/internal/merge"
	"github.com/antonio12761/roxy-bar-sub000/internal/metrics"
	"github.com/antonio12761/roxy-bar-sub000/internal/models"
	"github.com/antonio12761/roxy-bar-sub000/internal/orders"
)

// Coded is the error contract every domain error satisfies: a message plus
// a machine-readable reason code.
type Coded interface {
	error
	Code() string
}

// Handler serves the mutation and query endpoints.
type Handler struct {
	service       *orders.Service
	broker        *merge.Broker
	notifier      *events.Notifier
	metrics       *metrics.Metrics
	logger        *logger.Logger
	defaultTenant string
}

// NewHandler wires the HTTP surface.
func NewHandler(service *orders.Service, broker *merge.Broker, notifier *events.Notifier, m *metrics.Metrics, log *logger.Logger, defaultTenant string) *Handler {
	return &Handler{
		service:       service,
		broker:        broker,
		notifier:      notifier,
		metrics:       m,
		logger:        log,
		defaultTenant: defaultTenant,
	}
}

type createOrderRequest struct {
	Type           string          `json:"type"`
	TableNumber    string          `json:"table_number,omitempty"`
	CustomerName   string          `json:"customer_name,omitempty"`
	Note           string          `json:"note,omitempty"`
	PaymentPending bool            `json:"payment_pending,omitempty"`
	Items          []orderItemBody `json:"items"`
}

type orderItemBody struct {
	ProductID uuid.UUID `json:"product_id"`
	Quantity  int       `json:"quantity"`
	Note      string    `json:"note,omitempty"`
}

// CreateOrder handles POST /orders.
func (h *Handler) CreateOrder(w http.ResponseWriter, r *http.Request) {
	requestID := logger.GenerateRequestID()
	start := time.Now()

	actor := h.actor(r)
	var body createOrderRequest
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		h.writeError(w, requestID, &orders.ValidationError{Field: "body", Msg: "malformed JSON"})
		return
	}

	req := orders.NewOrder{
		Type:           models.OrderType(body.Type),
		TableNumber:    body.TableNumber,
		CustomerName:   body.CustomerName,
		Note:           body.Note,
		PaymentPending: body.PaymentPending,
		Items:          itemsFromBody(body.Items),
	}

	result, err := h.service.CreateOrder(r.Context(), actor, req)
	h.observe("create_order", start, err)
	if err != nil {
		h.logger.Debug("create_order_rejected", "Order creation rejected", requestID, map[string]interface{}{
			"error": err.Error(),
		})
		h.writeError(w, requestID, err)
		return
	}

	status := http.StatusCreated
	if result.Pending {
		status = http.StatusAccepted
	}
	h.writeJSON(w, status, map[string]interface{}{
		"order":         result.Order,
		"merged":        result.Merged,
		"pending":       result.Pending,
		"merge_request": result.MergeRequest,
		"request_id":    requestID,
	})
}

// ListOrders handles GET /orders.
func (h *Handler) ListOrders(w http.ResponseWriter, r *http.Request) {
	requestID := logger.GenerateRequestID()

	list, err := h.service.ListOpenOrders(r.Context(), h.actor(r))
	if err != nil {
		h.writeError(w, requestID, err)
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]interface{}{
		"orders":     list,
		"request_id": requestID,
	})
}

// AddOrderItems handles POST /orders/{id}/items.
func (h *Handler) AddOrderItems(w http.ResponseWriter, r *http.Request) {
	requestID := logger.GenerateRequestID()
	start := time.Now()

	orderID, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		h.writeError(w, requestID, &orders.ValidationError{Field: "id", Msg: "not a valid order id"})
		return
	}
	var body struct {
		Items []orderItemBody `json:"items"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		h.writeError(w, requestID, &orders.ValidationError{Field: "body", Msg: "malformed JSON"})
		return
	}

	o, err := h.service.MergeOrderProducts(r.Context(), h.actor(r), orderID, itemsFromBody(body.Items))
	h.observe("add_items", start, err)
	if err != nil {
		h.writeError(w, requestID, err)
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]interface{}{"order": o, "request_id": requestID})
}

// AdvanceOrder handles POST /orders/{id}/status.
func (h *Handler) AdvanceOrder(w http.ResponseWriter, r *http.Request) {
	requestID := logger.GenerateRequestID()
	start := time.Now()

	orderID, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		h.writeError(w, requestID, &orders.ValidationError{Field: "id", Msg: "not a valid order id"})
		return
	}
	var body struct {
		Status models.OrderStatus `json:"status"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		h.writeError(w, requestID, &orders.ValidationError{Field: "body", Msg: "malformed JSON"})
		return
	}

	o, err := h.service.AdvanceOrderStatus(r.Context(), h.actor(r), orderID, body.Status)
	h.observe("advance_order", start, err)
	if err != nil {
		h.writeError(w, requestID, err)
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]interface{}{"order": o, "request_id": requestID})
}

// CompleteOrder handles POST /orders/{id}/complete.
func (h *Handler) CompleteOrder(w http.ResponseWriter, r *http.Request) {
	requestID := logger.GenerateRequestID()
	start := time.Now()

	orderID, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		h.writeError(w, requestID, &orders.ValidationError{Field: "id", Msg: "not a valid order id"})
		return
	}

	o, err := h.service.CompleteAllLines(r.Context(), h.actor(r), orderID)
	h.observe("complete_order", start, err)
	if err != nil {
		h.writeError(w, requestID, err)
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]interface{}{"order": o, "request_id": requestID})
}

// PickupOrder handles POST /orders/{id}/pickup.
func (h *Handler) PickupOrder(w http.ResponseWriter, r *http.Request) {
	requestID := logger.GenerateRequestID()
	start := time.Now()

	orderID, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		h.writeError(w, requestID, &orders.ValidationError{Field: "id", Msg: "not a valid order id"})
		return
	}

	o, err := h.service.MarkOrderPickedUp(r.Context(), h.actor(r), orderID)
	h.observe("pickup_order", start, err)
	if err != nil {
		h.writeError(w, requestID, err)
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]interface{}{"order": o, "request_id": requestID})
}

// CancelOrder handles DELETE /orders/{id}.
func (h *Handler) CancelOrder(w http.ResponseWriter, r *http.Request) {
	requestID := logger.GenerateRequestID()
	start := time.Now()

	orderID, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		h.writeError(w, requestID, &orders.ValidationError{Field: "id", Msg: "not a valid order id"})
		return
	}
	reason := r.URL.Query().Get("reason")

	err = h.service.CancelOrder(r.Context(), h.actor(r), orderID, reason)
	h.observe("cancel_order", start, err)
	if err != nil {
		h.writeError(w, requestID, err)
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]interface{}{"cancelled": true, "request_id": requestID})
}

// CancelLine handles DELETE /order-lines/{id}.
func (h *Handler) CancelLine(w http.ResponseWriter, r *http.Request) {
	requestID := logger.GenerateRequestID()
	start := time.Now()

	lineID, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		h.writeError(w, requestID, &orders.ValidationError{Field: "id", Msg: "not a valid line id"})
		return
	}

	o, err := h.service.CancelOrderLine(r.Context(), h.actor(r), lineID)
	h.observe("cancel_line", start, err)
	if err != nil {
		h.writeError(w, requestID, err)
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]interface{}{"order": o, "request_id": requestID})
}

// ChangeLineQuantity handles PATCH /order-lines/{id}.
func (h *Handler) ChangeLineQuantity(w http.ResponseWriter, r *http.Request) {
	requestID := logger.GenerateRequestID()
	start := time.Now()

	lineID, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		h.writeError(w, requestID, &orders.ValidationError{Field: "id", Msg: "not a valid line id"})
		return
	}
	var body struct {
		Quantity int `json:"quantity"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		h.writeError(w, requestID, &orders.ValidationError{Field: "body", Msg: "malformed JSON"})
		return
	}

	o, err := h.service.ChangeLineQuantity(r.Context(), h.actor(r), lineID, body.Quantity)
	h.observe("change_line_quantity", start, err)
	if err != nil {
		h.writeError(w, requestID, err)
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]interface{}{"order": o, "request_id": requestID})
}

// AdvanceLine handles POST /order-lines/{id}/status.
func (h *Handler) AdvanceLine(w http.ResponseWriter, r *http.Request) {
	requestID := logger.GenerateRequestID()
	start := time.Now()

	lineID, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		h.writeError(w, requestID, &orders.ValidationError{Field: "id", Msg: "not a valid line id"})
		return
	}
	var body struct {
		Status models.LineStatus `json:"status"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		h.writeError(w, requestID, &orders.ValidationError{Field: "body", Msg: "malformed JSON"})
		return
	}

	o, err := h.service.AdvanceLineStatus(r.Context(), h.actor(r), lineID, body.Status)
	h.observe("advance_line", start, err)
	if err != nil {
		h.writeError(w, requestID, err)
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]interface{}{"order": o, "request_id": requestID})
}

// ListMergeRequests handles GET /merge-requests.
func (h *Handler) ListMergeRequests(w http.ResponseWriter, r *http.Request) {
	requestID := logger.GenerateRequestID()

	list, err := h.broker.ListPending(r.Context(), h.actor(r))
	if err != nil {
		h.writeError(w, requestID, err)
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]interface{}{
		"merge_requests": list,
		"request_id":     requestID,
	})
}

// AcceptMergeRequest handles POST /merge-requests/{id}/accept.
func (h *Handler) AcceptMergeRequest(w http.ResponseWriter, r *http.Request) {
	requestID := logger.GenerateRequestID()
	start := time.Now()

	id, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		h.writeError(w, requestID, &orders.ValidationError{Field: "id", Msg: "not a valid request id"})
		return
	}

	o, err := h.broker.Accept(r.Context(), h.actor(r), id)
	h.observe("accept_merge", start, err)
	if err != nil {
		h.writeError(w, requestID, err)
		return
	}
	if h.metrics != nil {
		h.metrics.MergeResolutions.WithLabelValues("accepted").Inc()
	}
	h.writeJSON(w, http.StatusOK, map[string]interface{}{"order": o, "request_id": requestID})
}

// RejectMergeRequest handles POST /merge-requests/{id}/reject.
func (h *Handler) RejectMergeRequest(w http.ResponseWriter, r *http.Request) {
	requestID := logger.GenerateRequestID()
	start := time.Now()

	id, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		h.writeError(w, requestID, &orders.ValidationError{Field: "id", Msg: "not a valid request id"})
		return
	}
	var body struct {
		Reason string `json:"reason"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		h.writeError(w, requestID, &orders.ValidationError{Field: "body", Msg: "malformed JSON"})
		return
	}

	o, err := h.broker.Reject(r.Context(), h.actor(r), id, body.Reason)
	h.observe("reject_merge", start, err)
	if err != nil {
		h.writeError(w, requestID, err)
		return
	}
	if h.metrics != nil {
		h.metrics.MergeResolutions.WithLabelValues("rejected").Inc()
	}
	h.writeJSON(w, http.StatusOK, map[string]interface{}{"new_order": o, "request_id": requestID})
}

// SystemReset handles POST /system/reset.
func (h *Handler) SystemReset(w http.ResponseWriter, r *http.Request) {
	requestID := logger.GenerateRequestID()

	actor := h.actor(r)
	if actor.ID == uuid.Nil {
		h.writeError(w, requestID, &orders.AuthenticationRequiredError{})
		return
	}
	if !actor.Role.Can(models.CapResetSystem) {
		h.writeError(w, requestID, &orders.PermissionDeniedError{Role: actor.Role, Op: "reset the system"})
		return
	}
	var body struct {
		Message string `json:"message"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		h.writeError(w, requestID, &orders.ValidationError{Field: "body", Msg: "malformed JSON"})
		return
	}

	h.notifier.SystemReset(actor.TenantID, actor.Name, body.Message)
	h.logger.Info("system_reset", "System reset broadcast", requestID, map[string]interface{}{
		"by": actor.Name,
	})
	h.writeJSON(w, http.StatusOK, map[string]interface{}{"reset": true, "request_id": requestID})
}

// actor resolves the acting staff member from request headers. A missing or
// malformed identity yields the zero Staff, which every operation rejects.
func (h *Handler) actor(r *http.Request) models.Staff {
	id, err := uuid.Parse(r.Header.Get("X-Staff-Id"))
	if err != nil {
		return models.Staff{}
	}
	role := models.Role(r.Header.Get("X-Staff-Role"))
	if !role.Valid() {
		return models.Staff{}
	}
	tenant := r.Header.Get("X-Tenant-Id")
	if tenant == "" {
		tenant = h.defaultTenant
	}
	return models.Staff{
		ID:       id,
		Name:     r.Header.Get("X-Staff-Name"),
		Role:     role,
		TenantID: tenant,
	}
}

func (h *Handler) observe(operation string, start time.Time, err error) {
	if h.metrics == nil {
		return
	}
	outcome := "ok"
	if err != nil {
		var coded Coded
		if errors.As(err, &coded) {
			outcome = coded.Code()
		} else {
			outcome = "error"
		}
	}
	h.metrics.MutationsTotal.WithLabelValues(operation, outcome).Inc()
	h.metrics.MutationDuration.WithLabelValues(operation).Observe(time.Since(start).Seconds())
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		h.logger.Error("response_encoding_failed", "Failed to encode response", "", err, nil)
	}
}

// writeError maps a domain error to its HTTP status and reason code.
func (h *Handler) writeError(w http.ResponseWriter, requestID string, err error) {
	status := http.StatusInternalServerError
	code := "INTERNAL_ERROR"

	message := err.Error()

	var coded Coded
	if errors.As(err, &coded) {
		code = coded.Code()
		switch code {
		case orders.ReasonAuthenticationRequired:
			status = http.StatusUnauthorized
		case orders.ReasonPermissionDenied:
			status = http.StatusForbidden
		case orders.ReasonNotFound:
			status = http.StatusNotFound
		case orders.ReasonValidationFailed:
			status = http.StatusBadRequest
		case orders.ReasonInvalidTransition,
			orders.ReasonInsufficientInventory,
			orders.ReasonDuplicateSubmission,
			orders.ReasonConflictingMergeRequest:
			status = http.StatusConflict
		case orders.ReasonTransactionTimeout:
			status = http.StatusGatewayTimeout
		}
	} else {
		// internal detail stays in the log, not in the response
		h.logger.Error("request_failed", "Unexpected error", requestID, err, nil)
		message = "unexpected error, please retry"
	}

	h.writeJSON(w, status, map[string]interface{}{
		"error":      message,
		"code":       code,
		"request_id": requestID,
	})
}

func itemsFromBody(in []orderItemBody) []orders.NewItem {
	out := make([]orders.NewItem, 0, len(in))
	for _, it := range in {
		out = append(out, orders.NewItem{ProductID: it.ProductID, Quantity: it.Quantity, Note: it.Note})
	}
	return out
}
