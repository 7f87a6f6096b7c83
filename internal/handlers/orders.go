package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	domain "github.com/campusbite/api/internal/domain"
	"github.com/campusbite/api/internal/platform/auth"
	"github.com/campusbite/api/internal/platform/httpx"
	"github.com/campusbite/api/internal/platform/pagination"
	"github.com/campusbite/api/internal/services"
)

const (
	defaultOrderPageSize = 20
	maxOrderPageSize     = 100

	maxCreateOrderBodySize  = 16 * 1024
	maxStatusUpdateBodySize = 4 * 1024
	maxVerifyQRBodySize     = 4 * 1024

	// QR redemption is the only endpoint exposed to handheld scanners, so it
	// carries its own per-caller throttle.
	qrScanLimit  = 30
	qrScanWindow = time.Minute
)

type createOrderRequest struct {
	LoungeID      string                 `json:"lounge_id"`
	Items         []createOrderItemInput `json:"items"`
	PaymentMethod string                 `json:"payment_method"`
	ContractID    string                 `json:"contract_id"`
}

type createOrderItemInput struct {
	ItemID   string `json:"item_id"`
	Quantity int    `json:"quantity"`
}

type updateOrderStatusRequest struct {
	Status string `json:"status"`
}

type verifyQRRequest struct {
	QRCode string `json:"qr_code"`
}

// OrderHandlers exposes the order settlement endpoints for authenticated callers.
type OrderHandlers struct {
	authn   *auth.Authenticator
	orders  services.OrderService
	scanLim rateLimiter
}

// NewOrderHandlers constructs a new OrderHandlers instance.
func NewOrderHandlers(authn *auth.Authenticator, orders services.OrderService) *OrderHandlers {
	return &OrderHandlers{
		authn:   authn,
		orders:  orders,
		scanLim: newSimpleRateLimiter(qrScanLimit, qrScanWindow, nil),
	}
}

// Routes registers the /orders endpoints.
func (h *OrderHandlers) Routes(r chi.Router) {
	if r == nil {
		return
	}
	if h.authn != nil {
		r.Use(h.authn.RequireFirebaseAuth())
	}
	r.Post("/", h.createOrder)
	r.Get("/", h.listOrders)
	r.Get("/{orderID}", h.getOrder)
	r.Put("/{orderID}/status", h.updateStatus)
	r.Post("/verify-qr", h.verifyQR)
}

func (h *OrderHandlers) createOrder(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.orders == nil {
		httpx.WriteError(ctx, w, httpx.NewError("order_service_unavailable", "order service unavailable", http.StatusServiceUnavailable))
		return
	}

	actor, ok := h.requireActor(ctx, w)
	if !ok {
		return
	}

	body, err := readLimitedBody(r, maxCreateOrderBodySize)
	if err != nil {
		writeBodyError(ctx, w, err)
		return
	}

	var req createOrderRequest
	if err := json.Unmarshal(body, &req); err != nil {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "invalid JSON body", http.StatusBadRequest))
		return
	}

	lines := make([]services.CartLine, 0, len(req.Items))
	for _, item := range req.Items {
		lines = append(lines, services.CartLine{
			FoodItemID: strings.TrimSpace(item.ItemID),
			Quantity:   item.Quantity,
		})
	}

	placed, err := h.orders.CreateOrder(ctx, services.CreateOrderCommand{
		Actor:         actor,
		LoungeID:      strings.TrimSpace(req.LoungeID),
		Lines:         lines,
		PaymentMethod: domain.PaymentMethod(strings.TrimSpace(strings.ToLower(req.PaymentMethod))),
		ContractID:    strings.TrimSpace(req.ContractID),
	})
	if err != nil {
		writeOrderError(ctx, w, err)
		return
	}

	payload := placedOrderResponse{
		Order:       buildOrderPayload(placed.Order),
		Payment:     buildPaymentPayload(placed.Payment),
		Commission:  buildCommissionPayload(placed.Commission),
		CheckoutURL: placed.CheckoutURL,
	}
	writeJSONResponse(w, http.StatusCreated, payload)
}

func (h *OrderHandlers) listOrders(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.orders == nil {
		httpx.WriteError(ctx, w, httpx.NewError("order_service_unavailable", "order service unavailable", http.StatusServiceUnavailable))
		return
	}

	actor, ok := h.requireActor(ctx, w)
	if !ok {
		return
	}

	params, err := pagination.FromRequest(r, pagination.Options{
		DefaultPageSize: defaultOrderPageSize,
		MaxPageSize:     maxOrderPageSize,
	})
	if err != nil {
		switch {
		case errors.Is(err, pagination.ErrInvalidPageSize):
			httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "pageSize must be a positive integer", http.StatusBadRequest))
		case errors.Is(err, pagination.ErrInvalidPageToken):
			httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "pageToken is malformed", http.StatusBadRequest))
		default:
			httpx.WriteError(ctx, w, httpx.NewError("invalid_request", err.Error(), http.StatusBadRequest))
		}
		return
	}

	query := services.ListOrdersQuery{
		Actor:     actor,
		LoungeID:  strings.TrimSpace(r.URL.Query().Get("loungeId")),
		PageSize:  params.PageSize,
		PageToken: params.PageToken,
	}

	if raw := strings.TrimSpace(r.URL.Query().Get("status")); raw != "" {
		status := domain.OrderStatus(strings.ToLower(raw))
		if !status.Valid() {
			httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "status must be a valid order status", http.StatusBadRequest))
			return
		}
		query.Status = &status
	}

	page, err := h.orders.ListOrders(ctx, query)
	if err != nil {
		writeOrderError(ctx, w, err)
		return
	}

	items := make([]orderSummaryPayload, 0, len(page.Orders))
	for _, order := range page.Orders {
		items = append(items, buildOrderSummary(order))
	}

	writeJSONResponse(w, http.StatusOK, orderListResponse{
		Items:         items,
		NextPageToken: strings.TrimSpace(page.NextPageToken),
	})
}

func (h *OrderHandlers) getOrder(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.orders == nil {
		httpx.WriteError(ctx, w, httpx.NewError("order_service_unavailable", "order service unavailable", http.StatusServiceUnavailable))
		return
	}

	actor, ok := h.requireActor(ctx, w)
	if !ok {
		return
	}

	orderID := strings.TrimSpace(chi.URLParam(r, "orderID"))
	if orderID == "" {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "order id is required", http.StatusBadRequest))
		return
	}

	detail, err := h.orders.GetOrder(ctx, services.GetOrderQuery{Actor: actor, OrderID: orderID})
	if err != nil {
		writeOrderError(ctx, w, err)
		return
	}

	payload := orderDetailResponse{Order: buildOrderPayload(detail.Order)}
	if detail.Payment != nil {
		paymentPayload := buildPaymentPayload(*detail.Payment)
		payload.Payment = &paymentPayload
	}
	writeJSONResponse(w, http.StatusOK, payload)
}

func (h *OrderHandlers) updateStatus(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.orders == nil {
		httpx.WriteError(ctx, w, httpx.NewError("order_service_unavailable", "order service unavailable", http.StatusServiceUnavailable))
		return
	}

	actor, ok := h.requireActor(ctx, w)
	if !ok {
		return
	}

	orderID := strings.TrimSpace(chi.URLParam(r, "orderID"))
	if orderID == "" {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "order id is required", http.StatusBadRequest))
		return
	}

	body, err := readLimitedBody(r, maxStatusUpdateBodySize)
	if err != nil {
		writeBodyError(ctx, w, err)
		return
	}

	var req updateOrderStatusRequest
	if err := json.Unmarshal(body, &req); err != nil {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "invalid JSON body", http.StatusBadRequest))
		return
	}

	target := domain.OrderStatus(strings.TrimSpace(strings.ToLower(req.Status)))
	if !target.Valid() {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "status must be a valid order status", http.StatusBadRequest))
		return
	}

	order, err := h.orders.TransitionStatus(ctx, services.TransitionStatusCommand{
		Actor:   actor,
		OrderID: orderID,
		Target:  target,
	})
	if err != nil {
		writeOrderError(ctx, w, err)
		return
	}

	writeJSONResponse(w, http.StatusOK, orderResponse{Order: buildOrderPayload(order)})
}

func (h *OrderHandlers) verifyQR(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.orders == nil {
		httpx.WriteError(ctx, w, httpx.NewError("order_service_unavailable", "order service unavailable", http.StatusServiceUnavailable))
		return
	}

	actor, ok := h.requireActor(ctx, w)
	if !ok {
		return
	}

	if h.scanLim != nil && !h.scanLim.Allow(actor.UserID) {
		httpx.WriteError(ctx, w, httpx.NewError("rate_limited", "too many redemption attempts", http.StatusTooManyRequests))
		return
	}

	body, err := readLimitedBody(r, maxVerifyQRBodySize)
	if err != nil {
		writeBodyError(ctx, w, err)
		return
	}

	var req verifyQRRequest
	if err := json.Unmarshal(body, &req); err != nil {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "invalid JSON body", http.StatusBadRequest))
		return
	}

	payload := strings.TrimSpace(req.QRCode)
	if payload == "" {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "qr_code is required", http.StatusBadRequest))
		return
	}

	order, err := h.orders.RedeemQR(ctx, services.RedeemQRCommand{Actor: actor, Payload: payload})
	if err != nil {
		writeOrderError(ctx, w, err)
		return
	}

	writeJSONResponse(w, http.StatusOK, orderResponse{Order: buildOrderPayload(order)})
}

func (h *OrderHandlers) requireActor(ctx context.Context, w http.ResponseWriter) (services.Actor, bool) {
	identity, ok := auth.IdentityFromContext(ctx)
	if !ok || identity == nil || strings.TrimSpace(identity.UID) == "" {
		httpx.WriteError(ctx, w, httpx.NewError("unauthenticated", "authentication required", http.StatusUnauthorized))
		return services.Actor{}, false
	}
	return services.Actor{
		UserID: strings.TrimSpace(identity.UID),
		Role:   roleFromIdentity(identity),
	}, true
}

// roleFromIdentity picks the most privileged role carried by the token.
func roleFromIdentity(identity *auth.Identity) domain.Role {
	switch {
	case identity.HasRole(auth.RoleAdmin):
		return domain.RoleAdmin
	case identity.HasRole(auth.RoleLounge):
		return domain.RoleLounge
	default:
		return domain.RoleUser
	}
}

func writeBodyError(ctx context.Context, w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, errBodyTooLarge):
		httpx.WriteError(ctx, w, httpx.NewError("payload_too_large", "request body exceeds allowed size", http.StatusRequestEntityTooLarge))
	case errors.Is(err, errEmptyBody):
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "request body is required", http.StatusBadRequest))
	default:
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", err.Error(), http.StatusBadRequest))
	}
}

type orderListResponse struct {
	Items         []orderSummaryPayload `json:"items"`
	NextPageToken string                `json:"next_page_token,omitempty"`
}

type orderSummaryPayload struct {
	ID          string `json:"id"`
	LoungeID    string `json:"lounge_id"`
	LoungeName  string `json:"lounge_name"`
	Status      string `json:"status"`
	TotalAmount int64  `json:"total_amount"`
	CreatedAt   string `json:"created_at"`
}

type orderResponse struct {
	Order orderPayload `json:"order"`
}

type orderDetailResponse struct {
	Order   orderPayload    `json:"order"`
	Payment *paymentPayload `json:"payment,omitempty"`
}

type placedOrderResponse struct {
	Order       orderPayload      `json:"order"`
	Payment     paymentPayload    `json:"payment"`
	Commission  commissionPayload `json:"commission"`
	CheckoutURL string            `json:"checkout_url,omitempty"`
}

type orderPayload struct {
	ID             string             `json:"id"`
	UserID         string             `json:"user_id"`
	LoungeID       string             `json:"lounge_id"`
	LoungeName     string             `json:"lounge_name"`
	Items          []orderLinePayload `json:"items"`
	TotalAmount    int64              `json:"total_amount"`
	CommissionRate float64            `json:"commission_rate"`
	Status         string             `json:"status"`
	PaymentID      string             `json:"payment_id,omitempty"`
	QRToken        string             `json:"qr_token,omitempty"`
	QRImage        string             `json:"qr_image,omitempty"`
	CreatedAt      string             `json:"created_at"`
	UpdatedAt      string             `json:"updated_at,omitempty"`
	DeliveredAt    string             `json:"delivered_at,omitempty"`
}

type orderLinePayload struct {
	FoodItemID       string `json:"food_item_id"`
	Name             string `json:"name"`
	UnitPrice        int64  `json:"unit_price"`
	Quantity         int    `json:"quantity"`
	Subtotal         int64  `json:"subtotal"`
	EstimatedMinutes int    `json:"estimated_minutes,omitempty"`
}

type paymentPayload struct {
	ID          string `json:"id"`
	OrderID     string `json:"order_id"`
	Method      string `json:"method"`
	Status      string `json:"status"`
	Amount      int64  `json:"amount"`
	ContractID  string `json:"contract_id,omitempty"`
	GatewayRef  string `json:"gateway_ref,omitempty"`
	CreatedAt   string `json:"created_at"`
	CompletedAt string `json:"completed_at,omitempty"`
}

type commissionPayload struct {
	ID          string  `json:"id"`
	OrderID     string  `json:"order_id"`
	OrderAmount int64   `json:"order_amount"`
	Rate        float64 `json:"rate"`
	Amount      int64   `json:"amount"`
}

func buildOrderSummary(order services.Order) orderSummaryPayload {
	return orderSummaryPayload{
		ID:          strings.TrimSpace(order.ID),
		LoungeID:    strings.TrimSpace(order.LoungeID),
		LoungeName:  strings.TrimSpace(order.LoungeName),
		Status:      strings.TrimSpace(string(order.Status)),
		TotalAmount: order.TotalAmount,
		CreatedAt:   formatTime(order.CreatedAt),
	}
}

func buildOrderPayload(order services.Order) orderPayload {
	payload := orderPayload{
		ID:             strings.TrimSpace(order.ID),
		UserID:         strings.TrimSpace(order.UserID),
		LoungeID:       strings.TrimSpace(order.LoungeID),
		LoungeName:     strings.TrimSpace(order.LoungeName),
		Items:          make([]orderLinePayload, 0, len(order.Lines)),
		TotalAmount:    order.TotalAmount,
		CommissionRate: order.CommissionRate,
		Status:         strings.TrimSpace(string(order.Status)),
		PaymentID:      strings.TrimSpace(order.PaymentID),
		QRToken:        strings.TrimSpace(order.QRToken),
		QRImage:        strings.TrimSpace(order.QRImage),
		CreatedAt:      formatTime(order.CreatedAt),
		UpdatedAt:      formatTime(order.UpdatedAt),
		DeliveredAt:    formatTime(pointerTime(order.DeliveredAt)),
	}

	for _, line := range order.Lines {
		payload.Items = append(payload.Items, orderLinePayload{
			FoodItemID:       strings.TrimSpace(line.FoodItemID),
			Name:             strings.TrimSpace(line.Name),
			UnitPrice:        line.UnitPrice,
			Quantity:         line.Quantity,
			Subtotal:         line.Subtotal,
			EstimatedMinutes: line.EstimatedMinutes,
		})
	}

	return payload
}

func buildPaymentPayload(payment services.Payment) paymentPayload {
	result := paymentPayload{
		ID:          strings.TrimSpace(payment.ID),
		OrderID:     strings.TrimSpace(payment.OrderID),
		Method:      strings.TrimSpace(string(payment.Method)),
		Status:      strings.TrimSpace(string(payment.Status)),
		Amount:      payment.Amount,
		CreatedAt:   formatTime(payment.CreatedAt),
		CompletedAt: formatTime(pointerTime(payment.CompletedAt)),
	}
	if payment.ContractID != nil {
		result.ContractID = strings.TrimSpace(*payment.ContractID)
	}
	if payment.GatewayRef != nil {
		result.GatewayRef = strings.TrimSpace(*payment.GatewayRef)
	}
	return result
}

func buildCommissionPayload(commission services.Commission) commissionPayload {
	return commissionPayload{
		ID:          strings.TrimSpace(commission.ID),
		OrderID:     strings.TrimSpace(commission.OrderID),
		OrderAmount: commission.OrderAmount,
		Rate:        commission.Rate,
		Amount:      commission.Amount,
	}
}

func writeOrderError(ctx context.Context, w http.ResponseWriter, err error) {
	if err == nil {
		return
	}
	switch {
	case errors.Is(err, services.ErrOrderInvalidInput),
		errors.Is(err, services.ErrPricingInvalidInput),
		errors.Is(err, services.ErrPricingItemUnavailable),
		errors.Is(err, services.ErrSettlementNoContract),
		errors.Is(err, services.ErrSettlementInsufficientBalance),
		errors.Is(err, services.ErrOrderIllegalTransition):
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", err.Error(), http.StatusBadRequest))
	case errors.Is(err, services.ErrOrderInvalidQR):
		httpx.WriteError(ctx, w, httpx.NewError("invalid_qr", "QR payload failed verification", http.StatusBadRequest))
	case errors.Is(err, services.ErrOrderNotFound),
		errors.Is(err, services.ErrLoungeNotFound),
		errors.Is(err, services.ErrPricingItemNotFound):
		httpx.WriteError(ctx, w, httpx.NewError("order_not_found", err.Error(), http.StatusNotFound))
	case errors.Is(err, services.ErrOrderForbidden):
		httpx.WriteError(ctx, w, httpx.NewError("order_forbidden", "caller may not act on this order", http.StatusForbidden))
	case errors.Is(err, services.ErrOrderAlreadyDelivered),
		errors.Is(err, services.ErrOrderStatusConflict):
		httpx.WriteError(ctx, w, httpx.NewError("order_conflict", err.Error(), http.StatusConflict))
	default:
		httpx.WriteError(ctx, w, httpx.NewError("order_error", "failed to process order request", http.StatusInternalServerError))
	}
}
