package services

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"

	domain "github.com/campusbite/api/internal/domain"
	"github.com/campusbite/api/internal/platform/pagination"
	"github.com/campusbite/api/internal/repositories"
)

const (
	eventOrderCreated       = "order.created"
	eventOrderStatusChanged = "order.status.changed"
	eventOrderDelivered     = "order.delivered"
)

var (
	// ErrOrderInvalidInput signals the caller provided invalid arguments.
	ErrOrderInvalidInput = errors.New("orders: invalid input")
	// ErrOrderNotFound indicates the order could not be located.
	ErrOrderNotFound = errors.New("orders: order not found")
	// ErrLoungeNotFound indicates the referenced lounge does not exist.
	ErrLoungeNotFound = errors.New("orders: lounge not found")
	// ErrOrderForbidden indicates the caller lacks rights over the order.
	ErrOrderForbidden = errors.New("orders: access denied")
	// ErrOrderIllegalTransition indicates the requested status move violates the lifecycle graph.
	ErrOrderIllegalTransition = errors.New("orders: illegal status transition")
	// ErrOrderAlreadyDelivered indicates a redemption attempt on an already delivered order.
	ErrOrderAlreadyDelivered = errors.New("orders: order already delivered")
	// ErrOrderInvalidQR indicates the scanned payload failed format or signature checks.
	ErrOrderInvalidQR = errors.New("orders: invalid qr code")
	// ErrOrderStatusConflict indicates the stored status changed under a concurrent writer.
	ErrOrderStatusConflict = errors.New("orders: status changed concurrently")
)

// orderStateTransitions is the authoritative lifecycle graph. Terminal states
// carry no outgoing edges.
var orderStateTransitions = map[OrderStatus][]OrderStatus{
	domain.OrderStatusPending:   {domain.OrderStatusPreparing, domain.OrderStatusCancelled},
	domain.OrderStatusPreparing: {domain.OrderStatusReady, domain.OrderStatusCancelled},
	domain.OrderStatusReady:     {domain.OrderStatusDelivered, domain.OrderStatusCancelled},
	domain.OrderStatusDelivered: {},
	domain.OrderStatusCancelled: {},
}

func transitionAllowed(from, to OrderStatus) bool {
	for _, next := range orderStateTransitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// OrderServiceDeps bundles the collaborators required to construct an order service.
type OrderServiceDeps struct {
	Orders    repositories.OrderRepository
	Payments  repositories.PaymentRepository
	Lounges   repositories.LoungeRepository
	Contracts repositories.ContractRepository
	Pricing   PricingService
	Gateway   CheckoutGateway
	Events    OrderEventPublisher
	Signer    TokenSigner
	Render    ArtifactRenderer

	CommissionRate     float64
	Currency           string
	CheckoutSuccessURL string
	CheckoutCancelURL  string

	Clock       func() time.Time
	IDGenerator func() string
	Logger      func(ctx context.Context, event string, fields map[string]any)
}

type orderService struct {
	orders    repositories.OrderRepository
	payments  repositories.PaymentRepository
	lounges   repositories.LoungeRepository
	contracts repositories.ContractRepository
	pricing   PricingService
	gateway   CheckoutGateway
	events    OrderEventPublisher
	signer    TokenSigner
	render    ArtifactRenderer

	rate       float64
	currency   string
	successURL string
	cancelURL  string

	clock  func() time.Time
	newID  func() string
	logger func(context.Context, string, map[string]any)
}

// NewOrderService wires dependencies into a concrete OrderService implementation.
func NewOrderService(deps OrderServiceDeps) (OrderService, error) {
	if deps.Orders == nil {
		return nil, errors.New("order service: order repository is required")
	}
	if deps.Lounges == nil {
		return nil, errors.New("order service: lounge repository is required")
	}
	if deps.Contracts == nil {
		return nil, errors.New("order service: contract repository is required")
	}
	if deps.Pricing == nil {
		return nil, errors.New("order service: pricing service is required")
	}
	if deps.Signer == nil {
		return nil, errors.New("order service: token signer is required")
	}
	if deps.Render == nil {
		return nil, errors.New("order service: artifact renderer is required")
	}
	if deps.CommissionRate < 0 || deps.CommissionRate >= 1 {
		return nil, errors.New("order service: commission rate must be in [0, 1)")
	}

	clock := deps.Clock
	if clock == nil {
		clock = time.Now
	}

	idGen := deps.IDGenerator
	if idGen == nil {
		idGen = func() string {
			return ulid.Make().String()
		}
	}

	logger := deps.Logger
	if logger == nil {
		logger = func(context.Context, string, map[string]any) {}
	}

	currency := strings.TrimSpace(deps.Currency)
	if currency == "" {
		currency = "usd"
	}

	return &orderService{
		orders:     deps.Orders,
		payments:   deps.Payments,
		lounges:    deps.Lounges,
		contracts:  deps.Contracts,
		pricing:    deps.Pricing,
		gateway:    deps.Gateway,
		events:     deps.Events,
		signer:     deps.Signer,
		render:     deps.Render,
		rate:       deps.CommissionRate,
		currency:   currency,
		successURL: deps.CheckoutSuccessURL,
		cancelURL:  deps.CheckoutCancelURL,
		clock: func() time.Time {
			return clock().UTC()
		},
		newID:  idGen,
		logger: logger,
	}, nil
}

func (s *orderService) CreateOrder(ctx context.Context, cmd CreateOrderCommand) (PlacedOrder, error) {
	userID := strings.TrimSpace(cmd.Actor.UserID)
	if userID == "" {
		return PlacedOrder{}, fmt.Errorf("%w: user id is required", ErrOrderInvalidInput)
	}
	loungeID := strings.TrimSpace(cmd.LoungeID)
	if loungeID == "" {
		return PlacedOrder{}, fmt.Errorf("%w: lounge id is required", ErrOrderInvalidInput)
	}
	if !cmd.PaymentMethod.Valid() {
		return PlacedOrder{}, fmt.Errorf("%w: unknown payment method %q", ErrOrderInvalidInput, cmd.PaymentMethod)
	}

	lounge, err := s.lounges.FindByID(ctx, loungeID)
	if err != nil {
		if isRepoNotFound(err) {
			return PlacedOrder{}, fmt.Errorf("%w: %s", ErrLoungeNotFound, loungeID)
		}
		return PlacedOrder{}, err
	}

	priced, err := s.pricing.PriceCart(ctx, PriceCartCommand{LoungeID: loungeID, Lines: cmd.Lines})
	if err != nil {
		return PlacedOrder{}, err
	}

	now := s.clock()
	orderID := "ord_" + s.newID()
	paymentID := "pay_" + s.newID()
	commissionID := "com_" + s.newID()

	token, err := s.signer.Mint(orderID)
	if err != nil {
		return PlacedOrder{}, fmt.Errorf("orders: mint redemption token: %w", err)
	}
	artifact, err := s.render(token)
	if err != nil {
		return PlacedOrder{}, fmt.Errorf("orders: render redemption artifact: %w", err)
	}

	plan, err := s.strategyFor(cmd.PaymentMethod).Settle(ctx, settlementInput{
		UserID:     userID,
		LoungeID:   loungeID,
		OrderID:    orderID,
		PaymentID:  paymentID,
		ContractID: cmd.ContractID,
		Amount:     priced.TotalAmount,
		Lines:      priced.Lines,
		Now:        now,
	})
	if err != nil {
		return PlacedOrder{}, err
	}

	commissionAmount := int64(math.Round(float64(priced.TotalAmount) * s.rate))

	order := Order{
		ID:             orderID,
		UserID:         userID,
		LoungeID:       loungeID,
		LoungeName:     lounge.Name,
		Lines:          priced.Lines,
		TotalAmount:    priced.TotalAmount,
		CommissionRate: s.rate,
		Status:         domain.OrderStatusPending,
		PaymentID:      paymentID,
		QRToken:        token,
		QRImage:        artifact,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	commission := Commission{
		ID:          commissionID,
		OrderID:     orderID,
		LoungeID:    loungeID,
		OrderAmount: priced.TotalAmount,
		Rate:        s.rate,
		Amount:      commissionAmount,
		CreatedAt:   now,
	}

	result, err := s.orders.CreateSettled(ctx, repositories.CreateOrderRequest{
		Order:      order,
		Payment:    plan.Payment,
		Commission: commission,
		Debit:      plan.Debit,
		Now:        now,
	})
	if err != nil {
		return PlacedOrder{}, s.mapRepositoryError(err)
	}

	s.publishEvent(ctx, eventOrderCreated, result.Order, map[string]string{
		"paymentMethod": string(cmd.PaymentMethod),
	})

	return PlacedOrder{
		Order:       result.Order,
		Payment:     result.Payment,
		Commission:  result.Commission,
		CheckoutURL: plan.CheckoutURL,
	}, nil
}

func (s *orderService) GetOrder(ctx context.Context, query GetOrderQuery) (OrderDetail, error) {
	orderID := strings.TrimSpace(query.OrderID)
	if orderID == "" {
		return OrderDetail{}, fmt.Errorf("%w: order id is required", ErrOrderInvalidInput)
	}

	order, err := s.orders.FindByID(ctx, orderID)
	if err != nil {
		if isRepoNotFound(err) {
			return OrderDetail{}, fmt.Errorf("%w: %s", ErrOrderNotFound, orderID)
		}
		return OrderDetail{}, err
	}

	if err := s.authorizeOrderRead(ctx, query.Actor, order); err != nil {
		return OrderDetail{}, err
	}

	detail := OrderDetail{Order: order}
	if s.payments != nil {
		payment, err := s.payments.FindByOrder(ctx, orderID)
		switch {
		case err == nil:
			detail.Payment = &payment
		case isRepoNotFound(err):
			// Orders always settle with a payment, but a missing row must not
			// hide the order itself.
		default:
			return OrderDetail{}, err
		}
	}
	return detail, nil
}

func (s *orderService) ListOrders(ctx context.Context, query ListOrdersQuery) (OrderPage, error) {
	filter := domain.OrderFilter{Status: query.Status}

	switch query.Actor.Role {
	case domain.RoleAdmin:
		filter.LoungeID = strings.TrimSpace(query.LoungeID)
	case domain.RoleLounge:
		loungeID := strings.TrimSpace(query.LoungeID)
		if loungeID == "" {
			return OrderPage{}, fmt.Errorf("%w: lounge id is required", ErrOrderInvalidInput)
		}
		if err := s.authorizeLoungeOwner(ctx, query.Actor, loungeID); err != nil {
			return OrderPage{}, err
		}
		filter.LoungeID = loungeID
	default:
		filter.UserID = strings.TrimSpace(query.Actor.UserID)
		filter.LoungeID = strings.TrimSpace(query.LoungeID)
		if filter.UserID == "" {
			return OrderPage{}, fmt.Errorf("%w: user id is required", ErrOrderInvalidInput)
		}
	}

	startAfter, err := decodeOrderCursor(query.PageToken)
	if err != nil {
		return OrderPage{}, fmt.Errorf("%w: %s", ErrOrderInvalidInput, err.Error())
	}

	page, err := s.orders.List(ctx, repositories.OrderListQuery{
		Filter:     filter,
		PageSize:   query.PageSize,
		StartAfter: startAfter,
	})
	if err != nil {
		return OrderPage{}, s.mapRepositoryError(err)
	}
	return page, nil
}

func (s *orderService) TransitionStatus(ctx context.Context, cmd TransitionStatusCommand) (Order, error) {
	orderID := strings.TrimSpace(cmd.OrderID)
	if orderID == "" {
		return Order{}, fmt.Errorf("%w: order id is required", ErrOrderInvalidInput)
	}
	if !cmd.Target.Valid() {
		return Order{}, fmt.Errorf("%w: unknown status %q", ErrOrderInvalidInput, cmd.Target)
	}

	order, err := s.orders.FindByID(ctx, orderID)
	if err != nil {
		if isRepoNotFound(err) {
			return Order{}, fmt.Errorf("%w: %s", ErrOrderNotFound, orderID)
		}
		return Order{}, err
	}

	if err := s.authorizeLoungeOwner(ctx, cmd.Actor, order.LoungeID); err != nil {
		return Order{}, err
	}

	if !transitionAllowed(order.Status, cmd.Target) {
		return Order{}, fmt.Errorf("%w: %s -> %s", ErrOrderIllegalTransition, order.Status, cmd.Target)
	}

	updated, err := s.orders.UpdateStatus(ctx, repositories.OrderStatusUpdate{
		OrderID: orderID,
		From:    order.Status,
		To:      cmd.Target,
		Now:     s.clock(),
	})
	if err != nil {
		return Order{}, s.mapRepositoryError(err)
	}

	eventType := eventOrderStatusChanged
	if updated.Status == domain.OrderStatusDelivered {
		eventType = eventOrderDelivered
	}
	s.publishEvent(ctx, eventType, updated, map[string]string{
		"previousStatus": string(order.Status),
	})

	return updated, nil
}

func (s *orderService) RedeemQR(ctx context.Context, cmd RedeemQRCommand) (Order, error) {
	payload := strings.TrimSpace(cmd.Payload)
	if payload == "" {
		return Order{}, fmt.Errorf("%w: payload is required", ErrOrderInvalidQR)
	}

	// Format and signature checks reject forgeries before any store access.
	orderID, err := s.signer.Verify(payload)
	if err != nil {
		return Order{}, fmt.Errorf("%w: %s", ErrOrderInvalidQR, err.Error())
	}

	order, err := s.orders.FindByID(ctx, orderID)
	if err != nil {
		if isRepoNotFound(err) {
			return Order{}, fmt.Errorf("%w: %s", ErrOrderNotFound, orderID)
		}
		return Order{}, err
	}

	if err := s.authorizeLoungeOwner(ctx, cmd.Actor, order.LoungeID); err != nil {
		return Order{}, err
	}

	switch order.Status {
	case domain.OrderStatusDelivered:
		return Order{}, fmt.Errorf("%w: %s", ErrOrderAlreadyDelivered, orderID)
	case domain.OrderStatusCancelled:
		return Order{}, fmt.Errorf("%w: order %s is cancelled", ErrOrderIllegalTransition, orderID)
	}

	// The repository transitions only when the stored status still matches, so
	// two concurrent scans cannot both succeed.
	updated, err := s.orders.UpdateStatus(ctx, repositories.OrderStatusUpdate{
		OrderID: orderID,
		From:    order.Status,
		To:      domain.OrderStatusDelivered,
		Now:     s.clock(),
	})
	if err != nil {
		mapped := s.mapRepositoryError(err)
		if errors.Is(mapped, ErrOrderStatusConflict) {
			return Order{}, fmt.Errorf("%w: %s", ErrOrderAlreadyDelivered, orderID)
		}
		return Order{}, mapped
	}

	s.publishEvent(ctx, eventOrderDelivered, updated, map[string]string{
		"redeemedBy": strings.TrimSpace(cmd.Actor.UserID),
	})

	return updated, nil
}

func (s *orderService) strategyFor(method PaymentMethod) settlementStrategy {
	if method == domain.PaymentMethodGateway {
		return gatewaySettlement{
			gateway:    s.gateway,
			currency:   s.currency,
			successURL: s.successURL,
			cancelURL:  s.cancelURL,
		}
	}
	return contractSettlement{contracts: s.contracts}
}

func (s *orderService) authorizeOrderRead(ctx context.Context, actor Actor, order Order) error {
	userID := strings.TrimSpace(actor.UserID)
	if userID != "" && userID == order.UserID {
		return nil
	}
	return s.authorizeLoungeOwner(ctx, actor, order.LoungeID)
}

// authorizeLoungeOwner admits admins and the owner of the given lounge.
func (s *orderService) authorizeLoungeOwner(ctx context.Context, actor Actor, loungeID string) error {
	if actor.Role == domain.RoleAdmin {
		return nil
	}
	if actor.Role != domain.RoleLounge {
		return ErrOrderForbidden
	}
	lounge, err := s.lounges.FindByID(ctx, strings.TrimSpace(loungeID))
	if err != nil {
		if isRepoNotFound(err) {
			return fmt.Errorf("%w: %s", ErrLoungeNotFound, loungeID)
		}
		return err
	}
	if lounge.OwnerID != strings.TrimSpace(actor.UserID) {
		return ErrOrderForbidden
	}
	return nil
}

func (s *orderService) mapRepositoryError(err error) error {
	if err == nil {
		return nil
	}

	var orderErr *repositories.OrderError
	if errors.As(err, &orderErr) {
		switch orderErr.Code {
		case repositories.OrderErrorContractNotFound, repositories.OrderErrorContractUnusable:
			return fmt.Errorf("%w: %s", ErrSettlementNoContract, orderErr.Message)
		case repositories.OrderErrorInsufficientBalance:
			return fmt.Errorf("%w: %s", ErrSettlementInsufficientBalance, orderErr.Message)
		case repositories.OrderErrorStatusConflict:
			return fmt.Errorf("%w: %s", ErrOrderStatusConflict, orderErr.Message)
		}
	}

	if isRepoNotFound(err) {
		return fmt.Errorf("%w: %s", ErrOrderNotFound, err.Error())
	}
	return err
}

func (s *orderService) publishEvent(ctx context.Context, eventType string, order Order, metadata map[string]string) {
	if s.events == nil {
		return
	}
	_, err := s.events.PublishOrderEvent(ctx, domain.OrderEvent{
		Type:       eventType,
		OrderID:    order.ID,
		UserID:     order.UserID,
		LoungeID:   order.LoungeID,
		Status:     order.Status,
		OccurredAt: order.UpdatedAt,
		Metadata:   metadata,
	})
	if err != nil {
		s.logger(ctx, "order_event_publish_failed", map[string]any{
			"eventType": eventType,
			"orderId":   order.ID,
			"error":     err.Error(),
		})
	}
}

func isRepoNotFound(err error) bool {
	var repoErr repositories.RepositoryError
	return errors.As(err, &repoErr) && repoErr.IsNotFound()
}

func decodeOrderCursor(token string) ([]any, error) {
	cursor, err := pagination.DecodeToken(token)
	if err != nil {
		return nil, err
	}
	if len(cursor.StartAfter) == 0 {
		return nil, nil
	}
	if len(cursor.StartAfter) != 2 {
		return nil, pagination.ErrInvalidPageToken
	}
	rawCreated, ok := cursor.StartAfter[0].(string)
	if !ok {
		return nil, pagination.ErrInvalidPageToken
	}
	createdAt, err := time.Parse(time.RFC3339Nano, rawCreated)
	if err != nil {
		return nil, pagination.ErrInvalidPageToken
	}
	id, ok := cursor.StartAfter[1].(string)
	if !ok {
		return nil, pagination.ErrInvalidPageToken
	}
	return []any{createdAt, id}, nil
}
