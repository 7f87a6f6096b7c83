package services

import (
	"context"
	"errors"
	"testing"
	"time"

	domain "github.com/campusbite/api/internal/domain"
	"github.com/campusbite/api/internal/payments"
	"github.com/campusbite/api/internal/qr"
	"github.com/campusbite/api/internal/repositories"
)

type stubRepoError struct {
	notFound    bool
	conflict    bool
	unavailable bool
	msg         string
}

func (e *stubRepoError) Error() string       { return e.msg }
func (e *stubRepoError) IsNotFound() bool    { return e.notFound }
func (e *stubRepoError) IsConflict() bool    { return e.conflict }
func (e *stubRepoError) IsUnavailable() bool { return e.unavailable }

type stubFoodItemRepo struct {
	items map[string]domain.FoodItem
}

func (s *stubFoodItemRepo) FindByID(_ context.Context, itemID string) (domain.FoodItem, error) {
	item, ok := s.items[itemID]
	if !ok {
		return domain.FoodItem{}, &stubRepoError{notFound: true, msg: "item " + itemID + " not found"}
	}
	return item, nil
}

func (s *stubFoodItemRepo) ListByIDs(ctx context.Context, itemIDs []string) ([]domain.FoodItem, error) {
	items := make([]domain.FoodItem, 0, len(itemIDs))
	for _, id := range itemIDs {
		item, err := s.FindByID(ctx, id)
		if err != nil {
			return nil, err
		}
		items = append(items, item)
	}
	return items, nil
}

type stubLoungeRepo struct {
	lounges map[string]domain.Lounge
}

func (s *stubLoungeRepo) FindByID(_ context.Context, loungeID string) (domain.Lounge, error) {
	lounge, ok := s.lounges[loungeID]
	if !ok {
		return domain.Lounge{}, &stubRepoError{notFound: true, msg: "lounge " + loungeID + " not found"}
	}
	return lounge, nil
}

type stubContractRepo struct {
	findFn func(ctx context.Context, userID, loungeID string) (domain.Contract, error)
}

func (s *stubContractRepo) FindForUser(ctx context.Context, userID, loungeID string) (domain.Contract, error) {
	if s.findFn != nil {
		return s.findFn(ctx, userID, loungeID)
	}
	return domain.Contract{}, repositories.NewOrderError(repositories.OrderErrorContractNotFound, "no contract", nil)
}

type stubOrderRepo struct {
	createFn func(ctx context.Context, req repositories.CreateOrderRequest) (repositories.CreateOrderResult, error)
	findFn   func(ctx context.Context, orderID string) (domain.Order, error)
	listFn   func(ctx context.Context, query repositories.OrderListQuery) (domain.OrderPage, error)
	updateFn func(ctx context.Context, req repositories.OrderStatusUpdate) (domain.Order, error)
}

func (s *stubOrderRepo) CreateSettled(ctx context.Context, req repositories.CreateOrderRequest) (repositories.CreateOrderResult, error) {
	if s.createFn != nil {
		return s.createFn(ctx, req)
	}
	return repositories.CreateOrderResult{Order: req.Order, Payment: req.Payment, Commission: req.Commission}, nil
}

func (s *stubOrderRepo) FindByID(ctx context.Context, orderID string) (domain.Order, error) {
	if s.findFn != nil {
		return s.findFn(ctx, orderID)
	}
	return domain.Order{}, &stubRepoError{notFound: true, msg: "order not found"}
}

func (s *stubOrderRepo) List(ctx context.Context, query repositories.OrderListQuery) (domain.OrderPage, error) {
	if s.listFn != nil {
		return s.listFn(ctx, query)
	}
	return domain.OrderPage{}, nil
}

func (s *stubOrderRepo) UpdateStatus(ctx context.Context, req repositories.OrderStatusUpdate) (domain.Order, error) {
	if s.updateFn != nil {
		return s.updateFn(ctx, req)
	}
	return domain.Order{}, errors.New("not implemented")
}

type stubPaymentRepo struct {
	findByOrderFn func(ctx context.Context, orderID string) (domain.Payment, error)
}

func (s *stubPaymentRepo) FindByID(_ context.Context, paymentID string) (domain.Payment, error) {
	return domain.Payment{}, &stubRepoError{notFound: true, msg: "payment not found"}
}

func (s *stubPaymentRepo) FindByOrder(ctx context.Context, orderID string) (domain.Payment, error) {
	if s.findByOrderFn != nil {
		return s.findByOrderFn(ctx, orderID)
	}
	return domain.Payment{}, &stubRepoError{notFound: true, msg: "payment not found"}
}

type captureOrderEvents struct {
	events []domain.OrderEvent
	err    error
}

func (c *captureOrderEvents) PublishOrderEvent(_ context.Context, event domain.OrderEvent) (string, error) {
	if c.err != nil {
		return "", c.err
	}
	c.events = append(c.events, event)
	return "msg-1", nil
}

type stubGateway struct {
	createFn func(ctx context.Context, paymentCtx payments.PaymentContext, req payments.CheckoutSessionRequest) (payments.CheckoutSession, error)
}

func (s *stubGateway) CreateCheckoutSession(ctx context.Context, paymentCtx payments.PaymentContext, req payments.CheckoutSessionRequest) (payments.CheckoutSession, error) {
	if s.createFn != nil {
		return s.createFn(ctx, paymentCtx, req)
	}
	return payments.CheckoutSession{}, errors.New("not implemented")
}

func testSigner(t *testing.T) *qr.Signer {
	t.Helper()
	signer, err := qr.NewSigner("order-service-test-secret")
	if err != nil {
		t.Fatalf("new signer: %v", err)
	}
	return signer
}

func testRenderer(payload string) (string, error) {
	return "data:image/png;base64,TEST", nil
}

type orderServiceFixture struct {
	orders    *stubOrderRepo
	paymentsR *stubPaymentRepo
	lounges   *stubLoungeRepo
	contracts *stubContractRepo
	foodItems *stubFoodItemRepo
	gateway   *stubGateway
	events    *captureOrderEvents
	signer    *qr.Signer
	now       time.Time
}

func newOrderServiceFixture(t *testing.T) *orderServiceFixture {
	t.Helper()
	return &orderServiceFixture{
		orders:    &stubOrderRepo{},
		paymentsR: &stubPaymentRepo{},
		lounges: &stubLoungeRepo{lounges: map[string]domain.Lounge{
			"lounge-1": {ID: "lounge-1", Name: "North Lounge", OwnerID: "owner-1"},
		}},
		contracts: &stubContractRepo{},
		foodItems: &stubFoodItemRepo{items: map[string]domain.FoodItem{
			"item-a": {ID: "item-a", LoungeID: "lounge-1", Name: "Toast", Price: 50, IsAvailable: true, EstimatedMinutes: 5},
			"item-b": {ID: "item-b", LoungeID: "lounge-1", Name: "Juice", Price: 30, IsAvailable: true, EstimatedMinutes: 2},
		}},
		gateway: &stubGateway{},
		events:  &captureOrderEvents{},
		signer:  testSigner(t),
		now:     time.Date(2025, 6, 2, 12, 0, 0, 0, time.UTC),
	}
}

func (f *orderServiceFixture) service(t *testing.T) OrderService {
	t.Helper()
	pricing, err := NewPricingService(PricingServiceDeps{FoodItems: f.foodItems})
	if err != nil {
		t.Fatalf("new pricing service: %v", err)
	}
	svc, err := NewOrderService(OrderServiceDeps{
		Orders:         f.orders,
		Payments:       f.paymentsR,
		Lounges:        f.lounges,
		Contracts:      f.contracts,
		Pricing:        pricing,
		Gateway:        f.gateway,
		Events:         f.events,
		Signer:         f.signer,
		Render:         testRenderer,
		CommissionRate: 0.05,
		Clock:          func() time.Time { return f.now },
		IDGenerator:    func() string { return "000TEST" },
	})
	if err != nil {
		t.Fatalf("new order service: %v", err)
	}
	return svc
}

func standardCart() []CartLine {
	return []CartLine{
		{FoodItemID: "item-a", Quantity: 2},
		{FoodItemID: "item-b", Quantity: 1},
	}
}

func TestCreateOrderContractSettlement(t *testing.T) {
	f := newOrderServiceFixture(t)
	f.contracts.findFn = func(_ context.Context, userID, loungeID string) (domain.Contract, error) {
		if userID != "user-1" || loungeID != "lounge-1" {
			t.Fatalf("unexpected contract lookup %s/%s", userID, loungeID)
		}
		return domain.Contract{ID: "ctr_1", UserID: userID, LoungeID: loungeID, RemainingBalance: 200, IsActive: true}, nil
	}

	var captured repositories.CreateOrderRequest
	f.orders.createFn = func(_ context.Context, req repositories.CreateOrderRequest) (repositories.CreateOrderResult, error) {
		captured = req
		return repositories.CreateOrderResult{Order: req.Order, Payment: req.Payment, Commission: req.Commission}, nil
	}

	svc := f.service(t)
	placed, err := svc.CreateOrder(context.Background(), CreateOrderCommand{
		Actor:         Actor{UserID: "user-1", Role: domain.RoleUser},
		LoungeID:      "lounge-1",
		Lines:         standardCart(),
		PaymentMethod: domain.PaymentMethodContract,
	})
	if err != nil {
		t.Fatalf("create order: %v", err)
	}

	if captured.Order.TotalAmount != 130 {
		t.Fatalf("expected total 130, got %d", captured.Order.TotalAmount)
	}
	if captured.Commission.Amount != 7 {
		t.Fatalf("expected commission 7 (6.5 rounded half up), got %d", captured.Commission.Amount)
	}
	if captured.Commission.Rate != 0.05 || captured.Commission.OrderAmount != 130 {
		t.Fatalf("unexpected commission row %+v", captured.Commission)
	}
	if captured.Debit == nil || captured.Debit.ContractID != "ctr_1" || captured.Debit.Amount != 130 {
		t.Fatalf("unexpected debit %+v", captured.Debit)
	}
	if captured.Payment.Status != domain.PaymentStatusCompleted || captured.Payment.Method != domain.PaymentMethodContract {
		t.Fatalf("unexpected payment %+v", captured.Payment)
	}
	if captured.Payment.ContractID == nil || *captured.Payment.ContractID != "ctr_1" {
		t.Fatalf("expected payment linked to contract, got %+v", captured.Payment.ContractID)
	}
	if captured.Order.Status != domain.OrderStatusPending {
		t.Fatalf("expected pending order, got %s", captured.Order.Status)
	}
	if captured.Order.LoungeName != "North Lounge" {
		t.Fatalf("expected lounge name snapshot, got %q", captured.Order.LoungeName)
	}
	if len(captured.Order.Lines) != 2 || captured.Order.Lines[0].Subtotal != 100 || captured.Order.Lines[1].Subtotal != 30 {
		t.Fatalf("unexpected priced lines %+v", captured.Order.Lines)
	}

	orderID, err := f.signer.Verify(placed.Order.QRToken)
	if err != nil {
		t.Fatalf("minted token failed verification: %v", err)
	}
	if orderID != placed.Order.ID {
		t.Fatalf("token bound to %s, expected %s", orderID, placed.Order.ID)
	}
	if placed.Order.QRImage == "" {
		t.Fatalf("expected rendered redemption artifact")
	}
	if placed.CheckoutURL != "" {
		t.Fatalf("contract settlement must not return a checkout url")
	}

	if len(f.events.events) != 1 || f.events.events[0].Type != "order.created" {
		t.Fatalf("expected order.created event, got %+v", f.events.events)
	}
}

func TestCreateOrderInsufficientBalanceLeavesNoWrites(t *testing.T) {
	f := newOrderServiceFixture(t)
	f.contracts.findFn = func(context.Context, string, string) (domain.Contract, error) {
		return domain.Contract{ID: "ctr_1", RemainingBalance: 100, IsActive: true}, nil
	}
	created := false
	f.orders.createFn = func(context.Context, repositories.CreateOrderRequest) (repositories.CreateOrderResult, error) {
		created = true
		return repositories.CreateOrderResult{}, nil
	}

	svc := f.service(t)
	_, err := svc.CreateOrder(context.Background(), CreateOrderCommand{
		Actor:         Actor{UserID: "user-1", Role: domain.RoleUser},
		LoungeID:      "lounge-1",
		Lines:         standardCart(),
		PaymentMethod: domain.PaymentMethodContract,
	})
	if !errors.Is(err, ErrSettlementInsufficientBalance) {
		t.Fatalf("expected insufficient balance, got %v", err)
	}
	if created {
		t.Fatalf("expected no persistence after failed settlement")
	}
	if len(f.events.events) != 0 {
		t.Fatalf("expected no events, got %+v", f.events.events)
	}
}

func TestCreateOrderGatewayRecordsPendingPayment(t *testing.T) {
	f := newOrderServiceFixture(t)
	f.gateway.createFn = func(_ context.Context, _ payments.PaymentContext, req payments.CheckoutSessionRequest) (payments.CheckoutSession, error) {
		if req.Amount != 130 {
			t.Fatalf("expected session amount 130, got %d", req.Amount)
		}
		if len(req.Items) != 2 {
			t.Fatalf("expected 2 line items, got %d", len(req.Items))
		}
		return payments.CheckoutSession{ID: "cs_1", IntentID: "pi_1", RedirectURL: "https://pay.example/cs_1"}, nil
	}

	var captured repositories.CreateOrderRequest
	f.orders.createFn = func(_ context.Context, req repositories.CreateOrderRequest) (repositories.CreateOrderResult, error) {
		captured = req
		return repositories.CreateOrderResult{Order: req.Order, Payment: req.Payment, Commission: req.Commission}, nil
	}

	svc := f.service(t)
	placed, err := svc.CreateOrder(context.Background(), CreateOrderCommand{
		Actor:         Actor{UserID: "user-1", Role: domain.RoleUser},
		LoungeID:      "lounge-1",
		Lines:         standardCart(),
		PaymentMethod: domain.PaymentMethodGateway,
	})
	if err != nil {
		t.Fatalf("create order: %v", err)
	}

	if captured.Debit != nil {
		t.Fatalf("gateway settlement must not debit a contract")
	}
	if captured.Payment.Status != domain.PaymentStatusPending || captured.Payment.Method != domain.PaymentMethodGateway {
		t.Fatalf("unexpected payment %+v", captured.Payment)
	}
	if captured.Payment.GatewayRef == nil || *captured.Payment.GatewayRef != "pi_1" {
		t.Fatalf("expected gateway reference on payment, got %+v", captured.Payment.GatewayRef)
	}
	if placed.CheckoutURL != "https://pay.example/cs_1" {
		t.Fatalf("expected checkout url, got %q", placed.CheckoutURL)
	}
}

func TestCreateOrderRejectsUnknownLoungeAndMethod(t *testing.T) {
	f := newOrderServiceFixture(t)
	svc := f.service(t)

	_, err := svc.CreateOrder(context.Background(), CreateOrderCommand{
		Actor:         Actor{UserID: "user-1", Role: domain.RoleUser},
		LoungeID:      "lounge-missing",
		Lines:         standardCart(),
		PaymentMethod: domain.PaymentMethodContract,
	})
	if !errors.Is(err, ErrLoungeNotFound) {
		t.Fatalf("expected lounge not found, got %v", err)
	}

	_, err = svc.CreateOrder(context.Background(), CreateOrderCommand{
		Actor:         Actor{UserID: "user-1", Role: domain.RoleUser},
		LoungeID:      "lounge-1",
		Lines:         standardCart(),
		PaymentMethod: domain.PaymentMethod("cash"),
	})
	if !errors.Is(err, ErrOrderInvalidInput) {
		t.Fatalf("expected invalid input for unknown method, got %v", err)
	}
}

func TestGetOrderAuthorization(t *testing.T) {
	f := newOrderServiceFixture(t)
	order := domain.Order{ID: "ord_1", UserID: "user-1", LoungeID: "lounge-1", Status: domain.OrderStatusPending}
	f.orders.findFn = func(context.Context, string) (domain.Order, error) { return order, nil }
	f.paymentsR.findByOrderFn = func(context.Context, string) (domain.Payment, error) {
		return domain.Payment{ID: "pay_1", OrderID: "ord_1"}, nil
	}

	svc := f.service(t)
	ctx := context.Background()

	detail, err := svc.GetOrder(ctx, GetOrderQuery{Actor: Actor{UserID: "user-1", Role: domain.RoleUser}, OrderID: "ord_1"})
	if err != nil {
		t.Fatalf("owner read: %v", err)
	}
	if detail.Payment == nil || detail.Payment.ID != "pay_1" {
		t.Fatalf("expected embedded payment, got %+v", detail.Payment)
	}

	if _, err := svc.GetOrder(ctx, GetOrderQuery{Actor: Actor{UserID: "user-2", Role: domain.RoleUser}, OrderID: "ord_1"}); !errors.Is(err, ErrOrderForbidden) {
		t.Fatalf("expected forbidden for foreign user, got %v", err)
	}

	if _, err := svc.GetOrder(ctx, GetOrderQuery{Actor: Actor{UserID: "owner-1", Role: domain.RoleLounge}, OrderID: "ord_1"}); err != nil {
		t.Fatalf("lounge owner read: %v", err)
	}

	if _, err := svc.GetOrder(ctx, GetOrderQuery{Actor: Actor{UserID: "owner-2", Role: domain.RoleLounge}, OrderID: "ord_1"}); !errors.Is(err, ErrOrderForbidden) {
		t.Fatalf("expected forbidden for foreign lounge owner, got %v", err)
	}

	if _, err := svc.GetOrder(ctx, GetOrderQuery{Actor: Actor{UserID: "admin-1", Role: domain.RoleAdmin}, OrderID: "ord_1"}); err != nil {
		t.Fatalf("admin read: %v", err)
	}
}

func TestListOrdersScopesFilterByRole(t *testing.T) {
	f := newOrderServiceFixture(t)
	var captured repositories.OrderListQuery
	f.orders.listFn = func(_ context.Context, query repositories.OrderListQuery) (domain.OrderPage, error) {
		captured = query
		return domain.OrderPage{}, nil
	}

	svc := f.service(t)
	ctx := context.Background()

	if _, err := svc.ListOrders(ctx, ListOrdersQuery{Actor: Actor{UserID: "user-1", Role: domain.RoleUser}, PageSize: 10}); err != nil {
		t.Fatalf("user list: %v", err)
	}
	if captured.Filter.UserID != "user-1" || captured.Filter.LoungeID != "" {
		t.Fatalf("expected user scoped filter, got %+v", captured.Filter)
	}

	if _, err := svc.ListOrders(ctx, ListOrdersQuery{Actor: Actor{UserID: "owner-1", Role: domain.RoleLounge}}); !errors.Is(err, ErrOrderInvalidInput) {
		t.Fatalf("expected invalid input without lounge id, got %v", err)
	}

	if _, err := svc.ListOrders(ctx, ListOrdersQuery{Actor: Actor{UserID: "owner-2", Role: domain.RoleLounge}, LoungeID: "lounge-1"}); !errors.Is(err, ErrOrderForbidden) {
		t.Fatalf("expected forbidden for foreign lounge, got %v", err)
	}

	if _, err := svc.ListOrders(ctx, ListOrdersQuery{Actor: Actor{UserID: "owner-1", Role: domain.RoleLounge}, LoungeID: "lounge-1"}); err != nil {
		t.Fatalf("lounge list: %v", err)
	}
	if captured.Filter.LoungeID != "lounge-1" || captured.Filter.UserID != "" {
		t.Fatalf("expected lounge scoped filter, got %+v", captured.Filter)
	}
}

func TestTransitionStatusEnforcesGraph(t *testing.T) {
	f := newOrderServiceFixture(t)
	order := domain.Order{ID: "ord_1", UserID: "user-1", LoungeID: "lounge-1", Status: domain.OrderStatusDelivered}
	f.orders.findFn = func(context.Context, string) (domain.Order, error) { return order, nil }
	updated := false
	f.orders.updateFn = func(_ context.Context, req repositories.OrderStatusUpdate) (domain.Order, error) {
		updated = true
		next := order
		next.Status = req.To
		return next, nil
	}

	svc := f.service(t)
	actor := Actor{UserID: "owner-1", Role: domain.RoleLounge}

	_, err := svc.TransitionStatus(context.Background(), TransitionStatusCommand{Actor: actor, OrderID: "ord_1", Target: domain.OrderStatusPreparing})
	if !errors.Is(err, ErrOrderIllegalTransition) {
		t.Fatalf("expected illegal transition from delivered, got %v", err)
	}
	if updated {
		t.Fatalf("expected no update for rejected transition")
	}

	order.Status = domain.OrderStatusPending
	result, err := svc.TransitionStatus(context.Background(), TransitionStatusCommand{Actor: actor, OrderID: "ord_1", Target: domain.OrderStatusPreparing})
	if err != nil {
		t.Fatalf("transition: %v", err)
	}
	if result.Status != domain.OrderStatusPreparing {
		t.Fatalf("expected preparing, got %s", result.Status)
	}
	if len(f.events.events) != 1 || f.events.events[0].Type != "order.status.changed" {
		t.Fatalf("expected status changed event, got %+v", f.events.events)
	}
	if f.events.events[0].Metadata["previousStatus"] != "pending" {
		t.Fatalf("expected previous status metadata, got %+v", f.events.events[0].Metadata)
	}
}

func TestTransitionStatusRequiresLoungeOwnerOrAdmin(t *testing.T) {
	f := newOrderServiceFixture(t)
	f.orders.findFn = func(context.Context, string) (domain.Order, error) {
		return domain.Order{ID: "ord_1", UserID: "user-1", LoungeID: "lounge-1", Status: domain.OrderStatusPending}, nil
	}

	svc := f.service(t)
	_, err := svc.TransitionStatus(context.Background(), TransitionStatusCommand{
		Actor:   Actor{UserID: "user-1", Role: domain.RoleUser},
		OrderID: "ord_1",
		Target:  domain.OrderStatusCancelled,
	})
	if !errors.Is(err, ErrOrderForbidden) {
		t.Fatalf("expected forbidden for buyer, got %v", err)
	}
}

func TestRedeemQRDeliversExactlyOnce(t *testing.T) {
	f := newOrderServiceFixture(t)
	token, err := f.signer.Mint("ord_1")
	if err != nil {
		t.Fatalf("mint: %v", err)
	}

	order := domain.Order{ID: "ord_1", UserID: "user-1", LoungeID: "lounge-1", Status: domain.OrderStatusReady}
	f.orders.findFn = func(_ context.Context, orderID string) (domain.Order, error) {
		if orderID != "ord_1" {
			return domain.Order{}, &stubRepoError{notFound: true, msg: "order not found"}
		}
		return order, nil
	}
	f.orders.updateFn = func(_ context.Context, req repositories.OrderStatusUpdate) (domain.Order, error) {
		if req.From != domain.OrderStatusReady || req.To != domain.OrderStatusDelivered {
			t.Fatalf("unexpected transition %s -> %s", req.From, req.To)
		}
		next := order
		next.Status = domain.OrderStatusDelivered
		deliveredAt := req.Now
		next.DeliveredAt = &deliveredAt
		return next, nil
	}

	svc := f.service(t)
	actor := Actor{UserID: "owner-1", Role: domain.RoleLounge}

	delivered, err := svc.RedeemQR(context.Background(), RedeemQRCommand{Actor: actor, Payload: token})
	if err != nil {
		t.Fatalf("redeem: %v", err)
	}
	if delivered.Status != domain.OrderStatusDelivered || delivered.DeliveredAt == nil {
		t.Fatalf("expected delivered order with timestamp, got %+v", delivered)
	}
	if len(f.events.events) != 1 || f.events.events[0].Type != "order.delivered" {
		t.Fatalf("expected order.delivered event, got %+v", f.events.events)
	}

	order.Status = domain.OrderStatusDelivered
	if _, err := svc.RedeemQR(context.Background(), RedeemQRCommand{Actor: actor, Payload: token}); !errors.Is(err, ErrOrderAlreadyDelivered) {
		t.Fatalf("expected already delivered on second scan, got %v", err)
	}
}

func TestRedeemQRRejectsForgeryWithoutLookup(t *testing.T) {
	f := newOrderServiceFixture(t)
	looked := false
	f.orders.findFn = func(context.Context, string) (domain.Order, error) {
		looked = true
		return domain.Order{}, &stubRepoError{notFound: true, msg: "order not found"}
	}

	svc := f.service(t)
	_, err := svc.RedeemQR(context.Background(), RedeemQRCommand{
		Actor:   Actor{UserID: "owner-1", Role: domain.RoleLounge},
		Payload: "ord_1.forged-signature",
	})
	if !errors.Is(err, ErrOrderInvalidQR) {
		t.Fatalf("expected invalid qr, got %v", err)
	}
	if looked {
		t.Fatalf("expected no store access for malformed payload")
	}
}

func TestRedeemQRUnauthorizedLeavesOrderUntouched(t *testing.T) {
	f := newOrderServiceFixture(t)
	token, _ := f.signer.Mint("ord_1")
	f.orders.findFn = func(context.Context, string) (domain.Order, error) {
		return domain.Order{ID: "ord_1", UserID: "user-1", LoungeID: "lounge-1", Status: domain.OrderStatusReady}, nil
	}
	updated := false
	f.orders.updateFn = func(context.Context, repositories.OrderStatusUpdate) (domain.Order, error) {
		updated = true
		return domain.Order{}, nil
	}

	svc := f.service(t)
	_, err := svc.RedeemQR(context.Background(), RedeemQRCommand{
		Actor:   Actor{UserID: "owner-2", Role: domain.RoleLounge},
		Payload: token,
	})
	if !errors.Is(err, ErrOrderForbidden) {
		t.Fatalf("expected forbidden, got %v", err)
	}
	if updated {
		t.Fatalf("expected order untouched for unauthorized scan")
	}
}

func TestRedeemQRConcurrentScanMapsToConflict(t *testing.T) {
	f := newOrderServiceFixture(t)
	token, _ := f.signer.Mint("ord_1")
	f.orders.findFn = func(context.Context, string) (domain.Order, error) {
		return domain.Order{ID: "ord_1", UserID: "user-1", LoungeID: "lounge-1", Status: domain.OrderStatusReady}, nil
	}
	f.orders.updateFn = func(context.Context, repositories.OrderStatusUpdate) (domain.Order, error) {
		return domain.Order{}, repositories.NewOrderError(repositories.OrderErrorStatusConflict, "order ord_1 is delivered, expected ready", nil)
	}

	svc := f.service(t)
	_, err := svc.RedeemQR(context.Background(), RedeemQRCommand{
		Actor:   Actor{UserID: "owner-1", Role: domain.RoleLounge},
		Payload: token,
	})
	if !errors.Is(err, ErrOrderAlreadyDelivered) {
		t.Fatalf("expected already delivered for racing scan, got %v", err)
	}
}
