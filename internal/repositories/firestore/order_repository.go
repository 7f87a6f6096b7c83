package firestore

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"cloud.google.com/go/firestore"
	"google.golang.org/api/iterator"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	domain "github.com/campusbite/api/internal/domain"
	pfirestore "github.com/campusbite/api/internal/platform/firestore"
	"github.com/campusbite/api/internal/platform/pagination"
	"github.com/campusbite/api/internal/repositories"
)

const (
	ordersCollection      = "orders"
	paymentsCollection    = "payments"
	commissionsCollection = "commissions"
)

type OrderRepository struct {
	provider    *pfirestore.Provider
	orders      *pfirestore.BaseRepository[orderDocument]
	payments    *pfirestore.BaseRepository[paymentDocument]
	commissions *pfirestore.BaseRepository[commissionDocument]
	contracts   *pfirestore.BaseRepository[contractDocument]
}

func NewOrderRepository(provider *pfirestore.Provider) (*OrderRepository, error) {
	if provider == nil {
		return nil, errors.New("order repository requires firestore provider")
	}
	return &OrderRepository{
		provider:    provider,
		orders:      pfirestore.NewBaseRepository[orderDocument](provider, ordersCollection, nil, nil),
		payments:    pfirestore.NewBaseRepository[paymentDocument](provider, paymentsCollection, nil, nil),
		commissions: pfirestore.NewBaseRepository[commissionDocument](provider, commissionsCollection, nil, nil),
		contracts:   pfirestore.NewBaseRepository[contractDocument](provider, contractsCollection, nil, nil),
	}, nil
}

// CreateSettled writes the order, payment, commission, and contract debit in a
// single transaction. Firestore serialises the transaction against concurrent
// writers of the same contract, so two orders racing on one balance cannot
// both succeed when only one fits.
func (r *OrderRepository) CreateSettled(ctx context.Context, req repositories.CreateOrderRequest) (repositories.CreateOrderResult, error) {
	if r == nil || r.provider == nil {
		return repositories.CreateOrderResult{}, errors.New("order repository not initialised")
	}
	if strings.TrimSpace(req.Order.ID) == "" {
		return repositories.CreateOrderResult{}, errors.New("order create: order id is required")
	}
	if strings.TrimSpace(req.Payment.ID) == "" {
		return repositories.CreateOrderResult{}, errors.New("order create: payment id is required")
	}
	if strings.TrimSpace(req.Commission.ID) == "" {
		return repositories.CreateOrderResult{}, errors.New("order create: commission id is required")
	}
	if len(req.Order.Lines) == 0 {
		return repositories.CreateOrderResult{}, errors.New("order create: at least one line is required")
	}

	now := req.Now.UTC()
	var result repositories.CreateOrderResult

	err := r.provider.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		orderRef, err := r.orders.DocumentRef(ctx, req.Order.ID)
		if err != nil {
			return err
		}
		paymentRef, err := r.payments.DocumentRef(ctx, req.Payment.ID)
		if err != nil {
			return err
		}
		commissionRef, err := r.commissions.DocumentRef(ctx, req.Commission.ID)
		if err != nil {
			return err
		}

		// All transaction reads must precede writes, so the contract check
		// comes first even though the contract update is written last.
		var contractRef *firestore.DocumentRef
		var contractDoc contractDocument
		if req.Debit != nil {
			if strings.TrimSpace(req.Debit.ContractID) == "" {
				return repositories.NewOrderError(repositories.OrderErrorContractNotFound, "order create: contract id is required for debit", nil)
			}
			contractRef, err = r.contracts.DocumentRef(ctx, req.Debit.ContractID)
			if err != nil {
				return err
			}
			snap, err := tx.Get(contractRef)
			if err != nil {
				if status.Code(err) == codes.NotFound {
					return repositories.NewOrderError(repositories.OrderErrorContractNotFound, fmt.Sprintf("contract %s not found", req.Debit.ContractID), err)
				}
				return err
			}
			if err := snap.DataTo(&contractDoc); err != nil {
				return fmt.Errorf("decode contract %s: %w", req.Debit.ContractID, err)
			}
			if !contractDoc.IsActive || contractDoc.IsExpired {
				return repositories.NewOrderError(repositories.OrderErrorContractUnusable, fmt.Sprintf("contract %s is not usable", req.Debit.ContractID), nil)
			}
			if contractDoc.RemainingBalance < req.Debit.Amount {
				return repositories.NewOrderError(repositories.OrderErrorInsufficientBalance, fmt.Sprintf("contract %s balance is insufficient", req.Debit.ContractID), nil)
			}
		}

		if contractRef != nil {
			contractDoc.RemainingBalance -= req.Debit.Amount
			contractDoc.UpdatedAt = now
			if err := tx.Set(contractRef, contractDoc); err != nil {
				return err
			}
		}

		paymentDoc := newPaymentDocument(req.Payment)
		paymentDoc.OrderRef = req.Order.ID
		paymentDoc.CreatedAt = now
		paymentDoc.UpdatedAt = now
		if err := tx.Create(paymentRef, paymentDoc); err != nil {
			return err
		}

		orderDoc := newOrderDocument(req.Order)
		orderDoc.PaymentRef = req.Payment.ID
		orderDoc.CreatedAt = now
		orderDoc.UpdatedAt = now
		if err := tx.Create(orderRef, orderDoc); err != nil {
			return err
		}

		commissionDoc := newCommissionDocument(req.Commission)
		commissionDoc.OrderRef = req.Order.ID
		commissionDoc.CreatedAt = now
		if err := tx.Create(commissionRef, commissionDoc); err != nil {
			return err
		}

		result = repositories.CreateOrderResult{
			Order:      orderDoc.toDomain(req.Order.ID),
			Payment:    paymentDoc.toDomain(req.Payment.ID),
			Commission: commissionDoc.toDomain(req.Commission.ID),
		}
		return nil
	})
	if err != nil {
		return repositories.CreateOrderResult{}, wrapOrderError("orders.create", err)
	}
	return result, nil
}

func (r *OrderRepository) FindByID(ctx context.Context, orderID string) (domain.Order, error) {
	if r == nil || r.orders == nil {
		return domain.Order{}, errors.New("order repository not initialised")
	}
	orderID = strings.TrimSpace(orderID)
	if orderID == "" {
		return domain.Order{}, errors.New("order find: id is required")
	}

	doc, err := r.orders.Get(ctx, orderID)
	if err != nil {
		return domain.Order{}, wrapOrderError("orders.find", err)
	}
	return doc.Data.toDomain(doc.ID), nil
}

func (r *OrderRepository) List(ctx context.Context, query repositories.OrderListQuery) (domain.OrderPage, error) {
	if r == nil || r.provider == nil {
		return domain.OrderPage{}, errors.New("order repository not initialised")
	}

	pageSize := query.PageSize
	if pageSize <= 0 {
		pageSize = 20
	}
	if pageSize > 100 {
		pageSize = 100
	}

	client, err := r.provider.Client(ctx)
	if err != nil {
		return domain.OrderPage{}, wrapOrderError("orders.list", err)
	}

	firestoreQuery := client.Collection(ordersCollection).Query
	if uid := strings.TrimSpace(query.Filter.UserID); uid != "" {
		firestoreQuery = firestoreQuery.Where("userRef", "==", uid)
	}
	if lid := strings.TrimSpace(query.Filter.LoungeID); lid != "" {
		firestoreQuery = firestoreQuery.Where("loungeRef", "==", lid)
	}
	if query.Filter.Status != nil {
		firestoreQuery = firestoreQuery.Where("status", "==", string(*query.Filter.Status))
	}
	firestoreQuery = firestoreQuery.
		OrderBy("createdAt", firestore.Desc).
		OrderBy(firestore.DocumentID, firestore.Asc).
		Limit(pageSize + 1)
	if len(query.StartAfter) > 0 {
		firestoreQuery = firestoreQuery.StartAfter(query.StartAfter...)
	}

	iter := firestoreQuery.Documents(ctx)
	defer iter.Stop()

	var orders []domain.Order
	for {
		snap, err := iter.Next()
		if errors.Is(err, iterator.Done) {
			break
		}
		if err != nil {
			return domain.OrderPage{}, wrapOrderError("orders.list", err)
		}
		var doc orderDocument
		if err := snap.DataTo(&doc); err != nil {
			return domain.OrderPage{}, fmt.Errorf("decode order %s: %w", snap.Ref.ID, err)
		}
		orders = append(orders, doc.toDomain(snap.Ref.ID))
	}

	page := domain.OrderPage{Orders: orders}
	if len(orders) > pageSize {
		page.Orders = orders[:pageSize]
		last := page.Orders[len(page.Orders)-1]
		page.NextPageToken = orderCursorToken(last)
	}
	return page, nil
}

func (r *OrderRepository) UpdateStatus(ctx context.Context, req repositories.OrderStatusUpdate) (domain.Order, error) {
	if r == nil || r.provider == nil {
		return domain.Order{}, errors.New("order repository not initialised")
	}
	orderID := strings.TrimSpace(req.OrderID)
	if orderID == "" {
		return domain.Order{}, errors.New("order update status: id is required")
	}

	now := req.Now.UTC()
	var updated domain.Order

	err := r.provider.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		orderRef, err := r.orders.DocumentRef(ctx, orderID)
		if err != nil {
			return err
		}
		snap, err := tx.Get(orderRef)
		if err != nil {
			return err
		}
		var doc orderDocument
		if err := snap.DataTo(&doc); err != nil {
			return fmt.Errorf("decode order %s: %w", orderID, err)
		}
		if doc.Status != string(req.From) {
			return repositories.NewOrderError(repositories.OrderErrorStatusConflict, fmt.Sprintf("order %s is %s, expected %s", orderID, doc.Status, req.From), nil)
		}

		doc.Status = string(req.To)
		doc.UpdatedAt = now
		if req.To == domain.OrderStatusDelivered {
			doc.DeliveredAt = &now
		}
		if err := tx.Set(orderRef, doc); err != nil {
			return err
		}
		updated = doc.toDomain(orderID)
		return nil
	})
	if err != nil {
		return domain.Order{}, wrapOrderError("orders.updateStatus", err)
	}
	return updated, nil
}

// Document structures -------------------------------------------------------

type orderDocument struct {
	UserRef        string              `firestore:"userRef"`
	LoungeRef      string              `firestore:"loungeRef"`
	LoungeName     string              `firestore:"loungeName"`
	Lines          []orderLineDocument `firestore:"lines"`
	TotalAmount    int64               `firestore:"totalAmount"`
	CommissionRate float64             `firestore:"commissionRate"`
	Status         string              `firestore:"status"`
	PaymentRef     string              `firestore:"paymentRef"`
	QRToken        string              `firestore:"qrToken"`
	QRImage        string              `firestore:"qrImage"`
	CreatedAt      time.Time           `firestore:"createdAt"`
	UpdatedAt      time.Time           `firestore:"updatedAt"`
	DeliveredAt    *time.Time          `firestore:"deliveredAt,omitempty"`
}

type orderLineDocument struct {
	FoodItemRef      string `firestore:"foodItemRef"`
	Name             string `firestore:"name"`
	UnitPrice        int64  `firestore:"unitPrice"`
	Quantity         int    `firestore:"qty"`
	Subtotal         int64  `firestore:"subtotal"`
	EstimatedMinutes int    `firestore:"estimatedMinutes"`
}

func newOrderDocument(order domain.Order) orderDocument {
	lines := make([]orderLineDocument, len(order.Lines))
	for i, line := range order.Lines {
		lines[i] = orderLineDocument{
			FoodItemRef:      strings.TrimSpace(line.FoodItemID),
			Name:             strings.TrimSpace(line.Name),
			UnitPrice:        line.UnitPrice,
			Quantity:         line.Quantity,
			Subtotal:         line.Subtotal,
			EstimatedMinutes: line.EstimatedMinutes,
		}
	}
	return orderDocument{
		UserRef:        strings.TrimSpace(order.UserID),
		LoungeRef:      strings.TrimSpace(order.LoungeID),
		LoungeName:     strings.TrimSpace(order.LoungeName),
		Lines:          lines,
		TotalAmount:    order.TotalAmount,
		CommissionRate: order.CommissionRate,
		Status:         string(order.Status),
		PaymentRef:     strings.TrimSpace(order.PaymentID),
		QRToken:        order.QRToken,
		QRImage:        order.QRImage,
		CreatedAt:      order.CreatedAt.UTC(),
		UpdatedAt:      order.UpdatedAt.UTC(),
		DeliveredAt:    order.DeliveredAt,
	}
}

func (d orderDocument) toDomain(id string) domain.Order {
	lines := make([]domain.OrderLine, len(d.Lines))
	for i, line := range d.Lines {
		lines[i] = domain.OrderLine{
			FoodItemID:       line.FoodItemRef,
			Name:             line.Name,
			UnitPrice:        line.UnitPrice,
			Quantity:         line.Quantity,
			Subtotal:         line.Subtotal,
			EstimatedMinutes: line.EstimatedMinutes,
		}
	}
	return domain.Order{
		ID:             id,
		UserID:         d.UserRef,
		LoungeID:       d.LoungeRef,
		LoungeName:     d.LoungeName,
		Lines:          lines,
		TotalAmount:    d.TotalAmount,
		CommissionRate: d.CommissionRate,
		Status:         domain.OrderStatus(d.Status),
		PaymentID:      d.PaymentRef,
		QRToken:        d.QRToken,
		QRImage:        d.QRImage,
		CreatedAt:      d.CreatedAt,
		UpdatedAt:      d.UpdatedAt,
		DeliveredAt:    d.DeliveredAt,
	}
}

type paymentDocument struct {
	UserRef     string     `firestore:"userRef"`
	OrderRef    string     `firestore:"orderRef"`
	ContractRef *string    `firestore:"contractRef,omitempty"`
	Method      string     `firestore:"method"`
	Status      string     `firestore:"status"`
	Amount      int64      `firestore:"amount"`
	Type        string     `firestore:"type"`
	GatewayRef  *string    `firestore:"gatewayRef,omitempty"`
	CreatedAt   time.Time  `firestore:"createdAt"`
	UpdatedAt   time.Time  `firestore:"updatedAt"`
	CompletedAt *time.Time `firestore:"completedAt,omitempty"`
}

func newPaymentDocument(payment domain.Payment) paymentDocument {
	return paymentDocument{
		UserRef:     strings.TrimSpace(payment.UserID),
		OrderRef:    strings.TrimSpace(payment.OrderID),
		ContractRef: payment.ContractID,
		Method:      string(payment.Method),
		Status:      string(payment.Status),
		Amount:      payment.Amount,
		Type:        payment.Type,
		GatewayRef:  payment.GatewayRef,
		CreatedAt:   payment.CreatedAt.UTC(),
		UpdatedAt:   payment.UpdatedAt.UTC(),
		CompletedAt: payment.CompletedAt,
	}
}

func (d paymentDocument) toDomain(id string) domain.Payment {
	return domain.Payment{
		ID:          id,
		UserID:      d.UserRef,
		OrderID:     d.OrderRef,
		ContractID:  d.ContractRef,
		Method:      domain.PaymentMethod(d.Method),
		Status:      domain.PaymentStatus(d.Status),
		Amount:      d.Amount,
		Type:        d.Type,
		GatewayRef:  d.GatewayRef,
		CreatedAt:   d.CreatedAt,
		UpdatedAt:   d.UpdatedAt,
		CompletedAt: d.CompletedAt,
	}
}

type commissionDocument struct {
	OrderRef    string    `firestore:"orderRef"`
	LoungeRef   string    `firestore:"loungeRef"`
	OrderAmount int64     `firestore:"orderAmount"`
	Rate        float64   `firestore:"rate"`
	Amount      int64     `firestore:"amount"`
	CreatedAt   time.Time `firestore:"createdAt"`
}

func newCommissionDocument(commission domain.Commission) commissionDocument {
	return commissionDocument{
		OrderRef:    strings.TrimSpace(commission.OrderID),
		LoungeRef:   strings.TrimSpace(commission.LoungeID),
		OrderAmount: commission.OrderAmount,
		Rate:        commission.Rate,
		Amount:      commission.Amount,
		CreatedAt:   commission.CreatedAt.UTC(),
	}
}

func (d commissionDocument) toDomain(id string) domain.Commission {
	return domain.Commission{
		ID:          id,
		OrderID:     d.OrderRef,
		LoungeID:    d.LoungeRef,
		OrderAmount: d.OrderAmount,
		Rate:        d.Rate,
		Amount:      d.Amount,
		CreatedAt:   d.CreatedAt,
	}
}

func orderCursorToken(order domain.Order) string {
	token, err := pagination.EncodeToken(pagination.Cursor{
		StartAfter: []any{order.CreatedAt.UTC().Format(time.RFC3339Nano), order.ID},
	})
	if err != nil {
		return ""
	}
	return token
}

func wrapOrderError(op string, err error) error {
	if err == nil {
		return nil
	}
	var orderErr *repositories.OrderError
	if errors.As(err, &orderErr) {
		if orderErr.Op == "" {
			orderErr.Op = op
		}
		return orderErr
	}
	return pfirestore.WrapError(op, err)
}
