package firestore

import (
	"context"
	"errors"
	"strings"
	"time"

	"cloud.google.com/go/firestore"
	"github.com/marketdesk/admin/internal/domain"
	pfirestore "github.com/marketdesk/admin/internal/platform/firestore"
	"github.com/marketdesk/admin/internal/repositories"
)

const orderCollection = "orders"

// OrderRepository reads and patches orders in the orders collection. Documents are written by
// checkout; this repository never creates them.
type OrderRepository struct {
	orders   *pfirestore.Collection[orderDocument]
	provider *pfirestore.Provider
}

var _ repositories.OrderRepository = (*OrderRepository)(nil)

// NewOrderRepository constructs a Firestore-backed order repository.
func NewOrderRepository(provider *pfirestore.Provider) (*OrderRepository, error) {
	if provider == nil {
		return nil, errors.New("order repository requires firestore provider")
	}
	return &OrderRepository{
		orders:   pfirestore.NewCollection[orderDocument](provider, orderCollection),
		provider: provider,
	}, nil
}

// FindByID loads one order.
func (r *OrderRepository) FindByID(ctx context.Context, orderID string) (domain.Order, error) {
	if strings.TrimSpace(orderID) == "" {
		return domain.Order{}, errors.New("order id is required")
	}
	doc, err := r.orders.Get(ctx, orderID)
	if err != nil {
		return domain.Order{}, err
	}
	return toDomainOrder(doc), nil
}

// ListAll returns every order ordered by createdAt descending.
// Firestore drops documents lacking the ordered field from the result; checkout
// always writes createdAt, so every order document carries it.
func (r *OrderRepository) ListAll(ctx context.Context) ([]domain.Order, error) {
	docs, err := r.orders.Query(ctx, func(q firestore.Query) firestore.Query {
		return q.OrderBy("createdAt", firestore.Desc)
	})
	if err != nil {
		return nil, err
	}
	orders := make([]domain.Order, 0, len(docs))
	for _, doc := range docs {
		orders = append(orders, toDomainOrder(doc))
	}
	return orders, nil
}

// Update writes the patch as one field-level update guarded by an existence precondition.
func (r *OrderRepository) Update(ctx context.Context, orderID string, update repositories.OrderUpdate) error {
	updatedAt := update.UpdatedAt
	if updatedAt.IsZero() {
		updatedAt = time.Now().UTC()
	}
	updates := []firestore.Update{{Path: "updatedAt", Value: updatedAt}}
	if update.OrderStatus != nil {
		updates = append(updates, firestore.Update{Path: "orderStatus", Value: string(*update.OrderStatus)})
	}
	if update.PaymentStatus != nil {
		updates = append(updates, firestore.Update{Path: "paymentStatus", Value: string(*update.PaymentStatus)})
	}
	return r.orders.Patch(ctx, orderID, updates)
}

// Delete reads the order and deletes it in the same transaction when guard accepts it.
func (r *OrderRepository) Delete(ctx context.Context, orderID string, guard func(domain.Order) error) error {
	ref, err := r.orders.Ref(ctx, orderID)
	if err != nil {
		return err
	}
	return r.provider.RunTransaction(ctx, func(_ context.Context, tx *firestore.Transaction) error {
		doc, err := r.orders.GetTx(tx, ref)
		if err != nil {
			return err
		}
		if guard != nil {
			if err := guard(toDomainOrder(doc)); err != nil {
				return err
			}
		}
		return tx.Delete(ref, firestore.Exists)
	})
}

type orderDocument struct {
	OrderNumber   string              `firestore:"orderNumber"`
	CustomerName  string              `firestore:"customerName"`
	CustomerEmail string              `firestore:"customerEmail"`
	CustomerPhone string              `firestore:"customerPhone"`
	Total         float64             `firestore:"total"`
	PaymentMethod string              `firestore:"paymentMethod"`
	PaymentStatus string              `firestore:"paymentStatus"`
	OrderStatus   string              `firestore:"orderStatus"`
	Items         []orderItemDocument `firestore:"items"`
	CreatedAt     time.Time           `firestore:"createdAt"`
	UpdatedAt     time.Time           `firestore:"updatedAt"`
}

type orderItemDocument struct {
	ProductName string  `firestore:"productName"`
	Size        string  `firestore:"size"`
	Color       string  `firestore:"color"`
	Quantity    int     `firestore:"quantity"`
	Price       float64 `firestore:"price"`
}

func toDomainOrder(doc pfirestore.Document[orderDocument]) domain.Order {
	data := doc.Data
	order := domain.Order{
		ID:            doc.ID,
		OrderNumber:   data.OrderNumber,
		CustomerName:  data.CustomerName,
		CustomerEmail: data.CustomerEmail,
		CustomerPhone: data.CustomerPhone,
		Total:         data.Total,
		PaymentMethod: domain.PaymentMethod(data.PaymentMethod),
		PaymentStatus: domain.PaymentStatus(data.PaymentStatus),
		// kept verbatim so unknown values survive a read
		OrderStatus: domain.OrderStatus(data.OrderStatus),
		CreatedAt:   data.CreatedAt.UTC(),
		UpdatedAt:   data.UpdatedAt.UTC(),
	}
	if order.CreatedAt.IsZero() {
		order.CreatedAt = doc.CreateTime.UTC()
	}
	if order.UpdatedAt.IsZero() {
		order.UpdatedAt = doc.UpdateTime.UTC()
	}
	if len(data.Items) > 0 {
		order.Items = make([]domain.OrderLineItem, len(data.Items))
		for i, item := range data.Items {
			order.Items[i] = domain.OrderLineItem(item)
		}
	}
	return order
}
