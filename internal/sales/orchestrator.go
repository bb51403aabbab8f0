// Package sales places orders against the remote catalog and records them
// locally.
//
// Placement is a sequential saga without compensation. Items are handled in
// request order; when one fails, stock already reserved for earlier items of
// the same request stays reserved and nothing is stored. The order and all
// of its lines are written in one local transaction only after every item
// was reserved.
package sales

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/Mrprince0421/microsservi-os/internal/auth"
	"github.com/Mrprince0421/microsservi-os/internal/clients"
	"github.com/Mrprince0421/microsservi-os/internal/events"
	"github.com/Mrprince0421/microsservi-os/internal/logging"
	"github.com/Mrprince0421/microsservi-os/internal/metrics"
	"github.com/Mrprince0421/microsservi-os/internal/middleware"
)

// Catalog is satisfied by *clients.CatalogClient.
type Catalog interface {
	Fetch(ctx context.Context, productID int64, id auth.Identity) (clients.Product, error)
	Reserve(ctx context.Context, productID int64, newQuantity int, id auth.Identity) error
	Decrement(ctx context.Context, productID int64, quantity int, id auth.Identity) (clients.Product, error)
}

// Store persists an order with all of its lines atomically and fills in the
// generated ids.
type Store interface {
	CreateOrder(ctx context.Context, o *Order) error
}

type EventPublisher interface {
	PublishSaleRecorded(ctx context.Context, meta events.EventMeta, payload events.SaleRecordedPayload) error
}

// Mode selects how stock is reserved.
type Mode string

const (
	// ModeReplace reads the product and writes back available-requested.
	// Two concurrent orders can both read the same quantity.
	ModeReplace Mode = "replace"
	// ModeAtomic asks the catalog for a conditional decrement.
	ModeAtomic Mode = "atomic"
)

// DefaultTimeout bounds one whole placement. Each catalog call is bounded
// separately by the catalog client.
const DefaultTimeout = time.Minute

type Orchestrator struct {
	catalog   Catalog
	store     Store
	publisher EventPublisher
	mode      Mode
	timeout   time.Duration
	metrics   *metrics.Metrics
	now       func() time.Time
}

type Option func(*Orchestrator)

func WithMode(m Mode) Option { return func(o *Orchestrator) { o.mode = m } }

func WithPublisher(p EventPublisher) Option { return func(o *Orchestrator) { o.publisher = p } }

func WithMetrics(m *metrics.Metrics) Option { return func(o *Orchestrator) { o.metrics = m } }

func WithClock(now func() time.Time) Option { return func(o *Orchestrator) { o.now = now } }

func WithTimeout(d time.Duration) Option {
	return func(o *Orchestrator) {
		if d > 0 {
			o.timeout = d
		}
	}
}

func NewOrchestrator(c Catalog, s Store, opts ...Option) *Orchestrator {
	o := &Orchestrator{
		catalog:   c,
		store:     s,
		publisher: events.Nop{},
		mode:      ModeReplace,
		timeout:   DefaultTimeout,
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

type reservation struct {
	productID int64
	name      string
	quantity  int
	unitPrice float64
}

// PlaceOrder runs the saga for items on behalf of id. The identity is passed
// unchanged to every catalog call.
//
// Cancellation of ctx is ignored once placement starts: a caller that goes
// away must not leave reserved stock without a recorded sale. Values of ctx
// (logger, correlation id, trace) are kept and the run is bounded by the
// orchestrator timeout instead.
func (o *Orchestrator) PlaceOrder(ctx context.Context, id auth.Identity, items []Item) (*Order, error) {
	logger := logging.FromContext(ctx).With(zap.Int64("user_id", id.SubjectID))

	if err := validateItems(items); err != nil {
		o.count("invalid")
		return nil, err
	}

	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), o.timeout)
	defer cancel()

	reserved := make([]reservation, 0, len(items))
	total := decimal.Zero

	for _, it := range items {
		res, err := o.reserve(ctx, id, it)
		if err != nil {
			o.count(outcome(err))
			if len(reserved) > 0 {
				logger.Warn("order aborted after partial reservation",
					zap.Int64("failed_product_id", it.ProductID),
					zap.Int("reserved_items", len(reserved)),
					zap.Error(err),
				)
			}
			return nil, err
		}

		reserved = append(reserved, res)
		total = total.Add(decimal.NewFromFloat(res.unitPrice).Mul(decimal.NewFromInt(int64(res.quantity))))
	}

	totalPrice, _ := total.Float64()
	order := &Order{
		UserID:     id.SubjectID,
		TotalPrice: totalPrice,
		CreatedAt:  o.now().UTC(),
		Lines:      make([]OrderLine, 0, len(reserved)),
	}
	for _, r := range reserved {
		order.Lines = append(order.Lines, OrderLine{
			ProductID:   r.productID,
			ProductName: r.name,
			Quantity:    r.quantity,
			UnitPrice:   r.unitPrice,
		})
	}

	if err := o.store.CreateOrder(ctx, order); err != nil {
		o.count("persistence_failed")
		logger.Error("stock reserved but sale not recorded, reconcile manually",
			zap.Any("lines", order.Lines),
			zap.Float64("total_price", order.TotalPrice),
			zap.Error(err),
		)
		return nil, &OrderError{Kind: ErrPersistenceFailed, Err: err}
	}

	o.count("placed")
	logger.Info("sale recorded", zap.Int64("sale_id", order.ID), zap.Float64("total_price", order.TotalPrice))
	o.publish(ctx, logger, order)
	return order, nil
}

func (o *Orchestrator) reserve(ctx context.Context, id auth.Identity, it Item) (reservation, error) {
	if o.mode == ModeAtomic {
		return o.reserveAtomic(ctx, id, it)
	}

	p, err := o.catalog.Fetch(ctx, it.ProductID, id)
	if errors.Is(err, clients.ErrNotFound) {
		return reservation{}, &OrderError{Kind: ErrProductNotFound, ProductID: it.ProductID}
	}
	if err != nil {
		return reservation{}, &OrderError{Kind: ErrCatalogFailed, ProductID: it.ProductID, Err: err}
	}

	if it.Quantity > p.Quantity {
		return reservation{}, &OrderError{Kind: ErrInsufficientStock, ProductID: it.ProductID, ProductName: p.Name}
	}

	if err := o.catalog.Reserve(ctx, it.ProductID, p.Quantity-it.Quantity, id); err != nil {
		return reservation{}, &OrderError{Kind: ErrReservationFailed, ProductID: it.ProductID, ProductName: p.Name, Err: err}
	}
	return reservation{productID: it.ProductID, name: p.Name, quantity: it.Quantity, unitPrice: p.Price}, nil
}

func (o *Orchestrator) reserveAtomic(ctx context.Context, id auth.Identity, it Item) (reservation, error) {
	p, err := o.catalog.Decrement(ctx, it.ProductID, it.Quantity, id)
	switch {
	case errors.Is(err, clients.ErrNotFound):
		return reservation{}, &OrderError{Kind: ErrProductNotFound, ProductID: it.ProductID}
	case errors.Is(err, clients.ErrInsufficientStock):
		return reservation{}, &OrderError{Kind: ErrInsufficientStock, ProductID: it.ProductID}
	case err != nil:
		return reservation{}, &OrderError{Kind: ErrReservationFailed, ProductID: it.ProductID, Err: err}
	}
	return reservation{productID: it.ProductID, name: p.Name, quantity: it.Quantity, unitPrice: p.Price}, nil
}

// publish is best effort: the sale is already stored.
func (o *Orchestrator) publish(ctx context.Context, logger *zap.Logger, order *Order) {
	payload := events.SaleRecordedPayload{
		SaleID:     order.ID,
		UserID:     order.UserID,
		TotalPrice: order.TotalPrice,
		RecordedAt: order.CreatedAt,
	}
	for _, l := range order.Lines {
		payload.Items = append(payload.Items, events.SaleRecordedItem{
			ProductID: l.ProductID,
			Quantity:  l.Quantity,
			UnitPrice: l.UnitPrice,
		})
	}
	meta := events.EventMeta{
		CorrelationID: middleware.GetCorrelationID(ctx),
		PartitionKey:  strconv.FormatInt(order.UserID, 10),
	}

	if err := o.publisher.PublishSaleRecorded(ctx, meta, payload); err != nil {
		o.countEvent("failed")
		logger.Warn("publish SaleRecorded failed", zap.Int64("sale_id", order.ID), zap.Error(err))
		return
	}
	o.countEvent("published")
}

func validateItems(items []Item) error {
	if len(items) == 0 {
		return fmt.Errorf("%w: no items", ErrInvalidOrder)
	}
	for i, it := range items {
		if it.Quantity <= 0 {
			return fmt.Errorf("%w: item %d quantity must be positive", ErrInvalidOrder, i)
		}
		if it.ProductID <= 0 {
			return fmt.Errorf("%w: item %d product_id must be positive", ErrInvalidOrder, i)
		}
	}
	return nil
}

func outcome(err error) string {
	switch {
	case errors.Is(err, ErrProductNotFound):
		return "product_not_found"
	case errors.Is(err, ErrInsufficientStock):
		return "insufficient_stock"
	case errors.Is(err, ErrCatalogFailed):
		return "catalog_failed"
	default:
		return "reservation_failed"
	}
}

func (o *Orchestrator) count(outcome string) {
	if o.metrics != nil {
		o.metrics.Orders.WithLabelValues(outcome).Inc()
	}
}

func (o *Orchestrator) countEvent(outcome string) {
	if o.metrics != nil {
		o.metrics.Events.WithLabelValues(outcome).Inc()
	}
}
