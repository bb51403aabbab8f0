package sales

import (
	"errors"
	"fmt"
)

var (
	ErrInvalidOrder      = errors.New("invalid order")
	ErrProductNotFound   = errors.New("product not found")
	ErrInsufficientStock = errors.New("insufficient stock")
	ErrCatalogFailed     = errors.New("catalog lookup failed")
	ErrReservationFailed = errors.New("reservation failed")
	ErrPersistenceFailed = errors.New("persistence failed")
	ErrNotFound          = errors.New("not found")
)

// OrderError aborts a placement. Kind is one of the sentinels above and is
// matched by errors.Is; Err is the underlying cause, if any.
type OrderError struct {
	Kind        error
	ProductID   int64
	ProductName string
	Err         error
}

func (e *OrderError) Error() string {
	msg := e.Kind.Error()
	if e.ProductID != 0 {
		msg = fmt.Sprintf("%s: product %d", msg, e.ProductID)
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *OrderError) Unwrap() []error {
	if e.Err == nil {
		return []error{e.Kind}
	}
	return []error{e.Kind, e.Err}
}

// Detail is the message shown to the caller.
func (e *OrderError) Detail() string {
	switch e.Kind {
	case ErrProductNotFound:
		return fmt.Sprintf("Product with ID %d not found in the product service.", e.ProductID)
	case ErrInsufficientStock:
		name := e.ProductName
		if name == "" {
			name = fmt.Sprintf("with ID %d", e.ProductID)
		}
		return fmt.Sprintf("Product %s does not have enough stock.", name)
	case ErrCatalogFailed:
		return fmt.Sprintf("Could not read product %d from the product service.", e.ProductID)
	case ErrReservationFailed:
		return fmt.Sprintf("Could not reserve stock for product %d.", e.ProductID)
	case ErrPersistenceFailed:
		return "Stock was reserved but the sale could not be recorded."
	default:
		return e.Error()
	}
}
