package catalog

import (
	"errors"
	"fmt"
	"strings"
	"unicode/utf8"
)

const (
	maxNameLength        = 50
	maxDescriptionLength = 150
	DefaultListLimit     = 100
)

var (
	ErrNotFound          = errors.New("not found")
	ErrInsufficientStock = errors.New("insufficient stock")
)

// Product is owned by the user that created it; every read and write is
// scoped to that owner.
type Product struct {
	ID          int64   `json:"id"`
	UserID      int64   `json:"user_id"`
	Name        string  `json:"name"`
	Description *string `json:"description"`
	Price       float64 `json:"price"`
	Quantity    int     `json:"quantity"`
}

type NewProduct struct {
	Name        string  `json:"name"`
	Description *string `json:"description"`
	Price       float64 `json:"price"`
	Quantity    int     `json:"quantity"`
}

// ProductPatch carries only the fields present in an update request.
type ProductPatch struct {
	Name        *string  `json:"name"`
	Description *string  `json:"description"`
	Price       *float64 `json:"price"`
	Quantity    *int     `json:"quantity"`
}

func (p ProductPatch) Empty() bool {
	return p.Name == nil && p.Description == nil && p.Price == nil && p.Quantity == nil
}

type ListFilter struct {
	Name      string
	ProductID int64
	Skip      int
	Limit     int
}

type ListResult struct {
	Products   []Product `json:"products"`
	TotalCount int       `json:"total_count"`
}

// ValidationError lists every rejected field of a request.
type ValidationError struct {
	Problems []string
}

func (e *ValidationError) Error() string {
	return "invalid product: " + strings.Join(e.Problems, "; ")
}

func (p NewProduct) Validate() error {
	var problems []string
	problems = checkName(problems, p.Name)
	problems = checkDescription(problems, p.Description)
	problems = checkPrice(problems, p.Price)
	problems = checkQuantity(problems, p.Quantity)
	return asValidationError(problems)
}

func (p ProductPatch) Validate() error {
	var problems []string
	if p.Name != nil {
		problems = checkName(problems, *p.Name)
	}
	problems = checkDescription(problems, p.Description)
	if p.Price != nil {
		problems = checkPrice(problems, *p.Price)
	}
	if p.Quantity != nil {
		problems = checkQuantity(problems, *p.Quantity)
	}
	return asValidationError(problems)
}

func checkName(problems []string, name string) []string {
	n := utf8.RuneCountInString(strings.TrimSpace(name))
	if n == 0 || utf8.RuneCountInString(name) > maxNameLength {
		return append(problems, fmt.Sprintf("name must be 1 to %d characters", maxNameLength))
	}
	return problems
}

func checkDescription(problems []string, d *string) []string {
	if d != nil && utf8.RuneCountInString(*d) > maxDescriptionLength {
		return append(problems, fmt.Sprintf("description must be at most %d characters", maxDescriptionLength))
	}
	return problems
}

func checkPrice(problems []string, price float64) []string {
	if !(price > 0) {
		return append(problems, "price must be greater than 0")
	}
	return problems
}

func checkQuantity(problems []string, q int) []string {
	if q < 0 {
		return append(problems, "quantity must not be negative")
	}
	return problems
}

func asValidationError(problems []string) error {
	if len(problems) == 0 {
		return nil
	}
	return &ValidationError{Problems: problems}
}
