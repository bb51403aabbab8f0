package sales

import "time"

// Item is one requested (product, quantity) pair. Items are processed in the
// order they were requested.
type Item struct {
	ProductID int64 `json:"product_id"`
	Quantity  int   `json:"quantity"`
}

// OrderLine records the unit price seen when the stock was reserved.
type OrderLine struct {
	ID          int64   `json:"id"`
	OrderID     int64   `json:"sale_id"`
	ProductID   int64   `json:"product_id"`
	ProductName string  `json:"product_name"`
	Quantity    int     `json:"quantity"`
	UnitPrice   float64 `json:"unit_price"`
}

// Order is immutable once stored.
type Order struct {
	ID         int64       `json:"id"`
	UserID     int64       `json:"user_id"`
	TotalPrice float64     `json:"total_price"`
	CreatedAt  time.Time   `json:"created_at"`
	Lines      []OrderLine `json:"items"`
}

type DailyReport struct {
	Date        string  `json:"date"`
	TotalSales  int     `json:"total_sales"`
	TotalAmount float64 `json:"total_amount"`
}

type BestSellingProduct struct {
	ProductID         int64   `json:"product_id"`
	ProductName       string  `json:"product_name"`
	TotalQuantitySold int     `json:"total_quantity_sold"`
	TotalRevenue      float64 `json:"total_revenue"`
}

type BestSellingReport struct {
	Products []BestSellingProduct `json:"products"`
}
