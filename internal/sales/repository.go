package sales

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/lib/pq"
)

const DefaultBestSellingLimit = 10

type Repository interface {
	Store
	ListByUser(ctx context.Context, userID int64) ([]Order, error)
	GetByID(ctx context.Context, userID, orderID int64) (*Order, error)
	DailyReport(ctx context.Context, userID int64, day time.Time) (DailyReport, error)
	BestSelling(ctx context.Context, userID int64, limit int) (BestSellingReport, error)
}

type repo struct {
	db *sql.DB
}

func NewRepository(db *sql.DB) Repository {
	return &repo{db: db}
}

// CreateOrder writes the order and its lines in one transaction and sets the
// generated ids on o.
func (r *repo) CreateOrder(ctx context.Context, o *Order) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	err = tx.QueryRowContext(ctx,
		`INSERT INTO sales (user_id, total_price, created_at)
         VALUES ($1, $2, $3) RETURNING id`,
		o.UserID, o.TotalPrice, o.CreatedAt,
	).Scan(&o.ID)
	if err != nil {
		return fmt.Errorf("insert sale: %w", err)
	}

	for i := range o.Lines {
		l := &o.Lines[i]
		l.OrderID = o.ID
		err = tx.QueryRowContext(ctx,
			`INSERT INTO sale_items (sale_id, product_id, product_name, quantity, unit_price)
             VALUES ($1, $2, $3, $4, $5) RETURNING id`,
			o.ID, l.ProductID, l.ProductName, l.Quantity, l.UnitPrice,
		).Scan(&l.ID)
		if err != nil {
			return fmt.Errorf("insert sale_item: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

func (r *repo) GetByID(ctx context.Context, userID, orderID int64) (*Order, error) {
	var o Order
	err := r.db.QueryRowContext(ctx,
		`SELECT id, user_id, total_price, created_at
         FROM sales WHERE id = $1 AND user_id = $2`,
		orderID, userID,
	).Scan(&o.ID, &o.UserID, &o.TotalPrice, &o.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("select sale: %w", err)
	}

	orders := []Order{o}
	if err := r.loadLines(ctx, orders); err != nil {
		return nil, err
	}
	return &orders[0], nil
}

func (r *repo) ListByUser(ctx context.Context, userID int64) ([]Order, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT id, user_id, total_price, created_at
         FROM sales WHERE user_id = $1 ORDER BY created_at DESC, id DESC`,
		userID,
	)
	if err != nil {
		return nil, fmt.Errorf("select sales: %w", err)
	}
	defer rows.Close()

	orders := []Order{}
	for rows.Next() {
		var o Order
		if err := rows.Scan(&o.ID, &o.UserID, &o.TotalPrice, &o.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan sale: %w", err)
		}
		orders = append(orders, o)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows: %w", err)
	}

	if err := r.loadLines(ctx, orders); err != nil {
		return nil, err
	}
	return orders, nil
}

// loadLines fetches the lines of all orders with a single query.
func (r *repo) loadLines(ctx context.Context, orders []Order) error {
	if len(orders) == 0 {
		return nil
	}

	ids := make([]int64, len(orders))
	index := make(map[int64]int, len(orders))
	for i, o := range orders {
		ids[i] = o.ID
		index[o.ID] = i
		orders[i].Lines = []OrderLine{}
	}

	rows, err := r.db.QueryContext(ctx,
		`SELECT id, sale_id, product_id, product_name, quantity, unit_price
         FROM sale_items WHERE sale_id = ANY($1) ORDER BY sale_id, id`,
		pq.Array(ids),
	)
	if err != nil {
		return fmt.Errorf("select sale_items: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var l OrderLine
		if err := rows.Scan(&l.ID, &l.OrderID, &l.ProductID, &l.ProductName, &l.Quantity, &l.UnitPrice); err != nil {
			return fmt.Errorf("scan sale_item: %w", err)
		}
		if i, ok := index[l.OrderID]; ok {
			orders[i].Lines = append(orders[i].Lines, l)
		}
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("rows: %w", err)
	}
	return nil
}

// DailyReport aggregates the sales recorded on day (UTC).
func (r *repo) DailyReport(ctx context.Context, userID int64, day time.Time) (DailyReport, error) {
	start := time.Date(day.Year(), day.Month(), day.Day(), 0, 0, 0, 0, time.UTC)
	end := start.AddDate(0, 0, 1)

	rep := DailyReport{Date: start.Format(time.DateOnly)}
	err := r.db.QueryRowContext(ctx,
		`SELECT COUNT(*), COALESCE(SUM(total_price), 0)
         FROM sales WHERE user_id = $1 AND created_at >= $2 AND created_at < $3`,
		userID, start, end,
	).Scan(&rep.TotalSales, &rep.TotalAmount)
	if err != nil {
		return DailyReport{}, fmt.Errorf("daily report: %w", err)
	}
	return rep, nil
}

func (r *repo) BestSelling(ctx context.Context, userID int64, limit int) (BestSellingReport, error) {
	if limit <= 0 {
		limit = DefaultBestSellingLimit
	}

	rows, err := r.db.QueryContext(ctx,
		`SELECT si.product_id, MAX(si.product_name), SUM(si.quantity), SUM(si.quantity * si.unit_price)
         FROM sale_items si JOIN sales s ON s.id = si.sale_id
         WHERE s.user_id = $1
         GROUP BY si.product_id
         ORDER BY SUM(si.quantity) DESC, si.product_id
         LIMIT $2`,
		userID, limit,
	)
	if err != nil {
		return BestSellingReport{}, fmt.Errorf("best selling: %w", err)
	}
	defer rows.Close()

	rep := BestSellingReport{Products: []BestSellingProduct{}}
	for rows.Next() {
		var p BestSellingProduct
		if err := rows.Scan(&p.ProductID, &p.ProductName, &p.TotalQuantitySold, &p.TotalRevenue); err != nil {
			return BestSellingReport{}, fmt.Errorf("scan best selling: %w", err)
		}
		rep.Products = append(rep.Products, p)
	}
	if err := rows.Err(); err != nil {
		return BestSellingReport{}, fmt.Errorf("rows: %w", err)
	}
	return rep, nil
}

// SequenceRepository hands out per-partition event sequence numbers.
type SequenceRepository struct {
	db *sql.DB
}

func NewSequenceRepository(db *sql.DB) *SequenceRepository {
	return &SequenceRepository{db: db}
}

func (r *SequenceRepository) NextSequence(ctx context.Context, partitionKey string) (int64, error) {
	var seq int64
	if err := r.db.QueryRowContext(ctx, `
		INSERT INTO event_sequence (partition_key, last_sequence, updated_at)
		VALUES ($1, 1, NOW())
		ON CONFLICT (partition_key)
		DO UPDATE SET last_sequence = event_sequence.last_sequence + 1, updated_at = NOW()
		RETURNING last_sequence
	`, partitionKey).Scan(&seq); err != nil {
		return 0, fmt.Errorf("next sequence: %w", err)
	}
	return seq, nil
}
