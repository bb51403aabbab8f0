package catalog

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// DBPool matches the methods from *pgxpool.Pool that we use.
// This allows us to mock the database in tests.
type DBPool interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error)
}

type Repository interface {
	Create(ctx context.Context, ownerID int64, p NewProduct) (Product, error)
	List(ctx context.Context, ownerID int64, f ListFilter) (ListResult, error)
	Get(ctx context.Context, ownerID, id int64) (Product, error)
	Update(ctx context.Context, ownerID, id int64, patch ProductPatch) (Product, error)
	Delete(ctx context.Context, ownerID, id int64) error
	Decrement(ctx context.Context, ownerID, id int64, quantity int) (Product, error)
}

const productColumns = `id, user_id, name, description, price, quantity`

type PostgresRepository struct {
	pool DBPool
}

func NewPostgresRepository(pool DBPool) *PostgresRepository {
	return &PostgresRepository{pool: pool}
}

func (r *PostgresRepository) Create(ctx context.Context, ownerID int64, p NewProduct) (Product, error) {
	row := r.pool.QueryRow(ctx, `
		INSERT INTO products(user_id, name, description, price, quantity)
		VALUES($1, $2, $3, $4, $5)
		RETURNING `+productColumns,
		ownerID, p.Name, p.Description, p.Price, p.Quantity)

	out, err := scanProduct(row)
	if err != nil {
		return Product{}, fmt.Errorf("insert product: %w", err)
	}
	return out, nil
}

func (r *PostgresRepository) List(ctx context.Context, ownerID int64, f ListFilter) (ListResult, error) {
	where := []string{"user_id = $1"}
	args := []any{ownerID}
	if f.Name != "" {
		args = append(args, "%"+escapeLike(f.Name)+"%")
		where = append(where, fmt.Sprintf("name LIKE $%d", len(args)))
	}
	if f.ProductID != 0 {
		args = append(args, f.ProductID)
		where = append(where, fmt.Sprintf("id = $%d", len(args)))
	}
	clause := strings.Join(where, " AND ")

	var total int
	if err := r.pool.QueryRow(ctx, `SELECT count(*) FROM products WHERE `+clause, args...).Scan(&total); err != nil {
		return ListResult{}, fmt.Errorf("count products: %w", err)
	}

	limit := f.Limit
	if limit <= 0 {
		limit = DefaultListLimit
	}
	args = append(args, max(f.Skip, 0), limit)
	rows, err := r.pool.Query(ctx, fmt.Sprintf(
		`SELECT %s FROM products WHERE %s ORDER BY id OFFSET $%d LIMIT $%d`,
		productColumns, clause, len(args)-1, len(args)), args...)
	if err != nil {
		return ListResult{}, fmt.Errorf("list products: %w", err)
	}
	defer rows.Close()

	res := ListResult{Products: []Product{}, TotalCount: total}
	for rows.Next() {
		p, err := scanProduct(rows)
		if err != nil {
			return ListResult{}, fmt.Errorf("scan product: %w", err)
		}
		res.Products = append(res.Products, p)
	}
	if err := rows.Err(); err != nil {
		return ListResult{}, fmt.Errorf("list products: %w", err)
	}
	return res, nil
}

func (r *PostgresRepository) Get(ctx context.Context, ownerID, id int64) (Product, error) {
	row := r.pool.QueryRow(ctx, `SELECT `+productColumns+` FROM products WHERE id=$1 AND user_id=$2`, id, ownerID)
	p, err := scanProduct(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Product{}, ErrNotFound
		}
		return Product{}, fmt.Errorf("get product: %w", err)
	}
	return p, nil
}

// Update applies only the fields set in patch. A quantity in the patch
// replaces the stored value.
func (r *PostgresRepository) Update(ctx context.Context, ownerID, id int64, patch ProductPatch) (Product, error) {
	row := r.pool.QueryRow(ctx, `
		UPDATE products SET
			name = COALESCE($3, name),
			description = COALESCE($4, description),
			price = COALESCE($5, price),
			quantity = COALESCE($6, quantity),
			updated_at = now()
		WHERE id=$1 AND user_id=$2
		RETURNING `+productColumns,
		id, ownerID, patch.Name, patch.Description, patch.Price, patch.Quantity)

	p, err := scanProduct(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Product{}, ErrNotFound
		}
		return Product{}, fmt.Errorf("update product: %w", err)
	}
	return p, nil
}

func (r *PostgresRepository) Delete(ctx context.Context, ownerID, id int64) error {
	tag, err := r.pool.Exec(ctx, `DELETE FROM products WHERE id=$1 AND user_id=$2`, id, ownerID)
	if err != nil {
		return fmt.Errorf("delete product: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// Decrement subtracts quantity only if enough stock is left, in one
// statement. A product that exists but is short yields ErrInsufficientStock.
func (r *PostgresRepository) Decrement(ctx context.Context, ownerID, id int64, quantity int) (Product, error) {
	row := r.pool.QueryRow(ctx, `
		UPDATE products
		SET quantity = quantity - $3, updated_at = now()
		WHERE id=$1 AND user_id=$2 AND quantity >= $3
		RETURNING `+productColumns,
		id, ownerID, quantity)

	p, err := scanProduct(row)
	if err == nil {
		return p, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return Product{}, fmt.Errorf("decrement product: %w", err)
	}

	if _, err := r.Get(ctx, ownerID, id); err != nil {
		return Product{}, err
	}
	return Product{}, ErrInsufficientStock
}

func scanProduct(row pgx.Row) (Product, error) {
	var p Product
	err := row.Scan(&p.ID, &p.UserID, &p.Name, &p.Description, &p.Price, &p.Quantity)
	return p, err
}

func escapeLike(s string) string {
	return strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`).Replace(s)
}
