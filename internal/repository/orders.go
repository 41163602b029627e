package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/mmeshcher/gamecodes-store/internal/model"
)

// CreateOrder сохраняет заказ без строк.
func (r *PostgresRepository) CreateOrder(ctx context.Context, o model.Order) error {
	_, err := r.exec(ctx, `
INSERT INTO orders (id, account_id, total_amount, payment_method, status, created_at)
VALUES ($1, $2, $3, $4, $5, $6)`,
		o.ID, o.AccountID, o.TotalAmount, string(o.PaymentMethod), string(o.Status), o.CreatedAt,
	)
	if err != nil {
		if isForeignKeyViolation(err) {
			return model.ErrAccountNotFound
		}
		return fmt.Errorf("insert order: %w", err)
	}
	return nil
}

// CreateOrderLines сохраняет строки заказа одним пакетом.
func (r *PostgresRepository) CreateOrderLines(ctx context.Context, lines []model.OrderLine) error {
	if len(lines) == 0 {
		return nil
	}

	b := &pgx.Batch{}
	for _, l := range lines {
		b.Queue(
			`INSERT INTO order_lines (id, order_id, product_id, unit_id, unit_price) VALUES ($1, $2, $3, $4, $5)`,
			l.ID, l.OrderID, l.ProductID, l.UnitID, l.UnitPrice,
		)
	}

	br := r.sendBatch(ctx, b)
	for range lines {
		if _, err := br.Exec(); err != nil {
			_ = br.Close()
			return fmt.Errorf("insert order line: %w", err)
		}
	}
	if err := br.Close(); err != nil {
		return fmt.Errorf("close batch: %w", err)
	}
	return nil
}

// SetOrderStatus переводит заказ из статуса from в статус to.
func (r *PostgresRepository) SetOrderStatus(ctx context.Context, orderID string, from, to model.OrderStatus) error {
	tag, err := r.exec(ctx,
		`UPDATE orders SET status = $3 WHERE id = $1 AND status = $2`,
		orderID, string(from), string(to),
	)
	if err != nil {
		return fmt.Errorf("update order status: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return model.ErrOrderNotFound
	}
	return nil
}

const orderColumns = `id, account_id, total_amount, payment_method, status, created_at`

// GetOrder возвращает заказ со строками и зашифрованными кодами.
// Если ownerID не пуст, заказ ищется только среди заказов этого владельца.
func (r *PostgresRepository) GetOrder(ctx context.Context, orderID, ownerID string) (*model.Order, error) {
	var order *model.Order
	err := r.withRetry(ctx, func() error {
		var row pgx.Row
		if ownerID == "" {
			row = r.queryRow(ctx, `SELECT `+orderColumns+` FROM orders WHERE id = $1`, orderID)
		} else {
			row = r.queryRow(ctx, `SELECT `+orderColumns+` FROM orders WHERE id = $1 AND account_id = $2`, orderID, ownerID)
		}

		o, err := scanOrder(row)
		if err != nil {
			return err
		}

		lines, err := r.orderLines(ctx, []string{o.ID})
		if err != nil {
			return err
		}
		o.Lines = lines[o.ID]
		order = o
		return nil
	})
	if err != nil {
		return nil, err
	}
	return order, nil
}

// ListOrdersByAccount возвращает заказы владельца, новые первыми.
func (r *PostgresRepository) ListOrdersByAccount(ctx context.Context, accountID string) ([]model.Order, error) {
	var orders []model.Order
	err := r.withRetry(ctx, func() error {
		rows, err := r.query(ctx,
			`SELECT `+orderColumns+` FROM orders WHERE account_id = $1 ORDER BY created_at DESC`,
			accountID,
		)
		if err != nil {
			return fmt.Errorf("select orders: %w", err)
		}

		orders, err = pgx.CollectRows(rows, func(row pgx.CollectableRow) (model.Order, error) {
			o, err := scanOrder(row)
			if err != nil {
				return model.Order{}, err
			}
			return *o, nil
		})
		if err != nil {
			return fmt.Errorf("scan orders: %w", err)
		}
		if len(orders) == 0 {
			return nil
		}

		ids := make([]string, 0, len(orders))
		for _, o := range orders {
			ids = append(ids, o.ID)
		}
		lines, err := r.orderLines(ctx, ids)
		if err != nil {
			return err
		}
		for i := range orders {
			orders[i].Lines = lines[orders[i].ID]
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return orders, nil
}

func scanOrder(row pgx.Row) (*model.Order, error) {
	var (
		o      model.Order
		method string
		status string
	)
	err := row.Scan(&o.ID, &o.AccountID, &o.TotalAmount, &method, &status, &o.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) || isInvalidID(err) {
			return nil, model.ErrOrderNotFound
		}
		return nil, fmt.Errorf("get order: %w", err)
	}
	o.PaymentMethod = model.PaymentMethod(method)
	o.Status = model.OrderStatus(status)
	return &o, nil
}

func (r *PostgresRepository) orderLines(ctx context.Context, orderIDs []string) (map[string][]model.OrderLine, error) {
	rows, err := r.query(ctx, `
SELECT l.id, l.order_id, l.product_id, p.name, l.unit_id, l.unit_price, u.payload_encrypted
FROM order_lines l
JOIN products p ON p.id = l.product_id
JOIN inventory_units u ON u.id = l.unit_id
WHERE l.order_id = ANY($1::uuid[])
ORDER BY l.order_id, p.name, l.product_id, u.created_at, u.seq`,
		orderIDs,
	)
	if err != nil {
		return nil, fmt.Errorf("select order lines: %w", err)
	}
	defer rows.Close()

	res := make(map[string][]model.OrderLine, len(orderIDs))
	for rows.Next() {
		var l model.OrderLine
		if err := rows.Scan(&l.ID, &l.OrderID, &l.ProductID, &l.ProductName, &l.UnitID, &l.UnitPrice, &l.Payload); err != nil {
			return nil, fmt.Errorf("scan order line: %w", err)
		}
		res[l.OrderID] = append(res[l.OrderID], l)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}
	return res, nil
}
