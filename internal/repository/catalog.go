package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"

	"github.com/mmeshcher/gamecodes-store/internal/model"
)

// ListProducts возвращает товары каталога вместе с количеством свободных кодов.
func (r *PostgresRepository) ListProducts(ctx context.Context, activeOnly bool) ([]model.Product, error) {
	const query = `
SELECT p.id, p.name, p.platform, p.price, p.active, p.created_at,
       COUNT(u.id) FILTER (WHERE u.status = 'available')
FROM products p
LEFT JOIN inventory_units u ON u.product_id = p.id
WHERE p.active OR NOT $1
GROUP BY p.id
ORDER BY p.platform, p.name`

	var products []model.Product
	err := r.withRetry(ctx, func() error {
		rows, err := r.query(ctx, query, activeOnly)
		if err != nil {
			return fmt.Errorf("select products: %w", err)
		}
		defer rows.Close()

		products = products[:0]
		for rows.Next() {
			var p model.Product
			if err := rows.Scan(&p.ID, &p.Name, &p.Platform, &p.Price, &p.Active, &p.CreatedAt, &p.AvailableCount); err != nil {
				return fmt.Errorf("scan product: %w", err)
			}
			products = append(products, p)
		}
		if err := rows.Err(); err != nil {
			return fmt.Errorf("rows error: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	return products, nil
}

// GetProduct возвращает товар по идентификатору.
func (r *PostgresRepository) GetProduct(ctx context.Context, id string) (*model.Product, error) {
	var p model.Product
	err := r.queryRow(ctx,
		`SELECT id, name, platform, price, active, created_at FROM products WHERE id = $1`,
		id,
	).Scan(&p.ID, &p.Name, &p.Platform, &p.Price, &p.Active, &p.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) || isInvalidID(err) {
			return nil, &model.ProductNotFoundError{ProductID: id}
		}
		return nil, fmt.Errorf("get product: %w", err)
	}
	return &p, nil
}

// CreateProduct сохраняет новый товар.
func (r *PostgresRepository) CreateProduct(ctx context.Context, p model.Product) error {
	_, err := r.exec(ctx,
		`INSERT INTO products (id, name, platform, price, active) VALUES ($1, $2, $3, $4, $5)`,
		p.ID, p.Name, p.Platform, p.Price, p.Active,
	)
	if err != nil {
		return fmt.Errorf("create product: %w", err)
	}
	return nil
}

// UpdateProductPrice меняет цену товара. Цены в уже оформленных заказах не меняются.
func (r *PostgresRepository) UpdateProductPrice(ctx context.Context, id string, price decimal.Decimal) error {
	return r.updateProduct(ctx, `UPDATE products SET price = $2 WHERE id = $1`, id, price)
}

// SetProductActive включает или снимает товар с продажи.
func (r *PostgresRepository) SetProductActive(ctx context.Context, id string, active bool) error {
	return r.updateProduct(ctx, `UPDATE products SET active = $2 WHERE id = $1`, id, active)
}

func (r *PostgresRepository) updateProduct(ctx context.Context, stmt, id string, value any) error {
	tag, err := r.exec(ctx, stmt, id, value)
	if err != nil {
		if isInvalidID(err) {
			return &model.ProductNotFoundError{ProductID: id}
		}
		return fmt.Errorf("update product: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return &model.ProductNotFoundError{ProductID: id}
	}
	return nil
}

// DeleteProduct удаляет товар вместе со свободными кодами.
// Товар, по которому уже продан хотя бы один код, удалить нельзя.
func (r *PostgresRepository) DeleteProduct(ctx context.Context, id string) error {
	return r.WithTx(ctx, func(ctx context.Context) error {
		var sold bool
		err := r.queryRow(ctx,
			`SELECT EXISTS (SELECT 1 FROM inventory_units WHERE product_id = $1 AND status = 'allocated')`,
			id,
		).Scan(&sold)
		if err != nil {
			if isInvalidID(err) {
				return &model.ProductNotFoundError{ProductID: id}
			}
			return fmt.Errorf("check sold units: %w", err)
		}
		if sold {
			return model.ErrProductHasSales
		}

		if _, err := r.exec(ctx,
			`DELETE FROM inventory_units WHERE product_id = $1 AND status = 'available'`, id,
		); err != nil {
			return fmt.Errorf("delete available units: %w", err)
		}

		tag, err := r.exec(ctx, `DELETE FROM products WHERE id = $1`, id)
		if err != nil {
			// Код мог быть продан параллельно, пока шло удаление.
			if isForeignKeyViolation(err) {
				return model.ErrProductHasSales
			}
			return fmt.Errorf("delete product: %w", err)
		}
		if tag.RowsAffected() == 0 {
			return &model.ProductNotFoundError{ProductID: id}
		}
		return nil
	})
}

// CountAvailableUnits возвращает количество свободных кодов товара.
func (r *PostgresRepository) CountAvailableUnits(ctx context.Context, productID string) (int, error) {
	var n int
	err := r.queryRow(ctx,
		`SELECT COUNT(*) FROM inventory_units WHERE product_id = $1 AND status = 'available'`,
		productID,
	).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count available units: %w", err)
	}
	return n, nil
}

// LockAvailableUnits блокирует до limit самых старых свободных кодов товара (FIFO по времени загрузки).
// Строки, уже заблокированные конкурирующими транзакциями, пропускаются, поэтому
// результат может содержать меньше limit кодов.
func (r *PostgresRepository) LockAvailableUnits(ctx context.Context, productID string, limit int) ([]model.InventoryUnit, error) {
	rows, err := r.query(ctx, `
SELECT id, product_id, payload_encrypted, status, created_at
FROM inventory_units
WHERE product_id = $1 AND status = 'available'
ORDER BY created_at, seq
LIMIT $2
FOR UPDATE SKIP LOCKED`,
		productID, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("lock available units: %w", err)
	}

	units, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (model.InventoryUnit, error) {
		var (
			u      model.InventoryUnit
			status string
		)
		err := row.Scan(&u.ID, &u.ProductID, &u.Payload, &status, &u.CreatedAt)
		u.Status = model.UnitStatus(status)
		return u, err
	})
	if err != nil {
		return nil, fmt.Errorf("scan locked units: %w", err)
	}
	return units, nil
}

// AllocateUnits помечает коды проданными в заказе orderID.
// Обновляются только свободные коды; возвращается число фактически обновлённых строк.
func (r *PostgresRepository) AllocateUnits(ctx context.Context, orderID string, unitIDs []string, at time.Time) (int64, error) {
	tag, err := r.exec(ctx, `
UPDATE inventory_units
SET status = 'allocated', order_id = $1, allocated_at = $2
WHERE id = ANY($3::uuid[]) AND status = 'available'`,
		orderID, at, unitIDs,
	)
	if err != nil {
		return 0, fmt.Errorf("allocate units: %w", err)
	}
	return tag.RowsAffected(), nil
}

// AddInventoryUnits загружает пакет зашифрованных кодов. Порядок в пакете сохраняется
// как порядок выдачи; все коды пакета получают время загрузки at.
func (r *PostgresRepository) AddInventoryUnits(ctx context.Context, productID string, payloads [][]byte, at time.Time) (int64, error) {
	pid, err := uuid.Parse(productID)
	if err != nil {
		return 0, &model.ProductNotFoundError{ProductID: productID}
	}

	var n int64
	err = r.WithTx(ctx, func(ctx context.Context) error {
		// Блокируем товар, чтобы его нельзя было удалить параллельно с загрузкой.
		var dummy int
		if err := r.queryRow(ctx, `SELECT 1 FROM products WHERE id = $1 FOR SHARE`, productID).Scan(&dummy); err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				return &model.ProductNotFoundError{ProductID: productID}
			}
			return fmt.Errorf("lock product: %w", err)
		}

		rows := make([][]any, 0, len(payloads))
		for _, p := range payloads {
			rows = append(rows, []any{uuid.New(), pid, p, at.UTC()})
		}

		n, err = r.copyFrom(ctx,
			pgx.Identifier{"inventory_units"},
			[]string{"id", "product_id", "payload_encrypted", "created_at"},
			pgx.CopyFromRows(rows),
		)
		if err != nil {
			return fmt.Errorf("copy inventory units: %w", err)
		}
		return nil
	})
	return n, err
}

// DeleteInventoryUnit удаляет свободный код. Проданный код удалить нельзя.
func (r *PostgresRepository) DeleteInventoryUnit(ctx context.Context, unitID string) error {
	tag, err := r.exec(ctx,
		`DELETE FROM inventory_units WHERE id = $1 AND status = 'available'`,
		unitID,
	)
	if err != nil {
		if isInvalidID(err) {
			return model.ErrUnitNotFound
		}
		return fmt.Errorf("delete inventory unit: %w", err)
	}
	if tag.RowsAffected() == 1 {
		return nil
	}

	var exists bool
	if err := r.queryRow(ctx, `SELECT EXISTS (SELECT 1 FROM inventory_units WHERE id = $1)`, unitID).Scan(&exists); err != nil {
		return fmt.Errorf("check inventory unit: %w", err)
	}
	if exists {
		return model.ErrUnitAllocated
	}
	return model.ErrUnitNotFound
}
