// Package orders owns the order store. All mutations run under a per-order
// row lock (SELECT ... FOR UPDATE) so that webhook reconciliation and
// operator actions against the same order are linearized, while unrelated
// orders proceed in parallel.
package orders

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"

	"github.com/beauzead/order-engine/internal/domain"
)

var (
	// ErrEventAlreadyApplied signals an idempotent no-op: the webhook event
	// id has been durably recorded by an earlier delivery.
	ErrEventAlreadyApplied = errors.New("webhook event already applied")
	// ErrOrderNotFound is returned when a lookup misses.
	ErrOrderNotFound = errors.New("order not found")
)

type Store struct {
	db *sql.DB
}

func NewStore(db *sql.DB) *Store {
	return &Store{db: db}
}

// Create persists a freshly built PENDING order together with its initial
// history entry. The unique index on checkout_session_id enforces the
// one-order-per-session invariant at the storage layer.
func (s *Store) Create(ctx context.Context, order *domain.Order) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	addr, err := json.Marshal(order.Address)
	if err != nil {
		return fmt.Errorf("marshal shipping address: %w", err)
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO orders (
			id, buyer_id, product_id, seller_id,
			unit_price, quantity, subtotal, delivery_charge, platform_fee, total_paid,
			currency_symbol, address, payment_status, order_status,
			checkout_session_id, created_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16)
	`,
		order.ID, order.BuyerID, order.ProductID, order.SellerID,
		order.UnitPrice, order.Quantity, order.Subtotal, order.DeliveryCharge, order.PlatformFee, order.TotalPaid,
		order.CurrencySymbol, addr, order.PaymentStatus, order.OrderStatus,
		order.CheckoutSessionID, order.CreatedAt,
	)
	if err != nil {
		return err
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO order_status_history (id, order_id, status, occurred_at, note)
		VALUES ($1, $2, $3, $4, $5)
	`, uuid.New().String(), order.ID, order.OrderStatus, order.CreatedAt, "order placed")
	if err != nil {
		return err
	}

	return tx.Commit()
}

// GetByID returns nil, nil when the order does not exist.
func (s *Store) GetByID(ctx context.Context, id string) (*domain.Order, error) {
	return s.getOrder(ctx, s.db, "id", id, false)
}

// GetByCheckoutSession resolves the webhook reconciliation key.
func (s *Store) GetByCheckoutSession(ctx context.Context, sessionID string) (*domain.Order, error) {
	return s.getOrder(ctx, s.db, "checkout_session_id", sessionID, false)
}

type querier interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
}

func (s *Store) getOrder(ctx context.Context, q querier, column, value string, forUpdate bool) (*domain.Order, error) {
	query := fmt.Sprintf(`
		SELECT id, buyer_id, product_id, seller_id,
			unit_price, quantity, subtotal, delivery_charge, platform_fee, total_paid,
			currency_symbol, address, payment_status, order_status,
			checkout_session_id, created_at, delivery_date, cancelled_date
		FROM orders
		WHERE %s = $1`, pq.QuoteIdentifier(column))
	if forUpdate {
		query += " FOR UPDATE"
	}

	order := &domain.Order{}
	var addr []byte
	var deliveryDate, cancelledDate sql.NullTime

	err := q.QueryRowContext(ctx, query, value).Scan(
		&order.ID, &order.BuyerID, &order.ProductID, &order.SellerID,
		&order.UnitPrice, &order.Quantity, &order.Subtotal, &order.DeliveryCharge, &order.PlatformFee, &order.TotalPaid,
		&order.CurrencySymbol, &addr, &order.PaymentStatus, &order.OrderStatus,
		&order.CheckoutSessionID, &order.CreatedAt, &deliveryDate, &cancelledDate,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}

	if err := json.Unmarshal(addr, &order.Address); err != nil {
		return nil, fmt.Errorf("unmarshal shipping address: %w", err)
	}
	if deliveryDate.Valid {
		order.DeliveryDate = &deliveryDate.Time
	}
	if cancelledDate.Valid {
		order.CancelledDate = &cancelledDate.Time
	}

	history, err := s.loadHistory(ctx, q, order.ID)
	if err != nil {
		return nil, err
	}
	order.StatusHistory = history

	return order, nil
}

func (s *Store) loadHistory(ctx context.Context, q querier, orderID string) ([]domain.StatusChange, error) {
	rows, err := q.QueryContext(ctx, `
		SELECT status, occurred_at, note
		FROM order_status_history
		WHERE order_id = $1
		ORDER BY occurred_at, id
	`, orderID)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var history []domain.StatusChange
	for rows.Next() {
		var change domain.StatusChange
		if err := rows.Scan(&change.Status, &change.Timestamp, &change.Note); err != nil {
			return nil, err
		}
		history = append(history, change)
	}

	return history, rows.Err()
}

// Transition applies a single state-machine transition under the order's
// row lock: read, decide legality, write, append history — one linearized
// step. Domain errors pass through untouched so callers can classify them.
func (s *Store) Transition(ctx context.Context, orderID string, t domain.Transition, note string, now time.Time) (*domain.Order, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer func() { _ = tx.Rollback() }()

	order, err := s.getOrder(ctx, tx, "id", orderID, true)
	if err != nil {
		return nil, err
	}
	if order == nil {
		return nil, ErrOrderNotFound
	}

	historyBefore := len(order.StatusHistory)
	if err := domain.Apply(order, t, now, note); err != nil {
		return nil, err
	}

	if err := s.persistMutation(ctx, tx, order, historyBefore); err != nil {
		return nil, err
	}

	if err := tx.Commit(); err != nil {
		return nil, err
	}
	return order, nil
}

// ReconcileEvent applies a webhook event exactly once. The event record and
// the order mutation commit in the same transaction, so a crash between the
// two cannot lose or duplicate a transition. The apply callback receives the
// row-locked order and mutates it through the domain layer.
func (s *Store) ReconcileEvent(ctx context.Context, eventID, eventType, sessionID string, now time.Time, apply func(order *domain.Order) error) (*domain.Order, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer func() { _ = tx.Rollback() }()

	result, err := tx.ExecContext(ctx, `
		INSERT INTO webhook_events (event_id, event_type, received_at, applied_at)
		VALUES ($1, $2, $3, $3)
		ON CONFLICT (event_id) DO NOTHING
	`, eventID, eventType, now)
	if err != nil {
		return nil, err
	}
	inserted, err := result.RowsAffected()
	if err != nil {
		return nil, err
	}
	if inserted == 0 {
		return nil, ErrEventAlreadyApplied
	}

	order, err := s.getOrder(ctx, tx, "checkout_session_id", sessionID, true)
	if err != nil {
		return nil, err
	}
	if order == nil {
		// Nothing to reconcile against. The transaction rolls back so the
		// event is not marked applied; redelivery takes this same path.
		return nil, ErrOrderNotFound
	}

	historyBefore := len(order.StatusHistory)
	if err := apply(order); err != nil {
		return nil, err
	}

	if err := s.persistMutation(ctx, tx, order, historyBefore); err != nil {
		return nil, err
	}

	if err := tx.Commit(); err != nil {
		return nil, err
	}
	return order, nil
}

// RecordEvent durably records a webhook event that maps to no order
// mutation (unknown types, refunds) so redeliveries short-circuit.
func (s *Store) RecordEvent(ctx context.Context, eventID, eventType string, now time.Time) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO webhook_events (event_id, event_type, received_at, applied_at)
		VALUES ($1, $2, $3, $3)
		ON CONFLICT (event_id) DO NOTHING
	`, eventID, eventType, now)
	return err
}

// RecordRefund stores a provider refund notification. Refunds never force a
// fulfillment change; the order reference may be null for foreign refunds.
func (s *Store) RecordRefund(ctx context.Context, refundID string, orderID *string, amount int64, currency string, now time.Time) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO refunds (refund_id, order_id, amount, currency, created_at)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (refund_id) DO NOTHING
	`, refundID, orderID, amount, currency, now)
	return err
}

func (s *Store) persistMutation(ctx context.Context, tx *sql.Tx, order *domain.Order, historyBefore int) error {
	var deliveryDate, cancelledDate sql.NullTime
	if order.DeliveryDate != nil {
		deliveryDate = sql.NullTime{Time: *order.DeliveryDate, Valid: true}
	}
	if order.CancelledDate != nil {
		cancelledDate = sql.NullTime{Time: *order.CancelledDate, Valid: true}
	}

	_, err := tx.ExecContext(ctx, `
		UPDATE orders
		SET payment_status = $2, order_status = $3, delivery_date = $4, cancelled_date = $5
		WHERE id = $1
	`, order.ID, order.PaymentStatus, order.OrderStatus, deliveryDate, cancelledDate)
	if err != nil {
		return err
	}

	for _, change := range order.StatusHistory[historyBefore:] {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO order_status_history (id, order_id, status, occurred_at, note)
			VALUES ($1, $2, $3, $4, $5)
		`, uuid.New().String(), order.ID, change.Status, change.Timestamp, change.Note)
		if err != nil {
			return err
		}
	}

	return nil
}

// ListFor returns the read projection for an actor. Buyers and sellers see
// their own orders; an empty actor with the admin role sees everything.
func (s *Store) ListFor(ctx context.Context, actor, role string) ([]domain.Order, error) {
	switch role {
	case "buyer":
		return s.list(ctx, "WHERE buyer_id = $1", actor)
	case "seller":
		return s.list(ctx, "WHERE seller_id = $1", actor)
	default:
		return s.list(ctx, "")
	}
}

// ListShipping feeds the shipping console: everything an operator is moving
// through the fulfillment pipeline.
func (s *Store) ListShipping(ctx context.Context) ([]domain.Order, error) {
	return s.list(ctx, "WHERE order_status = ANY($1)", pq.Array([]string{
		string(domain.OrderStatusApproved),
		string(domain.OrderStatusPacked),
		string(domain.OrderStatusShipped),
		string(domain.OrderStatusDelivered),
	}))
}

func (s *Store) list(ctx context.Context, where string, args ...any) ([]domain.Order, error) {
	query := fmt.Sprintf(`
		SELECT id, buyer_id, product_id, seller_id,
			unit_price, quantity, subtotal, delivery_charge, platform_fee, total_paid,
			currency_symbol, address, payment_status, order_status,
			checkout_session_id, created_at, delivery_date, cancelled_date
		FROM orders
		%s
		ORDER BY created_at DESC`, where)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	orderMap := make(map[string]*domain.Order)
	var orderIDs []string

	for rows.Next() {
		order := domain.Order{}
		var addr []byte
		var deliveryDate, cancelledDate sql.NullTime

		if err := rows.Scan(
			&order.ID, &order.BuyerID, &order.ProductID, &order.SellerID,
			&order.UnitPrice, &order.Quantity, &order.Subtotal, &order.DeliveryCharge, &order.PlatformFee, &order.TotalPaid,
			&order.CurrencySymbol, &addr, &order.PaymentStatus, &order.OrderStatus,
			&order.CheckoutSessionID, &order.CreatedAt, &deliveryDate, &cancelledDate,
		); err != nil {
			return nil, err
		}
		if err := json.Unmarshal(addr, &order.Address); err != nil {
			return nil, fmt.Errorf("unmarshal shipping address: %w", err)
		}
		if deliveryDate.Valid {
			order.DeliveryDate = &deliveryDate.Time
		}
		if cancelledDate.Valid {
			order.CancelledDate = &cancelledDate.Time
		}

		orderMap[order.ID] = &order
		orderIDs = append(orderIDs, order.ID)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	if len(orderIDs) == 0 {
		return []domain.Order{}, nil
	}

	historyRows, err := s.db.QueryContext(ctx, `
		SELECT order_id, status, occurred_at, note
		FROM order_status_history
		WHERE order_id = ANY($1)
		ORDER BY occurred_at, id
	`, pq.Array(orderIDs))
	if err != nil {
		return nil, err
	}
	defer func() { _ = historyRows.Close() }()

	for historyRows.Next() {
		var orderID string
		var change domain.StatusChange
		if err := historyRows.Scan(&orderID, &change.Status, &change.Timestamp, &change.Note); err != nil {
			return nil, err
		}
		order := orderMap[orderID]
		order.StatusHistory = append(order.StatusHistory, change)
	}
	if err := historyRows.Err(); err != nil {
		return nil, err
	}

	orders := make([]domain.Order, 0, len(orderIDs))
	for _, id := range orderIDs {
		orders = append(orders, *orderMap[id])
	}
	return orders, nil
}
