// README: Order store interface and PostgreSQL implementation.
package order

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"quickbite/internal/types"
)

// Store is the persistence boundary for orders. AcceptAtomic and UpdateStatus
// are conditional updates evaluated atomically by the storage layer; success
// is determined solely by whether a row was affected.
type Store interface {
	Create(ctx context.Context, o *Order) error
	Get(ctx context.Context, id types.ID) (*Order, error)
	AcceptAtomic(ctx context.Context, orderID, driverID types.ID, details DriverDetails) (bool, error)
	UpdateStatus(ctx context.Context, id types.ID, from, to Status) (bool, error)
	AppendTimeline(ctx context.Context, id types.ID, e TimelineEntry) error
	Timeline(ctx context.Context, id types.ID) ([]TimelineEntry, error)
	ListUnassignedSince(ctx context.Context, since time.Time) ([]*Order, error)
}

type PgStore struct {
	db *pgxpool.Pool
}

func NewPgStore(db *pgxpool.Pool) *PgStore {
	return &PgStore{db: db}
}

func (s *PgStore) Create(ctx context.Context, o *Order) error {
	items, err := json.Marshal(o.Items)
	if err != nil {
		return err
	}
	_, err = s.db.Exec(ctx, `
		INSERT INTO orders (
			id, customer_id, merchant_id, merchant_city, city_token,
			pickup_lat, pickup_lng,
			items, subtotal, delivery_fee, tax, total,
			address_line, address_city, address_lat, address_lng,
			payment_method, payment_status, status, created_at
		) VALUES (
			$1, $2, $3, $4, $5,
			$6, $7,
			$8, $9, $10, $11, $12,
			$13, $14, $15, $16,
			$17, $18, $19, $20
		)`,
		string(o.ID),
		string(o.CustomerID),
		string(o.MerchantID),
		o.MerchantCity,
		o.CityToken,
		o.Pickup.Lat, o.Pickup.Lng,
		items,
		o.Bill.Subtotal.Amount, o.Bill.DeliveryFee.Amount, o.Bill.Tax.Amount, o.Bill.Total.Amount,
		o.Address.Line, o.Address.City, o.Address.Position.Lat, o.Address.Position.Lng,
		o.PaymentMethod, o.PaymentStatus,
		string(o.Status),
		o.CreatedAt,
	)
	return err
}

const orderColumns = `
	id, customer_id, merchant_id, merchant_city, city_token,
	pickup_lat, pickup_lng,
	items, subtotal, delivery_fee, tax, total,
	address_line, address_city, address_lat, address_lng,
	payment_method, payment_status, status,
	driver_id, driver_name, driver_phone, driver_vehicle,
	created_at, delivered_at, cancelled_at`

func (s *PgStore) Get(ctx context.Context, id types.ID) (*Order, error) {
	row := s.db.QueryRow(ctx, `SELECT `+orderColumns+` FROM orders WHERE id = $1`, string(id))
	o, err := scanOrder(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	return o, err
}

// AcceptAtomic claims the order for the driver. The WHERE clause is the whole
// contract: exactly one concurrent caller can flip driver_id from NULL.
func (s *PgStore) AcceptAtomic(ctx context.Context, orderID, driverID types.ID, details DriverDetails) (bool, error) {
	tag, err := s.db.Exec(ctx, `
		UPDATE orders
		SET driver_id = $1,
		    driver_name = $2,
		    driver_phone = $3,
		    driver_vehicle = $4,
		    status = $5
		WHERE id = $6
		  AND driver_id IS NULL
		  AND status = $7`,
		string(driverID),
		details.Name,
		details.Phone,
		details.Vehicle,
		string(StatusConfirmed),
		string(orderID),
		string(StatusPlaced),
	)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() == 1, nil
}

func (s *PgStore) UpdateStatus(ctx context.Context, id types.ID, from, to Status) (bool, error) {
	tag, err := s.db.Exec(ctx, `
		UPDATE orders
		SET status = $1,
		    delivered_at = CASE WHEN $1 = 'delivered' THEN NOW() ELSE delivered_at END,
		    cancelled_at = CASE WHEN $1 = 'cancelled' THEN NOW() ELSE cancelled_at END
		WHERE id = $2 AND status = $3`,
		string(to),
		string(id),
		string(from),
	)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() == 1, nil
}

func (s *PgStore) AppendTimeline(ctx context.Context, id types.ID, e TimelineEntry) error {
	_, err := s.db.Exec(ctx, `
		INSERT INTO order_timeline (order_id, status, at, description)
		VALUES ($1, $2, $3, $4)`,
		string(id),
		string(e.Status),
		e.At,
		e.Description,
	)
	return err
}

func (s *PgStore) Timeline(ctx context.Context, id types.ID) ([]TimelineEntry, error) {
	rows, err := s.db.Query(ctx, `
		SELECT status, at, description
		FROM order_timeline
		WHERE order_id = $1
		ORDER BY seq`, string(id))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var entries []TimelineEntry
	for rows.Next() {
		var e TimelineEntry
		var status string
		if err := rows.Scan(&status, &e.At, &e.Description); err != nil {
			return nil, err
		}
		e.Status = Status(status)
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

func (s *PgStore) ListUnassignedSince(ctx context.Context, since time.Time) ([]*Order, error) {
	rows, err := s.db.Query(ctx, `
		SELECT `+orderColumns+`
		FROM orders
		WHERE status = $1 AND driver_id IS NULL AND created_at >= $2
		ORDER BY created_at DESC`,
		string(StatusPlaced), since)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var orders []*Order
	for rows.Next() {
		o, err := scanOrder(rows)
		if err != nil {
			return nil, err
		}
		orders = append(orders, o)
	}
	return orders, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanOrder(row rowScanner) (*Order, error) {
	var o Order
	var items []byte
	var driverID, driverName, driverPhone, driverVehicle sql.NullString
	var deliveredAt, cancelledAt sql.NullTime
	var status string

	err := row.Scan(
		&o.ID, &o.CustomerID, &o.MerchantID, &o.MerchantCity, &o.CityToken,
		&o.Pickup.Lat, &o.Pickup.Lng,
		&items, &o.Bill.Subtotal.Amount, &o.Bill.DeliveryFee.Amount, &o.Bill.Tax.Amount, &o.Bill.Total.Amount,
		&o.Address.Line, &o.Address.City, &o.Address.Position.Lat, &o.Address.Position.Lng,
		&o.PaymentMethod, &o.PaymentStatus, &status,
		&driverID, &driverName, &driverPhone, &driverVehicle,
		&o.CreatedAt, &deliveredAt, &cancelledAt,
	)
	if err != nil {
		return nil, err
	}

	o.Status = Status(status)
	if err := json.Unmarshal(items, &o.Items); err != nil {
		return nil, err
	}
	for i := range o.Items {
		if o.Items[i].UnitPrice.Currency == "" {
			o.Items[i].UnitPrice.Currency = "INR"
		}
	}
	o.Bill.Subtotal.Currency = "INR"
	o.Bill.DeliveryFee.Currency = "INR"
	o.Bill.Tax.Currency = "INR"
	o.Bill.Total.Currency = "INR"

	if driverID.Valid {
		d := types.ID(driverID.String)
		o.DriverID = &d
		o.DriverDetails = &DriverDetails{
			Name:    driverName.String,
			Phone:   driverPhone.String,
			Vehicle: driverVehicle.String,
		}
	}
	if deliveredAt.Valid {
		t := deliveredAt.Time
		o.DeliveredAt = &t
	}
	if cancelledAt.Valid {
		t := cancelledAt.Time
		o.CancelledAt = &t
	}
	return &o, nil
}
