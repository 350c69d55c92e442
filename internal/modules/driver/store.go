// README: Driver store backed by PostgreSQL.
package driver

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"quickbite/internal/types"
)

var ErrNotFound = errors.New("driver not found")

type Store interface {
	Get(ctx context.Context, id types.ID) (*Driver, error)
	FilterEligible(ctx context.Context, ids []types.ID, cityToken string) ([]types.ID, error)
	EligibleInCity(ctx context.Context, cityToken string) ([]types.ID, error)
	PushTokens(ctx context.Context, ids []types.ID) (map[types.ID]string, error)
	SetOnline(ctx context.Context, id types.ID, online bool) error
	UpdateLocation(ctx context.Context, id types.ID, p types.Point) error
	UpdateCity(ctx context.Context, id types.ID, city, cityToken string) error
	UpdatePushToken(ctx context.Context, id types.ID, token string) error
	CreditEarnings(ctx context.Context, id types.ID, amount types.Money) error
	OpenSession(ctx context.Context, id types.ID, at time.Time) error
	CloseSession(ctx context.Context, id types.ID, at time.Time) error
	OnlineHours(ctx context.Context, id types.ID, since time.Time) (float64, error)
}

type PgStore struct {
	db *pgxpool.Pool
}

func NewPgStore(db *pgxpool.Pool) *PgStore {
	return &PgStore{db: db}
}

func (s *PgStore) Get(ctx context.Context, id types.ID) (*Driver, error) {
	row := s.db.QueryRow(ctx, `
		SELECT id, name, phone, vehicle, online, lat, lng, city, city_token,
		       op_status, push_token, earnings
		FROM drivers
		WHERE id = $1`, string(id))

	var d Driver
	var pushToken sql.NullString
	var status string
	err := row.Scan(
		&d.ID, &d.Name, &d.Phone, &d.Vehicle, &d.Online,
		&d.Position.Lat, &d.Position.Lng, &d.City, &d.CityToken,
		&status, &pushToken, &d.Earnings.Amount,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	d.OpStatus = OpStatus(status)
	d.PushToken = pushToken.String
	d.Earnings.Currency = "INR"
	return &d, nil
}

// FilterEligible keeps only online, active drivers out of the candidate ids,
// matching the city token or carrying no city at all.
func (s *PgStore) FilterEligible(ctx context.Context, ids []types.ID, cityToken string) ([]types.ID, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	raw := make([]string, len(ids))
	for i, id := range ids {
		raw[i] = string(id)
	}
	rows, err := s.db.Query(ctx, `
		SELECT id FROM drivers
		WHERE id = ANY($1)
		  AND online
		  AND op_status = 'active'
		  AND (city_token = $2 OR city_token = '')`,
		raw, cityToken)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanIDs(rows)
}

func (s *PgStore) EligibleInCity(ctx context.Context, cityToken string) ([]types.ID, error) {
	if cityToken == "" {
		return nil, nil
	}
	rows, err := s.db.Query(ctx, `
		SELECT id FROM drivers
		WHERE online AND op_status = 'active' AND city_token = $1`,
		cityToken)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanIDs(rows)
}

func (s *PgStore) PushTokens(ctx context.Context, ids []types.ID) (map[types.ID]string, error) {
	if len(ids) == 0 {
		return map[types.ID]string{}, nil
	}
	raw := make([]string, len(ids))
	for i, id := range ids {
		raw[i] = string(id)
	}
	rows, err := s.db.Query(ctx, `
		SELECT id, push_token FROM drivers
		WHERE id = ANY($1) AND push_token IS NOT NULL AND push_token <> ''`,
		raw)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	tokens := make(map[types.ID]string, len(ids))
	for rows.Next() {
		var id, token string
		if err := rows.Scan(&id, &token); err != nil {
			return nil, err
		}
		tokens[types.ID(id)] = token
	}
	return tokens, rows.Err()
}

func (s *PgStore) SetOnline(ctx context.Context, id types.ID, online bool) error {
	tag, err := s.db.Exec(ctx, `UPDATE drivers SET online = $1 WHERE id = $2`, online, string(id))
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *PgStore) UpdateLocation(ctx context.Context, id types.ID, p types.Point) error {
	_, err := s.db.Exec(ctx, `UPDATE drivers SET lat = $1, lng = $2 WHERE id = $3`,
		p.Lat, p.Lng, string(id))
	return err
}

func (s *PgStore) UpdateCity(ctx context.Context, id types.ID, city, cityToken string) error {
	_, err := s.db.Exec(ctx, `UPDATE drivers SET city = $1, city_token = $2 WHERE id = $3`,
		city, cityToken, string(id))
	return err
}

func (s *PgStore) UpdatePushToken(ctx context.Context, id types.ID, token string) error {
	_, err := s.db.Exec(ctx, `UPDATE drivers SET push_token = $1 WHERE id = $2`,
		token, string(id))
	return err
}

func (s *PgStore) CreditEarnings(ctx context.Context, id types.ID, amount types.Money) error {
	tag, err := s.db.Exec(ctx, `UPDATE drivers SET earnings = earnings + $1 WHERE id = $2`,
		amount.Amount, string(id))
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *PgStore) OpenSession(ctx context.Context, id types.ID, at time.Time) error {
	_, err := s.db.Exec(ctx, `
		INSERT INTO driver_sessions (driver_id, started_at) VALUES ($1, $2)`,
		string(id), at)
	return err
}

// CloseSession ends the driver's open session, if any. Going offline twice is
// harmless.
func (s *PgStore) CloseSession(ctx context.Context, id types.ID, at time.Time) error {
	_, err := s.db.Exec(ctx, `
		UPDATE driver_sessions SET ended_at = $1
		WHERE driver_id = $2 AND ended_at IS NULL`,
		at, string(id))
	return err
}

func (s *PgStore) OnlineHours(ctx context.Context, id types.ID, since time.Time) (float64, error) {
	row := s.db.QueryRow(ctx, `
		SELECT COALESCE(SUM(EXTRACT(EPOCH FROM (COALESCE(ended_at, NOW()) - GREATEST(started_at, $2)))), 0)
		FROM driver_sessions
		WHERE driver_id = $1 AND COALESCE(ended_at, NOW()) > $2`,
		string(id), since)
	var seconds float64
	if err := row.Scan(&seconds); err != nil {
		return 0, err
	}
	return seconds / 3600, nil
}

func scanIDs(rows pgx.Rows) ([]types.ID, error) {
	var ids []types.ID
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, types.ID(id))
	}
	return ids, rows.Err()
}
