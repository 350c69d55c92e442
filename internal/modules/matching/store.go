// README: Matching store backed by Redis GEO and per-order dispatch keys.
package matching

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"quickbite/internal/types"
)

const (
	driverGeoKey       = "dispatch:drivers"
	dispatchKeyPrefix  = "dispatch:order:%s:dispatched_at"
	notifiedKeyPrefix  = "dispatch:order:%s:notified"
)

type Store struct {
	redis *redis.Client
}

func NewStore(redis *redis.Client) *Store {
	return &Store{redis: redis}
}

func (s *Store) AddDriver(ctx context.Context, id types.ID, p types.Point) error {
	return s.redis.GeoAdd(ctx, driverGeoKey, &redis.GeoLocation{
		Name:      string(id),
		Longitude: p.Lng,
		Latitude:  p.Lat,
	}).Err()
}

func (s *Store) RemoveDriver(ctx context.Context, id types.ID) error {
	return s.redis.ZRem(ctx, driverGeoKey, string(id)).Err()
}

func (s *Store) NearbyDrivers(ctx context.Context, p types.Point, radiusKm float64) ([]types.ID, error) {
	results, err := s.redis.GeoSearch(ctx, driverGeoKey, &redis.GeoSearchQuery{
		Longitude:  p.Lng,
		Latitude:   p.Lat,
		Radius:     radiusKm,
		RadiusUnit: "km",
		Sort:       "ASC",
	}).Result()
	if err != nil {
		return nil, err
	}
	ids := make([]types.ID, len(results))
	for i, r := range results {
		ids[i] = types.ID(r)
	}
	return ids, nil
}

// RecordDispatch records when an order was fanned out and to whom.
func (s *Store) RecordDispatch(ctx context.Context, orderID types.ID, driverIDs []types.ID) error {
	pipe := s.redis.Pipeline()
	pipe.Set(ctx, dispatchedAtKey(orderID), time.Now().UTC().Format(time.RFC3339), dispatchKeyTTL)
	if len(driverIDs) > 0 {
		members := make([]interface{}, len(driverIDs))
		for i, d := range driverIDs {
			members[i] = string(d)
		}
		key := notifiedKey(orderID)
		pipe.SAdd(ctx, key, members...)
		pipe.Expire(ctx, key, dispatchKeyTTL)
	}
	_, err := pipe.Exec(ctx)
	return err
}

// NotifiedDrivers returns the drivers the order was fanned out to, if the
// bookkeeping keys are still live.
func (s *Store) NotifiedDrivers(ctx context.Context, orderID types.ID) ([]types.ID, error) {
	members, err := s.redis.SMembers(ctx, notifiedKey(orderID)).Result()
	if err != nil {
		return nil, err
	}
	ids := make([]types.ID, len(members))
	for i, m := range members {
		ids[i] = types.ID(m)
	}
	return ids, nil
}

// GetDispatchedAt returns when the order was first dispatched, and whether it was.
func (s *Store) GetDispatchedAt(ctx context.Context, orderID types.ID) (time.Time, bool, error) {
	val, err := s.redis.Get(ctx, dispatchedAtKey(orderID)).Result()
	if err == redis.Nil {
		return time.Time{}, false, nil
	}
	if err != nil {
		return time.Time{}, false, err
	}
	t, err := time.Parse(time.RFC3339, val)
	if err != nil {
		return time.Time{}, false, err
	}
	return t, true, nil
}

func dispatchedAtKey(orderID types.ID) string {
	return fmt.Sprintf(dispatchKeyPrefix, string(orderID))
}

func notifiedKey(orderID types.ID) string {
	return fmt.Sprintf(notifiedKeyPrefix, string(orderID))
}
