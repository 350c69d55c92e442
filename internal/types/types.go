// README: Shared identifier and coordinate value objects.
package types

type ID string

type Point struct {
	Lat float64 `json:"lat"`
	Lng float64 `json:"lng"`
}

// Zero reports whether the point is the unset (0,0) coordinate.
func (p Point) Zero() bool {
	return p.Lat == 0 && p.Lng == 0
}
