// README: Driver directory records and online sessions as dispatch consumes them.
package driver

import (
	"time"

	"quickbite/internal/types"
)

type OpStatus string

const (
	OpActive    OpStatus = "active"
	OpPending   OpStatus = "pending"
	OpSuspended OpStatus = "suspended"
	OpBlocked   OpStatus = "blocked"
	OpRejected  OpStatus = "rejected"
)

type Driver struct {
	ID        types.ID
	Name      string
	Phone     string
	Vehicle   string
	Online    bool
	Position  types.Point
	City      string
	CityToken string
	OpStatus  OpStatus
	PushToken string
	Earnings  types.Money
}

// Eligible reports whether the driver may receive dispatch offers.
func (d *Driver) Eligible() bool {
	return d.Online && d.OpStatus == OpActive
}

// Session is one online interval; EndedAt stays nil while the driver is on shift.
type Session struct {
	ID        int64
	DriverID  types.ID
	StartedAt time.Time
	EndedAt   *time.Time
}
