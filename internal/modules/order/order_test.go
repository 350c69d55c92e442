// README: Unit tests for the order lifecycle against an in-memory store.
package order

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/sirupsen/logrus"

	"quickbite/internal/types"
)

// memStore implements Store with the same conditional-update semantics the
// PostgreSQL store gets from single-statement WHERE clauses.
type memStore struct {
	mu       sync.Mutex
	orders   map[types.ID]*Order
	timeline map[types.ID][]TimelineEntry
}

func newMemStore() *memStore {
	return &memStore{
		orders:   make(map[types.ID]*Order),
		timeline: make(map[types.ID][]TimelineEntry),
	}
}

func (m *memStore) Create(_ context.Context, o *Order) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *o
	m.orders[o.ID] = &cp
	return nil
}

func (m *memStore) Get(_ context.Context, id types.ID) (*Order, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	o, ok := m.orders[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *o
	return &cp, nil
}

func (m *memStore) AcceptAtomic(_ context.Context, orderID, driverID types.ID, details DriverDetails) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	o, ok := m.orders[orderID]
	if !ok || o.DriverID != nil || o.Status != StatusPlaced {
		return false, nil
	}
	d := driverID
	o.DriverID = &d
	o.DriverDetails = &details
	o.Status = StatusConfirmed
	return true, nil
}

func (m *memStore) UpdateStatus(_ context.Context, id types.ID, from, to Status) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	o, ok := m.orders[id]
	if !ok || o.Status != from {
		return false, nil
	}
	o.Status = to
	return true, nil
}

func (m *memStore) AppendTimeline(_ context.Context, id types.ID, e TimelineEntry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.timeline[id] = append(m.timeline[id], e)
	return nil
}

func (m *memStore) Timeline(_ context.Context, id types.ID) ([]TimelineEntry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]TimelineEntry, len(m.timeline[id]))
	copy(out, m.timeline[id])
	return out, nil
}

func (m *memStore) ListUnassignedSince(_ context.Context, since time.Time) ([]*Order, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*Order
	for _, o := range m.orders {
		if o.Status == StatusPlaced && o.DriverID == nil && !o.CreatedAt.Before(since) {
			cp := *o
			out = append(out, &cp)
		}
	}
	return out, nil
}

// stubDirectory is a test double for DriverDirectory that counts credits.
type stubDirectory struct {
	mu        sync.Mutex
	credits   map[types.ID]int
	creditErr error
}

func newStubDirectory() *stubDirectory {
	return &stubDirectory{credits: make(map[types.ID]int)}
}

func (d *stubDirectory) Details(_ context.Context, id types.ID) (DriverDetails, error) {
	return DriverDetails{Name: "Driver " + string(id), Phone: "9900000000", Vehicle: "bike"}, nil
}

func (d *stubDirectory) CreditEarnings(_ context.Context, id types.ID, _ types.Money) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.credits[id]++
	return d.creditErr
}

func testItems() []Item {
	return []Item{
		{ProductID: "p1", Name: "Masala Dosa", UnitPrice: types.Rupees(9000), Quantity: 2},
		{ProductID: "p2", Name: "Chaas", UnitPrice: types.Rupees(2500), Quantity: 1},
	}
}

func quietTestLogger() *logrus.Logger {
	log := logrus.New()
	log.SetOutput(io.Discard)
	return log
}

func newTestService() (*Service, *memStore, *stubDirectory) {
	store := newMemStore()
	dir := newStubDirectory()
	return NewService(store, nil, dir, quietTestLogger()), store, dir
}

func placeOrder(t *testing.T, svc *Service, customer types.ID) *Order {
	t.Helper()
	o, err := svc.Create(context.Background(), CreateCommand{
		CustomerID:   customer,
		MerchantID:   "m1",
		MerchantCity: "Mehsana",
		Pickup:       types.Point{Lat: 23.588, Lng: 72.369},
		Items:        testItems(),
		Address: Address{
			Line:     "12 Station Road",
			City:     "Mehsana",
			Position: types.Point{Lat: 23.6, Lng: 72.4},
		},
		PaymentMethod: "cod",
	})
	if err != nil {
		t.Fatalf("create order: %v", err)
	}
	return o
}

func TestCanTransition_Table(t *testing.T) {
	cases := []struct {
		from, to Status
		want     bool
	}{
		{StatusPlaced, StatusConfirmed, true},
		{StatusPlaced, StatusCancelled, true},
		{StatusConfirmed, StatusPreparing, true},
		{StatusPreparing, StatusOutForDelivery, true},
		{StatusOutForDelivery, StatusDelivered, true},
		{StatusPlaced, StatusPreparing, false},
		{StatusConfirmed, StatusCancelled, false},
		{StatusPreparing, StatusCancelled, false},
		{StatusOutForDelivery, StatusCancelled, false},
		{StatusDelivered, StatusOutForDelivery, false},
		{StatusCancelled, StatusConfirmed, false},
		{StatusDelivered, StatusDelivered, false},
	}
	for _, tc := range cases {
		if got := CanTransition(tc.from, tc.to); got != tc.want {
			t.Errorf("CanTransition(%s, %s) = %v, want %v", tc.from, tc.to, got, tc.want)
		}
	}
}

func TestCreate_BillComputedOnce(t *testing.T) {
	svc, _, _ := newTestService()
	o := placeOrder(t, svc, "c1")
	if o.Bill.Subtotal.Amount != 20500 {
		t.Errorf("subtotal = %d, want 20500", o.Bill.Subtotal.Amount)
	}
	if o.Bill.Total.Amount != o.Bill.Subtotal.Amount+o.Bill.DeliveryFee.Amount+o.Bill.Tax.Amount {
		t.Error("total must equal subtotal + fee + tax")
	}
	if o.Status != StatusPlaced || o.DriverID != nil {
		t.Error("new order must be placed and unassigned")
	}
	if o.CityToken != "mehsana" {
		t.Errorf("city token = %q, want mehsana", o.CityToken)
	}
}

func TestAccept_ConcurrentExactlyOneWinner(t *testing.T) {
	svc, _, _ := newTestService()
	o := placeOrder(t, svc, "c1")

	const attempts = 16
	var wg sync.WaitGroup
	results := make(chan error, attempts)

	for i := 0; i < attempts; i++ {
		did := types.ID(fmt.Sprintf("d%d", i))
		wg.Add(1)
		go func(did types.ID) {
			defer wg.Done()
			_, err := svc.Accept(context.Background(), AcceptCommand{OrderID: o.ID, DriverID: did})
			results <- err
		}(did)
	}
	wg.Wait()
	close(results)

	var success, taken int
	for err := range results {
		switch {
		case err == nil:
			success++
		case errors.Is(err, ErrConflict):
			taken++
			var te *TakenError
			if !errors.As(err, &te) {
				t.Errorf("loser error should carry the winner, got %v", err)
			}
		default:
			t.Fatalf("unexpected error: %v", err)
		}
	}
	if success != 1 {
		t.Fatalf("expected exactly 1 success, got %d", success)
	}
	if taken != attempts-1 {
		t.Fatalf("expected %d taken rejections, got %d", attempts-1, taken)
	}

	final, err := svc.Get(context.Background(), o.ID)
	if err != nil {
		t.Fatal(err)
	}
	if final.Status != StatusConfirmed || final.DriverID == nil {
		t.Fatalf("final order must be confirmed with a driver, got %s", final.Status)
	}
	if final.DriverDetails == nil || final.DriverDetails.Name == "" {
		t.Error("driver details snapshot must be set on accept")
	}
}

func TestAccept_LoserSeesWinnerIdentity(t *testing.T) {
	svc, _, _ := newTestService()
	o := placeOrder(t, svc, "c1")

	if _, err := svc.Accept(context.Background(), AcceptCommand{OrderID: o.ID, DriverID: "dA"}); err != nil {
		t.Fatalf("first accept: %v", err)
	}
	_, err := svc.Accept(context.Background(), AcceptCommand{OrderID: o.ID, DriverID: "dB"})
	var te *TakenError
	if !errors.As(err, &te) {
		t.Fatalf("expected TakenError, got %v", err)
	}
	if te.Winner != "dA" {
		t.Errorf("winner = %s, want dA", te.Winner)
	}
}

func TestCancel_OnlyFromPlaced(t *testing.T) {
	svc, _, _ := newTestService()

	// Happy path.
	o := placeOrder(t, svc, "c1")
	if _, err := svc.Cancel(context.Background(), CancelCommand{OrderID: o.ID, CustomerID: "c1"}); err != nil {
		t.Fatalf("cancel placed: %v", err)
	}

	// Any post-accept state rejects cancellation and leaves status unchanged.
	o2 := placeOrder(t, svc, "c1")
	if _, err := svc.Accept(context.Background(), AcceptCommand{OrderID: o2.ID, DriverID: "d1"}); err != nil {
		t.Fatal(err)
	}
	for _, advanceTo := range []Status{StatusPreparing, StatusOutForDelivery, StatusDelivered} {
		if _, err := svc.Cancel(context.Background(), CancelCommand{OrderID: o2.ID, CustomerID: "c1"}); !errors.Is(err, ErrInvalidState) {
			t.Errorf("cancel before %s: got %v, want ErrInvalidState", advanceTo, err)
		}
		if _, err := svc.Advance(context.Background(), AdvanceCommand{OrderID: o2.ID, ActorID: "d1", To: advanceTo}); err != nil {
			t.Fatalf("advance to %s: %v", advanceTo, err)
		}
	}
	if _, err := svc.Cancel(context.Background(), CancelCommand{OrderID: o2.ID, CustomerID: "c1"}); !errors.Is(err, ErrInvalidState) {
		t.Errorf("cancel delivered: got %v, want ErrInvalidState", err)
	}
}

func TestCancel_WrongCustomerForbidden(t *testing.T) {
	svc, _, _ := newTestService()
	o := placeOrder(t, svc, "c1")
	if _, err := svc.Cancel(context.Background(), CancelCommand{OrderID: o.ID, CustomerID: "c2"}); !errors.Is(err, ErrForbidden) {
		t.Errorf("got %v, want ErrForbidden", err)
	}
	got, _ := svc.Get(context.Background(), o.ID)
	if got.Status != StatusPlaced {
		t.Error("failed cancel must leave status unchanged")
	}
}

func TestAdvance_DeliveredCreditsExactlyOnce(t *testing.T) {
	svc, _, dir := newTestService()
	o := placeOrder(t, svc, "c1")
	ctx := context.Background()

	if _, err := svc.Accept(ctx, AcceptCommand{OrderID: o.ID, DriverID: "d1"}); err != nil {
		t.Fatal(err)
	}
	for _, to := range []Status{StatusPreparing, StatusOutForDelivery, StatusDelivered} {
		if _, err := svc.Advance(ctx, AdvanceCommand{OrderID: o.ID, ActorID: "d1", To: to}); err != nil {
			t.Fatalf("advance to %s: %v", to, err)
		}
	}

	// Second delivery attempt must be rejected without a second credit.
	if _, err := svc.Advance(ctx, AdvanceCommand{OrderID: o.ID, ActorID: "d1", To: StatusDelivered}); !errors.Is(err, ErrInvalidState) {
		t.Errorf("double deliver: got %v, want ErrInvalidState", err)
	}
	if n := dir.credits["d1"]; n != 1 {
		t.Errorf("driver credited %d times, want 1", n)
	}
}

// TestAdvance_CreditFailureStillDelivers: once the delivered transition has
// stuck, a failing earnings credit must not fail the call, or the order would
// be stranded delivered with no retryable path.
func TestAdvance_CreditFailureStillDelivers(t *testing.T) {
	svc, _, dir := newTestService()
	dir.creditErr = errors.New("ledger unavailable")
	o := placeOrder(t, svc, "c1")
	ctx := context.Background()

	if _, err := svc.Accept(ctx, AcceptCommand{OrderID: o.ID, DriverID: "d1"}); err != nil {
		t.Fatal(err)
	}
	for _, to := range []Status{StatusPreparing, StatusOutForDelivery} {
		if _, err := svc.Advance(ctx, AdvanceCommand{OrderID: o.ID, ActorID: "d1", To: to}); err != nil {
			t.Fatalf("advance to %s: %v", to, err)
		}
	}

	got, err := svc.Advance(ctx, AdvanceCommand{OrderID: o.ID, ActorID: "d1", To: StatusDelivered})
	if err != nil {
		t.Fatalf("delivery must succeed despite credit failure: %v", err)
	}
	if got.Status != StatusDelivered {
		t.Errorf("status = %s, want delivered", got.Status)
	}
	if n := dir.credits["d1"]; n != 1 {
		t.Errorf("credit attempted %d times, want 1", n)
	}
}

func TestAdvance_OnlyAssignedDriver(t *testing.T) {
	svc, _, _ := newTestService()
	o := placeOrder(t, svc, "c1")
	ctx := context.Background()

	if _, err := svc.Accept(ctx, AcceptCommand{OrderID: o.ID, DriverID: "d1"}); err != nil {
		t.Fatal(err)
	}
	// Merchant may start preparation.
	if _, err := svc.Advance(ctx, AdvanceCommand{OrderID: o.ID, ActorID: "m1", To: StatusPreparing}); err != nil {
		t.Fatalf("merchant advancing to preparing: %v", err)
	}
	// A different driver must not progress the order.
	if _, err := svc.Advance(ctx, AdvanceCommand{OrderID: o.ID, ActorID: "d2", To: StatusOutForDelivery}); !errors.Is(err, ErrForbidden) {
		t.Errorf("got %v, want ErrForbidden", err)
	}
	// Merchant must not take it out for delivery either.
	if _, err := svc.Advance(ctx, AdvanceCommand{OrderID: o.ID, ActorID: "m1", To: StatusOutForDelivery}); !errors.Is(err, ErrForbidden) {
		t.Errorf("got %v, want ErrForbidden", err)
	}
}

func TestTimeline_FullProgressionOrdered(t *testing.T) {
	svc, _, _ := newTestService()
	o := placeOrder(t, svc, "c1")
	ctx := context.Background()

	if _, err := svc.Accept(ctx, AcceptCommand{OrderID: o.ID, DriverID: "d1"}); err != nil {
		t.Fatal(err)
	}
	for _, to := range []Status{StatusPreparing, StatusOutForDelivery, StatusDelivered} {
		if _, err := svc.Advance(ctx, AdvanceCommand{OrderID: o.ID, ActorID: "d1", To: to}); err != nil {
			t.Fatalf("advance to %s: %v", to, err)
		}
	}

	entries, err := svc.Timeline(ctx, o.ID)
	if err != nil {
		t.Fatal(err)
	}
	want := []Status{StatusPlaced, StatusConfirmed, StatusPreparing, StatusOutForDelivery, StatusDelivered}
	if len(entries) != len(want) {
		t.Fatalf("timeline has %d entries, want %d", len(entries), len(want))
	}
	for i, e := range entries {
		if e.Status != want[i] {
			t.Errorf("entry %d = %s, want %s", i, e.Status, want[i])
		}
		if i > 0 && e.At.Before(entries[i-1].At) {
			t.Errorf("entry %d timestamp precedes entry %d", i, i-1)
		}
	}
}

func TestAccept_CancelledOrderRejected(t *testing.T) {
	svc, _, _ := newTestService()
	o := placeOrder(t, svc, "c1")
	ctx := context.Background()

	if _, err := svc.Cancel(ctx, CancelCommand{OrderID: o.ID, CustomerID: "c1"}); err != nil {
		t.Fatal(err)
	}
	if _, err := svc.Accept(ctx, AcceptCommand{OrderID: o.ID, DriverID: "d1"}); !errors.Is(err, ErrInvalidState) {
		t.Errorf("accept after cancel: got %v, want ErrInvalidState", err)
	}
}

func TestAccept_NotFound(t *testing.T) {
	svc, _, _ := newTestService()
	if _, err := svc.Accept(context.Background(), AcceptCommand{OrderID: "missing", DriverID: "d1"}); !errors.Is(err, ErrNotFound) {
		t.Errorf("got %v, want ErrNotFound", err)
	}
}
