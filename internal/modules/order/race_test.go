// README: DB-backed concurrency tests for the accept race (run with -race).
package order

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/jackc/pgx/v5/pgxpool"

	"quickbite/internal/types"
)

func TestConcurrentAcceptSameOrder_Postgres(t *testing.T) {
	ctx := context.Background()
	store := setupTestStore(t)
	svc := NewService(store, nil, newStubDirectory(), quietTestLogger())

	o, err := svc.Create(ctx, CreateCommand{
		CustomerID:   "c_race",
		MerchantID:   "m_race",
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

	const attempts = 8
	var wg sync.WaitGroup
	errs := make(chan error, attempts)

	for i := 0; i < attempts; i++ {
		driverID := types.ID(fmt.Sprintf("d%d", i))
		wg.Add(1)
		go func(did types.ID) {
			defer wg.Done()
			_, err := svc.Accept(ctx, AcceptCommand{OrderID: o.ID, DriverID: did})
			errs <- err
		}(driverID)
	}

	wg.Wait()
	close(errs)

	success := 0
	for err := range errs {
		if err == nil {
			success++
			continue
		}
		if !errors.Is(err, ErrConflict) {
			t.Fatalf("unexpected error: %v", err)
		}
	}
	if success != 1 {
		t.Fatalf("expected exactly 1 success, got %d", success)
	}

	final, err := svc.Get(ctx, o.ID)
	if err != nil {
		t.Fatalf("get order: %v", err)
	}
	if final.Status != StatusConfirmed {
		t.Fatalf("unexpected final status: %s", final.Status)
	}
	if final.DriverID == nil || *final.DriverID == "" {
		t.Fatalf("expected driver_id to be set")
	}
}

func TestConcurrentAcceptVsCancel_Postgres(t *testing.T) {
	ctx := context.Background()
	store := setupTestStore(t)
	svc := NewService(store, nil, newStubDirectory(), quietTestLogger())

	o, err := svc.Create(ctx, CreateCommand{
		CustomerID:   "c_accept_cancel",
		MerchantID:   "m_race",
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

	var wg sync.WaitGroup
	errs := make(chan error, 2)

	wg.Add(1)
	go func() {
		defer wg.Done()
		_, err := svc.Accept(ctx, AcceptCommand{OrderID: o.ID, DriverID: "d1"})
		errs <- err
	}()

	wg.Add(1)
	go func() {
		defer wg.Done()
		_, err := svc.Cancel(ctx, CancelCommand{OrderID: o.ID, CustomerID: "c_accept_cancel"})
		errs <- err
	}()

	wg.Wait()
	close(errs)

	success := 0
	for err := range errs {
		if err == nil {
			success++
			continue
		}
		if !errors.Is(err, ErrConflict) && !errors.Is(err, ErrInvalidState) {
			t.Fatalf("unexpected error: %v", err)
		}
	}
	if success != 1 {
		t.Fatalf("expected exactly 1 success, got %d", success)
	}

	final, err := svc.Get(ctx, o.ID)
	if err != nil {
		t.Fatalf("get order: %v", err)
	}
	if final.Status != StatusConfirmed && final.Status != StatusCancelled {
		t.Fatalf("unexpected final status: %s", final.Status)
	}
}

func setupTestStore(t *testing.T) *PgStore {
	t.Helper()

	dsn := os.Getenv("QB_TEST_DSN")
	if dsn == "" {
		t.Skip("QB_TEST_DSN not set; skipping DB-backed race tests")
	}

	ctx := context.Background()
	db, err := pgxpool.New(ctx, dsn)
	if err != nil {
		t.Fatalf("connect db: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	if err := applyMigration(ctx, db); err != nil {
		t.Fatalf("apply migration: %v", err)
	}

	if _, err := db.Exec(ctx, "TRUNCATE TABLE order_timeline, orders"); err != nil {
		t.Fatalf("truncate tables: %v", err)
	}

	return NewPgStore(db)
}

func applyMigration(ctx context.Context, db *pgxpool.Pool) error {
	root, err := repoRoot()
	if err != nil {
		return err
	}
	path := filepath.Join(root, "migrations", "0001_init.sql")
	content, err := os.ReadFile(path)
	if err != nil {
		return err
	}

	cleaned := stripSQLComments(string(content))
	for _, stmt := range splitSQL(cleaned) {
		if _, err := db.Exec(ctx, stmt); err != nil {
			return err
		}
	}
	return nil
}

func repoRoot() (string, error) {
	dir, err := os.Getwd()
	if err != nil {
		return "", err
	}
	for i := 0; i < 6; i++ {
		if _, err := os.Stat(filepath.Join(dir, "go.mod")); err == nil {
			return dir, nil
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			break
		}
		dir = parent
	}
	return "", os.ErrNotExist
}

func stripSQLComments(input string) string {
	var b strings.Builder
	scanner := bufio.NewScanner(strings.NewReader(input))
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "--") {
			continue
		}
		b.WriteString(scanner.Text())
		b.WriteString("\n")
	}
	return b.String()
}

func splitSQL(input string) []string {
	parts := strings.Split(input, ";")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		stmt := strings.TrimSpace(p)
		if stmt == "" {
			continue
		}
		out = append(out, stmt)
	}
	return out
}
