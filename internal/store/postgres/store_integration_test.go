package postgres

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/sanskar-mk2/auto-print-demo/internal/models"
	"github.com/sanskar-mk2/auto-print-demo/internal/store"
	"github.com/sanskar-mk2/auto-print-demo/internal/token"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

func TestSubmitThenPollExactlyOnce(t *testing.T) {
	ctx := context.Background()
	st, _, cleanup := setupTestStore(t, ctx)
	t.Cleanup(cleanup)

	restaurant := registerRestaurant(t, ctx, st, "Cafe Aroma")

	table := "5"
	items := []models.OrderItem{
		{Qty: 2, Name: "Latte", Price: 120},
		{Qty: 1, Name: "Brownie", Price: 80},
	}
	orderID, err := st.CreateOrder(ctx, store.CreateOrderInput{
		RestaurantID: restaurant.ID,
		Table:        &table,
		Items:        items,
		Total:        320,
		CreatedAt:    time.Now().UTC(),
	})
	if err != nil {
		t.Fatalf("create order: %v", err)
	}

	views, err := st.ClaimOrders(ctx, restaurant.Token, 5)
	if err != nil {
		t.Fatalf("claim orders: %v", err)
	}
	if len(views) != 1 {
		t.Fatalf("expected 1 order, got %d", len(views))
	}
	view := views[0]
	if view.ID != orderID || view.Total != 320 {
		t.Fatalf("unexpected view: %+v", view)
	}
	if view.Table == nil || *view.Table != "5" {
		t.Fatalf("expected table label 5, got %+v", view.Table)
	}
	if len(view.Items) != 2 || view.Items[0] != items[0] || view.Items[1] != items[1] {
		t.Fatalf("items did not round-trip: %+v", view.Items)
	}
	if !strings.HasSuffix(view.CreatedAt, "Z") {
		t.Fatalf("created_at must carry a UTC marker, got %q", view.CreatedAt)
	}

	again, err := st.ClaimOrders(ctx, restaurant.Token, 5)
	if err != nil {
		t.Fatalf("second claim: %v", err)
	}
	if len(again) != 0 {
		t.Fatalf("order delivered twice: %+v", again)
	}
}

func TestClaimOrdersFIFOAndLimit(t *testing.T) {
	ctx := context.Background()
	st, _, cleanup := setupTestStore(t, ctx)
	t.Cleanup(cleanup)

	restaurant := registerRestaurant(t, ctx, st, "Cafe Aroma")

	var created []int64
	for i := 0; i < 7; i++ {
		created = append(created, submitOrder(t, ctx, st, restaurant.ID))
	}

	first, err := st.ClaimOrders(ctx, restaurant.Token, 5)
	if err != nil {
		t.Fatalf("claim orders: %v", err)
	}
	if len(first) != 5 {
		t.Fatalf("expected 5 orders, got %d", len(first))
	}
	for i, view := range first {
		if view.ID != created[i] {
			t.Fatalf("expected FIFO order, got %d at position %d", view.ID, i)
		}
		if i > 0 && view.ID <= first[i-1].ID {
			t.Fatalf("ids not ascending within response")
		}
	}

	rest, err := st.ClaimOrders(ctx, restaurant.Token, 5)
	if err != nil {
		t.Fatalf("claim remainder: %v", err)
	}
	if len(rest) != 2 || rest[0].ID != created[5] || rest[1].ID != created[6] {
		t.Fatalf("unexpected remainder: %+v", rest)
	}
}

func TestClaimOrdersLimitZeroMarksNothing(t *testing.T) {
	ctx := context.Background()
	st, _, cleanup := setupTestStore(t, ctx)
	t.Cleanup(cleanup)

	restaurant := registerRestaurant(t, ctx, st, "Cafe Aroma")
	submitOrder(t, ctx, st, restaurant.ID)

	views, err := st.ClaimOrders(ctx, restaurant.Token, 0)
	if err != nil {
		t.Fatalf("claim with limit 0: %v", err)
	}
	if len(views) != 0 {
		t.Fatalf("expected empty result, got %+v", views)
	}

	views, err = st.ClaimOrders(ctx, restaurant.Token, 5)
	if err != nil {
		t.Fatalf("claim after limit 0: %v", err)
	}
	if len(views) != 1 {
		t.Fatalf("limit 0 must not mark orders, got %d pending", len(views))
	}
}

func TestClaimOrdersConcurrentPollersNoDuplicates(t *testing.T) {
	ctx := context.Background()
	st, _, cleanup := setupTestStore(t, ctx)
	t.Cleanup(cleanup)

	restaurant := registerRestaurant(t, ctx, st, "Cafe Aroma")

	const pending = 8
	for i := 0; i < pending; i++ {
		submitOrder(t, ctx, st, restaurant.ID)
	}

	const pollers = 4
	var wg sync.WaitGroup
	results := make(chan []models.OrderView, pollers)
	for i := 0; i < pollers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			views, err := st.ClaimOrders(ctx, restaurant.Token, 3)
			if err != nil {
				t.Errorf("concurrent claim: %v", err)
				return
			}
			results <- views
		}()
	}
	wg.Wait()
	close(results)

	seen := make(map[int64]struct{})
	total := 0
	for views := range results {
		for _, view := range views {
			if _, dup := seen[view.ID]; dup {
				t.Fatalf("order %d delivered to more than one poller", view.ID)
			}
			seen[view.ID] = struct{}{}
			total++
		}
	}

	// Drain whatever the concurrent round left behind; the union must equal
	// the full pending set with no duplicates.
	for {
		views, err := st.ClaimOrders(ctx, restaurant.Token, 3)
		if err != nil {
			t.Fatalf("drain claim: %v", err)
		}
		if len(views) == 0 {
			break
		}
		for _, view := range views {
			if _, dup := seen[view.ID]; dup {
				t.Fatalf("order %d delivered twice", view.ID)
			}
			seen[view.ID] = struct{}{}
			total++
		}
	}
	if total != pending {
		t.Fatalf("expected %d orders claimed in total, got %d", pending, total)
	}
}

func TestClaimOrdersTenantIsolation(t *testing.T) {
	ctx := context.Background()
	st, _, cleanup := setupTestStore(t, ctx)
	t.Cleanup(cleanup)

	first := registerRestaurant(t, ctx, st, "Cafe Aroma")
	second := registerRestaurant(t, ctx, st, "Pizza Nova")

	submitOrder(t, ctx, st, first.ID)

	views, err := st.ClaimOrders(ctx, second.Token, 5)
	if err != nil {
		t.Fatalf("claim for other tenant: %v", err)
	}
	if len(views) != 0 {
		t.Fatalf("tenant isolation broken: %+v", views)
	}

	views, err = st.ClaimOrders(ctx, first.Token, 5)
	if err != nil {
		t.Fatalf("claim for owner: %v", err)
	}
	if len(views) != 1 {
		t.Fatalf("owner must still receive the order, got %d", len(views))
	}
}

func TestClaimOrdersUnknownToken(t *testing.T) {
	ctx := context.Background()
	st, _, cleanup := setupTestStore(t, ctx)
	t.Cleanup(cleanup)

	_, err := st.ClaimOrders(ctx, "no-such-token", 5)
	if !errors.Is(err, store.ErrTokenNotFound) {
		t.Fatalf("expected ErrTokenNotFound, got %v", err)
	}
}

func TestCreateRestaurantDuplicateName(t *testing.T) {
	ctx := context.Background()
	st, _, cleanup := setupTestStore(t, ctx)
	t.Cleanup(cleanup)

	first := registerRestaurant(t, ctx, st, "Cafe Aroma")

	tok, err := token.New()
	if err != nil {
		t.Fatalf("issue token: %v", err)
	}
	_, err = st.CreateRestaurant(ctx, "Cafe Aroma", tok)
	if !errors.Is(err, store.ErrDuplicateName) {
		t.Fatalf("expected ErrDuplicateName, got %v", err)
	}

	// The first registration is unaffected.
	got, err := st.GetRestaurantByToken(ctx, first.Token)
	if err != nil {
		t.Fatalf("resolve first token: %v", err)
	}
	if got.ID != first.ID {
		t.Fatalf("expected restaurant %d, got %d", first.ID, got.ID)
	}
}

func TestCreateRestaurantDuplicateToken(t *testing.T) {
	ctx := context.Background()
	st, _, cleanup := setupTestStore(t, ctx)
	t.Cleanup(cleanup)

	first := registerRestaurant(t, ctx, st, "Cafe Aroma")

	_, err := st.CreateRestaurant(ctx, "Pizza Nova", first.Token)
	if !errors.Is(err, store.ErrDuplicateToken) {
		t.Fatalf("expected ErrDuplicateToken, got %v", err)
	}
}

func TestCreateOrderUnknownRestaurant(t *testing.T) {
	ctx := context.Background()
	st, _, cleanup := setupTestStore(t, ctx)
	t.Cleanup(cleanup)

	_, err := st.CreateOrder(ctx, store.CreateOrderInput{
		RestaurantID: 424242,
		Total:        10,
	})
	if !errors.Is(err, store.ErrRestaurantNotFound) {
		t.Fatalf("expected ErrRestaurantNotFound, got %v", err)
	}
}

func TestListRestaurantsNewestFirst(t *testing.T) {
	ctx := context.Background()
	st, _, cleanup := setupTestStore(t, ctx)
	t.Cleanup(cleanup)

	older := registerRestaurant(t, ctx, st, "Older")
	time.Sleep(10 * time.Millisecond)
	newer := registerRestaurant(t, ctx, st, "Newer")

	restaurants, err := st.ListRestaurants(ctx)
	if err != nil {
		t.Fatalf("list restaurants: %v", err)
	}
	if len(restaurants) != 2 {
		t.Fatalf("expected 2 restaurants, got %d", len(restaurants))
	}
	if restaurants[0].ID != newer.ID || restaurants[1].ID != older.ID {
		t.Fatalf("expected newest first, got %+v", restaurants)
	}
	if restaurants[0].Token == "" {
		t.Fatalf("list must include plaintext tokens")
	}
}

func TestCreateClientLog(t *testing.T) {
	ctx := context.Background()
	st, pool, cleanup := setupTestStore(t, ctx)
	t.Cleanup(cleanup)

	stack := "Error: boom\n  at render"
	line := 12
	if err := st.CreateClientLog(ctx, store.ClientLogInput{
		Time:    "2026-03-02T09:00:00Z",
		Type:    "error",
		Message: "boom",
		Stack:   &stack,
		Line:    &line,
	}); err != nil {
		t.Fatalf("create client log: %v", err)
	}

	var count int
	row := pool.QueryRow(ctx, `SELECT COUNT(*) FROM js_logs WHERE message = 'boom'`)
	if err := row.Scan(&count); err != nil {
		t.Fatalf("count js_logs: %v", err)
	}
	if count != 1 {
		t.Fatalf("expected 1 log row, got %d", count)
	}
}

func registerRestaurant(t *testing.T, ctx context.Context, st *Store, name string) models.Restaurant {
	t.Helper()
	tok, err := token.New()
	if err != nil {
		t.Fatalf("issue token: %v", err)
	}
	restaurant, err := st.CreateRestaurant(ctx, name, tok)
	if err != nil {
		t.Fatalf("create restaurant: %v", err)
	}
	return restaurant
}

func submitOrder(t *testing.T, ctx context.Context, st *Store, restaurantID int64) int64 {
	t.Helper()
	orderID, err := st.CreateOrder(ctx, store.CreateOrderInput{
		RestaurantID: restaurantID,
		Items:        []models.OrderItem{{Qty: 1, Name: "Latte", Price: 120}},
		Total:        120,
		CreatedAt:    time.Now().UTC(),
	})
	if err != nil {
		t.Fatalf("create order: %v", err)
	}
	return orderID
}

func setupTestStore(t *testing.T, ctx context.Context) (*Store, *pgxpool.Pool, func()) {
	t.Helper()
	dsn := os.Getenv("TEST_DB_DSN")
	if dsn == "" {
		dsn = os.Getenv("DB_DSN")
	}
	if dsn == "" {
		t.Skip("TEST_DB_DSN or DB_DSN is required for integration tests")
	}

	schema := "test_" + strings.ReplaceAll(uuid.NewString(), "-", "")
	if err := createSchema(ctx, dsn, schema); err != nil {
		t.Fatalf("create schema: %v", err)
	}

	pool, err := newPoolWithSchema(ctx, dsn, schema)
	if err != nil {
		t.Fatalf("open pool: %v", err)
	}

	if err := Migrate(ctx, pool, filepath.Join("..", "..", "..", "migrations")); err != nil {
		pool.Close()
		t.Fatalf("apply migrations: %v", err)
	}

	st := NewStore(pool)
	cleanup := func() {
		pool.Close()
		_ = dropSchema(context.Background(), dsn, schema)
	}
	return st, pool, cleanup
}

func createSchema(ctx context.Context, dsn, schema string) error {
	conn, err := pgx.Connect(ctx, dsn)
	if err != nil {
		return err
	}
	defer conn.Close(ctx)
	_, err = conn.Exec(ctx, "CREATE SCHEMA "+schema)
	return err
}

func dropSchema(ctx context.Context, dsn, schema string) error {
	conn, err := pgx.Connect(ctx, dsn)
	if err != nil {
		return err
	}
	defer conn.Close(ctx)
	_, err = conn.Exec(ctx, "DROP SCHEMA "+schema+" CASCADE")
	return err
}

func newPoolWithSchema(ctx context.Context, dsn, schema string) (*pgxpool.Pool, error) {
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, err
	}
	cfg.ConnConfig.RuntimeParams["search_path"] = schema
	return pgxpool.NewWithConfig(ctx, cfg)
}
