package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"time"

	"github.com/sanskar-mk2/auto-print-demo/internal/models"
	"github.com/sanskar-mk2/auto-print-demo/internal/store"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

type Store struct {
	pool *pgxpool.Pool
}

func NewStore(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

func (s *Store) CreateRestaurant(ctx context.Context, name, token string) (models.Restaurant, error) {
	var restaurant models.Restaurant
	row := s.pool.QueryRow(ctx, `
		INSERT INTO restaurants (name, token, created_at)
		VALUES ($1, $2, $3)
		RETURNING id, name, token, created_at
	`, name, token, time.Now().UTC())
	if err := row.Scan(&restaurant.ID, &restaurant.Name, &restaurant.Token, &restaurant.CreatedAt); err != nil {
		return models.Restaurant{}, mapConstraintError(err)
	}
	return restaurant, nil
}

func (s *Store) ListRestaurants(ctx context.Context) ([]models.Restaurant, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, name, token, created_at
		FROM restaurants
		ORDER BY created_at DESC
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var restaurants []models.Restaurant
	for rows.Next() {
		var restaurant models.Restaurant
		if err := rows.Scan(&restaurant.ID, &restaurant.Name, &restaurant.Token, &restaurant.CreatedAt); err != nil {
			return nil, err
		}
		restaurants = append(restaurants, restaurant)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return restaurants, nil
}

func (s *Store) GetRestaurantByToken(ctx context.Context, token string) (models.Restaurant, error) {
	var restaurant models.Restaurant
	row := s.pool.QueryRow(ctx, `
		SELECT id, name, token, created_at
		FROM restaurants
		WHERE token = $1
	`, token)
	if err := row.Scan(&restaurant.ID, &restaurant.Name, &restaurant.Token, &restaurant.CreatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return models.Restaurant{}, store.ErrTokenNotFound
		}
		return models.Restaurant{}, err
	}
	return restaurant, nil
}

func (s *Store) CreateOrder(ctx context.Context, input store.CreateOrderInput) (int64, error) {
	items := input.Items
	if items == nil {
		items = []models.OrderItem{}
	}
	itemsJSON, err := json.Marshal(items)
	if err != nil {
		return 0, err
	}

	createdAt := input.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now().UTC()
	}

	var orderID int64
	row := s.pool.QueryRow(ctx, `
		INSERT INTO orders (restaurant_id, table_label, items_json, total, created_at)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id
	`, input.RestaurantID, input.Table, string(itemsJSON), input.Total, createdAt)
	if err := row.Scan(&orderID); err != nil {
		return 0, mapConstraintError(err)
	}
	return orderID, nil
}

// ClaimOrders resolves the token, selects the oldest unprinted orders for that
// restaurant, and marks the whole batch printed with a single timestamp. The
// select and the mark share one transaction, so a failed commit leaves every
// row unprinted and a concurrent poller never receives the same order twice.
func (s *Store) ClaimOrders(ctx context.Context, token string, limit int) ([]models.OrderView, error) {
	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return nil, err
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback(ctx)
		}
	}()

	var restaurantID int64
	row := tx.QueryRow(ctx, `
		SELECT id
		FROM restaurants
		WHERE token = $1
	`, token)
	if err = row.Scan(&restaurantID); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			err = store.ErrTokenNotFound
		}
		return nil, err
	}

	views := []models.OrderView{}
	if limit <= 0 {
		if err = tx.Commit(ctx); err != nil {
			return nil, err
		}
		return views, nil
	}

	rows, err := tx.Query(ctx, `
		SELECT id, table_label, items_json, total, created_at
		FROM orders
		WHERE restaurant_id = $1 AND printed_at IS NULL
		ORDER BY id ASC
		FOR UPDATE SKIP LOCKED
		LIMIT $2
	`, restaurantID, limit)
	if err != nil {
		return nil, err
	}

	var ids []int64
	for rows.Next() {
		var view models.OrderView
		var tableNull sql.NullString
		var itemsJSON string
		var createdAt time.Time
		if err = rows.Scan(&view.ID, &tableNull, &itemsJSON, &view.Total, &createdAt); err != nil {
			rows.Close()
			return nil, err
		}
		if tableNull.Valid {
			table := tableNull.String
			view.Table = &table
		}
		view.Items = []models.OrderItem{}
		if err = json.Unmarshal([]byte(itemsJSON), &view.Items); err != nil {
			rows.Close()
			return nil, err
		}
		view.CreatedAt = createdAt.UTC().Format(time.RFC3339Nano)
		views = append(views, view)
		ids = append(ids, view.ID)
	}
	rows.Close()
	if err = rows.Err(); err != nil {
		return nil, err
	}

	if len(ids) > 0 {
		printedAt := time.Now().UTC()
		if _, err = tx.Exec(ctx, `
			UPDATE orders
			SET printed_at = $1
			WHERE id = ANY($2)
		`, printedAt, ids); err != nil {
			return nil, err
		}
	}

	if err = tx.Commit(ctx); err != nil {
		return nil, err
	}
	return views, nil
}

func (s *Store) CreateClientLog(ctx context.Context, input store.ClientLogInput) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO js_logs (time, type, message, stack, user_agent, source, line, col, reason)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`, input.Time, input.Type, input.Message, input.Stack, input.UserAgent, input.Source, input.Line, input.Col, input.Reason)
	return err
}

func mapConstraintError(err error) error {
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) {
		return err
	}
	switch pgErr.Code {
	case "23505":
		if pgErr.ConstraintName == "restaurants_token_key" {
			return store.ErrDuplicateToken
		}
		return store.ErrDuplicateName
	case "23503":
		return store.ErrRestaurantNotFound
	default:
		return err
	}
}
