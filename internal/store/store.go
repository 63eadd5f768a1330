package store

import (
	"context"
	"time"

	"github.com/sanskar-mk2/auto-print-demo/internal/models"
)

type CreateOrderInput struct {
	RestaurantID int64
	Table        *string
	Items        []models.OrderItem
	Total        float64
	CreatedAt    time.Time
}

type ClientLogInput struct {
	Time      string
	Type      string
	Message   string
	Stack     *string
	UserAgent *string
	Source    *string
	Line      *int
	Col       *int
	Reason    *string
}

type OrderStore interface {
	CreateRestaurant(ctx context.Context, name, token string) (models.Restaurant, error)
	ListRestaurants(ctx context.Context) ([]models.Restaurant, error)
	GetRestaurantByToken(ctx context.Context, token string) (models.Restaurant, error)
	CreateOrder(ctx context.Context, input CreateOrderInput) (int64, error)
	ClaimOrders(ctx context.Context, token string, limit int) ([]models.OrderView, error)
	CreateClientLog(ctx context.Context, input ClientLogInput) error
}
