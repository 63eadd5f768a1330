package store

import "errors"

var (
	ErrDuplicateName      = errors.New("restaurant name already registered")
	ErrDuplicateToken     = errors.New("token already issued")
	ErrTokenNotFound      = errors.New("token not found")
	ErrRestaurantNotFound = errors.New("restaurant not found")
)
