package changes

import "context"

// Repository hands out the store-wide change sequence. Next must be called
// inside the writing transaction; the row lock it takes is held until that
// transaction ends, so sequence numbers become visible in commit order.
type Repository interface {
	Next(ctx context.Context) (int64, error)
	Current(ctx context.Context) (int64, error)
}
