package cart

import (
	"context"
)

// Cart is the loaded line list. Token is set for anonymous owners and carries the
// re-encoded client state after every mutation.
type Cart struct {
	Lines
	Token string
}

// Store persists one owner's lines. Server rows back authenticated owners and a signed
// client token backs anonymous ones; both run the same Lines mutations.
type Store interface {
	Load(ctx context.Context, owner Owner) (*Cart, error)
	Mutate(ctx context.Context, owner Owner, fn func(*Lines) error) (*Cart, error)
	Clear(ctx context.Context, owner Owner) (*Cart, error)
}
