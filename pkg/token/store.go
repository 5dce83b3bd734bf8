package token

import (
	"context"
	"time"
)

// RedeemFunc is executed once the token has been claimed by the caller;
// returning an error releases the claim
type RedeemFunc func(ctx context.Context, t Token) (Token, error)

// Store describes the token store contract interface
// NOTE: Consume must guarantee that exactly one concurrent caller wins
// for any given hash
type Store interface {
	Put(ctx context.Context, t Token) error
	Get(ctx context.Context, hash Hash) (Token, error)
	Consume(ctx context.Context, hash Hash, now time.Time, fn RedeemFunc) (Token, error)
}
