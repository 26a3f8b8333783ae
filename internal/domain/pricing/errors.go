package pricing

import "errors"

var (
	// ErrNoPrice means neither a custom price nor any base price exists for
	// the product. Checkout must abort before any money moves.
	ErrNoPrice = errors.New("no pricing available for product")
)
