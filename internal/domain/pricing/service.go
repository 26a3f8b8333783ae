package pricing

import (
	"context"

	"github.com/google/uuid"
)

// Service resolves the price a specific buyer pays for a product by walking
// the layered override chain:
//
//	reseller custom price -> role base price -> admin global price -> product base price
//
// Resolution stops at the first defined value. Pure read, no side effects.
type Service struct {
	repo Repository
}

func NewService(repo Repository) *Service {
	return &Service{repo: repo}
}

// Resolve walks the chain for one product. Unauthenticated buyers never see
// custom or role pricing; they get the admin base (or product base) price.
func (s *Service) Resolve(ctx context.Context, productID uuid.UUID, buyer BuyerContext) (Quote, error) {
	baseCost, err := s.baseCost(ctx, productID, buyer)
	if err != nil {
		return Quote{}, err
	}

	unitPrice := baseCost
	if buyer.Authenticated && buyer.UserID != uuid.Nil {
		custom, ok, err := s.repo.CustomPrice(ctx, buyer.UserID, productID)
		if err != nil {
			return Quote{}, err
		}
		if ok {
			unitPrice = custom
		}
	}

	return Quote{UnitPrice: unitPrice, BaseCost: baseCost}, nil
}

// baseCost is the revenue baseline: role price for authenticated resellers,
// otherwise the admin global price, falling back to the product base price.
func (s *Service) baseCost(ctx context.Context, productID uuid.UUID, buyer BuyerContext) (int64, error) {
	if buyer.Authenticated && buyer.Role != "" {
		price, ok, err := s.repo.RolePrice(ctx, productID, buyer.Role)
		if err != nil {
			return 0, err
		}
		if ok {
			return price, nil
		}
	}

	price, ok, err := s.repo.AdminPrice(ctx, productID)
	if err != nil {
		return 0, err
	}
	if ok {
		return price, nil
	}

	price, ok, err = s.repo.ProductBasePrice(ctx, productID)
	if err != nil {
		return 0, err
	}
	if ok {
		return price, nil
	}

	return 0, ErrNoPrice
}
