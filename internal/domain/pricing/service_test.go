package pricing_test

import (
	"context"
	"errors"
	"testing"

	"github.com/google/uuid"

	"github.com/dataplug/dataplug-api/internal/domain/pricing"
)

type stubRepo struct {
	custom map[string]int64 // resellerID|productID
	role   map[string]int64 // productID|role
	admin  map[uuid.UUID]int64
	base   map[uuid.UUID]int64
}

func (s *stubRepo) CustomPrice(_ context.Context, resellerID, productID uuid.UUID) (int64, bool, error) {
	v, ok := s.custom[resellerID.String()+"|"+productID.String()]
	return v, ok, nil
}

func (s *stubRepo) RolePrice(_ context.Context, productID uuid.UUID, role string) (int64, bool, error) {
	v, ok := s.role[productID.String()+"|"+role]
	return v, ok, nil
}

func (s *stubRepo) AdminPrice(_ context.Context, productID uuid.UUID) (int64, bool, error) {
	v, ok := s.admin[productID]
	return v, ok, nil
}

func (s *stubRepo) ProductBasePrice(_ context.Context, productID uuid.UUID) (int64, bool, error) {
	v, ok := s.base[productID]
	return v, ok, nil
}

func newStub() *stubRepo {
	return &stubRepo{
		custom: map[string]int64{},
		role:   map[string]int64{},
		admin:  map[uuid.UUID]int64{},
		base:   map[uuid.UUID]int64{},
	}
}

func TestGuestGetsAdminBasePrice(t *testing.T) {
	product := uuid.New()
	repo := newStub()
	repo.admin[product] = 300
	repo.base[product] = 280

	svc := pricing.NewService(repo)
	quote, err := svc.Resolve(context.Background(), product, pricing.BuyerContext{})
	if err != nil {
		t.Fatalf("Resolve failed: %v", err)
	}
	if quote.UnitPrice != 300 || quote.BaseCost != 300 {
		t.Fatalf("quote = %+v, want 300/300", quote)
	}
	if quote.Margin() != 0 {
		t.Fatalf("guest margin = %d, want 0", quote.Margin())
	}
}

func TestResellerWithoutOverridesGetsAdminBase(t *testing.T) {
	product := uuid.New()
	reseller := uuid.New()
	repo := newStub()
	repo.admin[product] = 300

	svc := pricing.NewService(repo)
	quote, err := svc.Resolve(context.Background(), product, pricing.BuyerContext{
		UserID: reseller, Role: "agent", Authenticated: true,
	})
	if err != nil {
		t.Fatalf("Resolve failed: %v", err)
	}
	if quote.UnitPrice != 300 {
		t.Fatalf("unit price = %d, want admin base 300", quote.UnitPrice)
	}
}

func TestCustomPriceWinsOverBasePriceChanges(t *testing.T) {
	product := uuid.New()
	reseller := uuid.New()
	repo := newStub()
	repo.admin[product] = 300
	repo.role[product.String()+"|agent"] = 300
	repo.custom[reseller.String()+"|"+product.String()] = 350

	svc := pricing.NewService(repo)
	buyer := pricing.BuyerContext{UserID: reseller, Role: "agent", Authenticated: true}

	quote, err := svc.Resolve(context.Background(), product, buyer)
	if err != nil {
		t.Fatalf("Resolve failed: %v", err)
	}
	if quote.UnitPrice != 350 || quote.BaseCost != 300 {
		t.Fatalf("quote = %+v, want 350/300", quote)
	}
	if quote.Margin() != 50 {
		t.Fatalf("margin = %d, want 50", quote.Margin())
	}

	// Base price changes do not move the custom price.
	repo.role[product.String()+"|agent"] = 320
	quote, _ = svc.Resolve(context.Background(), product, buyer)
	if quote.UnitPrice != 350 {
		t.Fatalf("unit price = %d after base change, want 350", quote.UnitPrice)
	}
	if quote.BaseCost != 320 {
		t.Fatalf("base cost = %d, want 320", quote.BaseCost)
	}
}

func TestRolePriceBeatsAdminPrice(t *testing.T) {
	product := uuid.New()
	repo := newStub()
	repo.admin[product] = 300
	repo.role[product.String()+"|dealer"] = 270

	svc := pricing.NewService(repo)
	quote, err := svc.Resolve(context.Background(), product, pricing.BuyerContext{
		UserID: uuid.New(), Role: "dealer", Authenticated: true,
	})
	if err != nil {
		t.Fatalf("Resolve failed: %v", err)
	}
	if quote.BaseCost != 270 {
		t.Fatalf("base cost = %d, want role price 270", quote.BaseCost)
	}
}

func TestNegativeMarginClampedToZero(t *testing.T) {
	q := pricing.Quote{UnitPrice: 250, BaseCost: 300}
	if q.Margin() != 0 {
		t.Fatalf("margin = %d, want 0", q.Margin())
	}
}

func TestNoPriceAnywhere(t *testing.T) {
	svc := pricing.NewService(newStub())
	_, err := svc.Resolve(context.Background(), uuid.New(), pricing.BuyerContext{})
	if !errors.Is(err, pricing.ErrNoPrice) {
		t.Fatalf("expected ErrNoPrice, got %v", err)
	}
}

func TestGuestNeverSeesCustomPricing(t *testing.T) {
	product := uuid.New()
	reseller := uuid.New()
	repo := newStub()
	repo.admin[product] = 300
	repo.custom[reseller.String()+"|"+product.String()] = 350

	svc := pricing.NewService(repo)

	// Unauthenticated context carrying the same user ID must not resolve
	// the custom price.
	quote, err := svc.Resolve(context.Background(), product, pricing.BuyerContext{UserID: reseller})
	if err != nil {
		t.Fatalf("Resolve failed: %v", err)
	}
	if quote.UnitPrice != 300 {
		t.Fatalf("unit price = %d, want 300", quote.UnitPrice)
	}
}
