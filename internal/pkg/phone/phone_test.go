package phone_test

import (
	"testing"

	"github.com/dataplug/dataplug-api/internal/pkg/phone"
)

func TestNormalize(t *testing.T) {
	cases := []struct {
		raw  string
		want string
	}{
		{"0241234567", "0241234567"},
		{"233241234567", "0241234567"},
		{"+233241234567", "0241234567"},
		{"241234567", "0241234567"},
		{" 024 123 4567 ", "0241234567"},
		{"024-123-4567", "0241234567"},
	}
	for _, tc := range cases {
		got, err := phone.Normalize(tc.raw)
		if err != nil {
			t.Fatalf("Normalize(%q) failed: %v", tc.raw, err)
		}
		if got != tc.want {
			t.Errorf("Normalize(%q) = %q, want %q", tc.raw, got, tc.want)
		}
	}
}

func TestNormalizeRejectsInvalid(t *testing.T) {
	for _, raw := range []string{"", "12345", "02412345678", "44241234567"} {
		if _, err := phone.Normalize(raw); err == nil {
			t.Errorf("Normalize(%q) expected error", raw)
		}
	}
}

func TestSameNumberDifferentForms(t *testing.T) {
	a, _ := phone.Normalize("+233541112222")
	b, _ := phone.Normalize("0541112222")
	if a != b {
		t.Fatalf("expected equal canonical forms, got %q and %q", a, b)
	}
}
