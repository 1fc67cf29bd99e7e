package discount

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func TestSubtotal(t *testing.T) {
	lines := []Line{
		{ProductID: "p1", Quantity: 2, UnitPrice: dec("10.50")},
		{ProductID: "p2", Quantity: 1, UnitPrice: dec("19.99")},
	}
	assert.True(t, dec("40.99").Equal(Subtotal(lines)))
	assert.True(t, decimal.Zero.Equal(Subtotal(nil)))
}

func TestComputeAmount(t *testing.T) {
	lines := []Line{
		{ProductID: "p1", Quantity: 2, UnitPrice: dec("100")}, // 200
		{ProductID: "p2", Quantity: 1, UnitPrice: dec("50")},  // 50
	}
	subtotal := dec("250")

	tests := []struct {
		name string
		d    Discount
		want decimal.Decimal
	}{
		{
			name: "percentage order scope",
			d:    Discount{Type: TypePercentage, Scope: ScopeOrder, Value: dec("10")},
			want: dec("25.00"),
		},
		{
			name: "fixed order scope",
			d:    Discount{Type: TypeFixed, Scope: ScopeOrder, Value: dec("30")},
			want: dec("30.00"),
		},
		{
			name: "fixed capped at subtotal",
			d:    Discount{Type: TypeFixed, Scope: ScopeOrder, Value: dec("9999")},
			want: dec("250.00"),
		},
		{
			name: "percentage product scope restricts base",
			d:    Discount{Type: TypePercentage, Scope: ScopeProduct, Value: dec("50"), ProductIDs: []string{"p2"}},
			want: dec("25.00"),
		},
		{
			name: "fixed product scope capped at eligible subtotal",
			d:    Discount{Type: TypeFixed, Scope: ScopeProduct, Value: dec("80"), ProductIDs: []string{"p2"}},
			want: dec("50.00"),
		},
		{
			name: "product scope with no eligible lines is zero",
			d:    Discount{Type: TypePercentage, Scope: ScopeProduct, Value: dec("50"), ProductIDs: []string{"p9"}},
			want: decimal.Zero,
		},
		{
			name: "rounded to 2 decimal places",
			d:    Discount{Type: TypePercentage, Scope: ScopeOrder, Value: dec("3.333")},
			want: dec("8.33"), // 250 * 0.03333 = 8.3325
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ComputeAmount(&tt.d, lines, subtotal)
			assert.True(t, tt.want.Equal(got), "expected %s, got %s", tt.want, got)
			assert.False(t, got.IsNegative())
			assert.True(t, got.LessThanOrEqual(subtotal))
		})
	}
}

func TestCheckGates(t *testing.T) {
	now := time.Date(2025, 6, 15, 12, 0, 0, 0, time.UTC)
	past := now.Add(-24 * time.Hour)
	future := now.Add(24 * time.Hour)
	uses := 5
	minOrder := dec("100")

	tests := []struct {
		name     string
		d        Discount
		subtotal decimal.Decimal
		wantErr  error
	}{
		{
			name:     "all gates pass",
			d:        Discount{StartsAt: &past, ExpiresAt: &future},
			subtotal: dec("50"),
		},
		{
			name:     "not yet active",
			d:        Discount{StartsAt: &future},
			subtotal: dec("50"),
			wantErr:  ErrNotYetActive,
		},
		{
			name:     "expired",
			d:        Discount{ExpiresAt: &past},
			subtotal: dec("50"),
			wantErr:  ErrExpired,
		},
		{
			name:     "usage limit reached",
			d:        Discount{MaxUses: &uses, UsedCount: 5},
			subtotal: dec("50"),
			wantErr:  ErrUsageLimit,
		},
		{
			name:     "under usage limit",
			d:        Discount{MaxUses: &uses, UsedCount: 4},
			subtotal: dec("50"),
		},
		{
			name:     "minimum order not met",
			d:        Discount{MinOrder: &minOrder},
			subtotal: dec("99.99"),
			wantErr:  &MinOrderError{},
		},
		{
			name:     "minimum order met exactly",
			d:        Discount{MinOrder: &minOrder},
			subtotal: dec("100"),
		},
		{
			// The window gate short-circuits before usage and minimum.
			name:     "expired wins over usage limit",
			d:        Discount{ExpiresAt: &past, MaxUses: &uses, UsedCount: 5, MinOrder: &minOrder},
			subtotal: dec("1"),
			wantErr:  ErrExpired,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := CheckGates(&tt.d, tt.subtotal, now)
			switch want := tt.wantErr.(type) {
			case nil:
				require.NoError(t, err)
			case *MinOrderError:
				var moErr *MinOrderError
				require.ErrorAs(t, err, &moErr)
			default:
				require.ErrorIs(t, err, want)
			}
		})
	}
}

func TestSelectAuto(t *testing.T) {
	stackableA := Applied{Code: "A", Stackable: true, Amount: dec("60")}
	stackableC := Applied{Code: "C", Stackable: true, Amount: dec("15")}
	nonStackB := Applied{Code: "B", Stackable: false, Amount: dec("50")}
	nonStackD := Applied{Code: "D", Stackable: false, Amount: dec("50")}

	tests := []struct {
		name       string
		candidates []Applied
		wantCodes  []string
	}{
		{
			name:       "stackable sum beats non-stackable",
			candidates: []Applied{stackableA, nonStackB},
			wantCodes:  []string{"A"},
		},
		{
			name:       "non-stackable beats smaller stackable",
			candidates: []Applied{stackableC, nonStackB},
			wantCodes:  []string{"B"},
		},
		{
			name:       "tie goes to stackable set",
			candidates: []Applied{{Code: "A", Stackable: true, Amount: dec("50")}, nonStackB},
			wantCodes:  []string{"A"},
		},
		{
			name:       "non-stackable tie goes to first seen",
			candidates: []Applied{nonStackB, nonStackD},
			wantCodes:  []string{"B"},
		},
		{
			name:       "all stackable returned together",
			candidates: []Applied{stackableA, stackableC},
			wantCodes:  []string{"A", "C"},
		},
		{
			name:       "only non-stackable",
			candidates: []Applied{nonStackB},
			wantCodes:  []string{"B"},
		},
		{
			name:       "no candidates",
			candidates: nil,
			wantCodes:  nil,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := selectAuto(tt.candidates)
			codes := make([]string, 0, len(got))
			for _, a := range got {
				codes = append(codes, a.Code)
			}
			if tt.wantCodes == nil {
				assert.Empty(t, codes)
				return
			}
			assert.Equal(t, tt.wantCodes, codes)
		})
	}
}
