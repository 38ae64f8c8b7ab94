package rule

import (
	"fmt"
	"testing"

	"bogo/internal/service/promotion/domain"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sampleFact() domain.Fact {
	return domain.Fact{
		CustomerID: "vip-42",
		Cart: domain.CartSnapshot{Lines: []domain.CartLine{
			{LineID: "l1", MerchandiseID: "p1", Quantity: 2, UnitPrice: decimal.RequireFromString("19.99")},
			{LineID: "l2", MerchandiseID: "p2", Quantity: 1, UnitPrice: decimal.RequireFromString("15")},
		}},
	}
}

func TestCELConditionEngine_Evaluate(t *testing.T) {
	engine, err := NewCELConditionEngine()
	require.NoError(t, err)

	tests := []struct {
		expr string
		want bool
	}{
		{`cart.subtotal >= 50.0`, true},
		{`cart.subtotal > 60.0`, false},
		{`cart.quantity >= 3`, true},
		{`cart.line_count == 2`, true},
		{`"p2" in cart.merchandise_ids`, true},
		{`"p9" in cart.merchandise_ids`, false},
		{`customer.id.startsWith("vip-")`, true},
		{`cart.lines.exists(l, l.merchandise_id == "p1" && l.quantity >= 2)`, true},
	}
	for _, tt := range tests {
		t.Run(tt.expr, func(t *testing.T) {
			require.NoError(t, engine.Compile(tt.expr))
			got, err := engine.Evaluate(tt.expr, sampleFact())
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestCELConditionEngine_CompileErrors(t *testing.T) {
	engine, err := NewCELConditionEngine()
	require.NoError(t, err)

	for _, expr := range []string{`cart.subtotal >=`, `"not a bool"`, `order.total > 1`} {
		err := engine.Compile(expr)
		require.Error(t, err, expr)
		assert.ErrorIs(t, err, domain.ErrInvalidCondition)
		assert.True(t, domain.IsValidationError(err))
	}
}

func TestCELConditionEngine_RuntimeNonBool(t *testing.T) {
	engine, err := NewCELConditionEngine()
	require.NoError(t, err)

	// cart 的字段是 dyn，类型检查放行，运行期才发现不是 bool
	require.NoError(t, engine.Compile(`cart.quantity`))
	_, err = engine.Evaluate(`cart.quantity`, sampleFact())
	require.Error(t, err)
	assert.EqualError(t, err, "condition evaluated to int64, want bool")
	assert.Contains(t, fmt.Sprintf("%+v", err), "cel_condition_engine.go", "error should carry a stack trace")

	_, err = engine.Evaluate(`cart.missing_field == 1`, sampleFact())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to evaluate condition: ")
}
