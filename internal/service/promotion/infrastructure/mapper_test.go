package infrastructure

import (
	"testing"
	"time"

	"bogo/internal/service/promotion/domain"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRuleMapping(t *testing.T) {
	now := time.Date(2026, 5, 1, 8, 0, 0, 0, time.UTC)
	end := now.Add(72 * time.Hour)
	total := 100
	value := decimal.RequireFromString("12.5")

	rule, err := domain.NewRule("r-1", domain.RuleDraft{
		Title:     "Weekend BOGO",
		Status:    domain.RuleStatusActive,
		EndsAt:    &end,
		Condition: "cart.subtotal >= 20.0",
		Config: domain.RuleConfig{
			Trigger: domain.Trigger{
				Items:       domain.ItemSet{Kind: domain.ItemSetCollection, IDs: []string{"summer"}},
				MinQuantity: 2,
			},
			Reward: domain.Reward{
				Items:    domain.ItemSet{Kind: domain.ItemSetProduct, IDs: []string{"p1", "p2"}},
				Quantity: 1,
				Kind:     domain.RewardPercentage,
				Value:    &value,
			},
			Combinability:      domain.Combinability{WithShippingDiscounts: true},
			UsageLimits:        domain.UsageLimits{TotalUses: &total, PerCustomer: true},
			AllocationStrategy: domain.StrategyFirst,
		},
	}, now)
	require.NoError(t, err)

	model := FromDomainRule(rule)
	assert.Equal(t, "COLLECTION", model.TriggerItemKind)
	assert.True(t, model.EndsAt.Valid)
	assert.True(t, model.RewardValue.Valid)
	assert.Equal(t, int64(100), model.LimitTotalUses.Int64)

	back := ToDomainRule(model)
	assert.Equal(t, rule.ID, back.ID)
	assert.Equal(t, rule.Status, back.Status)
	assert.Equal(t, rule.Condition, back.Condition)
	assert.Equal(t, end, *back.EndsAt)
	assert.Equal(t, rule.Config.Trigger, back.Config.Trigger)
	assert.Equal(t, rule.Config.Reward.Items, back.Config.Reward.Items)
	assert.True(t, back.Config.Reward.Value.Equal(value))
	assert.Equal(t, 100, *back.Config.UsageLimits.TotalUses)
	assert.True(t, back.Config.UsageLimits.PerCustomer)
	assert.True(t, back.Config.Combinability.WithShippingDiscounts)
	assert.Equal(t, domain.StrategyFirst, back.Config.AllocationStrategy)
}

func TestRuleMapping_OptionalFieldsStayNil(t *testing.T) {
	model := &PromotionRuleModel{
		ID:             "r-2",
		Status:         "DRAFT",
		RewardType:     "FREE",
		RewardQuantity: 1,
	}
	rule := ToDomainRule(model)
	assert.Nil(t, rule.EndsAt)
	assert.Nil(t, rule.Config.Reward.Value)
	assert.Nil(t, rule.Config.UsageLimits.TotalUses)

	assert.Nil(t, ToDomainRule(nil))
	assert.Nil(t, FromDomainRule(nil))
}

func TestIDList_ValueAndScan(t *testing.T) {
	v, err := IDList{"a", "b"}.Value()
	require.NoError(t, err)
	assert.Equal(t, `["a","b"]`, v)

	v, err = IDList(nil).Value()
	require.NoError(t, err)
	assert.Equal(t, "[]", v)

	var ids IDList
	require.NoError(t, ids.Scan([]byte(`["x","y"]`)))
	assert.Equal(t, IDList{"x", "y"}, ids)
	require.NoError(t, ids.Scan(`["z"]`))
	assert.Equal(t, IDList{"z"}, ids)
	require.NoError(t, ids.Scan(nil))
	assert.Empty(t, ids)
	assert.EqualError(t, ids.Scan(42), "unsupported type int for IDList")
}
