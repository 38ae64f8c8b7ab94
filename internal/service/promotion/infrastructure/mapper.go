package infrastructure

import (
	"database/sql"

	"bogo/internal/service/promotion/domain"

	"github.com/shopspring/decimal"
)

// ToDomainRule 将数据库模型转换为领域模型
func ToDomainRule(m *PromotionRuleModel) *domain.Rule {
	if m == nil {
		return nil
	}
	rule := &domain.Rule{
		ID:        m.ID,
		Title:     m.Title,
		Status:    domain.RuleStatus(m.Status),
		StartsAt:  m.StartsAt.UTC(),
		Condition: m.Condition,
		CreatedAt: m.CreatedAt,
		UpdatedAt: m.UpdatedAt,
		Config: domain.RuleConfig{
			Trigger: domain.Trigger{
				Items:       domain.ItemSet{Kind: domain.ItemSetKind(m.TriggerItemKind), IDs: []string(m.TriggerIDs)},
				MinQuantity: m.TriggerMinQuantity,
			},
			Reward: domain.Reward{
				Items:    domain.ItemSet{Kind: domain.ItemSetKind(m.RewardItemKind), IDs: []string(m.RewardIDs)},
				Quantity: m.RewardQuantity,
				Kind:     domain.RewardKind(m.RewardType),
			},
			Combinability: domain.Combinability{
				WithOrderDiscounts:    m.CombinesOrder,
				WithProductDiscounts:  m.CombinesProduct,
				WithShippingDiscounts: m.CombinesShipping,
			},
			UsageLimits:        domain.UsageLimits{PerCustomer: m.LimitPerCustomer},
			AllocationStrategy: domain.AllocationStrategy(m.AllocationStrategy),
		},
	}
	if m.EndsAt.Valid {
		endsAt := m.EndsAt.Time.UTC()
		rule.EndsAt = &endsAt
	}
	if m.RewardValue.Valid {
		value := m.RewardValue.Decimal
		rule.Config.Reward.Value = &value
	}
	if m.LimitTotalUses.Valid {
		total := int(m.LimitTotalUses.Int64)
		rule.Config.UsageLimits.TotalUses = &total
	}
	return rule
}

// FromDomainRule 将领域模型转换为数据库模型
func FromDomainRule(r *domain.Rule) *PromotionRuleModel {
	if r == nil {
		return nil
	}
	cfg := r.Config
	m := &PromotionRuleModel{
		ID:                 r.ID,
		Title:              r.Title,
		Status:             string(r.Status),
		StartsAt:           r.StartsAt,
		Condition:          r.Condition,
		TriggerItemKind:    string(cfg.Trigger.Items.Kind),
		TriggerIDs:         IDList(cfg.Trigger.Items.IDs),
		TriggerMinQuantity: cfg.Trigger.MinQuantity,
		RewardItemKind:     string(cfg.Reward.Items.Kind),
		RewardIDs:          IDList(cfg.Reward.Items.IDs),
		RewardQuantity:     cfg.Reward.Quantity,
		RewardType:         string(cfg.Reward.Kind),
		CombinesOrder:      cfg.Combinability.WithOrderDiscounts,
		CombinesProduct:    cfg.Combinability.WithProductDiscounts,
		CombinesShipping:   cfg.Combinability.WithShippingDiscounts,
		LimitPerCustomer:   cfg.UsageLimits.PerCustomer,
		AllocationStrategy: string(cfg.AllocationStrategy),
		CreatedAt:          r.CreatedAt,
		UpdatedAt:          r.UpdatedAt,
	}
	if r.EndsAt != nil {
		m.EndsAt = sql.NullTime{Time: *r.EndsAt, Valid: true}
	}
	if cfg.Reward.Value != nil {
		m.RewardValue = decimal.NullDecimal{Decimal: *cfg.Reward.Value, Valid: true}
	}
	if cfg.UsageLimits.TotalUses != nil {
		m.LimitTotalUses = sql.NullInt64{Int64: int64(*cfg.UsageLimits.TotalUses), Valid: true}
	}
	return m
}
