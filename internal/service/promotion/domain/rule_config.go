package domain

import (
	"strings"

	"github.com/shopspring/decimal"
)

// ItemSetKind 标识一个商品集合是按商品还是按商品系列（collection）圈定的。
type ItemSetKind string

const (
	ItemSetProduct    ItemSetKind = "PRODUCT"
	ItemSetCollection ItemSetKind = "COLLECTION"
)

// RewardKind 定义了赠品的优惠方式。
type RewardKind string

const (
	RewardFree        RewardKind = "FREE"         // 免费赠送
	RewardPercentage  RewardKind = "PERCENTAGE"   // 按比例打折
	RewardFixedAmount RewardKind = "FIXED_AMOUNT" // 每件立减固定金额
)

// AllocationStrategy 会原样带到 DiscountPlan 中，
// 下游的折扣应用方用它来决定多个折扣冲突时如何取舍。
type AllocationStrategy string

const (
	StrategyMaximum AllocationStrategy = "MAXIMUM"
	StrategyFirst   AllocationStrategy = "FIRST"
)

// ItemSet 是一组不透明的商品 ID。
// Kind 为 COLLECTION 时，评估前必须先由 CollectionResolver 展开为商品 ID。
type ItemSet struct {
	Kind ItemSetKind `json:"kind"`
	IDs  []string    `json:"ids"`
}

// Trigger 是"买 X"的部分。
type Trigger struct {
	Items       ItemSet `json:"items"`
	MinQuantity int     `json:"minQuantity"`
}

// Reward 是"送 Y"的部分。Value 仅在 Kind 不是 FREE 时出现。
type Reward struct {
	Items    ItemSet          `json:"items"`
	Quantity int              `json:"quantity"`
	Kind     RewardKind       `json:"kind"`
	Value    *decimal.Decimal `json:"value,omitempty"`
}

type Combinability struct {
	WithOrderDiscounts    bool `json:"withOrderDiscounts"`
	WithProductDiscounts  bool `json:"withProductDiscounts"`
	WithShippingDiscounts bool `json:"withShippingDiscounts"`
}

type UsageLimits struct {
	TotalUses   *int `json:"totalUses,omitempty"`
	PerCustomer bool `json:"perCustomer"`
}

// RuleConfig 是一条 BOGO 规则的完整配置。
// 通过 Validate 构造后即视为不可变，可以在并发评估之间共享。
type RuleConfig struct {
	Trigger            Trigger            `json:"trigger"`
	Reward             Reward             `json:"reward"`
	Combinability      Combinability      `json:"combinability"`
	UsageLimits        UsageLimits        `json:"usageLimits"`
	AllocationStrategy AllocationStrategy `json:"allocationStrategy"`
}

var hundred = decimal.NewFromInt(100)

// 奖励值按 decimal(19,4) 持久化，超出的精度或整数位会被数据库截断
const RewardValueScale = 4

var maxFixedAmount = decimal.New(1, 15)

// Validate 校验原始配置并返回规范化后的副本：
// 商品 ID 去空白、去重（保留首次出现的顺序），缺省的集合类型为 PRODUCT，缺省策略为 MAXIMUM。
// 它没有副作用，不会修改入参。
func Validate(raw RuleConfig) (RuleConfig, error) {
	cfg := RuleConfig{
		Combinability:      raw.Combinability,
		AllocationStrategy: raw.AllocationStrategy,
	}

	triggerItems, err := normalizeItemSet(raw.Trigger.Items, ErrInvalidTrigger, "trigger.items")
	if err != nil {
		return RuleConfig{}, err
	}
	if len(triggerItems.IDs) == 0 {
		return RuleConfig{}, invalid(ErrInvalidTrigger, "trigger.items.ids", "must not be empty")
	}
	if raw.Trigger.MinQuantity < 1 {
		return RuleConfig{}, invalid(ErrInvalidTrigger, "trigger.minQuantity", "must be at least 1")
	}
	cfg.Trigger = Trigger{Items: triggerItems, MinQuantity: raw.Trigger.MinQuantity}

	reward, err := validateReward(raw.Reward)
	if err != nil {
		return RuleConfig{}, err
	}
	cfg.Reward = reward

	if raw.UsageLimits.TotalUses != nil && *raw.UsageLimits.TotalUses <= 0 {
		return RuleConfig{}, invalid(ErrInvalidLimits, "usageLimits.totalUses", "must be positive when set")
	}
	cfg.UsageLimits = UsageLimits{PerCustomer: raw.UsageLimits.PerCustomer}
	if raw.UsageLimits.TotalUses != nil {
		total := *raw.UsageLimits.TotalUses
		cfg.UsageLimits.TotalUses = &total
	}

	switch cfg.AllocationStrategy {
	case "":
		cfg.AllocationStrategy = StrategyMaximum
	case StrategyMaximum, StrategyFirst:
	default:
		return RuleConfig{}, invalid(ErrInvalidStrategy, "allocationStrategy", "must be MAXIMUM or FIRST")
	}

	return cfg, nil
}

func validateReward(raw Reward) (Reward, error) {
	items, err := normalizeItemSet(raw.Items, ErrInvalidReward, "reward.items")
	if err != nil {
		return Reward{}, err
	}
	// 没有赠品范围的规则永远不会生效，按配置错误处理
	if len(items.IDs) == 0 {
		return Reward{}, invalid(ErrInvalidReward, "reward.items.ids", "must not be empty")
	}
	if raw.Quantity < 1 {
		return Reward{}, invalid(ErrInvalidReward, "reward.quantity", "must be at least 1")
	}

	reward := Reward{Items: items, Quantity: raw.Quantity, Kind: raw.Kind}
	switch raw.Kind {
	case RewardFree:
		if raw.Value != nil {
			return Reward{}, invalid(ErrInvalidReward, "reward.value", "must be omitted for FREE rewards")
		}
		return reward, nil
	case RewardPercentage:
		if raw.Value == nil {
			return Reward{}, invalid(ErrInvalidReward, "reward.value", "is required for PERCENTAGE rewards")
		}
		if !raw.Value.IsPositive() || raw.Value.GreaterThan(hundred) {
			return Reward{}, invalid(ErrInvalidReward, "reward.value", "must be in (0, 100] for PERCENTAGE rewards")
		}
	case RewardFixedAmount:
		if raw.Value == nil {
			return Reward{}, invalid(ErrInvalidReward, "reward.value", "is required for FIXED_AMOUNT rewards")
		}
		if raw.Value.IsNegative() {
			return Reward{}, invalid(ErrInvalidReward, "reward.value", "must not be negative for FIXED_AMOUNT rewards")
		}
	default:
		return Reward{}, invalid(ErrInvalidReward, "reward.kind", "must be FREE, PERCENTAGE or FIXED_AMOUNT")
	}

	if !raw.Value.Equal(raw.Value.Truncate(RewardValueScale)) {
		return Reward{}, invalid(ErrInvalidReward, "reward.value", "must have at most 4 decimal places")
	}
	if raw.Value.GreaterThanOrEqual(maxFixedAmount) {
		return Reward{}, invalid(ErrInvalidReward, "reward.value", "must be less than 10^15")
	}

	value := *raw.Value
	reward.Value = &value
	return reward, nil
}

func normalizeItemSet(raw ItemSet, kind error, field string) (ItemSet, error) {
	set := ItemSet{Kind: raw.Kind}
	switch set.Kind {
	case "":
		set.Kind = ItemSetProduct
	case ItemSetProduct, ItemSetCollection:
	default:
		return ItemSet{}, invalid(kind, field+".kind", "must be PRODUCT or COLLECTION")
	}

	seen := make(map[string]struct{}, len(raw.IDs))
	set.IDs = make([]string, 0, len(raw.IDs))
	for _, id := range raw.IDs {
		id = strings.TrimSpace(id)
		if id == "" {
			continue
		}
		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}
		set.IDs = append(set.IDs, id)
	}
	return set, nil
}

// membership 为一次评估构造查找表，不缓存在 ItemSet 上以保持其只读。
func (s ItemSet) membership() map[string]struct{} {
	m := make(map[string]struct{}, len(s.IDs))
	for _, id := range s.IDs {
		m[id] = struct{}{}
	}
	return m
}

// Expanded 返回把 collection 引用替换为成员商品 ID 之后的集合。
func (s ItemSet) Expanded(memberIDs []string) ItemSet {
	ids := make([]string, len(memberIDs))
	copy(ids, memberIDs)
	return ItemSet{Kind: ItemSetProduct, IDs: ids}
}

// WithItemSets 返回替换了触发/赠品商品集合的配置副本，用于 collection 展开。
func (c RuleConfig) WithItemSets(trigger, reward ItemSet) RuleConfig {
	out := c
	out.Trigger.Items = trigger
	out.Reward.Items = reward
	return out
}

// HasCollections 判断配置中是否存在需要展开的 collection 引用。
func (c RuleConfig) HasCollections() bool {
	return c.Trigger.Items.Kind == ItemSetCollection || c.Reward.Items.Kind == ItemSetCollection
}

func (r Reward) effect() Effect {
	switch r.Kind {
	case RewardPercentage:
		return PercentageEffect(*r.Value)
	case RewardFixedAmount:
		return FixedAmountPerUnitEffect(*r.Value)
	default:
		return PercentageEffect(hundred)
	}
}
