package domain

import (
	"encoding/json"
	"strings"

	"github.com/shopspring/decimal"
)

// EffectKind 是单条折扣指令对目标行的作用方式。
type EffectKind string

const (
	EffectPercentage         EffectKind = "PERCENTAGE"
	EffectFixedAmountPerUnit EffectKind = "FIXED_AMOUNT_PER_UNIT"
)

type Effect struct {
	Kind  EffectKind
	Value decimal.Decimal
}

func PercentageEffect(v decimal.Decimal) Effect {
	return Effect{Kind: EffectPercentage, Value: v}
}

func FixedAmountPerUnitEffect(v decimal.Decimal) Effect {
	return Effect{Kind: EffectFixedAmountPerUnit, Value: v}
}

// DiscountInstruction 表示对某一购物车行中 DiscountedQuantity 件商品施加 Effect。
type DiscountInstruction struct {
	TargetLineID       string
	DiscountedQuantity int
	Effect             Effect
	Message            string
}

// DiscountPlan 是评估器的输出，构造后不再修改，归调用方所有。
type DiscountPlan struct {
	Instructions []DiscountInstruction
	Strategy     AllocationStrategy
}

// EmptyPlan 返回不含任何折扣的计划，策略缺省为 MAXIMUM。
func EmptyPlan(strategy AllocationStrategy) DiscountPlan {
	if strategy == "" {
		strategy = StrategyMaximum
	}
	return DiscountPlan{Instructions: []DiscountInstruction{}, Strategy: strategy}
}

// IsEmpty 为 true 表示规则对该购物车不适用，这不是错误。
func (p DiscountPlan) IsEmpty() bool {
	return len(p.Instructions) == 0
}

// DiscountedUnits 返回计划中被折扣的商品总件数。
func (p DiscountPlan) DiscountedUnits() int {
	n := 0
	for _, in := range p.Instructions {
		n += in.DiscountedQuantity
	}
	return n
}

// --- 线上格式 ---
// 与下游折扣应用方约定的结构，字段名和取值格式必须保持稳定。

type wirePlan struct {
	Discounts                   []wireDiscount     `json:"discounts"`
	DiscountApplicationStrategy AllocationStrategy `json:"discountApplicationStrategy"`
}

type wireDiscount struct {
	Targets []wireTarget `json:"targets"`
	Value   wireValue    `json:"value"`
	Message string       `json:"message"`
}

type wireTarget struct {
	CartLine wireCartLine `json:"cartLine"`
}

type wireCartLine struct {
	ID       string `json:"id"`
	Quantity int    `json:"quantity"`
}

type wireValue struct {
	Percentage  *wirePercentage  `json:"percentage,omitempty"`
	FixedAmount *wireFixedAmount `json:"fixedAmount,omitempty"`
}

type wirePercentage struct {
	Value string `json:"value"`
}

type wireFixedAmount struct {
	Amount            string `json:"amount"`
	AppliesToEachItem bool   `json:"appliesToEachItem"`
}

func (p DiscountPlan) MarshalJSON() ([]byte, error) {
	out := wirePlan{
		Discounts:                   make([]wireDiscount, 0, len(p.Instructions)),
		DiscountApplicationStrategy: p.Strategy,
	}
	for _, in := range p.Instructions {
		out.Discounts = append(out.Discounts, wireDiscount{
			Targets: []wireTarget{{CartLine: wireCartLine{ID: in.TargetLineID, Quantity: in.DiscountedQuantity}}},
			Value:   in.Effect.wire(),
			Message: in.Message,
		})
	}
	return json.Marshal(out)
}

func (e Effect) wire() wireValue {
	if e.Kind == EffectFixedAmountPerUnit {
		return wireValue{FixedAmount: &wireFixedAmount{Amount: formatAmount(e.Value), AppliesToEachItem: true}}
	}
	return wireValue{Percentage: &wirePercentage{Value: formatPercentage(e.Value)}}
}

// formatPercentage 至少保留一位小数，100 -> "100.0"，12.25 -> "12.25"。
func formatPercentage(v decimal.Decimal) string {
	s := v.String()
	if !strings.Contains(s, ".") {
		s += ".0"
	}
	return s
}

// formatAmount 至少保留两位小数，不做舍入。
func formatAmount(v decimal.Decimal) string {
	if v.Exponent() >= -2 {
		return v.StringFixed(2)
	}
	return v.String()
}
