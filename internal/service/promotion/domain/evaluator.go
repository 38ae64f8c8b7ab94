package domain

import (
	"fmt"
	"math"
	"sort"
)

// Outcome 说明一次评估为什么产生（或没有产生）折扣。
type Outcome string

const (
	OutcomeApplied            Outcome = "applied"
	OutcomeNoTrigger          Outcome = "no_trigger"
	OutcomeBelowThreshold     Outcome = "below_threshold"
	OutcomeNoRewardCandidates Outcome = "no_reward_candidates"
)

// Evaluation 是 EvaluateDetailed 的结果，附带了中间量，便于审计和打点。
type Evaluation struct {
	Plan            DiscountPlan
	Outcome         Outcome
	TriggerQuantity int
	FreeUnits       int
}

// Evaluate 计算规则在给定购物车上的折扣计划。
//
// 它是纯函数：不做 I/O，不保留跨调用状态，相同输入得到相同输出。
// rule 必须是 Validate 的返回值，且 COLLECTION 类型的商品集合已经展开。
// 规则不适用时返回空计划，而不是错误。
func Evaluate(rule RuleConfig, cart CartSnapshot) DiscountPlan {
	return EvaluateDetailed(rule, cart).Plan
}

func EvaluateDetailed(rule RuleConfig, cart CartSnapshot) Evaluation {
	plan := EmptyPlan(rule.AllocationStrategy)

	// 1. 触发商品过滤 + 2. 触发数量
	triggers := rule.Trigger.Items.membership()
	totalTriggerQty := 0
	matched := false
	for _, line := range cart.Lines {
		if _, ok := triggers[line.MerchandiseID]; ok {
			matched = true
			totalTriggerQty = addSaturating(totalTriggerQty, line.Quantity)
		}
	}
	if !matched {
		return Evaluation{Plan: plan, Outcome: OutcomeNoTrigger}
	}
	if totalTriggerQty < rule.Trigger.MinQuantity {
		return Evaluation{Plan: plan, Outcome: OutcomeBelowThreshold, TriggerQuantity: totalTriggerQty}
	}

	// 3. 可赠送件数，一个购物车可以多次满足条件。极端数量下饱和到 math.MaxInt，分配时再按行数量截断
	timesQualified := totalTriggerQty / rule.Trigger.MinQuantity
	freeUnits := mulSaturating(timesQualified, rule.Reward.Quantity)

	// 4. 赠品候选行。同一行可以既是触发行又是赠品行，两边各自读取 Quantity。
	rewards := rule.Reward.Items.membership()
	candidates := make([]CartLine, 0, len(cart.Lines))
	for _, line := range cart.Lines {
		if _, ok := rewards[line.MerchandiseID]; ok {
			candidates = append(candidates, line)
		}
	}
	if len(candidates) == 0 {
		return Evaluation{
			Plan:            plan,
			Outcome:         OutcomeNoRewardCandidates,
			TriggerQuantity: totalTriggerQty,
			FreeUnits:       freeUnits,
		}
	}

	// 5. 最便宜的先送，同价按输入顺序
	sort.SliceStable(candidates, func(i, j int) bool {
		return candidates[i].UnitPrice.LessThan(candidates[j].UnitPrice)
	})

	// 6. 贪心分配，多余的件数直接丢弃
	effect := rule.Reward.effect()
	message := Message(rule)
	remaining := freeUnits
	for _, line := range candidates {
		if remaining <= 0 {
			break
		}
		qty := min(remaining, line.Quantity)
		if qty <= 0 {
			continue
		}
		plan.Instructions = append(plan.Instructions, DiscountInstruction{
			TargetLineID:       line.LineID,
			DiscountedQuantity: qty,
			Effect:             effect,
			Message:            message,
		})
		remaining -= qty
	}

	outcome := OutcomeApplied
	if plan.IsEmpty() {
		outcome = OutcomeNoRewardCandidates
	}
	return Evaluation{
		Plan:            plan,
		Outcome:         outcome,
		TriggerQuantity: totalTriggerQty,
		FreeUnits:       freeUnits,
	}
}

func addSaturating(a, b int) int {
	if b > 0 && a > math.MaxInt-b {
		return math.MaxInt
	}
	return a + b
}

// a、b 均为非负数
func mulSaturating(a, b int) int {
	if a == 0 || b == 0 {
		return 0
	}
	if a > math.MaxInt/b {
		return math.MaxInt
	}
	return a * b
}

// Message 生成展示给顾客的规则描述，例如 "Buy 2 Get 1 Free"。
func Message(rule RuleConfig) string {
	buy, get := rule.Trigger.MinQuantity, rule.Reward.Quantity
	switch rule.Reward.Kind {
	case RewardPercentage:
		return fmt.Sprintf("Buy %d Get %d at %s%% off", buy, get, rule.Reward.Value.String())
	case RewardFixedAmount:
		return fmt.Sprintf("Buy %d Get %d with %s off each", buy, get, rule.Reward.Value.StringFixed(2))
	default:
		return fmt.Sprintf("Buy %d Get %d Free", buy, get)
	}
}
