package domain

import "time"

// PlanEvaluated 是每次针对已存储规则完成评估后发布的审计事件。
// 配合 RuleConfig 与 CartSnapshot 可以离线重放。
type PlanEvaluated struct {
	EventID     string       `json:"eventId"`
	RuleID      string       `json:"ruleId"`
	CustomerID  string       `json:"customerId,omitempty"`
	Outcome     string       `json:"outcome"`
	Cart        CartSnapshot `json:"cart"`
	Plan        DiscountPlan `json:"plan"`
	EvaluatedAt time.Time    `json:"evaluatedAt"`
}

// Fact 是可选规则条件（CEL）求值时可见的事实。
type Fact struct {
	CustomerID string
	Cart       CartSnapshot
}
