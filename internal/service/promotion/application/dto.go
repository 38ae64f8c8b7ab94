package application

import (
	"time"

	"bogo/internal/service/promotion/domain"
)

// CreateRuleRequest 是创建促销规则的请求体
type CreateRuleRequest struct {
	Title     string            `json:"title"`
	Status    domain.RuleStatus `json:"status,omitempty"`
	StartsAt  *time.Time        `json:"startsAt,omitempty"`
	EndsAt    *time.Time        `json:"endsAt,omitempty"`
	Condition string            `json:"condition,omitempty"`
	Config    domain.RuleConfig `json:"config"`
}

// UpdateStatusRequest 是变更规则状态的请求体
type UpdateStatusRequest struct {
	Status domain.RuleStatus `json:"status"`
}

// RuleResponse 是规则的对外表示
type RuleResponse struct {
	ID        string            `json:"id"`
	Title     string            `json:"title"`
	Status    domain.RuleStatus `json:"status"`
	StartsAt  time.Time         `json:"startsAt"`
	EndsAt    *time.Time        `json:"endsAt,omitempty"`
	Condition string            `json:"condition,omitempty"`
	Config    domain.RuleConfig `json:"config"`
	CreatedAt time.Time         `json:"createdAt"`
	UpdatedAt time.Time         `json:"updatedAt"`
}

func NewRuleResponse(r *domain.Rule) *RuleResponse {
	return &RuleResponse{
		ID:        r.ID,
		Title:     r.Title,
		Status:    r.Status,
		StartsAt:  r.StartsAt,
		EndsAt:    r.EndsAt,
		Condition: r.Condition,
		Config:    r.Config,
		CreatedAt: r.CreatedAt,
		UpdatedAt: r.UpdatedAt,
	}
}

// EvaluateCartRequest 针对已存储的规则评估购物车
type EvaluateCartRequest struct {
	CustomerID string              `json:"customerId,omitempty"`
	Cart       domain.CartSnapshot `json:"cart"`
}

// EvaluateConfigRequest 是无状态评估：规则配置随请求一起提交
type EvaluateConfigRequest struct {
	Config domain.RuleConfig   `json:"config"`
	Cart   domain.CartSnapshot `json:"cart"`
}

// EvaluationResponse 是评估结果。Outcome 说明计划为空的原因。
type EvaluationResponse struct {
	RuleID  string              `json:"ruleId,omitempty"`
	Outcome string              `json:"outcome"`
	Plan    domain.DiscountPlan `json:"plan"`
}

// RedeemRequest 是核销请求体，在订单确认后调用
type RedeemRequest struct {
	CustomerID string `json:"customerId,omitempty"`
	OrderID    string `json:"orderId"`
}

// RedemptionResponse 是核销结果
type RedemptionResponse struct {
	RuleID     string    `json:"ruleId"`
	CustomerID string    `json:"customerId,omitempty"`
	OrderID    string    `json:"orderId"`
	TotalUses  int       `json:"totalUses"`
	Duplicate  bool      `json:"duplicate"`
	RedeemedAt time.Time `json:"redeemedAt"`
}

func NewRedemptionResponse(r domain.Redemption) *RedemptionResponse {
	return &RedemptionResponse{
		RuleID:     r.RuleID,
		CustomerID: r.CustomerID,
		OrderID:    r.OrderID,
		TotalUses:  r.TotalUses,
		Duplicate:  r.Duplicate,
		RedeemedAt: r.RedeemedAt,
	}
}
