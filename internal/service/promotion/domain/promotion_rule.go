package domain

import (
	"strings"
	"time"
)

// RuleStatus 定义了促销规则的生命周期状态。
type RuleStatus string

const (
	RuleStatusDraft    RuleStatus = "DRAFT"    // 已创建，未上线
	RuleStatusActive   RuleStatus = "ACTIVE"   // 生效中
	RuleStatusArchived RuleStatus = "ARCHIVED" // 已归档，终态
)

// Rule 是持久化的促销规则记录：RuleConfig 加上标题、排期、状态等运营信息。
type Rule struct {
	ID        string
	Title     string
	Status    RuleStatus
	StartsAt  time.Time
	EndsAt    *time.Time
	Condition string // 可选的 CEL 表达式，针对购物车事实求值
	Config    RuleConfig
	CreatedAt time.Time
	UpdatedAt time.Time
}

// RuleDraft 是创建规则时的原始输入。
type RuleDraft struct {
	Title     string
	Status    RuleStatus
	StartsAt  time.Time
	EndsAt    *time.Time
	Condition string
	Config    RuleConfig
}

// NewRule 是创建规则的工厂函数，所有校验都在这里完成。
// StartsAt 为零值时从 now 开始生效。
func NewRule(id string, draft RuleDraft, now time.Time) (*Rule, error) {
	title := strings.TrimSpace(draft.Title)
	if title == "" {
		return nil, invalid(ErrInvalidRule, "title", "is required")
	}

	status := draft.Status
	switch status {
	case "":
		status = RuleStatusDraft
	case RuleStatusDraft, RuleStatusActive:
	default:
		return nil, invalid(ErrInvalidRule, "status", "must be DRAFT or ACTIVE on creation")
	}

	startsAt := draft.StartsAt
	if startsAt.IsZero() {
		startsAt = now
	}
	if draft.EndsAt != nil && !draft.EndsAt.After(startsAt) {
		return nil, invalid(ErrInvalidSchedule, "endsAt", "must be after startsAt")
	}

	cfg, err := Validate(draft.Config)
	if err != nil {
		return nil, err
	}

	rule := &Rule{
		ID:        id,
		Title:     title,
		Status:    status,
		StartsAt:  startsAt.UTC(),
		Condition: strings.TrimSpace(draft.Condition),
		Config:    cfg,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if draft.EndsAt != nil {
		endsAt := draft.EndsAt.UTC()
		rule.EndsAt = &endsAt
	}
	return rule, nil
}

// IsActive 检查规则在 now 时刻是否生效：状态为 ACTIVE 且处于 [StartsAt, EndsAt) 之间。
func (r *Rule) IsActive(now time.Time) bool {
	if r.Status != RuleStatusActive {
		return false
	}
	if now.Before(r.StartsAt) {
		return false
	}
	return r.EndsAt == nil || now.Before(*r.EndsAt)
}

// TransitionTo 变更规则状态。ARCHIVED 是终态。
func (r *Rule) TransitionTo(status RuleStatus, now time.Time) error {
	switch status {
	case RuleStatusDraft, RuleStatusActive, RuleStatusArchived:
	default:
		return invalid(ErrInvalidRule, "status", "must be DRAFT, ACTIVE or ARCHIVED")
	}
	if r.Status == RuleStatusArchived && status != RuleStatusArchived {
		return ErrInvalidStatusTransition
	}
	r.Status = status
	r.UpdatedAt = now
	return nil
}
