package domain

import "context"

// RuleRepository 定义了促销规则的持久化接口。
// 它位于领域层，但由基础设施层实现。
type RuleRepository interface {
	Save(ctx context.Context, rule *Rule) error
	FindByID(ctx context.Context, id string) (*Rule, error)
	List(ctx context.Context) ([]*Rule, error)
	Delete(ctx context.Context, id string) error
	UpdateStatus(ctx context.Context, id string, status RuleStatus) error
}

// CollectionResolver 把 collection ID 展开为成员商品 ID。
// 评估器本身从不解析 collection，这一步在评估之前完成。
type CollectionResolver interface {
	Members(ctx context.Context, collectionIDs []string) ([]string, error)
}

// UsageLedger 记录规则的使用次数，用于执行 UsageLimits。
type UsageLedger interface {
	Usage(ctx context.Context, ruleID, customerID string) (Usage, error)
	// Redeem 原子地检查限制并记录一次使用。
	Redeem(ctx context.Context, ruleID, customerID, orderID string, limits UsageLimits) (Redemption, error)
}

// ConditionEngine 评估规则上可选的购物车条件。
type ConditionEngine interface {
	Compile(expr string) error
	Evaluate(expr string, fact Fact) (bool, error)
}

// PlanPublisher 发布评估审计事件。
type PlanPublisher interface {
	PublishPlan(ctx context.Context, event *PlanEvaluated) error
}
