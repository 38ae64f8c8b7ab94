package application

import (
	"context"
	"errors"
	"time"

	"bogo/internal/pkg/logger"
	"bogo/internal/service/promotion/domain"

	"github.com/google/uuid"
	pkgerrors "github.com/pkg/errors"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// 评估前置检查未通过时的 Outcome，其余取值见 domain.Outcome
const (
	OutcomeInactive   = "inactive"
	OutcomeUsageLimit = "usage_limit"
	OutcomeCondition  = "condition"
)

// Metrics 记录评估与核销指标
type Metrics interface {
	ObserveEvaluation(outcome string, discountedUnits int, elapsed time.Duration)
	ObserveRedemption(result string)
}

// Dependencies 汇总 PromotionService 的外部依赖。
// Conditions、Publisher、Metrics 可以为空。
type Dependencies struct {
	Rules      domain.RuleRepository
	Resolver   domain.CollectionResolver
	Ledger     domain.UsageLedger
	Conditions domain.ConditionEngine
	Publisher  domain.PlanPublisher
	Metrics    Metrics
	Tracer     trace.Tracer
}

// PromotionService 定义了促销服务提供的所有业务用例
type PromotionService struct {
	rules      domain.RuleRepository
	resolver   domain.CollectionResolver
	ledger     domain.UsageLedger
	conditions domain.ConditionEngine
	publisher  domain.PlanPublisher
	metrics    Metrics
	tracer     trace.Tracer

	now   func() time.Time
	newID func() string
}

// NewPromotionService 创建一个新的促销服务实例
func NewPromotionService(deps Dependencies) *PromotionService {
	return &PromotionService{
		rules:      deps.Rules,
		resolver:   deps.Resolver,
		ledger:     deps.Ledger,
		conditions: deps.Conditions,
		publisher:  deps.Publisher,
		metrics:    deps.Metrics,
		tracer:     deps.Tracer,
		now:        func() time.Time { return time.Now().UTC() },
		newID:      uuid.NewString,
	}
}

// CreateRule 校验并保存一条新规则
func (s *PromotionService) CreateRule(ctx context.Context, req *CreateRuleRequest) (*domain.Rule, error) {
	ctx, span := s.tracer.Start(ctx, "service.CreateRule")
	defer span.End()

	draft := domain.RuleDraft{
		Title:     req.Title,
		Status:    req.Status,
		EndsAt:    req.EndsAt,
		Condition: req.Condition,
		Config:    req.Config,
	}
	if req.StartsAt != nil {
		draft.StartsAt = *req.StartsAt
	}

	rule, err := domain.NewRule(s.newID(), draft, s.now())
	if err != nil {
		span.RecordError(err)
		return nil, err
	}
	if rule.Condition != "" && s.conditions != nil {
		if err := s.conditions.Compile(rule.Condition); err != nil {
			span.RecordError(err)
			return nil, err
		}
	}

	if err := s.rules.Save(ctx, rule); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}

	span.SetAttributes(attribute.String("promotion.rule_id", rule.ID))
	logger.Ctx(ctx).Info().Str("rule_id", rule.ID).Str("status", string(rule.Status)).Msg("Promotion rule created")
	return rule, nil
}

func (s *PromotionService) GetRule(ctx context.Context, id string) (*domain.Rule, error) {
	ctx, span := s.tracer.Start(ctx, "service.GetRule", trace.WithAttributes(attribute.String("promotion.rule_id", id)))
	defer span.End()

	return s.rules.FindByID(ctx, id)
}

func (s *PromotionService) ListRules(ctx context.Context) ([]*domain.Rule, error) {
	ctx, span := s.tracer.Start(ctx, "service.ListRules")
	defer span.End()

	return s.rules.List(ctx)
}

func (s *PromotionService) DeleteRule(ctx context.Context, id string) error {
	ctx, span := s.tracer.Start(ctx, "service.DeleteRule", trace.WithAttributes(attribute.String("promotion.rule_id", id)))
	defer span.End()

	if err := s.rules.Delete(ctx, id); err != nil {
		span.RecordError(err)
		return err
	}
	logger.Ctx(ctx).Info().Str("rule_id", id).Msg("Promotion rule deleted")
	return nil
}

// UpdateStatus 变更规则状态，ARCHIVED 之后不能再变更
func (s *PromotionService) UpdateStatus(ctx context.Context, id string, status domain.RuleStatus) (*domain.Rule, error) {
	ctx, span := s.tracer.Start(ctx, "service.UpdateStatus", trace.WithAttributes(
		attribute.String("promotion.rule_id", id),
		attribute.String("promotion.status", string(status)),
	))
	defer span.End()

	rule, err := s.rules.FindByID(ctx, id)
	if err != nil {
		span.RecordError(err)
		return nil, err
	}
	from := rule.Status
	if err := rule.TransitionTo(status, s.now()); err != nil {
		span.RecordError(err)
		return nil, err
	}
	if err := s.rules.UpdateStatus(ctx, id, rule.Status); err != nil {
		span.RecordError(err)
		return nil, err
	}

	logger.Ctx(ctx).Info().Str("rule_id", id).Str("from", string(from)).Str("to", string(status)).Msg("Promotion rule status changed")
	return rule, nil
}

// EvaluateCart 针对已存储的规则评估购物车。
// 规则未生效、超出使用限制或条件不满足时返回空计划，并在 Outcome 中给出原因。
func (s *PromotionService) EvaluateCart(ctx context.Context, ruleID string, req *EvaluateCartRequest) (*EvaluationResponse, error) {
	ctx, span := s.tracer.Start(ctx, "service.EvaluateCart", trace.WithAttributes(
		attribute.String("promotion.rule_id", ruleID),
		attribute.String("customer.id", req.CustomerID),
		attribute.Int("cart.lines", len(req.Cart.Lines)),
	))
	defer span.End()
	started := time.Now()

	if err := req.Cart.Validate(); err != nil {
		span.RecordError(err)
		return nil, err
	}

	rule, err := s.rules.FindByID(ctx, ruleID)
	if err != nil {
		span.RecordError(err)
		return nil, err
	}

	outcome, plan, err := s.evaluateRule(ctx, rule, req)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}

	span.SetAttributes(
		attribute.String("promotion.outcome", outcome),
		attribute.Int("promotion.discounted_units", plan.DiscountedUnits()),
	)
	s.observeEvaluation(outcome, plan, started)
	s.publish(ctx, &domain.PlanEvaluated{
		EventID:     s.newID(),
		RuleID:      rule.ID,
		CustomerID:  req.CustomerID,
		Outcome:     outcome,
		Cart:        req.Cart,
		Plan:        plan,
		EvaluatedAt: s.now(),
	})

	return &EvaluationResponse{RuleID: rule.ID, Outcome: outcome, Plan: plan}, nil
}

func (s *PromotionService) evaluateRule(ctx context.Context, rule *domain.Rule, req *EvaluateCartRequest) (string, domain.DiscountPlan, error) {
	empty := domain.EmptyPlan(rule.Config.AllocationStrategy)

	// 1. 排期与状态
	if !rule.IsActive(s.now()) {
		return OutcomeInactive, empty, nil
	}

	// 2. 使用次数限制
	limits := rule.Config.UsageLimits
	if limits.TotalUses != nil || (limits.PerCustomer && req.CustomerID != "") {
		usage, err := s.ledger.Usage(ctx, rule.ID, req.CustomerID)
		if err != nil {
			return "", domain.DiscountPlan{}, err
		}
		if usage.Allows(limits) != nil {
			return OutcomeUsageLimit, empty, nil
		}
	}

	// 3. 可选的购物车条件
	if rule.Condition != "" && s.conditions != nil {
		matched, err := s.conditions.Evaluate(rule.Condition, domain.Fact{CustomerID: req.CustomerID, Cart: req.Cart})
		if err != nil {
			// 求值出错按不满足处理
			logger.Ctx(ctx).Warn().Err(err).Str("rule_id", rule.ID).Msg("Rule condition evaluation failed")
			matched = false
		}
		if !matched {
			return OutcomeCondition, empty, nil
		}
	}

	// 4. 展开 collection 后交给纯函数评估
	cfg, err := ExpandCollections(ctx, s.resolver, rule.Config)
	if err != nil {
		return "", domain.DiscountPlan{}, err
	}
	eval := domain.EvaluateDetailed(cfg, req.Cart)
	return string(eval.Outcome), eval.Plan, nil
}

// EvaluateConfig 是无状态评估：不读规则库、不检查使用限制、不发布事件。
func (s *PromotionService) EvaluateConfig(ctx context.Context, req *EvaluateConfigRequest) (*EvaluationResponse, error) {
	ctx, span := s.tracer.Start(ctx, "service.EvaluateConfig", trace.WithAttributes(
		attribute.Int("cart.lines", len(req.Cart.Lines)),
	))
	defer span.End()
	started := time.Now()

	cfg, err := domain.Validate(req.Config)
	if err != nil {
		span.RecordError(err)
		return nil, err
	}
	if err := req.Cart.Validate(); err != nil {
		span.RecordError(err)
		return nil, err
	}
	cfg, err = ExpandCollections(ctx, s.resolver, cfg)
	if err != nil {
		span.RecordError(err)
		return nil, err
	}

	eval := domain.EvaluateDetailed(cfg, req.Cart)
	s.observeEvaluation(string(eval.Outcome), eval.Plan, started)
	return &EvaluationResponse{Outcome: string(eval.Outcome), Plan: eval.Plan}, nil
}

// Redeem 在订单确认后记录一次规则使用。同一订单重复提交不会重复计数。
func (s *PromotionService) Redeem(ctx context.Context, ruleID string, req *RedeemRequest) (*domain.Redemption, error) {
	ctx, span := s.tracer.Start(ctx, "service.Redeem", trace.WithAttributes(
		attribute.String("promotion.rule_id", ruleID),
		attribute.String("customer.id", req.CustomerID),
		attribute.String("order.id", req.OrderID),
	))
	defer span.End()

	rule, err := s.rules.FindByID(ctx, ruleID)
	if err != nil {
		span.RecordError(err)
		return nil, err
	}
	if !rule.IsActive(s.now()) {
		s.observeRedemption("inactive")
		return nil, domain.ErrRuleInactive
	}
	limits := rule.Config.UsageLimits
	if limits.PerCustomer && req.CustomerID == "" {
		return nil, domain.ErrCustomerRequired
	}

	redemption, err := s.ledger.Redeem(ctx, rule.ID, req.CustomerID, req.OrderID, limits)
	switch {
	case errors.Is(err, domain.ErrUsageLimitReached):
		s.observeRedemption("limit_reached")
		return nil, err
	case errors.Is(err, domain.ErrAlreadyRedeemed):
		s.observeRedemption("already_redeemed")
		return nil, err
	case err != nil:
		s.observeRedemption("error")
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}

	if redemption.Duplicate {
		s.observeRedemption("duplicate")
	} else {
		s.observeRedemption("ok")
	}
	span.SetAttributes(attribute.Int("promotion.total_uses", redemption.TotalUses))
	logger.Ctx(ctx).Info().
		Str("rule_id", rule.ID).
		Str("order_id", req.OrderID).
		Int("total_uses", redemption.TotalUses).
		Bool("duplicate", redemption.Duplicate).
		Msg("Promotion redeemed")
	return &redemption, nil
}

// ExpandCollections 把规则中的 collection 引用展开为商品 ID。
// 只有 COLLECTION 类型的集合会访问 resolver。
func ExpandCollections(ctx context.Context, resolver domain.CollectionResolver, cfg domain.RuleConfig) (domain.RuleConfig, error) {
	if !cfg.HasCollections() {
		return cfg, nil
	}
	if resolver == nil {
		return domain.RuleConfig{}, pkgerrors.Wrap(domain.ErrCollectionUnresolved, "no collection resolver configured")
	}

	expand := func(set domain.ItemSet) (domain.ItemSet, error) {
		if set.Kind != domain.ItemSetCollection {
			return set, nil
		}
		members, err := resolver.Members(ctx, set.IDs)
		if err != nil {
			return domain.ItemSet{}, err
		}
		return set.Expanded(members), nil
	}

	trigger, err := expand(cfg.Trigger.Items)
	if err != nil {
		return domain.RuleConfig{}, err
	}
	reward, err := expand(cfg.Reward.Items)
	if err != nil {
		return domain.RuleConfig{}, err
	}
	return cfg.WithItemSets(trigger, reward), nil
}

func (s *PromotionService) observeEvaluation(outcome string, plan domain.DiscountPlan, started time.Time) {
	if s.metrics != nil {
		s.metrics.ObserveEvaluation(outcome, plan.DiscountedUnits(), time.Since(started))
	}
}

func (s *PromotionService) observeRedemption(result string) {
	if s.metrics != nil {
		s.metrics.ObserveRedemption(result)
	}
}

// publish 发布审计事件，失败只记录日志，不影响评估结果
func (s *PromotionService) publish(ctx context.Context, event *domain.PlanEvaluated) {
	if s.publisher == nil {
		return
	}
	if err := s.publisher.PublishPlan(ctx, event); err != nil {
		logger.Ctx(ctx).Error().Err(err).Str("rule_id", event.RuleID).Msg("Failed to publish plan event")
	}
}
