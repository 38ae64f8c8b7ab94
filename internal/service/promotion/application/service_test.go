package application

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"bogo/internal/service/promotion/domain"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/trace/noop"
)

type memoryRuleRepo struct {
	mu    sync.Mutex
	rules map[string]*domain.Rule
}

func newMemoryRuleRepo() *memoryRuleRepo {
	return &memoryRuleRepo{rules: make(map[string]*domain.Rule)}
}

func (m *memoryRuleRepo) Save(_ context.Context, r *domain.Rule) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *r
	m.rules[r.ID] = &cp
	return nil
}

func (m *memoryRuleRepo) FindByID(_ context.Context, id string) (*domain.Rule, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.rules[id]
	if !ok {
		return nil, domain.ErrRuleNotFound
	}
	cp := *r
	return &cp, nil
}

func (m *memoryRuleRepo) List(_ context.Context) ([]*domain.Rule, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]*domain.Rule, 0, len(m.rules))
	for _, r := range m.rules {
		out = append(out, r)
	}
	return out, nil
}

func (m *memoryRuleRepo) Delete(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.rules[id]; !ok {
		return domain.ErrRuleNotFound
	}
	delete(m.rules, id)
	return nil
}

func (m *memoryRuleRepo) UpdateStatus(_ context.Context, id string, status domain.RuleStatus) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.rules[id]
	if !ok {
		return domain.ErrRuleNotFound
	}
	r.Status = status
	return nil
}

type mapResolver map[string][]string

func (m mapResolver) Members(_ context.Context, ids []string) ([]string, error) {
	var out []string
	for _, id := range ids {
		members, ok := m[id]
		if !ok {
			return nil, domain.ErrCollectionUnresolved
		}
		out = append(out, members...)
	}
	return out, nil
}

type fakeLedger struct {
	usage    domain.Usage
	err      error
	redeemed []string
}

func (f *fakeLedger) Usage(context.Context, string, string) (domain.Usage, error) {
	return f.usage, f.err
}

func (f *fakeLedger) Redeem(_ context.Context, ruleID, customerID, orderID string, limits domain.UsageLimits) (domain.Redemption, error) {
	if err := f.usage.Allows(limits); err != nil {
		return domain.Redemption{}, err
	}
	f.redeemed = append(f.redeemed, orderID)
	f.usage.TotalUses++
	return domain.Redemption{RuleID: ruleID, CustomerID: customerID, OrderID: orderID, TotalUses: f.usage.TotalUses}, nil
}

type fakeConditions struct {
	result bool
	err    error
}

func (f *fakeConditions) Compile(expr string) error {
	if expr == "bad" {
		return &domain.ValidationError{Kind: domain.ErrInvalidCondition, Field: "condition", Reason: "syntax"}
	}
	return nil
}

func (f *fakeConditions) Evaluate(string, domain.Fact) (bool, error) {
	return f.result, f.err
}

type fakePublisher struct {
	events []*domain.PlanEvaluated
	err    error
}

func (f *fakePublisher) PublishPlan(_ context.Context, e *domain.PlanEvaluated) error {
	f.events = append(f.events, e)
	return f.err
}

type fakeMetrics struct {
	outcomes    []string
	redemptions []string
}

func (f *fakeMetrics) ObserveEvaluation(outcome string, _ int, _ time.Duration) {
	f.outcomes = append(f.outcomes, outcome)
}

func (f *fakeMetrics) ObserveRedemption(result string) {
	f.redemptions = append(f.redemptions, result)
}

type fixture struct {
	svc        *PromotionService
	repo       *memoryRuleRepo
	ledger     *fakeLedger
	conditions *fakeConditions
	publisher  *fakePublisher
	metrics    *fakeMetrics
	now        time.Time
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{
		repo:       newMemoryRuleRepo(),
		ledger:     &fakeLedger{},
		conditions: &fakeConditions{result: true},
		publisher:  &fakePublisher{},
		metrics:    &fakeMetrics{},
		now:        time.Date(2026, 6, 1, 10, 0, 0, 0, time.UTC),
	}
	f.svc = NewPromotionService(Dependencies{
		Rules:      f.repo,
		Resolver:   mapResolver{"summer": {"pA", "pD"}},
		Ledger:     f.ledger,
		Conditions: f.conditions,
		Publisher:  f.publisher,
		Metrics:    f.metrics,
		Tracer:     noop.NewTracerProvider().Tracer("test"),
	})
	f.svc.now = func() time.Time { return f.now }
	ids := 0
	f.svc.newID = func() string {
		ids++
		return fmt.Sprintf("id-%d", ids)
	}
	return f
}

func bogoConfig() domain.RuleConfig {
	return domain.RuleConfig{
		Trigger: domain.Trigger{Items: domain.ItemSet{IDs: []string{"pA"}}, MinQuantity: 2},
		Reward:  domain.Reward{Items: domain.ItemSet{IDs: []string{"pA"}}, Quantity: 1, Kind: domain.RewardFree},
	}
}

func cartOf(lines ...domain.CartLine) domain.CartSnapshot {
	return domain.CartSnapshot{Lines: lines}
}

func cartLine(id, merch string, qty int, price string) domain.CartLine {
	return domain.CartLine{LineID: id, MerchandiseID: merch, Quantity: qty, UnitPrice: decimal.RequireFromString(price)}
}

func (f *fixture) activeRule(t *testing.T, mutate func(*CreateRuleRequest)) *domain.Rule {
	t.Helper()
	req := &CreateRuleRequest{Title: "BOGO", Status: domain.RuleStatusActive, Config: bogoConfig()}
	if mutate != nil {
		mutate(req)
	}
	rule, err := f.svc.CreateRule(context.Background(), req)
	require.NoError(t, err)
	return rule
}

func TestCreateRule(t *testing.T) {
	f := newFixture(t)

	rule := f.activeRule(t, nil)
	assert.Equal(t, "id-1", rule.ID)
	assert.Equal(t, f.now, rule.StartsAt)

	stored, err := f.svc.GetRule(context.Background(), rule.ID)
	require.NoError(t, err)
	assert.Equal(t, "BOGO", stored.Title)

	_, err = f.svc.CreateRule(context.Background(), &CreateRuleRequest{Title: "x", Config: domain.RuleConfig{}})
	assert.ErrorIs(t, err, domain.ErrInvalidTrigger)

	_, err = f.svc.CreateRule(context.Background(), &CreateRuleRequest{Title: "x", Condition: "bad", Config: bogoConfig()})
	assert.ErrorIs(t, err, domain.ErrInvalidCondition)

	rules, err := f.svc.ListRules(context.Background())
	require.NoError(t, err)
	assert.Len(t, rules, 1)
}

func TestUpdateStatusAndDelete(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	rule := f.activeRule(t, nil)

	updated, err := f.svc.UpdateStatus(ctx, rule.ID, domain.RuleStatusArchived)
	require.NoError(t, err)
	assert.Equal(t, domain.RuleStatusArchived, updated.Status)

	_, err = f.svc.UpdateStatus(ctx, rule.ID, domain.RuleStatusActive)
	assert.ErrorIs(t, err, domain.ErrInvalidStatusTransition)

	_, err = f.svc.UpdateStatus(ctx, "missing", domain.RuleStatusActive)
	assert.ErrorIs(t, err, domain.ErrRuleNotFound)

	require.NoError(t, f.svc.DeleteRule(ctx, rule.ID))
	assert.ErrorIs(t, f.svc.DeleteRule(ctx, rule.ID), domain.ErrRuleNotFound)
}

func TestEvaluateCart_Applied(t *testing.T) {
	f := newFixture(t)
	rule := f.activeRule(t, nil)

	resp, err := f.svc.EvaluateCart(context.Background(), rule.ID, &EvaluateCartRequest{
		CustomerID: "c1",
		Cart:       cartOf(cartLine("l1", "pA", 5, "10")),
	})
	require.NoError(t, err)

	assert.Equal(t, string(domain.OutcomeApplied), resp.Outcome)
	assert.Equal(t, 2, resp.Plan.DiscountedUnits())
	require.Len(t, f.publisher.events, 1)
	assert.Equal(t, rule.ID, f.publisher.events[0].RuleID)
	assert.Equal(t, "c1", f.publisher.events[0].CustomerID)
	assert.Equal(t, []string{"applied"}, f.metrics.outcomes)
}

func TestEvaluateCart_EmptyPlanReasons(t *testing.T) {
	cart := cartOf(cartLine("l1", "pA", 5, "10"))

	t.Run("draft rule", func(t *testing.T) {
		f := newFixture(t)
		rule := f.activeRule(t, func(r *CreateRuleRequest) { r.Status = domain.RuleStatusDraft })
		resp, err := f.svc.EvaluateCart(context.Background(), rule.ID, &EvaluateCartRequest{Cart: cart})
		require.NoError(t, err)
		assert.Equal(t, OutcomeInactive, resp.Outcome)
		assert.True(t, resp.Plan.IsEmpty())
	})

	t.Run("expired rule", func(t *testing.T) {
		f := newFixture(t)
		rule := f.activeRule(t, func(r *CreateRuleRequest) {
			end := f.now.Add(time.Hour)
			r.EndsAt = &end
		})
		f.now = f.now.Add(2 * time.Hour)
		resp, err := f.svc.EvaluateCart(context.Background(), rule.ID, &EvaluateCartRequest{Cart: cart})
		require.NoError(t, err)
		assert.Equal(t, OutcomeInactive, resp.Outcome)
	})

	t.Run("total uses exhausted", func(t *testing.T) {
		f := newFixture(t)
		one := 1
		rule := f.activeRule(t, func(r *CreateRuleRequest) { r.Config.UsageLimits.TotalUses = &one })
		f.ledger.usage = domain.Usage{TotalUses: 1}
		resp, err := f.svc.EvaluateCart(context.Background(), rule.ID, &EvaluateCartRequest{Cart: cart})
		require.NoError(t, err)
		assert.Equal(t, OutcomeUsageLimit, resp.Outcome)
	})

	t.Run("customer already redeemed", func(t *testing.T) {
		f := newFixture(t)
		rule := f.activeRule(t, func(r *CreateRuleRequest) { r.Config.UsageLimits.PerCustomer = true })
		f.ledger.usage = domain.Usage{CustomerRedeemed: true}
		resp, err := f.svc.EvaluateCart(context.Background(), rule.ID, &EvaluateCartRequest{CustomerID: "c1", Cart: cart})
		require.NoError(t, err)
		assert.Equal(t, OutcomeUsageLimit, resp.Outcome)
	})

	t.Run("condition not met", func(t *testing.T) {
		f := newFixture(t)
		rule := f.activeRule(t, func(r *CreateRuleRequest) { r.Condition = "cart.subtotal > 100.0" })
		f.conditions.result = false
		resp, err := f.svc.EvaluateCart(context.Background(), rule.ID, &EvaluateCartRequest{Cart: cart})
		require.NoError(t, err)
		assert.Equal(t, OutcomeCondition, resp.Outcome)
	})

	t.Run("condition error counts as not met", func(t *testing.T) {
		f := newFixture(t)
		rule := f.activeRule(t, func(r *CreateRuleRequest) { r.Condition = "cart.missing == 1" })
		f.conditions.err = errors.New("no such key")
		resp, err := f.svc.EvaluateCart(context.Background(), rule.ID, &EvaluateCartRequest{Cart: cart})
		require.NoError(t, err)
		assert.Equal(t, OutcomeCondition, resp.Outcome)
	})
}

func TestEvaluateCart_Errors(t *testing.T) {
	f := newFixture(t)
	rule := f.activeRule(t, nil)
	ctx := context.Background()

	_, err := f.svc.EvaluateCart(ctx, "missing", &EvaluateCartRequest{})
	assert.ErrorIs(t, err, domain.ErrRuleNotFound)

	_, err = f.svc.EvaluateCart(ctx, rule.ID, &EvaluateCartRequest{Cart: cartOf(cartLine("l1", "pA", 0, "1"))})
	assert.ErrorIs(t, err, domain.ErrInvalidCart)
}

func TestEvaluateCart_PublishFailureDoesNotFail(t *testing.T) {
	f := newFixture(t)
	rule := f.activeRule(t, nil)
	f.publisher.err = errors.New("kafka down")

	resp, err := f.svc.EvaluateCart(context.Background(), rule.ID, &EvaluateCartRequest{Cart: cartOf(cartLine("l1", "pA", 2, "3"))})
	require.NoError(t, err)
	assert.Equal(t, 1, resp.Plan.DiscountedUnits())
}

func TestEvaluateCart_ExpandsCollections(t *testing.T) {
	f := newFixture(t)
	rule := f.activeRule(t, func(r *CreateRuleRequest) {
		r.Config.Trigger = domain.Trigger{Items: domain.ItemSet{Kind: domain.ItemSetCollection, IDs: []string{"summer"}}, MinQuantity: 4}
		r.Config.Reward.Quantity = 2
	})

	resp, err := f.svc.EvaluateCart(context.Background(), rule.ID, &EvaluateCartRequest{
		Cart: cartOf(cartLine("l1", "pA", 3, "10"), cartLine("l2", "pD", 2, "12")),
	})
	require.NoError(t, err)
	require.Len(t, resp.Plan.Instructions, 1)
	assert.Equal(t, "l1", resp.Plan.Instructions[0].TargetLineID)
	assert.Equal(t, 2, resp.Plan.Instructions[0].DiscountedQuantity)
}

func TestEvaluateConfig(t *testing.T) {
	f := newFixture(t)
	cfg := bogoConfig()
	cfg.Reward.Items = domain.ItemSet{Kind: domain.ItemSetCollection, IDs: []string{"summer"}}

	resp, err := f.svc.EvaluateConfig(context.Background(), &EvaluateConfigRequest{
		Config: cfg,
		Cart:   cartOf(cartLine("l1", "pA", 2, "10"), cartLine("l2", "pD", 1, "4")),
	})
	require.NoError(t, err)
	require.Len(t, resp.Plan.Instructions, 1)
	assert.Equal(t, "l2", resp.Plan.Instructions[0].TargetLineID)
	assert.Empty(t, f.publisher.events)

	cfg.Reward.Items.IDs = []string{"unknown"}
	_, err = f.svc.EvaluateConfig(context.Background(), &EvaluateConfigRequest{Config: cfg, Cart: cartOf(cartLine("l1", "pA", 2, "10"))})
	assert.ErrorIs(t, err, domain.ErrCollectionUnresolved)

	_, err = f.svc.EvaluateConfig(context.Background(), &EvaluateConfigRequest{Config: domain.RuleConfig{}})
	assert.True(t, domain.IsValidationError(err))
}

func TestRedeem(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	one := 1
	rule := f.activeRule(t, func(r *CreateRuleRequest) {
		r.Config.UsageLimits = domain.UsageLimits{TotalUses: &one, PerCustomer: true}
	})

	_, err := f.svc.Redeem(ctx, rule.ID, &RedeemRequest{OrderID: "o1"})
	assert.ErrorIs(t, err, domain.ErrCustomerRequired)

	redemption, err := f.svc.Redeem(ctx, rule.ID, &RedeemRequest{CustomerID: "c1", OrderID: "o1"})
	require.NoError(t, err)
	assert.Equal(t, 1, redemption.TotalUses)

	_, err = f.svc.Redeem(ctx, rule.ID, &RedeemRequest{CustomerID: "c2", OrderID: "o2"})
	assert.ErrorIs(t, err, domain.ErrUsageLimitReached)
	assert.Equal(t, []string{"ok", "limit_reached"}, f.metrics.redemptions)

	_, err = f.svc.UpdateStatus(ctx, rule.ID, domain.RuleStatusDraft)
	require.NoError(t, err)
	_, err = f.svc.Redeem(ctx, rule.ID, &RedeemRequest{CustomerID: "c3", OrderID: "o3"})
	assert.ErrorIs(t, err, domain.ErrRuleInactive)
}

func TestExpandCollections_LeavesProductsAlone(t *testing.T) {
	cfg, err := domain.Validate(bogoConfig())
	require.NoError(t, err)

	out, err := ExpandCollections(context.Background(), nil, cfg)
	require.NoError(t, err)
	assert.Equal(t, cfg, out)

	cfg.Trigger.Items.Kind = domain.ItemSetCollection
	_, err = ExpandCollections(context.Background(), nil, cfg)
	assert.ErrorIs(t, err, domain.ErrCollectionUnresolved)
}
