package interfaces

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"bogo/internal/service/promotion/application"
	"bogo/internal/service/promotion/domain"

	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubService struct {
	rule       *domain.Rule
	err        error
	evaluation *application.EvaluationResponse
	redemption *domain.Redemption

	gotRuleID string
	gotStatus domain.RuleStatus
	gotCreate *application.CreateRuleRequest
}

func (s *stubService) CreateRule(_ context.Context, req *application.CreateRuleRequest) (*domain.Rule, error) {
	s.gotCreate = req
	return s.rule, s.err
}

func (s *stubService) GetRule(_ context.Context, id string) (*domain.Rule, error) {
	s.gotRuleID = id
	return s.rule, s.err
}

func (s *stubService) ListRules(context.Context) ([]*domain.Rule, error) {
	if s.err != nil {
		return nil, s.err
	}
	return []*domain.Rule{s.rule}, nil
}

func (s *stubService) DeleteRule(_ context.Context, id string) error {
	s.gotRuleID = id
	return s.err
}

func (s *stubService) UpdateStatus(_ context.Context, id string, status domain.RuleStatus) (*domain.Rule, error) {
	s.gotRuleID, s.gotStatus = id, status
	return s.rule, s.err
}

func (s *stubService) EvaluateCart(_ context.Context, ruleID string, _ *application.EvaluateCartRequest) (*application.EvaluationResponse, error) {
	s.gotRuleID = ruleID
	return s.evaluation, s.err
}

func (s *stubService) EvaluateConfig(context.Context, *application.EvaluateConfigRequest) (*application.EvaluationResponse, error) {
	return s.evaluation, s.err
}

func (s *stubService) Redeem(_ context.Context, ruleID string, _ *application.RedeemRequest) (*domain.Redemption, error) {
	s.gotRuleID = ruleID
	return s.redemption, s.err
}

func newServer(svc Service) *http.ServeMux {
	mux := http.NewServeMux()
	NewPromotionHandler(svc).RegisterRoutes(mux)
	return mux
}

func do(mux *http.ServeMux, method, path, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)
	return rec
}

func sampleRule() *domain.Rule {
	return &domain.Rule{
		ID:       "r1",
		Title:    "BOGO",
		Status:   domain.RuleStatusActive,
		StartsAt: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC),
		Config: domain.RuleConfig{
			Trigger: domain.Trigger{Items: domain.ItemSet{Kind: domain.ItemSetProduct, IDs: []string{"p"}}, MinQuantity: 2},
			Reward:  domain.Reward{Items: domain.ItemSet{Kind: domain.ItemSetProduct, IDs: []string{"p"}}, Quantity: 1, Kind: domain.RewardFree},
		},
	}
}

func TestCreateRule(t *testing.T) {
	svc := &stubService{rule: sampleRule()}
	rec := do(newServer(svc), http.MethodPost, "/rules", `{
		"title": "BOGO",
		"status": "ACTIVE",
		"config": {
			"trigger": {"items": {"kind": "PRODUCT", "ids": ["p"]}, "minQuantity": 2},
			"reward": {"items": {"ids": ["p"]}, "quantity": 1, "kind": "PERCENTAGE", "value": "50"}
		}
	}`)

	assert.Equal(t, http.StatusCreated, rec.Code)
	require.NotNil(t, svc.gotCreate)
	assert.Equal(t, 2, svc.gotCreate.Config.Trigger.MinQuantity)
	assert.Equal(t, "50", svc.gotCreate.Config.Reward.Value.String())

	var body map[string]interface{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "r1", body["id"])
	assert.Equal(t, "ACTIVE", body["status"])
}

func TestRoutesPassPathValues(t *testing.T) {
	svc := &stubService{rule: sampleRule()}
	mux := newServer(svc)

	rec := do(mux, http.MethodGet, "/rules/abc", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "abc", svc.gotRuleID)

	rec = do(mux, http.MethodPut, "/rules/xyz/status", `{"status":"ARCHIVED"}`)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "xyz", svc.gotRuleID)
	assert.Equal(t, domain.RuleStatusArchived, svc.gotStatus)

	rec = do(mux, http.MethodDelete, "/rules/del", "")
	assert.Equal(t, http.StatusNoContent, rec.Code)

	rec = do(mux, http.MethodGet, "/rules", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	var list []map[string]interface{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &list))
	assert.Len(t, list, 1)
}

func TestEvaluateCart_ReturnsPlanWireFormat(t *testing.T) {
	svc := &stubService{evaluation: &application.EvaluationResponse{
		RuleID:  "r1",
		Outcome: "applied",
		Plan: domain.DiscountPlan{
			Instructions: []domain.DiscountInstruction{{
				TargetLineID:       "l1",
				DiscountedQuantity: 2,
				Effect:             domain.PercentageEffect(decimal.NewFromInt(100)),
				Message:            "Buy 2 Get 1 Free",
			}},
			Strategy: domain.StrategyMaximum,
		},
	}}
	rec := do(newServer(svc), http.MethodPost, "/rules/r1/evaluate", `{"customerId":"c1","cart":{"lines":[]}}`)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "r1", svc.gotRuleID)
	var body map[string]interface{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "applied", body["outcome"])
	plan := body["plan"].(map[string]interface{})
	assert.Equal(t, "MAXIMUM", plan["discountApplicationStrategy"])
	assert.Len(t, plan["discounts"], 1)
}

func TestRedeemStatusCodes(t *testing.T) {
	svc := &stubService{redemption: &domain.Redemption{RuleID: "r1", OrderID: "o1", TotalUses: 1}}
	mux := newServer(svc)

	rec := do(mux, http.MethodPost, "/rules/r1/redemptions", `{"orderId":"o1"}`)
	assert.Equal(t, http.StatusCreated, rec.Code)

	svc.redemption.Duplicate = true
	rec = do(mux, http.MethodPost, "/rules/r1/redemptions", `{"orderId":"o1"}`)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestErrorMapping(t *testing.T) {
	tests := []struct {
		name string
		err  error
		code int
	}{
		{"validation", &domain.ValidationError{Kind: domain.ErrInvalidReward, Field: "reward.value", Reason: "missing"}, http.StatusUnprocessableEntity},
		{"customer required", domain.ErrCustomerRequired, http.StatusUnprocessableEntity},
		{"not found", domain.ErrRuleNotFound, http.StatusNotFound},
		{"limit", domain.ErrUsageLimitReached, http.StatusConflict},
		{"already redeemed", domain.ErrAlreadyRedeemed, http.StatusConflict},
		{"archived", domain.ErrInvalidStatusTransition, http.StatusConflict},
		{"inactive", domain.ErrRuleInactive, http.StatusConflict},
		{"catalog", errors.Wrap(domain.ErrCollectionUnresolved, "collection c1"), http.StatusBadGateway},
		{"unknown", errors.New("boom"), http.StatusInternalServerError},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := do(newServer(&stubService{err: tt.err}), http.MethodPost, "/evaluate", `{}`)
			assert.Equal(t, tt.code, rec.Code)

			var body map[string]string
			require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
			assert.NotEmpty(t, body["error"])
		})
	}
}

func TestBadRequestBody(t *testing.T) {
	rec := do(newServer(&stubService{}), http.MethodPost, "/evaluate", `{not json`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestMethodNotAllowed(t *testing.T) {
	rec := do(newServer(&stubService{}), http.MethodPatch, "/rules/r1", "")
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}
