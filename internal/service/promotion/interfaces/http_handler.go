package interfaces

import (
	"context"
	"encoding/json"
	"net/http"

	"bogo/internal/pkg/logger"
	"bogo/internal/service/promotion/application"
	"bogo/internal/service/promotion/domain"

	"github.com/pkg/errors"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/propagation"
)

// Service 是 HTTP 层依赖的用例集合，由 application.PromotionService 实现
type Service interface {
	CreateRule(ctx context.Context, req *application.CreateRuleRequest) (*domain.Rule, error)
	GetRule(ctx context.Context, id string) (*domain.Rule, error)
	ListRules(ctx context.Context) ([]*domain.Rule, error)
	DeleteRule(ctx context.Context, id string) error
	UpdateStatus(ctx context.Context, id string, status domain.RuleStatus) (*domain.Rule, error)
	EvaluateCart(ctx context.Context, ruleID string, req *application.EvaluateCartRequest) (*application.EvaluationResponse, error)
	EvaluateConfig(ctx context.Context, req *application.EvaluateConfigRequest) (*application.EvaluationResponse, error)
	Redeem(ctx context.Context, ruleID string, req *application.RedeemRequest) (*domain.Redemption, error)
}

// PromotionHandler 封装了 promotion 服务的 HTTP 处理器
type PromotionHandler struct {
	service Service
}

// NewPromotionHandler 创建一个新的 HTTP 处理器实例
func NewPromotionHandler(service Service) *PromotionHandler {
	return &PromotionHandler{service: service}
}

// RegisterRoutes 在 ServeMux 上注册所有路由
func (h *PromotionHandler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("POST /rules", h.handleCreateRule)
	mux.HandleFunc("GET /rules", h.handleListRules)
	mux.HandleFunc("GET /rules/{id}", h.handleGetRule)
	mux.HandleFunc("DELETE /rules/{id}", h.handleDeleteRule)
	mux.HandleFunc("PUT /rules/{id}/status", h.handleUpdateStatus)
	mux.HandleFunc("POST /rules/{id}/evaluate", h.handleEvaluateCart)
	mux.HandleFunc("POST /rules/{id}/redemptions", h.handleRedeem)
	mux.HandleFunc("POST /evaluate", h.handleEvaluateConfig)
}

func (h *PromotionHandler) handleCreateRule(w http.ResponseWriter, r *http.Request) {
	ctx := extract(r)

	var req application.CreateRuleRequest
	if !decode(w, r, &req) {
		return
	}
	rule, err := h.service.CreateRule(ctx, &req)
	if err != nil {
		writeError(ctx, w, err)
		return
	}
	writeJSON(w, http.StatusCreated, application.NewRuleResponse(rule))
}

func (h *PromotionHandler) handleListRules(w http.ResponseWriter, r *http.Request) {
	ctx := extract(r)

	rules, err := h.service.ListRules(ctx)
	if err != nil {
		writeError(ctx, w, err)
		return
	}
	resp := make([]*application.RuleResponse, len(rules))
	for i, rule := range rules {
		resp[i] = application.NewRuleResponse(rule)
	}
	writeJSON(w, http.StatusOK, resp)
}

func (h *PromotionHandler) handleGetRule(w http.ResponseWriter, r *http.Request) {
	ctx := extract(r)

	rule, err := h.service.GetRule(ctx, r.PathValue("id"))
	if err != nil {
		writeError(ctx, w, err)
		return
	}
	writeJSON(w, http.StatusOK, application.NewRuleResponse(rule))
}

func (h *PromotionHandler) handleDeleteRule(w http.ResponseWriter, r *http.Request) {
	ctx := extract(r)

	if err := h.service.DeleteRule(ctx, r.PathValue("id")); err != nil {
		writeError(ctx, w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *PromotionHandler) handleUpdateStatus(w http.ResponseWriter, r *http.Request) {
	ctx := extract(r)

	var req application.UpdateStatusRequest
	if !decode(w, r, &req) {
		return
	}
	rule, err := h.service.UpdateStatus(ctx, r.PathValue("id"), req.Status)
	if err != nil {
		writeError(ctx, w, err)
		return
	}
	writeJSON(w, http.StatusOK, application.NewRuleResponse(rule))
}

func (h *PromotionHandler) handleEvaluateCart(w http.ResponseWriter, r *http.Request) {
	ctx := extract(r)

	var req application.EvaluateCartRequest
	if !decode(w, r, &req) {
		return
	}
	resp, err := h.service.EvaluateCart(ctx, r.PathValue("id"), &req)
	if err != nil {
		writeError(ctx, w, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (h *PromotionHandler) handleEvaluateConfig(w http.ResponseWriter, r *http.Request) {
	ctx := extract(r)

	var req application.EvaluateConfigRequest
	if !decode(w, r, &req) {
		return
	}
	resp, err := h.service.EvaluateConfig(ctx, &req)
	if err != nil {
		writeError(ctx, w, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (h *PromotionHandler) handleRedeem(w http.ResponseWriter, r *http.Request) {
	ctx := extract(r)

	var req application.RedeemRequest
	if !decode(w, r, &req) {
		return
	}
	redemption, err := h.service.Redeem(ctx, r.PathValue("id"), &req)
	if err != nil {
		writeError(ctx, w, err)
		return
	}
	status := http.StatusCreated
	if redemption.Duplicate {
		status = http.StatusOK
	}
	writeJSON(w, status, application.NewRedemptionResponse(*redemption))
}

func extract(r *http.Request) context.Context {
	return otel.GetTextMapPropagator().Extract(r.Context(), propagation.HeaderCarrier(r.Header))
}

func decode(w http.ResponseWriter, r *http.Request, v interface{}) bool {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "Invalid request body"})
		return false
	}
	return true
}

// statusFor 根据错误类型返回不同的 HTTP 状态码
func statusFor(err error) int {
	switch {
	case domain.IsValidationError(err), errors.Is(err, domain.ErrCustomerRequired):
		return http.StatusUnprocessableEntity
	case errors.Is(err, domain.ErrRuleNotFound):
		return http.StatusNotFound
	case errors.Is(err, domain.ErrUsageLimitReached),
		errors.Is(err, domain.ErrAlreadyRedeemed),
		errors.Is(err, domain.ErrInvalidStatusTransition),
		errors.Is(err, domain.ErrRuleInactive):
		return http.StatusConflict
	case errors.Is(err, domain.ErrCollectionUnresolved):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

func writeError(ctx context.Context, w http.ResponseWriter, err error) {
	status := statusFor(err)
	if status >= http.StatusInternalServerError {
		logger.Ctx(ctx).Error().Err(err).Int("status", status).Msg("Request failed")
	}
	writeJSON(w, status, map[string]string{"error": err.Error()})
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
