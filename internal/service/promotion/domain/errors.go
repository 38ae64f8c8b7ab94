package domain

import (
	"errors"
	"fmt"
)

// 校验类错误的子类型，作为 ValidationError.Kind 使用，调用方通过 errors.Is 判断。
var (
	ErrInvalidTrigger   = errors.New("invalid trigger")
	ErrInvalidReward    = errors.New("invalid reward")
	ErrInvalidLimits    = errors.New("invalid usage limits")
	ErrInvalidStrategy  = errors.New("invalid allocation strategy")
	ErrInvalidSchedule  = errors.New("invalid schedule")
	ErrInvalidCondition = errors.New("invalid condition")
	ErrInvalidRule      = errors.New("invalid rule")
	ErrInvalidCart      = errors.New("invalid cart")
)

// 运行期错误
var (
	ErrRuleNotFound            = errors.New("promotion rule not found")
	ErrInvalidStatusTransition = errors.New("invalid rule status transition")
	ErrUsageLimitReached       = errors.New("promotion usage limit reached")
	ErrAlreadyRedeemed         = errors.New("customer has already redeemed this promotion")
	ErrRuleInactive            = errors.New("promotion rule is not active")
	ErrCustomerRequired        = errors.New("customer id is required for per-customer limited promotions")
	ErrCollectionUnresolved    = errors.New("collection membership could not be resolved")
)

// ValidationError 描述一条规则（或购物车）为什么被拒绝。
// 它只会在校验阶段产生，评估阶段永远不会返回它。
type ValidationError struct {
	Kind   error
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%v: %s %s", e.Kind, e.Field, e.Reason)
}

func (e *ValidationError) Unwrap() error {
	return e.Kind
}

func invalid(kind error, field, reason string) *ValidationError {
	return &ValidationError{Kind: kind, Field: field, Reason: reason}
}

// IsValidationError 判断 err 链上是否存在 ValidationError。
func IsValidationError(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}
