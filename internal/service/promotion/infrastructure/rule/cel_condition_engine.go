package rule

import (
	"sync"

	"bogo/internal/service/promotion/domain"

	"github.com/google/cel-go/cel"
	"github.com/pkg/errors"
)

// CELConditionEngine 是 domain.ConditionEngine 的 CEL 实现。
// 表达式中可见两个变量：
//
//	cart:     subtotal, quantity, line_count, merchandise_ids, lines
//	customer: id
//
// 例如 `cart.subtotal >= 50.0 && customer.id != ""`。
type CELConditionEngine struct {
	env *cel.Env

	mu       sync.RWMutex
	programs map[string]cel.Program
}

func NewCELConditionEngine() (*CELConditionEngine, error) {
	env, err := cel.NewEnv(
		cel.Variable("cart", cel.MapType(cel.StringType, cel.DynType)),
		cel.Variable("customer", cel.MapType(cel.StringType, cel.DynType)),
	)
	if err != nil {
		return nil, errors.Wrap(err, "failed to create cel env")
	}
	return &CELConditionEngine{env: env, programs: make(map[string]cel.Program)}, nil
}

// Compile 只做语法和类型检查，编译结果会被缓存。
func (e *CELConditionEngine) Compile(expr string) error {
	if _, err := e.program(expr); err != nil {
		return &domain.ValidationError{Kind: domain.ErrInvalidCondition, Field: "condition", Reason: err.Error()}
	}
	return nil
}

// Evaluate 对事实求值。表达式结果必须是 bool。
func (e *CELConditionEngine) Evaluate(expr string, fact domain.Fact) (bool, error) {
	prg, err := e.program(expr)
	if err != nil {
		return false, err
	}
	out, _, err := prg.Eval(map[string]interface{}{
		"cart":     cartVars(fact.Cart),
		"customer": map[string]interface{}{"id": fact.CustomerID},
	})
	if err != nil {
		return false, errors.Wrap(err, "failed to evaluate condition")
	}
	matched, ok := out.Value().(bool)
	if !ok {
		return false, errors.Errorf("condition evaluated to %T, want bool", out.Value())
	}
	return matched, nil
}

func (e *CELConditionEngine) program(expr string) (cel.Program, error) {
	e.mu.RLock()
	prg, ok := e.programs[expr]
	e.mu.RUnlock()
	if ok {
		return prg, nil
	}

	ast, iss := e.env.Compile(expr)
	if iss != nil && iss.Err() != nil {
		return nil, iss.Err()
	}
	out := ast.OutputType()
	if !out.IsExactType(cel.BoolType) && !out.IsExactType(cel.DynType) {
		return nil, errors.Errorf("condition must evaluate to bool, got %s", out)
	}
	prg, err := e.env.Program(ast)
	if err != nil {
		return nil, err
	}

	e.mu.Lock()
	e.programs[expr] = prg
	e.mu.Unlock()
	return prg, nil
}

func cartVars(cart domain.CartSnapshot) map[string]interface{} {
	ids := make([]string, 0, len(cart.Lines))
	lines := make([]interface{}, 0, len(cart.Lines))
	for _, l := range cart.Lines {
		ids = append(ids, l.MerchandiseID)
		lines = append(lines, map[string]interface{}{
			"line_id":        l.LineID,
			"merchandise_id": l.MerchandiseID,
			"quantity":       int64(l.Quantity),
			"unit_price":     l.UnitPrice.InexactFloat64(),
		})
	}
	return map[string]interface{}{
		"subtotal":        cart.Subtotal().InexactFloat64(),
		"quantity":        int64(cart.TotalQuantity()),
		"line_count":      int64(len(cart.Lines)),
		"merchandise_ids": ids,
		"lines":           lines,
	}
}
