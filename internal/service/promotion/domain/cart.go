package domain

import (
	"fmt"

	"github.com/shopspring/decimal"
)

// CartLine 是购物车中的一行。MerchandiseID 是商品级别的标识，用于匹配规则中的商品集合。
type CartLine struct {
	LineID        string          `json:"lineId"`
	MerchandiseID string          `json:"merchandiseId"`
	Quantity      int             `json:"quantity"`
	UnitPrice     decimal.Decimal `json:"unitPrice"`
}

// CartSnapshot 是一次评估所用的购物车快照，只读。
type CartSnapshot struct {
	Lines []CartLine `json:"lines"`
}

// Validate 在系统边界上检查快照是否良构。评估器假设输入已经通过了这里。
func (c CartSnapshot) Validate() error {
	seen := make(map[string]struct{}, len(c.Lines))
	for i, line := range c.Lines {
		field := fmt.Sprintf("lines[%d]", i)
		if line.LineID == "" {
			return invalid(ErrInvalidCart, field+".lineId", "is required")
		}
		if _, dup := seen[line.LineID]; dup {
			return invalid(ErrInvalidCart, field+".lineId", "is duplicated")
		}
		seen[line.LineID] = struct{}{}
		if line.MerchandiseID == "" {
			return invalid(ErrInvalidCart, field+".merchandiseId", "is required")
		}
		if line.Quantity < 1 {
			return invalid(ErrInvalidCart, field+".quantity", "must be at least 1")
		}
		if line.UnitPrice.IsNegative() {
			return invalid(ErrInvalidCart, field+".unitPrice", "must not be negative")
		}
	}
	return nil
}

// Subtotal 返回购物车商品总额。
func (c CartSnapshot) Subtotal() decimal.Decimal {
	total := decimal.Zero
	for _, line := range c.Lines {
		total = total.Add(line.UnitPrice.Mul(decimal.NewFromInt(int64(line.Quantity))))
	}
	return total
}

// TotalQuantity 返回购物车商品总件数，超出 int 范围时饱和。
func (c CartSnapshot) TotalQuantity() int {
	n := 0
	for _, line := range c.Lines {
		n = addSaturating(n, line.Quantity)
	}
	return n
}
