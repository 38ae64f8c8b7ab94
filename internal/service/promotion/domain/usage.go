package domain

import "time"

// Usage 是某条规则当前的使用情况快照。
type Usage struct {
	TotalUses        int
	CustomerRedeemed bool
}

// Allows 判断在当前使用情况下，规则是否还能被（该顾客）使用。
func (u Usage) Allows(limits UsageLimits) error {
	if limits.TotalUses != nil && u.TotalUses >= *limits.TotalUses {
		return ErrUsageLimitReached
	}
	if limits.PerCustomer && u.CustomerRedeemed {
		return ErrAlreadyRedeemed
	}
	return nil
}

// Redemption 记录一次规则核销（订单实际使用了折扣）。
type Redemption struct {
	RuleID     string
	CustomerID string
	OrderID    string
	TotalUses  int  // 核销之后的累计次数
	Duplicate  bool // 同一订单重复提交，未重复计数
	RedeemedAt time.Time
}
