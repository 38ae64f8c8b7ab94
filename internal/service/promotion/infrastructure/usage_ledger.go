package infrastructure

import (
	"context"
	"errors"
	"fmt"
	"time"

	pkgredis "bogo/internal/pkg/redis"
	"bogo/internal/service/promotion/domain"

	pkgerrors "github.com/pkg/errors"
	"github.com/redis/go-redis/v9"
)

const redeemScriptName = "promotion_redeem"

// redeemScript 原子地完成：订单幂等检查 -> 每人限用检查 -> 总次数检查 -> 计数。
// KEYS: uses, customers, orders
// ARGV: customerID, totalLimit(0 表示不限), perCustomer(1/0), orderID
// 返回 {code, used}: 1 成功, 0 总次数已满, 2 该顾客已用过, 3 订单重复提交
const redeemScript = `
local used = tonumber(redis.call('get', KEYS[1]) or '0')
if ARGV[4] ~= '' and redis.call('sismember', KEYS[3], ARGV[4]) == 1 then
    return {3, used}
end
if ARGV[3] == '1' and ARGV[1] ~= '' and redis.call('sismember', KEYS[2], ARGV[1]) == 1 then
    return {2, used}
end
local limit = tonumber(ARGV[2])
if limit > 0 and used >= limit then
    return {0, used}
end
used = redis.call('incr', KEYS[1])
if ARGV[1] ~= '' then
    redis.call('sadd', KEYS[2], ARGV[1])
end
if ARGV[4] ~= '' then
    redis.call('sadd', KEYS[3], ARGV[4])
end
return {1, used}
`

const (
	redeemCodeLimitReached    = 0
	redeemCodeOK              = 1
	redeemCodeAlreadyRedeemed = 2
	redeemCodeDuplicateOrder  = 3
)

// RedisUsageLedger 在 Redis 中记录规则的使用次数。
type RedisUsageLedger struct {
	redis *pkgredis.Client
	now   func() time.Time
}

func NewRedisUsageLedger(ctx context.Context, client *pkgredis.Client) (*RedisUsageLedger, error) {
	if err := client.LoadScriptFromContent(ctx, redeemScriptName, redeemScript); err != nil {
		return nil, err
	}
	return &RedisUsageLedger{redis: client, now: time.Now}, nil
}

func (l *RedisUsageLedger) Usage(ctx context.Context, ruleID, customerID string) (domain.Usage, error) {
	rdb := l.redis.GetClient()
	pipe := rdb.Pipeline()
	usesCmd := pipe.Get(ctx, usesKey(ruleID))
	var memberCmd *redis.BoolCmd
	if customerID != "" {
		memberCmd = pipe.SIsMember(ctx, customersKey(ruleID), customerID)
	}
	if _, err := pipe.Exec(ctx); err != nil && !errors.Is(err, redis.Nil) {
		return domain.Usage{}, pkgerrors.Wrapf(err, "failed to read usage of rule %s", ruleID)
	}

	var usage domain.Usage
	uses, err := usesCmd.Int()
	if err != nil && !errors.Is(err, redis.Nil) {
		return domain.Usage{}, pkgerrors.Wrapf(err, "invalid usage counter for rule %s", ruleID)
	}
	usage.TotalUses = uses
	if memberCmd != nil {
		usage.CustomerRedeemed = memberCmd.Val()
	}
	return usage, nil
}

func (l *RedisUsageLedger) Redeem(ctx context.Context, ruleID, customerID, orderID string, limits domain.UsageLimits) (domain.Redemption, error) {
	total := 0
	if limits.TotalUses != nil {
		total = *limits.TotalUses
	}
	perCustomer := 0
	if limits.PerCustomer {
		perCustomer = 1
	}

	keys := []string{usesKey(ruleID), customersKey(ruleID), ordersKey(ruleID)}
	res, err := l.redis.RunScript(ctx, redeemScriptName, keys, customerID, total, perCustomer, orderID)
	if err != nil {
		return domain.Redemption{}, pkgerrors.Wrapf(err, "failed to redeem rule %s", ruleID)
	}
	code, used, err := parseRedeemResult(res)
	if err != nil {
		return domain.Redemption{}, err
	}

	redemption := domain.Redemption{
		RuleID:     ruleID,
		CustomerID: customerID,
		OrderID:    orderID,
		TotalUses:  int(used),
		RedeemedAt: l.now().UTC(),
	}
	switch code {
	case redeemCodeOK:
		return redemption, nil
	case redeemCodeDuplicateOrder:
		redemption.Duplicate = true
		return redemption, nil
	case redeemCodeAlreadyRedeemed:
		return domain.Redemption{}, domain.ErrAlreadyRedeemed
	case redeemCodeLimitReached:
		return domain.Redemption{}, domain.ErrUsageLimitReached
	default:
		return domain.Redemption{}, pkgerrors.Errorf("unexpected redeem script code %d", code)
	}
}

func parseRedeemResult(res interface{}) (int64, int64, error) {
	values, ok := res.([]interface{})
	if !ok || len(values) != 2 {
		return 0, 0, pkgerrors.Errorf("unexpected redeem script result %v", res)
	}
	code, ok1 := values[0].(int64)
	used, ok2 := values[1].(int64)
	if !ok1 || !ok2 {
		return 0, 0, pkgerrors.Errorf("unexpected redeem script result %v", res)
	}
	return code, used, nil
}

// key 中使用 hash tag，保证同一规则的 key 落在同一个 slot
func usesKey(ruleID string) string {
	return fmt.Sprintf("promotion:{%s}:uses", ruleID)
}

func customersKey(ruleID string) string {
	return fmt.Sprintf("promotion:{%s}:customers", ruleID)
}

func ordersKey(ruleID string) string {
	return fmt.Sprintf("promotion:{%s}:orders", ruleID)
}
