package interfaces

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"bogo/internal/pkg/logger"
	"bogo/internal/pkg/mq"
	"bogo/internal/service/promotion/application"
	"bogo/internal/service/promotion/domain"

	"github.com/pkg/errors"
	"github.com/segmentio/kafka-go"
)

// OrderConfirmed 是订单服务在订单确认后发出的事件，列出了下单时应用过的促销规则。
type OrderConfirmed struct {
	EventID    string   `json:"eventId"`
	OrderID    string   `json:"orderId"`
	CustomerID string   `json:"customerId"`
	RuleIDs    []string `json:"promotionRuleIds"`
}

// Redeemer 是消费者依赖的核销用例
type Redeemer interface {
	Redeem(ctx context.Context, ruleID string, req *application.RedeemRequest) (*domain.Redemption, error)
}

const (
	defaultMaxAttempts = 5
	defaultBackoff     = 200 * time.Millisecond
	maxBackoff         = 30 * time.Second
)

// RedemptionConsumer 监听订单确认事件，对其中每条促销规则执行核销。
// 只有核销成功或被业务规则拒绝后才提交 offset；基础设施错误会按退避重试，
// 配置了死信队列时，重试耗尽后转入死信再提交。
type RedemptionConsumer struct {
	reader      mq.Reader
	redeemer    Redeemer
	deadLetter  mq.Writer
	maxAttempts int
	backoff     time.Duration
	cancel      context.CancelFunc
	wg          sync.WaitGroup
}

type ConsumerOption func(*RedemptionConsumer)

// WithDeadLetter 设置死信队列的生产者，nil 表示不启用死信。
func WithDeadLetter(w mq.Writer) ConsumerOption {
	return func(c *RedemptionConsumer) { c.deadLetter = w }
}

// WithRetry 设置转入死信前的尝试次数和首次退避时长，退避逐次翻倍。
func WithRetry(maxAttempts int, backoff time.Duration) ConsumerOption {
	return func(c *RedemptionConsumer) {
		if maxAttempts > 0 {
			c.maxAttempts = maxAttempts
		}
		if backoff > 0 {
			c.backoff = backoff
		}
	}
}

func NewRedemptionConsumer(reader mq.Reader, redeemer Redeemer, opts ...ConsumerOption) *RedemptionConsumer {
	c := &RedemptionConsumer{
		reader:      reader,
		redeemer:    redeemer,
		maxAttempts: defaultMaxAttempts,
		backoff:     defaultBackoff,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Start 在后台开始消费，直到 ctx 被取消或调用 Stop。
func (c *RedemptionConsumer) Start(ctx context.Context) {
	ctx, c.cancel = context.WithCancel(ctx)
	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		logger.Ctx(ctx).Info().Msg("Redemption consumer started")
		for {
			msg, err := c.reader.FetchMessage(ctx)
			if err != nil {
				if ctx.Err() != nil {
					logger.Ctx(ctx).Info().Msg("Redemption consumer shutting down")
					return
				}
				logger.Ctx(ctx).Error().Err(err).Msg("Could not fetch message, retrying")
				if !sleep(ctx, time.Second) {
					return
				}
				continue
			}

			if !c.process(ctx, msg) {
				logger.Ctx(ctx).Info().Int64("offset", msg.Offset).Msg("Redemption consumer stopped before message was settled")
				return
			}
			if err := c.reader.CommitMessages(ctx, msg); err != nil {
				logger.Ctx(ctx).Error().Err(err).Int64("offset", msg.Offset).Msg("Failed to commit message")
			}
		}
	}()
}

// Stop 停止消费并关闭 reader。
func (c *RedemptionConsumer) Stop() {
	if c.cancel != nil {
		c.cancel()
	}
	c.wg.Wait()
	if err := c.reader.Close(); err != nil {
		logger.Ctx(context.Background()).Error().Err(err).Msg("Error closing order reader")
	}
}

// process 处理一条消息直到可以提交，返回 false 表示 ctx 已结束且消息未处理完。
// 重试会重放整条事件，已核销的规则按订单号幂等返回 ErrAlreadyRedeemed。
func (c *RedemptionConsumer) process(ctx context.Context, msg kafka.Message) bool {
	wait := c.backoff
	for attempt := 1; ; attempt++ {
		err := c.handle(ctx, msg)
		if err == nil {
			return true
		}
		if ctx.Err() != nil {
			return false
		}

		l := logger.Ctx(ctx).With().Int64("offset", msg.Offset).Int("attempt", attempt).Logger()
		if c.deadLetter != nil && attempt >= c.maxAttempts {
			dltErr := mq.DeadLetter(ctx, c.deadLetter, msg, err)
			if dltErr == nil {
				l.Error().Err(err).Msg("Redemption retries exhausted, message sent to dead letter topic")
				return true
			}
			l.Error().Err(dltErr).Msg("Failed to publish to dead letter topic")
		} else {
			l.Warn().Err(err).Dur("backoff", wait).Msg("Redemption failed, will retry")
		}

		if !sleep(ctx, wait) {
			return false
		}
		wait = min(wait*2, maxBackoff)
	}
}

// handle 只在出现基础设施错误时返回 error，业务拒绝和无法解析的消息视为已处理。
func (c *RedemptionConsumer) handle(parent context.Context, msg kafka.Message) error {
	ctx := mq.ExtractTraceContext(parent, msg)

	var event OrderConfirmed
	if err := json.Unmarshal(msg.Value, &event); err != nil {
		logger.Ctx(ctx).Error().Err(err).Int64("offset", msg.Offset).Msg("Failed to unmarshal order event, skipping")
		return nil
	}

	l := logger.Ctx(ctx).With().Str("order_id", event.OrderID).Str("customer_id", event.CustomerID).Logger()
	for _, ruleID := range event.RuleIDs {
		_, err := c.redeemer.Redeem(ctx, ruleID, &application.RedeemRequest{CustomerID: event.CustomerID, OrderID: event.OrderID})
		switch {
		case err == nil:
		case isBusinessRejection(err):
			l.Warn().Err(err).Str("rule_id", ruleID).Msg("Redemption rejected")
		default:
			return errors.Wrapf(err, "redeem rule %s for order %s", ruleID, event.OrderID)
		}
	}
	return nil
}

func isBusinessRejection(err error) bool {
	return errors.Is(err, domain.ErrUsageLimitReached) ||
		errors.Is(err, domain.ErrAlreadyRedeemed) ||
		errors.Is(err, domain.ErrRuleInactive) ||
		errors.Is(err, domain.ErrRuleNotFound) ||
		errors.Is(err, domain.ErrCustomerRequired)
}

func sleep(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}
