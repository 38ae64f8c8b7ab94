package infrastructure

import (
	"context"
	"encoding/json"

	"bogo/internal/pkg/mq"
	"bogo/internal/service/promotion/domain"

	"github.com/pkg/errors"
)

// KafkaPlanPublisher 把评估审计事件写入 Kafka，消息 key 为规则 ID。
type KafkaPlanPublisher struct {
	writer mq.Writer
}

func NewKafkaPlanPublisher(writer mq.Writer) *KafkaPlanPublisher {
	return &KafkaPlanPublisher{writer: writer}
}

func (p *KafkaPlanPublisher) PublishPlan(ctx context.Context, event *domain.PlanEvaluated) error {
	payload, err := json.Marshal(event)
	if err != nil {
		return errors.Wrap(err, "failed to marshal plan event")
	}
	return errors.Wrapf(mq.ProduceMessage(ctx, p.writer, []byte(event.RuleID), payload),
		"failed to publish plan event %s", event.EventID)
}
