package infrastructure

import (
	"database/sql"
	"database/sql/driver"
	"encoding/json"
	"time"

	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// PromotionRuleModel 对应数据库中的 promotion_rules 表。
// RuleConfig 被拍平成列，商品 ID 列表以 JSON 存储。
type PromotionRuleModel struct {
	ID        string `gorm:"primaryKey;size:36"`
	Title     string `gorm:"size:255;not null"`
	Status    string `gorm:"size:16;index"`
	StartsAt  time.Time
	EndsAt    sql.NullTime
	Condition string `gorm:"type:text"`

	TriggerItemKind    string `gorm:"size:16"`
	TriggerIDs         IDList `gorm:"type:json"`
	TriggerMinQuantity int

	RewardItemKind string `gorm:"size:16"`
	RewardIDs      IDList `gorm:"type:json"`
	RewardQuantity int
	RewardType     string              `gorm:"size:16"`
	RewardValue    decimal.NullDecimal `gorm:"type:decimal(19,4)"`

	CombinesOrder    bool
	CombinesProduct  bool
	CombinesShipping bool

	LimitTotalUses   sql.NullInt64
	LimitPerCustomer bool

	AllocationStrategy string `gorm:"size:16"`

	CreatedAt time.Time
	UpdatedAt time.Time
	DeletedAt gorm.DeletedAt `gorm:"index"`
}

// TableName 指定 GORM 应该使用的表名
func (PromotionRuleModel) TableName() string {
	return "promotion_rules"
}

// IDList 以 JSON 数组形式存储在单列中。
type IDList []string

func (l IDList) Value() (driver.Value, error) {
	if l == nil {
		return "[]", nil
	}
	b, err := json.Marshal([]string(l))
	if err != nil {
		return nil, err
	}
	return string(b), nil
}

func (l *IDList) Scan(src interface{}) error {
	var data []byte
	switch v := src.(type) {
	case nil:
		*l = IDList{}
		return nil
	case []byte:
		data = v
	case string:
		data = []byte(v)
	default:
		return errors.Errorf("unsupported type %T for IDList", src)
	}
	var ids []string
	if err := json.Unmarshal(data, &ids); err != nil {
		return err
	}
	*l = ids
	return nil
}
