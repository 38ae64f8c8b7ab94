package infrastructure

import (
	"context"
	"errors"
	"time"

	"bogo/internal/service/promotion/domain"

	pkgerrors "github.com/pkg/errors"
	"gorm.io/driver/mysql"
	"gorm.io/gorm"
)

// GormRuleRepository 是 RuleRepository 的 GORM 实现
type GormRuleRepository struct {
	db *gorm.DB
}

// OpenMySQL 使用 GORM 打开 MySQL 连接。
func OpenMySQL(dsn string) (*gorm.DB, error) {
	db, err := gorm.Open(mysql.Open(dsn), &gorm.Config{})
	if err != nil {
		return nil, pkgerrors.Wrap(err, "failed to connect to mysql")
	}
	return db, nil
}

// NewGormRuleRepository 创建一个新的 GORM 仓储实例
func NewGormRuleRepository(db *gorm.DB) *GormRuleRepository {
	return &GormRuleRepository{db: db}
}

// Migrate 创建或更新 promotion_rules 表结构。
func (r *GormRuleRepository) Migrate(ctx context.Context) error {
	return r.db.WithContext(ctx).AutoMigrate(&PromotionRuleModel{})
}

// Save 按主键插入或整行更新
func (r *GormRuleRepository) Save(ctx context.Context, rule *domain.Rule) error {
	if err := r.db.WithContext(ctx).Save(FromDomainRule(rule)).Error; err != nil {
		return pkgerrors.Wrapf(err, "failed to save rule %s", rule.ID)
	}
	return nil
}

func (r *GormRuleRepository) FindByID(ctx context.Context, id string) (*domain.Rule, error) {
	var model PromotionRuleModel
	err := r.db.WithContext(ctx).Where("id = ?", id).First(&model).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, domain.ErrRuleNotFound
		}
		return nil, pkgerrors.Wrapf(err, "failed to load rule %s", id)
	}
	return ToDomainRule(&model), nil
}

func (r *GormRuleRepository) List(ctx context.Context) ([]*domain.Rule, error) {
	var models []*PromotionRuleModel
	if err := r.db.WithContext(ctx).Order("created_at DESC").Find(&models).Error; err != nil {
		return nil, pkgerrors.Wrap(err, "failed to list rules")
	}
	rules := make([]*domain.Rule, len(models))
	for i, m := range models {
		rules[i] = ToDomainRule(m)
	}
	return rules, nil
}

// Delete 软删除，记录保留用于审计
func (r *GormRuleRepository) Delete(ctx context.Context, id string) error {
	res := r.db.WithContext(ctx).Where("id = ?", id).Delete(&PromotionRuleModel{})
	if res.Error != nil {
		return pkgerrors.Wrapf(res.Error, "failed to delete rule %s", id)
	}
	if res.RowsAffected == 0 {
		return domain.ErrRuleNotFound
	}
	return nil
}

// UpdateStatus 只更新状态字段
func (r *GormRuleRepository) UpdateStatus(ctx context.Context, id string, status domain.RuleStatus) error {
	res := r.db.WithContext(ctx).Model(&PromotionRuleModel{}).Where("id = ?", id).Updates(map[string]interface{}{
		"status":     string(status),
		"updated_at": time.Now().UTC(),
	})
	if res.Error != nil {
		return pkgerrors.Wrapf(res.Error, "failed to update status of rule %s", id)
	}
	if res.RowsAffected == 0 {
		return domain.ErrRuleNotFound
	}
	return nil
}
