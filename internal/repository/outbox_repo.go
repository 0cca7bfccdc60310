package repository

import (
	"context"

	"ledger/internal/model"

	"gorm.io/gorm"
)

type OutboxRepository struct {
	db *gorm.DB
}

func NewOutboxRepository(db *gorm.DB) *OutboxRepository {
	return &OutboxRepository{db: db}
}

func (r *OutboxRepository) Create(ctx context.Context, msg *model.OutboxMessage) error {
	return r.db.WithContext(ctx).Create(msg).Error
}

func (r *OutboxRepository) GetPending(ctx context.Context, limit int) ([]*model.OutboxMessage, error) {
	var messages []*model.OutboxMessage
	query := r.db.WithContext(ctx).
		Where("status = ?", model.OutboxStatusPending).
		Order("id ASC")
	if limit > 0 {
		query = query.Limit(limit)
	}
	err := query.Find(&messages).Error
	return messages, err
}

func (r *OutboxRepository) MarkSent(ctx context.Context, id int64) error {
	return r.update(ctx, id, map[string]interface{}{"status": model.OutboxStatusSent})
}

func (r *OutboxRepository) IncrementRetryCount(ctx context.Context, id int64) error {
	return r.update(ctx, id, map[string]interface{}{"retry_count": gorm.Expr("retry_count + 1")})
}

func (r *OutboxRepository) MarkAsFailed(ctx context.Context, id int64) error {
	return r.update(ctx, id, map[string]interface{}{"status": model.OutboxStatusFailed})
}

// update 按 ID 更新，消息不存在返回 ErrMessageNotFound
func (r *OutboxRepository) update(ctx context.Context, id int64, columns map[string]interface{}) error {
	result := r.db.WithContext(ctx).
		Model(&model.OutboxMessage{}).
		Where("id = ?", id).
		Updates(columns)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected > 0 {
		return nil
	}

	// MySQL 值未变化时 RowsAffected 也是 0，需再确认行是否存在
	var count int64
	if err := r.db.WithContext(ctx).Model(&model.OutboxMessage{}).Where("id = ?", id).Count(&count).Error; err != nil {
		return err
	}
	if count == 0 {
		return ErrMessageNotFound
	}
	return nil
}
