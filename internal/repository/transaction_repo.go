package repository

import (
	"context"
	"errors"
	"time"

	"ledger/internal/model"

	"gorm.io/gorm"
)

type TransactionRepository struct {
	db *gorm.DB
}

func NewTransactionRepository(db *gorm.DB) *TransactionRepository {
	return &TransactionRepository{db: db}
}

func (r *TransactionRepository) Append(ctx context.Context, record *model.Transaction) (int64, error) {
	if err := r.db.WithContext(ctx).Create(record).Error; err != nil {
		return 0, err
	}
	return record.ID, nil
}

func (r *TransactionRepository) MarkCompleted(ctx context.Context, id int64) error {
	return r.transition(ctx, id, model.TransactionStatusCompleted)
}

func (r *TransactionRepository) MarkFailed(ctx context.Context, id int64) error {
	return r.transition(ctx, id, model.TransactionStatusFailed)
}

// transition 只允许 pending -> 终态，条件更新保证只迁移一次
func (r *TransactionRepository) transition(ctx context.Context, id int64, to model.TransactionStatus) error {
	now := time.Now()
	result := r.db.WithContext(ctx).
		Model(&model.Transaction{}).
		Where("id = ? AND status = ?", id, model.TransactionStatusPending).
		Updates(map[string]interface{}{
			"status":       to,
			"completed_at": &now,
		})

	if result.Error != nil {
		return result.Error
	}

	if result.RowsAffected == 0 {
		var count int64
		if err := r.db.WithContext(ctx).Model(&model.Transaction{}).Where("id = ?", id).Count(&count).Error; err != nil {
			return err
		}
		if count == 0 {
			return ErrRecordNotFound
		}
		return ErrInvalidTransition
	}

	return nil
}

func (r *TransactionRepository) ListByAccount(ctx context.Context, accountID string, filter ListFilter, page Page) ([]*model.Transaction, error) {
	var transactions []*model.Transaction

	query := r.db.WithContext(ctx).Model(&model.Transaction{}).Where("account_id = ?", accountID)
	if filter.Kind != "" {
		query = query.Where("kind = ?", filter.Kind)
	}
	if len(filter.Statuses) > 0 {
		query = query.Where("status IN ?", filter.Statuses)
	}

	query = query.Order("created_at DESC").Order("id DESC")
	if page.Offset > 0 {
		query = query.Offset(page.Offset)
	}
	// Limit(0) 会生成 LIMIT 0，零值表示不分页
	if page.Limit > 0 {
		query = query.Limit(page.Limit)
	}

	err := query.Find(&transactions).Error

	return transactions, err
}

func (r *TransactionRepository) LastCompleted(ctx context.Context, accountID string) (*model.Transaction, error) {
	var trans model.Transaction
	err := r.db.WithContext(ctx).
		Where("account_id = ? AND status = ?", accountID, model.TransactionStatusCompleted).
		Order("id DESC").
		First(&trans).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &trans, nil
}
