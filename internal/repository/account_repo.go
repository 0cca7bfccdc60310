package repository

import (
	"context"
	"errors"

	"ledger/internal/model"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

type AccountRepository struct {
	db *gorm.DB
}

func NewAccountRepository(db *gorm.DB) *AccountRepository {
	return &AccountRepository{db: db}
}

func (r *AccountRepository) Create(ctx context.Context, account *model.Account) error {
	err := r.db.WithContext(ctx).Create(account).Error
	if err == nil {
		return nil
	}
	if !errors.Is(err, gorm.ErrDuplicatedKey) {
		return err
	}

	// 两个唯一索引：(user_id, category) 与 account_number，需要区分
	if _, getErr := r.GetByOwnerAndCategory(ctx, account.UserID, account.Category); getErr == nil {
		return model.ErrDuplicateAccount
	}
	return ErrAccountNumberTaken
}

func (r *AccountRepository) Get(ctx context.Context, id string) (*model.Account, error) {
	return r.first(ctx, "id = ?", id)
}

func (r *AccountRepository) GetByOwnerAndCategory(ctx context.Context, userID string, category model.AccountCategory) (*model.Account, error) {
	return r.first(ctx, "user_id = ? AND category = ?", userID, category)
}

func (r *AccountRepository) GetByAccountNumber(ctx context.Context, number string) (*model.Account, error) {
	return r.first(ctx, "account_number = ?", number)
}

func (r *AccountRepository) first(ctx context.Context, query string, args ...interface{}) (*model.Account, error) {
	var account model.Account
	err := r.db.WithContext(ctx).Where(query, args...).First(&account).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, model.ErrAccountNotFound
		}
		return nil, err
	}
	return &account, nil
}

// CompareAndSetBalance 乐观锁写余额
//
// 以 version 判等：每次余额写入都会 version+1，version 未变即余额未变。
// 整数比较在 SQL 里是精确的，避免 DECIMAL 与参数之间的隐式类型转换。
func (r *AccountRepository) CompareAndSetBalance(ctx context.Context, id string, expected decimal.Decimal, version int64, next decimal.Decimal) error {
	result := r.db.WithContext(ctx).
		Model(&model.Account{}).
		Where("id = ? AND version = ?", id, version).
		Updates(map[string]interface{}{
			"balance": next,
			"version": gorm.Expr("version + 1"),
		})

	if result.Error != nil {
		return result.Error
	}

	if result.RowsAffected == 0 {
		if _, err := r.Get(ctx, id); err != nil {
			return err
		}
		return model.ErrConflict
	}

	return nil
}

func (r *AccountRepository) SetActive(ctx context.Context, id string, active bool) error {
	if _, err := r.Get(ctx, id); err != nil {
		return err
	}
	return r.db.WithContext(ctx).
		Model(&model.Account{}).
		Where("id = ?", id).
		Update("is_active", active).Error
}

func (r *AccountRepository) List(ctx context.Context, afterID string, limit int) ([]*model.Account, error) {
	var accounts []*model.Account
	err := r.db.WithContext(ctx).
		Where("id > ?", afterID).
		Order("id ASC").
		Limit(limit).
		Find(&accounts).Error
	return accounts, err
}
