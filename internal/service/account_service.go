package service

import (
	"context"
	"errors"
	"fmt"

	"ledger/internal/model"
	"ledger/internal/repository"
	"ledger/pkg/idgen"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// 账户号随机生成，撞号时最多重试的次数
const maxAccountNumberAttempts = 5

type AccountService struct {
	store    repository.Store
	currency string
	logger   *zap.Logger
}

func NewAccountService(store repository.Store, currency string, logger *zap.Logger) *AccountService {
	if currency == "" {
		currency = model.DefaultCurrency
	}
	return &AccountService{
		store:    store,
		currency: currency,
		logger:   logger,
	}
}

// CreateAccount 开户，每个用户每种类型只能有一个账户
func (s *AccountService) CreateAccount(ctx context.Context, userID string, category model.AccountCategory) (*model.Account, error) {
	if userID == "" {
		return nil, model.NewError(model.KindInvalidRequest, "user id is required", nil)
	}
	if category == "" {
		category = model.AccountCategorySavings
	}
	if !category.Valid() {
		return nil, model.NewError(model.KindInvalidRequest, fmt.Sprintf("unknown account type %q", category), nil)
	}

	for i := 0; i < maxAccountNumberAttempts; i++ {
		number, err := idgen.GenerateAccountNumber()
		if err != nil {
			return nil, translate(err)
		}

		account := &model.Account{
			ID:            uuid.NewString(),
			UserID:        userID,
			Category:      category,
			AccountNumber: number,
			Balance:       decimal.Zero,
			Currency:      s.currency,
			IsActive:      true,
		}

		err = s.store.Accounts().Create(ctx, account)
		switch {
		case err == nil:
			s.logger.Info("开户成功",
				zap.String("user_id", userID),
				zap.String("account_id", account.ID),
				zap.String("category", string(category)))
			return account, nil
		case errors.Is(err, repository.ErrAccountNumberTaken):
			s.logger.Debug("账户号冲突，重新生成", zap.String("account_number", number))
			continue
		default:
			return nil, translate(err)
		}
	}

	return nil, model.NewError(model.KindConflict, "could not allocate a unique account number", nil)
}

func (s *AccountService) GetAccount(ctx context.Context, accountID string) (*model.Account, error) {
	account, err := s.store.Accounts().Get(ctx, accountID)
	if err != nil {
		return nil, translate(err)
	}
	return account, nil
}

// GetUserAccount 按 (用户, 账户类型) 查找，类型为空时取储蓄账户
func (s *AccountService) GetUserAccount(ctx context.Context, userID string, category model.AccountCategory) (*model.Account, error) {
	if category == "" {
		category = model.AccountCategorySavings
	}
	if !category.Valid() {
		return nil, model.NewError(model.KindInvalidRequest, fmt.Sprintf("unknown account type %q", category), nil)
	}
	account, err := s.store.Accounts().GetByOwnerAndCategory(ctx, userID, category)
	if err != nil {
		return nil, translate(err)
	}
	return account, nil
}

func (s *AccountService) GetBalance(ctx context.Context, accountID string) (decimal.Decimal, error) {
	account, err := s.GetAccount(ctx, accountID)
	if err != nil {
		return decimal.Zero, err
	}
	return account.Balance, nil
}

// Deactivate 停用账户（软删除），账户和流水都保留
func (s *AccountService) Deactivate(ctx context.Context, accountID string) error {
	return s.setActive(ctx, accountID, false)
}

func (s *AccountService) Activate(ctx context.Context, accountID string) error {
	return s.setActive(ctx, accountID, true)
}

func (s *AccountService) setActive(ctx context.Context, accountID string, active bool) error {
	if err := s.store.Accounts().SetActive(ctx, accountID, active); err != nil {
		return translate(err)
	}
	s.logger.Info("账户状态变更", zap.String("account_id", accountID), zap.Bool("active", active))
	return nil
}
