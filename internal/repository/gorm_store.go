package repository

import (
	"context"

	"gorm.io/gorm"
)

// GormStore 基于 gorm 的 Store 实现
type GormStore struct {
	db           *gorm.DB
	accounts     *AccountRepository
	transactions *TransactionRepository
	outbox       *OutboxRepository
}

var _ Store = (*GormStore)(nil)

func NewGormStore(db *gorm.DB) *GormStore {
	return &GormStore{
		db:           db,
		accounts:     NewAccountRepository(db),
		transactions: NewTransactionRepository(db),
		outbox:       NewOutboxRepository(db),
	}
}

func (s *GormStore) Accounts() AccountStore { return s.accounts }

func (s *GormStore) Ledger() LedgerStore { return s.transactions }

func (s *GormStore) Outbox() OutboxStore { return s.outbox }

// Transaction 开启数据库事务，fn 内所有仓储共享同一个 tx
// 已在事务中时 gorm 会使用 SAVEPOINT 嵌套
func (s *GormStore) Transaction(ctx context.Context, fn func(tx Store) error) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(NewGormStore(tx))
	})
}
