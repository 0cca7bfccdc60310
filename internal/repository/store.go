package repository

import (
	"context"

	"ledger/internal/model"

	"github.com/shopspring/decimal"
)

// AccountStore 账户存储
type AccountStore interface {
	Get(ctx context.Context, id string) (*model.Account, error)
	GetByOwnerAndCategory(ctx context.Context, userID string, category model.AccountCategory) (*model.Account, error)
	GetByAccountNumber(ctx context.Context, number string) (*model.Account, error)
	// Create 同一 (user, category) 已存在时返回 model.ErrDuplicateAccount，
	// 账户号冲突时返回 ErrAccountNumberTaken
	Create(ctx context.Context, account *model.Account) error
	// CompareAndSetBalance 仅当账户仍处于调用方读到的 (balance, version) 时写入新余额，
	// 否则返回 model.ErrConflict
	CompareAndSetBalance(ctx context.Context, id string, expected decimal.Decimal, version int64, next decimal.Decimal) error
	SetActive(ctx context.Context, id string, active bool) error
	// List 按 ID 升序返回 afterID 之后的账户，用于对账扫描
	List(ctx context.Context, afterID string, limit int) ([]*model.Account, error)
}

// ListFilter 流水查询条件，零值表示不过滤
type ListFilter struct {
	Kind     model.TransactionKind
	Statuses []model.TransactionStatus
}

// Page offset/limit 分页
type Page struct {
	Offset int
	Limit  int
}

// LedgerStore 流水存储，只追加
type LedgerStore interface {
	// Append 写入流水并回填自增 ID
	Append(ctx context.Context, record *model.Transaction) (int64, error)
	// MarkCompleted / MarkFailed 只允许从 pending 迁移，否则返回 ErrInvalidTransition
	MarkCompleted(ctx context.Context, id int64) error
	MarkFailed(ctx context.Context, id int64) error
	// ListByAccount 按创建时间倒序，时间相同按 ID 倒序
	ListByAccount(ctx context.Context, accountID string, filter ListFilter, page Page) ([]*model.Transaction, error)
	// LastCompleted 账户最新一条已完成流水，没有则返回 nil, nil
	LastCompleted(ctx context.Context, accountID string) (*model.Transaction, error)
}

// OutboxStore 本地消息表
type OutboxStore interface {
	Create(ctx context.Context, msg *model.OutboxMessage) error
	GetPending(ctx context.Context, limit int) ([]*model.OutboxMessage, error)
	MarkSent(ctx context.Context, id int64) error
	IncrementRetryCount(ctx context.Context, id int64) error
	MarkAsFailed(ctx context.Context, id int64) error
}

// Store 聚合三个存储，并提供多文档事务作用域
//
// Transaction 中 fn 返回错误时，通过 tx 做的所有写入整体回滚。
type Store interface {
	Accounts() AccountStore
	Ledger() LedgerStore
	Outbox() OutboxStore
	Transaction(ctx context.Context, fn func(tx Store) error) error
}
