package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// ============================================================================
// 交易类型 / 方向 / 状态
// ============================================================================

type TransactionKind string

const (
	TransactionKindDeposit    TransactionKind = "deposit"
	TransactionKindWithdrawal TransactionKind = "withdrawal"
	TransactionKindTransfer   TransactionKind = "transfer"
)

// Valid 是否为已知的交易类型
func (k TransactionKind) Valid() bool {
	switch k {
	case TransactionKindDeposit, TransactionKindWithdrawal, TransactionKindTransfer:
		return true
	}
	return false
}

// Direction 资金方向。金额始终存正数，方向由该字段表达
type Direction string

const (
	DirectionCredit Direction = "credit" // 入账
	DirectionDebit  Direction = "debit"  // 出账
)

type TransactionStatus string

const (
	TransactionStatusPending   TransactionStatus = "pending"
	TransactionStatusCompleted TransactionStatus = "completed"
	TransactionStatusFailed    TransactionStatus = "failed"
)

// Terminal 是否为终态
func (s TransactionStatus) Terminal() bool {
	return s == TransactionStatusCompleted || s == TransactionStatusFailed
}

// ============================================================================
// 账户流水实体
// ============================================================================

// Transaction 账户流水表
//
// 【流水表设计原则】
// 1. 只追加，不删除；唯一允许的修改是 pending -> completed / failed 的一次状态迁移
// 2. 记录交易前后余额，BalanceAfter - BalanceBefore 与 Direction、Amount 一致
// 3. 转账写两条流水（借方腿、贷方腿），互相以对方账户为 CounterpartyAccountID，共享 TransferNo
type Transaction struct {
	ID                    int64             `gorm:"primaryKey;autoIncrement" json:"id"`
	TransactionNo         string            `gorm:"type:varchar(64);uniqueIndex;not null" json:"transaction_no"` // 流水号（全局唯一）
	AccountID             string            `gorm:"type:varchar(36);index:idx_txn_account_created,priority:1;not null" json:"account_id"`
	Kind                  TransactionKind   `gorm:"type:varchar(20);not null" json:"transaction_type"`
	Direction             Direction         `gorm:"type:varchar(10);not null" json:"direction"`
	Amount                decimal.Decimal   `gorm:"type:decimal(20,4);not null" json:"amount"`
	CounterpartyAccountID string            `gorm:"type:varchar(36)" json:"recipient_account_id,omitempty"` // 仅转账
	TransferNo            string            `gorm:"type:varchar(64);index" json:"transfer_no,omitempty"`   // 转账两条腿共享
	BalanceBefore         decimal.Decimal   `gorm:"type:decimal(20,4);not null" json:"balance_before"`
	BalanceAfter          decimal.Decimal   `gorm:"type:decimal(20,4);not null" json:"balance_after"`
	Status                TransactionStatus `gorm:"type:varchar(20);index;not null" json:"status"`
	Memo                  string            `gorm:"type:varchar(256)" json:"description,omitempty"`
	CreatedAt             time.Time         `gorm:"index:idx_txn_account_created,priority:2" json:"created_at"`
	CompletedAt           *time.Time        `json:"completed_at,omitempty"`
}

func (Transaction) TableName() string {
	return "account_transaction"
}

// SignedAmount 带符号金额：入账为正，出账为负
func (t *Transaction) SignedAmount() decimal.Decimal {
	if t.Direction == DirectionDebit {
		return t.Amount.Neg()
	}
	return t.Amount
}

// Consistent 校验 BalanceAfter = BalanceBefore ± Amount
func (t *Transaction) Consistent() bool {
	return t.BalanceAfter.Sub(t.BalanceBefore).Equal(t.SignedAmount())
}
