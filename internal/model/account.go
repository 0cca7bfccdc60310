package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// AccountCategory 账户类别，每个用户每个类别最多一个账户
type AccountCategory string

const (
	AccountCategorySavings AccountCategory = "savings"
	AccountCategoryCurrent AccountCategory = "current"
)

// Valid 是否为支持的账户类别
func (c AccountCategory) Valid() bool {
	switch c {
	case AccountCategorySavings, AccountCategoryCurrent:
		return true
	}
	return false
}

const DefaultCurrency = "NGN"

// Account 用户账户表
//
// 余额只允许交易引擎通过 Version 比较后写入（CAS）。
// 账户永不物理删除，IsActive 为软停用标记。
type Account struct {
	ID            string          `gorm:"type:varchar(36);primaryKey" json:"id"`
	UserID        string          `gorm:"type:varchar(64);not null;uniqueIndex:uk_account_owner_category,priority:1" json:"user_id"`
	Category      AccountCategory `gorm:"type:varchar(20);not null;uniqueIndex:uk_account_owner_category,priority:2" json:"account_type"`
	AccountNumber string          `gorm:"type:varchar(10);uniqueIndex;not null" json:"account_number"`
	Balance       decimal.Decimal `gorm:"type:decimal(20,4);not null;default:0" json:"balance"`
	Currency      string          `gorm:"type:varchar(3);not null" json:"currency"`
	IsActive      bool            `gorm:"not null" json:"is_active"`
	Version       int64           `gorm:"not null;default:0" json:"-"` // 乐观锁版本号
	CreatedAt     time.Time       `json:"created_at"`
	UpdatedAt     time.Time       `json:"updated_at"`
}

func (Account) TableName() string {
	return "account"
}
