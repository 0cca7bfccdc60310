package service

import (
	"fmt"

	"ledger/internal/model"

	"github.com/shopspring/decimal"
)

// amountScale 金额最多 4 位小数，与 decimal(20,4) 列一致
const amountScale = 4

// ApplyDelta 计算账户加上 delta（可为负）之后的余额
//
// 纯函数，不写存储。结果为负时返回 InsufficientFunds，余额保持原值。
func ApplyDelta(account *model.Account, delta decimal.Decimal) (decimal.Decimal, error) {
	next := account.Balance.Add(delta)
	if next.IsNegative() {
		return account.Balance, model.NewError(model.KindInsufficientFunds,
			fmt.Sprintf("insufficient funds: balance %s, requested %s", account.Balance.String(), delta.Neg().String()), nil)
	}
	return next, nil
}

// validateAmount 金额必须为正且不超过 4 位小数
func validateAmount(amount decimal.Decimal) error {
	if !amount.IsPositive() {
		return model.NewError(model.KindInvalidAmount, "amount must be greater than zero", nil)
	}
	if !amount.Equal(amount.Truncate(amountScale)) {
		return model.NewError(model.KindInvalidAmount,
			fmt.Sprintf("amount supports at most %d decimal places", amountScale), nil)
	}
	return nil
}
