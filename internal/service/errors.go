package service

import (
	"context"
	"errors"

	"ledger/internal/infrastructure/lock"
	"ledger/internal/model"
)

// translate 把存储层/锁/超时错误统一为业务错误
//
// 已经是 LedgerError 的原样返回；拿不到锁视为冲突；其余一律 StorageUnavailable。
func translate(err error) error {
	if err == nil {
		return nil
	}

	var le *model.LedgerError
	if errors.As(err, &le) {
		return err
	}

	switch {
	case errors.Is(err, lock.ErrLockFailed):
		return model.NewError(model.KindConflict, "account is busy, please retry", err)
	case errors.Is(err, context.DeadlineExceeded):
		return model.NewError(model.KindStorageUnavailable, "operation timed out", err)
	default:
		return model.NewError(model.KindStorageUnavailable, "storage unavailable", err)
	}
}
