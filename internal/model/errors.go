package model

import (
	"errors"
	"fmt"
)

// ErrorKind 错误分类，传输层据此映射响应码
type ErrorKind string

const (
	KindAccountNotFound        ErrorKind = "ACCOUNT_NOT_FOUND"
	KindDuplicateAccount       ErrorKind = "DUPLICATE_ACCOUNT"
	KindRecipientNotFound      ErrorKind = "RECIPIENT_NOT_FOUND"
	KindSelfTransferNotAllowed ErrorKind = "SELF_TRANSFER_NOT_ALLOWED"
	KindInvalidAmount          ErrorKind = "INVALID_AMOUNT"
	KindInvalidRequest         ErrorKind = "INVALID_REQUEST"
	KindInsufficientFunds      ErrorKind = "INSUFFICIENT_FUNDS"
	KindAccountInactive        ErrorKind = "ACCOUNT_INACTIVE"
	KindConflict               ErrorKind = "CONFLICT"
	KindStorageUnavailable     ErrorKind = "STORAGE_UNAVAILABLE"
)

// LedgerError 结构化业务错误
//
// errors.Is 按 Kind 比较，所以 fmt.Errorf("...: %w", NewError(KindConflict, ...))
// 仍然满足 errors.Is(err, ErrConflict)。
type LedgerError struct {
	Kind    ErrorKind
	Message string
	Err     error
}

func (e *LedgerError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *LedgerError) Unwrap() error {
	return e.Err
}

func (e *LedgerError) Is(target error) bool {
	t, ok := target.(*LedgerError)
	if !ok {
		return false
	}
	return t.Kind == e.Kind
}

// Retryable 只有 Conflict 和 StorageUnavailable 可以重试
func (e *LedgerError) Retryable() bool {
	return e.Kind == KindConflict || e.Kind == KindStorageUnavailable
}

var (
	ErrAccountNotFound        = &LedgerError{Kind: KindAccountNotFound, Message: "account not found"}
	ErrDuplicateAccount       = &LedgerError{Kind: KindDuplicateAccount, Message: "account already exists"}
	ErrRecipientNotFound      = &LedgerError{Kind: KindRecipientNotFound, Message: "recipient account not found"}
	ErrSelfTransferNotAllowed = &LedgerError{Kind: KindSelfTransferNotAllowed, Message: "cannot transfer to same account"}
	ErrInvalidAmount          = &LedgerError{Kind: KindInvalidAmount, Message: "invalid amount"}
	ErrInvalidRequest         = &LedgerError{Kind: KindInvalidRequest, Message: "invalid request"}
	ErrInsufficientFunds      = &LedgerError{Kind: KindInsufficientFunds, Message: "insufficient funds"}
	ErrAccountInactive        = &LedgerError{Kind: KindAccountInactive, Message: "account is inactive"}
	ErrConflict               = &LedgerError{Kind: KindConflict, Message: "concurrent update conflict"}
	ErrStorageUnavailable     = &LedgerError{Kind: KindStorageUnavailable, Message: "storage unavailable"}
)

// NewError 构造带上下文的业务错误
func NewError(kind ErrorKind, message string, cause error) *LedgerError {
	return &LedgerError{Kind: kind, Message: message, Err: cause}
}

// KindOf 取出错误链上的 Kind，非业务错误返回空串
func KindOf(err error) ErrorKind {
	var le *LedgerError
	if errors.As(err, &le) {
		return le.Kind
	}
	return ""
}

// IsRetryable 错误是否允许调用方重试
func IsRetryable(err error) bool {
	var le *LedgerError
	if errors.As(err, &le) {
		return le.Retryable()
	}
	return false
}
