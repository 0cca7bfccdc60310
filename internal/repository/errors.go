package repository

import "errors"

var (
	ErrAccountNumberTaken = errors.New("账户号已被占用")
	ErrInvalidTransition  = errors.New("流水状态不允许迁移")
	ErrRecordNotFound     = errors.New("流水不存在")
	ErrMessageNotFound    = errors.New("outbox 消息不存在")
)
