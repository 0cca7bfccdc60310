package service

import (
	"context"
	"fmt"

	"ledger/internal/model"
	"ledger/internal/repository"
)

const (
	DefaultPageSize = 10
	MaxPageSize     = 100
)

// HistoryService 流水查询，只读
//
// 只返回 completed 流水，pending/failed 对外不可见。
type HistoryService struct {
	store        repository.Store
	defaultLimit int
	maxLimit     int
}

func NewHistoryService(store repository.Store, defaultLimit, maxLimit int) *HistoryService {
	if defaultLimit <= 0 {
		defaultLimit = DefaultPageSize
	}
	if maxLimit <= 0 {
		maxLimit = MaxPageSize
	}
	if defaultLimit > maxLimit {
		defaultLimit = maxLimit
	}
	return &HistoryService{store: store, defaultLimit: defaultLimit, maxLimit: maxLimit}
}

// ListTransactions 按时间倒序分页返回账户流水，kind 为空表示不过滤
func (s *HistoryService) ListTransactions(ctx context.Context, accountID string, skip, limit int, kind model.TransactionKind) ([]*model.Transaction, error) {
	if kind != "" && !kind.Valid() {
		return nil, model.NewError(model.KindInvalidRequest, fmt.Sprintf("unknown transaction type %q", kind), nil)
	}
	if skip < 0 {
		skip = 0
	}
	if limit <= 0 {
		limit = s.defaultLimit
	}
	if limit > s.maxLimit {
		limit = s.maxLimit
	}

	if _, err := s.store.Accounts().Get(ctx, accountID); err != nil {
		return nil, translate(err)
	}

	records, err := s.store.Ledger().ListByAccount(ctx, accountID,
		repository.ListFilter{Kind: kind, Statuses: []model.TransactionStatus{model.TransactionStatusCompleted}},
		repository.Page{Offset: skip, Limit: limit})
	if err != nil {
		return nil, translate(err)
	}
	if records == nil {
		records = []*model.Transaction{}
	}
	return records, nil
}
