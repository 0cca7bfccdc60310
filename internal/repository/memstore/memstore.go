// Package memstore 内存版 Store，与 gorm 实现遵循同一事务语义。
//
// 事务通过快照实现：Transaction 在写信号量内克隆全部状态，fn 只修改快照，
// fn 成功后整体替换，失败则丢弃快照。事务之间串行，读操作不阻塞。
package memstore

import (
	"context"
	"slices"
	"sync"
	"time"

	"ledger/internal/model"
	"ledger/internal/repository"

	"github.com/shopspring/decimal"
)

type ownerKey struct {
	userID   string
	category model.AccountCategory
}

type state struct {
	accounts     map[string]*model.Account
	byNumber     map[string]string
	byOwner      map[ownerKey]string
	records      []*model.Transaction // 按 ID 升序
	outbox       []*model.OutboxMessage
	nextRecordID int64
	nextOutboxID int64
}

func newState() *state {
	return &state{
		accounts: make(map[string]*model.Account),
		byNumber: make(map[string]string),
		byOwner:  make(map[ownerKey]string),
	}
}

func (st *state) clone() *state {
	cp := &state{
		accounts:     make(map[string]*model.Account, len(st.accounts)),
		byNumber:     make(map[string]string, len(st.byNumber)),
		byOwner:      make(map[ownerKey]string, len(st.byOwner)),
		records:      make([]*model.Transaction, len(st.records)),
		outbox:       make([]*model.OutboxMessage, len(st.outbox)),
		nextRecordID: st.nextRecordID,
		nextOutboxID: st.nextOutboxID,
	}
	for id, a := range st.accounts {
		cp.accounts[id] = copyAccount(a)
	}
	for k, v := range st.byNumber {
		cp.byNumber[k] = v
	}
	for k, v := range st.byOwner {
		cp.byOwner[k] = v
	}
	for i, r := range st.records {
		cp.records[i] = copyRecord(r)
	}
	for i, m := range st.outbox {
		c := *m
		cp.outbox[i] = &c
	}
	return cp
}

type root struct {
	sem chan struct{} // 写信号量，容量 1
	mu  sync.RWMutex
	st  *state
}

// Store 内存 Store。零值不可用，使用 New 创建
type Store struct {
	root *root
	tx   *state // 非 nil 表示事务内视图
	now  func() time.Time
}

var _ repository.Store = (*Store)(nil)

func New() *Store {
	return &Store{
		root: &root{sem: make(chan struct{}, 1), st: newState()},
		now:  time.Now,
	}
}

func (s *Store) Accounts() repository.AccountStore { return accountStore{s} }

func (s *Store) Ledger() repository.LedgerStore { return ledgerStore{s} }

func (s *Store) Outbox() repository.OutboxStore { return outboxStore{s} }

func (s *Store) Transaction(ctx context.Context, fn func(tx repository.Store) error) error {
	if s.tx != nil {
		return fn(s)
	}
	if err := s.acquire(ctx); err != nil {
		return err
	}
	defer s.release()

	s.root.mu.RLock()
	snap := s.root.st.clone()
	s.root.mu.RUnlock()

	if err := fn(&Store{root: s.root, tx: snap, now: s.now}); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	s.root.mu.Lock()
	s.root.st = snap
	s.root.mu.Unlock()
	return nil
}

func (s *Store) acquire(ctx context.Context) error {
	select {
	case s.root.sem <- struct{}{}:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *Store) release() {
	<-s.root.sem
}

func (s *Store) read(fn func(st *state) error) error {
	if s.tx != nil {
		return fn(s.tx)
	}
	s.root.mu.RLock()
	defer s.root.mu.RUnlock()
	return fn(s.root.st)
}

// write 事务外的单次写入同样要占用写信号量，否则会被并发提交的快照覆盖
func (s *Store) write(ctx context.Context, fn func(st *state) error) error {
	if s.tx != nil {
		return fn(s.tx)
	}
	if err := s.acquire(ctx); err != nil {
		return err
	}
	defer s.release()
	s.root.mu.Lock()
	defer s.root.mu.Unlock()
	return fn(s.root.st)
}

func copyAccount(a *model.Account) *model.Account {
	c := *a
	return &c
}

func copyRecord(r *model.Transaction) *model.Transaction {
	c := *r
	if r.CompletedAt != nil {
		t := *r.CompletedAt
		c.CompletedAt = &t
	}
	return &c
}

// ============================================================================
// AccountStore
// ============================================================================

type accountStore struct{ s *Store }

func (a accountStore) Get(_ context.Context, id string) (*model.Account, error) {
	var out *model.Account
	err := a.s.read(func(st *state) error {
		acc, ok := st.accounts[id]
		if !ok {
			return model.ErrAccountNotFound
		}
		out = copyAccount(acc)
		return nil
	})
	return out, err
}

func (a accountStore) GetByOwnerAndCategory(ctx context.Context, userID string, category model.AccountCategory) (*model.Account, error) {
	var id string
	_ = a.s.read(func(st *state) error {
		id = st.byOwner[ownerKey{userID, category}]
		return nil
	})
	if id == "" {
		return nil, model.ErrAccountNotFound
	}
	return a.Get(ctx, id)
}

func (a accountStore) GetByAccountNumber(ctx context.Context, number string) (*model.Account, error) {
	var id string
	_ = a.s.read(func(st *state) error {
		id = st.byNumber[number]
		return nil
	})
	if id == "" {
		return nil, model.ErrAccountNotFound
	}
	return a.Get(ctx, id)
}

func (a accountStore) Create(ctx context.Context, account *model.Account) error {
	return a.s.write(ctx, func(st *state) error {
		key := ownerKey{account.UserID, account.Category}
		if _, ok := st.byOwner[key]; ok {
			return model.ErrDuplicateAccount
		}
		if _, ok := st.byNumber[account.AccountNumber]; ok {
			return repository.ErrAccountNumberTaken
		}
		now := a.s.now()
		if account.CreatedAt.IsZero() {
			account.CreatedAt = now
		}
		account.UpdatedAt = now
		st.accounts[account.ID] = copyAccount(account)
		st.byOwner[key] = account.ID
		st.byNumber[account.AccountNumber] = account.ID
		return nil
	})
}

func (a accountStore) CompareAndSetBalance(ctx context.Context, id string, expected decimal.Decimal, version int64, next decimal.Decimal) error {
	return a.s.write(ctx, func(st *state) error {
		acc, ok := st.accounts[id]
		if !ok {
			return model.ErrAccountNotFound
		}
		if acc.Version != version || !acc.Balance.Equal(expected) {
			return model.ErrConflict
		}
		acc.Balance = next
		acc.Version++
		acc.UpdatedAt = a.s.now()
		return nil
	})
}

func (a accountStore) SetActive(ctx context.Context, id string, active bool) error {
	return a.s.write(ctx, func(st *state) error {
		acc, ok := st.accounts[id]
		if !ok {
			return model.ErrAccountNotFound
		}
		acc.IsActive = active
		acc.UpdatedAt = a.s.now()
		return nil
	})
}

func (a accountStore) List(_ context.Context, afterID string, limit int) ([]*model.Account, error) {
	var out []*model.Account
	_ = a.s.read(func(st *state) error {
		for id, acc := range st.accounts {
			if id > afterID {
				out = append(out, copyAccount(acc))
			}
		}
		return nil
	})
	slices.SortFunc(out, func(x, y *model.Account) int {
		switch {
		case x.ID < y.ID:
			return -1
		case x.ID > y.ID:
			return 1
		}
		return 0
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// ============================================================================
// LedgerStore
// ============================================================================

type ledgerStore struct{ s *Store }

func (l ledgerStore) Append(ctx context.Context, record *model.Transaction) (int64, error) {
	err := l.s.write(ctx, func(st *state) error {
		st.nextRecordID++
		record.ID = st.nextRecordID
		if record.CreatedAt.IsZero() {
			record.CreatedAt = l.s.now()
		}
		st.records = append(st.records, copyRecord(record))
		return nil
	})
	if err != nil {
		return 0, err
	}
	return record.ID, nil
}

func (l ledgerStore) MarkCompleted(ctx context.Context, id int64) error {
	return l.transition(ctx, id, model.TransactionStatusCompleted)
}

func (l ledgerStore) MarkFailed(ctx context.Context, id int64) error {
	return l.transition(ctx, id, model.TransactionStatusFailed)
}

func (l ledgerStore) transition(ctx context.Context, id int64, to model.TransactionStatus) error {
	return l.s.write(ctx, func(st *state) error {
		for _, r := range st.records {
			if r.ID != id {
				continue
			}
			if r.Status != model.TransactionStatusPending {
				return repository.ErrInvalidTransition
			}
			now := l.s.now()
			r.Status = to
			r.CompletedAt = &now
			return nil
		}
		return repository.ErrRecordNotFound
	})
}

func (l ledgerStore) ListByAccount(_ context.Context, accountID string, filter repository.ListFilter, page repository.Page) ([]*model.Transaction, error) {
	var out []*model.Transaction
	_ = l.s.read(func(st *state) error {
		for i := len(st.records) - 1; i >= 0; i-- {
			r := st.records[i]
			if r.AccountID != accountID {
				continue
			}
			if filter.Kind != "" && r.Kind != filter.Kind {
				continue
			}
			if len(filter.Statuses) > 0 && !slices.Contains(filter.Statuses, r.Status) {
				continue
			}
			out = append(out, copyRecord(r))
		}
		return nil
	})

	// 已按 ID 倒序，稳定排序后时间相同者仍按 ID 倒序
	slices.SortStableFunc(out, func(x, y *model.Transaction) int {
		return y.CreatedAt.Compare(x.CreatedAt)
	})

	if page.Offset > 0 {
		if page.Offset >= len(out) {
			return nil, nil
		}
		out = out[page.Offset:]
	}
	if page.Limit > 0 && len(out) > page.Limit {
		out = out[:page.Limit]
	}
	return out, nil
}

func (l ledgerStore) LastCompleted(_ context.Context, accountID string) (*model.Transaction, error) {
	var out *model.Transaction
	_ = l.s.read(func(st *state) error {
		for i := len(st.records) - 1; i >= 0; i-- {
			r := st.records[i]
			if r.AccountID == accountID && r.Status == model.TransactionStatusCompleted {
				out = copyRecord(r)
				return nil
			}
		}
		return nil
	})
	return out, nil
}

// ============================================================================
// OutboxStore
// ============================================================================

type outboxStore struct{ s *Store }

func (o outboxStore) Create(ctx context.Context, msg *model.OutboxMessage) error {
	return o.s.write(ctx, func(st *state) error {
		st.nextOutboxID++
		msg.ID = st.nextOutboxID
		if msg.Status == "" {
			msg.Status = model.OutboxStatusPending
		}
		now := o.s.now()
		msg.CreatedAt = now
		msg.UpdatedAt = now
		c := *msg
		st.outbox = append(st.outbox, &c)
		return nil
	})
}

func (o outboxStore) GetPending(_ context.Context, limit int) ([]*model.OutboxMessage, error) {
	var out []*model.OutboxMessage
	_ = o.s.read(func(st *state) error {
		for _, m := range st.outbox {
			if m.Status != model.OutboxStatusPending {
				continue
			}
			c := *m
			out = append(out, &c)
			if limit > 0 && len(out) == limit {
				break
			}
		}
		return nil
	})
	return out, nil
}

func (o outboxStore) MarkSent(ctx context.Context, id int64) error {
	return o.update(ctx, id, func(m *model.OutboxMessage) { m.Status = model.OutboxStatusSent })
}

func (o outboxStore) IncrementRetryCount(ctx context.Context, id int64) error {
	return o.update(ctx, id, func(m *model.OutboxMessage) { m.RetryCount++ })
}

func (o outboxStore) MarkAsFailed(ctx context.Context, id int64) error {
	return o.update(ctx, id, func(m *model.OutboxMessage) { m.Status = model.OutboxStatusFailed })
}

func (o outboxStore) update(ctx context.Context, id int64, fn func(m *model.OutboxMessage)) error {
	return o.s.write(ctx, func(st *state) error {
		for _, m := range st.outbox {
			if m.ID == id {
				fn(m)
				m.UpdatedAt = o.s.now()
				return nil
			}
		}
		return repository.ErrMessageNotFound
	})
}
