package service

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"ledger/internal/infrastructure/database"
	"ledger/internal/infrastructure/lock"
	"ledger/internal/model"
	"ledger/internal/repository"
	"ledger/internal/repository/memstore"
	"ledger/pkg/idgen"

	"github.com/glebarez/sqlite"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
	"gorm.io/gorm"
)

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

// faults 按 CAS 调用序号注入错误（从 1 开始计数）
type faults struct {
	mu       sync.Mutex
	casCalls int
	failCAS  map[int]error
}

func (f *faults) nextCAS() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.casCalls++
	return f.failCAS[f.casCalls]
}

func (f *faults) calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.casCalls
}

type faultyStore struct {
	repository.Store
	f *faults
}

func (s faultyStore) Accounts() repository.AccountStore {
	return faultyAccounts{AccountStore: s.Store.Accounts(), f: s.f}
}

func (s faultyStore) Transaction(ctx context.Context, fn func(tx repository.Store) error) error {
	return s.Store.Transaction(ctx, func(tx repository.Store) error {
		return fn(faultyStore{Store: tx, f: s.f})
	})
}

type faultyAccounts struct {
	repository.AccountStore
	f *faults
}

func (a faultyAccounts) CompareAndSetBalance(ctx context.Context, id string, expected decimal.Decimal, version int64, next decimal.Decimal) error {
	if err := a.f.nextCAS(); err != nil {
		return err
	}
	return a.AccountStore.CompareAndSetBalance(ctx, id, expected, version, next)
}

type fixture struct {
	store        repository.Store
	faults       *faults
	locker       *lock.LocalLocker
	accounts     *AccountService
	transactions *TransactionService
	history      *HistoryService
}

func newFixture(t *testing.T, cfg EngineConfig) *fixture {
	t.Helper()
	return newFixtureOn(t, memstore.New(), cfg)
}

// newGormFixture 基于 sqlite 内存库的 GormStore，走版本号 CAS 的真实 SQL 路径
func newGormFixture(t *testing.T, cfg EngineConfig) *fixture {
	t.Helper()

	name := strings.NewReplacer("/", "_", " ", "_").Replace(t.Name())
	db, err := gorm.Open(sqlite.Open(fmt.Sprintf("file:%s?mode=memory&cache=shared", name)), database.GormConfig())
	require.NoError(t, err)

	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })

	require.NoError(t, database.Migrate(db))
	return newFixtureOn(t, repository.NewGormStore(db), cfg)
}

// eachBackend 在内存实现和 gorm 实现上各跑一遍
func eachBackend(t *testing.T, cfg EngineConfig, fn func(t *testing.T, fx *fixture)) {
	backends := map[string]func(*testing.T, EngineConfig) *fixture{
		"memstore": newFixture,
		"gorm":     newGormFixture,
	}
	for name, factory := range backends {
		t.Run(name, func(t *testing.T) {
			fn(t, factory(t, cfg))
		})
	}
}

func newFixtureOn(t *testing.T, store repository.Store, cfg EngineConfig) *fixture {
	t.Helper()

	f := &faults{failCAS: map[int]error{}}
	wrapped := faultyStore{Store: store, f: f}

	ids, err := idgen.New(1)
	require.NoError(t, err)

	logger := zaptest.NewLogger(t)
	locker := lock.NewLocalLocker()

	return &fixture{
		store:        store,
		faults:       f,
		locker:       locker,
		accounts:     NewAccountService(store, "", logger),
		transactions: NewTransactionService(wrapped, locker, ids, cfg, logger),
		history:      NewHistoryService(store, 0, 0),
	}
}

func defaultEngineConfig() EngineConfig {
	return EngineConfig{
		OperationTimeout:   2 * time.Second,
		MaxConflictRetries: 3,
		RetryInterval:      time.Millisecond,
		EventTopic:         "test-events",
	}
}

// openAccount 开户并存入初始余额
func (fx *fixture) openAccount(t *testing.T, userID string, initial string) *model.Account {
	t.Helper()
	ctx := context.Background()

	acc, err := fx.accounts.CreateAccount(ctx, userID, model.AccountCategorySavings)
	require.NoError(t, err)

	if amount := dec(initial); amount.IsPositive() {
		_, err := fx.transactions.Deposit(ctx, DepositRequest{AccountID: acc.ID, Amount: amount, Memo: "opening"})
		require.NoError(t, err)
	}

	acc, err = fx.accounts.GetAccount(ctx, acc.ID)
	require.NoError(t, err)
	return acc
}

func (fx *fixture) balance(t *testing.T, accountID string) decimal.Decimal {
	t.Helper()
	b, err := fx.accounts.GetBalance(context.Background(), accountID)
	require.NoError(t, err)
	return b
}

func (fx *fixture) records(t *testing.T, accountID string) []*model.Transaction {
	t.Helper()
	out, err := fx.store.Ledger().ListByAccount(context.Background(), accountID, repository.ListFilter{}, repository.Page{})
	require.NoError(t, err)
	return out
}

// stallingStore 的 Accounts().Get 在 ctx 结束前一直阻塞，事务内外都是
type stallingStore struct {
	repository.Store
}

func (s stallingStore) Accounts() repository.AccountStore {
	return stallingAccounts{AccountStore: s.Store.Accounts()}
}

func (s stallingStore) Transaction(ctx context.Context, fn func(tx repository.Store) error) error {
	return s.Store.Transaction(ctx, func(tx repository.Store) error {
		return fn(stallingStore{Store: tx})
	})
}

type stallingAccounts struct {
	repository.AccountStore
}

func (a stallingAccounts) Get(ctx context.Context, id string) (*model.Account, error) {
	<-ctx.Done()
	return nil, ctx.Err()
}
