package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"ledger/internal/infrastructure/lock"
	"ledger/internal/model"
	"ledger/internal/repository"

	"github.com/cenkalti/backoff/v4"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// NumberGenerator 流水号 / 转账单号生成器
type NumberGenerator interface {
	TransactionNo() string
	TransferNo() string
}

// EngineConfig 交易引擎参数
type EngineConfig struct {
	OperationTimeout   time.Duration // 单笔操作（含加锁、重试）的总时限
	MaxConflictRetries int           // 乐观锁冲突后的重试次数
	RetryInterval      time.Duration // 首次重试间隔，之后指数退避
	EventTopic         string        // outbox 消息的目标 topic
}

func (c EngineConfig) withDefaults() EngineConfig {
	if c.OperationTimeout <= 0 {
		c.OperationTimeout = 5 * time.Second
	}
	if c.MaxConflictRetries < 0 {
		c.MaxConflictRetries = 0
	}
	if c.RetryInterval <= 0 {
		c.RetryInterval = 10 * time.Millisecond
	}
	if c.EventTopic == "" {
		c.EventTopic = "ledger-transaction-events"
	}
	return c
}

// ============================================================================
// 交易引擎
// ============================================================================
//
// 【一笔操作的执行流程】
//
//   1. 校验金额
//   2. 按账户 ID 字典序加锁（转账两个账户，顺序固定，不会互相等待）
//   3. 在同一个存储事务内：
//      重新读取账户 -> 计算新余额 -> 写 pending 流水 -> CAS 余额 -> 流水置 completed -> 写 outbox
//   4. CAS 冲突时整个事务回滚并退避重试，超过次数返回 Conflict
//
// 任何一步失败，事务回滚，不会留下 completed 流水，也不会只动一边余额。
// ============================================================================

type TransactionService struct {
	store  repository.Store
	locker lock.Locker
	ids    NumberGenerator
	cfg    EngineConfig
	logger *zap.Logger
	now    func() time.Time
}

type Option func(*TransactionService)

// WithClock 替换时钟，测试用
func WithClock(now func() time.Time) Option {
	return func(s *TransactionService) {
		s.now = now
	}
}

func NewTransactionService(store repository.Store, locker lock.Locker, ids NumberGenerator, cfg EngineConfig, logger *zap.Logger, opts ...Option) *TransactionService {
	s := &TransactionService{
		store:  store,
		locker: locker,
		ids:    ids,
		cfg:    cfg.withDefaults(),
		logger: logger,
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

type DepositRequest struct {
	AccountID string
	Amount    decimal.Decimal
	Memo      string
}

type WithdrawRequest struct {
	AccountID string
	Amount    decimal.Decimal
	Memo      string
}

type TransferRequest struct {
	FromAccountID   string
	ToAccountNumber string
	Amount          decimal.Decimal
	Memo            string
}

// TransferResult 转账的两条腿
type TransferResult struct {
	TransferNo string             `json:"transfer_no"`
	Debit      *model.Transaction `json:"debit"`
	Credit     *model.Transaction `json:"credit"`
}

// leg 一次余额变更
type leg struct {
	accountID    string
	kind         model.TransactionKind
	direction    model.Direction
	amount       decimal.Decimal
	counterparty string
	transferNo   string
	memo         string
	notFound     error // 账户不存在时返回的错误
}

func (l leg) delta() decimal.Decimal {
	if l.direction == model.DirectionDebit {
		return l.amount.Neg()
	}
	return l.amount
}

// Deposit 存款
func (s *TransactionService) Deposit(ctx context.Context, req DepositRequest) (*model.Transaction, error) {
	if err := validateAmount(req.Amount); err != nil {
		return nil, err
	}

	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	var out *model.Transaction
	err := s.execute(ctx, "deposit", []string{req.AccountID}, func(ctx context.Context, tx repository.Store) error {
		records, err := s.apply(ctx, tx, leg{
			accountID: req.AccountID,
			kind:      model.TransactionKindDeposit,
			direction: model.DirectionCredit,
			amount:    req.Amount,
			memo:      req.Memo,
			notFound:  model.ErrAccountNotFound,
		})
		if err != nil {
			return err
		}
		out = records[0]
		return s.enqueue(ctx, tx, out.TransactionNo, records)
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// Withdraw 取款，余额不足返回 InsufficientFunds
func (s *TransactionService) Withdraw(ctx context.Context, req WithdrawRequest) (*model.Transaction, error) {
	if err := validateAmount(req.Amount); err != nil {
		return nil, err
	}

	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	var out *model.Transaction
	err := s.execute(ctx, "withdraw", []string{req.AccountID}, func(ctx context.Context, tx repository.Store) error {
		records, err := s.apply(ctx, tx, leg{
			accountID: req.AccountID,
			kind:      model.TransactionKindWithdrawal,
			direction: model.DirectionDebit,
			amount:    req.Amount,
			memo:      req.Memo,
			notFound:  model.ErrAccountNotFound,
		})
		if err != nil {
			return err
		}
		out = records[0]
		return s.enqueue(ctx, tx, out.TransactionNo, records)
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// Transfer 转账：借方腿和贷方腿在同一事务中写入，要么都成功，要么都不存在
func (s *TransactionService) Transfer(ctx context.Context, req TransferRequest) (*TransferResult, error) {
	if err := validateAmount(req.Amount); err != nil {
		return nil, err
	}

	// 前置查询同样受操作时限约束
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	sender, err := s.store.Accounts().Get(ctx, req.FromAccountID)
	if err != nil {
		return nil, translate(err)
	}
	recipient, err := s.store.Accounts().GetByAccountNumber(ctx, req.ToAccountNumber)
	if err != nil {
		if errors.Is(err, model.ErrAccountNotFound) {
			return nil, model.ErrRecipientNotFound
		}
		return nil, translate(err)
	}
	if recipient.ID == sender.ID {
		return nil, model.ErrSelfTransferNotAllowed
	}

	transferNo := s.ids.TransferNo()
	result := &TransferResult{TransferNo: transferNo}

	err = s.execute(ctx, "transfer", []string{sender.ID, recipient.ID}, func(ctx context.Context, tx repository.Store) error {
		records, err := s.apply(ctx, tx,
			leg{
				accountID:    sender.ID,
				kind:         model.TransactionKindTransfer,
				direction:    model.DirectionDebit,
				amount:       req.Amount,
				counterparty: recipient.ID,
				transferNo:   transferNo,
				memo:         req.Memo,
				notFound:     model.ErrAccountNotFound,
			},
			leg{
				accountID:    recipient.ID,
				kind:         model.TransactionKindTransfer,
				direction:    model.DirectionCredit,
				amount:       req.Amount,
				counterparty: sender.ID,
				transferNo:   transferNo,
				memo:         "Transfer from " + sender.AccountNumber,
				notFound:     model.ErrRecipientNotFound,
			},
		)
		if err != nil {
			return err
		}
		result.Debit, result.Credit = records[0], records[1]
		return s.enqueue(ctx, tx, transferNo, records)
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

// withTimeout 为单笔操作套上总时限，加锁、事务内每次存储调用共用同一个 deadline
func (s *TransactionService) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, s.cfg.OperationTimeout)
}

// unitOfWork 在存储事务内执行的一组读写，ctx 携带操作时限
type unitOfWork func(ctx context.Context, tx repository.Store) error

// execute 加锁并在存储事务中执行 unit，冲突时退避重试
//
// ctx 应已由 withTimeout 设置时限。
func (s *TransactionService) execute(ctx context.Context, op string, accountIDs []string, unit unitOfWork) error {
	release, err := s.locker.Acquire(ctx, uuid.NewString(), accountIDs...)
	if err != nil {
		s.logger.Warn("获取账户锁失败", zap.String("op", op), zap.Strings("accounts", accountIDs), zap.Error(err))
		return translate(err)
	}
	defer release()

	policy := backoff.NewExponentialBackOff()
	policy.InitialInterval = s.cfg.RetryInterval
	policy.MaxElapsedTime = 0

	attempt := 0
	err = backoff.Retry(func() error {
		attempt++
		err := s.store.Transaction(ctx, func(tx repository.Store) error {
			return unit(ctx, tx)
		})
		if err == nil {
			return nil
		}
		if errors.Is(err, model.ErrConflict) {
			s.logger.Debug("余额并发冲突，准备重试", zap.String("op", op), zap.Int("attempt", attempt))
			return err
		}
		return backoff.Permanent(err)
	}, backoff.WithContext(backoff.WithMaxRetries(policy, uint64(s.cfg.MaxConflictRetries)), ctx))

	if err != nil {
		if errors.Is(err, model.ErrConflict) {
			s.logger.Warn("重试次数用尽", zap.String("op", op), zap.Int("attempts", attempt))
			return model.NewError(model.KindConflict, fmt.Sprintf("%s: concurrent update, gave up after %d attempts", op, attempt), nil)
		}
		return translate(err)
	}

	s.logger.Info("交易完成", zap.String("op", op), zap.Strings("accounts", accountIDs), zap.Int("attempts", attempt))
	return nil
}

// apply 在事务 tx 内完成一组余额变更
//
// 先全部读取并计算，再写 pending 流水，再逐个 CAS，最后置 completed。
// 任一步返回错误都由调用方的事务整体回滚。
func (s *TransactionService) apply(ctx context.Context, tx repository.Store, legs ...leg) ([]*model.Transaction, error) {
	accounts := make([]*model.Account, len(legs))
	records := make([]*model.Transaction, len(legs))
	createdAt := s.now().UTC()

	for i, l := range legs {
		acc, err := tx.Accounts().Get(ctx, l.accountID)
		if err != nil {
			if errors.Is(err, model.ErrAccountNotFound) {
				return nil, l.notFound
			}
			return nil, err
		}
		if !acc.IsActive {
			return nil, model.NewError(model.KindAccountInactive, fmt.Sprintf("account %s is inactive", acc.AccountNumber), nil)
		}

		next, err := ApplyDelta(acc, l.delta())
		if err != nil {
			return nil, err
		}

		accounts[i] = acc
		records[i] = &model.Transaction{
			TransactionNo:         s.ids.TransactionNo(),
			AccountID:             acc.ID,
			Kind:                  l.kind,
			Direction:             l.direction,
			Amount:                l.amount,
			CounterpartyAccountID: l.counterparty,
			TransferNo:            l.transferNo,
			BalanceBefore:         acc.Balance,
			BalanceAfter:          next,
			Status:                model.TransactionStatusPending,
			Memo:                  l.memo,
			CreatedAt:             createdAt,
		}
	}

	for _, rec := range records {
		if _, err := tx.Ledger().Append(ctx, rec); err != nil {
			return nil, fmt.Errorf("写入流水失败: %w", err)
		}
	}

	for i, acc := range accounts {
		if err := tx.Accounts().CompareAndSetBalance(ctx, acc.ID, acc.Balance, acc.Version, records[i].BalanceAfter); err != nil {
			return nil, err
		}
	}

	for _, rec := range records {
		if err := tx.Ledger().MarkCompleted(ctx, rec.ID); err != nil {
			return nil, fmt.Errorf("更新流水状态失败: %w", err)
		}
		completedAt := s.now().UTC()
		rec.Status = model.TransactionStatusCompleted
		rec.CompletedAt = &completedAt
	}

	return records, nil
}

// TransactionEvent outbox 消息体
type TransactionEvent struct {
	Event      string               `json:"event"`
	Reference  string               `json:"reference"`
	Records    []*model.Transaction `json:"records"`
	OccurredAt time.Time            `json:"occurred_at"`
}

// enqueue 与余额变更同事务写入 outbox
func (s *TransactionService) enqueue(ctx context.Context, tx repository.Store, reference string, records []*model.Transaction) error {
	payload, err := json.Marshal(TransactionEvent{
		Event:      model.EventTransactionCompleted,
		Reference:  reference,
		Records:    records,
		OccurredAt: s.now().UTC(),
	})
	if err != nil {
		return fmt.Errorf("序列化事件失败: %w", err)
	}

	msg := &model.OutboxMessage{
		MessageKey: records[0].AccountID,
		Topic:      s.cfg.EventTopic,
		EventType:  model.EventTransactionCompleted,
		Payload:    string(payload),
		Status:     model.OutboxStatusPending,
	}
	if err := tx.Outbox().Create(ctx, msg); err != nil {
		return fmt.Errorf("写入 outbox 失败: %w", err)
	}
	return nil
}
