package job

import (
	"context"
	"time"

	"ledger/internal/model"
	"ledger/internal/repository"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// ============================================================================
// 对账任务
// ============================================================================
//
// 1. 余额核对：账户余额应等于其最新一条 completed 流水的 BalanceAfter（没有流水时为 0）
// 2. 悬挂流水补偿：超过 staleAfter 仍为 pending 的流水标记为 failed
//
// 正常情况下 pending 流水只在事务内短暂存在，提交前已置为 completed，
// 出现悬挂说明有写入绕过了交易引擎。余额不一致只记录告警，不自动修正。
// ============================================================================

// 余额与流水读取之间账户被改动时，最多重读几次
const maxCompareAttempts = 3

// ReconcileReport 一轮对账的结果
type ReconcileReport struct {
	Checked     int
	Mismatched  int
	StaleFailed int
}

type Reconciler struct {
	store      repository.Store
	logger     *zap.Logger
	interval   time.Duration
	batchSize  int
	staleAfter time.Duration
	now        func() time.Time
}

func NewReconciler(store repository.Store, interval time.Duration, logger *zap.Logger) *Reconciler {
	return &Reconciler{
		store:      store,
		logger:     logger,
		interval:   interval,
		batchSize:  100,
		staleAfter: 5 * time.Minute,
		now:        time.Now,
	}
}

// Start 阻塞运行直到 ctx 取消
func (r *Reconciler) Start(ctx context.Context) error {
	r.logger.Info("对账任务启动", zap.Duration("interval", r.interval))

	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			r.logger.Info("收到停止信号，任务退出")
			return nil
		case <-ticker.C:
			report, err := r.RunOnce(ctx)
			if err != nil {
				r.logger.Error("对账失败", zap.Error(err))
				continue
			}
			r.logger.Info("本轮对账完成",
				zap.Int("checked", report.Checked),
				zap.Int("mismatched", report.Mismatched),
				zap.Int("stale_failed", report.StaleFailed))
		}
	}
}

// RunOnce 按账户 ID 顺序扫描一遍全部账户
func (r *Reconciler) RunOnce(ctx context.Context) (ReconcileReport, error) {
	var report ReconcileReport
	afterID := ""

	for {
		accounts, err := r.store.Accounts().List(ctx, afterID, r.batchSize)
		if err != nil {
			return report, err
		}
		if len(accounts) == 0 {
			return report, nil
		}

		for _, acc := range accounts {
			if err := r.check(ctx, acc, &report); err != nil {
				return report, err
			}
		}
		afterID = accounts[len(accounts)-1].ID
	}
}

func (r *Reconciler) check(ctx context.Context, acc *model.Account, report *ReconcileReport) error {
	report.Checked++

	expected, consistent, err := r.compare(ctx, acc)
	if err != nil {
		return err
	}
	if !consistent {
		report.Mismatched++
		r.logger.Warn("账户余额与流水不一致",
			zap.String("account_id", acc.ID),
			zap.String("balance", acc.Balance.String()),
			zap.String("ledger_balance", expected.String()))
	}

	return r.failStale(ctx, acc, report)
}

// compare 比较余额与最新 completed 流水的 balance_after
//
// 余额和流水分两次读取，期间若有交易提交，版本号会变化，此时以新快照重新比较。
func (r *Reconciler) compare(ctx context.Context, acc *model.Account) (decimal.Decimal, bool, error) {
	for attempt := 0; attempt < maxCompareAttempts; attempt++ {
		last, err := r.store.Ledger().LastCompleted(ctx, acc.ID)
		if err != nil {
			return decimal.Zero, false, err
		}
		expected := decimal.Zero
		if last != nil {
			expected = last.BalanceAfter
		}

		current, err := r.store.Accounts().Get(ctx, acc.ID)
		if err != nil {
			return decimal.Zero, false, err
		}
		if current.Version == acc.Version {
			return expected, acc.Balance.Equal(expected), nil
		}
		*acc = *current
	}

	// 账户一直在变动，本轮跳过，下一轮再查
	r.logger.Debug("账户持续变动，跳过对账", zap.String("account_id", acc.ID))
	return decimal.Zero, true, nil
}

func (r *Reconciler) failStale(ctx context.Context, acc *model.Account, report *ReconcileReport) error {
	pending, err := r.store.Ledger().ListByAccount(ctx, acc.ID,
		repository.ListFilter{Statuses: []model.TransactionStatus{model.TransactionStatusPending}},
		repository.Page{})
	if err != nil {
		return err
	}
	deadline := r.now().Add(-r.staleAfter)
	for _, rec := range pending {
		if rec.CreatedAt.After(deadline) {
			continue
		}
		if err := r.store.Ledger().MarkFailed(ctx, rec.ID); err != nil {
			r.logger.Error("标记悬挂流水失败", zap.Int64("id", rec.ID), zap.Error(err))
			continue
		}
		report.StaleFailed++
		r.logger.Warn("悬挂流水已标记为 failed", zap.Int64("id", rec.ID), zap.String("transaction_no", rec.TransactionNo))
	}
	return nil
}
