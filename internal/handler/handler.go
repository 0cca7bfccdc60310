package handler

import (
	"strconv"

	"ledger/internal/model"
	"ledger/internal/service"
	"ledger/pkg/response"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
)

// Handler 统一处理器，包含所有服务依赖
//
// 只做参数解析和账户定位，业务规则全部在 service 层。
type Handler struct {
	accountService     *service.AccountService
	transactionService *service.TransactionService
	historyService     *service.HistoryService
}

// NewHandler 创建处理器实例
func NewHandler(accounts *service.AccountService, transactions *service.TransactionService, history *service.HistoryService) *Handler {
	return &Handler{
		accountService:     accounts,
		transactionService: transactions,
		historyService:     history,
	}
}

// currentAccount 按 (X-User-ID, account_type) 定位调用方账户
func (h *Handler) currentAccount(c *gin.Context, accountType string) (*model.Account, bool) {
	account, err := h.accountService.GetUserAccount(c.Request.Context(), c.GetString(ctxKeyUserID), model.AccountCategory(accountType))
	if err != nil {
		response.Fail(c, err)
		return nil, false
	}
	return account, true
}

// ============================================================
// 账户相关接口
// ============================================================

type accountTypeRequest struct {
	AccountType string `json:"account_type"`
}

// CreateAccount 开户
// POST /api/v1/account/create
func (h *Handler) CreateAccount(c *gin.Context) {
	var req accountTypeRequest
	if c.Request.ContentLength != 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			response.ParamError(c, "参数错误: "+err.Error())
			return
		}
	}

	account, err := h.accountService.CreateAccount(c.Request.Context(), c.GetString(ctxKeyUserID), model.AccountCategory(req.AccountType))
	if err != nil {
		response.Fail(c, err)
		return
	}

	response.Created(c, account)
}

// ViewAccount 查询账户详情
// GET /api/v1/account/view?account_type=savings
func (h *Handler) ViewAccount(c *gin.Context) {
	account, ok := h.currentAccount(c, c.Query("account_type"))
	if !ok {
		return
	}
	response.Success(c, account)
}

// GetBalance 查询余额
// GET /api/v1/account/balance?account_type=savings
func (h *Handler) GetBalance(c *gin.Context) {
	account, ok := h.currentAccount(c, c.Query("account_type"))
	if !ok {
		return
	}

	response.Success(c, gin.H{
		"account_number": account.AccountNumber,
		"balance":        account.Balance,
		"currency":       account.Currency,
	})
}

// DeactivateAccount 停用账户
// POST /api/v1/account/deactivate
func (h *Handler) DeactivateAccount(c *gin.Context) {
	var req accountTypeRequest
	if c.Request.ContentLength != 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			response.ParamError(c, "参数错误: "+err.Error())
			return
		}
	}

	account, ok := h.currentAccount(c, req.AccountType)
	if !ok {
		return
	}
	if err := h.accountService.Deactivate(c.Request.Context(), account.ID); err != nil {
		response.Fail(c, err)
		return
	}

	response.Success(c, gin.H{
		"account_number": account.AccountNumber,
		"is_active":      false,
	})
}

// ============================================================
// 交易相关接口
// ============================================================

// AmountRequest 存款 / 取款请求
// amount 支持 JSON 数字或字符串，按十进制精确解析
type AmountRequest struct {
	Amount      decimal.Decimal `json:"amount"`
	Description string          `json:"description"`
	AccountType string          `json:"account_type"`
}

// Deposit 存款
// POST /api/v1/transaction/deposit
func (h *Handler) Deposit(c *gin.Context) {
	var req AmountRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ParamError(c, "参数错误: "+err.Error())
		return
	}

	account, ok := h.currentAccount(c, req.AccountType)
	if !ok {
		return
	}

	record, err := h.transactionService.Deposit(c.Request.Context(), service.DepositRequest{
		AccountID: account.ID,
		Amount:    req.Amount,
		Memo:      req.Description,
	})
	if err != nil {
		response.Fail(c, err)
		return
	}

	response.Success(c, record)
}

// Withdraw 取款
// POST /api/v1/transaction/withdraw
func (h *Handler) Withdraw(c *gin.Context) {
	var req AmountRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ParamError(c, "参数错误: "+err.Error())
		return
	}

	account, ok := h.currentAccount(c, req.AccountType)
	if !ok {
		return
	}

	record, err := h.transactionService.Withdraw(c.Request.Context(), service.WithdrawRequest{
		AccountID: account.ID,
		Amount:    req.Amount,
		Memo:      req.Description,
	})
	if err != nil {
		response.Fail(c, err)
		return
	}

	response.Success(c, record)
}

// TransferRequest 转账请求
type TransferRequest struct {
	ToAccountNumber string          `json:"to_account_number" binding:"required"`
	Amount          decimal.Decimal `json:"amount"`
	Description     string          `json:"description"`
	AccountType     string          `json:"account_type"`
}

// Transfer 转账
// POST /api/v1/transaction/transfer
//
// 【关键点】
// 1. 原子性：两条流水和两个余额在同一事务中提交
// 2. 并发安全：两个账户按 ID 顺序加锁
func (h *Handler) Transfer(c *gin.Context) {
	var req TransferRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ParamError(c, "参数错误: "+err.Error())
		return
	}

	account, ok := h.currentAccount(c, req.AccountType)
	if !ok {
		return
	}

	result, err := h.transactionService.Transfer(c.Request.Context(), service.TransferRequest{
		FromAccountID:   account.ID,
		ToAccountNumber: req.ToAccountNumber,
		Amount:          req.Amount,
		Memo:            req.Description,
	})
	if err != nil {
		response.Fail(c, err)
		return
	}

	response.Success(c, result)
}

// ListTransactions 查询流水
// GET /api/v1/transaction/transactions?skip=0&limit=10&transaction_type=deposit
func (h *Handler) ListTransactions(c *gin.Context) {
	skip, err := strconv.Atoi(c.DefaultQuery("skip", "0"))
	if err != nil {
		response.ParamError(c, "skip 参数错误")
		return
	}
	limit, err := strconv.Atoi(c.DefaultQuery("limit", "0"))
	if err != nil {
		response.ParamError(c, "limit 参数错误")
		return
	}

	account, ok := h.currentAccount(c, c.Query("account_type"))
	if !ok {
		return
	}

	records, err := h.historyService.ListTransactions(c.Request.Context(), account.ID, skip, limit,
		model.TransactionKind(c.Query("transaction_type")))
	if err != nil {
		response.Fail(c, err)
		return
	}

	response.Success(c, gin.H{
		"list":  records,
		"skip":  skip,
		"count": len(records),
	})
}
