package handler

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"ledger/internal/infrastructure/lock"
	"ledger/internal/repository/memstore"
	"ledger/internal/service"
	"ledger/pkg/idgen"
	"ledger/pkg/response"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

func setupRouter(t *testing.T) *gin.Engine {
	t.Helper()

	store := memstore.New()
	logger := zaptest.NewLogger(t)
	ids, err := idgen.New(2)
	require.NoError(t, err)

	h := NewHandler(
		service.NewAccountService(store, "", logger),
		service.NewTransactionService(store, lock.NewLocalLocker(), ids, service.EngineConfig{
			OperationTimeout:   time.Second,
			MaxConflictRetries: 3,
		}, logger),
		service.NewHistoryService(store, 10, 100),
	)
	return SetupRouter(h, gin.TestMode, logger)
}

type envelope struct {
	Code      int             `json:"code"`
	Message   string          `json:"message"`
	Retryable bool            `json:"retryable"`
	Data      json.RawMessage `json:"data"`
}

func doRequest(t *testing.T, r http.Handler, method, path, userID string, body interface{}) (int, envelope) {
	t.Helper()

	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if userID != "" {
		req.Header.Set(HeaderUserID, userID)
	}

	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	var env envelope
	if w.Body.Len() > 0 {
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &env), w.Body.String())
	}
	return w.Code, env
}

func TestHealth(t *testing.T) {
	r := setupRouter(t)
	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestMissingIdentity(t *testing.T) {
	r := setupRouter(t)
	status, env := doRequest(t, r, http.MethodGet, "/api/v1/account/view", "", nil)
	assert.Equal(t, http.StatusUnauthorized, status)
	assert.Equal(t, response.CodeUnauthorized, env.Code)
}

func TestAccountAndTransactionFlow(t *testing.T) {
	r := setupRouter(t)

	status, env := doRequest(t, r, http.MethodPost, "/api/v1/account/create", "alice", gin.H{"account_type": "savings"})
	require.Equal(t, http.StatusCreated, status, env.Message)
	var alice struct {
		AccountNumber string `json:"account_number"`
	}
	require.NoError(t, json.Unmarshal(env.Data, &alice))

	status, env = doRequest(t, r, http.MethodPost, "/api/v1/account/create", "alice", gin.H{"account_type": "savings"})
	assert.Equal(t, http.StatusConflict, status)
	assert.Equal(t, response.CodeDuplicateAccount, env.Code)

	status, env = doRequest(t, r, http.MethodPost, "/api/v1/account/create", "bob", nil)
	require.Equal(t, http.StatusCreated, status, env.Message)
	var bob struct {
		AccountNumber string `json:"account_number"`
	}
	require.NoError(t, json.Unmarshal(env.Data, &bob))

	status, env = doRequest(t, r, http.MethodPost, "/api/v1/transaction/deposit", "alice", gin.H{"amount": "100.00", "description": "salary"})
	require.Equal(t, http.StatusOK, status, env.Message)

	status, env = doRequest(t, r, http.MethodPost, "/api/v1/transaction/withdraw", "alice", gin.H{"amount": 200})
	assert.Equal(t, http.StatusUnprocessableEntity, status)
	assert.Equal(t, response.CodeInsufficientFunds, env.Code)
	assert.False(t, env.Retryable)

	status, env = doRequest(t, r, http.MethodPost, "/api/v1/transaction/transfer", "alice",
		gin.H{"to_account_number": bob.AccountNumber, "amount": "30"})
	require.Equal(t, http.StatusOK, status, env.Message)

	status, env = doRequest(t, r, http.MethodPost, "/api/v1/transaction/transfer", "alice",
		gin.H{"to_account_number": alice.AccountNumber, "amount": "1"})
	assert.Equal(t, http.StatusBadRequest, status)
	assert.Equal(t, response.CodeSelfTransferNotAllowed, env.Code)

	status, env = doRequest(t, r, http.MethodPost, "/api/v1/transaction/transfer", "alice",
		gin.H{"to_account_number": "0000000000", "amount": "1"})
	assert.Equal(t, http.StatusNotFound, status)
	assert.Equal(t, response.CodeRecipientNotFound, env.Code)

	status, env = doRequest(t, r, http.MethodPost, "/api/v1/transaction/deposit", "alice", gin.H{"amount": "-1"})
	assert.Equal(t, http.StatusBadRequest, status)
	assert.Equal(t, response.CodeInvalidAmount, env.Code)

	status, env = doRequest(t, r, http.MethodGet, "/api/v1/account/balance", "alice", nil)
	require.Equal(t, http.StatusOK, status)
	var balance struct {
		Balance string `json:"balance"`
	}
	require.NoError(t, json.Unmarshal(env.Data, &balance))
	assert.Equal(t, "70", balance.Balance)

	status, env = doRequest(t, r, http.MethodGet, "/api/v1/transaction/transactions?limit=5", "alice", nil)
	require.Equal(t, http.StatusOK, status)
	var list struct {
		List []struct {
			Kind string `json:"transaction_type"`
		} `json:"list"`
		Count int `json:"count"`
	}
	require.NoError(t, json.Unmarshal(env.Data, &list))
	assert.Equal(t, 2, list.Count)
	assert.Equal(t, "transfer", list.List[0].Kind)

	status, env = doRequest(t, r, http.MethodGet, "/api/v1/transaction/transactions?transaction_type=refund", "alice", nil)
	assert.Equal(t, http.StatusBadRequest, status)
	assert.Equal(t, response.CodeInvalidRequest, env.Code)

	status, _ = doRequest(t, r, http.MethodGet, "/api/v1/transaction/transactions?skip=abc", "alice", nil)
	assert.Equal(t, http.StatusBadRequest, status)
}

func TestDeactivateBlocksTransactions(t *testing.T) {
	r := setupRouter(t)

	status, _ := doRequest(t, r, http.MethodPost, "/api/v1/account/create", "carol", nil)
	require.Equal(t, http.StatusCreated, status)

	status, _ = doRequest(t, r, http.MethodPost, "/api/v1/account/deactivate", "carol", nil)
	require.Equal(t, http.StatusOK, status)

	status, env := doRequest(t, r, http.MethodPost, "/api/v1/transaction/deposit", "carol", gin.H{"amount": "5"})
	assert.Equal(t, http.StatusForbidden, status)
	assert.Equal(t, response.CodeAccountInactive, env.Code)

	status, env = doRequest(t, r, http.MethodGet, "/api/v1/account/view", "dave", nil)
	assert.Equal(t, http.StatusNotFound, status)
	assert.Equal(t, response.CodeAccountNotFound, env.Code)
}
