package handler

import (
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// SetupRouter 配置路由
func SetupRouter(h *Handler, mode string, logger *zap.Logger) *gin.Engine {
	if mode != "" {
		gin.SetMode(mode)
	}

	r := gin.New()

	// 注册中间件
	r.Use(RecoveryMiddleware(logger))
	r.Use(LoggerMiddleware(logger))
	r.Use(CORSMiddleware())

	// API 路由组
	api := r.Group("/api/v1", IdentityMiddleware())
	{
		// 账户相关
		account := api.Group("/account")
		{
			account.POST("/create", h.CreateAccount)
			account.GET("/view", h.ViewAccount)
			account.GET("/balance", h.GetBalance)
			account.POST("/deactivate", h.DeactivateAccount)
		}

		// 交易相关
		transaction := api.Group("/transaction")
		{
			transaction.POST("/deposit", h.Deposit)
			transaction.POST("/withdraw", h.Withdraw)
			transaction.POST("/transfer", h.Transfer)
			transaction.GET("/transactions", h.ListTransactions)
		}
	}

	// 健康检查
	r.GET("/health", func(c *gin.Context) {
		c.JSON(200, gin.H{"status": "ok"})
	})

	return r
}
