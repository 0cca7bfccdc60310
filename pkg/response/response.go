package response

import (
	"net/http"

	"ledger/internal/model"

	"github.com/gin-gonic/gin"
)

const (
	CodeSuccess       = 0
	CodeParamError    = 400
	CodeUnauthorized  = 401
	CodeForbidden     = 403
	CodeNotFound      = 404
	CodeServerError   = 500
	CodeBusinessError = 1000
)

// 业务错误码，与 model.ErrorKind 一一对应
const (
	CodeAccountNotFound        = 1001
	CodeDuplicateAccount       = 1002
	CodeRecipientNotFound      = 1003
	CodeSelfTransferNotAllowed = 1004
	CodeInvalidAmount          = 1005
	CodeInvalidRequest         = 1006
	CodeInsufficientFunds      = 1007
	CodeAccountInactive        = 1008
	CodeConflict               = 1009
	CodeStorageUnavailable     = 1010
)

type Response struct {
	Code      int         `json:"code"`
	Message   string      `json:"message"`
	Retryable bool        `json:"retryable,omitempty"`
	Data      interface{} `json:"data,omitempty"`
}

type mapping struct {
	status int
	code   int
}

var kindMappings = map[model.ErrorKind]mapping{
	model.KindAccountNotFound:        {http.StatusNotFound, CodeAccountNotFound},
	model.KindDuplicateAccount:       {http.StatusConflict, CodeDuplicateAccount},
	model.KindRecipientNotFound:      {http.StatusNotFound, CodeRecipientNotFound},
	model.KindSelfTransferNotAllowed: {http.StatusBadRequest, CodeSelfTransferNotAllowed},
	model.KindInvalidAmount:          {http.StatusBadRequest, CodeInvalidAmount},
	model.KindInvalidRequest:         {http.StatusBadRequest, CodeInvalidRequest},
	model.KindInsufficientFunds:      {http.StatusUnprocessableEntity, CodeInsufficientFunds},
	model.KindAccountInactive:        {http.StatusForbidden, CodeAccountInactive},
	model.KindConflict:               {http.StatusConflict, CodeConflict},
	model.KindStorageUnavailable:     {http.StatusServiceUnavailable, CodeStorageUnavailable},
}

func Success(c *gin.Context, data interface{}) {
	c.JSON(http.StatusOK, Response{
		Code:    CodeSuccess,
		Message: "success",
		Data:    data,
	})
}

func Created(c *gin.Context, data interface{}) {
	c.JSON(http.StatusCreated, Response{
		Code:    CodeSuccess,
		Message: "success",
		Data:    data,
	})
}

func Error(c *gin.Context, status, code int, message string) {
	c.AbortWithStatusJSON(status, Response{
		Code:    code,
		Message: message,
	})
}

func ParamError(c *gin.Context, message string) {
	Error(c, http.StatusBadRequest, CodeParamError, message)
}

func Unauthorized(c *gin.Context, message string) {
	Error(c, http.StatusUnauthorized, CodeUnauthorized, message)
}

func ServerError(c *gin.Context, message string) {
	Error(c, http.StatusInternalServerError, CodeServerError, message)
}

// Fail 按错误分类输出响应；非业务错误按 500 处理，不向外暴露内部信息
func Fail(c *gin.Context, err error) {
	kind := model.KindOf(err)
	m, ok := kindMappings[kind]
	if !ok {
		ServerError(c, "服务器内部错误")
		return
	}

	message := err.Error()
	if kind == model.KindStorageUnavailable {
		message = "storage unavailable, please retry"
	}
	c.AbortWithStatusJSON(m.status, Response{
		Code:      m.code,
		Message:   message,
		Retryable: model.IsRetryable(err),
	})
}

// StatusOf 错误对应的 HTTP 状态码
func StatusOf(err error) int {
	if m, ok := kindMappings[model.KindOf(err)]; ok {
		return m.status
	}
	return http.StatusInternalServerError
}
