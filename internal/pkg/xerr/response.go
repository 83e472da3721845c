package xerr

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
)

// Response 是通用 JSON 响应结构
type Response struct {
	Code    int    `json:"code"`    // 业务状态码
	Message string `json:"message"` // 消息
	Data    any    `json:"data"`    // 响应数据
}

// JSONResponse 发送标准 JSON 响应
func JSONResponse(c *gin.Context, httpStatus int, code int, message string, data any) {
	c.JSON(httpStatus, Response{
		Code:    code,
		Message: message,
		Data:    data,
	})
}

// Success 成功响应
func Success(c *gin.Context, httpStatus int, message string, data any) {
	JSONResponse(c, httpStatus, SuccessCode, message, data)
}

// Error 错误响应
func Error(c *gin.Context, httpStatus int, code int, message string) {
	JSONResponse(c, httpStatus, code, message, nil)
}

// AbortWithError 终止请求并发送错误响应
func AbortWithError(c *gin.Context, httpStatus int, code int, message string) {
	Error(c, httpStatus, code, message)
	c.Abort() // 终止后续的 HandlerFunc
}

// mapping 把业务哨兵错误映射到 HTTP 状态码与业务码
// 注意：ErrShareRevoked 对外与 ErrShareNotFound 返回完全相同的载荷，
// 避免通过响应差异泄露某个 token 是否存在过
var mapping = []struct {
	sentinel   error
	httpStatus int
	code       int
}{
	{ErrInvalidParams, http.StatusBadRequest, InvalidParamsCode},
	{ErrValidation, http.StatusBadRequest, ValidationFailedCode},
	{ErrFileTooLarge, http.StatusRequestEntityTooLarge, FileTooLargeCode},
	{ErrUnsupportedType, http.StatusUnsupportedMediaType, UnsupportedTypeCode},
	{ErrChecksumMalformed, http.StatusBadRequest, ChecksumMalformedCode},
	{ErrFolderNameInvalid, http.StatusBadRequest, FolderNameInvalidCode},
	{ErrCommentTooDeep, http.StatusBadRequest, CommentTooDeepCode},
	{ErrUnauthorized, http.StatusUnauthorized, UnauthorizedCode},
	{ErrTokenInvalid, http.StatusUnauthorized, TokenInvalidCode},
	{ErrPermissionDenied, http.StatusForbidden, PermissionDeniedCode},
	{ErrSharePasswordRequired, http.StatusForbidden, SharePasswordRequiredCode},
	{ErrSharePasswordIncorrect, http.StatusForbidden, SharePasswordIncorrectCode},
	{ErrContentBlocked, http.StatusForbidden, ContentBlockedCode},
	{ErrTooManyAttempts, http.StatusTooManyRequests, TooManyAttemptsCode},
	{ErrShareExpired, http.StatusGone, ShareExpiredCode},
	{ErrDownloadLimitReached, http.StatusGone, DownloadLimitReachedCode},
	{ErrFolderNotFound, http.StatusNotFound, FolderNotFoundCode},
	{ErrDocumentNotFound, http.StatusNotFound, DocumentNotFoundCode},
	{ErrCommentNotFound, http.StatusNotFound, CommentNotFoundCode},
	{ErrUploadSessionGone, http.StatusNotFound, UploadSessionGoneCode},
	{ErrNotFound, http.StatusNotFound, NotFoundCode},
	{ErrDuplicateName, http.StatusConflict, DuplicateNameCode},
	{ErrFolderNotEmpty, http.StatusConflict, FolderNotEmptyCode},
	{ErrInvalidParent, http.StatusConflict, InvalidParentCode},
	{ErrIntegrityMismatch, http.StatusConflict, IntegrityMismatchCode},
	{ErrConflict, http.StatusConflict, ConflictCode},
	{ErrStorageUnavailable, http.StatusBadGateway, StorageErrorCode},
	{ErrMQ, http.StatusInternalServerError, MQErrorCode},
	{ErrSearch, http.StatusInternalServerError, SearchErrorCode},
	{ErrDatabase, http.StatusInternalServerError, DatabaseErrorCode},
}

// FromError 把服务层返回的错误翻译成 HTTP 响应
func FromError(c *gin.Context, err error) {
	// 撤销与不存在对外同形
	if errors.Is(err, ErrShareRevoked) || errors.Is(err, ErrShareNotFound) {
		Error(c, http.StatusNotFound, ShareNotFoundCode, ErrShareNotFound.Error())
		return
	}
	for _, m := range mapping {
		if errors.Is(err, m.sentinel) {
			Error(c, m.httpStatus, m.code, m.sentinel.Error())
			return
		}
	}
	Error(c, http.StatusInternalServerError, InternalServerErrorCode, ErrInternalServer.Error())
}
