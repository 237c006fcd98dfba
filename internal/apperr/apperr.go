// Package apperr 定义了全局的错误分类，供各客户端与编排层统一使用。
// 分为三类：调用方错误（不重试）、致命配置错误（立即上抛、不重试）、
// 瞬时错误（由各客户端在自身内部做有界重试，耗尽后上抛）。
package apperr

import (
	"errors"
	"net/http"
)

var (
	// ErrInvalidInput 调用方错误：空消息、空文档等。
	ErrInvalidInput = errors.New("invalid input")

	// 致命配置错误。
	ErrProviderAuth       = errors.New("provider authentication failed")
	ErrDimensionMismatch  = errors.New("embedding dimension mismatch")
	ErrCollectionNotFound = errors.New("vector collection not found")

	// 瞬时错误（客户端层重试耗尽后仍为此类）。
	ErrProviderUnavailable = errors.New("provider unavailable")
	ErrRateLimit           = errors.New("provider rate limited")
	ErrConnection          = errors.New("vector store connection failed")
)

// Fatal 判断一个错误是否属于不可重试的致命配置错误。
func Fatal(err error) bool {
	return errors.Is(err, ErrProviderAuth) ||
		errors.Is(err, ErrDimensionMismatch) ||
		errors.Is(err, ErrCollectionNotFound)
}

// HTTPStatus 把分类错误映射为边界层使用的 HTTP 状态码。
func HTTPStatus(err error) int {
	switch {
	case err == nil:
		return http.StatusOK
	case errors.Is(err, ErrInvalidInput):
		return http.StatusBadRequest
	case errors.Is(err, ErrProviderAuth):
		return http.StatusUnauthorized
	case errors.Is(err, ErrRateLimit):
		return http.StatusTooManyRequests
	case errors.Is(err, ErrDimensionMismatch), errors.Is(err, ErrCollectionNotFound):
		return http.StatusInternalServerError
	case errors.Is(err, ErrProviderUnavailable), errors.Is(err, ErrConnection):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}
