// Package httpretry 为出站 HTTP 请求提供有界指数退避重试。
// 401/403 视为认证失败立即终止；429 与 5xx、网络错误视为瞬时错误重试；
// 重试预算耗尽后按最后一次失败的类型上抛分类错误。
package httpretry

import (
	"fmt"
	"io"
	"math/rand"
	"net/http"
	"time"

	"context"

	"ragchat-go/internal/apperr"
	"ragchat-go/pkg/log"
)

// Policy 定义重试预算与退避基准。
type Policy struct {
	MaxAttempts int           // 总尝试次数（含首次），<=0 时取默认值 3
	BaseBackoff time.Duration // 首次重试前的退避基准，<=0 时取默认值 500ms
}

// DefaultPolicy 返回默认重试策略。
func DefaultPolicy() Policy {
	return Policy{MaxAttempts: 3, BaseBackoff: 500 * time.Millisecond}
}

func (p Policy) normalize() Policy {
	if p.MaxAttempts <= 0 {
		p.MaxAttempts = 3
	}
	if p.BaseBackoff <= 0 {
		p.BaseBackoff = 500 * time.Millisecond
	}
	return p
}

// Do 以给定策略执行请求。buildReq 每次尝试都会被调用以构造新的请求，
// 保证请求体可以被重复读取。成功（2xx）时返回响应，由调用方负责关闭 Body。
func Do(ctx context.Context, client *http.Client, p Policy, buildReq func() (*http.Request, error)) (*http.Response, error) {
	p = p.normalize()
	var lastErr error

	for attempt := 1; attempt <= p.MaxAttempts; attempt++ {
		if attempt > 1 {
			// 指数退避加抖动，避免雪崩式重试
			backoff := p.BaseBackoff << (attempt - 2)
			backoff += time.Duration(rand.Int63n(int64(backoff/2) + 1))
			log.Warnf("[httpretry] 第 %d 次重试, 退避 %v", attempt-1, backoff)
			select {
			case <-ctx.Done():
				// 调用方取消不算服务方故障，同时保留最后一次失败的分类
				return nil, fmt.Errorf("%w: %w", ctx.Err(), lastErr)
			case <-time.After(backoff):
			}
		}

		req, err := buildReq()
		if err != nil {
			return nil, fmt.Errorf("build request: %w", err)
		}
		req = req.WithContext(ctx)

		resp, err := client.Do(req)
		if err != nil {
			// 网络/超时错误：瞬时，可重试
			lastErr = fmt.Errorf("%w: %v", apperr.ErrProviderUnavailable, err)
			continue
		}

		switch {
		case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
			// 凭证错误：致命，不重试
			body, _ := io.ReadAll(resp.Body)
			resp.Body.Close()
			return nil, fmt.Errorf("%w: status %d: %s", apperr.ErrProviderAuth, resp.StatusCode, string(body))
		case resp.StatusCode == http.StatusTooManyRequests:
			body, _ := io.ReadAll(resp.Body)
			resp.Body.Close()
			lastErr = fmt.Errorf("%w: %s", apperr.ErrRateLimit, string(body))
			continue
		case resp.StatusCode >= 500:
			body, _ := io.ReadAll(resp.Body)
			resp.Body.Close()
			lastErr = fmt.Errorf("%w: status %d: %s", apperr.ErrProviderUnavailable, resp.StatusCode, string(body))
			continue
		}

		return resp, nil
	}

	return nil, fmt.Errorf("retry budget exhausted after %d attempts: %w", p.MaxAttempts, lastErr)
}
