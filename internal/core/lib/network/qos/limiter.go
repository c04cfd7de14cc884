package qos

import (
	"context"

	"golang.org/x/time/rate"
)

// RateLimiter 探测速率限制器
// 对 x/time/rate 的薄封装，perSecond <= 0 表示不限速
type RateLimiter struct {
	limiter *rate.Limiter
}

// NewRateLimiter 创建限速器，突发上限为 1，探测包均匀发出
func NewRateLimiter(perSecond float64) *RateLimiter {
	if perSecond <= 0 {
		return &RateLimiter{}
	}
	return &RateLimiter{limiter: rate.NewLimiter(rate.Limit(perSecond), 1)}
}

// Wait 阻塞直到可以发出下一次探测或 ctx 取消
func (l *RateLimiter) Wait(ctx context.Context) error {
	if l == nil || l.limiter == nil {
		return ctx.Err()
	}
	return l.limiter.Wait(ctx)
}

// Unlimited 是否不限速
func (l *RateLimiter) Unlimited() bool {
	return l == nil || l.limiter == nil
}
