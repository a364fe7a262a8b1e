package risk

import (
	"fmt"
	"sync/atomic"
	"time"
)

// ErrCircuitBreakerOpen 表示熔断器已打开，禁止接新拍卖。
var ErrCircuitBreakerOpen = fmt.Errorf("circuit breaker open")

// CircuitBreakerConfig 熔断配置。
// 约定：阈值 <= 0 表示关闭对应限制。
type CircuitBreakerConfig struct {
	// MaxConsecutiveAborts 拍卖任务连续异常终止上限
	MaxConsecutiveAborts int64

	// DailyLossLimit 当日最大亏损（QuotePrecision 缩放）。达到即熔断。
	DailyLossLimit int64
}

// CircuitBreaker 高频快路径使用原子变量，低频配置更新同样走原子字段。
//
// PnL 不是全链路闭环统计：由流水层在对账到成交结果时调用 AddPnL() 更新。
type CircuitBreaker struct {
	halted atomic.Bool

	consecutiveAborts atomic.Int64
	dailyPnl          atomic.Int64
	dayKey            atomic.Int64 // YYYYMMDD

	maxConsecutiveAborts atomic.Int64
	dailyLossLimit       atomic.Int64
}

func NewCircuitBreaker(cfg CircuitBreakerConfig) *CircuitBreaker {
	cb := &CircuitBreaker{}
	cb.SetConfig(cfg)
	return cb
}

func (cb *CircuitBreaker) SetConfig(cfg CircuitBreakerConfig) {
	if cb == nil {
		return
	}
	cb.maxConsecutiveAborts.Store(cfg.MaxConsecutiveAborts)
	cb.dailyLossLimit.Store(cfg.DailyLossLimit)
}

// Halt 手动熔断（人工介入或外部风控信号）。
func (cb *CircuitBreaker) Halt() {
	if cb == nil {
		return
	}
	cb.halted.Store(true)
}

// Resume 手动恢复（同时清空连续异常计数）。
func (cb *CircuitBreaker) Resume() {
	if cb == nil {
		return
	}
	cb.halted.Store(false)
	cb.consecutiveAborts.Store(0)
}

// AllowTrading 快路径检查是否允许接新拍卖。
func (cb *CircuitBreaker) AllowTrading() error {
	if cb == nil {
		return nil
	}

	if cb.halted.Load() {
		return ErrCircuitBreakerOpen
	}

	// 连续异常熔断
	maxAborts := cb.maxConsecutiveAborts.Load()
	if maxAborts > 0 && cb.consecutiveAborts.Load() >= maxAborts {
		cb.halted.Store(true)
		return ErrCircuitBreakerOpen
	}

	// 当日亏损熔断（若启用）
	limit := cb.dailyLossLimit.Load()
	if limit > 0 {
		cb.rollDayIfNeeded()
		if cb.dailyPnl.Load() <= -limit {
			cb.halted.Store(true)
			return ErrCircuitBreakerOpen
		}
	}

	return nil
}

// OnSuccess 一次拍卖成交后调用，清空连续异常计数。
func (cb *CircuitBreaker) OnSuccess() {
	if cb == nil {
		return
	}
	cb.consecutiveAborts.Store(0)
}

// OnAbort 一次拍卖任务异常终止后调用，累计连续异常计数。
func (cb *CircuitBreaker) OnAbort() {
	if cb == nil {
		return
	}
	cb.consecutiveAborts.Add(1)
}

// AddPnL 增量更新当日 PnL（QuotePrecision 缩放，负数为亏损）。
func (cb *CircuitBreaker) AddPnL(delta int64) {
	if cb == nil {
		return
	}
	cb.rollDayIfNeeded()
	cb.dailyPnl.Add(delta)
}

func (cb *CircuitBreaker) rollDayIfNeeded() {
	// YYYYMMDD（本地时间即可；风控用途不要求跨时区精确）
	now := time.Now()
	key := int64(now.Year()*10000 + int(now.Month())*100 + now.Day())
	prev := cb.dayKey.Load()
	if prev == key {
		return
	}
	// 切换成功者负责清零当日 PnL
	if cb.dayKey.CompareAndSwap(prev, key) {
		cb.dailyPnl.Store(0)
	}
}
