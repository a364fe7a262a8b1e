package engine

import (
	"errors"

	"github.com/upmaker/jitgo/internal/domain"
)

// Verdict 一次撮合尝试失败后的处置
type Verdict uint8

const (
	// VerdictRetry 瞬时失败：市场条件下个 slot 可能变化，值得重试
	VerdictRetry Verdict = iota
	// VerdictDone 良性终止：拍卖已经结束（通常是别人成交了），静默退出
	VerdictDone
	// VerdictAbort 非预期失败：记录后退出，不再对该拍卖重试
	VerdictAbort
)

func (v Verdict) String() string {
	switch v {
	case VerdictRetry:
		return "retry"
	case VerdictDone:
		return "done"
	default:
		return "abort"
	}
}

// Classify 把一次撮合尝试的错误映射到处置决策。
//
// 未越界/无成交/预言机过期都是市场状态问题，下个 slot 价格会变，重试；
// 订单不存在说明拍卖已被别人吃掉，良性退出；
// 其余（含仓位越界、账户类错误）重试也不会好转，放弃。
func Classify(err error) Verdict {
	switch {
	case err == nil:
		return VerdictDone
	case errors.Is(err, domain.ErrBidNotCrossed),
		errors.Is(err, domain.ErrAskNotCrossed),
		errors.Is(err, domain.ErrNoFill),
		errors.Is(err, domain.ErrOracleStale),
		errors.Is(err, domain.ErrGatewayUnavailable):
		return VerdictRetry
	case errors.Is(err, domain.ErrTakerOrderNotFound),
		errors.Is(err, domain.ErrSignedOrderNotFound):
		return VerdictDone
	default:
		return VerdictAbort
	}
}
