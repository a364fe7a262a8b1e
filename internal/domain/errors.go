package domain

import "errors"

// 撮合/套利的封闭错误集合，与链上程序的错误码一一对应。
// 网关把程序错误码解码成这些哨兵错误，重试分类据此判断。
var (
	ErrBidNotCrossed         = errors.New("BidNotCrossed")
	ErrAskNotCrossed         = errors.New("AskNotCrossed")
	ErrTakerOrderNotFound    = errors.New("TakerOrderNotFound")
	ErrOrderSizeBreached     = errors.New("OrderSizeBreached")
	ErrNoBestBid             = errors.New("NoBestBid")
	ErrNoBestAsk             = errors.New("NoBestAsk")
	ErrNoArbOpportunity      = errors.New("NoArbOpportunity")
	ErrUnprofitableArb       = errors.New("UnprofitableArb")
	ErrPositionLimitBreached = errors.New("PositionLimitBreached")
	ErrNoFill                = errors.New("NoFill")
	ErrSignedOrderNotFound   = errors.New("SignedMsgOrderDoesNotExist")

	// ErrOracleStale 预言机价格无效/过期（交易所侧错误，可重试）
	ErrOracleStale = errors.New("OracleStale")

	// ErrEnvelopeNotSet 仓位包络未配置（调度器正常情况下会提前过滤）
	ErrEnvelopeNotSet = errors.New("envelope not configured")

	// ErrGatewayUnavailable 网关不可达或响应不可解析（基础设施故障，按瞬时错误处理）
	ErrGatewayUnavailable = errors.New("gateway unavailable")
)

// ErrorCodeOf 返回哨兵错误对应的线上错误码字符串；非封闭集合错误返回空串
func ErrorCodeOf(err error) string {
	for code, sentinel := range wireCodes {
		if errors.Is(err, sentinel) {
			return code
		}
	}
	return ""
}

// ErrorFromCode 把网关返回的错误码解码为哨兵错误；未识别的码返回 nil
func ErrorFromCode(code string) error {
	if err, ok := wireCodes[code]; ok {
		return err
	}
	return nil
}

var wireCodes = map[string]error{
	"BidNotCrossed":              ErrBidNotCrossed,
	"AskNotCrossed":              ErrAskNotCrossed,
	"TakerOrderNotFound":         ErrTakerOrderNotFound,
	"OrderSizeBreached":          ErrOrderSizeBreached,
	"NoBestBid":                  ErrNoBestBid,
	"NoBestAsk":                  ErrNoBestAsk,
	"NoArbOpportunity":           ErrNoArbOpportunity,
	"UnprofitableArb":            ErrUnprofitableArb,
	"PositionLimitBreached":      ErrPositionLimitBreached,
	"NoFill":                     ErrNoFill,
	"SignedMsgOrderDoesNotExist": ErrSignedOrderNotFound,
	"OracleStale":                ErrOracleStale,
}
