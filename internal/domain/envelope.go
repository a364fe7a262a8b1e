package domain

// PriceKind 报价参考方式：字面价格或相对预言机的偏移
type PriceKind uint8

const (
	PriceLimit PriceKind = iota
	PriceOracle
)

func (p PriceKind) String() string {
	if p == PriceOracle {
		return "oracle"
	}
	return "limit"
}

// ParsePriceKind 解析报价参考方式字符串
func ParsePriceKind(s string) (PriceKind, bool) {
	switch s {
	case "", "limit":
		return PriceLimit, true
	case "oracle":
		return PriceOracle, true
	default:
		return 0, false
	}
}

// Envelope 单个市场的做市参数：净仓位上下界 + 买卖报价（或偏移）。
// 由运维侧写入，撮合任务并发只读。
type Envelope struct {
	// MaxPosition / MinPosition 净仓位包络（BasePrecision 缩放）。
	// 两者同时为 0 视为"未配置该市场"，直接拒绝。
	MaxPosition int64
	MinPosition int64

	// Bid / Ask 挂单方可接受的最差买/卖价（PricePrecision 缩放）。
	// PriceKind 为 oracle 时是相对预言机价格的偏移（可为负）。
	Bid int64
	Ask int64

	PriceKind PriceKind
	PostOnly  PostOnlyMode
}

// Configured 仓位包络是否已配置
func (e Envelope) Configured() bool {
	return e.MaxPosition != 0 || e.MinPosition != 0
}
