package domain

import "fmt"

// 链上交易所的定点数约定：
// 价格以 PricePrecision 缩放（1e6），仓位/下单量以 BasePrecision 缩放（1e9），
// 保证金率以 MarginPrecision 缩放（1e4），报价资产以 QuotePrecision 缩放（1e6）。
const (
	PricePrecision  int64  = 1_000_000
	BasePrecision   int64  = 1_000_000_000
	MarginPrecision int64  = 10_000
	QuotePrecision  uint64 = 1_000_000
)

// MarketKind 市场类型：永续合约或现货
type MarketKind uint8

const (
	MarketPerp MarketKind = iota
	MarketSpot
)

func (k MarketKind) String() string {
	switch k {
	case MarketPerp:
		return "perp"
	case MarketSpot:
		return "spot"
	default:
		return "unknown"
	}
}

// ParseMarketKind 解析市场类型字符串
func ParseMarketKind(s string) (MarketKind, bool) {
	switch s {
	case "perp":
		return MarketPerp, true
	case "spot":
		return MarketSpot, true
	default:
		return 0, false
	}
}

// MarketID 市场标识（类型 + 序号）
type MarketID struct {
	Kind  MarketKind
	Index uint16
}

func (m MarketID) String() string {
	return fmt.Sprintf("%s-%d", m.Kind, m.Index)
}

// MarketMeta 市场微观结构常量（tick、最小下单量、初始保证金率）
type MarketMeta struct {
	TickSize        uint64
	MinOrderSize    uint64
	InitMarginRatio uint32 // MarginPrecision 缩放
}

// OracleSnapshot 预言机价格快照
// 每次撮合尝试前重新读取，不跨尝试缓存
type OracleSnapshot struct {
	Price      int64
	Slot       uint64
	Confidence uint64
}

// Level 盘口一档（价格 + 挂单量）
type Level struct {
	Price uint64
	Base  uint64
}
