package domain

import "fmt"

// Side 订单方向（从吃单方视角：long 买入，short 卖出）
type Side uint8

const (
	SideLong Side = iota
	SideShort
)

func (s Side) String() string {
	if s == SideLong {
		return "long"
	}
	return "short"
}

// Opposite 返回对手方向
func (s Side) Opposite() Side {
	if s == SideLong {
		return SideShort
	}
	return SideLong
}

// OrderKind 订单定价方式
type OrderKind uint8

const (
	// OrderLimit 普通限价单（可带拍卖窗口）
	OrderLimit OrderKind = iota
	// OrderOracleOffset 预言机偏移单（拍卖起止价为相对预言机的偏移）
	OrderOracleOffset
	// OrderMarket 市价单（只有拍卖窗口价格）
	OrderMarket
)

// OrderStatus 订单状态
type OrderStatus uint8

const (
	OrderStatusOpen OrderStatus = iota
	OrderStatusFilled
	OrderStatusCanceled
)

// TakerOrder 观察到的吃单快照（不可变；同一订单的后续快照整体替换）
type TakerOrder struct {
	Taker   string // 吃单账户地址
	OrderID uint32
	Market  MarketID
	Side    Side
	Kind    OrderKind
	Status  OrderStatus

	// 拍卖窗口：从 Slot 起持续 AuctionDuration 个 slot，
	// 价格在起止价之间线性插值。
	// 预言机偏移单的起止价是相对预言机的偏移（可为负）。
	Slot              uint64
	AuctionDuration   uint8
	AuctionStartPrice int64
	AuctionEndPrice   int64

	// 限价单的显式限价（0 表示无）；预言机偏移单的偏移量
	Price        uint64
	OracleOffset int32

	BaseAmount       uint64
	BaseAmountFilled uint64
}

// Remaining 未成交数量
func (o *TakerOrder) Remaining() uint64 {
	if o.BaseAmountFilled >= o.BaseAmount {
		return 0
	}
	return o.BaseAmount - o.BaseAmountFilled
}

// AuctionEndSlot 拍卖窗口的结束 slot（含）
func (o *TakerOrder) AuctionEndSlot() uint64 {
	return o.Slot + uint64(o.AuctionDuration)
}

// HasAuction 是否带有效拍卖窗口
func (o *TakerOrder) HasAuction() bool {
	return o.AuctionDuration > 0
}

// AuctionKey 唯一标识一次拍卖（吃单账户 + 订单号）
type AuctionKey string

// NewAuctionKey 生成拍卖标识，格式与订单签名一致："taker-orderID"
func NewAuctionKey(taker string, orderID uint32) AuctionKey {
	return AuctionKey(fmt.Sprintf("%s-%d", taker, orderID))
}

// FastlaneAuctionKey 快车道订单的拍卖标识（订单号为 uuid 字符串）
func FastlaneAuctionKey(taker, orderUUID string) AuctionKey {
	return AuctionKey(fmt.Sprintf("%s-%s", taker, orderUUID))
}

// PostOnlyMode 挂单方 post-only 语义
type PostOnlyMode uint8

const (
	// PostOnlyNone 不要求 post-only
	PostOnlyNone PostOnlyMode = iota
	// PostOnlyMust 无法 post-only 时整笔失败
	PostOnlyMust
	// PostOnlyTry 无法 post-only 时放弃该单但不报错
	PostOnlyTry
	// PostOnlySlide 无法 post-only 时自动滑动价格
	PostOnlySlide
)

func (p PostOnlyMode) String() string {
	switch p {
	case PostOnlyMust:
		return "must"
	case PostOnlyTry:
		return "try"
	case PostOnlySlide:
		return "slide"
	default:
		return "none"
	}
}

// ParsePostOnlyMode 解析 post-only 模式字符串
func ParsePostOnlyMode(s string) (PostOnlyMode, bool) {
	switch s {
	case "", "none":
		return PostOnlyNone, true
	case "must":
		return PostOnlyMust, true
	case "try":
		return PostOnlyTry, true
	case "slide":
		return PostOnlySlide, true
	default:
		return 0, false
	}
}

// CounterOrder 反向对手单提案
// 每次尝试重新计算，立即提交，不复用
type CounterOrder struct {
	Market     MarketID
	Side       Side
	Price      uint64
	BaseAmount uint64
	PostOnly   PostOnlyMode
	ReduceOnly bool
}

// Referral 吃单方的推荐人元数据（对撮合核心不透明，提交时原样附带）
type Referral struct {
	Referrer      string
	ReferrerStats string
}

// SignedOrder 快车道预签名订单：不经过链上拍卖账户，
// 自带拍卖窗口，订单号为 uuid
type SignedOrder struct {
	UUID           string
	TakerAuthority string
	Taker          string
	Order          TakerOrder
}
