// Package ports 定义撮合核心与基础设施之间的接口边界。
// 引擎只依赖这里的接口，网关/行情源在 infrastructure 层实现。
package ports

import (
	"context"

	"github.com/upmaker/jitgo/internal/domain"
)

// StateProvider 交易所状态读取接口。
// 所有读取都是即时快照：引擎每次撮合尝试前重新读取，从不跨尝试缓存。
type StateProvider interface {
	// GetOraclePrice 市场当前预言机价格
	GetOraclePrice(ctx context.Context, market domain.MarketID) (domain.OracleSnapshot, error)

	// GetPosition 指定市场的当前净仓位（BasePrecision 缩放，含待结算调整）
	GetPosition(ctx context.Context, market domain.MarketID) (int64, error)

	// GetMarketMeta 市场微观结构常量
	GetMarketMeta(ctx context.Context, market domain.MarketID) (domain.MarketMeta, error)

	// GetOrder 重新读取吃单快照；订单已不存在时返回 domain.ErrTakerOrderNotFound
	GetOrder(ctx context.Context, taker string, orderID uint32) (*domain.TakerOrder, error)

	// GetReferrer 吃单方的推荐人元数据（无推荐人时返回零值）
	GetReferrer(ctx context.Context, taker string) (domain.Referral, error)

	// GetTopOfBook 永续市场的连续盘口一档
	GetTopOfBook(ctx context.Context, market domain.MarketID) (bid, ask domain.Level, err error)

	// GetPerpBalances 永续市场的基础/报价余额，用于套利前后校验
	GetPerpBalances(ctx context.Context, market domain.MarketID) (base int64, quote int64, err error)

	// GetCollateral 可用保证金（QuotePrecision 缩放）
	GetCollateral(ctx context.Context) (uint64, error)
}

// TxOutcome 一次提交的结果。Signature 为空表示该次尝试未被接纳
// （如网络抖动被吞），调用方消耗一次尝试预算后继续。
type TxOutcome struct {
	Signature string
}

// TradeExecutor 订单提交接口。
// 提交是同步语义：返回 nil 错误且签名非空表示撮合指令已被接纳。
type TradeExecutor interface {
	// SubmitCounterOrder 提交对手单去成交指定吃单
	SubmitCounterOrder(ctx context.Context, order *domain.TakerOrder, counter domain.CounterOrder, ref domain.Referral) (TxOutcome, error)

	// SubmitFastlaneCounterOrder 提交对手单去成交快车道预签名订单
	SubmitFastlaneCounterOrder(ctx context.Context, signed *domain.SignedOrder, counter domain.CounterOrder, ref domain.Referral) (TxOutcome, error)

	// SubmitArbPair 原子提交一对反向 IOC 腿吃掉交叉盘口
	SubmitArbPair(ctx context.Context, market domain.MarketID, legs [2]domain.CounterOrder) (TxOutcome, error)
}

// SlotClock 链上 slot 时钟
type SlotClock interface {
	// CurrentSlot 最近观察到的 slot
	CurrentSlot() uint64

	// WaitForSlot 阻塞到指定 slot 到达或 ctx 取消
	WaitForSlot(ctx context.Context, slot uint64) error
}

// AccountUpdate 账户流推送的一次吃单事件
type AccountUpdate struct {
	Order *domain.TakerOrder
	Slot  uint64
}

// AccountFeed 吃单事件源（订单账户流）
type AccountFeed interface {
	// Updates 吃单事件通道；源关闭时通道关闭
	Updates() <-chan AccountUpdate
}

// FastlaneFeed 快车道预签名订单事件源
type FastlaneFeed interface {
	SignedOrders() <-chan *domain.SignedOrder
}
