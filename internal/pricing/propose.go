package pricing

import (
	"fmt"

	"github.com/upmaker/jitgo/internal/domain"
	"github.com/upmaker/jitgo/pkg/safemath"
)

// Input 一次对手单定价所需的全部输入。
// 预言机价格与现有仓位由调用方每次尝试前从状态提供方重新读取。
type Input struct {
	Order    *domain.TakerOrder
	Slot     uint64
	Oracle   domain.OracleSnapshot
	Meta     domain.MarketMeta
	Envelope domain.Envelope

	// ExistingPosition 挂单方当前净仓位（已折算待结算的 LP/收益调整）
	ExistingPosition int64

	// BestBid / BestAsk 连续参考价（AMM 盘口），仅永续市场提供，
	// 用于吃单无法解析出价格时的回退路径
	BestBid uint64
	BestAsk uint64
}

// WorstPrice 根据仓位包络计算挂单方可接受的最差价格。
// 吃单买入时我方卖出，用 Ask 界；吃单卖出时我方买入，用 Bid 界。
// oracle 模式下界是相对预言机的偏移。
func WorstPrice(env domain.Envelope, oraclePrice int64, takerSide domain.Side) (uint64, error) {
	var bound int64
	if takerSide == domain.SideLong {
		bound = env.Ask
	} else {
		bound = env.Bid
	}

	if env.PriceKind == domain.PriceOracle {
		p, err := safemath.AddI64(oraclePrice, bound)
		if err != nil {
			return 0, err
		}
		return safemath.AbsI64(p), nil
	}
	return safemath.AbsI64(bound), nil
}

// Propose 对一个吃单快照计算对手单（价格、数量、方向），或给出确定性拒绝。
//
// 拒绝是常态而非异常：未越过包络界返回 ErrBidNotCrossed/ErrAskNotCrossed，
// 仓位无余量返回 ErrPositionLimitBreached。所有算术溢出 fail closed。
func Propose(in Input) (domain.CounterOrder, error) {
	var zero domain.CounterOrder

	if !in.Envelope.Configured() {
		return zero, domain.ErrEnvelopeNotSet
	}

	// 1. 吃单有效限价；解析不出价格时永续市场回退到 AMM 盘口
	takerPrice, ok, err := LimitPrice(in.Order, in.Slot, in.Oracle.Price, in.Meta.TickSize)
	if err != nil {
		return zero, err
	}
	if !ok {
		if in.Order.Market.Kind != domain.MarketPerp {
			// 现货订单必然携带价格，否则视为订单不存在
			return zero, domain.ErrTakerOrderNotFound
		}
		if in.Order.Side == domain.SideLong {
			if in.BestAsk == 0 {
				return zero, domain.ErrNoBestAsk
			}
			takerPrice = in.BestAsk
		} else {
			if in.BestBid == 0 {
				return zero, domain.ErrNoBestBid
			}
			takerPrice = in.BestBid
		}
	}

	// 2. 我方方向 = 吃单方向的对手方
	makerSide := in.Order.Side.Opposite()

	// 3. 包络给出的最差可接受价
	worst, err := WorstPrice(in.Envelope, in.Oracle.Price, in.Order.Side)
	if err != nil {
		return zero, err
	}

	// 4. 越界检查，硬前置条件
	if makerSide == domain.SideLong {
		if takerPrice > worst {
			return zero, fmt.Errorf("taker price %d > worst bid %d: %w", takerPrice, worst, domain.ErrBidNotCrossed)
		}
	} else {
		if takerPrice < worst {
			return zero, fmt.Errorf("taker price %d < worst ask %d: %w", takerPrice, worst, domain.ErrAskNotCrossed)
		}
	}

	// 5. 成交优先：直接按吃单价格报价，不试图改善
	makerPrice := takerPrice

	// 6-8. 仓位余量定量
	remaining := in.Order.Remaining()
	if remaining < in.Meta.MinOrderSize {
		remaining = in.Meta.MinOrderSize
	}
	size, err := positionLimitedSize(in.Envelope, makerSide, remaining, in.ExistingPosition, in.Meta.MinOrderSize)
	if err != nil {
		return zero, err
	}

	return domain.CounterOrder{
		Market:     in.Order.Market,
		Side:       makerSide,
		Price:      makerPrice,
		BaseAmount: size,
		PostOnly:   in.Envelope.PostOnly,
		ReduceOnly: false,
	}, nil
}

// positionLimitedSize 按仓位包络裁剪下单量。
// 方向相关：我方买入看 MaxPosition 余量，我方卖出看 MinPosition 余量。
// 已越界但本单是反向减仓时，余量公式天然给出大数，允许全量减仓。
func positionLimitedSize(env domain.Envelope, makerSide domain.Side, takerRemaining uint64, existing int64, minOrderSize uint64) (uint64, error) {
	minSize, err := safemath.U64ToI64(minOrderSize)
	if err != nil {
		return 0, err
	}

	var headroom int64
	if makerSide == domain.SideLong {
		headroom, err = safemath.SubI64(env.MaxPosition, existing)
	} else {
		headroom, err = safemath.SubI64(existing, env.MinPosition)
	}
	if err != nil {
		return 0, err
	}

	// 余量恰好等于最小下单量也拒绝，保证提案数量严格为正
	if headroom <= minSize {
		return 0, fmt.Errorf("existing position %d, headroom %d <= min order size %d: %w",
			existing, headroom, minSize, domain.ErrPositionLimitBreached)
	}

	size := safemath.AbsI64(headroom)
	if takerRemaining < size {
		size = takerRemaining
	}
	return size, nil
}
