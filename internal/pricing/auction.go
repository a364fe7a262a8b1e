package pricing

import (
	"fmt"

	"github.com/upmaker/jitgo/internal/domain"
	"github.com/upmaker/jitgo/pkg/safemath"
)

// AuctionPrice 计算订单在指定 slot 的拍卖价格：
// 在拍卖窗口内从起始价到结束价按 slot 线性插值，窗口外钳制到端点。
// 预言机偏移单的起止价是偏移量，插值后叠加预言机价格。
func AuctionPrice(o *domain.TakerOrder, slot uint64, oraclePrice int64) (uint64, error) {
	if !o.HasAuction() {
		return 0, fmt.Errorf("order %d has no auction window", o.OrderID)
	}

	var elapsed uint64
	if slot > o.Slot {
		elapsed = slot - o.Slot
	}
	duration := uint64(o.AuctionDuration)
	if elapsed > duration {
		elapsed = duration
	}

	delta, err := safemath.SubI64(o.AuctionEndPrice, o.AuctionStartPrice)
	if err != nil {
		return 0, err
	}
	num, err := safemath.MulI64(delta, int64(elapsed))
	if err != nil {
		return 0, err
	}
	step, err := safemath.DivI64(num, int64(duration))
	if err != nil {
		return 0, err
	}
	price, err := safemath.AddI64(o.AuctionStartPrice, step)
	if err != nil {
		return 0, err
	}

	if o.Kind == domain.OrderOracleOffset {
		// 起止价是相对预言机的偏移
		price, err = safemath.AddI64(oraclePrice, price)
		if err != nil {
			return 0, err
		}
	}

	if price <= 0 {
		return 0, fmt.Errorf("auction price %d not positive for order %d", price, o.OrderID)
	}
	return uint64(price), nil
}

// RoundToTick 按 tick 取整。方向由吃单方向决定：
// 买方向下取整、卖方向上取整，避免给出无法成交的价格。
func RoundToTick(price, tick uint64, takerSide domain.Side) (uint64, error) {
	if tick == 0 {
		return price, nil
	}
	rem := price % tick
	if rem == 0 {
		return price, nil
	}
	if takerSide == domain.SideLong {
		return price - rem, nil
	}
	return safemath.AddU64(price-rem, tick)
}

// LimitPrice 解析吃单的有效限价：
// 拍卖窗口存活期间用拍卖插值价；之后用显式限价或预言机偏移价。
// 按 tick 取整后返回。订单不携带任何可解析价格时返回 ok=false。
func LimitPrice(o *domain.TakerOrder, slot uint64, oraclePrice int64, tick uint64) (uint64, bool, error) {
	var price uint64

	switch {
	case o.HasAuction() && slot <= o.AuctionEndSlot():
		p, err := AuctionPrice(o, slot, oraclePrice)
		if err != nil {
			return 0, false, err
		}
		price = p
	case o.OracleOffset != 0:
		p, err := safemath.AddI64(oraclePrice, int64(o.OracleOffset))
		if err != nil {
			return 0, false, err
		}
		if p <= 0 {
			return 0, false, fmt.Errorf("oracle offset price %d not positive", p)
		}
		price = uint64(p)
	case o.Price > 0:
		price = o.Price
	default:
		return 0, false, nil
	}

	rounded, err := RoundToTick(price, tick, o.Side)
	if err != nil {
		return 0, false, err
	}
	return rounded, true, nil
}
