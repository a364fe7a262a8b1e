package risk

import (
	"fmt"

	"github.com/upmaker/jitgo/internal/domain"
	"github.com/upmaker/jitgo/pkg/safemath"
)

// Constraint 单个市场的仓位约束：净仓位加上未成交挂单后不得越过上下界。
// 做市期间周期性对账，越界说明包络配置和实际仓位已经脱节。
type Constraint struct {
	Market      domain.MarketID
	MaxPosition int64
	MinPosition int64
}

// Check 校验当前仓位与未成交挂单的最坏情况敞口。
// openBids/openAsks 是挂单的有符号数量（asks 为负），
// 全部成交后的极端仓位必须落在界内。
func (c Constraint) Check(currentPosition, openBids, openAsks int64) error {
	maxLong, err := safemath.AddI64(currentPosition, openBids)
	if err != nil {
		return err
	}
	if maxLong > c.MaxPosition {
		return fmt.Errorf("market %s: max long %d (position %d + open bids %d) > %d: %w",
			c.Market.String(), maxLong, currentPosition, openBids, c.MaxPosition, domain.ErrOrderSizeBreached)
	}

	maxShort, err := safemath.AddI64(currentPosition, openAsks)
	if err != nil {
		return err
	}
	if maxShort < c.MinPosition {
		return fmt.Errorf("market %s: max short %d (position %d + open asks %d) < %d: %w",
			c.Market.String(), maxShort, currentPosition, openAsks, c.MinPosition, domain.ErrOrderSizeBreached)
	}
	return nil
}

// CheckAll 逐个校验约束列表，第一个越界即返回。
// lookup 返回某市场的 (仓位, 挂买量, 挂卖量)；市场无仓位记录时返回 ok=false 跳过。
func CheckAll(constraints []Constraint, lookup func(domain.MarketID) (position, openBids, openAsks int64, ok bool)) error {
	for _, c := range constraints {
		position, bids, asks, ok := lookup(c.Market)
		if !ok {
			continue
		}
		if err := c.Check(position, bids, asks); err != nil {
			return err
		}
	}
	return nil
}
