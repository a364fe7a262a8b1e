package engine

import (
	"context"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/upmaker/jitgo/internal/domain"
	"github.com/upmaker/jitgo/internal/pricing"
	"github.com/upmaker/jitgo/internal/ports"
	"github.com/upmaker/jitgo/pkg/logger"
	"github.com/upmaker/jitgo/pkg/safemath"
)

// Sniper 狙击策略：不陪跑整个拍卖，先算出拍卖价格越过包络界的 slot，
// 睡到那个 slot 再短间隔连发。比霰弹省交易费，代价是可能被抢先。
type Sniper struct {
	State ports.StateProvider
	Exec  ports.TradeExecutor
	Clock ports.SlotClock

	// BurstAttempts 到达目标 slot 后的连发次数，零值取 10
	BurstAttempts int
	// BurstDelay 连发间隔，零值取 200ms
	BurstDelay time.Duration
	// MinFillSize 同 Shotgun
	MinFillSize uint64

	Log *logrus.Entry
}

func (s *Sniper) log() *logrus.Entry {
	if s.Log != nil {
		return s.Log
	}
	return logger.WithField("component", "sniper")
}

func (s *Sniper) burst() (int, time.Duration) {
	n, d := s.BurstAttempts, s.BurstDelay
	if n <= 0 {
		n = 10
	}
	if d <= 0 {
		d = 200 * time.Millisecond
	}
	return n, d
}

// Run 等到预计越界的 slot 再开火
func (s *Sniper) Run(ctx context.Context, task Task) Outcome {
	lg := s.log().WithField("auction", string(task.Key))

	target, ok, err := s.crossSlot(ctx, task)
	if err != nil {
		// 算不出目标 slot 时退化为立即连发，不白白错过拍卖
		lg.WithField("error", err.Error()).Debug("cross slot unresolved, firing now")
		target, ok = s.Clock.CurrentSlot(), true
	}
	if !ok {
		lg.Debug("auction never crosses envelope")
		return Outcome{Result: ResultExpired}
	}

	if err := s.Clock.WaitForSlot(ctx, target); err != nil {
		return Outcome{Result: ResultExpired, Err: err}
	}
	lg.WithField("slot", target).Debug("target slot reached")

	n, d := s.burst()
	return runAttempts(ctx, attemptConfig{
		state:       s.State,
		exec:        s.Exec,
		clock:       s.Clock,
		minFillSize: s.MinFillSize,
		log:         s.log(),
	}, task, n, d)
}

// crossSlot 计算拍卖价格首次越过包络界的 slot。
// 返回 ok=false 表示整个拍卖窗口内都不会越界（纯限价拍卖才可能）；
// 预言机偏移单在窗口内不越界时仍以窗口末尾为目标，赌预言机移动。
func (s *Sniper) crossSlot(ctx context.Context, task Task) (uint64, bool, error) {
	o := task.Order
	now := s.Clock.CurrentSlot()

	if !o.HasAuction() || now >= o.AuctionEndSlot() {
		return now, true, nil
	}

	oracle, err := s.State.GetOraclePrice(ctx, o.Market)
	if err != nil {
		return 0, false, err
	}
	worstU, err := pricing.WorstPrice(task.Envelope, oracle.Price, o.Side)
	if err != nil {
		return 0, false, err
	}
	worst, err := safemath.U64ToI64(worstU)
	if err != nil {
		return 0, false, err
	}

	// 起止价换算成绝对价格（偏移单叠加当前预言机价估算）
	start, end := o.AuctionStartPrice, o.AuctionEndPrice
	if o.Kind == domain.OrderOracleOffset {
		if start, err = safemath.AddI64(oracle.Price, start); err != nil {
			return 0, false, err
		}
		if end, err = safemath.AddI64(oracle.Price, end); err != nil {
			return 0, false, err
		}
	}

	elapsed, crosses, err := elapsedTilCross(start, end, worst, int64(o.AuctionDuration), o.Side)
	if err != nil {
		return 0, false, err
	}
	if !crosses {
		if o.Kind == domain.OrderOracleOffset {
			return o.AuctionEndSlot(), true, nil
		}
		return 0, false, nil
	}

	target := o.Slot + uint64(elapsed)
	if target < now {
		target = now
	}
	return target, true, nil
}

// elapsedTilCross 求线性拍卖价首次越过 worst 的插值步数（向上取整）。
// 吃单买入时价格上行、越过即 price >= worst；卖出时下行、越过即 price <= worst。
func elapsedTilCross(start, end, worst, duration int64, takerSide domain.Side) (int64, bool, error) {
	crossed := func(p int64) bool {
		if takerSide == domain.SideLong {
			return p >= worst
		}
		return p <= worst
	}
	if crossed(start) {
		return 0, true, nil
	}
	if !crossed(end) {
		return 0, false, nil
	}

	// start 未越、end 已越，start != end 成立
	gap, err := safemath.SubI64(worst, start)
	if err != nil {
		return 0, false, err
	}
	span, err := safemath.SubI64(end, start)
	if err != nil {
		return 0, false, err
	}
	num, err := safemath.MulI64(gap, duration)
	if err != nil {
		return 0, false, err
	}
	elapsed, err := safemath.DivI64(num, span)
	if err != nil {
		return 0, false, err
	}
	if num%span != 0 {
		elapsed++
	}
	return elapsed, true, nil
}
