// Package arb 吃掉永续市场交叉盘口的无风险价差：
// 同时向最优买价卖出、向最优卖价买入，要求事后仓位不变且报价余额增加。
package arb

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/upmaker/jitgo/internal/domain"
	"github.com/upmaker/jitgo/internal/ports"
	"github.com/upmaker/jitgo/pkg/logger"
)

// Scanner 单个永续市场的套利扫描器
type Scanner struct {
	State  ports.StateProvider
	Exec   ports.TradeExecutor
	Market domain.MarketID

	Log *logrus.Entry
}

func (s *Scanner) log() *logrus.Entry {
	if s.Log != nil {
		return s.Log
	}
	return logger.WithFields(logrus.Fields{"component": "arb", "market": s.Market.String()})
}

// ScanOnce 检查一次盘口并在交叉时原子提交双腿。
// 返回本次套利的 PnL（QuotePrecision 缩放）。
// 盘口未交叉返回 ErrNoArbOpportunity；事后校验失败返回 ErrUnprofitableArb。
func (s *Scanner) ScanOnce(ctx context.Context) (int64, error) {
	bid, ask, err := s.State.GetTopOfBook(ctx, s.Market)
	if err != nil {
		return 0, err
	}
	if bid.Price == 0 {
		return 0, domain.ErrNoBestBid
	}
	if ask.Price == 0 {
		return 0, domain.ErrNoBestAsk
	}
	if bid.Price < ask.Price {
		return 0, domain.ErrNoArbOpportunity
	}

	baseInit, quoteInit, err := s.State.GetPerpBalances(ctx, s.Market)
	if err != nil {
		return 0, err
	}

	size := bid.Base
	if ask.Base < size {
		size = ask.Base
	}

	// 保证金能支撑的最大下单量
	meta, err := s.State.GetMarketMeta(ctx, s.Market)
	if err != nil {
		return 0, err
	}
	oracle, err := s.State.GetOraclePrice(ctx, s.Market)
	if err != nil {
		return 0, err
	}
	collateral, err := s.State.GetCollateral(ctx)
	if err != nil {
		return 0, err
	}
	maxSize, err := MaxBaseForCollateral(collateral, meta.InitMarginRatio, oracle.Price)
	if err != nil {
		return 0, err
	}
	if maxSize < size {
		size = maxSize
	}
	if size < meta.MinOrderSize {
		size = meta.MinOrderSize
	}

	sell := domain.CounterOrder{Market: s.Market, Side: domain.SideShort, Price: bid.Price, BaseAmount: size}
	buy := domain.CounterOrder{Market: s.Market, Side: domain.SideLong, Price: ask.Price, BaseAmount: size}

	// 先下减仓方向的腿，避免中间态把保证金占用推到峰值
	var legs [2]domain.CounterOrder
	if baseInit >= 0 {
		legs = [2]domain.CounterOrder{sell, buy}
	} else {
		legs = [2]domain.CounterOrder{buy, sell}
	}

	outcome, err := s.Exec.SubmitArbPair(ctx, s.Market, legs)
	if err != nil {
		return 0, err
	}

	// 事后校验：仓位必须回到原位，报价余额必须增加
	baseEnd, quoteEnd, err := s.State.GetPerpBalances(ctx, s.Market)
	if err != nil {
		return 0, err
	}
	if baseEnd != baseInit || quoteEnd <= quoteInit {
		return 0, fmt.Errorf("base %d->%d quote %d->%d sig %s: %w",
			baseInit, baseEnd, quoteInit, quoteEnd, outcome.Signature, domain.ErrUnprofitableArb)
	}

	pnl := quoteEnd - quoteInit
	s.log().WithFields(logrus.Fields{
		"pnl":       pnl,
		"size":      size,
		"signature": outcome.Signature,
	}).Info("arb filled")
	return pnl, nil
}

// MaxBaseForCollateral 可用保证金能支撑的最大下单量。
// 先扣掉 min(1%, 10 个报价单位) 的容错余量，再按初始保证金率
// 和预言机价格换算成基础资产数量。
func MaxBaseForCollateral(quote uint64, initMarginRatio uint32, oraclePrice int64) (uint64, error) {
	if initMarginRatio == 0 {
		return 0, fmt.Errorf("zero init margin ratio")
	}
	if oraclePrice <= 0 {
		return 0, fmt.Errorf("non-positive oracle price %d", oraclePrice)
	}

	buffer := quote / 100
	if maxBuffer := 10 * domain.QuotePrecision; buffer > maxBuffer {
		buffer = maxBuffer
	}
	avail := quote - buffer

	// 中间量会超出 64 位，用大整数算完再收窄
	v := new(big.Int).SetUint64(avail)
	v.Mul(v, big.NewInt(domain.MarginPrecision))
	v.Div(v, big.NewInt(int64(initMarginRatio)))
	v.Mul(v, big.NewInt(domain.BasePrecision))
	v.Div(v, big.NewInt(oraclePrice))
	if !v.IsUint64() {
		return 0, fmt.Errorf("max base amount overflows")
	}
	return v.Uint64(), nil
}

// Runner 按固定间隔驱动一组扫描器
type Runner struct {
	Scanners []*Scanner
	Interval time.Duration

	// OnProfit 每笔已验证的套利盈亏回调（QuotePrecision 缩放），可为 nil。
	// 风控层用它累计当日 PnL。
	OnProfit func(pnl int64)

	log *logrus.Entry
}

// Run 阻塞运行直到 ctx 取消
func (r *Runner) Run(ctx context.Context) {
	if r.log == nil {
		r.log = logger.WithField("component", "arb-runner")
	}
	interval := r.Interval
	if interval <= 0 {
		interval = time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	r.log.WithFields(logrus.Fields{
		"markets":  len(r.Scanners),
		"interval": interval.String(),
	}).Info("arb runner started")

	for {
		select {
		case <-ctx.Done():
			r.log.Info("arb runner stopped")
			return
		case <-ticker.C:
			for _, s := range r.Scanners {
				if ctx.Err() != nil {
					return
				}
				pnl, err := s.ScanOnce(ctx)
				if err != nil {
					if !benign(err) {
						s.log().WithField("error", err.Error()).Warn("arb scan failed")
					}
					continue
				}
				if r.OnProfit != nil && pnl != 0 {
					r.OnProfit(pnl)
				}
			}
		}
	}
}

// benign 扫描的常态结果，不值得告警
func benign(err error) bool {
	return errors.Is(err, domain.ErrNoArbOpportunity) ||
		errors.Is(err, domain.ErrNoBestBid) ||
		errors.Is(err, domain.ErrNoBestAsk) ||
		errors.Is(err, domain.ErrNoFill)
}
