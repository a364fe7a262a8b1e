package engine

import (
	"context"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/upmaker/jitgo/internal/domain"
	"github.com/upmaker/jitgo/internal/pricing"
	"github.com/upmaker/jitgo/internal/ports"
	"github.com/upmaker/jitgo/pkg/logger"
)

// Result 一次拍卖任务的最终结果
type Result uint8

const (
	// ResultFilled 成功提交对手单
	ResultFilled Result = iota
	// ResultExpired 拍卖结束/订单消失/余量不足，未成交但属正常
	ResultExpired
	// ResultAborted 遇到不可重试错误后放弃
	ResultAborted
)

func (r Result) String() string {
	switch r {
	case ResultFilled:
		return "filled"
	case ResultExpired:
		return "expired"
	default:
		return "aborted"
	}
}

// Outcome 拍卖任务结束时的汇总，供日志与流水记录
type Outcome struct {
	Result    Result
	Signature string
	Attempts  int
	Err       error
}

// Task 一次拍卖撮合任务的输入。
// Order 是触发时刻的快照；链上订单每次尝试前会重新读取，
// 快车道订单（Signed 非 nil）不落链无法重读，始终用初始快照。
type Task struct {
	Key      domain.AuctionKey
	Order    *domain.TakerOrder
	Signed   *domain.SignedOrder
	Envelope domain.Envelope
	Referral domain.Referral
}

// Strategy 拍卖撮合策略：对一个拍卖任务决定何时、以何种节奏尝试成交
type Strategy interface {
	Run(ctx context.Context, task Task) Outcome
}

// Shotgun 霰弹策略：拍卖一开始就以固定间隔连续尝试，
// 每个拍卖 slot 一次机会，吃掉价格一越界的瞬间。
// 简单、激进，适合竞争激烈的市场。
type Shotgun struct {
	State ports.StateProvider
	Exec  ports.TradeExecutor
	Clock ports.SlotClock

	// RetryDelay 相邻尝试的间隔，零值取 1s（约一个 slot 的出块节奏）
	RetryDelay time.Duration

	// MinFillSize 经济可行的最小成交量（BasePrecision 缩放），
	// 余量低于该值时放弃拍卖。零值只按市场最小下单量判断。
	MinFillSize uint64

	Log *logrus.Entry
}

func (s *Shotgun) log() *logrus.Entry {
	if s.Log != nil {
		return s.Log
	}
	return logger.WithField("component", "shotgun")
}

func (s *Shotgun) delay() time.Duration {
	if s.RetryDelay > 0 {
		return s.RetryDelay
	}
	return time.Second
}

// Run 执行霰弹循环。尝试预算与拍卖时长挂钩：时长 N 个 slot 就试 N 次，
// 无拍卖窗口的订单给一次机会。
func (s *Shotgun) Run(ctx context.Context, task Task) Outcome {
	budget := int(task.Order.AuctionDuration)
	if budget < 1 {
		budget = 1
	}
	return runAttempts(ctx, attemptConfig{
		state:       s.State,
		exec:        s.Exec,
		clock:       s.Clock,
		minFillSize: s.MinFillSize,
		log:         s.log(),
	}, task, budget, s.delay())
}

type attemptConfig struct {
	state       ports.StateProvider
	exec        ports.TradeExecutor
	clock       ports.SlotClock
	minFillSize uint64
	log         *logrus.Entry
}

// runAttempts 通用尝试循环：重读状态、定价、提交、分类，直到预算耗尽。
// Shotgun 与 Sniper 的差异只在进入时机和预算/间隔参数。
func runAttempts(ctx context.Context, cfg attemptConfig, task Task, budget int, delay time.Duration) Outcome {
	out := Outcome{Result: ResultExpired}
	lg := cfg.log.WithField("auction", string(task.Key))

	for i := 0; i < budget; i++ {
		if ctx.Err() != nil {
			out.Err = ctx.Err()
			return out
		}
		out.Attempts = i + 1

		sig, err := attemptOnce(ctx, cfg, &task)
		if err == nil {
			if sig == "" {
				// 提交未被接纳但也没报错：消耗预算继续
				lg.Debug("attempt swallowed, retrying")
			} else {
				lg.WithFields(logrus.Fields{"signature": sig, "attempts": out.Attempts}).Info("auction filled")
				out.Result = ResultFilled
				out.Signature = sig
				return out
			}
		} else {
			switch Classify(err) {
			case VerdictRetry:
				lg.WithField("reason", err.Error()).Debug("attempt rejected, retrying")
			case VerdictDone:
				lg.WithField("reason", err.Error()).Debug("auction gone")
				out.Result = ResultExpired
				out.Err = err
				return out
			default:
				lg.WithField("error", err.Error()).Warn("auction aborted")
				out.Result = ResultAborted
				out.Err = err
				return out
			}
		}

		if i+1 < budget {
			select {
			case <-ctx.Done():
				out.Err = ctx.Err()
				return out
			case <-time.After(delay):
			}
		}
	}
	return out
}

// attemptOnce 单次撮合尝试：全部状态现读现用，不跨尝试缓存。
// 返回空签名且 nil 错误表示该次提交被吞，调用方按未成交处理。
func attemptOnce(ctx context.Context, cfg attemptConfig, task *Task) (string, error) {
	order := task.Order
	if task.Signed == nil {
		// 链上订单重读最新快照；消失即拍卖结束
		fresh, err := cfg.state.GetOrder(ctx, order.Taker, order.OrderID)
		if err != nil {
			return "", err
		}
		order = fresh
	}

	if order.Status != domain.OrderStatusOpen {
		return "", domain.ErrTakerOrderNotFound
	}

	meta, err := cfg.state.GetMarketMeta(ctx, order.Market)
	if err != nil {
		return "", err
	}
	if !viable(order, meta.MinOrderSize, cfg.minFillSize) {
		return "", domain.ErrTakerOrderNotFound
	}

	oracle, err := cfg.state.GetOraclePrice(ctx, order.Market)
	if err != nil {
		return "", err
	}
	position, err := cfg.state.GetPosition(ctx, order.Market)
	if err != nil {
		return "", err
	}

	in := pricing.Input{
		Order:            order,
		Slot:             cfg.clock.CurrentSlot(),
		Oracle:           oracle,
		Meta:             meta,
		Envelope:         task.Envelope,
		ExistingPosition: position,
	}
	if order.Market.Kind == domain.MarketPerp {
		bid, ask, err := cfg.state.GetTopOfBook(ctx, order.Market)
		if err == nil {
			in.BestBid = bid.Price
			in.BestAsk = ask.Price
		}
	}

	counter, err := pricing.Propose(in)
	if err != nil {
		return "", err
	}

	var outcome ports.TxOutcome
	if task.Signed != nil {
		outcome, err = cfg.exec.SubmitFastlaneCounterOrder(ctx, task.Signed, counter, task.Referral)
	} else {
		outcome, err = cfg.exec.SubmitCounterOrder(ctx, order, counter, task.Referral)
	}
	if err != nil {
		return "", err
	}
	return outcome.Signature, nil
}

// viable 吃单余量是否仍值得成交
func viable(o *domain.TakerOrder, minOrderSize, minFillSize uint64) bool {
	rem := o.Remaining()
	if rem == 0 || rem < minOrderSize {
		return false
	}
	if minFillSize > 0 && rem < minFillSize {
		return false
	}
	return true
}
