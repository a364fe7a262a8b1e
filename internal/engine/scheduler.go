package engine

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/sirupsen/logrus"

	"github.com/upmaker/jitgo/internal/domain"
	"github.com/upmaker/jitgo/internal/ports"
	"github.com/upmaker/jitgo/pkg/logger"
)

// Recorder 拍卖结果流水接口（由 journal 实现，可为 nil）
type Recorder interface {
	Record(task Task, out Outcome)
}

// Breaker 熔断接口：连续异常时暂停接新拍卖（由 risk 实现，可为 nil）
type Breaker interface {
	// Allow 当前是否允许接新任务
	Allow() bool
	// Observe 上报一次任务结果
	Observe(result Result)
}

// ErrSpotFastlane 快车道只支持永续市场
var ErrSpotFastlane = errors.New("fastlane orders are perp only")

// Scheduler 拍卖调度器：消费吃单事件，按拍卖窗口与市场包络过滤，
// 对每个拍卖至多派发一个策略任务。
type Scheduler struct {
	state    ports.StateProvider
	strategy Strategy
	registry *Registry
	recorder Recorder
	breaker  Breaker

	paused atomic.Bool

	// excluded 吃单账户排除谓词（如排除自己的授权账户），可为 nil
	excluded atomic.Pointer[func(authority string) bool]

	mu   sync.RWMutex
	perp map[uint16]domain.Envelope
	spot map[uint16]domain.Envelope

	tasks sync.WaitGroup
	log   *logrus.Entry
}

// NewScheduler 创建调度器。recorder 和 breaker 可为 nil。
func NewScheduler(state ports.StateProvider, strategy Strategy, recorder Recorder, breaker Breaker) *Scheduler {
	return &Scheduler{
		state:    state,
		strategy: strategy,
		registry: NewRegistry(0),
		recorder: recorder,
		breaker:  breaker,
		perp:     make(map[uint16]domain.Envelope),
		spot:     make(map[uint16]domain.Envelope),
		log:      logger.WithField("component", "scheduler"),
	}
}

// SetEnvelope 写入/覆盖一个市场的做市包络。运维侧调用，即时生效。
func (s *Scheduler) SetEnvelope(market domain.MarketID, env domain.Envelope) {
	s.mu.Lock()
	s.table(market.Kind)[market.Index] = env
	s.mu.Unlock()
	s.log.WithFields(logrus.Fields{
		"market": market.String(),
		"max":    env.MaxPosition,
		"min":    env.MinPosition,
	}).Info("envelope updated")
}

// DeleteEnvelope 移除市场包络，该市场的新拍卖随即被忽略
func (s *Scheduler) DeleteEnvelope(market domain.MarketID) {
	s.mu.Lock()
	delete(s.table(market.Kind), market.Index)
	s.mu.Unlock()
	s.log.WithField("market", market.String()).Info("envelope removed")
}

// EnvelopeFor 查询市场包络
func (s *Scheduler) EnvelopeFor(market domain.MarketID) (domain.Envelope, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	env, ok := s.table(market.Kind)[market.Index]
	return env, ok
}

// Envelopes 全量包络快照（状态接口用）
func (s *Scheduler) Envelopes() map[domain.MarketID]domain.Envelope {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(map[domain.MarketID]domain.Envelope, len(s.perp)+len(s.spot))
	for idx, env := range s.perp {
		out[domain.MarketID{Kind: domain.MarketPerp, Index: idx}] = env
	}
	for idx, env := range s.spot {
		out[domain.MarketID{Kind: domain.MarketSpot, Index: idx}] = env
	}
	return out
}

// table 调用方必须持有 s.mu
func (s *Scheduler) table(kind domain.MarketKind) map[uint16]domain.Envelope {
	if kind == domain.MarketSpot {
		return s.spot
	}
	return s.perp
}

// Pause 暂停接新拍卖；在途任务不受影响，继续跑完各自的拍卖
func (s *Scheduler) Pause() {
	s.paused.Store(true)
	s.log.Warn("scheduler paused")
}

// Resume 恢复接新拍卖
func (s *Scheduler) Resume() {
	s.paused.Store(false)
	s.log.Info("scheduler resumed")
}

// Paused 是否处于暂停状态
func (s *Scheduler) Paused() bool {
	return s.paused.Load()
}

// InFlight 当前在途任务数
func (s *Scheduler) InFlight() int {
	return s.registry.Len()
}

// SetExclusion 设置吃单账户排除谓词（并发安全，即时生效）
func (s *Scheduler) SetExclusion(fn func(authority string) bool) {
	if fn == nil {
		s.excluded.Store(nil)
		return
	}
	s.excluded.Store(&fn)
}

func (s *Scheduler) isExcluded(authority string) bool {
	fn := s.excluded.Load()
	return fn != nil && (*fn)(authority)
}

// OnAccountUpdate 处理一次链上吃单事件。
// 同一拍卖重复推送是常态，靠注册表去重；本方法快速返回，从不阻塞事件流。
func (s *Scheduler) OnAccountUpdate(ctx context.Context, u ports.AccountUpdate) {
	o := u.Order
	if o == nil || o.Status != domain.OrderStatusOpen {
		return
	}
	if !auctionActive(o, u.Slot) {
		return
	}
	key := domain.NewAuctionKey(o.Taker, o.OrderID)
	s.dispatch(ctx, key, Task{Key: key, Order: o}, o.Taker, o.Market)
}

// OnFastlaneOrder 处理一条快车道预签名订单。现货显式拒绝。
func (s *Scheduler) OnFastlaneOrder(ctx context.Context, signed *domain.SignedOrder) error {
	if signed == nil {
		return nil
	}
	if signed.Order.Market.Kind != domain.MarketPerp {
		return fmt.Errorf("market %s: %w", signed.Order.Market.String(), ErrSpotFastlane)
	}
	if !signed.Order.HasAuction() {
		return nil
	}
	key := domain.FastlaneAuctionKey(signed.Taker, signed.UUID)
	s.dispatch(ctx, key, Task{Key: key, Order: &signed.Order, Signed: signed}, signed.TakerAuthority, signed.Order.Market)
	return nil
}

// auctionActive 订单是否带仍在进行的拍卖窗口。
// 无窗口（duration 0）、已结束或尚未开始的都不派发；
// slot 为 0 表示事件未携带 slot，只查窗口存在性。
func auctionActive(o *domain.TakerOrder, slot uint64) bool {
	if !o.HasAuction() {
		return false
	}
	if slot == 0 {
		return true
	}
	return slot >= o.Slot && slot <= o.AuctionEndSlot()
}

// dispatch 统一的任务派发路径。注册成功后所有退出路径由任务 goroutine
// 的 defer 负责注销，保证 key 不泄漏。
func (s *Scheduler) dispatch(ctx context.Context, key domain.AuctionKey, task Task, authority string, market domain.MarketID) {
	if s.paused.Load() {
		return
	}
	if s.breaker != nil && !s.breaker.Allow() {
		return
	}
	if s.isExcluded(authority) {
		return
	}

	env, ok := s.EnvelopeFor(market)
	if !ok || !env.Configured() {
		return
	}
	task.Envelope = env

	taskCtx, cancel := context.WithCancel(ctx)
	if err := s.registry.TryBegin(key, cancel); err != nil {
		cancel()
		return
	}

	s.tasks.Add(1)
	go func() {
		defer s.tasks.Done()
		defer cancel()
		defer s.registry.End(key)
		s.runTask(taskCtx, task)
	}()
}

func (s *Scheduler) runTask(ctx context.Context, task Task) {
	// 推荐人查询失败不阻止撮合，只损失推荐返佣
	if ref, err := s.state.GetReferrer(ctx, task.Order.Taker); err == nil {
		task.Referral = ref
	}

	out := s.strategy.Run(ctx, task)

	lg := s.log.WithFields(logrus.Fields{
		"auction":  string(task.Key),
		"market":   task.Order.Market.String(),
		"result":   out.Result.String(),
		"attempts": out.Attempts,
	})
	switch out.Result {
	case ResultFilled:
		lg.WithField("signature", out.Signature).Info("auction task finished")
	case ResultAborted:
		lg.WithField("error", fmt.Sprint(out.Err)).Warn("auction task aborted")
	default:
		lg.Debug("auction task finished")
	}

	if s.recorder != nil {
		s.recorder.Record(task, out)
	}
	if s.breaker != nil {
		s.breaker.Observe(out.Result)
	}
}

// Shutdown 中止全部在途任务并等待退出
func (s *Scheduler) Shutdown() {
	s.registry.CancelAll()
	s.tasks.Wait()
}
