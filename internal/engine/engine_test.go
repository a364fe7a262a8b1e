package engine

import (
	"context"
	"sync"

	"github.com/upmaker/jitgo/internal/domain"
	"github.com/upmaker/jitgo/internal/ports"
)

// fakeState 可编程的状态提供方
type fakeState struct {
	mu       sync.Mutex
	order    *domain.TakerOrder
	orderErr error
	oracle   domain.OracleSnapshot
	position int64
	meta     domain.MarketMeta
	bid, ask domain.Level
	referral domain.Referral
}

func (f *fakeState) GetOraclePrice(context.Context, domain.MarketID) (domain.OracleSnapshot, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.oracle, nil
}

func (f *fakeState) GetPosition(context.Context, domain.MarketID) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.position, nil
}

func (f *fakeState) GetMarketMeta(context.Context, domain.MarketID) (domain.MarketMeta, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.meta, nil
}

func (f *fakeState) GetOrder(context.Context, string, uint32) (*domain.TakerOrder, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.orderErr != nil {
		return nil, f.orderErr
	}
	cp := *f.order
	return &cp, nil
}

func (f *fakeState) GetReferrer(context.Context, string) (domain.Referral, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.referral, nil
}

func (f *fakeState) GetTopOfBook(context.Context, domain.MarketID) (domain.Level, domain.Level, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.bid, f.ask, nil
}

func (f *fakeState) GetPerpBalances(context.Context, domain.MarketID) (int64, int64, error) {
	return 0, 0, nil
}

func (f *fakeState) GetCollateral(context.Context) (uint64, error) {
	return 0, nil
}

// fakeExec 按序返回预置结果的提交器
type fakeExec struct {
	mu      sync.Mutex
	results []submitResult
	calls   int
}

type submitResult struct {
	sig string
	err error
}

func (f *fakeExec) next() (ports.TxOutcome, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	i := f.calls
	f.calls++
	if i >= len(f.results) {
		return ports.TxOutcome{}, domain.ErrNoFill
	}
	r := f.results[i]
	return ports.TxOutcome{Signature: r.sig}, r.err
}

func (f *fakeExec) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

func (f *fakeExec) SubmitCounterOrder(context.Context, *domain.TakerOrder, domain.CounterOrder, domain.Referral) (ports.TxOutcome, error) {
	return f.next()
}

func (f *fakeExec) SubmitFastlaneCounterOrder(context.Context, *domain.SignedOrder, domain.CounterOrder, domain.Referral) (ports.TxOutcome, error) {
	return f.next()
}

func (f *fakeExec) SubmitArbPair(context.Context, domain.MarketID, [2]domain.CounterOrder) (ports.TxOutcome, error) {
	return f.next()
}

// fakeClock 固定 slot 时钟，WaitForSlot 立即返回并记录目标
type fakeClock struct {
	mu     sync.Mutex
	slot   uint64
	waited []uint64
}

func (f *fakeClock) CurrentSlot() uint64 {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.slot
}

func (f *fakeClock) WaitForSlot(_ context.Context, slot uint64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.waited = append(f.waited, slot)
	if slot > f.slot {
		f.slot = slot
	}
	return nil
}

const testBase = 1_000_000_000

func testOrder() *domain.TakerOrder {
	return &domain.TakerOrder{
		Taker:             "taker1",
		OrderID:           7,
		Market:            domain.MarketID{Kind: domain.MarketPerp, Index: 0},
		Side:              domain.SideLong,
		Kind:              domain.OrderLimit,
		Status:            domain.OrderStatusOpen,
		Slot:              100,
		AuctionDuration:   5,
		AuctionStartPrice: 100_000_000,
		AuctionEndPrice:   110_000_000,
		BaseAmount:        testBase,
	}
}

func testEnvelope() domain.Envelope {
	return domain.Envelope{
		MaxPosition: 100 * testBase,
		MinPosition: -100 * testBase,
		Bid:         95_000_000,
		Ask:         99_000_000,
		PriceKind:   domain.PriceLimit,
	}
}

func testFixture() (*fakeState, *fakeExec, *fakeClock) {
	state := &fakeState{
		order:  testOrder(),
		oracle: domain.OracleSnapshot{Price: 105_000_000, Slot: 100},
		meta:   domain.MarketMeta{TickSize: 1000, MinOrderSize: testBase / 100},
	}
	return state, &fakeExec{}, &fakeClock{slot: 100}
}
