package engine

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/upmaker/jitgo/internal/domain"
)

func shotgunFor(state *fakeState, exec *fakeExec, clock *fakeClock) *Shotgun {
	return &Shotgun{State: state, Exec: exec, Clock: clock, RetryDelay: time.Millisecond}
}

func taskFor(o *domain.TakerOrder) Task {
	return Task{
		Key:      domain.NewAuctionKey(o.Taker, o.OrderID),
		Order:    o,
		Envelope: testEnvelope(),
	}
}

func TestShotgunFillsOnRetry(t *testing.T) {
	state, exec, clock := testFixture()
	// 第一次被吞（空签名），第二次被拒，第三次成交
	exec.results = []submitResult{
		{sig: ""},
		{err: domain.ErrNoFill},
		{sig: "sig-3"},
	}

	out := shotgunFor(state, exec, clock).Run(context.Background(), taskFor(state.order))
	if out.Result != ResultFilled {
		t.Fatalf("result: got %v, want filled (err=%v)", out.Result, out.Err)
	}
	if out.Signature != "sig-3" {
		t.Errorf("signature: got %q", out.Signature)
	}
	if out.Attempts != 3 {
		t.Errorf("attempts: got %d, want 3", out.Attempts)
	}
}

func TestShotgunBudgetBoundedByAuctionDuration(t *testing.T) {
	state, exec, clock := testFixture()
	state.order.AuctionDuration = 3
	// 永远不成交
	exec.results = nil

	out := shotgunFor(state, exec, clock).Run(context.Background(), taskFor(state.order))
	if out.Result != ResultExpired {
		t.Fatalf("result: got %v, want expired", out.Result)
	}
	if exec.callCount() != 3 {
		t.Errorf("attempts: got %d, want 3", exec.callCount())
	}
}

func TestShotgunStopsWhenOrderGone(t *testing.T) {
	state, exec, clock := testFixture()
	state.orderErr = domain.ErrTakerOrderNotFound

	out := shotgunFor(state, exec, clock).Run(context.Background(), taskFor(testOrder()))
	if out.Result != ResultExpired {
		t.Fatalf("result: got %v, want expired", out.Result)
	}
	if exec.callCount() != 0 {
		t.Errorf("submits: got %d, want 0", exec.callCount())
	}
}

func TestShotgunAbortsOnTerminalError(t *testing.T) {
	state, exec, clock := testFixture()
	exec.results = []submitResult{{err: domain.ErrPositionLimitBreached}}

	out := shotgunFor(state, exec, clock).Run(context.Background(), taskFor(state.order))
	if out.Result != ResultAborted {
		t.Fatalf("result: got %v, want aborted", out.Result)
	}
	if !errors.Is(out.Err, domain.ErrPositionLimitBreached) {
		t.Errorf("err: got %v", out.Err)
	}
	if exec.callCount() != 1 {
		t.Errorf("submits: got %d, want 1", exec.callCount())
	}
}

func TestShotgunSkipsUnviableRemainder(t *testing.T) {
	// 余量低于最小下单量：放弃而不是提交
	state, exec, clock := testFixture()
	state.order.BaseAmountFilled = state.order.BaseAmount - state.meta.MinOrderSize/2

	out := shotgunFor(state, exec, clock).Run(context.Background(), taskFor(state.order))
	if out.Result != ResultExpired {
		t.Fatalf("result: got %v, want expired", out.Result)
	}
	if exec.callCount() != 0 {
		t.Errorf("submits: got %d, want 0", exec.callCount())
	}
}

func TestShotgunEconomicFloor(t *testing.T) {
	// 余量满足交易所最小量但低于自设经济下限：同样放弃
	state, exec, clock := testFixture()
	state.order.BaseAmountFilled = state.order.BaseAmount - 2*state.meta.MinOrderSize

	sg := shotgunFor(state, exec, clock)
	sg.MinFillSize = 10 * state.meta.MinOrderSize
	out := sg.Run(context.Background(), taskFor(state.order))
	if out.Result != ResultExpired {
		t.Fatalf("result: got %v, want expired", out.Result)
	}
	if exec.callCount() != 0 {
		t.Errorf("submits: got %d, want 0", exec.callCount())
	}
}

func TestShotgunHonorsCancel(t *testing.T) {
	state, exec, clock := testFixture()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	out := shotgunFor(state, exec, clock).Run(ctx, taskFor(state.order))
	if out.Result != ResultExpired {
		t.Fatalf("result: got %v, want expired", out.Result)
	}
	if exec.callCount() != 0 {
		t.Errorf("submits: got %d, want 0", exec.callCount())
	}
}

func TestShotgunFastlaneSkipsReread(t *testing.T) {
	state, exec, clock := testFixture()
	// 链上读不到快车道订单；若策略错误地去重读会提前退出
	state.orderErr = domain.ErrTakerOrderNotFound
	exec.results = []submitResult{{sig: "fastlane-sig"}}

	o := testOrder()
	task := taskFor(o)
	task.Signed = &domain.SignedOrder{
		UUID:           "abc123",
		TakerAuthority: "auth1",
		Taker:          o.Taker,
		Order:          *o,
	}
	task.Key = domain.FastlaneAuctionKey(o.Taker, "abc123")

	out := shotgunFor(state, exec, clock).Run(context.Background(), task)
	if out.Result != ResultFilled {
		t.Fatalf("result: got %v, want filled (err=%v)", out.Result, out.Err)
	}
	if out.Signature != "fastlane-sig" {
		t.Errorf("signature: got %q", out.Signature)
	}
}
