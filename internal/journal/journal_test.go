package journal

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"github.com/upmaker/jitgo/internal/domain"
	"github.com/upmaker/jitgo/internal/engine"
)

func openTemp(t *testing.T) *Journal {
	t.Helper()
	j, err := Open(filepath.Join(t.TempDir(), "journal.db"))
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = j.Close() })
	return j
}

func sampleTask(orderID uint32) engine.Task {
	o := &domain.TakerOrder{
		Taker:   "taker1",
		OrderID: orderID,
		Market:  domain.MarketID{Kind: domain.MarketPerp, Index: 0},
		Side:    domain.SideLong,
	}
	return engine.Task{Key: domain.NewAuctionKey(o.Taker, o.OrderID), Order: o}
}

func TestRecordAndRecent(t *testing.T) {
	j := openTemp(t)
	ctx := context.Background()

	j.Record(sampleTask(1), engine.Outcome{Result: engine.ResultFilled, Attempts: 2, Signature: "sig1"})
	j.Record(sampleTask(2), engine.Outcome{Result: engine.ResultExpired, Attempts: 5})
	j.Record(sampleTask(3), engine.Outcome{
		Result:   engine.ResultAborted,
		Attempts: 1,
		Err:      errors.New("PositionLimitBreached"),
	})

	entries, err := j.Recent(ctx, 10)
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 3 {
		t.Fatalf("entries: got %d, want 3", len(entries))
	}

	byKey := make(map[string]Entry)
	for _, e := range entries {
		byKey[e.AuctionKey] = e
	}
	filled := byKey["taker1-1"]
	if filled.Result != "filled" || filled.Signature != "sig1" || filled.Attempts != 2 {
		t.Errorf("filled entry: %+v", filled)
	}
	aborted := byKey["taker1-3"]
	if aborted.Result != "aborted" || aborted.Error != "PositionLimitBreached" {
		t.Errorf("aborted entry: %+v", aborted)
	}

	n, err := j.FillCount(ctx, engine.ResultFilled)
	if err != nil {
		t.Fatal(err)
	}
	if n != 1 {
		t.Errorf("fill count: got %d, want 1", n)
	}
}

func TestRecentFillsFor(t *testing.T) {
	j := openTemp(t)
	ctx := context.Background()

	j.Record(sampleTask(1), engine.Outcome{Result: engine.ResultFilled, Signature: "sig1"})
	j.Record(sampleTask(2), engine.Outcome{Result: engine.ResultExpired})

	spotTask := sampleTask(3)
	spotTask.Order.Market.Kind = domain.MarketSpot
	j.Record(spotTask, engine.Outcome{Result: engine.ResultFilled, Signature: "sig2"})

	fills, err := j.RecentFillsFor(ctx, domain.MarketID{Kind: domain.MarketPerp, Index: 0}, 10)
	if err != nil {
		t.Fatal(err)
	}
	if len(fills) != 1 || fills[0].Signature != "sig1" {
		t.Fatalf("perp fills: %+v", fills)
	}
}

func TestOpenCreatesDirectory(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "dir", "journal.db")
	j, err := Open(path)
	if err != nil {
		t.Fatal(err)
	}
	_ = j.Close()
}
