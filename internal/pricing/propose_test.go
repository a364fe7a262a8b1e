package pricing

import (
	"errors"
	"testing"
	"testing/quick"

	"github.com/upmaker/jitgo/internal/domain"
)

const base = 1_000_000_000 // BasePrecision

func proposeInput() Input {
	return Input{
		Order: limitOrder(domain.SideLong, 100, 10, 100_000_000, 110_000_000),
		Slot:  100,
		Oracle: domain.OracleSnapshot{
			Price: 105_000_000,
			Slot:  100,
		},
		Meta: domain.MarketMeta{
			TickSize:     1000,
			MinOrderSize: base / 100,
		},
		Envelope: domain.Envelope{
			MaxPosition: 100 * base,
			MinPosition: -100 * base,
			Bid:         95_000_000,
			Ask:         99_000_000,
			PriceKind:   domain.PriceLimit,
		},
	}
}

func TestProposeEnvelopeNotSet(t *testing.T) {
	in := proposeInput()
	in.Envelope = domain.Envelope{}
	if _, err := Propose(in); !errors.Is(err, domain.ErrEnvelopeNotSet) {
		t.Fatalf("got %v, want ErrEnvelopeNotSet", err)
	}
}

func TestProposeCrossedBid(t *testing.T) {
	// 吃单买入 @100，我方最低卖价 99 <= 100：越界，成交
	in := proposeInput()
	co, err := Propose(in)
	if err != nil {
		t.Fatal(err)
	}
	if co.Side != domain.SideShort {
		t.Errorf("maker side: got %v, want short", co.Side)
	}
	// 报价等于吃单价格，不试图改善
	if co.Price != 100_000_000 {
		t.Errorf("maker price: got %d, want 100000000", co.Price)
	}
	if co.BaseAmount != uint64(base) {
		t.Errorf("size: got %d, want %d", co.BaseAmount, base)
	}
}

func TestProposeAskNotCrossed(t *testing.T) {
	// 吃单买入 @100 但我方最差卖价 102：未越界
	in := proposeInput()
	in.Envelope.Ask = 102_000_000
	_, err := Propose(in)
	if !errors.Is(err, domain.ErrAskNotCrossed) {
		t.Fatalf("got %v, want ErrAskNotCrossed", err)
	}
}

func TestProposeBidNotCrossed(t *testing.T) {
	// 吃单卖出 @110 但我方最差买价 95：未越界
	in := proposeInput()
	in.Order = limitOrder(domain.SideShort, 100, 10, 110_000_000, 100_000_000)
	_, err := Propose(in)
	if !errors.Is(err, domain.ErrBidNotCrossed) {
		t.Fatalf("got %v, want ErrBidNotCrossed", err)
	}
}

func TestProposeOracleEnvelope(t *testing.T) {
	// oracle 模式：界是相对预言机的偏移。偏移 -1 时最差卖价 104，
	// 吃单买入 @105 越过
	in := proposeInput()
	in.Envelope.PriceKind = domain.PriceOracle
	in.Envelope.Bid = -2_000_000
	in.Envelope.Ask = -1_000_000
	in.Order = limitOrder(domain.SideLong, 100, 10, 105_000_000, 105_000_000)
	co, err := Propose(in)
	if err != nil {
		t.Fatal(err)
	}
	if co.Price != 105_000_000 {
		t.Errorf("maker price: got %d", co.Price)
	}

	// 预言机涨到 107：最低卖价抬到 106，吃单 @105 不再越界
	in.Oracle.Price = 107_000_000
	if _, err := Propose(in); !errors.Is(err, domain.ErrAskNotCrossed) {
		t.Fatalf("got %v, want ErrAskNotCrossed", err)
	}
}

func TestProposePerpPriceFallback(t *testing.T) {
	// 拍卖结束且无显式限价：永续回退到盘口对手价
	in := proposeInput()
	in.Order = limitOrder(domain.SideLong, 100, 10, 100_000_000, 110_000_000)
	in.Order.AuctionDuration = 0
	in.Slot = 120
	in.BestAsk = 101_000_000

	co, err := Propose(in)
	if err != nil {
		t.Fatal(err)
	}
	if co.Price != 101_000_000 {
		t.Errorf("fallback price: got %d", co.Price)
	}

	// 盘口缺失
	in.BestAsk = 0
	if _, err := Propose(in); !errors.Is(err, domain.ErrNoBestAsk) {
		t.Fatalf("got %v, want ErrNoBestAsk", err)
	}

	// 卖方同理回退到最优买价
	in.Order.Side = domain.SideShort
	if _, err := Propose(in); !errors.Is(err, domain.ErrNoBestBid) {
		t.Fatalf("got %v, want ErrNoBestBid", err)
	}

	// 现货没有连续盘口可回退，视为订单不存在
	in.Order.Market.Kind = domain.MarketSpot
	if _, err := Propose(in); !errors.Is(err, domain.ErrTakerOrderNotFound) {
		t.Fatalf("got %v, want ErrTakerOrderNotFound", err)
	}
}

func TestPositionLimitedSize(t *testing.T) {
	env := domain.Envelope{MaxPosition: 100 * base, MinPosition: -100 * base}
	minSize := uint64(base / 100)

	cases := []struct {
		name      string
		side      domain.Side
		remaining uint64
		existing  int64
		want      uint64
		breach    bool
	}{
		// 同向、未触界：全量
		{"long full", domain.SideLong, 100 * base, 0, 100 * base, false},
		// 同向、余量不足：裁剪到余量
		{"long clamp", domain.SideLong, 100 * base, 40 * base, 60 * base, false},
		// 反向仓位不构成约束
		{"short against long position", domain.SideShort, 100 * base, 40 * base, 100 * base, false},
		// 仓位已越下界、本单是反向减仓：允许全量穿越
		{"reduce through breach", domain.SideLong, 200 * base, -150 * base, 200 * base, false},
		// 同向且已触界：拒绝
		{"long breached", domain.SideLong, 100 * base, 100 * base, 0, true},
		{"short breached", domain.SideShort, 100 * base, -100 * base, 0, true},
		// 余量不足最小下单量：拒绝
		{"headroom below min", domain.SideLong, 100 * base, 100*base - int64(minSize)/2, 0, true},
		// 余量恰好等于最小下单量：同样拒绝
		{"headroom equals min", domain.SideLong, 100 * base, 100*base - int64(minSize), 0, true},
	}
	for _, c := range cases {
		got, err := positionLimitedSize(env, c.side, c.remaining, c.existing, minSize)
		if c.breach {
			if !errors.Is(err, domain.ErrPositionLimitBreached) {
				t.Errorf("%s: got err %v, want ErrPositionLimitBreached", c.name, err)
			}
			continue
		}
		if err != nil {
			t.Errorf("%s: %v", c.name, err)
			continue
		}
		if got != c.want {
			t.Errorf("%s: got %d, want %d", c.name, got, c.want)
		}
	}
}

func TestPositionLimitedSizeZeroMinAtCap(t *testing.T) {
	// 市场最小下单量为 0 且仓位恰好触界：余量为 0，必须拒绝而非给出零量
	env := domain.Envelope{MaxPosition: 100 * base, MinPosition: -100 * base}
	_, err := positionLimitedSize(env, domain.SideLong, 100*base, 100*base, 0)
	if !errors.Is(err, domain.ErrPositionLimitBreached) {
		t.Fatalf("got %v, want ErrPositionLimitBreached", err)
	}
}

func TestProposeNeverEmitsZeroSize(t *testing.T) {
	// 仓位触顶、最小下单量为 0：不得报出 BaseAmount 为 0 的对手单
	in := proposeInput()
	in.Meta.MinOrderSize = 0
	in.ExistingPosition = in.Envelope.MaxPosition
	if co, err := Propose(in); !errors.Is(err, domain.ErrPositionLimitBreached) {
		t.Fatalf("got order %+v, err %v, want ErrPositionLimitBreached", co, err)
	}
}

func TestProposeSizeFloorsToMinOrder(t *testing.T) {
	// 吃单余量低于最小下单量时按最小下单量报
	in := proposeInput()
	in.Order.BaseAmount = in.Meta.MinOrderSize / 2
	co, err := Propose(in)
	if err != nil {
		t.Fatal(err)
	}
	if co.BaseAmount != in.Meta.MinOrderSize {
		t.Errorf("size: got %d, want %d", co.BaseAmount, in.Meta.MinOrderSize)
	}
}

func TestProposeNeverExceedsEnvelope(t *testing.T) {
	// 任意仓位/界组合下，提案数量不能把净仓位推出包络，
	// 除非本单本身是减仓方向
	f := func(existingRaw int32, remainingRaw uint16, long bool) bool {
		env := domain.Envelope{MaxPosition: 100 * base, MinPosition: -100 * base}
		existing := int64(existingRaw) % (120 * base / 1_000_000) * 1_000_000
		remaining := uint64(remainingRaw) * uint64(base) / 100
		side := domain.SideShort
		if long {
			side = domain.SideLong
		}
		size, err := positionLimitedSize(env, side, remaining, existing, 1)
		if err != nil {
			return errors.Is(err, domain.ErrPositionLimitBreached)
		}
		if size > remaining {
			return false
		}
		if side == domain.SideLong {
			return existing+int64(size) <= env.MaxPosition || existing < env.MinPosition
		}
		return existing-int64(size) >= env.MinPosition || existing > env.MaxPosition
	}
	if err := quick.Check(f, nil); err != nil {
		t.Error(err)
	}
}
