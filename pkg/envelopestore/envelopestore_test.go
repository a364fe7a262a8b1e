package envelopestore

import (
	"testing"

	"github.com/upmaker/jitgo/internal/domain"
)

func openTemp(t *testing.T) *Store {
	t.Helper()
	s, err := Open(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func sampleEnvelope() domain.Envelope {
	return domain.Envelope{
		MaxPosition: 12_500_000_000,
		MinPosition: -12_500_000_000,
		Bid:         99_950_000,
		Ask:         100_050_000,
		PriceKind:   domain.PriceOracle,
		PostOnly:    domain.PostOnlyTry,
	}
}

func TestPutGetDelete(t *testing.T) {
	s := openTemp(t)
	market := domain.MarketID{Kind: domain.MarketPerp, Index: 3}

	if _, ok, err := s.Get(market); err != nil || ok {
		t.Fatalf("empty store: ok=%v err=%v", ok, err)
	}

	want := sampleEnvelope()
	if err := s.Put(market, want); err != nil {
		t.Fatal(err)
	}
	got, ok, err := s.Get(market)
	if err != nil || !ok {
		t.Fatalf("get: ok=%v err=%v", ok, err)
	}
	if got != want {
		t.Errorf("roundtrip: got %+v, want %+v", got, want)
	}

	if err := s.Delete(market); err != nil {
		t.Fatal(err)
	}
	if _, ok, _ := s.Get(market); ok {
		t.Error("envelope survived delete")
	}
	// deleting again is fine
	if err := s.Delete(market); err != nil {
		t.Fatal(err)
	}
}

func TestAllSeparatesKinds(t *testing.T) {
	s := openTemp(t)
	perp := domain.MarketID{Kind: domain.MarketPerp, Index: 0}
	spot := domain.MarketID{Kind: domain.MarketSpot, Index: 0}

	envPerp := sampleEnvelope()
	envSpot := sampleEnvelope()
	envSpot.MaxPosition = 1_000_000_000

	if err := s.Put(perp, envPerp); err != nil {
		t.Fatal(err)
	}
	if err := s.Put(spot, envSpot); err != nil {
		t.Fatal(err)
	}

	all, err := s.All()
	if err != nil {
		t.Fatal(err)
	}
	if len(all) != 2 {
		t.Fatalf("all: got %d entries", len(all))
	}
	if all[perp] != envPerp {
		t.Errorf("perp: got %+v", all[perp])
	}
	if all[spot] != envSpot {
		t.Errorf("spot: got %+v", all[spot])
	}
}
