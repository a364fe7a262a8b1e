package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/upmaker/jitgo/internal/domain"
)

func newTestClient(t *testing.T, handler http.Handler) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return NewClient(Config{BaseURL: srv.URL})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func TestGetOraclePrice(t *testing.T) {
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/markets/perp/0/oracle" {
			t.Errorf("path: %s", r.URL.Path)
		}
		writeJSON(w, 200, map[string]any{"price": 105_000_000, "slot": 123, "confidence": 50})
	}))

	got, err := c.GetOraclePrice(context.Background(), domain.MarketID{Kind: domain.MarketPerp, Index: 0})
	if err != nil {
		t.Fatal(err)
	}
	if got.Price != 105_000_000 || got.Slot != 123 {
		t.Errorf("oracle: %+v", got)
	}
}

func TestErrorCodeDecoding(t *testing.T) {
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, 422, map[string]string{"code": "AskNotCrossed", "message": "taker below maker ask"})
	}))

	_, err := c.SubmitCounterOrder(context.Background(), &domain.TakerOrder{Taker: "t", OrderID: 1},
		domain.CounterOrder{}, domain.Referral{})
	if !errors.Is(err, domain.ErrAskNotCrossed) {
		t.Fatalf("got %v, want ErrAskNotCrossed", err)
	}
}

func TestUnknownErrorsMapToGatewayUnavailable(t *testing.T) {
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	_, err := c.GetCollateral(context.Background())
	if !errors.Is(err, domain.ErrGatewayUnavailable) {
		t.Fatalf("got %v, want ErrGatewayUnavailable", err)
	}

	// 连不上的网关同样归为基础设施故障
	dead := NewClient(Config{BaseURL: "http://127.0.0.1:1"})
	if _, err := dead.GetCollateral(context.Background()); !errors.Is(err, domain.ErrGatewayUnavailable) {
		t.Fatalf("dead gateway: got %v", err)
	}
}

func TestGetOrderNotFound(t *testing.T) {
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	_, err := c.GetOrder(context.Background(), "taker1", 7)
	if !errors.Is(err, domain.ErrTakerOrderNotFound) {
		t.Fatalf("got %v, want ErrTakerOrderNotFound", err)
	}
}

func TestGetOrderDecodesSnapshot(t *testing.T) {
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/takers/taker1/orders/7" {
			t.Errorf("path: %s", r.URL.Path)
		}
		writeJSON(w, 200, map[string]any{
			"taker": "taker1", "order_id": 7,
			"market_kind": "perp", "market_index": 2,
			"side": "short", "kind": "oracle_offset", "status": "open",
			"slot": 500, "auction_duration": 8,
			"auction_start_price": 2_000_000, "auction_end_price": -1_000_000,
			"oracle_offset": -500_000,
			"base_amount":   3_000_000_000, "base_amount_filled": 1_000_000_000,
		})
	}))

	o, err := c.GetOrder(context.Background(), "taker1", 7)
	if err != nil {
		t.Fatal(err)
	}
	if o.Side != domain.SideShort || o.Kind != domain.OrderOracleOffset || o.Status != domain.OrderStatusOpen {
		t.Errorf("enums: %+v", o)
	}
	if o.Market != (domain.MarketID{Kind: domain.MarketPerp, Index: 2}) {
		t.Errorf("market: %+v", o.Market)
	}
	if o.Remaining() != 2_000_000_000 {
		t.Errorf("remaining: %d", o.Remaining())
	}
}

func TestGetReferrerAbsent(t *testing.T) {
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	ref, err := c.GetReferrer(context.Background(), "taker1")
	if err != nil {
		t.Fatal(err)
	}
	if ref != (domain.Referral{}) {
		t.Errorf("referral: %+v", ref)
	}
}

func TestSubmitArbPairBody(t *testing.T) {
	var got arbRequest
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/arb" || r.Method != http.MethodPost {
			t.Errorf("%s %s", r.Method, r.URL.Path)
		}
		_ = json.NewDecoder(r.Body).Decode(&got)
		writeJSON(w, 200, map[string]string{"signature": "arb-sig"})
	}))

	legs := [2]domain.CounterOrder{
		{Market: domain.MarketID{Kind: domain.MarketPerp}, Side: domain.SideShort, Price: 101, BaseAmount: 5},
		{Market: domain.MarketID{Kind: domain.MarketPerp}, Side: domain.SideLong, Price: 100, BaseAmount: 5},
	}
	out, err := c.SubmitArbPair(context.Background(), domain.MarketID{Kind: domain.MarketPerp}, legs)
	if err != nil {
		t.Fatal(err)
	}
	if out.Signature != "arb-sig" {
		t.Errorf("signature: %q", out.Signature)
	}
	if len(got.Legs) != 2 || got.Legs[0].Side != "short" || got.Legs[1].Side != "long" {
		t.Errorf("legs: %+v", got.Legs)
	}
}
