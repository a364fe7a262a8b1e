package engine

import (
	"fmt"
	"sync"
	"testing"
	"testing/quick"

	"github.com/upmaker/jitgo/internal/domain"
)

func TestRegistryDedup(t *testing.T) {
	r := NewRegistry(0)
	key := domain.NewAuctionKey("taker", 1)

	if err := r.TryBegin(key, func() {}); err != nil {
		t.Fatal(err)
	}
	if err := r.TryBegin(key, func() {}); err != ErrDuplicateAuction {
		t.Fatalf("got %v, want ErrDuplicateAuction", err)
	}
	if r.Len() != 1 {
		t.Fatalf("len: got %d, want 1", r.Len())
	}

	r.End(key)
	if r.Len() != 0 {
		t.Fatalf("len after end: got %d, want 0", r.Len())
	}
	// 释放后可再次登记
	if err := r.TryBegin(key, func() {}); err != nil {
		t.Fatal(err)
	}
}

func TestRegistryEndIdempotent(t *testing.T) {
	r := NewRegistry(4)
	key := domain.NewAuctionKey("taker", 1)
	r.End(key) // 不存在时无事发生
	if err := r.TryBegin(key, nil); err != nil {
		t.Fatal(err)
	}
	r.End(key)
	r.End(key)
	if r.Len() != 0 {
		t.Fatalf("len: got %d, want 0", r.Len())
	}
}

func TestRegistryCancelAll(t *testing.T) {
	r := NewRegistry(8)
	canceled := make([]bool, 5)
	for i := range canceled {
		i := i
		key := domain.NewAuctionKey("taker", uint32(i))
		if err := r.TryBegin(key, func() { canceled[i] = true }); err != nil {
			t.Fatal(err)
		}
	}
	r.CancelAll()
	for i, c := range canceled {
		if !c {
			t.Errorf("task %d not canceled", i)
		}
	}
	// CancelAll 只触发 cancel，不注销
	if r.Len() != 5 {
		t.Fatalf("len: got %d, want 5", r.Len())
	}
}

func TestRegistryConcurrentSingleWinner(t *testing.T) {
	// 同一 key 并发竞争时恰好一个成功
	r := NewRegistry(0)
	key := domain.NewAuctionKey("taker", 42)

	const n = 32
	var wg sync.WaitGroup
	wins := make(chan struct{}, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if r.TryBegin(key, func() {}) == nil {
				wins <- struct{}{}
			}
		}()
	}
	wg.Wait()
	close(wins)

	count := 0
	for range wins {
		count++
	}
	if count != 1 {
		t.Fatalf("winners: got %d, want 1", count)
	}
}

func TestRegistryLenProperty(t *testing.T) {
	// 任意不重复 key 集合：登记后 Len 等于 key 数，全部 End 后归零
	f := func(ids []uint32) bool {
		r := NewRegistry(16)
		seen := make(map[uint32]bool)
		keys := make([]domain.AuctionKey, 0, len(ids))
		for _, id := range ids {
			if seen[id] {
				continue
			}
			seen[id] = true
			k := domain.NewAuctionKey(fmt.Sprintf("t%d", id%7), id)
			if err := r.TryBegin(k, nil); err != nil {
				return false
			}
			keys = append(keys, k)
		}
		if r.Len() != len(keys) {
			return false
		}
		for _, k := range keys {
			r.End(k)
		}
		return r.Len() == 0
	}
	if err := quick.Check(f, nil); err != nil {
		t.Error(err)
	}
}
