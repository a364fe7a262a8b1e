package engine

import (
	"context"
	"fmt"
	"hash/fnv"
	"sync"

	"github.com/upmaker/jitgo/internal/domain"
)

// ErrDuplicateAuction 表示同一拍卖已有撮合任务在运行。
// 同一吃单同时起两个任务会导致重复成交，必须确定性拒绝。
var ErrDuplicateAuction = fmt.Errorf("duplicate auction in flight")

// Registry 拍卖级别的在途任务注册表：每个拍卖至多一个撮合任务。
//
// 设计目标：
// - 不允许误判（哈希冲突导致漏掉拍卖的代价远高于一次锁竞争）
// - 开销可控（分片 map，任务结束即删）
//
// key 的生命周期由任务 goroutine 自己管理：进入时 TryBegin，
// 所有退出路径上 defer End。
type Registry struct {
	shards []registryShard
}

type registryShard struct {
	mu sync.Mutex
	m  map[domain.AuctionKey]context.CancelFunc
}

// NewRegistry 创建注册表
func NewRegistry(shardCount int) *Registry {
	if shardCount <= 0 {
		shardCount = 64
	}
	shards := make([]registryShard, shardCount)
	for i := range shards {
		shards[i].m = make(map[domain.AuctionKey]context.CancelFunc)
	}
	return &Registry{shards: shards}
}

// TryBegin 尝试登记一个撮合任务。
// cancel 用于 CancelAll 时统一中止所有任务。
// 已有同 key 任务时返回 ErrDuplicateAuction。
func (r *Registry) TryBegin(key domain.AuctionKey, cancel context.CancelFunc) error {
	if key == "" {
		return fmt.Errorf("empty auction key")
	}
	sh := r.shard(key)
	sh.mu.Lock()
	defer sh.mu.Unlock()

	if _, ok := sh.m[key]; ok {
		return ErrDuplicateAuction
	}
	sh.m[key] = cancel
	return nil
}

// End 注销任务。幂等：重复调用或 key 不存在时无事发生。
func (r *Registry) End(key domain.AuctionKey) {
	if key == "" {
		return
	}
	sh := r.shard(key)
	sh.mu.Lock()
	delete(sh.m, key)
	sh.mu.Unlock()
}

// CancelAll 中止所有在途任务（暂停/停机时调用）。
// 只触发 cancel，不等待任务退出；注销仍由各任务的 defer End 完成。
func (r *Registry) CancelAll() {
	for i := range r.shards {
		sh := &r.shards[i]
		sh.mu.Lock()
		for _, cancel := range sh.m {
			if cancel != nil {
				cancel()
			}
		}
		sh.mu.Unlock()
	}
}

// Len 当前在途任务数
func (r *Registry) Len() int {
	n := 0
	for i := range r.shards {
		sh := &r.shards[i]
		sh.mu.Lock()
		n += len(sh.m)
		sh.mu.Unlock()
	}
	return n
}

func (r *Registry) shard(key domain.AuctionKey) *registryShard {
	h := fnv.New32a()
	_, _ = h.Write([]byte(key))
	idx := int(h.Sum32()) % len(r.shards)
	return &r.shards[idx]
}
