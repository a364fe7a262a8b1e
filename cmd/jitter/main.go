package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"

	"github.com/upmaker/jitgo/internal/arb"
	"github.com/upmaker/jitgo/internal/controlplane/server"
	"github.com/upmaker/jitgo/internal/domain"
	"github.com/upmaker/jitgo/internal/engine"
	"github.com/upmaker/jitgo/internal/infrastructure/gateway"
	"github.com/upmaker/jitgo/internal/infrastructure/websocket"
	"github.com/upmaker/jitgo/internal/journal"
	"github.com/upmaker/jitgo/internal/risk"
	"github.com/upmaker/jitgo/pkg/config"
	"github.com/upmaker/jitgo/pkg/envelopestore"
	"github.com/upmaker/jitgo/pkg/logger"
	"github.com/upmaker/jitgo/pkg/shutdown"
	"github.com/upmaker/jitgo/pkg/syncgroup"
)

// breakerAdapter 把 risk.CircuitBreaker 接到调度器的 Breaker 接口：
// 成交清零计数，异常终止累计，到期即熔断。
type breakerAdapter struct {
	cb *risk.CircuitBreaker
}

func (a breakerAdapter) Allow() bool {
	return a.cb.AllowTrading() == nil
}

func (a breakerAdapter) Observe(result engine.Result) {
	switch result {
	case engine.ResultFilled:
		a.cb.OnSuccess()
	case engine.ResultAborted:
		a.cb.OnAbort()
	}
}

func buildStrategy(cfg *config.Config, client *gateway.Client, clock *websocket.Feed) (engine.Strategy, error) {
	minFill, err := config.ParseBase(cfg.Engine.MinFillSize)
	if err != nil {
		return nil, fmt.Errorf("min_fill_size: %w", err)
	}
	if minFill < 0 {
		return nil, fmt.Errorf("min_fill_size 不能为负: %s", cfg.Engine.MinFillSize)
	}

	switch cfg.Engine.Strategy {
	case "sniper":
		return &engine.Sniper{
			State:         client,
			Exec:          client,
			Clock:         clock,
			BurstAttempts: cfg.Engine.BurstAttempts,
			BurstDelay:    time.Duration(cfg.Engine.BurstDelayMs) * time.Millisecond,
			MinFillSize:   uint64(minFill),
		}, nil
	default:
		return &engine.Shotgun{
			State:       client,
			Exec:        client,
			Clock:       clock,
			RetryDelay:  time.Duration(cfg.Engine.RetryDelayMs) * time.Millisecond,
			MinFillSize: uint64(minFill),
		}, nil
	}
}

func main() {
	configPath := flag.String("config", "", "配置文件路径（支持 .yaml, .yml, .json）")
	flag.Parse()

	// .env 不存在不是错误
	_ = godotenv.Load()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "加载配置失败: %v\n", err)
		os.Exit(1)
	}

	if err := logger.Init(logger.Config{
		Level:      cfg.LogLevel,
		OutputFile: cfg.LogFile,
		MaxSize:    cfg.LogMaxSizeMB,
		MaxBackups: cfg.LogMaxBackups,
	}); err != nil {
		fmt.Fprintf(os.Stderr, "初始化日志失败: %v\n", err)
		os.Exit(1)
	}
	log := logger.WithField("component", "main")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// 网关 REST 客户端（状态读取 + 下单）
	client := gateway.NewClient(gateway.Config{
		BaseURL: cfg.Gateway.BaseURL,
		APIKey:  cfg.Gateway.APIKey,
		Timeout: time.Duration(cfg.Gateway.TimeoutMs) * time.Millisecond,
		Retries: cfg.Gateway.Retries,
	})

	// 事件流：吃单事件、快车道订单、slot 时钟
	feed := websocket.NewFeed(cfg.Gateway.WSURL)
	if err := feed.Connect(ctx); err != nil {
		log.WithField("error", err.Error()).Fatal("连接事件流失败")
	}

	// 熔断器
	dailyLoss, err := config.ParseQuote(cfg.Risk.DailyLossLimit)
	if err != nil {
		log.WithField("error", err.Error()).Fatal("daily_loss_limit 配置非法")
	}
	breaker := risk.NewCircuitBreaker(risk.CircuitBreakerConfig{
		MaxConsecutiveAborts: cfg.Risk.MaxConsecutiveAborts,
		DailyLossLimit:       dailyLoss,
	})

	// 成交流水
	jnl, err := journal.Open(cfg.JournalPath)
	if err != nil {
		log.WithField("error", err.Error()).Fatal("打开流水库失败")
	}

	strategy, err := buildStrategy(cfg, client, feed)
	if err != nil {
		log.WithField("error", err.Error()).Fatal("构建策略失败")
	}
	log.WithField("strategy", cfg.Engine.Strategy).Info("strategy selected")

	sched := engine.NewScheduler(client, strategy, jnl, breakerAdapter{cb: breaker})

	// 排除自己的吃单授权账户，避免自成交
	if len(cfg.Engine.ExcludeTakers) > 0 {
		excluded := make(map[string]struct{}, len(cfg.Engine.ExcludeTakers))
		for _, taker := range cfg.Engine.ExcludeTakers {
			excluded[taker] = struct{}{}
		}
		sched.SetExclusion(func(authority string) bool {
			_, ok := excluded[authority]
			return ok
		})
	}

	// 包络加载顺序：先持久化存储（上次运行的在线调参），再配置文件覆盖
	store, err := envelopestore.Open(cfg.EnvelopePath)
	if err != nil {
		log.WithField("error", err.Error()).Fatal("打开包络存储失败")
	}
	stored, err := store.All()
	if err != nil {
		log.WithField("error", err.Error()).Fatal("读取包络存储失败")
	}
	for market, env := range stored {
		sched.SetEnvelope(market, env)
	}
	for _, mc := range cfg.Markets {
		market, env, err := mc.Envelope()
		if err != nil {
			log.WithField("error", err.Error()).Fatal("市场配置非法")
		}
		sched.SetEnvelope(market, env)
		if err := store.Put(market, env); err != nil {
			log.WithFields(logrus.Fields{"market": market.String(), "error": err.Error()}).
				Warn("持久化包络失败")
		}
	}

	// 事件消费循环
	sg := syncgroup.NewSyncGroup()
	sg.Add(func() {
		for {
			select {
			case <-ctx.Done():
				return
			case u := <-feed.Updates():
				sched.OnAccountUpdate(ctx, u)
			}
		}
	})
	sg.Add(func() {
		for {
			select {
			case <-ctx.Done():
				return
			case signed := <-feed.SignedOrders():
				if err := sched.OnFastlaneOrder(ctx, signed); err != nil {
					log.WithField("error", err.Error()).Debug("fastlane order rejected")
				}
			}
		}
	})

	// 套利扫描（可选）
	if cfg.Arb.Enabled {
		scanners := make([]*arb.Scanner, 0, len(cfg.Arb.Markets))
		for _, idx := range cfg.Arb.Markets {
			scanners = append(scanners, &arb.Scanner{
				State:  client,
				Exec:   client,
				Market: domain.MarketID{Kind: domain.MarketPerp, Index: idx},
			})
		}
		runner := &arb.Runner{
			Scanners: scanners,
			Interval: time.Duration(cfg.Arb.IntervalMs) * time.Millisecond,
			OnProfit: breaker.AddPnL,
		}
		sg.Add(func() { runner.Run(ctx) })
	}
	sg.Run()

	// 控制面
	ctl := server.New(sched, store, jnl, breaker)
	if err := ctl.Start(cfg.ControlListen); err != nil {
		log.WithField("error", err.Error()).Fatal("启动控制面失败")
	}

	log.Info("jitter started")

	// 优雅关闭：先停接新拍卖，再等在途任务收尾
	mgr := shutdown.NewManager()
	mgr.OnShutdown(func(ctx context.Context, wg *sync.WaitGroup) {
		// 顺序收尾：控制面 → 在途任务 → 事件流 → 存储
		_ = ctl.Shutdown(ctx)
		sched.Shutdown()
		_ = feed.Close()
		_ = jnl.Close()
		_ = store.Close()
	})

	sigC := make(chan os.Signal, 1)
	signal.Notify(sigC, syscall.SIGINT, syscall.SIGTERM)
	<-sigC
	log.Info("shutting down")

	cancel()
	shutCtx, shutCancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer shutCancel()
	mgr.Shutdown(shutCtx)
	sg.Wait()
	log.Info("jitter stopped")
}
