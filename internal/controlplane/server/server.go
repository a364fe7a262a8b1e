// Package server 控制面 HTTP 服务：运维侧在线调参、暂停/恢复、状态与成交查询。
// 只监听本机回环地址，不做鉴权。
package server

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/upmaker/jitgo/internal/domain"
	"github.com/upmaker/jitgo/internal/engine"
	"github.com/upmaker/jitgo/internal/journal"
	"github.com/upmaker/jitgo/internal/risk"
	"github.com/upmaker/jitgo/pkg/config"
	"github.com/upmaker/jitgo/pkg/envelopestore"
	"github.com/upmaker/jitgo/pkg/logger"
)

// Server 控制面。store、journal、breaker 均可为 nil（对应能力降级）。
type Server struct {
	sched   *engine.Scheduler
	store   *envelopestore.Store
	journal *journal.Journal
	breaker *risk.CircuitBreaker

	httpSrv *http.Server
	log     *logrus.Entry
}

func New(sched *engine.Scheduler, store *envelopestore.Store, j *journal.Journal, breaker *risk.CircuitBreaker) *Server {
	return &Server{
		sched:   sched,
		store:   store,
		journal: j,
		breaker: breaker,
		log:     logger.WithField("component", "controlplane"),
	}
}

// Router 构建路由
func (s *Server) Router() http.Handler {
	gin.SetMode(gin.ReleaseMode)
	r := gin.New()
	r.Use(gin.Recovery())

	r.GET("/healthz", func(c *gin.Context) { c.Status(http.StatusOK) })

	v1 := r.Group("/v1")
	v1.GET("/status", s.handleStatus)
	v1.POST("/pause", s.handlePause)
	v1.POST("/resume", s.handleResume)
	v1.GET("/fills", s.handleFills)

	params := v1.Group("/params")
	params.GET("", s.handleParamsList)
	params.PUT("/:kind/:index", s.handleParamsPut)
	params.DELETE("/:kind/:index", s.handleParamsDelete)

	return r
}

// Start 在后台启动监听
func (s *Server) Start(listen string) error {
	s.httpSrv = &http.Server{
		Addr:              listen,
		Handler:           s.Router(),
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		if err := s.httpSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			s.log.WithField("error", err.Error()).Error("control plane listener stopped")
		}
	}()
	s.log.WithField("listen", listen).Info("control plane started")
	return nil
}

// Shutdown 停止监听
func (s *Server) Shutdown(ctx context.Context) error {
	if s.httpSrv == nil {
		return nil
	}
	return s.httpSrv.Shutdown(ctx)
}

// envelopeView 包络的对外表示（定点数原值，与存储格式一致）
type envelopeView struct {
	Market      string `json:"market"`
	MaxPosition int64  `json:"max_position"`
	MinPosition int64  `json:"min_position"`
	Bid         int64  `json:"bid"`
	Ask         int64  `json:"ask"`
	PriceKind   string `json:"price_kind"`
	PostOnly    string `json:"post_only"`
}

func toView(market domain.MarketID, env domain.Envelope) envelopeView {
	return envelopeView{
		Market:      market.String(),
		MaxPosition: env.MaxPosition,
		MinPosition: env.MinPosition,
		Bid:         env.Bid,
		Ask:         env.Ask,
		PriceKind:   env.PriceKind.String(),
		PostOnly:    env.PostOnly.String(),
	}
}

func (s *Server) handleStatus(c *gin.Context) {
	envs := s.sched.Envelopes()
	views := make([]envelopeView, 0, len(envs))
	for market, env := range envs {
		views = append(views, toView(market, env))
	}

	tradingAllowed := true
	var haltReason string
	if s.breaker != nil {
		if err := s.breaker.AllowTrading(); err != nil {
			tradingAllowed = false
			haltReason = err.Error()
		}
	}

	c.JSON(http.StatusOK, gin.H{
		"paused":          s.sched.Paused(),
		"in_flight":       s.sched.InFlight(),
		"trading_allowed": tradingAllowed,
		"halt_reason":     haltReason,
		"envelopes":       views,
	})
}

func (s *Server) handlePause(c *gin.Context) {
	s.sched.Pause()
	c.JSON(http.StatusOK, gin.H{"paused": true})
}

func (s *Server) handleResume(c *gin.Context) {
	s.sched.Resume()
	if s.breaker != nil {
		s.breaker.Resume()
	}
	c.JSON(http.StatusOK, gin.H{"paused": false})
}

func (s *Server) handleParamsList(c *gin.Context) {
	envs := s.sched.Envelopes()
	views := make([]envelopeView, 0, len(envs))
	for market, env := range envs {
		views = append(views, toView(market, env))
	}
	c.JSON(http.StatusOK, views)
}

// envelopeRequest 调参请求体。价格与仓位用十进制字符串，
// 避免调用方用浮点数引入精度误差。
type envelopeRequest struct {
	MaxPosition string `json:"max_position"`
	MinPosition string `json:"min_position"`
	Bid         string `json:"bid"`
	Ask         string `json:"ask"`
	PriceKind   string `json:"price_kind"`
	PostOnly    string `json:"post_only"`
}

func (r *envelopeRequest) toDomain() (domain.Envelope, error) {
	if _, ok := domain.ParsePriceKind(r.PriceKind); !ok {
		return domain.Envelope{}, errors.Errorf("bad price kind %q", r.PriceKind)
	}
	if _, ok := domain.ParsePostOnlyMode(r.PostOnly); !ok {
		return domain.Envelope{}, errors.Errorf("bad post only mode %q", r.PostOnly)
	}
	mc := config.MarketConfig{
		MaxPosition: r.MaxPosition,
		MinPosition: r.MinPosition,
		Bid:         r.Bid,
		Ask:         r.Ask,
		PriceKind:   r.PriceKind,
		PostOnly:    r.PostOnly,
	}
	_, env, err := mc.Envelope()
	return env, err
}

func parseMarket(c *gin.Context) (domain.MarketID, bool) {
	kind, ok := domain.ParseMarketKind(c.Param("kind"))
	if !ok {
		c.JSON(http.StatusBadRequest, gin.H{"error": "bad market kind"})
		return domain.MarketID{}, false
	}
	idx, err := strconv.ParseUint(c.Param("index"), 10, 16)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "bad market index"})
		return domain.MarketID{}, false
	}
	return domain.MarketID{Kind: kind, Index: uint16(idx)}, true
}

func (s *Server) handleParamsPut(c *gin.Context) {
	market, ok := parseMarket(c)
	if !ok {
		return
	}
	var req envelopeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	env, err := req.toDomain()
	if err != nil {
		c.JSON(http.StatusUnprocessableEntity, gin.H{"error": err.Error()})
		return
	}

	s.sched.SetEnvelope(market, env)
	if s.store != nil {
		if err := s.store.Put(market, env); err != nil {
			// 已在内存生效，持久化失败只告警：重启后需重新调参
			s.log.WithField("error", err.Error()).Error("persist envelope failed")
			c.JSON(http.StatusOK, gin.H{"applied": true, "persisted": false})
			return
		}
	}
	c.JSON(http.StatusOK, gin.H{"applied": true, "persisted": s.store != nil})
}

func (s *Server) handleParamsDelete(c *gin.Context) {
	market, ok := parseMarket(c)
	if !ok {
		return
	}
	s.sched.DeleteEnvelope(market)
	if s.store != nil {
		if err := s.store.Delete(market); err != nil {
			s.log.WithField("error", err.Error()).Error("delete envelope failed")
		}
	}
	c.JSON(http.StatusOK, gin.H{"deleted": true})
}

func (s *Server) handleFills(c *gin.Context) {
	if s.journal == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "journal disabled"})
		return
	}
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "50"))

	kindStr := c.Query("kind")
	if kindStr == "" {
		entries, err := s.journal.Recent(c.Request.Context(), limit)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, entries)
		return
	}

	kind, ok := domain.ParseMarketKind(kindStr)
	if !ok {
		c.JSON(http.StatusBadRequest, gin.H{"error": "bad market kind"})
		return
	}
	idx, err := strconv.ParseUint(c.DefaultQuery("index", "0"), 10, 16)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "bad market index"})
		return
	}
	entries, err := s.journal.RecentFillsFor(c.Request.Context(),
		domain.MarketID{Kind: kind, Index: uint16(idx)}, limit)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, entries)
}
