// Package websocket 订阅网关的事件流：吃单账户更新、快车道预签名订单、slot 心跳。
package websocket

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"

	"github.com/upmaker/jitgo/internal/domain"
	"github.com/upmaker/jitgo/internal/ports"
	"github.com/upmaker/jitgo/pkg/logger"
	"github.com/upmaker/jitgo/pkg/sigchan"
	"github.com/upmaker/jitgo/pkg/syncgroup"
)

const (
	reconnectCoolDown = 2 * time.Second
	pingInterval      = 10 * time.Second
	readTimeout       = 30 * time.Second
	writeTimeout      = 10 * time.Second
	handshakeTimeout  = 15 * time.Second
)

// Feed 网关事件流。一条连接承载全部订阅，
// 断线通过信号驱动的 reconnector 重建。
type Feed struct {
	url string

	conn       *websocket.Conn
	connCancel context.CancelFunc
	connMu     sync.Mutex

	reconnectC *sigchan.Chan
	closeC     chan struct{}
	closeOnce  sync.Once

	sg     *syncgroup.SyncGroup // reconnector
	connSg *syncgroup.SyncGroup // 每条连接的 read/ping

	accountC  chan ports.AccountUpdate
	fastlaneC chan *domain.SignedOrder

	slot     atomic.Uint64
	slotMu   sync.Mutex
	slotCh   chan struct{} // 每次 slot 前进时关闭并替换

	log *logrus.Entry
}

var _ ports.AccountFeed = (*Feed)(nil)
var _ ports.FastlaneFeed = (*Feed)(nil)
var _ ports.SlotClock = (*Feed)(nil)

// NewFeed 创建事件流客户端（未连接）
func NewFeed(url string) *Feed {
	return &Feed{
		url:        url,
		reconnectC: sigchan.New(1),
		closeC:     make(chan struct{}),
		sg:         syncgroup.NewSyncGroup(),
		connSg:     syncgroup.NewSyncGroup(),
		accountC:   make(chan ports.AccountUpdate, 256),
		fastlaneC:  make(chan *domain.SignedOrder, 64),
		slotCh:     make(chan struct{}),
		log:        logger.WithField("component", "feed"),
	}
}

// Updates 吃单事件通道
func (f *Feed) Updates() <-chan ports.AccountUpdate {
	return f.accountC
}

// SignedOrders 快车道订单通道
func (f *Feed) SignedOrders() <-chan *domain.SignedOrder {
	return f.fastlaneC
}

// CurrentSlot 最近观察到的 slot
func (f *Feed) CurrentSlot() uint64 {
	return f.slot.Load()
}

// WaitForSlot 阻塞到指定 slot 到达或 ctx 取消
func (f *Feed) WaitForSlot(ctx context.Context, slot uint64) error {
	for {
		if f.slot.Load() >= slot {
			return nil
		}
		f.slotMu.Lock()
		ch := f.slotCh
		f.slotMu.Unlock()

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-f.closeC:
			return fmt.Errorf("feed closed")
		case <-ch:
		}
	}
}

func (f *Feed) advanceSlot(slot uint64) {
	for {
		cur := f.slot.Load()
		if slot <= cur {
			return
		}
		if f.slot.CompareAndSwap(cur, slot) {
			break
		}
	}
	f.slotMu.Lock()
	close(f.slotCh)
	f.slotCh = make(chan struct{})
	f.slotMu.Unlock()
}

// Connect 建立连接并启动重连器
func (f *Feed) Connect(ctx context.Context) error {
	f.sg.Add(func() { f.reconnector(ctx) })
	f.sg.Run()
	return f.dialAndConnect(ctx)
}

func (f *Feed) dialAndConnect(ctx context.Context) error {
	select {
	case <-f.closeC:
		return fmt.Errorf("feed closed")
	default:
	}

	dialer := websocket.Dialer{HandshakeTimeout: handshakeTimeout}
	conn, _, err := dialer.DialContext(ctx, f.url, nil)
	if err != nil {
		return err
	}
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(readTimeout * 2))
	})

	connCtx := f.setConn(ctx, conn)

	// 等旧连接的 goroutine 退出，避免双读
	done := make(chan struct{})
	go func() {
		f.connSg.WaitAndClear()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		f.log.Debug("waiting for old connection goroutines timed out")
	}

	f.connSg.Add(func() { f.read(connCtx, conn) })
	f.connSg.Add(func() { f.ping(connCtx, conn) })
	f.connSg.Run()

	f.log.WithField("url", f.url).Info("feed connected")
	return nil
}

func (f *Feed) setConn(ctx context.Context, conn *websocket.Conn) context.Context {
	f.connMu.Lock()
	defer f.connMu.Unlock()
	if f.connCancel != nil {
		f.connCancel()
	}
	connCtx, cancel := context.WithCancel(ctx)
	f.conn = conn
	f.connCancel = cancel
	return connCtx
}

func (f *Feed) triggerReconnect() {
	f.reconnectC.Emit()
}

func (f *Feed) reconnector(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-f.closeC:
			return
		case <-f.reconnectC.C():
			select {
			case <-ctx.Done():
				return
			case <-f.closeC:
				return
			case <-time.After(reconnectCoolDown):
			}
			f.log.Warn("reconnecting feed")
			if err := f.dialAndConnect(ctx); err != nil {
				f.log.WithField("error", err.Error()).Warn("reconnect failed")
				f.triggerReconnect()
			}
		}
	}
}

func (f *Feed) read(ctx context.Context, conn *websocket.Conn) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-f.closeC:
			return
		default:
		}

		if err := conn.SetReadDeadline(time.Now().Add(readTimeout)); err != nil {
			return
		}
		_, message, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				return
			}
			// 超时只是让循环回头检查 ctx
			if netErr, ok := err.(interface{ Timeout() bool }); ok && netErr.Timeout() {
				continue
			}
			select {
			case <-f.closeC:
				return
			default:
			}
			f.log.WithField("error", err.Error()).Warn("feed read error")
			_ = conn.Close()
			f.triggerReconnect()
			return
		}
		f.handleMessage(message)
	}
}

func (f *Feed) ping(ctx context.Context, conn *websocket.Conn) {
	ticker := time.NewTicker(pingInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-f.closeC:
			return
		case <-ticker.C:
			if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeTimeout)); err != nil {
				f.log.WithField("error", err.Error()).Warn("feed ping failed")
				f.triggerReconnect()
				return
			}
		}
	}
}

// wireEnvelope 事件流的消息封皮
type wireEnvelope struct {
	Type string          `json:"type"`
	Slot uint64          `json:"slot"`
	Data json.RawMessage `json:"data"`
}

func (f *Feed) handleMessage(message []byte) {
	var env wireEnvelope
	if err := json.Unmarshal(message, &env); err != nil {
		f.log.WithField("error", err.Error()).Debug("unparsable feed message")
		return
	}
	if env.Slot > 0 {
		f.advanceSlot(env.Slot)
	}

	switch env.Type {
	case "slot":
		// slot 心跳只推进时钟
	case "account_update":
		order, err := decodeWireOrder(env.Data)
		if err != nil {
			f.log.WithField("error", err.Error()).Warn("bad account update")
			return
		}
		select {
		case f.accountC <- ports.AccountUpdate{Order: order, Slot: env.Slot}:
		default:
			// 消费方落后时丢最旧不如丢当前：拍卖事件会重复推送
			f.log.Warn("account update channel full, dropping event")
		}
	case "signed_order":
		signed, err := decodeWireSignedOrder(env.Data)
		if err != nil {
			f.log.WithField("error", err.Error()).Warn("bad signed order")
			return
		}
		select {
		case f.fastlaneC <- signed:
		default:
			f.log.Warn("signed order channel full, dropping event")
		}
	default:
		f.log.WithField("type", env.Type).Debug("unknown feed message type")
	}
}

// Close 关闭事件流
func (f *Feed) Close() error {
	f.closeOnce.Do(func() {
		close(f.closeC)
		f.connMu.Lock()
		if f.connCancel != nil {
			f.connCancel()
		}
		if f.conn != nil {
			_ = f.conn.Close()
			f.conn = nil
		}
		f.connMu.Unlock()
		f.connSg.Wait()
		f.sg.Wait()
	})
	return nil
}
