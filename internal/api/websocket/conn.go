package websocket

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	apiconfig "github.com/weisyn/tonrelay/internal/config/api"
	"github.com/weisyn/tonrelay/pkg/interfaces/infrastructure/log"
	"github.com/weisyn/tonrelay/pkg/interfaces/relay"
	"github.com/weisyn/tonrelay/pkg/types"
)

// closeGracePeriod 写出关闭帧的最长等待时间
const closeGracePeriod = time.Second

var (
	// ErrSubscriberClosed 连接已关闭后的 Send
	ErrSubscriberClosed = errors.New("subscriber connection closed")
	// ErrSendQueueFull 出站队列已满，连接会被关闭
	ErrSendQueueFull = errors.New("subscriber send queue full")
)

// Conn 一个订阅者连接
//
// 每个连接一个读协程（Serve）和一个写协程（writeLoop）。
// 所有出站帧都经过有界队列，由写协程按序写出；队列溢出或写超时都会关闭连接。
type Conn struct {
	id     types.HandleID
	ws     *websocket.Conn
	opts   *apiconfig.APIOptions
	logger log.Logger

	ctx    context.Context
	cancel context.CancelFunc

	send      chan []byte
	closeOnce sync.Once
	onClose   func(*Conn)
	writerWG  sync.WaitGroup

	// stateMu 保证订阅登记与关闭清理不交错
	stateMu sync.Mutex
	closed  bool
}

var _ relay.Subscriber = (*Conn)(nil)

// newConn 包装已升级的连接并启动写协程
// onClose 在连接关闭时恰好执行一次
func newConn(parent context.Context, ws *websocket.Conn, opts *apiconfig.APIOptions, logger log.Logger, onClose func(*Conn)) *Conn {
	id := types.NewHandleID()
	ctx, cancel := context.WithCancel(parent)
	queue := opts.SendQueueSize
	if queue <= 0 {
		queue = 1
	}
	c := &Conn{
		id:      id,
		ws:      ws,
		opts:    opts,
		logger:  logger.With("handle", id.String(), "remote", ws.RemoteAddr().String()),
		ctx:     ctx,
		cancel:  cancel,
		send:    make(chan []byte, queue),
		onClose: onClose,
	}
	c.writerWG.Add(1)
	go c.writeLoop()
	return c
}

// ID 连接标识
func (c *Conn) ID() types.HandleID { return c.id }

// Context 连接生命周期内有效的上下文
func (c *Conn) Context() context.Context { return c.ctx }

// Send 非阻塞入队；队列满时关闭连接
func (c *Conn) Send(frame []byte) error {
	select {
	case <-c.ctx.Done():
		return ErrSubscriberClosed
	default:
	}

	select {
	case c.send <- frame:
		return nil
	case <-c.ctx.Done():
		return ErrSubscriberClosed
	default:
		c.logger.Warnf("出站队列已满(%d)，断开慢速订阅者", cap(c.send))
		c.Close()
		return ErrSendQueueFull
	}
}

// Close 关闭连接，可并发重复调用
//
// 可能由路由协程调用（队列溢出），因此不在调用方协程中等待关闭帧写出
func (c *Conn) Close() {
	c.closeOnce.Do(func() {
		c.stateMu.Lock()
		c.closed = true
		c.stateMu.Unlock()

		c.cancel()
		if c.onClose != nil {
			c.onClose(c)
		}
		go func() {
			_ = c.ws.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
				time.Now().Add(closeGracePeriod))
			_ = c.ws.Close()
		}()
	})
}

// whileOpen 连接未关闭时执行 fn 并返回 true
//
// fn 执行期间 Close 会等待，因此 fn 中登记的订阅一定会被关闭回调清理
func (c *Conn) whileOpen(fn func()) bool {
	c.stateMu.Lock()
	defer c.stateMu.Unlock()
	if c.closed {
		return false
	}
	fn()
	return true
}

// readLoop 读取客户端帧直到连接关闭，每帧交给 dispatch
func (c *Conn) readLoop(dispatch func(c *Conn, frame []byte)) {
	defer c.Close()

	pongWait := c.opts.PongWait()
	if c.opts.MaxMessageSize > 0 {
		c.ws.SetReadLimit(c.opts.MaxMessageSize)
	}
	_ = c.ws.SetReadDeadline(time.Now().Add(pongWait))
	c.ws.SetPongHandler(func(string) error {
		return c.ws.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		messageType, frame, err := c.ws.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) && c.ctx.Err() == nil {
				c.logger.Debugf("连接异常关闭: %v", err)
			}
			return
		}
		if messageType != websocket.TextMessage {
			continue
		}
		_ = c.ws.SetReadDeadline(time.Now().Add(pongWait))
		dispatch(c, frame)
	}
}

// writeLoop 唯一的写协程：出站帧与 ping 都在这里写出
func (c *Conn) writeLoop() {
	defer c.writerWG.Done()

	ticker := time.NewTicker(c.opts.PingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-c.ctx.Done():
			return
		case frame := <-c.send:
			if err := c.write(websocket.TextMessage, frame); err != nil {
				c.logger.Debugf("写入失败，关闭连接: %v", err)
				c.Close()
				return
			}
		case <-ticker.C:
			if err := c.write(websocket.PingMessage, nil); err != nil {
				c.logger.Debugf("ping 失败，关闭连接: %v", err)
				c.Close()
				return
			}
		}
	}
}

func (c *Conn) write(messageType int, data []byte) error {
	if err := c.ws.SetWriteDeadline(time.Now().Add(c.opts.WriteTimeout)); err != nil {
		return err
	}
	return c.ws.WriteMessage(messageType, data)
}
