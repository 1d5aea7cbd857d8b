package websocket

import (
	"context"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/gorilla/websocket"

	apiconfig "github.com/weisyn/tonrelay/internal/config/api"
	"github.com/weisyn/tonrelay/internal/core/relay/metrics"
	"github.com/weisyn/tonrelay/pkg/interfaces/infrastructure/log"
	"github.com/weisyn/tonrelay/pkg/interfaces/overlay"
	"github.com/weisyn/tonrelay/pkg/interfaces/relay"
	"github.com/weisyn/tonrelay/pkg/types"
)

// Handler 连接命令处理器
//
// 📋 **命令**
//   - subscribe / unsubscribe：增删单个过滤器
//   - send_external：十六进制解码后注入覆盖网络，成功后才确认
//   - get_peers_amount：返回覆盖网络当前对等节点数
//
// 连接关闭时（任一方关闭、协议错误、写超时、队列溢出）恰好执行一次 UnsubscribeAll。
type Handler struct {
	registry relay.Registry
	overlay  overlay.Overlay
	codec    relay.Codec
	opts     *apiconfig.APIOptions
	logger   log.Logger
	metrics  *metrics.Metrics

	mu     sync.Mutex
	conns  map[types.HandleID]*Conn
	active atomic.Int64
}

// NewHandler 创建命令处理器
func NewHandler(registry relay.Registry, ov overlay.Overlay, codec relay.Codec, opts *apiconfig.APIOptions, logger log.Logger, m *metrics.Metrics) *Handler {
	return &Handler{
		registry: registry,
		overlay:  ov,
		codec:    codec,
		opts:     opts,
		logger:   logger,
		metrics:  m,
		conns:    make(map[types.HandleID]*Conn),
	}
}

// Serve 接管已升级的连接，阻塞直到连接关闭
func (h *Handler) Serve(ctx context.Context, ws *websocket.Conn) {
	c := newConn(ctx, ws, h.opts, h.logger, h.teardown)

	h.mu.Lock()
	h.conns[c.ID()] = c
	h.mu.Unlock()
	h.active.Add(1)
	h.metrics.Connections.Inc()
	c.logger.Debug("订阅者已连接")

	c.readLoop(h.dispatch)
	c.writerWG.Wait()
}

// ActiveConnections 在线连接数
func (h *Handler) ActiveConnections() int {
	return int(h.active.Load())
}

// CloseAll 关闭所有在线连接
func (h *Handler) CloseAll() {
	h.mu.Lock()
	conns := make([]*Conn, 0, len(h.conns))
	for _, c := range h.conns {
		conns = append(conns, c)
	}
	h.mu.Unlock()

	for _, c := range conns {
		c.Close()
	}
}

// teardown 由 Conn.Close 恰好调用一次
func (h *Handler) teardown(c *Conn) {
	h.registry.UnsubscribeAll(c.ID())

	h.mu.Lock()
	delete(h.conns, c.ID())
	h.mu.Unlock()
	h.active.Add(-1)
	h.metrics.Connections.Dec()
	c.logger.Debug("订阅者已断开")
}

// dispatch 解析并执行一帧客户端命令，任何错误都以结构化回复返回，不断开连接
func (h *Handler) dispatch(c *Conn, frame []byte) {
	var req Request
	if err := json.Unmarshal(frame, &req); err != nil {
		h.reply(c, errorReply("", ErrMalformedRequest))
		h.metrics.Commands.WithLabelValues(replyTypeError, StatusError).Inc()
		return
	}

	reply, err := h.execute(c, &req)
	if err != nil {
		c.logger.Debugf("命令 %q 失败: %v", req.Type, err)
		reply = errorReply(req.Type, clientError(err))
	}

	label := req.Type
	if label == "" || !knownCommand(label) {
		label = "unknown"
	}
	status := StatusOK
	if err != nil {
		status = StatusError
	}
	h.metrics.Commands.WithLabelValues(label, status).Inc()

	h.reply(c, reply)
}

func (h *Handler) execute(c *Conn, req *Request) (Reply, error) {
	switch req.Type {
	case CommandSubscribe:
		return h.handleFilter(c, req, true)
	case CommandUnsubscribe:
		return h.handleFilter(c, req, false)
	case CommandSendExternal:
		return h.handleSendExternal(c.Context(), req)
	case CommandGetPeersAmount:
		return Reply{Type: CommandGetPeersAmount, Answer: PeersAnswer{Amount: h.overlay.PeerCount()}}, nil
	default:
		return Reply{}, fmt.Errorf("%w: %q", ErrUnknownCommand, req.Type)
	}
}

func (h *Handler) handleFilter(c *Conn, req *Request, subscribe bool) (Reply, error) {
	var data FilterData
	if len(req.Data) == 0 || json.Unmarshal(req.Data, &data) != nil {
		return Reply{}, ErrMalformedRequest
	}
	if data.Type != streamExternal {
		return Reply{}, fmt.Errorf("%w: %q", ErrUnsupportedStream, data.Type)
	}

	filter, normalized, err := h.parseFilter(&data)
	if err != nil {
		return Reply{}, err
	}

	if subscribe {
		// 路由协程可能已因溢出或写超时关闭连接，此时不能再登记
		if !c.whileOpen(func() { h.registry.Subscribe(filter, c) }) {
			return Reply{}, ErrSubscriberClosed
		}
	} else {
		h.registry.Unsubscribe(filter, c.ID())
	}
	c.logger.Debugf("%s %s", req.Type, filter)

	return Reply{
		Type: req.Type,
		Answer: FilterAnswer{
			Type:    streamExternal,
			Status:  StatusOK,
			From:    data.From,
			Address: normalized,
		},
	}, nil
}

// parseFilter 校验过滤器并返回规范化地址（通配时为 nil）
func (h *Handler) parseFilter(data *FilterData) (types.Filter, *string, error) {
	kind := types.FilterKind(data.From)
	if !kind.Valid() {
		return types.Filter{}, nil, fmt.Errorf("%w: from=%q", ErrInvalidFilter, data.From)
	}
	if kind == types.FilterAll {
		return types.AllFilter(), nil, nil
	}
	if strings.TrimSpace(data.Address) == "" {
		return types.Filter{}, nil, fmt.Errorf("%w: address is required", ErrInvalidFilter)
	}

	addr, err := h.codec.ParseAddress(data.Address)
	if err != nil {
		return types.Filter{}, nil, fmt.Errorf("%w: %v", ErrInvalidAddress, err)
	}
	normalized := addr.String()
	return types.Filter{Kind: kind, Address: addr.Hash}, &normalized, nil
}

func (h *Handler) handleSendExternal(ctx context.Context, req *Request) (Reply, error) {
	var encoded string
	if len(req.Data) == 0 || json.Unmarshal(req.Data, &encoded) != nil {
		return Reply{}, ErrMalformedRequest
	}
	payload, err := hex.DecodeString(strings.TrimPrefix(encoded, "0x"))
	if err != nil || len(payload) == 0 {
		return Reply{}, ErrInvalidPayload
	}

	if err := h.overlay.Inject(ctx, payload); err != nil {
		h.metrics.InjectFailures.Inc()
		h.logger.Warnf("注入外部消息失败: %v", err)
		return Reply{}, fmt.Errorf("%w: %v", ErrInjectFailed, err)
	}
	h.metrics.Injected.Inc()
	return Reply{Type: CommandSendExternal, Answer: StatusAnswer{Status: StatusOK}}, nil
}

func (h *Handler) reply(c *Conn, reply Reply) {
	frame, err := json.Marshal(reply)
	if err != nil {
		h.logger.Errorf("序列化回复失败: %v", err)
		return
	}
	_ = c.Send(frame)
}

// inputErrors 由客户端输入引起的协议错误，附带的细节（地址、过滤器、命令名）原样回给客户端
var inputErrors = []error{
	ErrMalformedRequest, ErrUnknownCommand, ErrUnsupportedStream,
	ErrInvalidFilter, ErrInvalidAddress, ErrInvalidPayload,
}

// clientError 决定回给客户端的错误
//
// 注入失败的原因来自覆盖网络内部（邻居地址、连接错误），只写日志，客户端只看到 ErrInjectFailed；
// 其余未知错误统一为 ErrMalformedRequest
func clientError(err error) error {
	if errors.Is(err, ErrInjectFailed) {
		return ErrInjectFailed
	}
	for _, known := range inputErrors {
		if errors.Is(err, known) {
			return err
		}
	}
	return ErrMalformedRequest
}

func knownCommand(t string) bool {
	switch t {
	case CommandSubscribe, CommandUnsubscribe, CommandSendExternal, CommandGetPeersAmount:
		return true
	}
	return false
}
