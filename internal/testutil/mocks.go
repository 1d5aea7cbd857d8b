// Package testutil 提供中继各模块测试共用的 Mock 对象和辅助函数
//
// 🎯 **设计原则**：
// - 统一管理：所有 Mock 对象集中在此，避免重复定义
// - 最小实现：Mock 对象只实现必要的方法，返回合理的默认值
// - 可配置：支持设置特定返回值（如需要）
package testutil

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	logiface "github.com/weisyn/tonrelay/pkg/interfaces/infrastructure/log"
	"github.com/weisyn/tonrelay/pkg/types"
)

// ==================== MockLogger ====================

// MockLogger 统一的日志 Mock 实现
type MockLogger struct{}

func (m *MockLogger) Debug(msg string)                            {}
func (m *MockLogger) Debugf(format string, args ...interface{})   {}
func (m *MockLogger) Info(msg string)                             {}
func (m *MockLogger) Infof(format string, args ...interface{})    {}
func (m *MockLogger) Warn(msg string)                             {}
func (m *MockLogger) Warnf(format string, args ...interface{})    {}
func (m *MockLogger) Error(msg string)                            {}
func (m *MockLogger) Errorf(format string, args ...interface{})   {}
func (m *MockLogger) Fatal(msg string)                            {}
func (m *MockLogger) Fatalf(format string, args ...interface{})   {}
func (m *MockLogger) With(keyvals ...interface{}) logiface.Logger { return m }
func (m *MockLogger) Sync() error                                 { return nil }
func (m *MockLogger) GetZapLogger() *zap.Logger                   { return zap.NewNop() }

// ==================== RecordingLogger ====================

// LogEntry 记录下来的一条日志
type LogEntry struct {
	Level   string
	Message string
}

// RecordingLogger 记录全部日志，用于断言日志输出
type RecordingLogger struct {
	mu      sync.Mutex
	entries []LogEntry
}

func (l *RecordingLogger) record(level, msg string) {
	l.mu.Lock()
	l.entries = append(l.entries, LogEntry{Level: level, Message: msg})
	l.mu.Unlock()
}

func (l *RecordingLogger) Debug(msg string) { l.record("debug", msg) }
func (l *RecordingLogger) Debugf(format string, args ...interface{}) {
	l.record("debug", fmt.Sprintf(format, args...))
}
func (l *RecordingLogger) Info(msg string) { l.record("info", msg) }
func (l *RecordingLogger) Infof(format string, args ...interface{}) {
	l.record("info", fmt.Sprintf(format, args...))
}
func (l *RecordingLogger) Warn(msg string) { l.record("warn", msg) }
func (l *RecordingLogger) Warnf(format string, args ...interface{}) {
	l.record("warn", fmt.Sprintf(format, args...))
}
func (l *RecordingLogger) Error(msg string) { l.record("error", msg) }
func (l *RecordingLogger) Errorf(format string, args ...interface{}) {
	l.record("error", fmt.Sprintf(format, args...))
}
func (l *RecordingLogger) Fatal(msg string) { l.record("fatal", msg) }
func (l *RecordingLogger) Fatalf(format string, args ...interface{}) {
	l.record("fatal", fmt.Sprintf(format, args...))
}
func (l *RecordingLogger) With(keyvals ...interface{}) logiface.Logger { return l }
func (l *RecordingLogger) Sync() error                                 { return nil }
func (l *RecordingLogger) GetZapLogger() *zap.Logger                   { return zap.NewNop() }

// Entries 返回指定级别的日志，level 为空时返回全部
func (l *RecordingLogger) Entries(level string) []LogEntry {
	l.mu.Lock()
	defer l.mu.Unlock()
	var out []LogEntry
	for _, e := range l.entries {
		if level == "" || e.Level == level {
			out = append(out, e)
		}
	}
	return out
}

// ==================== MockSubscriber ====================

// ErrMockSubscriberClosed MockSubscriber 被关闭后 Send 返回的错误
var ErrMockSubscriberClosed = errors.New("mock subscriber closed")

// MockSubscriber 记录收到的所有帧
type MockSubscriber struct {
	id types.HandleID

	mu     sync.Mutex
	frames [][]byte
	closed bool
}

// NewMockSubscriber 创建带随机标识的订阅者
func NewMockSubscriber() *MockSubscriber {
	return &MockSubscriber{id: types.NewHandleID()}
}

func (s *MockSubscriber) ID() types.HandleID { return s.id }

func (s *MockSubscriber) Send(frame []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrMockSubscriberClosed
	}
	s.frames = append(s.frames, append([]byte(nil), frame...))
	return nil
}

// Close 之后的 Send 返回错误
func (s *MockSubscriber) Close() {
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()
}

// Frames 已收到帧的副本
func (s *MockSubscriber) Frames() [][]byte {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([][]byte, len(s.frames))
	copy(out, s.frames)
	return out
}

// ==================== MockOverlay ====================

// MockOverlay 可控的覆盖网络
type MockOverlay struct {
	mu        sync.Mutex
	injected  [][]byte
	peers     int
	injectErr error

	inbound chan []byte
}

// NewMockOverlay 创建带缓冲入站通道的覆盖网络
func NewMockOverlay(peers int) *MockOverlay {
	return &MockOverlay{peers: peers, inbound: make(chan []byte, 64)}
}

func (o *MockOverlay) Inject(ctx context.Context, payload []byte) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.injectErr != nil {
		return o.injectErr
	}
	o.injected = append(o.injected, append([]byte(nil), payload...))
	return nil
}

func (o *MockOverlay) PeerCount() int {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.peers
}

func (o *MockOverlay) Messages() <-chan []byte { return o.inbound }

func (o *MockOverlay) WaitForPeers(ctx context.Context, min int) error {
	ticker := time.NewTicker(5 * time.Millisecond)
	defer ticker.Stop()
	for o.PeerCount() < min {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
	return nil
}

// Push 模拟收到一条入站消息
func (o *MockOverlay) Push(raw []byte) { o.inbound <- raw }

// CloseInbound 模拟覆盖网络停止
func (o *MockOverlay) CloseInbound() { close(o.inbound) }

// SetPeers 修改对等节点数
func (o *MockOverlay) SetPeers(n int) {
	o.mu.Lock()
	o.peers = n
	o.mu.Unlock()
}

// SetInjectError 让后续 Inject 返回 err
func (o *MockOverlay) SetInjectError(err error) {
	o.mu.Lock()
	o.injectErr = err
	o.mu.Unlock()
}

// Injected 已注入的载荷副本
func (o *MockOverlay) Injected() [][]byte {
	o.mu.Lock()
	defer o.mu.Unlock()
	out := make([][]byte, len(o.injected))
	copy(out, o.injected)
	return out
}

// ==================== MockCodec ====================

// ErrMockUnparsable MockCodec 对未登记载荷返回的错误
var ErrMockUnparsable = errors.New("mock codec: unparsable payload")

// MockCodec 按登记表返回解析结果，未登记的载荷视为格式错误
type MockCodec struct {
	mu        sync.Mutex
	messages  map[string]*types.ExternalMessage
	addresses map[string]types.RawAddress
}

// NewMockCodec 创建空的解码器
func NewMockCodec() *MockCodec {
	return &MockCodec{
		messages:  make(map[string]*types.ExternalMessage),
		addresses: make(map[string]types.RawAddress),
	}
}

// Register 登记 raw 对应的源/目标地址
func (c *MockCodec) Register(raw []byte, source, destination *types.AddressHash) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.messages[string(raw)] = &types.ExternalMessage{Raw: raw, Source: source, Destination: destination}
}

// RegisterAddress 登记地址字符串的解析结果
func (c *MockCodec) RegisterAddress(s string, addr types.RawAddress) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.addresses[s] = addr
}

func (c *MockCodec) Parse(raw []byte) (*types.ExternalMessage, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	msg, ok := c.messages[string(raw)]
	if !ok {
		return nil, ErrMockUnparsable
	}
	return msg, nil
}

func (c *MockCodec) ParseAddress(s string) (types.RawAddress, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	addr, ok := c.addresses[s]
	if !ok {
		return types.RawAddress{}, ErrMockUnparsable
	}
	return addr, nil
}
