package websocket

import (
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apiconfig "github.com/weisyn/tonrelay/internal/config/api"
	"github.com/weisyn/tonrelay/internal/core/infrastructure/clock"
	"github.com/weisyn/tonrelay/internal/core/relay/dedup"
	"github.com/weisyn/tonrelay/internal/core/relay/metrics"
	"github.com/weisyn/tonrelay/internal/core/relay/pipeline"
	"github.com/weisyn/tonrelay/internal/core/relay/registry"
	"github.com/weisyn/tonrelay/internal/core/relay/router"
	"github.com/weisyn/tonrelay/internal/testutil"
	"github.com/weisyn/tonrelay/pkg/types"
)

// ==================== 测试夹具 ====================

const (
	addrA = "EQaddressA"
	addrB = "EQaddressB"
)

type fixture struct {
	server   *Server
	http     *httptest.Server
	handler  *Handler
	registry *registry.Registry
	overlay  *testutil.MockOverlay
	codec    *testutil.MockCodec
	pipeline *pipeline.Pipeline
	metrics  *metrics.Metrics
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	opts := apiconfig.New(nil).GetOptions()
	opts.WriteTimeout = time.Second
	opts.PingInterval = time.Second

	logger := &testutil.MockLogger{}
	m := metrics.New()
	reg := registry.New()
	ov := testutil.NewMockOverlay(3)
	codec := testutil.NewMockCodec()
	codec.RegisterAddress(addrA, types.RawAddress{Workchain: 0, Hash: testutil.Hash(0xAA)})
	codec.RegisterAddress(addrB, types.RawAddress{Workchain: -1, Hash: testutil.Hash(0xBB)})

	cache, err := dedup.NewMemoryCache(time.Minute, clock.NewSystemClock(), logger)
	require.NoError(t, err)
	t.Cleanup(func() { _ = cache.Close() })
	pl := pipeline.New(codec, cache, router.New(reg, logger, m), logger, m, pipeline.Options{EnforceDedup: true})

	handler := NewHandler(reg, ov, codec, opts, logger, m)
	server := NewServer(opts, handler, ov, m, pl.Processed, 0, logger)
	ts := httptest.NewServer(server.Handler())
	t.Cleanup(func() {
		handler.CloseAll()
		ts.Close()
	})

	return &fixture{
		server: server, http: ts, handler: handler, registry: reg,
		overlay: ov, codec: codec, pipeline: pl, metrics: m,
	}
}

func (f *fixture) dial(t *testing.T) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(f.http.URL, "http") + "/ws"
	conn, resp, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	if resp != nil && resp.Body != nil {
		_ = resp.Body.Close()
	}
	t.Cleanup(func() { _ = conn.Close() })
	return conn
}

func send(t *testing.T, conn *websocket.Conn, frame string) {
	t.Helper()
	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte(frame)))
}

func read(t *testing.T, conn *websocket.Conn) string {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, data, err := conn.ReadMessage()
	require.NoError(t, err)
	return string(data)
}

func assertSilent(t *testing.T, conn *websocket.Conn) {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(150*time.Millisecond)))
	_, data, err := conn.ReadMessage()
	require.Error(t, err, "不应再收到帧: %s", data)
}

// route 把 payload 作为目标地址为 dst 的消息送入管线
func (f *fixture) route(t *testing.T, payload string, dst byte) {
	t.Helper()
	raw, err := hex.DecodeString(payload)
	require.NoError(t, err)
	f.codec.Register(raw, nil, testutil.HashPtr(dst))
	require.Equal(t, pipeline.OutcomeRouted, f.pipeline.OnInbound(context.Background(), raw))
}

// ==================== subscribe ====================

func TestHandler_Subscribe_Destination_AcksAndDeliversOnce(t *testing.T) {
	// Arrange
	f := newFixture(t)
	conn := f.dial(t)

	// Act
	send(t, conn, `{"type":"subscribe","data":{"type":"external","from":"dest","address":"`+addrA+`"}}`)
	ack := read(t, conn)
	f.route(t, "deadbeef", 0xAA)

	// Assert
	assert.JSONEq(t, `{"type":"subscribe","answer":{"type":"external","status":"ok","from":"dest","address":"0:`+strings.Repeat("aa", 32)+`"}}`, ack)
	assert.JSONEq(t, `{"type":"external","data":"deadbeef"}`, read(t, conn))
	assertSilent(t, conn)
}

func TestHandler_Subscribe_All_AckHasNullAddress(t *testing.T) {
	f := newFixture(t)
	conn := f.dial(t)

	send(t, conn, `{"type":"subscribe","data":{"type":"external","from":"all"}}`)

	assert.JSONEq(t, `{"type":"subscribe","answer":{"type":"external","status":"ok","from":"all","address":null}}`, read(t, conn))
}

func TestHandler_WildcardAndDestination_OnlyMatchingReceive(t *testing.T) {
	// Arrange
	f := newFixture(t)
	wildcard := f.dial(t)
	byDest := f.dial(t)
	send(t, wildcard, `{"type":"subscribe","data":{"type":"external","from":"all"}}`)
	read(t, wildcard)
	send(t, byDest, `{"type":"subscribe","data":{"type":"external","from":"dest","address":"`+addrA+`"}}`)
	read(t, byDest)

	// Act & Assert: 目标为 A 时两者都收到
	f.route(t, "0a0a", 0xAA)
	assert.JSONEq(t, `{"type":"external","data":"0a0a"}`, read(t, wildcard))
	assert.JSONEq(t, `{"type":"external","data":"0a0a"}`, read(t, byDest))

	// 目标为 B 时只有通配订阅者收到
	f.route(t, "0b0b", 0xBB)
	assert.JSONEq(t, `{"type":"external","data":"0b0b"}`, read(t, wildcard))
	assertSilent(t, byDest)
}

func TestHandler_Subscribe_InvalidAddress_ErrorReplyKeepsConnection(t *testing.T) {
	f := newFixture(t)
	conn := f.dial(t)

	send(t, conn, `{"type":"subscribe","data":{"type":"external","from":"src","address":"garbage"}}`)
	reply := read(t, conn)
	assert.Contains(t, reply, `"status":"error"`)
	assert.Contains(t, reply, `"type":"subscribe"`)

	send(t, conn, `{"type":"get_peers_amount"}`)
	assert.JSONEq(t, `{"type":"get_peers_amount","answer":{"amount":3}}`, read(t, conn))
}

func TestHandler_Subscribe_InvalidShapes_ErrorReply(t *testing.T) {
	tests := []struct {
		name  string
		frame string
	}{
		{"未知 from", `{"type":"subscribe","data":{"type":"external","from":"sideways","address":"` + addrA + `"}}`},
		{"缺少地址", `{"type":"subscribe","data":{"type":"external","from":"src"}}`},
		{"不支持的流", `{"type":"subscribe","data":{"type":"blocks","from":"all"}}`},
		{"缺少 data", `{"type":"subscribe"}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)
			conn := f.dial(t)

			send(t, conn, tt.frame)

			reply := read(t, conn)
			assert.Contains(t, reply, `"status":"error"`)
			handles, _ := f.registry.Stats()
			assert.Zero(t, handles)
		})
	}
}

// ==================== unsubscribe ====================

func TestHandler_Unsubscribe_RevokesSingleFilter(t *testing.T) {
	// Arrange
	f := newFixture(t)
	conn := f.dial(t)
	send(t, conn, `{"type":"subscribe","data":{"type":"external","from":"dest","address":"`+addrA+`"}}`)
	read(t, conn)
	send(t, conn, `{"type":"subscribe","data":{"type":"external","from":"dest","address":"`+addrB+`"}}`)
	read(t, conn)

	// Act
	send(t, conn, `{"type":"unsubscribe","data":{"type":"external","from":"dest","address":"`+addrA+`"}}`)
	ack := read(t, conn)

	// Assert
	assert.Contains(t, ack, `"type":"unsubscribe"`)
	assert.Contains(t, ack, `"status":"ok"`)
	f.route(t, "01", 0xAA)
	f.route(t, "02", 0xBB)
	assert.JSONEq(t, `{"type":"external","data":"02"}`, read(t, conn))
}

// ==================== send_external ====================

func TestHandler_SendExternal_ForwardsVerbatimThenAcks(t *testing.T) {
	f := newFixture(t)
	conn := f.dial(t)

	send(t, conn, `{"type":"send_external","data":"b5ee9c72"}`)

	assert.JSONEq(t, `{"type":"send_external","answer":{"status":"ok"}}`, read(t, conn))
	require.Len(t, f.overlay.Injected(), 1)
	assert.Equal(t, []byte{0xb5, 0xee, 0x9c, 0x72}, f.overlay.Injected()[0])
}

func TestHandler_SendExternal_InjectFails_ErrorReplyWithoutInternalCause(t *testing.T) {
	f := newFixture(t)
	f.overlay.SetInjectError(errors.New("gossipsub: secret internal detail"))
	conn := f.dial(t)

	send(t, conn, `{"type":"send_external","data":"00ff"}`)

	reply := read(t, conn)
	assert.JSONEq(t, `{"type":"send_external","answer":{"status":"error","error":"`+ErrInjectFailed.Error()+`"}}`, reply)
	assert.NotContains(t, reply, "secret")
}

func TestHandler_SendExternal_BadHex_ErrorReply(t *testing.T) {
	f := newFixture(t)
	conn := f.dial(t)

	send(t, conn, `{"type":"send_external","data":"zz"}`)

	assert.Contains(t, read(t, conn), ErrInvalidPayload.Error())
	assert.Empty(t, f.overlay.Injected())
}

// ==================== 错误与其他命令 ====================

func TestHandler_GetPeersAmount_ReportsOverlayPeers(t *testing.T) {
	f := newFixture(t)
	conn := f.dial(t)

	send(t, conn, `{"type":"get_peers_amount"}`)

	assert.JSONEq(t, `{"type":"get_peers_amount","answer":{"amount":3}}`, read(t, conn))
}

func TestHandler_UnknownCommand_EchoesType(t *testing.T) {
	f := newFixture(t)
	conn := f.dial(t)

	send(t, conn, `{"type":"reboot"}`)

	reply := read(t, conn)
	assert.Contains(t, reply, `"type":"reboot"`)
	assert.Contains(t, reply, `"status":"error"`)
}

func TestHandler_MalformedJSON_ErrorType(t *testing.T) {
	f := newFixture(t)
	conn := f.dial(t)

	send(t, conn, `{not json`)

	assert.JSONEq(t, `{"type":"error","answer":{"status":"error","error":"`+ErrMalformedRequest.Error()+`"}}`, read(t, conn))
}

// ==================== 连接关闭 ====================

func TestHandler_ClientDisconnect_RemovesAllSubscriptions(t *testing.T) {
	// Arrange
	f := newFixture(t)
	conn := f.dial(t)
	send(t, conn, `{"type":"subscribe","data":{"type":"external","from":"all"}}`)
	read(t, conn)
	send(t, conn, `{"type":"subscribe","data":{"type":"external","from":"src","address":"`+addrA+`"}}`)
	read(t, conn)
	require.Equal(t, 1, f.handler.ActiveConnections())

	// Act
	require.NoError(t, conn.Close())

	// Assert
	require.Eventually(t, func() bool { return f.handler.ActiveConnections() == 0 }, 2*time.Second, 10*time.Millisecond)
	handles, filters := f.registry.Stats()
	assert.Zero(t, handles)
	assert.Zero(t, filters)
	assert.Empty(t, f.registry.Match(testutil.HashPtr(0xAA), nil))
}

// serverConn 取出夹具中唯一一个服务端连接
func (f *fixture) serverConn(t *testing.T) *Conn {
	t.Helper()
	f.handler.mu.Lock()
	defer f.handler.mu.Unlock()
	var c *Conn
	for _, v := range f.handler.conns {
		c = v
	}
	require.NotNil(t, c)
	return c
}

func TestConn_SendAfterClose_ReturnsErrSubscriberClosed(t *testing.T) {
	f := newFixture(t)
	conn := f.dial(t)
	send(t, conn, `{"type":"get_peers_amount"}`)
	read(t, conn)
	c := f.serverConn(t)

	c.Close()
	c.Close()

	assert.ErrorIs(t, c.Send([]byte("x")), ErrSubscriberClosed)
	assert.Eventually(t, func() bool { return f.handler.ActiveConnections() == 0 }, time.Second, 10*time.Millisecond)
}

func TestHandler_Subscribe_AfterServerClose_NotRegistered(t *testing.T) {
	// Arrange: 路由协程因溢出关闭连接之后，读协程里还有一帧 subscribe 未处理
	f := newFixture(t)
	conn := f.dial(t)
	send(t, conn, `{"type":"get_peers_amount"}`)
	read(t, conn)
	c := f.serverConn(t)
	c.Close()

	// Act
	f.handler.dispatch(c, []byte(`{"type":"subscribe","data":{"type":"external","from":"src","address":"`+addrA+`"}}`))

	// Assert
	handles, filters := f.registry.Stats()
	assert.Zero(t, handles)
	assert.Zero(t, filters)
	assert.Empty(t, f.registry.Match(testutil.HashPtr(0xAA), nil))
}

func TestHandler_SubscribeRacingClose_NeverLeaksHandle(t *testing.T) {
	f := newFixture(t)
	frame := []byte(`{"type":"subscribe","data":{"type":"external","from":"all"}}`)

	for i := 0; i < 20; i++ {
		conn := f.dial(t)
		send(t, conn, `{"type":"get_peers_amount"}`)
		read(t, conn)
		c := f.serverConn(t)

		done := make(chan struct{})
		go func() {
			defer close(done)
			for j := 0; j < 50; j++ {
				f.handler.dispatch(c, frame)
			}
		}()
		c.Close()
		<-done

		require.Eventually(t, func() bool { return f.handler.ActiveConnections() == 0 }, 2*time.Second, 10*time.Millisecond)
		handles, _ := f.registry.Stats()
		require.Zero(t, handles, "第 %d 轮关闭后仍有订阅残留", i)
	}
}

func TestClientError_InjectFailure_StripsInternalCause(t *testing.T) {
	err := fmt.Errorf("%w: %v", ErrInjectFailed, errors.New("dial udp 10.0.0.7:30303: refused"))

	got := clientError(err)

	assert.Same(t, ErrInjectFailed, got)
	assert.NotContains(t, got.Error(), "10.0.0.7")
}

func TestClientError_InputError_KeepsDetail(t *testing.T) {
	err := fmt.Errorf("%w: from=%q", ErrInvalidFilter, "nowhere")

	got := clientError(err)

	assert.ErrorIs(t, got, ErrInvalidFilter)
	assert.Contains(t, got.Error(), "nowhere")
}

func TestClientError_UnknownError_BecomesMalformedRequest(t *testing.T) {
	assert.Same(t, ErrMalformedRequest, clientError(errors.New("boom")))
	assert.Same(t, ErrMalformedRequest, clientError(ErrSubscriberClosed))
}

// ==================== HTTP 端点 ====================

func TestServer_Healthz_ReportsPeersAndConnections(t *testing.T) {
	f := newFixture(t)
	f.dial(t)
	require.Eventually(t, func() bool { return f.handler.ActiveConnections() == 1 }, time.Second, 10*time.Millisecond)

	resp, err := http.Get(f.http.URL + "/healthz")
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	var body map[string]interface{}
	require.NoError(t, jsonDecode(resp, &body))
	assert.EqualValues(t, 3, body["peers"])
	assert.EqualValues(t, 1, body["connections"])
	assert.EqualValues(t, 0, body["processed"])
}

func TestServer_Metrics_ExposesRelayCounters(t *testing.T) {
	f := newFixture(t)

	resp, err := http.Get(f.http.URL + "/metrics")
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	body := readBody(t, resp)
	assert.Contains(t, body, "tonrelay_")
}

func TestServer_Start_WaitsForMinimumPeers(t *testing.T) {
	// Arrange
	opts := apiconfig.New(nil).GetOptions()
	opts.Host = "127.0.0.1"
	opts.Port = 0
	ov := testutil.NewMockOverlay(0)
	m := metrics.New()
	logger := &testutil.MockLogger{}
	handler := NewHandler(registry.New(), ov, testutil.NewMockCodec(), opts, logger, m)
	server := NewServer(opts, handler, ov, m, nil, 2, logger)

	// Act
	require.NoError(t, server.Start())
	defer func() { assert.NoError(t, server.Stop(context.Background())) }()

	// Assert
	time.Sleep(50 * time.Millisecond)
	assert.False(t, server.Ready(), "对等节点不足时不应开始监听")
	ov.SetPeers(2)
	require.Eventually(t, server.Ready, 2*time.Second, 10*time.Millisecond)
	require.NotNil(t, server.Addr())
}
