// Package websocket 实现订阅者接入层
//
// 🔌 **端点**
//   - GET / 与 GET /ws：升级为 WebSocket，进入命令处理器
//   - GET /metrics：Prometheus 指标
//   - GET /healthz：对等节点数、在线连接数、已处理消息数
package websocket

import (
	"context"
	"errors"
	"net"
	"net/http"
	"sync"
	"sync/atomic"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	apiconfig "github.com/weisyn/tonrelay/internal/config/api"
	"github.com/weisyn/tonrelay/internal/core/relay/metrics"
	"github.com/weisyn/tonrelay/pkg/interfaces/infrastructure/log"
	"github.com/weisyn/tonrelay/pkg/interfaces/overlay"
)

// Server WebSocket 服务器
type Server struct {
	opts      *apiconfig.APIOptions
	logger    log.Logger
	handler   *Handler
	overlay   overlay.Overlay
	metrics   *metrics.Metrics
	processed func() uint64
	minPeers  int

	upgrader websocket.Upgrader
	engine   *gin.Engine

	mu         sync.Mutex
	httpServer *http.Server
	listenAddr net.Addr
	ready      atomic.Bool
	cancel     context.CancelFunc
	wg         sync.WaitGroup
}

// NewServer 创建服务器并注册路由
//
// processed 返回管线已处理的入站消息数，用于 /healthz
func NewServer(opts *apiconfig.APIOptions, handler *Handler, ov overlay.Overlay, m *metrics.Metrics,
	processed func() uint64, minPeers int, logger log.Logger) *Server {
	gin.SetMode(gin.ReleaseMode)

	s := &Server{
		opts:      opts,
		logger:    logger,
		handler:   handler,
		overlay:   ov,
		metrics:   m,
		processed: processed,
		minPeers:  minPeers,
		upgrader: websocket.Upgrader{
			// 订阅者不做来源校验
			CheckOrigin:     func(r *http.Request) bool { return true },
			ReadBufferSize:  opts.ReadBufferSize,
			WriteBufferSize: opts.WriteBufferSize,
		},
	}

	s.engine = gin.New()
	s.engine.Use(gin.Recovery())
	s.RegisterRoutes(s.engine)
	return s
}

// RegisterRoutes 注册路由到 Gin
func (s *Server) RegisterRoutes(router *gin.Engine) {
	router.GET("/", s.HandleWebSocket)
	router.GET("/ws", s.HandleWebSocket)
	router.GET("/healthz", s.HandleHealth)
	if s.opts.MetricsEnabled {
		router.GET("/metrics", gin.WrapH(s.metrics.Handler()))
	}
}

// Handler 底层 http.Handler
func (s *Server) Handler() http.Handler {
	return s.engine
}

// HandleWebSocket 升级连接并交给命令处理器（Gin Handler）
func (s *Server) HandleWebSocket(c *gin.Context) {
	conn, err := s.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		s.logger.Debugf("WebSocket 升级失败: %v", err)
		return
	}
	s.handler.Serve(c.Request.Context(), conn)
}

// HandleHealth 健康检查
func (s *Server) HandleHealth(c *gin.Context) {
	body := gin.H{
		"status":      "ok",
		"peers":       s.overlay.PeerCount(),
		"connections": s.handler.ActiveConnections(),
	}
	if s.processed != nil {
		body["processed"] = s.processed()
	}
	c.JSON(http.StatusOK, body)
}

// Start 在后台等待对等节点数达到下限后开始监听
func (s *Server) Start() error {
	ctx, cancel := context.WithCancel(context.Background())
	s.mu.Lock()
	s.cancel = cancel
	s.mu.Unlock()

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		if err := s.overlay.WaitForPeers(ctx, s.minPeers); err != nil {
			return
		}
		if err := s.serve(ctx); err != nil {
			s.logger.Errorf("WebSocket 服务器异常退出: %v", err)
		}
	}()
	return nil
}

func (s *Server) serve(ctx context.Context) error {
	listener, err := net.Listen("tcp", s.opts.ListenAddr())
	if err != nil {
		return err
	}

	srv := &http.Server{
		Handler:     s.engine,
		BaseContext: func(net.Listener) context.Context { return ctx },
	}
	s.mu.Lock()
	if ctx.Err() != nil {
		s.mu.Unlock()
		_ = listener.Close()
		return nil
	}
	s.httpServer = srv
	s.listenAddr = listener.Addr()
	s.mu.Unlock()
	s.ready.Store(true)

	s.logger.Infof("WebSocket 服务器已启动: ws://%s", listener.Addr())
	if err := srv.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Stop 停止监听并关闭所有订阅连接
func (s *Server) Stop(ctx context.Context) error {
	s.mu.Lock()
	if s.cancel != nil {
		s.cancel()
	}
	srv := s.httpServer
	s.mu.Unlock()

	var err error
	if srv != nil {
		// 已升级的连接不受 Shutdown 管理，需要单独关闭
		err = srv.Shutdown(ctx)
	}
	s.handler.CloseAll()
	s.wg.Wait()
	s.ready.Store(false)
	s.logger.Info("WebSocket 服务器已停止")
	return err
}

// Ready 是否已开始监听
func (s *Server) Ready() bool {
	return s.ready.Load()
}

// Addr 实际监听地址，未监听时为 nil
func (s *Server) Addr() net.Addr {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.listenAddr
}
