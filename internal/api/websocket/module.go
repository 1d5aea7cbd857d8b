package websocket

import (
	"context"

	"go.uber.org/fx"

	apiconfig "github.com/weisyn/tonrelay/internal/config/api"
	overlayconfig "github.com/weisyn/tonrelay/internal/config/overlay"
	logmodule "github.com/weisyn/tonrelay/internal/core/infrastructure/log"
	"github.com/weisyn/tonrelay/internal/core/relay/metrics"
	"github.com/weisyn/tonrelay/internal/core/relay/pipeline"
	"github.com/weisyn/tonrelay/pkg/interfaces/infrastructure/log"
	"github.com/weisyn/tonrelay/pkg/interfaces/overlay"
	"github.com/weisyn/tonrelay/pkg/interfaces/relay"
)

// ModuleParams 定义 WebSocket 模块的依赖参数
type ModuleParams struct {
	fx.In

	Lifecycle      fx.Lifecycle
	Options        *apiconfig.APIOptions
	OverlayOptions *overlayconfig.OverlayOptions
	Logger         log.Logger
	Registry       relay.Registry
	Codec          relay.Codec
	Overlay        overlay.Overlay
	Metrics        *metrics.Metrics
	Pipeline       *pipeline.Pipeline `optional:"true"`
}

// Module 返回 WebSocket 模块
func Module() fx.Option {
	return fx.Module("websocket",
		fx.Provide(ProvideServer),
	)
}

// ProvideServer 创建服务器并挂载生命周期
func ProvideServer(params ModuleParams) *Server {
	logger := logmodule.NewModuleLogger(params.Logger, "api")

	var processed func() uint64
	if params.Pipeline != nil {
		processed = params.Pipeline.Processed
	}

	handler := NewHandler(params.Registry, params.Overlay, params.Codec, params.Options, logger, params.Metrics)
	server := NewServer(params.Options, handler, params.Overlay, params.Metrics,
		processed, params.OverlayOptions.MinPeers, logger)

	params.Lifecycle.Append(fx.Hook{
		OnStart: func(context.Context) error {
			return server.Start()
		},
		OnStop: func(ctx context.Context) error {
			return server.Stop(ctx)
		},
	})
	return server
}
