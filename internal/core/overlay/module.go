package overlay

import (
	"context"
	"fmt"

	"go.uber.org/fx"

	overlayconfig "github.com/weisyn/tonrelay/internal/config/overlay"
	logmodule "github.com/weisyn/tonrelay/internal/core/infrastructure/log"
	"github.com/weisyn/tonrelay/internal/core/relay/metrics"
	"github.com/weisyn/tonrelay/pkg/interfaces/infrastructure/log"
	iface "github.com/weisyn/tonrelay/pkg/interfaces/overlay"
)

// ModuleParams 定义覆盖网络模块的依赖参数
type ModuleParams struct {
	fx.In

	Lifecycle fx.Lifecycle
	Options   *overlayconfig.OverlayOptions
	Logger    log.Logger
	Metrics   *metrics.Metrics `optional:"true"`
}

// ModuleOutput 定义覆盖网络模块的输出结构
type ModuleOutput struct {
	fx.Out

	Overlay iface.Overlay
}

// lifecycleOverlay 带启停的覆盖网络实现
type lifecycleOverlay interface {
	iface.Overlay
	Start() error
	Stop() error
}

// Module 返回覆盖网络模块
func Module() fx.Option {
	return fx.Module("overlay",
		fx.Provide(ProvideServices),
	)
}

// ProvideServices 创建覆盖网络服务并挂载生命周期
func ProvideServices(params ModuleParams) (ModuleOutput, error) {
	logger := logmodule.NewModuleLogger(params.Logger, "overlay")

	var service lifecycleOverlay
	switch params.Options.Backend {
	case overlayconfig.BackendLibp2p:
		service = NewService(params.Options, logger)
	case overlayconfig.BackendTON, "":
		service = NewTONService(params.Options, logger)
	default:
		return ModuleOutput{}, fmt.Errorf("%w: %s", overlayconfig.ErrUnknownBackend, params.Options.Backend)
	}
	logger.Infof("覆盖网络后端: %s", params.Options.Backend)

	if params.Metrics != nil {
		if err := params.Metrics.RegisterGaugeFunc("overlay", "peers", "覆盖网络邻居数", func() float64 {
			return float64(service.PeerCount())
		}); err != nil {
			return ModuleOutput{}, err
		}
	}

	params.Lifecycle.Append(fx.Hook{
		OnStart: func(context.Context) error {
			return service.Start()
		},
		OnStop: func(context.Context) error {
			return service.Stop()
		},
	})

	return ModuleOutput{Overlay: service}, nil
}
