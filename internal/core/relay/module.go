// Package relay 组装中继核心：注册表、去重缓存、路由与入站管线
package relay

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/fx"

	relayconfig "github.com/weisyn/tonrelay/internal/config/relay"
	logmodule "github.com/weisyn/tonrelay/internal/core/infrastructure/log"
	"github.com/weisyn/tonrelay/internal/core/relay/dedup"
	"github.com/weisyn/tonrelay/internal/core/relay/metrics"
	"github.com/weisyn/tonrelay/internal/core/relay/pipeline"
	"github.com/weisyn/tonrelay/internal/core/relay/registry"
	"github.com/weisyn/tonrelay/internal/core/relay/router"
	"github.com/weisyn/tonrelay/pkg/interfaces/infrastructure/clock"
	"github.com/weisyn/tonrelay/pkg/interfaces/infrastructure/log"
	"github.com/weisyn/tonrelay/pkg/interfaces/overlay"
	iface "github.com/weisyn/tonrelay/pkg/interfaces/relay"
)

// dedupConnectTimeout 创建去重后端（如连接 Redis）的超时
const dedupConnectTimeout = 10 * time.Second

// ModuleParams 定义中继模块的依赖参数
type ModuleParams struct {
	fx.In

	Lifecycle fx.Lifecycle
	Options   *relayconfig.RelayOptions
	Clock     clock.Clock
	Logger    log.Logger
	Codec     iface.Codec
	Overlay   overlay.Overlay
	Metrics   *metrics.Metrics
}

// ModuleOutput 定义中继模块的输出结构
type ModuleOutput struct {
	fx.Out

	Registry         iface.Registry
	RegistryInstance *registry.Registry
	Dedup            iface.DedupCache
	Router           iface.Router
	Pipeline         *pipeline.Pipeline
}

// Module 返回中继模块
func Module() fx.Option {
	return fx.Module("relay",
		fx.Provide(
			metrics.New,
			ProvideServices,
		),
		// 不启用 API 时也要启动管线
		fx.Invoke(func(*pipeline.Pipeline) {}),
	)
}

// ProvideServices 创建中继核心组件并挂载生命周期
//
// 启动后两个后台任务：管线消费覆盖网络入站流，清理器按 TTL 周期清理过期指纹
func ProvideServices(params ModuleParams) (ModuleOutput, error) {
	logger := logmodule.NewModuleLogger(params.Logger, "relay")
	opts := params.Options

	ctx, cancel := context.WithTimeout(context.Background(), dedupConnectTimeout)
	defer cancel()
	cache, err := dedup.New(ctx, opts, params.Clock, logger)
	if err != nil {
		return ModuleOutput{}, fmt.Errorf("创建去重缓存失败: %w", err)
	}

	reg := registry.New()
	rt := router.New(reg, logger, params.Metrics)
	pl := pipeline.New(params.Codec, cache, rt, logger, params.Metrics, pipeline.Options{
		EnforceDedup:   opts.DedupEnforce,
		InlineEviction: opts.InlineEviction,
		ProgressEvery:  opts.ProgressEvery,
		Clock:          params.Clock,
	})
	janitor := dedup.NewJanitor(cache, opts.DedupTTL, logger, params.Metrics)

	if err := registerGauges(params.Metrics, reg, cache); err != nil {
		_ = cache.Close()
		return ModuleOutput{}, err
	}

	var (
		runCancel context.CancelFunc
		wg        sync.WaitGroup
	)
	params.Lifecycle.Append(fx.Hook{
		OnStart: func(context.Context) error {
			var runCtx context.Context
			runCtx, runCancel = context.WithCancel(context.Background())

			wg.Add(2)
			go func() {
				defer wg.Done()
				if err := pl.Run(runCtx, params.Overlay.Messages()); err != nil && runCtx.Err() == nil {
					logger.Errorf("管线异常退出: %v", err)
				}
			}()
			go func() {
				defer wg.Done()
				janitor.Run(runCtx)
			}()

			logger.Infof("中继核心已启动: dedup=%s ttl=%s enforce=%t",
				opts.DedupBackend, opts.DedupTTL, opts.DedupEnforce)
			return nil
		},
		OnStop: func(context.Context) error {
			if runCancel != nil {
				runCancel()
			}
			wg.Wait()
			logger.Infof("中继核心已停止: 共处理 %d 条消息", pl.Processed())
			return cache.Close()
		},
	})

	return ModuleOutput{
		Registry:         reg,
		RegistryInstance: reg,
		Dedup:            cache,
		Router:           rt,
		Pipeline:         pl,
	}, nil
}

func registerGauges(m *metrics.Metrics, reg *registry.Registry, cache iface.DedupCache) error {
	gauges := []struct {
		subsystem, name, help string
		fn                    func() float64
	}{
		{"registry", "handles", "在线订阅句柄数", func() float64 {
			handles, _ := reg.Stats()
			return float64(handles)
		}},
		{"registry", "filters", "已注册过滤器总数", func() float64 {
			_, filters := reg.Stats()
			return float64(filters)
		}},
		{"dedup", "entries", "去重缓存条目数", func() float64 {
			return float64(cache.Len())
		}},
	}
	for _, g := range gauges {
		if err := m.RegisterGaugeFunc(g.subsystem, g.name, g.help, g.fn); err != nil {
			return err
		}
	}
	return nil
}
