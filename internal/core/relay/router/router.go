// Package router 实现外部消息的广播路由
package router

import (
	"encoding/json"

	"github.com/weisyn/tonrelay/internal/core/relay/metrics"
	"github.com/weisyn/tonrelay/pkg/interfaces/infrastructure/log"
	"github.com/weisyn/tonrelay/pkg/interfaces/relay"
	"github.com/weisyn/tonrelay/pkg/types"
)

// FrameTypeExternal 下发帧的 type 字段
const FrameTypeExternal = "external"

// externalFrame 下发给订阅者的帧
type externalFrame struct {
	Type string `json:"type"`
	Data string `json:"data"`
}

// EncodeExternal 编码下发帧，每条消息只编码一次
func EncodeExternal(msg *types.ExternalMessage) ([]byte, error) {
	return json.Marshal(externalFrame{Type: FrameTypeExternal, Data: msg.Hex()})
}

// Router 广播路由实现
type Router struct {
	registry relay.Registry
	logger   log.Logger
	metrics  *metrics.Metrics
}

var _ relay.Router = (*Router)(nil)

// New 创建广播路由
func New(registry relay.Registry, logger log.Logger, m *metrics.Metrics) *Router {
	return &Router{registry: registry, logger: logger, metrics: m}
}

// Route 投递给所有匹配的订阅者
//
// Send 只负责入队，不会阻塞；单个订阅者失败不影响其他订阅者
func (r *Router) Route(msg *types.ExternalMessage) int {
	recipients := r.registry.Match(msg.Source, msg.Destination)
	if len(recipients) == 0 {
		return 0
	}

	frame, err := EncodeExternal(msg)
	if err != nil {
		r.logger.Errorf("编码下发帧失败: %v", err)
		return 0
	}

	delivered := 0
	for _, sub := range recipients {
		if err := sub.Send(frame); err != nil {
			r.metrics.DeliveryFailures.Inc()
			r.logger.Debugf("投递到订阅者 %s 失败: %v", sub.ID(), err)
			continue
		}
		delivered++
	}
	r.metrics.Deliveries.Add(float64(delivered))
	return delivered
}
