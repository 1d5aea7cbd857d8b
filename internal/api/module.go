package api

import (
	"go.uber.org/fx"

	"github.com/weisyn/tonrelay/internal/api/websocket"
)

// Module 返回API模块
//
// 目前只有 WebSocket 接入层；fx.Invoke 确保服务器被实例化并挂上生命周期
func Module() fx.Option {
	return fx.Module("api",
		websocket.Module(),
		fx.Invoke(func(*websocket.Server) {}),
	)
}
