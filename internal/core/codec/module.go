package codec

import (
	"go.uber.org/fx"

	"github.com/weisyn/tonrelay/pkg/interfaces/relay"
)

// Module 提供 TON 消息解码器
func Module() fx.Option {
	return fx.Module("codec",
		fx.Provide(
			fx.Annotate(New, fx.As(new(relay.Codec))),
		),
	)
}
