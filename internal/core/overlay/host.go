package overlay

import (
	libp2p "github.com/libp2p/go-libp2p"
	"github.com/libp2p/go-libp2p/core/crypto"
	lphost "github.com/libp2p/go-libp2p/core/host"

	overlayconfig "github.com/weisyn/tonrelay/internal/config/overlay"
)

// newHost 装配 libp2p Host：身份 → 监听地址 → 默认传输/安全/复用
func newHost(opts *overlayconfig.OverlayOptions, priv crypto.PrivKey) (lphost.Host, error) {
	listen := opts.ListenAddresses
	if len(listen) == 0 {
		listen = []string{"/ip4/0.0.0.0/tcp/0"}
	}

	return libp2p.New(
		libp2p.Identity(priv),
		libp2p.ListenAddrStrings(listen...),
		libp2p.DefaultTransports,
		libp2p.DefaultSecurity,
		libp2p.DefaultMuxers,
	)
}
