package overlay

import (
	"bytes"
	"encoding/base64"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/weisyn/tonrelay/pkg/types"
)

func TestNew_NilUserConfig_UsesDefaults(t *testing.T) {
	opts := New(nil).GetOptions()

	assert.Equal(t, NetworkMainnet, opts.Network)
	assert.Equal(t, int32(0), opts.Workchain)
	assert.Equal(t, "key.txt", opts.KeyFile)
	assert.Equal(t, BackendTON, opts.Backend)
	assert.Equal(t, 30, opts.MaxPeers)
	assert.Empty(t, opts.ADNLListen)
	assert.Equal(t, "https://ton.org/global.config.json", opts.GlobalConfigSource())
	assert.True(t, opts.EnableDHT)
	assert.Zero(t, opts.MinPeers)
	assert.NoError(t, opts.Validate())
}

func TestTopicName_KnownNetworks(t *testing.T) {
	tests := []struct {
		network   string
		workchain int32
		want      string
	}{
		{"mainnet", 0, "/ton/mainnet/wc0/externals/1.0.0"},
		{"TESTNET", -1, "/ton/testnet/wc-1/externals/1.0.0"},
	}
	for _, tt := range tests {
		t.Run(tt.want, func(t *testing.T) {
			opts := New(&types.UserOverlayConfig{
				Network:   types.StringPtr(tt.network),
				Workchain: types.Int32Ptr(tt.workchain),
			}).GetOptions()
			assert.Equal(t, tt.want, opts.TopicName())
		})
	}
}

func TestValidate_CustomNetworkWithoutZeroState_ReturnsError(t *testing.T) {
	opts := New(&types.UserOverlayConfig{Network: types.StringPtr("devnet")}).GetOptions()
	assert.ErrorIs(t, opts.Validate(), ErrZeroStateRequired)
}

func TestTopicName_CustomNetwork_UsesZeroStateHash(t *testing.T) {
	hash := strings.Repeat("AB", 32)
	opts := New(&types.UserOverlayConfig{
		Network:           types.StringPtr("devnet"),
		Backend:           types.StringPtr("libp2p"),
		ZeroStateFileHash: types.StringPtr(" " + hash + " "),
	}).GetOptions()

	assert.NoError(t, opts.Validate())
	assert.Equal(t, "/ton/custom-"+strings.ToLower(hash)+"/wc0/externals/1.0.0", opts.TopicName())
}

// ==================== TON 后端 ====================

func TestValidate_CustomNetworkOnTONWithoutGlobalConfig_ReturnsError(t *testing.T) {
	opts := New(&types.UserOverlayConfig{
		Network:           types.StringPtr("devnet"),
		ZeroStateFileHash: types.StringPtr(strings.Repeat("ab", 32)),
	}).GetOptions()

	assert.ErrorIs(t, opts.Validate(), ErrGlobalConfigRequired)

	opts.GlobalConfig = "/etc/ton/devnet.config.json"
	assert.NoError(t, opts.Validate())
	assert.Equal(t, "/etc/ton/devnet.config.json", opts.GlobalConfigSource())
}

func TestValidate_UnknownBackend_ReturnsError(t *testing.T) {
	opts := New(&types.UserOverlayConfig{Backend: types.StringPtr("carrier-pigeon")}).GetOptions()
	assert.ErrorIs(t, opts.Validate(), ErrUnknownBackend)
}

func TestZeroStateHash_HexAndBase64(t *testing.T) {
	want := bytes.Repeat([]byte{0x5e}, 32)
	for name, raw := range map[string]string{
		"hex":    strings.Repeat("5e", 32),
		"base64": base64.StdEncoding.EncodeToString(want),
	} {
		t.Run(name, func(t *testing.T) {
			opts := &OverlayOptions{ZeroStateFileHash: raw}
			got, err := opts.ZeroStateHash()
			require.NoError(t, err)
			assert.Equal(t, want, got)
		})
	}
}

func TestZeroStateHash_WrongLength_ReturnsError(t *testing.T) {
	opts := &OverlayOptions{Backend: BackendLibp2p, Network: "devnet", ZeroStateFileHash: "abcdef"}

	_, err := opts.ZeroStateHash()

	assert.ErrorIs(t, err, ErrInvalidZeroState)
	assert.ErrorIs(t, opts.Validate(), ErrInvalidZeroState)
}

func TestZeroStateHash_Unset_ReturnsNil(t *testing.T) {
	got, err := (&OverlayOptions{}).ZeroStateHash()
	assert.NoError(t, err)
	assert.Nil(t, got)
}
