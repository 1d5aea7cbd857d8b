package app

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/fx"

	"github.com/weisyn/tonrelay/pkg/types"
)

func TestBootstrap_SetupModules_DependencyGraphIsComplete(t *testing.T) {
	tests := []struct {
		name string
		opts []Option
	}{
		{"完整", nil},
		{"无 API", []Option{WithoutAPI()}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b := NewBootstrap(newOptions(tt.opts...))

			err := fx.ValidateApp(append(b.SetupModules(), fx.NopLogger)...)

			assert.NoError(t, err)
		})
	}
}

func TestNewOptions_Defaults(t *testing.T) {
	opts := newOptions()

	assert.True(t, opts.enableAPI)
	require.NotNil(t, opts.GetAppConfig())
}

func TestWithAppConfig_NilKeepsDefault(t *testing.T) {
	cfg := &types.AppConfig{}
	cfg.API.Port = types.IntPtr(9999)

	assert.Same(t, cfg, newOptions(WithAppConfig(cfg)).GetAppConfig())
	assert.NotNil(t, newOptions(WithAppConfig(nil)).GetAppConfig())
}
