package overlay

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/fx/fxtest"

	overlayconfig "github.com/weisyn/tonrelay/internal/config/overlay"
	"github.com/weisyn/tonrelay/internal/testutil"
	"github.com/weisyn/tonrelay/pkg/types"
)

func provideWithBackend(t *testing.T, backend string) (ModuleOutput, error) {
	t.Helper()
	opts := overlayconfig.New(&types.UserOverlayConfig{Backend: types.StringPtr(backend)}).GetOptions()
	opts.Backend = backend
	return ProvideServices(ModuleParams{
		Lifecycle: fxtest.NewLifecycle(t),
		Options:   opts,
		Logger:    &testutil.MockLogger{},
	})
}

func TestProvideServices_Backend_SelectsImplementation(t *testing.T) {
	tests := []struct {
		backend string
		want    any
	}{
		{overlayconfig.BackendTON, &TONService{}},
		{overlayconfig.BackendLibp2p, &Service{}},
	}
	for _, tt := range tests {
		t.Run(tt.backend, func(t *testing.T) {
			out, err := provideWithBackend(t, tt.backend)

			require.NoError(t, err)
			assert.IsType(t, tt.want, out.Overlay)
		})
	}
}

func TestProvideServices_UnknownBackend_ReturnsError(t *testing.T) {
	_, err := provideWithBackend(t, "carrier-pigeon")

	assert.ErrorIs(t, err, overlayconfig.ErrUnknownBackend)
}
