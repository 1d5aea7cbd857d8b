package overlay

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testPeerID = "QmNnooDu7bfjPFoTZYxMNLWUQJyrVwtbZg5gBMjTezGAJN"

func TestParseBootstrapPeers_SamePeerTwice_MergesAddresses(t *testing.T) {
	// Arrange
	addrs := []string{
		"/ip4/10.0.0.1/tcp/4001/p2p/" + testPeerID,
		"/ip4/10.0.0.1/udp/4001/quic-v1/p2p/" + testPeerID,
	}

	// Act
	peers, err := parseBootstrapPeers(addrs)

	// Assert
	require.NoError(t, err)
	require.Len(t, peers, 1)
	assert.Equal(t, testPeerID, peers[0].ID.String())
	assert.Len(t, peers[0].Addrs, 2)
}

func TestParseBootstrapPeers_MissingPeerID_ReturnsError(t *testing.T) {
	_, err := parseBootstrapPeers([]string{"/ip4/10.0.0.1/tcp/4001"})
	assert.Error(t, err)
}

func TestParseBootstrapPeers_Garbage_ReturnsError(t *testing.T) {
	_, err := parseBootstrapPeers([]string{"not a multiaddr"})
	assert.Error(t, err)
}

func TestParseBootstrapPeers_Empty_ReturnsEmpty(t *testing.T) {
	peers, err := parseBootstrapPeers(nil)
	require.NoError(t, err)
	assert.Empty(t, peers)
}
