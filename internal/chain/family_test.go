package chain

import (
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/goran-ethernal/RollupIndexor/pkg/config"
	"github.com/stretchr/testify/require"
)

func uint64Ptr(v uint64) *uint64 {
	return &v
}

func optimismMainnet() *config.NetworkConfig {
	n := &config.NetworkConfig{
		Name:                              config.ChainOptimism,
		Environment:                       config.EnvironmentMainnet,
		L1Contract:                        "0xdfe97868233d1aa22e815a266982f2cf17685a27",
		L1ContractDeploymentBlock:         100,
		DisputeGameFactory:                "0xe5965Ab5962eDc7477C8520243A95517CD252fA9",
		DisputeGameFactoryDeploymentBlock: uint64Ptr(400),
		FDGTransitionBlock:                uint64Ptr(500),
		TrustedProposerAddress:            "0x473300df21D047806A082244b417f96b32f13A33",
	}
	n.ApplyDefaults()
	return n
}

func TestTopics(t *testing.T) {
	require.Equal(t,
		common.HexToHash("0xa7aaf2512769da4e444e3de247be2564225c2e7a8f74cfe528e46e17d24868e2"),
		OutputProposedTopic)
	require.Equal(t,
		common.HexToHash("0x5b565efe82411da98814f356d0e7bcb8f0219b8d970307c5afb4a6903a8b2e35"),
		DisputeGameCreatedTopic)
	require.Equal(t,
		common.HexToHash("0xb4df3847300f076a369cd76d2314b470a1194d9e8a6bb97f1860aee88a5f6748"),
		SendRootUpdatedTopic)
}

func TestFromNetwork(t *testing.T) {
	t.Run("fdg eligible optimism", func(t *testing.T) {
		family, err := FromNetwork(optimismMainnet())
		require.NoError(t, err)
		require.Equal(t, KindOpStack, family.Kind())
		require.True(t, family.HasDisputeGames())

		streams := family.Streams()
		require.Len(t, streams, 2)
		require.Equal(t, StreamLegacy, streams[0].Kind)
		require.Equal(t, uint64(100), streams[0].Start)
		require.Equal(t, uint64(500), *streams[0].End)
		require.Equal(t, StreamFDG, streams[1].Kind)
		require.Equal(t, uint64(400), streams[1].Start)
		require.Nil(t, streams[1].End)
		require.Equal(t, common.HexToAddress("0xe5965Ab5962eDc7477C8520243A95517CD252fA9"), streams[1].Address)
	})

	t.Run("legacy only", func(t *testing.T) {
		n := optimismMainnet()
		n.DisputeGameFactory = ""
		n.FDGTransitionBlock = nil
		family, err := FromNetwork(n)
		require.NoError(t, err)
		require.False(t, family.HasDisputeGames())
		require.Len(t, family.Streams(), 1)
		require.Nil(t, family.Streams()[0].End)
	})

	t.Run("transition without factory still ends the legacy stream", func(t *testing.T) {
		n := optimismMainnet()
		n.DisputeGameFactory = ""
		family, err := FromNetwork(n)
		require.NoError(t, err)
		require.False(t, family.HasDisputeGames())

		legacy, ok := family.Stream(StreamLegacy)
		require.True(t, ok)
		require.Equal(t, uint64(500), *legacy.End)

		from, to, ok := legacy.Window(450, 600, 1000)
		require.True(t, ok)
		require.Equal(t, uint64(450), from)
		require.Equal(t, uint64(499), to)
	})

	t.Run("arbitrum", func(t *testing.T) {
		n := &config.NetworkConfig{
			Name:                      config.ChainArbitrum,
			Environment:               config.EnvironmentMainnet,
			L1Contract:                "0x0B9857ae2D4A3DBe74ffE1d7DF045bb7F96E4840",
			L1ContractDeploymentBlock: 15411056,
		}
		n.ApplyDefaults()

		family, err := FromNetwork(n)
		require.NoError(t, err)
		require.True(t, family.IsArbitrum())
		require.Equal(t, "arbitrum", family.Kind().String())

		stream, ok := family.Stream(StreamArbitrum)
		require.True(t, ok)
		require.Equal(t, SendRootUpdatedTopic, stream.Topic)
	})

	t.Run("missing transition block", func(t *testing.T) {
		n := optimismMainnet()
		n.FDGTransitionBlock = nil
		_, err := FromNetwork(n)
		require.ErrorContains(t, err, "fdg_transition_block is required")
	})
}

func TestStream_Window(t *testing.T) {
	open := Stream{Kind: StreamArbitrum}
	legacy := Stream{Kind: StreamLegacy, End: uint64Ptr(500)}

	tests := []struct {
		name     string
		stream   Stream
		cursor   uint64
		safeHead uint64
		batch    uint64
		wantOK   bool
		wantFrom uint64
		wantTo   uint64
	}{
		{name: "full batch", stream: open, cursor: 100, safeHead: 210, batch: 50, wantOK: true, wantFrom: 100, wantTo: 149},
		{name: "second batch", stream: open, cursor: 150, safeHead: 210, batch: 50, wantOK: true, wantFrom: 150, wantTo: 199},
		{name: "capped by safe head", stream: open, cursor: 200, safeHead: 210, batch: 50, wantOK: true, wantFrom: 200, wantTo: 210},
		{name: "single block", stream: open, cursor: 210, safeHead: 210, batch: 50, wantOK: true, wantFrom: 210, wantTo: 210},
		{name: "idle", stream: open, cursor: 211, safeHead: 210, batch: 50},
		{name: "capped by transition", stream: legacy, cursor: 480, safeHead: 598, batch: 50, wantOK: true, wantFrom: 480, wantTo: 499},
		{name: "finished at transition", stream: legacy, cursor: 500, safeHead: 598, batch: 50},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			from, to, ok := tt.stream.Window(tt.cursor, tt.safeHead, tt.batch)
			require.Equal(t, tt.wantOK, ok)
			if !ok {
				return
			}
			require.Equal(t, tt.wantFrom, from)
			require.Equal(t, tt.wantTo, to)
		})
	}
}

func TestFamily_Query(t *testing.T) {
	family, err := FromNetwork(optimismMainnet())
	require.NoError(t, err)

	q := family.Query(10, 20)
	require.Equal(t, uint64(10), q.FromBlock.Uint64())
	require.Equal(t, uint64(20), q.ToBlock.Uint64())
	require.Len(t, q.Addresses, 2)
	require.Equal(t, [][]common.Hash{{OutputProposedTopic, DisputeGameCreatedTopic}}, q.Topics)

	stream, ok := family.StreamOf(q.Addresses[1], DisputeGameCreatedTopic)
	require.True(t, ok)
	require.Equal(t, StreamFDG, stream.Kind)

	_, ok = family.StreamOf(q.Addresses[0], DisputeGameCreatedTopic)
	require.False(t, ok)
}
