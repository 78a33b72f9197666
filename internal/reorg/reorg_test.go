package reorg

import (
	"context"
	"math/big"
	"path/filepath"
	"testing"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/goran-ethernal/RollupIndexor/internal/chain"
	internalcommon "github.com/goran-ethernal/RollupIndexor/internal/common"
	"github.com/goran-ethernal/RollupIndexor/internal/db"
	"github.com/goran-ethernal/RollupIndexor/internal/events"
	"github.com/goran-ethernal/RollupIndexor/internal/logger"
	"github.com/goran-ethernal/RollupIndexor/internal/store"
	"github.com/goran-ethernal/RollupIndexor/pkg/config"
	"github.com/goran-ethernal/RollupIndexor/pkg/reorg"
	pkgrpc "github.com/goran-ethernal/RollupIndexor/pkg/rpc"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

var (
	oracle   = common.HexToAddress("0xdfe97868233d1aa22e815a266982f2cf17685a27")
	factory  = common.HexToAddress("0xe5965Ab5962eDc7477C8520243A95517CD252fA9")
	proposer = common.HexToAddress("0x473300df21D047806A082244b417f96b32f13A33")
)

type mockL1 struct {
	mock.Mock
}

func (m *mockL1) GetHeadBlockNumber(ctx context.Context, tag string) (uint64, error) {
	args := m.Called(ctx, tag)
	return args.Get(0).(uint64), args.Error(1)
}

func (m *mockL1) BatchGetBlocks(ctx context.Context, blockNums []uint64) ([]*pkgrpc.Block, error) {
	args := m.Called(ctx, blockNums)
	blocks, _ := args.Get(0).([]*pkgrpc.Block)
	return blocks, args.Error(1)
}

func (m *mockL1) GetLogs(ctx context.Context, query ethereum.FilterQuery) ([]types.Log, error) {
	args := m.Called(ctx, query)
	logs, _ := args.Get(0).([]types.Log)
	return logs, args.Error(1)
}

// testChain derives block hashes from the block number; blocks at or after
// forkAt belong to branch fork.
type testChain struct {
	forkAt uint64
	fork   uint64
}

func (c testChain) hash(n uint64) common.Hash {
	if c.fork != 0 && n >= c.forkAt {
		return common.BigToHash(new(big.Int).SetUint64(n*1000 + c.fork))
	}
	return common.BigToHash(new(big.Int).SetUint64(n * 1000))
}

func txHash(block, position uint64) common.Hash {
	return common.BigToHash(new(big.Int).SetUint64(block<<16 | position))
}

func (c testChain) blocks(nums ...uint64) []*pkgrpc.Block {
	out := make([]*pkgrpc.Block, 0, len(nums))
	for _, n := range nums {
		out = append(out, &pkgrpc.Block{
			Number:       hexutil.Uint64(n),
			Hash:         c.hash(n),
			ParentHash:   c.hash(n - 1),
			Timestamp:    hexutil.Uint64(1700000000 + n*12),
			Transactions: []common.Hash{txHash(n, 0), txHash(n, 1)},
		})
	}
	return out
}

func word(v uint64) common.Hash {
	return common.BigToHash(new(big.Int).SetUint64(v))
}

func outputLog(c testChain, outputIndex, block uint64) types.Log {
	return types.Log{
		Address:     oracle,
		Topics:      []common.Hash{chain.OutputProposedTopic, word(outputIndex + 0xa0), word(outputIndex), word(outputIndex * 1800)},
		Data:        word(1700000000 + block).Bytes(),
		BlockNumber: block,
		BlockHash:   c.hash(block),
		TxHash:      txHash(block, 1),
	}
}

func gameLog(c testChain, block uint64, claim uint64) types.Log {
	return types.Log{
		Address: factory,
		Topics: []common.Hash{
			chain.DisputeGameCreatedTopic,
			common.BytesToHash(common.BigToAddress(new(big.Int).SetUint64(claim)).Bytes()),
			word(1),
			word(claim),
		},
		BlockNumber: block,
		BlockHash:   c.hash(block),
		TxHash:      txHash(block, 0),
	}
}

func opNetwork() *config.NetworkConfig {
	factoryStart, transition := uint64(400), uint64(500)
	n := &config.NetworkConfig{
		Name:                              config.ChainOptimism,
		Environment:                       config.EnvironmentSepolia,
		L1Contract:                        oracle.Hex(),
		L1ContractDeploymentBlock:         100,
		DisputeGameFactory:                factory.Hex(),
		DisputeGameFactoryDeploymentBlock: &factoryStart,
		FDGTransitionBlock:                &transition,
		TrustedProposerAddress:            proposer.Hex(),
	}
	n.ApplyDefaults()
	return n
}

func newFollower(t *testing.T, l1 L1, start uint64) *Follower {
	t.Helper()

	database, err := db.NewSQLiteDB(filepath.Join(t.TempDir(), "follower.db"))
	require.NoError(t, err)
	t.Cleanup(func() { database.Close() })

	network := opNetwork()
	family, err := chain.FromNetwork(network)
	require.NoError(t, err)

	cfg := &config.FollowerConfig{Finality: "latest", MaxBlocksPerNotification: 10}
	cfg.ApplyDefaults()

	f, err := NewFollower(database, network, family, cfg, l1, start, logger.NewNopLogger())
	require.NoError(t, err)
	return f
}

func journalNumbers(t *testing.T, f *Follower) []uint64 {
	t.Helper()

	journal, err := f.journal(context.Background())
	require.NoError(t, err)

	out := make([]uint64, 0, len(journal))
	for _, j := range journal {
		out = append(out, j.BlockNumber)
	}
	return out
}

func TestNewFollower_InvalidFinality(t *testing.T) {
	database, err := db.NewSQLiteDB(filepath.Join(t.TempDir(), "follower.db"))
	require.NoError(t, err)
	defer database.Close()

	network := opNetwork()
	family, err := chain.FromNetwork(network)
	require.NoError(t, err)

	_, err = NewFollower(database, network, family,
		&config.FollowerConfig{Finality: "pending", MaxBlocksPerNotification: 1}, &mockL1{}, 0, logger.NewNopLogger())
	require.ErrorContains(t, err, "invalid finality configuration")
}

func TestFollower_CommitReorgAndPrune(t *testing.T) {
	ctx := context.Background()
	canonical := testChain{}
	l1 := &mockL1{}
	f := newFollower(t, l1, 100)

	l1.On("GetHeadBlockNumber", mock.Anything, "latest").Return(uint64(102), nil).Once()
	l1.On("BatchGetBlocks", mock.Anything, []uint64{100, 101, 102}).Return(canonical.blocks(100, 101, 102), nil).Once()
	l1.On("GetLogs", mock.Anything, mock.Anything).Return([]types.Log{outputLog(canonical, 1, 101)}, nil).Once()

	n, err := f.Poll(ctx)
	require.NoError(t, err)
	require.Nil(t, n.Reverted)
	require.Len(t, n.Committed.Blocks, 3)
	require.Empty(t, n.Committed.Blocks[0].Logs)
	require.Nil(t, n.Committed.Blocks[0].Transactions)
	require.Len(t, n.Committed.Blocks[1].Logs, 1)
	require.Equal(t, []common.Hash{txHash(101, 0), txHash(101, 1)}, n.Committed.Blocks[1].Transactions)

	require.NoError(t, f.Apply(ctx, n))
	require.Equal(t, []uint64{100, 101, 102}, journalNumbers(t, f))

	// pruning stops at the finalized block
	l1.On("GetHeadBlockNumber", mock.Anything, "finalized").Return(uint64(101), nil).Once()
	require.NoError(t, f.Ack(ctx, reorg.FinishedHeight{Number: 102, Hash: canonical.hash(102)}))
	require.Equal(t, []uint64{101, 102}, journalNumbers(t, f))

	journal, err := f.journal(ctx)
	require.NoError(t, err)
	require.Equal(t, outputLog(canonical, 1, 101).Topics, journal[0].Logs[0].Topics)
	require.Equal(t, canonical.hash(101), journal[0].BlockHash)

	// block 102 is replaced by another branch
	fork := testChain{forkAt: 102, fork: 1}
	l1.On("GetHeadBlockNumber", mock.Anything, "latest").Return(uint64(103), nil).Once()
	l1.On("BatchGetBlocks", mock.Anything, []uint64{101, 102}).Return(fork.blocks(101, 102), nil).Once()
	l1.On("BatchGetBlocks", mock.Anything, []uint64{102, 103}).Return(fork.blocks(102, 103), nil).Once()
	l1.On("GetLogs", mock.Anything, mock.Anything).Return([]types.Log(nil), nil).Once()

	n, err = f.Poll(ctx)
	require.NoError(t, err)
	require.Len(t, n.Reverted.Blocks, 1)
	require.Equal(t, canonical.hash(102), n.Reverted.Blocks[0].Hash)
	require.Len(t, n.Committed.Blocks, 2)
	require.Equal(t, fork.hash(102), n.Committed.Blocks[0].Hash)

	require.NoError(t, f.Apply(ctx, n))
	journal, err = f.journal(ctx)
	require.NoError(t, err)
	require.Len(t, journal, 3)
	require.Equal(t, fork.hash(102), journal[1].BlockHash)

	l1.AssertExpectations(t)
}

func TestFollower_HeadMovesBack(t *testing.T) {
	ctx := context.Background()
	canonical := testChain{}
	l1 := &mockL1{}
	f := newFollower(t, l1, 100)

	l1.On("GetHeadBlockNumber", mock.Anything, "latest").Return(uint64(102), nil).Once()
	l1.On("BatchGetBlocks", mock.Anything, []uint64{100, 101, 102}).Return(canonical.blocks(100, 101, 102), nil).Once()
	l1.On("GetLogs", mock.Anything, mock.Anything).Return([]types.Log(nil), nil).Once()

	n, err := f.Poll(ctx)
	require.NoError(t, err)
	require.NoError(t, f.Apply(ctx, n))

	l1.On("GetHeadBlockNumber", mock.Anything, "latest").Return(uint64(101), nil).Once()
	l1.On("BatchGetBlocks", mock.Anything, []uint64{100, 101}).Return(canonical.blocks(100, 101), nil).Once()

	n, err = f.Poll(ctx)
	require.NoError(t, err)
	require.Nil(t, n.Committed)
	require.Len(t, n.Reverted.Blocks, 1)
	require.Equal(t, uint64(102), n.Reverted.Blocks[0].Number)

	require.NoError(t, f.Apply(ctx, n))
	require.Equal(t, []uint64{100, 101}, journalNumbers(t, f))

	// nothing new
	l1.On("GetHeadBlockNumber", mock.Anything, "latest").Return(uint64(101), nil).Once()
	l1.On("BatchGetBlocks", mock.Anything, []uint64{100, 101}).Return(canonical.blocks(100, 101), nil).Once()
	n, err = f.Poll(ctx)
	require.NoError(t, err)
	require.Nil(t, n)

	l1.AssertExpectations(t)
}

func TestFollower_ChainChangedDuringFetch(t *testing.T) {
	ctx := context.Background()
	canonical := testChain{}

	t.Run("broken parent link", func(t *testing.T) {
		l1 := &mockL1{}
		f := newFollower(t, l1, 100)

		blocks := canonical.blocks(100, 101)
		blocks[1].ParentHash = common.HexToHash("0xdead")

		l1.On("GetHeadBlockNumber", mock.Anything, "latest").Return(uint64(101), nil).Once()
		l1.On("BatchGetBlocks", mock.Anything, []uint64{100, 101}).Return(blocks, nil).Once()
		l1.On("GetLogs", mock.Anything, mock.Anything).Return([]types.Log(nil), nil).Once()

		_, err := f.Poll(ctx)
		var reorgErr *ReorgDetectedError
		require.ErrorAs(t, err, &reorgErr)
		require.Equal(t, uint64(101), reorgErr.FirstReorgBlock)
		require.Empty(t, journalNumbers(t, f))
	})

	t.Run("log from another branch", func(t *testing.T) {
		l1 := &mockL1{}
		f := newFollower(t, l1, 100)

		fork := testChain{forkAt: 101, fork: 7}
		l1.On("GetHeadBlockNumber", mock.Anything, "latest").Return(uint64(101), nil).Once()
		l1.On("BatchGetBlocks", mock.Anything, []uint64{100, 101}).Return(canonical.blocks(100, 101), nil).Once()
		l1.On("GetLogs", mock.Anything, mock.Anything).Return([]types.Log{outputLog(fork, 1, 101)}, nil).Once()

		_, err := f.Poll(ctx)
		var reorgErr *ReorgDetectedError
		require.ErrorAs(t, err, &reorgErr)
		require.Contains(t, reorgErr.Details, "log_hash")
	})
}

type recordingHandler struct {
	notifications []reorg.Notification
}

func (h *recordingHandler) Handle(_ context.Context, n reorg.Notification) (reorg.FinishedHeight, bool, error) {
	h.notifications = append(h.notifications, n)
	tip, ok := n.Committed.Tip()
	return reorg.FinishedHeight{Number: tip.Number, Hash: tip.Hash}, ok, nil
}

func TestFollower_Step(t *testing.T) {
	ctx := context.Background()
	canonical := testChain{}
	l1 := &mockL1{}
	f := newFollower(t, l1, 100)
	handler := &recordingHandler{}

	l1.On("GetHeadBlockNumber", mock.Anything, "latest").Return(uint64(104), nil).Once()
	l1.On("BatchGetBlocks", mock.Anything, []uint64{100, 101, 102, 103, 104}).
		Return(canonical.blocks(100, 101, 102, 103, 104), nil).Once()
	l1.On("GetLogs", mock.Anything, mock.Anything).Return([]types.Log(nil), nil).Once()
	l1.On("GetHeadBlockNumber", mock.Anything, "finalized").Return(uint64(90), nil).Once()

	caughtUp, err := f.step(ctx, handler)
	require.NoError(t, err)
	require.True(t, caughtUp)
	require.Len(t, handler.notifications, 1)
	require.Equal(t, []uint64{100, 101, 102, 103, 104}, journalNumbers(t, f))

	l1.AssertExpectations(t)
}

// fakeEnricher resolves every game as defender-wins without RPC calls.
type fakeEnricher struct{}

func (fakeEnricher) Enrich(_ context.Context, log types.Log, gameIndex uint64) (*events.DisputeGameRecord, error) {
	created, err := events.ParseDisputeGameCreated(log)
	if err != nil {
		return nil, err
	}
	safe := uint64(1)
	return &events.DisputeGameRecord{
		GameIndex:          gameIndex,
		GameAddress:        created.Game,
		GameType:           created.GameType,
		RootClaim:          created.RootClaim,
		GameState:          events.GameStatusDefenderWins,
		Proposer:           proposer,
		L2BlockNumber:      big.NewInt(1),
		L2BlockNumberSafe:  &safe,
		L1TransactionHash:  log.TxHash,
		L1BlockNumber:      log.BlockNumber,
		L1TransactionIndex: uint64(log.TxIndex),
		L1BlockHash:        log.BlockHash,
	}, nil
}

func newConsumer(t *testing.T) (*Consumer, *store.Store) {
	t.Helper()

	database, err := db.NewSQLiteDB(filepath.Join(t.TempDir(), "consumer.db"))
	require.NoError(t, err)
	t.Cleanup(func() { database.Close() })

	network := opNetwork()
	family, err := chain.FromNetwork(network)
	require.NoError(t, err)

	s, err := store.New(database, network, family, logger.NewNopLogger())
	require.NoError(t, err)

	c, err := NewConsumer(family, network.FDGTransitionBlock, s, fakeEnricher{}, nil,
		logger.NewNopLogger().WithComponent(internalcommon.ComponentReorgConsumer))
	require.NoError(t, err)
	return c, s
}

func segment(c testChain, logs map[uint64][]types.Log, nums ...uint64) *reorg.Segment {
	s := &reorg.Segment{}
	for _, b := range c.blocks(nums...) {
		number := uint64(b.Number)
		s.Blocks = append(s.Blocks, reorg.Block{
			Number:       number,
			Hash:         b.Hash,
			ParentHash:   b.ParentHash,
			Time:         uint64(b.Timestamp),
			Transactions: b.Transactions,
			Logs:         logs[number],
		})
	}
	return s
}

func count(t *testing.T, s *store.Store, table string) int {
	t.Helper()

	var n int
	require.NoError(t, s.DB().QueryRow("SELECT COUNT(*) FROM "+table).Scan(&n))
	return n
}

func TestConsumer_CommitAndRevert(t *testing.T) {
	ctx := context.Background()
	canonical := testChain{}
	c, s := newConsumer(t)

	committed := segment(canonical, map[uint64][]types.Log{
		450: {outputLog(canonical, 1, 450), gameLog(canonical, 450, 0xc1)},
		// the legacy stream ends at the transition block
		510: {outputLog(canonical, 2, 510), gameLog(canonical, 510, 0xc2)},
	}, 450, 510)

	finished, ok, err := c.Handle(ctx, reorg.Notification{Committed: committed})
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, reorg.FinishedHeight{Number: 510, Hash: canonical.hash(510)}, finished)

	require.Equal(t, 1, count(t, s, s.Table()))
	require.Equal(t, 2, count(t, s, s.GamesTable()))

	output, err := s.FirstOutputAtOrAfter(ctx, 0)
	require.NoError(t, err)
	require.Equal(t, uint64(1), output.L1TransactionIndex)
	require.Equal(t, uint64(450), output.L1BlockNumber)

	// a redelivered segment is not stored twice
	_, _, err = c.Handle(ctx, reorg.Notification{Committed: committed})
	require.NoError(t, err)
	require.Equal(t, 1, count(t, s, s.Table()))
	require.Equal(t, 2, count(t, s, s.GamesTable()))

	fork := testChain{forkAt: 510, fork: 1}
	reverted := segment(canonical, map[uint64][]types.Log{
		510: {outputLog(canonical, 2, 510), gameLog(canonical, 510, 0xc2)},
	}, 510)
	recommitted := segment(fork, map[uint64][]types.Log{
		510: {gameLog(fork, 510, 0xc3)},
	}, 510, 511)

	finished, ok, err = c.Handle(ctx, reorg.Notification{Reverted: reverted, Committed: recommitted})
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, uint64(511), finished.Number)

	game, err := s.FirstDisputeGameAtOrAfter(ctx, 0, proposer)
	require.NoError(t, err)
	require.Equal(t, uint64(0), game.GameIndex)
	require.Equal(t, word(0xc1), game.RootClaim)

	var claim, blockHash string
	require.NoError(t, s.DB().QueryRow(
		"SELECT root_claim, l1_block_hash FROM "+s.GamesTable()+" WHERE game_index = 1").Scan(&claim, &blockHash))
	require.Equal(t, word(0xc3), common.HexToHash(claim))
	require.Equal(t, fork.hash(510), common.HexToHash(blockHash))
	require.Equal(t, 2, count(t, s, s.GamesTable()))
}

func TestConsumer_RevertOnly(t *testing.T) {
	ctx := context.Background()
	canonical := testChain{}
	c, s := newConsumer(t)

	logs := map[uint64][]types.Log{120: {outputLog(canonical, 1, 120)}}
	_, _, err := c.Handle(ctx, reorg.Notification{Committed: segment(canonical, logs, 120)})
	require.NoError(t, err)
	require.Equal(t, 1, count(t, s, s.Table()))

	_, ok, err := c.Handle(ctx, reorg.Notification{Reverted: segment(canonical, logs, 120)})
	require.NoError(t, err)
	require.False(t, ok)
	require.Zero(t, count(t, s, s.Table()))
}

func TestConsumer_TransactionNotInBlock(t *testing.T) {
	canonical := testChain{}
	c, _ := newConsumer(t)

	log := outputLog(canonical, 1, 120)
	log.TxHash = common.HexToHash("0xbeef")

	_, _, err := c.Handle(context.Background(), reorg.Notification{
		Committed: segment(canonical, map[uint64][]types.Log{120: {log}}, 120),
	})
	require.ErrorIs(t, err, ErrTransactionNotInBlock)
}
