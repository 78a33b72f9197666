package engine

import (
	"fmt"

	"github.com/goran-ethernal/RollupIndexor/internal/chain"
)

// FatalError stops the indexing loop. The process is expected to exit and
// resume from the store on restart.
type FatalError struct {
	Stream chain.StreamKind
	// Block is the L1 block being processed when the failure happened.
	Block uint64
	// GameIndex is the index the failing dispute game would have received.
	GameIndex *uint64
	Err       error
}

func (e *FatalError) Error() string {
	if e.Stream == "" {
		return fmt.Sprintf("indexing stopped: %v", e.Err)
	}
	if e.GameIndex != nil {
		return fmt.Sprintf("indexing stopped: stream %s at L1 block %d, game index %d: %v",
			e.Stream, e.Block, *e.GameIndex, e.Err)
	}
	return fmt.Sprintf("indexing stopped: stream %s at L1 block %d: %v", e.Stream, e.Block, e.Err)
}

func (e *FatalError) Unwrap() error {
	return e.Err
}
