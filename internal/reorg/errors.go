package reorg

import (
	"errors"
	"fmt"
)

// ErrTransactionNotInBlock is returned when a log references a transaction
// missing from its block's transaction list.
var ErrTransactionNotInBlock = errors.New("transaction not in block")

// ReorgDetectedError is returned when the chain changed while a segment was
// being fetched. The next poll observes the divergence and reverts it.
type ReorgDetectedError struct {
	FirstReorgBlock uint64
	Details         string
}

func (e *ReorgDetectedError) Error() string {
	return fmt.Sprintf("reorg detected at block %d: %s", e.FirstReorgBlock, e.Details)
}

// NewReorgError creates a new ReorgDetectedError.
func NewReorgError(firstReorgBlock uint64, details string) error {
	return &ReorgDetectedError{
		FirstReorgBlock: firstReorgBlock,
		Details:         details,
	}
}
