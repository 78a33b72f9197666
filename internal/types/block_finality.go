package types

import (
	"fmt"
	"strings"
)

// BlockFinality is the block tag the reorg follower treats as the chain head.
type BlockFinality string

const (
	// FinalityFinalized follows the finalized block; it is never reorganized
	FinalityFinalized BlockFinality = "finalized"

	// FinalitySafe follows the safe block
	FinalitySafe BlockFinality = "safe"

	// FinalityLatest follows the tip of the chain
	FinalityLatest BlockFinality = "latest"
)

// String returns the block tag.
func (f BlockFinality) String() string {
	return string(f)
}

// IsValid checks if the BlockFinality value is valid.
func (f BlockFinality) IsValid() bool {
	switch f {
	case FinalityFinalized, FinalitySafe, FinalityLatest:
		return true
	default:
		return false
	}
}

// CanReorg reports whether blocks at this finality may still be replaced.
// Journal blocks of a follower at such a finality are kept until the
// finalized head passes them.
func (f BlockFinality) CanReorg() bool {
	return f != FinalityFinalized
}

// ParseBlockFinality parses a block tag, ignoring case and surrounding spaces.
// An empty string selects FinalityLatest.
func ParseBlockFinality(s string) (BlockFinality, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	if s == "" {
		return FinalityLatest, nil
	}

	f := BlockFinality(s)
	if !f.IsValid() {
		return "", fmt.Errorf("invalid block finality: %s (must be one of: finalized, safe, latest)", s)
	}
	return f, nil
}
