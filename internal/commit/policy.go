package commit

import (
	"context"

	"github.com/medledger/medledger/internal/ledger"
	"github.com/medledger/medledger/internal/pin"
)

// PinPolicy performs the pin step of a commit. The default makes exactly
// one call; an alternative policy may wrap the pinner with retries or
// hedging without the pipeline knowing.
type PinPolicy func(ctx context.Context, p pin.Pinner, payload []byte) (cid string, err error)

// AnchorPolicy performs the anchor step of a commit.
type AnchorPolicy func(ctx context.Context, a ledger.Anchor, accountAddress, cid string) (txHash string, err error)

// PinOnce calls the pinner exactly once.
func PinOnce(ctx context.Context, p pin.Pinner, payload []byte) (string, error) {
	return p.PinJSON(ctx, payload)
}

// AnchorOnce calls the anchor exactly once.
func AnchorOnce(ctx context.Context, a ledger.Anchor, accountAddress, cid string) (string, error) {
	return a.CreateRecord(ctx, accountAddress, cid)
}

// WithPinPolicy overrides how the pin step is executed.
func WithPinPolicy(p PinPolicy) Option {
	return func(o *Orchestrator) { o.pinStep = p }
}

// WithAnchorPolicy overrides how the anchor step is executed.
func WithAnchorPolicy(p AnchorPolicy) Option {
	return func(o *Orchestrator) { o.anchorStep = p }
}
