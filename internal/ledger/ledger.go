// Package ledger provides append-only ledger clients for anchoring record
// proofs.
//
// An anchor binds a patient's account address to a content identifier in a
// confirmed ledger transaction. The ledger is treated as an opaque,
// eventually-confirmed service: this package submits and waits for one
// confirmation, nothing more. Consensus, reorg handling and re-anchoring are
// out of scope.
package ledger

import "context"

// LogEntry is one audit entry read back from the ledger.
type LogEntry struct {
	Patient   string `json:"patient"`
	CID       string `json:"cid"`
	Timestamp int64  `json:"timestamp"`
}

// Anchor submits record proofs to an append-only ledger.
//
// CreateRecord blocks until the transaction reaches one confirmation and
// returns its hash. GetLog and Count are the audit read path; they are not
// part of the commit pipeline.
type Anchor interface {
	CreateRecord(ctx context.Context, accountAddress, cid string) (txHash string, err error)
	GetLog(ctx context.Context, id int64) (LogEntry, error)
	Count(ctx context.Context) (int64, error)
}
