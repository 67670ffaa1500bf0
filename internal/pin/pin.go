// Package pin provides content-addressable storage clients.
//
// The commit pipeline pins a record's canonical payload before anything is
// persisted, so a stored record can never reference unpinned content. The
// pinning service is content-addressed: pinning identical bytes returns the
// identical content identifier.
package pin

import "context"

// Pinner pins a canonical JSON payload and returns its content identifier.
//
// Implementations make exactly one attempt per call unless configured
// otherwise at the transport level; the commit pipeline never retries.
type Pinner interface {
	PinJSON(ctx context.Context, payload []byte) (cid string, err error)
}
