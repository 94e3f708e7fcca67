// Package storage defines the distributed state port (C2): the contract
// every bucket-state backend must satisfy so that multiple service
// replicas can share bucket state without racing.
package storage

import (
	"context"
	"strconv"
	"strings"
	"time"

	"github.com/pallabcodes/distributed-ratelimiter/utils/builderpool"
)

// TTL is the duration a bucket is retained after its last successful write.
const TTL = time.Hour

// State is the durable representation of a bucket: tokens remaining and
// the timestamp of the last refill computation.
type State struct {
	Tokens     float64
	LastRefill time.Time
}

// Store is the port every storage adapter implements. Get and
// CompareAndSet may be called concurrently by multiple goroutines and,
// in a replicated deployment, by multiple processes sharing the same
// backend.
type Store interface {
	// Get returns the durably stored state for key, or ok=false if no
	// state exists (never observed, or reclaimed by TTL).
	Get(ctx context.Context, key string) (state State, ok bool, err error)

	// CompareAndSet atomically replaces the value at key with next, but
	// only if the currently stored value still equals expected. When
	// expectedOK is false, the write succeeds only if key does not
	// currently exist. On success the key's TTL is reset to ttl.
	CompareAndSet(ctx context.Context, key string, expected State, expectedOK bool, next State, ttl time.Duration) (applied bool, err error)

	// Close releases resources held by the adapter (connections, etc).
	Close() error
}

// encodeState serializes a State into a compact ASCII format:
// "v2|<tokens>|<lastRefillUnixNano>". This mirrors the teacher's wire
// format byte-for-byte so adapters can be swapped without a migration.
func encodeState(s State) string {
	sb := builderpool.Get()
	defer builderpool.Put(sb)

	sb.Grow(2 + 1 + 24 + 1 + 20)
	sb.WriteString("v2|")
	sb.WriteString(strconv.FormatFloat(s.Tokens, 'g', -1, 64))
	sb.WriteByte('|')
	sb.WriteString(strconv.FormatInt(s.LastRefill.UnixNano(), 10))
	return sb.String()
}

// decodeState parses the wire format produced by encodeState. ok is false
// if data is empty or malformed (StoragePermanent, see errors.go).
func decodeState(data string) (State, bool) {
	if len(data) < 3 || data[0] != 'v' || data[1] != '2' || data[2] != '|' {
		return State{}, false
	}
	rest := data[3:]

	sep := strings.IndexByte(rest, '|')
	if sep < 0 {
		return State{}, false
	}

	tokens, err := strconv.ParseFloat(rest[:sep], 64)
	if err != nil {
		return State{}, false
	}
	nanos, err := strconv.ParseInt(rest[sep+1:], 10, 64)
	if err != nil {
		return State{}, false
	}

	return State{Tokens: tokens, LastRefill: time.Unix(0, nanos)}, true
}

// EncodeState exposes encodeState for adapters living in sub-packages.
func EncodeState(s State) string { return encodeState(s) }

// DecodeState exposes decodeState for adapters living in sub-packages.
func DecodeState(data string) (State, bool) { return decodeState(data) }
