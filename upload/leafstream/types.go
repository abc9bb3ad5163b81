// Package leafstream implements the client side of the resumable chunked
// upload protocol: a file is split into fixed-size leaves, each leaf is
// content-hashed and transferred sequentially, and interrupted sessions are
// resumed from the leaf manifest the server reports during negotiation.
package leafstream

import (
	"context"
	"fmt"
)

// Source is the file being uploaded. Size, name and content type are
// immutable for the lifetime of a session.
type Source interface {
	// Name returns the file name sent in the finalize request.
	Name() string

	// Size returns the file size in bytes.
	Size() int64

	// ContentType returns the MIME type sent in the finalize request.
	ContentType() string

	// ReadRange returns the exact bytes of the range [offset, offset+length).
	// It may be called multiple times for the same range.
	ReadRange(offset, length int64) ([]byte, error)
}

// Manifest is the server's answer to a negotiation request: the hashes of
// the leaves it already has (empty string for leaves it needs) and the leaf
// size the session must use.
type Manifest struct {
	Leaves   []string
	LeafSize int64
}

// Transport issues the protocol's HTTP requests. Each call performs a single
// attempt; retrying is the session's responsibility.
type Transport interface {
	// Negotiate starts or resumes a session identified by quickID.
	Negotiate(ctx context.Context, quickID string, size int64) (Manifest, error)

	// UploadLeaf transfers one leaf's bytes together with its content hash.
	UploadLeaf(ctx context.Context, quickID string, index int, data []byte, hash string) error

	// Finalize submits the complete leaf hash list and the file metadata.
	Finalize(ctx context.Context, quickID string, leaves []string, name, mime string) error
}

// StatusError is returned by a Transport when the server answered with a
// failure status. The session branches on the status code to tell session
// loss (409) and leaf corruption (412) apart from generic failures.
type StatusError struct {
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("HTTP %d: %s", e.StatusCode, e.Body)
}

// State identifies where a session is in its lifecycle.
type State int

const (
	// StateIdle - session created, Run not yet called
	StateIdle State = iota
	// StateIdentifying - reading the first chunk to compute the quick ID
	StateIdentifying
	// StateNegotiating - awaiting the leaf manifest from the server
	StateNegotiating
	// StateLeafHashing - reading and hashing the current leaf
	StateLeafHashing
	// StateLeafUploading - awaiting the server's ack for the current leaf
	StateLeafUploading
	// StateFinalizing - awaiting the ack for the leaf list + metadata
	StateFinalizing
	// StateDone - terminal success
	StateDone
	// StateAborted - terminal, retry budget exhausted
	StateAborted
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateIdentifying:
		return "identifying"
	case StateNegotiating:
		return "negotiating"
	case StateLeafHashing:
		return "leaf-hashing"
	case StateLeafUploading:
		return "leaf-uploading"
	case StateFinalizing:
		return "finalizing"
	case StateDone:
		return "done"
	case StateAborted:
		return "aborted"
	default:
		return fmt.Sprintf("unknown(%d)", int(s))
	}
}

// Response describes one transport round-trip, successful or not. It is
// passed to the OnRequest hook for diagnostics.
type Response struct {
	// State is the session state the request was issued from.
	State State
	// LeafIndex is the index of the leaf in flight, or -1 for negotiation
	// and finalize requests.
	LeafIndex int
	// Err is nil for successful round-trips. Status failures carry a
	// *StatusError.
	Err error
	// Retries is the session's consumed retry budget at the time of the
	// round-trip.
	Retries int
}
