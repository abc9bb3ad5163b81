package leafstream

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/bitrise-io/go-utils/v2/log"
	"github.com/medialib-io/go-mediautils/upload/leafhash"
)

// ErrRetriesExhausted is returned by Run when the session's shared retry
// budget runs out. The session is left in StateAborted; resuming requires a
// fresh session (the server's manifest makes the restart cheap).
var ErrRetriesExhausted = errors.New("retry budget exhausted")

// cursorUnset marks a session that has not started scanning leaves yet.
const cursorUnset = -1

// Session drives the upload of one file end to end. A session owns its file
// handle, leaf array and retry counter exclusively; independent sessions may
// run concurrently. Within a session there is never more than one
// outstanding read or request at a time.
type Session struct {
	src       Source
	transport Transport
	config    Config
	logger    log.Logger
	stats     *Stats

	state     State
	quickID   string
	leafSize  int64
	leafCount int
	leaves    []string
	cursor    int
	retries   int
	startedAt time.Time
}

// NewSession creates a session for the given source. Run starts it.
func NewSession(src Source, transport Transport, config Config, logger log.Logger) *Session {
	return &Session{
		src:       src,
		transport: transport,
		config:    config.withDefaults(),
		logger:    logger,
		stats:     NewStats(),
		state:     StateIdle,
		cursor:    cursorUnset,
	}
}

// State returns the session's current lifecycle state.
func (s *Session) State() State {
	return s.state
}

// QuickID returns the session's resume key. Empty before identification.
func (s *Session) QuickID() string {
	return s.quickID
}

// Leaves returns a copy of the per-leaf hash list. Positions not yet hashed
// or reported by the server are empty.
func (s *Session) Leaves() []string {
	out := make([]string, len(s.leaves))
	copy(out, s.leaves)
	return out
}

// Retries returns the consumed retry budget.
func (s *Session) Retries() int {
	return s.retries
}

// Stats returns the session's leaf transfer statistics.
func (s *Session) Stats() *Stats {
	return s.stats
}

// Run performs the whole upload: quick identification, negotiation,
// sequential leaf transfer and finalization. Transient failures are absorbed
// and retried internally; Run returns an error only on terminal abort,
// context cancellation or a local read failure. Run can be called once per
// session.
func (s *Session) Run(ctx context.Context) error {
	if s.state != StateIdle {
		return fmt.Errorf("session already started (state: %s)", s.state)
	}
	s.startedAt = time.Now()
	s.cursor = cursorUnset
	s.retries = 0

	s.state = StateIdentifying
	if err := s.identify(); err != nil {
		s.state = StateAborted
		return err
	}
	s.logger.Debugf("Upload session %s: %s (%d bytes)", s.quickID, s.src.Name(), s.src.Size())

	// One leaf's bytes and hash are held in memory between hashing and the
	// server's ack so a failed or corrupted transfer can re-send the same
	// bytes. The hash is committed into the leaf list only once the server
	// acknowledged the PUT: a hash in s.leaves means the server has the leaf,
	// which is what advance relies on when skipping.
	var leafData []byte
	var leafHash string

	s.state = StateNegotiating
	for {
		if err := ctx.Err(); err != nil {
			return fmt.Errorf("upload cancelled: %w", err)
		}

		switch s.state {
		case StateNegotiating:
			manifest, err := s.transport.Negotiate(ctx, s.quickID, s.src.Size())
			s.notifyRequest(StateNegotiating, -1, err)
			if err != nil {
				if !s.retry("negotiation", err) {
					return fmt.Errorf("negotiation: %w", ErrRetriesExhausted)
				}
				continue
			}
			s.applyManifest(manifest)
			s.logger.Debugf("Negotiated session %s: %d leaves of %d bytes, %d already known",
				s.quickID, s.leafCount, s.leafSize, s.knownLeaves())
			if _, found := s.advance(); found {
				s.state = StateLeafHashing
			} else {
				s.state = StateFinalizing
			}

		case StateLeafHashing:
			data, err := s.readLeaf(s.cursor)
			if err != nil {
				s.state = StateAborted
				return fmt.Errorf("read leaf %d: %w", s.cursor, err)
			}
			leafHash = leafhash.ShortHash(data)
			leafData = data
			s.state = StateLeafUploading

		case StateLeafUploading:
			start := time.Now()
			err := s.transport.UploadLeaf(ctx, s.quickID, s.cursor, leafData, leafHash)
			s.notifyRequest(StateLeafUploading, s.cursor, err)
			if err != nil {
				var statusErr *StatusError
				if errors.As(err, &statusErr) {
					switch statusErr.StatusCode {
					case http.StatusConflict:
						// Server forgot the session: renegotiate, keeping the
						// quick ID and the hashes computed so far.
						s.logger.Warnf("Leaf %d rejected, session lost on server, renegotiating", s.cursor)
						if !s.retry("renegotiation", err) {
							return fmt.Errorf("renegotiation: %w", ErrRetriesExhausted)
						}
						leafData, leafHash = nil, ""
						s.cursor = cursorUnset
						s.state = StateNegotiating
						continue
					case http.StatusPreconditionFailed:
						// Leaf corrupted in transit. Re-sending the same bytes
						// is the expected path and does not consume budget.
						s.logger.Warnf("Leaf %d corrupted in transit, re-sending", s.cursor)
						continue
					}
				}
				if !s.retry(fmt.Sprintf("leaf %d upload", s.cursor), err) {
					return fmt.Errorf("leaf %d upload: %w", s.cursor, ErrRetriesExhausted)
				}
				continue
			}
			s.leaves[s.cursor] = leafHash
			s.stats.Record(int64(len(leafData)), time.Since(start))
			s.logger.Debugf("Leaf %d/%d uploaded (%s avg)",
				s.cursor+1, s.leafCount, s.stats.AverageLeafTime().Round(time.Millisecond))
			leafData, leafHash = nil, ""
			if _, found := s.advance(); found {
				s.state = StateLeafHashing
			} else {
				s.state = StateFinalizing
			}

		case StateFinalizing:
			err := s.transport.Finalize(ctx, s.quickID, s.Leaves(), s.src.Name(), s.src.ContentType())
			s.notifyRequest(StateFinalizing, -1, err)
			if err != nil {
				if !s.retry("finalization", err) {
					return fmt.Errorf("finalization: %w", ErrRetriesExhausted)
				}
				continue
			}
			s.state = StateDone
			s.logger.Debugf("Upload session %s finalized in %s",
				s.quickID, time.Since(s.startedAt).Round(time.Millisecond))
			return nil

		default:
			return fmt.Errorf("unexpected session state: %s", s.state)
		}
	}
}

// identify computes the quick ID from the file size and the first chunk.
// It runs exactly once per session; renegotiation reuses the stored value.
func (s *Session) identify() error {
	length := s.config.QuickIDChunkSize
	if size := s.src.Size(); size < length {
		length = size
	}
	chunk, err := s.src.ReadRange(0, length)
	if err != nil {
		return fmt.Errorf("read quick-id chunk: %w", err)
	}
	s.quickID = leafhash.QuickID(s.src.Size(), chunk)
	return nil
}

// applyManifest fixes the leaf size on first negotiation and merges the
// server-known hashes into the leaf list. A hash already present locally is
// never overwritten: hashing the same bytes must always agree.
func (s *Session) applyManifest(m Manifest) {
	if s.leafSize == 0 {
		if m.LeafSize > 0 {
			s.leafSize = m.LeafSize
		} else {
			s.leafSize = s.config.LeafSize
		}
		s.leafCount = LeafCount(s.src.Size(), s.leafSize)
		s.leaves = make([]string, s.leafCount)
	}
	for i, hash := range m.Leaves {
		if i >= s.leafCount {
			break
		}
		if hash != "" && s.leaves[i] == "" {
			s.leaves[i] = hash
		}
	}
}

// advance moves the cursor to the next leaf still needing upload, skipping
// leaves whose hash is already known, and reports progress at every step.
// It reports false when all leaves are done.
func (s *Session) advance() (int, bool) {
	for {
		if s.cursor == cursorUnset {
			s.cursor = 0
		} else {
			s.cursor++
		}

		completed := int64(s.cursor) * s.leafSize
		if total := s.src.Size(); completed > total {
			completed = total
		}
		s.reportProgress(completed)

		if s.cursor >= s.leafCount {
			return s.cursor, false
		}
		if s.leaves[s.cursor] == "" {
			return s.cursor, true
		}
	}
}

// retry consumes one unit of the shared retry budget and reports whether the
// failed request may be re-issued. When the budget is exhausted the session
// transitions to StateAborted.
func (s *Session) retry(stage string, cause error) bool {
	s.retries++
	if s.retries > s.config.MaxRetries {
		s.state = StateAborted
		s.logger.Errorf("Giving up %s after %d retries: %s", stage, s.config.MaxRetries, cause)
		return false
	}
	s.logger.Warnf("%s failed, retrying (%d/%d): %s", stage, s.retries, s.config.MaxRetries, cause)
	return true
}

func (s *Session) readLeaf(index int) ([]byte, error) {
	offset := int64(index) * s.leafSize
	length := s.leafSize
	if remaining := s.src.Size() - offset; remaining < length {
		length = remaining
	}
	return s.src.ReadRange(offset, length)
}

func (s *Session) knownLeaves() int {
	count := 0
	for _, hash := range s.leaves {
		if hash != "" {
			count++
		}
	}
	return count
}

func (s *Session) reportProgress(completed int64) {
	if s.config.OnProgress != nil {
		s.config.OnProgress(completed, s.src.Size())
	}
}

func (s *Session) notifyRequest(state State, leafIndex int, err error) {
	if s.config.OnRequest != nil {
		s.config.OnRequest(Response{
			State:     state,
			LeafIndex: leafIndex,
			Err:       err,
			Retries:   s.retries,
		})
	}
}
