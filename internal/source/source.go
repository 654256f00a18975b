package source

import (
	"context"
	"fmt"
	"image"
	"log"
	"strings"
	"time"

	"github.com/technosupport/ts-vision-core/internal/frame"
)

// Credentials is an optional username/password pair used by schemes that
// need authentication (rtsp, some http sources).
type Credentials struct {
	Username string
	Password string
}

// Session is the per-connection contract a transport implements. Frame
// timestamps are derived from the session when the transport exposes a
// capture clock and are stamped at emission otherwise.
type Session interface {
	// Read blocks until the next frame is available, the session hits
	// ErrEndOfStream, or ctx is cancelled.
	Read(ctx context.Context) (img image.Image, timestampNs int64, err error)
	Close() error
}

// Opener constructs a Session for a given URL. Registered per scheme in
// the Registry below.
type Opener func(ctx context.Context, url string, cred Credentials) (Session, error)

// FrameSource wraps a Session with reconnection, rate limiting, and
// sequence/timestamp discipline. One FrameSource exists per pipeline for
// the lifetime of that pipeline.
type FrameSource struct {
	CameraID    string
	URL         string
	Cred        Credentials
	FPS         float64
	ReconnectMax time.Duration // reconnect deadline; 0 means no deadline

	opener  Opener
	session Session
	seq     uint64

	lastErr error

	lastEmit time.Time // when Read last returned a frame, for FPS pacing
}

// New constructs a FrameSource for url, resolving the transport opener
// from scheme via the package Registry.
func New(cameraID, url string, cred Credentials, fps float64, reconnectMax time.Duration) (*FrameSource, error) {
	opener, err := Lookup(url)
	if err != nil {
		return nil, err
	}
	if fps <= 0 {
		fps = 10
	}
	return &FrameSource{
		CameraID:     cameraID,
		URL:          url,
		Cred:         cred,
		FPS:          fps,
		ReconnectMax: reconnectMax,
		opener:       opener,
	}, nil
}

// Open establishes the initial session in a single attempt and returns
// any error, fatal or transient, to the caller without retry. Once a
// session is open, Read reconnects via reconnectWithBackoff after
// non-fatal read errors.
func (s *FrameSource) Open(ctx context.Context) error {
	sess, err := s.opener(ctx, s.URL, s.Cred)
	if err != nil {
		s.lastErr = err
		return err
	}
	s.session = sess
	s.seq = 0
	return nil
}

// Read returns the next frame, honoring the configured FPS by sleeping
// off any remainder of the frame interval (drop-newest happens at the
// queue boundary in internal/pipeline, not here — FrameSource only paces
// emission). On ErrTransientIO it reconnects with exponential backoff
// before returning the next frame; sequence numbers reset to zero on a
// successful reconnect since contiguity is only guaranteed within one
// open session.
func (s *FrameSource) Read(ctx context.Context) (*frame.Frame, error) {
	if s.session == nil {
		return nil, fmt.Errorf("source[%s]: not open", s.CameraID)
	}

	if s.FPS > 0 && !s.lastEmit.IsZero() {
		if wait := time.Duration(float64(time.Second)/s.FPS) - time.Since(s.lastEmit); wait > 0 {
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(wait):
			}
		}
	}
	s.lastEmit = time.Now()

	img, ts, err := s.session.Read(ctx)
	if err != nil {
		if Fatal(err) {
			s.lastErr = err
			return nil, err
		}
		log.Printf("[Source:%s] transient read error: %v, reconnecting", s.CameraID, err)
		if rerr := s.reconnectWithBackoff(ctx); rerr != nil {
			s.lastErr = rerr
			return nil, rerr
		}
		img, ts, err = s.session.Read(ctx)
		if err != nil {
			s.lastErr = err
			return nil, err
		}
	}

	if ts == 0 {
		ts = time.Now().UnixNano()
	}
	s.seq++
	return frame.New(s.CameraID, s.seq, ts, img), nil
}

// Close releases the underlying session.
func (s *FrameSource) Close() error {
	if s.session == nil {
		return nil
	}
	return s.session.Close()
}

// LastError returns the most recent fatal or exhausted-retry error, for
// pipeline health reporting.
func (s *FrameSource) LastError() error {
	return s.lastErr
}

func schemeOf(url string) string {
	i := strings.Index(url, "://")
	if i < 0 {
		return ""
	}
	return strings.ToLower(url[:i])
}
