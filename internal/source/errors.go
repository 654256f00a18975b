package source

import "errors"

// Errors returned by Open.
var (
	ErrUnreachableHost = errors.New("source: unreachable host")
	ErrAuthFailed      = errors.New("source: authentication failed")
	ErrUnsupported     = errors.New("source: unsupported url scheme")
)

// Errors returned by Session.Read.
var (
	ErrTransientIO = errors.New("source: transient io error")
	ErrEndOfStream = errors.New("source: end of stream")
	ErrDecode      = errors.New("source: decode error")
)

// Fatal reports whether err should be treated as a fatal, non-retriable
// Open failure (auth failure, unsupported codec).
func Fatal(err error) bool {
	return errors.Is(err, ErrAuthFailed) || errors.Is(err, ErrUnsupported)
}
