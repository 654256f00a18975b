package source

import "fmt"

// Registry maps a URL scheme to the Opener that handles it. Transport
// packages register themselves from an init().
var registry = map[string]Opener{}

// Register adds an Opener for scheme (e.g. "rtsp", "http", "file").
func Register(scheme string, o Opener) {
	registry[scheme] = o
}

// Lookup resolves the Opener for url's scheme. An unsupported scheme is a
// fatal, non-retriable error.
func Lookup(url string) (Opener, error) {
	scheme := schemeOf(url)
	o, ok := registry[scheme]
	if !ok {
		return nil, fmt.Errorf("%w: scheme %q", ErrUnsupported, scheme)
	}
	return o, nil
}
