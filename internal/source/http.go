package source

import (
	"context"
	"fmt"
	"image"
	"image/jpeg"
	"net/http"
	"time"
)

// httpSession pulls progressive JPEG snapshots from an HTTP(S) endpoint,
// the same request shape cmd/ai-service uses to fetch camera snapshots
// from the main API (GET, HTTP basic auth when credentials are set,
// decode JPEG body).
type httpSession struct {
	url    string
	cred   Credentials
	client *http.Client
	closed bool
}

func init() {
	Register("http", openHTTP)
	Register("https", openHTTP)
}

func openHTTP(ctx context.Context, url string, cred Credentials) (Session, error) {
	client := &http.Client{Timeout: 5 * time.Second}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnreachableHost, err)
	}
	if cred.Username != "" {
		req.SetBasicAuth(cred.Username, cred.Password)
	}

	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnreachableHost, err)
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusUnauthorized, http.StatusForbidden:
		return nil, ErrAuthFailed
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%w: status %d", ErrUnreachableHost, resp.StatusCode)
	}

	return &httpSession{url: url, cred: cred, client: client}, nil
}

func (s *httpSession) Read(ctx context.Context) (image.Image, int64, error) {
	if s.closed {
		return nil, 0, ErrEndOfStream
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.url, nil)
	if err != nil {
		return nil, 0, fmt.Errorf("%w: %v", ErrTransientIO, err)
	}
	if s.cred.Username != "" {
		req.SetBasicAuth(s.cred.Username, s.cred.Password)
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, 0, fmt.Errorf("%w: %v", ErrTransientIO, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, 0, fmt.Errorf("%w: status %d", ErrTransientIO, resp.StatusCode)
	}

	img, err := jpeg.Decode(resp.Body)
	if err != nil {
		return nil, 0, fmt.Errorf("%w: %v", ErrDecode, err)
	}
	return img, time.Now().UnixNano(), nil
}

func (s *httpSession) Close() error {
	s.closed = true
	return nil
}
