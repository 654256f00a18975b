package source

import (
	"context"
	"fmt"
	"image"
	"image/jpeg"
	"image/png"
	"net/url"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"
)

// fileSession loops over a directory of still images (or a single image,
// repeated) as a bounded-rate "video" source — used for local file
// fixtures and for tests that need a deterministic, decoder-free Session.
type fileSession struct {
	frames []string
	idx    int
	closed bool
}

func init() {
	Register("file", openFile)
}

func openFile(ctx context.Context, rawURL string, cred Credentials) (Session, error) {
	path := rawURL
	if u, err := url.Parse(rawURL); err == nil && u.Scheme == "file" {
		path = u.Path
	}

	info, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnreachableHost, err)
	}

	var frames []string
	if info.IsDir() {
		entries, err := os.ReadDir(path)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrUnreachableHost, err)
		}
		for _, e := range entries {
			ext := strings.ToLower(filepath.Ext(e.Name()))
			if ext == ".jpg" || ext == ".jpeg" || ext == ".png" {
				frames = append(frames, filepath.Join(path, e.Name()))
			}
		}
		sort.Strings(frames)
		if len(frames) == 0 {
			return nil, fmt.Errorf("%w: no image files in %s", ErrUnsupported, path)
		}
	} else {
		frames = []string{path}
	}

	return &fileSession{frames: frames}, nil
}

func (s *fileSession) Read(ctx context.Context) (image.Image, int64, error) {
	if s.closed {
		return nil, 0, ErrEndOfStream
	}

	path := s.frames[s.idx%len(s.frames)]
	s.idx++

	f, err := os.Open(path)
	if err != nil {
		return nil, 0, fmt.Errorf("%w: %v", ErrTransientIO, err)
	}
	defer f.Close()

	var img image.Image
	switch strings.ToLower(filepath.Ext(path)) {
	case ".png":
		img, err = png.Decode(f)
	default:
		img, err = jpeg.Decode(f)
	}
	if err != nil {
		return nil, 0, fmt.Errorf("%w: %v", ErrDecode, err)
	}
	return img, time.Now().UnixNano(), nil
}

func (s *fileSession) Close() error {
	s.closed = true
	return nil
}
