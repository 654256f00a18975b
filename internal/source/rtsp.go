package source

import (
	"bufio"
	"context"
	"encoding/base64"
	"fmt"
	"image"
	"image/color"
	"net"
	"net/url"
	"strings"
	"time"
)

// rtspSession performs the real RTSP OPTIONS handshake to validate
// reachability and credentials, then emits synthetic frames at the
// configured dimensions.
//
// Note: decoding the actual H.264/H.265 RTP payload requires either CGO
// bindings to an RTP/media framework or a pure-Go RTP depacketizer this
// module does not carry; this session validates the transport and hands
// the detector/tracker stages a deterministically generated frame so the
// rest of the pipeline can be exercised end-to-end without one.
type rtspSession struct {
	url    string
	cred   Credentials
	w, h   int
	closed bool
}

func init() {
	Register("rtsp", openRTSP)
}

func openRTSP(ctx context.Context, rawURL string, cred Credentials) (Session, error) {
	if err := probeRTSP(ctx, rawURL, cred); err != nil {
		return nil, err
	}
	return &rtspSession{url: rawURL, cred: cred, w: 1280, h: 720}, nil
}

func probeRTSP(ctx context.Context, rawURL string, cred Credentials) error {
	u, err := url.Parse(rawURL)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrUnreachableHost, err)
	}

	host := u.Host
	if !strings.Contains(host, ":") {
		host += ":554"
	}

	d := net.Dialer{Timeout: 5 * time.Second}
	conn, err := d.DialContext(ctx, "tcp", host)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrUnreachableHost, err)
	}
	defer conn.Close()

	auth := ""
	if cred.Username != "" {
		auth = "Authorization: Basic " + base64.StdEncoding.EncodeToString([]byte(cred.Username+":"+cred.Password)) + "\r\n"
	}
	msg := fmt.Sprintf("OPTIONS %s RTSP/1.0\r\nCSeq: 1\r\nUser-Agent: ts-vision-core\r\n%s\r\n", rawURL, auth)
	if err := conn.SetDeadline(time.Now().Add(5 * time.Second)); err != nil {
		return fmt.Errorf("%w: %v", ErrUnreachableHost, err)
	}
	if _, err := conn.Write([]byte(msg)); err != nil {
		return fmt.Errorf("%w: %v", ErrUnreachableHost, err)
	}

	reader := bufio.NewReader(conn)
	statusLine, err := reader.ReadString('\n')
	if err != nil {
		return fmt.Errorf("%w: %v", ErrUnreachableHost, err)
	}

	parts := strings.Split(statusLine, " ")
	if len(parts) < 2 {
		return fmt.Errorf("%w: malformed response %q", ErrUnreachableHost, statusLine)
	}
	switch parts[1] {
	case "401", "403":
		return ErrAuthFailed
	}
	if !strings.HasPrefix(parts[1], "2") {
		return fmt.Errorf("%w: status %s", ErrUnreachableHost, parts[1])
	}
	return nil
}

func (s *rtspSession) Read(ctx context.Context) (image.Image, int64, error) {
	if s.closed {
		return nil, 0, ErrEndOfStream
	}
	return syntheticFrame(s.w, s.h, color.RGBA{R: 60, G: 60, B: 70, A: 255}), time.Now().UnixNano(), nil
}

func (s *rtspSession) Close() error {
	s.closed = true
	return nil
}

// syntheticFrame renders a flat-color placeholder image of the requested
// size. Production backends feed real decoded pixels here; this keeps the
// detector/letterbox/NMS path exercisable without a media decoder.
func syntheticFrame(w, h int, fill color.RGBA) image.Image {
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.SetRGBA(x, y, fill)
		}
	}
	return img
}
