package pipeline

import (
	"bytes"
	"image"
	"image/jpeg"
	"log"
	"net/http"
	"sync"

	"github.com/gorilla/websocket"
)

var previewUpgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1 << 16,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// PreviewHub fans the latest frame out to connected preview
// clients over a websocket, one JPEG-encoded message per publish. It is
// write-only: clients connect, upgrade, and receive frames, but the hub
// never reads from them.
type PreviewHub struct {
	mu      sync.Mutex
	clients map[*websocket.Conn]chan []byte
}

// NewPreviewHub constructs an empty hub.
func NewPreviewHub() *PreviewHub {
	return &PreviewHub{clients: make(map[*websocket.Conn]chan []byte)}
}

// ServeWS upgrades the request and registers the connection until a
// write to it fails or the hub is closed; it does not watch the request
// context.
func (h *PreviewHub) ServeWS(w http.ResponseWriter, r *http.Request) {
	conn, err := previewUpgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("[preview] upgrade failed: %v", err)
		return
	}

	outbox := make(chan []byte, 4)
	h.mu.Lock()
	h.clients[conn] = outbox
	h.mu.Unlock()

	defer func() {
		h.mu.Lock()
		delete(h.clients, conn)
		h.mu.Unlock()
		conn.Close()
	}()

	for data := range outbox {
		if err := conn.WriteMessage(websocket.BinaryMessage, data); err != nil {
			return
		}
	}
}

// ClientCount reports the number of currently connected preview
// clients, fed into the pipeline's Health snapshot.
func (h *PreviewHub) ClientCount() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.clients)
}

// Publish JPEG-encodes img and offers it to every connected client
// without blocking; a client whose outbox is full simply misses this
// frame rather than stalling the publisher.
func (h *PreviewHub) Publish(img image.Image, quality int) {
	if quality <= 0 {
		quality = 70
	}
	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: quality}); err != nil {
		return
	}
	data := buf.Bytes()

	h.mu.Lock()
	defer h.mu.Unlock()
	for _, outbox := range h.clients {
		select {
		case outbox <- data:
		default:
		}
	}
}

// Close drains and closes every client connection, used on pipeline
// shutdown.
func (h *PreviewHub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()
	for conn, outbox := range h.clients {
		close(outbox)
		conn.Close()
		delete(h.clients, conn)
	}
}
