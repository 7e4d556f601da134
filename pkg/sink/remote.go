package sink

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"

	"github.com/teslashibe/go-gaze/internal/log"
	"github.com/teslashibe/go-gaze/pkg/gaze"
	"github.com/teslashibe/go-gaze/pkg/pipeline"
)

const (
	remoteQueueSize    = 256
	remoteDialTimeout  = 10 * time.Second
	remoteWriteWait    = 10 * time.Second
	remotePingPeriod   = 30 * time.Second
	reconnectBaseDelay = 1 * time.Second
	reconnectMaxDelay  = 30 * time.Second
)

// envelope frames every message sent to the collector.
type envelope struct {
	Kind    string `json:"kind"` // result, event, marker
	Payload any    `json:"payload"`
}

// Remote streams pipeline output to a websocket collector. Messages are
// queued through a bounded channel and dropped when the collector or
// the network cannot keep up; the pipeline never feels remote latency.
type Remote struct {
	url string

	queue   chan []byte
	dropped atomic.Uint64

	mu   sync.Mutex
	conn *websocket.Conn

	wg sync.WaitGroup
}

// NewRemote creates a remote sink for the given ws:// or wss:// URL.
// Call Run to connect and start streaming.
func NewRemote(url string) *Remote {
	return &Remote{
		url:   url,
		queue: make(chan []byte, remoteQueueSize),
	}
}

// Dropped returns how many messages were discarded because the queue
// was full or the connection was down.
func (r *Remote) Dropped() uint64 {
	return r.dropped.Load()
}

// Run connects and streams until ctx is cancelled, reconnecting with
// exponential backoff on failure.
func (r *Remote) Run(ctx context.Context) {
	r.wg.Add(1)
	go r.connectLoop(ctx)
}

// Wait blocks until the streaming goroutine has exited.
func (r *Remote) Wait() {
	r.wg.Wait()
}

func (r *Remote) WriteResult(res pipeline.Result) {
	r.send("result", res)
}

func (r *Remote) WriteEvent(ev gaze.StateEvent) {
	r.send("event", ev)
}

func (r *Remote) WriteMarker(m pipeline.Marker) {
	r.send("marker", m)
}

func (r *Remote) send(kind string, payload any) {
	data, err := json.Marshal(envelope{Kind: kind, Payload: payload})
	if err != nil {
		log.Warn("encode remote message", "kind", kind, "error", err)
		return
	}
	select {
	case r.queue <- data:
	default:
		r.dropped.Add(1)
	}
}

func (r *Remote) connectLoop(ctx context.Context) {
	defer r.wg.Done()

	delay := reconnectBaseDelay
	for {
		if ctx.Err() != nil {
			return
		}
		if err := r.dial(ctx); err != nil {
			log.Warn("collector dial failed", "url", r.url, "error", err, "retry_in", delay)
			select {
			case <-ctx.Done():
				return
			case <-time.After(delay):
			}
			delay *= 2
			if delay > reconnectMaxDelay {
				delay = reconnectMaxDelay
			}
			continue
		}
		delay = reconnectBaseDelay
		log.Info("collector connected", "url", r.url)

		// writeLoop returns on connection loss or shutdown.
		if done := r.writeLoop(ctx); done {
			r.closeConn()
			return
		}
		r.closeConn()
	}
}

func (r *Remote) dial(ctx context.Context) error {
	dialCtx, cancel := context.WithTimeout(ctx, remoteDialTimeout)
	defer cancel()

	dialer := websocket.Dialer{HandshakeTimeout: remoteDialTimeout}
	conn, resp, err := dialer.DialContext(dialCtx, r.url, nil)
	if err != nil {
		if resp != nil {
			return fmt.Errorf("websocket dial failed (status %d): %w", resp.StatusCode, err)
		}
		return fmt.Errorf("websocket dial failed: %w", err)
	}

	r.mu.Lock()
	r.conn = conn
	r.mu.Unlock()

	// Reader only detects disconnects; the collector sends nothing we
	// act on.
	go func() {
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()
	return nil
}

// writeLoop pumps queued messages to the connection. Returns true when
// shutdown was requested, false on connection loss.
func (r *Remote) writeLoop(ctx context.Context) bool {
	ticker := time.NewTicker(remotePingPeriod)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return true

		case data := <-r.queue:
			r.conn.SetWriteDeadline(time.Now().Add(remoteWriteWait))
			if err := r.conn.WriteMessage(websocket.TextMessage, data); err != nil {
				log.Warn("collector write failed", "error", err)
				r.dropped.Add(1)
				return false
			}

		case <-ticker.C:
			r.conn.SetWriteDeadline(time.Now().Add(remoteWriteWait))
			if err := r.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return false
			}
		}
	}
}

func (r *Remote) closeConn() {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.conn != nil {
		r.conn.WriteMessage(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
		r.conn.Close()
		r.conn = nil
	}
}
