package transcript

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/discord-voice-mod/internal/logging"
)

// StreamMessage is the JSON frame pushed to live transcript listeners.
type StreamMessage struct {
	Type      string       `json:"type"`
	GuildID   string       `json:"guild_id"`
	ChannelID string       `json:"channel_id"`
	Lines     []StreamLine `json:"lines"`
}

type StreamLine struct {
	SpeakerID string    `json:"speaker_id"`
	Text      string    `json:"text"`
	Timestamp time.Time `json:"timestamp"`
}

// Hub fans flushed transcript batches out over websockets. Listeners are
// read-only; anything a client sends is discarded.
type Hub struct {
	upgrader websocket.Upgrader

	mu      sync.RWMutex
	clients map[*hubClient]struct{}
}

type hubClient struct {
	conn *websocket.Conn
	send chan *StreamMessage
	once sync.Once
	done chan struct{}
}

func NewHub() *Hub {
	return &Hub{
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
		clients: make(map[*hubClient]struct{}),
	}
}

// ServeHTTP upgrades the request and streams flushes until the client hangs
// up.
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		logging.Warnw("websocket upgrade failed", "err", err, "remote", r.RemoteAddr)
		return
	}
	c := &hubClient{
		conn: conn,
		send: make(chan *StreamMessage, 16),
		done: make(chan struct{}),
	}
	h.mu.Lock()
	h.clients[c] = struct{}{}
	h.mu.Unlock()
	logging.Debugw("transcript listener connected", "remote", r.RemoteAddr)

	go c.writeLoop()
	c.readLoop()

	h.remove(c)
	logging.Debugw("transcript listener disconnected", "remote", r.RemoteAddr)
}

// Broadcast implements Broadcaster. A slow client drops frames rather than
// blocking the pipeline.
func (h *Hub) Broadcast(guildID, channelID string, utterances []Utterance) {
	if len(utterances) == 0 {
		return
	}
	msg := &StreamMessage{
		Type:      "transcript",
		GuildID:   guildID,
		ChannelID: channelID,
		Lines:     make([]StreamLine, 0, len(utterances)),
	}
	for _, u := range utterances {
		msg.Lines = append(msg.Lines, StreamLine{
			SpeakerID: u.SpeakerID,
			Text:      u.Text,
			Timestamp: u.Timestamp.UTC(),
		})
	}

	h.mu.RLock()
	defer h.mu.RUnlock()
	for c := range h.clients {
		select {
		case c.send <- msg:
		default:
		}
	}
}

// ListenerCount reports connected clients. Used by tests and the status log.
func (h *Hub) ListenerCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// Close disconnects every listener.
func (h *Hub) Close() {
	h.mu.Lock()
	clients := make([]*hubClient, 0, len(h.clients))
	for c := range h.clients {
		clients = append(clients, c)
	}
	h.clients = make(map[*hubClient]struct{})
	h.mu.Unlock()
	for _, c := range clients {
		c.close()
	}
}

func (h *Hub) remove(c *hubClient) {
	h.mu.Lock()
	delete(h.clients, c)
	h.mu.Unlock()
	c.close()
}

func (c *hubClient) close() {
	c.once.Do(func() {
		close(c.done)
		_ = c.conn.Close()
	})
}

func (c *hubClient) readLoop() {
	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			return
		}
	}
}

func (c *hubClient) writeLoop() {
	for {
		select {
		case msg := <-c.send:
			payload, err := json.Marshal(msg)
			if err != nil {
				continue
			}
			c.conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
			if err := c.conn.WriteMessage(websocket.TextMessage, payload); err != nil {
				c.close()
				return
			}
		case <-c.done:
			return
		}
	}
}

// Serve runs the hub on addr until ctx is canceled.
func Serve(ctx context.Context, addr string, hub *Hub) error {
	mux := http.NewServeMux()
	mux.Handle("/transcripts", hub)
	srv := &http.Server{Addr: addr, Handler: mux}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
		hub.Close()
	}()

	logging.Infow("transcript stream listening", "addr", addr)
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}
