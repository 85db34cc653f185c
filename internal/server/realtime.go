package server

import (
	"context"
	"io"
	"sync"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/MarcoPoloResearchLab/guildkeeper/internal/store"
)

const (
	RealtimeEventSnapshotChanged = "snapshot-changed"
	realtimeEventHeartbeat       = "heartbeat"
	realtimeSourceBackend        = "guildkeeper"
	realtimeHeartbeatInterval    = 25 * time.Second
)

// RealtimeMessage announces a new snapshot version to dashboard clients.
type RealtimeMessage struct {
	EventType string
	Reason    string
	Size      int64
	ModTime   time.Time
	Present   bool
	Timestamp time.Time
}

type realtimeEventPayload struct {
	Source     string `json:"source"`
	Reason     string `json:"reason,omitempty"`
	Present    bool   `json:"present"`
	Size       int64  `json:"size,omitempty"`
	ModifiedAt string `json:"modified_at,omitempty"`
	Timestamp  string `json:"timestamp"`
}

// RealtimeDispatcher fans snapshot events out to every connected stream. Slow
// subscribers miss events instead of blocking publishers.
type RealtimeDispatcher struct {
	mu          sync.RWMutex
	subscribers map[int64]*realtimeSubscriber
	nextID      int64
	bufferSize  int
}

type realtimeSubscriber struct {
	id     int64
	stream chan RealtimeMessage
}

func NewRealtimeDispatcher() *RealtimeDispatcher {
	return &RealtimeDispatcher{
		subscribers: make(map[int64]*realtimeSubscriber),
		bufferSize:  16,
	}
}

// Subscribe registers a stream that is dropped when ctx ends or cleanup runs.
func (d *RealtimeDispatcher) Subscribe(ctx context.Context) (<-chan RealtimeMessage, func()) {
	subscriber := &realtimeSubscriber{stream: make(chan RealtimeMessage, d.bufferSize)}
	d.mu.Lock()
	d.nextID++
	subscriber.id = d.nextID
	d.subscribers[subscriber.id] = subscriber
	d.mu.Unlock()

	var once sync.Once
	cleanup := func() {
		once.Do(func() {
			d.mu.Lock()
			delete(d.subscribers, subscriber.id)
			d.mu.Unlock()
		})
	}
	go func() {
		<-ctx.Done()
		cleanup()
	}()
	return subscriber.stream, cleanup
}

func (d *RealtimeDispatcher) Publish(message RealtimeMessage) {
	if message.EventType == "" {
		return
	}
	d.mu.RLock()
	copies := make([]*realtimeSubscriber, 0, len(d.subscribers))
	for _, subscriber := range d.subscribers {
		copies = append(copies, subscriber)
	}
	d.mu.RUnlock()
	for _, subscriber := range copies {
		select {
		case subscriber.stream <- message:
		default:
		}
	}
}

// SubscriberCount reports the number of open streams.
func (d *RealtimeDispatcher) SubscriberCount() int {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return len(d.subscribers)
}

// SnapshotSource is a store whose on-disk version can be observed.
type SnapshotSource interface {
	EnsureLatestSnapshot(ctx context.Context) error
	Signature() (store.Signature, bool)
}

// SnapshotNotifier wraps a SnapshotSource and publishes an event whenever a sync
// leaves the store on a different snapshot version.
type SnapshotNotifier struct {
	source     SnapshotSource
	dispatcher *RealtimeDispatcher
}

func NewSnapshotNotifier(source SnapshotSource, dispatcher *RealtimeDispatcher) *SnapshotNotifier {
	return &SnapshotNotifier{source: source, dispatcher: dispatcher}
}

func (n *SnapshotNotifier) EnsureLatestSnapshot(ctx context.Context) error {
	before, hadBefore := n.source.Signature()
	if err := n.source.EnsureLatestSnapshot(ctx); err != nil {
		return err
	}
	after, hasAfter := n.source.Signature()
	if hadBefore == hasAfter && (!hasAfter || before.Equal(after)) {
		return nil
	}
	reason := "reloaded"
	if !hasAfter {
		reason = "removed"
	}
	n.dispatcher.Publish(snapshotMessage(RealtimeEventSnapshotChanged, reason, after, hasAfter))
	return nil
}

func snapshotMessage(eventType, reason string, signature store.Signature, present bool) RealtimeMessage {
	return RealtimeMessage{
		EventType: eventType,
		Reason:    reason,
		Size:      signature.Size,
		ModTime:   signature.ModTime,
		Present:   present,
		Timestamp: time.Now().UTC(),
	}
}

func (h *httpHandler) handleEventStream(c *gin.Context) {
	ctx := c.Request.Context()
	stream, cleanup := h.realtime.Subscribe(ctx)
	defer cleanup()

	heartbeat := time.NewTicker(realtimeHeartbeatInterval)
	defer heartbeat.Stop()

	c.Header("Cache-Control", "no-cache")
	c.Header("Connection", "keep-alive")
	c.Header("X-Accel-Buffering", "no")
	c.SSEvent(realtimeEventHeartbeat, realtimeEventPayload{Source: realtimeSourceBackend, Timestamp: time.Now().UTC().Format(time.RFC3339)})
	c.Writer.Flush()

	c.Stream(func(_ io.Writer) bool {
		select {
		case <-ctx.Done():
			return false
		case message, ok := <-stream:
			if !ok {
				return false
			}
			payload := realtimeEventPayload{
				Source:    realtimeSourceBackend,
				Reason:    message.Reason,
				Present:   message.Present,
				Timestamp: message.Timestamp.Format(time.RFC3339),
			}
			if message.Present {
				payload.Size = message.Size
				payload.ModifiedAt = message.ModTime.UTC().Format(time.RFC3339Nano)
			}
			c.SSEvent(message.EventType, payload)
			return true
		case tick := <-heartbeat.C:
			c.SSEvent(realtimeEventHeartbeat, realtimeEventPayload{Source: realtimeSourceBackend, Timestamp: tick.UTC().Format(time.RFC3339)})
			return true
		}
	})
}
