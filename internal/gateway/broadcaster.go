package gateway

import (
	"strconv"
	"time"
)

// FeedChannel names the live run feed in envelopes.
const FeedChannel = "runs"

// Broadcaster wraps payloads in envelopes and fans them out to hub clients.
type Broadcaster struct {
	hub *Hub
	now func() time.Time
}

// NewBroadcaster creates a Broadcaster backed by the given Hub.
func NewBroadcaster(hub *Hub) *Broadcaster {
	return &Broadcaster{hub: hub, now: time.Now}
}

// buildEnvelope hand-crafts {"channel":...,"data":...,"ts":...,"seq":N}.
// data must already be valid JSON.
func buildEnvelope(channel string, data []byte, now time.Time, seq int64) []byte {
	buf := make([]byte, 0, len(channel)+len(data)+96)
	buf = append(buf, `{"channel":"`...)
	buf = append(buf, channel...)
	buf = append(buf, `","data":`...)
	buf = append(buf, data...)
	buf = append(buf, `,"ts":"`...)
	buf = now.UTC().AppendFormat(buf, time.RFC3339Nano)
	buf = append(buf, `","seq":`...)
	buf = strconv.AppendInt(buf, seq, 10)
	buf = append(buf, '}')
	return buf
}

// Broadcast sends data to every connected client and keeps it for replay.
// Slow clients whose send queue is full miss the message.
func (b *Broadcaster) Broadcast(data []byte) {
	b.hub.mu.Lock()
	defer b.hub.mu.Unlock()

	b.hub.seq++
	env := buildEnvelope(FeedChannel, data, b.now(), b.hub.seq)
	b.hub.replay.Push(b.hub.seq, env)

	for client := range b.hub.clients {
		select {
		case client.send <- env:
		default:
		}
	}
}
