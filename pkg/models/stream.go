package models

import (
	"sync/atomic"

	"rtsp2ws/internal/broadcast"
)

// channelCapacity is the bounded broadcast channel's size per stream, per
// the relay's resource bounds: 100 DataFrames.
const channelCapacity = 100

// StreamDefinition is one configured stream: an immutable RTSP URL, a
// bounded broadcast channel of DataFrames, and a live subscriber count. A
// StreamDefinition is created once at startup and shared — the registry
// holds the canonical handle, the Ingester and every Subscriber Session
// hold additional references to the same channel and counter.
type StreamDefinition struct {
	Path string
	URL  string

	channel *broadcast.Broadcaster[DataFrame]
	count   atomic.Int64
}

// NewStreamDefinition constructs a StreamDefinition with an empty channel
// and a zero subscriber count.
func NewStreamDefinition(path, url string) *StreamDefinition {
	return &StreamDefinition{
		Path:    path,
		URL:     url,
		channel: broadcast.New[DataFrame](channelCapacity),
	}
}

// Subscribe returns a fresh cursor that observes only frames published
// after this call; it never replays history.
func (s *StreamDefinition) Subscribe() *broadcast.Subscriber[DataFrame] {
	return s.channel.Subscribe()
}

// Publish is non-blocking: a subscriber that cannot keep up is lagged, the
// Ingester is never stalled by it.
func (s *StreamDefinition) Publish(frame DataFrame) {
	s.channel.Publish(frame)
}

// Close tears down the broadcast channel, waking every subscriber still
// attached. Called once the Ingester for this stream exits for good.
func (s *StreamDefinition) Close() {
	s.channel.Close()
}

// Bump adds delta (+1 on session start, -1 on session stop) to the live
// subscriber count. Safe for concurrent callers.
func (s *StreamDefinition) Bump(delta int64) {
	s.count.Add(delta)
}

// Count returns the current live subscriber count. Reads outside the
// mutation path are advisory — tearing is acceptable per the relay's
// shared-resource policy.
func (s *StreamDefinition) Count() int64 {
	return s.count.Load()
}
