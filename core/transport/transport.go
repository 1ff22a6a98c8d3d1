// Package transport holds what the real-time transport adapters share: the
// connection state enum and the per-connection stream plumbing that feeds
// raw protocol messages to a session.
package transport

import (
	"errors"
	"sync"
)

var (
	// ErrNotConnected is returned by adapters when sending without an
	// active connection.
	ErrNotConnected = errors.New("transport: not connected")
)

type State int

const (
	StateDisconnected State = iota
	StateConnecting
	StateConnected
	StateReconnecting
)

func (s State) String() string {
	switch s {
	case StateDisconnected:
		return "disconnected"
	case StateConnecting:
		return "connecting"
	case StateConnected:
		return "connected"
	case StateReconnecting:
		return "reconnecting"
	default:
		return "unknown"
	}
}

const (
	defaultMessageBuffer = 64
	defaultStateBuffer   = 8
)

// Streams is the inbound side of one connection. Reset opens a fresh pair
// of channels for a new connection, Close releases any publisher blocked on
// a reader that has gone away. Channels are never closed so a late publish
// from a transport callback cannot panic.
type Streams struct {
	mu       sync.RWMutex
	messages chan []byte
	states   chan State
	speaking chan bool
	done     chan struct{}
}

func NewStreams() *Streams {
	s := &Streams{}
	s.Reset()
	s.Close()
	return s
}

func (s *Streams) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.messages = make(chan []byte, defaultMessageBuffer)
	s.states = make(chan State, defaultStateBuffer)
	s.speaking = make(chan bool, defaultStateBuffer)
	s.done = make(chan struct{})
}

func (s *Streams) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()

	select {
	case <-s.done:
	default:
		close(s.done)
	}
}

func (s *Streams) Messages() <-chan []byte {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.messages
}

func (s *Streams) States() <-chan State {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.states
}

func (s *Streams) AgentSpeaking() <-chan bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.speaking
}

// PublishMessage blocks until the message is consumed or the connection is
// closed, so inbound ordering is kept without dropping data. It reports
// whether the message was delivered.
func (s *Streams) PublishMessage(payload []byte) bool {
	s.mu.RLock()
	messages, done := s.messages, s.done
	s.mu.RUnlock()

	select {
	case <-done:
		return false
	default:
	}

	select {
	case messages <- payload:
		return true
	case <-done:
		return false
	}
}

// PublishState delivers state transitions, including the final
// disconnected state of a connection that was already closed.
func (s *Streams) PublishState(state State) {
	s.mu.RLock()
	states, done := s.states, s.done
	s.mu.RUnlock()

	select {
	case states <- state:
		return
	default:
	}

	select {
	case states <- state:
	case <-done:
	}
}

// PublishSpeaking is lossy, only the latest speaking state matters.
func (s *Streams) PublishSpeaking(isSpeaking bool) {
	s.mu.RLock()
	speaking := s.speaking
	s.mu.RUnlock()

	select {
	case speaking <- isSpeaking:
	default:
	}
}
