package convai

import (
	"context"
	"fmt"

	"github.com/koscakluka/ema-convai/core/messages"
)

// send writes msg to the transport right away. Writes never interleave.
func (s *Session) send(ctx context.Context, msg messages.Message) error {
	payload, err := messages.Encode(msg)
	if err != nil {
		return err
	}

	s.sendMu.Lock()
	defer s.sendMu.Unlock()
	if err := s.transport.Send(ctx, payload); err != nil {
		return fmt.Errorf("%w: failed to send %s: %w", ErrTransport, msg.MessageType(), err)
	}
	return nil
}

// enqueueSend sends msg in the background, after every message enqueued
// before it. Failures go to the error callback.
func (s *Session) enqueueSend(msg messages.Message) {
	s.mu.Lock()
	previous := s.lastSend
	done := make(chan struct{})
	s.lastSend = done
	s.mu.Unlock()

	s.goWorker("send "+string(msg.MessageType()), func(ctx context.Context) error {
		defer close(done)
		if previous != nil {
			<-previous
		}
		return s.send(ctx, msg)
	})
}

// goWorker runs fn on its own goroutine within the session context.
func (s *Session) goWorker(name string, fn func(context.Context) error) {
	ctx := s.currentSessionContext()
	s.workers.Add(1)
	go func() {
		defer s.workers.Done()
		if err := panicSafeNamedWorker(name, fn)(ctx); err != nil {
			s.reportError(err)
		}
	}()
}

func (s *Session) currentSessionContext() context.Context {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.sessionCtx != nil {
		return s.sessionCtx
	}
	return context.Background()
}

// waitForWorkers blocks until every background send and tool execution
// started so far has finished.
func (s *Session) waitForWorkers() {
	s.workers.Wait()
}

type workerRun func(context.Context) error

func panicSafeNamedWorker(name string, run func(context.Context) error) workerRun {
	return func(ctx context.Context) (err error) {
		defer func() {
			if recovered := recover(); recovered != nil {
				err = fmt.Errorf("%s worker panicked: %v", name, recovered)
			}
		}()

		if err = run(ctx); err != nil {
			return fmt.Errorf("%s worker failed: %w", name, err)
		}

		return nil
	}
}
