package convai

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/koscakluka/ema-convai/core/messages"
	"github.com/koscakluka/ema-convai/core/transport"
)

func TestStartSessionRequiresAgentIDOrToken(t *testing.T) {
	recorder := &callbackRecorder{}
	s := NewSession(append(recorder.options(), WithTransport(newStubTransport()))...)

	err := s.StartSession(context.Background())
	if !errors.Is(err, ErrInvalidArgument) {
		t.Fatalf("expected invalid argument error, got %v", err)
	}
	if s.Status() != StatusDisconnected {
		t.Fatalf("expected session to stay disconnected, got %s", s.Status())
	}
	if errs := recorder.errorsSeen(); len(errs) != 1 || !errors.Is(errs[0], ErrInvalidArgument) {
		t.Fatalf("expected the error to be reported once through the callback, got %v", errs)
	}
	if statuses := recorder.statusesSeen(); len(statuses) != 0 {
		t.Fatalf("expected no status changes, got %v", statuses)
	}
}

func TestStartSessionFetchesTokenAndSendsInitiation(t *testing.T) {
	stub := newStubTransport()
	tokens := &stubTokenProvider{token: "fetched-token"}
	recorder := &callbackRecorder{}
	s := NewSession(append(recorder.options(),
		WithTransport(stub),
		WithTokenProvider(tokens),
		WithServerURL("wss://example.test"),
	)...)

	err := s.StartSession(context.Background(),
		WithAgentID("agent-1"),
		WithUserID("user-1"),
		WithDynamicVariables(map[string]any{"name": "Ada"}),
	)
	if err != nil {
		t.Fatalf("expected session to start, got %v", err)
	}
	defer s.EndSession(context.Background())

	if tokens.agentID() != "agent-1" {
		t.Fatalf("expected token to be fetched for agent-1, got %q", tokens.agentID())
	}
	if stub.connectedWith() != "wss://example.test|fetched-token" {
		t.Fatalf("unexpected connect arguments %q", stub.connectedWith())
	}

	sent := stub.sentMessages(t)
	if len(sent) != 1 || sent[0]["type"] != string(messages.TypeConversationInitiation) {
		t.Fatalf("expected a single initiation message, got %v", sent)
	}
	if sent[0]["user_id"] != "user-1" {
		t.Fatalf("expected user id on initiation, got %v", sent[0]["user_id"])
	}
	if variables, _ := sent[0]["dynamic_variables"].(map[string]any); variables["name"] != "Ada" {
		t.Fatalf("expected dynamic variables on initiation, got %v", sent[0]["dynamic_variables"])
	}

	if s.Status() != StatusConnected {
		t.Fatalf("expected connected, got %s", s.Status())
	}
	assertStatuses(t, recorder.statusesSeen(), StatusConnecting, StatusConnected)
}

func TestStartSessionWithTokenSkipsTokenFetch(t *testing.T) {
	stub := newStubTransport()
	tokens := &stubTokenProvider{err: errors.New("should not be called")}
	s := NewSession(WithTransport(stub), WithTokenProvider(tokens))

	if err := s.StartSession(context.Background(), WithAgentID("agent-1"), WithConversationToken("given-token")); err != nil {
		t.Fatalf("expected session to start, got %v", err)
	}
	defer s.EndSession(context.Background())

	if tokens.calls() != 0 {
		t.Fatalf("expected no token fetch when a token is given")
	}
	if stub.connectedWith() != DefaultServerURL+"|given-token" {
		t.Fatalf("unexpected connect arguments %q", stub.connectedWith())
	}
}

func TestStartSessionTwiceReturnsAlreadyActive(t *testing.T) {
	s, _, _ := startedSession(t)

	err := s.StartSession(context.Background(), WithConversationToken("token"))
	if !errors.Is(err, ErrAlreadyActive) {
		t.Fatalf("expected already active error, got %v", err)
	}
	if s.Status() != StatusConnected {
		t.Fatalf("expected first session to be unaffected, got %s", s.Status())
	}
}

func TestStartSessionFailures(t *testing.T) {
	testCases := []struct {
		name     string
		tokenErr error
		connect  error
		send     error
		expected error
	}{
		{name: "token fetch", tokenErr: errors.New("unauthorized"), expected: ErrTokenFetch},
		{name: "connect", connect: errors.New("ice failed"), expected: ErrTransport},
		{name: "initiation send", send: errors.New("data channel closed"), expected: ErrTransport},
	}

	for _, testCase := range testCases {
		t.Run(testCase.name, func(t *testing.T) {
			stub := newStubTransport()
			stub.connectErr = testCase.connect
			stub.sendErr = testCase.send
			recorder := &callbackRecorder{}
			s := NewSession(append(recorder.options(),
				WithTransport(stub),
				WithTokenProvider(&stubTokenProvider{token: "token", err: testCase.tokenErr}),
			)...)

			err := s.StartSession(context.Background(), WithAgentID("agent-1"))
			if !errors.Is(err, testCase.expected) {
				t.Fatalf("expected %v, got %v", testCase.expected, err)
			}
			if s.Status() != StatusDisconnected {
				t.Fatalf("expected disconnected after failed start, got %s", s.Status())
			}
			if errs := recorder.errorsSeen(); len(errs) != 1 || !errors.Is(errs[0], testCase.expected) {
				t.Fatalf("expected the start error to be reported, got %v", errs)
			}
			assertStatuses(t, recorder.statusesSeen(), StatusConnecting, StatusDisconnected)
			if testCase.tokenErr != nil && stub.connectCount() != 0 {
				t.Fatalf("expected no connect attempt after token failure")
			}
		})
	}
}

func TestEndSessionResetsState(t *testing.T) {
	s, stub, recorder := startedSession(t)
	s.handleMessage(context.Background(), []byte(`{"type":"conversation_initiation_metadata","conversation_initiation_metadata_event":{"conversation_id":"conv-1"}}`))
	if s.ConversationID() != "conv-1" {
		t.Fatalf("expected conversation id to be set, got %q", s.ConversationID())
	}

	if err := s.EndSession(context.Background()); err != nil {
		t.Fatalf("expected end session to succeed, got %v", err)
	}
	if err := s.EndSession(context.Background()); err != nil {
		t.Fatalf("expected repeated end session to be a no-op, got %v", err)
	}

	if s.Status() != StatusDisconnected {
		t.Fatalf("expected disconnected, got %s", s.Status())
	}
	if s.ConversationID() != "" {
		t.Fatalf("expected conversation id to be cleared, got %q", s.ConversationID())
	}
	if stub.disconnectCount() != 1 {
		t.Fatalf("expected transport to be disconnected once, got %d", stub.disconnectCount())
	}
	assertStatuses(t, recorder.statusesSeen(), StatusConnecting, StatusConnected, StatusDisconnecting, StatusDisconnected)

	disconnects := recorder.disconnectsSeen()
	if len(disconnects) != 1 || disconnects[0].Reason != DisconnectReasonUser {
		t.Fatalf("expected a single user disconnect, got %v", disconnects)
	}
}

func TestEndSessionReportsDisconnectFailure(t *testing.T) {
	s, stub, recorder := startedSession(t)
	stub.disconnectErr = errors.New("already gone")

	err := s.EndSession(context.Background())
	if !errors.Is(err, ErrTransport) {
		t.Fatalf("expected transport error, got %v", err)
	}
	if s.Status() != StatusDisconnected {
		t.Fatalf("expected disconnected despite failure, got %s", s.Status())
	}
	if errs := recorder.errorsSeen(); len(errs) != 1 {
		t.Fatalf("expected disconnect failure to be reported, got %v", errs)
	}
}

func TestEndSessionWhileConnectingCancelsStart(t *testing.T) {
	stub := newStubTransport()
	stub.blockConnect = true
	s := NewSession(WithTransport(stub))

	started := make(chan error, 1)
	go func() {
		started <- s.StartSession(context.Background(), WithConversationToken("token"))
	}()

	deadline := time.Now().Add(2 * time.Second)
	for s.Status() != StatusConnecting {
		if time.Now().After(deadline) {
			t.Fatalf("timed out waiting for session to start connecting")
		}
		time.Sleep(5 * time.Millisecond)
	}

	if err := s.EndSession(context.Background()); err != nil {
		t.Fatalf("expected end session to succeed, got %v", err)
	}

	select {
	case err := <-started:
		if err == nil {
			t.Fatalf("expected start to fail after being ended")
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("timed out waiting for start to return")
	}
	if s.Status() != StatusDisconnected {
		t.Fatalf("expected disconnected, got %s", s.Status())
	}
}

func TestTransportConnectedAfterEndIsReleased(t *testing.T) {
	stub := newStubTransport()
	gate := make(chan struct{})
	stub.connectGate = gate
	s := NewSession(WithTransport(stub))

	started := make(chan error, 1)
	go func() {
		started <- s.StartSession(context.Background(), WithConversationToken("token"))
	}()

	deadline := time.Now().Add(2 * time.Second)
	for stub.connectCount() != 1 {
		if time.Now().After(deadline) {
			t.Fatalf("timed out waiting for connect")
		}
		time.Sleep(5 * time.Millisecond)
	}

	if err := s.EndSession(context.Background()); err != nil {
		t.Fatalf("expected end session to succeed, got %v", err)
	}
	if stub.disconnectCount() != 1 {
		t.Fatalf("expected end session to disconnect once, got %d", stub.disconnectCount())
	}

	close(gate)
	select {
	case err := <-started:
		if !errors.Is(err, ErrTransport) {
			t.Fatalf("expected start to fail with a transport error, got %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("timed out waiting for start to return")
	}

	if stub.disconnectCount() != 2 || !stub.isClosed() {
		t.Fatalf("expected the late connection to be released, disconnects %d closed %v", stub.disconnectCount(), stub.isClosed())
	}
	if s.Status() != StatusDisconnected {
		t.Fatalf("expected disconnected, got %s", s.Status())
	}
}

func TestConnectionLostDisconnectsWithError(t *testing.T) {
	s, stub, recorder := startedSession(t)

	stub.streams.PublishState(transport.StateDisconnected)

	deadline := time.Now().Add(2 * time.Second)
	for len(recorder.disconnectsSeen()) == 0 {
		if time.Now().After(deadline) {
			t.Fatalf("timed out waiting for disconnect")
		}
		time.Sleep(5 * time.Millisecond)
	}

	details := recorder.disconnectsSeen()[0]
	if details.Reason != DisconnectReasonError || !errors.Is(details.Err, ErrConnectionLost) {
		t.Fatalf("expected connection lost disconnect, got %+v", details)
	}
	if s.Status() != StatusDisconnected {
		t.Fatalf("expected disconnected, got %s", s.Status())
	}
	assertStatuses(t, recorder.statusesSeen(), StatusConnecting, StatusConnected, StatusDisconnected)
}

func TestInboundMessagesFromTransportAreDispatched(t *testing.T) {
	s, stub, recorder := startedSession(t)

	stub.streams.PublishMessage([]byte(`{"type":"user_transcript","user_transcription_event":{"user_transcript":"hello"}}`))

	deadline := time.Now().Add(2 * time.Second)
	for len(recorder.messagesSeen()) == 0 {
		if time.Now().After(deadline) {
			t.Fatalf("timed out waiting for message callback")
		}
		time.Sleep(5 * time.Millisecond)
	}

	message := recorder.messagesSeen()[0]
	if message.Role != RoleUser || message.Text != "hello" {
		t.Fatalf("unexpected message %+v", message)
	}
	if s.Status() != StatusConnected {
		t.Fatalf("expected session to stay connected, got %s", s.Status())
	}
}

func TestSendCommandsRequireConnection(t *testing.T) {
	s := NewSession(WithTransport(newStubTransport()))

	if err := s.SendUserMessage("hi"); !errors.Is(err, ErrNotConnected) {
		t.Fatalf("expected not connected, got %v", err)
	}
	if err := s.SendContextualUpdate("ctx"); !errors.Is(err, ErrNotConnected) {
		t.Fatalf("expected not connected, got %v", err)
	}
	if err := s.SendUserActivity(); !errors.Is(err, ErrNotConnected) {
		t.Fatalf("expected not connected, got %v", err)
	}
	if err := s.SendFeedback(true); !errors.Is(err, ErrNotConnected) {
		t.Fatalf("expected not connected, got %v", err)
	}
}

func TestSendCommandsKeepOrder(t *testing.T) {
	s, stub, _ := startedSession(t)

	for range 5 {
		if err := s.SendUserMessage("message"); err != nil {
			t.Fatalf("expected send to be accepted, got %v", err)
		}
		if err := s.SendContextualUpdate("update"); err != nil {
			t.Fatalf("expected send to be accepted, got %v", err)
		}
	}
	if err := s.SendUserActivity(); err != nil {
		t.Fatalf("expected send to be accepted, got %v", err)
	}
	s.waitForWorkers()

	sent := stub.sentMessages(t)[1:]
	if len(sent) != 11 {
		t.Fatalf("expected 11 messages after initiation, got %d", len(sent))
	}
	for i := 0; i < 10; i += 2 {
		if sent[i]["type"] != string(messages.TypeUserMessage) || sent[i+1]["type"] != string(messages.TypeContextualUpdate) {
			t.Fatalf("messages out of order at %d: %v %v", i, sent[i]["type"], sent[i+1]["type"])
		}
	}
	if sent[10]["type"] != string(messages.TypeUserActivity) {
		t.Fatalf("expected user activity last, got %v", sent[10]["type"])
	}
}

func TestBackgroundSendFailureIsReported(t *testing.T) {
	s, stub, recorder := startedSession(t)
	stub.setSendErr(errors.New("channel closed"))

	if err := s.SendUserMessage("hi"); err != nil {
		t.Fatalf("expected send to be accepted, got %v", err)
	}
	s.waitForWorkers()

	if errs := recorder.errorsSeen(); len(errs) != 1 || !errors.Is(errs[0], ErrTransport) {
		t.Fatalf("expected transport error through the callback, got %v", errs)
	}
	if s.Status() != StatusConnected {
		t.Fatalf("expected session to stay connected, got %s", s.Status())
	}
}

func TestSetMicMuted(t *testing.T) {
	s, stub, recorder := startedSession(t)

	if err := s.SetMicMuted(true); err != nil {
		t.Fatalf("expected mute to succeed, got %v", err)
	}
	if !s.IsMuted() {
		t.Fatalf("expected session to be muted")
	}
	if err := s.ToggleMute(); err != nil {
		t.Fatalf("expected toggle to succeed, got %v", err)
	}
	if s.IsMuted() {
		t.Fatalf("expected session to be unmuted after toggle")
	}

	stub.muteErr = errors.New("no microphone")
	if err := s.SetMicMuted(true); !errors.Is(err, ErrTransport) {
		t.Fatalf("expected transport error, got %v", err)
	}
	if s.IsMuted() {
		t.Fatalf("expected failed mute to leave state unchanged")
	}

	mutes := recorder.mutesSeen()
	if len(mutes) != 2 || !mutes[0] || mutes[1] {
		t.Fatalf("expected mute changes [true false], got %v", mutes)
	}
}

func startedSession(t *testing.T, opts ...SessionOption) (*Session, *stubTransport, *callbackRecorder) {
	t.Helper()

	stub := newStubTransport()
	recorder := &callbackRecorder{}
	opts = append(append(recorder.options(), WithTransport(stub)), opts...)
	s := NewSession(opts...)
	if err := s.StartSession(context.Background(), WithConversationToken("token")); err != nil {
		t.Fatalf("expected session to start, got %v", err)
	}
	t.Cleanup(func() { _ = s.EndSession(context.Background()) })
	return s, stub, recorder
}

func assertStatuses(t *testing.T, got []Status, expected ...Status) {
	t.Helper()

	if len(got) != len(expected) {
		t.Fatalf("expected statuses %v, got %v", expected, got)
	}
	for i := range expected {
		if got[i] != expected[i] {
			t.Fatalf("expected statuses %v, got %v", expected, got)
		}
	}
}

type stubTransport struct {
	streams *transport.Streams

	mu            sync.Mutex
	connectErr    error
	sendErr       error
	disconnectErr error
	muteErr       error
	blockConnect  bool
	// connectGate, when set, holds Connect until closed and ignores ctx.
	connectGate   chan struct{}
	closed        bool
	muted         bool
	serverURL     string
	token         string
	connects      int
	disconnects   int
	sent          [][]byte
}

func newStubTransport() *stubTransport {
	return &stubTransport{streams: transport.NewStreams()}
}

func (t *stubTransport) Connect(ctx context.Context, serverURL, token string) error {
	t.mu.Lock()
	t.connects++
	t.serverURL, t.token = serverURL, token
	connectErr, block, gate := t.connectErr, t.blockConnect, t.connectGate
	t.mu.Unlock()

	if gate != nil {
		<-gate
	}
	if block {
		<-ctx.Done()
		return ctx.Err()
	}
	if connectErr != nil {
		return connectErr
	}

	t.mu.Lock()
	t.closed = false
	t.mu.Unlock()
	t.streams.Reset()
	t.streams.PublishState(transport.StateConnected)
	return nil
}

func (t *stubTransport) Disconnect(context.Context) error {
	t.streams.Close()

	t.mu.Lock()
	defer t.mu.Unlock()
	t.disconnects++
	t.closed = true
	return t.disconnectErr
}

func (t *stubTransport) Send(_ context.Context, payload []byte) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.sendErr != nil {
		return t.sendErr
	}
	if t.closed {
		return transport.ErrNotConnected
	}
	t.sent = append(t.sent, append([]byte(nil), payload...))
	return nil
}

func (t *stubTransport) Messages() <-chan []byte        { return t.streams.Messages() }
func (t *stubTransport) States() <-chan transport.State { return t.streams.States() }

func (t *stubTransport) SetMuted(muted bool) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.muteErr != nil {
		return t.muteErr
	}
	t.muted = muted
	return nil
}

func (t *stubTransport) IsMuted() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.muted
}

func (t *stubTransport) setSendErr(err error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.sendErr = err
}

func (t *stubTransport) connectedWith() string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.serverURL + "|" + t.token
}

func (t *stubTransport) connectCount() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.connects
}

func (t *stubTransport) isClosed() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.closed
}

func (t *stubTransport) disconnectCount() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.disconnects
}

func (t *stubTransport) sentMessages(tb testing.TB) []map[string]any {
	tb.Helper()

	t.mu.Lock()
	defer t.mu.Unlock()
	decoded := make([]map[string]any, 0, len(t.sent))
	for _, payload := range t.sent {
		var message map[string]any
		if err := json.Unmarshal(payload, &message); err != nil {
			tb.Fatalf("sent payload is not JSON: %v", err)
		}
		decoded = append(decoded, message)
	}
	return decoded
}

type stubTokenProvider struct {
	token string
	err   error

	mu         sync.Mutex
	requested  string
	fetchCalls int
}

func (p *stubTokenProvider) FetchToken(_ context.Context, agentID string) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.fetchCalls++
	p.requested = agentID
	if p.err != nil {
		return "", p.err
	}
	return p.token, nil
}

func (p *stubTokenProvider) agentID() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.requested
}

func (p *stubTokenProvider) calls() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.fetchCalls
}

type callbackRecorder struct {
	mu          sync.Mutex
	statuses    []Status
	modes       []Mode
	messages    []Message
	errs        []error
	debugs      []Debug
	disconnects []DisconnectDetails
	connects    []string
	feedback    []bool
	mutes       []bool
}

func (r *callbackRecorder) options() []SessionOption {
	record := func(fn func()) {
		r.mu.Lock()
		defer r.mu.Unlock()
		fn()
	}

	return []SessionOption{
		WithStatusChangeCallback(func(status Status) { record(func() { r.statuses = append(r.statuses, status) }) }),
		WithModeChangeCallback(func(mode Mode) { record(func() { r.modes = append(r.modes, mode) }) }),
		WithMessageCallback(func(message Message) { record(func() { r.messages = append(r.messages, message) }) }),
		WithErrorCallback(func(err error) { record(func() { r.errs = append(r.errs, err) }) }),
		WithDebugCallback(func(debug Debug) { record(func() { r.debugs = append(r.debugs, debug) }) }),
		WithDisconnectCallback(func(details DisconnectDetails) {
			record(func() { r.disconnects = append(r.disconnects, details) })
		}),
		WithConnectCallback(func(conversationID string) { record(func() { r.connects = append(r.connects, conversationID) }) }),
		WithCanSendFeedbackChangeCallback(func(canSend bool) { record(func() { r.feedback = append(r.feedback, canSend) }) }),
		WithMuteChangeCallback(func(muted bool) { record(func() { r.mutes = append(r.mutes, muted) }) }),
	}
}

func (r *callbackRecorder) statusesSeen() []Status {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Status(nil), r.statuses...)
}

func (r *callbackRecorder) modesSeen() []Mode {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Mode(nil), r.modes...)
}

func (r *callbackRecorder) messagesSeen() []Message {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Message(nil), r.messages...)
}

func (r *callbackRecorder) errorsSeen() []error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]error(nil), r.errs...)
}

func (r *callbackRecorder) debugsSeen() []Debug {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Debug(nil), r.debugs...)
}

func (r *callbackRecorder) disconnectsSeen() []DisconnectDetails {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]DisconnectDetails(nil), r.disconnects...)
}

func (r *callbackRecorder) connectsSeen() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.connects...)
}

func (r *callbackRecorder) feedbackSeen() []bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]bool(nil), r.feedback...)
}

func (r *callbackRecorder) mutesSeen() []bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]bool(nil), r.mutes...)
}
