package routing

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/soyeahso/captionbot/internal/caption"
	"github.com/soyeahso/captionbot/internal/channel"
	"github.com/soyeahso/captionbot/internal/dispatch"
	"github.com/soyeahso/captionbot/internal/domain"
	"github.com/soyeahso/captionbot/internal/logging"
)

func testLogger() *logging.Logger {
	return logging.New(nil, "silent")
}

// mockChannel is a test double for domain.Channel.
type mockChannel struct {
	id      string
	mu      sync.Mutex
	sent    []domain.OutboundMessage
	handler func(domain.InboundMessage)
}

func (m *mockChannel) ID() string { return m.id }
func (m *mockChannel) Capabilities() domain.ChannelCapabilities {
	return domain.ChannelCapabilities{ChatTypes: []domain.ChatType{domain.ChatTypeDM}}
}
func (m *mockChannel) Start(_ context.Context) error   { return nil }
func (m *mockChannel) Stop(_ context.Context) error    { return nil }
func (m *mockChannel) Status() domain.ChannelStatus    { return domain.ChannelStatus{Running: true} }
func (m *mockChannel) Credentials() domain.TokenSource { return nil }
func (m *mockChannel) Send(_ context.Context, msg domain.OutboundMessage) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sent = append(m.sent, msg)
	return nil
}
func (m *mockChannel) OnMessage(handler func(domain.InboundMessage)) {
	m.handler = handler
}
func (m *mockChannel) sentCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.sent)
}

type handlerFunc func(ctx context.Context, ch domain.Channel, msg domain.InboundMessage) error

func (f handlerFunc) Handle(ctx context.Context, ch domain.Channel, msg domain.InboundMessage) error {
	return f(ctx, ch, msg)
}

func newRouter(t *testing.T, ch *mockChannel, h Handler) *Router {
	t.Helper()
	reg := channel.NewRegistry(testLogger())
	require.NoError(t, reg.Register(ch))
	return NewRouter(reg, h, testLogger())
}

func TestRouter_HandleInbound_Caption(t *testing.T) {
	ch := &mockChannel{id: "botframework"}
	d := dispatch.New(&caption.MockClient{}, testLogger())
	router := newRouter(t, ch, d)

	router.HandleInbound(context.Background(), domain.InboundMessage{
		ID:        "msg-1",
		Type:      domain.ActivityMessage,
		ChannelID: "botframework",
		ChatID:    "conv-1",
		Body:      "http://x.com/cat.png",
	})

	require.Len(t, ch.sent, 1)
	assert.Equal(t, "I think it's a mock image", ch.sent[0].Body)
	assert.Equal(t, "conv-1", ch.sent[0].To)
	assert.Equal(t, "msg-1", ch.sent[0].ReplyToID)
}

func TestRouter_HandleInbound_ChannelNotFound(t *testing.T) {
	called := false
	router := newRouter(t, &mockChannel{id: "irc"}, handlerFunc(func(context.Context, domain.Channel, domain.InboundMessage) error {
		called = true
		return nil
	}))

	router.HandleInbound(context.Background(), domain.InboundMessage{ChannelID: "missing"})
	assert.False(t, called)
}

func TestRouter_HandleInbound_HandlerError(t *testing.T) {
	router := newRouter(t, &mockChannel{id: "irc"}, handlerFunc(func(context.Context, domain.Channel, domain.InboundMessage) error {
		return errors.New("send failed")
	}))
	assert.NotPanics(t, func() {
		router.HandleInbound(context.Background(), domain.InboundMessage{ChannelID: "irc"})
	})
}

func TestRouter_Wire(t *testing.T) {
	ch := &mockChannel{id: "irc"}
	router := newRouter(t, ch, dispatch.New(&caption.MockClient{}, testLogger()))

	router.Wire(context.Background())
	require.NotNil(t, ch.handler)

	ch.handler(domain.InboundMessage{ID: "1", Type: domain.ActivityMessage, ChannelID: "irc", ChatID: "#pics", Body: "hello"})
	require.True(t, router.Wait(2*time.Second))
	require.Equal(t, 1, ch.sentCount())
	assert.Equal(t, dispatch.ReplyNoImage, ch.sent[0].Body)
}

func TestRouter_Wire_DoesNotBlockTransport(t *testing.T) {
	ch := &mockChannel{id: "botframework"}
	release := make(chan struct{})
	router := newRouter(t, ch, handlerFunc(func(ctx context.Context, c domain.Channel, msg domain.InboundMessage) error {
		<-release
		return c.Send(ctx, msg.Reply("done"))
	}))
	router.Wire(context.Background())

	returned := make(chan struct{})
	go func() {
		ch.handler(domain.InboundMessage{ID: "a", ChannelID: "botframework"})
		ch.handler(domain.InboundMessage{ID: "b", ChannelID: "botframework"})
		close(returned)
	}()

	select {
	case <-returned:
	case <-time.After(time.Second):
		t.Fatal("transport callback blocked on message handling")
	}

	assert.False(t, router.Wait(20*time.Millisecond), "handlers still blocked")
	close(release)
	assert.True(t, router.Wait(2*time.Second))
	assert.Equal(t, 2, ch.sentCount())
}

func TestRouter_Wire_SurvivesCanceledContext(t *testing.T) {
	ch := &mockChannel{id: "irc"}
	var ctxErr error
	router := newRouter(t, ch, handlerFunc(func(ctx context.Context, _ domain.Channel, _ domain.InboundMessage) error {
		ctxErr = ctx.Err()
		return nil
	}))

	ctx, cancel := context.WithCancel(context.Background())
	router.Wire(ctx)
	cancel()

	ch.handler(domain.InboundMessage{ChannelID: "irc"})
	require.True(t, router.Wait(2*time.Second))
	assert.NoError(t, ctxErr)
}
