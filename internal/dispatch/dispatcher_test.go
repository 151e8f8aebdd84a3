package dispatch

import (
	"context"
	"crypto/tls"
	"errors"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/soyeahso/captionbot/internal/caption"
	"github.com/soyeahso/captionbot/internal/domain"
	"github.com/soyeahso/captionbot/internal/hooks"
	"github.com/soyeahso/captionbot/internal/logging"
)

type staticToken string

func (s staticToken) BearerToken(context.Context) (string, error) {
	if s == "" {
		return "", errors.New("token endpoint unavailable")
	}
	return string(s), nil
}

type fakeChannel struct {
	mu      sync.Mutex
	sent    []domain.OutboundMessage
	creds   domain.TokenSource
	sendErr error
	asked   int
}

func (f *fakeChannel) ID() string                                { return "test" }
func (f *fakeChannel) Capabilities() domain.ChannelCapabilities  { return domain.ChannelCapabilities{} }
func (f *fakeChannel) Start(context.Context) error               { return nil }
func (f *fakeChannel) Stop(context.Context) error                { return nil }
func (f *fakeChannel) OnMessage(func(msg domain.InboundMessage)) {}
func (f *fakeChannel) Status() domain.ChannelStatus              { return domain.ChannelStatus{} }

func (f *fakeChannel) Credentials() domain.TokenSource {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.asked++
	return f.creds
}

func (f *fakeChannel) Send(_ context.Context, msg domain.OutboundMessage) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.sendErr != nil {
		return f.sendErr
	}
	f.sent = append(f.sent, msg)
	return nil
}

func testLogger() *logging.Logger {
	return logging.New(io.Discard, "silent")
}

func message(text string, attachments ...domain.Attachment) domain.InboundMessage {
	return domain.InboundMessage{
		ID:          "act-1",
		Type:        domain.ActivityMessage,
		ChannelID:   "test",
		From:        "user-1",
		ChatID:      "conv-1",
		Body:        text,
		Attachments: attachments,
	}
}

// skypeClient routes every request to srv regardless of host, so
// https://*.skype.com URLs reach the test server.
func skypeClient(srv *httptest.Server) *http.Client {
	addr := srv.Listener.Addr().String()
	return &http.Client{
		Transport: &http.Transport{
			DialContext: func(ctx context.Context, network, _ string) (net.Conn, error) {
				var d net.Dialer
				return d.DialContext(ctx, network, addr)
			},
			TLSClientConfig: &tls.Config{InsecureSkipVerify: true},
		},
	}
}

func TestReplyFor(t *testing.T) {
	assert.Equal(t, "I think it's a cat", ReplyFor("I think it's a cat", nil))
	assert.Equal(t, ReplyNoImage, ReplyFor("", domain.ErrNoImageFound))
	assert.Equal(t, ReplyNoImage, ReplyFor("", errors.Join(errors.New("ctx"), domain.ErrNoImageFound)))
	assert.Equal(t, ReplyFailure, ReplyFor("", &caption.ServiceError{Provider: "azure", Code: 500}))
	assert.Equal(t, ReplyFailure, ReplyFor("", ErrNoCredentials))
}

func TestHandleEmbeddedURL(t *testing.T) {
	var gotURL string
	captioner := &caption.MockClient{
		URLFunc: func(_ context.Context, u string) (string, error) {
			gotURL = u
			return "I think it's a cat", nil
		},
	}
	ch := &fakeChannel{}
	d := New(captioner, testLogger())

	err := d.Handle(context.Background(), ch, message("look at this http://example.com/cat.jpg"))
	require.NoError(t, err)

	assert.Equal(t, "http://example.com/cat.jpg", gotURL)
	require.Len(t, ch.sent, 1)
	assert.Equal(t, "I think it's a cat", ch.sent[0].Body)
	assert.Equal(t, "conv-1", ch.sent[0].To)
	assert.Equal(t, "act-1", ch.sent[0].ReplyToID)
	assert.Equal(t, 0, ch.asked, "url references never consult credentials")
}

func TestHandleNoImage(t *testing.T) {
	captioner := &caption.MockClient{
		URLFunc: func(context.Context, string) (string, error) {
			t.Fatal("captioner must not be called")
			return "", nil
		},
	}
	ch := &fakeChannel{}

	require.NoError(t, New(captioner, testLogger()).Handle(context.Background(), ch, message("hello there")))
	require.Len(t, ch.sent, 1)
	assert.Equal(t, ReplyNoImage, ch.sent[0].Body)
}

func TestHandleCaptionFailure(t *testing.T) {
	captioner := &caption.MockClient{
		URLFunc: func(context.Context, string) (string, error) {
			return "", &caption.ServiceError{Provider: "azure", Code: 500, Message: "internal secret detail"}
		},
	}
	ch := &fakeChannel{}

	require.NoError(t, New(captioner, testLogger()).Handle(context.Background(), ch, message("http://x.com/a.png")))
	require.Len(t, ch.sent, 1)
	assert.Equal(t, ReplyFailure, ch.sent[0].Body)
	assert.NotContains(t, ch.sent[0].Body, "secret")
}

func TestHandleNonMessageActivities(t *testing.T) {
	captioner := &caption.MockClient{
		URLFunc: func(context.Context, string) (string, error) {
			t.Fatal("captioner must not be called")
			return "", nil
		},
	}
	d := New(captioner, testLogger())

	for _, typ := range []domain.ActivityType{
		domain.ActivityDeleteUserData,
		domain.ActivityConversationUpdate,
		domain.ActivityContactRelationUpdate,
		domain.ActivityTyping,
		domain.ActivityPing,
		"installationUpdate",
	} {
		ch := &fakeChannel{}
		msg := message("http://x.com/a.png")
		msg.Type = typ
		require.NoError(t, d.Handle(context.Background(), ch, msg))
		assert.Empty(t, ch.sent, "type %s", typ)
	}
}

func TestHandlePublicAttachment(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "image/jpeg", r.Header.Get("Accept"))
		assert.Empty(t, r.Header.Get("Authorization"))
		w.Write([]byte("JPEGBYTES"))
	}))
	defer srv.Close()

	var gotBody, gotType string
	captioner := &caption.MockClient{
		StreamFunc: func(_ context.Context, r io.Reader, ct string) (string, error) {
			b, err := io.ReadAll(r)
			require.NoError(t, err)
			gotBody, gotType = string(b), ct
			return "I think it's a photo", nil
		},
	}
	ch := &fakeChannel{}
	msg := message("", domain.Attachment{ContentType: "image/jpeg", ContentURL: srv.URL + "/a.jpg"})

	require.NoError(t, New(captioner, testLogger()).Handle(context.Background(), ch, msg))
	assert.Equal(t, "JPEGBYTES", gotBody)
	assert.Equal(t, "image/jpeg", gotType)
	assert.Equal(t, 0, ch.asked)
	require.Len(t, ch.sent, 1)
	assert.Equal(t, "I think it's a photo", ch.sent[0].Body)
}

func TestHandleSkypeAttachmentUsesBearerToken(t *testing.T) {
	srv := httptest.NewTLSServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "api.skype.com", r.Host)
		assert.Equal(t, "Bearer tok-123", r.Header.Get("Authorization"))
		assert.Equal(t, "application/octet-stream", r.Header.Get("Accept"))
		w.Write([]byte("PNG"))
	}))
	defer srv.Close()

	captioner := &caption.MockClient{
		StreamFunc: func(_ context.Context, r io.Reader, _ string) (string, error) {
			b, _ := io.ReadAll(r)
			return "I think it's " + string(b), nil
		},
	}
	ch := &fakeChannel{creds: staticToken("tok-123")}
	msg := message("", domain.Attachment{ContentType: "image/png", ContentURL: "https://api.skype.com/v3/attachments/1/views/original"})

	d := New(captioner, testLogger(), WithHTTPClient(skypeClient(srv)))
	require.NoError(t, d.Handle(context.Background(), ch, msg))
	assert.Equal(t, 1, ch.asked)
	require.Len(t, ch.sent, 1)
	assert.Equal(t, "I think it's PNG", ch.sent[0].Body)
}

func TestHandleSkypeAttachmentWithoutCredentials(t *testing.T) {
	var fetched bool
	srv := httptest.NewTLSServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fetched = true
	}))
	defer srv.Close()

	ch := &fakeChannel{}
	msg := message("", domain.Attachment{ContentType: "image/png", ContentURL: "https://api.skype.com/a"})

	d := New(&caption.MockClient{}, testLogger(), WithHTTPClient(skypeClient(srv)))
	_, err := d.Describe(context.Background(), msg, ch)
	assert.ErrorIs(t, err, ErrNoCredentials)
	assert.False(t, fetched)

	require.NoError(t, d.Handle(context.Background(), ch, msg))
	require.Len(t, ch.sent, 1)
	assert.Equal(t, ReplyFailure, ch.sent[0].Body)
}

func TestDescribeNilCredentialProvider(t *testing.T) {
	msg := message("", domain.Attachment{ContentType: "image/png", ContentURL: "https://api.skype.com/a"})
	_, err := New(&caption.MockClient{}, testLogger()).Describe(context.Background(), msg, nil)
	assert.ErrorIs(t, err, ErrNoCredentials)
}

func TestHandleTokenFailure(t *testing.T) {
	ch := &fakeChannel{creds: staticToken("")}
	msg := message("", domain.Attachment{ContentType: "image/png", ContentURL: "https://api.skype.com/a"})

	require.NoError(t, New(&caption.MockClient{}, testLogger()).Handle(context.Background(), ch, msg))
	require.Len(t, ch.sent, 1)
	assert.Equal(t, ReplyFailure, ch.sent[0].Body)
}

func TestHandleFetchNon2xx(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "gone", http.StatusNotFound)
	}))
	defer srv.Close()

	captioner := &caption.MockClient{
		StreamFunc: func(context.Context, io.Reader, string) (string, error) {
			t.Fatal("captioner must not be called")
			return "", nil
		},
	}
	ch := &fakeChannel{}
	msg := message("", domain.Attachment{ContentType: "image/gif", ContentURL: srv.URL + "/missing.gif"})

	d := New(captioner, testLogger())
	_, err := d.Describe(context.Background(), msg, ch)
	var fe *FetchError
	require.ErrorAs(t, err, &fe)
	assert.Equal(t, http.StatusNotFound, fe.StatusCode)

	require.NoError(t, d.Handle(context.Background(), ch, msg))
	require.Len(t, ch.sent, 1)
	assert.Equal(t, ReplyFailure, ch.sent[0].Body)
}

func TestHandleTimeoutBoundsCaption(t *testing.T) {
	captioner := &caption.MockClient{
		URLFunc: func(ctx context.Context, _ string) (string, error) {
			<-ctx.Done()
			return "", ctx.Err()
		},
	}
	ch := &fakeChannel{}
	d := New(captioner, testLogger(), WithTimeout(20*time.Millisecond))

	start := time.Now()
	require.NoError(t, d.Handle(context.Background(), ch, message("www.example.com/slow.png")))
	assert.Less(t, time.Since(start), 2*time.Second)
	require.Len(t, ch.sent, 1)
	assert.Equal(t, ReplyFailure, ch.sent[0].Body)
}

func TestHandleSendError(t *testing.T) {
	ch := &fakeChannel{sendErr: errors.New("connector down")}
	err := New(&caption.MockClient{}, testLogger()).Handle(context.Background(), ch, message("http://x.com/a.png"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "connector down")
}

func TestHandleEmitsHooks(t *testing.T) {
	m := hooks.NewManager(testLogger())
	var mu sync.Mutex
	seen := map[string]map[string]any{}
	var wg sync.WaitGroup
	wg.Add(4)
	record := func(_ context.Context, p hooks.Payload) error {
		mu.Lock()
		seen[p.Event] = p.Data
		mu.Unlock()
		wg.Done()
		return nil
	}
	for _, e := range []string{hooks.EventMessageReceived, hooks.EventImageResolved, hooks.EventCaptionCompleted, hooks.EventMessageSending} {
		m.On(e, "test", record)
	}

	ch := &fakeChannel{}
	d := New(&caption.MockClient{}, testLogger(), WithHooks(m))
	require.NoError(t, d.Handle(context.Background(), ch, message(`<a href="http://x.com/i.png">link</a>`)))

	done := make(chan struct{})
	go func() { wg.Wait(); close(done) }()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("hooks were not emitted")
	}

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, "anchor", seen[hooks.EventImageResolved]["strategy"])
	assert.Equal(t, "http://x.com/i.png", seen[hooks.EventImageResolved]["url"])
	assert.Equal(t, "mock", seen[hooks.EventCaptionCompleted]["provider"])
	assert.Equal(t, "I think it's a mock image", seen[hooks.EventMessageSending]["body"])
}

func TestHandleConcurrentMessagesAreIndependent(t *testing.T) {
	captioner := &caption.MockClient{
		URLFunc: func(_ context.Context, u string) (string, error) {
			return "I think it's " + strings.TrimPrefix(u, "http://x.com/"), nil
		},
	}
	ch := &fakeChannel{}
	d := New(captioner, testLogger())

	var wg sync.WaitGroup
	for _, name := range []string{"a", "b", "c", "d"} {
		wg.Add(1)
		go func(name string) {
			defer wg.Done()
			msg := message("http://x.com/" + name)
			msg.ID = name
			assert.NoError(t, d.Handle(context.Background(), ch, msg))
		}(name)
	}
	wg.Wait()

	require.Len(t, ch.sent, 4)
	for _, m := range ch.sent {
		assert.Equal(t, "I think it's "+m.ReplyToID, m.Body)
	}
}

func TestFetcherClosesBodyOnError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
	}))
	defer srv.Close()

	_, err := NewFetcher(nil).Open(context.Background(), domain.ByContent(srv.URL, "", false), "")
	var fe *FetchError
	require.ErrorAs(t, err, &fe)
	assert.Contains(t, fe.Error(), "403")
}

// closeTrackingTransport records whether each response body was closed.
type closeTrackingTransport struct {
	mu     sync.Mutex
	bodies []*trackedBody
}

type trackedBody struct {
	io.ReadCloser
	mu     sync.Mutex
	closed bool
}

func (b *trackedBody) Close() error {
	b.mu.Lock()
	b.closed = true
	b.mu.Unlock()
	return b.ReadCloser.Close()
}

func (b *trackedBody) isClosed() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.closed
}

func (c *closeTrackingTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	resp, err := http.DefaultTransport.RoundTrip(req)
	if err != nil {
		return nil, err
	}
	body := &trackedBody{ReadCloser: resp.Body}
	c.mu.Lock()
	c.bodies = append(c.bodies, body)
	c.mu.Unlock()
	resp.Body = body
	return resp, nil
}

func TestCaptionContentClosesBody(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("PNGDATA"))
	}))
	defer srv.Close()

	tests := []struct {
		name      string
		stream    func(context.Context, io.Reader, string) (string, error)
		wantReply string
	}{
		{
			name: "success",
			stream: func(_ context.Context, r io.Reader, _ string) (string, error) {
				_, err := io.ReadAll(r)
				return "I think it's a png", err
			},
			wantReply: "I think it's a png",
		},
		{
			name: "service error",
			stream: func(context.Context, io.Reader, string) (string, error) {
				return "", &caption.ServiceError{Provider: "mock", Code: 500, Message: "boom"}
			},
			wantReply: ReplyFailure,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			transport := &closeTrackingTransport{}
			d := New(&caption.MockClient{StreamFunc: tt.stream}, testLogger(),
				WithHTTPClient(&http.Client{Transport: transport}))
			ch := &fakeChannel{}
			msg := message("", domain.Attachment{ContentType: "image/png", ContentURL: srv.URL + "/a.png"})

			require.NoError(t, d.Handle(context.Background(), ch, msg))
			require.Len(t, ch.sent, 1)
			assert.Equal(t, tt.wantReply, ch.sent[0].Body)

			transport.mu.Lock()
			defer transport.mu.Unlock()
			require.Len(t, transport.bodies, 1)
			assert.True(t, transport.bodies[0].isClosed(), "attachment body must be closed")
		})
	}
}

func TestCaptionContentBodyUsesCaptionDeadline(t *testing.T) {
	const step = 250 * time.Millisecond
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-time.After(step):
		case <-r.Context().Done():
			return
		}
		w.Write([]byte("PNG"))
		w.(http.Flusher).Flush()
		select {
		case <-time.After(step):
		case <-r.Context().Done():
			return
		}
		w.Write([]byte("DATA"))
	}))
	defer srv.Close()

	captioner := &caption.MockClient{
		StreamFunc: func(_ context.Context, r io.Reader, _ string) (string, error) {
			b, err := io.ReadAll(r)
			if err != nil {
				return "", err
			}
			return "I think it's " + string(b), nil
		},
	}
	ch := &fakeChannel{}
	msg := message("", domain.Attachment{ContentType: "image/png", ContentURL: srv.URL + "/slow.png"})

	// Headers and body each take less than the timeout; together they
	// take longer.
	d := New(captioner, testLogger(), WithTimeout(400*time.Millisecond))
	require.NoError(t, d.Handle(context.Background(), ch, msg))
	require.Len(t, ch.sent, 1)
	assert.Equal(t, "I think it's PNGDATA", ch.sent[0].Body)
}

func TestCaptionContentFetchTimeout(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-r.Context().Done()
	}))
	defer srv.Close()

	msg := message("", domain.Attachment{ContentType: "image/png", ContentURL: srv.URL + "/hang.png"})
	d := New(&caption.MockClient{}, testLogger(), WithTimeout(50*time.Millisecond))

	_, err := d.Describe(context.Background(), msg, &fakeChannel{})
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}
