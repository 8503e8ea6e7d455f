package feed

import (
	"context"
	"fmt"
	"io"
	"iter"
	"net/http"
	"sync"

	"github.com/go-resty/resty/v2"
	sse "github.com/tmaxmax/go-sse"
)

// SSETransport reads feed frames from a Server-Sent Events endpoint. Each
// event's data, with multi-line data joined by newlines, forms one frame. The
// last event id seen per URL is sent back as Last-Event-ID on the next dial.
// retry fields are ignored; the manager owns the reconnect schedule.
type SSETransport struct {
	client *resty.Client

	mu      sync.Mutex
	lastIDs map[string]string
}

// NewSSETransport returns a transport on a fresh resty client. The client has
// no overall timeout since the response body stays open for the session.
func NewSSETransport() *SSETransport {
	return &SSETransport{
		client: resty.New().
			SetHeader("Accept", "text/event-stream").
			SetHeader("Cache-Control", "no-cache"),
		lastIDs: make(map[string]string),
	}
}

func (t *SSETransport) lastID(url string) string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.lastIDs[url]
}

func (t *SSETransport) rememberID(url, id string) {
	t.mu.Lock()
	t.lastIDs[url] = id
	t.mu.Unlock()
}

type sseResult struct {
	resp *resty.Response
	err  error
}

// Dial waits for the response headers within ctx. The stream itself outlives
// ctx and ends on Close.
func (t *SSETransport) Dial(ctx context.Context, target Target) (Stream, error) {
	u, header, err := withToken(target)
	if err != nil {
		return nil, err
	}

	streamCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	done := make(chan sseResult, 1)
	go func() {
		req := t.client.R().SetContext(streamCtx).SetDoNotParseResponse(true)
		for k := range header {
			req.SetHeader(k, header.Get(k))
		}
		if id := t.lastID(target.URL); id != "" {
			req.SetHeader("Last-Event-ID", id)
		}
		resp, err := req.Get(u)
		done <- sseResult{resp: resp, err: err}
	}()

	var res sseResult
	select {
	case <-ctx.Done():
		cancel()
		res = <-done
		closeBody(res.resp)
		return nil, fmt.Errorf("sse connect: %w", ctx.Err())
	case res = <-done:
	}

	if res.err != nil {
		cancel()
		closeBody(res.resp)
		return nil, fmt.Errorf("sse connect: %w", res.err)
	}
	if res.resp.StatusCode() != http.StatusOK {
		cancel()
		closeBody(res.resp)
		return nil, fmt.Errorf("sse connect: status %d", res.resp.StatusCode())
	}
	return newSSEStream(res.resp.RawBody(), cancel, func(id string) { t.rememberID(target.URL, id) }), nil
}

func closeBody(resp *resty.Response) {
	if resp != nil && resp.RawBody() != nil {
		resp.RawBody().Close()
	}
}

type sseStream struct {
	body   io.ReadCloser
	cancel context.CancelFunc
	onID   func(string)

	next   func() (sse.Event, error, bool)
	stop   func()
	lastID string
}

func newSSEStream(body io.ReadCloser, cancel context.CancelFunc, onID func(string)) *sseStream {
	next, stop := iter.Pull2(iter.Seq2[sse.Event, error](sse.Read(body, nil)))
	return &sseStream{body: body, cancel: cancel, onID: onID, next: next, stop: stop}
}

// Read returns the data of the next event that carries any. Events with only
// a name or an id still advance the last event id.
func (s *sseStream) Read() ([]byte, error) {
	for {
		ev, err, ok := s.next()
		if !ok {
			s.stop()
			return nil, io.EOF
		}
		if err != nil {
			s.stop()
			return nil, err
		}
		if ev.LastEventID != s.lastID {
			s.lastID = ev.LastEventID
			if s.onID != nil {
				s.onID(ev.LastEventID)
			}
		}
		if ev.Data != "" {
			return []byte(ev.Data), nil
		}
	}
}

func (s *sseStream) Close() error {
	s.cancel()
	return s.body.Close()
}
