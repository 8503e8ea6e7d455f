package alert

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeBotAPI answers the two Bot API methods the notifier uses.
func fakeBotAPI(t *testing.T) (*httptest.Server, func() []string) {
	t.Helper()
	var (
		mu    sync.Mutex
		texts []string
	)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		switch {
		case strings.HasSuffix(r.URL.Path, "/getMe"):
			_, _ = w.Write([]byte(`{"ok":true,"result":{"id":1,"is_bot":true,"first_name":"arb","username":"arb_bot"}}`))
		case strings.HasSuffix(r.URL.Path, "/sendMessage"):
			_ = r.ParseForm()
			mu.Lock()
			texts = append(texts, r.Form.Get("text"))
			mu.Unlock()
			_, _ = w.Write([]byte(`{"ok":true,"result":{"message_id":1,"date":0,"chat":{"id":42,"type":"private"}}}`))
		default:
			http.NotFound(w, r)
		}
	}))
	t.Cleanup(srv.Close)
	return srv, func() []string {
		mu.Lock()
		defer mu.Unlock()
		return append([]string(nil), texts...)
	}
}

func TestTelegramNotifierSends(t *testing.T) {
	t.Parallel()
	srv, sent := fakeBotAPI(t)

	n, err := newTelegramNotifier("TOKEN", srv.URL+"/bot%s/%s", 42, discardLogger())
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go n.Run(ctx)

	require.NoError(t, n.Notify(ctx, "Arbitrage opportunity", "body text"))
	assert.Eventually(t, func() bool { return len(sent()) == 1 }, 2*time.Second, 10*time.Millisecond)
	assert.Equal(t, "Arbitrage opportunity\nbody text", sent()[0])
}

func TestTelegramNotifierQueueFull(t *testing.T) {
	t.Parallel()
	srv, _ := fakeBotAPI(t)

	n, err := newTelegramNotifier("TOKEN", srv.URL+"/bot%s/%s", 42, discardLogger())
	require.NoError(t, err)

	// Run is not started, so nothing drains the queue.
	for i := 0; i < cap(n.queue); i++ {
		require.NoError(t, n.Notify(context.Background(), "t", "b"))
	}
	assert.ErrorIs(t, n.Notify(context.Background(), "t", "b"), ErrQueueFull)
}

func TestTelegramNotifierBadToken(t *testing.T) {
	t.Parallel()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = w.Write([]byte(`{"ok":false,"error_code":401,"description":"Unauthorized"}`))
	}))
	defer srv.Close()

	_, err := newTelegramNotifier("BAD", srv.URL+"/bot%s/%s", 42, discardLogger())
	assert.Error(t, err)
}
