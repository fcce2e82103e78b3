package notify

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func discard() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type recordingSender struct {
	mu     sync.Mutex
	titles []string
	err    error
}

func (r *recordingSender) Send(_ context.Context, title, _ string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.titles = append(r.titles, title)
	return r.err
}

func (r *recordingSender) Name() string { return "recording" }

func (r *recordingSender) Titles() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.titles...)
}

func TestNotifierFiltersAndDelivers(t *testing.T) {
	ok := &recordingSender{}
	failing := &recordingSender{err: errors.New("boom")}
	n := NewNotifier([]Sender{failing, ok}, []string{"position_closed", " position_stuck "}, discard())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- n.Run(ctx) }()

	require.NoError(t, n.Notify(ctx, "entry_filled", "filtered", ""))
	require.NoError(t, n.Notify(ctx, "position_closed", "closed", "pnl +2.20"))
	require.NoError(t, n.Notify(ctx, "position_stuck", "stuck", ""))

	assert.Eventually(t, func() bool { return len(ok.Titles()) == 2 }, 2*time.Second, 10*time.Millisecond)
	assert.Equal(t, []string{"closed", "stuck"}, ok.Titles())
	assert.Equal(t, []string{"closed", "stuck"}, failing.Titles())

	cancel()
	assert.ErrorIs(t, <-done, context.Canceled)
}

func TestNotifierDrainsOnShutdown(t *testing.T) {
	s := &recordingSender{}
	n := NewNotifier([]Sender{s}, nil, discard())
	require.NoError(t, n.Notify(context.Background(), "trading_halted", "halted", ""))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.ErrorIs(t, n.Run(ctx), context.Canceled)
	assert.Equal(t, []string{"halted"}, s.Titles())
}

func TestNotifierWithoutSendersIsNoop(t *testing.T) {
	n := NewNotifier(nil, nil, discard())
	assert.False(t, n.Enabled())
	assert.NoError(t, n.Notify(context.Background(), "x", "y", "z"))
	assert.Len(t, n.queue, 0)
}

func TestTelegramSender(t *testing.T) {
	var got map[string]string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/botTOKEN/sendMessage", r.URL.Path)
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	s := NewTelegramSender("TOKEN", "42")
	s.baseURL = srv.URL
	require.NoError(t, s.Send(context.Background(), "Closed", "BTC Up"))
	assert.Equal(t, "42", got["chat_id"])
	assert.Equal(t, "*Closed*\nBTC Up", got["text"])
}

func TestDiscordSenderErrorStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
		_, _ = w.Write([]byte(`{"message":"rate limited"}`))
	}))
	defer srv.Close()

	err := NewDiscordSender(srv.URL).Send(context.Background(), "t", "m")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "discord: unexpected status 429")
}
