package browser

import (
	"context"
	"errors"
	"net/url"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
)

// fakeEngine renders every request on its own goroutine, after delay
type fakeEngine struct {
	delay    time.Duration
	pages    map[string]string
	hangLoad bool
	hangHTML bool
	navErr   error

	mu        sync.Mutex
	current   string
	requests  []Request
	callbacks atomic.Int32
}

func (e *fakeEngine) Navigate(ctx context.Context, req Request, loaded func(error)) error {
	if e.navErr != nil {
		return e.navErr
	}
	e.mu.Lock()
	e.requests = append(e.requests, req)
	e.mu.Unlock()
	if e.hangLoad {
		return nil
	}
	go func() {
		time.Sleep(e.delay)
		e.mu.Lock()
		e.current = e.pages[req.URL]
		e.mu.Unlock()
		loaded(nil)
	}()
	return nil
}

func (e *fakeEngine) ToHTML(ctx context.Context, fn func(string, error)) {
	if e.hangHTML {
		return
	}
	go func() {
		time.Sleep(e.delay)
		e.mu.Lock()
		html := e.current
		e.mu.Unlock()
		e.callbacks.Add(1)
		fn(html, nil)
	}()
}

func TestLoadWaitsForContent(t *testing.T) {
	engine := &fakeEngine{
		delay: 20 * time.Millisecond,
		pages: map[string]string{
			"https://example.test/index":    "<html>index</html>",
			"https://example.test/calendar": "<html>calendar</html>",
		},
	}
	client := NewClient(engine, time.Second, zerolog.Nop())

	markup, err := client.Load(context.Background(), Get("https://example.test/index"))
	require.NoError(t, err)
	require.Equal(t, "<html>index</html>", markup)
	require.Equal(t, int32(1), engine.callbacks.Load())
	require.Equal(t, markup, client.HTML())

	markup, err = client.Load(context.Background(), Post("https://example.test/calendar", url.Values{"selectedDate": {"2024-06-10"}}))
	require.NoError(t, err)
	require.Equal(t, "<html>calendar</html>", markup)
	require.Equal(t, int32(2), engine.callbacks.Load())
	require.Equal(t, "<html>calendar</html>", client.HTML())

	require.Equal(t, "GET", engine.requests[0].Method())
	require.Equal(t, "POST", engine.requests[1].Method())
}

func TestLoadTimeout(t *testing.T) {
	for name, engine := range map[string]*fakeEngine{
		"load":      {hangLoad: true},
		"serialize": {hangHTML: true},
	} {
		t.Run(name, func(t *testing.T) {
			client := NewClient(engine, 30*time.Millisecond, zerolog.Nop())
			_, err := client.Load(context.Background(), Get("https://example.test/"))
			require.ErrorIs(t, err, ErrRenderTimeout)
			require.Contains(t, err.Error(), name)
		})
	}
}

func TestLoadCancelled(t *testing.T) {
	client := NewClient(&fakeEngine{hangLoad: true}, 0, zerolog.Nop())
	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(10 * time.Millisecond)
		cancel()
	}()
	_, err := client.Load(ctx, Get("https://example.test/"))
	require.ErrorIs(t, err, context.Canceled)
	require.False(t, errors.Is(err, ErrRenderTimeout))
}

func TestLoadNavigateError(t *testing.T) {
	boom := errors.New("net::ERR_NAME_NOT_RESOLVED")
	client := NewClient(&fakeEngine{navErr: boom}, time.Second, zerolog.Nop())
	_, err := client.Load(context.Background(), Get("https://example.test/"))
	require.ErrorIs(t, err, boom)
}

func TestLoadRejectsOverlappingCalls(t *testing.T) {
	engine := &fakeEngine{hangLoad: true}
	client := NewClient(engine, 200*time.Millisecond, zerolog.Nop())

	first := make(chan error, 1)
	go func() {
		_, err := client.Load(context.Background(), Get("https://example.test/first"))
		first <- err
	}()

	require.Eventually(t, func() bool {
		engine.mu.Lock()
		defer engine.mu.Unlock()
		return len(engine.requests) == 1
	}, time.Second, time.Millisecond)

	_, err := client.Load(context.Background(), Get("https://example.test/second"))
	require.ErrorIs(t, err, ErrLoadInFlight)

	require.ErrorIs(t, <-first, ErrRenderTimeout)

	// the slot is free again once the first load returned
	engine.hangLoad = false
	_, err = client.Load(context.Background(), Get("https://example.test/third"))
	require.NoError(t, err)
}

func TestSubmitScript(t *testing.T) {
	script, err := submitScript(Post("https://example.test/save", url.Values{
		"weiter":              {"Weiter: Terminauswahl"},
		"dienstleistungsid[]": {"460"},
	}))
	require.NoError(t, err)
	require.Contains(t, script, `"https://example.test/save"`)
	require.Contains(t, script, `[{"name":"dienstleistungsid[]","value":"460"},{"name":"weiter","value":"Weiter: Terminauswahl"}]`)
}
