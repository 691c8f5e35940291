package browser

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

var tracer = otel.Tracer("otvfinder/internal/browser")

var (
	// ErrRenderTimeout is returned when a page does not finish loading and
	// serializing within the load timeout
	ErrRenderTimeout = errors.New("render timeout")
	// ErrLoadInFlight is returned when Load is called before the previous Load returned
	ErrLoadInFlight = errors.New("another load is in flight")
)

// Request is a plain navigation when Form is nil, otherwise a form-encoded POST
type Request struct {
	URL  string
	Form url.Values
}

// Get returns a navigation request
func Get(link string) Request {
	return Request{URL: link}
}

// Post returns a form submission request
func Post(link string, form url.Values) Request {
	if form == nil {
		form = url.Values{}
	}
	return Request{URL: link, Form: form}
}

func (r Request) Method() string {
	if r.Form == nil {
		return "GET"
	}
	return "POST"
}

func (r Request) String() string {
	return r.Method() + " " + r.URL
}

// Engine renders pages asynchronously. Both methods return before the work is done
// and report completion through their callbacks, which may run on any goroutine.
type Engine interface {
	// Navigate starts loading req. loaded is called once the document finished
	// loading, or with an error when the navigation failed.
	Navigate(ctx context.Context, req Request, loaded func(error)) error
	// ToHTML serializes the current document and hands the markup to fn.
	ToHTML(ctx context.Context, fn func(markup string, err error))
}

// Client turns an Engine into blocking page loads. It allows one load at a time;
// the browsing session of the engine is shared by all loads.
type Client struct {
	engine  Engine
	timeout time.Duration
	log     zerolog.Logger

	inFlight atomic.Bool

	mu   sync.Mutex
	html string
}

// NewClient creates a client whose loads fail with ErrRenderTimeout after timeout.
// A zero timeout waits until ctx is done.
func NewClient(engine Engine, timeout time.Duration, log zerolog.Logger) *Client {
	return &Client{
		engine:  engine,
		timeout: timeout,
		log:     log,
	}
}

type rendered struct {
	markup string
	err    error
}

// Load navigates to req and blocks until the rendered document has been serialized.
func (c *Client) Load(ctx context.Context, req Request) (string, error) {
	if !c.inFlight.CompareAndSwap(false, true) {
		return "", fmt.Errorf("%s: %w", req, ErrLoadInFlight)
	}
	defer c.inFlight.Store(false)

	ctx, span := tracer.Start(ctx, "Load")
	defer span.End()
	span.SetAttributes(
		attribute.String("method", req.Method()),
		attribute.String("url", req.URL),
	)

	// everything the engine does for this load is scoped to loadCtx and ends with it
	var (
		loadCtx context.Context
		cancel  context.CancelFunc
	)
	if c.timeout > 0 {
		loadCtx, cancel = context.WithTimeout(ctx, c.timeout)
	} else {
		loadCtx, cancel = context.WithCancel(ctx)
	}
	defer cancel()

	startTime := time.Now()
	markup, err := c.load(loadCtx, req)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to load page")
		return "", err
	}

	c.mu.Lock()
	c.html = markup
	c.mu.Unlock()

	c.log.Debug().
		Str("request", req.String()).
		Int("bytes", len(markup)).
		Dur("took", time.Since(startTime)).
		Msg("page rendered")
	return markup, nil
}

func (c *Client) load(ctx context.Context, req Request) (string, error) {
	loaded := make(chan error, 1)
	// one slot: the serialization callback fills it exactly once per load
	ready := make(chan rendered, 1)

	err := c.engine.Navigate(ctx, req, func(err error) {
		select {
		case loaded <- err:
		default:
		}
	})
	if err != nil {
		return "", fmt.Errorf("navigate %s: %w", req, err)
	}

	select {
	case err := <-loaded:
		if err != nil {
			return "", fmt.Errorf("load %s: %w", req, err)
		}
	case <-ctx.Done():
		return "", c.waitError(ctx, req, "load")
	}

	c.engine.ToHTML(ctx, func(markup string, err error) {
		select {
		case ready <- rendered{markup: markup, err: err}:
		default:
		}
	})

	select {
	case r := <-ready:
		if r.err != nil {
			return "", fmt.Errorf("serialize %s: %w", req, r.err)
		}
		return r.markup, nil
	case <-ctx.Done():
		return "", c.waitError(ctx, req, "serialize")
	}
}

func (c *Client) waitError(ctx context.Context, req Request, stage string) error {
	if errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return fmt.Errorf("%s: %s did not finish within %s: %w", req, stage, c.timeout, ErrRenderTimeout)
	}
	return fmt.Errorf("%s: waiting for %s: %w", req, stage, ctx.Err())
}

// HTML returns the markup of the most recent successful load
func (c *Client) HTML() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.html
}
