package holiday

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"time"

	"otvFinder/pkg/calendar"

	"github.com/go-resty/resty/v2"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

var tracer = otel.Tracer("otvfinder/pkg/holiday")

// Set holds YYYY-MM-DD day strings
type Set map[string]struct{}

func (s Set) Contains(day string) bool {
	_, ok := s[day]
	return ok
}

func (s Set) Add(day string) {
	s[day] = struct{}{}
}

// Union adds every day of other to s
func (s Set) Union(other Set) Set {
	for day := range other {
		s.Add(day)
	}
	return s
}

// Sorted returns the days in ascending order
func (s Set) Sorted() []string {
	days := make([]string, 0, len(s))
	for day := range s {
		days = append(days, day)
	}
	sort.Strings(days)
	return days
}

// ResolverError reports an unreachable endpoint or an unexpected response
type ResolverError struct {
	URL string
	Err error
}

func (e *ResolverError) Error() string {
	return fmt.Sprintf("resolve holidays from %s: %v", e.URL, e.Err)
}

func (e *ResolverError) Unwrap() error { return e.Err }

// Client queries the booking site's holiday calendar
type Client struct {
	baseURL string
	http    *resty.Client
}

// NewClient creates a client for the terminmodul installation at baseURL
func NewClient(baseURL string, timeout time.Duration) *Client {
	http := resty.New().
		SetTimeout(timeout).
		SetHeader("accept", "application/json")
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    http,
	}
}

func (c *Client) monthURL(year int, month time.Month) string {
	return fmt.Sprintf("%s/kalender/getfeiertagejsonformonth/monat/%02d/jahr/%d", c.baseURL, int(month), year)
}

// ForMonth returns the public holidays of one month
func (c *Client) ForMonth(ctx context.Context, year int, month time.Month) (Set, error) {
	link := c.monthURL(year, month)

	ctx, span := tracer.Start(ctx, "ForMonth")
	defer span.End()
	span.SetAttributes(attribute.String("url", link))

	res, err := c.http.R().
		SetContext(ctx).
		Get(link)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to fetch holidays")
		return nil, &ResolverError{URL: link, Err: err}
	}
	if res.IsError() {
		span.SetStatus(codes.Error, res.Status())
		return nil, &ResolverError{URL: link, Err: fmt.Errorf("unexpected status %s", res.Status())}
	}

	set, err := Decode(res.Body())
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to decode holidays")
		return nil, &ResolverError{URL: link, Err: err}
	}
	span.SetAttributes(attribute.Int("holidays", len(set)))
	return set, nil
}

// ForHorizon returns the holidays of the month containing start and of the month
// lookaheadDays later, so a horizon crossing a month boundary is covered.
func (c *Client) ForHorizon(ctx context.Context, start calendar.Date, lookaheadDays int) (Set, error) {
	set, err := c.ForMonth(ctx, start.Year, start.Month)
	if err != nil {
		return nil, err
	}
	later := start.AddDays(lookaheadDays)
	if later.Year == start.Year && later.Month == start.Month {
		return set, nil
	}
	more, err := c.ForMonth(ctx, later.Year, later.Month)
	if err != nil {
		return nil, err
	}
	return set.Union(more), nil
}

// Decode flattens {"<any>": {"YYYY-MM-DD": ...}, ...} into the set of inner keys.
// Empty objects may arrive encoded as empty arrays, at either level.
func Decode(body []byte) (Set, error) {
	set := Set{}
	if empty, err := emptyArray(body); empty || err != nil {
		if err != nil {
			return nil, fmt.Errorf("decode holiday groups: %w", err)
		}
		return set, nil
	}

	var groups map[string]json.RawMessage
	if err := json.Unmarshal(body, &groups); err != nil {
		return nil, fmt.Errorf("decode holiday groups: %w", err)
	}
	for key, raw := range groups {
		if empty, err := emptyArray(raw); empty || err != nil {
			if err != nil {
				return nil, fmt.Errorf("decode holiday group %q: %w", key, err)
			}
			continue
		}
		var days map[string]json.RawMessage
		if err := json.Unmarshal(raw, &days); err != nil {
			return nil, fmt.Errorf("decode holiday group %q: %w", key, err)
		}
		for day := range days {
			set.Add(day)
		}
	}
	return set, nil
}

// emptyArray reports whether raw is a JSON array, failing when the array has elements
func emptyArray(raw []byte) (bool, error) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || raw[0] != '[' {
		return false, nil
	}
	var list []json.RawMessage
	if err := json.Unmarshal(raw, &list); err != nil {
		return false, err
	}
	if len(list) > 0 {
		return false, fmt.Errorf("expected an object, got an array of %d elements", len(list))
	}
	return true, nil
}
