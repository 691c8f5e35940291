package finder

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"otvFinder/internal/browser"
	"otvFinder/pkg/calendar"
	"otvFinder/pkg/config"
	"otvFinder/pkg/holiday"
	"otvFinder/pkg/scraper"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
)

// site serves the booking pages from memory
type site struct {
	cfg       config.Config
	start     string
	available func(day calendar.Date) bool
	broken    bool

	requests []browser.Request
}

func (s *site) Load(_ context.Context, req browser.Request) (string, error) {
	s.requests = append(s.requests, req)
	switch req.URL {
	case ServicesURL(s.cfg):
		return `<html><body><form id="dienstleistungen"></form></body></html>`, nil
	case SaveURL(s.cfg):
		return fmt.Sprintf(`<html><body><input type="hidden" id="selectedDate" value="%s"><noscript>JavaScript</noscript></body></html>`, s.start), nil
	case CalendarURL(s.cfg):
		if s.broken {
			return `<html><body>Ihre Sitzung ist abgelaufen</body></html>`, nil
		}
		day, err := calendar.ParseDate(req.Form.Get("selectedDate"))
		if err != nil {
			return "", err
		}
		return dayPage(day, s.available(day)), nil
	}
	return "", fmt.Errorf("unexpected request %s", req)
}

func (s *site) calendarLoads() []string {
	var days []string
	for _, req := range s.requests {
		if req.URL == CalendarURL(s.cfg) {
			days = append(days, req.Form.Get("selectedDate"))
		}
	}
	return days
}

func dayPage(day calendar.Date, available bool) string {
	var rows strings.Builder
	if available {
		for _, hm := range [][2]int{{9, 30}, {14, 5}} {
			fmt.Fprintf(&rows, `<tr><td><a href="/terminmodul/live/termin/buchen/datum/%s/stunde/%d/minute/%d">x</a></td></tr>`, day, hm[0], hm[1])
		}
	}
	return fmt.Sprintf(`<html><body><input id="selectedDate" value="%s"><table id="tabelleTermine">%s</table></body></html>`, day, rows.String())
}

type holidays struct {
	set holiday.Set
	err error
}

func (h holidays) ForHorizon(context.Context, calendar.Date, int) (holiday.Set, error) {
	return h.set, h.err
}

func from(first calendar.Date) func(calendar.Date) bool {
	return func(day calendar.Date) bool { return !day.Before(first) }
}

func newFinder(s *site, h holidays) *Finder {
	return New(s.cfg, s, h, zerolog.Nop())
}

func TestRunMonotonic(t *testing.T) {
	s := &site{
		cfg:       config.Default(),
		start:     "2024-06-03",
		available: from(calendar.NewDate(2024, time.June, 10)),
	}
	result, err := newFinder(s, holidays{set: holiday.Set{}}).Run(context.Background())
	require.NoError(t, err)

	require.True(t, result.Found)
	require.Equal(t, calendar.NewDate(2024, time.June, 3), result.Start)
	require.Equal(t, calendar.NewDate(2024, time.June, 10), result.First)
	require.Equal(t, []string{"9:30", "14:05"}, result.Times)
	require.Empty(t, result.Earlier)
	require.Equal(t, 65, result.Candidates)

	// bootstrap, then the service form, then calendar pages only
	require.Equal(t, "GET", s.requests[0].Method())
	require.Equal(t, "POST", s.requests[1].Method())
	require.Equal(t, "460", s.requests[1].Form.Get("dienstleistungsid[]"))
	require.Equal(t, "1", s.requests[1].Form.Get("personenzahl[458]"))
	require.Equal(t, config.BasePath, s.requests[2].Form.Get("baseUrl"))

	loads := s.calendarLoads()
	// binary search, reload of the first sure date, counter-check of the days before it
	require.Equal(t, []string{
		"2024-07-17", "2024-06-24", "2024-06-12", "2024-06-06", "2024-06-10", "2024-06-07",
		"2024-06-10",
		"2024-06-03", "2024-06-04", "2024-06-05", "2024-06-06", "2024-06-07",
	}, loads)
	require.Equal(t, 11, result.Evaluations)
}

func TestRunReportsEarlierExceptions(t *testing.T) {
	early := calendar.NewDate(2024, time.June, 5)
	s := &site{
		cfg:   config.Default(),
		start: "2024-06-03",
		available: func(day calendar.Date) bool {
			return day == early || from(calendar.NewDate(2024, time.June, 10))(day)
		},
	}
	result, err := newFinder(s, holidays{set: holiday.Set{}}).Run(context.Background())
	require.NoError(t, err)

	require.Equal(t, calendar.NewDate(2024, time.June, 10), result.First)
	require.Equal(t, []Exception{{Date: early, Times: []string{"9:30", "14:05"}}}, result.Earlier)
}

func TestRunSkipsHolidays(t *testing.T) {
	s := &site{
		cfg:       config.Default(),
		start:     "2024-06-03",
		available: from(calendar.NewDate(2024, time.June, 4)),
	}
	h := holidays{set: holiday.Set{"2024-06-04": {}, "2024-06-05": {}}}
	result, err := newFinder(s, h).Run(context.Background())
	require.NoError(t, err)

	require.Equal(t, calendar.NewDate(2024, time.June, 6), result.First)
	require.Equal(t, 63, result.Candidates)
	require.NotContains(t, s.calendarLoads(), "2024-06-04")
	require.NotContains(t, s.calendarLoads(), "2024-06-05")
}

func TestRunNothingAvailable(t *testing.T) {
	s := &site{
		cfg:       config.Default(),
		start:     "2024-06-03",
		available: func(calendar.Date) bool { return false },
	}
	result, err := newFinder(s, holidays{set: holiday.Set{}}).Run(context.Background())
	require.NoError(t, err)
	require.False(t, result.Found)
	require.True(t, result.First.IsZero())
	require.Empty(t, result.Earlier)
	// log2(65) rounded up, and no counter-check
	require.Len(t, s.calendarLoads(), 7)
}

func TestRunPropagatesFailures(t *testing.T) {
	t.Run("holidays", func(t *testing.T) {
		boom := &holiday.ResolverError{URL: "https://example.test", Err: errors.New("connection refused")}
		s := &site{cfg: config.Default(), start: "2024-06-03"}
		_, err := newFinder(s, holidays{err: boom}).Run(context.Background())
		var rerr *holiday.ResolverError
		require.ErrorAs(t, err, &rerr)
		require.Empty(t, s.calendarLoads())
	})

	t.Run("start date", func(t *testing.T) {
		s := &site{cfg: config.Default(), start: "not a date"}
		_, err := newFinder(s, holidays{set: holiday.Set{}}).Run(context.Background())
		var perr *scraper.ParseError
		require.ErrorAs(t, err, &perr)
	})

	t.Run("slot table", func(t *testing.T) {
		s := &site{cfg: config.Default(), start: "2024-06-03", broken: true}
		_, err := newFinder(s, holidays{set: holiday.Set{}}).Run(context.Background())
		var perr *scraper.ParseError
		require.ErrorAs(t, err, &perr)
		require.Len(t, s.calendarLoads(), 1)
	})

	t.Run("render timeout", func(t *testing.T) {
		loader := loaderFunc(func(context.Context, browser.Request) (string, error) {
			return "", fmt.Errorf("GET x: %w", browser.ErrRenderTimeout)
		})
		_, err := New(config.Default(), loader, holidays{}, zerolog.Nop()).Run(context.Background())
		require.ErrorIs(t, err, browser.ErrRenderTimeout)
	})
}

type loaderFunc func(context.Context, browser.Request) (string, error)

func (f loaderFunc) Load(ctx context.Context, req browser.Request) (string, error) {
	return f(ctx, req)
}

func TestReport(t *testing.T) {
	var out bytes.Buffer
	err := Report(&out, Result{
		Start:   calendar.NewDate(2024, time.June, 3),
		Found:   true,
		First:   calendar.NewDate(2024, time.June, 10),
		Times:   []string{"9:30", "14:05"},
		Earlier: []Exception{{Date: calendar.NewDate(2024, time.June, 5), Times: []string{"8:00"}}},
	})
	require.NoError(t, err)
	require.Contains(t, out.String(), "First sure date: 2024-06-10 [9:30, 14:05]\n")
	require.Contains(t, out.String(), "possible earlier date: 2024-06-05 [8:00]\n")
	require.Contains(t, out.String(), "Found 1 earlier dates.\n")

	out.Reset()
	require.NoError(t, Report(&out, Result{Start: calendar.NewDate(2024, time.June, 3), Candidates: 65}))
	require.Contains(t, out.String(), "No free slot among 65 possible days from 2024-06-03.")
}
