package finder

import (
	"context"
	"net/url"

	"otvFinder/internal/browser"
	"otvFinder/pkg/calendar"
	"otvFinder/pkg/scraper"

	"github.com/rs/zerolog"
)

// Loader loads one page at a time and returns its rendered markup
type Loader interface {
	Load(ctx context.Context, req browser.Request) (string, error)
}

// Oracle answers whether a day has free slots by rendering the day's calendar page
type Oracle struct {
	loader      Loader
	calendarURL string
	basePath    string
	log         zerolog.Logger

	evaluations int
}

func NewOracle(loader Loader, calendarURL, basePath string, log zerolog.Logger) *Oracle {
	return &Oracle{
		loader:      loader,
		calendarURL: calendarURL,
		basePath:    basePath,
		log:         log,
	}
}

// Times loads the calendar page of day and returns its free slots as H:MM
func (o *Oracle) Times(ctx context.Context, day calendar.Date) ([]string, error) {
	markup, err := o.loader.Load(ctx, browser.Post(o.calendarURL, url.Values{
		"selectedDate": {day.String()},
		"baseUrl":      {o.basePath},
	}))
	if err != nil {
		return nil, err
	}
	return scraper.AvailableTimes(markup)
}

// Inspect is Times plus a progress line with the outcome
func (o *Oracle) Inspect(ctx context.Context, day calendar.Date) ([]string, error) {
	times, err := o.Times(ctx, day)
	if err != nil {
		return nil, err
	}
	o.evaluations++

	result := "full"
	if len(times) > 0 {
		result = "available!!"
	}
	o.log.Info().
		Str("date", day.String()).
		Int("slots", len(times)).
		Msgf("🔎 inspecting date %s, result = %s", day, result)
	return times, nil
}

// HasSlots reports whether day has at least one free slot
func (o *Oracle) HasSlots(ctx context.Context, day calendar.Date) (bool, error) {
	times, err := o.Inspect(ctx, day)
	return len(times) > 0, err
}

// Evaluations returns how many days have been inspected
func (o *Oracle) Evaluations() int {
	return o.evaluations
}
