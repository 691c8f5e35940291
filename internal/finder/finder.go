package finder

import (
	"context"
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"time"

	"otvFinder/internal/browser"
	"otvFinder/pkg/calendar"
	"otvFinder/pkg/config"
	"otvFinder/pkg/holiday"
	"otvFinder/pkg/scraper"
	"otvFinder/pkg/search"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
)

var tracer = otel.Tracer("otvfinder/internal/finder")

// HolidayResolver returns the public holidays around a start date
type HolidayResolver interface {
	ForHorizon(ctx context.Context, start calendar.Date, lookaheadDays int) (holiday.Set, error)
}

// Exception is a bookable day earlier than the one the binary search settled on
type Exception struct {
	Date  calendar.Date
	Times []string
}

// Result is the outcome of one run
type Result struct {
	Start      calendar.Date
	Candidates int
	// First is the zero Date unless Found
	First       calendar.Date
	Found       bool
	Times       []string
	Earlier     []Exception
	Evaluations int
	Took        time.Duration
}

// Finder searches the booking site for the earliest free appointment
type Finder struct {
	cfg      config.Config
	loader   Loader
	holidays HolidayResolver
	oracle   *Oracle
	log      zerolog.Logger
}

func New(cfg config.Config, loader Loader, holidays HolidayResolver, log zerolog.Logger) *Finder {
	return &Finder{
		cfg:      cfg,
		loader:   loader,
		holidays: holidays,
		oracle:   NewOracle(loader, CalendarURL(cfg), cfg.BasePath, log),
		log:      log,
	}
}

func baseURL(cfg config.Config) string {
	return strings.TrimRight(cfg.BaseURL, "/")
}

// ServicesURL is the office's service selection page
func ServicesURL(cfg config.Config) string {
	return fmt.Sprintf("%s/index/index/dienststelle/%s", baseURL(cfg), cfg.OfficeID)
}

// SaveURL receives the service selection form
func SaveURL(cfg config.Config) string {
	return baseURL(cfg) + "/dienstleistung/save"
}

// CalendarURL receives the selected day and renders its free slots
func CalendarURL(cfg config.Config) string {
	return baseURL(cfg) + "/termin/index"
}

// ServiceForm is the service selection as the site's form submits it
func ServiceForm(cfg config.Config) url.Values {
	form := url.Values{
		"dienstleistungsid[]": {cfg.ServiceIDs[0]},
		"bemerkung":           {""},
		"anmeldung_action":    {"1"},
		"lang":                {cfg.Language},
		"weiter":              {"Weiter: Terminauswahl"},
	}
	for _, id := range cfg.ServiceIDs {
		form.Set(fmt.Sprintf("personenzahl[%s]", id), strconv.Itoa(cfg.Persons))
	}
	return form
}

// Bootstrap selects the service, which starts the booking session, and returns the
// first day the site offers
func (f *Finder) Bootstrap(ctx context.Context) (calendar.Date, error) {
	ctx, span := tracer.Start(ctx, "Bootstrap")
	defer span.End()

	if _, err := f.loader.Load(ctx, browser.Get(ServicesURL(f.cfg))); err != nil {
		return calendar.Date{}, fmt.Errorf("❌ Failed to load service selection: %w", err)
	}
	markup, err := f.loader.Load(ctx, browser.Post(SaveURL(f.cfg), ServiceForm(f.cfg)))
	if err != nil {
		return calendar.Date{}, fmt.Errorf("❌ Failed to select service: %w", err)
	}

	if days, err := scraper.CalendarDays(markup); err == nil {
		f.log.Debug().Ints("days", days).Msg("calendar widget days")
	} else {
		f.log.Debug().Err(err).Msg("calendar widget not rendered")
	}

	start, err := scraper.SelectedDate(markup)
	if err != nil {
		return calendar.Date{}, fmt.Errorf("❌ Failed to read start date: %w", err)
	}
	span.SetAttributes(attribute.String("start", start.String()))
	return start, nil
}

// Candidates returns the weekdays of the horizon that are not public holidays
func (f *Finder) Candidates(ctx context.Context, start calendar.Date) ([]calendar.Date, error) {
	ctx, span := tracer.Start(ctx, "Candidates")
	defer span.End()

	holidays, err := f.holidays.ForHorizon(ctx, start, f.cfg.HolidayLookaheadDays)
	if err != nil {
		return nil, fmt.Errorf("❌ Failed to get holidays: %w", err)
	}
	dates := calendar.Candidates(start, f.cfg.HorizonDays, holidays)

	f.log.Info().
		Str("start", start.String()).
		Strs("holidays", holidays.Sorted()).
		Int("candidates", len(dates)).
		Msgf("📅 %d possible days within %d days", len(dates), f.cfg.HorizonDays)
	span.SetAttributes(attribute.Int("candidates", len(dates)))
	return dates, nil
}

// Search finds the first day with free slots assuming availability only grows with the
// date, then checks every earlier day for bookable exceptions
func (f *Finder) Search(ctx context.Context, dates []calendar.Date) (Result, error) {
	ctx, span := tracer.Start(ctx, "Search")
	defer span.End()

	result := Result{Candidates: len(dates)}
	pred := func(day calendar.Date) (bool, error) {
		return f.oracle.HasSlots(ctx, day)
	}

	f.log.Info().Msg("Using binary search to find first sure date...")
	first, err := search.FindFirst(dates, pred)
	if err != nil {
		return result, fmt.Errorf("❌ Binary search failed: %w", err)
	}
	if first == search.NotFound {
		f.log.Info().Msgf("✓ No slots found (checked %d days)", f.oracle.Evaluations())
		result.Evaluations = f.oracle.Evaluations()
		return result, nil
	}

	result.Found = true
	result.First = dates[first]
	result.Times, err = f.oracle.Times(ctx, result.First)
	if err != nil {
		return result, fmt.Errorf("❌ Failed to reload %s: %w", result.First, err)
	}
	f.log.Info().
		Str("date", result.First.String()).
		Strs("times", result.Times).
		Msgf("🎯 First sure date: %s", result.First)

	f.log.Info().Msg("Trying to find earlier free slots...")
	earlierTimes := map[calendar.Date][]string{}
	violations, err := search.CounterCheck(dates, first, func(day calendar.Date) (bool, error) {
		times, err := f.oracle.Inspect(ctx, day)
		if len(times) > 0 {
			earlierTimes[day] = times
		}
		return len(times) > 0, err
	})
	if err != nil {
		return result, fmt.Errorf("❌ Counter-check failed: %w", err)
	}
	for _, i := range violations {
		day := dates[i]
		f.log.Warn().
			Str("date", day.String()).
			Strs("times", earlierTimes[day]).
			Msg("⚠️ possible earlier date")
		result.Earlier = append(result.Earlier, Exception{Date: day, Times: earlierTimes[day]})
	}
	f.log.Info().Msgf("Found %d earlier dates.", len(result.Earlier))

	result.Evaluations = f.oracle.Evaluations()
	span.SetAttributes(
		attribute.String("first", result.First.String()),
		attribute.Int("earlier", len(result.Earlier)),
	)
	return result, nil
}

// Run bootstraps the session, builds the candidate days and searches them
func (f *Finder) Run(ctx context.Context) (Result, error) {
	startTime := time.Now()

	start, err := f.Bootstrap(ctx)
	if err != nil {
		return Result{}, err
	}
	dates, err := f.Candidates(ctx, start)
	if err != nil {
		return Result{Start: start}, err
	}
	result, err := f.Search(ctx, dates)
	result.Start = start
	result.Took = time.Since(startTime)
	return result, err
}
