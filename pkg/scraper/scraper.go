package scraper

import (
	"bytes"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	"otvFinder/pkg/calendar"

	"github.com/PuerkitoBio/goquery"
)

// Element ids of the booking pages
const (
	selectedDateSelector = "#selectedDate"
	slotTableSelector    = "table#tabelleTermine"
	calendarSelector     = "#divKalenderTerminuebersicht"
)

var slotHrefPattern = regexp.MustCompile(`datum/(\d+)-(\d+)-(\d+)/stunde/(\d+)/minute/(\d+)`)

// Slot represents a free time slot on one day
type Slot struct {
	Date   calendar.Date `json:"date"`
	Hour   int           `json:"hour"`
	Minute int           `json:"minute"`
}

// String formats the slot as H:MM
func (s Slot) String() string {
	return fmt.Sprintf("%d:%02d", s.Hour, s.Minute)
}

// SlotTimes extracts the H:MM times from slots
func SlotTimes(slots []Slot) []string {
	times := make([]string, len(slots))
	for i, slot := range slots {
		times[i] = slot.String()
	}
	return times
}

// ParseError reports markup that lacks the structure a page is expected to have
type ParseError struct {
	What string
	Err  error
}

func (e *ParseError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("parse %s: %v", e.What, e.Err)
	}
	return "parse " + e.What
}

func (e *ParseError) Unwrap() error { return e.Err }

func parse(markup string) (*goquery.Document, error) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewBufferString(markup))
	if err != nil {
		return nil, &ParseError{What: "document", Err: err}
	}
	return doc, nil
}

// SelectedDate returns the date the calendar page currently shows
func SelectedDate(markup string) (calendar.Date, error) {
	doc, err := parse(markup)
	if err != nil {
		return calendar.Date{}, err
	}
	input := doc.Find(selectedDateSelector).First()
	value, ok := input.Attr("value")
	if !ok {
		return calendar.Date{}, &ParseError{What: "selected date", Err: fmt.Errorf("%s not found", selectedDateSelector)}
	}
	d, err := calendar.ParseDate(strings.TrimSpace(value))
	if err != nil {
		return calendar.Date{}, &ParseError{What: "selected date", Err: err}
	}
	return d, nil
}

// Slots returns the bookable slots of the slot table in document order.
// A table without slot links is a fully booked day and yields no slots.
func Slots(markup string) ([]Slot, error) {
	doc, err := parse(markup)
	if err != nil {
		return nil, err
	}
	table := doc.Find(slotTableSelector).First()
	if table.Length() == 0 {
		return nil, &ParseError{What: "slot table", Err: fmt.Errorf("%s not found", slotTableSelector)}
	}

	slots := []Slot{}
	table.Find("a").Each(func(_ int, a *goquery.Selection) {
		groups := slotHrefPattern.FindStringSubmatch(a.AttrOr("href", ""))
		if groups == nil {
			return
		}
		n, ok := atois(groups[1:])
		if !ok {
			return
		}
		slots = append(slots, Slot{
			Date:   calendar.Date{Year: n[0], Month: time.Month(n[1]), Day: n[2]},
			Hour:   n[3],
			Minute: n[4],
		})
	})
	return slots, nil
}

// AvailableTimes returns the free slots of the page formatted as H:MM
func AvailableTimes(markup string) ([]string, error) {
	slots, err := Slots(markup)
	if err != nil {
		return nil, err
	}
	return SlotTimes(slots), nil
}

// CalendarDays returns the clickable day numbers of the month widget.
//
// The site renders the widget from script and ships a <noscript> fallback, so the
// captured markup often lacks the cells. Use it for diagnostics only.
func CalendarDays(markup string) ([]int, error) {
	doc, err := parse(markup)
	if err != nil {
		return nil, err
	}
	widget := doc.Find(calendarSelector).First()
	if widget.Length() == 0 {
		return nil, &ParseError{What: "calendar", Err: fmt.Errorf("%s not found", calendarSelector)}
	}

	days := []int{}
	widget.Find(".current-month").Each(func(_ int, cell *goquery.Selection) {
		if cell.HasClass("disabled") {
			return
		}
		day, err := strconv.Atoi(strings.TrimSpace(cell.Text()))
		if err != nil {
			return
		}
		days = append(days, day)
	})
	return days, nil
}

// atois converts every field or reports false when one does not fit an int
func atois(fields []string) ([]int, bool) {
	n := make([]int, len(fields))
	for i, f := range fields {
		v, err := strconv.Atoi(f)
		if err != nil {
			return nil, false
		}
		n[i] = v
	}
	return n, true
}
