// Package ics writes single full-day events as iCalendar (RFC 5545) files.
package ics

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"os"
	"strings"
	"time"
	"unicode"

	ical "github.com/arran4/golang-ical"

	"dayscounter/internal/dates"
	"dayscounter/internal/model"
)

const (
	// ProductID is written as the calendar's PRODID.
	ProductID = "-//DaysCounterApp//EN"
	// UIDDomain is the right-hand side of every generated UID.
	UIDDomain = "dayscounter"

	dateLayout  = "20060102"
	stampLayout = "20060102T150405"

	// RFC 5545 content lines are folded at 75 octets.
	maxLineLength = 75
)

// Exporter renders and writes events. The zero value uses time.Now.
type Exporter struct {
	// Now supplies the generation time used for DTSTAMP and the UID.
	Now func() time.Time
}

// CreateCalendarFile renders a full-day event and writes it to filePath
// using the wall clock.
func CreateCalendarFile(title string, date time.Time, description, filePath string) error {
	var e Exporter
	return e.WriteFile(model.Event{Title: title, Date: date, Description: description}, filePath)
}

func (e *Exporter) now() time.Time {
	if e.Now != nil {
		return e.Now()
	}
	return time.Now()
}

// UID derives the event UID from the generation time and the title. It is
// unique per second and title on one machine, nothing more.
func UID(title string, generated time.Time) string {
	sum := sha256.Sum256([]byte(title))
	return generated.Format(stampLayout) + "-" + hex.EncodeToString(sum[:4]) + "@" + UIDDomain
}

// Calendar builds the VCALENDAR with one VEVENT for ev.
func (e *Exporter) Calendar(ev model.Event) *ical.Calendar {
	generated := e.now()
	start := dates.Truncate(ev.Date)
	end := dates.AddDays(start, 1)

	cal := ical.NewCalendarFor("DaysCounterApp")
	cal.SetVersion("2.0")
	cal.SetProductId(ProductID)

	vevent := cal.AddEvent(UID(ev.Title, generated))
	vevent.SetProperty(ical.ComponentPropertyDtstamp, generated.Format(stampLayout))
	// Full-day events end exclusively on the following day.
	vevent.SetProperty(ical.ComponentPropertyDtStart, start.Format(dateLayout), ical.WithValue(string(ical.ValueDataTypeDate)))
	vevent.SetProperty(ical.ComponentPropertyDtEnd, end.Format(dateLayout), ical.WithValue(string(ical.ValueDataTypeDate)))
	vevent.SetSummary(ev.Title)
	vevent.SetDescription(ev.Description)
	return cal
}

// Render returns the iCalendar text for ev with \n line endings.
func (e *Exporter) Render(ev model.Event) string {
	return e.Calendar(ev).Serialize(ical.WithNewLine("\n"), ical.WithLineLength(maxLineLength))
}

// WriteFile renders ev and creates or truncates filePath with the UTF-8
// result. A failed write may leave a partial file behind.
func (e *Exporter) WriteFile(ev model.Event, filePath string) error {
	_, err := e.Export(ev, filePath)
	return err
}

// Export is WriteFile that also returns the text it wrote, so callers can
// hand the same bytes to a client without reading the file back.
func (e *Exporter) Export(ev model.Event, filePath string) (string, error) {
	if filePath == "" {
		return "", fmt.Errorf("ics: output path is empty")
	}
	text := e.Render(ev)
	if err := os.WriteFile(filePath, []byte(text), 0o644); err != nil {
		return "", fmt.Errorf("ics: write %s: %w", filePath, err)
	}
	return text, nil
}

// FileName suggests "<yyyyMMdd>-<slug>.ics" for ev.
func FileName(ev model.Event) string {
	slug := strings.Map(func(r rune) rune {
		switch {
		case unicode.IsLetter(r), unicode.IsDigit(r):
			return unicode.ToLower(r)
		case r == '-', r == '_', unicode.IsSpace(r):
			return '-'
		default:
			return -1
		}
	}, strings.TrimSpace(ev.Title))
	for strings.Contains(slug, "--") {
		slug = strings.ReplaceAll(slug, "--", "-")
	}
	slug = strings.Trim(slug, "-")
	if slug == "" {
		slug = "event"
	}
	return dates.Truncate(ev.Date).Format(dateLayout) + "-" + slug + ".ics"
}
