package ics

import (
	"bytes"
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"testing"
	"time"

	ical "github.com/arran4/golang-ical"
	goical "github.com/emersion/go-ical"

	"dayscounter/internal/model"
)

func fixedClock(t time.Time) func() time.Time {
	return func() time.Time { return t }
}

var generatedAt = time.Date(2024, time.February, 10, 14, 30, 5, 0, time.UTC)

func TestRenderExactLayout(t *testing.T) {
	e := &Exporter{Now: fixedClock(generatedAt)}
	ev := model.Event{Title: "Test", Date: time.Date(2024, time.March, 1, 17, 45, 0, 0, time.UTC), Description: "Desc"}
	got := strings.Split(strings.TrimRight(e.Render(ev), "\n"), "\n")
	want := []string{
		"BEGIN:VCALENDAR",
		"VERSION:2.0",
		"PRODID:-//DaysCounterApp//EN",
		"BEGIN:VEVENT",
		"UID:" + UID("Test", generatedAt),
		"DTSTAMP:20240210T143005",
		"DTSTART;VALUE=DATE:20240301",
		"DTEND;VALUE=DATE:20240302",
		"SUMMARY:Test",
		"DESCRIPTION:Desc",
		"END:VEVENT",
		"END:VCALENDAR",
	}
	if len(got) != len(want) {
		t.Fatalf("got %d lines, want %d:\n%s", len(got), len(want), strings.Join(got, "\n"))
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("line %d: got %q, want %q", i, got[i], want[i])
		}
	}
}

func TestUIDFormat(t *testing.T) {
	uid := UID("Test", generatedAt)
	if !strings.HasPrefix(uid, "20240210T143005-") || !strings.HasSuffix(uid, "@dayscounter") {
		t.Errorf("unexpected UID %q", uid)
	}
	if UID("Test", generatedAt) != uid {
		t.Error("UID is not deterministic for the same inputs")
	}
	if UID("Other", generatedAt) == uid {
		t.Error("UID does not depend on the title")
	}
}

func TestUIDDiffersOneSecondApart(t *testing.T) {
	dir := t.TempDir()
	ev := model.Event{Title: "Same", Date: time.Date(2024, time.March, 1, 0, 0, 0, 0, time.UTC)}
	var uids []string
	for i, at := range []time.Time{generatedAt, generatedAt.Add(time.Second)} {
		e := &Exporter{Now: fixedClock(at)}
		path := filepath.Join(dir, strconv.Itoa(i)+".ics")
		if err := e.WriteFile(ev, path); err != nil {
			t.Fatal(err)
		}
		uids = append(uids, readUID(t, path))
	}
	if uids[0] == uids[1] {
		t.Errorf("both exports share UID %q", uids[0])
	}
}

func readUID(t *testing.T, path string) string {
	t.Helper()
	f, err := os.Open(path)
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()
	cal, err := ical.ParseCalendar(f)
	if err != nil {
		t.Fatalf("parse %s: %v", path, err)
	}
	events := cal.Events()
	if len(events) != 1 {
		t.Fatalf("got %d events, want 1", len(events))
	}
	return events[0].GetProperty(ical.ComponentPropertyUniqueId).Value
}

func TestCreateCalendarFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "event.ics")
	date := time.Date(2024, time.March, 1, 0, 0, 0, 0, time.UTC)
	if err := CreateCalendarFile("Test", date, "Desc", path); err != nil {
		t.Fatal(err)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	for _, line := range []string{"DTSTART;VALUE=DATE:20240301", "DTEND;VALUE=DATE:20240302"} {
		if !bytes.Contains(data, []byte(line+"\n")) {
			t.Errorf("missing line %q in:\n%s", line, data)
		}
	}
	if bytes.Count(data, []byte("BEGIN:VCALENDAR")) != 1 || bytes.Count(data, []byte("BEGIN:VEVENT")) != 1 {
		t.Errorf("sections emitted more than once:\n%s", data)
	}
}

func TestDTEndCrossesMonthAndYear(t *testing.T) {
	e := &Exporter{Now: fixedClock(generatedAt)}
	for _, tc := range []struct {
		date       time.Time
		start, end string
	}{
		{time.Date(2024, time.February, 29, 0, 0, 0, 0, time.UTC), "20240229", "20240301"},
		{time.Date(2023, time.December, 31, 23, 0, 0, 0, time.UTC), "20231231", "20240101"},
	} {
		out := e.Render(model.Event{Title: "x", Date: tc.date})
		if !strings.Contains(out, "DTSTART;VALUE=DATE:"+tc.start+"\n") || !strings.Contains(out, "DTEND;VALUE=DATE:"+tc.end+"\n") {
			t.Errorf("%v: unexpected output\n%s", tc.date, out)
		}
	}
}

func TestWriteFileOverwrites(t *testing.T) {
	path := filepath.Join(t.TempDir(), "event.ics")
	if err := os.WriteFile(path, bytes.Repeat([]byte("stale "), 1000), 0o644); err != nil {
		t.Fatal(err)
	}
	e := &Exporter{Now: fixedClock(generatedAt)}
	ev := model.Event{Title: "Fresh", Date: generatedAt}
	if err := e.WriteFile(ev, path); err != nil {
		t.Fatal(err)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if string(data) != e.Render(ev) {
		t.Errorf("file was not truncated:\n%s", data)
	}
}

func TestWriteFileUnwritablePath(t *testing.T) {
	path := filepath.Join(t.TempDir(), "missing", "event.ics")
	err := CreateCalendarFile("Test", generatedAt, "Desc", path)
	if err == nil {
		t.Fatal("expected an error")
	}
	if !errors.Is(err, fs.ErrNotExist) {
		t.Errorf("error %v does not wrap fs.ErrNotExist", err)
	}
	if err := CreateCalendarFile("Test", generatedAt, "Desc", ""); err == nil {
		t.Error("expected an error for an empty path")
	}
}

// The output must be readable by an independent iCalendar implementation
// and keep non-ASCII text intact.
func TestOutputParsesWithGoIcal(t *testing.T) {
	path := filepath.Join(t.TempDir(), "event.ics")
	e := &Exporter{Now: fixedClock(generatedAt)}
	ev := model.Event{Title: "Día de la Tierra", Date: time.Date(2024, time.April, 22, 0, 0, 0, 0, time.UTC), Description: "Zürich 🌍"}
	if err := e.WriteFile(ev, path); err != nil {
		t.Fatal(err)
	}
	f, err := os.Open(path)
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()
	cal, err := goical.NewDecoder(f).Decode()
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if p := cal.Props.Get(goical.PropProductID); p == nil || p.Value != ProductID {
		t.Errorf("PRODID = %v", p)
	}
	var events []*goical.Component
	for _, comp := range cal.Children {
		if comp.Name == goical.CompEvent {
			events = append(events, comp)
		}
	}
	if len(events) != 1 {
		t.Fatalf("got %d events, want 1", len(events))
	}
	props := events[0].Props
	start := props.Get(goical.PropDateTimeStart)
	if start == nil || start.Value != "20240422" || start.Params.Get(goical.ParamValue) != string(goical.ValueDate) {
		t.Errorf("DTSTART = %+v", start)
	}
	if end := props.Get(goical.PropDateTimeEnd); end == nil || end.Value != "20240423" {
		t.Errorf("DTEND = %+v", end)
	}
	if s := props.Get(goical.PropSummary); s == nil || s.Value != ev.Title {
		t.Errorf("SUMMARY = %+v", s)
	}
	if d := props.Get(goical.PropDescription); d == nil || d.Value != ev.Description {
		t.Errorf("DESCRIPTION = %+v", d)
	}
}

func TestTextEscaping(t *testing.T) {
	e := &Exporter{Now: fixedClock(generatedAt)}
	ev := model.Event{
		Title:       "a, b; c\nd\\e",
		Date:        time.Date(2024, time.May, 5, 0, 0, 0, 0, time.UTC),
		Description: "x\\y, z;\nw",
	}
	out := e.Render(ev)
	for _, line := range []string{
		`SUMMARY:a\, b\; c\nd\\e`,
		`DESCRIPTION:x\\y\, z\;\nw`,
	} {
		if !strings.Contains(out, "\n"+line+"\n") {
			t.Errorf("missing %q in\n%s", line, out)
		}
	}

	cal, err := goical.NewDecoder(strings.NewReader(out)).Decode()
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	var event *goical.Component
	for _, comp := range cal.Children {
		if comp.Name == goical.CompEvent {
			event = comp
		}
	}
	if event == nil {
		t.Fatal("no VEVENT")
	}
	for prop, want := range map[string]string{goical.PropSummary: ev.Title, goical.PropDescription: ev.Description} {
		p := event.Props.Get(prop)
		if p == nil {
			t.Errorf("%s missing", prop)
			continue
		}
		got, err := p.Text()
		if err != nil || got != want {
			t.Errorf("%s = %q, %v; want %q", prop, got, err, want)
		}
	}
}

func TestFileName(t *testing.T) {
	date := time.Date(2024, time.March, 1, 9, 0, 0, 0, time.UTC)
	for _, tc := range []struct {
		title, want string
	}{
		{"Team Offsite", "20240301-team-offsite.ics"},
		{"  Mom's  birthday!! ", "20240301-moms-birthday.ics"},
		{"../../etc/passwd", "20240301-etcpasswd.ics"},
		{"", "20240301-event.ics"},
		{"Día 1", "20240301-día-1.ics"},
	} {
		if got := FileName(model.Event{Title: tc.title, Date: date}); got != tc.want {
			t.Errorf("FileName(%q) = %q, want %q", tc.title, got, tc.want)
		}
	}
}
