package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"cloudeng.io/cmdutil/subcmd"
	"cloudeng.io/errors"

	"dayscounter/internal/config"
	"dayscounter/internal/dates"
	"dayscounter/internal/form"
	"dayscounter/internal/ics"
	appLog "dayscounter/internal/log"
	"dayscounter/internal/model"
	"dayscounter/internal/opener"
	"dayscounter/internal/web"
)

// app bundles what every sub-command needs once the config is loaded.
type app struct {
	cfg      *config.Config
	logger   *appLog.Logger
	exporter *ics.Exporter
	opener   *opener.Opener
	out      io.Writer
	now      func() time.Time
}

func newApp(g globalFlags, out io.Writer) (*app, error) {
	cfg, err := config.Load(g.ConfigPath)
	if err != nil {
		if cfg == nil {
			return nil, err
		}
		// First-run save failed; keep going with defaults.
		fmt.Fprintf(os.Stderr, "warning: could not save default config: %v\n", err)
	}
	level := cfg.LogLevel
	if g.LogLevel != "" {
		level = g.LogLevel
	}
	logger := appLog.NewStderr(appLog.ParseLevel(level))
	logger.Debug("effective config",
		"config_path", g.ConfigPath,
		"timezone", cfg.Timezone,
		"date_layout", cfg.DateLayout,
		"export_dir", cfg.ExportDir,
		"open_after_export", cfg.OpenAfterExport,
	)
	loc := cfg.Location()
	return &app{
		cfg:      cfg,
		logger:   logger,
		exporter: &ics.Exporter{},
		opener:   opener.New(logger),
		out:      out,
		now:      func() time.Time { return time.Now().In(loc) },
	}, nil
}

// parseDates parses every value and reports all failures together.
func (a *app) parseDates(values ...string) ([]time.Time, error) {
	errs := &errors.M{}
	out := make([]time.Time, len(values))
	for i, v := range values {
		t, err := a.cfg.ParseDate(v)
		errs.Append(err)
		out[i] = t
	}
	return out, errs.Err()
}

func (a *app) dateOrToday(v string) (time.Time, error) {
	if v == "" {
		return dates.Truncate(a.now()), nil
	}
	return a.cfg.ParseDate(v)
}

func (a *app) printf(format string, args ...any) {
	fmt.Fprintf(a.out, format, args...)
}

type noFlags struct{}

func diffCmd() *subcmd.Command {
	cmd := subcmd.NewCommand("diff", subcmd.MustRegisterFlagStruct(&noFlags{}, nil, nil), runDiff, subcmd.ExactlyNumArguments(2))
	cmd.Document(`print the number of days between two dates.`, "<start>", "<end>")
	return cmd
}

func runDiff(_ context.Context, _ any, args []string) error {
	a, err := newApp(globals, os.Stdout)
	if err != nil {
		return err
	}
	return a.diff(args[0], args[1])
}

func (a *app) diff(start, end string) error {
	ds, err := a.parseDates(start, end)
	if err != nil {
		return err
	}
	a.printf("Difference %d days.\n", dates.DaysBetween(ds[0], ds[1]))
	return nil
}

func addCmd() *subcmd.Command {
	cmd := subcmd.NewCommand("add", subcmd.MustRegisterFlagStruct(&noFlags{}, nil, nil), runAdd, subcmd.ExactlyNumArguments(2))
	cmd.Document(`add a (possibly negative or fractional) number of days to a date.`, "<start>", "<days>")
	return cmd
}

func runAdd(_ context.Context, _ any, args []string) error {
	a, err := newApp(globals, os.Stdout)
	if err != nil {
		return err
	}
	return a.add(args[0], args[1])
}

func (a *app) add(start, days string) error {
	t, err := a.cfg.ParseDate(start)
	if err != nil {
		return err
	}
	n, err := dates.ParseDays(days)
	if err != nil {
		return err
	}
	a.printf("Result date %s.\n", dates.AddDays(t, n).Format(a.cfg.DateLayout))
	return nil
}

type ageFlags struct {
	Today string `subcmd:"today,,reference date instead of the current day"`
}

func ageCmd() *subcmd.Command {
	cmd := subcmd.NewCommand("age", subcmd.MustRegisterFlagStruct(&ageFlags{}, nil, nil), runAge, subcmd.ExactlyNumArguments(1))
	cmd.Document(`print the age in days of someone born on the given date, and the days until their next birthday.`, "<birth-date>")
	return cmd
}

func runAge(_ context.Context, values any, args []string) error {
	fv := values.(*ageFlags)
	a, err := newApp(globals, os.Stdout)
	if err != nil {
		return err
	}
	return a.age(args[0], fv.Today)
}

func (a *app) age(birth, today string) error {
	b, err := a.cfg.ParseDate(birth)
	if err != nil {
		return err
	}
	t, err := a.dateOrToday(today)
	if err != nil {
		return err
	}
	out := form.Compute(form.Inputs{Birth: b, Today: t})
	a.printf("Age %d days.\n", out.AgeDays)
	if !out.NextBirthday.IsZero() {
		a.printf("Next birthday %s, in %d days.\n", out.NextBirthday.Format(a.cfg.DateLayout), out.DaysToBirthday)
	}
	return nil
}

func doyCmd() *subcmd.Command {
	cmd := subcmd.NewCommand("doy", subcmd.MustRegisterFlagStruct(&noFlags{}, nil, nil), runDoy, subcmd.OptionalSingleArgument())
	cmd.Document(`print the ordinal day of the year for a date (default today).`, "[date]")
	return cmd
}

func runDoy(_ context.Context, _ any, args []string) error {
	a, err := newApp(globals, os.Stdout)
	if err != nil {
		return err
	}
	var date string
	if len(args) == 1 {
		date = args[0]
	}
	return a.doy(date)
}

func (a *app) doy(date string) error {
	t, err := a.dateOrToday(date)
	if err != nil {
		return err
	}
	a.printf("Day %d of the year.\n", dates.DayOfYear(t))
	return nil
}

type exportFlags struct {
	Title       string `subcmd:"title,,event title"`
	Date        string `subcmd:"date,,event date (default today)"`
	Description string `subcmd:"description,,event description"`
	Out         string `subcmd:"out,,output .ics path; defaults to <export_dir>/<yyyymmdd>-<title>.ics"`
	Open        bool   `subcmd:"open,false,open the file with the default calendar application"`
}

func exportCmd() *subcmd.Command {
	cmd := subcmd.NewCommand("export", subcmd.MustRegisterFlagStruct(&exportFlags{}, nil, nil), runExport, subcmd.WithoutArguments())
	cmd.Document(`write a single full-day event as an iCalendar (.ics) file.`)
	return cmd
}

func runExport(_ context.Context, values any, _ []string) error {
	fv := values.(*exportFlags)
	a, err := newApp(globals, os.Stdout)
	if err != nil {
		return err
	}
	return a.export(*fv)
}

func (a *app) export(fv exportFlags) error {
	if fv.Title == "" {
		return errors.New("--title is required")
	}
	date, err := a.dateOrToday(fv.Date)
	if err != nil {
		return err
	}
	ev := model.Event{Title: fv.Title, Date: date, Description: fv.Description}
	path := fv.Out
	if path == "" {
		if err := os.MkdirAll(a.cfg.ExportDir, 0o755); err != nil {
			a.logger.Error("create export dir failed", err, "dir", a.cfg.ExportDir)
			return errors.New("could not create the export directory")
		}
		path = filepath.Join(a.cfg.ExportDir, ics.FileName(ev))
	}
	if err := a.exporter.WriteFile(ev, path); err != nil {
		a.logger.Error("export failed", err, "path", path, "title", fv.Title)
		return fmt.Errorf("could not write the calendar file %s", path)
	}
	a.logger.Info("event exported", "path", path)
	a.printf("%s\n", path)
	if fv.Open || a.cfg.OpenAfterExport {
		// Best effort: the opener already reported any failure.
		_ = a.opener.Open(path)
	}
	return nil
}

type watchFlags struct {
	Start string `subcmd:"start,,start date for the difference and the offset"`
	End   string `subcmd:"end,,end date for the difference"`
	Days  string `subcmd:"days,0,days to add to the start date"`
	Birth string `subcmd:"birth,,birth date for age and next birthday"`
}

func watchCmd() *subcmd.Command {
	cmd := subcmd.NewCommand("watch", subcmd.MustRegisterFlagStruct(&watchFlags{}, nil, nil), runWatch, subcmd.WithoutArguments())
	cmd.Document(`print the counter labels and reprint them whenever the day changes.`)
	return cmd
}

func runWatch(ctx context.Context, values any, _ []string) error {
	fv := values.(*watchFlags)
	a, err := newApp(globals, os.Stdout)
	if err != nil {
		return err
	}
	f, err := a.newForm(*fv)
	if err != nil {
		return err
	}
	cancel := f.Subscribe(a.printLabels)
	defer cancel()
	return form.Watch(ctx, f, a.cfg.TodayRefresh, a.cfg.Location(), a.now, a.logger)
}

func (a *app) newForm(fv watchFlags) (*form.Form, error) {
	in := form.Inputs{Today: dates.Truncate(a.now())}
	errs := &errors.M{}
	if fv.Days != "" {
		n, err := dates.ParseDays(fv.Days)
		errs.Append(err)
		in.Span = n
	}
	for _, field := range []struct {
		value string
		dst   *time.Time
	}{
		{fv.Start, &in.Start},
		{fv.End, &in.End},
		{fv.Birth, &in.Birth},
	} {
		if field.value == "" {
			continue
		}
		t, err := a.cfg.ParseDate(field.value)
		errs.Append(err)
		*field.dst = t
	}
	if err := errs.Err(); err != nil {
		return nil, err
	}
	return form.New(in), nil
}

func (a *app) printLabels(out form.Outputs) {
	for _, l := range form.Labels(out, a.cfg.DateLayout) {
		a.printf("%s\n", l)
	}
	a.printf("\n")
}

func serveCmd() *subcmd.Command {
	type serveFlags struct {
		Listen string `subcmd:"listen,,HTTP listen address (overrides config if set)"`
	}
	cmd := subcmd.NewCommand("serve", subcmd.MustRegisterFlagStruct(&serveFlags{}, nil, nil),
		func(ctx context.Context, values any, _ []string) error {
			fv := values.(*serveFlags)
			a, err := newApp(globals, os.Stdout)
			if err != nil {
				return err
			}
			// CLI --listen overrides config file listen if provided.
			if fv.Listen != "" {
				a.cfg.Listen = fv.Listen
			}
			return web.NewServer(a.cfg, a.logger, a.exporter).ListenAndServe(ctx)
		}, subcmd.WithoutArguments())
	cmd.Document(`serve the date operations and the calendar export over HTTP.`)
	return cmd
}
