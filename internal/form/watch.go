package form

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"

	appLog "dayscounter/internal/log"
)

// Watch advances the form's Today on the cron schedule spec (standard
// five-field syntax) until ctx is done. now supplies the clock; it defaults
// to time.Now in loc.
func Watch(ctx context.Context, f *Form, spec string, loc *time.Location, now func() time.Time, logger *appLog.Logger) error {
	if loc == nil {
		loc = time.Local
	}
	if now == nil {
		now = func() time.Time { return time.Now().In(loc) }
	}

	c := cron.New(cron.WithLocation(loc))
	if _, err := c.AddFunc(spec, func() {
		today := now()
		logger.Debug("today refreshed", "today", today.Format(time.DateOnly))
		f.SetToday(today)
	}); err != nil {
		return fmt.Errorf("form: today refresh schedule %q: %w", spec, err)
	}

	c.Start()
	logger.Info("watch started", "schedule", spec, "timezone", loc.String())

	<-ctx.Done()

	stopped := c.Stop()
	<-stopped.Done()
	logger.Info("watch stopped")
	return nil
}
