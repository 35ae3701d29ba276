// Package opener asks the operating system to open a file with its
// default application.
package opener

import (
	"fmt"

	"github.com/skratchdot/open-golang/open"

	appLog "dayscounter/internal/log"
)

// Opener launches the platform's default application for a file without
// waiting for it. Failures are reported and returned.
type Opener struct {
	reporter appLog.Reporter
	start    func(path string) error
}

// New returns an Opener backed by open.Start.
func New(reporter appLog.Reporter) *Opener {
	return &Opener{reporter: reporter, start: open.Start}
}

// Open launches the default application for path.
func (o *Opener) Open(path string) error {
	if err := o.start(path); err != nil {
		err = fmt.Errorf("opener: %s: %w", path, err)
		o.reporter.Error("open exported file failed", err, "path", path)
		return err
	}
	return nil
}
