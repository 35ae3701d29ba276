// Package form holds the counter's input fields and derives its output
// labels from them. Every input change recomputes the outputs and pushes
// them to subscribers.
package form

import (
	"fmt"
	"sync"
	"time"

	"dayscounter/internal/dates"
)

// Inputs are the values a user can edit. Zero dates are treated as unset.
type Inputs struct {
	Start time.Time
	End   time.Time
	Span  float64
	Birth time.Time
	Today time.Time
}

// Outputs are derived from Inputs by Compute.
type Outputs struct {
	Difference     int
	Result         time.Time
	AgeDays        int
	DayOfYear      int
	NextBirthday   time.Time
	DaysToBirthday int
	HasBirth       bool
}

// Compute derives Outputs from in without side effects.
func Compute(in Inputs) Outputs {
	var out Outputs
	if !in.Start.IsZero() && !in.End.IsZero() {
		out.Difference = dates.DaysBetween(in.Start, in.End)
	}
	if !in.Start.IsZero() {
		out.Result = dates.AddDays(in.Start, in.Span)
	}
	if !in.Today.IsZero() {
		out.DayOfYear = dates.DayOfYear(in.Today)
	}
	if !in.Birth.IsZero() && !in.Today.IsZero() {
		out.HasBirth = true
		out.AgeDays = dates.AgeInDays(in.Birth, in.Today)
		if next, days, err := dates.NextAnniversary(in.Birth, in.Today); err == nil {
			out.NextBirthday = next
			out.DaysToBirthday = days
		}
	}
	return out
}

// Labels renders out for display using layout for dates.
func Labels(out Outputs, layout string) []string {
	labels := []string{
		fmt.Sprintf("Difference %d days.", out.Difference),
	}
	if !out.Result.IsZero() {
		labels = append(labels, fmt.Sprintf("Result date %s.", out.Result.Format(layout)))
	}
	if out.DayOfYear > 0 {
		labels = append(labels, fmt.Sprintf("Day %d of the year.", out.DayOfYear))
	}
	if out.HasBirth {
		labels = append(labels, fmt.Sprintf("Age %d days.", out.AgeDays))
		if !out.NextBirthday.IsZero() {
			labels = append(labels, fmt.Sprintf("Next birthday %s, in %d days.", out.NextBirthday.Format(layout), out.DaysToBirthday))
		}
	}
	return labels
}

// Form is the mutable counterpart of Inputs. It is safe for concurrent use.
// Subscribers are called synchronously, in subscription order, and see
// outputs in the order they were computed. A subscriber must not call back
// into the Form's setters.
type Form struct {
	// notifyMu is held from compute through notification.
	notifyMu sync.Mutex

	mu     sync.Mutex
	in     Inputs
	out    Outputs
	nextID int
	subs   map[int]func(Outputs)
	order  []int
}

// New returns a Form initialised with in.
func New(in Inputs) *Form {
	return &Form{in: in, out: Compute(in), subs: map[int]func(Outputs){}}
}

// Subscribe registers fn and calls it once with the current outputs.
// The returned function removes the subscription.
func (f *Form) Subscribe(fn func(Outputs)) (cancel func()) {
	f.notifyMu.Lock()
	defer f.notifyMu.Unlock()
	f.mu.Lock()
	id := f.nextID
	f.nextID++
	f.subs[id] = fn
	f.order = append(f.order, id)
	out := f.out
	f.mu.Unlock()
	fn(out)
	return func() {
		f.mu.Lock()
		defer f.mu.Unlock()
		delete(f.subs, id)
		for i, o := range f.order {
			if o == id {
				f.order = append(f.order[:i], f.order[i+1:]...)
				break
			}
		}
	}
}

// Inputs returns a copy of the current inputs.
func (f *Form) Inputs() Inputs {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.in
}

// Outputs returns the most recently computed outputs.
func (f *Form) Outputs() Outputs {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.out
}

func (f *Form) update(mutate func(*Inputs)) {
	f.notifyMu.Lock()
	defer f.notifyMu.Unlock()
	f.mu.Lock()
	mutate(&f.in)
	f.out = Compute(f.in)
	out := f.out
	subs := make([]func(Outputs), 0, len(f.order))
	for _, id := range f.order {
		subs = append(subs, f.subs[id])
	}
	f.mu.Unlock()
	for _, fn := range subs {
		fn(out)
	}
}

func (f *Form) SetStart(t time.Time) { f.update(func(in *Inputs) { in.Start = t }) }

func (f *Form) SetEnd(t time.Time) { f.update(func(in *Inputs) { in.End = t }) }

func (f *Form) SetSpan(days float64) { f.update(func(in *Inputs) { in.Span = days }) }

func (f *Form) SetBirth(t time.Time) { f.update(func(in *Inputs) { in.Birth = t }) }

func (f *Form) SetToday(t time.Time) { f.update(func(in *Inputs) { in.Today = t }) }
