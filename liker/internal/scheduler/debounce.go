package scheduler

import "time"

// debouncer fires once after window has passed without a new add. It is
// owned by the scheduler loop and not safe for concurrent use.
type debouncer struct {
	window  time.Duration
	timer   *time.Timer
	timerCh <-chan time.Time
	src     Source
}

func newDebouncer(window time.Duration) *debouncer {
	return &debouncer{window: window}
}

// add records src and (re)starts the window.
func (d *debouncer) add(src Source) {
	d.src = src
	if d.timer != nil {
		d.timer.Stop()
	}
	d.timer = time.NewTimer(d.window)
	d.timerCh = d.timer.C
}

// timerC fires when the window expires; nil while idle.
func (d *debouncer) timerC() <-chan time.Time {
	return d.timerCh
}

// expire clears the timer after it fired and returns the last source.
func (d *debouncer) expire() Source {
	d.timer = nil
	d.timerCh = nil
	return d.src
}

func (d *debouncer) stop() {
	if d.timer != nil {
		d.timer.Stop()
		d.timer = nil
		d.timerCh = nil
	}
}
