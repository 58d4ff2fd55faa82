package watch

import (
	"strings"
	"time"
)

// activityWindow is how many one-second buckets the activity bar shows.
const activityWindow = 20

var activityLevels = []rune("▁▂▃▄▅▆▇█")

// Activity counts catalog changes per second over a sliding window.
type Activity struct {
	buckets   [activityWindow]int
	head      int
	current   time.Time
	lastEvent time.Time
}

// Record counts one change at t.
func (a *Activity) Record(t time.Time) {
	a.Advance(t)
	a.buckets[a.head]++
	a.lastEvent = t
}

// Advance moves the window so that its newest bucket covers now.
func (a *Activity) Advance(now time.Time) {
	sec := now.Truncate(time.Second)
	if a.current.IsZero() {
		a.current = sec
		return
	}
	steps := int(sec.Sub(a.current) / time.Second)
	if steps <= 0 {
		return
	}
	if steps > activityWindow {
		steps = activityWindow
	}
	for range steps {
		a.head = (a.head + 1) % activityWindow
		a.buckets[a.head] = 0
	}
	a.current = sec
}

// Total is the number of changes inside the window.
func (a Activity) Total() int {
	n := 0
	for _, c := range a.buckets {
		n += c
	}
	return n
}

func (a Activity) LastEvent() time.Time { return a.lastEvent }

// Render draws the window oldest-first as a bar of block characters.
func (a Activity) Render(theme Theme) string {
	peak := 0
	for _, c := range a.buckets {
		peak = max(peak, c)
	}

	var b strings.Builder
	for i := 1; i <= activityWindow; i++ {
		c := a.buckets[(a.head+i)%activityWindow]
		if c == 0 {
			b.WriteString(theme.ActivityOff.Render(string(activityLevels[0])))
			continue
		}
		level := max(1, c*(len(activityLevels)-1)/peak)
		b.WriteString(theme.ActivityOn.Render(string(activityLevels[level])))
	}
	return b.String()
}
