package sim

import "time"

// VTimeInSec is a point in time, counted in seconds.
//
// Nothing in this project runs on virtual time; the name is kept so that
// tracers and recorders read time the same way regardless of the source.
type VTimeInSec float64

// A TimeTeller can tell the current time.
type TimeTeller interface {
	CurrentTime() VTimeInSec
}

var processStart = time.Now()

// Now returns the number of seconds elapsed since the process started.
func Now() VTimeInSec {
	return VTimeInSec(time.Since(processStart).Seconds())
}

// WallClock is a TimeTeller that reads the process clock.
type WallClock struct{}

// CurrentTime returns the seconds elapsed since the process started.
func (WallClock) CurrentTime() VTimeInSec {
	return Now()
}
