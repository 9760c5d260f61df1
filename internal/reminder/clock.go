package reminder

import "time"

// Timer is the subset of *time.Timer the scheduler needs. It is an alias so
// fake clocks can satisfy Clock without importing this package.
type Timer = interface {
	Stop() bool
}

// Clock abstracts time so tests can drive expiry deterministically.
type Clock interface {
	Now() time.Time
	AfterFunc(d time.Duration, f func()) Timer
}

type realClock struct{}

func (realClock) Now() time.Time { return time.Now() }

func (realClock) AfterFunc(d time.Duration, f func()) Timer { return time.AfterFunc(d, f) }

// RealClock returns the wall clock.
func RealClock() Clock { return realClock{} }
