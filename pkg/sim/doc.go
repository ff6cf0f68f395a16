// Package sim provides a minimal single-threaded discrete-event scheduler
// driven by virtual time.
//
// Components register callbacks with Schedule and the simulator dispatches
// them in strict time order from Run or RunUntil. Because everything runs on
// one goroutine, components driven by the simulator need no locking: only
// one callback mutates state at any moment.
//
// Time is modeled as a time.Duration offset from simulation start rather
// than wall-clock time; the clock only moves when an event fires.
package sim
