package measure

import "time"

// sleepSnapshot holds the state carried across a deep sleep. On hardware a
// deep sleep can zero peripheral and scratch state; recovery rebuilds from
// this instead of trusting whatever survived.
type sleepSnapshot struct {
	flags    uint32
	interval time.Duration
	valid    bool
}

// maybeDeepSleep runs on each Sleeping poll while the interval timer is
// still pending. When every gate opens it performs a full deep sleep cycle
// inline: alert, prepare, sleep, recover.
func (l *Loop) maybeDeepSleep() {
	now := l.cfg.Clock.Now()
	left := l.timer.remaining(now)
	if !l.checkDeepSleep(left) {
		return
	}
	l.doSleepAlert(true)
	l.deepSleepPrepare()
	l.cfg.Power.DeepSleep(left)
	l.deepSleepRecovery()
}

// checkDeepSleep gates deep sleep: never with a transmission pending, never
// for a remainder too short to be worth the transition cost, and only when
// the platform agrees.
func (l *Loop) checkDeepSleep(remaining time.Duration) bool {
	if l.tx.pending() {
		return false
	}
	if remaining < l.cfg.MinDeepSleep {
		return false
	}
	return l.cfg.Power.CanDeepSleep()
}

// doSleepAlert emits the sleep notice, once per session. The notice exists
// so an operator watching the console knows the node going quiet is policy,
// not a crash.
func (l *Loop) doSleepAlert(deep bool) {
	if l.fl.has(flagSleepNoted) {
		return
	}
	l.fl.set(flagSleepNoted)
	l.cfg.Status.SleepNotice(l.timer.remaining(l.cfg.Clock.Now()), deep)
}

// deepSleepPrepare snapshots the state that must survive the power
// transition.
func (l *Loop) deepSleepPrepare() {
	l.saved = sleepSnapshot{
		flags:    l.fl.load(),
		interval: l.curInterval,
		valid:    true,
	}
}

// deepSleepRecovery restores the snapshot and treats the interval timer as
// expired: the monotonic clock may have stopped or jumped across the sleep,
// so a stale delta is never trusted. Flags restore by union, which keeps any
// request that arrived while the manager was sleeping on the host.
func (l *Loop) deepSleepRecovery() {
	if l.saved.valid {
		l.fl.set(l.saved.flags)
		l.curInterval = l.saved.interval
		l.saved = sleepSnapshot{}
	}
	l.timer.presumeFired()
}
