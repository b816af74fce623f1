package updater

import (
	"time"

	log "github.com/sirupsen/logrus"
)

// Scheduler runs the automatic update check cadence. It owns a single
// one-shot timer that is re-armed only after the previous check has fully
// completed, so checks never overlap: a successful check schedules the next
// one a full interval out, a failed one a retry interval out.
//
// The timer and the bookkeeping fields are touched on the coordinator
// goroutine only. The check itself runs on its own worker goroutine.
type Scheduler struct {
	updater *Updater

	timer   *time.Timer
	active  bool
	running bool

	// ResultFunc, when set, receives the outcome of every surfaced check on
	// the coordinator goroutine. info is nil when the server knows no update
	// for the running version. Automatic checks that found the version the
	// user asked not to be reminded about are not surfaced.
	ResultFunc func(info *UpdateInfo, auto bool)

	// ErrorFunc, when set, receives check failures on the coordinator
	// goroutine.
	ErrorFunc func(err error, auto bool)
}

func NewScheduler(u *Updater) *Scheduler {
	return &Scheduler{updater: u}
}

// Start arms the automatic cadence. The first check fires immediately when a
// pending update should be surfaced on startup or when the last check is
// older than a full interval, otherwise whenever the interval since the last
// check runs out.
func (s *Scheduler) Start() {
	s.updater.coordinator.CallAfter(func() {
		s.active = true
		delay := s.initialDelay(time.Now())
		log.Debugf("next automatic update check in %s", delay)
		s.arm(delay)
	})
}

// Stop disarms the cadence. A check already in flight still completes, but
// it will not re-arm the timer.
func (s *Scheduler) Stop() {
	s.updater.coordinator.CallAfter(func() {
		s.active = false
		if s.timer != nil {
			s.timer.Stop()
		}
	})
}

// CheckNow triggers a manual check outside the automatic cadence. It is
// ignored when a check is already in flight.
func (s *Scheduler) CheckNow() {
	s.updater.coordinator.CallAfter(func() {
		s.begin(false)
	})
}

// initialDelay returns how long to wait before the first automatic check. A
// system clock that moved backwards counts as no time elapsed.
func (s *Scheduler) initialDelay(now time.Time) time.Duration {
	if s.updater.Config.StartupNotification && s.updater.HasPendingUpdate() {
		return 0
	}

	interval := secToDuration(s.updater.Config.CheckInterval)
	elapsed := now.Sub(time.Unix(s.updater.State().LastCheck, 0))
	if elapsed < 0 {
		elapsed = 0
	}
	if elapsed > interval {
		elapsed = interval
	}
	return interval - elapsed
}

// arm must run on the coordinator goroutine.
func (s *Scheduler) arm(delay time.Duration) {
	if !s.active {
		return
	}
	if s.timer != nil {
		s.timer.Stop()
	}
	s.timer = time.AfterFunc(delay, func() {
		s.updater.coordinator.CallAfter(func() {
			s.begin(true)
		})
	})
}

// begin must run on the coordinator goroutine.
func (s *Scheduler) begin(auto bool) {
	if auto && !s.active {
		return
	}
	if s.running {
		log.Debugln("an update check is already running, not starting another one")
		return
	}
	s.running = true

	// a fresh id every calendar month keeps the usage statistics anonymous
	s.updater.setState(s.updater.State().rotateIDIfStale(time.Now()))

	go func() {
		info, err := s.updater.CheckForUpdate(auto)
		s.updater.coordinator.CallAfter(func() {
			s.finish(info, err, auto)
		})
	}()
}

// finish must run on the coordinator goroutine.
func (s *Scheduler) finish(info *UpdateInfo, err error, auto bool) {
	s.running = false

	if err != nil {
		log.WithError(err).Warnln("update check failed")
		if s.ErrorFunc != nil {
			s.ErrorFunc(err, auto)
		}
		if s.active {
			s.arm(secToDuration(s.updater.Config.RetryInterval))
		}
		return
	}

	state := s.updater.State()
	lastRemindVersion := state.DontRemindVersion
	state.LastCheck = time.Now().Unix()
	if info != nil {
		state.DontRemindVersion = info.Version
	}
	s.updater.setState(state)

	// the surfacing decision looks at the suppression marker from before
	// this check, so a newly discovered version comes through exactly once
	surface := !auto || (info != nil && info.Version != lastRemindVersion)
	if auto && info != nil && !surface {
		log.Debugf("version %s was already surfaced, keeping quiet about it", info.Version)
	}
	if surface && s.ResultFunc != nil {
		s.ResultFunc(info, auto)
	}

	if s.active {
		s.arm(secToDuration(s.updater.Config.CheckInterval))
	}
}
