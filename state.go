package updater

import (
	"encoding/gob"
	"encoding/hex"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"github.com/hashicorp/go-version"
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
)

// State is everything the engine keeps between application runs: the
// anonymous install id, when the last successful check happened, which
// version the user asked not to be reminded about and the postponed update
// waiting to be installed (empty fields mean there is none).
//
// State values are never mutated in place. The With* methods return the
// changed copy; the Updater persists and swaps it on its coordinator
// goroutine.
type State struct {
	ID                string
	LastCheck         int64
	DontRemindVersion string

	PendingUpdateFile                 string
	PendingUpdateVersion              string
	PendingUpdateAPIVersion           string
	PendingUpdateBackCompatAPIVersion string
}

// PendingUpdate is the read view of a postponed update: where the artifact
// sits and the extension API span of the release it carries, so the host can
// decide about add-on compatibility before applying it.
type PendingUpdate struct {
	File                 string
	Version              string
	APIVersion           string
	BackCompatAPIVersion string
}

// LoadState reads the state file at filePath. A missing or unreadable file is
// not an error: the engine starts over with defaults in that case. A pending
// update recorded for a version that is not newer than currentVersion, or
// whose artifact file no longer exists, is dropped.
func LoadState(filePath string, currentVersion string) State {
	var s State

	f, err := os.Open(filePath)
	if err == nil {
		err = gob.NewDecoder(f).Decode(&s)
		_ = f.Close()
	}
	if err != nil {
		if !os.IsNotExist(err) {
			log.WithError(err).Debugln("state file could not be loaded, starting with defaults")
		}
		s = State{}
	}

	if s.ID == "" {
		s.ID = newInstallID()
	}

	if s.hasPending() {
		if !pendingStillApplies(s.PendingUpdateVersion, currentVersion) {
			log.WithFields(log.Fields{
				"pending": s.PendingUpdateVersion,
				"running": currentVersion,
			}).Debugln("dropping stale pending update")
			s = s.WithoutPending()
		} else if _, err := os.Stat(s.PendingUpdateFile); err != nil {
			log.Debugf("pending update file %s is gone, dropping the pending update", s.PendingUpdateFile)
			s = s.WithoutPending()
		}
	}

	return s
}

func (s State) Save(filePath string) error {
	dir := filepath.Dir(filePath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return errors.Wrapf(err, "failed to create the state dir: '%s'", dir)
	}

	f, err := os.OpenFile(filePath, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0600)
	if err != nil {
		return errors.Wrapf(err, "failed to create the state file: '%s'", filePath)
	}
	defer f.Close()

	if err := gob.NewEncoder(f).Encode(&s); err != nil {
		return errors.Wrap(err, "failed to encode state")
	}

	return nil
}

// WithPending records artifactPath as the postponed update for the release
// described by info. Postponing always re-enables reminders: the update is
// supposed to come back on its own.
func (s State) WithPending(info *UpdateInfo, artifactPath string) State {
	s.PendingUpdateFile = artifactPath
	s.PendingUpdateVersion = info.Version
	s.PendingUpdateAPIVersion = info.APIVersion
	s.PendingUpdateBackCompatAPIVersion = info.APICompatTo
	s.DontRemindVersion = ""
	return s
}

func (s State) WithoutPending() State {
	s.PendingUpdateFile = ""
	s.PendingUpdateVersion = ""
	s.PendingUpdateAPIVersion = ""
	s.PendingUpdateBackCompatAPIVersion = ""
	return s
}

// WithDismissed suppresses automatic notifications about the given version
// until a different version is offered.
func (s State) WithDismissed(version string) State {
	s.DontRemindVersion = version
	return s
}

// WithRemindLater re-enables notifications for the currently known version.
func (s State) WithRemindLater() State {
	s.DontRemindVersion = ""
	return s
}

func (s State) hasPending() bool {
	return s.PendingUpdateFile != "" && s.PendingUpdateVersion != ""
}

// rotateIDIfStale regenerates the anonymous install id when the last check
// happened in a different calendar month.
func (s State) rotateIDIfStale(now time.Time) State {
	last := time.Unix(s.LastCheck, 0)
	if last.Year() != now.Year() || last.Month() != now.Month() {
		s.ID = newInstallID()
	}
	return s
}

// pendingStillApplies reports whether a stored pending update still makes
// sense next to the running version. An artifact for the running version
// (the update went through) or an older one (the user moved back on their
// own) is stale. Versions that do not parse fall back to a plain equality
// check.
func pendingStillApplies(pendingVersion, currentVersion string) bool {
	pv, errP := version.NewVersion(pendingVersion)
	cv, errC := version.NewVersion(currentVersion)
	if errP != nil || errC != nil {
		return pendingVersion != currentVersion
	}
	return pv.GreaterThan(cv)
}

func newInstallID() string {
	id := uuid.New()
	return hex.EncodeToString(id[:])
}
