package updater

import (
	"crypto/x509"
	"fmt"
	"io/ioutil"
	"net/http"
	"os"
	"runtime"
	"sync"

	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"

	"github.com/lumen-desktop/updater/pkg/store"
)

// AppInfo describes the running copy of the application on whose behalf
// updates are checked and applied.
type AppInfo struct {
	// Version of the running release, e.g. "2025.1".
	Version string
	// AppDir is the directory the running copy lives in. A portable copy is
	// recreated there on update.
	AppDir string
	// ConfigDir is the active configuration directory. It is forwarded to
	// the installer so a custom location survives the update.
	ConfigDir string
	// Installed tells an installed copy from a portable one.
	Installed bool
	// AddonsDisabled is forwarded to the installer so a run without add-ons
	// stays that way after the relaunch.
	AddonsDisabled bool
	// Drivers maps driver slots to the active driver names, e.g.
	// "outputDriver" -> "waveOut". Sent with anonymous usage statistics only.
	Drivers map[string]string
}

// Updater is the update engine. It asks the update endpoint for new
// releases, downloads and verifies release artifacts, keeps the persisted
// update state and hands the process over to the installer when the user
// decides to apply an update.
type Updater struct {
	Config         *Config
	ConfigLocation string

	app  AppInfo
	host Host

	coordinator *Coordinator
	store       *store.Store

	checkClient     *http.Client
	downloadClient  *http.Client
	httpClientsOnce sync.Once

	osVersionOnce sync.Once
	osVersionName string

	rootCAs *x509.CertPool

	stateMu sync.RWMutex
	state   State
}

func New(cfg *Config, cfgPath string, app AppInfo) *Updater {
	u := &Updater{
		Config:         cfg,
		ConfigLocation: cfgPath,
		app:            app,
		coordinator:    NewCoordinator(),
	}

	if rootCertsPath != "" {
		if _, err := os.Stat(rootCertsPath); err == nil {
			certPool := x509.NewCertPool()

			b, err := ioutil.ReadFile(rootCertsPath)
			if err != nil {
				log.WithError(err).Warnln("Failed to read cacert.pem")
			} else {
				ok := certPool.AppendCertsFromPEM(b)
				if ok {
					u.rootCAs = certPool
				}
			}
		}
	}

	u.state = LoadState(cfg.stateFilePath(), app.Version)

	st, err := store.New(cfg.updatesDirPath(), log.StandardLogger())
	if err != nil {
		log.WithError(err).Warnln("pending updates store is unavailable, updates cannot be postponed")
	} else {
		u.store = st
		if err := st.Sweep(u.state.PendingUpdateFile); err != nil {
			log.WithError(err).Warnln("failed to sweep old update files")
		}
	}

	u.SetLogLevel(u.Config.LogLevel)

	return u
}

// SetHost registers the application side of the engine. Without a host only
// checking, downloading and postponing work; applying an update fails.
func (u *Updater) SetHost(h Host) {
	u.host = h
}

// Coordinator returns the call queue the engine reports through. The
// embedding application runs its Run loop on the goroutine that owns the
// user interface.
func (u *Updater) Coordinator() *Coordinator {
	return u.coordinator
}

func (u *Updater) userAgent() string {
	version := u.app.Version
	if version == "" {
		version = "{undefined}"
	}
	return fmt.Sprintf("Lumen-Updater v%s %s %s", version, runtime.GOOS, runtime.GOARCH)
}

// State returns a copy of the persisted engine state. Safe from any
// goroutine.
func (u *Updater) State() State {
	u.stateMu.RLock()
	defer u.stateMu.RUnlock()
	return u.state
}

// setState swaps the persisted state and flushes it to disk, so a crash at
// any later point cannot lose the mutation. Only the coordinator goroutine
// writes; workers read through State().
func (u *Updater) setState(s State) {
	u.stateMu.Lock()
	u.state = s
	u.stateMu.Unlock()

	if err := s.Save(u.Config.stateFilePath()); err != nil {
		log.WithError(err).Errorln("failed to save the updater state")
	}
}

// PendingUpdate returns the postponed update waiting to be applied, if there
// is one. The record is validated first: when the artifact file disappeared
// since it was recorded, the whole pending group is reset and nothing is
// returned. Must be called on the coordinator goroutine.
func (u *Updater) PendingUpdate() (PendingUpdate, bool) {
	state := u.State()
	if !state.hasPending() {
		return PendingUpdate{}, false
	}

	if _, err := os.Stat(state.PendingUpdateFile); err != nil {
		log.Warnf("pending update file %s is gone, dropping the pending update", state.PendingUpdateFile)
		u.setState(state.WithoutPending())
		return PendingUpdate{}, false
	}

	return PendingUpdate{
		File:                 state.PendingUpdateFile,
		Version:              state.PendingUpdateVersion,
		APIVersion:           state.PendingUpdateAPIVersion,
		BackCompatAPIVersion: state.PendingUpdateBackCompatAPIVersion,
	}, true
}

// HasPendingUpdate reports whether a postponed update is waiting to be
// applied. Must be called on the coordinator goroutine.
func (u *Updater) HasPendingUpdate() bool {
	_, ok := u.PendingUpdate()
	return ok
}

// CanPostpone reports whether the pending updates store accepts an artifact.
func (u *Updater) CanPostpone() bool {
	return u.store != nil && u.store.IsWritable()
}

// Postpone moves the downloaded artifact into the pending updates store and
// records it, so the update survives a restart and can be applied later. The
// final artifact path is returned.
//
// When the artifact cannot be moved it is recorded where it is, so the
// update is not lost, and the move error is returned for the caller to
// surface. Must be called on the coordinator goroutine.
func (u *Updater) Postpone(info *UpdateInfo, artifactPath string) (string, error) {
	finalPath := artifactPath

	var moveErr error
	if u.store == nil {
		moveErr = errors.New("pending updates store is unavailable")
	} else {
		var movedPath string
		movedPath, moveErr = u.store.MoveIn(artifactPath)
		if moveErr == nil {
			finalPath = movedPath
		}
	}

	u.setState(u.State().WithPending(info, finalPath))

	if moveErr != nil {
		return finalPath, errors.Wrap(moveErr, "failed to move the update into the pending store")
	}

	log.Infof("update %s postponed, artifact kept at %s", info.Version, finalPath)
	return finalPath, nil
}

// Dismiss suppresses automatic notifications about the given version until a
// different one is offered. Must be called on the coordinator goroutine.
func (u *Updater) Dismiss(version string) {
	u.setState(u.State().WithDismissed(version))
}

// RemindLater re-enables automatic notifications for the currently known
// version. Must be called on the coordinator goroutine.
func (u *Updater) RemindLater() {
	u.setState(u.State().WithRemindLater())
}

// ClearPending forgets the postponed update without applying it. The swept
// artifact stays on disk until the next start. Must be called on the
// coordinator goroutine.
func (u *Updater) ClearPending() {
	u.setState(u.State().WithoutPending())
}
