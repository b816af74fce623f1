package updater

import (
	"io/ioutil"
	"os"
	"strings"

	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
)

// Host is the application the engine updates. Relaunch must wind the
// application down and start the executable at path with the given
// arguments; on success it does not return. ErrShutdownInProgress must come
// back when a shutdown is already underway, asking to relaunch at that point
// is a logic error.
type Host interface {
	Relaunch(path string, args []string) error
}

// ExecuteUpdate hands the process over to the downloaded installer at
// destPath. The pending-update record is cleared and persisted first: if the
// handoff dies halfway, the next start must not find a pointer to an
// artifact that may be half consumed.
//
// Must be called on the coordinator goroutine. On success it never returns.
func (u *Updater) ExecuteUpdate(destPath string) error {
	if destPath == "" {
		log.Errorln("no update artifact path to execute")
		return errors.New("update artifact path is empty")
	}
	if u.host == nil {
		return errors.New("no host is set to relaunch into the installer")
	}

	u.setState(u.State().WithoutPending())

	args := u.updateArguments()
	log.WithFields(log.Fields{
		"path": destPath,
		"args": strings.Join(args, " "),
	}).Infoln("handing the process over to the installer")

	if err := u.host.Relaunch(destPath, args); err != nil {
		if errors.Cause(err) == ErrShutdownInProgress {
			log.Errorln("host is already shutting down, update handoff request is a logic error")
		}
		return err
	}
	return nil
}

// ExecutePendingUpdate applies the postponed update if there still is one.
// Must be called on the coordinator goroutine.
func (u *Updater) ExecutePendingUpdate() error {
	pending, ok := u.PendingUpdate()
	if !ok {
		log.Debugln("no pending update to execute")
		return nil
	}
	return u.ExecuteUpdate(pending.File)
}

// updateArguments builds the argument vector for the installer. An installed
// copy updates in place. A portable copy is recreated over itself when its
// directory is writable; when it is not, the installer starts interactively
// and lets the user choose.
func (u *Updater) updateArguments() []string {
	var args []string
	if u.app.Installed {
		args = append(args, "--install", "-m")
	} else if isDirWritable(u.app.AppDir) {
		args = append(args, "--create-portable", "-m", "--portable-path", u.app.AppDir)
	} else {
		args = append(args, "--launcher")
	}
	if u.app.AddonsDisabled {
		args = append(args, "--disable-addons")
	}
	return append(args, "--config-path", u.app.ConfigDir)
}

// isDirWritable probes dir by creating a throwaway file in it. Permission
// bits alone do not answer this on every OS and filesystem.
func isDirWritable(dir string) bool {
	f, err := ioutil.TempFile(dir, ".write_probe_")
	if err != nil {
		return false
	}
	_ = f.Close()
	_ = os.Remove(f.Name())
	return true
}
