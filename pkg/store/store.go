// Package store keeps the postponed update artifact between application
// runs.
package store

import (
	"fmt"
	"io"
	"io/ioutil"
	"os"
	"path/filepath"

	"github.com/nightlyone/lockfile"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

// the artifact is an installer and must stay executable
const artifactPermissions = 0755

// Store manages the directory holding a postponed update artifact. At most
// one artifact is meant to live there; Sweep removes everything else. All
// directory shuffling goes through a lock file, so two processes cannot
// interleave.
type Store struct {
	dirPath string
	lock    *lockfile.Lockfile
	logger  *logrus.Logger
}

// New makes sure dirPath exists and returns a store over it.
func New(dirPath string, logger *logrus.Logger) (*Store, error) {
	dirPath, err := filepath.Abs(dirPath)
	if err != nil {
		return nil, errors.Wrapf(err, "could not resolve the updates dir: '%s'", dirPath)
	}
	if err := os.MkdirAll(dirPath, 0755); err != nil {
		return nil, errors.Wrapf(err, "could not create the updates dir: '%s'", dirPath)
	}

	lockFile, err := lockfile.New(getLockFilePath(dirPath))
	if err != nil {
		return nil, errors.Wrap(err, "could not prepare lock file")
	}

	return &Store{dirPath, &lockFile, logger}, nil
}

// Dir returns the directory the store manages.
func (s *Store) Dir() string {
	return s.dirPath
}

// MoveIn places the artifact at srcPath into the store and returns its new
// path. A plain rename is tried first; when the store sits on another volume
// the artifact is copied and the source removed afterwards.
func (s *Store) MoveIn(srcPath string) (string, error) {
	err := s.getLock()
	if err != nil {
		return "", err
	}
	defer s.releaseLock()

	finalPath := filepath.Join(s.dirPath, filepath.Base(srcPath))
	if err := os.Rename(srcPath, finalPath); err != nil {
		s.logger.WithError(err).Debugf("rename into %s failed, copying instead", s.dirPath)
		if err := copyAndRemove(srcPath, finalPath); err != nil {
			return "", err
		}
	}

	if err := os.Chmod(finalPath, artifactPermissions); err != nil {
		s.logger.WithError(err).Warnf("could not set permissions on %s", finalPath)
	}

	return finalPath, nil
}

// Sweep deletes every file in the store except keepPath. Pass an empty
// keepPath to clear the store entirely.
func (s *Store) Sweep(keepPath string) error {
	err := s.getLock()
	if err != nil {
		return err
	}
	defer s.releaseLock()

	entries, err := ioutil.ReadDir(s.dirPath)
	if err != nil {
		return errors.Wrapf(err, "while listing %s", s.dirPath)
	}

	lockName := filepath.Base(getLockFilePath(s.dirPath))
	for _, entry := range entries {
		if entry.IsDir() || entry.Name() == lockName {
			continue
		}
		path := filepath.Join(s.dirPath, entry.Name())
		if path == keepPath {
			continue
		}
		if err := os.Remove(path); err != nil {
			s.logger.WithError(err).Warnf("could not remove old update file %s", path)
			continue
		}
		s.logger.Debugf("old update file %s removed", path)
	}

	return nil
}

// IsWritable probes whether the store can take a new artifact.
func (s *Store) IsWritable() bool {
	f, err := ioutil.TempFile(s.dirPath, ".probe_")
	if err != nil {
		return false
	}
	_ = f.Close()
	_ = os.Remove(f.Name())
	return true
}

// copyAndRemove is the cross-volume fallback for rename.
func copyAndRemove(srcPath, dstPath string) error {
	src, err := os.Open(srcPath)
	if err != nil {
		return errors.Wrapf(err, "could not open %s", srcPath)
	}
	defer src.Close()

	dst, err := os.OpenFile(dstPath, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, artifactPermissions)
	if err != nil {
		return errors.Wrapf(err, "could not create %s", dstPath)
	}

	_, err = io.Copy(dst, src)
	if err == nil {
		err = dst.Sync()
	}
	if closeErr := dst.Close(); err == nil {
		err = closeErr
	}
	if err != nil {
		_ = os.Remove(dstPath)
		return errors.Wrapf(err, "could not copy %s to %s", srcPath, dstPath)
	}

	if err := os.Remove(srcPath); err != nil {
		return errors.Wrapf(err, "could not remove %s after copying", srcPath)
	}
	return nil
}

func (s *Store) getLock() error {
	err := s.lock.TryLock()
	if err != nil {
		err = errors.Wrap(err, "could not get lock")
	}
	return err
}

func (s *Store) releaseLock() {
	err := s.lock.Unlock()
	if err != nil {
		s.logger.WithError(err).Error("could not release lock")
	}
}

func getLockFilePath(dirPath string) string {
	return fmt.Sprintf("%s/store.lock", dirPath)
}
