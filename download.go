package updater

import (
	"context"
	"crypto/sha1"
	"encoding/hex"
	"hash"
	"io"
	"io/ioutil"
	"net/http"
	"os"
	"strings"

	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"

	"github.com/lumen-desktop/updater/pkg/common"
)

// downloadBlockSize is how much is read from the wire between progress
// reports and cancellation checks.
const downloadBlockSize = 8192

// Download fetches the release artifact described by info, trying every
// mirror in the order the server listed them and stopping at the first one
// that delivers a valid artifact. The stream is verified against the
// declared size and, when the descriptor carries one, the SHA-1 launcher
// hash. The path of the verified file is returned.
//
// Canceling ctx aborts cleanly: the partial file is removed and the cause of
// the returned error is ErrDownloadCanceled. When every mirror fails the
// cause is ErrAllMirrorsFailed. Safe to call from a worker goroutine;
// progress lands on the coordinator.
func (u *Updater) Download(ctx context.Context, info *UpdateInfo) (string, error) {
	u.initHTTPClientsOnce()

	mirrors := info.MirrorURLs()
	if len(mirrors) == 0 {
		return "", errors.New("update descriptor contains no download URLs")
	}

	dest, err := ioutil.TempFile(u.Config.tempDirPath(), "lumen_update_")
	if err != nil {
		return "", errors.Wrap(err, "failed to create a temp file for the update")
	}
	destPath := dest.Name()
	_ = dest.Close()

	errs := common.ErrorCollector{}
	for _, mirror := range mirrors {
		err := u.downloadFrom(ctx, mirror, destPath, info.LauncherHash)
		if err == nil {
			log.Infof("update %s downloaded to %s", info.Version, destPath)
			return destPath, nil
		}
		if errors.Cause(err) == ErrDownloadCanceled {
			removeFileIfExists(destPath)
			return "", ErrDownloadCanceled
		}

		log.WithError(err).Errorf("failed to download the update from %s", mirror)
		errs.Add(errors.Wrapf(err, "mirror %s", mirror))
	}

	removeFileIfExists(destPath)
	return "", errors.Wrap(ErrAllMirrorsFailed, errs.String())
}

// downloadFrom streams one mirror into destPath, truncating whatever a
// previous attempt left there. The cancellation flag is consulted before and
// after every read, so an abort never waits for more than one block.
func (u *Updater) downloadFrom(ctx context.Context, mirror, destPath, expectedHash string) error {
	req, err := http.NewRequest("GET", mirror, nil)
	if err != nil {
		return errors.WithStack(err)
	}
	req.Header.Set("User-Agent", u.userAgent())
	req = req.WithContext(ctx)

	resp, err := u.downloadClient.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return ErrDownloadCanceled
		}
		return errors.WithStack(err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return newStatusCodeError(resp.StatusCode)
	}
	total := resp.ContentLength
	if total < 0 {
		return errors.New("mirror did not declare a content length")
	}

	f, err := os.OpenFile(destPath, os.O_WRONLY|os.O_TRUNC, 0600)
	if err != nil {
		return errors.Wrapf(err, "failed to open the temp file: '%s'", destPath)
	}
	defer f.Close()

	var out io.Writer = f
	var digest hash.Hash
	if expectedHash != "" {
		digest = sha1.New()
		out = io.MultiWriter(f, digest)
	}

	u.coordinator.PostProgress(Progress{Read: 0, Total: total})

	var read int64
	buf := make([]byte, downloadBlockSize)
	for {
		if ctx.Err() != nil {
			return ErrDownloadCanceled
		}
		n, readErr := resp.Body.Read(buf)
		if ctx.Err() != nil {
			return ErrDownloadCanceled
		}

		if n > 0 {
			if _, err := out.Write(buf[:n]); err != nil {
				return errors.Wrapf(err, "failed to write the temp file: '%s'", destPath)
			}
			read += int64(n)
			u.coordinator.PostProgress(Progress{Read: read, Total: total})
		}

		if readErr == io.EOF {
			break
		}
		if readErr != nil {
			// the transport reports a stream cut short as an unexpected EOF
			if readErr == io.ErrUnexpectedEOF {
				return newContentTooShortError(read, total)
			}
			return errors.WithStack(readErr)
		}
	}

	if read < total {
		return newContentTooShortError(read, total)
	}
	if digest != nil {
		actual := hex.EncodeToString(digest.Sum(nil))
		if !strings.EqualFold(actual, expectedHash) {
			return newHashMismatchError(actual, expectedHash)
		}
	}

	return nil
}

func removeFileIfExists(path string) {
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		log.WithError(err).Warnf("failed to remove %s", path)
	}
}
