package updater

import (
	"bufio"
	"io"
	"strings"

	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
)

// wire keys of the update check response
const (
	responseKeyVersion                = "version"
	responseKeyLauncherURL            = "launcherUrl"
	responseKeyAPIVersion             = "apiVersion"
	responseKeyLauncherHash           = "launcherHash"
	responseKeyAPICompatTo            = "apiCompatTo"
	responseKeyChangesURL             = "changesUrl"
	responseKeyLauncherInteractiveURL = "launcherInteractiveUrl"
)

// UpdateInfo describes a release offered by the update endpoint.
type UpdateInfo struct {
	Version     string
	LauncherURL string
	APIVersion  string

	LauncherHash           string
	APICompatTo            string
	ChangesURL             string
	LauncherInteractiveURL string
}

// MirrorURLs returns the download locations of the launcher artifact in the
// order the server wants them tried.
func (i *UpdateInfo) MirrorURLs() []string {
	return strings.Fields(i.LauncherURL)
}

// ParseUpdateResponse reads the "Key: Value" lines of an update check reply.
// An empty body means there is no update and yields (nil, nil).
func ParseUpdateResponse(r io.Reader) (*UpdateInfo, error) {
	info := &UpdateInfo{}
	empty := true

	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		line := strings.TrimRight(scanner.Text(), " \t\r")
		if line == "" {
			continue
		}
		parts := strings.SplitN(line, ": ", 2)
		if len(parts) != 2 {
			return nil, newMalformedLineError(line)
		}
		empty = false

		switch key, value := parts[0], parts[1]; key {
		case responseKeyVersion:
			info.Version = value
		case responseKeyLauncherURL:
			info.LauncherURL = value
		case responseKeyAPIVersion:
			info.APIVersion = value
		case responseKeyLauncherHash:
			info.LauncherHash = value
		case responseKeyAPICompatTo:
			info.APICompatTo = value
		case responseKeyChangesURL:
			info.ChangesURL = value
		case responseKeyLauncherInteractiveURL:
			info.LauncherInteractiveURL = value
		default:
			log.Debugf("update response contains unknown key %q", key)
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, errors.Wrap(err, "while reading update response")
	}

	if empty {
		return nil, nil
	}

	var missing []string
	if info.Version == "" {
		missing = append(missing, responseKeyVersion)
	}
	if info.LauncherURL == "" {
		missing = append(missing, responseKeyLauncherURL)
	}
	if info.APIVersion == "" {
		missing = append(missing, responseKeyAPIVersion)
	}
	if len(missing) > 0 {
		return nil, newMissingKeysError(missing)
	}

	return info, nil
}
