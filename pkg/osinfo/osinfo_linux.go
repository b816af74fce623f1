// +build linux

package osinfo

import (
	"io/ioutil"
	"os"
	"strings"

	"github.com/pkg/errors"
)

// legacyReleaseFiles covers distributions that never adopted os-release
var legacyReleaseFiles = map[string]string{
	"SUSE":      "/etc/SUSE-release",
	"Red Hat":   "/etc/redhat-release",
	"Fedora":    "/etc/fedora-release",
	"Slackware": "/etc/slackware-version",
	"Debian":    "/etc/debian_version",
	"Gentoo":    "/etc/gentoo-release",
	"Ubuntu":    "/etc/lsb-release",
}

func osName() (string, error) {
	if name, err := osReleaseName("/etc/os-release"); err == nil {
		return name, nil
	}

	for dist, file := range legacyReleaseFiles {
		if _, err := os.Stat(file); err != nil {
			continue
		}
		data, err := ioutil.ReadFile(file)
		if err != nil {
			return dist, errors.Wrapf(err, "osinfo: couldn't read release info from \"%s\"", file)
		}
		return dist + ": " + strings.TrimSpace(string(data)), nil
	}

	return "", ErrUnknownOSType
}

// osReleaseName extracts PRETTY_NAME from an os-release style file.
func osReleaseName(path string) (string, error) {
	data, err := ioutil.ReadFile(path)
	if err != nil {
		return "", errors.Wrapf(err, "osinfo: couldn't read \"%s\"", path)
	}

	for _, line := range strings.Split(string(data), "\n") {
		if !strings.HasPrefix(line, "PRETTY_NAME=") {
			continue
		}
		name := strings.Trim(strings.TrimPrefix(line, "PRETTY_NAME="), "\"")
		if name != "" {
			return name, nil
		}
	}

	return "", errors.Errorf("osinfo: no PRETTY_NAME in \"%s\"", path)
}
