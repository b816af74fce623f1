// +build !linux,!windows

package osinfo

import (
	"os/exec"

	"github.com/pkg/errors"
)

func osName() (string, error) {
	uname, err := exec.LookPath("uname")
	if err != nil {
		return "", errors.Wrap(err, "osinfo: lookup for \"uname\" command")
	}

	data, err := exec.Command(uname, "-srm").Output()
	if err != nil {
		return "", errors.Wrap(err, "osinfo: while running \"uname\"")
	}

	return string(data), nil
}
