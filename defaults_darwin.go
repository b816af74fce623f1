// +build darwin

package updater

import (
	"os"
)

func init() {
	DefaultCfgPath = os.Getenv("HOME") + "/.lumen-updater/lumen-updater.conf"
	defaultLogPath = os.Getenv("HOME") + "/.lumen-updater/lumen-updater.log"
	defaultDataDir = os.Getenv("HOME") + "/.lumen-updater"
}
