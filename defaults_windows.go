// +build windows

package updater

import (
	"os"
	"path/filepath"
)

func init() {
	ex, err := os.Executable()
	if err != nil {
		panic(err)
	}

	exPath := filepath.Dir(ex)

	DefaultCfgPath = filepath.Join(exPath, "./lumen-updater.conf")
	defaultLogPath = filepath.Join(exPath, "./lumen-updater.log")
	defaultDataDir = filepath.Join(os.Getenv("APPDATA"), "lumen-updater")
}
