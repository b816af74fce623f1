// +build !windows,!darwin

package updater

func init() {
	rootCertsPath = "/etc/lumen-updater/cacert.pem"
	DefaultCfgPath = "/etc/lumen-updater/lumen-updater.conf"
	defaultLogPath = "/var/log/lumen-updater/lumen-updater.log"
	defaultDataDir = "/var/lib/lumen-updater"
}
