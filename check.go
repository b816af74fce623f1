package updater

import (
	"net"
	"net/http"
	"net/url"
	"runtime"
	"strconv"

	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"

	"github.com/lumen-desktop/updater/pkg/osinfo"
)

// CheckForUpdate asks the update endpoint whether a newer release than the
// running one exists. auto marks unattended checks: only those may carry
// anonymous usage statistics, and only when the user opted in.
//
// A nil UpdateInfo with a nil error means the endpoint knows no update for
// this version and channel. Safe to call from a worker goroutine.
func (u *Updater) CheckForUpdate(auto bool) (*UpdateInfo, error) {
	u.initHTTPClientsOnce()
	if err := u.validateCheckURL("update_check_url"); err != nil {
		return nil, err
	}

	checkURL := u.Config.UpdateCheckURL + "?" + u.checkParams(auto).Encode()

	req, err := http.NewRequest("GET", checkURL, nil)
	if err != nil {
		return nil, errors.WithStack(err)
	}
	req.Header.Set("User-Agent", u.userAgent())

	resp, err := u.checkClient.Do(req)
	if err != nil {
		if netErr, ok := errors.Cause(err).(net.Error); ok && netErr.Timeout() {
			return nil, errors.New("update check timed out, please check your proxy or firewall settings")
		}
		return nil, errors.Wrap(err, "failed to reach the update server")
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, newStatusCodeError(resp.StatusCode)
	}

	info, err := ParseUpdateResponse(resp.Body)
	if err != nil {
		return nil, err
	}
	if info == nil {
		log.Debugln("update server reported no update")
		return nil, nil
	}

	log.Infof("update server offers version %s", info.Version)
	return info, nil
}

// checkParams builds the query the update endpoint expects. Identifying
// parameters go out strictly on automatic checks with usage statistics
// enabled; a manual check never sends them.
func (u *Updater) checkParams(auto bool) url.Values {
	params := url.Values{}
	params.Set("autoCheck", strconv.FormatBool(auto))
	params.Set("allowUsageStats", strconv.FormatBool(u.Config.AllowUsageStats))
	params.Set("version", u.app.Version)
	params.Set("versionType", u.Config.ReleaseChannel)
	params.Set("osVersion", u.osVersion())
	params.Set("osArchitecture", runtime.GOARCH)
	params.Set("x64", strconv.FormatBool(runtime.GOARCH == "amd64" || runtime.GOARCH == "arm64"))

	if auto && u.Config.AllowUsageStats {
		params.Set("id", u.State().ID)
		params.Set("language", u.Config.Language)
		params.Set("installed", strconv.FormatBool(u.app.Installed))
		for slot, driver := range u.app.Drivers {
			params.Set(slot, driver)
		}
	}

	return params
}

// osVersion resolves the host OS description once and caches it.
func (u *Updater) osVersion() string {
	u.osVersionOnce.Do(func() {
		name, err := osinfo.GetOsName()
		if err != nil {
			log.WithError(err).Debugln("failed to detect the OS version")
			name = runtime.GOOS
		}
		u.osVersionName = name
	})
	return u.osVersionName
}
