// +build windows

package proxydetect

import (
	"net/url"
	"strings"

	"golang.org/x/sys/windows/registry"
)

const internetSettingsKey = `Software\Microsoft\Windows\CurrentVersion\Internet Settings`

// getProxyForURL reads the per-user Internet Settings, the same place the
// system proxy dialog writes to.
func getProxyForURL(u *url.URL) (*url.URL, error) {
	settings, err := readInternetSettings()
	if err != nil {
		return nil, err
	}
	if !settings.enabled || settings.server == "" {
		return nil, ErrNotFound
	}
	if settings.bypassed(u) {
		return nil, ErrNotFound
	}

	spec := settings.proxyFor(u.Scheme)
	if spec == "" {
		return nil, ErrNotFound
	}
	return parseProxySpec(spec)
}

type internetSettings struct {
	enabled bool
	server  string
	bypass  []string
}

func readInternetSettings() (*internetSettings, error) {
	key, err := registry.OpenKey(registry.CURRENT_USER, internetSettingsKey, registry.QUERY_VALUE)
	if err != nil {
		return nil, ErrNotFound
	}
	defer key.Close()

	settings := &internetSettings{}
	if enable, _, err := key.GetIntegerValue("ProxyEnable"); err == nil {
		settings.enabled = enable != 0
	}
	if server, _, err := key.GetStringValue("ProxyServer"); err == nil {
		settings.server = server
	}
	if override, _, err := key.GetStringValue("ProxyOverride"); err == nil {
		for _, entry := range strings.Split(override, ";") {
			if entry = strings.TrimSpace(entry); entry != "" {
				settings.bypass = append(settings.bypass, entry)
			}
		}
	}

	return settings, nil
}

// proxyFor picks the proxy for scheme out of the ProxyServer value. The
// value is either a single "host:port" covering everything or per-protocol
// entries like "http=host:port;https=host:port".
func (s *internetSettings) proxyFor(scheme string) string {
	if !strings.Contains(s.server, "=") {
		return s.server
	}
	for _, entry := range strings.Split(s.server, ";") {
		parts := strings.SplitN(strings.TrimSpace(entry), "=", 2)
		if len(parts) == 2 && strings.EqualFold(parts[0], scheme) {
			return parts[1]
		}
	}
	return ""
}

// bypassed mirrors how Windows reads ProxyOverride: "<local>" exempts plain
// host names, any other entry may carry "*" wildcards at either end.
func (s *internetSettings) bypassed(u *url.URL) bool {
	host := u.Hostname()
	for _, pattern := range s.bypass {
		if pattern == "<local>" {
			if !strings.Contains(host, ".") {
				return true
			}
			continue
		}
		if matchHostPattern(host, pattern) {
			return true
		}
	}
	return false
}

func matchHostPattern(host, pattern string) bool {
	host = strings.ToLower(host)
	pattern = strings.ToLower(pattern)
	switch {
	case strings.HasPrefix(pattern, "*") && strings.HasSuffix(pattern, "*"):
		return strings.Contains(host, strings.Trim(pattern, "*"))
	case strings.HasPrefix(pattern, "*"):
		return strings.HasSuffix(host, strings.TrimPrefix(pattern, "*"))
	case strings.HasSuffix(pattern, "*"):
		return strings.HasPrefix(host, strings.TrimSuffix(pattern, "*"))
	default:
		return host == pattern
	}
}

func parseProxySpec(spec string) (*url.URL, error) {
	if !strings.Contains(spec, "://") {
		spec = "http://" + spec
	}
	proxyURL, err := url.Parse(spec)
	if err != nil {
		log.WithError(err).Warnf("system proxy setting %q could not be parsed", spec)
		return nil, ErrNotFound
	}
	return proxyURL, nil
}
