package updater

import (
	"crypto/tls"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/lumen-desktop/updater/pkg/proxydetect"
)

// initHTTPClientsOnce sets up the two HTTP clients the engine uses: a
// short-timeout one for update checks and a long-timeout one for artifact
// downloads, which may take many minutes on slow links. Both share one
// transport.
func (u *Updater) initHTTPClientsOnce() {
	u.httpClientsOnce.Do(func() {
		// copy the default transport struct
		transport := *(http.DefaultTransport.(*http.Transport))
		transport.ResponseHeaderTimeout = 15 * time.Second

		if u.rootCAs != nil {
			transport.TLSClientConfig = &tls.Config{
				RootCAs: u.rootCAs,
			}
		}

		transport.Proxy = proxydetect.GetProxyForRequest

		if len(u.Config.HTTPProxy) > 0 {
			// in case we have proxy set in the config
			// it will override the proxy from the system
			if !strings.HasPrefix(u.Config.HTTPProxy, "http://") && !strings.HasPrefix(u.Config.HTTPProxy, "https://") {
				u.Config.HTTPProxy = "http://" + u.Config.HTTPProxy
			}
			proxyURL, err := url.Parse(u.Config.HTTPProxy)
			if err != nil {
				logrus.WithFields(logrus.Fields{
					"url": u.Config.HTTPProxy,
				}).Warningln("failed to parse http_proxy URL")
			} else {
				if len(u.Config.HTTPProxyUser) > 0 {
					proxyURL.User = url.UserPassword(u.Config.HTTPProxyUser, u.Config.HTTPProxyPassword)
				}
				transport.Proxy = func(_ *http.Request) (*url.URL, error) {
					return proxyURL, nil
				}
			}
		}

		u.checkClient = &http.Client{
			Timeout:   secToDuration(u.Config.CheckTimeout),
			Transport: &transport,
		}
		u.downloadClient = &http.Client{
			Timeout:   secToDuration(u.Config.DownloadTimeout),
			Transport: &transport,
		}
	})
}

// validateCheckURL performs update URL validation, that reference field name
// as in source config.
func (u *Updater) validateCheckURL(fieldCheckURL string) error {
	if len(u.Config.UpdateCheckURL) == 0 {
		return newEmptyFieldError(fieldCheckURL)
	} else if parsed, err := url.Parse(u.Config.UpdateCheckURL); err != nil {
		err = errors.WithStack(err)
		return newFieldError(fieldCheckURL, err)
	} else if parsed.Scheme != "http" && parsed.Scheme != "https" {
		err := errors.Errorf("wrong scheme '%s', URL must start with http:// or https://", parsed.Scheme)
		return newFieldError(fieldCheckURL, err)
	}
	return nil
}

func newEmptyFieldError(name string) error {
	return errors.Errorf("unexpected empty field %s", name)
}

func newFieldError(name string, err error) error {
	return errors.Wrapf(err, "%s field verification failed", name)
}
