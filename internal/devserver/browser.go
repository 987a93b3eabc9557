package devserver

import (
	"net"
	"net/url"

	"github.com/pkg/browser"

	"git.home.luguber.info/inful/sitepipe/internal/config"
	ferrors "git.home.luguber.info/inful/sitepipe/internal/foundation/errors"
)

// openURL is swapped in tests.
var openURL = browser.OpenURL

// interfaceAddrs is swapped in tests.
var interfaceAddrs = net.InterfaceAddrs

// OpenBrowser opens the served site according to mode: "local" uses the
// localhost URL, "external" the first non-loopback IPv4 address so the link
// also works from other devices on the network.
func (s *Server) OpenBrowser(mode config.OpenMode) error {
	local := s.URL()
	if local == "" {
		return ferrors.ValidationError("dev server not started").Build()
	}
	var target string
	switch mode {
	case config.OpenNone:
		return nil
	case config.OpenLocal:
		target = local
	case config.OpenExternal:
		ext, err := ExternalURL(local)
		if err != nil {
			return err
		}
		target = ext
	default:
		return ferrors.ValidationError("unknown open mode").WithContext("mode", string(mode)).Build()
	}
	if err := openURL(target); err != nil {
		return ferrors.WrapError(err, ferrors.CategoryRuntime, "open browser").
			WithContext("url", target).
			Warning().
			Build()
	}
	return nil
}

// ExternalURL rewrites local to the first non-loopback IPv4 address of this
// machine. Without one it returns local unchanged.
func ExternalURL(local string) (string, error) {
	u, err := url.Parse(local)
	if err != nil {
		return "", ferrors.WrapError(err, ferrors.CategoryValidation, "parse server url").Build()
	}
	addrs, err := interfaceAddrs()
	if err != nil {
		return "", ferrors.WrapError(err, ferrors.CategoryRuntime, "list network interfaces").Build()
	}
	for _, a := range addrs {
		ipnet, ok := a.(*net.IPNet)
		if !ok || ipnet.IP.IsLoopback() {
			continue
		}
		if v4 := ipnet.IP.To4(); v4 != nil {
			u.Host = net.JoinHostPort(v4.String(), u.Port())
			return u.String(), nil
		}
	}
	return local, nil
}
