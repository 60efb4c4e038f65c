package handler

import (
	"net/url"
	"strings"
)

// sanitizeReturnTo implements the returnTo allowlist from the cookie
// contract: a raw value is honored only when it is a bare path, or
// parses as a URL whose host is exactly the parent domain or a direct
// subdomain of it. Anything else falls back to "/", closing the
// open-redirect path through the sign-in form.
func sanitizeReturnTo(raw, parentDomain string) string {
	if raw == "" {
		return "/"
	}

	u, err := url.Parse(raw)
	if err != nil {
		return "/"
	}

	// A bare path with no host is always safe; it cannot redirect
	// off-site.
	if u.Host == "" {
		if strings.HasPrefix(u.Path, "/") && !strings.HasPrefix(u.Path, "//") {
			return u.Path + suffix(u)
		}
		return "/"
	}

	if parentDomain == "" {
		return "/"
	}
	bare := strings.TrimPrefix(parentDomain, ".")
	host := u.Host
	if host == bare {
		return raw
	}
	if strings.HasSuffix(host, "."+bare) {
		label := strings.TrimSuffix(host, "."+bare)
		if label != "" && !strings.Contains(label, ".") {
			return raw
		}
	}
	return "/"
}

func suffix(u *url.URL) string {
	s := ""
	if u.RawQuery != "" {
		s += "?" + u.RawQuery
	}
	if u.Fragment != "" {
		s += "#" + u.Fragment
	}
	return s
}
