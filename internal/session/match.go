package session

import "strings"

// PathMatches reports whether a cookie scoped to cookiePath applies to a
// request for requestPath.
//
// The cookie applies when any of the following holds:
//   - requestPath == cookiePath
//   - requestPath starts with cookiePath
//   - requestPath starts with '/' and the remainder starts with cookiePath
//
// Cookies provide no integrity protection for the path attribute: a service
// running under "/foo" can set a cookie scoped to "/bar". Servers should not
// run mutually distrusting services on different paths of the same host and
// use cookies for sensitive data.
func PathMatches(requestPath, cookiePath string) bool {
	if requestPath == cookiePath {
		return true
	}
	if strings.HasPrefix(requestPath, cookiePath) {
		return true
	}
	if len(requestPath) > 0 && requestPath[0] == '/' &&
		strings.HasPrefix(requestPath[1:], cookiePath) {
		return true
	}
	return false
}

// DomainMatches reports whether a cookie scoped to domain applies to a
// request for host. It matches when the host equals the domain or is a
// subdomain of it: "www.corp.example.com" matches "example.com".
//
// An empty domain scopes the cookie to the exact origin host, which this
// package cannot know; callers handle that case themselves.
func DomainMatches(host, domain string) bool {
	if domain == "" {
		return false
	}
	host = strings.ToLower(host)
	domain = strings.ToLower(strings.TrimPrefix(domain, "."))
	if host == domain {
		return true
	}
	return strings.HasSuffix(host, "."+domain)
}
