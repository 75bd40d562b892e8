// Package fasturl implements a request URL that defers parsing.
//
// Request handlers usually only look at the path and query of a URL. URL
// serves those from the raw string with index arithmetic and only builds a
// full net/url value when another field is needed, or when the input doesn't
// look like an absolute request URL.
//
// ## Notes
//   - The fast path performs no percent-decoding. Callers must pass URLs that
//     are already encoded, which is true of URLs built from a request line.
//   - SearchParams returns a copy. Changing it never updates Href or Search.
//   - URL is not safe for concurrent use.
package fasturl

import (
	"encoding/json"
	"net/url"
	"strings"
)

// parseFull is the fallback parser. Tests replace it to observe
// deoptimization.
var parseFull = url.Parse

// URL is a lazily parsed URL.
type URL struct {
	href string

	// split is true when the URL was built from pre-split parts.
	split    bool
	protocol string
	host     string

	// scanned is true once pathname and search are known without parsing.
	scanned  bool
	pathname string
	search   string

	full    *url.URL
	fullErr error

	query url.Values
}

// Parse returns a URL backed by href. Nothing is parsed until a field is read.
func Parse(href string) *URL {
	return &URL{href: href}
}

// FromParts returns a URL from pre-split fields, as provided by runtimes that
// already separate the request line. protocol may include the trailing colon
// ("http:") or not ("http").
func FromParts(protocol, host, pathname, search string) *URL {
	protocol = strings.TrimSuffix(protocol, ":")
	if search == "?" {
		search = ""
	}
	return &URL{
		split:    true,
		protocol: protocol,
		host:     host,
		scanned:  true,
		pathname: pathname,
		search:   search,
	}
}

// Href returns the serialized URL.
func (u *URL) Href() string {
	if u.href == "" && u.split {
		u.href = u.protocol + "://" + u.host + u.pathname + u.search
	}
	return u.href
}

// String implements fmt.Stringer.
func (u *URL) String() string {
	return u.Href()
}

// MarshalJSON encodes the URL as its href, like a JavaScript URL does.
func (u *URL) MarshalJSON() ([]byte, error) {
	return json.Marshal(u.Href())
}

// Pathname returns the escaped path, or "/" when the URL has no path.
func (u *URL) Pathname() string {
	if u.scan() {
		return u.pathname
	}
	if f := u.parse(); f != nil {
		return pathnameOf(f)
	}
	return ""
}

// Search returns the query including the leading '?', or "" when the query is
// empty.
func (u *URL) Search() string {
	if u.scan() {
		return u.search
	}
	if f := u.parse(); f != nil && f.RawQuery != "" {
		return "?" + f.RawQuery
	}
	return ""
}

// SearchParams returns a copy of the decoded query parameters.
func (u *URL) SearchParams() url.Values {
	if u.query == nil {
		q, _ := url.ParseQuery(strings.TrimPrefix(u.Search(), "?"))
		u.query = q
	}
	params := make(url.Values, len(u.query))
	for k, vs := range u.query {
		params[k] = append([]string(nil), vs...)
	}
	return params
}

// Protocol returns the scheme followed by ':', e.g. "https:".
func (u *URL) Protocol() string {
	if u.split {
		return u.protocol + ":"
	}
	if f := u.parse(); f != nil && f.Scheme != "" {
		return f.Scheme + ":"
	}
	return ""
}

// Host returns the host including any port.
func (u *URL) Host() string {
	if u.split {
		return u.host
	}
	if f := u.parse(); f != nil {
		return f.Host
	}
	return ""
}

// Hostname returns the host without any port.
func (u *URL) Hostname() string {
	if f := u.parse(); f != nil {
		return f.Hostname()
	}
	return ""
}

// Port returns the explicit port, if any.
func (u *URL) Port() string {
	if f := u.parse(); f != nil {
		return f.Port()
	}
	return ""
}

// Hash returns the fragment including the leading '#', or "".
func (u *URL) Hash() string {
	if f := u.parse(); f != nil && f.Fragment != "" {
		return "#" + f.EscapedFragment()
	}
	return ""
}

// Origin returns scheme://host.
func (u *URL) Origin() string {
	if f := u.parse(); f != nil && f.Scheme != "" {
		return f.Scheme + "://" + f.Host
	}
	return "null"
}

// Username returns the user name of the userinfo, if any.
func (u *URL) Username() string {
	if f := u.parse(); f != nil && f.User != nil {
		return f.User.Username()
	}
	return ""
}

// Password returns the password of the userinfo, if any.
func (u *URL) Password() string {
	if f := u.parse(); f != nil && f.User != nil {
		p, _ := f.User.Password()
		return p
	}
	return ""
}

// Full returns the fully parsed URL. The result is cached and shared, so
// callers must not modify it.
func (u *URL) Full() (*url.URL, error) {
	u.parse()
	return u.full, u.fullErr
}

// scan fills pathname and search from href without parsing. It returns false
// when the fast path doesn't apply to this URL.
func (u *URL) scan() bool {
	if u.scanned {
		return true
	}
	if u.full != nil || u.fullErr != nil {
		return false // already deoptimized
	}

	href := u.href
	schemeEnd := strings.Index(href, "://")
	if schemeEnd < 0 || strings.IndexByte(href, '#') >= 0 {
		return false
	}
	authority := schemeEnd + 3
	pathStart := strings.IndexByte(href[authority:], '/')
	if pathStart < 0 {
		return false
	}
	pathStart += authority

	// A '?' inside the authority means there is no path, e.g. "http://h?x".
	if q := strings.IndexByte(href[authority:pathStart], '?'); q >= 0 {
		return false
	}

	queryStart := strings.IndexByte(href[pathStart:], '?')
	if queryStart < 0 {
		u.pathname = href[pathStart:]
	} else {
		queryStart += pathStart
		u.pathname = href[pathStart:queryStart]
		if queryStart+1 < len(href) {
			u.search = href[queryStart:]
		}
	}
	u.scanned = true
	return true
}

// parse deoptimizes to a full parse, once.
func (u *URL) parse() *url.URL {
	if u.full == nil && u.fullErr == nil {
		u.full, u.fullErr = parseFull(u.Href())
	}
	return u.full
}

func pathnameOf(f *url.URL) string {
	p := f.EscapedPath()
	if p == "" && f.Scheme != "" && f.Opaque == "" {
		return "/"
	}
	return p
}
