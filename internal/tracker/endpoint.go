package tracker

import (
	"net/url"
	"strconv"
	"strings"
)

// Endpoint locates the tracker's web UI and API.
type Endpoint struct {
	Protocol string // "http" or "https" (default)
	Host     string
	Port     int // 0 or the protocol default is omitted from URLs
	BasePath string
}

// Origin returns protocol://host[:port]/basePath without a trailing slash.
func (e Endpoint) Origin() string {
	proto := strings.ToLower(strings.TrimSpace(e.Protocol))
	if proto == "" {
		proto = "https"
	}
	host := e.Host
	if e.Port > 0 && !isDefaultPort(proto, e.Port) {
		host += ":" + strconv.Itoa(e.Port)
	}
	out := proto + "://" + host
	if base := strings.Trim(e.BasePath, "/"); base != "" {
		out += "/" + base
	}
	return out
}

// BrowseURL is the human-facing issue page.
func (e Endpoint) BrowseURL(key string) string {
	return e.Origin() + "/browse/" + url.PathEscape(key)
}

func isDefaultPort(proto string, port int) bool {
	return (proto == "http" && port == 80) || (proto == "https" && port == 443)
}
