// Package cache is the HTTP cache strategy engine that sits between the
// client and the marketplace origin.
package cache

import (
	"net/http"
	"net/url"
	"regexp"
	"strings"
)

// Strategy decides whether the network or the cache answers first.
type Strategy int

const (
	NetworkFirst Strategy = iota
	CacheFirst
)

func (s Strategy) String() string {
	if s == CacheFirst {
		return "cache-first"
	}
	return "network-first"
}

// Class names a bucket family; the bucket name adds the cache version.
type Class string

const (
	Static  Class = "static"
	Dynamic Class = "dynamic"
	Image   Class = "image"
	API     Class = "api"
)

// BucketName returns "<class>-cache-<version>".
func BucketName(c Class, version string) string {
	return string(c) + "-cache-" + version
}

// Route is the outcome of Select.
type Route struct {
	Strategy Strategy
	Class    Class
}

var (
	imagePath  = regexp.MustCompile(`(?i)\.(jpg|jpeg|png|gif|webp|avif|svg|ico)$`)
	scriptPath = regexp.MustCompile(`(?i)\.(js|css)$`)
)

// Select maps a request URL to its strategy and bucket. First match wins.
func Select(u *url.URL) Route {
	p := u.Path
	switch {
	case strings.HasPrefix(p, "/api/"):
		return Route{NetworkFirst, API}
	case imagePath.MatchString(p):
		return Route{CacheFirst, Image}
	case scriptPath.MatchString(p):
		return Route{CacheFirst, Static}
	case strings.HasSuffix(p, ".html") || p == "/":
		return Route{NetworkFirst, Static}
	default:
		return Route{CacheFirst, Dynamic}
	}
}

var uncacheableSchemes = map[string]bool{
	"data":             true,
	"chrome-extension": true,
	"ws":               true,
	"wss":              true,
}

// Cacheable reports whether the engine may answer req. Everything else goes
// to the network untouched.
func Cacheable(req *http.Request) bool {
	if req.Method != http.MethodGet {
		return false
	}
	if uncacheableSchemes[strings.ToLower(req.URL.Scheme)] {
		return false
	}
	return !isUpgrade(req)
}

func isUpgrade(req *http.Request) bool {
	return strings.EqualFold(req.Header.Get("Upgrade"), "websocket")
}

// IsNavigation reports whether req loads a page rather than a subresource.
func IsNavigation(req *http.Request) bool {
	if req.Header.Get("Sec-Fetch-Mode") == "navigate" {
		return true
	}
	return req.Method == http.MethodGet && strings.Contains(req.Header.Get("Accept"), "text/html")
}
