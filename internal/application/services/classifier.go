package services

import (
	"fmt"
	"net/url"
	"path"
	"regexp"
	"strings"

	"github.com/avatarctic/offline-sync-engine/internal/core/domain/request"
)

var (
	staticExtensions  = []string{".js", ".css", ".html"}
	contentExtensions = []string{".pdf", ".mp3", ".wav"}
)

const apiPathMarker = "/api/"

// ClassifierConfig enumerates the rule inputs.
type ClassifierConfig struct {
	CoreAssets          []string
	ContentDirs         []string
	BackendHostPatterns []string
}

// Classifier assigns a request class; the first matching rule wins.
type Classifier struct {
	coreAssets   map[string]struct{}
	contentDirs  []string
	backendHosts []*regexp.Regexp
}

func NewClassifier(cfg ClassifierConfig) (*Classifier, error) {
	c := &Classifier{coreAssets: make(map[string]struct{}, len(cfg.CoreAssets))}
	for _, asset := range cfg.CoreAssets {
		c.coreAssets[assetPath(asset)] = struct{}{}
	}
	c.contentDirs = append(c.contentDirs, cfg.ContentDirs...)
	for _, pattern := range cfg.BackendHostPatterns {
		re, err := regexp.Compile(pattern)
		if err != nil {
			return nil, fmt.Errorf("invalid backend host pattern %q: %w", pattern, err)
		}
		c.backendHosts = append(c.backendHosts, re)
	}
	return c, nil
}

// assetPath reduces a manifest entry (absolute URL or path) to its path.
func assetPath(asset string) string {
	if u, err := url.Parse(asset); err == nil && u.Path != "" {
		return u.Path
	}
	if asset == "" {
		return "/"
	}
	return asset
}

func (c *Classifier) Classify(u *url.URL) request.Class {
	p := u.Path
	if p == "" {
		p = "/"
	}
	ext := strings.ToLower(path.Ext(p))

	if _, ok := c.coreAssets[p]; ok || hasExt(ext, staticExtensions) {
		return request.ClassStatic
	}
	if strings.Contains(p, apiPathMarker) || c.isBackendHost(u.Hostname()) {
		return request.ClassAPI
	}
	if c.inContentDir(p) || hasExt(ext, contentExtensions) {
		return request.ClassEducational
	}
	return request.ClassDynamic
}

func (c *Classifier) isBackendHost(host string) bool {
	if host == "" {
		return false
	}
	for _, re := range c.backendHosts {
		if re.MatchString(host) {
			return true
		}
	}
	return false
}

func (c *Classifier) inContentDir(p string) bool {
	for _, dir := range c.contentDirs {
		if strings.HasPrefix(p, dir) {
			return true
		}
	}
	return false
}

func hasExt(ext string, set []string) bool {
	for _, e := range set {
		if ext == e {
			return true
		}
	}
	return false
}
