// Package mcversion maintains a process-wide cache of the Minecraft version
// manifest. The manifest changes rarely and the upstream source is a shared
// public endpoint, so the cache holds entries for a fixed validity window
// and collapses concurrent refreshes into a single in-flight fetch rather
// than stampeding upstream.
package mcversion

import (
	"fmt"
	"sync"
	"time"

	"github.com/emberhost/ember/internal/logging"
	"github.com/go-resty/resty/v2"
)

// DefaultManifestURL is Mojang's published version manifest.
const DefaultManifestURL = "https://launchermeta.mojang.com/mc/game/version_manifest.json"

// DefaultTTL is the cache validity window. Release cadence makes anything
// tighter than minutes wasted traffic.
const DefaultTTL = 30 * time.Minute

// Version is one entry of the upstream manifest.
type Version struct {
	ID          string    `json:"id"`
	Type        string    `json:"type"`
	ReleaseTime time.Time `json:"releaseTime"`
}

// Manifest is the upstream version manifest shape.
type Manifest struct {
	Latest struct {
		Release  string `json:"release"`
		Snapshot string `json:"snapshot"`
	} `json:"latest"`
	Versions []Version `json:"versions"`
}

// Cache is the process-wide TTL cache over the version manifest. The mutex
// is held across the upstream fetch, so concurrent refreshes collapse: the
// second caller blocks, then finds fresh data and returns without fetching.
type Cache struct {
	client *resty.Client
	url    string
	ttl    time.Duration

	mu        sync.Mutex
	manifest  *Manifest
	fetchedAt time.Time
}

// NewCache creates a manifest cache against url (DefaultManifestURL when
// empty) with the given TTL (DefaultTTL when zero).
func NewCache(url string, ttl time.Duration) *Cache {
	if url == "" {
		url = DefaultManifestURL
	}
	if ttl == 0 {
		ttl = DefaultTTL
	}

	client := resty.New().
		SetTimeout(10 * time.Second).
		SetHeader("Accept", "application/json")

	return &Cache{client: client, url: url, ttl: ttl}
}

// Get returns the cached manifest, refreshing from upstream when the
// validity window has lapsed. A refresh failure with stale data available
// serves the stale copy rather than failing the caller.
func (c *Cache) Get() (*Manifest, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.manifest != nil && time.Since(c.fetchedAt) < c.ttl {
		return c.manifest, nil
	}

	var manifest Manifest
	resp, err := c.client.R().SetResult(&manifest).Get(c.url)
	if err != nil || resp.IsError() {
		if c.manifest != nil {
			logging.Warn("Version manifest refresh failed, serving stale copy: %v", err)
			return c.manifest, nil
		}
		if err != nil {
			return nil, fmt.Errorf("fetch version manifest: %w", err)
		}
		return nil, fmt.Errorf("fetch version manifest: upstream returned %d", resp.StatusCode())
	}

	c.manifest = &manifest
	c.fetchedAt = time.Now()
	logging.Debug("Version manifest refreshed: %d versions, latest release %s",
		len(manifest.Versions), manifest.Latest.Release)
	return c.manifest, nil
}

// LatestRelease returns the id of the newest stable release, or an empty
// string when the manifest is unavailable.
func (c *Cache) LatestRelease() string {
	manifest, err := c.Get()
	if err != nil {
		return ""
	}
	return manifest.Latest.Release
}
