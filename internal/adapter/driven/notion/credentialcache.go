package notion

import (
	"crypto/sha256"
	"net/http"
	"sync"

	"github.com/gregjones/httpcache"
)

// credentialCache is an http.RoundTripper that keeps a separate httpcache
// store per Authorization header. httpcache keys entries by URL alone, so a
// single shared store would replay one integration's page to another token
// asking for the same URL.
//
// Tokens are held only as SHA-256 digests.
type credentialCache struct {
	base http.RoundTripper

	mu     sync.Mutex
	stores map[[sha256.Size]byte]*httpcache.Transport
}

func newCredentialCache(base http.RoundTripper) *credentialCache {
	if base == nil {
		base = http.DefaultTransport
	}
	return &credentialCache{
		base:   base,
		stores: make(map[[sha256.Size]byte]*httpcache.Transport),
	}
}

func (c *credentialCache) RoundTrip(req *http.Request) (*http.Response, error) {
	return c.transportFor(req.Header.Get("Authorization")).RoundTrip(req)
}

func (c *credentialCache) transportFor(authorization string) *httpcache.Transport {
	key := sha256.Sum256([]byte(authorization))

	c.mu.Lock()
	defer c.mu.Unlock()

	t, ok := c.stores[key]
	if !ok {
		t = httpcache.NewMemoryCacheTransport()
		t.Transport = c.base
		c.stores[key] = t
	}
	return t
}
