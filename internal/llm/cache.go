package llm

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
)

// CacheSize bounds the number of cached responses.
const CacheSize = 256

func newCache(size int, ttl time.Duration) *expirable.LRU[string, Response] {
	return expirable.NewLRU[string, Response](size, nil, ttl)
}

func cacheKey(models []string, p Prompt) string {
	h := sha256.New()
	h.Write([]byte(strings.Join(models, ",")))
	h.Write([]byte{0})
	h.Write([]byte(p.System))
	h.Write([]byte{0})
	h.Write([]byte(p.User))
	return hex.EncodeToString(h.Sum(nil))
}
