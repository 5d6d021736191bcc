package analysis

import (
	"fmt"
	"sort"
	"sync"

	"github.com/ianlancetaylor/demangle"
)

// symbolCache memoizes demangled symbol names.
type symbolCache struct {
	mu            sync.RWMutex
	demangleCache map[string]string
	hitCount      map[string]int
}

var cache = &symbolCache{
	demangleCache: make(map[string]string),
	hitCount:      make(map[string]int),
}

// CachedDemangle performs demangling with caching support. Plain C
// symbols, the common case in a kernel, come back unchanged.
func CachedDemangle(mangled string) string {
	cache.mu.Lock()
	defer cache.mu.Unlock()
	if cached, exists := cache.demangleCache[mangled]; exists {
		cache.hitCount[mangled]++
		return cached
	}
	demangled := demangle.Filter(mangled, demangle.NoClones)
	cache.demangleCache[mangled] = demangled
	cache.hitCount[mangled] = 1
	return demangled
}

// GetDemangleCacheStats returns statistics about the demangle cache.
func GetDemangleCacheStats() (totalSymbols int, cacheHits int, topSymbols []string) {
	cache.mu.RLock()
	defer cache.mu.RUnlock()

	totalHits := 0
	type symbolHit struct {
		symbol string
		count  int
	}
	var symbols []symbolHit
	for sym, count := range cache.hitCount {
		totalHits += count
		symbols = append(symbols, symbolHit{sym, count})
	}
	sort.Slice(symbols, func(i, j int) bool {
		if symbols[i].count != symbols[j].count {
			return symbols[i].count > symbols[j].count
		}
		return symbols[i].symbol < symbols[j].symbol
	})

	var top []string
	for i := 0; i < 5 && i < len(symbols); i++ {
		top = append(top, fmt.Sprintf("%s (%d hits)", symbols[i].symbol, symbols[i].count))
	}

	return len(cache.demangleCache), totalHits - len(cache.demangleCache), top
}

// ShortName demangles sym and truncates it to max runes.
func ShortName(sym string, max int) string {
	name := []rune(CachedDemangle(sym))
	if max > 3 && len(name) > max {
		return string(name[:max-3]) + "..."
	}
	return string(name)
}
