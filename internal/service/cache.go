// cache.go — LRU-кэш списка имён каталога с TTL.
// Обёртка над hashicorp/golang-lru/v2/expirable.
//
// Fuzzy-подсказки сравнивают запрос с каждым именем каталога;
// перечитывать весь каталог на каждый неудачный поиск дорого,
// поэтому список имён кэшируется с коротким TTL.
package service

import (
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// catalogKey — единственный ключ кэша: весь список имён как одно значение.
const catalogKey = "catalog"

// Prometheus-метрики кэша.
var (
	cacheHitsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "bot_cache_hits_total",
		Help: "Общее количество попаданий в LRU-кэш имён каталога.",
	})
	cacheMissesTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "bot_cache_misses_total",
		Help: "Общее количество промахов LRU-кэша имён каталога.",
	})
)

// CacheService — in-memory кэш списка имён каталога с автоматическим TTL.
type CacheService struct {
	cache *expirable.LRU[string, []string]
}

// NewCacheService создаёт LRU-кэш.
// maxSize — максимальное количество записей (список имён занимает одну).
// ttl — время жизни записи после добавления.
func NewCacheService(maxSize int, ttl time.Duration) *CacheService {
	cache := expirable.NewLRU[string, []string](maxSize, nil, ttl)
	return &CacheService{cache: cache}
}

// Names возвращает кэшированный список имён каталога.
// Возвращает (список, true) при hit или (nil, false) при miss.
func (c *CacheService) Names() ([]string, bool) {
	val, ok := c.cache.Get(catalogKey)
	if ok {
		cacheHitsTotal.Inc()
		return val, true
	}
	cacheMissesTotal.Inc()
	return nil, false
}

// SetNames сохраняет список имён каталога.
func (c *CacheService) SetNames(names []string) {
	c.cache.Add(catalogKey, names)
}

// Invalidate сбрасывает кэш (после индексации новых файлов).
func (c *CacheService) Invalidate() {
	c.cache.Remove(catalogKey)
}
