package composer

import (
	"context"
	"strconv"

	lru "github.com/hashicorp/golang-lru"
	"golang.org/x/sync/singleflight"

	"pixshop/internal/metrics"
	"pixshop/internal/providers/genai"
)

const defaultSubjectCacheSize = 128

// CachedDescriber remembers descriptions per image and collapses concurrent
// requests for the same image into one call. Errors are not cached.
type CachedDescriber struct {
	next  Describer
	cache *lru.Cache
	group singleflight.Group
}

// NewCachedDescriber wraps next with an LRU of size entries.
func NewCachedDescriber(next Describer, size int) (*CachedDescriber, error) {
	if size <= 0 {
		size = defaultSubjectCacheSize
	}
	cache, err := lru.New(size)
	if err != nil {
		return nil, err
	}
	return &CachedDescriber{next: next, cache: cache}, nil
}

// DescribeImage implements Describer.
func (d *CachedDescriber) DescribeImage(ctx context.Context, img genai.ImageInput, fast bool) (string, error) {
	key := img.Hash() + ":" + strconv.FormatBool(fast)
	if v, ok := d.cache.Get(key); ok {
		metrics.SubjectCache.WithLabelValues("hit").Inc()
		return v.(string), nil
	}

	v, err, _ := d.group.Do(key, func() (interface{}, error) {
		desc, err := d.next.DescribeImage(ctx, img, fast)
		if err != nil {
			return "", err
		}
		d.cache.Add(key, desc)
		return desc, nil
	})
	if err != nil {
		metrics.SubjectCache.WithLabelValues("error").Inc()
		return "", err
	}
	metrics.SubjectCache.WithLabelValues("miss").Inc()
	return v.(string), nil
}

// Len reports the number of cached descriptions.
func (d *CachedDescriber) Len() int {
	return d.cache.Len()
}
