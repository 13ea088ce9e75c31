package primitive

import (
	"time"

	"github.com/coocood/freecache"

	"github.com/x-xyz/goauction/base/ctx"
	"github.com/x-xyz/goauction/base/log"
	"github.com/x-xyz/goauction/service/cache/provider"
)

type impl struct {
	name  string
	cache *freecache.Cache
}

// NewPrimitive returns an in-process cache of sizeMB megabytes. Old entries
// are evicted once it is full.
func NewPrimitive(name string, sizeMB int) provider.Provider {
	return &impl{
		name:  name,
		cache: freecache.NewCache(sizeMB * 1024 * 1024),
	}
}

func (im *impl) Get(c ctx.Ctx, key string) ([]byte, time.Duration, error) {
	val, ttl, err := im.cache.GetWithExpiration([]byte(key))
	if err == freecache.ErrNotFound {
		return nil, 0, provider.ErrNotFound
	} else if err != nil {
		c.WithFields(log.Fields{"err": err, "key": key, "name": im.name}).Error("freecache.GetWithExpiration failed")
		return nil, 0, err
	}

	if ttl == 0 {
		return val, 0, nil
	}
	// GetWithExpiration reports the unix second of expiry
	left := time.Until(time.Unix(int64(ttl), 0))
	if left < time.Second {
		left = time.Second
	}
	return val, left.Truncate(time.Second), nil
}

func (im *impl) Set(c ctx.Ctx, key string, value []byte, ttl time.Duration) error {
	if err := im.cache.Set([]byte(key), value, int(ttl.Seconds())); err != nil {
		c.WithFields(log.Fields{"err": err, "key": key, "name": im.name}).Error("freecache.Set failed")
		return err
	}
	return nil
}

func (im *impl) Del(c ctx.Ctx, key string) error {
	im.cache.Del([]byte(key))
	return nil
}
