// Package cache реализует in-process кэш профилей поставщиков на базе ristretto.
package cache

import (
	"time"

	"github.com/dgraph-io/ristretto/v2"

	"github.com/mmeshcher/agrotender/internal/model"
)

// ProfileCache кэширует профили поставщиков, которые только читаются при оценке предложений.
type ProfileCache struct {
	c   *ristretto.Cache[int64, model.VendorProfile]
	ttl time.Duration
}

// NewProfileCache создаёт кэш на maxItems профилей с временем жизни записи ttl.
func NewProfileCache(maxItems int64, ttl time.Duration) (*ProfileCache, error) {
	c, err := ristretto.NewCache(&ristretto.Config[int64, model.VendorProfile]{
		NumCounters: maxItems * 10,
		MaxCost:     maxItems,
		BufferItems: 64,
	})
	if err != nil {
		return nil, err
	}
	return &ProfileCache{c: c, ttl: ttl}, nil
}

// Get возвращает профиль из кэша.
func (p *ProfileCache) Get(vendorID int64) (model.VendorProfile, bool) {
	return p.c.Get(vendorID)
}

// Set сохраняет профиль. Запись становится видимой после обработки буфера ristretto.
func (p *ProfileCache) Set(profile model.VendorProfile) {
	p.c.SetWithTTL(profile.VendorID, profile, 1, p.ttl)
}

// Wait дожидается применения буферизованных записей.
func (p *ProfileCache) Wait() {
	p.c.Wait()
}

// Close освобождает ресурсы кэша.
func (p *ProfileCache) Close() {
	p.c.Close()
}
