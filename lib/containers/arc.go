// Copyright (C) 2022-2023  Luke Shumaker <lukeshu@lukeshu.com>
//
// SPDX-License-Identifier: GPL-2.0-or-later

package containers

import (
	lru "github.com/hashicorp/golang-lru"
)

// ARCache is a typed, goroutine-safe Adaptive Replacement Cache.  A
// zero ARCache is not usable; it must be initialized with
// NewARCache.
type ARCache[K comparable, V any] struct {
	inner *lru.ARCCache
}

// NewARCache returns a cache holding at most size entries.  It
// panics if size is not positive.
func NewARCache[K comparable, V any](size int) *ARCache[K, V] {
	inner, err := lru.NewARC(size)
	if err != nil {
		panic(err)
	}
	return &ARCache[K, V]{inner: inner}
}

func (c *ARCache[K, V]) Add(key K, value V) {
	c.inner.Add(key, value)
}

func (c *ARCache[K, V]) Get(key K) (value V, ok bool) {
	_value, ok := c.inner.Get(key)
	if ok {
		//nolint:forcetypeassert // Typed wrapper around untyped lib.
		value = _value.(V)
	}
	return value, ok
}

func (c *ARCache[K, V]) Len() int {
	return c.inner.Len()
}

func (c *ARCache[K, V]) Purge() {
	c.inner.Purge()
}

// GetOrLoad returns the cached value for key, calling load to fill
// it on a miss.  Values for which load returns an error are not
// cached, so a later call retries the load.
func (c *ARCache[K, V]) GetOrLoad(key K, load func() (V, error)) (V, error) {
	if value, ok := c.Get(key); ok {
		return value, nil
	}
	value, err := load()
	if err != nil {
		return value, err
	}
	c.Add(key, value)
	return value, nil
}
