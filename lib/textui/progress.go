// Copyright (C) 2022-2023  Luke Shumaker <lukeshu@lukeshu.com>
//
// SPDX-License-Identifier: GPL-2.0-or-later

package textui

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/datawire/dlib/dlog"
)

type Stats interface {
	comparable
	fmt.Stringer
}

// Progress logs the latest value passed to Set at a fixed interval,
// skipping ticks where the value has not changed.  Nothing is logged
// until the first call to Set.
type Progress[T Stats] struct {
	ctx      context.Context //nolint:containedctx // captured for the background logger
	lvl      dlog.LogLevel
	interval time.Duration

	cancel context.CancelFunc
	done   chan struct{}

	started atomic.Bool
	cur     atomic.Value // T
	oldStat T
	oldLine string
}

func NewProgress[T Stats](ctx context.Context, lvl dlog.LogLevel, interval time.Duration) *Progress[T] {
	ctx, cancel := context.WithCancel(ctx)
	return &Progress[T]{
		ctx:      ctx,
		lvl:      lvl,
		interval: interval,

		cancel: cancel,
		done:   make(chan struct{}),
	}
}

func (p *Progress[T]) Set(val T) {
	p.cur.Store(val)
	if p.started.CompareAndSwap(false, true) {
		go p.run()
	}
}

// Done logs the final value (if any) and stops the background
// logger.
func (p *Progress[T]) Done() {
	p.cancel()
	if p.started.CompareAndSwap(false, true) {
		close(p.done)
	}
	<-p.done
}

func (p *Progress[T]) flush(force bool) {
	//nolint:forcetypeassert // only ever stores T
	cur := p.cur.Load().(T)
	if !force && cur == p.oldStat {
		return
	}
	p.oldStat = cur

	line := cur.String()
	if !force && line == p.oldLine {
		return
	}
	p.oldLine = line

	dlog.Log(p.ctx, p.lvl, line)
}

func (p *Progress[T]) run() {
	defer close(p.done)
	p.flush(true)
	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()
	for {
		select {
		case <-p.ctx.Done():
			p.flush(false)
			return
		case <-ticker.C:
			p.flush(false)
		}
	}
}
