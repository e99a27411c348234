// Copyright (C) 2023  Luke Shumaker <lukeshu@lukeshu.com>
//
// SPDX-License-Identifier: GPL-2.0-or-later

package f2fsmkfs

// Option configures a Builder.
type Option func(*Builder)

// WithMainSegments sets the size of the main area.
func WithMainSegments(n uint32) Option {
	return func(b *Builder) {
		b.mainSegments = n
	}
}

// WithLabel sets the volume name.
func WithLabel(label string) Option {
	return func(b *Builder) {
		b.label = label
	}
}

// WithCompactSummaries stores the data logs' summaries in the packed
// form.
func WithCompactSummaries() Option {
	return func(b *Builder) {
		b.compact = true
	}
}

// WithUncleanUnmount leaves the unmount flag off the checkpoint, so
// node summaries are not carried in the pack.
func WithUncleanUnmount() Option {
	return func(b *Builder) {
		b.unclean = true
	}
}

// WithPayload reserves n payload blocks after the checkpoint head; the
// SIT version bitmap moves there.
func WithPayload(n uint32) Option {
	return func(b *Builder) {
		b.payload = n
	}
}

// WithLargeNATBitmap uses the layout in which the CRC sits right after
// the fixed head and the version bitmaps follow it unprotected.
func WithLargeNATBitmap() Option {
	return func(b *Builder) {
		b.largeNATBitmap = true
	}
}

// WithVersions sets the versions of checkpoint packs 0 and 1.
func WithVersions(v0, v1 uint64) Option {
	return func(b *Builder) {
		b.versions = [2]uint64{v0, v1}
	}
}
