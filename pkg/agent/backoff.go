// SPDX-FileCopyrightText: 2024 The relay-tunnel Authors
//
// SPDX-License-Identifier: GPL-3.0-or-later

package agent

import (
	"math"
	"math/rand"
	"time"
)

// Backoff calculates the delay between two connection attempts.
type Backoff struct {
	// Initial delay after the first failure.
	Initial time.Duration

	// Max delay, before applying the jitter.
	Max time.Duration

	// Multiplier applied for each further failure.
	Multiplier float64

	// Jitter as a fraction of the delay, e.g., 0.2 for ±20%. Zero selects the default, NoJitter disables it.
	Jitter float64
}

// NoJitter disables the Backoff's jitter.
const NoJitter = -1.0

// DefaultBackoff starts at one second, doubles each time up to one minute and varies by ±20%.
func DefaultBackoff() Backoff {
	return Backoff{
		Initial:    time.Second,
		Max:        time.Minute,
		Multiplier: 2,
		Jitter:     0.2,
	}
}

// withDefaults replaces unset fields by those of the DefaultBackoff.
func (b Backoff) withDefaults() Backoff {
	def := DefaultBackoff()

	if b.Initial <= 0 {
		b.Initial = def.Initial
	}
	if b.Max < b.Initial {
		b.Max = def.Max
		if b.Max < b.Initial {
			b.Max = b.Initial
		}
	}
	if b.Multiplier < 1 {
		b.Multiplier = def.Multiplier
	}
	if b.Jitter == 0 || b.Jitter >= 1 {
		b.Jitter = def.Jitter
	} else if b.Jitter < 0 {
		b.Jitter = NoJitter
	}
	return b
}

// Delay before the next attempt after the given number of consecutive failures, starting at one.
func (b Backoff) Delay(failures int) time.Duration {
	if failures < 1 {
		failures = 1
	}

	delay := float64(b.Initial) * math.Pow(b.Multiplier, float64(failures-1))
	if delay > float64(b.Max) || math.IsInf(delay, 0) || math.IsNaN(delay) {
		delay = float64(b.Max)
	}

	if b.Jitter > 0 {
		delay *= 1 + b.Jitter*(2*rand.Float64()-1)
	}

	return time.Duration(delay)
}
