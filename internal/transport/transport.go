// SPDX-License-Identifier: MIT
package transport

import (
	"errors"
	"time"
)

// Reading is one bandwidth measurement as published to consumers.
type Reading struct {
	Sequence  uint64    `json:"sequence"`
	Timestamp time.Time `json:"timestamp"`
	ToneHz    float64   `json:"tone_hz"`
	Left      int       `json:"left"`
	Right     int       `json:"right"`
}

// Transport publishes readings. Implementations must be safe for concurrent
// use and must not block the caller for longer than a network write.
type Transport interface {
	Send(r Reading) error
	Close() error
}

// Multi fans readings out to several transports. Every transport is tried;
// errors are joined.
type Multi []Transport

func (m Multi) Send(r Reading) error {
	var errs []error
	for _, t := range m {
		if err := t.Send(r); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (m Multi) Close() error {
	var errs []error
	for _, t := range m {
		if err := t.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Ensure Multi satisfies the interface at compile time.
var _ Transport = Multi(nil)
