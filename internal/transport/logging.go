// SPDX-License-Identifier: MIT
package transport

import (
	applog "doppler/internal/log"
)

// LoggingTransport implements the Transport interface by logging readings.
type LoggingTransport struct{}

// NewLoggingTransport creates a new LoggingTransport instance.
func NewLoggingTransport() *LoggingTransport {
	applog.Infof("Transport: Using LoggingTransport")
	return &LoggingTransport{}
}

// Send logs the reading at info level.
func (lt *LoggingTransport) Send(r Reading) error {
	applog.Infof("Reading %d: tone=%.1f Hz left=%d right=%d", r.Sequence, r.ToneHz, r.Left, r.Right)
	return nil // Logging transport never fails to "send"
}

// Close is a no-op for LoggingTransport.
func (lt *LoggingTransport) Close() error {
	applog.Debugf("LoggingTransport: Close called.")
	return nil
}

// Ensure LoggingTransport satisfies the interface at compile time.
var _ Transport = (*LoggingTransport)(nil)
