// SPDX-License-Identifier: MIT
package udp

import (
	"bytes"
	applog "doppler/internal/log"
	"doppler/internal/transport"
	"encoding/binary"
	"fmt"
	"math"
	"sync"
	"time"
)

// PacketSize is the length in bytes of an encoded reading.
const PacketSize = 4 + 8 + 4 + 2 + 2

// UDPPublisher holds the latest reading and sends it over UDP on a fixed
// interval. Ticks without a new reading send nothing, so the packet rate
// never exceeds the sensor rate.
type UDPPublisher struct {
	sender   *UDPSender    // The underlying UDP sender instance.
	interval time.Duration // The interval at which packets are sent.

	ticker   *time.Ticker   // Ticker that triggers packet sending.
	doneChan chan struct{}  // Signals the publisher goroutine to stop.
	stopOnce sync.Once      // Ensures the stop logic runs only once per Start/Stop cycle.
	wg       sync.WaitGroup // Waits for the publisher goroutine to finish during Stop.
	mu       sync.Mutex     // Protects ticker and doneChan during Start/Stop.

	latestMu sync.Mutex
	latest   transport.Reading
	pending  bool // latest has not been sent yet.

	packetBuffer *bytes.Buffer // Reusable buffer for constructing the binary packet.
}

// NewUDPPublisher creates a publisher around sender. If the provided
// interval is invalid (<= 0), it defaults to 16ms (~60Hz).
func NewUDPPublisher(interval time.Duration, sender *UDPSender) (*UDPPublisher, error) {
	if sender == nil {
		return nil, fmt.Errorf("UDPPublisher: UDP sender cannot be nil")
	}

	if interval <= 0 {
		interval = 16 * time.Millisecond
		applog.Warnf("UDPPublisher: Invalid interval provided, defaulting to %s", interval)
	}
	applog.Infof("UDPPublisher: Initializing (Interval: %s)", interval)

	return &UDPPublisher{
		sender:       sender,
		interval:     interval,
		packetBuffer: bytes.NewBuffer(make([]byte, 0, PacketSize)),
	}, nil
}

// Start begins the periodic publishing process. Subsequent calls are no-ops
// while running.
func (p *UDPPublisher) Start() {
	p.mu.Lock()
	if p.ticker != nil {
		p.mu.Unlock()
		applog.Warnf("UDPPublisher: Start called but already running.")
		return
	}

	p.ticker = time.NewTicker(p.interval)
	p.doneChan = make(chan struct{})
	p.stopOnce = sync.Once{}

	// Locals avoid races with Stop clearing the fields.
	ticker := p.ticker
	doneChan := p.doneChan

	p.mu.Unlock()

	p.wg.Add(1)
	go func() {
		defer p.wg.Done()
		applog.Debugf("UDPPublisher: Publisher goroutine started (Interval: %s)", p.interval)
		for {
			select {
			case <-ticker.C:
				p.publishLatest()
			case <-doneChan:
				return
			}
		}
	}()
}

// Stop signals the publisher goroutine to terminate and waits for it to exit.
// Safe to call multiple times.
func (p *UDPPublisher) Stop() error {
	p.mu.Lock()
	if p.ticker == nil {
		p.mu.Unlock()
		return nil
	}

	p.stopOnce.Do(func() {
		close(p.doneChan)
		p.ticker.Stop()
		p.ticker = nil
	})

	p.mu.Unlock()

	p.wg.Wait()
	applog.Debugf("UDPPublisher: Publisher goroutine finished.")
	return nil
}

// Send records r as the latest reading. It never blocks on the network.
func (p *UDPPublisher) Send(r transport.Reading) error {
	p.latestMu.Lock()
	p.latest = r
	p.pending = true
	p.latestMu.Unlock()
	return nil
}

/*
UDP Packet Structure (BigEndian)

+-----------------------------------------------------------------------------+
| Field             | Data Type      | Size (Bytes) | Description             |
|-------------------|----------------|--------------|-------------------------|
| Sequence Number   | uint32         | 4            | Reading sequence        |
| Timestamp         | int64          | 8            | Nanoseconds since epoch |
| Tone Frequency    | float32        | 4            | Calibrated tone (Hz)    |
| Left Bandwidth    | uint16         | 2            | Bins below the tone     |
| Right Bandwidth   | uint16         | 2            | Bins above the tone     |
+-----------------------------------------------------------------------------+
*/

// EncodePacket appends the binary form of r to buf.
func EncodePacket(buf *bytes.Buffer, r transport.Reading) {
	var b [PacketSize]byte
	binary.BigEndian.PutUint32(b[0:4], uint32(r.Sequence))
	binary.BigEndian.PutUint64(b[4:12], uint64(r.Timestamp.UnixNano()))
	binary.BigEndian.PutUint32(b[12:16], math.Float32bits(float32(r.ToneHz)))
	binary.BigEndian.PutUint16(b[16:18], clampUint16(r.Left))
	binary.BigEndian.PutUint16(b[18:20], clampUint16(r.Right))
	buf.Write(b[:])
}

// DecodePacket parses a packet produced by EncodePacket.
func DecodePacket(data []byte) (transport.Reading, error) {
	if len(data) != PacketSize {
		return transport.Reading{}, fmt.Errorf("packet is %d bytes, want %d", len(data), PacketSize)
	}
	return transport.Reading{
		Sequence:  uint64(binary.BigEndian.Uint32(data[0:4])),
		Timestamp: time.Unix(0, int64(binary.BigEndian.Uint64(data[4:12]))),
		ToneHz:    float64(math.Float32frombits(binary.BigEndian.Uint32(data[12:16]))),
		Left:      int(binary.BigEndian.Uint16(data[16:18])),
		Right:     int(binary.BigEndian.Uint16(data[18:20])),
	}, nil
}

func clampUint16(v int) uint16 {
	return uint16(max(0, min(v, math.MaxUint16)))
}

// publishLatest sends the latest reading if it has not been sent yet.
func (p *UDPPublisher) publishLatest() {
	p.latestMu.Lock()
	if !p.pending {
		p.latestMu.Unlock()
		return
	}
	r := p.latest
	p.pending = false
	p.latestMu.Unlock()

	p.packetBuffer.Reset()
	EncodePacket(p.packetBuffer, r)

	// Errors are logged by the sender.
	if err := p.sender.Send(p.packetBuffer.Bytes()); err == nil {
		applog.Debugf("UDPPublisher: Sent reading %d (%d bytes)", r.Sequence, p.packetBuffer.Len())
	}
}

// Close stops the publisher goroutine and closes the sender.
func (p *UDPPublisher) Close() error {
	if err := p.Stop(); err != nil {
		return err
	}
	return p.sender.Close()
}

// Ensure UDPPublisher satisfies the interface at compile time.
var _ transport.Transport = (*UDPPublisher)(nil)
