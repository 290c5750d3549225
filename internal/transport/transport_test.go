// SPDX-License-Identifier: MIT
package transport

import (
	"errors"
	"testing"
	"time"
)

type recordingTransport struct {
	sent     []Reading
	sendErr  error
	closeErr error
	closed   bool
}

func (r *recordingTransport) Send(reading Reading) error {
	r.sent = append(r.sent, reading)
	return r.sendErr
}

func (r *recordingTransport) Close() error {
	r.closed = true
	return r.closeErr
}

func TestMultiSendReachesEveryTransport(t *testing.T) {
	errFirst := errors.New("first failed")
	first := &recordingTransport{sendErr: errFirst}
	second := &recordingTransport{}
	m := Multi{first, second}

	r := Reading{Sequence: 7, Timestamp: time.Unix(1, 0), ToneHz: 20000, Left: 3, Right: 5}
	err := m.Send(r)

	if !errors.Is(err, errFirst) {
		t.Errorf("Send() error = %v, want it to wrap %v", err, errFirst)
	}
	if len(second.sent) != 1 || second.sent[0] != r {
		t.Errorf("second transport got %+v, want [%+v]", second.sent, r)
	}
}

func TestMultiCloseJoinsErrors(t *testing.T) {
	errA := errors.New("a")
	errB := errors.New("b")
	a := &recordingTransport{closeErr: errA}
	b := &recordingTransport{closeErr: errB}
	c := &recordingTransport{}

	err := Multi{a, b, c}.Close()
	if !errors.Is(err, errA) || !errors.Is(err, errB) {
		t.Errorf("Close() error = %v, want both errors joined", err)
	}
	if !a.closed || !b.closed || !c.closed {
		t.Error("every transport should be closed")
	}
}

func TestMultiEmpty(t *testing.T) {
	if err := (Multi{}).Send(Reading{}); err != nil {
		t.Errorf("empty Send: %v", err)
	}
	if err := (Multi{}).Close(); err != nil {
		t.Errorf("empty Close: %v", err)
	}
}

func TestLoggingTransport(t *testing.T) {
	lt := NewLoggingTransport()
	if err := lt.Send(Reading{Sequence: 1, Left: 2, Right: 3}); err != nil {
		t.Errorf("Send: %v", err)
	}
	if err := lt.Close(); err != nil {
		t.Errorf("Close: %v", err)
	}
}
