package rtc

import (
	"sync"
	"time"

	"github.com/pion/webrtc/v4"
)

// linkMonitor reduces peer connection state changes to one lost-link
// signal. Failed and closed end the link at once; disconnected ends it only
// if the connection has not recovered within the grace period.
type linkMonitor struct {
	grace  time.Duration
	onLost func()

	mu    sync.Mutex
	timer *time.Timer
	seq   uint64
	done  bool
}

func newLinkMonitor(grace time.Duration, onLost func()) *linkMonitor {
	return &linkMonitor{grace: grace, onLost: onLost}
}

func (m *linkMonitor) observe(state webrtc.PeerConnectionState) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.done {
		return
	}

	switch state {
	case webrtc.PeerConnectionStateFailed, webrtc.PeerConnectionStateClosed:
		m.loseLocked()
	case webrtc.PeerConnectionStateDisconnected:
		if m.timer != nil {
			return
		}
		m.seq++
		seq := m.seq
		m.timer = time.AfterFunc(m.grace, func() {
			m.mu.Lock()
			defer m.mu.Unlock()
			if m.done || m.seq != seq {
				return
			}
			m.loseLocked()
		})
	case webrtc.PeerConnectionStateConnected:
		m.cancelLocked()
	}
}

// stop discards any pending grace timer; later states are ignored.
func (m *linkMonitor) stop() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.cancelLocked()
	m.done = true
}

func (m *linkMonitor) cancelLocked() {
	if m.timer != nil {
		m.timer.Stop()
		m.timer = nil
	}
	m.seq++
}

func (m *linkMonitor) loseLocked() {
	m.cancelLocked()
	m.done = true
	go m.onLost()
}
