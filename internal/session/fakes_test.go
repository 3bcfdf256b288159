package session

import (
	"context"
	"sync"

	"github.com/engaging-workplace/clarity/internal/credential"
	"github.com/engaging-workplace/clarity/internal/transcript"
)

type credentialStub struct {
	calls int
	err   error
}

func (c *credentialStub) Credential(context.Context) (credential.Credential, error) {
	c.calls++
	if c.err != nil {
		return credential.Credential{}, c.err
	}
	return credential.Credential{ClientSecret: "ek_test"}, nil
}

type transportMock struct {
	mu       sync.Mutex
	handlers Handlers
	sent     [][]byte
	muted    bool
	closed   int
	sendErr  error
}

func (t *transportMock) Send(msg []byte) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.sendErr != nil {
		return t.sendErr
	}
	t.sent = append(t.sent, append([]byte(nil), msg...))
	return nil
}

func (t *transportMock) SetMuted(muted bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.muted = muted
}

func (t *transportMock) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.closed++
	return nil
}

func (t *transportMock) messages() []string {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]string, len(t.sent))
	for i, m := range t.sent {
		out[i] = string(m)
	}
	return out
}

func (t *transportMock) isMuted() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.muted
}

func (t *transportMock) closeCount() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.closed
}

// emit delivers a raw data-channel message as the transport would.
func (t *transportMock) emit(raw string) {
	t.handlers.OnMessage([]byte(raw))
}

type dialerMock struct {
	mu        sync.Mutex
	noOpen    bool
	err       error
	sendErr   error
	secrets   []string
	transport *transportMock
}

func (d *dialerMock) Dial(_ context.Context, secret string, h Handlers) (Transport, error) {
	d.mu.Lock()
	d.secrets = append(d.secrets, secret)
	if d.err != nil {
		d.mu.Unlock()
		return nil, d.err
	}
	t := &transportMock{handlers: h, sendErr: d.sendErr}
	d.transport = t
	noOpen := d.noOpen
	d.mu.Unlock()

	if !noOpen {
		go h.OnOpen()
	}
	return t, nil
}

func (d *dialerMock) last() *transportMock {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.transport
}

type loggerMock struct {
	mu      sync.Mutex
	records []transcript.Record
	err     error
}

func (l *loggerMock) LogTranscript(_ context.Context, rec transcript.Record) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.records = append(l.records, rec)
	return l.err
}

func (l *loggerMock) logged() []transcript.Record {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]transcript.Record, len(l.records))
	copy(out, l.records)
	return out
}
