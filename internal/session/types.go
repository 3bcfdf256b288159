package session

import (
	"context"

	"github.com/engaging-workplace/clarity/internal/credential"
	"github.com/engaging-workplace/clarity/internal/transcript"
)

// CredentialSource fetches the ephemeral credential for one session.
type CredentialSource interface {
	Credential(ctx context.Context) (credential.Credential, error)
}

// TranscriptLogger delivers one transcript record. Failures are reported to
// the caller and never retried.
type TranscriptLogger interface {
	LogTranscript(ctx context.Context, rec transcript.Record) error
}

// Handlers receive transport callbacks. They may be called from any
// goroutine, including after the transport was closed.
type Handlers struct {
	// OnOpen fires once the event channel can carry messages.
	OnOpen func()
	// OnMessage receives each inbound event channel message.
	OnMessage func(data []byte)
	// OnClose fires when the remote side or the network ends the session.
	OnClose func()
}

// Transport is one live realtime media session.
type Transport interface {
	Send(msg []byte) error
	// SetMuted silences playback of the agent's audio only.
	SetMuted(muted bool)
	// Close tears down the event channel, the connection and the audio
	// sink. It is safe to call more than once.
	Close() error
}

// Dialer opens a transport with an ephemeral credential. Dial returns once
// the session description exchange succeeded; Handlers.OnOpen follows.
type Dialer interface {
	Dial(ctx context.Context, secret string, h Handlers) (Transport, error)
}
