// Package gdrive mirrors the daily Markdown transcript files to a Google
// Drive folder as Google Docs.
package gdrive

import (
	"context"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/oauth2/google"
	"google.golang.org/api/drive/v3"
	"google.golang.org/api/option"

	"github.com/engaging-workplace/clarity/internal/observability"
	"github.com/engaging-workplace/clarity/internal/storage"
	"github.com/engaging-workplace/clarity/internal/transcript"
)

type Syncer struct {
	service  *drive.Service
	folderID string
	fileIDs  map[string]string
	mu       sync.Mutex
}

// NewSyncerFromFile authenticates with a service-account key file.
func NewSyncerFromFile(ctx context.Context, credPath, folderID string) (*Syncer, error) {
	creds, err := os.ReadFile(credPath)
	if err != nil {
		return nil, fmt.Errorf("read credentials: %w", err)
	}

	config, err := google.CredentialsFromJSONWithTypeAndParams(ctx, creds, google.ServiceAccount, google.CredentialsParams{Scopes: []string{drive.DriveFileScope}})
	if err != nil {
		return nil, fmt.Errorf("parse credentials: %w", err)
	}
	return NewSyncer(ctx, folderID, option.WithCredentials(config))
}

func NewSyncer(ctx context.Context, folderID string, opts ...option.ClientOption) (*Syncer, error) {
	svc, err := drive.NewService(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("create drive service: %w", err)
	}

	return &Syncer{
		service:  svc,
		folderID: folderID,
		fileIDs:  make(map[string]string),
	}, nil
}

// Sync uploads the day file at localPath, creating the Doc on first use
// and replacing its content afterwards.
func (s *Syncer) Sync(ctx context.Context, localPath, date string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	f, err := os.Open(localPath)
	if err != nil {
		return fmt.Errorf("open %s: %w", localPath, err)
	}
	defer func() { _ = f.Close() }()

	if fileID, ok := s.fileIDs[date]; ok {
		_, err = s.service.Files.Update(fileID, &drive.File{}).Media(f).Context(ctx).Do()
		if err != nil {
			return fmt.Errorf("drive update: %w", err)
		}
		return nil
	}

	doc, err := s.service.Files.Create(&drive.File{
		Name:     "clarity-" + date,
		MimeType: "application/vnd.google-apps.document",
		Parents:  []string{s.folderID},
	}).Media(f).Context(ctx).Do()
	if err != nil {
		return fmt.Errorf("drive create: %w", err)
	}

	s.fileIDs[date] = doc.Id
	return nil
}

// Mirror appends records to the local day file and pushes changed days to
// Drive on a fixed interval, so a burst of utterances costs one upload.
type Mirror struct {
	writer   *storage.Writer
	syncer   *Syncer
	interval time.Duration
	log      zerolog.Logger

	mu    sync.Mutex
	dirty map[string]string
}

func NewMirror(writer *storage.Writer, syncer *Syncer, interval time.Duration) *Mirror {
	if interval <= 0 {
		interval = 30 * time.Second
	}
	return &Mirror{
		writer:   writer,
		syncer:   syncer,
		interval: interval,
		log:      observability.Component("gdrive"),
		dirty:    make(map[string]string),
	}
}

// Write satisfies transcript.Sink.
func (m *Mirror) Write(ctx context.Context, rec transcript.Record) error {
	if err := m.writer.Write(ctx, rec); err != nil {
		return err
	}
	at, err := rec.Time()
	if err != nil {
		return err
	}

	m.mu.Lock()
	m.dirty[at.UTC().Format("2006-01-02")] = m.writer.PathFor(at)
	m.mu.Unlock()
	return nil
}

// Run syncs dirty days every interval until ctx ends, then flushes once
// more.
func (m *Mirror) Run(ctx context.Context) {
	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			flushCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
			m.Flush(flushCtx)
			cancel()
			return
		case <-ticker.C:
			m.Flush(ctx)
		}
	}
}

// Flush uploads every day written since the last flush. Failed days stay
// dirty for the next round.
func (m *Mirror) Flush(ctx context.Context) {
	m.mu.Lock()
	pending := m.dirty
	m.dirty = make(map[string]string)
	m.mu.Unlock()

	for date, path := range pending {
		if err := m.syncer.Sync(ctx, path, date); err != nil {
			m.log.Warn().Err(err).Str("date", date).Msg("drive sync failed")
			m.mu.Lock()
			if _, ok := m.dirty[date]; !ok {
				m.dirty[date] = path
			}
			m.mu.Unlock()
		}
	}
}
