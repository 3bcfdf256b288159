// Package warehouse appends transcript records to an analytics table.
package warehouse

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"golang.org/x/oauth2/google"
	bigquery "google.golang.org/api/bigquery/v2"
	"google.golang.org/api/option"

	"github.com/engaging-workplace/clarity/internal/transcript"
)

// Options addresses the table and carries service-account material. When
// ClientEmail or PrivateKey is empty, ambient default credentials are used.
type Options struct {
	ProjectID   string
	Dataset     string
	Table       string
	ClientEmail string
	PrivateKey  string

	// ClientOptions replace credential discovery entirely when set.
	ClientOptions []option.ClientOption
}

// InsertError reports rows rejected by the warehouse.
type InsertError struct {
	Reasons []string
}

func (e *InsertError) Error() string {
	return "bigquery rejected row: " + strings.Join(e.Reasons, "; ")
}

// BigQuery inserts one row per record into project.dataset.table.
type BigQuery struct {
	svc     *bigquery.Service
	project string
	dataset string
	table   string
}

func NewBigQuery(ctx context.Context, opts Options) (*BigQuery, error) {
	if opts.ProjectID == "" || opts.Dataset == "" || opts.Table == "" {
		return nil, fmt.Errorf("%w: bigquery project, dataset and table are required", transcript.ErrNotConfigured)
	}

	clientOpts := opts.ClientOptions
	if len(clientOpts) == 0 {
		creds, err := credentials(ctx, opts)
		if err != nil {
			return nil, err
		}
		clientOpts = []option.ClientOption{option.WithCredentials(creds)}
	}

	svc, err := bigquery.NewService(ctx, clientOpts...)
	if err != nil {
		return nil, fmt.Errorf("create bigquery service: %w", err)
	}

	return &BigQuery{svc: svc, project: opts.ProjectID, dataset: opts.Dataset, table: opts.Table}, nil
}

func credentials(ctx context.Context, opts Options) (*google.Credentials, error) {
	if opts.ClientEmail == "" || opts.PrivateKey == "" {
		creds, err := google.FindDefaultCredentials(ctx, bigquery.BigqueryInsertdataScope)
		if err != nil {
			return nil, fmt.Errorf("find default credentials: %w", err)
		}
		return creds, nil
	}

	raw, err := json.Marshal(map[string]string{
		"type":         "service_account",
		"project_id":   opts.ProjectID,
		"client_email": opts.ClientEmail,
		"private_key":  opts.PrivateKey,
		"token_uri":    "https://oauth2.googleapis.com/token",
	})
	if err != nil {
		return nil, fmt.Errorf("encode service account: %w", err)
	}

	creds, err := google.CredentialsFromJSONWithTypeAndParams(ctx, raw, google.ServiceAccount, google.CredentialsParams{
		Scopes: []string{bigquery.BigqueryInsertdataScope},
	})
	if err != nil {
		return nil, fmt.Errorf("parse credentials: %w", err)
	}
	return creds, nil
}

// Write performs a single streaming insert. It is not retried.
func (b *BigQuery) Write(ctx context.Context, rec transcript.Record) error {
	at, err := rec.Time()
	if err != nil {
		return fmt.Errorf("parse timestamp: %w", err)
	}

	req := &bigquery.TableDataInsertAllRequest{
		Rows: []*bigquery.TableDataInsertAllRequestRows{{
			Json: map[string]bigquery.JsonValue{
				"timestamp":  at.UTC().Format(time.RFC3339Nano),
				"session_id": rec.SessionID,
				"speaker":    string(rec.Speaker),
				"transcript": rec.Transcript,
			},
		}},
	}

	resp, err := b.svc.Tabledata.InsertAll(b.project, b.dataset, b.table, req).Context(ctx).Do()
	if err != nil {
		return fmt.Errorf("bigquery insert: %w", err)
	}
	if len(resp.InsertErrors) > 0 {
		var reasons []string
		for _, ie := range resp.InsertErrors {
			for _, e := range ie.Errors {
				reasons = append(reasons, fmt.Sprintf("%s: %s", e.Reason, e.Message))
			}
		}
		return &InsertError{Reasons: reasons}
	}
	return nil
}
