// Package export renders session logs and charts into downloadable artifacts
// and optionally archives them in a blob store.
package export

import (
	"bytes"
	"context"
	"encoding/csv"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"growpilot/internal/blob"
	"growpilot/internal/chart"
	"growpilot/internal/core"
	"growpilot/pkg/domain"
)

// Format names an artifact encoding.
type Format string

const (
	FormatCSV  Format = "csv"
	FormatJSON Format = "json"
	FormatPNG  Format = "png"
)

// ParseFormat resolves a table format from a file extension or name.
func ParseFormat(name string) (Format, error) {
	switch f := Format(strings.ToLower(strings.TrimPrefix(strings.TrimSpace(name), "."))); f {
	case FormatCSV, FormatJSON:
		return f, nil
	default:
		return "", fmt.Errorf("unsupported export format %q", name)
	}
}

// ContentType is the MIME type served for the format.
func (f Format) ContentType() string {
	switch f {
	case FormatCSV:
		return "text/csv; charset=utf-8"
	case FormatJSON:
		return "application/json"
	case FormatPNG:
		return "image/png"
	}
	return "application/octet-stream"
}

// ChartKind selects a dashboard chart.
type ChartKind string

const (
	ChartHarvests ChartKind = "harvests"
	ChartForecast ChartKind = "forecast"
)

// ErrArchiveDisabled is returned by Archive when no blob store is configured.
var ErrArchiveDisabled = errors.New("export archive not configured")

// Artifact is one rendered export.
type Artifact struct {
	ID          string            `json:"id"`
	Filename    string            `json:"filename"`
	Format      Format            `json:"format"`
	ContentType string            `json:"content_type"`
	SizeBytes   int64             `json:"size_bytes"`
	Rows        int               `json:"rows"`
	Metadata    map[string]string `json:"metadata,omitempty"`
	CreatedAt   time.Time         `json:"created_at"`
	Payload     []byte            `json:"-"`
}

// ArchiveStatus is the outcome of an archive attempt.
type ArchiveStatus string

const (
	ArchiveSucceeded ArchiveStatus = "succeeded"
	ArchiveFailed    ArchiveStatus = "failed"
)

// AuditEntry records an archive attempt.
type AuditEntry struct {
	ID         string        `json:"id"`
	Action     string        `json:"action"`
	Session    string        `json:"session"`
	Filename   string        `json:"filename"`
	Key        string        `json:"key,omitempty"`
	Status     ArchiveStatus `json:"status"`
	Error      string        `json:"error,omitempty"`
	OccurredAt time.Time     `json:"occurred_at"`
}

// AuditLogger receives archive audit entries.
type AuditLogger interface {
	Record(ctx context.Context, entry AuditEntry)
}

// Option customises an Exporter.
type Option func(*Exporter)

// WithBlobStore enables Archive.
func WithBlobStore(store blob.Store) Option {
	return func(e *Exporter) { e.store = store }
}

// WithAuditLogger records archive attempts.
func WithAuditLogger(audit AuditLogger) Option {
	return func(e *Exporter) { e.audit = audit }
}

// WithClock overrides the artifact timestamp source.
func WithClock(now func() time.Time) Option {
	return func(e *Exporter) {
		if now != nil {
			e.now = now
		}
	}
}

// WithChartSize sets the PNG dimensions.
func WithChartSize(size chart.Size) Option {
	return func(e *Exporter) { e.size = size }
}

// Exporter renders artifacts. It is safe for concurrent use.
type Exporter struct {
	store blob.Store
	audit AuditLogger
	now   func() time.Time
	size  chart.Size
}

// NewExporter constructs an exporter.
func NewExporter(opts ...Option) *Exporter {
	e := &Exporter{now: func() time.Time { return time.Now().UTC() }, size: chart.DefaultSize}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// ArchiveEnabled reports whether a blob store is configured.
func (e *Exporter) ArchiveEnabled() bool { return e.store != nil }

// Render lays out a category and encodes it. The CSV form has a header row
// and one line per record.
func (e *Exporter) Render(ctx context.Context, records domain.RecordStore, category domain.Category, format Format) (Artifact, error) {
	if !category.Valid() {
		return Artifact{}, fmt.Errorf("%w: %q", domain.ErrUnknownCategory, category)
	}
	table, err := records.AsTable(ctx, category)
	if err != nil {
		return Artifact{}, err
	}
	return e.materialize(table, format)
}

func (e *Exporter) materialize(table domain.Table, format Format) (Artifact, error) {
	var payload []byte
	switch format {
	case FormatCSV:
		buf := &bytes.Buffer{}
		writer := csv.NewWriter(buf)
		if err := writer.Write(table.Columns); err != nil {
			return Artifact{}, fmt.Errorf("write csv header: %w", err)
		}
		if err := writer.WriteAll(table.Rows); err != nil {
			return Artifact{}, fmt.Errorf("write csv rows: %w", err)
		}
		payload = buf.Bytes()
	case FormatJSON:
		rows := make([]map[string]string, len(table.Rows))
		for i, row := range table.Rows {
			obj := make(map[string]string, len(table.Columns))
			for j, column := range table.Columns {
				obj[column] = row[j]
			}
			rows[i] = obj
		}
		var err error
		if payload, err = json.Marshal(rows); err != nil {
			return Artifact{}, fmt.Errorf("marshal json: %w", err)
		}
	default:
		return Artifact{}, fmt.Errorf("unsupported export format %q", format)
	}
	return Artifact{
		ID:          uuid.NewString(),
		Filename:    string(table.Category) + "." + string(format),
		Format:      format,
		ContentType: format.ContentType(),
		SizeBytes:   int64(len(payload)),
		Rows:        table.Len(),
		Metadata: map[string]string{
			"category": string(table.Category),
			"columns":  strings.Join(table.Columns, ","),
		},
		CreatedAt: e.now(),
		Payload:   payload,
	}, nil
}

// RenderChart draws a dashboard chart. Both kinds need at least one harvest.
func (e *Exporter) RenderChart(_ context.Context, dash core.Dashboard, kind ChartKind) (Artifact, error) {
	var (
		payload []byte
		err     error
	)
	switch kind {
	case ChartHarvests:
		payload, err = chart.DailyTotals(dash.DailyTotals, e.size)
	case ChartForecast:
		if dash.Forecast == nil {
			return Artifact{}, chart.ErrNoData
		}
		payload, err = chart.Forecast(dash.DailyTotals, dash.Forecast.Points, e.size)
	default:
		return Artifact{}, fmt.Errorf("unknown chart %q", kind)
	}
	if err != nil {
		return Artifact{}, err
	}
	return Artifact{
		ID:          uuid.NewString(),
		Filename:    string(kind) + ".png",
		Format:      FormatPNG,
		ContentType: FormatPNG.ContentType(),
		SizeBytes:   int64(len(payload)),
		Rows:        len(dash.DailyTotals),
		Metadata:    map[string]string{"chart": string(kind)},
		CreatedAt:   e.now(),
		Payload:     payload,
	}, nil
}

// ArchiveKey is the blob key an artifact is archived under. The artifact ID
// keeps two renders within the same second apart.
func ArchiveKey(sessionID string, artifact Artifact) string {
	stamp := artifact.CreatedAt.UTC().Format("20060102T150405Z")
	if artifact.ID == "" {
		return fmt.Sprintf("exports/%s/%s-%s", sessionID, stamp, artifact.Filename)
	}
	return fmt.Sprintf("exports/%s/%s-%s-%s", sessionID, stamp, artifact.ID, artifact.Filename)
}

// Archive stores the artifact in the blob store.
func (e *Exporter) Archive(ctx context.Context, sessionID string, artifact Artifact) (blob.Info, error) {
	if e.store == nil {
		return blob.Info{}, ErrArchiveDisabled
	}
	key := ArchiveKey(sessionID, artifact)
	md := make(map[string]string, len(artifact.Metadata)+1)
	for k, v := range artifact.Metadata {
		md[k] = v
	}
	md["artifact"] = artifact.ID
	info, err := e.store.Put(ctx, key, bytes.NewReader(artifact.Payload), blob.PutOptions{
		ContentType: artifact.ContentType,
		Metadata:    md,
	})
	e.record(ctx, sessionID, artifact, key, err)
	if err != nil {
		return blob.Info{}, fmt.Errorf("archive %s: %w", artifact.Filename, err)
	}
	return info, nil
}

// Archived lists a session's archived artifacts.
func (e *Exporter) Archived(ctx context.Context, sessionID string) ([]blob.Info, error) {
	if e.store == nil {
		return nil, ErrArchiveDisabled
	}
	return e.store.List(ctx, "exports/"+sessionID+"/")
}

func (e *Exporter) record(ctx context.Context, sessionID string, artifact Artifact, key string, err error) {
	if e.audit == nil {
		return
	}
	entry := AuditEntry{
		ID:         uuid.NewString(),
		Action:     "export_archive",
		Session:    sessionID,
		Filename:   artifact.Filename,
		Key:        key,
		Status:     ArchiveSucceeded,
		OccurredAt: e.now(),
	}
	if err != nil {
		entry.Status = ArchiveFailed
		entry.Error = err.Error()
	}
	e.audit.Record(ctx, entry)
}
