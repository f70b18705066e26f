package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path"
	"strings"

	sq "github.com/Masterminds/squirrel"
	"github.com/tidwall/gjson"

	"github.com/leapstack-labs/inspector/pkg/core"
	"github.com/leapstack-labs/inspector/pkg/objstore"
)

// Source types.
const (
	SourceS3     = "s3_bucket"
	SourceUpload = "manual_upload"
)

// ExtractionCompleted is the status of upload artifacts ready for extraction.
const ExtractionCompleted = "completed"

// Catalog lookup errors.
var (
	ErrSourceNotFound   = errors.New("source not found")
	ErrArtifactNotFound = errors.New("artifact not found")
)

// Source is a configured document source.
type Source struct {
	ID      string
	Name    string
	Type    string
	Bucket  string
	Prefix  string
	Pattern string
	Region  string
}

// Artifact is one document of a source. It carries either a storage
// location or its content directly.
type Artifact struct {
	ID       string
	SourceID string
	Filename string
	MimeType string
	Bucket   string
	Key      string
	Content  []byte
	Size     int64
}

// Catalog reads artifact metadata from the sources and artifacts tables.
type Catalog struct {
	db      core.Adapter
	store   objstore.Store
	builder sq.StatementBuilderType
	logger  *slog.Logger
}

// NewCatalog creates a Catalog over the warehouse holding the metadata tables.
func NewCatalog(db core.Adapter, store objstore.Store, logger *slog.Logger) *Catalog {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	var placeholder sq.PlaceholderFormat = sq.Question
	if db.DialectName() == "postgres" {
		placeholder = sq.Dollar
	}
	return &Catalog{
		db:      db,
		store:   store,
		builder: sq.StatementBuilder.PlaceholderFormat(placeholder),
		logger:  logger,
	}
}

func (c *Catalog) query(ctx context.Context, b sq.SelectBuilder) ([]core.Record, error) {
	query, args, err := b.ToSql()
	if err != nil {
		return nil, fmt.Errorf("failed to build query: %w", err)
	}
	return c.db.Query(ctx, query, args...)
}

// Source loads a source by id.
func (c *Catalog) Source(ctx context.Context, id string) (*Source, error) {
	rows, err := c.query(ctx, c.builder.
		Select("id", "name", "source_type", "configuration").
		From("sources").
		Where(sq.Eq{"id": id}))
	if err != nil {
		return nil, fmt.Errorf("failed to load source %s: %w", id, err)
	}
	if len(rows) == 0 {
		return nil, fmt.Errorf("%w: %s", ErrSourceNotFound, id)
	}
	r := rows[0]
	conf := text(r["configuration"])
	return &Source{
		ID:      text(r["id"]),
		Name:    text(r["name"]),
		Type:    text(r["source_type"]),
		Bucket:  gjson.Get(conf, "bucket").String(),
		Prefix:  strings.TrimLeft(gjson.Get(conf, "prefix").String(), "/"),
		Pattern: gjson.Get(conf, "pattern").String(),
		Region:  gjson.Get(conf, "region").String(),
	}, nil
}

var artifactColumns = []string{
	"id", "source_id", "filename", "mime_type", "s3_bucket", "s3_key", "raw_content",
}

// Artifact loads an upload artifact by id.
func (c *Catalog) Artifact(ctx context.Context, id string) (*Artifact, error) {
	rows, err := c.query(ctx, c.builder.
		Select(artifactColumns...).
		From("artifacts").
		Where(sq.Eq{"id": id}))
	if err != nil {
		return nil, fmt.Errorf("failed to load artifact %s: %w", id, err)
	}
	if len(rows) == 0 {
		return nil, fmt.Errorf("%w: %s", ErrArtifactNotFound, id)
	}
	a := artifactFromRecord(rows[0])
	return &a, nil
}

// ListArtifacts returns the artifacts of a source. S3 sources list objects
// under the configured prefix, skipping directory keys; upload sources
// return completed artifacts.
func (c *Catalog) ListArtifacts(ctx context.Context, sourceID string) ([]Artifact, error) {
	src, err := c.Source(ctx, sourceID)
	if err != nil {
		return nil, err
	}

	switch src.Type {
	case SourceS3:
		objects, err := c.store.ListObjects(ctx, src.Bucket, src.Prefix, src.Pattern, 0)
		if err != nil {
			return nil, fmt.Errorf("failed to list objects of source %s: %w", src.Name, err)
		}
		out := make([]Artifact, 0, len(objects))
		for _, o := range objects {
			if strings.HasSuffix(o.Key, "/") {
				continue
			}
			out = append(out, Artifact{
				ID:       src.Bucket + "/" + o.Key,
				SourceID: src.ID,
				Filename: path.Base(o.Key),
				Bucket:   src.Bucket,
				Key:      o.Key,
				Size:     o.Size,
			})
		}
		c.logger.Debug("listed source objects", "source", src.Name, "count", len(out))
		return out, nil

	case SourceUpload:
		rows, err := c.query(ctx, c.builder.
			Select(artifactColumns...).
			From("artifacts").
			Where(sq.Eq{"source_id": src.ID, "extraction_status": ExtractionCompleted}).
			OrderBy("id"))
		if err != nil {
			return nil, fmt.Errorf("failed to list artifacts of source %s: %w", src.Name, err)
		}
		out := make([]Artifact, 0, len(rows))
		for _, r := range rows {
			out = append(out, artifactFromRecord(r))
		}
		c.logger.Debug("listed uploaded artifacts", "source", src.Name, "count", len(out))
		return out, nil

	default:
		return nil, fmt.Errorf("unknown source type %q for source %s", src.Type, src.Name)
	}
}

// Content returns an artifact's bytes, reading the object store when the
// artifact carries no content of its own.
func (c *Catalog) Content(ctx context.Context, a Artifact) ([]byte, error) {
	if len(a.Content) > 0 {
		return a.Content, nil
	}
	if a.Key == "" {
		return nil, fmt.Errorf("artifact %s has neither content nor a storage location", a.ID)
	}
	data, err := c.store.GetObject(ctx, a.Bucket, a.Key)
	if err != nil {
		return nil, fmt.Errorf("failed to read artifact %s: %w", a.ID, err)
	}
	return data, nil
}

func artifactFromRecord(r core.Record) Artifact {
	return Artifact{
		ID:       text(r["id"]),
		SourceID: text(r["source_id"]),
		Filename: text(r["filename"]),
		MimeType: text(r["mime_type"]),
		Bucket:   text(r["s3_bucket"]),
		Key:      text(r["s3_key"]),
		Content:  rawContent(text(r["raw_content"])),
	}
}

// rawContent unwraps content stored as {"html": ...} or {"content": ...}.
func rawContent(raw string) []byte {
	if raw == "" {
		return nil
	}
	if gjson.Valid(raw) {
		if v := gjson.Parse(raw); v.IsObject() {
			for _, key := range []string{"html", "content", "text"} {
				if f := v.Get(key); f.Exists() {
					return []byte(f.String())
				}
			}
		}
	}
	return []byte(raw)
}

func text(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return t
	case []byte:
		return string(t)
	default:
		return fmt.Sprint(t)
	}
}
