package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"path"

	"github.com/google/uuid"
	"github.com/zeebo/xxh3"

	"github.com/leapstack-labs/inspector/internal/document"
	"github.com/leapstack-labs/inspector/pkg/core"
	"github.com/leapstack-labs/inspector/pkg/objstore"
	"github.com/leapstack-labs/inspector/pkg/ocr"
)

// ocrStagingPrefix is where direct-content PDFs are uploaded for analysis.
const ocrStagingPrefix = "textract-temp"

// session holds the clients one extraction stage uses.
type session struct {
	env     *Env
	logger  *slog.Logger
	db      core.Adapter
	store   objstore.Store
	catalog *Catalog
	rec     ocr.Recognizer
	seen    map[uint64]string
}

func openSession(ctx context.Context, env *Env, logger *slog.Logger) (*session, error) {
	db, err := env.warehouse(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to open warehouse: %w", err)
	}
	store, err := env.store(ctx)
	if err != nil {
		closeQuietly(logger, "warehouse", db)
		return nil, fmt.Errorf("failed to open object store: %w", err)
	}
	return &session{
		env:     env,
		logger:  logger,
		db:      db,
		store:   store,
		catalog: NewCatalog(db, store, logger),
		seen:    make(map[uint64]string),
	}, nil
}

func (s *session) Close() {
	closeQuietly(s.logger, "object store", s.store)
	closeQuietly(s.logger, "warehouse", s.db)
}

// artifactFunc extracts the records of one artifact.
type artifactFunc func(ctx context.Context, a Artifact, data []byte) ([]core.Record, error)

// each runs fn over every artifact of every source. A failing artifact is
// logged and counted; it never stops the stage. Artifacts whose content was
// already seen in this run are skipped.
func (s *session) each(ctx context.Context, sourceIDs []string, sum *Summary, fn artifactFunc) ([]core.Record, error) {
	var records []core.Record
	for _, sourceID := range sourceIDs {
		artifacts, err := s.catalog.ListArtifacts(ctx, sourceID)
		if err != nil {
			return records, err
		}
		for _, a := range artifacts {
			if err := ctx.Err(); err != nil {
				return records, err
			}
			logger := s.logger.With("artifact", a.ID, "filename", a.Filename)

			data, err := s.catalog.Content(ctx, a)
			if err != nil {
				logger.Warn("failed to read artifact", "error", err)
				sum.ArtifactsFailed++
				s.env.Metrics.Artifact(sum.Entity, "failed")
				continue
			}
			hash := xxh3.Hash(data)
			if first, dup := s.seen[hash]; dup {
				logger.Info("skipping duplicate artifact", "duplicate_of", first)
				sum.ArtifactsSkipped++
				s.env.Metrics.Artifact(sum.Entity, "skipped")
				continue
			}
			s.seen[hash] = a.ID

			recs, err := fn(ctx, a, data)
			if err != nil {
				logger.Warn("artifact extraction failed", "error", err)
				sum.ArtifactsFailed++
				s.env.Metrics.Artifact(sum.Entity, "failed")
				continue
			}
			sum.ArtifactsProcessed++
			sum.RecordsExtracted += len(recs)
			s.env.Metrics.Artifact(sum.Entity, "processed")
			logger.Debug("extracted records", "count", len(recs))
			records = append(records, recs...)
		}
	}
	s.env.Metrics.Records(sum.Entity, "extracted", sum.RecordsExtracted)
	return records, nil
}

// document parses an artifact, running OCR for PDFs.
func (s *session) document(ctx context.Context, a Artifact, data []byte) (*document.Document, error) {
	if !document.IsBlocksFile(a.Filename) && document.DetectKind(a.Filename, a.MimeType) == document.KindPDF {
		analysis, err := s.analyze(ctx, a, data)
		if err != nil {
			return nil, err
		}
		doc := document.FromAnalysis(analysis)
		doc.Name = a.Filename
		return doc, nil
	}
	return document.Load(data, a.Filename, a.MimeType)
}

// analyze runs OCR over a PDF. Artifacts without a storage location are
// uploaded to the staging bucket first.
func (s *session) analyze(ctx context.Context, a Artifact, data []byte) (*ocr.Analysis, error) {
	ref := ocr.DocumentRef{Bucket: a.Bucket, Key: a.Key}
	if ref.Bucket == "" || ref.Key == "" {
		bucket := s.env.Settings.StagingBucket
		if bucket == "" {
			return nil, fmt.Errorf("artifact %s has no storage location and no staging bucket is configured", a.ID)
		}
		name := a.Filename
		if name == "" {
			name = a.ID + ".pdf"
		}
		key := path.Join(ocrStagingPrefix, uuid.NewString(), name)
		if err := s.store.PutObject(ctx, bucket, key, data, "application/pdf"); err != nil {
			return nil, fmt.Errorf("failed to stage %s for OCR: %w", name, err)
		}
		ref = ocr.DocumentRef{Bucket: bucket, Key: key}
	}

	if s.rec == nil {
		rec, err := s.env.recognizer(ctx)
		if err != nil {
			return nil, fmt.Errorf("failed to open OCR client: %w", err)
		}
		s.rec = rec
	}

	opts := s.env.Settings.OCR
	opts.Logger = s.logger
	return ocr.Analyze(ctx, s.rec, ref, opts)
}

// analysis returns the OCR analysis of a PDF artifact.
func (s *session) analysis(ctx context.Context, a Artifact, data []byte) (*ocr.Analysis, error) {
	doc, err := s.document(ctx, a, data)
	if err != nil {
		return nil, err
	}
	if doc.Analysis == nil {
		return nil, fmt.Errorf("artifact %s is a %s document, not a PDF", a.ID, doc.Kind)
	}
	return doc.Analysis, nil
}
