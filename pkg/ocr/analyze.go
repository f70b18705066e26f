package ocr

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"
)

// Default polling budget for an analysis job.
const (
	DefaultPollInterval = 2 * time.Second
	DefaultMaxWait      = 300 * time.Second
)

// ErrTimeout is returned when a job does not finish within the wait budget.
var ErrTimeout = errors.New("ocr: analysis did not complete in time")

// JobStatus is the state of an analysis job.
type JobStatus string

// Job states.
const (
	StatusInProgress     JobStatus = "IN_PROGRESS"
	StatusSucceeded      JobStatus = "SUCCEEDED"
	StatusFailed         JobStatus = "FAILED"
	StatusPartialSuccess JobStatus = "PARTIAL_SUCCESS"
)

// JobError is returned when the service reports a failed job.
type JobError struct {
	JobID   string
	Status  JobStatus
	Message string
}

func (e *JobError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("ocr job %s ended with status %s", e.JobID, e.Status)
	}
	return fmt.Sprintf("ocr job %s ended with status %s: %s", e.JobID, e.Status, e.Message)
}

// DocumentRef locates a document in object storage.
type DocumentRef struct {
	Bucket string
	Key    string
}

// Page is one response page of a job result.
type Page struct {
	Status        JobStatus
	StatusMessage string
	Blocks        []Block
	NextToken     string
	Pages         int
}

// Recognizer is a long-running table-recognition service.
type Recognizer interface {
	// Start submits a document and returns the job id.
	Start(ctx context.Context, ref DocumentRef) (string, error)
	// Fetch returns one page of the job's status and result.
	Fetch(ctx context.Context, jobID, nextToken string) (*Page, error)
}

// Options bound the polling loop.
type Options struct {
	PollInterval time.Duration
	MaxWait      time.Duration
	Logger       *slog.Logger
}

func (o Options) withDefaults() Options {
	if o.PollInterval <= 0 {
		o.PollInterval = DefaultPollInterval
	}
	if o.MaxWait <= 0 {
		o.MaxWait = DefaultMaxWait
	}
	if o.Logger == nil {
		o.Logger = slog.New(slog.DiscardHandler)
	}
	return o
}

// Analyze submits a document, polls at a fixed interval until the job
// completes, then collects every result page. It returns ErrTimeout when the
// wait budget is exhausted and *JobError when the job fails.
func Analyze(ctx context.Context, rec Recognizer, ref DocumentRef, opts Options) (*Analysis, error) {
	opts = opts.withDefaults()

	jobID, err := rec.Start(ctx, ref)
	if err != nil {
		return nil, fmt.Errorf("failed to start analysis of s3://%s/%s: %w", ref.Bucket, ref.Key, err)
	}
	opts.Logger.Debug("analysis started", "job_id", jobID, "bucket", ref.Bucket, "key", ref.Key)

	deadline := time.Now().Add(opts.MaxWait)
	var first *Page
	for {
		page, err := rec.Fetch(ctx, jobID, "")
		if err != nil {
			return nil, fmt.Errorf("failed to poll job %s: %w", jobID, err)
		}

		switch page.Status {
		case StatusSucceeded, StatusPartialSuccess:
			first = page
		case StatusFailed:
			return nil, &JobError{JobID: jobID, Status: page.Status, Message: page.StatusMessage}
		}
		if first != nil {
			break
		}

		if !time.Now().Add(opts.PollInterval).Before(deadline) {
			return nil, fmt.Errorf("%w: job %s still %s after %s", ErrTimeout, jobID, page.Status, opts.MaxWait)
		}

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(opts.PollInterval):
		}
	}

	blocks := append([]Block(nil), first.Blocks...)
	next := first.NextToken
	for next != "" {
		page, err := rec.Fetch(ctx, jobID, next)
		if err != nil {
			return nil, fmt.Errorf("failed to fetch results of job %s: %w", jobID, err)
		}
		blocks = append(blocks, page.Blocks...)
		next = page.NextToken
	}

	analysis := NewAnalysis(jobID, blocks)
	if first.Pages > analysis.Pages {
		analysis.Pages = first.Pages
	}
	opts.Logger.Debug("analysis complete",
		"job_id", jobID,
		"blocks", len(blocks),
		"tables", len(analysis.Tables),
		"pages", analysis.Pages)
	return analysis, nil
}
