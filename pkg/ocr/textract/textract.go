// Package textract implements ocr.Recognizer on AWS Textract asynchronous
// document analysis.
package textract

import (
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/textract"
	"github.com/aws/aws-sdk-go-v2/service/textract/types"

	"github.com/leapstack-labs/inspector/pkg/ocr"
)

// API is the subset of the Textract client used here.
type API interface {
	StartDocumentAnalysis(ctx context.Context, in *textract.StartDocumentAnalysisInput, optFns ...func(*textract.Options)) (*textract.StartDocumentAnalysisOutput, error)
	GetDocumentAnalysis(ctx context.Context, in *textract.GetDocumentAnalysisInput, optFns ...func(*textract.Options)) (*textract.GetDocumentAnalysisOutput, error)
}

// Client analyzes documents stored in S3.
type Client struct {
	api API
}

var _ ocr.Recognizer = (*Client)(nil)

// New wraps an existing Textract API client.
func New(api API) *Client {
	return &Client{api: api}
}

// NewFromConfig loads the default AWS configuration for region.
func NewFromConfig(ctx context.Context, region string) (*Client, error) {
	var opts []func(*config.LoadOptions) error
	if region != "" {
		opts = append(opts, config.WithRegion(region))
	}
	cfg, err := config.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to load aws config: %w", err)
	}
	return New(textract.NewFromConfig(cfg)), nil
}

// Start submits table analysis for the referenced object.
func (c *Client) Start(ctx context.Context, ref ocr.DocumentRef) (string, error) {
	out, err := c.api.StartDocumentAnalysis(ctx, &textract.StartDocumentAnalysisInput{
		DocumentLocation: &types.DocumentLocation{
			S3Object: &types.S3Object{
				Bucket: aws.String(ref.Bucket),
				Name:   aws.String(ref.Key),
			},
		},
		FeatureTypes: []types.FeatureType{types.FeatureTypeTables},
	})
	if err != nil {
		return "", err
	}
	return aws.ToString(out.JobId), nil
}

// Fetch returns one page of job status and blocks.
func (c *Client) Fetch(ctx context.Context, jobID, nextToken string) (*ocr.Page, error) {
	in := &textract.GetDocumentAnalysisInput{JobId: aws.String(jobID)}
	if nextToken != "" {
		in.NextToken = aws.String(nextToken)
	}
	out, err := c.api.GetDocumentAnalysis(ctx, in)
	if err != nil {
		return nil, err
	}

	page := &ocr.Page{
		Status:        ocr.JobStatus(out.JobStatus),
		StatusMessage: aws.ToString(out.StatusMessage),
		NextToken:     aws.ToString(out.NextToken),
		Blocks:        make([]ocr.Block, 0, len(out.Blocks)),
	}
	if out.DocumentMetadata != nil {
		page.Pages = int(aws.ToInt32(out.DocumentMetadata.Pages))
	}
	for _, b := range out.Blocks {
		page.Blocks = append(page.Blocks, convertBlock(b))
	}
	return page, nil
}

func convertBlock(b types.Block) ocr.Block {
	block := ocr.Block{
		ID:              aws.ToString(b.Id),
		BlockType:       string(b.BlockType),
		Text:            aws.ToString(b.Text),
		RowIndex:        int(aws.ToInt32(b.RowIndex)),
		ColumnIndex:     int(aws.ToInt32(b.ColumnIndex)),
		RowSpan:         int(aws.ToInt32(b.RowSpan)),
		ColumnSpan:      int(aws.ToInt32(b.ColumnSpan)),
		Page:            int(aws.ToInt32(b.Page)),
		SelectionStatus: string(b.SelectionStatus),
	}
	for _, r := range b.Relationships {
		block.Relationships = append(block.Relationships, ocr.Relationship{
			Type: string(r.Type),
			IDs:  r.Ids,
		})
	}
	return block
}
