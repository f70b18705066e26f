package s3

import (
	"context"
	"io"
	"strings"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/leapstack-labs/inspector/pkg/objstore"
)

type fakeS3 struct {
	objects map[string]string
	put     *s3.PutObjectInput
}

func (f *fakeS3) GetObject(_ context.Context, in *s3.GetObjectInput, _ ...func(*s3.Options)) (*s3.GetObjectOutput, error) {
	body, ok := f.objects[aws.ToString(in.Key)]
	if !ok {
		return nil, &types.NoSuchKey{}
	}
	return &s3.GetObjectOutput{Body: io.NopCloser(strings.NewReader(body))}, nil
}

func (f *fakeS3) PutObject(_ context.Context, in *s3.PutObjectInput, _ ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
	f.put = in
	return &s3.PutObjectOutput{}, nil
}

func (f *fakeS3) ListObjectsV2(_ context.Context, in *s3.ListObjectsV2Input, _ ...func(*s3.Options)) (*s3.ListObjectsV2Output, error) {
	out := &s3.ListObjectsV2Output{}
	for _, k := range []string{"in/", "in/a.pdf", "in/b.html", "in/sub/", "in/c.pdf"} {
		if strings.HasPrefix(k, aws.ToString(in.Prefix)) {
			out.Contents = append(out.Contents, types.Object{Key: aws.String(k), Size: aws.Int64(int64(len(k)))})
		}
	}
	return out, nil
}

func TestStore(t *testing.T) {
	ctx := context.Background()
	api := &fakeS3{objects: map[string]string{"in/a.pdf": "data"}}
	s := New(api)

	data, err := s.GetObject(ctx, "b", "in/a.pdf")
	require.NoError(t, err)
	assert.Equal(t, "data", string(data))

	_, err = s.GetObject(ctx, "b", "missing")
	assert.ErrorIs(t, err, objstore.ErrNotFound)

	objs, err := s.ListObjects(ctx, "b", "in/", `\.pdf$`, 0)
	require.NoError(t, err)
	require.Len(t, objs, 2)
	assert.Equal(t, "in/a.pdf", objs[0].Key)
	assert.Equal(t, "in/c.pdf", objs[1].Key)

	objs, err = s.ListObjects(ctx, "b", "in/", "", 1)
	require.NoError(t, err)
	assert.Len(t, objs, 1)

	require.NoError(t, s.PutObject(ctx, "b", "k", []byte("x"), "text/plain"))
	assert.Equal(t, "text/plain", aws.ToString(api.put.ContentType))
}
