package s3blob

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
)

// Verifier checks archive uploads before the source rows are deleted.
type Verifier struct {
	client *s3.Client
	bucket string
}

// NewVerifier creates a Verifier for the client's bucket.
func NewVerifier(c *Client) *Verifier {
	return &Verifier{client: c.s3, bucket: c.bucket}
}

// Size returns the stored size of the object at path, or false when it
// does not exist.
func (v *Verifier) Size(ctx context.Context, path string) (int64, bool, error) {
	out, err := v.client.HeadObject(ctx, &s3.HeadObjectInput{
		Bucket: aws.String(v.bucket),
		Key:    aws.String(path),
	})
	if err != nil {
		if isNotFound(err) {
			return 0, false, nil
		}
		return 0, false, fmt.Errorf("s3blob: head %s: %w", path, err)
	}
	return aws.ToInt64(out.ContentLength), true, nil
}

// isNotFound reports whether err means the object does not exist. HeadObject
// returns NotFound rather than NoSuchKey, and some compatible providers only
// surface a bare 404.
func isNotFound(err error) bool {
	var nsk *types.NoSuchKey
	if errors.As(err, &nsk) {
		return true
	}
	var nf *types.NotFound
	if errors.As(err, &nf) {
		return true
	}
	var httpErr interface{ HTTPStatusCode() int }
	return errors.As(err, &httpErr) && httpErr.HTTPStatusCode() == http.StatusNotFound
}
