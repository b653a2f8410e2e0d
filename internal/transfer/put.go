package transfer

import (
	"context"
	"fmt"
	"os"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	"coldstash/internal/retry"
)

// putRetry bounds single-object PUTs: one retry on transient faults,
// none on sender faults or cancellation.
var putRetry = retry.Policy{Attempts: 2, BaseDelay: retry.Fast.BaseDelay, MaxDelay: retry.Fast.MaxDelay}

// PutObject transfers a whole file below the multipart threshold as a
// single PUT, reporting byte progress.
func (u *S3) PutObject(ctx context.Context, fu FileUpload) error {
	fp := newFileProgress(0, fu.OnProgress)

	return putRetry.Do(ctx, "PutObject", isRetryable, func() error {
		fp.reset(0)

		f, err := os.Open(fu.Path)
		if err != nil {
			return fmt.Errorf("failed to open %s: %w", fu.Path, err)
		}
		defer f.Close()

		_, err = u.api.PutObject(ctx, &s3.PutObjectInput{
			Bucket:        aws.String(u.bucket()),
			Key:           aws.String(u.objectKey(fu.Key)),
			Body:          &progressReader{r: f, part: 0, fp: fp},
			ContentLength: aws.Int64(fu.Size),
		})
		if err != nil {
			return fmt.Errorf("failed to put %s: %w", fu.Key, err)
		}
		return nil
	})
}
