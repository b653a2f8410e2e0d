package transfer

import (
	"context"
	"fmt"
	"io"
	"os"
	"sort"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"

	"coldstash/internal/retry"
)

// partRetry matches putRetry: one retry per part on transient faults.
var partRetry = retry.Policy{Attempts: 2, BaseDelay: retry.Fast.BaseDelay, MaxDelay: retry.Fast.MaxDelay}

// Initiate starts a multipart session for a key and returns its id.
func (u *S3) Initiate(ctx context.Context, key string) (string, error) {
	out, err := u.api.CreateMultipartUpload(ctx, &s3.CreateMultipartUploadInput{
		Bucket: aws.String(u.bucket()),
		Key:    aws.String(u.objectKey(key)),
	})
	if err != nil {
		return "", fmt.Errorf("failed to initiate multipart upload for %s: %w", key, err)
	}
	return aws.ToString(out.UploadId), nil
}

// ListParts returns every part already uploaded in a session, following
// continuation markers until the listing is exhausted.
func (u *S3) ListParts(ctx context.Context, key, uploadID string) ([]Part, error) {
	var parts []Part
	var marker *string

	for {
		out, err := u.api.ListParts(ctx, &s3.ListPartsInput{
			Bucket:           aws.String(u.bucket()),
			Key:              aws.String(u.objectKey(key)),
			UploadId:         aws.String(uploadID),
			PartNumberMarker: marker,
		})
		if err != nil {
			return nil, fmt.Errorf("failed to list parts for %s: %w", key, err)
		}
		for _, p := range out.Parts {
			parts = append(parts, Part{
				Number: aws.ToInt32(p.PartNumber),
				Size:   aws.ToInt64(p.Size),
				ETag:   aws.ToString(p.ETag),
			})
		}
		if !aws.ToBool(out.IsTruncated) {
			return parts, nil
		}
		marker = out.NextPartNumberMarker
	}
}

// UploadPart sends one planned part from the file at path, reporting
// progress through fp.
func (u *S3) uploadPart(ctx context.Context, key, path, uploadID string, plan PartPlan, fp *fileProgress) error {
	return partRetry.Do(ctx, "UploadPart", isRetryable, func() error {
		fp.reset(plan.Number)

		f, err := os.Open(path)
		if err != nil {
			return fmt.Errorf("failed to open %s: %w", path, err)
		}
		defer f.Close()

		section := io.NewSectionReader(f, plan.Offset, plan.Size)
		_, err = u.api.UploadPart(ctx, &s3.UploadPartInput{
			Bucket:        aws.String(u.bucket()),
			Key:           aws.String(u.objectKey(key)),
			UploadId:      aws.String(uploadID),
			PartNumber:    aws.Int32(plan.Number),
			Body:          &progressReader{r: section, part: plan.Number, fp: fp},
			ContentLength: aws.Int64(plan.Size),
		})
		if err != nil {
			return fmt.Errorf("failed to upload part %d of %s: %w", plan.Number, key, err)
		}
		return nil
	})
}

// Complete finalizes a multipart session. The part list is re-fetched
// first: parts may have been uploaded in a previous process lifetime,
// so the listing is the only authoritative source of ETags.
func (u *S3) Complete(ctx context.Context, key, uploadID string) error {
	parts, err := u.ListParts(ctx, key, uploadID)
	if err != nil {
		return err
	}
	sort.Slice(parts, func(i, j int) bool { return parts[i].Number < parts[j].Number })

	completed := make([]types.CompletedPart, len(parts))
	for i, p := range parts {
		completed[i] = types.CompletedPart{
			PartNumber: aws.Int32(p.Number),
			ETag:       aws.String(p.ETag),
		}
	}

	_, err = u.api.CompleteMultipartUpload(ctx, &s3.CompleteMultipartUploadInput{
		Bucket:          aws.String(u.bucket()),
		Key:             aws.String(u.objectKey(key)),
		UploadId:        aws.String(uploadID),
		MultipartUpload: &types.CompletedMultipartUpload{Parts: completed},
	})
	if err != nil {
		return fmt.Errorf("failed to complete multipart upload for %s: %w", key, err)
	}
	return nil
}

// Abort terminates a multipart session. Callers treat failures as
// best-effort: log and move on.
func (u *S3) Abort(ctx context.Context, key, uploadID string) error {
	_, err := u.api.AbortMultipartUpload(ctx, &s3.AbortMultipartUploadInput{
		Bucket:   aws.String(u.bucket()),
		Key:      aws.String(u.objectKey(key)),
		UploadId: aws.String(uploadID),
	})
	if err != nil {
		return fmt.Errorf("failed to abort multipart upload for %s: %w", key, err)
	}
	return nil
}
