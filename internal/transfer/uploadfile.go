package transfer

import (
	"context"
	"sync"
)

// UploadFile transfers one whole file: a single PUT below the
// multipart threshold, otherwise a (possibly resumed) multipart upload
// with bounded part parallelism. It returns only when the object is
// fully stored or an error/cancellation unwinds the transfer.
func (u *S3) UploadFile(ctx context.Context, fu FileUpload) error {
	if fu.Size < MultipartThreshold {
		return u.PutObject(ctx, fu)
	}
	return u.uploadMultipart(ctx, fu)
}

func (u *S3) uploadMultipart(ctx context.Context, fu FileUpload) error {
	var uploaded []Part
	uploadID := fu.UploadID

	if uploadID == "" {
		id, err := u.Initiate(ctx, fu.Key)
		if err != nil {
			return err
		}
		uploadID = id
		if fu.OnSession != nil {
			fu.OnSession(uploadID)
		}
	} else {
		// Resuming: whatever the previous process already sent must not
		// be sent again.
		parts, err := u.ListParts(ctx, fu.Key, uploadID)
		if err != nil {
			return err
		}
		uploaded = parts
	}

	plans, alreadyUploaded := PlanParts(fu.Size, uploaded)
	fp := newFileProgress(alreadyUploaded, fu.OnProgress)

	if err := u.uploadParts(ctx, fu, uploadID, plans, fp); err != nil {
		return err
	}
	return u.Complete(ctx, fu.Key, uploadID)
}

// uploadParts drains the part queue with partWorkers concurrent
// uploads. The first fault stops the intake; in-flight parts observe
// the shared context and unwind.
func (u *S3) uploadParts(ctx context.Context, fu FileUpload, uploadID string, plans []PartPlan, fp *fileProgress) error {
	if len(plans) == 0 {
		return nil
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	queue := make(chan PartPlan, len(plans))
	for _, plan := range plans {
		queue <- plan
	}
	close(queue)

	workers := u.partWorkers
	if workers > len(plans) {
		workers = len(plans)
	}

	var wg sync.WaitGroup
	var mu sync.Mutex
	var firstErr error

	for range workers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for plan := range queue {
				if ctx.Err() != nil {
					return
				}
				if err := u.uploadPart(ctx, fu.Key, fu.Path, uploadID, plan, fp); err != nil {
					mu.Lock()
					if firstErr == nil {
						firstErr = err
					}
					mu.Unlock()
					cancel()
					return
				}
			}
		}()
	}
	wg.Wait()

	if firstErr != nil {
		return firstErr
	}
	return ctx.Err()
}
