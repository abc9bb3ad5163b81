package upload

import (
	"time"

	"github.com/bitrise-io/go-utils/v2/analytics"
	"github.com/bitrise-io/go-utils/v2/env"
	"github.com/bitrise-io/go-utils/v2/log"
)

// Tracker posts upload analytics events.
type Tracker interface {
	LogFileUploaded(uploadTime time.Duration, sizeBytes int64, leafCount int, retries int)
	LogFileMirrored(mirrorTime time.Duration, sizeBytes int64)
	Wait()
}

type uploadTracker struct {
	tracker analytics.Tracker
	logger  log.Logger
}

func newUploadTracker(envRepo env.Repository, logger log.Logger) *uploadTracker {
	p := analytics.Properties{
		"client_id":  envRepo.Get("MEDIALIB_CLIENT_ID"),
		"library_id": envRepo.Get("MEDIALIB_LIBRARY_ID"),
	}
	return &uploadTracker{
		tracker: analytics.NewDefaultTracker(logger, p),
		logger:  logger,
	}
}

func (t *uploadTracker) LogFileUploaded(uploadTime time.Duration, sizeBytes int64, leafCount int, retries int) {
	properties := analytics.Properties{
		"upload_time_s":     uploadTime.Truncate(time.Second).Seconds(),
		"upload_size_bytes": sizeBytes,
		"leaf_count":        leafCount,
		"retry_count":       retries,
	}
	t.tracker.Enqueue("media_file_uploaded", properties)
}

func (t *uploadTracker) LogFileMirrored(mirrorTime time.Duration, sizeBytes int64) {
	properties := analytics.Properties{
		"mirror_time_s":     mirrorTime.Truncate(time.Second).Seconds(),
		"mirror_size_bytes": sizeBytes,
	}
	t.tracker.Enqueue("media_file_mirrored", properties)
}

func (t *uploadTracker) Wait() {
	t.tracker.Wait()
}
