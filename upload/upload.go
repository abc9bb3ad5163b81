// Package upload orchestrates resumable uploads of media files: it resolves
// configuration from the environment, expands the requested paths, and
// drives one leafstream session per file against the upload server.
package upload

import (
	"context"
	"fmt"
	"time"

	"github.com/bitrise-io/go-utils/v2/env"
	"github.com/bitrise-io/go-utils/v2/log"
	"github.com/bitrise-io/go-utils/v2/retryhttp"
	"github.com/docker/go-units"

	"github.com/medialib-io/go-mediautils/stepconf"
	"github.com/medialib-io/go-mediautils/upload/leafstream"
	"github.com/medialib-io/go-mediautils/upload/network"
	"github.com/medialib-io/go-mediautils/upload/pathlist"
)

// UploadInput is the caller-provided part of an upload run.
type UploadInput struct {
	// Paths are the media files to upload. Entries may be plain paths or
	// doublestar glob patterns (such as `media/**/*.jpg`).
	Paths []string
	// Verbose enables per-leaf progress logging.
	Verbose bool
	// LeafSize overrides the default leaf size used when the server's
	// manifest does not carry one. 0 keeps the default.
	LeafSize int64
	// MaxRetries overrides the per-session retry budget. 0 keeps the default.
	MaxRetries int
}

// FileResult describes one successfully uploaded file.
type FileResult struct {
	Path        string
	QuickID     string
	Name        string
	ContentType string
	SizeBytes   int64
	Leaves      []string
	Retries     int
}

// UploadResult ...
type UploadResult struct {
	Files []FileResult
}

// Uploader ...
type Uploader interface {
	Upload(ctx context.Context, input UploadInput) (UploadResult, error)
}

type uploadConfig struct {
	APIBaseURL         stepconf.Secret `env:"MEDIALIB_UPLOAD_URL,required"`
	AccessToken        stepconf.Secret `env:"MEDIALIB_ACCESS_TOKEN"`
	AWSBucket          string          `env:"MEDIALIB_AWS_BUCKET"`
	AWSRegion          string          `env:"MEDIALIB_AWS_REGION"`
	AWSAccessKeyID     stepconf.Secret `env:"MEDIALIB_AWS_ACCESS_KEY_ID"`
	AWSSecretAccessKey stepconf.Secret `env:"MEDIALIB_AWS_SECRET_ACCESS_KEY"`
}

type uploader struct {
	envRepo env.Repository
	logger  log.Logger
	tracker Tracker
}

// NewUploader creates a new media uploader instance. `tracker` can be nil,
// unless you want to provide a custom Tracker implementation.
func NewUploader(envRepo env.Repository, logger log.Logger, tracker Tracker) *uploader {
	trackerImpl := tracker
	if trackerImpl == nil {
		trackerImpl = newUploadTracker(envRepo, logger)
	}
	return &uploader{
		envRepo: envRepo,
		logger:  logger,
		tracker: trackerImpl,
	}
}

// Upload uploads every file matched by input.Paths and returns the per-file
// results. Files are uploaded sequentially; a failed file aborts the run.
func (u *uploader) Upload(ctx context.Context, input UploadInput) (UploadResult, error) {
	config, err := u.createConfig()
	if err != nil {
		return UploadResult{}, fmt.Errorf("failed to parse inputs: %w", err)
	}

	files, err := pathlist.Expand(input.Paths, u.logger)
	if err != nil {
		return UploadResult{}, fmt.Errorf("failed to resolve paths: %w", err)
	}
	if len(files) == 0 {
		return UploadResult{}, fmt.Errorf("no files matched the provided paths")
	}

	defer u.tracker.Wait()

	client := network.NewAPIClient(
		retryhttp.NewClient(u.logger),
		string(config.APIBaseURL),
		string(config.AccessToken),
		u.logger,
	)

	var result UploadResult
	for _, path := range files {
		fileResult, err := u.uploadFile(ctx, client, config, input, path)
		if err != nil {
			return UploadResult{}, fmt.Errorf("upload %s: %w", path, err)
		}
		result.Files = append(result.Files, fileResult)
	}

	u.logger.Println()
	u.logger.Donef("Uploaded %d file(s)", len(result.Files))

	return result, nil
}

func (u *uploader) uploadFile(ctx context.Context, client *network.APIClient, config uploadConfig, input UploadInput, path string) (FileResult, error) {
	src, err := leafstream.OpenFileSource(path)
	if err != nil {
		return FileResult{}, err
	}
	defer func() {
		if err := src.Close(); err != nil {
			u.logger.Errorf("failed to close file: %s", err)
		}
	}()

	u.logger.Println()
	u.logger.Infof("Uploading %s (%s)", src.Name(), units.HumanSizeWithPrecision(float64(src.Size()), 3))

	session := leafstream.NewSession(src, client, u.sessionConfig(input, src.Size()), u.logger)

	startTime := time.Now()
	if err := session.Run(ctx); err != nil {
		return FileResult{}, err
	}
	uploadTime := time.Since(startTime)

	u.logger.Donef("Uploaded %s in %s", src.Name(), uploadTime.Round(time.Second))
	u.tracker.LogFileUploaded(uploadTime, src.Size(), len(session.Leaves()), session.Retries())

	if config.AWSBucket != "" {
		u.mirrorFile(ctx, config, src, session.QuickID(), path)
	}

	return FileResult{
		Path:        path,
		QuickID:     session.QuickID(),
		Name:        src.Name(),
		ContentType: src.ContentType(),
		SizeBytes:   src.Size(),
		Leaves:      session.Leaves(),
		Retries:     session.Retries(),
	}, nil
}

func (u *uploader) sessionConfig(input UploadInput, totalBytes int64) leafstream.Config {
	sessionConfig := leafstream.DefaultConfig()
	if input.LeafSize > 0 {
		sessionConfig.LeafSize = input.LeafSize
	}
	if input.MaxRetries > 0 {
		sessionConfig.MaxRetries = input.MaxRetries
	}
	if input.Verbose {
		sessionConfig.OnProgress = func(completed, total int64) {
			u.logger.Debugf("Progress: %s / %s",
				units.HumanSizeWithPrecision(float64(completed), 3),
				units.HumanSizeWithPrecision(float64(total), 3))
		}
		sessionConfig.OnRequest = func(resp leafstream.Response) {
			if resp.Err != nil {
				u.logger.Debugf("Request (%s, leaf %d) failed: %s", resp.State, resp.LeafIndex, resp.Err)
			}
		}
	}
	return sessionConfig
}

// Mirroring is best effort: the file is already stored by the upload
// server, so a mirror failure must not fail the run.
func (u *uploader) mirrorFile(ctx context.Context, config uploadConfig, src *leafstream.FileSource, quickID string, path string) {
	startTime := time.Now()
	err := network.MirrorToS3(ctx, network.S3MirrorParams{
		FilePath:        path,
		FileID:          quickID,
		ContentType:     src.ContentType(),
		FileSize:        src.Size(),
		Region:          config.AWSRegion,
		Bucket:          config.AWSBucket,
		AccessKeyID:     string(config.AWSAccessKeyID),
		SecretAccessKey: string(config.AWSSecretAccessKey),
	}, u.logger)
	if err != nil {
		u.logger.Warnf("Failed to mirror %s to S3: %s", src.Name(), err)
		return
	}
	u.logger.Donef("Mirrored %s to s3://%s", src.Name(), config.AWSBucket)
	u.tracker.LogFileMirrored(time.Since(startTime), src.Size())
}

func (u *uploader) createConfig() (uploadConfig, error) {
	var config uploadConfig
	if err := stepconf.NewInputParser(u.envRepo).Parse(&config); err != nil {
		return uploadConfig{}, err
	}
	return config, nil
}
