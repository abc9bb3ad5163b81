package upload

import (
	"fmt"
	"time"
)

type fakeEnvRepo struct {
	envVars map[string]string
}

func (repo fakeEnvRepo) Get(key string) string {
	value, ok := repo.envVars[key]
	if ok {
		return value
	} else {
		return ""
	}
}

func (repo fakeEnvRepo) Set(key, value string) error {
	repo.envVars[key] = value
	return nil
}

func (repo fakeEnvRepo) Unset(key string) error {
	repo.envVars[key] = ""
	return nil
}

func (repo fakeEnvRepo) List() []string {
	envs := []string{}
	for k, v := range repo.envVars {
		envs = append(envs, fmt.Sprintf("%s=%s", k, v))
	}
	return envs
}

type fakeTracker struct {
	uploadedCount int
	mirroredCount int
	waitCalled    bool
	lastLeafCount int
	lastRetries   int
}

func (t *fakeTracker) LogFileUploaded(uploadTime time.Duration, sizeBytes int64, leafCount int, retries int) {
	t.uploadedCount++
	t.lastLeafCount = leafCount
	t.lastRetries = retries
}

func (t *fakeTracker) LogFileMirrored(mirrorTime time.Duration, sizeBytes int64) {
	t.mirroredCount++
}

func (t *fakeTracker) Wait() {
	t.waitCalled = true
}
