package network

import (
	"context"
	"testing"

	"github.com/bitrise-io/go-utils/v2/log"
	"github.com/stretchr/testify/assert"
)

func TestMirrorToS3_Validation(t *testing.T) {
	tests := []struct {
		name    string
		params  S3MirrorParams
		wantErr string
	}{
		{
			name: "missing bucket",
			params: S3MirrorParams{
				FilePath: "/tmp/file.jpg",
				FileID:   "ABC123",
				Region:   "us-east-1",
			},
			wantErr: "Bucket must not be empty",
		},
		{
			name: "missing file path",
			params: S3MirrorParams{
				Bucket: "mirror-bucket",
				FileID: "ABC123",
				Region: "us-east-1",
			},
			wantErr: "FilePath must not be empty",
		},
		{
			name: "missing file ID",
			params: S3MirrorParams{
				Bucket:   "mirror-bucket",
				FilePath: "/tmp/file.jpg",
				Region:   "us-east-1",
			},
			wantErr: "FileID must not be empty",
		},
		{
			name: "missing region",
			params: S3MirrorParams{
				Bucket:   "mirror-bucket",
				FilePath: "/tmp/file.jpg",
				FileID:   "ABC123",
			},
			wantErr: "region must not be empty",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := MirrorToS3(context.Background(), tt.params, log.NewLogger())
			assert.ErrorContains(t, err, tt.wantErr)
		})
	}
}
