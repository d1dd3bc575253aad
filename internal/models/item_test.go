package models

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestFileTypeFromMime(t *testing.T) {
	tests := []struct {
		mime string
		want FileType
	}{
		{"image/png", FileTypeImage},
		{"image/jpeg", FileTypeImage},
		{"video/mp4", FileTypeVideo},
		{"audio/mpeg", FileTypeAudio},
		{"text/plain", FileTypeDocument},
		{"application/pdf", FileTypeDocument},
		{"application/vnd.openxmlformats-officedocument.wordprocessingml.document", FileTypeDocument},
		{"application/octet-stream", FileTypeOther},
		{"", FileTypeOther},
	}
	for _, tc := range tests {
		t.Run(tc.mime, func(t *testing.T) {
			assert.Equal(t, tc.want, FileTypeFromMime(tc.mime))
		})
	}
}

func TestShareLink_Expired(t *testing.T) {
	now := time.Now()

	never := &ShareLink{}
	assert.False(t, never.Expired(now))

	past := &ShareLink{ExpiresAt: now.Add(-time.Minute)}
	assert.True(t, past.Expired(now))

	future := &ShareLink{ExpiresAt: now.Add(time.Minute)}
	assert.False(t, future.Expired(now))
}
