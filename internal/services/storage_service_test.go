package services

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/classroom-app/classroom-backend/internal/testutil"
)

func TestLocalStoragePutAndDelete(t *testing.T) {
	cfg := testutil.Config(t)
	storage, err := NewStorageService(cfg)
	require.NoError(t, err)

	result, err := storage.Put([]byte("%PDF-1.4"), "Syllabus.PDF", "application/pdf", storage.GetDefaultUploadOptions("attachments"))
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(result.Key, "attachments/"))
	assert.True(t, strings.HasSuffix(result.Key, ".pdf"))
	assert.Equal(t, "/uploads/"+result.Key, result.URL)
	assert.Equal(t, int64(8), result.Size)

	path := filepath.Join(cfg.AWS.LocalUploadDir, filepath.FromSlash(result.Key))
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "%PDF-1.4", string(data))

	url, err := storage.GeneratePresignedURL(result.Key, time.Minute)
	require.NoError(t, err)
	assert.Equal(t, result.URL, url)

	require.NoError(t, storage.DeleteFile(result.Key))
	_, err = os.Stat(path)
	assert.True(t, os.IsNotExist(err))
	assert.NoError(t, storage.DeleteFile(result.Key))
}

func TestS3PresignedURL(t *testing.T) {
	cfg := testutil.Config(t)
	cfg.AWS.AccessKeyID = "AKIDEXAMPLE"
	cfg.AWS.SecretAccessKey = "secret"
	cfg.AWS.Region = "ap-northeast-2"
	cfg.AWS.S3Bucket = "classroom-test"

	storage, err := NewStorageService(cfg)
	require.NoError(t, err)

	url, err := storage.GeneratePresignedURL("textbooks/workbook.pdf", 15*time.Minute)
	require.NoError(t, err)
	assert.Contains(t, url, "classroom-test")
	assert.Contains(t, url, "textbooks/workbook.pdf")
	assert.Contains(t, url, "X-Amz-Expires=900")
	assert.Contains(t, url, "X-Amz-Signature=")

	assert.Equal(t, "https://classroom-test.s3.ap-northeast-2.amazonaws.com/images/a.png", storage.getS3URL("images/a.png"))
	cfg.AWS.CloudFrontURL = "https://cdn.example.com"
	assert.Equal(t, "https://cdn.example.com/images/a.png", storage.getS3URL("images/a.png"))
}

func TestDefaultUploadOptions(t *testing.T) {
	storage, err := NewStorageService(testutil.Config(t))
	require.NoError(t, err)

	textbooks := storage.GetDefaultUploadOptions("textbooks")
	assert.Equal(t, "textbooks", textbooks.Folder)
	assert.Contains(t, textbooks.AllowedTypes, ".epub")

	assert.True(t, storage.GetDefaultUploadOptions("images").IsPublic)
	assert.Equal(t, "general", storage.GetDefaultUploadOptions("other").Folder)
}
