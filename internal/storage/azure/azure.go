// Package azure implements the archive backend for Azure Blob Storage using shared-key
// authentication. Objects are written as block blobs in a single upload call.
package azure

import (
	"bytes"
	"context"
	"fmt"
	"time"

	"github.com/Azure/azure-sdk-for-go/sdk/azcore/streaming"
	"github.com/Azure/azure-sdk-for-go/sdk/azcore/to"
	"github.com/Azure/azure-sdk-for-go/sdk/storage/azblob"
	"github.com/Azure/azure-sdk-for-go/sdk/storage/azblob/blob"
	"github.com/Azure/azure-sdk-for-go/sdk/storage/azblob/blockblob"

	"github.com/task-manager/task-manager/internal/config"
	"github.com/task-manager/task-manager/internal/storage"
)

func init() {
	storage.Register("azure", func(cfg *config.AuditArchiveConfig) (storage.ObjectStore, error) {
		return New(&cfg.Azure)
	})
}

// AzureStorage writes archive objects to one container
type AzureStorage struct {
	client        *azblob.Client
	containerName string
}

// New creates a shared-key Blob client for cfg
func New(cfg *config.AzureStorageConfig) (*AzureStorage, error) {
	if cfg.AccountName == "" {
		return nil, fmt.Errorf("azure storage account name is required")
	}
	if cfg.AccountKey == "" {
		return nil, fmt.Errorf("azure storage account key is required")
	}
	if cfg.ContainerName == "" {
		return nil, fmt.Errorf("azure storage container name is required")
	}

	credential, err := azblob.NewSharedKeyCredential(cfg.AccountName, cfg.AccountKey)
	if err != nil {
		return nil, fmt.Errorf("failed to create Azure credential: %w", err)
	}

	client, err := azblob.NewClientWithSharedKeyCredential(ServiceURL(cfg), credential, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create Azure Blob client: %w", err)
	}

	return &AzureStorage{client: client, containerName: cfg.ContainerName}, nil
}

// ServiceURL returns the configured override or the public endpoint of the account
func ServiceURL(cfg *config.AzureStorageConfig) string {
	if cfg.ServiceURL != "" {
		return cfg.ServiceURL
	}
	return fmt.Sprintf("https://%s.blob.core.windows.net/", cfg.AccountName)
}

// Put uploads data as a block blob with its SHA256 in blob metadata
func (s *AzureStorage) Put(ctx context.Context, key string, data []byte, contentType string) (*storage.PutResult, error) {
	checksum := storage.Checksum(data)

	opts := &blockblob.UploadOptions{
		Metadata: map[string]*string{"sha256": to.Ptr(checksum)},
	}
	if contentType != "" {
		opts.HTTPHeaders = &blob.HTTPHeaders{BlobContentType: to.Ptr(contentType)}
	}

	blobClient := s.client.ServiceClient().NewContainerClient(s.containerName).NewBlockBlobClient(key)
	if _, err := blobClient.Upload(ctx, streaming.NopCloser(bytes.NewReader(data)), opts); err != nil {
		return nil, fmt.Errorf("failed to upload to Azure: %w", err)
	}

	return &storage.PutResult{
		Key:        key,
		Size:       int64(len(data)),
		Checksum:   checksum,
		UploadedAt: time.Now().UTC(),
	}, nil
}

// Close is a no-op
func (s *AzureStorage) Close() error { return nil }
