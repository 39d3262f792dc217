// Package gcs implements the archive backend for Google Cloud Storage. ClientOptions lists
// the supported credential sources.
package gcs

import (
	"context"
	"fmt"
	"time"

	"cloud.google.com/go/storage"
	"google.golang.org/api/option"

	appconfig "github.com/task-manager/task-manager/internal/config"
	appstorage "github.com/task-manager/task-manager/internal/storage"
)

func init() {
	appstorage.Register("gcs", func(cfg *appconfig.AuditArchiveConfig) (appstorage.ObjectStore, error) {
		return New(&cfg.GCS)
	})
}

// GCSStorage writes archive objects to one bucket
type GCSStorage struct {
	client *storage.Client
	bucket string
}

// ClientOptions translates cfg into client options.
//
// Authentication methods:
//   - "default" or "workload_identity": Application Default Credentials
//   - "service_account": credentials_json or credentials_file
//   - "none": unauthenticated, for emulators
func ClientOptions(cfg *appconfig.GCSStorageConfig) ([]option.ClientOption, error) {
	var opts []option.ClientOption
	if cfg.Endpoint != "" {
		opts = append(opts, option.WithEndpoint(cfg.Endpoint))
	}

	authMethod := cfg.AuthMethod
	if authMethod == "" {
		if cfg.CredentialsFile != "" || cfg.CredentialsJSON != "" {
			authMethod = "service_account"
		} else {
			authMethod = "default"
		}
	}

	switch authMethod {
	case "service_account":
		switch {
		case cfg.CredentialsJSON != "":
			opts = append(opts, option.WithCredentialsJSON([]byte(cfg.CredentialsJSON)))
		case cfg.CredentialsFile != "":
			opts = append(opts, option.WithCredentialsFile(cfg.CredentialsFile))
		default:
			return nil, fmt.Errorf("credentials_file or credentials_json is required for service_account auth")
		}
	case "none":
		opts = append(opts, option.WithoutAuthentication())
	case "workload_identity", "default":
		// ADC needs no options
	default:
		return nil, fmt.Errorf("unsupported auth_method: %s (must be 'default', 'service_account', 'workload_identity', or 'none')", authMethod)
	}
	return opts, nil
}

// New creates a GCS client for cfg
func New(cfg *appconfig.GCSStorageConfig) (*GCSStorage, error) {
	if cfg.Bucket == "" {
		return nil, fmt.Errorf("gcs bucket name is required")
	}
	opts, err := ClientOptions(cfg)
	if err != nil {
		return nil, err
	}

	client, err := storage.NewClient(context.Background(), opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create GCS client: %w", err)
	}
	return &GCSStorage{client: client, bucket: cfg.Bucket}, nil
}

// Put writes data as one object with its SHA256 in object metadata
func (s *GCSStorage) Put(ctx context.Context, key string, data []byte, contentType string) (*appstorage.PutResult, error) {
	checksum := appstorage.Checksum(data)

	writer := s.client.Bucket(s.bucket).Object(key).NewWriter(ctx)
	writer.Metadata = map[string]string{"sha256": checksum}
	if contentType != "" {
		writer.ContentType = contentType
	}

	if _, err := writer.Write(data); err != nil {
		_ = writer.Close()
		return nil, fmt.Errorf("failed to write to GCS: %w", err)
	}
	if err := writer.Close(); err != nil {
		return nil, fmt.Errorf("failed to close GCS writer: %w", err)
	}

	return &appstorage.PutResult{
		Key:        key,
		Size:       int64(len(data)),
		Checksum:   checksum,
		UploadedAt: time.Now().UTC(),
	}, nil
}

// Close closes the GCS client
func (s *GCSStorage) Close() error {
	return s.client.Close()
}
