package audit

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"path"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/task-manager/task-manager/internal/config"
	"github.com/task-manager/task-manager/internal/db/models"
	"github.com/task-manager/task-manager/internal/storage"
	"github.com/task-manager/task-manager/internal/telemetry"
)

// ArchiveContentType is the content type of archive objects
const ArchiveContentType = "application/x-ndjson"

// ErrArchiveQueueFull is returned by ArchiveShipper.Ship when the pending queue is full
var ErrArchiveQueueFull = errors.New("audit archive queue full")

// ArchiveConfig holds archive shipper configuration
type ArchiveConfig struct {
	// Storage selects and configures the object store backend
	Storage *config.AuditArchiveConfig `json:"-"`
	// Prefix is prepended to every object key
	Prefix string `json:"prefix"`
	// BatchSize is the number of entries per object
	BatchSize int `json:"batch_size"`
	// FlushInterval bounds how long an entry waits before a partial batch is written
	FlushInterval time.Duration `json:"flush_interval"`
	// UploadTimeout bounds a single object upload
	UploadTimeout time.Duration `json:"upload_timeout"`
}

// ArchiveShipper writes batches of entries as JSON-lines objects to an object store.
// Keys are partitioned by UTC day: <prefix>/YYYY/MM/DD/<timestamp>-<id>.jsonl
type ArchiveShipper struct {
	cfg   ArchiveConfig
	store storage.ObjectStore
	now   func() time.Time

	queue     chan *models.AuditLog
	batch     []*models.AuditLog
	closeCh   chan struct{}
	doneCh    chan struct{}
	closeOnce sync.Once
}

// NewArchiveShipper starts the batch loop over store. The shipper owns store and closes
// it on Close.
func NewArchiveShipper(store storage.ObjectStore, cfg ArchiveConfig) (*ArchiveShipper, error) {
	if store == nil {
		return nil, fmt.Errorf("archive object store is required")
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 100
	}
	if cfg.FlushInterval <= 0 {
		cfg.FlushInterval = time.Minute
	}
	if cfg.UploadTimeout <= 0 {
		cfg.UploadTimeout = 30 * time.Second
	}
	if cfg.Prefix == "" {
		cfg.Prefix = "audit"
	}

	as := &ArchiveShipper{
		cfg:     cfg,
		store:   store,
		now:     time.Now,
		queue:   make(chan *models.AuditLog, 10*cfg.BatchSize),
		batch:   make([]*models.AuditLog, 0, cfg.BatchSize),
		closeCh: make(chan struct{}),
		doneCh:  make(chan struct{}),
	}
	go as.run()
	return as, nil
}

// Ship queues an entry for the next object
func (as *ArchiveShipper) Ship(_ context.Context, entry *models.AuditLog) error {
	select {
	case <-as.closeCh:
		return fmt.Errorf("audit archive is closed")
	default:
	}
	select {
	case as.queue <- entry:
		return nil
	default:
		return ErrArchiveQueueFull
	}
}

func (as *ArchiveShipper) run() {
	defer close(as.doneCh)

	ticker := time.NewTicker(as.cfg.FlushInterval)
	defer ticker.Stop()

	for {
		select {
		case entry := <-as.queue:
			as.batch = append(as.batch, entry)
			if len(as.batch) >= as.cfg.BatchSize {
				as.flush()
			}
		case <-ticker.C:
			as.flush()
		case <-as.closeCh:
		drain:
			for {
				select {
				case entry := <-as.queue:
					as.batch = append(as.batch, entry)
					if len(as.batch) >= as.cfg.BatchSize {
						as.flush()
					}
				default:
					break drain
				}
			}
			as.flush()
			return
		}
	}
}

// flush writes the pending batch as one object. A failed upload drops the batch; the
// entries are still in the database.
func (as *ArchiveShipper) flush() {
	if len(as.batch) == 0 {
		return
	}
	defer func() { as.batch = as.batch[:0] }()

	data, err := encodeJSONLines(as.batch)
	if err != nil {
		slog.Error("failed to encode audit archive batch", "error", err)
		return
	}

	key := as.objectKey()
	ctx, cancel := context.WithTimeout(context.Background(), as.cfg.UploadTimeout)
	defer cancel()

	result, err := as.store.Put(ctx, key, data, ArchiveContentType)
	if err != nil {
		telemetry.AuditShipFailuresTotal.Add(float64(len(as.batch)))
		slog.Warn("failed to archive audit batch", "key", key, "entries", len(as.batch), "error", err)
		return
	}
	slog.Debug("archived audit batch", "key", result.Key, "entries", len(as.batch), "bytes", result.Size, "sha256", result.Checksum)
}

func (as *ArchiveShipper) objectKey() string {
	ts := as.now().UTC()
	name := fmt.Sprintf("%s-%s.jsonl", ts.Format("20060102T150405Z"), uuid.NewString())
	return path.Join(as.cfg.Prefix, ts.Format("2006"), ts.Format("01"), ts.Format("02"), name)
}

func encodeJSONLines(entries []*models.AuditLog) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	for _, e := range entries {
		if err := enc.Encode(e); err != nil {
			return nil, err
		}
	}
	return buf.Bytes(), nil
}

// Close flushes queued entries and closes the object store
func (as *ArchiveShipper) Close() error {
	var err error
	as.closeOnce.Do(func() {
		close(as.closeCh)
		<-as.doneCh
		err = as.store.Close()
	})
	return err
}
