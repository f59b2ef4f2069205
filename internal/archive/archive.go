// Package archive persists completed-call conversation records to object
// storage. Archival is best-effort: a storage outage loses the archive copy,
// never the call_records row.
package archive

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"time"

	"callintake_backend/internal/events"
	"callintake_backend/platform/config"
	"callintake_backend/platform/logger"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

// ConversationRecord is the JSON document written per completed call.
type ConversationRecord struct {
	CallID      string                  `json:"callId"`
	CompanyID   string                  `json:"companyId"`
	From        string                  `json:"from"`
	IsEmergency bool                    `json:"isEmergency"`
	Sentiment   string                  `json:"sentiment,omitempty"`
	StartedAt   time.Time               `json:"startedAt"`
	EndedAt     time.Time               `json:"endedAt"`
	DurationSec int64                   `json:"durationSec"`
	Transcript  []events.TranscriptTurn `json:"transcript"`
	ArchivedAt  time.Time               `json:"archivedAt"`
}

// Archiver subscribes to call.ended and writes conversation records to MinIO.
type Archiver struct {
	client *minio.Client
	bucket string
	log    *logger.Logger
	now    func() time.Time
}

// New creates the archiver and subscribes it to the bus. Returns nil without
// error when MinIO is not configured; archival is then disabled.
func New(cfg config.MinIOConfig, bus events.Bus, log *logger.Logger) (*Archiver, error) {
	if !cfg.IsMinIOEnabled() {
		return nil, nil
	}

	client, err := minio.New(cfg.GetMinIOEndpoint(), &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.GetMinIOAccessKey(), cfg.GetMinIOSecretKey(), ""),
		Secure: cfg.GetMinIOUseSSL(),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create MinIO client: %w", err)
	}

	a := &Archiver{
		client: client,
		bucket: cfg.GetMinioBucketCallArchives(),
		log:    log,
		now:    time.Now,
	}
	bus.Subscribe(events.EventNameCallEnded, events.HandlerFunc(a.onCallEnded))
	return a, nil
}

// EnsureBucket creates the archive bucket if it does not exist.
func (a *Archiver) EnsureBucket(ctx context.Context) error {
	exists, err := a.client.BucketExists(ctx, a.bucket)
	if err != nil {
		return fmt.Errorf("failed to check bucket existence: %w", err)
	}
	if !exists {
		if err := a.client.MakeBucket(ctx, a.bucket, minio.MakeBucketOptions{}); err != nil {
			return fmt.Errorf("failed to create bucket %s: %w", a.bucket, err)
		}
	}
	return nil
}

func (a *Archiver) onCallEnded(ctx context.Context, event events.Event) error {
	ev, ok := event.(events.CallEnded)
	if !ok {
		return nil
	}

	record := buildRecord(ev, a.now())
	body, err := json.Marshal(record)
	if err != nil {
		return fmt.Errorf("failed to marshal conversation record: %w", err)
	}

	key := objectKey(ev)
	_, err = a.client.PutObject(ctx, a.bucket, key, bytes.NewReader(body), int64(len(body)), minio.PutObjectOptions{
		ContentType: "application/json",
	})
	if err != nil {
		a.log.Error("call archive write failed", "call_id", ev.CallID, "key", key, "error", err)
		return err
	}

	a.log.Debug("call archived", "call_id", ev.CallID, "key", key)
	return nil
}

func buildRecord(ev events.CallEnded, archivedAt time.Time) ConversationRecord {
	return ConversationRecord{
		CallID:      ev.CallID,
		CompanyID:   ev.CompanyID.String(),
		From:        ev.From,
		IsEmergency: ev.IsEmergency,
		Sentiment:   ev.Sentiment,
		StartedAt:   ev.StartedAt,
		EndedAt:     ev.EndedAt,
		DurationSec: int64(ev.EndedAt.Sub(ev.StartedAt).Seconds()),
		Transcript:  ev.Transcript,
		ArchivedAt:  archivedAt,
	}
}

// objectKey shards archives by company and end date so retention jobs can
// prune by prefix.
func objectKey(ev events.CallEnded) string {
	return fmt.Sprintf("%s/%s/%s.json", ev.CompanyID, ev.EndedAt.UTC().Format("2006/01/02"), ev.CallID)
}
