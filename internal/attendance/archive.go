package attendance

import (
	"context"
	"fmt"
	"log"

	"campusattendance/internal/cloudinary"
	"campusattendance/internal/queue"
)

// Archive results reported to ArchiveObserver.
const (
	ArchiveUploaded = "uploaded"
	ArchiveSkipped  = "skipped"
	ArchiveFailed   = "failed"
)

// EvidenceStore is the slice of the repository the archiver needs.
type EvidenceStore interface {
	AttemptByID(ctx context.Context, id string) (*Attempt, error)
	SaveEvidence(ctx context.Context, ev Evidence) error
}

// Uploader stores a capture off-box under a stable public id.
type Uploader interface {
	UploadFile(ctx context.Context, path, publicID string) (*cloudinary.UploadResult, error)
}

type ArchiveObserver interface {
	ObserveArchive(result string)
}

// Archiver copies the captures of failed attempts to long-term storage so
// admins can review them after local uploads are rotated.
type Archiver struct {
	store    EvidenceStore
	uploader Uploader
	metrics  ArchiveObserver
}

func NewArchiver(st EvidenceStore, up Uploader, obs ArchiveObserver) *Archiver {
	return &Archiver{store: st, uploader: up, metrics: obs}
}

// Handle processes one queue message. Messages of other types are ignored.
// Uploads are keyed by attempt id so redelivery is harmless.
func (a *Archiver) Handle(ctx context.Context, msg queue.Message) (string, error) {
	if msg.Type != EventAttemptRecorded {
		return ArchiveSkipped, nil
	}
	result, err := a.archive(ctx, string(msg.Body))
	if a.metrics != nil {
		a.metrics.ObserveArchive(result)
	}
	return result, err
}

func (a *Archiver) archive(ctx context.Context, id string) (string, error) {
	at, err := a.store.AttemptByID(ctx, id)
	if err != nil {
		return ArchiveFailed, fmt.Errorf("fetch attempt %s: %w", id, err)
	}
	if at == nil {
		log.Printf("attempt %s not found, skipping", id)
		return ArchiveSkipped, nil
	}
	if at.Success || at.CapturedImagePath == nil || at.EvidenceURL != nil {
		return ArchiveSkipped, nil
	}
	if a.uploader == nil {
		return ArchiveSkipped, nil
	}

	res, err := a.uploader.UploadFile(ctx, *at.CapturedImagePath, at.ID)
	if err != nil {
		return ArchiveFailed, fmt.Errorf("upload capture for %s: %w", id, err)
	}
	if err := a.store.SaveEvidence(ctx, Evidence{AttemptID: at.ID, URL: res.SecureURL, PublicID: res.PublicID}); err != nil {
		return ArchiveFailed, fmt.Errorf("save evidence for %s: %w", id, err)
	}
	return ArchiveUploaded, nil
}
