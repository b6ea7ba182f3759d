package uploads

import (
	"context"
	"fmt"
	"path"
	"strings"

	"github.com/google/uuid"

	"chatsync/internal/domain"
	chatsync_errors "chatsync/pkg/errors"
	"chatsync/pkg/logger"
)

// MediaUploader converts local bytes into a durable URL. Satisfied by the S3
// client; tests plug in fakes.
type MediaUploader interface {
	Upload(ctx context.Context, key, contentType string, data []byte) (string, error)
}

// Resolved carries the durable references a draft's media resolved to.
type Resolved struct {
	Attachments []domain.Attachment
	Recording   *domain.Recording
}

// Orchestrator uploads a draft's media out-of-band before the message is
// submitted. Resolution is all-or-nothing: a message with N attachments is
// submittable only after all N resolve, and any failure aborts the whole
// draft so no partially-attached message is ever persisted.
type Orchestrator struct {
	uploader MediaUploader
	log      *logger.Logger
}

func NewOrchestrator(uploader MediaUploader, log *logger.Logger) *Orchestrator {
	return &Orchestrator{uploader: uploader, log: log}
}

// Resolve uploads every attachment and the recording of the draft.
func (o *Orchestrator) Resolve(ctx context.Context, userID string, draft domain.DraftMessage) (Resolved, error) {
	var out Resolved

	for _, media := range draft.Medias {
		attachment, err := o.resolveMedia(ctx, userID, media)
		if err != nil {
			return Resolved{}, fmt.Errorf("%w: %v", chatsync_errors.ErrUpload, err)
		}
		out.Attachments = append(out.Attachments, attachment)
	}

	if draft.Recording != nil {
		rec, err := o.resolveRecording(ctx, userID, *draft.Recording)
		if err != nil {
			return Resolved{}, fmt.Errorf("%w: %v", chatsync_errors.ErrUpload, err)
		}
		out.Recording = rec
	}

	return out, nil
}

func (o *Orchestrator) resolveMedia(ctx context.Context, userID string, media domain.Media) (domain.Attachment, error) {
	switch media.Type {
	case domain.AttachmentImage:
		// One upload; the image serves as its own thumbnail.
		url, err := o.uploader.Upload(ctx, objectKey(userID, media.Filename), contentTypeOr(media.ContentType, "image/jpeg"), media.Data)
		if err != nil {
			return domain.Attachment{}, err
		}
		return domain.Attachment{
			ID:       uuid.NewString(),
			ThumbURL: url,
			URL:      url,
			Type:     domain.AttachmentImage,
		}, nil

	case domain.AttachmentVideo:
		// Two uploads, both must succeed.
		thumbURL, err := o.uploader.Upload(ctx, objectKey(userID, thumbName(media.Filename)), "image/jpeg", media.Thumbnail)
		if err != nil {
			return domain.Attachment{}, err
		}
		fullURL, err := o.uploader.Upload(ctx, objectKey(userID, media.Filename), contentTypeOr(media.ContentType, "video/mp4"), media.Data)
		if err != nil {
			return domain.Attachment{}, err
		}
		return domain.Attachment{
			ID:       uuid.NewString(),
			ThumbURL: thumbURL,
			URL:      fullURL,
			Type:     domain.AttachmentVideo,
		}, nil
	}

	return domain.Attachment{}, fmt.Errorf("unknown media type %q", media.Type)
}

func (o *Orchestrator) resolveRecording(ctx context.Context, userID string, rec domain.DraftRecording) (*domain.Recording, error) {
	url, err := o.uploader.Upload(ctx, objectKey(userID, "recording.m4a"), "audio/mp4", rec.Data)
	if err != nil {
		return nil, err
	}
	return &domain.Recording{
		Duration:        rec.Duration,
		WaveformSamples: rec.WaveformSamples,
		URL:             url,
	}, nil
}

func objectKey(userID, filename string) string {
	ext := strings.ToLower(path.Ext(filename))
	base := fmt.Sprintf("uploads/%s/%s", userID, uuid.NewString())
	if ext == "" {
		return base
	}
	return base + ext
}

func thumbName(filename string) string {
	ext := path.Ext(filename)
	return strings.TrimSuffix(filename, ext) + "_thumb.jpg"
}

func contentTypeOr(value, fallback string) string {
	if value == "" {
		return fallback
	}
	return value
}
