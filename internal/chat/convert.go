package chat

import (
	"github.com/google/uuid"

	"chatsync/internal/domain"
	"chatsync/internal/store"
	"chatsync/internal/uploads"
)

// messageFromRecord maps a confirmed record into the visible model. Every
// message coming out of the durable store is Sent.
func messageFromRecord(conversationID string, rec store.MessageRecord) domain.Message {
	return domain.Message{
		ID:             rec.ID,
		ConversationID: conversationID,
		UserID:         rec.UserID,
		Status:         domain.StatusSent,
		CreatedAt:      rec.CreatedAt,
		Text:           rec.Text,
		Attachments:    attachmentsFromRecords(rec.Attachments),
		Recording:      recordingFromRecord(rec.Recording),
		ReplyMessage:   replyFromRecord(rec.ReplyMessage),
	}
}

func attachmentsFromRecords(records []store.AttachmentRecord) []domain.Attachment {
	if len(records) == 0 {
		return nil
	}
	attachments := make([]domain.Attachment, 0, len(records))
	for _, rec := range records {
		attachments = append(attachments, domain.Attachment{
			ID:       uuid.NewString(),
			ThumbURL: rec.ThumbURL,
			URL:      rec.URL,
			Type:     domain.AttachmentType(rec.Type),
		})
	}
	return attachments
}

func recordingFromRecord(rec *store.RecordingRecord) *domain.Recording {
	if rec == nil {
		return nil
	}
	return &domain.Recording{
		Duration:        rec.Duration,
		WaveformSamples: rec.WaveformSamples,
		URL:             rec.URL,
	}
}

func replyFromRecord(rec *store.ReplyRecord) *domain.ReplyMessage {
	if rec == nil {
		return nil
	}
	return &domain.ReplyMessage{
		ID:          rec.ID,
		UserID:      rec.UserID,
		Text:        rec.Text,
		Attachments: attachmentsFromRecords(rec.Attachments),
		Recording:   recordingFromRecord(rec.Recording),
	}
}

// recordFromDraft builds the wire payload written to the durable store once
// the draft's media resolved to durable URLs.
func recordFromDraft(id, userID string, draft domain.DraftMessage, resolved uploads.Resolved) store.MessageRecord {
	rec := store.MessageRecord{
		ID:        id,
		UserID:    userID,
		CreatedAt: draft.CreatedAt,
		Text:      draft.Text,
	}
	for _, a := range resolved.Attachments {
		rec.Attachments = append(rec.Attachments, store.AttachmentRecord{
			ThumbURL: a.ThumbURL,
			URL:      a.URL,
			Type:     string(a.Type),
		})
	}
	if resolved.Recording != nil {
		rec.Recording = &store.RecordingRecord{
			Duration:        resolved.Recording.Duration,
			WaveformSamples: resolved.Recording.WaveformSamples,
			URL:             resolved.Recording.URL,
		}
	}
	if reply := draft.ReplyMessage; reply != nil {
		replyRec := &store.ReplyRecord{
			ID:     reply.ID,
			UserID: reply.UserID,
			Text:   reply.Text,
		}
		for _, a := range reply.Attachments {
			replyRec.Attachments = append(replyRec.Attachments, store.AttachmentRecord{
				ThumbURL: a.ThumbURL,
				URL:      a.URL,
				Type:     string(a.Type),
			})
		}
		if reply.Recording != nil {
			replyRec.Recording = &store.RecordingRecord{
				Duration:        reply.Recording.Duration,
				WaveformSamples: reply.Recording.WaveformSamples,
				URL:             reply.Recording.URL,
			}
		}
		rec.ReplyMessage = replyRec
	}
	return rec
}

// latestFromRecord derives the denormalized list-row cache from a message
// record.
func latestFromRecord(rec store.MessageRecord, senderName string) domain.LatestMessage {
	latest := domain.LatestMessage{
		UserID:     rec.UserID,
		SenderName: senderName,
		CreatedAt:  rec.CreatedAt,
		Text:       rec.Text,
	}
	if len(rec.Attachments) > 0 {
		latest.Subtext = domain.AttachmentType(rec.Attachments[0].Type).Title()
	} else if rec.Recording != nil {
		latest.Subtext = "Voice recording"
	}
	return latest
}
