package httpdto

import (
	"chatsync/internal/domain"
	"chatsync/internal/store"
)

func FromUserRecord(rec store.UserRecord) UserDTO {
	return UserDTO{ID: rec.ID, Name: rec.Name, AvatarURL: rec.AvatarURL}
}

func FromUserRecords(records []store.UserRecord) []UserDTO {
	out := make([]UserDTO, 0, len(records))
	for _, rec := range records {
		out = append(out, FromUserRecord(rec))
	}
	return out
}

func fromAttachmentRecords(records []store.AttachmentRecord) []AttachmentDTO {
	if len(records) == 0 {
		return nil
	}
	out := make([]AttachmentDTO, 0, len(records))
	for _, rec := range records {
		out = append(out, AttachmentDTO{ThumbURL: rec.ThumbURL, URL: rec.URL, Type: rec.Type})
	}
	return out
}

func fromRecordingRecord(rec *store.RecordingRecord) *RecordingDTO {
	if rec == nil {
		return nil
	}
	return &RecordingDTO{Duration: rec.Duration, WaveformSamples: rec.WaveformSamples, URL: rec.URL}
}

func fromReplyRecord(rec *store.ReplyRecord) *ReplyDTO {
	if rec == nil {
		return nil
	}
	return &ReplyDTO{
		ID:          rec.ID,
		UserID:      rec.UserID,
		Text:        rec.Text,
		Attachments: fromAttachmentRecords(rec.Attachments),
		Recording:   fromRecordingRecord(rec.Recording),
	}
}

func FromMessageRecord(conversationID string, rec store.MessageRecord) MessageDTO {
	return MessageDTO{
		ID:             rec.ID,
		ConversationID: conversationID,
		UserID:         rec.UserID,
		CreatedAt:      rec.CreatedAt,
		Text:           rec.Text,
		Attachments:    fromAttachmentRecords(rec.Attachments),
		Recording:      fromRecordingRecord(rec.Recording),
		ReplyMessage:   fromReplyRecord(rec.ReplyMessage),
	}
}

func FromMessageRecords(conversationID string, records []store.MessageRecord) []MessageDTO {
	out := make([]MessageDTO, 0, len(records))
	for _, rec := range records {
		out = append(out, FromMessageRecord(conversationID, rec))
	}
	return out
}

// FromConversationRecord resolves participant ids against the directory map;
// unknown ids are carried through with only the id filled in.
func FromConversationRecord(rec store.ConversationRecord, users map[string]store.UserRecord) ConversationDTO {
	dto := ConversationDTO{
		ID:                   rec.ID,
		IsGroup:              rec.IsGroup,
		Title:                rec.Title,
		PictureURL:           rec.PictureURL,
		UsersUnreadCountInfo: rec.UsersUnreadCountInfo,
	}
	for _, id := range rec.Users {
		if u, ok := users[id]; ok {
			dto.Users = append(dto.Users, FromUserRecord(u))
		} else {
			dto.Users = append(dto.Users, UserDTO{ID: id})
		}
	}
	if latest := rec.LatestMessage; latest != nil {
		dto.LatestMessage = &LatestMessageDTO{
			UserID:    latest.UserID,
			CreatedAt: latest.CreatedAt,
			Text:      latest.Text,
		}
		if u, ok := users[latest.UserID]; ok {
			dto.LatestMessage.SenderName = u.Name
		}
		if len(latest.Attachments) > 0 {
			dto.LatestMessage.Subtext = domain.AttachmentType(latest.Attachments[0].Type).Title()
		} else if latest.Recording != nil {
			dto.LatestMessage.Subtext = "Voice recording"
		}
	}
	return dto
}

func FromConversationRecords(records []store.ConversationRecord, users map[string]store.UserRecord) []ConversationDTO {
	out := make([]ConversationDTO, 0, len(records))
	for _, rec := range records {
		out = append(out, FromConversationRecord(rec, users))
	}
	return out
}
