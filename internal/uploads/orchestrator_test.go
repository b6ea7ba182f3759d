package uploads

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"chatsync/internal/domain"
	chatsync_errors "chatsync/pkg/errors"
	"chatsync/pkg/logger"
)

// countingUploader fails the nth call and records every upload.
type countingUploader struct {
	mu     sync.Mutex
	calls  []string
	failAt int // 1-based call index to fail, 0 means never
}

func (u *countingUploader) Upload(ctx context.Context, key, contentType string, data []byte) (string, error) {
	u.mu.Lock()
	defer u.mu.Unlock()
	u.calls = append(u.calls, contentType)
	if u.failAt != 0 && len(u.calls) == u.failAt {
		return "", errors.New("storage unavailable")
	}
	return "https://cdn.test/" + key, nil
}

func (u *countingUploader) callCount() int {
	u.mu.Lock()
	defer u.mu.Unlock()
	return len(u.calls)
}

func TestOrchestratorResolve(t *testing.T) {
	ctx := context.Background()

	t.Run("image uploads once and serves as its own thumbnail", func(t *testing.T) {
		up := &countingUploader{}
		o := NewOrchestrator(up, logger.NewNop())

		resolved, err := o.Resolve(ctx, "alice", domain.DraftMessage{
			Medias: []domain.Media{{Type: domain.AttachmentImage, Filename: "pic.jpg", Data: []byte("img")}},
		})
		require.NoError(t, err)
		require.Len(t, resolved.Attachments, 1)
		assert.Equal(t, 1, up.callCount())
		assert.Equal(t, resolved.Attachments[0].URL, resolved.Attachments[0].ThumbURL)
		assert.Equal(t, domain.AttachmentImage, resolved.Attachments[0].Type)
	})

	t.Run("video uploads thumbnail and full file", func(t *testing.T) {
		up := &countingUploader{}
		o := NewOrchestrator(up, logger.NewNop())

		resolved, err := o.Resolve(ctx, "alice", domain.DraftMessage{
			Medias: []domain.Media{{
				Type: domain.AttachmentVideo, Filename: "clip.mp4",
				Data: []byte("video"), Thumbnail: []byte("thumb"),
			}},
		})
		require.NoError(t, err)
		require.Len(t, resolved.Attachments, 1)
		assert.Equal(t, 2, up.callCount())
		assert.NotEqual(t, resolved.Attachments[0].URL, resolved.Attachments[0].ThumbURL)
	})

	t.Run("failure of any upload aborts the whole draft", func(t *testing.T) {
		up := &countingUploader{failAt: 2}
		o := NewOrchestrator(up, logger.NewNop())

		_, err := o.Resolve(ctx, "alice", domain.DraftMessage{
			Medias: []domain.Media{
				{Type: domain.AttachmentImage, Filename: "a.jpg", Data: []byte("a")},
				{Type: domain.AttachmentImage, Filename: "b.jpg", Data: []byte("b")},
			},
		})
		require.Error(t, err)
		assert.ErrorIs(t, err, chatsync_errors.ErrUpload)
	})

	t.Run("video with a failed thumbnail never uploads the full file", func(t *testing.T) {
		up := &countingUploader{failAt: 1}
		o := NewOrchestrator(up, logger.NewNop())

		_, err := o.Resolve(ctx, "alice", domain.DraftMessage{
			Medias: []domain.Media{{
				Type: domain.AttachmentVideo, Filename: "clip.mp4",
				Data: []byte("video"), Thumbnail: []byte("thumb"),
			}},
		})
		require.ErrorIs(t, err, chatsync_errors.ErrUpload)
		assert.Equal(t, 1, up.callCount())
	})

	t.Run("recording resolves to a durable url", func(t *testing.T) {
		up := &countingUploader{}
		o := NewOrchestrator(up, logger.NewNop())

		resolved, err := o.Resolve(ctx, "alice", domain.DraftMessage{
			Recording: &domain.DraftRecording{Duration: 3.5, WaveformSamples: []float64{0.1, 0.9}, Data: []byte("audio")},
		})
		require.NoError(t, err)
		require.NotNil(t, resolved.Recording)
		assert.Equal(t, 3.5, resolved.Recording.Duration)
		assert.True(t, strings.HasPrefix(resolved.Recording.URL, "https://cdn.test/uploads/alice/"))
	})

	t.Run("object keys are namespaced per user", func(t *testing.T) {
		up := &countingUploader{}
		o := NewOrchestrator(up, logger.NewNop())

		resolved, err := o.Resolve(ctx, "bob", domain.DraftMessage{
			Medias: []domain.Media{{Type: domain.AttachmentImage, Filename: "x.png", Data: []byte("x")}},
		})
		require.NoError(t, err)
		assert.Contains(t, resolved.Attachments[0].URL, "/uploads/bob/")
		assert.True(t, strings.HasSuffix(resolved.Attachments[0].URL, ".png"))
	})
}
