package command

import (
	"bytes"
	"context"
	"errors"
	"image"
	"image/color"
	"image/png"
	"regexp"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mau.fi/whatsmeow"
	"go.mau.fi/whatsmeow/proto/waE2E"
	"go.mau.fi/whatsmeow/types"
	"google.golang.org/protobuf/proto"

	"github.com/gdbrns/go-whatsapp-pair-bot/pkg/whatsapp"
)

type fakeSender struct {
	mu          sync.Mutex
	sent        []*waE2E.Message
	downloadErr error
	media       []byte
	uploadType  whatsmeow.MediaType
}

func (f *fakeSender) SendText(ctx context.Context, to types.JID, text string) error {
	return f.SendMessage(ctx, to, &waE2E.Message{Conversation: proto.String(text)})
}

func (f *fakeSender) SendMessage(ctx context.Context, to types.JID, msg *waE2E.Message) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sent = append(f.sent, msg)
	return nil
}

func (f *fakeSender) Download(ctx context.Context, msg whatsmeow.DownloadableMessage) ([]byte, error) {
	if f.downloadErr != nil {
		return nil, f.downloadErr
	}
	return f.media, nil
}

func (f *fakeSender) Upload(ctx context.Context, data []byte, mediaType whatsmeow.MediaType) (whatsmeow.UploadResponse, error) {
	f.mu.Lock()
	f.uploadType = mediaType
	f.mu.Unlock()
	return whatsmeow.UploadResponse{
		URL:        "https://mmg.whatsapp.net/media",
		DirectPath: "/v/t62/media",
		FileLength: uint64(len(data)),
		MediaKey:   []byte("key"),
	}, nil
}

func (f *fakeSender) texts() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]string, 0, len(f.sent))
	for _, msg := range f.sent {
		out = append(out, msg.GetConversation())
	}
	return out
}

var chat = types.NewJID("12345678901", types.DefaultUserServer)

func textMessage(text string) whatsapp.Message {
	return whatsapp.Message{Chat: chat, Sender: chat, Text: text}
}

// steppingClock advances by step on every call.
func steppingClock(start time.Time, step time.Duration) func() time.Time {
	var mu sync.Mutex
	current := start
	return func() time.Time {
		mu.Lock()
		defer mu.Unlock()
		now := current
		current = current.Add(step)
		return now
	}
}

func TestParse(t *testing.T) {
	router := NewRouter(&fakeSender{}, Config{})

	assert.Equal(t, "ping", router.Parse(".ping"))
	assert.Equal(t, "menu", router.Parse("  .MENU please "))
	assert.Equal(t, "", router.Parse("ping"))
	assert.Equal(t, "", router.Parse(". "))
	assert.True(t, router.IsCommand(" .anything"))
	assert.False(t, router.IsCommand("hello ."))

	custom := NewRouter(&fakeSender{}, Config{Prefix: "!"})
	assert.Equal(t, "ping", custom.Parse("!ping"))
	assert.Equal(t, "", custom.Parse(".ping"))
}

func TestPingReportsLatency(t *testing.T) {
	sender := &fakeSender{}
	start := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	router := NewRouter(sender, Config{Now: steppingClock(start, 42*time.Millisecond), StartedAt: start})

	router.Handle(context.Background(), textMessage(".ping"))

	texts := sender.texts()
	require.Len(t, texts, 2)
	assert.Equal(t, "Pong!", texts[0])

	match := regexp.MustCompile(`^🏓 Bot Speed: (\d+)ms$`).FindStringSubmatch(texts[1])
	require.Len(t, match, 2)
	latency, err := strconv.Atoi(match[1])
	require.NoError(t, err)
	assert.GreaterOrEqual(t, latency, 0)
	assert.Equal(t, 42, latency)
}

func TestPingWithRealClock(t *testing.T) {
	sender := &fakeSender{}
	NewRouter(sender, Config{}).Handle(context.Background(), textMessage(".ping"))

	texts := sender.texts()
	require.Len(t, texts, 2)
	assert.Regexp(t, `^🏓 Bot Speed: \d+ms$`, texts[1])
}

func TestOwnerMenuAlive(t *testing.T) {
	sender := &fakeSender{}
	started := time.Date(2025, 1, 1, 10, 0, 0, 0, time.UTC)
	now := started.Add(2*time.Hour + 3*time.Minute + 4*time.Second)
	router := NewRouter(sender, Config{
		OwnerNumber: "923237533251",
		StartedAt:   started,
		Now:         func() time.Time { return now },
	})

	router.Handle(context.Background(), textMessage(".owner"))
	router.Handle(context.Background(), textMessage(".menu"))
	router.Handle(context.Background(), textMessage(".help"))
	router.Handle(context.Background(), textMessage(".alive"))
	router.Handle(context.Background(), textMessage(".unknown"))

	texts := sender.texts()
	require.Len(t, texts, 4)
	assert.Equal(t, "👑 Owner Contact:\nhttps://wa.me/923237533251", texts[0])
	assert.Equal(t, menuText, texts[1])
	assert.Equal(t, menuText, texts[2])
	assert.Equal(t, "✅ Bot is alive!\n⏰ Uptime: 2h 3m 4s\n📅 1/1/2025, 12:03:04 PM", texts[3])
}

func TestFormatUptime(t *testing.T) {
	assert.Equal(t, "0h 0m 0s", FormatUptime(-time.Second))
	assert.Equal(t, "26h 0m 59s", FormatUptime(26*time.Hour+59*time.Second))
}

func pngBytes(t *testing.T) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, 8, 8))
	for x := 0; x < 8; x++ {
		for y := 0; y < 8; y++ {
			img.Set(x, y, color.RGBA{R: 200, A: 255})
		}
	}
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return buf.Bytes()
}

func quotedMessage(quoted *waE2E.Message) whatsapp.Message {
	msg := textMessage(".vv")
	msg.Quoted = quoted
	return msg
}

func TestRevealViewOnceImage(t *testing.T) {
	sender := &fakeSender{media: pngBytes(t)}
	router := NewRouter(sender, Config{})

	quoted := &waE2E.Message{
		ViewOnceMessageV2: &waE2E.FutureProofMessage{
			Message: &waE2E.Message{
				ImageMessage: &waE2E.ImageMessage{Mimetype: proto.String("image/png"), ViewOnce: proto.Bool(true)},
			},
		},
	}
	router.Handle(context.Background(), quotedMessage(quoted))

	sender.mu.Lock()
	defer sender.mu.Unlock()
	require.Len(t, sender.sent, 1)
	revealed := sender.sent[0].GetImageMessage()
	require.NotNil(t, revealed)
	assert.Equal(t, revealCaption, revealed.GetCaption())
	assert.Equal(t, "image/png", revealed.GetMimetype())
	assert.False(t, revealed.GetViewOnce())
	assert.NotEmpty(t, revealed.GetJPEGThumbnail())
	assert.Equal(t, whatsmeow.MediaImage, sender.uploadType)
}

func TestRevealViewOnceVideoFlag(t *testing.T) {
	sender := &fakeSender{media: []byte("video-bytes")}
	router := NewRouter(sender, Config{})

	quoted := &waE2E.Message{
		VideoMessage: &waE2E.VideoMessage{ViewOnce: proto.Bool(true), Seconds: proto.Uint32(3)},
	}
	router.Handle(context.Background(), quotedMessage(quoted))

	sender.mu.Lock()
	defer sender.mu.Unlock()
	require.Len(t, sender.sent, 1)
	video := sender.sent[0].GetVideoMessage()
	require.NotNil(t, video)
	assert.Equal(t, revealCaption, video.GetCaption())
	assert.Equal(t, "video/mp4", video.GetMimetype())
	assert.EqualValues(t, 3, video.GetSeconds())
	assert.Equal(t, whatsmeow.MediaVideo, sender.uploadType)
}

func TestRevealViewOnceErrors(t *testing.T) {
	t.Run("no quote", func(t *testing.T) {
		sender := &fakeSender{}
		NewRouter(sender, Config{}).Handle(context.Background(), textMessage(".vv"))
		assert.Equal(t, []string{revealUsageText}, sender.texts())
	})

	t.Run("quote is not view-once", func(t *testing.T) {
		sender := &fakeSender{}
		quoted := &waE2E.Message{ImageMessage: &waE2E.ImageMessage{}}
		NewRouter(sender, Config{}).Handle(context.Background(), quotedMessage(quoted))
		assert.Equal(t, []string{revealUsageText}, sender.texts())
	})

	t.Run("download fails", func(t *testing.T) {
		sender := &fakeSender{downloadErr: errors.New("media expired")}
		quoted := &waE2E.Message{
			ViewOnceMessage: &waE2E.FutureProofMessage{
				Message: &waE2E.Message{ImageMessage: &waE2E.ImageMessage{}},
			},
		}
		NewRouter(sender, Config{}).Handle(context.Background(), quotedMessage(quoted))
		assert.Equal(t, []string{revealFailedText}, sender.texts())
	})
}
