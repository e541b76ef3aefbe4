package command

import (
	"bytes"
	"context"
	"errors"

	"github.com/sunshineplan/imgconv"
	"go.mau.fi/whatsmeow"
	"go.mau.fi/whatsmeow/proto/waE2E"
	"google.golang.org/protobuf/proto"

	"github.com/gdbrns/go-whatsapp-pair-bot/pkg/log"
	"github.com/gdbrns/go-whatsapp-pair-bot/pkg/whatsapp"
)

const (
	revealCaption    = "*ViewOnce revealed by bot*"
	revealFailedText = "❌ Failed to fetch media"
	revealUsageText  = "❗ Reply to a ViewOnce message"
)

var errNoViewOnce = errors.New("quoted message is not view-once media")

// viewOnceMedia digs the image or video out of a quoted view-once message.
func viewOnceMedia(quoted *waE2E.Message) (*waE2E.ImageMessage, *waE2E.VideoMessage, error) {
	if quoted == nil {
		return nil, nil, errNoViewOnce
	}

	wrappers := []*waE2E.FutureProofMessage{
		quoted.GetViewOnceMessage(),
		quoted.GetViewOnceMessageV2(),
		quoted.GetViewOnceMessageV2Extension(),
	}
	for _, wrapper := range wrappers {
		if inner := wrapper.GetMessage(); inner != nil {
			if img := inner.GetImageMessage(); img != nil {
				return img, nil, nil
			}
			if vid := inner.GetVideoMessage(); vid != nil {
				return nil, vid, nil
			}
		}
	}

	if img := quoted.GetImageMessage(); img.GetViewOnce() {
		return img, nil, nil
	}
	if vid := quoted.GetVideoMessage(); vid.GetViewOnce() {
		return nil, vid, nil
	}
	return nil, nil, errNoViewOnce
}

func (r *Router) revealViewOnce(ctx context.Context, msg whatsapp.Message) error {
	img, vid, err := viewOnceMedia(msg.Quoted)
	if err != nil {
		return r.reply(ctx, msg.Chat, revealUsageText)
	}

	mediaCtx, cancel := context.WithTimeout(ctx, r.cfg.SendTimeout)
	defer cancel()

	var content *waE2E.Message
	if img != nil {
		content, err = r.buildImage(mediaCtx, img)
	} else {
		content, err = r.buildVideo(mediaCtx, vid)
	}
	if err != nil {
		log.Command("vv", msg.Chat.String()).WithError(err).Warn("view-once reveal failed")
		return r.reply(ctx, msg.Chat, revealFailedText)
	}

	return r.sender.SendMessage(mediaCtx, msg.Chat, content)
}

func (r *Router) buildImage(ctx context.Context, img *waE2E.ImageMessage) (*waE2E.Message, error) {
	data, err := r.sender.Download(ctx, img)
	if err != nil {
		return nil, err
	}
	uploaded, err := r.sender.Upload(ctx, data, whatsmeow.MediaImage)
	if err != nil {
		return nil, err
	}

	thumbnail := img.GetJPEGThumbnail()
	if generated, err := jpegThumbnail(data); err == nil {
		thumbnail = generated
	}

	mimetype := img.GetMimetype()
	if mimetype == "" {
		mimetype = "image/jpeg"
	}
	return &waE2E.Message{
		ImageMessage: &waE2E.ImageMessage{
			URL:           proto.String(uploaded.URL),
			DirectPath:    proto.String(uploaded.DirectPath),
			Mimetype:      proto.String(mimetype),
			Caption:       proto.String(revealCaption),
			FileLength:    proto.Uint64(uploaded.FileLength),
			FileSHA256:    uploaded.FileSHA256,
			FileEncSHA256: uploaded.FileEncSHA256,
			MediaKey:      uploaded.MediaKey,
			JPEGThumbnail: thumbnail,
			Width:         img.Width,
			Height:        img.Height,
		},
	}, nil
}

func (r *Router) buildVideo(ctx context.Context, vid *waE2E.VideoMessage) (*waE2E.Message, error) {
	data, err := r.sender.Download(ctx, vid)
	if err != nil {
		return nil, err
	}
	uploaded, err := r.sender.Upload(ctx, data, whatsmeow.MediaVideo)
	if err != nil {
		return nil, err
	}

	mimetype := vid.GetMimetype()
	if mimetype == "" {
		mimetype = "video/mp4"
	}
	return &waE2E.Message{
		VideoMessage: &waE2E.VideoMessage{
			URL:           proto.String(uploaded.URL),
			DirectPath:    proto.String(uploaded.DirectPath),
			Mimetype:      proto.String(mimetype),
			Caption:       proto.String(revealCaption),
			FileLength:    proto.Uint64(uploaded.FileLength),
			FileSHA256:    uploaded.FileSHA256,
			FileEncSHA256: uploaded.FileEncSHA256,
			MediaKey:      uploaded.MediaKey,
			Seconds:       vid.Seconds,
			JPEGThumbnail: vid.GetJPEGThumbnail(),
		},
	}, nil
}

func jpegThumbnail(data []byte) ([]byte, error) {
	decoded, err := imgconv.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, err
	}
	encoded := new(bytes.Buffer)
	err = imgconv.Write(encoded,
		imgconv.Resize(decoded, &imgconv.ResizeOption{Width: 72}),
		&imgconv.FormatOption{Format: imgconv.JPEG})
	if err != nil {
		return nil, err
	}
	return encoded.Bytes(), nil
}
