package whatsapp

import (
	"context"
	"errors"
	"fmt"
	"os"
	"runtime"
	"sync"
	"time"

	"github.com/mdp/qrterminal/v3"
	"go.mau.fi/whatsmeow"
	"go.mau.fi/whatsmeow/proto/waCompanionReg"
	"go.mau.fi/whatsmeow/proto/waE2E"
	"go.mau.fi/whatsmeow/store"
	"go.mau.fi/whatsmeow/types"
	"go.mau.fi/whatsmeow/types/events"
	waLog "go.mau.fi/whatsmeow/util/log"
	"google.golang.org/protobuf/proto"

	"github.com/gdbrns/go-whatsapp-pair-bot/pkg/log"
)

var ErrNotRegistered = errors.New("whatsapp device is not registered")

type ClientConfig struct {
	ProxyURL string
	PrintQR  bool
	// VersionMajor/Minor/Patch override the advertised client version when non-zero.
	VersionMajor int
	VersionMinor int
	VersionPatch int
}

// Client adapts *whatsmeow.Client to the narrow surface the session manager drives.
// Auto reconnect is disabled; the manager owns the retry policy.
type Client struct {
	wa      *whatsmeow.Client
	printQR bool

	mu       sync.RWMutex
	sink     func(Event)
	latestQR string
}

var devicePropsOnce sync.Once

func configureDeviceProps(cfg ClientConfig) {
	devicePropsOnce.Do(func() {
		store.DeviceProps.Os = proto.String(runtime.GOOS)
		store.DeviceProps.PlatformType = waCompanionReg.DeviceProps_CHROME.Enum()
		store.DeviceProps.RequireFullSync = proto.Bool(false)

		if cfg.VersionMajor > 0 {
			store.DeviceProps.Version.Primary = proto.Uint32(uint32(cfg.VersionMajor))
		}
		if cfg.VersionMinor > 0 {
			store.DeviceProps.Version.Secondary = proto.Uint32(uint32(cfg.VersionMinor))
		}
		if cfg.VersionPatch > 0 {
			store.DeviceProps.Version.Tertiary = proto.Uint32(uint32(cfg.VersionPatch))
		}
	})
}

func NewClient(device *store.Device, cfg ClientConfig, logger waLog.Logger) *Client {
	configureDeviceProps(cfg)

	wa := whatsmeow.NewClient(device, logger)
	if cfg.ProxyURL != "" {
		if err := wa.SetProxyAddress(cfg.ProxyURL); err != nil {
			log.Component("whatsapp").WithError(err).Warn("ignoring invalid WHATSAPP_CLIENT_PROXY_URL")
		}
	}
	wa.EnableAutoReconnect = false
	wa.AutoTrustIdentity = true

	c := &Client{wa: wa, printQR: cfg.PrintQR}
	wa.AddEventHandler(c.handleEvent)
	return c
}

// SetEventSink registers the receiver of translated events. The sink is called from
// whatsmeow's handler goroutine and must not block.
func (c *Client) SetEventSink(sink func(Event)) {
	c.mu.Lock()
	c.sink = sink
	c.mu.Unlock()
}

func (c *Client) emit(evt Event) {
	c.mu.RLock()
	sink := c.sink
	c.mu.RUnlock()
	if sink != nil {
		sink(evt)
	}
}

func (c *Client) Connect() error {
	err := c.wa.Connect()
	if errors.Is(err, whatsmeow.ErrAlreadyConnected) {
		return nil
	}
	return err
}

func (c *Client) Disconnect() {
	c.wa.Disconnect()
}

func (c *Client) IsConnected() bool {
	return c.wa.IsConnected()
}

// IsRegistered reports whether the device holds credentials issued by the network.
func (c *Client) IsRegistered() bool {
	return c.wa.Store.ID != nil
}

func (c *Client) OwnJID() types.JID {
	if c.wa.Store.ID == nil {
		return types.EmptyJID
	}
	return c.wa.Store.ID.ToNonAD()
}

func (c *Client) LatestQR() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.latestQR
}

func (c *Client) PairPhone(ctx context.Context, phone string) (string, error) {
	return c.wa.PairPhone(ctx, phone, true, whatsmeow.PairClientChrome, "Chrome ("+runtime.GOOS+")")
}

func (c *Client) SendMessage(ctx context.Context, to types.JID, msg *waE2E.Message) (string, error) {
	extra := whatsmeow.SendRequestExtra{
		ID: c.wa.GenerateMessageID(),
	}
	if _, err := c.wa.SendMessage(ctx, to, msg, extra); err != nil {
		return "", err
	}
	return extra.ID, nil
}

func (c *Client) Download(ctx context.Context, msg whatsmeow.DownloadableMessage) ([]byte, error) {
	return c.wa.Download(ctx, msg)
}

func (c *Client) Upload(ctx context.Context, data []byte, mediaType whatsmeow.MediaType) (whatsmeow.UploadResponse, error) {
	return c.wa.Upload(ctx, data, mediaType)
}

func (c *Client) Logout(ctx context.Context) error {
	if c.wa.Store.ID == nil {
		return ErrNotRegistered
	}
	return c.wa.Logout(ctx)
}

func (c *Client) handleEvent(evt interface{}) {
	entry := log.Component("whatsapp").WithField("jid", log.MaskPhone(c.OwnJID().String()))

	switch e := evt.(type) {
	case *events.Connected:
		c.mu.Lock()
		c.latestQR = ""
		c.mu.Unlock()
		c.emit(ConnectedEvent{})
	case *events.LoggedOut:
		c.emit(ClosedEvent{Reason: ReasonLoggedOut, Detail: e.Reason.String()})
	case *events.StreamReplaced:
		c.emit(ClosedEvent{Reason: ReasonStreamReplaced})
	case *events.Disconnected:
		c.emit(ClosedEvent{Reason: ReasonConnectionLost})
	case *events.ConnectFailure:
		if e.Reason.IsLoggedOut() {
			c.emit(ClosedEvent{Reason: ReasonLoggedOut, Detail: e.Reason.String()})
			return
		}
		c.emit(ClosedEvent{Reason: ReasonConnectFailure, Detail: fmt.Sprintf("%s: %s", e.Reason, e.Message)})
	case *events.KeepAliveTimeout:
		entry.Warn(fmt.Sprintf("keepalive timeout, errors=%d, lastSuccess=%s", e.ErrorCount, e.LastSuccess.Format(time.RFC3339)))
		if closed, ok := keepAliveClosed(e, time.Now()); ok {
			c.emit(closed)
		}
	case *events.KeepAliveRestored:
		entry.Info("keepalive restored")
	case *events.TemporaryBan:
		entry.Error(fmt.Sprintf("temporarily banned, reason=%s, expires=%s", e.Code, e.Expire))
	case *events.PairSuccess:
		entry.Info("pairing succeeded for " + log.MaskPhone(e.ID.String()))
		c.emit(CredentialsUpdatedEvent{JID: e.ID})
	case *events.QR:
		if len(e.Codes) == 0 {
			return
		}
		c.mu.Lock()
		c.latestQR = e.Codes[0]
		c.mu.Unlock()
		if c.printQR {
			qrterminal.GenerateHalfBlock(e.Codes[0], qrterminal.L, os.Stdout)
		}
		c.emit(QREvent{Code: e.Codes[0]})
	case *events.Message:
		if e.Message == nil {
			return
		}
		c.emit(MessageEvent{Message: ParseMessage(e)})
	}
}

// keepAliveClosed reports a dead socket once keepalives have failed for longer than
// whatsmeow.KeepAliveMaxFailTime. whatsmeow only drops such sockets itself when auto
// reconnect is on.
func keepAliveClosed(evt *events.KeepAliveTimeout, now time.Time) (ClosedEvent, bool) {
	if evt.LastSuccess.IsZero() || now.Sub(evt.LastSuccess) < whatsmeow.KeepAliveMaxFailTime {
		return ClosedEvent{}, false
	}
	return ClosedEvent{
		Reason: ReasonKeepAlive,
		Detail: fmt.Sprintf("%d keepalive failures since %s", evt.ErrorCount, evt.LastSuccess.Format(time.RFC3339)),
	}, true
}
