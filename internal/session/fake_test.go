package session

import (
	"context"
	"errors"
	"sync"

	"go.mau.fi/whatsmeow"
	"go.mau.fi/whatsmeow/proto/waE2E"
	"go.mau.fi/whatsmeow/types"

	"github.com/gdbrns/go-whatsapp-pair-bot/internal/pairing"
	"github.com/gdbrns/go-whatsapp-pair-bot/pkg/whatsapp"
)

type sentMessage struct {
	to  types.JID
	msg *waE2E.Message
}

type fakeTransport struct {
	mu           sync.Mutex
	sink         func(whatsapp.Event)
	connectCalls int
	connectErrs  []error
	connected    bool
	registered   bool
	pairCode     string
	pairErr      error
	sendErr      error
	sent         []sentMessage
	loggedOut    bool
}

func (f *fakeTransport) SetEventSink(sink func(whatsapp.Event)) {
	f.mu.Lock()
	f.sink = sink
	f.mu.Unlock()
}

func (f *fakeTransport) emit(evt whatsapp.Event) {
	f.mu.Lock()
	sink := f.sink
	f.mu.Unlock()
	sink(evt)
}

func (f *fakeTransport) Connect() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.connectCalls++
	if len(f.connectErrs) > 0 {
		err := f.connectErrs[0]
		f.connectErrs = f.connectErrs[1:]
		if err != nil {
			return err
		}
	}
	f.connected = true
	return nil
}

func (f *fakeTransport) Disconnect() {
	f.mu.Lock()
	f.connected = false
	f.mu.Unlock()
}

func (f *fakeTransport) IsConnected() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.connected
}

func (f *fakeTransport) IsRegistered() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.registered
}

func (f *fakeTransport) OwnJID() types.JID {
	if !f.IsRegistered() {
		return types.EmptyJID
	}
	return types.NewJID("15550001111", types.DefaultUserServer)
}

func (f *fakeTransport) PairPhone(ctx context.Context, phone string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.pairCode, f.pairErr
}

func (f *fakeTransport) SendMessage(ctx context.Context, to types.JID, msg *waE2E.Message) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.sendErr != nil {
		return "", f.sendErr
	}
	f.sent = append(f.sent, sentMessage{to: to, msg: msg})
	return "MSGID", nil
}

func (f *fakeTransport) Download(ctx context.Context, msg whatsmeow.DownloadableMessage) ([]byte, error) {
	return nil, errors.New("not implemented")
}

func (f *fakeTransport) Upload(ctx context.Context, data []byte, mediaType whatsmeow.MediaType) (whatsmeow.UploadResponse, error) {
	return whatsmeow.UploadResponse{}, errors.New("not implemented")
}

func (f *fakeTransport) Logout(ctx context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.loggedOut = true
	f.registered = false
	return nil
}

func (f *fakeTransport) connects() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.connectCalls
}

func (f *fakeTransport) sentMessages() []sentMessage {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]sentMessage(nil), f.sent...)
}

type fakeCredentials struct {
	mu      sync.Mutex
	saves   int
	deletes int
}

func (f *fakeCredentials) Save(ctx context.Context) error {
	f.mu.Lock()
	f.saves++
	f.mu.Unlock()
	return nil
}

func (f *fakeCredentials) Delete(ctx context.Context) error {
	f.mu.Lock()
	f.deletes++
	f.mu.Unlock()
	return nil
}

func (f *fakeCredentials) counts() (int, int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.saves, f.deletes
}

type recordingNotifier struct {
	mu     sync.Mutex
	phases []string
	bound  []pairing.Entry
}

func (r *recordingNotifier) PhaseChanged(phase string, detail string) {
	r.mu.Lock()
	r.phases = append(r.phases, phase)
	r.mu.Unlock()
}

func (r *recordingNotifier) PairingBound(entry pairing.Entry) {
	r.mu.Lock()
	r.bound = append(r.bound, entry)
	r.mu.Unlock()
}

func (r *recordingNotifier) boundEntries() []pairing.Entry {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]pairing.Entry(nil), r.bound...)
}
