package whatsapp

import (
	"context"
	"fmt"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"gowa-blast/internal/helper"
	"gowa-blast/internal/service"

	"github.com/rs/zerolog"
	"go.mau.fi/whatsmeow"
	"go.mau.fi/whatsmeow/proto/waE2E"
	"go.mau.fi/whatsmeow/store"
	"go.mau.fi/whatsmeow/store/sqlstore"
	"go.mau.fi/whatsmeow/types"
	"go.mau.fi/whatsmeow/types/events"
	waLog "go.mau.fi/whatsmeow/util/log"
	"google.golang.org/protobuf/proto"

	_ "modernc.org/sqlite"
)

const (
	qrTimeout   = 3 * time.Minute
	storeDBName = "store.db"
)

// Factory builds one whatsmeow client per session, each with its own sqlite
// device store inside the session auth directory.
type Factory struct {
	dirs helper.SessionDirs
	log  zerolog.Logger
}

func NewFactory(dirs helper.SessionDirs, deviceName string, log zerolog.Logger) *Factory {
	if deviceName != "" {
		store.DeviceProps.Os = proto.String(deviceName)
	}
	return &Factory{dirs: dirs, log: log}
}

// New satisfies service.ClientFactory.
func (f *Factory) New(sessionID string) (service.MessagingClient, error) {
	dir, err := f.dirs.EnsureAuthPath(sessionID)
	if err != nil {
		return nil, err
	}

	log := f.log.With().Str("session", sessionID).Logger()
	ctx := context.Background()

	dsn := fmt.Sprintf("file:%s?_pragma=foreign_keys(1)&_pragma=busy_timeout(5000)", filepath.Join(dir, storeDBName))
	container, err := sqlstore.New(ctx, "sqlite", dsn, waLog.Zerolog(log.With().Str("module", "store").Logger()))
	if err != nil {
		return nil, fmt.Errorf("open device store: %w", err)
	}

	device, err := container.GetFirstDevice(ctx)
	if err != nil {
		_ = container.Close()
		return nil, fmt.Errorf("load device: %w", err)
	}

	wa := whatsmeow.NewClient(device, waLog.Zerolog(log.With().Str("module", "client").Logger()))
	return &Client{
		id:        sessionID,
		log:       log,
		container: container,
		wa:        wa,
		state:     service.StateOther,
	}, nil
}

// Client adapts a whatsmeow client to service.MessagingClient.
type Client struct {
	id        string
	log       zerolog.Logger
	container *sqlstore.Container
	wa        *whatsmeow.Client

	mu        sync.Mutex
	sink      func(service.ClientEvent)
	authed    bool // authenticated already emitted
	state     service.ConnectionState
	handlerID uint32
	cancelQR  context.CancelFunc
	destroyed bool

	// the media of the running job is uploaded once and reused
	uploadFor *service.Media
	upload    whatsmeow.UploadResponse
}

var (
	_ service.MessagingClient   = (*Client)(nil)
	_ service.ChatLister        = (*Client)(nil)
	_ service.ParticipantLister = (*Client)(nil)
	_ service.AccountDescriber  = (*Client)(nil)
	_ service.MediaCache        = (*Client)(nil)
)

func (c *Client) Connect(_ context.Context, sink func(service.ClientEvent)) error {
	c.mu.Lock()
	c.sink = sink
	c.state = service.StateOpening
	c.authed = false
	c.mu.Unlock()

	id := c.wa.AddEventHandler(c.handleEvent)
	c.mu.Lock()
	c.handlerID = id
	c.mu.Unlock()

	if c.wa.Store.ID != nil {
		// restored device, Connected will follow
		return c.wa.Connect()
	}

	// QR pairing outlives the request that created the session.
	qrCtx, cancel := context.WithTimeout(context.Background(), qrTimeout)
	qrChan, err := c.wa.GetQRChannel(qrCtx)
	if err != nil {
		cancel()
		return fmt.Errorf("get qr channel: %w", err)
	}
	c.mu.Lock()
	c.cancelQR = cancel
	c.mu.Unlock()

	if err := c.wa.Connect(); err != nil {
		cancel()
		return err
	}
	go c.watchQR(qrChan)
	return nil
}

func (c *Client) watchQR(ch <-chan whatsmeow.QRChannelItem) {
	for item := range ch {
		switch {
		case item.Event == "code":
			c.setState(service.StatePairing)
			c.emit(service.EventQR, item.Code)
		case item.Event == "success":
			return
		case item.Event == "timeout":
			c.setState(service.StateTimeout)
			c.emit(service.EventAuthFailure, "qr code timed out")
			return
		default:
			reason := item.Event
			if item.Error != nil {
				reason = fmt.Sprintf("%s: %v", item.Event, item.Error)
			}
			c.emit(service.EventAuthFailure, reason)
			return
		}
	}
}

func (c *Client) handleEvent(evt interface{}) {
	c.mu.Lock()
	authed := c.authed
	c.mu.Unlock()

	signals, state := translateEvent(evt, authed)
	if state != "" {
		c.setState(state)
	}
	for _, s := range signals {
		if s.Kind == service.EventAuthenticated {
			c.mu.Lock()
			c.authed = true
			c.mu.Unlock()
		}
		c.emitEvent(s)
	}

	if _, ok := evt.(*events.Connected); ok {
		if err := c.wa.SendPresence(context.Background(), types.PresenceAvailable); err != nil {
			c.log.Warn().Err(err).Msg("send presence failed")
		}
	}
}

// translateEvent maps a whatsmeow event to lifecycle signals and, when it
// changes, the connection state. A plain Disconnected is not a signal:
// whatsmeow reconnects on its own.
func translateEvent(evt interface{}, authed bool) ([]service.ClientEvent, service.ConnectionState) {
	switch e := evt.(type) {
	case *events.PairSuccess:
		return []service.ClientEvent{{Kind: service.EventAuthenticated}}, ""
	case *events.Connected:
		var out []service.ClientEvent
		if !authed {
			out = append(out, service.ClientEvent{Kind: service.EventAuthenticated})
		}
		return append(out, service.ClientEvent{Kind: service.EventReady}), service.StateConnected
	case *events.LoggedOut:
		return disconnected(fmt.Sprintf("logged out (%v)", e.Reason)), service.StateOther
	case *events.StreamReplaced:
		return disconnected("stream replaced by another connection"), service.StateOther
	case *events.TemporaryBan:
		return disconnected(fmt.Sprintf("temporary ban (%v)", e.Code)), service.StateOther
	case *events.ConnectFailure:
		return authFailure(fmt.Sprintf("connect failure (%v) %s", e.Reason, e.Message)), service.StateOther
	case *events.ClientOutdated:
		return authFailure("client outdated"), service.StateOther
	case *events.Disconnected:
		return nil, service.StateOpening
	}
	return nil, ""
}

func disconnected(reason string) []service.ClientEvent {
	return []service.ClientEvent{{Kind: service.EventDisconnected, Payload: reason}}
}

func authFailure(reason string) []service.ClientEvent {
	return []service.ClientEvent{{Kind: service.EventAuthFailure, Payload: reason}}
}

func (c *Client) emit(kind service.EventKind, payload string) {
	c.emitEvent(service.ClientEvent{Kind: kind, Payload: payload})
}

func (c *Client) emitEvent(ev service.ClientEvent) {
	c.mu.Lock()
	sink := c.sink
	c.mu.Unlock()
	if sink != nil {
		sink(ev)
	}
}

func (c *Client) setState(s service.ConnectionState) {
	c.mu.Lock()
	c.state = s
	c.mu.Unlock()
}

func (c *Client) ConnectionState() service.ConnectionState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

func (c *Client) ResolveRecipient(ctx context.Context, number string) (string, error) {
	resp, err := c.wa.IsOnWhatsApp(ctx, []string{"+" + number})
	if err != nil {
		return "", fmt.Errorf("check number: %w", err)
	}
	if len(resp) == 0 || !resp[0].IsIn {
		return "", nil
	}
	return resp[0].JID.String(), nil
}

func (c *Client) SendText(ctx context.Context, to, text string) error {
	jid, err := types.ParseJID(to)
	if err != nil {
		return fmt.Errorf("parse recipient: %w", err)
	}
	_, err = c.wa.SendMessage(ctx, jid, &waE2E.Message{Conversation: proto.String(text)})
	return err
}

func (c *Client) SendMedia(ctx context.Context, to string, media *service.Media, caption string) error {
	jid, err := types.ParseJID(to)
	if err != nil {
		return fmt.Errorf("parse recipient: %w", err)
	}
	up, err := c.uploadOnce(ctx, media)
	if err != nil {
		return err
	}
	msg := buildMediaMessage(media, caption, up)
	if _, err := c.wa.SendMessage(ctx, jid, msg); err != nil {
		return err
	}
	// audio messages carry no caption
	if msg.AudioMessage != nil && strings.TrimSpace(caption) != "" {
		return c.SendText(ctx, to, caption)
	}
	return nil
}

func (c *Client) uploadOnce(ctx context.Context, media *service.Media) (whatsmeow.UploadResponse, error) {
	c.mu.Lock()
	if c.uploadFor == media {
		up := c.upload
		c.mu.Unlock()
		return up, nil
	}
	c.mu.Unlock()

	up, err := c.wa.Upload(ctx, media.Data, mediaTypeFor(media.MimeType))
	if err != nil {
		return whatsmeow.UploadResponse{}, fmt.Errorf("upload media: %w", err)
	}

	c.mu.Lock()
	c.uploadFor = media
	c.upload = up
	c.mu.Unlock()
	return up, nil
}

// ForgetMedia drops the cached upload of media so its data can be collected.
func (c *Client) ForgetMedia(media *service.Media) {
	c.mu.Lock()
	if c.uploadFor == media {
		c.uploadFor = nil
		c.upload = whatsmeow.UploadResponse{}
	}
	c.mu.Unlock()
}

func mediaTypeFor(mimeType string) whatsmeow.MediaType {
	switch {
	case strings.HasPrefix(mimeType, "image/"):
		return whatsmeow.MediaImage
	case strings.HasPrefix(mimeType, "video/"):
		return whatsmeow.MediaVideo
	case strings.HasPrefix(mimeType, "audio/"):
		return whatsmeow.MediaAudio
	}
	return whatsmeow.MediaDocument
}

func buildMediaMessage(media *service.Media, caption string, up whatsmeow.UploadResponse) *waE2E.Message {
	var captionPtr *string
	if caption != "" {
		captionPtr = proto.String(caption)
	}

	switch mediaTypeFor(media.MimeType) {
	case whatsmeow.MediaImage:
		msg := &waE2E.ImageMessage{
			Caption:       captionPtr,
			URL:           proto.String(up.URL),
			DirectPath:    proto.String(up.DirectPath),
			MediaKey:      up.MediaKey,
			Mimetype:      proto.String(media.MimeType),
			FileEncSHA256: up.FileEncSHA256,
			FileSHA256:    up.FileSHA256,
			FileLength:    proto.Uint64(up.FileLength),
			JPEGThumbnail: media.Thumbnail,
		}
		if media.Width > 0 && media.Height > 0 {
			msg.Width = proto.Uint32(uint32(media.Width))
			msg.Height = proto.Uint32(uint32(media.Height))
		}
		return &waE2E.Message{ImageMessage: msg}
	case whatsmeow.MediaVideo:
		return &waE2E.Message{VideoMessage: &waE2E.VideoMessage{
			Caption:       captionPtr,
			URL:           proto.String(up.URL),
			DirectPath:    proto.String(up.DirectPath),
			MediaKey:      up.MediaKey,
			Mimetype:      proto.String(media.MimeType),
			FileEncSHA256: up.FileEncSHA256,
			FileSHA256:    up.FileSHA256,
			FileLength:    proto.Uint64(up.FileLength),
		}}
	case whatsmeow.MediaAudio:
		return &waE2E.Message{AudioMessage: &waE2E.AudioMessage{
			URL:           proto.String(up.URL),
			DirectPath:    proto.String(up.DirectPath),
			MediaKey:      up.MediaKey,
			Mimetype:      proto.String(media.MimeType),
			FileEncSHA256: up.FileEncSHA256,
			FileSHA256:    up.FileSHA256,
			FileLength:    proto.Uint64(up.FileLength),
		}}
	}
	return &waE2E.Message{DocumentMessage: &waE2E.DocumentMessage{
		Caption:       captionPtr,
		Title:         proto.String(media.FileName),
		FileName:      proto.String(media.FileName),
		URL:           proto.String(up.URL),
		DirectPath:    proto.String(up.DirectPath),
		MediaKey:      up.MediaKey,
		Mimetype:      proto.String(media.MimeType),
		FileEncSHA256: up.FileEncSHA256,
		FileSHA256:    up.FileSHA256,
		FileLength:    proto.Uint64(up.FileLength),
	}}
}

func (c *Client) Account() (service.Account, bool) {
	id := c.wa.Store.ID
	if id == nil {
		return service.Account{}, false
	}
	return service.Account{
		JID:      id.String(),
		Phone:    helper.ExtractPhoneFromJID(id.String()),
		PushName: c.wa.Store.PushName,
		Platform: c.wa.Store.Platform,
	}, true
}

// ListChats returns joined groups and saved contacts, ordered by name.
func (c *Client) ListChats(ctx context.Context) ([]service.Chat, error) {
	groups, err := c.wa.GetJoinedGroups(ctx)
	if err != nil {
		return nil, fmt.Errorf("get joined groups: %w", err)
	}
	contacts, err := c.wa.Store.Contacts.GetAllContacts(ctx)
	if err != nil {
		return nil, fmt.Errorf("get contacts: %w", err)
	}

	chats := make([]service.Chat, 0, len(groups)+len(contacts))
	for _, g := range groups {
		chats = append(chats, service.Chat{ID: g.JID.String(), Name: g.Name, IsGroup: true})
	}
	for jid, info := range contacts {
		name := info.FullName
		if name == "" {
			name = info.PushName
		}
		if name == "" {
			name = info.BusinessName
		}
		chats = append(chats, service.Chat{ID: jid.String(), Name: name})
	}
	sort.Slice(chats, func(i, j int) bool {
		if chats[i].Name != chats[j].Name {
			return chats[i].Name < chats[j].Name
		}
		return chats[i].ID < chats[j].ID
	})
	return chats, nil
}

// ChatParticipants lists the member JIDs of a group chat.
func (c *Client) ChatParticipants(ctx context.Context, chatID string) ([]string, error) {
	jid, err := types.ParseJID(chatID)
	if err != nil {
		return nil, fmt.Errorf("parse chat id: %w", err)
	}
	if jid.Server != types.GroupServer {
		return nil, service.ErrNotGroup
	}
	info, err := c.wa.GetGroupInfo(ctx, jid)
	if err != nil {
		return nil, fmt.Errorf("get group info: %w", err)
	}
	out := make([]string, 0, len(info.Participants))
	for _, p := range info.Participants {
		out = append(out, p.JID.String())
	}
	return out, nil
}

func (c *Client) Logout(ctx context.Context) error {
	return c.wa.Logout(ctx)
}

// Destroy disconnects and closes the device store. Events stop flowing to
// the sink. Calling it twice is a no-op.
func (c *Client) Destroy() error {
	c.mu.Lock()
	if c.destroyed {
		c.mu.Unlock()
		return nil
	}
	c.destroyed = true
	c.sink = nil
	c.state = service.StateOther
	cancel := c.cancelQR
	handlerID := c.handlerID
	c.uploadFor = nil
	c.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	c.wa.RemoveEventHandler(handlerID)
	c.wa.Disconnect()
	if err := c.container.Close(); err != nil {
		return fmt.Errorf("close device store: %w", err)
	}
	return nil
}
