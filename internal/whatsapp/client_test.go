package whatsapp

import (
	"testing"

	"gowa-blast/internal/service"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mau.fi/whatsmeow"
	"go.mau.fi/whatsmeow/types/events"
)

func TestTranslateEvent(t *testing.T) {
	tests := []struct {
		name   string
		evt    interface{}
		authed bool
		kinds  []service.EventKind
		state  service.ConnectionState
	}{
		{"pair success", &events.PairSuccess{}, false, []service.EventKind{service.EventAuthenticated}, ""},
		{"restored device connects", &events.Connected{}, false, []service.EventKind{service.EventAuthenticated, service.EventReady}, service.StateConnected},
		{"connected after pairing", &events.Connected{}, true, []service.EventKind{service.EventReady}, service.StateConnected},
		{"logged out", &events.LoggedOut{}, true, []service.EventKind{service.EventDisconnected}, service.StateOther},
		{"stream replaced", &events.StreamReplaced{}, true, []service.EventKind{service.EventDisconnected}, service.StateOther},
		{"connect failure", &events.ConnectFailure{Message: "banned"}, false, []service.EventKind{service.EventAuthFailure}, service.StateOther},
		{"client outdated", &events.ClientOutdated{}, false, []service.EventKind{service.EventAuthFailure}, service.StateOther},
		{"transient disconnect", &events.Disconnected{}, true, nil, service.StateOpening},
		{"unrelated", &events.Receipt{}, true, nil, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			signals, state := translateEvent(tt.evt, tt.authed)
			var kinds []service.EventKind
			for _, s := range signals {
				kinds = append(kinds, s.Kind)
			}
			assert.Equal(t, tt.kinds, kinds)
			assert.Equal(t, tt.state, state)
		})
	}
}

func TestTranslateEventCarriesReason(t *testing.T) {
	signals, _ := translateEvent(&events.ConnectFailure{Message: "account banned"}, false)
	require.Len(t, signals, 1)
	assert.Contains(t, signals[0].Payload, "account banned")
}

func TestMediaTypeFor(t *testing.T) {
	assert.Equal(t, whatsmeow.MediaImage, mediaTypeFor("image/jpeg"))
	assert.Equal(t, whatsmeow.MediaVideo, mediaTypeFor("video/mp4"))
	assert.Equal(t, whatsmeow.MediaAudio, mediaTypeFor("audio/ogg"))
	assert.Equal(t, whatsmeow.MediaDocument, mediaTypeFor("application/pdf"))
}

func TestBuildMediaMessage(t *testing.T) {
	up := whatsmeow.UploadResponse{URL: "https://mmg/x", DirectPath: "/x", FileLength: 42}

	img := buildMediaMessage(&service.Media{MimeType: "image/jpeg", Width: 10, Height: 20, Thumbnail: []byte{1}}, "promo", up)
	require.NotNil(t, img.ImageMessage)
	assert.Equal(t, "promo", img.ImageMessage.GetCaption())
	assert.Equal(t, uint64(42), img.ImageMessage.GetFileLength())
	assert.Equal(t, uint32(10), img.ImageMessage.GetWidth())
	assert.Equal(t, []byte{1}, img.ImageMessage.GetJPEGThumbnail())

	doc := buildMediaMessage(&service.Media{MimeType: "application/pdf", FileName: "menu.pdf"}, "", up)
	require.NotNil(t, doc.DocumentMessage)
	assert.Equal(t, "menu.pdf", doc.DocumentMessage.GetFileName())
	assert.Nil(t, doc.DocumentMessage.Caption)

	audio := buildMediaMessage(&service.Media{MimeType: "audio/ogg"}, "ignored", up)
	require.NotNil(t, audio.AudioMessage)
}

func TestForgetMedia(t *testing.T) {
	current := &service.Media{Data: []byte("jpeg"), MimeType: "image/jpeg"}
	other := &service.Media{Data: []byte("pdf"), MimeType: "application/pdf"}
	c := &Client{uploadFor: current, upload: whatsmeow.UploadResponse{URL: "https://mmg.example/1"}}

	c.ForgetMedia(other)
	assert.Same(t, current, c.uploadFor)

	c.ForgetMedia(current)
	assert.Nil(t, c.uploadFor)
	assert.Empty(t, c.upload.URL)
}
