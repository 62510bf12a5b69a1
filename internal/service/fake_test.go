package service

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
)

type sentMessage struct {
	To      string
	Text    string
	MediaOK bool
}

type fakeClient struct {
	mu sync.Mutex

	id            string
	sink          func(ClientEvent)
	connectEvents []ClientEvent
	connectErr    error

	invalid  map[string]bool
	sendErrs map[string]error
	resolved []string
	sent     []sentMessage

	logouts   int
	destroys  int
	forgotten []*Media
}

func (c *fakeClient) Connect(_ context.Context, sink func(ClientEvent)) error {
	c.mu.Lock()
	c.sink = sink
	events := c.connectEvents
	err := c.connectErr
	c.mu.Unlock()

	if err != nil {
		return err
	}
	for _, ev := range events {
		sink(ev)
	}
	return nil
}

// emit delivers an event as if it came from the network.
func (c *fakeClient) emit(kind EventKind, payload string) {
	c.mu.Lock()
	sink := c.sink
	c.mu.Unlock()
	sink(ClientEvent{Kind: kind, Payload: payload})
}

func (c *fakeClient) ResolveRecipient(_ context.Context, number string) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.resolved = append(c.resolved, number)
	if c.invalid[number] {
		return "", nil
	}
	return number + "@s.whatsapp.net", nil
}

func (c *fakeClient) SendText(_ context.Context, to, text string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.sendErrs[to]; err != nil {
		return err
	}
	c.sent = append(c.sent, sentMessage{To: to, Text: text})
	return nil
}

func (c *fakeClient) SendMedia(_ context.Context, to string, media *Media, caption string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.sendErrs[to]; err != nil {
		return err
	}
	c.sent = append(c.sent, sentMessage{To: to, Text: caption, MediaOK: media != nil})
	return nil
}

func (c *fakeClient) ForgetMedia(media *Media) {
	c.mu.Lock()
	c.forgotten = append(c.forgotten, media)
	c.mu.Unlock()
}

func (c *fakeClient) forgottenMedia() []*Media {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]*Media(nil), c.forgotten...)
}

func (c *fakeClient) ConnectionState() ConnectionState { return StateConnected }

func (c *fakeClient) Logout(context.Context) error {
	c.mu.Lock()
	c.logouts++
	c.mu.Unlock()
	return nil
}

func (c *fakeClient) Destroy() error {
	c.mu.Lock()
	c.destroys++
	c.mu.Unlock()
	return errors.New("already closed") // teardown must not care
}

func (c *fakeClient) counts() (logouts, destroys int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.logouts, c.destroys
}

func (c *fakeClient) sentMessages() []sentMessage {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]sentMessage(nil), c.sent...)
}

func (c *fakeClient) resolvedNumbers() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]string(nil), c.resolved...)
}

// fakeFactory builds fakeClients that go straight to ready unless events is
// overridden.
type fakeFactory struct {
	mu      sync.Mutex
	events  []ClientEvent
	err     error
	setup   func(*fakeClient)
	clients map[string][]*fakeClient
}

func newFakeFactory() *fakeFactory {
	return &fakeFactory{
		events: []ClientEvent{
			{Kind: EventAuthenticated},
			{Kind: EventReady},
		},
		clients: make(map[string][]*fakeClient),
	}
}

func (f *fakeFactory) New(id string) (MessagingClient, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	c := &fakeClient{id: id, connectEvents: f.events}
	if f.setup != nil {
		f.setup(c)
	}
	f.clients[id] = append(f.clients[id], c)
	return c, nil
}

func (f *fakeFactory) last(id string) *fakeClient {
	f.mu.Lock()
	defer f.mu.Unlock()
	list := f.clients[id]
	if len(list) == 0 {
		return nil
	}
	return list[len(list)-1]
}

func (f *fakeFactory) built(id string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.clients[id])
}

type fakeArtifacts struct {
	mu      sync.Mutex
	removed []string
}

func (a *fakeArtifacts) Remove(id string) error {
	a.mu.Lock()
	a.removed = append(a.removed, id)
	a.mu.Unlock()
	return errors.New("permission denied") // logged only
}

func (a *fakeArtifacts) removedIDs() []string {
	a.mu.Lock()
	defer a.mu.Unlock()
	return append([]string(nil), a.removed...)
}

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

type registryFixture struct {
	reg       *Registry
	factory   *fakeFactory
	artifacts *fakeArtifacts
	clock     *fakeClock
}

func newRegistryFixture(t *testing.T, max int) *registryFixture {
	t.Helper()
	f := &registryFixture{
		factory:   newFakeFactory(),
		artifacts: &fakeArtifacts{},
		clock:     newFakeClock(),
	}
	f.reg = NewRegistry(RegistryConfig{
		MaxSessions: max,
		NewClient:   f.factory.New,
		Artifacts:   f.artifacts,
		Log:         zerolog.Nop(),
		Now:         f.clock.Now,
	})
	t.Cleanup(f.reg.Shutdown)
	return f
}

// ready creates id and checks it reached ready, then advances the clock so
// the next session is strictly newer.
func (f *registryFixture) ready(t *testing.T, id string) *fakeClient {
	t.Helper()
	res, err := f.reg.CreateSession(context.Background(), id)
	require.NoError(t, err)
	require.Equal(t, "ready", string(res.Status))
	f.clock.Advance(time.Second)
	return f.factory.last(id)
}
