package orchestrator

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/haulbot/dispatcher/internal/conversation"
	inats "github.com/haulbot/dispatcher/internal/nats"
)

type fakeEngine struct {
	reply *conversation.Reply
	err   error
	reqs  []conversation.Request
}

func (f *fakeEngine) Process(_ context.Context, req conversation.Request) (*conversation.Reply, error) {
	f.reqs = append(f.reqs, req)
	return f.reply, f.err
}

type fakePublisher struct {
	mu  sync.Mutex
	out []inats.OutboundMessage
}

func (f *fakePublisher) PublishOutboundMessage(_ context.Context, msg inats.OutboundMessage) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.out = append(f.out, msg)
	return nil
}

type fakeMedia struct {
	data []byte
	err  error
	urls []string
}

func (f *fakeMedia) Fetch(_ context.Context, url string) ([]byte, error) {
	f.urls = append(f.urls, url)
	return f.data, f.err
}

func TestHandle_TextReply(t *testing.T) {
	engine := &fakeEngine{reply: &conversation.Reply{Body: "Good morning", Kind: conversation.KindText}}
	pub := &fakePublisher{}
	o := NewOrchestrator(pub, nil, engine, nil, &fakeMedia{})

	o.handle(context.Background(), inats.InboundMessage{
		ID: "SM1", Channel: inats.ChannelWhatsApp, From: "whatsapp:+4917612345678", Body: "hi",
	})

	require.Len(t, engine.reqs, 1)
	assert.Equal(t, "whatsapp:+4917612345678", engine.reqs[0].User)
	assert.Equal(t, "hi", engine.reqs[0].Text)
	assert.Nil(t, engine.reqs[0].Audio)

	require.Len(t, pub.out, 1)
	out := pub.out[0]
	assert.Equal(t, inats.ChannelWhatsApp, out.Channel)
	assert.Equal(t, "whatsapp:+4917612345678", out.To)
	assert.Equal(t, "Good morning", out.Body)
	assert.Empty(t, out.MediaURL)
	assert.Equal(t, "SM1", out.InReplyTo)
	assert.NotEmpty(t, out.ID)
}

func TestHandle_AudioInAudioOut(t *testing.T) {
	engine := &fakeEngine{reply: &conversation.Reply{Body: "https://dispatch.example.com/media/a.mp3", Kind: conversation.KindAudio}}
	pub := &fakePublisher{}
	media := &fakeMedia{data: []byte("ogg")}
	o := NewOrchestrator(pub, nil, engine, nil, media)

	o.handle(context.Background(), inats.InboundMessage{
		ID: "SM2", Channel: inats.ChannelWhatsApp, From: "whatsapp:+1", MediaURL: "https://api.twilio.com/media/ME1",
	})

	assert.Equal(t, []string{"https://api.twilio.com/media/ME1"}, media.urls)
	assert.Equal(t, []byte("ogg"), engine.reqs[0].Audio)
	require.Len(t, pub.out, 1)
	assert.Equal(t, "https://dispatch.example.com/media/a.mp3", pub.out[0].MediaURL)
	assert.Empty(t, pub.out[0].Body)
}

func TestHandle_MediaDownloadFailureStillReplies(t *testing.T) {
	engine := &fakeEngine{reply: &conversation.Reply{Body: "menu", Kind: conversation.KindText}}
	pub := &fakePublisher{}
	o := NewOrchestrator(pub, nil, engine, nil, &fakeMedia{err: errors.New("401")})

	o.handle(context.Background(), inats.InboundMessage{ID: "SM3", From: "whatsapp:+1", MediaURL: "u"})

	require.Len(t, engine.reqs, 1)
	assert.Nil(t, engine.reqs[0].Audio)
	assert.Len(t, pub.out, 1)
}

func TestHandle_EngineErrorPublishesNothing(t *testing.T) {
	engine := &fakeEngine{err: conversation.ErrNoUser}
	pub := &fakePublisher{}
	o := NewOrchestrator(pub, nil, engine, nil, nil)

	o.handle(context.Background(), inats.InboundMessage{ID: "SM4", Body: "hi"})
	assert.Empty(t, pub.out)
}

type fakeMsg struct {
	settled []string
}

func (f *fakeMsg) InProgress() error { f.settled = append(f.settled, "in_progress"); return nil }
func (f *fakeMsg) Ack() error        { f.settled = append(f.settled, "ack"); return nil }
func (f *fakeMsg) Nak() error        { f.settled = append(f.settled, "nak"); return nil }

func TestProcess_AcksHandledTurn(t *testing.T) {
	engine := &fakeEngine{reply: &conversation.Reply{Body: "ok", Kind: conversation.KindText}}
	pub := &fakePublisher{}
	o := NewOrchestrator(pub, nil, engine, nil, nil)
	msg := &fakeMsg{}

	o.process(context.Background(), msg, inats.InboundMessage{ID: "SM5", From: "whatsapp:+1", Body: "hi"})

	assert.Equal(t, []string{"in_progress", "ack"}, msg.settled)
	assert.Len(t, pub.out, 1)
}

func TestProcess_NaksAfterShutdown(t *testing.T) {
	engine := &fakeEngine{reply: &conversation.Reply{Body: "ok", Kind: conversation.KindText}}
	pub := &fakePublisher{}
	o := NewOrchestrator(pub, nil, engine, nil, nil)
	msg := &fakeMsg{}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	o.process(ctx, msg, inats.InboundMessage{ID: "SM6", From: "whatsapp:+1", Body: "hi"})

	assert.Equal(t, []string{"nak"}, msg.settled)
	assert.Empty(t, engine.reqs, "no turn runs on a dead context")
	assert.Empty(t, pub.out)
}

type fakeSender struct {
	id   string
	err  error
	sent []inats.OutboundMessage
}

func (f *fakeSender) Send(_ context.Context, msg inats.OutboundMessage) (string, error) {
	f.sent = append(f.sent, msg)
	return f.id, f.err
}

func TestRelay_DeliverRoutesByChannel(t *testing.T) {
	wa := &fakeSender{id: "SM900"}
	xm := &fakeSender{id: "xmpp-1"}
	r := NewRelay(nil)
	r.Register(inats.ChannelWhatsApp, wa)
	r.Register(inats.ChannelXMPP, xm)

	id, err := r.Deliver(context.Background(), inats.OutboundMessage{Channel: inats.ChannelXMPP, To: "driver@example.org", Body: "hi"})
	require.NoError(t, err)
	assert.Equal(t, "xmpp-1", id)
	assert.Len(t, xm.sent, 1)
	assert.Empty(t, wa.sent)
}

func TestRelay_DeliverUnknownChannel(t *testing.T) {
	r := NewRelay(nil)
	_, err := r.Deliver(context.Background(), inats.OutboundMessage{Channel: "telegram"})
	assert.ErrorIs(t, err, ErrNoSender)
}

func TestRelay_DeliverSenderError(t *testing.T) {
	r := NewRelay(nil)
	r.Register(inats.ChannelWhatsApp, &fakeSender{err: errors.New("twilio 500")})
	_, err := r.Deliver(context.Background(), inats.OutboundMessage{Channel: inats.ChannelWhatsApp})
	assert.EqualError(t, err, "twilio 500")
}
