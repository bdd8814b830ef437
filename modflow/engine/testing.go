package engine

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/groupmod/modbot/modflow/countstore"
	"github.com/groupmod/modbot/modflow/flagstore"
	"github.com/groupmod/modbot/modflow/report"
	"github.com/groupmod/modbot/modflow/visual"
)

type SentMessage struct {
	ChannelID  string
	DeliveryID string
	Message    OutboundMessage
}

// In-memory Transport which records every call. Delivery ids are sequential numbers.
type MockTransport struct {
	mu     sync.Mutex
	nextID int

	Sent    []SentMessage
	Updates []SentMessage
	// "channel/message"
	Deleted []string
	// "guild/user"
	Removed []string
	// ordered log of moderation actions, eg "delete:2/3", "remove:1/444"
	Actions []string

	// messages available to FetchMessage, keyed by "channel/message"
	Messages  map[string]*report.Snapshot
	// returned by Send for the channels in FailSends
	SendErr   error
	FailSends map[string]bool
	DeleteErr error
	RemoveErr error
}

var _ Transport = (*MockTransport)(nil)

func NewMockTransport() *MockTransport {
	return &MockTransport{
		nextID:   9000,
		Messages: make(map[string]*report.Snapshot),
	}
}

func (mt *MockTransport) AddMessage(snap report.Snapshot) {
	mt.mu.Lock()
	defer mt.mu.Unlock()
	mt.Messages[snap.ChannelID+"/"+snap.MessageID] = &snap
}

func (mt *MockTransport) Send(ctx context.Context, channelID string, msg OutboundMessage) (string, error) {
	mt.mu.Lock()
	defer mt.mu.Unlock()
	if mt.SendErr != nil && mt.FailSends[channelID] {
		return "", mt.SendErr
	}
	mt.nextID++
	id := fmt.Sprint(mt.nextID)
	mt.Sent = append(mt.Sent, SentMessage{ChannelID: channelID, DeliveryID: id, Message: msg})
	return id, nil
}

func (mt *MockTransport) Update(ctx context.Context, channelID, deliveryID string, msg OutboundMessage) error {
	mt.mu.Lock()
	defer mt.mu.Unlock()
	mt.Updates = append(mt.Updates, SentMessage{ChannelID: channelID, DeliveryID: deliveryID, Message: msg})
	return nil
}

func (mt *MockTransport) FetchMessage(ctx context.Context, channelID, messageID string) (*report.Snapshot, error) {
	mt.mu.Lock()
	defer mt.mu.Unlock()
	snap, ok := mt.Messages[channelID+"/"+messageID]
	if !ok {
		return nil, fmt.Errorf("fetching %s/%s: %w", channelID, messageID, report.ErrMessageNotFound)
	}
	out := *snap
	return &out, nil
}

func (mt *MockTransport) DeleteMessage(ctx context.Context, channelID, messageID string) error {
	mt.mu.Lock()
	defer mt.mu.Unlock()
	mt.Actions = append(mt.Actions, "delete:"+channelID+"/"+messageID)
	if mt.DeleteErr != nil {
		return mt.DeleteErr
	}
	mt.Deleted = append(mt.Deleted, channelID+"/"+messageID)
	return nil
}

func (mt *MockTransport) RemoveMember(ctx context.Context, guildID, userID, reason string) error {
	mt.mu.Lock()
	defer mt.mu.Unlock()
	mt.Actions = append(mt.Actions, "remove:"+guildID+"/"+userID)
	if mt.RemoveErr != nil {
		return mt.RemoveErr
	}
	mt.Removed = append(mt.Removed, guildID+"/"+userID)
	return nil
}

// Text of all plain messages sent to a channel, in order.
func (mt *MockTransport) Texts(channelID string) []string {
	mt.mu.Lock()
	defer mt.mu.Unlock()
	var out []string
	for _, s := range mt.Sent {
		if s.ChannelID == channelID && s.Message.Embed == nil {
			out = append(out, s.Message.Text)
		}
	}
	return out
}

// Notifications (embeds) sent to a channel, in order.
func (mt *MockTransport) Notifications(channelID string) []SentMessage {
	mt.mu.Lock()
	defer mt.mu.Unlock()
	var out []SentMessage
	for _, s := range mt.Sent {
		if s.ChannelID == channelID && s.Message.Embed != nil {
			out = append(out, s)
		}
	}
	return out
}

func (mt *MockTransport) Reset() {
	mt.mu.Lock()
	defer mt.mu.Unlock()
	mt.Sent = nil
	mt.Updates = nil
	mt.Deleted = nil
	mt.Removed = nil
	mt.Actions = nil
}

// Fixed guild to moderation channel mapping.
type StaticDirectory struct {
	ModChannels map[string]string
}

var _ ChannelDirectory = (*StaticDirectory)(nil)

func (sd *StaticDirectory) ModChannel(guildID string) (string, bool) {
	ch, ok := sd.ModChannels[guildID]
	return ch, ok && ch != ""
}

func (sd *StaticDirectory) HasGuild(guildID string) bool {
	_, ok := sd.ModChannels[guildID]
	return ok
}

const (
	TestGuildID     = "1"
	TestModChannel  = "10"
	TestPublicChan  = "20"
	TestOtherGuild  = "2"
	TestModName     = "group-7-mod"
	TestPublicName  = "group-7"
	TestAttachment  = "https://cdn.example.com/attachments/pic.jpg"
	TestFlaggedUser = "444"
)

type TestFixture struct {
	Dispatcher *Dispatcher
	Transport  *MockTransport
	Classifier *visual.StaticClassifier
	Fetcher    *visual.StaticFetcher
	Flags      *flagstore.MemFlagStore
	Counters   *countstore.MemCountStore
}

// Dispatcher wired to in-memory stores, a MockTransport and a StaticClassifier. TestGuildID has a moderation channel; TestOtherGuild is joined but has none.
func DispatcherTestFixture() *TestFixture {
	transport := NewMockTransport()
	cl := &visual.StaticClassifier{Score: 0.8}
	fetcher := visual.NewStaticFetcher()
	fetcher.Set(TestAttachment, visual.SamplePNG())
	flags := flagstore.NewMemFlagStore()
	counters := countstore.NewMemCountStore()
	logger := slog.Default()

	d, err := NewDispatcher(DispatcherConfig{
		Logger:    logger,
		Transport: transport,
		Channels: &StaticDirectory{ModChannels: map[string]string{
			TestGuildID:    TestModChannel,
			TestOtherGuild: "",
		}},
		Naming:   ChannelNaming{Moderation: TestModName, Public: TestPublicName},
		Flags:    flags,
		Counters: counters,
		Triage:   visual.NewTriageClassifier(cl, fetcher, visual.TriageConfig{Logger: logger}),
	})
	if err != nil {
		panic(err)
	}
	return &TestFixture{
		Dispatcher: d,
		Transport:  transport,
		Classifier: cl,
		Fetcher:    fetcher,
		Flags:      flags,
		Counters:   counters,
	}
}

// Direct message from a member.
func (tf *TestFixture) DM(ctx context.Context, userID, text string) error {
	return tf.Dispatcher.ProcessEvent(ctx, &Event{
		SenderID:   userID,
		SenderName: "member" + userID,
		ChannelID:  "dm-" + userID,
		MessageID:  fmt.Sprintf("dm-msg-%d", len(text)),
		Text:       text,
	})
}

// Message from a moderator in the moderation channel.
func (tf *TestFixture) Mod(ctx context.Context, userID, text string) error {
	return tf.Dispatcher.ProcessEvent(ctx, &Event{
		SenderID:    userID,
		SenderName:  "mod" + userID,
		GuildID:     TestGuildID,
		ChannelID:   TestModChannel,
		ChannelName: TestModName,
		MessageID:   "mod-msg",
		Text:        text,
	})
}

// Message in the public channel.
func (tf *TestFixture) Public(ctx context.Context, messageID, text string, atts ...Attachment) error {
	return tf.Dispatcher.ProcessEvent(ctx, &Event{
		SenderID:    TestFlaggedUser,
		SenderName:  "poster",
		GuildID:     TestGuildID,
		ChannelID:   TestPublicChan,
		ChannelName: TestPublicName,
		MessageID:   messageID,
		Text:        text,
		Attachments: atts,
	})
}
