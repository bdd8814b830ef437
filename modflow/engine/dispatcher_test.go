package engine

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"

	"github.com/groupmod/modbot/modflow/countstore"
	"github.com/groupmod/modbot/modflow/report"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m,
		// keep-alive connections from the webhook test server's client
		goleak.IgnoreTopFunction("net/http.(*persistConn).readLoop"),
		goleak.IgnoreTopFunction("net/http.(*persistConn).writeLoop"),
	)
}

const reportedLink = "https://discord.com/channels/1/20/333"

func reportedMessage() report.Snapshot {
	return report.Snapshot{
		AuthorID:   TestFlaggedUser,
		AuthorName: "spammer",
		Text:       "free nitro, click here",
		GuildID:    TestGuildID,
		ChannelID:  TestPublicChan,
		MessageID:  "333",
	}
}

func jpegAttachment() Attachment {
	return Attachment{URL: TestAttachment, ContentType: "image/jpeg", Filename: "pic.jpg"}
}

// flags a public message through triage, returning the registered report id
func flagPublicMessage(t *testing.T, tf *TestFixture, messageID string) string {
	ctx := context.Background()
	before := len(tf.Transport.Notifications(TestModChannel))
	require.NoError(t, tf.Public(ctx, messageID, "look at this", jpegAttachment()))
	notes := tf.Transport.Notifications(TestModChannel)
	require.Len(t, notes, before+1)
	return notes[len(notes)-1].DeliveryID
}

func TestReportIntakeHappyPath(t *testing.T) {
	assert := assert.New(t)
	require := require.New(t)
	ctx := context.Background()
	tf := DispatcherTestFixture()
	tf.Transport.AddMessage(reportedMessage())

	require.NoError(tf.DM(ctx, "100", "report"))
	assert.Len(tf.Transport.Texts("dm-100"), 1)

	require.NoError(tf.DM(ctx, "100", reportedLink))
	texts := tf.Transport.Texts("dm-100")
	require.Len(texts, 4)
	assert.Equal("I found this message:", texts[1])
	assert.Contains(texts[2], "spammer: free nitro")

	for _, in := range []string{"spam", "scam", "no", "yes"} {
		require.NoError(tf.DM(ctx, "100", in))
	}
	reports, _ := tf.Dispatcher.ActiveSessions()
	assert.Equal(0, reports)

	notes := tf.Transport.Notifications(TestModChannel)
	require.Len(notes, 1)
	id := notes[0].DeliveryID

	// two-phase publish: the notification is stamped with its own delivery id
	require.Len(tf.Transport.Updates, 1)
	assert.Equal(id, tf.Transport.Updates[0].DeliveryID)
	assert.Equal("Report ID: "+id, tf.Transport.Updates[0].Message.Embed.Footer)

	r, err := tf.Flags.Lookup(ctx, id)
	require.NoError(err)
	assert.Equal(id, r.ID)
	assert.Equal("100", r.AuthorID)
	assert.Equal(report.OriginUser, r.Origin)
	assert.Equal("spam", r.Category)
	assert.Equal("scam", r.Subtype)
	assert.Equal(report.AnswerNo, r.AISuspected)
	assert.Equal(report.AnswerYes, r.BlockRequested)
	assert.Equal(report.StateComplete, r.State)
	assert.Equal("333", r.Content.MessageID)

	total, err := tf.Counters.GetCount(ctx, countstore.FlaggedAuthor, TestFlaggedUser, countstore.PeriodTotal)
	assert.NoError(err)
	assert.Equal(1, total)
}

func TestPrivateWithoutSession(t *testing.T) {
	assert := assert.New(t)
	ctx := context.Background()
	tf := DispatcherTestFixture()

	assert.NoError(tf.DM(ctx, "100", "hello there"))
	assert.NoError(tf.DM(ctx, "100", "cancel"))
	assert.NoError(tf.DM(ctx, "100", "spam"))
	assert.Empty(tf.Transport.Sent)

	assert.NoError(tf.DM(ctx, "100", "HELP"))
	assert.Equal([]string{report.HelpText}, tf.Transport.Texts("dm-100"))
	reports, _ := tf.Dispatcher.ActiveSessions()
	assert.Equal(0, reports)
}

func TestReportRestartDiscardsSession(t *testing.T) {
	assert := assert.New(t)
	ctx := context.Background()
	tf := DispatcherTestFixture()
	tf.Transport.AddMessage(reportedMessage())

	assert.NoError(tf.DM(ctx, "100", "report"))
	assert.NoError(tf.DM(ctx, "100", reportedLink))
	assert.NoError(tf.DM(ctx, "100", "spam"))

	// restart: back to the link step, partial answers gone
	assert.NoError(tf.DM(ctx, "100", "report"))
	tf.Transport.Reset()
	assert.NoError(tf.DM(ctx, "100", "scam"))
	texts := tf.Transport.Texts("dm-100")
	assert.Len(texts, 1)
	assert.Contains(texts[0], "couldn't read that link")

	reports, _ := tf.Dispatcher.ActiveSessions()
	assert.Equal(1, reports)
}

func TestReportCancel(t *testing.T) {
	assert := assert.New(t)
	ctx := context.Background()
	tf := DispatcherTestFixture()
	tf.Transport.AddMessage(reportedMessage())

	for _, in := range []string{"report", reportedLink, "harassment", "threats", "yes", "cancel"} {
		assert.NoError(tf.DM(ctx, "100", in))
	}
	texts := tf.Transport.Texts("dm-100")
	assert.Equal("Report cancelled.", texts[len(texts)-1])
	assert.Empty(tf.Transport.Notifications(TestModChannel))
	assert.Equal(0, tf.Flags.Len())
	assert.Empty(tf.Transport.Actions)
	reports, _ := tf.Dispatcher.ActiveSessions()
	assert.Equal(0, reports)
}

func TestReportLinkFailures(t *testing.T) {
	assert := assert.New(t)
	ctx := context.Background()
	tf := DispatcherTestFixture()
	tf.Transport.AddMessage(reportedMessage())

	assert.NoError(tf.DM(ctx, "100", "report"))

	testCases := []struct {
		link string
		text string
	}{
		{"https://discord.com/channels/99/20/333", "guilds that I'm not in"},
		{"https://discord.com/channels/1/20/404", "message was deleted"},
	}
	for _, tc := range testCases {
		tf.Transport.Reset()
		assert.NoError(tf.DM(ctx, "100", tc.link))
		texts := tf.Transport.Texts("dm-100")
		if assert.Len(texts, 1) {
			assert.Contains(texts[0], tc.text)
		}
	}

	// the flow is still waiting for a link
	tf.Transport.Reset()
	assert.NoError(tf.DM(ctx, "100", reportedLink))
	assert.Len(tf.Transport.Texts("dm-100"), 3)
}

// Transport whose message lookups block until released.
type blockingFetchTransport struct {
	*MockTransport
	entered chan struct{}
	release chan struct{}
}

func (bt *blockingFetchTransport) FetchMessage(ctx context.Context, channelID, messageID string) (*report.Snapshot, error) {
	bt.entered <- struct{}{}
	<-bt.release
	return bt.MockTransport.FetchMessage(ctx, channelID, messageID)
}

func TestReportLookupAbandonedAfterCancel(t *testing.T) {
	assert := assert.New(t)
	ctx := context.Background()
	tf := DispatcherTestFixture()
	tf.Transport.AddMessage(reportedMessage())
	bt := &blockingFetchTransport{
		MockTransport: tf.Transport,
		entered:       make(chan struct{}),
		release:       make(chan struct{}),
	}
	tf.Dispatcher.Transport = bt

	assert.NoError(tf.DM(ctx, "100", "report"))

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		assert.NoError(tf.DM(ctx, "100", reportedLink))
	}()

	// cancel while the lookup is suspended
	<-bt.entered
	assert.NoError(tf.DM(ctx, "100", "cancel"))
	close(bt.release)
	wg.Wait()

	texts := tf.Transport.Texts("dm-100")
	assert.Equal([]string{texts[0], "Report cancelled."}, texts)
	reports, _ := tf.Dispatcher.ActiveSessions()
	assert.Equal(0, reports)
}

func TestReviewUnknownID(t *testing.T) {
	assert := assert.New(t)
	ctx := context.Background()
	tf := DispatcherTestFixture()

	assert.NoError(tf.Mod(ctx, "500", "review 9001"))
	assert.Equal([]string{"No report found with ID 9001"}, tf.Transport.Texts(TestModChannel))
	_, reviews := tf.Dispatcher.ActiveSessions()
	assert.Equal(0, reviews)

	// answers without a session go nowhere
	assert.NoError(tf.Mod(ctx, "500", "yes"))
	assert.Len(tf.Transport.Sent, 1)
}

func TestReviewMalformedCommand(t *testing.T) {
	assert := assert.New(t)
	ctx := context.Background()
	tf := DispatcherTestFixture()

	for _, cmd := range []string{"review", "review abc", "review 1 2"} {
		tf.Transport.Reset()
		assert.NoError(tf.Mod(ctx, "500", cmd))
		texts := tf.Transport.Texts(TestModChannel)
		if assert.Len(texts, 1, cmd) {
			assert.Contains(texts[0], "Usage")
		}
	}
	_, reviews := tf.Dispatcher.ActiveSessions()
	assert.Equal(0, reviews)

	tf.Transport.Reset()
	assert.NoError(tf.Mod(ctx, "500", "help"))
	assert.Len(tf.Transport.Texts(TestModChannel), 1)
}

func TestReviewDeleteAndRemove(t *testing.T) {
	assert := assert.New(t)
	require := require.New(t)
	ctx := context.Background()
	tf := DispatcherTestFixture()

	id := flagPublicMessage(t, tf, "msg1")
	tf.Transport.Reset()

	require.NoError(tf.Mod(ctx, "500", "review "+id))
	texts := tf.Transport.Texts(TestModChannel)
	require.Len(texts, 2)
	assert.Contains(texts[0], "Suspect score: 80.00%")
	_, reviews := tf.Dispatcher.ActiveSessions()
	assert.Equal(1, reviews)

	require.NoError(tf.Mod(ctx, "500", "yes"))
	assert.Empty(tf.Transport.Actions)
	require.NoError(tf.Mod(ctx, "500", "yes"))

	assert.Equal([]string{"delete:20/msg1", "remove:1/444"}, tf.Transport.Actions)
	_, reviews = tf.Dispatcher.ActiveSessions()
	assert.Equal(0, reviews)

	// the registry entry outlives the review
	r, err := tf.Flags.Lookup(ctx, id)
	assert.NoError(err)
	assert.Equal(id, r.ID)

	// stray answers after completion trigger nothing
	require.NoError(tf.Mod(ctx, "500", "yes"))
	assert.Len(tf.Transport.Actions, 2)
}

func TestReviewByNotificationLink(t *testing.T) {
	assert := assert.New(t)
	ctx := context.Background()
	tf := DispatcherTestFixture()

	id := flagPublicMessage(t, tf, "msg1")
	tf.Transport.Reset()

	assert.NoError(tf.Mod(ctx, "500", "review https://discord.com/channels/1/10/"+id))
	assert.NoError(tf.Mod(ctx, "500", "no"))
	assert.NoError(tf.Mod(ctx, "500", "no"))
	assert.Empty(tf.Transport.Actions)
	assert.Equal("Review complete.", tf.Transport.Texts(TestModChannel)[3])
}

func TestReviewCancel(t *testing.T) {
	assert := assert.New(t)
	ctx := context.Background()
	tf := DispatcherTestFixture()

	id := flagPublicMessage(t, tf, "msg1")
	assert.NoError(tf.Mod(ctx, "500", "review "+id))
	assert.NoError(tf.Mod(ctx, "500", "yes"))
	assert.NoError(tf.Mod(ctx, "500", "cancel"))
	assert.Empty(tf.Transport.Actions)
	_, reviews := tf.Dispatcher.ActiveSessions()
	assert.Equal(0, reviews)
}

func TestReviewCommandReplacesSession(t *testing.T) {
	assert := assert.New(t)
	require := require.New(t)
	ctx := context.Background()
	tf := DispatcherTestFixture()

	first := flagPublicMessage(t, tf, "msg1")
	second := flagPublicMessage(t, tf, "msg2")
	tf.Transport.Reset()

	require.NoError(tf.Mod(ctx, "500", "review "+first))
	require.NoError(tf.Mod(ctx, "500", "no"))

	// a new command starts over on the other report, at the first question
	require.NoError(tf.Mod(ctx, "500", "review "+second))
	_, reviews := tf.Dispatcher.ActiveSessions()
	assert.Equal(1, reviews)
	require.NoError(tf.Mod(ctx, "500", "yes"))
	require.NoError(tf.Mod(ctx, "500", "no"))

	assert.Equal([]string{"delete:20/msg2"}, tf.Transport.Actions)
	_, reviews = tf.Dispatcher.ActiveSessions()
	assert.Equal(0, reviews)
}

func TestReviewCompletedReportAgain(t *testing.T) {
	assert := assert.New(t)
	require := require.New(t)
	ctx := context.Background()
	tf := DispatcherTestFixture()

	id := flagPublicMessage(t, tf, "msg1")
	tf.Transport.Reset()

	for _, in := range []string{"review " + id, "no", "no"} {
		require.NoError(tf.Mod(ctx, "500", in))
	}
	assert.Empty(tf.Transport.Actions)

	// completed reports stay reviewable, by anyone
	tf.Transport.Reset()
	for _, in := range []string{"review " + id, "yes", "yes"} {
		require.NoError(tf.Mod(ctx, "501", in))
	}
	texts := tf.Transport.Texts(TestModChannel)
	assert.Contains(texts[0], "Reviewing report `"+id+"`")
	assert.Equal([]string{"delete:20/msg1", "remove:1/444"}, tf.Transport.Actions)
}

func TestReviewSummaryOfLongContent(t *testing.T) {
	assert := assert.New(t)
	require := require.New(t)
	ctx := context.Background()
	tf := DispatcherTestFixture()

	text := strings.Repeat("a", 1990) + "```@everyone"
	require.NoError(tf.Public(ctx, "msg1", text, jpegAttachment()))
	notes := tf.Transport.Notifications(TestModChannel)
	require.Len(notes, 1)
	tf.Transport.Reset()

	require.NoError(tf.Mod(ctx, "500", "review "+notes[0].DeliveryID))
	texts := tf.Transport.Texts(TestModChannel)
	require.Len(texts, 2)
	for _, line := range texts {
		assert.LessOrEqual(len([]rune(line)), report.MaxMessageRunes)
	}
	assert.Equal(2, strings.Count(texts[0], "```"))
	assert.NotContains(texts[0], "@everyone")
}

func TestReviewDroppedWhenPromptUndeliverable(t *testing.T) {
	assert := assert.New(t)
	ctx := context.Background()
	tf := DispatcherTestFixture()

	id := flagPublicMessage(t, tf, "msg1")
	tf.Transport.SendErr = errors.New("request entity too large")
	tf.Transport.FailSends = map[string]bool{TestModChannel: true}

	assert.Error(tf.Mod(ctx, "500", "review "+id))
	_, reviews := tf.Dispatcher.ActiveSessions()
	assert.Equal(0, reviews)

	// later answers do not act on a review nobody saw
	tf.Transport.SendErr = nil
	assert.NoError(tf.Mod(ctx, "500", "yes"))
	assert.NoError(tf.Mod(ctx, "500", "yes"))
	assert.Empty(tf.Transport.Actions)
}

func TestReviewActionFailureReported(t *testing.T) {
	assert := assert.New(t)
	ctx := context.Background()
	tf := DispatcherTestFixture()
	tf.Transport.DeleteErr = errors.New("missing permissions")

	id := flagPublicMessage(t, tf, "msg1")
	tf.Transport.Reset()
	assert.NoError(tf.Mod(ctx, "500", "review "+id))
	assert.NoError(tf.Mod(ctx, "500", "yes"))
	assert.NoError(tf.Mod(ctx, "500", "yes"))

	// removal is still attempted, and the failure is visible to moderators
	assert.Equal([]string{"delete:20/msg1", "remove:1/444"}, tf.Transport.Actions)
	texts := tf.Transport.Texts(TestModChannel)
	assert.Contains(strings.Join(texts, "\n"), "Failed to delete the flagged message")
	_, reviews := tf.Dispatcher.ActiveSessions()
	assert.Equal(0, reviews)
}

func TestTriageFlagsImage(t *testing.T) {
	assert := assert.New(t)
	require := require.New(t)
	ctx := context.Background()
	tf := DispatcherTestFixture()

	id := flagPublicMessage(t, tf, "msg1")
	assert.Equal(1, tf.Flags.Len())
	assert.Equal(1, tf.Classifier.Calls())

	r, err := tf.Flags.Lookup(ctx, id)
	require.NoError(err)
	assert.Equal(report.OriginAutomated, r.Origin)
	assert.Equal(report.CategoryAutomated, r.Category)
	assert.Equal(report.SubtypeSuspectContent, r.Subtype)
	assert.Equal(0.8, r.Score)
	assert.Equal(TestFlaggedUser, r.AuthorID)

	note := tf.Transport.Notifications(TestModChannel)[0]
	assert.Equal("https://discord.com/channels/1/20/msg1", note.Message.Embed.URL)
	assert.Equal("80.00%", note.Message.Embed.Fields[0].Value)

	// no attachments: the classifier is never invoked
	require.NoError(tf.Public(ctx, "msg2", "just text"))
	assert.Equal(1, tf.Classifier.Calls())
	assert.Equal(1, tf.Flags.Len())
}

func TestTriageNotFlagged(t *testing.T) {
	assert := assert.New(t)
	ctx := context.Background()
	tf := DispatcherTestFixture()

	tf.Classifier.Score = 0.5
	assert.NoError(tf.Public(ctx, "msg1", "", jpegAttachment()))
	assert.Equal(0, tf.Flags.Len())

	tf.Classifier.Score = 0.99
	tf.Classifier.Err = errors.New("quota exceeded")
	assert.NoError(tf.Public(ctx, "msg2", "", jpegAttachment()))
	assert.Equal(0, tf.Flags.Len())

	// unfetchable attachment
	tf.Classifier.Err = nil
	assert.NoError(tf.Public(ctx, "msg3", "", Attachment{URL: "https://cdn.example.com/gone.png", ContentType: "image/png"}))
	assert.Equal(0, tf.Flags.Len())
	assert.Empty(tf.Transport.Sent)
}

func TestTriageAnnounceEvaluations(t *testing.T) {
	assert := assert.New(t)
	ctx := context.Background()
	tf := DispatcherTestFixture()
	tf.Dispatcher.AnnounceEvaluations = true

	tf.Classifier.Score = 0.25
	assert.NoError(tf.Public(ctx, "msg1", "", jpegAttachment()))
	texts := tf.Transport.Texts(TestModChannel)
	if assert.Len(texts, 1) {
		assert.True(strings.HasPrefix(texts[0], "Evaluated: 25.00%"))
	}
	assert.Equal(0, tf.Flags.Len())
}

func TestMissingModChannel(t *testing.T) {
	assert := assert.New(t)
	ctx := context.Background()
	tf := DispatcherTestFixture()

	for _, msgID := range []string{"m1", "m2"} {
		err := tf.Dispatcher.ProcessEvent(ctx, &Event{
			SenderID:    TestFlaggedUser,
			GuildID:     TestOtherGuild,
			ChannelID:   "30",
			ChannelName: TestPublicName,
			MessageID:   msgID,
			Attachments: []Attachment{jpegAttachment()},
		})
		assert.NoError(err)
	}
	assert.Equal(2, tf.Classifier.Calls())
	assert.Empty(tf.Transport.Sent)
	assert.Equal(0, tf.Flags.Len())
	_, logged := tf.Dispatcher.missingModChannel.Load(TestOtherGuild)
	assert.True(logged)
}

func TestPriorFlagsInNotification(t *testing.T) {
	assert := assert.New(t)
	tf := DispatcherTestFixture()

	flagPublicMessage(t, tf, "msg1")
	flagPublicMessage(t, tf, "msg2")
	notes := tf.Transport.Notifications(TestModChannel)
	var prior []string
	for _, n := range notes {
		for _, f := range n.Message.Embed.Fields {
			if strings.HasPrefix(f.Name, "Prior flags") {
				prior = append(prior, f.Value)
			}
		}
	}
	assert.Equal([]string{"0 / 0", "1 / 1"}, prior)
}

func TestIgnoredEvents(t *testing.T) {
	assert := assert.New(t)
	ctx := context.Background()
	tf := DispatcherTestFixture()

	assert.NoError(tf.Dispatcher.ProcessEvent(ctx, &Event{SenderID: "1", FromSelf: true, ChannelID: "dm-1", Text: "report"}))
	assert.NoError(tf.Dispatcher.ProcessEvent(ctx, &Event{SenderID: "2", GuildID: TestGuildID, ChannelID: "99", ChannelName: "general", Text: "review 1", Attachments: []Attachment{jpegAttachment()}}))
	assert.Empty(tf.Transport.Sent)
	assert.Equal(0, tf.Classifier.Calls())
}

type recordingNotifier struct {
	mu  sync.Mutex
	ids []string
}

func (rn *recordingNotifier) SendReport(ctx context.Context, r *report.Report) error {
	rn.mu.Lock()
	defer rn.mu.Unlock()
	rn.ids = append(rn.ids, r.ID)
	return nil
}

func TestNotifiersMirrorReports(t *testing.T) {
	assert := assert.New(t)
	tf := DispatcherTestFixture()
	rn := &recordingNotifier{}
	tf.Dispatcher.Notifiers = []Notifier{rn}

	id := flagPublicMessage(t, tf, "msg1")
	assert.Equal([]string{id}, rn.ids)
}

type panickyTransport struct {
	*MockTransport
}

func (pt *panickyTransport) Send(ctx context.Context, channelID string, msg OutboundMessage) (string, error) {
	panic("transport exploded")
}

func TestPanicRecovered(t *testing.T) {
	assert := assert.New(t)
	tf := DispatcherTestFixture()
	tf.Dispatcher.Transport = &panickyTransport{tf.Transport}

	err := tf.DM(context.Background(), "100", "help")
	assert.Error(err)
}
