package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/groupmod/modbot/modflow/countstore"
	"github.com/groupmod/modbot/modflow/flagstore"
	"github.com/groupmod/modbot/modflow/report"
	"github.com/groupmod/modbot/modflow/review"

	"github.com/getsentry/sentry-go"
	"github.com/puzpuzpuz/xsync/v3"
)

const DefaultLookupTimeout = 10 * time.Second

// Routes inbound events to the report and review dialogues and the triage step, and carries out the resulting moderation actions.
//
// Events may be processed concurrently. All session and flow state is only touched while holding an internal lock, which is released around every transport, store or classifier call. After re-acquiring the lock, handlers check that their session is still the current one before touching it again.
type Dispatcher struct {
	Logger    *slog.Logger
	Transport Transport
	Channels  ChannelDirectory
	Naming    ChannelNaming
	Flags     flagstore.FlagStore
	Counters  countstore.CountStore
	// optional; public channel messages are ignored without it
	Triage    Triager
	Taxonomy  report.Taxonomy
	Notifiers []Notifier
	// post a line to the moderation channel for every image which was classified but not flagged
	AnnounceEvaluations bool
	LookupTimeout       time.Duration

	lk      sync.Mutex
	reports *SessionStore[report.Flow]
	reviews *SessionStore[review.Flow]
	// guilds already logged as missing a moderation channel
	missingModChannel *xsync.MapOf[string, bool]
}

type DispatcherConfig struct {
	Logger              *slog.Logger
	Transport           Transport
	Channels            ChannelDirectory
	Naming              ChannelNaming
	Flags               flagstore.FlagStore
	Counters            countstore.CountStore
	Triage              Triager
	Taxonomy            *report.Taxonomy
	Notifiers           []Notifier
	AnnounceEvaluations bool
	LookupTimeout       time.Duration
}

func NewDispatcher(config DispatcherConfig) (*Dispatcher, error) {
	if config.Transport == nil {
		return nil, fmt.Errorf("dispatcher requires a transport")
	}
	if config.Channels == nil {
		return nil, fmt.Errorf("dispatcher requires a channel directory")
	}
	if config.Flags == nil {
		return nil, fmt.Errorf("dispatcher requires a flag store")
	}
	if config.Naming.Moderation == "" || config.Naming.Public == "" {
		return nil, fmt.Errorf("dispatcher requires moderation and public channel names")
	}
	logger := config.Logger
	if logger == nil {
		logger = slog.Default()
	}
	counters := config.Counters
	if counters == nil {
		counters = countstore.NewMemCountStore()
	}
	tax := report.DefaultTaxonomy()
	if config.Taxonomy != nil {
		tax = *config.Taxonomy
	}
	if err := tax.Validate(); err != nil {
		return nil, err
	}
	timeout := config.LookupTimeout
	if timeout <= 0 {
		timeout = DefaultLookupTimeout
	}
	return &Dispatcher{
		Logger:              logger.With("system", "dispatcher"),
		Transport:           config.Transport,
		Channels:            config.Channels,
		Naming:              config.Naming,
		Flags:               config.Flags,
		Counters:            counters,
		Triage:              config.Triage,
		Taxonomy:            tax,
		Notifiers:           config.Notifiers,
		AnnounceEvaluations: config.AnnounceEvaluations,
		LookupTimeout:       timeout,
		reports:             NewSessionStore[report.Flow](),
		reviews:             NewSessionStore[review.Flow](),
		missingModChannel:   xsync.NewMapOf[string, bool](),
	}, nil
}

func normalize(text string) string {
	return strings.ToLower(strings.TrimSpace(text))
}

func (d *Dispatcher) ProcessEvent(ctx context.Context, ev *Event) (err error) {
	kind := d.Naming.Classify(ev)

	// similar to an HTTP server, we want to recover any panics from handlers
	defer func() {
		if r := recover(); r != nil {
			d.Logger.Error("event handling exception", "err", r, "context", kind, "channel", ev.ChannelID, "sender", ev.SenderID)
			sentry.CurrentHub().Recover(r)
			err = fmt.Errorf("panic handling event: %v", r)
		}
		if err != nil {
			eventErrorCount.WithLabelValues(kind.String()).Inc()
		}
	}()

	if ev.FromSelf || kind == ContextIgnored {
		return nil
	}

	start := time.Now()
	defer func() {
		eventProcessDuration.WithLabelValues(kind.String()).Observe(time.Since(start).Seconds())
		eventProcessCount.WithLabelValues(kind.String()).Inc()
	}()

	switch kind {
	case ContextPrivate:
		return d.handlePrivate(ctx, ev)
	case ContextModeration:
		return d.handleModeration(ctx, ev)
	case ContextPublic:
		return d.handlePublic(ctx, ev)
	}
	return nil
}

// Sends each line as a separate message, cut to the longest message the transport accepts.
func (d *Dispatcher) reply(ctx context.Context, channelID string, lines ...string) error {
	var errs []error
	for _, l := range lines {
		if l == "" {
			continue
		}
		l = report.Truncate(l, report.MaxMessageRunes)
		if _, err := d.Transport.Send(ctx, channelID, OutboundMessage{Text: l}); err != nil {
			errs = append(errs, err)
		}
	}
	if len(errs) > 0 {
		return fmt.Errorf("sending reply: %w", errors.Join(errs...))
	}
	return nil
}

func (d *Dispatcher) handlePrivate(ctx context.Context, ev *Event) error {
	msg := normalize(ev.Text)
	if msg == report.HelpKeyword {
		return d.reply(ctx, ev.ChannelID, report.HelpText)
	}

	d.lk.Lock()
	flow, ok := d.reports.Get(ev.SenderID)
	if msg == report.StartKeyword {
		// restarting always discards the previous session
		flow = report.NewFlow(ev.SenderID, d.Taxonomy)
		d.reports.Put(ev.SenderID, flow)
		sessionStartCount.WithLabelValues("report").Inc()
	} else if !ok {
		d.lk.Unlock()
		return nil
	}
	out := flow.Step(ev.Text)
	completed := d.settleReportLocked(ev.SenderID, flow)
	d.lk.Unlock()

	if err := d.reply(ctx, ev.ChannelID, out.Replies...); err != nil {
		return err
	}
	if out.Lookup != nil {
		return d.resolveReference(ctx, ev, flow, *out.Lookup)
	}
	if completed != nil {
		return d.publishReport(ctx, completed)
	}
	return nil
}

// Removes a terminal report session. Returns the report if the flow completed. Must hold the lock.
func (d *Dispatcher) settleReportLocked(authorID string, flow *report.Flow) *report.Report {
	if !flow.Done() {
		return nil
	}
	d.reports.Remove(authorID, flow)
	sessionEndCount.WithLabelValues("report", flow.State().String()).Inc()
	if flow.State() != report.StateComplete {
		return nil
	}
	return flow.Report()
}

func (d *Dispatcher) fetchReference(ctx context.Context, ref report.MessageRef) (*report.Snapshot, error) {
	if !d.Channels.HasGuild(ref.GuildID) {
		return nil, report.ErrGuildNotJoined
	}
	ctx, cancel := context.WithTimeout(ctx, d.LookupTimeout)
	defer cancel()
	snap, err := d.Transport.FetchMessage(ctx, ref.ChannelID, ref.MessageID)
	if err != nil {
		return nil, err
	}
	if snap.GuildID != "" && snap.GuildID != ref.GuildID {
		return nil, report.ErrChannelNotFound
	}
	return snap, nil
}

func (d *Dispatcher) resolveReference(ctx context.Context, ev *Event, flow *report.Flow, ref report.MessageRef) error {
	snap, err := d.fetchReference(ctx, ref)
	if err != nil {
		d.Logger.Info("failed to resolve reported message", "reporter", ev.SenderID, "guild", ref.GuildID, "channel", ref.ChannelID, "message", ref.MessageID, "err", err)
	}

	d.lk.Lock()
	if !d.reports.Current(ev.SenderID, flow) {
		d.lk.Unlock()
		sessionAbandonedCount.WithLabelValues("report").Inc()
		return nil
	}
	out := flow.Resolve(ref, snap, err)
	d.lk.Unlock()

	return d.reply(ctx, ev.ChannelID, out.Replies...)
}

// Looks up the moderation channel for a guild, logging (once per guild) when there is none.
func (d *Dispatcher) modChannel(guildID string) (string, bool) {
	ch, ok := d.Channels.ModChannel(guildID)
	if ok {
		d.missingModChannel.Delete(guildID)
		return ch, true
	}
	if _, loaded := d.missingModChannel.LoadOrStore(guildID, true); !loaded {
		d.Logger.Warn("no moderation channel for guild, suppressing notifications", "guild", guildID, "channel", d.Naming.Moderation)
	}
	return "", false
}

func (d *Dispatcher) priorFlags(ctx context.Context, authorID string) PriorFlags {
	var prior PriorFlags
	var err error
	if prior.Day, err = d.Counters.GetCount(ctx, countstore.FlaggedAuthor, authorID, countstore.PeriodDay); err != nil {
		d.Logger.Warn("failed to read prior flag count", "author", authorID, "err", err)
	}
	if prior.Total, err = d.Counters.GetCount(ctx, countstore.FlaggedAuthor, authorID, countstore.PeriodTotal); err != nil {
		d.Logger.Warn("failed to read prior flag count", "author", authorID, "err", err)
	}
	return prior
}

// Two-phase publish: send the notification, stamp it with its own delivery id, then register the report under that id.
func (d *Dispatcher) publishReport(ctx context.Context, r *report.Report) error {
	logger := d.Logger.With("origin", r.Origin, "guild", r.Content.GuildID, "author", r.Content.AuthorID)
	modCh, ok := d.modChannel(r.Content.GuildID)
	if !ok {
		notificationSuppressedCount.Inc()
		return nil
	}

	msg := renderNotification(r, d.priorFlags(ctx, r.Content.AuthorID))
	deliveryID, err := d.Transport.Send(ctx, modCh, msg)
	if err != nil {
		return fmt.Errorf("sending moderation notification: %w", err)
	}
	msg.Embed.Footer = footerText(deliveryID)
	if err := d.Transport.Update(ctx, modCh, deliveryID, msg); err != nil {
		// the notification is still reviewable by its link
		logger.Warn("failed to stamp notification with report id", "report", deliveryID, "err", err)
	}

	if err := d.Flags.Register(ctx, deliveryID, r); err != nil {
		return fmt.Errorf("registering report: %w", err)
	}
	reportRegisteredCount.WithLabelValues(string(r.Origin)).Inc()
	logger.Info("registered report", "report", deliveryID, "category", r.Category, "subtype", r.Subtype, "score", r.Score)

	if err := d.Counters.Increment(ctx, countstore.FlaggedAuthor, r.Content.AuthorID); err != nil {
		logger.Warn("failed to increment flag counter", "err", err)
	}
	for _, n := range d.Notifiers {
		if err := n.SendReport(ctx, r); err != nil {
			logger.Error("failed to mirror report notification", "report", deliveryID, "err", err)
		}
	}
	return nil
}

func (d *Dispatcher) handleModeration(ctx context.Context, ev *Event) error {
	if normalize(ev.Text) == review.HelpKeyword {
		return d.reply(ctx, ev.ChannelID, review.HelpText)
	}

	isCmd, id, err := review.ParseCommand(ev.Text)
	if isCmd {
		if err != nil {
			return d.reply(ctx, ev.ChannelID, "Usage: `review <report_id|report_url>`")
		}
		return d.startReview(ctx, ev, id)
	}

	d.lk.Lock()
	flow, ok := d.reviews.Get(ev.SenderID)
	if !ok {
		d.lk.Unlock()
		return nil
	}
	lines := flow.Step(ev.Text)
	state := flow.State()
	if state == review.StateCancelled {
		d.reviews.Remove(ev.SenderID, flow)
		sessionEndCount.WithLabelValues("review", state.String()).Inc()
	}
	d.lk.Unlock()

	if err := d.reply(ctx, ev.ChannelID, lines...); err != nil {
		return err
	}
	if state == review.StateComplete && len(lines) > 0 {
		return d.completeReview(ctx, ev, flow)
	}
	return nil
}

func (d *Dispatcher) startReview(ctx context.Context, ev *Event, id string) error {
	r, err := d.Flags.Lookup(ctx, id)
	if errors.Is(err, flagstore.ErrNotFound) {
		return d.reply(ctx, ev.ChannelID, fmt.Sprintf("No report found with ID %s", id))
	}
	if err != nil {
		d.Logger.Error("report lookup failed", "report", id, "err", err)
		return d.reply(ctx, ev.ChannelID, fmt.Sprintf("Failed to look up report %s, please try again.", id))
	}

	flow := review.NewFlow(id)
	d.lk.Lock()
	d.reviews.Put(ev.SenderID, flow)
	lines := flow.Begin(r)
	d.lk.Unlock()
	sessionStartCount.WithLabelValues("review").Inc()

	if err := d.reply(ctx, ev.ChannelID, lines...); err != nil {
		// the moderator never saw the questions
		d.lk.Lock()
		d.reviews.Remove(ev.SenderID, flow)
		d.lk.Unlock()
		sessionEndCount.WithLabelValues("review", "send_failed").Inc()
		return err
	}
	return nil
}

// Carries out a completed review's decisions, in order, then discards the session.
func (d *Dispatcher) completeReview(ctx context.Context, ev *Event, flow *review.Flow) error {
	defer func() {
		d.lk.Lock()
		d.reviews.Remove(ev.SenderID, flow)
		d.lk.Unlock()
		sessionEndCount.WithLabelValues("review", flow.State().String()).Inc()
	}()

	r, err := d.Flags.Lookup(ctx, flow.ReportID())
	if err != nil {
		return fmt.Errorf("loading reviewed report: %w", err)
	}
	logger := d.Logger.With("report", r.ID, "moderator", ev.SenderID)
	dec := flow.Decision()

	var lines []string
	if dec.DeleteContent {
		if err := d.Transport.DeleteMessage(ctx, r.Content.ChannelID, r.Content.MessageID); err != nil {
			logger.Error("failed to delete flagged message", "channel", r.Content.ChannelID, "message", r.Content.MessageID, "err", err)
			reviewActionCount.WithLabelValues("delete", "error").Inc()
			lines = append(lines, fmt.Sprintf("Failed to delete the flagged message: %s", err))
		} else {
			reviewActionCount.WithLabelValues("delete", "ok").Inc()
			lines = append(lines, "The flagged message has been deleted.")
		}
	}
	if dec.RemoveMember {
		reason := fmt.Sprintf("removed after moderation review of report %s", r.ID)
		if err := d.Transport.RemoveMember(ctx, r.Content.GuildID, r.Content.AuthorID, reason); err != nil {
			logger.Error("failed to remove member", "guild", r.Content.GuildID, "member", r.Content.AuthorID, "err", err)
			reviewActionCount.WithLabelValues("remove", "error").Inc()
			lines = append(lines, fmt.Sprintf("Failed to remove <@%s>: %s", r.Content.AuthorID, err))
		} else {
			reviewActionCount.WithLabelValues("remove", "ok").Inc()
			lines = append(lines, fmt.Sprintf("<@%s> has been removed from the server.", r.Content.AuthorID))
		}
	}
	logger.Info("review complete", "delete", dec.DeleteContent, "remove", dec.RemoveMember)
	return d.reply(ctx, ev.ChannelID, lines...)
}

func (d *Dispatcher) handlePublic(ctx context.Context, ev *Event) error {
	if d.Triage == nil || len(ev.Attachments) == 0 {
		return nil
	}
	v := d.Triage.Evaluate(ctx, ev.Attachments)
	if v.Flagged {
		return d.publishReport(ctx, report.NewAutomated(ev.Snapshot(), v.Score))
	}
	if v.Evaluated && d.AnnounceEvaluations {
		modCh, ok := d.modChannel(ev.GuildID)
		if !ok {
			return nil
		}
		line := fmt.Sprintf("Evaluated: %.2f%% (%s)", v.Score*100, ev.Snapshot().JumpURL())
		return d.reply(ctx, modCh, line)
	}
	return nil
}

// Number of in-progress report and review sessions.
func (d *Dispatcher) ActiveSessions() (int, int) {
	return d.reports.Len(), d.reviews.Len()
}
