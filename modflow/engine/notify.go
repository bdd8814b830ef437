package engine

import (
	"fmt"
	"strings"

	"github.com/groupmod/modbot/modflow/report"
)

const (
	colorUserReport = 0xF1C40F
	colorAutomated  = 0xE74C3C
)

// Field name for PriorFlags. Day is the current UTC calendar day, not a rolling window.
const priorFlagsField = "Prior flags (today UTC / total)"

// Counts of reports previously registered against the flagged author.
type PriorFlags struct {
	Day   int
	Total int
}

// Discord rejects embeds with a description over 4096 characters. Leaves room for the fences and author name.
const maxQuotedRunes = 3900

func footerText(deliveryID string) string {
	return "Report ID: " + deliveryID
}

// Moderation channel notification for a completed report. The footer is filled in once the delivery id is known.
func renderNotification(r *report.Report, prior PriorFlags) OutboundMessage {
	c := r.Content
	embed := &Embed{
		URL:         c.JumpURL(),
		Description: report.Quote(c.AuthorName, c.Text, maxQuotedRunes),
	}
	if r.Origin == report.OriginAutomated {
		embed.Title = "Automated flag: suspect content"
		embed.Color = colorAutomated
		embed.Fields = append(embed.Fields,
			EmbedField{Name: "Score", Value: fmt.Sprintf("%.2f%%", r.Score*100), Inline: true},
		)
	} else {
		embed.Title = "New report"
		embed.Color = colorUserReport
		embed.Fields = append(embed.Fields,
			EmbedField{Name: "Category", Value: r.Category, Inline: true},
			EmbedField{Name: "Subtype", Value: r.Subtype, Inline: true},
			EmbedField{Name: "Reported by", Value: fmt.Sprintf("<@%s>", r.AuthorID), Inline: true},
			EmbedField{Name: "AI suspected", Value: r.AISuspected.String(), Inline: true},
			EmbedField{Name: "Block requested", Value: r.BlockRequested.String(), Inline: true},
		)
	}
	embed.Fields = append(embed.Fields,
		EmbedField{Name: "Author", Value: fmt.Sprintf("<@%s>", c.AuthorID), Inline: true},
		EmbedField{Name: "Channel", Value: fmt.Sprintf("<#%s>", c.ChannelID), Inline: true},
		EmbedField{Name: priorFlagsField, Value: fmt.Sprintf("%d / %d", prior.Day, prior.Total), Inline: true},
		EmbedField{Name: "Message", Value: c.JumpURL()},
	)
	return OutboundMessage{Embed: embed}
}

// Plain text rendering of a registered report, for mirrors which don't support embeds.
func PlainSummary(r *report.Report) string {
	var sb strings.Builder
	if r.Origin == report.OriginAutomated {
		fmt.Fprintf(&sb, "Automated flag `%s`: suspect content, score %.2f%%\n", r.ID, r.Score*100)
	} else {
		fmt.Fprintf(&sb, "Report `%s`: %s / %s (AI suspected: %s, block requested: %s)\n", r.ID, r.Category, r.Subtype, r.AISuspected, r.BlockRequested)
	}
	fmt.Fprintf(&sb, "Author: `%s` (%s)\n", r.Content.AuthorName, r.Content.AuthorID)
	fmt.Fprintf(&sb, "%s\n", r.Content.JumpURL())
	return sb.String()
}
