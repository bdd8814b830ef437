package engine

type ContextKind int

const (
	ContextIgnored ContextKind = iota
	ContextPrivate
	ContextModeration
	ContextPublic
)

func (k ContextKind) String() string {
	switch k {
	case ContextPrivate:
		return "private"
	case ContextModeration:
		return "moderation"
	case ContextPublic:
		return "public"
	default:
		return "ignored"
	}
}

// Names of the channels the bot acts in, in every guild it has joined.
type ChannelNaming struct {
	Moderation string
	Public     string
}

func (n ChannelNaming) Classify(ev *Event) ContextKind {
	if ev.Private() {
		return ContextPrivate
	}
	switch ev.ChannelName {
	case "":
		return ContextIgnored
	case n.Moderation:
		return ContextModeration
	case n.Public:
		return ContextPublic
	}
	return ContextIgnored
}
