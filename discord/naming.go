package discord

import (
	"errors"
	"fmt"
	"regexp"

	"github.com/groupmod/modbot/modflow/engine"
)

var ErrBadBotName = errors.New("bot display name does not match \"Group <N> Bot\"")

var botNameRegex = regexp.MustCompile(`[gG]roup (\d+) [bB]ot`)

// Extracts the group number from the bot's own display name. The digits are kept as written, so "Group 07 Bot" is group "07".
func ParseGroupID(name string) (string, error) {
	m := botNameRegex.FindStringSubmatch(name)
	if m == nil {
		return "", fmt.Errorf("%w: %q", ErrBadBotName, name)
	}
	return m[1], nil
}

func NamingForGroup(group string) engine.ChannelNaming {
	return engine.ChannelNaming{
		Moderation: "group-" + group + "-mod",
		Public:     "group-" + group,
	}
}
