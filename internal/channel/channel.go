package channel

import "strings"

// BaseChannel carries what every provider channel shares: its name and the
// inbound sender allow-list.
type BaseChannel struct {
	name      string
	allowFrom map[string]bool
}

func NewBaseChannel(name string, allowFrom []string) BaseChannel {
	allowed := make(map[string]bool, len(allowFrom))
	for _, id := range allowFrom {
		if id = strings.TrimSpace(id); id != "" {
			allowed[id] = true
		}
	}
	return BaseChannel{name: name, allowFrom: allowed}
}

func (b *BaseChannel) Name() string {
	return b.name
}

// IsAllowed reports whether inbound events from senderID are accepted. An
// empty allow-list accepts everyone.
func (b *BaseChannel) IsAllowed(senderID string) bool {
	if len(b.allowFrom) == 0 {
		return true
	}
	return b.allowFrom[senderID]
}
