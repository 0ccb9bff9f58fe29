package domain

// Feed identifies one remote announcement source. The set is closed: adding a
// feed means adding a constant here and an enricher branch in the router.
type Feed int

const (
	FeedMessageCenter Feed = iota
	FeedServiceHealth
)

// Key returns the stable wire name used for dedup prefixes and state files.
func (f Feed) Key() string {
	switch f {
	case FeedServiceHealth:
		return "service_health"
	default:
		return "message_center"
	}
}

// Label returns the human-readable feed name shown on cards.
func (f Feed) Label() string {
	switch f {
	case FeedServiceHealth:
		return "Service Health"
	default:
		return "Message Center"
	}
}

// DedupKey builds the feed-scoped identity of a raw item.
func (f Feed) DedupKey(itemID string) string {
	return f.Key() + ":" + itemID
}
