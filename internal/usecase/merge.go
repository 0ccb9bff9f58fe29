package usecase

import (
	"sort"

	"M365Monitor/internal/domain"
)

// FeedItem tags a raw item with the feed it came from so merged lists keep
// their routing information.
type FeedItem struct {
	Feed domain.Feed
	Item domain.RawItem
}

// Tag wraps one feed's items for merging.
func Tag(feed domain.Feed, items []domain.RawItem) []FeedItem {
	tagged := make([]FeedItem, 0, len(items))
	for _, item := range items {
		tagged = append(tagged, FeedItem{Feed: feed, Item: item})
	}
	return tagged
}

// MergeByRecency concatenates the tagged lists and orders them newest first,
// so downstream consumers see the most recent update regardless of feed.
// Items without a parsable timestamp sort as oldest; they never break the
// sort.
func MergeByRecency(lists ...[]FeedItem) []FeedItem {
	var merged []FeedItem
	for _, list := range lists {
		merged = append(merged, list...)
	}

	sort.SliceStable(merged, func(i, j int) bool {
		return merged[i].Item.Timestamp().After(merged[j].Item.Timestamp())
	})
	return merged
}
