package keys

import (
	"strings"
)

const (
	// PfxHealthCheck is used for prefixing health check redis key
	PfxHealthCheck = "healthcheck"
	// PfxAuctionEvents is used for prefixing the pub/sub channel of an auction
	PfxAuctionEvents = "auction:events"
	// PfxAuctionSnapshot is used for prefixing cached snapshots of closed auctions
	PfxAuctionSnapshot = "auction:snapshot"
)

// CustomKey is used to join the customized key by componets with specified delimiter
func CustomKey(delimiter string, components ...string) string {
	return strings.Join(components, delimiter)
}

// RedisKey is used to join the redis key by componets
func RedisKey(components ...string) string {
	return CustomKey(":", components...)
}

// AuctionEventChannel is the redis channel every event of one auction is published to
func AuctionEventChannel(auctionId string) string {
	return RedisKey(PfxAuctionEvents, auctionId)
}

// GetPrefix extracts the prefix of a key, at most two components.
func GetPrefix(key string) string {
	s := strings.Split(key, ":")
	if len(s) > 2 {
		return strings.Join([]string{s[0], s[1]}, ":")
	} else if len(s) > 1 {
		return s[0]
	}
	return ""
}
