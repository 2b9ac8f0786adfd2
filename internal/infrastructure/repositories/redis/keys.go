package redis

import "syncplay/internal/core/domain"

const (
	keyPrefix        = "syncplay:"
	schemaVersionKey = keyPrefix + "schema:version"
	roomIndexKey     = keyPrefix + "rooms"
	roomKeyPrefix    = keyPrefix + "room:"
	eventsKeyPrefix  = keyPrefix + "events:"
)

func roomKey(id domain.RoomID) string {
	return roomKeyPrefix + string(id)
}

func eventsKey(id domain.RoomID) string {
	return eventsKeyPrefix + string(id)
}
