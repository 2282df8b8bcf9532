package cache

import "fmt"

// Key layout:
// - roomKey(boardID):    sessions on a board (ZSet<sessionID, expireAtUnix>)
// - entriesKey(boardID): sessionID -> presence JSON (Hash)
const (
	keyRoomFmt    = "board:presence:{%s}:room"
	keyEntriesFmt = "board:presence:{%s}:entries"
)

func roomKey(boardID string) string    { return fmt.Sprintf(keyRoomFmt, boardID) }
func entriesKey(boardID string) string { return fmt.Sprintf(keyEntriesFmt, boardID) }
