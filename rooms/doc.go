// Package rooms tracks live connections and groups them into named rooms
// for broadcast targeting.
//
// A Manager fronts a pluggable Backend. The default LocalBackend keeps
// lock-protected in-process maps; RedisBackend mirrors membership into
// Redis and relays broadcasts over pub/sub so several processes can share
// one room namespace.
//
// Broadcast isolates every recipient: each delivery runs under its own
// optional timeout, and a failure or stall on one connection is reported
// without delaying or aborting delivery to the others.
//
//	manager := rooms.NewManager()
//	manager.Add(ctx, id, conn)
//	manager.Join(ctx, id, "lobby")
//	failed := manager.Broadcast(ctx, "lobby", msg,
//	    rooms.Exclude(id),
//	    rooms.PerRecipientTimeout(5*time.Second))
package rooms
