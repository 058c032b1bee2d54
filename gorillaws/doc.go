// Package gorillaws bridges net/http to the wsrouter connection model.
//
// A Handler upgrades matching HTTP requests with gorilla/websocket,
// assigns each connection a unique ID, optionally registers it with a
// rooms.Manager, and runs the router's connection lifecycle until the
// peer disconnects. Keepalive pings, read limits, and write deadlines
// are driven by a Config that can be loaded from YAML.
package gorillaws
