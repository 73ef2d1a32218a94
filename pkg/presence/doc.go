// Package presence tracks which users have live connections on this node
// and delivers realtime events to them.
//
// A Registry maintains a two-way mapping between users and connections: one
// user may hold several connections (multiple tabs, devices), and each
// connection belongs to exactly one user. Delivery to a user fans out to all
// of their connections; a user with no connections is a silent no-op.
//
// When wired to an event bus the registry participates in cross-node
// delivery: PublishToUser broadcasts a deliver event that every node's
// registry receives, and each node forwards the payload to the user's local
// connections. Connections whose Send fails are unbound, mirroring how a
// dropped websocket disappears from the pool.
package presence
