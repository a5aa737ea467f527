// Package statehub provides type-safe Go definitions and Redis schema patterns
// for the copilot state hub. The hub is the shared surface between the engine
// and its transport collaborators: it persists the durable unit of each
// session (ModelState snapshot + version), stores generated artifacts with
// bounded retention, and carries the Pub/Sub channels for inbound chat
// requests, per-request responses, client-pushed state updates, and the
// out-of-band sync push (alerts and snapshots).
//
// All Redis keys and channels are namespaced by instance name so multiple
// copilot instances can safely coexist on a single Redis server.
package statehub
