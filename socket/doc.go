// Package socket implements the connection endpoints operations use to
// exchange variants.
//
// An OutputSocket pushes values to any number of inputs. An InputSocket has
// at most one source and queues what it accepts for its owning operation.
// A ProxySocket plays both roles at once: its single source sees one input,
// while internally the value is fanned out to every target, at most once per
// target per delivery round.
//
// Emit is synchronous: it returns once every target has accepted the value.
// A target that refuses (a full queue) is retried after a downstream input
// frees capacity; targets that already accepted are never re-sent the value.
package socket
