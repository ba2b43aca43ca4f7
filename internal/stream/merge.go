// ABOUTME: Pure reconciliation of the message log against its three sources.
// ABOUTME: Snapshot replaces wholesale; push and optimistic inserts are id-deduplicated appends.

package stream

import "github.com/2389/helpdesk-console/internal/wire"

// Source identifies where a batch of messages came from.
type Source int

const (
	// SourceSnapshot is an authoritative full fetch; it replaces the log
	// wholesale and re-imposes server order.
	SourceSnapshot Source = iota

	// SourcePush is a live frame delivered over the push channel.
	SourcePush

	// SourceOptimistic is a locally constructed copy of a just-sent message.
	SourceOptimistic
)

// Merge reconciles an incoming batch into the existing log and returns the
// new log. It never mutates its inputs.
//
// Snapshot batches win outright. Push and optimistic batches append in
// arrival order, rejecting any message whose id is already present, so the
// display order follows acceptance order until the next snapshot re-imposes
// server order. Legacy push frames carry no id at all; a zero id holds no
// identity, so such messages always append and the snapshot is the only
// thing that can collapse them.
func Merge(existing, incoming []wire.ChatMessage, source Source) []wire.ChatMessage {
	if source == SourceSnapshot {
		out := make([]wire.ChatMessage, len(incoming))
		copy(out, incoming)
		return out
	}

	seen := make(map[int64]struct{}, len(existing))
	for _, m := range existing {
		if m.ID != 0 {
			seen[m.ID] = struct{}{}
		}
	}

	out := make([]wire.ChatMessage, len(existing), len(existing)+len(incoming))
	copy(out, existing)

	for _, m := range incoming {
		if m.ID != 0 {
			if _, dup := seen[m.ID]; dup {
				continue
			}
			seen[m.ID] = struct{}{}
		}
		out = append(out, m)
	}
	return out
}
