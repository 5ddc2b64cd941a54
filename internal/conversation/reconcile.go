// ABOUTME: Pure functions reconciling message histories across threads.
// ABOUTME: Creation-time inference, stable ordering with id tie-breaks, merge, and last-by-role selection.

package conversation

import (
	"cmp"
	"math"
	"slices"
	"strings"
	"time"

	"github.com/tjwyz/aqpMcp/internal/foundry"
)

// timeCandidates probes the creation-time spellings in fixed priority
// order. The first candidate that coerces to a finite epoch wins.
var timeCandidates = []func(foundry.Message) any{
	func(m foundry.Message) any { return m.CreatedAt },
	func(m foundry.Message) any { return m.CreatedAtCamel },
	func(m foundry.Message) any { return m.CreateTime },
	func(m foundry.Message) any { return m.CreateTimeCamel },
	func(m foundry.Message) any { return m.Created },
	func(m foundry.Message) any { return m.Timestamp },
}

// calendarLayouts are tried in order when a candidate is a string.
var calendarLayouts = []string{
	time.RFC3339Nano,
	time.RFC3339,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	"2006-01-02",
}

// CreationTimeMs infers a message's creation time in epoch milliseconds.
// Numeric candidates are taken as seconds and scaled to milliseconds
// unless their magnitude is already millisecond-scale (>= 1e12). String
// candidates are parsed as calendar timestamps.
//
// When no candidate yields a usable time the current wall clock is
// returned. That fallback is non-deterministic and makes merge order
// depend on extraction order for such messages; it mirrors how the
// service has always treated timestampless entries and is flagged here
// rather than silently changed.
func CreationTimeMs(m foundry.Message) int64 {
	for _, candidate := range timeCandidates {
		if ms, ok := coerceEpochMs(candidate(m)); ok {
			return ms
		}
	}
	return time.Now().UnixMilli()
}

// coerceEpochMs converts one candidate value to epoch milliseconds.
func coerceEpochMs(v any) (int64, bool) {
	switch t := v.(type) {
	case nil:
		return 0, false
	case float64:
		if math.IsNaN(t) || math.IsInf(t, 0) {
			return 0, false
		}
		return normalizeEpoch(t), true
	case float32:
		return normalizeEpoch(float64(t)), true
	case int:
		return normalizeEpoch(float64(t)), true
	case int64:
		return normalizeEpoch(float64(t)), true
	case string:
		for _, layout := range calendarLayouts {
			if ts, err := time.Parse(layout, t); err == nil {
				return ts.UnixMilli(), true
			}
		}
		return 0, false
	default:
		return 0, false
	}
}

// normalizeEpoch scales seconds to milliseconds, leaving values that are
// already millisecond-scale untouched.
func normalizeEpoch(f float64) int64 {
	if math.Abs(f) >= 1e12 {
		return int64(f)
	}
	return int64(f * 1000)
}

// MessageRole returns the first present role-ish field: role, then
// author, then from.
func MessageRole(m foundry.Message) string {
	if m.Role != "" {
		return m.Role
	}
	if m.Author != "" {
		return m.Author
	}
	return m.From
}

// sortID is the tie-break key: the id, falling back to the alternate
// message id, then empty.
func sortID(m foundry.Message) string {
	if m.ID != "" {
		return m.ID
	}
	return m.MessageID
}

// OrderMessages returns the messages sorted ascending by inferred
// creation time, ties broken by lexicographic id. The sort is stable and
// never mutates the input slice or the messages themselves; keys are
// computed once per message so the wall-clock fallback cannot shift
// between comparisons.
func OrderMessages(msgs []foundry.Message) []foundry.Message {
	type keyed struct {
		msg foundry.Message
		ms  int64
		id  string
	}

	keys := make([]keyed, len(msgs))
	for i, m := range msgs {
		keys[i] = keyed{msg: m, ms: CreationTimeMs(m), id: sortID(m)}
	}

	slices.SortStableFunc(keys, func(a, b keyed) int {
		if c := cmp.Compare(a.ms, b.ms); c != 0 {
			return c
		}
		return strings.Compare(a.id, b.id)
	})

	ordered := make([]foundry.Message, len(keys))
	for i, k := range keys {
		ordered[i] = k.msg
	}
	return ordered
}

// MergeThreads concatenates the per-thread message lists and orders the
// result. A positive limit keeps only the most recent entries, taken as a
// suffix of the ordered sequence.
func MergeThreads(limit int, lists ...[]foundry.Message) []foundry.Message {
	var all []foundry.Message
	for _, list := range lists {
		all = append(all, list...)
	}

	merged := OrderMessages(all)
	if limit > 0 && len(merged) > limit {
		merged = merged[len(merged)-limit:]
	}
	return merged
}

// LastMessageByRole scans an already-ordered sequence from the end and
// returns the most recent message matching role (case-insensitive). With
// no match the final element is returned; an empty sequence yields nil.
func LastMessageByRole(msgs []foundry.Message, role string) *foundry.Message {
	if len(msgs) == 0 {
		return nil
	}

	target := strings.ToLower(role)
	for i := len(msgs) - 1; i >= 0; i-- {
		if strings.ToLower(MessageRole(msgs[i])) == target {
			return &msgs[i]
		}
	}
	return &msgs[len(msgs)-1]
}
