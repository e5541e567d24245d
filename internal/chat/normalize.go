package chat

import "strings"

// MapHistory converts client turns into the upstream shape. Assistant turns become model turns; every other role is
// treated as the user.
func MapHistory(turns []Turn) []NormalizedTurn {
	mapped := make([]NormalizedTurn, 0, len(turns))
	for _, t := range turns {
		role := UpstreamUser
		if t.Role == RoleAssistant {
			role = UpstreamModel
		}
		mapped = append(mapped, NormalizedTurn{
			Role:  role,
			Parts: []string{t.Text},
		})
	}
	return mapped
}

// Normalize turns an arbitrary history into a sequence the upstream chat APIs accept: strict user/model alternation
// starting with a user turn. Turns are only ever dropped, never reordered. The steps run in this order:
//
//  1. Drop leading turns until the first user turn. A history with no user turn normalizes to nothing.
//  2. If the last turn is a user turn whose text equals the outgoing message (both trimmed), drop it. Only an empty message
//     is exempt. This covers clients that include the in-flight message in the history they send alongside it.
//  3. Keep a turn only if it alternates with the last kept turn, so a run of same-role turns collapses to its first.
//
// The input slice is not modified.
func Normalize(history []NormalizedTurn, message string) []NormalizedTurn {
	first := -1
	for i, t := range history {
		if t.Role == UpstreamUser {
			first = i
			break
		}
	}
	if first == -1 {
		return []NormalizedTurn{}
	}
	h := history[first:]

	if n := len(h); n > 0 {
		last := h[n-1]
		if last.Role == UpstreamUser && message != "" && strings.TrimSpace(last.Text()) == strings.TrimSpace(message) {
			h = h[:n-1]
		}
	}

	normalized := make([]NormalizedTurn, 0, len(h))
	for _, t := range h {
		if len(normalized) == 0 {
			if t.Role == UpstreamUser {
				normalized = append(normalized, t)
			}
			continue
		}
		if t.Role != normalized[len(normalized)-1].Role {
			normalized = append(normalized, t)
		}
	}
	return normalized
}

// Window returns at most the last n turns of history
func Window(history []Turn, n int) []Turn {
	if n <= 0 {
		return nil
	}
	if len(history) > n {
		return history[len(history)-n:]
	}
	return history
}
