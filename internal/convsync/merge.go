package convsync

import (
	"sort"

	"thinkshare/internal/models"
)

func lessMessage(a, b models.Message) bool {
	if !a.CreatedAt.Equal(b.CreatedAt) {
		return a.CreatedAt.Before(b.CreatedAt)
	}
	return a.ID < b.ID
}

// merge combines a server listing with the local list. The server copy wins,
// duplicates are dropped by id, and pending optimistic entries that the server
// has not echoed back (by client ref) stay at the end in submission order.
// merge(server, merge(server, local)) == merge(server, local).
func merge(server, local []models.Message) []models.Message {
	out := make([]models.Message, 0, len(server)+len(local))
	ids := make(map[string]struct{}, len(server))
	refs := make(map[string]struct{}, len(server))
	for _, m := range server {
		if _, dup := ids[m.ID]; dup {
			continue
		}
		ids[m.ID] = struct{}{}
		if m.ClientRef != "" {
			refs[m.ClientRef] = struct{}{}
		}
		m.Pending = false
		out = append(out, m)
	}
	sort.SliceStable(out, func(i, j int) bool { return lessMessage(out[i], out[j]) })

	for _, m := range local {
		if !m.Pending {
			continue
		}
		if _, echoed := refs[m.ClientRef]; echoed {
			continue
		}
		out = append(out, m)
	}
	return out
}

// confirm swaps the pending entry carrying msg.ClientRef for the server copy.
func confirm(list []models.Message, msg models.Message) []models.Message {
	msg.Pending = false
	pending := -1
	present := false
	for i, m := range list {
		if m.Pending && m.ClientRef != "" && m.ClientRef == msg.ClientRef {
			pending = i
		} else if !m.Pending && m.ID == msg.ID {
			present = true
		}
	}

	switch {
	case present && pending >= 0:
		return append(list[:pending:pending], list[pending+1:]...)
	case pending >= 0:
		out := append([]models.Message(nil), list...)
		out[pending] = msg
		return out
	case present:
		return list
	default:
		confirmed := make([]models.Message, 0, len(list)+1)
		for _, m := range list {
			if !m.Pending {
				confirmed = append(confirmed, m)
			}
		}
		return merge(append(confirmed, msg), list)
	}
}

func removePending(list []models.Message, clientRef string) []models.Message {
	out := make([]models.Message, 0, len(list))
	for _, m := range list {
		if m.Pending && m.ClientRef == clientRef {
			continue
		}
		out = append(out, m)
	}
	return out
}
