package neon

import "encoding/json"

// ReactionGroup is the reduced view of one emoji on a message.
type ReactionGroup struct {
	Emoji string   `json:"emoji"`
	Count int      `json:"count"`
	Users []string `json:"users"`
}

// ReduceReactions replays a reaction history in order. Entries the key cannot
// open, or that do not decode to a reaction, are skipped. A user counts once
// per emoji; a later remove by that user withdraws them. Groups keep the
// order in which their emoji first appeared and empty groups are dropped.
func ReduceReactions(key *RoomKey, history []ReactionEntry) []ReactionGroup {
	var order []string
	users := make(map[string][]string)

	for _, entry := range history {
		plain, ok := key.Decrypt(entry.Ciphertext)
		if !ok {
			continue
		}
		var r Reaction
		if err := json.Unmarshal([]byte(plain), &r); err != nil || r.Emoji == "" || r.Username == "" {
			continue
		}

		if _, seen := users[r.Emoji]; !seen {
			order = append(order, r.Emoji)
			users[r.Emoji] = nil
		}

		switch r.Action {
		case ReactionRemove:
			users[r.Emoji] = without(users[r.Emoji], r.Username)
		default:
			if !contains(users[r.Emoji], r.Username) {
				users[r.Emoji] = append(users[r.Emoji], r.Username)
			}
		}
	}

	groups := make([]ReactionGroup, 0, len(order))
	for _, emoji := range order {
		if len(users[emoji]) == 0 {
			continue
		}
		groups = append(groups, ReactionGroup{
			Emoji: emoji,
			Count: len(users[emoji]),
			Users: users[emoji],
		})
	}
	return groups
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}

func without(list []string, s string) []string {
	out := list[:0]
	for _, v := range list {
		if v != s {
			out = append(out, v)
		}
	}
	return out
}
