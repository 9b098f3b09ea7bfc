package core

// Option is one selectable answer of the poll.
type Option struct {
	Emoji string `toml:"emoji"`
	Label string `toml:"label"`
}

type OptionResult struct {
	Option Option
	Voters []User
}

type Tally struct {
	Results  []OptionResult
	MaxVotes int
	Winners  []OptionResult
	Hosts    []User
}

// Count builds a Tally from the reactors of every option and of the host marker.
// Automated accounts and repeated reactions by the same user are dropped.
func Count(options []Option, reactors map[string][]User, hostEmoji string) Tally {
	var t Tally
	for _, opt := range options {
		voters := humans(reactors[opt.Emoji])
		t.Results = append(t.Results, OptionResult{Option: opt, Voters: voters})
		if len(voters) > t.MaxVotes {
			t.MaxVotes = len(voters)
		}
	}

	if t.MaxVotes > 0 {
		for _, r := range t.Results {
			if len(r.Voters) == t.MaxVotes {
				t.Winners = append(t.Winners, r)
			}
		}
	}

	t.Hosts = humans(reactors[hostEmoji])
	return t
}

func humans(users []User) []User {
	seen := make(map[string]bool, len(users))
	out := make([]User, 0, len(users))
	for _, u := range users {
		if u.Bot || seen[u.ID] {
			continue
		}
		seen[u.ID] = true
		out = append(out, u)
	}
	return out
}
