package core

import (
	"testing"

	"github.com/google/go-cmp/cmp"
)

func TestCountIgnoresBotsAndDuplicates(t *testing.T) {
	reactors := map[string][]User{
		"🇹": {botUser("psyduck"), user("ash"), user("misty"), user("ash")},
		"🇼": {botUser("psyduck"), user("brock")},
		"🇷": {botUser("psyduck")},
		"🌞": {botUser("psyduck")},
		"✅": {botUser("psyduck"), user("misty")},
	}

	got := Count(testPollConfig.Options, reactors, "✅")

	if got.MaxVotes != 2 {
		t.Fatalf("expected max 2 votes, got %d", got.MaxVotes)
	}
	if len(got.Winners) != 1 || got.Winners[0].Option.Label != "Tuesday" {
		t.Fatalf("unexpected winners: %+v", got.Winners)
	}
	if diff := cmp.Diff([]User{user("ash"), user("misty")}, got.Winners[0].Voters); diff != "" {
		t.Errorf("voters mismatch (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff([]User{user("misty")}, got.Hosts); diff != "" {
		t.Errorf("hosts mismatch (-want +got):\n%s", diff)
	}
	if len(got.Results) != 4 {
		t.Fatalf("expected a result per option, got %d", len(got.Results))
	}
}

func TestCountTies(t *testing.T) {
	reactors := map[string][]User{
		"🇹": {user("ash")},
		"🇷": {user("misty")},
		"🌞": {user("brock")},
	}

	got := Count(testPollConfig.Options, reactors, "✅")

	var labels []string
	for _, w := range got.Winners {
		labels = append(labels, w.Option.Label)
	}
	if diff := cmp.Diff([]string{"Tuesday", "Thursday", "Sunday"}, labels); diff != "" {
		t.Errorf("winners mismatch (-want +got):\n%s", diff)
	}
}

func TestCountNoVotes(t *testing.T) {
	reactors := map[string][]User{
		"🇹": {botUser("psyduck")},
		"✅": {botUser("psyduck")},
	}

	got := Count(testPollConfig.Options, reactors, "✅")

	if got.MaxVotes != 0 || len(got.Winners) != 0 {
		t.Fatalf("expected no winners, got %+v", got)
	}
	if len(got.Hosts) != 0 {
		t.Fatalf("expected no hosts, got %+v", got.Hosts)
	}
}
