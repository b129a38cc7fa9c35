package intents

import (
	"errors"
	"testing"

	"github.com/google/go-cmp/cmp"
)

func TestParse(t *testing.T) {
	tests := []struct {
		name string
		tool string
		args map[string]any
		want Intent
	}{
		{"profile me", NameGetProfile, map[string]any{"identifier": "me"}, GetProfile{Identifier: "me"}},
		{"profile alias", "get_profile", map[string]any{"identifier": " skeik "}, GetProfile{Identifier: "skeik"}},
		{"profile numeric id", NameGetProfile, map[string]any{"identifier": float64(42)}, GetProfile{Identifier: "42"}},
		{"profile no args", NameGetProfile, nil, GetProfile{}},
		{"details", NameGetGameDetails, map[string]any{"game_name": "Half-Life 2"}, GetGameDetails{GameName: "Half-Life 2"}},
		{"contribute number", NameContribute, map[string]any{"amount": 10.5}, Contribute{Amount: 10.5}},
		{"contribute comma string", "contribute", map[string]any{"amount": "19,90"}, Contribute{Amount: 19.9}},
		{"contribute currency string", NameContribute, map[string]any{"amount": "R$ 5"}, Contribute{Amount: 5}},
		{"negative amount still parses", NameContribute, map[string]any{"amount": -3.0}, Contribute{Amount: -3}},
		{"start alias", "start_campaign", map[string]any{"game_name": "Portal 2"}, StartCampaign{GameName: "Portal 2"}},
		{"status alias", "get_status", map[string]any{}, GetCampaignStatus{}},
		{"cancel alias", "cancel", nil, CancelCampaign{}},
		{"copies", NameGetCopiesReport, nil, GetCopiesReport{}},
		{"giveaways enum lowercased", NameGetGiveaways, map[string]any{"type": "GAME", "platform": "steam"}, GetGiveaways{Platform: "steam", Type: "game"}},
		{"giveaways empty optional dropped", NameGetGiveaways, map[string]any{"sort_by": ""}, GetGiveaways{}},
		{"extra args ignored", NameGetFamilySharing, map[string]any{"foo": 1}, GetFamilySharingGames{}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Parse(tt.tool, tt.args)
			if err != nil {
				t.Fatalf("Parse: %v", err)
			}
			if diff := cmp.Diff(tt.want, got); diff != "" {
				t.Fatalf("Parse mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestParseRejects(t *testing.T) {
	tests := []struct {
		name string
		tool string
		args map[string]any
	}{
		{"missing game", NameStartCampaign, map[string]any{}},
		{"blank game", NameGetGameDetails, map[string]any{"game_name": "  "}},
		{"missing amount", NameContribute, nil},
		{"amount not a number", NameContribute, map[string]any{"amount": "dez reais"}},
		{"amount wrong type", NameContribute, map[string]any{"amount": true}},
		{"bad enum", NameGetGiveaways, map[string]any{"type": "dlc"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse(tt.tool, tt.args)
			var argErr *ArgumentError
			if !errors.As(err, &argErr) {
				t.Fatalf("Parse err = %v, want *ArgumentError", err)
			}
			if argErr.Intent == "" {
				t.Fatal("ArgumentError without intent name")
			}
		})
	}
}

func TestParseUnknown(t *testing.T) {
	_, err := Parse("delete_everything", nil)
	if !errors.Is(err, ErrUnknownIntent) {
		t.Fatalf("err = %v, want ErrUnknownIntent", err)
	}
	if Known("delete_everything") {
		t.Fatal("Known reported an unknown name")
	}
	if !Known("cancel") || !Known(NameCancelCampaign) {
		t.Fatal("Known missed a registered name")
	}
}

func TestDefinitionsUseCanonicalNames(t *testing.T) {
	defs := Definitions()
	if len(defs) != 11 {
		t.Fatalf("len(Definitions) = %d, want 11", len(defs))
	}
	seen := map[string]bool{}
	for _, d := range defs {
		if seen[d.Name] {
			t.Fatalf("duplicate definition %s", d.Name)
		}
		seen[d.Name] = true
		if d.Parameters["type"] != "object" {
			t.Fatalf("%s: parameters type = %v", d.Name, d.Parameters["type"])
		}
	}
	for _, alias := range []string{"get_profile", "start_campaign", "contribute", "get_status", "cancel"} {
		if seen[alias] {
			t.Fatalf("alias %s exposed as a definition", alias)
		}
	}
}

func TestResultEmpty(t *testing.T) {
	tests := []struct {
		name string
		res  *Result
		want bool
	}{
		{"nil data", NewResult(NameGetOwnedGames, nil), true},
		{"empty slice", NewResult(NameGetOwnedGames, []gamePayload{}), true},
		{"nil pointer", NewResult(NameGetProfile, (*profilePayload)(nil)), true},
		{"non-empty slice", NewResult(NameGetOwnedGames, []gamePayload{{AppID: 1}}), false},
		{"struct", NewResult(NameGetCampaignStatus, statusPayload{}), false},
		{"error result", ErrorResult(NameContribute, CodeNoActiveCampaign, "x"), false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.res.Empty(); got != tt.want {
				t.Fatalf("Empty() = %v, want %v", got, tt.want)
			}
		})
	}
}
