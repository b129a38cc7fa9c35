package cmd

import (
	"bytes"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/mattn/go-runewidth"

	"github.com/steamfamilyzap/kgbot/internal/config"
	"github.com/steamfamilyzap/kgbot/internal/store"
)

func TestParseSeed(t *testing.T) {
	tests := []struct {
		name    string
		yaml    string
		want    []seedMember
		wantErr string
	}{
		{
			name: "valid",
			yaml: `
members:
  - nickname: "@ana"
    steam_id: "76561198000000001"
    address: "5511999990000@s.whatsapp.net"
  - nickname: bia
    steam_id: "76561198000000002"
`,
			want: []seedMember{
				{Nickname: "ana", SteamID: "76561198000000001", Address: "5511999990000@s.whatsapp.net"},
				{Nickname: "bia", SteamID: "76561198000000002"},
			},
		},
		{name: "empty", yaml: "members: []", wantErr: "no members"},
		{
			name:    "bad steam id",
			yaml:    "members:\n  - nickname: ana\n    steam_id: \"123\"\n",
			wantErr: "17-digit",
		},
		{
			name: "duplicate nickname",
			yaml: `
members:
  - {nickname: Ana, steam_id: "76561198000000001"}
  - {nickname: ana, steam_id: "76561198000000002"}
`,
			wantErr: "duplicate nickname",
		},
		{
			name: "duplicate address",
			yaml: `
members:
  - {nickname: ana, steam_id: "76561198000000001", address: "x@s.whatsapp.net"}
  - {nickname: bia, steam_id: "76561198000000002", address: "x@s.whatsapp.net"}
`,
			wantErr: "duplicate address",
		},
		{name: "not yaml", yaml: "members: [", wantErr: "parse seed file"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := parseSeed([]byte(tt.yaml))
			if tt.wantErr != "" {
				if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
					t.Fatalf("err = %v, want containing %q", err, tt.wantErr)
				}
				return
			}
			if err != nil {
				t.Fatal(err)
			}
			if diff := cmp.Diff(tt.want, got); diff != "" {
				t.Fatalf("members mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestRenderTableAlignsWideRunes(t *testing.T) {
	var buf bytes.Buffer
	renderTable(&buf, []string{"COPIES", "APP ID", "GAME"}, copiesRows([]store.GameCopies{
		{AppID: 1, Name: "原神", Copies: 3},
		{AppID: 620, Name: "Portal 2", Copies: 12},
	}))

	lines := strings.Split(strings.TrimRight(buf.String(), "\n"), "\n")
	if len(lines) != 3 {
		t.Fatalf("lines = %q", lines)
	}
	// The GAME column starts at the same display offset on every line.
	col := func(line, cell string) int {
		return runewidth.StringWidth(line[:strings.Index(line, cell)])
	}
	want := col(lines[0], "GAME")
	if got := col(lines[1], "原神"); got != want {
		t.Fatalf("wide row offset = %d, want %d\n%s", got, want, buf.String())
	}
	if got := col(lines[2], "Portal 2"); got != want {
		t.Fatalf("ascii row offset = %d, want %d\n%s", got, want, buf.String())
	}
}

func TestRenderTableEmpty(t *testing.T) {
	var buf bytes.Buffer
	renderTable(&buf, []string{"A"}, nil)
	if !strings.Contains(buf.String(), "(no rows)") {
		t.Fatalf("output = %q", buf.String())
	}
}

func TestCopiesRowsTruncatesLongNames(t *testing.T) {
	rows := copiesRows([]store.GameCopies{{AppID: 1, Name: strings.Repeat("x", 100), Copies: 1}})
	if w := runewidth.StringWidth(rows[0][2]); w > maxNameWidth {
		t.Fatalf("name width = %d, want <= %d", w, maxNameWidth)
	}
}

func TestApplyOnboarding(t *testing.T) {
	tests := []struct {
		name       string
		ans        onboardAnswers
		wantEnv    map[string]string
		wantDriver string
	}{
		{
			name: "whatsapp gemini sqlite",
			ans: onboardAnswers{
				BotName: "KGBot", Channel: config.ChannelWhatsApp, Provider: "gemini",
				SteamKey: "steam", ModelKey: "gem", BotPhone: "5511999990000", GroupID: "123@g.us",
				SQLitePath: "~/.kgbot/kgbot.db",
			},
			wantEnv: map[string]string{
				"KGBOT_STEAM_API_KEY":     "steam",
				"KGBOT_GEMINI_API_KEY":    "gem",
				"KGBOT_BOT_PHONE_NUMBER":  "5511999990000",
				"KGBOT_WHATSAPP_GROUP_ID": "123@g.us",
			},
			wantDriver: "sqlite",
		},
		{
			name: "telegram openai postgres",
			ans: onboardAnswers{
				BotName: "KGBot", Channel: config.ChannelTelegram, Provider: "openai",
				SteamKey: "steam", ModelKey: "oa", ChannelToken: "tg",
				UsePostgres: true, PostgresDSN: "postgres://x",
			},
			wantEnv: map[string]string{
				"KGBOT_STEAM_API_KEY":  "steam",
				"KGBOT_OPENAI_API_KEY": "oa",
				"KGBOT_TELEGRAM_TOKEN": "tg",
				"KGBOT_POSTGRES_DSN":   "postgres://x",
			},
			wantDriver: "postgres",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := config.Default()
			env := map[string]string{}
			applyOnboarding(cfg, env, tt.ans)

			if diff := cmp.Diff(tt.wantEnv, env); diff != "" {
				t.Fatalf("env mismatch (-want +got):\n%s", diff)
			}
			if cfg.Database.Driver != tt.wantDriver {
				t.Fatalf("driver = %q, want %q", cfg.Database.Driver, tt.wantDriver)
			}
			if cfg.Channels.Active != tt.ans.Channel || cfg.Bot.Provider != tt.ans.Provider {
				t.Fatalf("cfg = %+v / %+v", cfg.Channels.Active, cfg.Bot.Provider)
			}
		})
	}
}

func TestChannelTitle(t *testing.T) {
	if got := channelTitle(config.ChannelDiscord); got != "Discord" {
		t.Fatalf("channelTitle = %q", got)
	}
}
