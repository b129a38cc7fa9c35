package prompts

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/steamfamilyzap/kgbot/internal/store"
)

type staticMembers []store.Profile

func (s staticMembers) ListAll(context.Context) ([]store.Profile, error) { return s, nil }

type failingMembers struct{}

func (failingMembers) ListAll(context.Context) ([]store.Profile, error) {
	return nil, errors.New("db down")
}

var family = staticMembers{
	{SteamID: "76561198000000001", Nickname: "skeik", PersonaName: "Skeik", ChannelAddress: "551100000001@s.whatsapp.net"},
	{SteamID: "76561198000000002", Nickname: "xkomedy", PersonaName: "xKomedy"},
}

func TestBuildDefault(t *testing.T) {
	b, err := NewBuilder("", family, Vars{BotName: "KGBot", ChannelTitle: "WhatsApp", Currency: "BRL"})
	if err != nil {
		t.Fatal(err)
	}
	got, err := b.Build(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	for _, want := range []string{`"KGBot"`, "WhatsApp", `"nickname": "skeik"`, `"steam_id": "76561198000000002"`, "@[starter]"} {
		if !strings.Contains(got, want) {
			t.Errorf("prompt missing %q", want)
		}
	}
	if strings.Contains(got, "s.whatsapp.net") {
		t.Error("prompt leaks channel addresses")
	}
}

func TestBuildFailsWithoutMembers(t *testing.T) {
	b, err := NewBuilder("", failingMembers{}, Vars{})
	if err != nil {
		t.Fatal(err)
	}
	if _, err := b.Build(context.Background()); err == nil {
		t.Fatal("expected error")
	}
}

func TestLoadKeepsPreviousTemplateOnError(t *testing.T) {
	path := filepath.Join(t.TempDir(), "prompt.md")
	os.WriteFile(path, []byte("Sou {{.BotName}}."), 0o644)

	b, err := NewBuilder(path, family, Vars{BotName: "KGBot"})
	if err != nil {
		t.Fatal(err)
	}
	os.WriteFile(path, []byte("Sou {{.BotName"), 0o644)
	if err := b.Load(path); err == nil {
		t.Fatal("broken template accepted")
	}
	got, _ := b.Build(context.Background())
	if got != "Sou KGBot." {
		t.Fatalf("Build = %q", got)
	}
}

func TestWriteDefault(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "system.md")
	created, err := WriteDefault(path)
	if err != nil || !created {
		t.Fatalf("WriteDefault = %v, %v", created, err)
	}
	created, err = WriteDefault(path)
	if err != nil || created {
		t.Fatalf("second WriteDefault = %v, %v; want false, nil", created, err)
	}
}

func TestWatcherReloads(t *testing.T) {
	path := filepath.Join(t.TempDir(), "prompt.md")
	os.WriteFile(path, []byte("v1"), 0o644)
	b, err := NewBuilder(path, family, Vars{})
	if err != nil {
		t.Fatal(err)
	}
	w, err := NewWatcher(path, b)
	if err != nil {
		t.Fatal(err)
	}
	w.debounce = 10 * time.Millisecond
	ctx, cancel := context.WithCancel(context.Background())
	go w.Run(ctx)
	defer func() {
		cancel()
		<-w.Done()
	}()

	if err := os.WriteFile(path, []byte("v2"), 0o644); err != nil {
		t.Fatal(err)
	}
	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		if got, _ := b.Build(context.Background()); got == "v2" {
			return
		}
		time.Sleep(20 * time.Millisecond)
	}
	t.Fatal("template not reloaded")
}
