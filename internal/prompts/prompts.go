// Package prompts renders the system prompt: the persona template plus the
// current family member list.
package prompts

import (
	"bytes"
	"context"
	"embed"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"text/template"

	"github.com/steamfamilyzap/kgbot/internal/store"
)

// DefaultFile is the embedded template name.
const DefaultFile = "system.md"

//go:embed templates/*.md
var templateFS embed.FS

// Members lists the family for the prompt.
type Members interface {
	ListAll(ctx context.Context) ([]store.Profile, error)
}

// Vars are the values a prompt template can use.
type Vars struct {
	BotName      string
	ChannelTitle string
	Currency     string
	Members      string // JSON array of {nickname, persona_name, steam_id}
}

type member struct {
	Nickname    string `json:"nickname"`
	PersonaName string `json:"persona_name"`
	RealName    string `json:"real_name,omitempty"`
	SteamID     string `json:"steam_id"`
}

// Builder renders the system prompt. The template can be swapped at runtime
// by a Watcher; Build always uses the latest one.
type Builder struct {
	members Members
	vars    Vars

	mu   sync.RWMutex
	tmpl *template.Template
}

// NewBuilder parses the template at path, or the embedded default when
// path is empty.
func NewBuilder(path string, members Members, vars Vars) (*Builder, error) {
	b := &Builder{members: members, vars: vars}
	if err := b.Load(path); err != nil {
		return nil, err
	}
	return b, nil
}

// Load (re)parses the template. On error the previous template stays.
func (b *Builder) Load(path string) error {
	var (
		src []byte
		err error
	)
	if path == "" {
		src, err = templateFS.ReadFile("templates/" + DefaultFile)
	} else {
		src, err = os.ReadFile(path)
	}
	if err != nil {
		return fmt.Errorf("read prompt template: %w", err)
	}
	t, err := template.New(DefaultFile).Option("missingkey=error").Parse(string(src))
	if err != nil {
		return fmt.Errorf("parse prompt template %s: %w", path, err)
	}
	b.mu.Lock()
	b.tmpl = t
	b.mu.Unlock()
	return nil
}

// Build renders the prompt with the current family list.
func (b *Builder) Build(ctx context.Context) (string, error) {
	profiles, err := b.members.ListAll(ctx)
	if err != nil {
		return "", fmt.Errorf("list family: %w", err)
	}
	list := make([]member, 0, len(profiles))
	for _, p := range profiles {
		list = append(list, member{Nickname: p.Nickname, PersonaName: p.PersonaName, RealName: p.RealName, SteamID: p.SteamID})
	}
	raw, err := json.MarshalIndent(list, "", "  ")
	if err != nil {
		return "", err
	}
	vars := b.vars
	vars.Members = string(raw)

	b.mu.RLock()
	t := b.tmpl
	b.mu.RUnlock()

	var buf bytes.Buffer
	if err := t.Execute(&buf, vars); err != nil {
		return "", fmt.Errorf("render prompt: %w", err)
	}
	return buf.String(), nil
}

// WriteDefault copies the embedded template to path unless a file is already there.
// Returns true if the file was created.
func WriteDefault(path string) (bool, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return false, err
	}
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
	if err != nil {
		if os.IsExist(err) {
			return false, nil
		}
		return false, err
	}
	defer f.Close()

	content, err := templateFS.ReadFile("templates/" + DefaultFile)
	if err != nil {
		os.Remove(path)
		return false, err
	}
	if _, err := f.Write(content); err != nil {
		return false, err
	}
	return true, nil
}
