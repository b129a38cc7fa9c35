// Package mentions rewrites @[nickname] placeholders in generated text into
// transport mentions and collects who has to be notified.
package mentions

import (
	"context"
	"fmt"
	"regexp"
	"strings"

	"github.com/steamfamilyzap/kgbot/internal/store"
)

var placeholderRe = regexp.MustCompile(`@\[?([a-zA-Z0-9_À-ú]+)\]?`)

// Directory is the lookup the resolver needs.
type Directory interface {
	FindByNickname(ctx context.Context, nickname string) (*store.Profile, error)
}

// TokenFunc renders a channel address as a mention the transport understands.
type TokenFunc func(address string) string

// DefaultToken renders "@" plus the part of the address before any "@".
func DefaultToken(address string) string {
	if i := strings.IndexByte(address, '@'); i >= 0 {
		address = address[:i]
	}
	return "@" + address
}

// Resolver turns placeholders into mentions.
type Resolver struct {
	dir   Directory
	token TokenFunc
}

func NewResolver(dir Directory, token TokenFunc) *Resolver {
	if token == nil {
		token = DefaultToken
	}
	return &Resolver{dir: dir, token: token}
}

type options struct {
	aliases map[string]string
}

// Option tweaks a single Resolve call.
type Option func(*options)

// WithAlias makes placeholder name resolve as nickname, e.g. @[starter].
func WithAlias(name, nickname string) Option {
	return func(o *options) {
		if o.aliases == nil {
			o.aliases = make(map[string]string)
		}
		o.aliases[strings.ToLower(name)] = nickname
	}
}

// Resolve returns the rewritten text and the channel addresses to notify,
// deduplicated in first-seen order.
func (r *Resolver) Resolve(ctx context.Context, text string, opts ...Option) (string, []string, error) {
	var o options
	for _, opt := range opts {
		opt(&o)
	}

	matches := placeholderRe.FindAllStringSubmatch(text, -1)
	if len(matches) == 0 {
		return text, []string{}, nil
	}

	replacements := make(map[string]string, len(matches))
	targets := []string{}
	seenTarget := make(map[string]bool)
	for _, m := range matches {
		name := m[1]
		if _, done := replacements[name]; done {
			continue
		}
		nick := name
		if alias, ok := o.aliases[strings.ToLower(name)]; ok && alias != "" {
			nick = alias
		}

		p, err := r.dir.FindByNickname(ctx, nick)
		if err != nil {
			return "", nil, fmt.Errorf("resolve mention %q: %w", name, err)
		}
		if p == nil || p.ChannelAddress == "" {
			replacements[name] = "@" + nick
			continue
		}
		replacements[name] = r.token(p.ChannelAddress)
		if !seenTarget[p.ChannelAddress] {
			seenTarget[p.ChannelAddress] = true
			targets = append(targets, p.ChannelAddress)
		}
	}

	out := placeholderRe.ReplaceAllStringFunc(text, func(match string) string {
		sub := placeholderRe.FindStringSubmatch(match)
		if rep, ok := replacements[sub[1]]; ok {
			return rep
		}
		return match
	})
	return out, targets, nil
}
