package intents

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

// ErrUnknownIntent is returned by Parse for names outside the catalog.
var ErrUnknownIntent = errors.New("unknown intent")

// ArgumentError reports arguments that do not match the intent's schema.
type ArgumentError struct {
	Intent string
	Reason string
}

func (e *ArgumentError) Error() string {
	return fmt.Sprintf("invalid arguments for %s: %s", e.Intent, e.Reason)
}

type paramType string

const (
	typeString paramType = "string"
	typeNumber paramType = "number"
)

type param struct {
	name        string
	typ         paramType
	description string
	required    bool
	enum        []string
}

type spec struct {
	name        string
	aliases     []string
	description string
	params      []param
	build       func(args map[string]any) Intent

	schema *jsonschema.Schema
}

var identifierParam = param{
	name:        "identifier",
	typ:         typeString,
	description: "O apelido (ex: 'skeik'), o SteamID64 do jogador, ou 'me' para o próprio usuário.",
}

var specs = []*spec{
	{
		name:        NameGetProfile,
		aliases:     []string{"get_profile"},
		description: "Obtém informações do perfil de um jogador da Steam com base em seu apelido, SteamID ou a palavra 'me'.",
		params:      []param{identifierParam},
		build:       func(a map[string]any) Intent { return GetProfile{Identifier: str(a, "identifier")} },
	},
	{
		name:        NameGetOwnedGames,
		description: "Obtém a lista de jogos possuídos por um jogador da Steam com base em seu apelido, SteamID ou 'me'.",
		params:      []param{identifierParam},
		build:       func(a map[string]any) Intent { return GetOwnedGames{Identifier: str(a, "identifier")} },
	},
	{
		name:        NameGetRecentGames,
		description: "Obtém a lista de jogos jogados recentemente por um jogador da Steam com base em seu apelido, SteamID ou 'me'.",
		params:      []param{identifierParam},
		build:       func(a map[string]any) Intent { return GetRecentGames{Identifier: str(a, "identifier")} },
	},
	{
		name:        NameGetGameDetails,
		description: "Obtém informações detalhadas sobre um jogo específico, como descrição, gênero, desenvolvedor e preço, com base no nome do jogo.",
		params: []param{{
			name: "game_name", typ: typeString, required: true,
			description: "O nome do jogo a ser pesquisado. Ex: 'Half-Life 2'",
		}},
		build: func(a map[string]any) Intent { return GetGameDetails{GameName: str(a, "game_name")} },
	},
	{
		name:        NameGetFamilySharing,
		description: "Exibe a lista de jogos da família que podem ser compartilhados pelo Compartilhamento em Família, com o número de cópias de cada um.",
		build:       func(map[string]any) Intent { return GetFamilySharingGames{} },
	},
	{
		name:        NameGetCopiesReport,
		description: "Cria um relatório que conta quantas cópias de cada jogo existem na família, dos mais populares para os menos.",
		build:       func(map[string]any) Intent { return GetCopiesReport{} },
	},
	{
		name:        NameStartCampaign,
		aliases:     []string{"start_campaign"},
		description: "Inicia uma nova vaquinha para comprar um jogo para a família.",
		params: []param{{
			name: "game_name", typ: typeString, required: true,
			description: "O nome exato do jogo para o qual a vaquinha será criada.",
		}},
		build: func(a map[string]any) Intent { return StartCampaign{GameName: str(a, "game_name")} },
	},
	{
		name:        NameContribute,
		aliases:     []string{"contribute"},
		description: "Adiciona uma contribuição em dinheiro à ÚNICA vaquinha ativa.",
		params: []param{{
			name: "amount", typ: typeNumber, required: true,
			description: "O valor em dinheiro a ser contribuído. Ex: 10.50",
		}},
		build: func(a map[string]any) Intent { return Contribute{Amount: num(a, "amount")} },
	},
	{
		name:        NameGetCampaignStatus,
		aliases:     []string{"get_status"},
		description: "Verifica o status da vaquinha atualmente ativa, mostrando o total arrecadado e quem já contribuiu.",
		build:       func(map[string]any) Intent { return GetCampaignStatus{} },
	},
	{
		name:        NameCancelCampaign,
		aliases:     []string{"cancel"},
		description: "Cancela a vaquinha de jogo que está ativa no momento. Só quem iniciou pode cancelar.",
		build:       func(map[string]any) Intent { return CancelCampaign{} },
	},
	{
		name:        NameGetGiveaways,
		description: "Lista jogos e itens que estão de graça agora (giveaways) em lojas como Steam e Epic Games.",
		params: []param{
			{name: "platform", typ: typeString, description: "Plataforma, ex: 'pc', 'steam', 'epic-games-store', 'gog'. Vários valores separados por ponto."},
			{name: "type", typ: typeString, description: "Tipo de oferta.", enum: []string{"game", "loot", "beta"}},
			{name: "sort_by", typ: typeString, description: "Ordenação.", enum: []string{"date", "value", "popularity"}},
		},
		build: func(a map[string]any) Intent {
			return GetGiveaways{Platform: str(a, "platform"), Type: str(a, "type"), SortBy: str(a, "sort_by")}
		},
	},
}

var byName = func() map[string]*spec {
	m := make(map[string]*spec)
	c := jsonschema.NewCompiler()
	c.Draft = jsonschema.Draft7
	for _, s := range specs {
		raw, err := json.Marshal(s.jsonSchema())
		if err != nil {
			panic(err)
		}
		url := "mem://intents/" + s.name + ".json"
		if err := c.AddResource(url, bytes.NewReader(raw)); err != nil {
			panic(fmt.Sprintf("intent %s schema: %v", s.name, err))
		}
		s.schema = c.MustCompile(url)

		m[s.name] = s
		for _, a := range s.aliases {
			m[a] = s
		}
	}
	return m
}()

// jsonSchema renders the parameter list as a JSON Schema object.
func (s *spec) jsonSchema() map[string]any {
	props := make(map[string]any, len(s.params))
	required := []string{}
	for _, p := range s.params {
		prop := map[string]any{"type": string(p.typ), "description": p.description}
		if len(p.enum) > 0 {
			prop["enum"] = p.enum
		}
		if p.required && p.typ == typeString {
			prop["minLength"] = 1
		}
		props[p.name] = prop
		if p.required {
			required = append(required, p.name)
		}
	}
	schema := map[string]any{"type": "object", "properties": props}
	if len(required) > 0 {
		schema["required"] = required
	}
	return schema
}

// Definition is a tool declaration handed to the model.
type Definition struct {
	Name        string
	Description string
	Parameters  map[string]any
}

// Definitions lists every intent under its canonical name.
func Definitions() []Definition {
	out := make([]Definition, 0, len(specs))
	for _, s := range specs {
		out = append(out, Definition{Name: s.name, Description: s.description, Parameters: s.jsonSchema()})
	}
	return out
}

// Known reports whether name (or an alias) is a recognised intent.
func Known(name string) bool {
	_, ok := byName[strings.TrimSpace(name)]
	return ok
}

// Parse validates args against the schema of intent name and returns the typed intent.
// Numeric strings are accepted for number parameters ("19,90" included) and
// numbers for string parameters.
func Parse(name string, args map[string]any) (Intent, error) {
	name = strings.TrimSpace(name)
	s, ok := byName[name]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownIntent, name)
	}

	coerced := make(map[string]any, len(s.params))
	for _, p := range s.params {
		v, present := args[p.name]
		if !present || v == nil {
			continue
		}
		cv, err := coerce(p, v)
		if err != nil {
			return nil, &ArgumentError{Intent: s.name, Reason: err.Error()}
		}
		if cv == "" && !p.required {
			continue
		}
		coerced[p.name] = cv
	}

	if err := validate(s.schema, coerced); err != nil {
		return nil, &ArgumentError{Intent: s.name, Reason: err.Error()}
	}
	return s.build(coerced), nil
}

func coerce(p param, v any) (any, error) {
	switch p.typ {
	case typeNumber:
		switch t := v.(type) {
		case float64:
			return t, nil
		case int:
			return float64(t), nil
		case int64:
			return float64(t), nil
		case json.Number:
			return t.Float64()
		case string:
			s := strings.TrimSpace(t)
			s = strings.TrimPrefix(strings.TrimPrefix(s, "R$"), " ")
			s = strings.ReplaceAll(s, ",", ".")
			f, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
			if err != nil {
				return nil, fmt.Errorf("%s: %q is not a number", p.name, t)
			}
			return f, nil
		}
	case typeString:
		switch t := v.(type) {
		case string:
			if len(p.enum) > 0 {
				return strings.ToLower(strings.TrimSpace(t)), nil
			}
			return strings.TrimSpace(t), nil
		case float64:
			return strconv.FormatFloat(t, 'f', -1, 64), nil
		case json.Number:
			return t.String(), nil
		case int, int64:
			return fmt.Sprint(t), nil
		}
	}
	return v, nil
}

// validate round-trips through JSON so the validator sees canonical values.
func validate(schema *jsonschema.Schema, args map[string]any) error {
	raw, err := json.Marshal(args)
	if err != nil {
		return err
	}
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	var doc any
	if err := dec.Decode(&doc); err != nil {
		return err
	}
	if err := schema.Validate(doc); err != nil {
		var ve *jsonschema.ValidationError
		if errors.As(err, &ve) {
			return errors.New(leafMessage(ve))
		}
		return err
	}
	return nil
}

// leafMessage picks the most specific causes of a validation failure.
func leafMessage(ve *jsonschema.ValidationError) string {
	var msgs []string
	var walk func(e *jsonschema.ValidationError)
	walk = func(e *jsonschema.ValidationError) {
		if len(e.Causes) == 0 {
			loc := strings.TrimPrefix(e.InstanceLocation, "/")
			if loc != "" {
				msgs = append(msgs, loc+": "+e.Message)
			} else {
				msgs = append(msgs, e.Message)
			}
			return
		}
		for _, c := range e.Causes {
			walk(c)
		}
	}
	walk(ve)
	sort.Strings(msgs)
	return strings.Join(msgs, "; ")
}

func str(a map[string]any, key string) string {
	s, _ := a[key].(string)
	return s
}

func num(a map[string]any, key string) float64 {
	f, _ := a[key].(float64)
	return f
}
