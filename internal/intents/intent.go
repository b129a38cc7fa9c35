// Package intents turns a model-issued function call into a typed intent
// and executes it against the ledger, the directory and the catalog.
package intents

// Canonical intent (tool) names exposed to the model.
const (
	NameGetProfile        = "get_steam_profile"
	NameGetOwnedGames     = "get_owned_games"
	NameGetRecentGames    = "get_recent_games"
	NameGetGameDetails    = "get_game_details"
	NameGetFamilySharing  = "get_family_sharing_games"
	NameGetCopiesReport   = "get_game_copies_report"
	NameStartCampaign     = "start_vaquinha"
	NameContribute        = "contribute_to_vaquinha"
	NameGetCampaignStatus = "get_vaquinha_status"
	NameCancelCampaign    = "cancel_vaquinha"
	NameGetGiveaways      = "get_giveaways"
)

// Intent is the closed set of operations the dispatcher understands.
type Intent interface {
	Name() string
	intent()
}

type GetProfile struct{ Identifier string }
type GetOwnedGames struct{ Identifier string }
type GetRecentGames struct{ Identifier string }
type GetGameDetails struct{ GameName string }
type GetFamilySharingGames struct{}
type GetCopiesReport struct{}
type StartCampaign struct{ GameName string }

// Contribute carries the amount as the model sent it; the ledger decides
// whether it is acceptable.
type Contribute struct{ Amount float64 }

type GetCampaignStatus struct{}
type CancelCampaign struct{}

type GetGiveaways struct {
	Platform string
	Type     string
	SortBy   string
}

func (GetProfile) Name() string            { return NameGetProfile }
func (GetOwnedGames) Name() string         { return NameGetOwnedGames }
func (GetRecentGames) Name() string        { return NameGetRecentGames }
func (GetGameDetails) Name() string        { return NameGetGameDetails }
func (GetFamilySharingGames) Name() string { return NameGetFamilySharing }
func (GetCopiesReport) Name() string       { return NameGetCopiesReport }
func (StartCampaign) Name() string         { return NameStartCampaign }
func (Contribute) Name() string            { return NameContribute }
func (GetCampaignStatus) Name() string     { return NameGetCampaignStatus }
func (CancelCampaign) Name() string        { return NameCancelCampaign }
func (GetGiveaways) Name() string          { return NameGetGiveaways }

func (GetProfile) intent()            {}
func (GetOwnedGames) intent()         {}
func (GetRecentGames) intent()        {}
func (GetGameDetails) intent()        {}
func (GetFamilySharingGames) intent() {}
func (GetCopiesReport) intent()       {}
func (StartCampaign) intent()         {}
func (Contribute) intent()            {}
func (GetCampaignStatus) intent()     {}
func (CancelCampaign) intent()        {}
func (GetGiveaways) intent()          {}
