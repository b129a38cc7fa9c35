package intents

import (
	"context"
	"errors"
	"fmt"

	"github.com/steamfamilyzap/kgbot/internal/store"
	"github.com/steamfamilyzap/kgbot/internal/vaquinha"
)

const (
	msgNoActiveCampaign = "Não há nenhuma vaquinha ativa no momento."
	msgNothingToCancel  = "Não há nenhuma vaquinha ativa para cancelar."
)

type startPayload struct {
	Success  bool    `json:"success"`
	GameName string  `json:"game_name"`
	Price    float64 `json:"price"`
	Starter  string  `json:"starter"`
}

type contributePayload struct {
	Success        bool    `json:"success"`
	GoalReached    bool    `json:"goal_reached"`
	GameName       string  `json:"game_name"`
	Price          float64 `json:"price"`
	TotalCollected float64 `json:"total_collected"`
	Remaining      float64 `json:"remaining,omitempty"`
	Contributor    string  `json:"contributor,omitempty"`
	Amount         float64 `json:"amount"`
}

type contributionLine struct {
	Nickname string  `json:"nickname"`
	Amount   float64 `json:"amount"`
}

type statusPayload struct {
	GameName        string             `json:"game_name"`
	TargetAmount    float64            `json:"target_amount"`
	AmountCollected float64            `json:"amount_collected"`
	Remaining       float64            `json:"remaining"`
	Starter         string             `json:"starter"`
	Status          string             `json:"status"`
	Contributions   []contributionLine `json:"contributions"`
}

type cancelPayload struct {
	Success  bool   `json:"success"`
	GameName string `json:"game_name"`
}

func money(minor int64) float64 {
	return vaquinha.FromMinor(minor).InexactFloat64()
}

func alreadyActive(intent string, c *store.Campaign) *Result {
	return ErrorResult(intent, CodeAlreadyActive,
		fmt.Sprintf("Já existe uma vaquinha ativa para o jogo \"%s\".", c.GameName))
}

func (d *Dispatcher) startCampaign(ctx context.Context, in StartCampaign, requester *store.Profile) (*Result, error) {
	active, err := d.ledger.Active(ctx)
	switch {
	case err == nil:
		return alreadyActive(in.Name(), active), nil
	case !errors.Is(err, vaquinha.ErrNoActiveCampaign):
		return nil, err
	}

	game, err := d.catalog.FindGame(ctx, in.GameName)
	if err != nil {
		return nil, fmt.Errorf("find game: %w", err)
	}
	if game == nil {
		return gameNotFound(in.Name(), in.GameName), nil
	}
	det, err := d.catalog.GameDetails(ctx, game.AppID)
	if err != nil {
		return nil, fmt.Errorf("game details %d: %w", game.AppID, err)
	}
	if det == nil || det.PriceOverview == nil || det.PriceOverview.Final <= 0 {
		return ErrorResult(in.Name(), CodeNoPrice,
			fmt.Sprintf("Não consegui encontrar o preço para \"%s\".", game.Name)), nil
	}

	c, err := d.ledger.Start(ctx, game, det.PriceOverview.Final, requester)
	if errors.Is(err, store.ErrCampaignActive) {
		if active, aerr := d.ledger.Active(ctx); aerr == nil {
			return alreadyActive(in.Name(), active), nil
		}
		return ErrorResult(in.Name(), CodeAlreadyActive, "Já existe uma vaquinha ativa."), nil
	}
	if err != nil {
		return nil, err
	}

	out := startPayload{
		Success:  true,
		GameName: c.GameName,
		Price:    money(c.TargetMinor),
		Starter:  requester.Nickname,
	}
	return NewResult(in.Name(), out).WithImage(det.HeaderImage), nil
}

func (d *Dispatcher) contribute(ctx context.Context, in Contribute, requester *store.Profile) (*Result, error) {
	minor, err := vaquinha.AmountFromFloat(in.Amount)
	if err != nil {
		return ErrorResult(in.Name(), CodeInvalidAmount,
			fmt.Sprintf("O valor %v não é uma contribuição válida.", in.Amount)), nil
	}

	res, err := d.ledger.Contribute(ctx, requester, minor)
	if errors.Is(err, vaquinha.ErrNoActiveCampaign) {
		return ErrorResult(in.Name(), CodeNoActiveCampaign, msgNoActiveCampaign), nil
	}
	if err != nil {
		return nil, err
	}

	c := res.Campaign
	out := contributePayload{
		Success:        true,
		GoalReached:    res.Completed,
		GameName:       c.GameName,
		Price:          money(c.TargetMinor),
		TotalCollected: money(res.TotalMinor),
		Amount:         money(res.AmountMinor),
	}
	if !res.Completed {
		out.Remaining = money(max(c.TargetMinor-res.TotalMinor, 0))
		out.Contributor = res.Contributor
	}
	return NewResult(in.Name(), out), nil
}

func (d *Dispatcher) campaignStatus(ctx context.Context, in GetCampaignStatus) (*Result, error) {
	c, err := d.ledger.Active(ctx)
	if errors.Is(err, vaquinha.ErrNoActiveCampaign) {
		return ErrorResult(in.Name(), CodeNoActiveCampaign, msgNoActiveCampaign), nil
	}
	if err != nil {
		return nil, err
	}

	out := statusPayload{
		GameName:        c.GameName,
		TargetAmount:    money(c.TargetMinor),
		AmountCollected: money(c.CollectedMinor),
		Remaining:       money(max(c.TargetMinor-c.CollectedMinor, 0)),
		Starter:         c.StarterNickname,
		Status:          string(c.Status),
		Contributions:   make([]contributionLine, 0, len(c.Contributions)),
	}
	for _, ct := range c.Contributions {
		out.Contributions = append(out.Contributions, contributionLine{Nickname: ct.Nickname, Amount: money(ct.AmountMinor)})
	}
	return NewResult(in.Name(), out), nil
}

func (d *Dispatcher) cancelCampaign(ctx context.Context, in CancelCampaign, requester *store.Profile) (*Result, error) {
	c, err := d.ledger.Cancel(ctx, requester)
	if errors.Is(err, vaquinha.ErrNoActiveCampaign) {
		return ErrorResult(in.Name(), CodeNoActiveCampaign, msgNothingToCancel), nil
	}
	var unauth *vaquinha.UnauthorizedError
	if errors.As(err, &unauth) {
		return ErrorResult(in.Name(), CodeUnauthorized,
			fmt.Sprintf("Apenas quem iniciou a vaquinha pode cancelá-la. Peça ao @[%s] para fazer isso.", unauth.StarterNickname)), nil
	}
	if err != nil {
		return nil, err
	}
	return NewResult(in.Name(), cancelPayload{Success: true, GameName: c.GameName}), nil
}
