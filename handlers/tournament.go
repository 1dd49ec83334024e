package handlers

import (
	"time"

	"argufight-arena/middleware"
	"argufight-arena/models"
	"argufight-arena/services"

	"github.com/gofiber/fiber/v2"
)

type TournamentHandler struct {
	Tournaments *services.TournamentService
}

type createTournamentRequest struct {
	Name                 string     `json:"name" validate:"required,max=120"`
	Description          string     `json:"description" validate:"max=2000"`
	Format               string     `json:"format" validate:"omitempty,oneof=BRACKET CHAMPIONSHIP KING_OF_THE_HILL"`
	MaxParticipants      int        `json:"max_participants" validate:"required,gte=2"`
	MinElo               int        `json:"min_elo" validate:"gte=0"`
	EntryFee             int64      `json:"entry_fee" validate:"gte=0"`
	PrizeDistribution    []int64    `json:"prize_distribution" validate:"omitempty,dive,gte=0,lte=100"`
	ReseedMethod         string     `json:"reseed_method" validate:"omitempty,oneof=ELO_BASED TOURNAMENT_WINS RANDOM"`
	ReseedAfterRound     bool       `json:"reseed_after_round"`
	Topic                string     `json:"topic" validate:"required,max=500"`
	DebateRounds         int        `json:"debate_rounds" validate:"gte=0"`
	RoundDurationSeconds int64      `json:"round_duration_seconds" validate:"gte=0"`
	RegistrationOpensAt  *time.Time `json:"registration_opens_at"`
	StartsAt             *time.Time `json:"starts_at"`
}

func (h *TournamentHandler) Create(c *fiber.Ctx) error {
	var req createTournamentRequest
	if ok, err := parseBody(c, &req); !ok {
		return err
	}
	t, err := h.Tournaments.CreateTournament(c.UserContext(), services.CreateTournamentParams{
		CreatorID:           userID(c),
		Name:                req.Name,
		Description:         req.Description,
		Format:              models.TournamentFormat(req.Format),
		MaxParticipants:     req.MaxParticipants,
		MinElo:              req.MinElo,
		EntryFee:            req.EntryFee,
		PrizeDistribution:   req.PrizeDistribution,
		ReseedMethod:        models.ReseedMethod(req.ReseedMethod),
		ReseedAfterRound:    req.ReseedAfterRound,
		Topic:               req.Topic,
		DebateRounds:        req.DebateRounds,
		RoundDuration:       time.Duration(req.RoundDurationSeconds) * time.Second,
		RegistrationOpensAt: req.RegistrationOpensAt,
		StartsAt:            req.StartsAt,
	})
	if err != nil {
		return writeError(c, err)
	}
	return c.Status(fiber.StatusCreated).JSON(t)
}

func (h *TournamentHandler) List(c *fiber.Ctx) error {
	list, err := h.Tournaments.List(c.UserContext(), models.TournamentStatus(c.Query("status")))
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(list)
}

func (h *TournamentHandler) Bracket(c *fiber.Ctx) error {
	b, err := h.Tournaments.GetBracket(c.UserContext(), c.Params("id"))
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(b)
}

func (h *TournamentHandler) Register(c *fiber.Ctx) error {
	p, err := h.Tournaments.Register(c.UserContext(), c.Params("id"), userID(c))
	if err != nil {
		return writeError(c, err)
	}
	return c.Status(fiber.StatusCreated).JSON(p)
}

func (h *TournamentHandler) Unregister(c *fiber.Ctx) error {
	if err := h.Tournaments.Unregister(c.UserContext(), c.Params("id"), userID(c)); err != nil {
		return writeError(c, err)
	}
	return c.SendStatus(fiber.StatusNoContent)
}

func (h *TournamentHandler) Start(c *fiber.Ctx) error {
	t, err := h.Tournaments.Start(c.UserContext(), c.Params("id"), userID(c), middleware.HasRole(c, "admin"))
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(t)
}

func (h *TournamentHandler) Cancel(c *fiber.Ctx) error {
	t, err := h.Tournaments.Cancel(c.UserContext(), c.Params("id"), userID(c), middleware.HasRole(c, "admin"))
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(t)
}

func (h *TournamentHandler) OpenRegistration(c *fiber.Ctx) error {
	t, err := h.Tournaments.OpenRegistration(c.UserContext(), c.Params("id"))
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(t)
}
