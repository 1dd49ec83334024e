package handlers

import (
	"strconv"
	"strings"
	"time"

	"argufight-arena/models"
	"argufight-arena/services"

	"github.com/gofiber/fiber/v2"
)

type LedgerHandler struct {
	Ledger     *services.LedgerService
	Reconciler *services.Reconciler
}

func (h *LedgerHandler) Balance(c *fiber.Ctx) error {
	balance, err := h.Ledger.GetBalance(c.UserContext(), userID(c))
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(fiber.Map{"user_id": userID(c), "coins": balance})
}

// Transactions accepts ?cursor=&limit=&type=A,B&since=&until= (RFC3339).
func (h *LedgerHandler) Transactions(c *fiber.Ctx) error {
	filter := services.TransactionFilter{Limit: queryInt(c, "limit", 0)}
	if v := c.Query("cursor"); v != "" {
		cursor, err := strconv.ParseInt(v, 10, 64)
		if err != nil || cursor < 0 {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid cursor"})
		}
		filter.Cursor = cursor
	}
	for _, t := range strings.Split(c.Query("type"), ",") {
		if t = strings.TrimSpace(t); t != "" {
			filter.Types = append(filter.Types, models.CoinTransactionType(t))
		}
	}
	for key, dst := range map[string]**time.Time{"since": &filter.Since, "until": &filter.Until} {
		if v := c.Query(key); v != "" {
			ts, err := time.Parse(time.RFC3339, v)
			if err != nil {
				return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid " + key + " (use RFC3339)"})
			}
			*dst = &ts
		}
	}

	page, err := h.Ledger.ListTransactions(c.UserContext(), userID(c), filter)
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(page)
}

func (h *LedgerHandler) ClaimDailyReward(c *fiber.Ctx) error {
	entry, err := h.Ledger.ClaimDailyReward(c.UserContext(), userID(c))
	if err != nil {
		return writeError(c, err)
	}
	return c.Status(fiber.StatusCreated).JSON(entry)
}

type adjustRequest struct {
	UserID string `json:"user_id" validate:"required,uuid"`
	Amount int64  `json:"amount" validate:"required"`
	Reason string `json:"reason" validate:"required,max=500"`
}

func (h *LedgerHandler) AdminAdjust(c *fiber.Ctx) error {
	var req adjustRequest
	if ok, err := parseBody(c, &req); !ok {
		return err
	}
	entry, err := h.Ledger.AdminAdjust(c.UserContext(), userID(c), req.UserID, req.Amount, req.Reason)
	if err != nil {
		return writeError(c, err)
	}
	return c.Status(fiber.StatusCreated).JSON(entry)
}

func (h *LedgerHandler) Reconcile(c *fiber.Ctx) error {
	check, err := h.Reconciler.Reconcile(c.UserContext(), c.Params("user_id"))
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(fiber.Map{"check": check, "consistent": check.Consistent()})
}
