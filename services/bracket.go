package services

import (
	"math/rand"
	"sort"

	"argufight-arena/models"
)

// bracketRounds is ceil(log2(n)) with a floor of one round.
func bracketRounds(n int) int {
	rounds := 0
	for size := 1; size < n; size <<= 1 {
		rounds++
	}
	if rounds == 0 {
		return 1
	}
	return rounds
}

func nextPowerOfTwo(n int) int {
	size := 1
	for size < n {
		size <<= 1
	}
	return size
}

// seedOrder lists 1-based seeds in bracket slot order so that seed 1 and seed 2
// can only meet in the final: 8 -> 1,8,4,5,2,7,3,6.
func seedOrder(size int) []int {
	order := []int{1}
	for n := 2; n <= size; n <<= 1 {
		next := make([]int, 0, n)
		for _, s := range order {
			next = append(next, s, n+1-s)
		}
		order = next
	}
	return order
}

// bracketSlot is one pairing. A nil side is a bye.
type bracketSlot struct {
	first  *models.TournamentParticipant
	second *models.TournamentParticipant
}

func (b bracketSlot) isBye() bool {
	return b.first == nil || b.second == nil
}

// advancing returns the participant who moves on without a debate.
func (b bracketSlot) advancing() *models.TournamentParticipant {
	if b.first != nil {
		return b.first
	}
	return b.second
}

// pairSeeded places participants (already ordered, best first) into a bracket of
// the next power-of-two size. Missing seeds become byes for the top seeds.
func pairSeeded(ranked []*models.TournamentParticipant) []bracketSlot {
	size := nextPowerOfTwo(len(ranked))
	if size < 2 {
		size = 2
	}
	order := seedOrder(size)

	at := func(seed int) *models.TournamentParticipant {
		if seed > len(ranked) {
			return nil
		}
		return ranked[seed-1]
	}

	slots := make([]bracketSlot, 0, size/2)
	for i := 0; i < len(order); i += 2 {
		slots = append(slots, bracketSlot{first: at(order[i]), second: at(order[i+1])})
	}
	return slots
}

// pairByPosition keeps the bracket shape: winners of slots 2k and 2k+1 meet.
func pairByPosition(winners []*models.TournamentParticipant) []bracketSlot {
	slots := make([]bracketSlot, 0, (len(winners)+1)/2)
	for i := 0; i < len(winners); i += 2 {
		slot := bracketSlot{first: winners[i]}
		if i+1 < len(winners) {
			slot.second = winners[i+1]
		}
		slots = append(slots, slot)
	}
	return slots
}

// rankParticipants orders participants best first. ELO_BASED uses ratings
// (user id to current rating) and falls back to the registration snapshot for
// users missing from it. Ties always fall back to the registration seed so the
// result is stable.
func rankParticipants(ps []*models.TournamentParticipant, method models.ReseedMethod, ratings map[string]int, rng *rand.Rand) []*models.TournamentParticipant {
	out := make([]*models.TournamentParticipant, len(ps))
	copy(out, ps)
	sort.SliceStable(out, func(i, j int) bool { return out[i].Seed < out[j].Seed })

	switch method {
	case models.ReseedEloBased:
		sort.SliceStable(out, func(i, j int) bool {
			return ratingOf(out[i], ratings) > ratingOf(out[j], ratings)
		})
	case models.ReseedTournamentWins:
		sort.SliceStable(out, func(i, j int) bool {
			if out[i].Wins != out[j].Wins {
				return out[i].Wins > out[j].Wins
			}
			return out[i].CumulativeScore > out[j].CumulativeScore
		})
	case models.ReseedRandom:
		if rng == nil {
			rng = rand.New(rand.NewSource(rand.Int63()))
		}
		rng.Shuffle(len(out), func(i, j int) { out[i], out[j] = out[j], out[i] })
	}
	return out
}

func ratingOf(p *models.TournamentParticipant, ratings map[string]int) int {
	if r, ok := ratings[p.UserID]; ok {
		return r
	}
	return p.EloAtRegistration
}

type prizePayout struct {
	UserID string
	Amount int64
}

// splitPrizePool pays each placement tier its percentage of the pool, split evenly
// inside the tier. tiers[0] is the winner. Rounding leftovers and the shares of
// empty tiers go to the winner.
func splitPrizePool(pool int64, distribution []int64, tiers [][]string) []prizePayout {
	if pool <= 0 || len(tiers) == 0 || len(tiers[0]) == 0 {
		return nil
	}
	winner := tiers[0][0]
	amounts := map[string]int64{}
	order := []string{winner}
	var paid int64

	for tier, pct := range distribution {
		if tier == 0 || tier >= len(tiers) || len(tiers[tier]) == 0 {
			continue
		}
		share := pool * pct / 100 / int64(len(tiers[tier]))
		if share <= 0 {
			continue
		}
		for _, userID := range tiers[tier] {
			if _, seen := amounts[userID]; !seen {
				order = append(order, userID)
			}
			amounts[userID] += share
			paid += share
		}
	}
	amounts[winner] += pool - paid

	out := make([]prizePayout, 0, len(order))
	for _, userID := range order {
		if amounts[userID] > 0 {
			out = append(out, prizePayout{UserID: userID, Amount: amounts[userID]})
		}
	}
	return out
}

// placementTier maps an elimination round to a prize tier: the final's loser is
// tier 1, semi-final losers tier 2 and so on.
func placementTier(totalRounds, eliminationRound int) int {
	tier := totalRounds - eliminationRound + 1
	if tier < 1 {
		return 1
	}
	return tier
}
