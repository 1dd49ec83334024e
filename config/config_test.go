package config

import (
	"testing"
	"time"

	"argufight-arena/models"
)

func TestDefaultEconomyIsValid(t *testing.T) {
	if err := DefaultEconomy().Validate(); err != nil {
		t.Fatalf("default economy is invalid: %v", err)
	}
	if got := DefaultEconomy().Belts[models.BeltCategory].PlatformPercent(); got != 10 {
		t.Errorf("platform share = %d, want 10", got)
	}
}

func TestParseEconomyOverridesDefaults(t *testing.T) {
	economy, err := ParseEconomy([]byte(`
elo:
  k_factor: 24
  min_rating: 100
debate:
  default_round_duration: 12h
belts:
  ROOKIE:
    entry_fee: 20
    winner_reward_percent: 70
    loser_consolation_percent: 20
    challenge_expiry: 48h
daily_reward: 25
`))
	if err != nil {
		t.Fatalf("ParseEconomy: %v", err)
	}
	if economy.Elo.KFactor != 24 || economy.DailyReward != 25 {
		t.Errorf("overrides not applied: %+v", economy)
	}
	if economy.Debate.DefaultRoundDuration != 12*time.Hour || economy.Debate.DefaultRounds != 3 {
		t.Errorf("debate = %+v", economy.Debate)
	}
	if rookie := economy.Belts[models.BeltRookie]; rookie.EntryFee != 20 || rookie.ChallengeExpiry != 48*time.Hour {
		t.Errorf("rookie tier = %+v", rookie)
	}
	if champ := economy.Belts[models.BeltChampionship]; champ.EntryFee != 250 {
		t.Errorf("missing tiers should keep defaults, got %+v", champ)
	}
}

func TestParseEconomyRejectsInvalidRules(t *testing.T) {
	tests := []struct {
		name string
		yaml string
	}{
		{"zero k factor", "elo:\n  k_factor: 0\n"},
		{"rounds above max", "debate:\n  default_rounds: 12\n"},
		{"overpaid belt", "belts:\n  ROOKIE:\n    entry_fee: 10\n    winner_reward_percent: 90\n    loser_consolation_percent: 20\n    challenge_expiry: 1h\n"},
		{"unknown belt", "belts:\n  PLATINUM:\n    entry_fee: 10\n    challenge_expiry: 1h\n"},
		{"negative free challenges", "belts:\n  ROOKIE:\n    entry_fee: 10\n    challenge_expiry: 1h\n    free_challenges_per_user: -1\n"},
		{"prize split", "tournaments:\n  max_participants: 16\n  default_prize_distribution: [50, 40]\n"},
		{"malformed", "elo: ["},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := ParseEconomy([]byte(tt.yaml)); err == nil {
				t.Error("expected an error")
			}
		})
	}
}

func TestValidatePrizeDistribution(t *testing.T) {
	if err := ValidatePrizeDistribution([]int64{100}); err != nil {
		t.Errorf("single winner-takes-all split rejected: %v", err)
	}
	for _, bad := range [][]int64{nil, {60, 30}, {110, -10}} {
		if err := ValidatePrizeDistribution(bad); err == nil {
			t.Errorf("%v should be rejected", bad)
		}
	}
}

func TestAllowedOriginsList(t *testing.T) {
	cfg := &Config{AllowedOrigins: " https://a.example ,https://b.example,, "}
	got := cfg.AllowedOriginsList()
	if len(got) != 2 || got[0] != "https://a.example" || got[1] != "https://b.example" {
		t.Errorf("AllowedOriginsList() = %q", got)
	}
}

func TestLoadRequiresDatabaseURL(t *testing.T) {
	t.Setenv("DATABASE_URL", "")
	t.Setenv("GAME_SERVICE_TOKEN", "token")
	if _, err := Load(); err == nil {
		t.Error("expected an error without DATABASE_URL")
	}

	t.Setenv("DATABASE_URL", "postgres://localhost/arena")
	t.Setenv("REDIS_DB", "2")
	t.Setenv("PORT", "")
	t.Setenv("ECONOMY_CONFIG_PATH", "")
	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.RedisDB != 2 || cfg.Port != "5200" || cfg.Economy.DailyReward != 10 {
		t.Errorf("loaded config = %+v", cfg)
	}
}
