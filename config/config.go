package config

import (
	"fmt"
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"argufight-arena/models"
)

// Config is the process configuration: connection settings from the environment
// plus the economy rules from an optional YAML file.
type Config struct {
	Port           string
	DatabaseURL    string
	ServiceToken   string
	AllowedOrigins string

	RedisAddr     string
	RedisPassword string
	RedisDB       int
	EventStream   string

	SyncServiceURL    string
	PaymentServiceURL string

	R2AccountID    string
	R2AccessKey    string
	R2AccessSecret string
	R2Bucket       string

	PlatformAccountID string

	Economy Economy
}

// Economy holds every tunable rule of the competition economy.
type Economy struct {
	Elo         EloConfig                          `yaml:"elo"`
	Debate      DebateConfig                       `yaml:"debate"`
	Belts       map[models.BeltType]BeltTierConfig `yaml:"belts"`
	Tournaments TournamentConfig                   `yaml:"tournaments"`
	DailyReward int64                              `yaml:"daily_reward"`

	// MonthlyAppeals only applies when Redis backs the appeal quota.
	MonthlyAppeals int `yaml:"monthly_appeals"`
}

type EloConfig struct {
	KFactor   int `yaml:"k_factor"`
	MinRating int `yaml:"min_rating"`
}

type DebateConfig struct {
	DefaultRounds        int           `yaml:"default_rounds"`
	MaxRounds            int           `yaml:"max_rounds"`
	DefaultRoundDuration time.Duration `yaml:"default_round_duration"`
}

// BeltTierConfig is the per-belt-type challenge economy. FreeChallengesPerUser
// fee-free challenges are granted to every user on each belt type.
type BeltTierConfig struct {
	EntryFee                int64         `yaml:"entry_fee"`
	WinnerRewardPercent     int64         `yaml:"winner_reward_percent"`
	LoserConsolationPercent int64         `yaml:"loser_consolation_percent"`
	ChallengeExpiry         time.Duration `yaml:"challenge_expiry"`
	FreeChallengesPerUser   int           `yaml:"free_challenges_per_user"`
}

// PlatformPercent is whatever the winner and loser shares leave over.
func (b BeltTierConfig) PlatformPercent() int64 {
	return 100 - b.WinnerRewardPercent - b.LoserConsolationPercent
}

type TournamentConfig struct {
	MaxParticipants          int     `yaml:"max_participants"`
	DefaultPrizeDistribution []int64 `yaml:"default_prize_distribution"`
}

// DefaultEconomy is used when no economy file is configured and fills gaps in one that is.
func DefaultEconomy() Economy {
	tier := func(fee int64, free int) BeltTierConfig {
		return BeltTierConfig{
			EntryFee:                fee,
			WinnerRewardPercent:     80,
			LoserConsolationPercent: 10,
			ChallengeExpiry:         72 * time.Hour,
			FreeChallengesPerUser:   free,
		}
	}
	return Economy{
		Elo: EloConfig{KFactor: 32, MinRating: 100},
		Debate: DebateConfig{
			DefaultRounds:        3,
			MaxRounds:            10,
			DefaultRoundDuration: 24 * time.Hour,
		},
		Belts: map[models.BeltType]BeltTierConfig{
			models.BeltRookie:       tier(50, 1),
			models.BeltCategory:     tier(100, 1),
			models.BeltChampionship: tier(250, 0),
			models.BeltUndefeated:   tier(500, 0),
			models.BeltTournament:   tier(250, 0),
		},
		Tournaments: TournamentConfig{
			MaxParticipants:          64,
			DefaultPrizeDistribution: []int64{60, 30, 10},
		},
		DailyReward:    10,
		MonthlyAppeals: 3,
	}
}

// Load reads .env (if present), the environment and the economy file at ECONOMY_CONFIG_PATH.
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil {
		log.Println("⚠️  No .env file found, reading environment variables directly")
	}

	cfg := &Config{
		Port:              getEnv("PORT", "5200"),
		DatabaseURL:       os.Getenv("DATABASE_URL"),
		ServiceToken:      os.Getenv("GAME_SERVICE_TOKEN"),
		AllowedOrigins:    getEnv("ALLOWED_ORIGINS", "http://localhost:3000"),
		RedisAddr:         os.Getenv("REDIS_ADDR"),
		RedisPassword:     os.Getenv("REDIS_PASSWORD"),
		EventStream:       getEnv("EVENT_STREAM", "argufight:events"),
		SyncServiceURL:    os.Getenv("SYNC_SERVICE_URL"),
		PaymentServiceURL: os.Getenv("PAYMENT_SERVICE_URL"),
		R2AccountID:       os.Getenv("CLOUDFLARE_ACCOUNT_ID"),
		R2AccessKey:       os.Getenv("R2_ACCESS_KEY_ID"),
		R2AccessSecret:    os.Getenv("R2_ACCESS_KEY_SECRET"),
		R2Bucket:          os.Getenv("R2_BUCKET_NAME"),
		PlatformAccountID: getEnv("PLATFORM_ACCOUNT_ID", "00000000-0000-0000-0000-000000000001"),
		Economy:           DefaultEconomy(),
	}

	if v := os.Getenv("REDIS_DB"); v != "" {
		db, err := strconv.Atoi(v)
		if err != nil {
			return nil, fmt.Errorf("invalid REDIS_DB %q: %w", v, err)
		}
		cfg.RedisDB = db
	}

	if cfg.DatabaseURL == "" {
		return nil, fmt.Errorf("DATABASE_URL environment variable not set")
	}
	if cfg.ServiceToken == "" {
		return nil, fmt.Errorf("GAME_SERVICE_TOKEN environment variable not set")
	}

	if path := os.Getenv("ECONOMY_CONFIG_PATH"); path != "" {
		economy, err := LoadEconomy(path)
		if err != nil {
			return nil, err
		}
		cfg.Economy = economy
	}

	return cfg, nil
}

// LoadEconomy reads a YAML economy file on top of DefaultEconomy and validates it.
func LoadEconomy(path string) (Economy, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Economy{}, fmt.Errorf("failed to read economy file: %w", err)
	}
	return ParseEconomy(data)
}

func ParseEconomy(data []byte) (Economy, error) {
	economy := DefaultEconomy()
	defaults := economy.Belts
	economy.Belts = nil
	if err := yaml.Unmarshal(data, &economy); err != nil {
		return Economy{}, fmt.Errorf("failed to unmarshal economy yaml: %w", err)
	}
	if economy.Belts == nil {
		economy.Belts = defaults
	}
	for t, d := range defaults {
		if _, ok := economy.Belts[t]; !ok {
			economy.Belts[t] = d
		}
	}
	if err := economy.Validate(); err != nil {
		return Economy{}, err
	}
	return economy, nil
}

// Validate checks the invariants the services rely on.
func (e Economy) Validate() error {
	if e.Elo.KFactor <= 0 {
		return fmt.Errorf("elo.k_factor must be positive")
	}
	if e.Debate.DefaultRounds < 1 || e.Debate.MaxRounds < e.Debate.DefaultRounds {
		return fmt.Errorf("debate rounds: default %d must be within 1..max %d", e.Debate.DefaultRounds, e.Debate.MaxRounds)
	}
	if e.Debate.DefaultRoundDuration <= 0 {
		return fmt.Errorf("debate.default_round_duration must be positive")
	}
	for t, b := range e.Belts {
		if !t.Valid() {
			return fmt.Errorf("unknown belt type %q", t)
		}
		if b.EntryFee < 0 {
			return fmt.Errorf("belts.%s.entry_fee must not be negative", t)
		}
		if b.WinnerRewardPercent < 0 || b.LoserConsolationPercent < 0 || b.PlatformPercent() < 0 {
			return fmt.Errorf("belts.%s: reward percentages must be non-negative and sum to at most 100", t)
		}
		if b.ChallengeExpiry <= 0 {
			return fmt.Errorf("belts.%s.challenge_expiry must be positive", t)
		}
		if b.FreeChallengesPerUser < 0 {
			return fmt.Errorf("belts.%s.free_challenges_per_user must not be negative", t)
		}
	}
	if e.Tournaments.MaxParticipants < 2 {
		return fmt.Errorf("tournaments.max_participants must be at least 2")
	}
	if err := ValidatePrizeDistribution(e.Tournaments.DefaultPrizeDistribution); err != nil {
		return fmt.Errorf("tournaments.default_prize_distribution: %w", err)
	}
	if e.DailyReward < 0 {
		return fmt.Errorf("daily_reward must not be negative")
	}
	if e.MonthlyAppeals < 0 {
		return fmt.Errorf("monthly_appeals must not be negative")
	}
	return nil
}

// ValidatePrizeDistribution requires a non-empty list of non-negative percentages summing to 100.
func ValidatePrizeDistribution(dist []int64) error {
	if len(dist) == 0 {
		return fmt.Errorf("must list at least one placement")
	}
	var sum int64
	for _, p := range dist {
		if p < 0 {
			return fmt.Errorf("percentages must not be negative")
		}
		sum += p
	}
	if sum != 100 {
		return fmt.Errorf("percentages must sum to 100, got %d", sum)
	}
	return nil
}

// AllowedOriginsList splits the comma separated origin list.
func (c *Config) AllowedOriginsList() []string {
	var out []string
	for _, origin := range strings.Split(c.AllowedOrigins, ",") {
		if origin = strings.TrimSpace(origin); origin != "" {
			out = append(out, origin)
		}
	}
	return out
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
