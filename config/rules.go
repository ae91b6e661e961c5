package config

import (
	"fmt"
	"os"
	"sync"

	"gopkg.in/yaml.v3"

	"newstrader/internal/exitengine"
)

// SkipRules gate events out of consideration before entry checks run.
type SkipRules struct {
	Spike1mGtPct       float64  `yaml:"spike01_gt_pct"`
	DisallowSessions   []string `yaml:"disallow_session"`
	DisallowCategories []string `yaml:"disallow_categories"`
	MinReliability     float64  `yaml:"min_reliability"`
}

// EntryRules are the conditions an event/market pair must satisfy to enter.
type EntryRules struct {
	MinSentiment      float64  `yaml:"min_sentiment"`
	MinImpact         float64  `yaml:"min_impact"`
	DP5mMinPct        float64  `yaml:"dp5m_min_pct"`
	DP5mMaxPct        float64  `yaml:"dp5m_max_pct"`
	MinVolRatio       float64  `yaml:"min_vol_ratio"`
	MaxSpreadBP       int      `yaml:"max_spread_bp"`
	MaxRSI3           float64  `yaml:"max_rsi3"`
	AllowedCategories []string `yaml:"allowed_categories"`
}

// RiskRules bound position sizing and portfolio exposure.
type RiskRules struct {
	MaxDailyLossPct        float64 `yaml:"max_daily_loss_pct"`
	MaxConcurrentPositions int     `yaml:"max_concurrent_positions"`
	MaxSectorExposurePct   float64 `yaml:"max_sector_exposure_pct"`
	MinStopBP              int     `yaml:"min_stop_bp"`
	PerTradeRiskPct        float64 `yaml:"per_trade_risk_pct"`
	MaxPositionSizePct     float64 `yaml:"max_position_size_pct"`
	MinPositionSizeUSD     float64 `yaml:"min_position_size_usd"`
	MaxPositionSizeUSD     float64 `yaml:"max_position_size_usd"`
	TrailTakeProfitBP      int     `yaml:"trail_take_profit_bp"`
}

// ExecutionRules shape how orders are priced and policed.
type ExecutionRules struct {
	MaxSlippageBP int     `yaml:"max_slippage_bp"`
	LimitOffsetBP int     `yaml:"limit_offset_bp"`
	TickSize      float64 `yaml:"tick_size"`
}

// ExitRules drive the position exit engine.
type ExitRules struct {
	HardStopPct        float64 `yaml:"hard_stop_pct"`
	TakeProfitLvl1Pct  float64 `yaml:"take_profit_lvl1_pct"`
	TakeProfitLvl1Part float64 `yaml:"take_profit_lvl1_part"`
	TrailingStopPct    float64 `yaml:"trailing_stop_pct"`
	HoldMinutes        int     `yaml:"hold_minutes"`
}

// Rules is the full trading rule set loaded from YAML.
type Rules struct {
	Skip      SkipRules      `yaml:"skip"`
	Entry     EntryRules     `yaml:"entry"`
	Risk      RiskRules      `yaml:"risk"`
	Execution ExecutionRules `yaml:"execution"`
	Exit      ExitRules      `yaml:"exit"`
}

// DefaultRules returns the rule set used when a section or field is absent
// from the YAML file.
func DefaultRules() Rules {
	return Rules{
		Skip: SkipRules{
			Spike1mGtPct:   5.0,
			MinReliability: 0.60,
		},
		Entry: EntryRules{
			MinSentiment: 0.70,
			MinImpact:    0.70,
			DP5mMinPct:   1.0,
			DP5mMaxPct:   4.0,
			MinVolRatio:  3.0,
			MaxSpreadBP:  50,
			MaxRSI3:      75.0,
		},
		Risk: RiskRules{
			MaxDailyLossPct:        0.02,
			MaxConcurrentPositions: 3,
			MaxSectorExposurePct:   0.3,
			MinStopBP:              150,
			PerTradeRiskPct:        0.004,
			MaxPositionSizePct:     0.15,
			MinPositionSizeUSD:     100.0,
			MaxPositionSizeUSD:     15000.0,
			TrailTakeProfitBP:      250,
		},
		Execution: ExecutionRules{
			MaxSlippageBP: 40,
			LimitOffsetBP: 10,
			TickSize:      0.01,
		},
		Exit: ExitRules{
			HardStopPct:        4.0,
			TakeProfitLvl1Pct:  8.0,
			TakeProfitLvl1Part: 0.4,
			TrailingStopPct:    5.0,
			HoldMinutes:        60,
		},
	}
}

// ExitEngineRules converts the YAML exit section into engine thresholds.
func (r *Rules) ExitEngineRules() exitengine.Rules {
	return exitengine.Rules{
		HardStopPct:        r.Exit.HardStopPct,
		Level1ProfitPct:    r.Exit.TakeProfitLvl1Pct,
		Level1SellFraction: r.Exit.TakeProfitLvl1Part,
		TrailingStopPct:    r.Exit.TrailingStopPct,
		MaxHoldMinutes:     r.Exit.HoldMinutes,
	}
}

// RulesStore loads the rule set from a YAML file and hands out consistent
// snapshots. Reload swaps the whole set atomically so a cycle that already
// took a snapshot keeps evaluating against it.
type RulesStore struct {
	path string

	mu    sync.RWMutex
	rules Rules
}

// NewRulesStore reads the rules file at path. A missing file is an error;
// missing fields fall back to defaults.
func NewRulesStore(path string) (*RulesStore, error) {
	s := &RulesStore{path: path}
	if err := s.Reload(); err != nil {
		return nil, err
	}
	return s, nil
}

// Reload re-reads the rules file, replacing the current set on success and
// keeping it on failure.
func (s *RulesStore) Reload() error {
	data, err := os.ReadFile(s.path)
	if err != nil {
		return fmt.Errorf("failed to read rules file %s: %w", s.path, err)
	}

	rules := DefaultRules()
	if err := yaml.Unmarshal(data, &rules); err != nil {
		return fmt.Errorf("failed to parse rules file %s: %w", s.path, err)
	}
	if err := validateRules(&rules); err != nil {
		return fmt.Errorf("invalid rules file %s: %w", s.path, err)
	}

	s.mu.Lock()
	s.rules = rules
	s.mu.Unlock()
	return nil
}

// Snapshot returns a copy of the current rule set.
func (s *RulesStore) Snapshot() Rules {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.rules
}

func validateRules(r *Rules) error {
	if r.Exit.HardStopPct <= 0 {
		return fmt.Errorf("exit.hard_stop_pct must be positive")
	}
	if r.Exit.TakeProfitLvl1Part < 0 || r.Exit.TakeProfitLvl1Part > 1 {
		return fmt.Errorf("exit.take_profit_lvl1_part must be between 0 and 1")
	}
	if r.Exit.TrailingStopPct <= 0 || r.Exit.TrailingStopPct >= 100 {
		return fmt.Errorf("exit.trailing_stop_pct must be between 0 and 100")
	}
	if r.Exit.HoldMinutes <= 0 {
		return fmt.Errorf("exit.hold_minutes must be positive")
	}
	if r.Risk.PerTradeRiskPct <= 0 {
		return fmt.Errorf("risk.per_trade_risk_pct must be positive")
	}
	if r.Entry.DP5mMinPct > r.Entry.DP5mMaxPct {
		return fmt.Errorf("entry.dp5m_min_pct must not exceed entry.dp5m_max_pct")
	}
	if r.Execution.TickSize <= 0 {
		return fmt.Errorf("execution.tick_size must be positive")
	}
	return nil
}
