package config

import "strings"

type keySet map[string]struct{}

func (s keySet) mark(key string) { s[key] = struct{}{} }

func (s keySet) has(key string) bool {
	_, ok := s[strings.ToLower(key)]
	return ok
}

// applyDefaults 只对配置文件里未出现的键补默认值，显式写 0 不会被覆盖。
func (c *Config) applyDefaults(set keySet) {
	if !set.has("log_level") {
		c.LogLevel = "info"
	}
	if !set.has("data_dir") {
		c.DataDir = "data"
	}

	if !set.has("market.provider") {
		c.Market.Provider = "sim"
	}
	if !set.has("market.period") {
		c.Market.Period = "1m"
	}
	if !set.has("market.pull_interval_sec") {
		c.Market.PullIntervalSec = 2
	}
	if !set.has("market.lookback") {
		c.Market.Lookback = 200
	}
	if !set.has("market.sim_base_price") {
		c.Market.SimBasePrice = 100
	}

	if !set.has("strategy.deviation") {
		c.Strategy.Deviation = 0.005
	}
	if !set.has("strategy.min_volume") {
		c.Strategy.MinVolume = 1000
	}
	if !set.has("strategy.band_period") {
		c.Strategy.BandPeriod = 20
	}

	if !set.has("decision.context_bars") {
		c.Decision.ContextBars = 200
	}
	if !set.has("decision.high_low_window") {
		c.Decision.HighLowWindow = 50
	}
	if !set.has("decision.default_position_weight") {
		c.Decision.DefaultPositionWeight = 0.2
	}

	if !set.has("ai.base_url") {
		c.AI.BaseURL = "https://api.deepseek.com/v1"
	}
	if !set.has("ai.model") {
		c.AI.Model = "deepseek-chat"
	}
	if !set.has("ai.timeout_sec") {
		c.AI.TimeoutSec = 90
	}
	if !set.has("ai.max_retries") {
		c.AI.MaxRetries = 2
	}
	if !set.has("ai.temperature") {
		c.AI.Temperature = 0.5
	}
	if !set.has("ai.prompt_dir") {
		c.AI.PromptDir = "configs/prompts"
	}

	if !set.has("fusion.strategy_weight") {
		c.Fusion.StrategyWeight = 0.45
	}
	if !set.has("fusion.ai_weight") {
		c.Fusion.AIWeight = 0.55
	}
	if !set.has("fusion.weight_update_minutes") {
		c.Fusion.WeightUpdateMinutes = 30
	}

	if !set.has("filter.min_confidence") {
		c.Filter.MinConfidence = 60
	}
	if !set.has("filter.min_risk_reward") {
		c.Filter.MinRiskReward = 1.3
	}
	if !set.has("filter.max_position_ratio") {
		c.Filter.MaxPositionRatio = 0.3
	}
	if !set.has("filter.cooldown_minutes") {
		c.Filter.CooldownMinutes = 10
	}
	if !set.has("filter.initial_capital") {
		c.Filter.InitialCapital = 100000
	}
	if !set.has("filter.capital_refresh_minutes") {
		c.Filter.CapitalRefreshMinutes = 5
	}

	if !set.has("journal.check_interval_sec") {
		c.Journal.CheckIntervalSec = 3600
	}
	if !set.has("journal.price_change_threshold") {
		c.Journal.PriceChangeThreshold = 0.01
	}
	if !set.has("journal.max_reflections_per_hour") {
		c.Journal.MaxReflectionsPerHour = 6
	}
	if !set.has("journal.sweep_minutes") {
		c.Journal.SweepMinutes = 5
	}

	if !set.has("execution.enabled") {
		c.Execution.Enabled = true
	}
	if !set.has("execution.broker") {
		c.Execution.Broker = "sim"
	}
	if !set.has("execution.confidence_threshold") {
		c.Execution.ConfidenceThreshold = 60
	}
	if !set.has("execution.order_type") {
		c.Execution.OrderType = "market"
	}
	if !set.has("execution.env") {
		c.Execution.Env = "sim"
	}
}
