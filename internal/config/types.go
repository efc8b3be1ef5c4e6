package config

// Config 顶层配置。标签沿用 toml 名配合 viper 的弱类型解码。
type Config struct {
	Include []string `toml:"include"`

	LogLevel string `toml:"log_level"`
	LogFile  string `toml:"log_file"`
	DataDir  string `toml:"data_dir"`

	Market    MarketConfig    `toml:"market"`
	Strategy  StrategyConfig  `toml:"strategy"`
	Decision  DecisionConfig  `toml:"decision"`
	AI        AIConfig        `toml:"ai"`
	Fusion    FusionConfig    `toml:"fusion"`
	Filter    FilterConfig    `toml:"filter"`
	Journal   JournalConfig   `toml:"journal"`
	Execution ExecutionConfig `toml:"execution"`
	Notify    NotifyConfig    `toml:"notify"`
	Store     StoreConfig     `toml:"store"`
}

// MarketConfig 行情源与拉取节奏。
type MarketConfig struct {
	Provider        string   `toml:"provider"` // sim | binance
	Symbols         []string `toml:"symbols"`
	Period          string   `toml:"period"`
	PullIntervalSec int      `toml:"pull_interval_sec"`
	Lookback        int      `toml:"lookback"`
	APIKey          string   `toml:"api_key"`
	APISecret       string   `toml:"api_secret"`
	SimBasePrice    float64  `toml:"sim_base_price"`
}

// StrategyConfig 内置 VWAP 回归策略参数。
type StrategyConfig struct {
	Deviation  float64 `toml:"deviation"`
	MinVolume  float64 `toml:"min_volume"`
	BandPeriod int     `toml:"band_period"`
}

// DecisionConfig 决策引擎参数。
type DecisionConfig struct {
	ContextBars           int     `toml:"context_bars"`
	HighLowWindow         int     `toml:"high_low_window"`
	DefaultPositionWeight float64 `toml:"default_position_weight"`
}

// AIConfig 模型网关与提示词。
type AIConfig struct {
	BaseURL     string  `toml:"base_url"`
	APIKey      string  `toml:"api_key"`
	Model       string  `toml:"model"`
	TimeoutSec  int     `toml:"timeout_sec"`
	MaxRetries  int     `toml:"max_retries"`
	Temperature float64 `toml:"temperature"`
	PromptDir   string  `toml:"prompt_dir"`
	RawDumpFile string  `toml:"raw_dump_file"`
	RawDump     bool    `toml:"raw_dump"`
}

// FusionConfig 融合引擎权重与表现文件。
type FusionConfig struct {
	StrategyWeight      float64 `toml:"strategy_weight"`
	AIWeight            float64 `toml:"ai_weight"`
	PerformanceFile     string  `toml:"performance_file"`
	WeightUpdateMinutes int     `toml:"weight_update_minutes"`
}

// FilterConfig 信号过滤门槛。
type FilterConfig struct {
	MinConfidence    float64 `toml:"min_confidence"`
	MinRiskReward    float64 `toml:"min_risk_reward"`
	MaxPositionRatio float64 `toml:"max_position_ratio"`
	CooldownMinutes  int     `toml:"cooldown_minutes"`
	InitialCapital   float64 `toml:"initial_capital"`
	// 资金快照刷新间隔
	CapitalRefreshMinutes int `toml:"capital_refresh_minutes"`
}

// JournalConfig 交易日志与复盘节奏。
type JournalConfig struct {
	Path                  string  `toml:"path"`
	CheckIntervalSec      int     `toml:"check_interval_sec"`
	PriceChangeThreshold  float64 `toml:"price_change_threshold"`
	MaxReflectionsPerHour int     `toml:"max_reflections_per_hour"`
	SweepMinutes          int     `toml:"sweep_minutes"`
}

// ExecutionConfig 执行闸门。
type ExecutionConfig struct {
	Enabled             bool    `toml:"enabled"`
	Broker              string  `toml:"broker"` // sim
	ConfidenceThreshold float64 `toml:"confidence_threshold"`
	OrderType           string  `toml:"order_type"`
	Env                 string  `toml:"env"`
}

// NotifyConfig 推送渠道。
type NotifyConfig struct {
	TelegramBotToken string `toml:"telegram_bot_token"`
	TelegramChatID   string `toml:"telegram_chat_id"`
}

// StoreConfig 持久化路径。
type StoreConfig struct {
	ConflictDB string `toml:"conflict_db"`
	OrdersDB   string `toml:"orders_db"`
}
