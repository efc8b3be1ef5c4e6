package config

import "fmt"

// validate 启动期快速失败：配置错误不进入流水线。
func validate(c *Config) error {
	if len(c.Market.Symbols) == 0 {
		return fmt.Errorf("market.symbols 未配置任何标的")
	}
	switch c.Market.Provider {
	case "sim", "binance":
	default:
		return fmt.Errorf("market.provider 不支持: %s", c.Market.Provider)
	}
	if c.Fusion.StrategyWeight < 0 || c.Fusion.AIWeight < 0 {
		return fmt.Errorf("fusion 权重不能为负")
	}
	if c.Fusion.StrategyWeight+c.Fusion.AIWeight <= 0 {
		return fmt.Errorf("fusion 权重之和必须为正")
	}
	if c.Filter.MaxPositionRatio <= 0 || c.Filter.MaxPositionRatio > 1 {
		return fmt.Errorf("filter.max_position_ratio 必须在 (0,1] 内")
	}
	if c.Execution.Enabled && c.Execution.Broker != "sim" {
		return fmt.Errorf("execution.broker 不支持: %s", c.Execution.Broker)
	}
	return nil
}
