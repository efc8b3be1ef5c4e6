package decision

import (
	"encoding/json"
	"regexp"
	"strconv"
	"strings"

	"github.com/santhosh-tekuri/jsonschema/v5"
	"github.com/tidwall/gjson"

	"tradeflow/internal/fusion"
	"tradeflow/internal/logger"
	"tradeflow/internal/pkg/jsonutil"
)

// Opinion 是从 AI 回复中尽力提取出的结构化观点。字段缺失时保持零值，
// 提取结果永远不作为硬性事实，只作为参考输入。
type Opinion struct {
	Direction      fusion.Direction
	Confidence     float64 // 0-100，未给出时为 0
	StopLoss       float64
	TakeProfit     float64
	PositionWeight float64 // 0-1，未给出时为 0
	Summary        string
	Structured     bool // 是否来自通过 schema 校验的 JSON 块
}

const opinionSchemaJSON = `{
	"type": "object",
	"properties": {
		"direction": {"type": "string"},
		"confidence": {"type": "number", "minimum": 0, "maximum": 100},
		"stop_loss": {"type": "number", "minimum": 0},
		"take_profit": {"type": "number", "minimum": 0},
		"position_weight": {"type": "number", "minimum": 0, "maximum": 1},
		"summary": {"type": "string"}
	},
	"required": ["direction"]
}`

var opinionSchema = jsonschema.MustCompileString("opinion.json", opinionSchemaJSON)

var (
	buyPattern  = regexp.MustCompile(`(?i)\b(buy|long)\b|买入|做多|建仓|加仓`)
	sellPattern = regexp.MustCompile(`(?i)\b(sell|short)\b|卖出|做空|减仓|清仓`)
	holdPattern = regexp.MustCompile(`(?i)\b(hold|wait)\b|持有|观望|空仓|不动`)

	confidencePattern = regexp.MustCompile(`(?i)(?:置信度|信心|confidence)[:：]?\s*(\d+(?:\.\d+)?)`)
	stopLossPattern   = regexp.MustCompile(`(?i)(?:止损|stop[ _-]?loss)[价位]*[:：]?\s*(\d+(?:\.\d+)?)`)
	takeProfitPattern = regexp.MustCompile(`(?i)(?:止盈|目标价|take[ _-]?profit|target)[价位]*[:：]?\s*(\d+(?:\.\d+)?)`)
	positionPattern   = regexp.MustCompile(`(?i)(?:仓位|position)[权重比例]*[:：]?\s*(\d+(?:\.\d+)?)\s*%`)
)

// ParseAIOpinion 解析模型自由文本。优先使用通过 schema 校验的 JSON 块，
// 否则回退到双语正则匹配；无法识别方向时按约定返回 HOLD 并告警。
func ParseAIOpinion(raw string) Opinion {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		logger.Warnf("AI 回复为空，按 HOLD 处理")
		return Opinion{Direction: fusion.Hold}
	}
	if op, ok := parseStructured(raw); ok {
		return op
	}
	return parseFreeText(raw)
}

func parseStructured(raw string) (Opinion, bool) {
	block, ok := jsonutil.ExtractObject(raw)
	if !ok {
		return Opinion{}, false
	}
	var v any
	if err := json.Unmarshal([]byte(block), &v); err != nil {
		return Opinion{}, false
	}
	if err := opinionSchema.Validate(v); err != nil {
		logger.Debugf("AI JSON 块未通过 schema 校验，回退文本解析: %v", err)
		return Opinion{}, false
	}
	op := Opinion{
		Direction:      fusion.DirectionFromString(gjson.Get(block, "direction").String()),
		Confidence:     gjson.Get(block, "confidence").Float(),
		StopLoss:       gjson.Get(block, "stop_loss").Float(),
		TakeProfit:     gjson.Get(block, "take_profit").Float(),
		PositionWeight: gjson.Get(block, "position_weight").Float(),
		Summary:        gjson.Get(block, "summary").String(),
		Structured:     true,
	}
	if op.Summary == "" {
		op.Summary = excerpt(raw)
	}
	return op, true
}

func parseFreeText(raw string) Opinion {
	op := Opinion{Summary: excerpt(raw)}
	switch {
	case buyPattern.MatchString(raw) && !sellPattern.MatchString(raw):
		op.Direction = fusion.Buy
	case sellPattern.MatchString(raw) && !buyPattern.MatchString(raw):
		op.Direction = fusion.Sell
	case holdPattern.MatchString(raw):
		op.Direction = fusion.Hold
	default:
		op.Direction = fusion.Hold
		logger.Warnf("AI 回复未识别出方向，按 HOLD 处理: %s", excerpt(raw))
	}
	op.Confidence = firstNumber(confidencePattern, raw)
	op.StopLoss = firstNumber(stopLossPattern, raw)
	op.TakeProfit = firstNumber(takeProfitPattern, raw)
	if pct := firstNumber(positionPattern, raw); pct > 0 {
		op.PositionWeight = pct / 100
	}
	return op
}

func firstNumber(re *regexp.Regexp, raw string) float64 {
	m := re.FindStringSubmatch(raw)
	if len(m) < 2 {
		return 0
	}
	f, err := strconv.ParseFloat(m[1], 64)
	if err != nil {
		return 0
	}
	return f
}

func excerpt(raw string) string {
	runes := []rune(strings.Join(strings.Fields(raw), " "))
	if len(runes) <= 80 {
		return string(runes)
	}
	return string(runes[:80]) + "…"
}
