package market

import (
	"strings"

	"github.com/shopspring/decimal"
)

const boardLotSize = 100

// IsBoardLotSymbol 港股按整手交易，以 "HK." 前缀识别。
func IsBoardLotSymbol(symbol string) bool {
	return strings.HasPrefix(strings.ToUpper(symbol), "HK.")
}

// RoundUpToLot 把股数向上取整到整手（100 股一手），最少一手。
// 非整手市场的符号原样返回。
func RoundUpToLot(symbol string, qty int) int {
	if !IsBoardLotSymbol(symbol) {
		return qty
	}
	if qty <= 0 {
		return boardLotSize
	}
	lots := decimal.NewFromInt(int64(qty)).
		Div(decimal.NewFromInt(boardLotSize)).
		Ceil()
	return int(lots.Mul(decimal.NewFromInt(boardLotSize)).IntPart())
}

// PositionValue 返回 price×qty，用 decimal 避免大数量下的浮点误差。
func PositionValue(price float64, qty int) float64 {
	v, _ := decimal.NewFromFloat(price).Mul(decimal.NewFromInt(int64(qty))).Float64()
	return v
}
