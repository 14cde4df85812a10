package backtest

import (
	"bytes"
	"strconv"
)

// EquityPoint is one step of the simulated trade-level equity curve.
type EquityPoint struct {
	Trade    int     `json:"trade"`
	Value    float64 `json:"value"`
	Peak     float64 `json:"peak"`
	Drawdown float64 `json:"drawdown"`
}

// EquityCurve is the equity series compounded trade by trade from a unit
// base. Point i reflects the state after applying trade i's return.
type EquityCurve []EquityPoint

// BuildEquityCurve compounds each profit percentage sequentially from 1.0,
// tracking the running peak and the drawdown as a fraction of that peak.
func BuildEquityCurve(profits []float64) EquityCurve {
	curve := make(EquityCurve, 0, len(profits))
	equity := 1.0
	peak := 1.0
	for i, p := range profits {
		equity *= 1.0 + p/100.0
		if equity > peak {
			peak = equity
		}
		curve = append(curve, EquityPoint{
			Trade:    i,
			Value:    equity,
			Peak:     peak,
			Drawdown: (equity - peak) / peak,
		})
	}
	return curve
}

// TotalReturn is the compounded return over the whole curve.
func (e EquityCurve) TotalReturn() float64 {
	if len(e) == 0 {
		return 0
	}
	return e[len(e)-1].Value - 1.0
}

// MaxDrawdown is the largest peak-to-trough loss as a positive fraction
// of the peak. Zero for a curve that never dips.
func (e EquityCurve) MaxDrawdown() float64 {
	maxDD := 0.0
	for _, p := range e {
		if -p.Drawdown > maxDD {
			maxDD = -p.Drawdown
		}
	}
	return maxDD
}

// ToCSV exports the curve for plotting.
func (e EquityCurve) ToCSV() string {
	var buf bytes.Buffer
	buf.WriteString("trade,value,peak,drawdown\n")
	for _, point := range e {
		buf.WriteString(strconv.Itoa(point.Trade))
		buf.WriteString(",")
		buf.WriteString(formatFloat(point.Value))
		buf.WriteString(",")
		buf.WriteString(formatFloat(point.Peak))
		buf.WriteString(",")
		buf.WriteString(formatFloat(point.Drawdown))
		buf.WriteString("\n")
	}
	return buf.String()
}

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'f', 6, 64)
}
