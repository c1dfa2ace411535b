package models

import "strconv"

// Колонки таблицы, 1-based.
const (
	ColTicker      = 1
	ColAction      = 2
	ColSignalPrice = 3
	ColSignalTime  = 4
	// ColFirstInterval: колонка цены первого интервала, дальше пары (цена, %).
	ColFirstInterval = 5

	ColumnCount = 16
	HeaderRow   = 1
)

// ColumnHeaders: шапка таблицы.
var ColumnHeaders = []string{
	"Ticker",
	"Action",
	"SignalPrice",
	"SignalTimestamp",
	"Close15m",
	"Change15m",
	"Close1h",
	"Change1h",
	"Close2h",
	"Change2h",
	"Close4h",
	"Change4h",
	"Close1d",
	"Change1d",
	"Close3d",
	"Change3d",
}

// NumberFormat ячейки, как в Sheets API.
type NumberFormat struct {
	Type    string `json:"type"`
	Pattern string `json:"pattern"`
}

// PercentFormat для колонок изменения.
var PercentFormat = NumberFormat{Type: "PERCENT", Pattern: "#,##0.00%"}

// Color: фон ячейки, компоненты 0..1.
type Color struct {
	Red   float64 `json:"red"`
	Green float64 `json:"green"`
	Blue  float64 `json:"blue"`
}

var (
	ColorGain = Color{Red: 0.5, Green: 1, Blue: 0.5}
	ColorLoss = Color{Red: 1, Green: 0.5, Blue: 0.5}
)

// ChangeColor: цвет для изменения; ok=false при нулевом значении (ячейку не красим).
func ChangeColor(value float64) (Color, bool) {
	switch {
	case value > 0:
		return ColorGain, true
	case value < 0:
		return ColorLoss, true
	default:
		return Color{}, false
	}
}

// FormatPrice: цена без лишних нулей (65000.5, 0.000123).
func FormatPrice(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}

// CellStyle: оформление ячейки, nil - не задано.
type CellStyle struct {
	NumberFormat *NumberFormat `json:"number_format,omitempty"`
	Background   *Color        `json:"background,omitempty"`
}
