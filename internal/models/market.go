package models

// MarketData: капитализация и суточный объём в USD. nil - данных нет.
type MarketData struct {
	MarketCap *float64
	Volume24h *float64
}

// Complete: оба поля на месте.
func (m MarketData) Complete() bool {
	return m.MarketCap != nil && m.Volume24h != nil
}
