package service

import (
	"fmt"
	"strings"

	"signal_tracker/internal/helper"
	"signal_tracker/internal/models"
)

const exchangeLink = "https://www.bybit.com"

// FormatSignal: текст уведомления о новом сигнале (Markdown).
func FormatSignal(action models.Action, symbol string, price float64, md models.MarketData) string {
	icon := "🔴"
	if action == models.ActionBuy {
		icon = "🟢"
	}
	return fmt.Sprintf(
		"%s *%s*\n\n"+
			"*%s*\n\n"+
			"PRICE - *%s$*\n"+
			"MARKET CAP - *%s$*\n"+
			"24H VOLUME - *%s$*\n\n"+
			"Trading on Bybit - *%s*",
		icon, strings.ToUpper(string(action)),
		strings.ToUpper(symbol),
		models.FormatPrice(price),
		helper.FormatNumber(md.MarketCap),
		helper.FormatNumber(md.Volume24h),
		exchangeLink,
	)
}
