package service

import (
	"context"
	"io"
	"net/http"
	"strings"

	"signal_tracker/internal/models"

	"github.com/bytedance/sonic"
	"github.com/gin-gonic/gin"
	"github.com/pkg/errors"
)

const maxBody = 64 << 10

// Handle: POST /webhookbybit.
func (p *Processor) Handle(c *gin.Context) {
	body, err := io.ReadAll(io.LimitReader(c.Request.Body, maxBody))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"detail": "cannot read body"})
		return
	}

	var in Payload
	if err := sonic.Unmarshal(body, &in); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"detail": "invalid JSON"})
		return
	}
	if strings.TrimSpace(in.Ticker) == "" || strings.TrimSpace(in.Action) == "" {
		c.JSON(http.StatusBadRequest, gin.H{"detail": "ticker and strategy.order.action are required"})
		return
	}

	// TradingView рвёт соединение через несколько секунд, а уведомление уже ушло:
	// сигнал дописываем независимо от клиента
	ctx, cancel := context.WithTimeout(context.WithoutCancel(c.Request.Context()), p.cfg.ProcessTimeout)
	defer cancel()

	sig, err := p.Process(ctx, in)
	if err != nil {
		c.JSON(statusFor(err), gin.H{"detail": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "success", "row": sig.Row})
}

// statusFor: ошибки входа - 400, HTTP-ошибка биржи - 502, недоступная биржа или таблица - 503.
func statusFor(err error) int {
	var upErr *models.UpstreamError
	switch {
	case errors.Is(err, models.ErrInvalidSymbol), errors.Is(err, models.ErrInvalidAction):
		return http.StatusBadRequest
	case errors.As(err, &upErr):
		if upErr.HTTP() {
			return http.StatusBadGateway
		}
		return http.StatusServiceUnavailable
	case errors.Is(err, models.ErrStorage):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}
