package main

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"signal_tracker/internal/helper"
	"signal_tracker/internal/models"
	bybit "signal_tracker/internal/modules/bybit/service"
	cmc "signal_tracker/internal/modules/coinmarketcap/service"
	"signal_tracker/internal/modules/config"
	"signal_tracker/internal/modules/storage"
	sheets "signal_tracker/internal/modules/storage/service"
	telegram "signal_tracker/internal/modules/telegram_bot/service"
	"signal_tracker/pkg/logger"

	"github.com/pkg/errors"
	"github.com/urfave/cli/v2"
	"go.uber.org/multierr"
	"go.uber.org/zap"
)

var (
	configFlag = &cli.StringFlag{
		Name:    "config",
		Aliases: []string{"c"},
		Value:   "configs/values_local.yaml",
		Usage:   "load configuration from `FILE`",
	}
	verboseFlag = &cli.BoolFlag{
		Name:  "verbose",
		Usage: "debug logging",
	}
	chatFlag = &cli.StringFlag{
		Name:  "chat",
		Usage: "override telegram chat id",
	}
)

var (
	priceCommand = &cli.Command{
		Name:      "price",
		Usage:     "last price from bybit",
		ArgsUsage: "SYMBOL",
		Action:    price,
	}
	marketCommand = &cli.Command{
		Name:      "market",
		Usage:     "market cap and 24h volume from coinmarketcap",
		ArgsUsage: "SYMBOL",
		Action:    market,
	}
	headerCommand = &cli.Command{
		Name:   "header",
		Usage:  "create or repair the header row of the signal table",
		Action: header,
	}
	rowCommand = &cli.Command{
		Name:      "row",
		Usage:     "print one row of the signal table",
		ArgsUsage: "ROW",
		Action:    row,
	}
	notifyCommand = &cli.Command{
		Name:      "notify",
		Usage:     "send a test message to telegram",
		ArgsUsage: "TEXT",
		Flags:     []cli.Flag{chatFlag},
		Action:    notify,
	}
)

type rowReader interface {
	ReadRow(ctx context.Context, row int) ([]string, error)
}

func newSheet(b sheets.Backend, log *zap.Logger) *sheets.Sheet {
	return sheets.NewSheet(b, log)
}

type env struct {
	cfg *config.Config
	log *zap.Logger
}

func setup(ctx *cli.Context) (*env, error) {
	cfg, err := config.Load(ctx.String(configFlag.Name), nil)
	if err != nil {
		return nil, err
	}
	level := cfg.Log.Level
	if ctx.Bool(verboseFlag.Name) {
		level = "debug"
	}
	log, err := logger.New(logger.Config{Level: level, Development: true, Service: "sigctl"})
	if err != nil {
		return nil, err
	}
	return &env{cfg: cfg, log: log}, nil
}

func symbolArg(ctx *cli.Context) (string, error) {
	if ctx.NArg() != 1 {
		return "", errors.New("exactly one SYMBOL is required")
	}
	return helper.NormSymbol(helper.ExtractSymbol(ctx.Args().First()))
}

func price(ctx *cli.Context) error {
	e, err := setup(ctx)
	if err != nil {
		return err
	}
	symbol, err := symbolArg(ctx)
	if err != nil {
		return err
	}
	c := bybit.NewClient(bybit.Config{
		BaseURL:  e.cfg.Bybit.BaseURL,
		Category: e.cfg.Bybit.Category,
		Quote:    e.cfg.Bybit.Quote,
		Timeout:  e.cfg.Bybit.Timeout,
	}, e.log)
	p, err := c.GetPrice(ctx.Context, symbol)
	if err != nil {
		return err
	}
	fmt.Printf("%s %s\n", symbol, models.FormatPrice(p))
	return nil
}

func market(ctx *cli.Context) error {
	e, err := setup(ctx)
	if err != nil {
		return err
	}
	symbol, err := symbolArg(ctx)
	if err != nil {
		return err
	}
	c := cmc.NewClient(cmc.Config{
		BaseURL:    e.cfg.CoinMarketCap.BaseURL,
		CatalogURL: e.cfg.CoinMarketCap.CatalogURL,
		APIKey:     e.cfg.CoinMarketCap.APIKey,
		Retries:    e.cfg.CoinMarketCap.Retries,
		Delay:      e.cfg.CoinMarketCap.Delay,
		Timeout:    e.cfg.CoinMarketCap.Timeout,
		UseCatalog: e.cfg.CoinMarketCap.UseCatalog,
	}, e.log)
	md := c.GetMarketData(ctx.Context, symbol)
	fmt.Printf("%s market cap %s$, 24h volume %s$\n", symbol, helper.FormatNumber(md.MarketCap), helper.FormatNumber(md.Volume24h))
	return nil
}

func header(ctx *cli.Context) (err error) {
	e, err := setup(ctx)
	if err != nil {
		return err
	}
	b, err := storage.NewBackend(ctx.Context, e.cfg)
	if err != nil {
		return err
	}
	sheet := newSheet(b, e.log)
	defer func() {
		err = multierr.Append(err, sheet.Close())
	}()
	if err := sheet.EnsureHeader(ctx.Context); err != nil {
		return err
	}
	fmt.Printf("header of %q is in place\n", e.cfg.Storage.Sheet)
	return nil
}

func row(ctx *cli.Context) (err error) {
	e, err := setup(ctx)
	if err != nil {
		return err
	}
	if ctx.NArg() != 1 {
		return errors.New("exactly one ROW is required")
	}
	n, err := strconv.Atoi(ctx.Args().First())
	if err != nil || n < 1 {
		return errors.Errorf("bad row %q", ctx.Args().First())
	}
	b, err := storage.NewBackend(ctx.Context, e.cfg)
	if err != nil {
		return err
	}
	sheet := newSheet(b, e.log)
	defer func() {
		err = multierr.Append(err, sheet.Close())
	}()
	return printRow(ctx.Context, sheet, n)
}

func printRow(ctx context.Context, sheet rowReader, n int) error {
	fields, err := sheet.ReadRow(ctx, n)
	if err != nil {
		return err
	}
	if fields == nil {
		return errors.Errorf("row %d is empty", n)
	}
	for i, v := range fields {
		name := ""
		if i < len(models.ColumnHeaders) {
			name = models.ColumnHeaders[i]
		}
		fmt.Printf("%2d %-24s %s\n", i+1, name, v)
	}
	return nil
}

func notify(ctx *cli.Context) error {
	e, err := setup(ctx)
	if err != nil {
		return err
	}
	text := strings.TrimSpace(strings.Join(ctx.Args().Slice(), " "))
	if text == "" {
		return errors.New("TEXT is required")
	}
	chat := ctx.String(chatFlag.Name)
	if chat == "" {
		chat = e.cfg.Telegram.ChatID
	}
	tg := telegram.NewTelegram(telegram.Config{
		Token:             e.cfg.Telegram.Token,
		MaxAttempts:       e.cfg.Telegram.MaxAttempts,
		BaseDelay:         e.cfg.Telegram.BaseDelay,
		DefaultRetryAfter: e.cfg.Telegram.DefaultRetryAfter,
	}, e.log)
	if !tg.Send(ctx.Context, chat, text) {
		return errors.Errorf("message to %s not delivered", chat)
	}
	fmt.Println("sent")
	return nil
}
