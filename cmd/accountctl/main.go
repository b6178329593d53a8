// accountctl is an operations tool for inspecting and cleaning up one
// subscriber's exchange account: balance, open positions, resting orders,
// cancelling order brackets and market-closing positions.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"

	"signalArmyBot/config"
	"signalArmyBot/internal/account"
	"signalArmyBot/internal/adapters/binanceclient"
	"signalArmyBot/internal/adapters/kucoinclient"
	"signalArmyBot/internal/adapters/logger"
	"signalArmyBot/internal/adapters/sqlite"
	"signalArmyBot/internal/domain"
	"signalArmyBot/internal/ports"
)

var (
	userID  = flag.Int64("user", 0, "subscriber ID to act as (required)")
	symbol  = flag.String("symbol", "", "contract symbol, e.g. XBTUSDTM")
	command = flag.String("cmd", "overview", "one of: overview, positions, orders, stops, close, cancel-all")
)

func main() {
	flag.Parse()
	if *userID == 0 {
		flag.Usage()
		os.Exit(2)
	}

	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("FATAL: Failed to load configuration: %v", err)
	}
	appLogger := logger.NewStdLogger(cfg.LogLevel)
	ctx := context.Background()

	store, err := sqlite.NewStore(sqlite.Config{DBPath: cfg.DBPath, Logger: appLogger})
	if err != nil {
		log.Fatalf("FATAL: Failed to open store: %v", err)
	}
	defer store.Close()

	user, err := store.FindUser(ctx, *userID)
	if err != nil {
		log.Fatalf("FATAL: %v", err)
	}

	client, err := buildClient(cfg, appLogger, user.Credential)
	if err != nil {
		log.Fatalf("FATAL: Failed to build exchange client: %v", err)
	}

	acct, err := account.New(account.Config{
		User:     user,
		Client:   client,
		Logger:   appLogger,
		Currency: cfg.Currency,
	})
	if err != nil {
		log.Fatalf("FATAL: %v", err)
	}

	if err := run(ctx, acct, *command, *symbol); err != nil {
		log.Fatalf("FATAL: %v", err)
	}
}

func run(ctx context.Context, acct *account.Account, command, symbol string) error {
	switch command {
	case "overview":
		overview, err := acct.Overview(ctx)
		if err != nil {
			return err
		}
		fmt.Printf("currency=%s equity=%.4f available=%.4f unrealised=%.4f orderMargin=%.4f\n",
			overview.Currency, overview.AccountEquity, overview.AvailableBalance,
			overview.UnrealisedPNL, overview.OrderMargin)

	case "positions":
		positions, err := acct.Positions(ctx)
		if err != nil {
			return err
		}
		for _, p := range positions {
			if !p.IsOpen {
				continue
			}
			fmt.Printf("%s qty=%.4f entry=%.4f pnl=%.4f liq=%.4f lev=%d\n",
				p.Symbol, p.CurrentQty, p.AvgEntryPrice, p.UnrealisedPnl, p.LiquidationPrice, p.Leverage)
		}

	case "orders":
		orders, err := acct.Orders(ctx, ports.OrderQuery{Status: "active", Symbol: symbol})
		if err != nil {
			return err
		}
		printOrders(orders)

	case "stops":
		if symbol == "" {
			return fmt.Errorf("stops requires -symbol")
		}
		orders, err := acct.UntriggeredStopOrders(ctx, symbol)
		if err != nil {
			return err
		}
		printOrders(orders)

	case "close":
		if symbol == "" {
			return fmt.Errorf("close requires -symbol")
		}
		conf, err := acct.ClosePosition(ctx, symbol)
		if err != nil {
			return err
		}
		fmt.Printf("closed: orderID=%s\n", conf.OrderID)

	case "cancel-all":
		limits, err := acct.CancelAllLimitOrders(ctx, symbol)
		if err != nil {
			return err
		}
		stops, err := acct.CancelAllStopOrders(ctx, symbol)
		if err != nil {
			return err
		}
		fmt.Printf("cancelled %d limit and %d stop orders\n", len(limits), len(stops))

	default:
		return fmt.Errorf("unknown command %q", command)
	}
	return nil
}

func printOrders(orders []ports.OrderInfo) {
	for _, o := range orders {
		fmt.Printf("%s %s %s size=%d price=%.4f stop=%s@%.4f active=%v\n",
			o.ID, o.Symbol, o.Side, o.Size, o.Price, o.Stop, o.StopPrice, o.Active)
	}
}

func buildClient(cfg *config.Config, appLogger ports.Logger, cred domain.Credential) (ports.ExchangeClient, error) {
	switch cfg.Venue {
	case config.VenueBinance:
		return binanceclient.New(binanceclient.Config{
			Credential: cred,
			UseTestnet: cfg.UseSandbox,
			Logger:     appLogger,
		})
	default:
		return kucoinclient.New(kucoinclient.Config{
			Credential:  cred,
			UseSandbox:  cfg.UseSandbox,
			Logger:      appLogger,
			HTTPTimeout: cfg.HTTPTimeout,
		})
	}
}
