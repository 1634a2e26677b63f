package cli

import (
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"cryptobot/internal/config"
	"cryptobot/internal/engine"
	"cryptobot/internal/exchange"
	"cryptobot/internal/id"
	"cryptobot/internal/notify"
	"cryptobot/internal/orders"
	"cryptobot/internal/risk"
	"cryptobot/internal/store"
)

func newRunCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "run",
		Short: "Run the scan loop until interrupted",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load(opts.configPath)
			if err != nil {
				return err
			}
			log := opts.logger()

			ledger, err := store.OpenLedger(cfg.Storage.TradesPath, log)
			if err != nil {
				return err
			}
			scan, err := store.OpenScanState(cfg.Storage.ScanPath, log)
			if err != nil {
				return err
			}
			decisions, err := engine.NewDecisionLogger(cfg.Storage.DecisionsPath, id.New())
			if err != nil {
				return err
			}
			defer decisions.Close()

			gw := exchange.NewClient(cfg.Exchange.BaseURL, cfg.APIKey, cfg.APISecret, log)
			gate := risk.Gate{
				KillSwitch:    cfg.KillSwitch,
				MaxOpenTrades: cfg.Trade.Buy.MaxOpenTrades,
				MaxNotional:   cfg.Trade.Buy.MaxNotional,
				Log:           log,
			}

			var notifiers []notify.Notifier
			if cfg.Notifications.WebhookURL != "" {
				notifiers = append(notifiers, notify.NewWebhookNotifier(cfg.Notifications.WebhookURL))
			}
			if e := cfg.Notifications.Email; e != nil {
				notifiers = append(notifiers, notify.NewEmailNotifier(e.Host, e.Port, e.Username, e.Password, e.From, e.Recipient))
			}
			notifier := notify.NewManager(log, notifiers...)

			eng := engine.New(cfg, gw, ledger, scan, orders.NewManager(gw, log), gate, notifier, decisions, log)

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			if err := eng.Initialise(ctx); err != nil {
				return err
			}
			return eng.Run(ctx)
		},
	}
}
