package cmd

import (
	"fmt"
	"io"
	"os/signal"
	"syscall"
	"time"

	json "github.com/goccy/go-json"
	"github.com/mselser95/lmsr-amm/internal/engine"
	"github.com/mselser95/lmsr-amm/pkg/config"
	"github.com/mselser95/lmsr-amm/pkg/wad"
	"github.com/mselser95/lmsr-amm/pkg/websocket"
	"github.com/spf13/cobra"
)

//nolint:gochecknoglobals // Cobra boilerplate
var watchCmd = &cobra.Command{
	Use:   "watch [market-id]",
	Short: "Stream committed events from a running server",
	Long: `Connects to the /ws/events stream of a running server and prints every
committed event, reconnecting when the connection drops. Pass a market id
to see only that market.

Example:
  lmsr-amm watch --url ws://localhost:8080/ws/events m-1`,
	Args: cobra.MaximumNArgs(1),
	RunE: runWatch,
}

//nolint:gochecknoinits // Cobra boilerplate
func init() {
	rootCmd.AddCommand(watchCmd)
	watchCmd.Flags().String("url", "ws://localhost:8080/ws/events", "Event stream URL")
	watchCmd.Flags().BoolP("json", "j", false, "Output raw JSON events")
	watchCmd.Flags().Duration("dial-timeout", 10*time.Second, "Connection timeout")
}

func runWatch(cmd *cobra.Command, args []string) error {
	url, _ := cmd.Flags().GetString("url")
	jsonOutput, _ := cmd.Flags().GetBool("json")
	dialTimeout, _ := cmd.Flags().GetDuration("dial-timeout")

	marketID := ""
	if len(args) == 1 {
		marketID = args[0]
	}

	logger, err := config.NewLogger("warn")
	if err != nil {
		return fmt.Errorf("create logger: %w", err)
	}
	defer func() {
		_ = logger.Sync()
	}()

	sub, err := websocket.NewSubscriber(websocket.SubscriberConfig{
		URL:         url,
		MarketID:    marketID,
		DialTimeout: dialTimeout,
		Backoff:     websocket.DefaultBackoffConfig(),
		Logger:      logger,
	})
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 1)
	go func() { errCh <- sub.Run(ctx) }()

	out := cmd.OutOrStdout()
	for ev := range sub.Events() {
		err = printEvent(out, ev, jsonOutput)
		if err != nil {
			return err
		}
	}

	err = <-errCh
	if err != nil {
		return fmt.Errorf("event stream: %w", err)
	}
	fmt.Fprintln(out, "\nShutting down...")
	return nil
}

func printEvent(out io.Writer, ev engine.Event, jsonOutput bool) error {
	if jsonOutput {
		data, err := json.Marshal(ev)
		if err != nil {
			return fmt.Errorf("encode event: %w", err)
		}
		_, err = fmt.Fprintln(out, string(data))
		return err
	}

	line := fmt.Sprintf("[%s] #%d %-26s %s", ev.At.UTC().Format(time.RFC3339), ev.Seq, ev.Type, ev.MarketID)
	if o := ev.Outcome.String(); o != "" {
		line += " " + o
	}
	if ev.Shares != nil {
		line += " shares=" + wad.Format(ev.Shares)
	}
	if ev.Amount != nil {
		line += " amount=" + wad.Format(ev.Amount)
	}
	if ev.PriceYes != nil && ev.PriceNo != nil {
		line += fmt.Sprintf(" yes=%s no=%s", wad.Format(ev.PriceYes), wad.Format(ev.PriceNo))
	}
	_, err := fmt.Fprintln(out, line)
	return err
}
