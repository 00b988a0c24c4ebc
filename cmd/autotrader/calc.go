package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"autotrader/config"
	"autotrader/internal/broker"
	"autotrader/internal/command"
	"autotrader/internal/logger"
	"autotrader/internal/notification"
	"autotrader/internal/store/sqlite"

	"github.com/spf13/cobra"
)

func newCalcCmd() *cobra.Command {
	var (
		code  string
		extra map[string]string
		keep  bool
	)
	cmd := &cobra.Command{
		Use:   "calc <command>",
		Short: "Run one command against the paper broker and print its result",
		Long: `Run a single command (get_rsi, get_macd, detect_golden_cross, volume_search,
...) through the full queue pipeline against the deterministic paper broker.
Example: autotrader calc get_rsi --code 005930 --set method=ema --set period=9`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runCalc(cmd.Context(), config.Load(), args[0], code, extra, keep)
		},
	}
	cmd.Flags().StringVar(&code, "code", "005930", "instrument code")
	cmd.Flags().StringToStringVar(&extra, "set", nil, "extra payload fields as key=value")
	cmd.Flags().BoolVar(&keep, "keep", false, "write indicator records to SQLITE_PATH instead of a scratch database")
	return cmd
}

func runCalc(ctx context.Context, cfg *config.Config, tag, code string, extra map[string]string, keep bool) error {
	fields := map[string]any{"type": tag}
	if code != "" {
		fields["code"] = code
	}
	for k, v := range extra {
		fields[k] = v
	}
	raw, _ := json.Marshal(fields)
	cmd, err := command.Decode(raw)
	if err != nil {
		return err
	}

	lg := logger.InitWriter(os.Stderr, "autotrader-calc", slog.LevelWarn)

	path := cfg.SQLitePath
	if !keep {
		dir, err := os.MkdirTemp("", "autotrader-calc")
		if err != nil {
			return err
		}
		defer os.RemoveAll(dir)
		path = filepath.Join(dir, "calc.db")
	}
	store, err := sqlite.Open(path)
	if err != nil {
		return err
	}
	defer store.Close()

	// calc never places real orders, whatever TRADE_MODE says.
	cfg.TradeMode = config.ModeSimulation
	ctrl := broker.NewPaperControl(cfg.PaperCash)
	st, err := newStack(cfg, ctrl, store, notification.NewLogNotifier(), lg)
	if err != nil {
		return err
	}
	if err := st.session.Connect(ctx); err != nil {
		return err
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	st.start(ctx)

	res := st.bridge.Call(ctx, cmd, timeoutsFrom(cfg).For(cmd.Kind))
	out, err := json.MarshalIndent(res, "", "  ")
	if err != nil {
		return err
	}
	fmt.Println(string(out))
	if res.IsError() {
		return fmt.Errorf("%s: %s", cmd.Tag(), res.Err)
	}
	return nil
}
