package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"trendwatch/internal/app"
	"trendwatch/internal/config"
)

const shutdownTimeout = 20 * time.Second

// options loads the dotenv file and reads the shared flags.
func options(fs *pflag.FlagSet) (app.Options, error) {
	envFile, _ := fs.GetString("env-file")
	if err := config.LoadDotEnv(envFile); err != nil {
		return app.Options{}, fmt.Errorf("load %s: %w", envFile, err)
	}
	cfgPath, _ := fs.GetString("config")
	opt := app.Options{ConfigPath: cfgPath, Stdout: os.Stdout}
	if fs.Lookup("dry-run") != nil {
		opt.DryRun, _ = fs.GetBool("dry-run")
	}
	return opt, nil
}

func runWatch(cmd *cobra.Command, _ []string) error {
	opt, err := options(cmd.Flags())
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := app.New(opt)
	if err != nil {
		return err
	}
	if err := a.Start(ctx); err != nil {
		_ = a.Close()
		return err
	}

	<-a.Done()
	reason := app.StopSignal
	if ctx.Err() == nil {
		reason = app.StopFatalError
	}

	sctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	stopErr := a.Stop(sctx, reason)
	if err := a.Err(); err != nil {
		return err
	}
	if errors.Is(stopErr, context.DeadlineExceeded) {
		return fmt.Errorf("shutdown timed out after %s", shutdownTimeout)
	}
	return stopErr
}

func runOnce(cmd *cobra.Command, _ []string) error {
	opt, err := options(cmd.Flags())
	if err != nil {
		return err
	}
	// Nothing is sent; the console sender only keeps the token optional.
	opt.DryRun = true

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := app.New(opt)
	if err != nil {
		return err
	}
	defer a.Close()

	text, err := a.Preview(ctx)
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(cmd.OutOrStdout(), text)
	return err
}

func runCheckConfig(cmd *cobra.Command, _ []string) error {
	opt, err := options(cmd.Flags())
	if err != nil {
		return err
	}
	eff, err := app.CheckConfig(opt.ConfigPath)
	if err != nil {
		return err
	}
	_, err = eff.WriteTo(cmd.OutOrStdout())
	return err
}

func runJournal(cmd *cobra.Command, _ []string) error {
	opt, err := options(cmd.Flags())
	if err != nil {
		return err
	}
	opt.DryRun = true
	limit, _ := cmd.Flags().GetInt("limit")

	a, err := app.New(opt)
	if err != nil {
		return err
	}
	defer a.Close()

	if !a.JournalEnabled() {
		fmt.Fprintln(cmd.OutOrStdout(), "journal is disabled (set storage.driver)")
		return nil
	}
	recs, err := a.Journal(cmd.Context(), limit)
	if err != nil {
		return err
	}

	tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "AT\tCYCLE\tCHANNEL\tCHAT\tCHANGED\tOK\tTOOK\tERROR")
	for _, r := range recs {
		fmt.Fprintf(tw, "%s\t%.8s\t%s\t%d\t%t\t%t\t%dms\t%s\n",
			r.At.Format(time.RFC3339), r.CycleID, r.Channel, r.ChatID, r.Changed, r.OK, r.TookMS, r.Error)
	}
	return tw.Flush()
}
