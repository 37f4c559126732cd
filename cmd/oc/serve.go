package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"github.com/zulandar/onecall/internal/poller"
	"github.com/zulandar/onecall/internal/server"
	"github.com/zulandar/onecall/internal/submission"
)

func newServeCmd() *cobra.Command {
	var (
		configPath string
		noPoller   bool
	)

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the API server and background status poller",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd, configPath, noPoller)
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", defaultConfigPath, "path to config file")
	cmd.Flags().BoolVar(&noPoller, "no-poller", false, "run the API without the background status poller")
	return cmd
}

func runServe(cmd *cobra.Command, configPath string, noPoller bool) error {
	out := cmd.OutOrStdout()

	a, err := loadApp(configPath)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var p *poller.Poller
	if !noPoller {
		p, err = poller.New(poller.Opts{
			Store:        a.store,
			Registry:     a.registry,
			Checker:      poller.NewWebStatusChecker(a.chrome),
			Schedule:     a.cfg.Poller.Schedule,
			InitialDelay: time.Duration(a.cfg.Poller.InitialDelaySec) * time.Second,
			CheckDelay:   time.Duration(a.cfg.Poller.CheckDelaySec) * time.Second,
			Out:          out,
		})
		if err != nil {
			return err
		}
	}

	errCh := make(chan error, 2)
	if p != nil {
		go func() { errCh <- p.Run(ctx) }()
	}
	go func() {
		errCh <- server.Start(ctx, server.StartOpts{
			Store:     a.store,
			Registry:  a.registry,
			Submitter: a.orchestrator,
			Checker:   pollerChecker(p),
			Calls:     callResolver(a.phone),
			Port:      a.cfg.Server.Port,
			Out:       out,
		})
	}()

	err = <-errCh
	stop()
	if p != nil {
		<-errCh
	}
	if err != nil {
		return fmt.Errorf("serve: %w", err)
	}
	fmt.Fprintln(out, "Shut down cleanly")
	return nil
}

// pollerChecker avoids handing the server a non-nil interface wrapping a nil
// poller when --no-poller is set.
func pollerChecker(p *poller.Poller) server.StatusChecker {
	if p == nil {
		return nil
	}
	return p
}

// callResolver avoids a non-nil interface around a nil phone adapter when
// telephony is not configured.
func callResolver(p *submission.PhoneAdapter) server.CallResolver {
	if p == nil {
		return nil
	}
	return p
}
