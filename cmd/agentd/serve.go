package main

import (
	"context"
	"errors"
	"log/slog"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"AgentTodo/internal/api"
	"AgentTodo/internal/auth"
	"AgentTodo/pkg/logger"
)

func newServeCmd(opts *rootOptions) *cobra.Command {
	var addr string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the REST API together with the todo processor",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := opts.loadConfig(false)
			if err != nil {
				return err
			}
			if addr != "" {
				cfg.Server.Address = addr
			}
			if err := opts.initLogging(cfg, false); err != nil {
				return err
			}
			defer logger.Sync()

			rt, err := newRuntime(cfg)
			if err != nil {
				return err
			}
			defer rt.Close()

			authSvc, err := auth.NewService(cfg.Server.Auth)
			if err != nil {
				return err
			}
			if !authSvc.Enabled() {
				logger.L().Warn("未配置 API token，接口不做认证")
			}
			server := api.NewServer(cfg.Server.Address, rt.service, rt.store,
				api.WithDelegator(rt.delegator),
				api.WithMetrics(rt.metrics),
				api.WithAuth(authSvc),
			)

			g, ctx := errgroup.WithContext(cmd.Context())
			g.Go(func() error { return server.Start(ctx) })
			g.Go(func() error { return rt.processor.Start(ctx) })

			err = g.Wait()
			if errors.Is(err, context.Canceled) {
				logger.L().Info("agentd 已停止")
				return nil
			}
			if err != nil {
				logger.L().Error("agentd 异常退出", slog.Any("error", err))
			}
			return err
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "", "listen address, overrides server.address")
	return cmd
}
