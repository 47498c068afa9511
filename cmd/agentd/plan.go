package main

import (
	"context"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"AgentTodo/pkg/client"
	"AgentTodo/pkg/logger"
)

func newPlanCmd(opts *rootOptions) *cobra.Command {
	var (
		agentID string
		server  string
		wait    time.Duration
	)
	cmd := &cobra.Command{
		Use:   "plan [goal]",
		Short: "Break a goal into a work plan of todos",
		Long: `Plans the goal for an agent and prints the plan with its todos as JSON.

With --server the todos are delegated to that server. Locally the command
runs the processor in-process and waits up to --wait for the plan to finish.`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			goal := strings.Join(args, " ")
			out := cmd.OutOrStdout()

			if opts.remote != "" {
				c, err := opts.remoteClient()
				if err != nil {
					return err
				}
				res, err := c.CreatePlan(cmd.Context(), agentID, goal, server)
				if err != nil {
					return err
				}
				return printJSON(out, res)
			}

			cfg, err := opts.loadConfig(server != "")
			if err != nil {
				return err
			}
			if err := opts.initLogging(cfg, true); err != nil {
				return err
			}
			defer logger.Sync()
			rt, err := newRuntime(cfg)
			if err != nil {
				return err
			}
			defer rt.Close()

			if server == "" {
				plan, todos, err := rt.service.Submit(cmd.Context(), agentID, goal, "")
				if err != nil {
					return err
				}
				return printJSON(out, client.PlanResult{Plan: plan, Todos: todos})
			}

			ctx, cancel := context.WithTimeout(cmd.Context(), wait)
			defer cancel()
			g, gctx := errgroup.WithContext(ctx)
			procCtx, stopProcessor := context.WithCancel(gctx)
			g.Go(func() error {
				_ = rt.processor.Start(procCtx)
				return nil
			})

			var result client.PlanResult
			g.Go(func() error {
				defer stopProcessor()
				plan, _, err := rt.service.Submit(gctx, agentID, goal, server)
				if err != nil {
					return err
				}
				if plan, err = rt.service.WaitForPlan(gctx, plan.ID, 50*time.Millisecond); err != nil {
					return err
				}
				result.Plan = plan
				result.Todos = rt.store.GetAgentTodos(agentID)
				return nil
			})
			if err := g.Wait(); err != nil {
				return err
			}
			return printJSON(out, result)
		},
	}
	cmd.Flags().StringVarP(&agentID, "agent", "a", "default", "agent id owning the plan")
	cmd.Flags().StringVarP(&server, "server", "s", "", "delegate every todo to this configured server")
	cmd.Flags().DurationVar(&wait, "wait", 2*time.Minute, "how long to wait for a delegated plan to finish")
	return cmd
}
