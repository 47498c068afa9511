package main

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"AgentTodo/pkg/logger"
)

func newDelegateCmd(opts *rootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "delegate <server> [json|-]",
		Short: "Send a JSON payload to a configured server and print its output",
		Long: `Delegates a JSON payload to a server from the mcpServers section of the
config. The payload is read from the second argument, or from stdin when it
is "-" or omitted.`,
		Args: cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			server := args[0]
			raw := "-"
			if len(args) == 2 {
				raw = args[1]
			}
			if raw == "-" {
				data, err := io.ReadAll(cmd.InOrStdin())
				if err != nil {
					return fmt.Errorf("读取 stdin 失败: %w", err)
				}
				raw = string(data)
			}
			raw = strings.TrimSpace(raw)
			if raw == "" {
				raw = "null"
			}
			if !json.Valid([]byte(raw)) {
				return fmt.Errorf("payload 不是合法的 JSON")
			}
			payload := json.RawMessage(raw)

			if opts.remote != "" {
				c, err := opts.remoteClient()
				if err != nil {
					return err
				}
				res, err := c.Delegate(cmd.Context(), server, payload)
				if err != nil {
					return err
				}
				return printJSON(cmd.OutOrStdout(), res)
			}

			cfg, err := opts.loadConfig(true)
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

			res, err := rt.delegator.Call(cmd.Context(), server, payload)
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), res)
		},
	}
	return cmd
}
