package main

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/korydraughn/irodsd/internal/config"
	"github.com/korydraughn/irodsd/internal/controlplane"
)

func newCtlCommand() *cobra.Command {
	var addr string
	var configPath string
	var timeout time.Duration

	configUsage := "Configuration file to read control_plane.bind from"
	if defaultPath, err := config.DefaultConfigPath(); err == nil {
		configUsage += fmt.Sprintf(" (falls back to %s)", defaultPath)
	}

	cmd := &cobra.Command{
		Use:   "ctl [--addr ADDR] COMMAND",
		Short: "Send a command to a running irodsd control plane",
		Example: `  irodsd ctl shutdown
  irodsd ctl --addr 127.0.0.1:9100 shutdown`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			line := strings.TrimSpace(args[0])
			if line == "" {
				return fmt.Errorf("command must not be empty")
			}
			target := strings.TrimSpace(addr)
			if target == "" {
				cfg, _, _, err := config.Load(configPath)
				if err != nil {
					return fmt.Errorf("load config: %w", err)
				}
				target = cfg.ControlPlane.Bind
			}

			ctx, cancel := context.WithTimeout(cmd.Context(), timeout)
			defer cancel()
			if err := controlplane.Send(ctx, target, line); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Sent %q to %s\n", line, target)
			return nil
		},
	}

	cmd.Flags().StringVar(&addr, "addr", "", "Control plane address (overrides the configuration)")
	cmd.Flags().StringVarP(&configPath, "config", "c", "", configUsage)
	cmd.Flags().DurationVar(&timeout, "timeout", 5*time.Second, "Connect and write timeout")
	return cmd
}
