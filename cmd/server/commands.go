package main

import (
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/fatih/color"
	"github.com/mark3labs/mcp-go/server"
	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/leonardcser/qbd-mcp/internal/accounting"
	"github.com/leonardcser/qbd-mcp/internal/apierr"
	"github.com/leonardcser/qbd-mcp/internal/config"
	"github.com/leonardcser/qbd-mcp/internal/tools"
)

var (
	readColor        = color.New(color.FgGreen).SprintFunc()
	writeColor       = color.New(color.FgYellow).SprintFunc()
	destructiveColor = color.New(color.FgRed, color.Bold).SprintFunc()
)

// newToolsCmd lists the tool catalogue without contacting the API.
func newToolsCmd(v *viper.Viper, flags *rootFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "tools",
		Short: "List the MCP tools this server registers",
		Long: `Print every enabled tool with its access level and a one-line description.
Tools named in DISABLED_TOOLS or --disabled-tools are omitted.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if err := config.Setup(v); err != nil {
				return err
			}
			if err := config.ApplyEnvArgs(v, flags.env); err != nil {
				return err
			}
			disabled := strings.Split(v.GetString(config.KeyDisabledTools), ",")
			return printTools(cmd.OutOrStdout(), tools.New(tools.Deps{Disabled: disabled}).Tools())
		},
	}
}

func printTools(w io.Writer, list []server.ServerTool) error {
	table := tablewriter.NewWriter(w)
	table.Header([]string{"Tool", "Access", "Description"})
	rows := make([][]string, 0, len(list))
	for _, t := range list {
		desc, _, _ := strings.Cut(t.Tool.Description, "\n")
		rows = append(rows, []string{t.Tool.Name, access(t), desc})
	}
	if err := table.Bulk(rows); err != nil {
		return err
	}
	if err := table.Render(); err != nil {
		return err
	}
	_, err := fmt.Fprintf(w, "%d tools\n", len(list))
	return err
}

func access(t server.ServerTool) string {
	a := t.Tool.Annotations
	switch {
	case a.DestructiveHint != nil && *a.DestructiveHint:
		return destructiveColor("destructive")
	case a.ReadOnlyHint != nil && *a.ReadOnlyHint:
		return readColor("read-only")
	default:
		return writeColor("write")
	}
}

// newCheckCmd probes the QuickBooks Desktop connection of an end-user.
func newCheckCmd(v *viper.Viper, flags *rootFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "check",
		Short: "Check the QuickBooks Desktop connection of the configured end-user",
		Long: `Call the Conductor health check for the default end-user (or --end-user-id)
and report whether QuickBooks Desktop is reachable. Exits non-zero when it is not.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig(v, flags)
			if err != nil {
				return err
			}
			client, err := newClient(cfg, nil, nil, nil)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			start := time.Now()
			if _, err := client.Get(cmd.Context(), accounting.EndpointHealthCheck, nil, false); err != nil {
				e := apierr.Translate(err)
				fmt.Fprintf(out, "%s end-user %s: %s\n", destructiveColor("DISCONNECTED"), cfg.EndUserID, e.Message)
				return fmt.Errorf("health check failed (%s)", e.Kind)
			}
			fmt.Fprintf(out, "%s end-user %s responded in %s\n",
				readColor("CONNECTED"), cfg.EndUserID, time.Since(start).Round(time.Millisecond))
			return nil
		},
	}
}
