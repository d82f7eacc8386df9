package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/Wyydra/duo/internal/adapter/driven/discovery"
	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
)

var discoverTimeout time.Duration

var discoverCmd = &cobra.Command{
	Use:   "discover",
	Short: "Find duo servers on the local network",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, cancel := context.WithTimeout(cmd.Context(), discoverTimeout)
		defer cancel()

		servers, err := discovery.Browse(ctx)
		if err != nil {
			return err
		}
		if len(servers) == 0 {
			fmt.Println("No servers found")
			return nil
		}

		t := table.NewWriter()
		t.SetOutputMirror(os.Stdout)
		t.AppendHeader(table.Row{"Instance", "URL"})
		for _, s := range servers {
			t.AppendRow(table.Row{s.Instance, s.URL()})
		}
		t.SetStyle(table.StyleRounded)
		t.Render()
		return nil
	},
}

func init() {
	discoverCmd.Flags().DurationVar(&discoverTimeout, "timeout", 3*time.Second, "how long to listen for answers")
}
