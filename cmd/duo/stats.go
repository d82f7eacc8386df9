package main

import (
	"net/http"
	"os"
	"time"

	"github.com/Wyydra/duo/internal/app"
	"github.com/spf13/cobra"
)

var statsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show how many people are online",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadPeer()
		if err != nil {
			return err
		}

		client := &http.Client{Timeout: 5 * time.Second}
		base := cfg.HTTPBase()
		stats, err := app.FetchStats(cmd.Context(), client, base)
		if err != nil {
			return err
		}
		app.RenderStats(os.Stdout, base, stats)
		return nil
	},
}
