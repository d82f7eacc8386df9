package main

import (
	"fmt"
	"os"

	"github.com/Wyydra/duo/internal/config"
	"github.com/Wyydra/duo/internal/logging"
	"github.com/spf13/cobra"
)

var peerOpts config.PeerOptions

var rootCmd = &cobra.Command{
	Use:   "duo",
	Short: "Chat and video call with a random stranger from your terminal",
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.LoadPeer(peerOpts)
		if err != nil {
			return err
		}
		logging.Init(cfg.LogLevel, false)
		return nil
	},
}

func init() {
	f := rootCmd.PersistentFlags()
	f.StringVarP(&peerOpts.ServerURL, "server", "s", "", "signaling server URL (env DUO_SERVER, default "+config.DefaultServerURL+")")
	f.StringVar(&peerOpts.LogLevel, "log-level", "", "debug, info, warn or error (env LOG_LEVEL, default warn)")

	rootCmd.AddCommand(chatCmd, statsCmd, discoverCmd)
}

func loadPeer() (*config.Peer, error) {
	return config.LoadPeer(peerOpts)
}

func main() {
	rootCmd.SilenceErrors = true
	rootCmd.SilenceUsage = true

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}
