package main

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/Wyydra/duo/internal/adapter/driven/media/pion"
	"github.com/Wyydra/duo/internal/adapter/driven/signaling/ws"
	"github.com/Wyydra/duo/internal/app"
	"github.com/Wyydra/duo/internal/protocol"
	"github.com/spf13/cobra"
)

var chatCmd = &cobra.Command{
	Use:   "chat",
	Short: "Meet a stranger",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadPeer()
		if err != nil {
			return err
		}

		codec, err := protocol.ByName("duo." + cfg.Codec)
		if err != nil {
			return err
		}
		peers, err := pion.NewPeerFactory(cfg)
		if err != nil {
			return err
		}

		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		client := ws.NewClient(cfg.ServerURL, codec)
		if err := client.Connect(ctx); err != nil {
			return fmt.Errorf("cannot reach %s: %w", cfg.ServerURL, err)
		}
		defer client.Close()

		session := app.NewSession(client, &pion.Source{Unavailable: cfg.NoMedia}, peers, os.Stdout)
		return session.Run(ctx, os.Stdin)
	},
}

func init() {
	f := chatCmd.Flags()
	f.StringVar(&peerOpts.Codec, "codec", "", "wire codec, json or msgpack (env DUO_CODEC)")
	f.StringVar(&peerOpts.STUNServer, "stun", "", "STUN server (env STUN_SERVER)")
	f.StringVar(&peerOpts.TURNServer, "turn", "", "TURN server host (env TURN_SERVER)")
	f.StringVar(&peerOpts.TURNUser, "turn-user", "", "TURN username (env TURN_USERNAME)")
	f.StringVar(&peerOpts.TURNPass, "turn-pass", "", "TURN password (env TURN_PASSWORD)")
	f.BoolVar(&peerOpts.NoMedia, "no-media", false, "behave as if camera and microphone were denied (env DUO_NO_MEDIA)")

}
