package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	chatcmder "github.com/zhouzirui/implantai/backend/cmd/implantctl/chat"
	preprocesscmder "github.com/zhouzirui/implantai/backend/cmd/implantctl/preprocess"
	"github.com/zhouzirui/implantai/backend/internal/telemetry"
)

const rootLongDesc string = `implantctl is the terminal client for ImplantAI.

It runs the same conversation stack as the API server in-process:
chat with the clinical assistant, switch models, attach radiographs
and preview how images are downscaled before they are sent.`

func newRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:           "implantctl",
		Short:         "ImplantAI terminal client",
		Long:          rootLongDesc,
		Version:       telemetry.Version,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			// .env is optional
			_ = godotenv.Load()
		},
	}

	cmd.PersistentFlags().String("config", "", "TOML configuration file (defaults to $IMPLANTAI_CONFIG)")

	cmd.AddCommand(chatcmder.NewChatCmd())
	cmd.AddCommand(preprocesscmder.NewPreprocessCmd())
	return cmd
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}
