package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/Thalpy/stoat-ai-interface/pkg/protocol"
)

// Version is set at build time via -ldflags "-X github.com/Thalpy/stoat-ai-interface/cmd.Version=v1.0.0"
var Version = "dev"

var (
	cfgFile string
	verbose bool
)

var rootCmd = &cobra.Command{
	Use:   "stoat-bridge",
	Short: "Stoat AI bridge",
	Long:  "stoat-bridge connects a Stoat bot account to an AI agent gateway: it classifies inbound messages, queues and batches turns per conversation, and mirrors turn state back as reactions.",
	Run: func(cmd *cobra.Command, args []string) {
		runBridge()
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default: config.json or $STOAT_BRIDGE_CONFIG)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable debug logging")

	rootCmd.AddCommand(versionCmd())
}

func versionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("stoat-bridge %s (protocol %d)\n", Version, protocol.ProtocolVersion)
		},
	}
}

func resolveConfigPath() string {
	if cfgFile != "" {
		return cfgFile
	}
	if v := os.Getenv("STOAT_BRIDGE_CONFIG"); v != "" {
		return v
	}
	return "config.json"
}

// Execute runs the root cobra command.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
