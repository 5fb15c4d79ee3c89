package cli

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/mfolkes/portwarden/internal/config"
	"github.com/mfolkes/portwarden/internal/logging"
	"github.com/mfolkes/portwarden/internal/notify"
)

const telegramTestTimeout = 15 * time.Second

// telegramCmd represents the telegram command group.
var telegramCmd = &cobra.Command{
	Use:   "telegram",
	Short: "Telegram notification helpers",
	Run: func(cmd *cobra.Command, _ []string) {
		_ = cmd.Help()
	},
}

// telegramTestCmd verifies the configured Telegram credentials.
var telegramTestCmd = &cobra.Command{
	Use:   "test",
	Short: "Send a test notification through Telegram",
	Long: `Verify the configured Telegram bot token and chat ID by calling the
bot API and sending a test message to the configured chat.`,
	Example: `  portwarden telegram test`,
	Run:     runTelegramTest,
}

func init() {
	rootCmd.AddCommand(telegramCmd)
	telegramCmd.AddCommand(telegramTestCmd)
}

func runTelegramTest(_ *cobra.Command, _ []string) {
	cfg, err := config.Load(getConfigFilePath())
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error loading config: %v\n", err)
		os.Exit(1)
	}

	tg := cfg.Notifications.Telegram
	if tg.Token == "" || tg.ChatID == "" {
		fmt.Fprintln(os.Stderr, "Error: telegram token and chat_id must be configured")
		fmt.Fprintln(os.Stderr, "Set notifications.telegram in the configuration file or the")
		fmt.Fprintln(os.Stderr, "PORTWARDEN_TELEGRAM_TOKEN and PORTWARDEN_TELEGRAM_CHAT_ID variables.")
		os.Exit(1)
	}

	notifier := notify.NewTelegramNotifier(tg.Token, tg.ChatID, logging.Default())

	ctx, cancel := context.WithTimeout(context.Background(), telegramTestTimeout)
	defer cancel()

	fmt.Println("Sending test notification...")
	if err := notifier.Test(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Telegram test failed: %v\n", err)
		os.Exit(1)
	}

	fmt.Println("Telegram test succeeded, check the configured chat for the message.")
}
