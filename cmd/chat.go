package cmd

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"

	"github.com/spf13/cobra"

	"github.com/steamfamilyzap/kgbot/internal/agent"
	"github.com/steamfamilyzap/kgbot/internal/config"
	"github.com/steamfamilyzap/kgbot/internal/mentions"
	"github.com/steamfamilyzap/kgbot/internal/store"
)

func chatCmd() *cobra.Command {
	var (
		as      string
		message string
	)
	cmd := &cobra.Command{
		Use:   "chat",
		Short: "Talk to the bot from the terminal as a family member",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			ctx, cancel := signal.NotifyContext(cmd.Context(), os.Interrupt)
			defer cancel()

			a, err := newApp(ctx, cfg)
			if err != nil {
				return err
			}
			defer a.Close()

			requester, err := a.member(ctx, as)
			if err != nil {
				return err
			}
			prompt, err := a.newPromptBuilder(cfg.Channels.Active)
			if err != nil {
				return err
			}
			bot, err := a.newAgent(ctx, prompt)
			if err != nil {
				return err
			}

			if message != "" {
				return chatOnce(ctx, bot, requester, message)
			}
			return chatREPL(ctx, bot, requester, cfg)
		},
	}
	cmd.Flags().StringVar(&as, "as", "", "nickname of the family member you are speaking as")
	cmd.Flags().StringVarP(&message, "message", "m", "", "send one message and exit")
	return cmd
}

func chatOnce(ctx context.Context, bot *agent.Agent, requester *store.Profile, text string) error {
	reply, err := bot.Respond(ctx, requester, text, mentions.DefaultToken)
	if err != nil {
		return err
	}
	printReply(reply)
	return nil
}

func chatREPL(ctx context.Context, bot *agent.Agent, requester *store.Profile, cfg *config.Config) error {
	fmt.Fprintf(os.Stderr, "\n%s, local chat\n", cfg.Bot.Name)
	fmt.Fprintf(os.Stderr, "Speaking as: %s | Model: %s\n", requester.Nickname, bot.Model())
	fmt.Fprintf(os.Stderr, "Type \"exit\" to quit\n\n")

	scanner := bufio.NewScanner(os.Stdin)
	for {
		select {
		case <-ctx.Done():
			fmt.Fprintln(os.Stderr, "\nAté mais!")
			return nil
		default:
		}

		fmt.Fprintf(os.Stderr, "%s: ", requester.Nickname)
		if !scanner.Scan() {
			return scanner.Err()
		}
		input := strings.TrimSpace(scanner.Text())
		if input == "" {
			continue
		}
		if input == "exit" || input == "quit" {
			fmt.Fprintln(os.Stderr, "Até mais!")
			return nil
		}

		reply, err := bot.Respond(ctx, requester, input, mentions.DefaultToken)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n\n", err)
			continue
		}
		printReply(reply)
	}
}

func printReply(reply *agent.Reply) {
	if reply == nil {
		fmt.Println("\n(no reply)")
		fmt.Println()
		return
	}
	fmt.Printf("\n%s\n", reply.Text)
	if reply.ImageURL != "" {
		fmt.Printf("[image] %s\n", reply.ImageURL)
	}
	if reply.Intent != "" {
		fmt.Fprintf(os.Stderr, "(intent: %s)\n", reply.Intent)
	}
	fmt.Println()
}
