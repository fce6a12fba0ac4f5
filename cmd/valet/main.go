// Valet daemon and CLI - a personal assistant reachable over SMS and email.
package main

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/valet-hq/valet/internal/api"
	"github.com/valet-hq/valet/internal/config"
	"github.com/valet-hq/valet/internal/core"
	"github.com/valet-hq/valet/internal/decision"
	"github.com/valet-hq/valet/internal/digest"
	"github.com/valet-hq/valet/internal/dispatch"
	"github.com/valet-hq/valet/internal/history"
	"github.com/valet-hq/valet/internal/inbox"
	"github.com/valet-hq/valet/internal/llm"
	"github.com/valet-hq/valet/internal/logging"
	"github.com/valet-hq/valet/internal/mailbox"
	"github.com/valet-hq/valet/internal/memory"
	"github.com/valet-hq/valet/internal/notify"
	"github.com/valet-hq/valet/internal/pipeline"
	"github.com/valet-hq/valet/internal/reminders"
	"github.com/valet-hq/valet/internal/resolve"
	"github.com/valet-hq/valet/internal/scheduler"
	"github.com/valet-hq/valet/internal/store"
)

var (
	configPath string
	verbose    bool

	version = "0.1.0"
)

func main() {
	// A missing .env is fine; the config layer reads the environment.
	_ = godotenv.Load()

	rootCmd := &cobra.Command{
		Use:   "valet",
		Short: "Valet - a personal assistant over SMS and email",
		Long: `Valet is a personal AI assistant you reach by text message or email.

It reads and acts on your mail, schedules reminders that merge when they
cluster, and remembers facts you tell it. Everything runs from a single
daemon against your own accounts.`,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			if verbose {
				logging.SetLevel(logging.DEBUG)
			}
		},
	}

	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "config file path")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "debug logging")

	rootCmd.AddCommand(serveCmd())
	rootCmd.AddCommand(chatCmd())
	rootCmd.AddCommand(authCmd())
	rootCmd.AddCommand(versionCmd())

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// app holds the assembled daemon components.
type app struct {
	cfg      *config.Config
	db       store.Store
	mail     mailbox.Mailbox
	notifier notify.Notifier
	rem      *reminders.Store
	pipe     *pipeline.Pipeline
}

// buildApp wires the component graph. With console=true notifications go to
// the log instead of the SMS gateway, for local sessions.
func buildApp(cfg *config.Config, console bool) (*app, error) {
	var dbPath string
	if cfg.DataDir != "" {
		if err := os.MkdirAll(cfg.DataDir, 0700); err != nil {
			logging.Warn("create data dir %s: %v", cfg.DataDir, err)
		} else {
			dbPath = filepath.Join(cfg.DataDir, "valet.db")
		}
	}
	db := store.Open(dbPath)

	mail, err := buildMailbox(cfg)
	if err != nil {
		db.Close()
		return nil, err
	}

	var notifier notify.Notifier
	if console || mail == nil {
		notifier = notify.Console{}
	} else {
		notifier = notify.NewSMSGateway(mail, cfg.Owner.NotifyAccount)
	}

	facts := memory.NewFacts(db)
	hist := history.NewLog(db, 0)

	// The reminder callback routes wakeups back through the pipeline; the
	// pipeline does not exist yet, so the closure captures the variable.
	var pipe *pipeline.Pipeline
	rem := reminders.NewStore(db, func(ctx context.Context, instruction string) error {
		if pipe == nil {
			return fmt.Errorf("pipeline not ready")
		}
		_, err := pipe.Handle(ctx, core.InboundMessage{
			Channel:   core.ChannelSMS,
			Sender:    cfg.Owner.Contact,
			Text:      instruction,
			Scope:     core.ScopeGeneral,
			Timestamp: time.Now(),
		})
		return err
	}, reminders.Config{MergeWindow: cfg.Reminders.MergeWindow()})

	var resolver *resolve.Resolver
	if mail != nil {
		resolver = resolve.NewResolver(mail)
	}

	dispatcher := dispatch.NewDispatcher(notifier, dispatch.Config{
		OwnerContact:   cfg.Owner.Contact,
		GatewayAddress: cfg.Owner.GatewayAddress,
	})
	dispatch.RegisterAll(dispatcher, dispatch.Deps{
		Mailbox:   mail,
		Resolver:  resolver,
		Reminders: rem,
		Facts:     facts,
		Notifier:  notifier,
		Owner:     cfg.Owner.Contact,
	})

	client := llm.NewClient(llm.Config{
		APIKey: cfg.LLM.APIKey,
		Model:  cfg.LLM.Model,
	})
	pipe = pipeline.New(client, decision.NewNormalizer(""), dispatcher,
		hist, facts, notifier, cfg.Owner.Contact)

	return &app{cfg: cfg, db: db, mail: mail, notifier: notifier, rem: rem, pipe: pipe}, nil
}

// buildMailbox authenticates every configured account. No accounts means no
// mailbox; mail actions simply stay unregistered.
func buildMailbox(cfg *config.Config) (mailbox.Mailbox, error) {
	if len(cfg.Accounts) == 0 {
		logging.Warn("no email accounts configured; mail actions disabled")
		return nil, nil
	}

	flow := mailbox.NewOAuthFlow(mailbox.OAuthConfig{
		ClientID:     cfg.Google.ClientID,
		ClientSecret: cfg.Google.ClientSecret,
		RedirectURL:  "http://localhost:8765/callback",
	})

	creds := make([]mailbox.Credential, 0, len(cfg.Accounts))
	for _, a := range cfg.Accounts {
		tokenFile := a.TokenFile
		if tokenFile == "" {
			tokenFile = filepath.Join(cfg.DataDir, "tokens", a.ID+".json")
		}
		creds = append(creds, mailbox.Credential{
			Account:   mailbox.Account{ID: a.ID, Email: a.Email},
			TokenFile: tokenFile,
		})
	}
	g, err := mailbox.NewGmailFromCredentials(context.Background(), flow, creds)
	if err != nil {
		return nil, err
	}
	return g, nil
}

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the Valet daemon",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(configPath)
			if err != nil {
				return err
			}
			if err := cfg.Validate(); err != nil {
				return err
			}

			a, err := buildApp(cfg, false)
			if err != nil {
				return err
			}
			defer a.db.Close()

			sched := scheduler.New()
			if err := sched.Every("reminder-sweep", cfg.Reminders.SweepInterval(), a.rem.ProcessWakeups); err != nil {
				return err
			}
			if cfg.Poll.Enabled && a.mail != nil {
				poller := inbox.NewPoller(a.mail, a.pipe, cfg.AllowedSenders)
				if err := sched.Every("inbox-poll", cfg.Poll.Interval(), poller.Poll); err != nil {
					return err
				}
			}
			if cfg.DigestCron != "" {
				b := digest.NewBuilder(a.mail, a.rem, a.notifier, cfg.Owner.Contact)
				if err := sched.Cron("daily-digest", cfg.DigestCron, b.Deliver); err != nil {
					return err
				}
			}
			if err := sched.Start(); err != nil {
				return err
			}
			defer sched.Stop()

			server := api.New(api.Config{
				Host:           cfg.Server.Host,
				Port:           cfg.Server.Port,
				Pipeline:       a.pipe,
				Reminders:      a.rem,
				Scheduler:      sched,
				AllowedSenders: cfg.AllowedSenders,
			})

			errCh := make(chan error, 1)
			go func() { errCh <- server.Start() }()

			sigCh := make(chan os.Signal, 1)
			signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

			select {
			case err := <-errCh:
				return err
			case sig := <-sigCh:
				logging.Info("received %s, shutting down", sig)
				shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
				defer cancel()
				return server.Shutdown(shutdownCtx)
			}
		},
	}
}

func chatCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "chat",
		Short: "Talk to Valet from the terminal",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(configPath)
			if err != nil {
				return err
			}

			a, err := buildApp(cfg, true)
			if err != nil {
				return err
			}
			defer a.db.Close()

			fmt.Println("Valet chat. Ctrl-D to quit.")
			scanner := bufio.NewScanner(os.Stdin)
			for {
				fmt.Print("> ")
				if !scanner.Scan() {
					fmt.Println()
					return scanner.Err()
				}
				text := strings.TrimSpace(scanner.Text())
				if text == "" {
					continue
				}

				result, err := a.pipe.Handle(cmd.Context(), core.InboundMessage{
					Channel:   core.ChannelTerminal,
					Sender:    "terminal",
					Text:      text,
					Scope:     core.ScopeGeneral,
					Timestamp: time.Now(),
				})
				if err != nil {
					fmt.Printf("error: %v\n", err)
					continue
				}
				fmt.Println(result.Decision.Response)
				for _, action := range result.Actions {
					if !action.Success {
						fmt.Printf("  [%s failed: %s]\n", action.Action, action.Error)
					}
				}
			}
		},
	}
}

func authCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "auth <account-id>",
		Short: "Authorize a Gmail account",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(configPath)
			if err != nil {
				return err
			}

			var account *config.AccountConfig
			for i := range cfg.Accounts {
				if cfg.Accounts[i].ID == args[0] {
					account = &cfg.Accounts[i]
					break
				}
			}
			if account == nil {
				return fmt.Errorf("account %q is not in the config", args[0])
			}

			flow := mailbox.NewOAuthFlow(mailbox.OAuthConfig{
				ClientID:     cfg.Google.ClientID,
				ClientSecret: cfg.Google.ClientSecret,
				RedirectURL:  "http://localhost:8765/callback",
			})

			fmt.Println("Open this URL and authorize access:")
			fmt.Println(flow.AuthURL(account.ID))
			fmt.Print("\nPaste the authorization code: ")

			reader := bufio.NewReader(os.Stdin)
			code, _ := reader.ReadString('\n')
			code = strings.TrimSpace(code)
			if code == "" {
				return fmt.Errorf("no code entered")
			}

			token, err := flow.ExchangeCode(cmd.Context(), code)
			if err != nil {
				return fmt.Errorf("exchange code: %w", err)
			}

			tokenPath := account.TokenFile
			if tokenPath == "" {
				tokenPath = filepath.Join(cfg.DataDir, "tokens", account.ID+".json")
			}
			if err := os.MkdirAll(filepath.Dir(tokenPath), 0700); err != nil {
				return err
			}
			if err := mailbox.SaveToken(tokenPath, token); err != nil {
				return err
			}
			fmt.Printf("Token saved to %s\n", tokenPath)
			return nil
		},
	}
}

func versionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the version",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("valet %s\n", version)
		},
	}
}
