package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"text/tabwriter"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/quasar/craftauth/internal/api"
	"github.com/quasar/craftauth/internal/app"
	"github.com/quasar/craftauth/internal/auth"
	"github.com/quasar/craftauth/internal/oauth"
)

func main() {
	root := &cobra.Command{
		Use:          "craftauth",
		Short:        "Minecraft account manager with Microsoft sign-in",
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runTUI()
		},
	}
	root.AddCommand(
		listCommand(),
		loginCommand(),
		offlineCommand(),
		removeCommand(),
		refreshCommand(),
		lookupCommand(),
	)

	if err := root.Execute(); err != nil {
		os.Exit(1)
	}
}

func runTUI() error {
	model, err := app.New()
	if err != nil {
		return err
	}
	defer model.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	model.StartBackground(ctx)

	p := tea.NewProgram(
		model,
		tea.WithAltScreen(), // Use alternate screen buffer
	)
	if _, err := p.Run(); err != nil {
		return fmt.Errorf("running program: %w", err)
	}
	return nil
}

func listCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List stored accounts",
		RunE: func(cmd *cobra.Command, args []string) error {
			model, err := app.New()
			if err != nil {
				return err
			}
			defer model.Close()

			def := model.Store().DefaultAccount()
			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "NAME\tTYPE\tPROFILE\tSESSION")
			for _, a := range model.Store().Accounts() {
				name := a.DisplayString()
				if a == def {
					name += " *"
				}
				session := "absent"
				if tok := a.Data().YggdrasilToken; tok.Token != "" {
					notAfter := tok.NotAfter
					if notAfter.IsZero() {
						notAfter = tok.IssueInstant.Add(24 * time.Hour)
					}
					session = "expires " + humanize.Time(notAfter)
				}
				fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", name, a.Type(), a.ProfileID(), session)
			}
			return w.Flush()
		},
	}
}

// consoleObserver prints flow progress for headless logins.
type consoleObserver struct{}

func (consoleObserver) AuthStateChanged(state auth.TaskState, message string) {
	fmt.Printf("  [%s] %s\n", state, message)
}

func (consoleObserver) AuthorizeWithBrowser(v oauth.Verification) {
	fmt.Printf("\nOpen %s and enter the code %s\n\n", v.URI, v.UserCode)
}

func loginCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "login",
		Short: "Sign in with a Microsoft account",
		RunE: func(cmd *cobra.Command, args []string) error {
			model, err := app.New()
			if err != nil {
				return err
			}
			defer model.Close()

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt)
			defer stop()

			account := auth.NewMSAAccount()
			flow, err := account.Login(model.Env(), consoleObserver{})
			if err != nil {
				return err
			}
			if state := flow.Run(ctx); state != auth.StateSucceeded {
				_, msg := account.State()
				return fmt.Errorf("login failed: %s", msg)
			}
			if err := model.Store().Add(account); err != nil {
				return err
			}
			if model.Store().DefaultAccount() == nil {
				model.Store().SetDefault(account.InternalID())
			}
			if err := model.Store().Save(); err != nil {
				return err
			}
			fmt.Printf("Logged in as %s\n", account.DisplayString())
			return nil
		},
	}
}

func offlineCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "offline <name>",
		Short: "Add an offline account with the given player name",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			model, err := app.New()
			if err != nil {
				return err
			}
			defer model.Close()

			account := auth.NewOfflineAccount(args[0])
			if err := model.Store().Add(account); err != nil {
				return err
			}
			if model.Store().DefaultAccount() == nil {
				model.Store().SetDefault(account.InternalID())
			}
			if err := model.Store().Save(); err != nil {
				return err
			}
			fmt.Printf("Added offline account %s (%s)\n", account.ProfileName(), account.ProfileID())
			return nil
		},
	}
}

func removeCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "remove <profile-id>",
		Short: "Remove the account owning the given profile id",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			model, err := app.New()
			if err != nil {
				return err
			}
			defer model.Close()

			account := model.Store().FindByProfileID(args[0])
			if account == nil {
				return fmt.Errorf("no account owns profile %s", args[0])
			}
			model.Store().Remove(account.InternalID())
			return model.Store().Save()
		},
	}
}

func lookupCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "lookup <name>",
		Short: "Resolve a player name to its profile id",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			profile, err := api.NewProfileClient().LookupName(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			fmt.Printf("%s %s\n", profile.ID, profile.Name)
			return nil
		},
	}
}

func refreshCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "refresh [profile-id]",
		Short: "Refresh one account, or every stored account",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			model, err := app.New()
			if err != nil {
				return err
			}
			defer model.Close()

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt)
			defer stop()

			targets := model.Store().Accounts()
			if len(args) == 1 {
				account := model.Store().FindByProfileID(args[0])
				if account == nil {
					return fmt.Errorf("no account owns profile %s", args[0])
				}
				targets = []*auth.MinecraftAccount{account}
			}

			for _, account := range targets {
				if account.Type() != auth.AccountTypeMSA {
					continue
				}
				flow, err := account.Refresh(model.Env(), nil)
				if err != nil {
					return err
				}
				state := flow.Run(ctx)
				_, msg := account.State()
				if state == auth.StateSucceeded {
					fmt.Printf("%s: refreshed\n", account.DisplayString())
				} else {
					fmt.Printf("%s: %s (%s)\n", account.DisplayString(), state, msg)
				}
			}
			return model.Store().Save()
		},
	}
}
