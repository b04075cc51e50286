package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/vovakirdan/wirechat-client/internal/auth"
	"github.com/vovakirdan/wirechat-client/internal/store"
	"github.com/vovakirdan/wirechat-client/internal/tui"
)

const shutdownTimeout = 5 * time.Second

func newChatCmd(flags *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "chat",
		Short: "Open the chat screen (default)",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, logger, cleanup, err := openApp(flags, true)
			if err != nil {
				return err
			}
			defer cleanup()

			ctx := cmd.Context()
			chat, err := a.StartChat(ctx)
			if err != nil {
				if errors.Is(err, auth.ErrTokenExpired) {
					return fmt.Errorf("%w: run `wirechat-client login` again", err)
				}
				return err
			}

			uiErr := tui.Run(ctx, chat, chat.Identity.Username)

			shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
			defer cancel()
			if err := chat.Close(shutdownCtx); err != nil {
				logger.Warn().Err(err).Msg("teardown failed")
			}
			logger.Info().Msg("chat closed")
			return uiErr
		},
	}
}

func newTopicsCmd(flags *globalFlags) *cobra.Command {
	topics := &cobra.Command{
		Use:   "topics",
		Short: "List or create topics",
	}
	topics.AddCommand(&cobra.Command{
		Use:   "list",
		Short: "Print the server's topic list",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, _, cleanup, err := openApp(flags, false)
			if err != nil {
				return err
			}
			defer cleanup()

			names, err := a.API().ListTopics(cmd.Context())
			if err != nil {
				return err
			}
			for _, name := range names {
				fmt.Fprintln(cmd.OutOrStdout(), name)
			}
			return nil
		},
	})
	topics.AddCommand(&cobra.Command{
		Use:   "create NAME",
		Short: "Create a topic",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, _, cleanup, err := openApp(flags, false)
			if err != nil {
				return err
			}
			defer cleanup()

			if err := a.API().CreateTopic(cmd.Context(), args[0]); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "created %s\n", args[0])
			return nil
		},
	})
	return topics
}

func newEmotesCmd(flags *globalFlags) *cobra.Command {
	emotes := &cobra.Command{
		Use:   "emotes",
		Short: "Inspect the emote store",
	}
	emotes.AddCommand(&cobra.Command{
		Use:   "list",
		Short: "Print every uploaded emote",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, _, cleanup, err := openApp(flags, false)
			if err != nil {
				return err
			}
			defer cleanup()

			names, err := a.API().ListEmotes(cmd.Context())
			if err != nil {
				return err
			}
			for _, name := range names {
				fmt.Fprintf(cmd.OutOrStdout(), ":%s:\t%s\n", name, a.API().EmoteURL(name))
			}
			return nil
		},
	})
	emotes.AddCommand(&cobra.Command{
		Use:   "upload NAME FILE",
		Short: "Upload an image as :NAME:",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, _, cleanup, err := openApp(flags, false)
			if err != nil {
				return err
			}
			defer cleanup()

			f, err := os.Open(args[1])
			if err != nil {
				return fmt.Errorf("open emote image: %w", err)
			}
			defer f.Close()

			if err := a.API().UploadEmote(cmd.Context(), args[0], filepath.Base(args[1]), f); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "uploaded :%s:\n", args[0])
			return nil
		},
	})
	emotes.AddCommand(&cobra.Command{
		Use:   "delete NAME",
		Short: "Delete an emote",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, _, cleanup, err := openApp(flags, false)
			if err != nil {
				return err
			}
			defer cleanup()

			if err := a.API().DeleteEmote(cmd.Context(), args[0]); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "deleted :%s:\n", args[0])
			return nil
		},
	})
	emotes.AddCommand(&cobra.Command{
		Use:   "resolve NAME...",
		Short: "Resolve emote names the way chat messages do",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, _, cleanup, err := openApp(flags, false)
			if err != nil {
				return err
			}
			defer cleanup()

			for _, name := range args {
				ref, err := a.Resolver().Resolve(cmd.Context(), name)
				if err != nil {
					fmt.Fprintf(cmd.OutOrStdout(), ":%s:\tunresolved (%v)\n", name, err)
					continue
				}
				fmt.Fprintf(cmd.OutOrStdout(), ":%s:\t%s\n", ref.Name, ref.Location)
			}
			return nil
		},
	})
	return emotes
}

func newLoginCmd(flags *globalFlags) *cobra.Command {
	var password string
	cmd := &cobra.Command{
		Use:   "login USERNAME",
		Short: "Log in and remember the identity for this server",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, _, cleanup, err := openApp(flags, false)
			if err != nil {
				return err
			}
			defer cleanup()

			if password == "" {
				password, err = promptLine(cmd, bufio.NewReader(cmd.InOrStdin()), "password: ")
				if err != nil {
					return err
				}
			}
			identity, err := a.Auth().Login(cmd.Context(), args[0], password)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "logged in as %s on %s\n", identity.Username, identity.Server)
			return nil
		},
	}
	cmd.Flags().StringVarP(&password, "password", "p", "", "password (prompted when omitted)")
	return cmd
}

func newSignupCmd(flags *globalFlags) *cobra.Command {
	var password string
	cmd := &cobra.Command{
		Use:   "signup USERNAME",
		Short: "Create an account and remember its username for this server",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, _, cleanup, err := openApp(flags, false)
			if err != nil {
				return err
			}
			defer cleanup()

			if password == "" {
				in := bufio.NewReader(cmd.InOrStdin())
				if password, err = promptLine(cmd, in, "password: "); err != nil {
					return err
				}
				confirm, err := promptLine(cmd, in, "confirm password: ")
				if err != nil {
					return err
				}
				if confirm != password {
					return errors.New("passwords do not match")
				}
			}
			identity, err := a.Auth().Signup(cmd.Context(), args[0], password)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "signed up as %s on %s\n", identity.Username, identity.Server)
			return nil
		},
	}
	cmd.Flags().StringVarP(&password, "password", "p", "", "password (prompted twice when omitted)")
	return cmd
}

func newLogoutCmd(flags *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "logout",
		Short: "Forget the saved identity for this server",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, _, cleanup, err := openApp(flags, false)
			if err != nil {
				return err
			}
			defer cleanup()

			if err := a.Auth().Logout(cmd.Context()); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "logged out")
			return nil
		},
	}
}

func newWhoamiCmd(flags *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "whoami",
		Short: "Show the identity chat would use",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, _, cleanup, err := openApp(flags, false)
			if err != nil {
				return err
			}
			defer cleanup()

			saved, err := a.Auth().Current(cmd.Context())
			switch {
			case errors.Is(err, store.ErrNoIdentity):
				fmt.Fprintln(cmd.OutOrStdout(), "no saved login")
			case errors.Is(err, auth.ErrTokenExpired):
				fmt.Fprintf(cmd.OutOrStdout(), "%s (login expired)\n", saved.Username)
			case err != nil:
				return err
			default:
				fmt.Fprintf(cmd.OutOrStdout(), "%s", saved.Username)
				if saved.LastTopic != "" {
					fmt.Fprintf(cmd.OutOrStdout(), " (last topic #%s)", saved.LastTopic)
				}
				fmt.Fprintln(cmd.OutOrStdout())
			}

			id, err := a.Identity(cmd.Context())
			if err != nil {
				return nil
			}
			fmt.Fprintf(cmd.OutOrStdout(), "chat identity: %s\n", id.Username)
			return nil
		},
	}
}

// promptLine prints prompt and reads one line from in.
func promptLine(cmd *cobra.Command, in *bufio.Reader, prompt string) (string, error) {
	fmt.Fprint(cmd.OutOrStdout(), prompt)
	line, err := in.ReadString('\n')
	if err != nil && line == "" {
		return "", fmt.Errorf("read %s: %w", strings.TrimSuffix(prompt, ": "), err)
	}
	return strings.TrimRight(line, "\r\n"), nil
}
