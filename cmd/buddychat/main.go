// buddychat is a terminal client for buddywalk direct messages. Messages are
// encrypted and decrypted locally; the server only ever sees ciphertext.
package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"buddywalk/internal/client"
	"buddywalk/internal/keystore"

	"github.com/spf13/cobra"
)

// Config holds the command line configuration
type Config struct {
	Server   string
	KeyStore string
	Interval time.Duration
	Password string
}

type session struct {
	api   *client.API
	orch  *client.Orchestrator
	store *keystore.Store
}

func (s *session) Close() error {
	return s.store.Close()
}

func defaultKeyStorePath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "buddychat.db"
	}
	return filepath.Join(home, ".buddychat", "keys.db")
}

func openSession(ctx context.Context, cfg *Config, restore bool) (*session, error) {
	if err := os.MkdirAll(filepath.Dir(cfg.KeyStore), 0700); err != nil {
		return nil, err
	}
	api := client.NewAPI(cfg.Server, nil)
	store, err := keystore.Open(cfg.KeyStore, api.BaseURL())
	if err != nil {
		return nil, err
	}
	s := &session{api: api, orch: client.NewOrchestrator(api, store), store: store}
	if restore {
		if err := s.orch.Restore(ctx); err != nil {
			store.Close()
			if errors.Is(err, client.ErrSessionInvalid) {
				return nil, fmt.Errorf("%w (run `buddychat login`)", err)
			}
			return nil, err
		}
	}
	return s, nil
}

func readPassword(cfg *Config, in io.Reader, out io.Writer) (string, error) {
	if cfg.Password != "" {
		return cfg.Password, nil
	}
	if pw := os.Getenv("BUDDYCHAT_PASSWORD"); pw != "" {
		return pw, nil
	}
	fmt.Fprint(out, "Password: ")
	line, err := bufio.NewReader(in).ReadString('\n')
	if err != nil && line == "" {
		return "", err
	}
	return strings.TrimRight(line, "\r\n"), nil
}

func newRootCommand() *cobra.Command {
	cfg := &Config{}

	cmd := &cobra.Command{
		Use:           "buddychat",
		Short:         "End-to-end encrypted buddywalk messages from the terminal",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	server := os.Getenv("BUDDYCHAT_SERVER")
	if server == "" {
		server = "http://localhost:8080"
	}
	cmd.PersistentFlags().StringVar(&cfg.Server, "server", server, "buddywalk engine base URL")
	cmd.PersistentFlags().StringVar(&cfg.KeyStore, "keystore", defaultKeyStorePath(), "local key store file")
	cmd.PersistentFlags().DurationVar(&cfg.Interval, "interval", 3*time.Second, "poll interval for --watch")

	cmd.AddCommand(
		newRegisterCommand(cfg),
		newLoginCommand(cfg),
		newLogoutCommand(cfg),
		newSendCommand(cfg),
		newReadCommand(cfg),
		newInboxCommand(cfg),
		newUnreadCommand(cfg),
		newDeleteCommand(cfg),
		newBlockCommand(cfg),
		newUnblockCommand(cfg),
		newBlocksCommand(cfg),
	)
	return cmd
}

func newRegisterCommand(cfg *Config) *cobra.Command {
	var in client.SignupInput
	cmd := &cobra.Command{
		Use:   "register",
		Short: "Create an account with a keypair generated on this device",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			pw, err := readPassword(cfg, cmd.InOrStdin(), cmd.OutOrStdout())
			if err != nil {
				return err
			}
			in.Password = pw

			s, err := openSession(cmd.Context(), cfg, false)
			if err != nil {
				return err
			}
			defer s.Close()
			if err := s.orch.Register(cmd.Context(), in); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Registered and logged in as %s\n", s.orch.UserID())
			return nil
		},
	}
	cmd.Flags().StringVar(&in.Name, "name", "", "your name")
	cmd.Flags().StringVar(&in.DogName, "dog", "", "your dog's name")
	cmd.Flags().StringVar(&in.Email, "email", "", "login email")
	cmd.Flags().StringVar(&in.Gender, "gender", "", "your gender")
	cmd.Flags().StringVar(&in.VisibleToGender, "visible-to", "all", "accept messages from this gender only, or all")
	cmd.Flags().StringVar(&cfg.Password, "password", "", "password (prompted if empty)")
	cmd.MarkFlagRequired("name")
	cmd.MarkFlagRequired("email")
	return cmd
}

func newLoginCommand(cfg *Config) *cobra.Command {
	var email string
	cmd := &cobra.Command{
		Use:   "login",
		Short: "Log in and unlock the private key on this device",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			pw, err := readPassword(cfg, cmd.InOrStdin(), cmd.OutOrStdout())
			if err != nil {
				return err
			}
			s, err := openSession(cmd.Context(), cfg, false)
			if err != nil {
				return err
			}
			defer s.Close()
			if err := s.orch.Login(cmd.Context(), email, pw); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Logged in as %s\n", s.orch.UserID())
			return nil
		},
	}
	cmd.Flags().StringVar(&email, "email", "", "login email")
	cmd.Flags().StringVar(&cfg.Password, "password", "", "password (prompted if empty)")
	cmd.MarkFlagRequired("email")
	return cmd
}

func newLogoutCommand(cfg *Config) *cobra.Command {
	return &cobra.Command{
		Use:   "logout",
		Short: "Forget the session and the private key on this device",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := openSession(cmd.Context(), cfg, false)
			if err != nil {
				return err
			}
			defer s.Close()
			return s.orch.Logout()
		},
	}
}

func newSendCommand(cfg *Config) *cobra.Command {
	return &cobra.Command{
		Use:   "send <userId> <message...>",
		Short: "Send a message",
		Args:  cobra.MinimumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := openSession(cmd.Context(), cfg, true)
			if err != nil {
				return err
			}
			defer s.Close()

			msg, err := s.orch.Send(cmd.Context(), args[0], strings.Join(args[1:], " "))
			if err != nil {
				return err
			}
			mode := "plaintext"
			if msg.IsEncrypted() {
				mode = "encrypted"
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Sent %s (%s)\n", msg.ID, mode)
			return nil
		},
	}
}

func newReadCommand(cfg *Config) *cobra.Command {
	var watch bool
	cmd := &cobra.Command{
		Use:   "read <userId>",
		Short: "Show the conversation with a user and mark it read",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := openSession(cmd.Context(), cfg, true)
			if err != nil {
				return err
			}
			defer s.Close()
			peerID := args[0]
			out := cmd.OutOrStdout()

			if name, err := s.api.PartnerName(cmd.Context(), peerID); err == nil {
				fmt.Fprintf(out, "== %s ==\n", name)
			}

			fetch := func(ctx context.Context) (*client.Conversation, error) {
				conv, err := s.orch.Conversation(ctx, peerID)
				if err != nil {
					return nil, err
				}
				return conv, s.api.MarkRead(ctx, peerID)
			}
			render := func(conv *client.Conversation) { printConversation(out, conv) }
			return runView(cmd.Context(), cfg, out, watch, fetch, render)
		},
	}
	cmd.Flags().BoolVarP(&watch, "watch", "w", false, "keep polling for new messages")
	return cmd
}

func newInboxCommand(cfg *Config) *cobra.Command {
	var watch bool
	cmd := &cobra.Command{
		Use:   "inbox",
		Short: "List conversations, newest first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := openSession(cmd.Context(), cfg, true)
			if err != nil {
				return err
			}
			defer s.Close()
			out := cmd.OutOrStdout()
			render := func(entries []client.InboxEntry) { printInbox(out, entries) }
			return runView(cmd.Context(), cfg, out, watch, s.orch.Inbox, render)
		},
	}
	cmd.Flags().BoolVarP(&watch, "watch", "w", false, "keep polling for new messages")
	return cmd
}

func newUnreadCommand(cfg *Config) *cobra.Command {
	return &cobra.Command{
		Use:   "unread",
		Short: "Number of conversations with unread messages",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := openSession(cmd.Context(), cfg, true)
			if err != nil {
				return err
			}
			defer s.Close()
			n, err := s.api.UnreadCount(cmd.Context())
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), n)
			return nil
		},
	}
}

func newDeleteCommand(cfg *Config) *cobra.Command {
	var conversation bool
	cmd := &cobra.Command{
		Use:   "delete <messageId | userId>",
		Short: "Delete one of your messages, or with --conversation hide a conversation from your view",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := openSession(cmd.Context(), cfg, true)
			if err != nil {
				return err
			}
			defer s.Close()
			if conversation {
				return s.api.DeleteConversation(cmd.Context(), args[0])
			}
			return s.api.DeleteMessage(cmd.Context(), args[0])
		},
	}
	cmd.Flags().BoolVar(&conversation, "conversation", false, "argument is a user id; hide the whole conversation")
	return cmd
}

func newBlockCommand(cfg *Config) *cobra.Command {
	return &cobra.Command{
		Use:   "block <userId>",
		Short: "Block a user in both directions",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := openSession(cmd.Context(), cfg, true)
			if err != nil {
				return err
			}
			defer s.Close()
			return s.api.Block(cmd.Context(), args[0])
		},
	}
}

func newUnblockCommand(cfg *Config) *cobra.Command {
	return &cobra.Command{
		Use:   "unblock <userId>",
		Short: "Remove a block you placed",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := openSession(cmd.Context(), cfg, true)
			if err != nil {
				return err
			}
			defer s.Close()
			return s.api.Unblock(cmd.Context(), args[0])
		},
	}
}

func newBlocksCommand(cfg *Config) *cobra.Command {
	return &cobra.Command{
		Use:   "blocks",
		Short: "List users you have blocked",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := openSession(cmd.Context(), cfg, true)
			if err != nil {
				return err
			}
			defer s.Close()
			blocks, err := s.api.Blocks(cmd.Context())
			if err != nil {
				return err
			}
			for _, b := range blocks {
				fmt.Fprintf(cmd.OutOrStdout(), "%s  since %s\n", b.BlockedUserID, b.CreatedAt.Local().Format(time.RFC822))
			}
			return nil
		},
	}
}

// runView fetches once, or keeps polling until interrupted when watch is set.
// Each poll redraws the whole screen.
func runView[T any](ctx context.Context, cfg *Config, out io.Writer, watch bool, fetch func(context.Context) (T, error), render func(T)) error {
	if !watch {
		v, err := fetch(ctx)
		if err != nil {
			return err
		}
		render(v)
		return nil
	}

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()
	ticker := time.NewTicker(cfg.Interval)
	defer ticker.Stop()

	poller := client.NewPoller(fetch, func(v T) {
		fmt.Fprint(out, "\033[H\033[2J")
		render(v)
	})
	if err := poller.Run(ctx, ticker.C); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}

func printConversation(w io.Writer, conv *client.Conversation) {
	for _, m := range conv.Messages {
		who := "them"
		if m.Mine {
			who = "me"
		}
		lock := " "
		if m.Encrypted {
			lock = "*"
		}
		fmt.Fprintf(w, "%s %s %-4s %s\n", m.CreatedAt.Local().Format("Jan 02 15:04"), lock, who, m.Text)
	}
	if conv.SeenAt != nil && len(conv.Messages) > 0 {
		last := conv.Messages[len(conv.Messages)-1]
		if last.Mine && !conv.SeenAt.Before(last.CreatedAt) {
			fmt.Fprintln(w, "                    seen")
		}
	}
}

func printInbox(w io.Writer, entries []client.InboxEntry) {
	if len(entries) == 0 {
		fmt.Fprintln(w, "No conversations yet.")
		return
	}
	for _, e := range entries {
		marker := " "
		if e.HasUnread {
			marker = "●"
		}
		prefix := ""
		if e.Preview.Mine {
			prefix = "you: "
		}
		fmt.Fprintf(w, "%s %s (%s)  %s\n    %s%s\n", marker, e.DogName, e.PeerName, e.PeerID, prefix, e.Preview.Text)
	}
}

func main() {
	ctx := context.Background()
	if err := newRootCommand().ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
