package main

import (
	"bufio"
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"os/signal"
	"syscall"

	"chatsync/internal/auth"
	"chatsync/internal/chat"
	"chatsync/internal/client"
	"chatsync/internal/commands"
	"chatsync/internal/config"
	"chatsync/internal/obs"
	"chatsync/internal/reconcile"
	"chatsync/internal/session"
	"chatsync/internal/storage"
	"chatsync/internal/ws"

	"golang.org/x/sync/errgroup"
)

var errQuit = errors.New("quit")

func run(ctx context.Context, args []string, stdin io.Reader, stdout io.Writer) error {
	flags := flag.NewFlagSet("chatsync", flag.ContinueOnError)
	username := flags.String("user", "", "Username to log in with (resumes the saved session when empty)")
	password := flags.String("password", "", "Password for -user")
	register := flags.Bool("register", false, "Create the account before logging in")
	if err := flags.Parse(args); err != nil {
		return err
	}

	cfg, err := config.Load()
	if err != nil {
		return err
	}
	logger := obs.NewLogger(cfg.LogEnv, cfg.LogLevel)

	tokens, err := storage.NewBboltStorage(cfg.SessionDB)
	if err != nil {
		return err
	}
	defer func() { _ = tokens.Close() }()

	authClient, err := auth.NewClient(auth.Config{BaseURL: cfg.AuthURL}, logger)
	if err != nil {
		return err
	}

	sess := session.NewStore()
	chats := chat.New(chat.Config{MaxMessages: cfg.MaxMessages})
	rec := reconcile.New(reconcile.Config{AckDelay: cfg.OfflineAckDelay}, sess, chats, logger)

	manager, err := ws.NewManager(ws.Config{
		ChatURL:        cfg.ChatURL,
		PresenceURL:    cfg.PresenceURL,
		ConnectTimeout: cfg.ConnectTimeout,
	}, sess, rec, logger)
	if err != nil {
		return err
	}
	rec.SetSender(manager)
	defer manager.Disconnect()

	c := client.New(client.Deps{
		Session:    sess,
		Chats:      chats,
		Reconciler: rec,
		Conn:       manager,
		Auth:       authClient,
		Tokens:     tokens,
		Logger:     logger,
	})

	switch {
	case *register:
		err = c.Register(ctx, *username, *password)
	case *username != "":
		err = c.Login(ctx, *username, *password)
	default:
		var ok bool
		ok, err = c.Resume()
		if err == nil && !ok {
			err = errors.New("no saved session, log in with -user and -password")
		}
	}
	if err != nil {
		return err
	}

	if err := c.Connect(ctx); err != nil {
		return err
	}
	fmt.Fprintf(stdout, "Logged in as %s. Type /help for commands.\n", c.Session().Username())

	lines := make(chan string)
	go func() {
		defer close(lines)
		scanner := bufio.NewScanner(stdin)
		for scanner.Scan() {
			select {
			case lines <- scanner.Text():
			case <-ctx.Done():
				return
			}
		}
	}()

	g, gCtx := errgroup.WithContext(ctx)

	// Print updates from both connections
	g.Go(func() error {
		for {
			select {
			case u := <-c.Updates():
				if text := commands.FormatUpdate(c, u); text != "" {
					fmt.Fprintln(stdout, text)
				}
			case <-gCtx.Done():
				return nil
			}
		}
	})

	// Read commands until /quit, EOF or a signal
	g.Go(func() error {
		for {
			select {
			case line, ok := <-lines:
				if !ok {
					return errQuit
				}
				cmd, err := commands.Parse(line)
				if err != nil {
					fmt.Fprintf(stdout, "! %v\n", err)
					continue
				}
				quit, err := commands.Execute(gCtx, c, cmd, stdout)
				if err != nil {
					fmt.Fprintf(stdout, "! %v\n", err)
				}
				if quit {
					return errQuit
				}
			case <-gCtx.Done():
				return nil
			}
		}
	})

	if err := g.Wait(); err != nil && !errors.Is(err, errQuit) {
		return err
	}
	return nil
}

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx, os.Args[1:], os.Stdin, os.Stdout); err != nil && !errors.Is(err, context.Canceled) {
		log.Fatalf("Application error: %v", err)
	}
}
