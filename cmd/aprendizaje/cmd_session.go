package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"sync"
	"syscall"
	"time"

	"golang.org/x/term"

	"github.com/aprendizaje-adaptativo/aprendizaje/internal/authclient"
	"github.com/aprendizaje-adaptativo/aprendizaje/internal/config"
	"github.com/aprendizaje-adaptativo/aprendizaje/internal/session"
	"github.com/aprendizaje-adaptativo/aprendizaje/internal/storage/local"
	"github.com/aprendizaje-adaptativo/aprendizaje/internal/storage/sqlite"
)

// client bundles a session manager with the auth client it refreshes through.
type client struct {
	cfg     *config.LocalConfig
	manager *session.Manager
	auth    *authclient.Client
	close   func()
}

func openClient(notifier session.Notifier) (*client, error) {
	cfg, dir, err := loadConfig()
	if err != nil {
		return nil, err
	}

	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelWarn}))

	storage, closeStorage, err := openClientStorage(cfg.Session.Storage, dir)
	if err != nil {
		return nil, err
	}

	ac := authclient.New(authclient.Config{
		BaseURL: cfg.Session.ServerURL,
		Logger:  logger,
	})

	mgr, err := session.NewManager(session.Config{
		WarningLead: cfg.Session.WarningLead,
		GraceSkew:   cfg.Session.GraceSkew,
	}, session.Deps{
		Storage:   storage,
		Refresher: ac,
		Notifier:  notifier,
		Clock:     session.RealClock(),
		Logger:    logger,
	})
	if err != nil {
		closeStorage()
		return nil, err
	}

	return &client{
		cfg:     cfg,
		manager: mgr,
		auth:    ac,
		close: func() {
			mgr.Close()
			closeStorage()
		},
	}, nil
}

// openClientStorage returns the durable store selected by session.storage.
func openClientStorage(kind, dir string) (session.Storage, func(), error) {
	switch kind {
	case "sqlite":
		dataDir := filepath.Join(dir, "data")
		if err := os.MkdirAll(dataDir, 0700); err != nil {
			return nil, nil, fmt.Errorf("create data dir: %w", err)
		}
		db, err := sqlite.Open(filepath.Join(dataDir, "client.db"))
		if err != nil {
			return nil, nil, err
		}
		if err := db.Migrate(); err != nil {
			db.Close()
			return nil, nil, fmt.Errorf("migrate client store: %w", err)
		}
		return sqlite.NewClientStore(db), func() { db.Close() }, nil
	default:
		store, err := local.NewStore(filepath.Join(dir, "client"))
		if err != nil {
			return nil, nil, err
		}
		return store, func() {}, nil
	}
}

// cmdLogin signs in with email and password and stores the session
func cmdLogin(args []string) error {
	reader := bufio.NewReader(os.Stdin)

	email := ""
	if len(args) > 0 {
		email = args[0]
	} else {
		fmt.Print("Email: ")
		line, err := reader.ReadString('\n')
		if err != nil {
			return fmt.Errorf("read email: %w", err)
		}
		email = strings.TrimSpace(line)
	}

	password, err := readPassword(reader)
	if err != nil {
		return err
	}

	c, err := openClient(quietNotifier{out: os.Stdout})
	if err != nil {
		return err
	}
	defer c.close()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	resp, err := c.auth.Login(ctx, email, password)
	if err != nil {
		if errors.Is(err, authclient.ErrLoginRejected) {
			return errors.New("invalid email or password")
		}
		return err
	}
	user := resp.User
	if user == nil {
		if user, err = c.auth.Me(ctx, resp.Token); err != nil {
			return fmt.Errorf("load profile: %w", err)
		}
	}

	if err := c.manager.Login(*user, resp.Token); err != nil {
		return err
	}

	snap := c.manager.Snapshot()
	fmt.Printf("✓ Signed in as %s (%s)\n", user.Nombre, user.Rol)
	fmt.Printf("  Session valid until %s\n", snap.ExpiresAt.Local().Format(time.Kitchen))
	return nil
}

// readPassword reads without echo when stdin is a terminal
func readPassword(reader *bufio.Reader) (string, error) {
	fmt.Print("Password: ")
	fd := int(os.Stdin.Fd())
	if term.IsTerminal(fd) {
		b, err := term.ReadPassword(fd)
		fmt.Println()
		if err != nil {
			return "", fmt.Errorf("read password: %w", err)
		}
		return string(b), nil
	}

	line, err := reader.ReadString('\n')
	if err != nil && line == "" {
		return "", fmt.Errorf("read password: %w", err)
	}
	return strings.TrimRight(line, "\r\n"), nil
}

// cmdLogout removes the stored session
func cmdLogout() error {
	c, err := openClient(quietNotifier{out: os.Stdout})
	if err != nil {
		return err
	}
	defer c.close()

	c.manager.Bootstrap(context.Background())
	if !c.manager.Snapshot().Authenticated() {
		fmt.Println("Not signed in")
		return nil
	}
	c.manager.Logout()
	fmt.Println("✓ Signed out")
	return nil
}

// cmdWhoami prints the stored user and, when the daemon is reachable, the
// server's view of the same token
func cmdWhoami() error {
	c, err := openClient(quietNotifier{out: os.Stdout})
	if err != nil {
		return err
	}
	defer c.close()

	c.manager.Bootstrap(context.Background())
	snap := c.manager.Snapshot()
	if !snap.Authenticated() {
		fmt.Println("Not signed in")
		return nil
	}

	fmt.Printf("User:    %s <%s>\n", snap.User.Nombre, snap.User.Email)
	fmt.Printf("Role:    %s\n", snap.User.Rol)
	fmt.Printf("Expires: %s (in %s)\n",
		snap.ExpiresAt.Local().Format(time.RFC1123),
		time.Until(snap.ExpiresAt).Round(time.Second))

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if _, err := c.auth.Me(ctx, c.manager.Token()); err != nil {
		fmt.Printf("Server:  %v\n", err)
	} else {
		fmt.Println("Server:  token accepted ✓")
	}
	return nil
}

// cmdExtend renews the stored session token
func cmdExtend() error {
	c, err := openClient(quietNotifier{out: os.Stdout})
	if err != nil {
		return err
	}
	defer c.close()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	c.manager.Bootstrap(ctx)
	if err := c.manager.ExtendSession(ctx); err != nil {
		if errors.Is(err, session.ErrNoToken) {
			return errors.New("not signed in")
		}
		return fmt.Errorf("extend session: %w", err)
	}

	fmt.Printf("✓ Session extended until %s\n", c.manager.Snapshot().ExpiresAt.Local().Format(time.Kitchen))
	return nil
}

// cmdWatch keeps the session alive in the foreground: it prompts before the
// token expires and exits once the session ends
func cmdWatch() error {
	c, err := openClient(newTerminalNotifier(os.Stdin, os.Stdout))
	if err != nil {
		return err
	}
	defer c.close()

	c.manager.Bootstrap(context.Background())
	if !c.manager.Snapshot().Authenticated() {
		fmt.Println("Not signed in. Run 'aprendizaje login' first.")
		return nil
	}

	ended := make(chan struct{})
	var once sync.Once
	cancelSub := c.manager.Subscribe(func(snap session.Snapshot) {
		if snap.State == session.StateAnonymous {
			once.Do(func() { close(ended) })
		}
	})
	defer cancelSub()

	snap := c.manager.Snapshot()
	if !snap.Authenticated() {
		return nil
	}
	fmt.Printf("Watching session for %s, expires at %s. Press Ctrl+C to stop.\n",
		snap.User.Nombre, snap.ExpiresAt.Local().Format(time.Kitchen))

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigCh)

	select {
	case <-ended:
	case <-sigCh:
		fmt.Println("\nStopped watching; the session stays stored.")
	}
	return nil
}
