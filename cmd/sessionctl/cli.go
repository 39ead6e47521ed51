package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/pflag"

	"github.com/aussiebroadwan/tabsession/pkg/authevents"
	"github.com/aussiebroadwan/tabsession/pkg/authsdk"
	"github.com/aussiebroadwan/tabsession/pkg/slogx"
	"github.com/aussiebroadwan/tabsession/pkg/tokenstore"
	"github.com/aussiebroadwan/tabsession/pkg/tokenstore/drivers/redis"
	"github.com/aussiebroadwan/tabsession/pkg/tokenstore/drivers/sqlite"
)

const usage = `Usage: sessionctl [global flags] <command> [flags]

Commands:
  login     authenticate and store the session
  logout    revoke the refresh token and clear the session
  status    show the stored session and service health
  me        fetch the current user's profile
  get PATH  authenticated GET, prints the JSON reply
  events    run a command (default: me) and print the events it produced
  watch     keep the session fresh for a while, printing events as they happen

Global flags:
`

type globals struct {
	server    string
	storePath string
	redisURL  string
	logLevel  string
	timeout   time.Duration
}

func (g *globals) addFlags(fs *pflag.FlagSet) {
	fs.StringVar(&g.server, "server", envOr("TABSESSION_SERVER", "http://localhost:8080"), "base URL of the service")
	fs.StringVar(&g.storePath, "store", envOr("TABSESSION_STORE", defaultStorePath()), "sqlite file holding the session")
	fs.StringVar(&g.redisURL, "redis", os.Getenv("TABSESSION_REDIS_URL"), "redis URL; replaces the sqlite store when set")
	fs.StringVar(&g.logLevel, "log-level", envOr("LOG_LEVEL", "warn"), "log level (debug, info, warn, error)")
	fs.DurationVar(&g.timeout, "timeout", authsdk.DefaultTimeout, "per request timeout")
}

// session bundles a client with the resources behind it.
type session struct {
	client *authsdk.Client
	out    io.Writer
	close  func() error
}

type command func(ctx context.Context, s *session, args []string) error

func commands() map[string]command {
	return map[string]command{
		"login":  cmdLogin,
		"logout": cmdLogout,
		"status": cmdStatus,
		"me":     cmdMe,
		"get":    cmdGet,
		"events": cmdEvents,
		"watch":  cmdWatch,
	}
}

func run(ctx context.Context, args []string, stdout, stderr io.Writer) error {
	_ = godotenv.Load()

	var g globals
	fs := pflag.NewFlagSet("sessionctl", pflag.ContinueOnError)
	fs.SetOutput(stderr)
	fs.SetInterspersed(false)
	g.addFlags(fs)
	fs.Usage = func() {
		fmt.Fprint(stderr, usage)
		fs.PrintDefaults()
	}

	if err := fs.Parse(args); err != nil {
		return err
	}

	rest := fs.Args()
	if len(rest) == 0 {
		fs.Usage()
		return pflag.ErrHelp
	}

	cmd, ok := commands()[rest[0]]
	if !ok {
		fs.Usage()
		return fmt.Errorf("unknown command %q", rest[0])
	}

	logger := slogx.New(slogx.Config{
		Service: "sessionctl",
		Level:   g.logLevel,
		Format:  "text",
		Output:  stderr,
	})

	s, err := openSession(ctx, g, logger, stdout)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := s.close(); cerr != nil {
			logger.Warn("failed to close session store", "err", cerr)
		}
	}()

	return cmd(ctx, s, rest[1:])
}

func openSession(ctx context.Context, g globals, logger *slog.Logger, out io.Writer) (*session, error) {
	medium, closer, err := openMedium(ctx, g)
	if err != nil {
		return nil, err
	}

	bus := authevents.New(authevents.WithLogger(logger))
	store := tokenstore.New(medium, bus, tokenstore.WithLogger(logger))
	client := authsdk.NewClient(authsdk.Config{BaseURL: g.server, Timeout: g.timeout}, store, bus,
		authsdk.WithLogger(logger),
		authsdk.WithNavigator(authsdk.NavigatorFunc(func(route string) {
			fmt.Fprintf(out, "session ended, run `sessionctl login` (%s)\n", route)
		})),
	)

	return &session{client: client, out: out, close: closer}, nil
}

func openMedium(ctx context.Context, g globals) (tokenstore.Medium, func() error, error) {
	if g.redisURL != "" {
		m, err := redis.Open(ctx, g.redisURL, redis.DefaultPrefix)
		if err != nil {
			return nil, nil, fmt.Errorf("open redis store: %w", err)
		}
		return m, m.Close, nil
	}

	if dir := filepath.Dir(g.storePath); dir != "" {
		if err := os.MkdirAll(dir, 0o700); err != nil {
			return nil, nil, fmt.Errorf("create store dir: %w", err)
		}
	}

	m, err := sqlite.Open("file:" + g.storePath)
	if err != nil {
		return nil, nil, fmt.Errorf("open sqlite store: %w", err)
	}
	if err := m.ApplyMigrations(); err != nil {
		_ = m.Close()
		return nil, nil, fmt.Errorf("migrate sqlite store: %w", err)
	}
	return m, m.Close, nil
}

func cmdLogin(ctx context.Context, s *session, args []string) error {
	fs := pflag.NewFlagSet("login", pflag.ContinueOnError)
	username := fs.StringP("username", "u", os.Getenv("TABSESSION_USERNAME"), "account name")
	password := fs.StringP("password", "p", os.Getenv("TABSESSION_PASSWORD"), "password (prefer TABSESSION_PASSWORD)")
	otp := fs.String("otp", "", "current one-time code, for accounts with a second factor")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *username == "" || *password == "" {
		return errors.New("login: --username and --password are required")
	}

	tr, err := s.client.Login(ctx, authsdk.LoginRequest{Username: *username, Password: *password, OTP: *otp})
	if err != nil {
		return err
	}

	name := *username
	if tr.User != nil && tr.User.DisplayName != "" {
		name = tr.User.DisplayName
	}
	fmt.Fprintf(s.out, "logged in as %s, token valid for %ds\n", name, s.client.Store().RemainingSeconds(ctx))
	return nil
}

func cmdLogout(ctx context.Context, s *session, _ []string) error {
	if err := s.client.Logout(ctx); err != nil {
		return err
	}
	fmt.Fprintln(s.out, "logged out")
	return nil
}

func cmdStatus(ctx context.Context, s *session, _ []string) error {
	store := s.client.Store()

	health, err := s.client.Health(ctx)
	if err != nil {
		fmt.Fprintf(s.out, "server:        unreachable (%v)\n", err)
	} else {
		fmt.Fprintf(s.out, "server:        %s %s (up %s)\n", health.Status, health.Version, health.Uptime)
	}

	fmt.Fprintf(s.out, "authenticated: %t\n", store.IsAuthenticated(ctx))
	fmt.Fprintf(s.out, "remaining:     %ds\n", store.RemainingSeconds(ctx))
	fmt.Fprintf(s.out, "refreshable:   %t\n", store.RefreshToken(ctx) != "")

	if u, ok := store.CurrentUser(ctx); ok {
		fmt.Fprintf(s.out, "user:          %s (id %d)\n", u.Username, u.ID)
	}
	if a := store.Authorities(ctx); len(a) > 0 {
		fmt.Fprintf(s.out, "authorities:   %s\n", strings.Join(a, ", "))
	}
	return nil
}

func cmdMe(ctx context.Context, s *session, _ []string) error {
	profile, err := s.client.Me(ctx)
	if err != nil {
		return err
	}
	return printJSON(s.out, profile)
}

func cmdGet(ctx context.Context, s *session, args []string) error {
	if len(args) != 1 {
		return errors.New("get: expected exactly one PATH")
	}

	raw, err := authsdk.Fetch[json.RawMessage](ctx, s.client, args[0], authsdk.RequestOptions{})
	if err != nil {
		return err
	}
	if len(raw) == 0 {
		return nil
	}
	return printJSON(s.out, raw)
}

// cmdEvents runs another command and prints what the bus recorded. The
// command's own error is reported after the events.
func cmdEvents(ctx context.Context, s *session, args []string) error {
	if len(args) == 0 {
		args = []string{"me"}
	}
	if args[0] == "events" || args[0] == "watch" {
		return fmt.Errorf("events: cannot wrap %q", args[0])
	}

	cmd, ok := commands()[args[0]]
	if !ok {
		return fmt.Errorf("events: unknown command %q", args[0])
	}

	runErr := cmd(ctx, s, args[1:])

	for _, e := range s.client.Bus().History() {
		printEvent(s.out, e)
	}
	return runErr
}

func cmdWatch(ctx context.Context, s *session, args []string) error {
	fs := pflag.NewFlagSet("watch", pflag.ContinueOnError)
	duration := fs.Duration("for", time.Minute, "how long to keep watching")
	interval := fs.Duration("interval", 10*time.Second, "check interval")
	threshold := fs.Duration("threshold", 30*time.Second, "renew when less than this remains")
	if err := fs.Parse(args); err != nil {
		return err
	}

	unsubscribe := s.client.Bus().Subscribe(func(e authevents.Event) {
		printEvent(s.out, e)
	})
	defer unsubscribe()

	w := authsdk.NewWatcher(s.client, *interval, *threshold)
	w.Start()
	defer w.Stop()

	timer := time.NewTimer(*duration)
	defer timer.Stop()

	select {
	case <-ctx.Done():
	case <-timer.C:
	}
	return nil
}

// printEvent writes one line per event. Token values are redacted.
func printEvent(out io.Writer, e authevents.Event) {
	payload := e.Data
	if p, ok := payload.(authevents.TokenRefreshedPayload); ok {
		p.OldToken, p.NewToken = redact(p.OldToken), redact(p.NewToken)
		payload = p
	}

	data, err := json.Marshal(payload)
	if err != nil {
		data = []byte(`{}`)
	}
	fmt.Fprintf(out, "%s  %-20s %s\n", e.Timestamp.Format(time.RFC3339), e.Type, data)
}

func redact(token string) string {
	if len(token) <= 8 {
		return "***"
	}
	return token[:8] + "..."
}

func printJSON(out io.Writer, v any) error {
	enc := json.NewEncoder(out)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func envOr(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func defaultStorePath() string {
	dir, err := os.UserConfigDir()
	if err != nil {
		return "tabsession.db"
	}
	return filepath.Join(dir, "tabsession", "session.db")
}
