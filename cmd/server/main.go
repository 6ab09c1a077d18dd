package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	gfshutdown "github.com/gelmium/graceful-shutdown"
	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/urfave/cli/v3"

	"github.com/Tyrowin/roomrelay/internal/auth"
	"github.com/Tyrowin/roomrelay/internal/chat"
	"github.com/Tyrowin/roomrelay/internal/server"
	"github.com/Tyrowin/roomrelay/internal/store"
)

var (
	// Build information. Populated at build-time via -ldflags flag.
	version = "dev"
	commit  = "HEAD"
	date    = "now"
)

func build() string {
	short := commit
	if len(commit) > 7 {
		short = commit[:7]
	}

	return fmt.Sprintf("%s (%s) %s", version, short, date)
}

type flags struct {
	EnvFile   string
	LogLevel  string
	LogFormat string
}

func main() {
	if err := setupLogger("info", "console"); err != nil {
		panic(err)
	}

	f := &flags{}

	app := &cli.Command{
		Name:      "roomrelay",
		Usage:     "Relay chat messages between WebSocket clients in named rooms",
		UsageText: "roomrelay [global options] [command [command options]]",
		Version:   build(),
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:        "env-file",
				Usage:       "dotenv file loaded before reading configuration",
				Sources:     cli.EnvVars("ROOMRELAY_ENV_FILE"),
				Value:       ".env",
				Destination: &f.EnvFile,
			},
			&cli.StringFlag{
				Name:        "log-level",
				Usage:       "log level (trace, debug, info, warn, error)",
				Sources:     cli.EnvVars("LOG_LEVEL"),
				Value:       "info",
				Destination: &f.LogLevel,
			},
			&cli.StringFlag{
				Name:        "log-format",
				Usage:       "log output format (console, json)",
				Sources:     cli.EnvVars("LOG_FORMAT"),
				Value:       "console",
				Destination: &f.LogFormat,
			},
		},
		Before: func(ctx context.Context, c *cli.Command) (context.Context, error) {
			if err := loadEnvFile(f.EnvFile, c.IsSet("env-file")); err != nil {
				return ctx, err
			}
			// LOG_LEVEL and LOG_FORMAT may come from the dotenv file.
			if !c.IsSet("log-level") {
				if v, ok := os.LookupEnv("LOG_LEVEL"); ok {
					f.LogLevel = v
				}
			}
			if !c.IsSet("log-format") {
				if v, ok := os.LookupEnv("LOG_FORMAT"); ok {
					f.LogFormat = v
				}
			}
			return ctx, setupLogger(f.LogLevel, f.LogFormat)
		},
		Commands: []*cli.Command{
			serveCmd(),
			tokenCmd(),
		},
		Action: func(ctx context.Context, c *cli.Command) error {
			if c.Args().Len() > 0 {
				return fmt.Errorf("unknown command %q. Run 'roomrelay --help' for usage", c.Args().First())
			}
			return serve(ctx)
		},
	}

	if err := app.Run(context.Background(), os.Args); err != nil {
		log.Error().Err(err).Msg("roomrelay failed")
		os.Exit(1)
	}
}

// loadEnvFile loads path into the environment. A missing default file is
// not an error; a missing file the user asked for is.
func loadEnvFile(path string, explicit bool) error {
	if path == "" {
		return nil
	}
	err := godotenv.Load(path)
	if err == nil || (!explicit && errors.Is(err, os.ErrNotExist)) {
		return nil
	}
	return fmt.Errorf("load env file %q: %w", path, err)
}

func setupLogger(level, format string) error {
	parsedLevel, err := zerolog.ParseLevel(level)
	if err != nil {
		return fmt.Errorf("failed to parse log level: %w", err)
	}

	var output io.Writer
	switch format {
	case "console", "":
		output = zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339}
	case "json":
		output = os.Stderr
	default:
		return fmt.Errorf("unknown log format %q", format)
	}

	log.Logger = zerolog.New(output).With().Timestamp().Logger().Level(parsedLevel)
	return nil
}

func serveCmd() *cli.Command {
	return &cli.Command{
		Name:  "serve",
		Usage: "run the relay (default)",
		Action: func(ctx context.Context, _ *cli.Command) error {
			return serve(ctx)
		},
	}
}

func serve(ctx context.Context) error {
	cfg, err := server.LoadConfig()
	if err != nil {
		return cli.Exit(err.Error(), 2)
	}

	st, err := store.Open(cfg.StoreDriver, cfg.StorePath, log.Logger)
	if err != nil {
		return fmt.Errorf("open store: %w", err)
	}

	var authn chat.Authenticator
	if cfg.JWTSecret != "" {
		authn = auth.NewJWT(cfg.JWTSecret, cfg.JWTIssuer)
	}

	var (
		logger   = log.With().Str("component", "relay").Logger()
		registry = server.NewRegistry(logger)
		sup      = server.NewSupervisor(*cfg, registry, authn, st, st, logger)
		srv      = server.NewServer(*cfg, sup, authn, logger)
		httpSrv  = server.CreateServer(cfg.Port, srv.Routes())
	)

	listenErr := make(chan error, 1)
	go func() {
		if err := server.StartServer(httpSrv, logger); err != nil {
			listenErr <- err
		}
		close(listenErr)
	}()

	log.Info().
		Str("addr", cfg.Port).
		Str("store", cfg.StoreDriver).
		Bool("require_auth", cfg.RequireAuth).
		Msg("roomrelay started")

	wait := gfshutdown.GracefulShutdown(ctx, cfg.ShutdownTimeout, map[string]gfshutdown.Operation{
		"roomrelay": func(ctx context.Context) error {
			return errors.Join(
				server.ShutdownServer(ctx, httpSrv, logger),
				sup.Shutdown(ctx),
				st.Close(),
			)
		},
	})

	select {
	case err, ok := <-listenErr:
		if ok && err != nil {
			_ = sup.Shutdown(context.Background())
			_ = st.Close()
			return fmt.Errorf("listen on %s: %w", cfg.Port, err)
		}
	case <-ctx.Done():
	}

	if code := <-wait; code != 0 {
		return cli.Exit("shutdown did not complete cleanly", code)
	}
	log.Info().Msg("roomrelay stopped")
	return nil
}

func tokenCmd() *cli.Command {
	var (
		user   string
		ttl    time.Duration
		secret string
		issuer string
	)

	return &cli.Command{
		Name:  "token",
		Usage: "mint a JWT for manual testing",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:        "user",
				Usage:       "username carried by the token",
				Required:    true,
				Destination: &user,
			},
			&cli.DurationFlag{
				Name:        "ttl",
				Usage:       "token lifetime",
				Value:       24 * time.Hour,
				Destination: &ttl,
			},
			&cli.StringFlag{
				Name:        "secret",
				Usage:       "HMAC signing secret",
				Sources:     cli.EnvVars("JWT_SECRET"),
				Destination: &secret,
			},
			&cli.StringFlag{
				Name:        "issuer",
				Usage:       "token issuer",
				Sources:     cli.EnvVars("JWT_ISSUER"),
				Value:       "roomrelay",
				Destination: &issuer,
			},
		},
		Action: func(context.Context, *cli.Command) error {
			token, err := auth.NewJWT(secret, issuer).Issue(user, ttl)
			if err != nil {
				return err
			}
			_, err = fmt.Fprintln(os.Stdout, token)
			return err
		},
	}
}
