// mgen-smoke exercises the client against a live platform deployment:
// session establishment, donation listing, optional payment watching, and a
// metrics dump at the end. With -redis-addr empty it persists the session in
// an in-process miniredis so repeated runs exercise Restore.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	mgenclient "github.com/khrizenriquez/mgen-client"
	"github.com/khrizenriquez/mgen-client/credentials"
	"github.com/khrizenriquez/mgen-client/metrics/export/prometheus"
)

func main() {
	var (
		baseURL   = flag.String("base-url", "", "platform origin; if empty, MGEN_BASE_URL is used")
		email     = flag.String("email", "", "login email; if empty, MGEN_EMAIL is used")
		password  = flag.String("password", "", "login password; if empty, MGEN_PASSWORD is used")
		redisAddr = flag.String("redis-addr", "", "redis address for the session store; if empty, miniredis is used")
		watchID   = flag.String("watch", "", "donation ID to poll until its payment settles")
		degraded  = flag.Bool("allow-degraded", false, "permit an offline session when the platform is unreachable")
		timeout   = flag.Duration("timeout", 2*time.Minute, "overall run timeout")
	)
	flag.Parse()

	logger := zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr}).With().Timestamp().Logger()

	cfg := mgenclient.ConfigFromEnv()
	if *baseURL != "" {
		cfg.Platform.BaseURL = *baseURL
	}
	cfg.Login.AllowDegradedFallback = cfg.Login.AllowDegradedFallback || *degraded
	if *email == "" {
		*email = os.Getenv("MGEN_EMAIL")
	}
	if *password == "" {
		*password = os.Getenv("MGEN_PASSWORD")
	}
	if cfg.Platform.BaseURL == "" || *email == "" {
		fmt.Fprintln(os.Stderr, "base-url and email are required")
		os.Exit(2)
	}

	addr := *redisAddr
	var cleanup func()
	if addr == "" {
		mr, err := miniredis.Run()
		if err != nil {
			logger.Fatal().Err(err).Msg("start miniredis")
		}
		addr = mr.Addr()
		cleanup = mr.Close
		fmt.Printf("using miniredis at %s\n", addr)
	} else {
		cleanup = func() {}
		fmt.Printf("using redis at %s\n", addr)
	}
	defer cleanup()

	redisClient := redis.NewClient(&redis.Options{Addr: addr})
	defer redisClient.Close()

	store, err := credentials.NewRedisStore(redisClient, "mgen-smoke:session")
	if err != nil {
		logger.Fatal().Err(err).Msg("credentials store")
	}

	client, err := mgenclient.New().
		WithConfig(cfg).
		WithLogger(logger).
		WithMetricsEnabled(true).
		WithLatencyHistograms(true).
		WithCredentialsStore(store).
		WithEventSink(mgenclient.NewJSONEventSink(os.Stdout)).
		Build()
	if err != nil {
		logger.Fatal().Err(err).Msg("build client")
	}
	defer client.Close()

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()

	sess, err := client.Session().Restore(ctx)
	if err != nil {
		logger.Fatal().Err(err).Msg("restore session")
	}
	if sess != nil {
		logger.Info().Str("user", sess.Email).Msg("restored persisted session")
	} else {
		sess, err = client.Session().Login(ctx, *email, *password)
		if err != nil {
			logger.Fatal().Err(err).Msg("login")
		}
		logger.Info().Str("user", sess.Email).Bool("degraded", sess.Degraded).Msg("logged in")
	}

	if !sess.Degraded {
		valid, err := client.Session().ValidateToken(ctx)
		if err != nil {
			logger.Fatal().Err(err).Msg("validate token")
		}
		logger.Info().Bool("valid", valid).Msg("token validated")

		list, err := client.Donations().List(ctx, nil)
		if err != nil {
			logger.Fatal().Err(err).Msg("list donations")
		}
		logger.Info().Int("count", len(list)).Msg("donations listed")

		if *watchID != "" {
			result, err := client.Donations().WatchPayment(ctx, *watchID, "", 5*time.Second, func(r mgenclient.PaymentStatusResult) {
				logger.Info().Str("status", string(r.Status)).Msg("payment update")
			})
			if err != nil {
				logger.Fatal().Err(err).Msg("watch payment")
			}
			logger.Info().Str("status", string(result.Status)).Msg("payment settled")
		}
	}

	fmt.Println("---- metrics ----")
	fmt.Print(prometheus.NewPrometheusExporter(client).Render())
}
