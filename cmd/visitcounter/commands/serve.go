package commands

import (
	"time"

	"visitcounter/internal/components/chrono"
	"visitcounter/internal/components/telemetry"
	"visitcounter/internal/session"
	"visitcounter/internal/site"
	"visitcounter/lib/serviceutil"

	"github.com/spf13/cobra"
)

var (
	servePage       *string
	servePort       *int
	serveSessionTTL *time.Duration
)

func init() {
	servePage = serveCmd.Flags().String("page", "index.html", "The html page to serve.")
	servePort = serveCmd.Flags().Int("port", 8081, "The port to listen on.")
	serveSessionTTL = serveCmd.Flags().Duration("session-ttl", time.Minute*30, "How long an in-memory session lasts without a page load.")
	rootCmd.AddCommand(serveCmd)
}

var serveCmd = &cobra.Command{
	Use:   "serve [--page <index.html>] [--port <port>]",
	Short: "Serves a page with the visit counter rendered into it on every load.",
	Run: func(cmd *cobra.Command, args []string) {
		ctx := cmd.Context()

		cfg, err := readConfig()
		if err != nil {
			serviceutil.Fatal("failed to read config", err)
		}
		defer setupTelemetry(ctx)()

		tel := telemetry.SlogAPI{}
		client, err := createClient(cfg, tel)
		if err != nil {
			serviceutil.Fatal("failed to create counter client", err)
		}

		contents, err := readPage(*servePage)
		if err != nil {
			serviceutil.Fatal("failed to read page", err)
		}

		var sessions site.SessionsAPI = session.NewExpiringStore(4096, *serveSessionTTL)
		db, err := openSessions(cfg)
		if err != nil {
			serviceutil.Fatal("failed to open session database", err)
		}
		if db != nil {
			defer db.Close()
			sessions = site.SessionsFunc(func(sessionID string) session.Store {
				return session.NewSQLStore(db, sessionID)
			})
		}

		handler := site.NewHandler(contents, sessions, client, chrono.NewStandardTime(nil), tel)
		serviceutil.StartHttpServer(ctx, *servePort, handler)
	},
}
