package commands

import (
	"bytes"
	"errors"
	"io"
	"log/slog"
	"os"

	"visitcounter/internal/components/telemetry"
	"visitcounter/internal/page"
	"visitcounter/internal/session"
	"visitcounter/internal/widget"
	"visitcounter/lib/serviceutil"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
)

var (
	renderPage    *string
	renderOut     *string
	renderSession *string
)

func init() {
	renderPage = renderCmd.Flags().String("page", "-", "The html page to render into, - reads stdin.")
	renderOut = renderCmd.Flags().String("out", "-", "Where to write the rendered page, - writes stdout.")
	renderSession = renderCmd.Flags().String("session", "", "The browsing session to count the visit in, a new one is started if empty.")
	rootCmd.AddCommand(renderCmd)
}

var errSessionWithoutDatabase = errors.New("--session needs a session database (sessions.file or sessions.url)")

// renderStore picks the store of a single render: a throwaway memory store
// unless a session database is configured, in which case the given session
// (or a new one) is used.
func renderStore(cfg Config, sessionID string) (session.Store, func(), error) {
	db, err := openSessions(cfg)
	if err != nil {
		return nil, nil, err
	}
	if db == nil {
		if sessionID != "" {
			return nil, nil, errSessionWithoutDatabase
		}
		return session.NewMemoryStore(), func() {}, nil
	}

	if sessionID == "" {
		sessionID = uuid.NewString()
		slog.Info("started new session", "session", sessionID)
	}
	return session.NewSQLStore(db, sessionID), func() { db.Close() }, nil
}

func readPage(path string) ([]byte, error) {
	if path == "-" {
		return io.ReadAll(os.Stdin)
	}
	return os.ReadFile(path)
}

var renderCmd = &cobra.Command{
	Use:   "render [--page <page.html>] [--out <out.html>] [--session <id>]",
	Short: "Runs the visit counter once on a page and writes the rendered page.",
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

		contents, err := readPage(*renderPage)
		if err != nil {
			serviceutil.Fatal("failed to read page", err)
		}
		doc, err := page.Load(bytes.NewReader(contents))
		if err != nil {
			serviceutil.Fatal("failed to load page", err)
		}

		store, closeStore, err := renderStore(cfg, *renderSession)
		if err != nil {
			serviceutil.Fatal("failed to open session store", err)
		}
		defer closeStore()

		result := widget.New(doc, store, client, widget.WithTelemetryAPI(tel)).Run(ctx)
		slog.Debug(
			"visit counter finished",
			"requested", result.Requested,
			"mode", result.Mode.String(),
			"text", result.Text,
		)

		out := os.Stdout
		if *renderOut != "-" {
			out, err = os.Create(*renderOut)
			if err != nil {
				serviceutil.Fatal("failed to create output file", err)
			}
			defer out.Close()
		}
		err = doc.Render(out)
		if err != nil {
			serviceutil.Fatal("failed to write page", err)
		}
	},
}
