package commands

import (
	"fmt"
	"os"
	"time"

	"visitcounter/internal/session"
	"visitcounter/lib/serviceutil"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
)

var sessionsCmd = &cobra.Command{
	Use:   "sessions",
	Short: "Inspects the session database.",
}

var clearSession *string

func init() {
	clearSession = sessionsClearCmd.Flags().String("session", "", "The session to end.")
	sessionsClearCmd.MarkFlagRequired("session")

	sessionsCmd.AddCommand(sessionsListCmd)
	sessionsCmd.AddCommand(sessionsClearCmd)
	rootCmd.AddCommand(sessionsCmd)
}

var sessionsListCmd = &cobra.Command{
	Use:   "list",
	Short: "Lists every value stored for every session.",
	Run: func(cmd *cobra.Command, args []string) {
		cfg, err := readConfig()
		if err != nil {
			serviceutil.Fatal("failed to read config", err)
		}
		db, err := openSessions(cfg)
		if err != nil {
			serviceutil.Fatal("failed to open session database", err)
		}
		if db == nil {
			serviceutil.Fatal("no session database", fmt.Errorf("sessions.file or sessions.url must be configured"))
		}
		defer db.Close()

		flags, err := session.ListFlags(cmd.Context(), db)
		if err != nil {
			serviceutil.Fatal("failed to list sessions", err)
		}

		t := table.NewWriter()
		t.SetOutputMirror(os.Stdout)
		t.SetStyle(table.StyleLight)
		t.AppendHeader(table.Row{"Session", "Key", "Value", "Updated"})
		for _, f := range flags {
			t.AppendRow(table.Row{
				f.SessionID,
				f.Key,
				f.Value,
				time.Unix(f.UpdatedAt, 0).Format(time.DateTime),
			})
		}
		t.AppendFooter(table.Row{"", "", "Total", len(flags)})
		t.Render()
	},
}

var sessionsClearCmd = &cobra.Command{
	Use:   "clear --session <id>",
	Short: "Ends a session, its next page load counts as a new visit.",
	Run: func(cmd *cobra.Command, args []string) {
		cfg, err := readConfig()
		if err != nil {
			serviceutil.Fatal("failed to read config", err)
		}
		db, err := openSessions(cfg)
		if err != nil {
			serviceutil.Fatal("failed to open session database", err)
		}
		if db == nil {
			serviceutil.Fatal("no session database", fmt.Errorf("sessions.file or sessions.url must be configured"))
		}
		defer db.Close()

		removed, err := session.NewSQLStore(db, *clearSession).Clear(cmd.Context())
		if err != nil {
			serviceutil.Fatal("failed to clear session", err)
		}
		fmt.Printf("cleared %d value(s) from session %s\n", removed, *clearSession)
	},
}
