package main

import (
	"flag"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	sessiondb "visitcounter/internal/session/db"
	"visitcounter/lib/sqliteutil"
	counterdb "visitcounter/services/counter/db"
)

const stateDir = "dev/.state"

const visitcounterConfig = `{
  // counterd from this dev environment, see counterd.json5
  endpoint_url: "http://localhost:8080/",
  sessions: {
    file: "dev/.state/sessions.db",
  },
  debug: true,
  dump_dir: "dev/.state/dumps",
}
`

const counterdConfig = `{
  port: 8080,
  counter_id: "localhost",
  allowed_origin: "*",
  database: {
    file: "dev/.state/counter.db",
  },
  debug: true,
}
`

const indexPage = `<!DOCTYPE html>
<html>
<head><title>visit counter</title></head>
<body>
  <p>visitors: <span id="visitCount">…</span></p>
  <footer>&copy; <span id="year"></span></footer>
</body>
</html>
`

func createDb(filename, schema string) error {
	path := filepath.Join(stateDir, filename)
	fmt.Println("creating database at", path)
	db, err := sqliteutil.OpenDB(schema, path)
	if err != nil {
		return err
	}
	return db.Close()
}

func writeOnce(path, contents string) error {
	_, err := os.Stat(path)
	if err == nil {
		fmt.Println("keeping existing", path)
		return nil
	}
	fmt.Println("writing", path)
	return os.WriteFile(path, []byte(contents), 0644)
}

func create(recreate bool) error {
	_, err := os.Stat("go.mod")
	if os.IsNotExist(err) {
		return fmt.Errorf("the dev environment must be created in the repository root (the same directory as the 'go.mod' file)")
	}

	if recreate {
		err = os.RemoveAll(stateDir)
		if err != nil && !os.IsNotExist(err) {
			return err
		}
	}
	err = os.MkdirAll(filepath.Join(stateDir, "dumps"), 0777)
	if err != nil {
		return err
	}

	err = createDb("counter.db", counterdb.Schema)
	if err != nil {
		return err
	}
	err = createDb("sessions.db", sessiondb.Schema)
	if err != nil {
		return err
	}

	err = writeOnce("visitcounter.json5", visitcounterConfig)
	if err != nil {
		return err
	}
	err = writeOnce("counterd.json5", counterdConfig)
	if err != nil {
		return err
	}
	return writeOnce(filepath.Join(stateDir, "index.html"), indexPage)
}

func main() {
	recreate := flag.Bool("recreate", false, "recreate the dev environment from scratch")
	flag.Parse()

	err := create(*recreate)
	if err != nil {
		slog.Error("failed to create dev environment", "err", err.Error())
		os.Exit(1)
	}

	slog.Info("dev environment created sucessfully!", "next", "go run ./cmd/counterd & go run ./cmd/visitcounter serve --page dev/.state/index.html")
}
