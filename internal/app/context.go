package app

import (
	"database/sql"
	"strings"

	"launchpath/internal/config"
	"launchpath/internal/db"
	"launchpath/internal/migrate"
	"launchpath/internal/pipeline"
	"launchpath/internal/repo"
)

// DefaultOwner is the implicit single-user identity. Every CLI invocation
// without --owner acts as this owner.
const DefaultOwner = "local"

// Env bundles the opened database, the workspace config, and the pipeline
// manager. CLI commands and the server build one Env per invocation.
type Env struct {
	Workspace string
	DB        *sql.DB
	Repo      repo.Repo
	Config    *config.Config
	Manager   *pipeline.Manager
}

// Open prepares the workspace: ensures the .launchpath directory, opens and
// migrates the database, and loads launchpath.yml (defaults when absent).
func Open(workspace string) (*Env, error) {
	if _, err := db.EnsureWorkspace(workspace); err != nil {
		return nil, err
	}
	conn, err := db.Open(db.Config{Workspace: workspace})
	if err != nil {
		return nil, err
	}
	if err := migrate.Migrate(conn); err != nil {
		conn.Close()
		return nil, err
	}
	cfg, err := config.Load(workspace)
	if err != nil {
		conn.Close()
		return nil, err
	}
	return &Env{
		Workspace: workspace,
		DB:        conn,
		Repo:      repo.Repo{DB: conn},
		Config:    cfg,
		Manager:   pipeline.NewManager(conn, cfg),
	}, nil
}

func (e *Env) Close() error {
	return e.DB.Close()
}

// ResolveOwner normalizes an owner override, falling back to DefaultOwner.
func ResolveOwner(override string) string {
	owner := strings.TrimSpace(override)
	if owner == "" {
		return DefaultOwner
	}
	return owner
}
