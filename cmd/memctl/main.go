// Package main is memctl, the CLI front door onto the memory engine: it
// wires the Storage Kernel, Entry Repository, Hybrid Search Engine,
// Capture Service and MCP Tool Server behind the verb table in spec §6.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/exec"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/agentkits/memory/internal/aiprovider"
	"github.com/agentkits/memory/internal/cache"
	"github.com/agentkits/memory/internal/capture"
	"github.com/agentkits/memory/internal/config"
	"github.com/agentkits/memory/internal/embedclient"
	"github.com/agentkits/memory/internal/entry"
	"github.com/agentkits/memory/internal/idgen"
	"github.com/agentkits/memory/internal/logging"
	"github.com/agentkits/memory/internal/mcp"
	"github.com/agentkits/memory/internal/metrics"
	"github.com/agentkits/memory/internal/search"
	"github.com/agentkits/memory/internal/storage/sqlite"
	"github.com/agentkits/memory/internal/types"
	"github.com/spf13/cobra"
)

// Version is stamped at build time via -ldflags; empty means a dev build.
var Version = "dev"

// log is bound to stderr for the whole CLI process lifetime; the MCP
// server command rebinds its own copy the same way (spec §4.9) so that
// whichever command is running, stdout stays free of anything but the
// command's own output (or, for "server", the JSON-RPC wire).
var log = logging.New(os.Stderr)

var (
	projectDir string
	dbPath     string
	jsonOutput bool
	noWorkers  bool
	actor      string
)

// rootCtx is the signal-aware context every subcommand runs under.
// PersistentPreRun creates it; PersistentPostRun tears it down.
var (
	rootCtx    context.Context
	rootCancel context.CancelFunc
)

// metricsFile is the open handle backing settings.MetricsFile, if any, so
// PersistentPostRun can close it; nil when metrics are disabled or target
// stderr.
var metricsFile *os.File

// engine bundles the open handles a running command needs. PersistentPreRun
// opens it lazily (skipped for commands that declare themselves db-free);
// PersistentPostRun closes whatever got opened.
type engine struct {
	settings   *config.Settings
	dbPath     string
	store      *sqlite.SQLiteStorage
	repo       *entry.Repository
	search     *search.Engine
	capture    *capture.Service
	embed      *embedclient.Client
	aiProvider aiprovider.Provider
	metrics    *metrics.Recorder
}

var eng *engine

// noDBCommands never touch the database: they either write files (setup,
// settings, settings import) or have nothing to open yet (help, version).
// Keyed by full command path rather than bare name, since "settings
// import" (TOML conversion) and the top-level "import" (data import, which
// very much needs the database) would otherwise collide on the name
// "import".
var noDBCommands = map[string]bool{
	"memctl setup":           true,
	"memctl settings":        true,
	"memctl settings import": true,
	"memctl version":         true,
	"memctl help":            true,
	"memctl completion":      true,
}

var rootCmd = &cobra.Command{
	Use:   "memctl",
	Short: "memctl - project-scoped persistent memory engine",
	Long:  "memctl operates the local memory engine: storage, hybrid search, session capture, and the MCP tool server an AI coding assistant talks to.",
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		rootCtx, rootCancel = signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)

		if noDBCommands[cmd.CommandPath()] {
			return
		}

		settings, err := config.Load(projectDir)
		if err != nil {
			log.Error("loading settings", "error", err.Error())
			os.Exit(1)
		}
		if dbPath != "" {
			settings.DBPath = dbPath
		}
		log.SetLevel(logging.ParseLevel(settings.LogLevel))
		if actor == "" {
			actor = os.Getenv("AGENTKITS_ACTOR")
		}

		resolvedDB := settings.DBPath
		if !filepath.IsAbs(resolvedDB) {
			resolvedDB = filepath.Join(projectDir, settings.MemoryDir, resolvedDB)
		}
		if err := os.MkdirAll(filepath.Dir(resolvedDB), 0o755); err != nil {
			log.Error("creating memory dir", "error", err.Error())
			os.Exit(1)
		}

		store, err := sqlite.New(rootCtx, resolvedDB, sqlite.WithVectorDim(settings.VectorDim))
		if err != nil {
			log.Error("opening database", "path", resolvedDB, "error", err.Error())
			os.Exit(1)
		}

		var embedGen entry.EmbeddingGenerator
		client := embedclient.New(noopSpawn, settings.VectorDim)
		if !noWorkers {
			if err := client.Start(rootCtx); err == nil {
				embedGen = client
			}
			// Start failing (no embedding subprocess binary configured) is
			// not fatal: Repository treats a nil generator as "store
			// without a vector", exactly the degraded mode spec §4.8
			// describes for a dead/unconfigured child.
		}

		repo := entry.New(store, embedGen)
		embedCache := cache.NewEmbeddingCache(store, settings.CacheSize, settings.CacheTTL, settings.EmbeddingCacheMaxSize)
		repo.WithCache(embedCache)
		var provider aiprovider.Provider
		if settings.EnrichmentEnabled {
			provider = aiprovider.New(aiprovider.Config{
				Name:    settings.AIProvider,
				APIKey:  settings.AIAPIKey,
				BaseURL: settings.AIBaseURL,
				Model:   settings.AIModel,
			})
		}

		var recorder *metrics.Recorder
		if settings.MetricsEnabled {
			w := io.Writer(os.Stderr)
			if settings.MetricsFile != "" {
				if f, ferr := os.OpenFile(settings.MetricsFile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644); ferr == nil {
					metricsFile = f
					w = f
				} else {
					log.Error("opening metrics file", "path", settings.MetricsFile, "error", ferr.Error())
				}
			}
			recorder, err = metrics.New(w)
			if err != nil {
				log.Error("starting metrics recorder", "error", err.Error())
				recorder = nil
			}
		}

		searchEng := search.New(repo, store).WithMetrics(recorder)
		embedCache.WithMetrics(recorder)

		eng = &engine{
			settings:   settings,
			dbPath:     resolvedDB,
			store:      store,
			repo:       repo,
			search:     searchEng,
			capture:    capture.New(store),
			embed:      client,
			aiProvider: provider,
			metrics:    recorder,
		}
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if eng != nil {
			if eng.embed != nil {
				shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
				_ = eng.embed.Shutdown(shutdownCtx)
				cancel()
			}
			if eng.metrics != nil {
				shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
				_ = eng.metrics.Shutdown(shutdownCtx)
				cancel()
			}
			if eng.store != nil {
				_ = eng.store.Close()
			}
		}
		if metricsFile != nil {
			_ = metricsFile.Close()
		}
		if rootCancel != nil {
			rootCancel()
		}
	},
}

// noopSpawn never starts a real embedding subprocess: the engine has no
// bundled model binary to exec, so every embedding request falls back to
// the deterministic mock vector. A deployment that ships a real model
// subprocess swaps this for one that execs it.
func noopSpawn() (*exec.Cmd, error) {
	return nil, fmt.Errorf("no embedding subprocess configured")
}

func init() {
	rootCmd.PersistentFlags().StringVar(&projectDir, "project", ".", "project root directory")
	rootCmd.PersistentFlags().StringVar(&dbPath, "db", "", "database path override (default: settings.json db_path)")
	rootCmd.PersistentFlags().BoolVar(&jsonOutput, "json", false, "output machine-readable JSON")
	rootCmd.PersistentFlags().BoolVar(&noWorkers, "no-workers", false, "skip starting the embedding subprocess")
	rootCmd.PersistentFlags().StringVar(&actor, "actor", "", "actor name recorded for audit purposes")

	rootCmd.AddCommand(
		setupCmd,
		serverCmd,
		viewerCmd,
		webCmd,
		saveCmd,
		exportCmd,
		importCmd,
		lifecycleCmd,
		lifecycleStatsCmd,
		settingsCmd,
		versionCmd,
		workerCmd,
		hookCmd,
	)
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "print memctl version",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Println("memctl " + Version)
	},
}

// setupCmd writes the project-local rules/config files an assistant
// integration needs (settings.json, the memory directory). The rules-file
// content itself is out of scope per spec §1; this only scaffolds the
// directory and a default settings.json.
var setupCmd = &cobra.Command{
	Use:   "setup",
	Short: "scaffold .agentkits/memory and a default settings.json",
	RunE: func(cmd *cobra.Command, args []string) error {
		memDir := filepath.Join(projectDir, ".agentkits", "memory")
		if err := os.MkdirAll(memDir, 0o755); err != nil {
			return err
		}
		settingsPath := filepath.Join(projectDir, "settings.json")
		if _, err := os.Stat(settingsPath); err == nil {
			fmt.Fprintf(cmd.OutOrStdout(), "settings.json already exists at %s, leaving it alone\n", settingsPath)
			return nil
		}
		defaultSettings := []byte("{\n  \"memory_dir\": \".agentkits/memory\",\n  \"db_path\": \"memory.db\"\n}\n")
		if err := os.WriteFile(settingsPath, defaultSettings, 0o644); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "wrote %s\n", settingsPath)
		return nil
	},
}

// serverCmd runs the MCP JSON-RPC tool server over stdin/stdout (spec
// §4.9). Logging, if any, must go to stderr: stdout is the wire.
var serverCmd = &cobra.Command{
	Use:   "server",
	Short: "run the MCP tool server over stdin/stdout",
	RunE: func(cmd *cobra.Command, args []string) error {
		srv := mcp.NewServer(eng.repo, eng.search, eng.store, eng.dbPath)
		srv.SetLogger(log)
		return srv.Serve(rootCtx, os.Stdin, os.Stdout)
	},
}

// viewerCmd and webCmd are thin stubs: the interactive terminal/browser
// viewer is an external collaborator per spec §1, not implemented here.
var viewerCmd = &cobra.Command{
	Use:   "viewer",
	Short: "(out of scope) interactive terminal viewer",
	RunE: func(cmd *cobra.Command, args []string) error {
		return fmt.Errorf("viewer is not implemented: the interactive viewer is an external collaborator, not part of this engine")
	},
}

var webCmd = &cobra.Command{
	Use:   "web",
	Short: "(out of scope) browser-based viewer",
	RunE: func(cmd *cobra.Command, args []string) error {
		return fmt.Errorf("web is not implemented: the browser UI is an external collaborator, not part of this engine")
	},
}

var saveCmd = &cobra.Command{
	Use:   "save",
	Short: "store one Entry read from stdin as JSON",
	RunE: func(cmd *cobra.Command, args []string) error {
		var e types.Entry
		dec := json.NewDecoder(cmd.InOrStdin())
		if err := dec.Decode(&e); err != nil {
			return fmt.Errorf("decoding entry from stdin: %w", err)
		}
		if err := eng.repo.Store(rootCtx, &e); err != nil {
			return err
		}
		if jsonOutput {
			return json.NewEncoder(cmd.OutOrStdout()).Encode(e)
		}
		fmt.Fprintf(cmd.OutOrStdout(), "stored %s\n", e.ID)
		return nil
	},
}

var lifecycleCmd = &cobra.Command{
	Use:   "lifecycle",
	Short: "run compression/archival/purge housekeeping",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg := capture.LifecycleConfig{
			CompressAfterDays: 7,
			ArchiveAfterDays:  int(eng.settings.ArchiveAfter.Hours() / 24),
		}
		result, err := eng.capture.RunLifecycleTasks(rootCtx, cfg)
		if err != nil {
			return err
		}
		if jsonOutput {
			return json.NewEncoder(cmd.OutOrStdout()).Encode(result)
		}
		fmt.Fprintf(cmd.OutOrStdout(), "archived=%d queued_compressions=%d deleted=%d vacuumed=%v\n",
			result.ArchivedSessions, result.QueuedCompressions, result.DeletedSessions, result.Vacuumed)
		return nil
	},
}

var lifecycleStatsCmd = &cobra.Command{
	Use:   "lifecycle-stats",
	Short: "report pending task-queue depth per kind",
	RunE: func(cmd *cobra.Command, args []string) error {
		stats := map[string]int{}
		for _, kind := range taskKinds {
			n, err := eng.store.PendingCount(rootCtx, kind)
			if err != nil {
				return err
			}
			stats[string(kind)] = n
		}
		if jsonOutput {
			return json.NewEncoder(cmd.OutOrStdout()).Encode(stats)
		}
		for kind, n := range stats {
			fmt.Fprintf(cmd.OutOrStdout(), "%s: %d pending\n", kind, n)
		}
		return nil
	},
}

var settingsCmd = &cobra.Command{
	Use:   "settings",
	Short: "print the resolved settings (defaults < settings.json < env)",
	RunE: func(cmd *cobra.Command, args []string) error {
		settings, err := config.Load(projectDir)
		if err != nil {
			return err
		}
		return json.NewEncoder(cmd.OutOrStdout()).Encode(settings)
	},
}

// settingsImportCmd converts a hand-authored TOML settings file into the
// canonical settings.json, for operators who prefer TOML authoring.
var settingsImportCmd = &cobra.Command{
	Use:   "import <settings.toml>",
	Short: "convert a TOML settings file into settings.json",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		dest := filepath.Join(projectDir, "settings.json")
		if err := config.ImportTOML(args[0], dest); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "wrote %s\n", dest)
		return nil
	},
}

func init() {
	settingsCmd.AddCommand(settingsImportCmd)
}

// exportDoc and exportSession are the on-disk shape the data-import format
// (spec §6) describes: {version, project, sessions: [...]}.
type exportDoc struct {
	Version  string          `json:"version"`
	Project  string          `json:"project"`
	Sessions []exportSession `json:"sessions"`
}

type exportSession struct {
	SessionID    string               `json:"sessionId"`
	Project      string               `json:"project"`
	StartedAt    time.Time            `json:"startedAt"`
	Prompts      []*types.UserPrompt  `json:"prompts"`
	Observations []*types.Observation `json:"observations"`
}

var exportCmd = &cobra.Command{
	Use:   "export",
	Short: "export one project's sessions, prompts, and observations as JSON",
	RunE: func(cmd *cobra.Command, args []string) error {
		project, _ := cmd.Flags().GetString("target-project")
		if project == "" {
			return fmt.Errorf("--target-project is required")
		}
		obs, err := eng.store.ObservationsByProject(rootCtx, project, 0)
		if err != nil {
			return err
		}
		bySession := map[string][]*types.Observation{}
		for _, o := range obs {
			bySession[o.SessionID] = append(bySession[o.SessionID], o)
		}
		doc := exportDoc{Version: "1.0", Project: project}
		for sessionID, sessObs := range bySession {
			sess, err := eng.store.GetSession(rootCtx, sessionID)
			if err != nil {
				continue
			}
			prompts, err := eng.store.PromptsBySession(rootCtx, sessionID)
			if err != nil {
				return err
			}
			doc.Sessions = append(doc.Sessions, exportSession{
				SessionID:    sess.ID,
				Project:      sess.Project,
				StartedAt:    sess.StartedAt,
				Prompts:      prompts,
				Observations: sessObs,
			})
		}
		return json.NewEncoder(cmd.OutOrStdout()).Encode(doc)
	},
}

func init() {
	exportCmd.Flags().String("target-project", "", "project to export")
}

// importCmd reads the export format back in. Sessions are always created
// fresh with new IDs per spec §6; observations and prompts keep their
// original content_hash (recomputing it against the new session id would
// make every imported row look content-distinct, defeating the dedup this
// format documents) and are skipped, rather than re-inserted, when a row
// with the same (session_id, content_hash) already exists in that new
// session — which happens when the export file itself carries duplicates.
var importCmd = &cobra.Command{
	Use:   "import",
	Short: "import sessions from the export JSON format",
	RunE: func(cmd *cobra.Command, args []string) error {
		var doc exportDoc
		if err := json.NewDecoder(cmd.InOrStdin()).Decode(&doc); err != nil {
			return fmt.Errorf("decoding import document: %w", err)
		}

		var importedSessions, importedObs, skippedObs int
		for _, s := range doc.Sessions {
			newID := idgen.GenerateHashID("session", s.SessionID, doc.Project, "", time.Now(), 6, 0)
			sess := &types.Session{ID: newID, Project: doc.Project, Status: types.SessionCompleted, StartedAt: s.StartedAt}
			if err := eng.store.CreateSession(rootCtx, sess); err != nil {
				return err
			}
			importedSessions++

			for _, p := range s.Prompts {
				if _, err := eng.store.FindPromptByHash(rootCtx, newID, p.ContentHash, 24*time.Hour); err == nil {
					continue
				}
				number, err := eng.store.NextPromptNumber(rootCtx, newID)
				if err != nil {
					return err
				}
				np := *p
				np.ID = idgen.GenerateHashID("prompt", p.PromptText, doc.Project, newID, time.Now(), 6, 0)
				np.SessionID = newID
				np.PromptNumber = number
				if err := eng.store.StorePrompt(rootCtx, &np); err != nil {
					return err
				}
			}

			for _, o := range s.Observations {
				if _, err := eng.store.FindObservationByHash(rootCtx, newID, o.ToolName, o.ContentHash, 24*time.Hour); err == nil {
					skippedObs++
					continue
				}
				no := *o
				no.ID = idgen.GenerateHashID("obs", o.ToolName, o.ToolInput, newID, time.Now(), 6, 0)
				no.SessionID = newID
				if err := eng.store.StoreObservation(rootCtx, &no); err != nil {
					return err
				}
				if err := eng.store.IncrementObservationCount(rootCtx, newID); err != nil {
					return err
				}
				importedObs++
			}
		}
		result := map[string]int{
			"imported_sessions":     importedSessions,
			"imported_observations": importedObs,
			"skipped_observations":  skippedObs,
		}
		if jsonOutput {
			return json.NewEncoder(cmd.OutOrStdout()).Encode(result)
		}
		fmt.Fprintf(cmd.OutOrStdout(), "imported %d sessions, %d observations (%d deduped)\n",
			importedSessions, importedObs, skippedObs)
		return nil
	},
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
