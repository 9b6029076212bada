package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/yaml.v3"

	"github.com/dipolehq/dipole/internal/config"
	"github.com/dipolehq/dipole/internal/db"
	"github.com/dipolehq/dipole/internal/services"
	"github.com/dipolehq/dipole/internal/utils"
)

// report is the JSON document written to stdout: the full analytical
// surface of one project in a single pass.
type report struct {
	Summary      *services.ProjectSummary      `json:"summary"`
	Reliability  *services.ReliabilityReport   `json:"reliability"`
	Groups       []*services.GroupProfile      `json:"groups"`
	Clusters     []*services.ClusterAssignment `json:"clusters,omitempty"`
	LongRows     []services.LongRow            `json:"long_rows"`
	WideMatrix   map[string]map[string]float64 `json:"wide_matrix"`
	GroupSummary []services.GroupSummaryRow    `json:"group_summary"`
}

// sessionEntry is one submission in the optional DIPOLE_SESSIONS document.
type sessionEntry struct {
	SessionID  string        `yaml:"session_id"`
	GroupKey   string        `yaml:"group_key"`
	GroupLabel string        `yaml:"group_label"`
	Answers    []answerEntry `yaml:"answers"`
}

type answerEntry struct {
	Item  string  `yaml:"item"`
	Value float64 `yaml:"value"`
}

func main() {
	_ = godotenv.Load() // .env is optional; system env wins when absent

	logger := buildLogger()
	defer func() { _ = logger.Sync() }()

	if err := run(logger); err != nil {
		logger.Fatal("report failed", zap.Error(err))
	}
}

func buildLogger() *zap.Logger {
	cfg := zap.NewProductionConfig()
	if utils.SafeEnv("DIPOLE_VERBOSE", "") != "" {
		cfg.Level = zap.NewAtomicLevelAt(zapcore.DebugLevel)
	}
	logger, err := cfg.Build()
	if err != nil {
		fmt.Fprintf(os.Stderr, "initialize logger: %v\n", err)
		os.Exit(1)
	}
	return logger
}

func run(logger *zap.Logger) error {
	projectPath := os.Getenv("DIPOLE_PROJECT")
	if projectPath == "" {
		return fmt.Errorf("DIPOLE_PROJECT is not set")
	}
	project, err := config.LoadProject(projectPath)
	if err != nil {
		return err
	}

	store, err := openStore(logger)
	if err != nil {
		return err
	}
	defer func() { _ = store.Close() }()

	if err := store.UpsertProject(project); err != nil {
		return err
	}
	if utils.SafeEnv("DIPOLE_RESET", "") != "" {
		if err := store.DeleteSessionsByProject(project.ID); err != nil {
			return err
		}
		logger.Info("existing sessions cleared", zap.String("project_id", project.ID))
	}

	responseSvc := services.NewResponseService(store, logger)
	if path := os.Getenv("DIPOLE_SESSIONS"); path != "" {
		submitted, skipped, err := ingestSessions(responseSvc, project.ID, path)
		if err != nil {
			return err
		}
		logger.Info("sessions ingested",
			zap.String("project_id", project.ID),
			zap.Int("submitted", submitted),
			zap.Int("skipped", skipped))
	}

	clusterer := services.NewClusterer()
	if os.Getenv("DIPOLE_SEED") != "" {
		clusterer = services.NewSeededClusterer(utils.EnvInt64("DIPOLE_SEED", 0))
	}
	analytics := services.NewAnalyticsService(store, clusterer, logger)
	export := services.NewExportService(store)

	out := &report{}
	if out.Summary, err = analytics.Summary(project.ID); err != nil {
		return err
	}
	if out.Reliability, err = analytics.Reliability(project.ID); err != nil {
		return err
	}
	if out.Groups, err = analytics.CompareGroups(project.ID); err != nil {
		return err
	}
	if k := utils.EnvInt("DIPOLE_CLUSTERS", 2); k > 0 {
		iterations := utils.EnvInt("DIPOLE_MAX_ITERATIONS", 100)
		if out.Clusters, err = analytics.Clusters(project.ID, k, iterations); err != nil {
			return err
		}
	}
	if out.LongRows, err = export.LongRows(project.ID); err != nil {
		return err
	}
	if out.WideMatrix, err = export.WideMatrix(project.ID); err != nil {
		return err
	}
	if out.GroupSummary, err = export.GroupSummaryRows(project.ID); err != nil {
		return err
	}

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(out)
}

// openStore picks SQLite when DIPOLE_DB is set, otherwise an in-memory
// store that lives for this run only.
func openStore(logger *zap.Logger) (db.Store, error) {
	path := os.Getenv("DIPOLE_DB")
	if path == "" {
		logger.Info("using in-memory store")
		return db.NewMemoryStore(), nil
	}
	return db.Open(path, logger)
}

// ingestSessions submits every entry in the YAML document through the
// one-shot intake path. Entries whose session ID already exists are
// skipped so re-runs against a persistent store stay idempotent.
func ingestSessions(svc *services.ResponseService, projectID, path string) (submitted, skipped int, err error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return 0, 0, fmt.Errorf("read sessions file: %w", err)
	}
	var entries []sessionEntry
	if err := yaml.Unmarshal(data, &entries); err != nil {
		return 0, 0, fmt.Errorf("parse sessions file: %w", err)
	}
	for i, entry := range entries {
		answers := make([]services.Answer, 0, len(entry.Answers))
		for _, a := range entry.Answers {
			answers = append(answers, services.Answer{ItemID: a.Item, Raw: a.Value})
		}
		_, err := svc.SubmitSession(services.SubmitSessionRequest{
			ProjectID:  projectID,
			SessionID:  entry.SessionID,
			GroupKey:   entry.GroupKey,
			GroupLabel: entry.GroupLabel,
			Answers:    answers,
		})
		if err != nil {
			if errors.Is(err, services.ErrSessionExists) {
				skipped++
				continue
			}
			return submitted, skipped, fmt.Errorf("submit session %d: %w", i+1, err)
		}
		submitted++
	}
	return submitted, skipped, nil
}
