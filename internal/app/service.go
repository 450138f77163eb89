package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"secretsanta/internal/config"
	"secretsanta/internal/domain"
	"secretsanta/internal/engine"
	"secretsanta/internal/events"
	"secretsanta/internal/logging"
	"secretsanta/internal/repo"
	"secretsanta/internal/store"
)

// ErrHistoryDisabled is returned when history is requested but no repo is wired.
var ErrHistoryDisabled = errors.New("run history is disabled")

// Service runs the load -> assign -> save pipeline. A nil Repo disables
// run history.
type Service struct {
	Store         store.Store
	Engine        engine.Engine
	Repo          *repo.Repo
	Events        events.Writer
	Logger        *slog.Logger
	Now           func() time.Time
	DefaultOutput string
}

// New wires a Service from config. r may be nil when history is off.
func New(cfg *config.Config, r *repo.Repo, logger *slog.Logger) Service {
	logger = logging.OrDiscard(logger)
	opts := cfg.EngineOptions()
	opts.Logger = logger
	svc := Service{
		Store:         store.Store{Logger: logger},
		Engine:        engine.New(opts),
		Logger:        logger,
		Now:           time.Now,
		DefaultOutput: cfg.Output.DefaultPath,
	}
	if r != nil && cfg.History.Enabled {
		svc.Repo = r
		svc.Events = events.Writer{DB: r.DB}
	}
	return svc
}

// Request describes one pipeline run. PriorPath wins over PriorFromHistory
// when both are set.
type Request struct {
	ParticipantsPath string
	PriorPath        string
	PriorFromHistory bool
	OutputPath       string
	DryRun           bool
}

type Outcome struct {
	RunID       string              `json:"run_id,omitempty"`
	OutputPath  string              `json:"output_path,omitempty"`
	PriorSource string              `json:"prior_source,omitempty"`
	Attempts    int                 `json:"attempts"`
	Assignments []domain.Assignment `json:"assignments"`
}

// Run executes the whole pipeline. Nothing is written unless a complete
// valid assignment was found.
func (s Service) Run(ctx context.Context, req Request) (Outcome, error) {
	participants, err := s.LoadParticipants(req.ParticipantsPath)
	if err != nil {
		return Outcome{}, err
	}
	priors, priorSource, err := s.LoadPriors(ctx, req.PriorPath, req.PriorFromHistory)
	if err != nil {
		return Outcome{}, err
	}
	res, err := s.Assign(ctx, participants, priors)
	if err != nil {
		return Outcome{Attempts: res.Attempts}, err
	}
	out := Outcome{PriorSource: priorSource, Attempts: res.Attempts, Assignments: res.Assignments}
	if req.DryRun {
		return out, nil
	}
	out.OutputPath = s.outputPath(req.OutputPath)
	meta := domain.Run{
		ParticipantsSource: req.ParticipantsPath,
		PriorSource:        priorSource,
		OutputPath:         out.OutputPath,
		Attempts:           res.Attempts,
	}
	out.RunID, err = s.Persist(ctx, meta, res.Assignments, func() error {
		return s.Store.SaveAssignments(out.OutputPath, res.Assignments)
	})
	if err != nil {
		return Outcome{}, err
	}
	return out, nil
}

func (s Service) LoadParticipants(path string) ([]domain.Participant, error) {
	return s.Store.LoadParticipants(strings.TrimSpace(path))
}

// LoadPriors returns last round's assignments from path, or from the newest
// recorded run when fromHistory is set. The returned source describes where
// they came from and is empty when there are no prior constraints.
func (s Service) LoadPriors(ctx context.Context, path string, fromHistory bool) ([]domain.PriorAssignment, string, error) {
	path = strings.TrimSpace(path)
	if path != "" {
		priors, err := s.Store.LoadPriorAssignments(path)
		if err != nil {
			return nil, "", err
		}
		return priors, path, nil
	}
	if !fromHistory {
		return []domain.PriorAssignment{}, "", nil
	}
	if s.Repo == nil {
		return nil, "", ErrHistoryDisabled
	}
	priors, runID, err := s.Repo.LatestAssignments(ctx)
	if errors.Is(err, repo.ErrNotFound) {
		s.log().Info("no recorded runs; proceeding without prior constraints")
		return []domain.PriorAssignment{}, "", nil
	}
	if err != nil {
		return nil, "", fmt.Errorf("load prior round from history: %w", err)
	}
	s.log().Info("using prior round from history", "run_id", runID, "count", len(priors))
	return priors, "run:" + runID, nil
}

// Assign runs the engine. Exhaustion is logged to the event log when history
// is on; the error is returned unchanged.
func (s Service) Assign(ctx context.Context, participants []domain.Participant, priors []domain.PriorAssignment) (engine.Result, error) {
	res, err := s.Engine.Assign(participants, priors)
	if err != nil && s.Repo != nil && errors.Is(err, engine.ErrNoValidAssignment) {
		payload := events.Payload{"participants": len(participants), "attempts": res.Attempts, "error": err.Error()}
		if evErr := s.Events.Append(ctx, nil, events.TypeRunFailed, "", payload); evErr != nil {
			s.log().Warn("record failed run", "error", evErr)
		}
	}
	return res, err
}

// Persist records the run in history and calls save inside the same
// transaction, committing only if save succeeds. Without history it just
// calls save. It returns the new run id, or "" without history.
func (s Service) Persist(ctx context.Context, meta domain.Run, assignments []domain.Assignment, save func() error) (string, error) {
	if s.Repo == nil {
		if save == nil {
			return "", nil
		}
		return "", save()
	}
	meta.ID = uuid.NewString()
	meta.CreatedAt = s.now().UTC().Format(time.RFC3339)
	meta.ParticipantCount = len(assignments)
	meta.Repair = string(s.Engine.Repair)
	if meta.Repair == "" {
		meta.Repair = string(engine.RepairSinglePass)
	}

	tx, err := s.Repo.DB.BeginTx(ctx, nil)
	if err != nil {
		return "", err
	}
	defer tx.Rollback()
	if err := s.Repo.InsertRunTx(ctx, tx, meta, assignments); err != nil {
		return "", err
	}
	if strings.HasPrefix(meta.PriorSource, "run:") {
		if err := s.Events.Append(ctx, tx, events.TypeHistoryPrior, meta.ID, events.Payload{"prior_run_id": strings.TrimPrefix(meta.PriorSource, "run:")}); err != nil {
			return "", err
		}
	}
	if err := s.Events.Append(ctx, tx, events.TypeRunCreated, meta.ID, events.Payload{
		"participants": meta.ParticipantCount,
		"attempts":     meta.Attempts,
		"output_path":  meta.OutputPath,
	}); err != nil {
		return "", err
	}
	if save != nil {
		if err := save(); err != nil {
			return "", err
		}
	}
	if err := tx.Commit(); err != nil {
		return "", fmt.Errorf("commit run history: %w", err)
	}
	s.log().Debug("run recorded", "run_id", meta.ID)
	return meta.ID, nil
}

func (s Service) outputPath(p string) string {
	if p = strings.TrimSpace(p); p != "" {
		return p
	}
	if s.DefaultOutput != "" {
		return s.DefaultOutput
	}
	return config.DefaultOutputPath
}

func (s Service) now() time.Time {
	if s.Now != nil {
		return s.Now()
	}
	return time.Now()
}

func (s Service) log() *slog.Logger { return logging.OrDiscard(s.Logger) }
