package server

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/danielgtaylor/huma/v2"
	humachi "github.com/danielgtaylor/huma/v2/adapters/humachi"
	"github.com/go-chi/chi/v5"

	"secretsanta/internal/app"
	"secretsanta/internal/domain"
	"secretsanta/internal/engine"
	"secretsanta/internal/repo"
	"secretsanta/internal/store"
)

// Config for the HTTP API handler. NewService is called once per request
// because an engine must not be shared between goroutines.
type Config struct {
	NewService func() app.Service
	BasePath   string
	Auth       AuthConfig
}

type apiErrorBody struct {
	Code    string         `json:"code" example:"invalid_input"`
	Message string         `json:"message" example:"duplicate email found: 'a@x' at row 3"`
	Details map[string]any `json:"details,omitempty"`
}

// apiError is the error envelope for every non-2xx response.
type apiError struct {
	status int
	Body   apiErrorBody `json:"error"`
}

func (e *apiError) GetStatus() int { return e.status }
func (e *apiError) Error() string  { return e.Body.Message }

// New returns an HTTP handler exposing the assignment API.
func New(cfg Config) (http.Handler, error) {
	if cfg.NewService == nil {
		return nil, errors.New("server: NewService is required")
	}
	basePath := cfg.BasePath
	if basePath == "" {
		basePath = "/v0"
	}
	if !strings.HasPrefix(basePath, "/") {
		basePath = "/" + basePath
	}
	huma.DefaultArrayNullable = false
	huma.NewError = func(status int, msg string, errs ...error) huma.StatusError {
		return newRequestError(status, msg, errs)
	}
	huma.NewErrorWithContext = func(_ huma.Context, status int, msg string, errs ...error) huma.StatusError {
		return newRequestError(status, msg, errs)
	}

	router := chi.NewRouter()
	router.Use(newAuthMiddleware(basePath, cfg.Auth))
	api := humachi.New(router, huma.DefaultConfig("Secret Santa API", "1.0.0"))
	group := huma.NewGroup(api, basePath)

	registerHealth(group)
	registerAssignments(group, cfg.NewService)
	registerRuns(group, cfg.NewService)
	registerEvents(group, cfg.NewService)

	return router, nil
}

func newAPIError(status int, code, message string, details map[string]any) huma.StatusError {
	if code == "" {
		code = defaultCodeForStatus(status)
	}
	return &apiError{
		status: status,
		Body: apiErrorBody{
			Code:    code,
			Message: message,
			Details: details,
		},
	}
}

// newRequestError reports schema and decoding failures as 400s.
func newRequestError(status int, msg string, errs []error) huma.StatusError {
	if status == http.StatusUnprocessableEntity {
		status = http.StatusBadRequest
	}
	var details map[string]any
	if len(errs) > 0 {
		msgs := make([]string, 0, len(errs))
		for _, e := range errs {
			if e != nil {
				msgs = append(msgs, e.Error())
			}
		}
		details = map[string]any{"errors": msgs}
	}
	return newAPIError(status, "", msg, details)
}

func handleError(err error) huma.StatusError {
	if err == nil {
		return nil
	}
	var verr *store.ValidationError
	switch {
	case errors.As(err, &verr):
		details := map[string]any{}
		if verr.Row > 0 {
			details["row"] = verr.Row
		}
		if verr.Field != "" {
			details["field"] = verr.Field
		}
		return newAPIError(http.StatusBadRequest, "invalid_input", err.Error(), details)
	case errors.Is(err, engine.ErrTooFewParticipants), errors.Is(err, engine.ErrDuplicateParticipant):
		return newAPIError(http.StatusBadRequest, "invalid_input", err.Error(), nil)
	case errors.Is(err, engine.ErrNoValidAssignment):
		return newAPIError(http.StatusUnprocessableEntity, "no_valid_assignment", err.Error(), nil)
	case errors.Is(err, repo.ErrNotFound):
		return newAPIError(http.StatusNotFound, "not_found", err.Error(), nil)
	case errors.Is(err, app.ErrHistoryDisabled):
		return newAPIError(http.StatusConflict, "history_disabled", err.Error(), nil)
	default:
		return newAPIError(http.StatusInternalServerError, "internal_error", "internal error", map[string]any{"error": err.Error()})
	}
}

func defaultCodeForStatus(status int) string {
	switch status {
	case http.StatusBadRequest:
		return "bad_request"
	case http.StatusNotFound:
		return "not_found"
	case http.StatusConflict:
		return "conflict"
	case http.StatusUnprocessableEntity:
		return "validation_failed"
	case http.StatusInternalServerError:
		return "internal_error"
	default:
		return strings.ToLower(strings.ReplaceAll(http.StatusText(status), " ", "_"))
	}
}

func registerHealth(api huma.API) {
	huma.Register(api, huma.Operation{
		OperationID: "health",
		Method:      http.MethodGet,
		Path:        "/health",
		Summary:     "Health check",
	}, func(ctx context.Context, _ *struct{}) (*struct {
		Body map[string]string `json:"body"`
	}, error) {
		return &struct {
			Body map[string]string `json:"body"`
		}{Body: map[string]string{"status": "ok"}}, nil
	})
}

func registerAssignments(api huma.API, newService func() app.Service) {
	huma.Register(api, huma.Operation{
		OperationID: "create-assignments",
		Method:      http.MethodPost,
		Path:        "/assignments",
		Summary:     "Draw a Secret Santa round",
		Description: "Assigns every participant one recipient, never themselves and never last round's recipient.",
		Errors: []int{
			http.StatusBadRequest,
			http.StatusConflict,
			http.StatusUnprocessableEntity,
			http.StatusInternalServerError,
		},
	}, func(ctx context.Context, input *struct {
		Body AssignRequest `json:"body"`
	}) (*struct {
		Body AssignResponse `json:"body"`
	}, error) {
		svc := newService()
		if err := store.ValidateParticipants(input.Body.Participants); err != nil {
			return nil, handleError(err)
		}
		if input.Body.Record && svc.Repo == nil {
			return nil, handleError(app.ErrHistoryDisabled)
		}
		res, err := svc.Assign(ctx, input.Body.Participants, input.Body.Prior)
		if err != nil {
			return nil, handleError(err)
		}
		out := AssignResponse{Attempts: res.Attempts, Assignments: res.Assignments}
		if input.Body.Record {
			source := "api"
			if sub := subjectFromContext(ctx); sub != "" {
				source = "api:" + sub
			}
			runID, err := svc.Persist(ctx, domain.Run{ParticipantsSource: source, Attempts: res.Attempts}, res.Assignments, nil)
			if err != nil {
				return nil, handleError(err)
			}
			out.RunID = runID
		}
		return &struct {
			Body AssignResponse `json:"body"`
		}{Body: out}, nil
	})
}

func registerRuns(api huma.API, newService func() app.Service) {
	huma.Register(api, huma.Operation{
		OperationID: "list-runs",
		Method:      http.MethodGet,
		Path:        "/runs",
		Summary:     "List recorded runs",
		Errors:      []int{http.StatusConflict},
	}, func(ctx context.Context, input *struct {
		Limit int `query:"limit" default:"20" minimum:"0"`
	}) (*struct {
		Body RunListResponse `json:"body"`
	}, error) {
		svc := newService()
		if svc.Repo == nil {
			return nil, handleError(app.ErrHistoryDisabled)
		}
		runs, err := svc.Repo.ListRuns(ctx, input.Limit)
		if err != nil {
			return nil, handleError(err)
		}
		if runs == nil {
			runs = []domain.Run{}
		}
		return &struct {
			Body RunListResponse `json:"body"`
		}{Body: RunListResponse{Items: runs}}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "get-run",
		Method:      http.MethodGet,
		Path:        "/runs/{run_id}",
		Summary:     "Get a run with its assignments",
		Errors:      []int{http.StatusNotFound, http.StatusConflict},
	}, func(ctx context.Context, input *struct {
		RunID string `path:"run_id"`
	}) (*struct {
		Body RunDetailResponse `json:"body"`
	}, error) {
		svc := newService()
		if svc.Repo == nil {
			return nil, handleError(app.ErrHistoryDisabled)
		}
		run, err := svc.Repo.GetRun(ctx, input.RunID)
		if err != nil {
			return nil, handleError(err)
		}
		assignments, err := svc.Repo.RunAssignments(ctx, input.RunID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body RunDetailResponse `json:"body"`
		}{Body: RunDetailResponse{Run: run, Assignments: assignments}}, nil
	})
}

func registerEvents(api huma.API, newService func() app.Service) {
	huma.Register(api, huma.Operation{
		OperationID: "list-events",
		Method:      http.MethodGet,
		Path:        "/events",
		Summary:     "Tail the run event log",
		Errors:      []int{http.StatusConflict},
	}, func(ctx context.Context, input *struct {
		Limit int    `query:"limit" default:"20" minimum:"1"`
		RunID string `query:"run_id"`
		Type  string `query:"type"`
	}) (*struct {
		Body EventListResponse `json:"body"`
	}, error) {
		svc := newService()
		if svc.Repo == nil {
			return nil, handleError(app.ErrHistoryDisabled)
		}
		evts, err := svc.Repo.LatestEvents(ctx, input.Limit, input.RunID, input.Type)
		if err != nil {
			return nil, handleError(err)
		}
		if evts == nil {
			evts = []domain.Event{}
		}
		return &struct {
			Body EventListResponse `json:"body"`
		}{Body: EventListResponse{Items: evts}}, nil
	})
}
