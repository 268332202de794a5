package server

import (
	"bytes"
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"path"
	"strings"
	"time"

	"github.com/danielgtaylor/huma/v2"
	humachi "github.com/danielgtaylor/huma/v2/adapters/humachi"
	"github.com/go-chi/chi/v5"

	"launchpath/internal/config"
	"launchpath/internal/domain"
	"launchpath/internal/pipeline"
	"launchpath/internal/repo"
	"launchpath/internal/spotlight"
	"launchpath/internal/tracker"
)

// defaultOwner is used when the caller sends no X-Owner-Id header. The local
// single-user setup never needs to name itself.
const defaultOwner = "local"

// Config for the HTTP API handler.
type Config struct {
	DB        *sql.DB
	AppConfig *config.Config
	Manager   *pipeline.Manager
	BasePath  string
}

type apiErrorBody struct {
	Code    string         `json:"code" example:"not_found"`
	Message string         `json:"message" example:"not found"`
	Details map[string]any `json:"details,omitempty" jsonschema:"type=object,additionalProperties=true"`
}

type requestKey struct{}
type bodyBytesKey struct{}

// apiError models the error envelope.
type apiError struct {
	status int
	Body   apiErrorBody `json:"error"`
}

func (e *apiError) GetStatus() int { return e.status }
func (e *apiError) Error() string  { return e.Body.Message }

// New returns an HTTP handler exposing the LaunchPath API.
func New(cfg Config) (http.Handler, error) {
	basePath := cfg.BasePath
	if basePath == "" {
		basePath = "/v0"
	}
	if !strings.HasPrefix(basePath, "/") {
		basePath = "/" + basePath
	}
	if cfg.Manager == nil {
		cfg.Manager = pipeline.NewManager(cfg.DB, cfg.AppConfig)
	}
	huma.DefaultArrayNullable = false
	// Override Huma errors to use the envelope above.
	huma.NewError = func(status int, msg string, errs ...error) huma.StatusError {
		return newAPIError(status, "", msg, nil)
	}
	huma.NewErrorWithContext = func(_ huma.Context, status int, msg string, errs ...error) huma.StatusError {
		if status == http.StatusUnprocessableEntity && strings.Contains(strings.ToLower(msg), "validation") {
			// Schema/request validation errors should be 400 bad_request
			status = http.StatusBadRequest
		}
		var details map[string]any
		if len(errs) > 0 {
			details = map[string]any{"errors": errs}
		}
		return newAPIError(status, "", msg, details)
	}

	router := chi.NewRouter()
	router.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			bodyBytes, _ := io.ReadAll(r.Body)
			r.Body = io.NopCloser(bytes.NewBuffer(bodyBytes))
			ctx := context.WithValue(r.Context(), requestKey{}, r)
			ctx = context.WithValue(ctx, bodyBytesKey{}, bodyBytes)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	})
	hcfg := huma.DefaultConfig("LaunchPath API", "0.1.0")
	hcfg.OpenAPIPath = "/openapi"
	hcfg.DocsPath = "" // custom Swagger UI below
	api := humachi.New(router, hcfg)
	group := huma.NewGroup(api, basePath)

	r := repo.Repo{DB: cfg.DB}
	trk := tracker.New(cfg.DB)

	registerDocs(router, basePath)
	registerHealth(group)
	registerIdeas(group, r, cfg.Manager)
	registerValidations(group, r)
	registerTasks(group, r, trk, cfg.Manager)
	registerSpotlight(group, cfg.Manager)
	registerOnboarding(group, cfg.DB, r, cfg.Manager)
	registerEvents(group, r)
	registerOpenAPI(router, api, basePath)

	startWebhookDispatcher(cfg.DB, cfg.AppConfig)

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

func handleError(err error) huma.StatusError {
	if err == nil {
		return nil
	}
	var pe *pipeline.PipelineError
	if errors.As(err, &pe) {
		return newAPIError(http.StatusUnprocessableEntity, "pipeline_failed", err.Error(), map[string]any{"stage": string(pe.Stage)})
	}
	if errors.Is(err, repo.ErrNotFound) {
		return newAPIError(http.StatusNotFound, "not_found", err.Error(), nil)
	}
	msg := err.Error()
	lowered := strings.ToLower(msg)
	switch {
	case strings.Contains(lowered, "no pending task generation"):
		return newAPIError(http.StatusConflict, "nothing_to_retry", msg, nil)
	case strings.Contains(lowered, "invalid") || strings.Contains(lowered, "missing") || strings.Contains(lowered, "required"):
		return newAPIError(http.StatusBadRequest, "bad_request", msg, nil)
	default:
		return newAPIError(http.StatusInternalServerError, "internal_error", "internal error", map[string]any{"error": msg})
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

func ownerFromContext(ctx context.Context) string {
	if r, ok := ctx.Value(requestKey{}).(*http.Request); ok {
		if owner := strings.TrimSpace(r.Header.Get("X-Owner-Id")); owner != "" {
			return owner
		}
	}
	return defaultOwner
}

func bodyBytes(ctx context.Context) []byte {
	if b, ok := ctx.Value(bodyBytesKey{}).([]byte); ok {
		return b
	}
	return nil
}

func registerDocs(r chi.Router, basePath string) {
	r.Get("/docs", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		io.WriteString(w, swaggerHTML(basePath))
	})
}

func registerOpenAPI(r chi.Router, api huma.API, basePath string) {
	var spec []byte
	specPath := path.Join(basePath, "openapi.json")
	r.Get(specPath, func(w http.ResponseWriter, r *http.Request) {
		if spec == nil {
			oas := api.OpenAPI()
			ensureDefaultErrorResponses(oas)
			spec, _ = json.Marshal(oas)
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write(spec)
	})
}

func ensureDefaultErrorResponses(oas *huma.OpenAPI) {
	if oas == nil || oas.Paths == nil {
		return
	}
	for _, item := range oas.Paths {
		for _, op := range []*huma.Operation{
			item.Get, item.Put, item.Post, item.Delete, item.Options, item.Head, item.Patch, item.Trace,
		} {
			if op == nil {
				continue
			}
			if op.Responses == nil {
				op.Responses = map[string]*huma.Response{}
			}
			op.Responses["default"] = &huma.Response{
				Description: "Error",
				Content: map[string]*huma.MediaType{
					"application/json": {
						Schema: &huma.Schema{Ref: "#/components/schemas/ApiError"},
					},
				},
			}
		}
	}
}

func swaggerHTML(basePath string) string {
	specURL := path.Join("/", path.Join(basePath, "openapi.json"))
	return fmt.Sprintf(`<!doctype html>
<html lang="en">
  <head>
    <meta charset="utf-8"/>
    <meta name="viewport" content="width=device-width, initial-scale=1"/>
    <title>LaunchPath API Docs</title>
    <link rel="stylesheet" href="https://unpkg.com/swagger-ui-dist@5/swagger-ui.css" />
  </head>
  <body>
    <div id="swagger-ui"></div>
    <script src="https://unpkg.com/swagger-ui-dist@5/swagger-ui-bundle.js" crossorigin></script>
    <script>
      window.onload = () => {
        SwaggerUIBundle({
          url: '%s',
          dom_id: '#swagger-ui'
        });
      };
    </script>
  </body>
</html>`, specURL)
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

func registerIdeas(api huma.API, r repo.Repo, mgr *pipeline.Manager) {
	huma.Register(api, huma.Operation{
		OperationID: "save-idea",
		Method:      http.MethodPost,
		Path:        "/ideas",
		Summary:     "Save idea draft",
		Description: "Upserts by title: an existing title returns the stored idea with created=false.",
		Errors: []int{
			http.StatusBadRequest,
			http.StatusInternalServerError,
		},
	}, func(ctx context.Context, input *struct {
		Body SaveIdeaRequest `json:"body"`
	}) (*struct {
		Body IdeaResponse `json:"body"`
	}, error) {
		if len(bodyBytes(ctx)) == 0 {
			return nil, newAPIError(http.StatusBadRequest, "bad_request", "body required", nil)
		}
		if strings.TrimSpace(input.Body.Title) == "" {
			return nil, newAPIError(http.StatusBadRequest, "bad_request", "title is required", nil)
		}
		orch := mgr.ForOwner(ownerFromContext(ctx))
		idea, created, err := orch.SaveDraft(ctx, input.Body.Title, input.Body.Description)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body IdeaResponse `json:"body"`
		}{Body: IdeaResponse{Idea: idea, Created: created}}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "list-ideas",
		Method:      http.MethodGet,
		Path:        "/ideas",
		Summary:     "List ideas",
	}, func(ctx context.Context, _ *struct{}) (*struct {
		Body []domain.Idea `json:"body"`
	}, error) {
		items, err := r.ListIdeas(ctx, ownerFromContext(ctx))
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body []domain.Idea `json:"body"`
		}{Body: items}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "get-idea",
		Method:      http.MethodGet,
		Path:        "/ideas/{idea_id}",
		Summary:     "Get idea",
		Errors:      []int{http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		IdeaID string `path:"idea_id"`
	}) (*struct {
		Body domain.Idea `json:"body"`
	}, error) {
		idea, err := r.GetIdea(ctx, ownerFromContext(ctx), input.IdeaID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body domain.Idea `json:"body"`
		}{Body: idea}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "validate-idea",
		Method:      http.MethodPost,
		Path:        "/ideas/{idea_id}/validate",
		Summary:     "Validate idea",
		Description: "Runs validation and task generation. Each call appends a fresh result to the history.",
		Errors: []int{
			http.StatusNotFound,
			http.StatusUnprocessableEntity,
			http.StatusInternalServerError,
		},
	}, func(ctx context.Context, input *struct {
		IdeaID string `path:"idea_id"`
	}) (*struct {
		Body ValidateResponse `json:"body"`
	}, error) {
		owner := ownerFromContext(ctx)
		idea, err := r.GetIdea(ctx, owner, input.IdeaID)
		if err != nil {
			return nil, handleError(err)
		}
		orch := mgr.ForOwner(owner)
		res, tasks, err := orch.ValidateIdea(ctx, idea)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body ValidateResponse `json:"body"`
		}{Body: ValidateResponse{Result: res, Tasks: tasks}}, nil
	})
}

func registerValidations(api huma.API, r repo.Repo) {
	huma.Register(api, huma.Operation{
		OperationID: "list-validations",
		Method:      http.MethodGet,
		Path:        "/validations",
		Summary:     "Validation history",
		Description: "All results for the owner, oldest first. Results are immutable.",
	}, func(ctx context.Context, _ *struct{}) (*struct {
		Body []domain.ValidationResult `json:"body"`
	}, error) {
		items, err := r.ListValidationResults(ctx, ownerFromContext(ctx))
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body []domain.ValidationResult `json:"body"`
		}{Body: items}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "latest-validation",
		Method:      http.MethodGet,
		Path:        "/validations/latest",
		Summary:     "Latest validation result",
		Errors:      []int{http.StatusNotFound},
	}, func(ctx context.Context, _ *struct{}) (*struct {
		Body domain.ValidationResult `json:"body"`
	}, error) {
		v, err := r.LatestValidationResult(ctx, ownerFromContext(ctx))
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body domain.ValidationResult `json:"body"`
		}{Body: v}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "get-validation",
		Method:      http.MethodGet,
		Path:        "/validations/{validation_id}",
		Summary:     "Get validation result",
		Errors:      []int{http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		ValidationID string `path:"validation_id"`
	}) (*struct {
		Body domain.ValidationResult `json:"body"`
	}, error) {
		v, err := r.GetValidationResult(ctx, ownerFromContext(ctx), input.ValidationID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body domain.ValidationResult `json:"body"`
		}{Body: v}, nil
	})
}

func registerTasks(api huma.API, r repo.Repo, trk tracker.Tracker, mgr *pipeline.Manager) {
	huma.Register(api, huma.Operation{
		OperationID: "list-tasks",
		Method:      http.MethodGet,
		Path:        "/tasks",
		Summary:     "List registration tasks",
	}, func(ctx context.Context, _ *struct{}) (*struct {
		Body []domain.RegistrationTask `json:"body"`
	}, error) {
		items, err := r.ListTasks(ctx, ownerFromContext(ctx))
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body []domain.RegistrationTask `json:"body"`
		}{Body: items}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "toggle-task",
		Method:      http.MethodPatch,
		Path:        "/tasks/{task_id}",
		Summary:     "Toggle task completion",
		Errors: []int{
			http.StatusBadRequest,
			http.StatusNotFound,
		},
	}, func(ctx context.Context, input *struct {
		TaskID string            `path:"task_id"`
		Body   ToggleTaskRequest `json:"body"`
	}) (*struct {
		Body domain.RegistrationTask `json:"body"`
	}, error) {
		if len(bodyBytes(ctx)) == 0 {
			return nil, newAPIError(http.StatusBadRequest, "bad_request", "body required", nil)
		}
		task, err := trk.Toggle(ctx, ownerFromContext(ctx), input.TaskID, input.Body.Completed)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body domain.RegistrationTask `json:"body"`
		}{Body: task}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "task-progress",
		Method:      http.MethodGet,
		Path:        "/tasks/progress",
		Summary:     "Task completion progress",
	}, func(ctx context.Context, _ *struct{}) (*struct {
		Body ProgressResponse `json:"body"`
	}, error) {
		items, err := r.ListTasks(ctx, ownerFromContext(ctx))
		if err != nil {
			return nil, handleError(err)
		}
		completed := 0
		for _, t := range items {
			if t.Completed {
				completed++
			}
		}
		return &struct {
			Body ProgressResponse `json:"body"`
		}{Body: ProgressResponse{
			Total:     len(items),
			Completed: completed,
			Progress:  tracker.Progress(items),
		}}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "retry-task-generation",
		Method:      http.MethodPost,
		Path:        "/tasks/retry",
		Summary:     "Retry task generation",
		Description: "Re-runs the task step after a validated-but-no-tasks failure.",
		Errors: []int{
			http.StatusConflict,
			http.StatusUnprocessableEntity,
		},
	}, func(ctx context.Context, _ *struct{}) (*struct {
		Body []domain.RegistrationTask `json:"body"`
	}, error) {
		orch := mgr.ForOwner(ownerFromContext(ctx))
		tasks, err := orch.RetryTaskGeneration(ctx)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body []domain.RegistrationTask `json:"body"`
		}{Body: tasks}, nil
	})
}

func registerSpotlight(api huma.API, mgr *pipeline.Manager) {
	huma.Register(api, huma.Operation{
		OperationID: "get-spotlight",
		Method:      http.MethodGet,
		Path:        "/spotlight",
		Summary:     "Spotlight state",
	}, func(ctx context.Context, _ *struct{}) (*struct {
		Body spotlight.State `json:"body"`
	}, error) {
		orch := mgr.ForOwner(ownerFromContext(ctx))
		state, err := orch.State(ctx)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body spotlight.State `json:"body"`
		}{Body: state}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "set-spotlight-mode",
		Method:      http.MethodPut,
		Path:        "/spotlight/mode",
		Summary:     "Set spotlight mode",
		Errors:      []int{http.StatusBadRequest},
	}, func(ctx context.Context, input *struct {
		Body SetSpotlightModeRequest `json:"body"`
	}) (*struct {
		Body spotlight.State `json:"body"`
	}, error) {
		if len(bodyBytes(ctx)) == 0 {
			return nil, newAPIError(http.StatusBadRequest, "bad_request", "body required", nil)
		}
		orch := mgr.ForOwner(ownerFromContext(ctx))
		if err := orch.SetMode(ctx, spotlight.Mode(input.Body.Mode)); err != nil {
			return nil, handleError(err)
		}
		state, err := orch.State(ctx)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body spotlight.State `json:"body"`
		}{Body: state}, nil
	})
}

func registerOnboarding(api huma.API, conn *sql.DB, r repo.Repo, mgr *pipeline.Manager) {
	huma.Register(api, huma.Operation{
		OperationID: "set-onboarding",
		Method:      http.MethodPut,
		Path:        "/onboarding",
		Summary:     "Set onboarding record",
		Errors:      []int{http.StatusBadRequest},
	}, func(ctx context.Context, input *struct {
		Body SetOnboardingRequest `json:"body"`
	}) (*struct {
		Body domain.OnboardingRecord `json:"body"`
	}, error) {
		if len(bodyBytes(ctx)) == 0 {
			return nil, newAPIError(http.StatusBadRequest, "bad_request", "body required", nil)
		}
		if strings.TrimSpace(input.Body.Path) == "" {
			return nil, newAPIError(http.StatusBadRequest, "bad_request", "path is required", nil)
		}
		rec := domain.OnboardingRecord{
			OwnerID:         ownerFromContext(ctx),
			Path:            input.Body.Path,
			IdeaTitle:       input.Body.IdeaTitle,
			IdeaDescription: input.Body.IdeaDescription,
			UpdatedAt:       time.Now().UTC().Format(time.RFC3339),
		}
		if err := r.UpsertOnboardingRecord(ctx, rec); err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body domain.OnboardingRecord `json:"body"`
		}{Body: rec}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "get-onboarding",
		Method:      http.MethodGet,
		Path:        "/onboarding",
		Summary:     "Get onboarding record",
		Errors:      []int{http.StatusNotFound},
	}, func(ctx context.Context, _ *struct{}) (*struct {
		Body domain.OnboardingRecord `json:"body"`
	}, error) {
		rec, err := r.GetOnboardingRecord(ctx, ownerFromContext(ctx))
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body domain.OnboardingRecord `json:"body"`
		}{Body: rec}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "load-onboarding",
		Method:      http.MethodPost,
		Path:        "/onboarding/load",
		Summary:     "Load onboarding idea",
		Description: "Reads the onboarding record and, when it names an idea, saves the draft and runs the pipeline. A record without an idea is a no-op.",
		Errors: []int{
			http.StatusUnprocessableEntity,
			http.StatusInternalServerError,
		},
	}, func(ctx context.Context, _ *struct{}) (*struct {
		Body spotlight.State `json:"body"`
	}, error) {
		orch := mgr.ForOwner(ownerFromContext(ctx))
		if err := orch.LoadOnboardingIdea(ctx); err != nil {
			return nil, handleError(err)
		}
		state, err := orch.State(ctx)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body spotlight.State `json:"body"`
		}{Body: state}, nil
	})
}

func registerEvents(api huma.API, r repo.Repo) {
	huma.Register(api, huma.Operation{
		OperationID: "list-events",
		Method:      http.MethodGet,
		Path:        "/events",
		Summary:     "List events",
		Description: "Newest first. Filter with type, page with before.",
	}, func(ctx context.Context, input *struct {
		Limit  int    `query:"limit" default:"50" minimum:"1" maximum:"500"`
		Type   string `query:"type"`
		Before int64  `query:"before"`
	}) (*struct {
		Body []EventResponse `json:"body"`
	}, error) {
		limit := input.Limit
		if limit <= 0 {
			limit = 50
		}
		items, err := r.LatestEventsFrom(ctx, limit, input.Before, ownerFromContext(ctx), input.Type)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body []EventResponse `json:"body"`
		}{Body: mapEvents(items)}, nil
	})
}
