package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"path"
	"strconv"
	"strings"
	"time"

	"github.com/danielgtaylor/huma/v2"
	humachi "github.com/danielgtaylor/huma/v2/adapters/humachi"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"reelline/internal/domain"
	"reelline/internal/engine"
	"reelline/internal/events"
	"reelline/internal/lifecycle"
	"reelline/internal/repo"
	"reelline/internal/views"
)

// Config for the HTTP API handler. Dispatcher is optional; without it every
// read recomputes from the store.
type Config struct {
	Engine     engine.Engine
	Dispatcher *engine.Dispatcher
	BasePath   string
	Auth       AuthConfig
}

type apiErrorBody struct {
	Code    string         `json:"code" example:"invalid_transition"`
	Message string         `json:"message" example:"invalid video status transition active -> completed"`
	Details map[string]any `json:"details,omitempty" jsonschema:"type=object,additionalProperties=true"`
}

// apiError models the error envelope.
type apiError struct {
	status int
	Body   apiErrorBody `json:"error"`
}

func (e *apiError) GetStatus() int { return e.status }
func (e *apiError) Error() string  { return e.Body.Message }

type service struct {
	engine     engine.Engine
	dispatcher *engine.Dispatcher
	auth       AuthConfig
}

// current returns the latest published result, computing one if none exists.
func (s service) current(ctx context.Context) engine.Result {
	if s.dispatcher != nil {
		if r, ok := s.dispatcher.Latest(); ok {
			return r
		}
	}
	_, r := s.engine.Snapshot(ctx)
	return r
}

func (s service) changed(collection string) {
	if s.dispatcher != nil {
		s.dispatcher.Notify(engine.ChangeEvent{Collection: collection, Source: "api"})
	}
}

// New returns an HTTP handler exposing the Reelline API.
func New(cfg Config) (http.Handler, error) {
	basePath := cfg.BasePath
	if basePath == "" {
		basePath = "/v0"
	}
	if !strings.HasPrefix(basePath, "/") {
		basePath = "/" + basePath
	}
	if cfg.Auth.Logger == nil {
		cfg.Auth.Logger = cfg.Engine.Logger
	}
	huma.DefaultArrayNullable = false
	huma.NewError = func(status int, msg string, errs ...error) huma.StatusError {
		return newAPIError(status, "", msg, nil)
	}
	huma.NewErrorWithContext = func(_ huma.Context, status int, msg string, errs ...error) huma.StatusError {
		if status == http.StatusUnprocessableEntity && strings.Contains(strings.ToLower(msg), "validation") {
			status = http.StatusBadRequest
		}
		var details map[string]any
		if len(errs) > 0 {
			details = map[string]any{"errors": errs}
		}
		return newAPIError(status, "", msg, details)
	}

	router := chi.NewRouter()
	router.Use(middleware.Recoverer)
	router.Use(requestLogger(cfg.Auth.logger()))
	router.Use(newAuthMiddleware(basePath, cfg.Auth))
	hcfg := huma.DefaultConfig("Reelline API", "0.1.0")
	hcfg.OpenAPIPath = "/openapi"
	hcfg.DocsPath = ""
	api := humachi.New(router, hcfg)
	group := huma.NewGroup(api, basePath)

	s := service{engine: cfg.Engine, dispatcher: cfg.Dispatcher, auth: cfg.Auth}
	registerDocs(router, basePath)
	registerHealth(group)
	registerDashboard(group, s)
	registerProjects(group, s)
	registerPerformance(group, s)
	registerWorkload(group, s)
	registerFinance(group, s)
	registerVideos(group, s)
	registerChanges(group, s)
	registerLateness(group, s)
	registerEvents(group, s)
	if cfg.Auth.DevLogin {
		registerDevAuth(group, cfg.Auth)
	}
	registerOpenAPI(router, api, basePath)

	return router, nil
}

func requestLogger(logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			next.ServeHTTP(ww, r)
			logger.Debug("http request", "method", r.Method, "path", r.URL.Path, "status", ww.Status(), "duration", time.Since(start))
		})
	}
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
	var se huma.StatusError
	if errors.As(err, &se) {
		return se
	}
	var te lifecycle.TransitionError
	if errors.As(err, &te) {
		return newAPIError(http.StatusConflict, "invalid_transition", err.Error(), map[string]any{"from": string(te.From), "to": string(te.To)})
	}
	if errors.Is(err, engine.ErrUnknownStatus) {
		return newAPIError(http.StatusBadRequest, "bad_request", err.Error(), nil)
	}
	if errors.Is(err, repo.ErrNotFound) {
		return newAPIError(http.StatusNotFound, "not_found", err.Error(), nil)
	}
	return newAPIError(http.StatusInternalServerError, "internal_error", "internal error", map[string]any{"error": err.Error()})
}

func defaultCodeForStatus(status int) string {
	switch status {
	case http.StatusBadRequest:
		return "bad_request"
	case http.StatusUnauthorized:
		return "unauthorized"
	case http.StatusNotFound:
		return "not_found"
	case http.StatusConflict:
		return "conflict"
	case http.StatusUnprocessableEntity:
		return "validation_failed"
	case http.StatusForbidden:
		return "forbidden"
	case http.StatusInternalServerError:
		return "internal_error"
	default:
		return strings.ToLower(strings.ReplaceAll(http.StatusText(status), " ", "_"))
	}
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
			applyAuthSecurity(oas, basePath)
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
		for _, op := range operations(item) {
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

func applyAuthSecurity(oas *huma.OpenAPI, basePath string) {
	if oas == nil {
		return
	}
	if oas.Components == nil {
		oas.Components = &huma.Components{}
	}
	if oas.Components.SecuritySchemes == nil {
		oas.Components.SecuritySchemes = map[string]*huma.SecurityScheme{}
	}
	oas.Components.SecuritySchemes["bearerAuth"] = &huma.SecurityScheme{
		Type:         "http",
		Scheme:       "bearer",
		BearerFormat: "JWT",
	}
	security := []map[string][]string{{"bearerAuth": {}}}
	oas.Security = security
	public := map[string]bool{
		path.Join("/", basePath, "health"):         true,
		path.Join("/", basePath, "auth/dev/login"): true,
	}
	for route, item := range oas.Paths {
		for _, op := range operations(item) {
			if public[route] {
				op.Security = []map[string][]string{}
				continue
			}
			op.Security = security
		}
	}
}

func operations(item *huma.PathItem) []*huma.Operation {
	var ops []*huma.Operation
	for _, op := range []*huma.Operation{
		item.Get, item.Put, item.Post, item.Delete, item.Options, item.Head, item.Patch, item.Trace,
	} {
		if op != nil {
			ops = append(ops, op)
		}
	}
	return ops
}

func swaggerHTML(basePath string) string {
	specURL := path.Join("/", path.Join(basePath, "openapi.json"))
	return fmt.Sprintf(`<!doctype html>
<html lang="en">
  <head>
    <meta charset="utf-8"/>
    <meta name="viewport" content="width=device-width, initial-scale=1"/>
    <title>Reelline API Docs</title>
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

func registerDashboard(api huma.API, s service) {
	huma.Register(api, huma.Operation{
		OperationID: "dashboard",
		Method:      http.MethodGet,
		Path:        "/dashboard",
		Summary:     "Agency-wide dashboard",
	}, func(ctx context.Context, _ *struct{}) (*struct {
		Body DashboardResponse `json:"body"`
	}, error) {
		p, authErr := requirePrincipal(ctx)
		if authErr != nil {
			return nil, authErr
		}
		res := s.current(ctx)
		return &struct {
			Body DashboardResponse `json:"body"`
		}{Body: dashboardResponse(res, p.Can(PermFinanceRead))}, nil
	})
}

func registerProjects(api huma.API, s service) {
	huma.Register(api, huma.Operation{
		OperationID: "list-projects",
		Method:      http.MethodGet,
		Path:        "/projects",
		Summary:     "Per-project progress",
	}, func(ctx context.Context, input *struct {
		ClientID string `query:"client_id"`
	}) (*struct {
		Body ProjectsResponse `json:"body"`
	}, error) {
		if _, authErr := requirePrincipal(ctx); authErr != nil {
			return nil, authErr
		}
		res := s.current(ctx)
		out := ProjectsResponse{resultMeta: metaFor(res), Items: []views.ProjectSummary{}}
		for _, p := range res.Projects {
			if input.ClientID != "" && p.ClientID != input.ClientID {
				continue
			}
			out.Items = append(out.Items, p)
		}
		return &struct {
			Body ProjectsResponse `json:"body"`
		}{Body: out}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "get-project",
		Method:      http.MethodGet,
		Path:        "/projects/{project_id}",
		Summary:     "One project's progress",
		Errors:      []int{http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		ProjectID string `path:"project_id"`
	}) (*struct {
		Body views.ProjectSummary `json:"body"`
	}, error) {
		if _, authErr := requirePrincipal(ctx); authErr != nil {
			return nil, authErr
		}
		for _, p := range s.current(ctx).Projects {
			if p.ProjectID == input.ProjectID {
				return &struct {
					Body views.ProjectSummary `json:"body"`
				}{Body: p}, nil
			}
		}
		return nil, newAPIError(http.StatusNotFound, "not_found", "project not found", map[string]any{"project_id": input.ProjectID})
	})
}

func registerPerformance(api huma.API, s service) {
	huma.Register(api, huma.Operation{
		OperationID: "list-performance",
		Method:      http.MethodGet,
		Path:        "/performance",
		Summary:     "Editor performance",
	}, func(ctx context.Context, input *struct {
		Status string `query:"status" enum:"active,warning,at_risk"`
	}) (*struct {
		Body PerformanceResponse `json:"body"`
	}, error) {
		p, authErr := requirePrincipal(ctx)
		if authErr != nil {
			return nil, authErr
		}
		out := performanceResponse(s.current(ctx))
		items := out.Items[:0]
		for _, item := range out.Items {
			if input.Status != "" && item.Status != input.Status {
				continue
			}
			// Editors see only themselves.
			if !p.HasRole(RoleAdmin) && p.HasRole(RoleEditor) && item.EditorID != p.ActorID {
				continue
			}
			items = append(items, item)
		}
		out.Items = items
		return &struct {
			Body PerformanceResponse `json:"body"`
		}{Body: out}, nil
	})
}

func registerWorkload(api huma.API, s service) {
	huma.Register(api, huma.Operation{
		OperationID: "list-workload",
		Method:      http.MethodGet,
		Path:        "/workload",
		Summary:     "Editor workload against capacity",
	}, func(ctx context.Context, input *struct {
		Overloaded bool `query:"overloaded"`
	}) (*struct {
		Body WorkloadResponse `json:"body"`
	}, error) {
		if _, authErr := requirePrincipal(ctx); authErr != nil {
			return nil, authErr
		}
		res := s.current(ctx)
		out := WorkloadResponse{resultMeta: metaFor(res), Items: []views.WorkloadRow{}}
		for _, row := range res.Workload {
			if input.Overloaded && !row.Overloaded {
				continue
			}
			out.Items = append(out.Items, row)
		}
		return &struct {
			Body WorkloadResponse `json:"body"`
		}{Body: out}, nil
	})
}

func (s service) financeResult(ctx context.Context, periodKey string) (engine.Result, huma.StatusError) {
	if strings.TrimSpace(periodKey) == "" {
		return s.current(ctx), nil
	}
	period, err := domain.ParsePeriod(periodKey, time.UTC)
	if err != nil {
		return engine.Result{}, newAPIError(http.StatusBadRequest, "bad_request", err.Error(), map[string]any{"period": periodKey})
	}
	_, res := s.engine.SnapshotFor(ctx, period)
	return res, nil
}

func registerFinance(api huma.API, s service) {
	huma.Register(api, huma.Operation{
		OperationID: "finance-report",
		Method:      http.MethodGet,
		Path:        "/finance",
		Summary:     "Monthly client cost and profitability report",
		Errors:      []int{http.StatusBadRequest, http.StatusForbidden},
	}, func(ctx context.Context, input *struct {
		Period string `query:"period" example:"2026-10"`
		Status string `query:"status" enum:"on_track,late,critical"`
	}) (*struct {
		Body FinanceResponse `json:"body"`
	}, error) {
		if _, authErr := requirePermission(ctx, PermFinanceRead); authErr != nil {
			return nil, authErr
		}
		res, err := s.financeResult(ctx, input.Period)
		if err != nil {
			return nil, err
		}
		out := financeResponse(res)
		if input.Status != "" {
			clients := out.Clients[:0]
			for _, c := range out.Clients {
				if c.Status == input.Status {
					clients = append(clients, c)
				}
			}
			out.Clients = clients
		}
		return &struct {
			Body FinanceResponse `json:"body"`
		}{Body: out}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "finance-client",
		Method:      http.MethodGet,
		Path:        "/finance/clients/{client_id}",
		Summary:     "One client's cost breakdown",
		Errors:      []int{http.StatusBadRequest, http.StatusForbidden, http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		ClientID string `path:"client_id"`
		Period   string `query:"period" example:"2026-10"`
	}) (*struct {
		Body ClientCostResponse `json:"body"`
	}, error) {
		if _, authErr := requirePermission(ctx, PermFinanceRead); authErr != nil {
			return nil, authErr
		}
		res, err := s.financeResult(ctx, input.Period)
		if err != nil {
			return nil, err
		}
		c, ok := res.Finance.Client(input.ClientID)
		if !ok {
			return nil, newAPIError(http.StatusNotFound, "not_found", "client not found", map[string]any{"client_id": input.ClientID})
		}
		return &struct {
			Body ClientCostResponse `json:"body"`
		}{Body: clientCostResponse(c)}, nil
	})
}

func registerVideos(api huma.API, s service) {
	huma.Register(api, huma.Operation{
		OperationID: "get-video",
		Method:      http.MethodGet,
		Path:        "/videos/{video_id}",
		Summary:     "Stored video with its derived status",
		Errors:      []int{http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		VideoID string `path:"video_id"`
	}) (*struct {
		Body engine.VideoState `json:"body"`
	}, error) {
		if _, authErr := requirePrincipal(ctx); authErr != nil {
			return nil, authErr
		}
		state, err := s.engine.VideoState(ctx, input.VideoID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body engine.VideoState `json:"body"`
		}{Body: state}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "transition-video",
		Method:      http.MethodPost,
		Path:        "/videos/{video_id}/transition",
		Summary:     "Change a video's status",
		Errors:      []int{http.StatusBadRequest, http.StatusForbidden, http.StatusNotFound, http.StatusConflict},
	}, func(ctx context.Context, input *struct {
		VideoID string `path:"video_id"`
		Body    TransitionRequest
	}) (*struct {
		Body engine.VideoState `json:"body"`
	}, error) {
		p, authErr := requirePrincipal(ctx)
		if authErr != nil {
			return nil, authErr
		}
		if !p.Can(PermVideosWrite) {
			if !p.HasRole(RoleEditor) || input.Body.Force {
				return nil, newAPIError(http.StatusForbidden, "forbidden", "permission required", map[string]any{"permission": PermVideosWrite})
			}
			v, err := s.engine.Repo.GetVideo(ctx, input.VideoID)
			if err != nil {
				return nil, handleError(err)
			}
			if v.Assignee() != p.ActorID {
				return nil, newAPIError(http.StatusForbidden, "forbidden", "video is assigned to someone else", nil)
			}
		}
		_, err := s.engine.TransitionVideo(ctx, engine.TransitionOptions{
			VideoID:  input.VideoID,
			Status:   input.Body.Status,
			ActorID:  p.ActorID,
			Force:    input.Body.Force,
			Validate: input.Body.Validate,
		})
		if err != nil {
			return nil, handleError(err)
		}
		s.changed(events.Videos)
		state, err := s.engine.VideoState(ctx, input.VideoID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body engine.VideoState `json:"body"`
		}{Body: state}, nil
	})
}

func registerChanges(api huma.API, s service) {
	huma.Register(api, huma.Operation{
		OperationID:   "post-change",
		Method:        http.MethodPost,
		Path:          "/changes",
		Summary:       "Signal that a collection changed",
		DefaultStatus: http.StatusAccepted,
		Errors:        []int{http.StatusForbidden},
	}, func(ctx context.Context, input *struct {
		Body ChangeRequest
	}) (*struct {
		Body ChangeResponse `json:"body"`
	}, error) {
		if _, authErr := requirePermission(ctx, PermEngineManage); authErr != nil {
			return nil, authErr
		}
		accepted := false
		if s.dispatcher != nil {
			accepted = s.dispatcher.Notify(engine.ChangeEvent{Collection: input.Body.Collection, Source: "api"})
		}
		return &struct {
			Body ChangeResponse `json:"body"`
		}{Body: ChangeResponse{Accepted: accepted}}, nil
	})
}

func registerLateness(api huma.API, s service) {
	huma.Register(api, huma.Operation{
		OperationID: "lateness-sweep",
		Method:      http.MethodPost,
		Path:        "/lateness/sweep",
		Summary:     "Persist detected late transitions and send notices",
		Errors:      []int{http.StatusForbidden},
	}, func(ctx context.Context, _ *struct{}) (*struct {
		Body engine.LateReport `json:"body"`
	}, error) {
		if _, authErr := requirePermission(ctx, PermEngineManage); authErr != nil {
			return nil, authErr
		}
		var report engine.LateReport
		var err error
		if s.dispatcher != nil {
			report, _, err = s.dispatcher.Sweep(ctx)
		} else {
			snap, res := s.engine.Snapshot(ctx)
			report, err = s.engine.ApplyLateTransitions(ctx, snap, res)
		}
		if err != nil {
			s.auth.logger().Warn("lateness sweep", "error", err)
		}
		if report.Keys == nil {
			report.Keys = []string{}
		}
		return &struct {
			Body engine.LateReport `json:"body"`
		}{Body: report}, nil
	})
}

func registerEvents(api huma.API, s service) {
	huma.Register(api, huma.Operation{
		OperationID: "list-events",
		Method:      http.MethodGet,
		Path:        "/events",
		Summary:     "List recent events",
		Errors:      []int{http.StatusBadRequest},
	}, func(ctx context.Context, input *struct {
		Type       string `query:"type"`
		EntityKind string `query:"entity_kind"`
		EntityID   string `query:"entity_id"`
		Limit      int    `query:"limit" default:"50"`
		Cursor     string `query:"cursor"`
	}) (*struct {
		Body paginatedEvents `json:"body"`
	}, error) {
		if _, authErr := requirePrincipal(ctx); authErr != nil {
			return nil, authErr
		}
		limit := normalizeLimit(input.Limit)
		var before int64
		if input.Cursor != "" {
			parsed, err := strconv.ParseInt(input.Cursor, 10, 64)
			if err != nil {
				return nil, newAPIError(http.StatusBadRequest, "bad_request", "invalid cursor", map[string]any{"cursor": input.Cursor})
			}
			before = parsed
		}
		items, err := s.engine.Repo.LatestEvents(ctx, repo.EventFilters{
			Type:       input.Type,
			EntityKind: input.EntityKind,
			EntityID:   input.EntityID,
			Before:     before,
			Limit:      limit + 1,
		})
		if err != nil {
			return nil, handleError(err)
		}
		resp := paginatedEvents{Items: []EventResponse{}}
		if len(items) > limit {
			items = items[:limit]
			resp.NextCursor = strconv.FormatInt(items[limit-1].ID, 10)
		}
		for _, evt := range items {
			resp.Items = append(resp.Items, eventResponse(evt))
		}
		return &struct {
			Body paginatedEvents `json:"body"`
		}{Body: resp}, nil
	})
}

func registerDevAuth(api huma.API, authCfg AuthConfig) {
	huma.Register(api, huma.Operation{
		OperationID: "dev-login",
		Method:      http.MethodPost,
		Path:        "/auth/dev/login",
		Summary:     "DEV ONLY: mint a JWT for local testing",
		Errors:      []int{http.StatusBadRequest, http.StatusInternalServerError},
	}, func(ctx context.Context, input *struct {
		Body DevLoginRequest
	}) (*struct {
		Body DevLoginResponse `json:"body"`
	}, error) {
		actor := strings.TrimSpace(input.Body.ActorID)
		if actor == "" {
			return nil, newAPIError(http.StatusBadRequest, "bad_request", "actor_id is required", nil)
		}
		token, err := SignToken(authCfg.JWTSecret, actor, input.Body.Roles, input.Body.Permissions, 12*time.Hour)
		if err != nil {
			return nil, newAPIError(http.StatusInternalServerError, "internal_error", err.Error(), nil)
		}
		return &struct {
			Body DevLoginResponse `json:"body"`
		}{Body: DevLoginResponse{Token: token}}, nil
	})
}

func normalizeLimit(in int) int {
	if in <= 0 {
		return 50
	}
	if in > 500 {
		return 500
	}
	return in
}
