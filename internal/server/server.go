package server

import (
	"context"
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
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"clubrun/internal/config"
	"clubrun/internal/content"
	"clubrun/internal/domain"
	"clubrun/internal/ledger"
	"clubrun/internal/repo"
)

// Config for the HTTP API handler.
type Config struct {
	Ledger   ledger.Ledger
	BasePath string
	Auth     AuthConfig
	Webhooks []config.WebhookConfig
}

type apiErrorBody struct {
	Code    string         `json:"code" example:"invalid_state"`
	Message string         `json:"message" example:"cannot approve a DISPUTED mission"`
	Details map[string]any `json:"details,omitempty" jsonschema:"type=object,additionalProperties=true" example:"{\"status\":\"DISPUTED\"}"`
}

// apiError models the error envelope.
type apiError struct {
	status int
	Body   apiErrorBody `json:"error"`
}

func (e *apiError) GetStatus() int { return e.status }
func (e *apiError) Error() string  { return e.Body.Message }

// New returns an HTTP handler exposing the Club Run API.
func New(cfg Config) (http.Handler, error) {
	basePath := cfg.BasePath
	if basePath == "" {
		basePath = "/v0"
	}
	if !strings.HasPrefix(basePath, "/") {
		basePath = "/" + basePath
	}
	huma.DefaultArrayNullable = false
	// Override Huma errors to use the envelope.
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
	router.Use(newAuthMiddleware(basePath, cfg.Auth, cfg.Ledger.Repo))
	hcfg := huma.DefaultConfig("Club Run API", "0.1.0")
	hcfg.OpenAPIPath = "/openapi"
	hcfg.DocsPath = "" // custom Swagger UI below
	api := humachi.New(router, hcfg)
	group := huma.NewGroup(api, basePath)

	registerDocs(router, basePath)
	registerHealth(group)
	registerMissions(group, cfg.Ledger)
	registerTeams(group, cfg.Ledger)
	registerProfiles(group, cfg.Ledger)
	registerEvents(group, cfg.Ledger)
	registerAPIKeys(group, cfg.Ledger)
	registerDevAuth(group, cfg.Auth)
	registerOpenAPI(router, api, basePath)

	startWebhookDispatcher(cfg.Ledger, cfg.Webhooks)

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
	var statusErr huma.StatusError
	if errors.As(err, &statusErr) {
		return statusErr
	}
	switch {
	case errors.Is(err, ledger.ErrNotFound), errors.Is(err, repo.ErrNotFound):
		return newAPIError(http.StatusNotFound, "not_found", err.Error(), nil)
	case errors.Is(err, ledger.ErrForbidden):
		return newAPIError(http.StatusForbidden, "forbidden", err.Error(), nil)
	case errors.Is(err, ledger.ErrExpired):
		return newAPIError(http.StatusConflict, "expired", err.Error(), nil)
	case errors.Is(err, ledger.ErrAlreadyAssigned):
		return newAPIError(http.StatusConflict, "already_assigned", err.Error(), nil)
	case errors.Is(err, ledger.ErrMissingProof):
		return newAPIError(http.StatusUnprocessableEntity, "missing_proof", err.Error(), nil)
	}
	var stateErr *ledger.InvalidStateError
	if errors.As(err, &stateErr) {
		return newAPIError(http.StatusConflict, "invalid_state", err.Error(), map[string]any{"status": stateErr.Status})
	}
	var valErr *ledger.ValidationError
	if errors.As(err, &valErr) {
		return newAPIError(http.StatusBadRequest, "validation_error", err.Error(), map[string]any{"field": valErr.Field})
	}
	var storeErr *ledger.ContentStoreFailure
	if errors.As(err, &storeErr) {
		return newAPIError(http.StatusBadGateway, "content_store_failure", err.Error(), map[string]any{"op": storeErr.Op})
	}
	var payErr *ledger.PaymentFailure
	if errors.As(err, &payErr) {
		return newAPIError(http.StatusBadGateway, "payment_failure", err.Error(), map[string]any{"method": payErr.Method})
	}
	return newAPIError(http.StatusInternalServerError, "internal_error", "internal error", map[string]any{"error": err.Error()})
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
		return "validation_error"
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
			spec, _ = json.Marshal(api.OpenAPI())
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write(spec)
	})
}

func swaggerHTML(basePath string) string {
	specURL := path.Join("/", path.Join(basePath, "openapi.json"))
	return fmt.Sprintf(`<!doctype html>
<html lang="en">
  <head>
    <meta charset="utf-8"/>
    <meta name="viewport" content="width=device-width, initial-scale=1"/>
    <title>Club Run API Docs</title>
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
    <p style="padding: 1rem; font-family: sans-serif; color: #444;">
      Authenticate with Authorization: Bearer &lt;token&gt; or X-Api-Key.
    </p>
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

func registerMissions(api huma.API, l ledger.Ledger) {
	huma.Register(api, huma.Operation{
		OperationID:   "create-mission",
		Method:        http.MethodPost,
		Path:          "/missions",
		Summary:       "Create mission",
		DefaultStatus: http.StatusCreated,
		Errors: []int{
			http.StatusBadRequest,
			http.StatusForbidden,
			http.StatusBadGateway,
			http.StatusInternalServerError,
		},
	}, func(ctx context.Context, input *struct {
		Body CreateMissionRequest `json:"body"`
	}) (*struct {
		Body MissionResponse `json:"body"`
	}, error) {
		actorID, authErr := actorIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		if err := requireRole(ctx, l.Repo, repo.RoleClient, repo.RoleCurator); err != nil {
			return nil, handleError(err)
		}
		budget, err := decimal.NewFromString(input.Body.Budget)
		if err != nil {
			return nil, newAPIError(http.StatusBadRequest, "validation_error", "budget is not a decimal number", map[string]any{"field": "budget"})
		}
		deadline, err := time.Parse(time.RFC3339, input.Body.Deadline)
		if err != nil {
			return nil, newAPIError(http.StatusBadRequest, "validation_error", "deadline must be RFC 3339", map[string]any{"field": "deadline"})
		}
		opts := ledger.CreateOptions{
			CuratorID: actorID,
			Content: content.MissionContent{
				Title:        input.Body.Content.Title,
				Description:  input.Body.Content.Description,
				VenueAddress: input.Body.Content.VenueAddress,
				EventType:    input.Body.Content.EventType,
				Requirements: input.Body.Content.Requirements,
			},
			Budget:        budget,
			Deadline:      deadline,
			PaymentMethod: input.Body.PaymentMethod,
			OpenMarket:    input.Body.OpenMarket,
		}
		if input.Body.TeamID != nil {
			opts.TeamID = *input.Body.TeamID
		}
		m, err := l.CreateMission(ctx, opts)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body MissionResponse `json:"body"`
		}{Body: missionResponse(m, false)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "list-missions",
		Method:      http.MethodGet,
		Path:        "/missions",
		Summary:     "List missions visible to the caller",
		Errors:      []int{http.StatusBadRequest},
	}, func(ctx context.Context, input *struct {
		Status        string `query:"status" enum:",OPEN,ASSIGNED,IN_PROGRESS,COMPLETED,CANCELLED,DISPUTED"`
		PaymentMethod string `query:"payment_method"`
		MinBudget     string `query:"min_budget"`
		MaxBudget     string `query:"max_budget"`
		TeamOnly      bool   `query:"team_only"`
		Limit         int    `query:"limit" default:"50"`
	}) (*struct {
		Body []MissionResponse `json:"body"`
	}, error) {
		actorID, authErr := actorIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		filters := repo.MissionFilters{
			ViewerID:      actorID,
			Status:        input.Status,
			PaymentMethod: input.PaymentMethod,
			TeamOnly:      input.TeamOnly,
			Limit:         input.Limit,
		}
		if input.MinBudget != "" {
			min, err := decimal.NewFromString(input.MinBudget)
			if err != nil {
				return nil, newAPIError(http.StatusBadRequest, "validation_error", "min_budget is not a decimal number", map[string]any{"field": "min_budget"})
			}
			filters.MinBudget = &min
		}
		if input.MaxBudget != "" {
			max, err := decimal.NewFromString(input.MaxBudget)
			if err != nil {
				return nil, newAPIError(http.StatusBadRequest, "validation_error", "max_budget is not a decimal number", map[string]any{"field": "max_budget"})
			}
			filters.MaxBudget = &max
		}
		items, err := l.ListMissions(ctx, filters)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body []MissionResponse `json:"body"`
		}{Body: mapMissions(items, l.Expired)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "get-mission",
		Method:      http.MethodGet,
		Path:        "/missions/{id}",
		Summary:     "Get mission with content and proof",
		Errors:      []int{http.StatusNotFound, http.StatusBadGateway},
	}, func(ctx context.Context, input *struct {
		ID string `path:"id"`
	}) (*struct {
		Body MissionDetailResponse `json:"body"`
	}, error) {
		actorID, authErr := actorIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		detail, err := l.GetMission(ctx, input.ID, actorID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body MissionDetailResponse `json:"body"`
		}{Body: missionDetailResponse(detail, l.Expired(detail.Mission))}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "accept-mission",
		Method:      http.MethodPost,
		Path:        "/missions/{id}/accept",
		Summary:     "Accept an open mission",
		Errors: []int{
			http.StatusForbidden,
			http.StatusNotFound,
			http.StatusConflict,
			http.StatusInternalServerError,
		},
	}, func(ctx context.Context, input *struct {
		ID string `path:"id"`
	}) (*struct {
		Body MissionResponse `json:"body"`
	}, error) {
		actorID, authErr := actorIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		if err := requireRole(ctx, l.Repo, repo.RoleRunner); err != nil {
			return nil, handleError(err)
		}
		m, err := l.Accept(ctx, input.ID, actorID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body MissionResponse `json:"body"`
		}{Body: missionResponse(m, false)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "submit-proof",
		Method:      http.MethodPost,
		Path:        "/missions/{id}/proof",
		Summary:     "Submit proof of play",
		Errors: []int{
			http.StatusBadRequest,
			http.StatusForbidden,
			http.StatusNotFound,
			http.StatusConflict,
			http.StatusBadGateway,
			http.StatusInternalServerError,
		},
	}, func(ctx context.Context, input *struct {
		ID   string             `path:"id"`
		Body SubmitProofRequest `json:"body"`
	}) (*struct {
		Body MissionResponse `json:"body"`
	}, error) {
		actorID, authErr := actorIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		m, err := l.SubmitProof(ctx, input.ID, actorID, proofContent(input.Body))
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body MissionResponse `json:"body"`
		}{Body: missionResponse(m, false)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "approve-mission",
		Method:      http.MethodPost,
		Path:        "/missions/{id}/approve",
		Summary:     "Approve proof and settle payment",
		Errors: []int{
			http.StatusForbidden,
			http.StatusNotFound,
			http.StatusConflict,
			http.StatusUnprocessableEntity,
			http.StatusBadGateway,
			http.StatusInternalServerError,
		},
	}, func(ctx context.Context, input *struct {
		ID string `path:"id"`
	}) (*struct {
		Body MissionResponse `json:"body"`
	}, error) {
		actorID, authErr := actorIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		m, _, err := l.Approve(ctx, input.ID, actorID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body MissionResponse `json:"body"`
		}{Body: missionResponse(m, false)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "cancel-mission",
		Method:      http.MethodPost,
		Path:        "/missions/{id}/cancel",
		Summary:     "Cancel an open mission",
		Errors: []int{
			http.StatusForbidden,
			http.StatusNotFound,
			http.StatusConflict,
			http.StatusInternalServerError,
		},
	}, func(ctx context.Context, input *struct {
		ID string `path:"id"`
	}) (*struct {
		Body MissionResponse `json:"body"`
	}, error) {
		actorID, authErr := actorIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		m, err := l.Cancel(ctx, input.ID, actorID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body MissionResponse `json:"body"`
		}{Body: missionResponse(m, false)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "dispute-mission",
		Method:      http.MethodPost,
		Path:        "/missions/{id}/dispute",
		Summary:     "Raise a dispute",
		Errors: []int{
			http.StatusBadRequest,
			http.StatusForbidden,
			http.StatusNotFound,
			http.StatusConflict,
			http.StatusInternalServerError,
		},
	}, func(ctx context.Context, input *struct {
		ID   string         `path:"id"`
		Body DisputeRequest `json:"body"`
	}) (*struct {
		Body MissionResponse `json:"body"`
	}, error) {
		actorID, authErr := actorIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		m, err := l.Dispute(ctx, input.ID, actorID, input.Body.Reason, input.Body.Evidence)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body MissionResponse `json:"body"`
		}{Body: missionResponse(m, false)}, nil
	})
}

func registerTeams(api huma.API, l ledger.Ledger) {
	huma.Register(api, huma.Operation{
		OperationID:   "create-team",
		Method:        http.MethodPost,
		Path:          "/teams",
		Summary:       "Create team",
		DefaultStatus: http.StatusCreated,
		Errors:        []int{http.StatusBadRequest, http.StatusForbidden},
	}, func(ctx context.Context, input *struct {
		Body CreateTeamRequest `json:"body"`
	}) (*struct {
		Body TeamResponse `json:"body"`
	}, error) {
		if _, authErr := actorIDFromContext(ctx); authErr != nil {
			return nil, authErr
		}
		if err := requireRole(ctx, l.Repo, repo.RoleCurator); err != nil {
			return nil, handleError(err)
		}
		t, err := l.CreateTeam(ctx, input.Body.Name, input.Body.Members)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body TeamResponse `json:"body"`
		}{Body: teamResponse(t)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "get-team",
		Method:      http.MethodGet,
		Path:        "/teams/{id}",
		Summary:     "Get team",
		Errors:      []int{http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		ID string `path:"id"`
	}) (*struct {
		Body TeamResponse `json:"body"`
	}, error) {
		if _, authErr := actorIDFromContext(ctx); authErr != nil {
			return nil, authErr
		}
		t, err := l.GetTeam(ctx, input.ID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body TeamResponse `json:"body"`
		}{Body: teamResponse(t)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "add-team-member",
		Method:      http.MethodPost,
		Path:        "/teams/{id}/members",
		Summary:     "Add team member",
		Errors:      []int{http.StatusBadRequest, http.StatusForbidden, http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		ID   string            `path:"id"`
		Body TeamMemberRequest `json:"body"`
	}) (*struct {
		Body TeamResponse `json:"body"`
	}, error) {
		if _, authErr := actorIDFromContext(ctx); authErr != nil {
			return nil, authErr
		}
		if err := requireRole(ctx, l.Repo, repo.RoleCurator); err != nil {
			return nil, handleError(err)
		}
		if input.Body.ActorID == "" {
			return nil, newAPIError(http.StatusBadRequest, "validation_error", "actor_id is required", map[string]any{"field": "actor_id"})
		}
		if err := l.AddTeamMember(ctx, input.ID, input.Body.ActorID); err != nil {
			return nil, handleError(err)
		}
		t, err := l.GetTeam(ctx, input.ID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body TeamResponse `json:"body"`
		}{Body: teamResponse(t)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "remove-team-member",
		Method:      http.MethodDelete,
		Path:        "/teams/{id}/members/{actor_id}",
		Summary:     "Remove team member",
		Errors:      []int{http.StatusForbidden, http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		ID      string `path:"id"`
		ActorID string `path:"actor_id"`
	}) (*struct{}, error) {
		if _, authErr := actorIDFromContext(ctx); authErr != nil {
			return nil, authErr
		}
		if err := requireRole(ctx, l.Repo, repo.RoleCurator); err != nil {
			return nil, handleError(err)
		}
		if err := l.RemoveTeamMember(ctx, input.ID, input.ActorID); err != nil {
			return nil, handleError(err)
		}
		return &struct{}{}, nil
	})
}

func registerProfiles(api huma.API, l ledger.Ledger) {
	huma.Register(api, huma.Operation{
		OperationID: "put-runner-profile",
		Method:      http.MethodPut,
		Path:        "/runners/me/profile",
		Summary:     "Set own payout profile",
		Errors:      []int{http.StatusBadRequest},
	}, func(ctx context.Context, input *struct {
		Body RunnerProfileRequest `json:"body"`
	}) (*struct {
		Body RunnerProfileResponse `json:"body"`
	}, error) {
		actorID, authErr := actorIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		p, err := l.UpsertRunnerProfile(ctx, domain.RunnerProfile{
			ActorID:       actorID,
			WalletAddress: input.Body.WalletAddress,
			CashAppHandle: input.Body.CashAppHandle,
			ZelleHandle:   input.Body.ZelleHandle,
			VenmoHandle:   input.Body.VenmoHandle,
			PaypalEmail:   input.Body.PaypalEmail,
		})
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body RunnerProfileResponse `json:"body"`
		}{Body: profileResponse(p)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "get-runner-profile",
		Method:      http.MethodGet,
		Path:        "/runners/me/profile",
		Summary:     "Get own payout profile",
		Errors:      []int{http.StatusNotFound},
	}, func(ctx context.Context, _ *struct{}) (*struct {
		Body RunnerProfileResponse `json:"body"`
	}, error) {
		actorID, authErr := actorIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		p, err := l.GetRunnerProfile(ctx, actorID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body RunnerProfileResponse `json:"body"`
		}{Body: profileResponse(p)}, nil
	})
}

func registerEvents(api huma.API, l ledger.Ledger) {
	huma.Register(api, huma.Operation{
		OperationID: "list-events",
		Method:      http.MethodGet,
		Path:        "/events",
		Summary:     "Latest lifecycle events",
		Errors:      []int{http.StatusBadRequest},
	}, func(ctx context.Context, input *struct {
		Limit     int    `query:"limit" default:"50"`
		Type      string `query:"type"`
		MissionID string `query:"mission_id"`
	}) (*struct {
		Body []EventResponse `json:"body"`
	}, error) {
		if _, authErr := actorIDFromContext(ctx); authErr != nil {
			return nil, authErr
		}
		items, err := l.Repo.LatestEvents(ctx, input.Limit, input.Type, input.MissionID)
		if err != nil {
			return nil, handleError(err)
		}
		out := make([]EventResponse, 0, len(items))
		for _, e := range items {
			out = append(out, eventResponse(e))
		}
		return &struct {
			Body []EventResponse `json:"body"`
		}{Body: out}, nil
	})
}

func registerAPIKeys(api huma.API, l ledger.Ledger) {
	huma.Register(api, huma.Operation{
		OperationID:   "create-api-key",
		Method:        http.MethodPost,
		Path:          "/apikeys",
		Summary:       "Issue API key",
		DefaultStatus: http.StatusCreated,
		Errors:        []int{http.StatusBadRequest, http.StatusForbidden},
	}, func(ctx context.Context, input *struct {
		Body CreateAPIKeyRequest `json:"body"`
	}) (*struct {
		Body APIKeyResponse `json:"body"`
	}, error) {
		if _, authErr := actorIDFromContext(ctx); authErr != nil {
			return nil, authErr
		}
		if err := requireRole(ctx, l.Repo, repo.RoleAdmin); err != nil {
			return nil, handleError(err)
		}
		if input.Body.ActorID == "" {
			return nil, newAPIError(http.StatusBadRequest, "validation_error", "actor_id is required", map[string]any{"field": "actor_id"})
		}
		rawKey := "crk_" + strings.ReplaceAll(uuid.New().String(), "-", "")
		key := domain.APIKey{
			ID:        uuid.New().String(),
			ActorID:   input.Body.ActorID,
			Name:      input.Body.Name,
			KeyHash:   repo.HashAPIKey(rawKey),
			CreatedAt: time.Now().UTC().Format(time.RFC3339),
		}
		tx, err := l.DB.BeginTx(ctx, nil)
		if err != nil {
			return nil, handleError(err)
		}
		defer tx.Rollback()
		if err := l.Repo.InsertAPIKey(ctx, tx, key); err != nil {
			return nil, handleError(err)
		}
		if err := tx.Commit(); err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body APIKeyResponse `json:"body"`
		}{Body: APIKeyResponse{
			ID:        key.ID,
			ActorID:   key.ActorID,
			Name:      key.Name,
			Key:       rawKey, // shown once
			CreatedAt: key.CreatedAt,
		}}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "delete-api-key",
		Method:      http.MethodDelete,
		Path:        "/apikeys/{id}",
		Summary:     "Revoke API key",
		Errors:      []int{http.StatusForbidden, http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		ID string `path:"id"`
	}) (*struct{}, error) {
		if _, authErr := actorIDFromContext(ctx); authErr != nil {
			return nil, authErr
		}
		if err := requireRole(ctx, l.Repo, repo.RoleAdmin); err != nil {
			return nil, handleError(err)
		}
		if err := l.Repo.DeleteAPIKey(ctx, input.ID); err != nil {
			return nil, handleError(err)
		}
		return &struct{}{}, nil
	})
}

func registerDevAuth(api huma.API, auth AuthConfig) {
	if auth.JWTSecret == "" {
		return
	}
	huma.Register(api, huma.Operation{
		OperationID: "dev-login",
		Method:      http.MethodPost,
		Path:        "/auth/dev/login",
		Summary:     "Issue a dev token",
		Errors:      []int{http.StatusBadRequest},
	}, func(ctx context.Context, input *struct {
		Body struct {
			ActorID string   `json:"actor_id"`
			Roles   []string `json:"roles,omitempty"`
		} `json:"body"`
	}) (*struct {
		Body map[string]string `json:"body"`
	}, error) {
		if input.Body.ActorID == "" {
			return nil, newAPIError(http.StatusBadRequest, "validation_error", "actor_id is required", map[string]any{"field": "actor_id"})
		}
		token, err := IssueToken(auth.JWTSecret, input.Body.ActorID, input.Body.Roles, auth.TokenTTL)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body map[string]string `json:"body"`
		}{Body: map[string]string{"token": token}}, nil
	})
}
