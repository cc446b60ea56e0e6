package docs

import (
	"github.com/go-swagno/swagno"
	"github.com/go-swagno/swagno/components/endpoint"
	"github.com/go-swagno/swagno/components/http/response"
	"github.com/go-swagno/swagno/components/mime"
	"github.com/go-swagno/swagno/components/parameter"
)

// SubmitEventRequest is the body of POST /v1/events
type SubmitEventRequest struct {
	EventType    string         `json:"event_type" example:"service.completed"`
	SourceSystem string         `json:"source_system" example:"operacao"`
	Payload      map[string]any `json:"payload"`
}

type SubmitEventResponse struct {
	ID        string `json:"id" example:"550e8400-e29b-41d4-a716-446655440000"`
	Status    string `json:"status" example:"pending"`
	Duplicate bool   `json:"duplicate" example:"false"`
}

type EventResponse struct {
	ID             string         `json:"id" example:"550e8400-e29b-41d4-a716-446655440000"`
	EventType      string         `json:"event_type" example:"service.completed"`
	SourceSystem   string         `json:"source_system" example:"operacao"`
	Payload        map[string]any `json:"payload"`
	IdempotencyKey string         `json:"idempotency_key,omitempty" example:"svc-42-completed"`
	Status         string         `json:"status" example:"done"`
	CreatedAt      string         `json:"created_at" example:"2024-01-01T00:00:00Z"`
	UpdatedAt      string         `json:"updated_at" example:"2024-01-01T00:00:01Z"`
}

type DeliveryResponse struct {
	ID             string `json:"id" example:"7c9e6679-7425-40de-944b-e07fc1f90ae7"`
	EventID        string `json:"event_id" example:"550e8400-e29b-41d4-a716-446655440000"`
	EndpointID     string `json:"endpoint_id" example:"0b1e1d9a-5c6f-4f7e-9a55-4c2f8a3d1e11"`
	Status         string `json:"status" example:"sent"`
	Attempts       int    `json:"attempts" example:"1"`
	ResponseStatus int    `json:"response_status,omitempty" example:"200"`
	LastError      string `json:"last_error,omitempty" example:""`
}

type DeliveriesResponse struct {
	EventID    string             `json:"event_id" example:"550e8400-e29b-41d4-a716-446655440000"`
	Deliveries []DeliveryResponse `json:"deliveries"`
}

// ErrorResponse is the body of every non-2xx answer.
type ErrorResponse struct {
	Code    string `json:"code" example:"VALIDATION_FAILED"`
	Message string `json:"message" example:"Request validation failed"`
}

type AlertResponse struct {
	Type      string  `json:"type" example:"retry_queue"`
	Level     string  `json:"level" example:"warning"`
	Subject   string  `json:"subject,omitempty" example:""`
	Message   string  `json:"message" example:"60 events in the retry queue (threshold 50)"`
	Value     float64 `json:"value" example:"60"`
	Threshold float64 `json:"threshold" example:"50"`
}

type AlertsResponse struct {
	Alerts []AlertResponse `json:"alerts"`
	Total  int             `json:"total" example:"1"`
}

type HubHealthResponse struct {
	Status    string          `json:"status" example:"degraded"`
	Alerts    []AlertResponse `json:"alerts"`
	CheckedAt string          `json:"checked_at" example:"2024-01-01T00:00:00Z"`
}

type CircuitResponse struct {
	Service      string `json:"service" example:"financeiro"`
	State        string `json:"state" example:"open"`
	FailureCount int64  `json:"failure_count" example:"5"`
	SuccessCount int64  `json:"success_count" example:"0"`
	Threshold    int    `json:"threshold" example:"5"`
	OpenedAt     string `json:"opened_at,omitempty" example:"2024-01-01T00:00:00Z"`
}

type CircuitsResponse struct {
	Circuits []CircuitResponse `json:"circuits"`
}

type DashboardResponse struct {
	GeneratedAt string            `json:"generated_at" example:"2024-01-01T00:00:00Z"`
	Events      map[string]int64  `json:"events"`
	RetryQueue  map[string]any    `json:"retry_queue"`
	DeadLetters map[string]any    `json:"dead_letters"`
	Deliveries  map[string]any    `json:"deliveries"`
	Circuits    []CircuitResponse `json:"circuits"`
}

type RetryEntryResponse struct {
	EventID     string `json:"event_id" example:"550e8400-e29b-41d4-a716-446655440000"`
	Attempts    int    `json:"attempts" example:"2"`
	MaxAttempts int    `json:"max_attempts" example:"5"`
	NextRetryAt string `json:"next_retry_at" example:"2024-01-01T00:02:00Z"`
	LastError   string `json:"last_error,omitempty" example:"financeiro: status 503"`
}

type RetryQueueResponse struct {
	Entries []RetryEntryResponse `json:"entries"`
	Stats   map[string]any       `json:"stats"`
}

type SweepResponse struct {
	Claimed   int `json:"claimed" example:"3"`
	Processed int `json:"processed" example:"3"`
	Errors    int `json:"errors" example:"0"`
}

type RequeueResponse struct {
	EventID string `json:"event_id" example:"550e8400-e29b-41d4-a716-446655440000"`
	Status  string `json:"status" example:"requeued"`
}

type DeadLetterResponse struct {
	ID         string `json:"id" example:"9f8c2d1e-3b4a-4c5d-8e7f-1a2b3c4d5e6f"`
	EventID    string `json:"event_id" example:"550e8400-e29b-41d4-a716-446655440000"`
	EventType  string `json:"event_type" example:"payment.confirmed"`
	Reason     string `json:"reason" example:"financeiro: status 500"`
	Attempts   int    `json:"attempts" example:"5"`
	ReplayedAt string `json:"replayed_at,omitempty" example:""`
	CreatedAt  string `json:"created_at" example:"2024-01-01T00:00:00Z"`
}

type DeadLettersResponse struct {
	DeadLetters []DeadLetterResponse `json:"dead_letters"`
	Stats       map[string]any       `json:"stats"`
}

type CreateEndpointRequest struct {
	SystemName string `json:"system_name" example:"financeiro"`
	URL        string `json:"url" example:"http://financeiro:8000/webhooks/integracoes"`
	Secret     string `json:"secret,omitempty" example:""`
	Active     bool   `json:"active" example:"true"`
}

type UpdateEndpointRequest struct {
	URL    string `json:"url,omitempty" example:"http://financeiro:8000/webhooks/v2"`
	Secret string `json:"secret,omitempty" example:""`
	Active bool   `json:"active,omitempty" example:"false"`
}

type EndpointResponse struct {
	ID         string `json:"id" example:"0b1e1d9a-5c6f-4f7e-9a55-4c2f8a3d1e11"`
	SystemName string `json:"system_name" example:"financeiro"`
	URL        string `json:"url" example:"http://financeiro:8000/webhooks/integracoes"`
	Active     bool   `json:"active" example:"true"`
	CreatedAt  string `json:"created_at" example:"2024-01-01T00:00:00Z"`
	UpdatedAt  string `json:"updated_at" example:"2024-01-01T00:00:00Z"`
}

type EndpointsResponse struct {
	Endpoints []EndpointResponse `json:"endpoints"`
}

type CreatedEndpointResponse struct {
	Endpoint EndpointResponse `json:"endpoint"`
	Secret   string           `json:"secret" example:"3f1c...e9"`
}

type SyncJobResponse struct {
	ID          string `json:"id" example:"4d3c2b1a-0f9e-8d7c-6b5a-493827161504"`
	JobType     string `json:"job_type" example:"crm_to_operacao"`
	Status      string `json:"status" example:"done"`
	ItemsTotal  int    `json:"items_total" example:"12"`
	ItemsSynced int    `json:"items_synced" example:"12"`
	ItemsFailed int    `json:"items_failed" example:"0"`
	LastError   string `json:"last_error,omitempty" example:""`
}

type SyncJobsResponse struct {
	Definitions []map[string]string `json:"definitions"`
	Jobs        []SyncJobResponse   `json:"jobs"`
}

type RoutesResponse struct {
	Routes []map[string]any `json:"routes"`
}

var (
	errBadRequest  = response.New(ErrorResponse{Code: "BAD_REQUEST", Message: "Invalid request"}, "400", "Bad Request")
	errValidation  = response.New(ErrorResponse{Code: "VALIDATION_FAILED", Message: "Request validation failed"}, "422", "Unprocessable Entity")
	errInternal    = response.New(ErrorResponse{Code: "INTERNAL_ERROR", Message: "An unexpected error occurred"}, "500", "Internal Server Error")
	jsonOnly       = []mime.MIME{mime.JSON}
	limitParameter = parameter.IntParam("limit", parameter.Query, parameter.WithDescription("Maximum number of rows (1-500, default 50)"))
)

func NewSwagger() *swagno.Swagger {
	sw := swagno.New(swagno.Config{
		Title:       "Carinho Integrações Hub",
		Version:     "v1.0.0",
		Description: "Inter-service integration hub: event intake, routing to webhook endpoints, retries, dead letters, batch sync jobs and monitoring",
		Host:        "localhost:3000",
		Path:        "/v1",
	})

	endpoints := []*endpoint.EndPoint{
		// Events

		endpoint.New(
			endpoint.POST,
			"/events",
			endpoint.WithTags("Events"),
			endpoint.WithSummary("Submit an integration event"),
			endpoint.WithDescription("Records the event and returns immediately. Submitting the same (event_type, source_system, idempotency_key) again returns the original event with duplicate=true."),
			endpoint.WithConsume(jsonOnly),
			endpoint.WithProduce(jsonOnly),
			endpoint.WithBody(SubmitEventRequest{}),
			endpoint.WithParams(
				parameter.StrParam("Idempotency-Key", parameter.Header, parameter.WithDescription("Used when the payload carries no idempotency_key")),
			),
			endpoint.WithSuccessfulReturns([]response.Response{
				response.New(SubmitEventResponse{}, "202", "Event accepted"),
			}),
			endpoint.WithErrors([]response.Response{
				errBadRequest,
				errValidation,
				response.New(ErrorResponse{Code: "RATE_LIMIT_EXCEEDED", Message: "Too many events submitted, slow down"}, "429", "Too Many Requests"),
				response.New(ErrorResponse{Code: "EVENT_NOT_RECORDED", Message: "Event could not be recorded, it is safe to retry the submission"}, "503", "Service Unavailable"),
			}),
		),

		endpoint.New(
			endpoint.GET,
			"/events/{id}",
			endpoint.WithTags("Events"),
			endpoint.WithSummary("Get an event"),
			endpoint.WithDescription("Returns the recorded event and its routing status"),
			endpoint.WithProduce(jsonOnly),
			endpoint.WithParams(
				parameter.StrParam("id", parameter.Path, parameter.WithDescription("Event id")),
			),
			endpoint.WithSuccessfulReturns([]response.Response{
				response.New(EventResponse{}, "200", "Event found"),
			}),
			endpoint.WithErrors([]response.Response{
				errBadRequest,
				response.New(ErrorResponse{Code: "EVENT_NOT_FOUND", Message: "Event not found"}, "404", "Not Found"),
			}),
		),

		endpoint.New(
			endpoint.GET,
			"/events/{id}/deliveries",
			endpoint.WithTags("Events"),
			endpoint.WithSummary("List deliveries of an event"),
			endpoint.WithDescription("One delivery per endpoint the event was routed to"),
			endpoint.WithProduce(jsonOnly),
			endpoint.WithParams(
				parameter.StrParam("id", parameter.Path, parameter.WithDescription("Event id")),
			),
			endpoint.WithSuccessfulReturns([]response.Response{
				response.New(DeliveriesResponse{}, "200", "Deliveries"),
			}),
			endpoint.WithErrors([]response.Response{
				errBadRequest,
				response.New(ErrorResponse{Code: "EVENT_NOT_FOUND", Message: "Event not found"}, "404", "Not Found"),
			}),
		),

		// Monitoring

		endpoint.New(
			endpoint.GET,
			"/admin/dashboard",
			endpoint.WithTags("Admin - Monitoring"),
			endpoint.WithSummary("Dashboard"),
			endpoint.WithDescription("Event counts, retry queue, dead letters, delivery error rate and circuit states. Cached for a few seconds."),
			endpoint.WithProduce(jsonOnly),
			endpoint.WithSuccessfulReturns([]response.Response{
				response.New(DashboardResponse{}, "200", "Dashboard"),
			}),
			endpoint.WithErrors([]response.Response{errInternal}),
		),

		endpoint.New(
			endpoint.GET,
			"/admin/alerts",
			endpoint.WithTags("Admin - Monitoring"),
			endpoint.WithSummary("Active alerts"),
			endpoint.WithDescription("Evaluates the alert thresholds against fresh numbers"),
			endpoint.WithProduce(jsonOnly),
			endpoint.WithSuccessfulReturns([]response.Response{
				response.New(AlertsResponse{}, "200", "Alerts"),
			}),
			endpoint.WithErrors([]response.Response{errInternal}),
		),

		endpoint.New(
			endpoint.GET,
			"/admin/health",
			endpoint.WithTags("Admin - Monitoring"),
			endpoint.WithSummary("Hub health"),
			endpoint.WithDescription("healthy, degraded (warnings) or critical (503)"),
			endpoint.WithProduce(jsonOnly),
			endpoint.WithSuccessfulReturns([]response.Response{
				response.New(HubHealthResponse{}, "200", "Healthy or degraded"),
			}),
			endpoint.WithErrors([]response.Response{
				response.New(HubHealthResponse{Status: "critical"}, "503", "Critical"),
			}),
		),

		// Circuits

		endpoint.New(
			endpoint.GET,
			"/admin/circuits",
			endpoint.WithTags("Admin - Circuits"),
			endpoint.WithSummary("Circuit breaker states"),
			endpoint.WithDescription("One circuit per downstream system"),
			endpoint.WithProduce(jsonOnly),
			endpoint.WithSuccessfulReturns([]response.Response{
				response.New(CircuitsResponse{}, "200", "Circuits"),
			}),
			endpoint.WithErrors([]response.Response{errInternal}),
		),

		endpoint.New(
			endpoint.POST,
			"/admin/circuits/{service}/reset",
			endpoint.WithTags("Admin - Circuits"),
			endpoint.WithSummary("Close a circuit"),
			endpoint.WithDescription("Forces the circuit of a system closed and clears its counters"),
			endpoint.WithProduce(jsonOnly),
			endpoint.WithParams(
				parameter.StrParam("service", parameter.Path, parameter.WithDescription("System name")),
			),
			endpoint.WithSuccessfulReturns([]response.Response{
				response.New(CircuitResponse{}, "200", "Circuit closed"),
			}),
			endpoint.WithErrors([]response.Response{
				response.New(ErrorResponse{Code: "NOT_FOUND", Message: "Resource not found"}, "404", "Unknown system"),
				errInternal,
			}),
		),

		// Retries

		endpoint.New(
			endpoint.GET,
			"/admin/retry-queue",
			endpoint.WithTags("Admin - Retries"),
			endpoint.WithSummary("List the retry queue"),
			endpoint.WithDescription("Events waiting for another routing attempt, soonest first"),
			endpoint.WithProduce(jsonOnly),
			endpoint.WithParams(limitParameter),
			endpoint.WithSuccessfulReturns([]response.Response{
				response.New(RetryQueueResponse{}, "200", "Retry queue"),
			}),
			endpoint.WithErrors([]response.Response{errInternal}),
		),

		endpoint.New(
			endpoint.POST,
			"/admin/retry-queue/process",
			endpoint.WithTags("Admin - Retries"),
			endpoint.WithSummary("Run a retry sweep"),
			endpoint.WithDescription("Claims due entries and routes their events again"),
			endpoint.WithProduce(jsonOnly),
			endpoint.WithParams(limitParameter),
			endpoint.WithSuccessfulReturns([]response.Response{
				response.New(SweepResponse{}, "200", "Sweep result"),
			}),
			endpoint.WithErrors([]response.Response{errInternal}),
		),

		endpoint.New(
			endpoint.POST,
			"/admin/retry-queue/{event_id}/requeue",
			endpoint.WithTags("Admin - Retries"),
			endpoint.WithSummary("Make a retry due now"),
			endpoint.WithDescription("The next sweep picks the event up without waiting for its backoff"),
			endpoint.WithProduce(jsonOnly),
			endpoint.WithParams(
				parameter.StrParam("event_id", parameter.Path, parameter.WithDescription("Event id")),
			),
			endpoint.WithSuccessfulReturns([]response.Response{
				response.New(RequeueResponse{}, "202", "Requeued"),
			}),
			endpoint.WithErrors([]response.Response{
				errBadRequest,
				response.New(ErrorResponse{Code: "RETRY_ENTRY_NOT_FOUND", Message: "Event is not in the retry queue"}, "404", "Not Found"),
			}),
		),

		endpoint.New(
			endpoint.GET,
			"/admin/dead-letters",
			endpoint.WithTags("Admin - Retries"),
			endpoint.WithSummary("List dead letters"),
			endpoint.WithDescription("Events whose retry budget ran out, newest first"),
			endpoint.WithProduce(jsonOnly),
			endpoint.WithParams(limitParameter),
			endpoint.WithSuccessfulReturns([]response.Response{
				response.New(DeadLettersResponse{}, "200", "Dead letters"),
			}),
			endpoint.WithErrors([]response.Response{errInternal}),
		),

		endpoint.New(
			endpoint.POST,
			"/admin/dead-letters/{id}/replay",
			endpoint.WithTags("Admin - Retries"),
			endpoint.WithSummary("Replay a dead letter"),
			endpoint.WithDescription("Puts the event back in the retry queue with a fresh budget, due now"),
			endpoint.WithProduce(jsonOnly),
			endpoint.WithParams(
				parameter.StrParam("id", parameter.Path, parameter.WithDescription("Dead letter id")),
			),
			endpoint.WithSuccessfulReturns([]response.Response{
				response.New(DeadLetterResponse{}, "202", "Replay scheduled"),
			}),
			endpoint.WithErrors([]response.Response{
				errBadRequest,
				response.New(ErrorResponse{Code: "DEAD_LETTER_NOT_FOUND", Message: "Dead letter not found"}, "404", "Not Found"),
				response.New(ErrorResponse{Code: "DEAD_LETTER_ALREADY_REPLAYED", Message: "Dead letter was already replayed"}, "409", "Conflict"),
			}),
		),

		// Endpoints

		endpoint.New(
			endpoint.GET,
			"/admin/endpoints",
			endpoint.WithTags("Admin - Endpoints"),
			endpoint.WithSummary("List webhook endpoints"),
			endpoint.WithDescription("Secrets are never listed"),
			endpoint.WithProduce(jsonOnly),
			endpoint.WithSuccessfulReturns([]response.Response{
				response.New(EndpointsResponse{}, "200", "Endpoints"),
			}),
			endpoint.WithErrors([]response.Response{errInternal}),
		),

		endpoint.New(
			endpoint.POST,
			"/admin/endpoints",
			endpoint.WithTags("Admin - Endpoints"),
			endpoint.WithSummary("Register a webhook endpoint"),
			endpoint.WithDescription("A signing secret is generated when none is given. It is only returned here."),
			endpoint.WithConsume(jsonOnly),
			endpoint.WithProduce(jsonOnly),
			endpoint.WithBody(CreateEndpointRequest{}),
			endpoint.WithSuccessfulReturns([]response.Response{
				response.New(CreatedEndpointResponse{}, "201", "Endpoint registered"),
			}),
			endpoint.WithErrors([]response.Response{
				errBadRequest,
				response.New(ErrorResponse{Code: "ENDPOINT_ALREADY_EXISTS", Message: "An endpoint with this system and url is already registered"}, "409", "Conflict"),
				errValidation,
			}),
		),

		endpoint.New(
			endpoint.PATCH,
			"/admin/endpoints/{id}",
			endpoint.WithTags("Admin - Endpoints"),
			endpoint.WithSummary("Update a webhook endpoint"),
			endpoint.WithDescription("Changes url, secret or active flag. Omitted fields are kept."),
			endpoint.WithConsume(jsonOnly),
			endpoint.WithProduce(jsonOnly),
			endpoint.WithBody(UpdateEndpointRequest{}),
			endpoint.WithParams(
				parameter.StrParam("id", parameter.Path, parameter.WithDescription("Endpoint id")),
			),
			endpoint.WithSuccessfulReturns([]response.Response{
				response.New(EndpointResponse{}, "200", "Endpoint updated"),
			}),
			endpoint.WithErrors([]response.Response{
				errBadRequest,
				response.New(ErrorResponse{Code: "ENDPOINT_NOT_FOUND", Message: "Webhook endpoint not found"}, "404", "Not Found"),
				errValidation,
			}),
		),

		// Sync jobs

		endpoint.New(
			endpoint.GET,
			"/admin/sync-jobs",
			endpoint.WithTags("Admin - Sync"),
			endpoint.WithSummary("Sync job definitions and history"),
			endpoint.WithDescription("Most recent runs first"),
			endpoint.WithProduce(jsonOnly),
			endpoint.WithParams(
				parameter.StrParam("job_type", parameter.Query, parameter.WithDescription("Only runs of this job type")),
				limitParameter,
			),
			endpoint.WithSuccessfulReturns([]response.Response{
				response.New(SyncJobsResponse{}, "200", "Sync jobs"),
			}),
			endpoint.WithErrors([]response.Response{errInternal}),
		),

		endpoint.New(
			endpoint.POST,
			"/admin/sync-jobs/{job_type}/run",
			endpoint.WithTags("Admin - Sync"),
			endpoint.WithSummary("Run a sync job now"),
			endpoint.WithDescription("Runs one batch to completion. A failed run is reported in the job status."),
			endpoint.WithProduce(jsonOnly),
			endpoint.WithParams(
				parameter.StrParam("job_type", parameter.Path, parameter.WithDescription("crm_to_operacao, operacao_to_financeiro or cuidadores_to_operacao")),
			),
			endpoint.WithSuccessfulReturns([]response.Response{
				response.New(SyncJobResponse{}, "200", "Job finished"),
			}),
			endpoint.WithErrors([]response.Response{
				response.New(ErrorResponse{Code: "UNKNOWN_SYNC_JOB", Message: "Sync job type is not configured"}, "404", "Not Found"),
				errInternal,
			}),
		),

		endpoint.New(
			endpoint.GET,
			"/admin/routes",
			endpoint.WithTags("Admin - Routing"),
			endpoint.WithSummary("Routing table"),
			endpoint.WithDescription("Event types, their target systems and payload transforms"),
			endpoint.WithProduce(jsonOnly),
			endpoint.WithSuccessfulReturns([]response.Response{
				response.New(RoutesResponse{}, "200", "Routes"),
			}),
		),
	}

	sw.AddEndpoints(endpoints)

	return sw
}
