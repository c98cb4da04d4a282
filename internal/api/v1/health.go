package v1

import (
	"context"
	"net/http"
	"time"

	"github.com/danielgtaylor/huma/v2"
)

type HealthResponse struct {
	Status      string `json:"status"`
	Timestamp   string `json:"timestamp"`
	LLMProvider string `json:"llmProvider"`
	Message     string `json:"message"`
}

type HealthOutput struct {
	Body *HealthResponse
}

func RegisterHealthRoutes(api huma.API, provider ProviderInfo) {
	huma.Register(api, huma.Operation{
		OperationID: "health",
		Method:      http.MethodGet,
		Path:        "/health",
		Summary:     "Liveness check",
		Tags:        []string{"Health"},
	}, func(_ context.Context, _ *struct{}) (*HealthOutput, error) {
		name := provider.ProviderName()
		return &HealthOutput{Body: &HealthResponse{
			Status:      "ok",
			Timestamp:   time.Now().UTC().Format("2006-01-02T15:04:05.000Z07:00"),
			LLMProvider: name,
			Message:     "🤖 Running with " + name,
		}}, nil
	})
}
