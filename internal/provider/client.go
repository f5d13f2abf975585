// Package provider is the HTTP client for the generation collaborator. The
// model behind it is opaque: a system/user text pair goes in, raw text that
// should contain a JSON object comes out.
package provider

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"time"

	"github.com/sony/gobreaker"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"

	"github.com/promptforge/enhancer-api/internal/models"
)

// Generator abstracts the generation collaborator for the orchestration
// layer and tests.
type Generator interface {
	Complete(ctx context.Context, systemInstruction, userPayload string) (string, error)
	IsHealthy(ctx context.Context) bool
}

// Client talks to the prompt-generation service over HTTP with a circuit
// breaker in front of it.
type Client struct {
	baseURL    string
	httpClient *http.Client
	tracer     trace.Tracer
	breaker    *gobreaker.CircuitBreaker
}

// CompletionRequest is the wire shape of one generation call
type CompletionRequest struct {
	SystemInstruction string `json:"system_instruction"`
	UserPayload       string `json:"user_payload"`
}

// CompletionResponse is the wire shape of a generation result. Content is
// raw model text; JSON extraction happens in the synthesis layer.
type CompletionResponse struct {
	Content string `json:"content"`
}

// NewClient creates a generation client from the environment
func NewClient() *Client {
	baseURL := os.Getenv("GENERATION_SERVICE_URL")
	if baseURL == "" {
		baseURL = "http://generation-service:8000"
		log.Printf("WARN: GENERATION_SERVICE_URL not set, defaulting to %s", baseURL)
	}

	settings := gobreaker.Settings{
		Name:        "generation-service",
		MaxRequests: 3,
		Interval:    60 * time.Second,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures > 5
		},
		OnStateChange: func(name string, from gobreaker.State, to gobreaker.State) {
			log.Printf("Circuit breaker %s changed from %s to %s", name, from, to)
		},
	}

	return &Client{
		baseURL: baseURL,
		httpClient: &http.Client{
			Timeout: 60 * time.Second,
		},
		tracer:  otel.Tracer("generation-client"),
		breaker: gobreaker.NewCircuitBreaker(settings),
	}
}

// SetBaseURL sets the base URL for testing purposes
func (c *Client) SetBaseURL(baseURL string) {
	c.baseURL = baseURL
}

// Complete performs one generation call and returns the model's raw text
func (c *Client) Complete(ctx context.Context, systemInstruction, userPayload string) (string, error) {
	ctx, span := c.tracer.Start(ctx, "generation.complete")
	defer span.End()

	span.SetAttributes(
		attribute.Int("payload.bytes", len(userPayload)),
	)

	result, err := c.breaker.Execute(func() (interface{}, error) {
		return c.completeInternal(ctx, systemInstruction, userPayload)
	})

	if err != nil {
		span.RecordError(err)
		return "", &models.NetworkError{Op: "generation.complete", Err: err}
	}

	return result.(string), nil
}

func (c *Client) completeInternal(ctx context.Context, systemInstruction, userPayload string) (string, error) {
	jsonData, err := json.Marshal(CompletionRequest{
		SystemInstruction: systemInstruction,
		UserPayload:       userPayload,
	})
	if err != nil {
		return "", fmt.Errorf("failed to marshal request: %w", err)
	}

	url := fmt.Sprintf("%s/v1/complete", c.baseURL)
	httpReq, err := http.NewRequestWithContext(ctx, "POST", url, bytes.NewBuffer(jsonData))
	if err != nil {
		return "", fmt.Errorf("failed to create request: %w", err)
	}

	httpReq.Header.Set("Content-Type", "application/json")

	// Inject trace context
	otel.GetTextMapPropagator().Inject(ctx, propagation.HeaderCarrier(httpReq.Header))

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return "", fmt.Errorf("failed to make request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		bodyBytes, err := io.ReadAll(resp.Body)
		if err != nil {
			return "", fmt.Errorf("generation service returned status %d (failed to read body: %w)", resp.StatusCode, err)
		}
		return "", fmt.Errorf("generation service returned status %d: %s", resp.StatusCode, string(bodyBytes))
	}

	var completion CompletionResponse
	if err := json.NewDecoder(resp.Body).Decode(&completion); err != nil {
		return "", fmt.Errorf("failed to decode response: %w", err)
	}

	return completion.Content, nil
}

// IsHealthy checks if the generation service is reachable
func (c *Client) IsHealthy(ctx context.Context) bool {
	ctx, span := c.tracer.Start(ctx, "generation.health_check")
	defer span.End()

	if c.breaker.State() == gobreaker.StateOpen {
		span.SetAttributes(attribute.Bool("healthy", false), attribute.String("reason", "circuit_breaker_open"))
		return false
	}

	url := fmt.Sprintf("%s/health", c.baseURL)
	httpReq, err := http.NewRequestWithContext(ctx, "GET", url, nil)
	if err != nil {
		span.RecordError(err)
		return false
	}

	client := &http.Client{Timeout: 5 * time.Second}
	resp, err := client.Do(httpReq)
	if err != nil {
		span.RecordError(err)
		return false
	}
	defer resp.Body.Close()

	healthy := resp.StatusCode == http.StatusOK
	span.SetAttributes(attribute.Bool("healthy", healthy))

	return healthy
}
