// Package generation drives the two-stage recipe generation flow: suggest dish
// names for a set of ingredients, then expand one of them into a full recipe.
package generation

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.uber.org/zap"

	"pantrychef/internal/recipe"
)

var (
	requestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "pantrychef_generation_requests_total",
		Help: "Generation requests by kind and outcome.",
	}, []string{"kind", "outcome"})

	requestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "pantrychef_generation_duration_seconds",
		Help:    "Time spent waiting for the model.",
		Buckets: []float64{0.5, 1, 2, 5, 10, 20, 45},
	}, []string{"kind"})
)

const (
	kindSuggest = "suggest"
	kindRecipe  = "recipe"
)

// TextModel is a generative model that answers a single text prompt.
type TextModel interface {
	GenerateText(ctx context.Context, prompt string) (string, error)
}

// Service turns ingredients and preferences into suggestions and recipes.
type Service struct {
	model TextModel
	log   *zap.Logger
}

// NewService creates a new Service.
func NewService(model TextModel, log *zap.Logger) *Service {
	return &Service{model: model, log: log}
}

// Suggest asks the model for up to three dish names. Replies with more names
// are truncated; fewer are accepted as they are.
func (s *Service) Suggest(ctx context.Context, ingredients []string, prefs recipe.Preferences) ([]string, error) {
	prompt, err := recipe.SuggestionPrompt(ingredients, prefs)
	if err != nil {
		return nil, err
	}

	raw, err := s.call(ctx, kindSuggest, prompt, '[', ']')
	if err != nil {
		return nil, err
	}

	var suggestions []string
	if err := json.Unmarshal([]byte(raw), &suggestions); err != nil {
		requestsTotal.WithLabelValues(kindSuggest, "invalid_json").Inc()
		return nil, &recipe.GenerationError{Reason: "reply is not a JSON array of strings", Err: err}
	}
	if len(suggestions) > recipe.SuggestionCount {
		suggestions = suggestions[:recipe.SuggestionCount]
	} else if len(suggestions) < recipe.SuggestionCount {
		s.log.Debug("model returned fewer suggestions than requested", zap.Int("got", len(suggestions)))
	}

	requestsTotal.WithLabelValues(kindSuggest, "ok").Inc()
	return suggestions, nil
}

// Generate asks the model for a full recipe of the named dish and validates it.
func (s *Service) Generate(ctx context.Context, dish string, ingredients []string, prefs recipe.Preferences) (*recipe.Recipe, error) {
	prompt, err := recipe.RecipePrompt(dish, ingredients, prefs)
	if err != nil {
		return nil, err
	}

	raw, err := s.call(ctx, kindRecipe, prompt, '{', '}')
	if err != nil {
		return nil, err
	}
	if !json.Valid([]byte(raw)) {
		requestsTotal.WithLabelValues(kindRecipe, "invalid_json").Inc()
		return nil, &recipe.GenerationError{Reason: "reply is not valid JSON"}
	}

	r, err := recipe.Assemble([]byte(raw))
	if err != nil {
		requestsTotal.WithLabelValues(kindRecipe, "invalid_recipe").Inc()
		s.log.Info("model returned an invalid recipe", zap.String("dish", dish), zap.Error(err))
		return nil, &recipe.GenerationError{Reason: "model returned an invalid recipe", Err: err}
	}
	if r.Nutrition == nil {
		s.log.Debug("model returned a recipe without nutrition", zap.String("dish", dish))
	}

	requestsTotal.WithLabelValues(kindRecipe, "ok").Inc()
	return r, nil
}

// call invokes the model once and extracts the bracketed JSON from its reply.
func (s *Service) call(ctx context.Context, kind, prompt string, opening, closing byte) (string, error) {
	start := time.Now()
	text, err := s.model.GenerateText(ctx, prompt)
	requestDuration.WithLabelValues(kind).Observe(time.Since(start).Seconds())
	if err != nil {
		if errors.Is(err, recipe.ErrMissingCredential) {
			requestsTotal.WithLabelValues(kind, "missing_credential").Inc()
			return "", err
		}
		requestsTotal.WithLabelValues(kind, "model_error").Inc()
		s.log.Error("model call failed", zap.String("kind", kind), zap.Error(err))
		return "", &recipe.GenerationError{Reason: "model call failed", Err: err}
	}

	raw, ok := ExtractJSON(text, opening, closing)
	if !ok {
		requestsTotal.WithLabelValues(kind, "no_json").Inc()
		s.log.Info("no JSON found in model reply", zap.String("kind", kind), zap.Int("reply_length", len(text)))
		return "", &recipe.GenerationError{Reason: "no JSON found in reply"}
	}
	return raw, nil
}

// ExtractJSON returns the greedy span from the first open bracket to the last
// close bracket in text.
func ExtractJSON(text string, opening, closing byte) (string, bool) {
	start := strings.IndexByte(text, opening)
	end := strings.LastIndexByte(text, closing)
	if start == -1 || end == -1 || start > end {
		return "", false
	}
	return text[start : end+1], true
}
