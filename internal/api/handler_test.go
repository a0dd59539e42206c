package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"pantrychef/internal/recipe"
)

// stubRecipes fails every call with err.
type stubRecipes struct {
	RecipeService
	err error
}

func (s *stubRecipes) Fetch(ctx context.Context, id string) (*recipe.Recipe, error) {
	return nil, s.err
}

func TestFailStatusMapping(t *testing.T) {
	gin.SetMode(gin.TestMode)

	tests := []struct {
		name string
		err  error
		want int
	}{
		{"bad input", recipe.ErrNoIngredients, http.StatusBadRequest},
		{"unauthenticated", recipe.ErrUnauthenticated, http.StatusUnauthorized},
		{"not found", recipe.ErrNotFound, http.StatusNotFound},
		{"validation", &recipe.ValidationError{Fields: []recipe.FieldError{{Path: "title", Problem: "is required"}}}, http.StatusUnprocessableEntity},
		{"missing credential", recipe.ErrMissingCredential, http.StatusServiceUnavailable},
		{"deadline", &recipe.GenerationError{Reason: "model call failed", Err: context.DeadlineExceeded}, http.StatusRequestTimeout},
		{"generation", &recipe.GenerationError{Reason: "no JSON found in reply"}, http.StatusBadGateway},
		{"invalid model recipe", &recipe.GenerationError{Reason: "model returned an invalid recipe", Err: &recipe.ValidationError{Fields: []recipe.FieldError{{Path: "steps", Problem: "must have at least 1 entries"}}}}, http.StatusBadGateway},
		{"storage", &recipe.StorageError{Op: "get recipe", Err: errors.New("connection refused")}, http.StatusInternalServerError},
		{"wrapped not found", fmt.Errorf("lookup: %w", recipe.ErrNotFound), http.StatusNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := NewHandler(nil, &stubRecipes{err: tt.err}, zap.NewNop())
			r := gin.New()
			r.GET("/recipes/:id", h.GetRecipe)

			rr := httptest.NewRecorder()
			r.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/recipes/abc", nil))
			assert.Equal(t, tt.want, rr.Code)
		})
	}
}

func TestStorageErrorDetailIsNotLeaked(t *testing.T) {
	gin.SetMode(gin.TestMode)
	h := NewHandler(nil, &stubRecipes{err: &recipe.StorageError{Op: "get recipe", Err: errors.New("password authentication failed")}}, zap.NewNop())
	r := gin.New()
	r.GET("/recipes/:id", h.GetRecipe)

	rr := httptest.NewRecorder()
	r.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/recipes/abc", nil))
	assert.Equal(t, "internal error", rr.Body.String())
}

func TestInvalidModelRecipeKeepsFields(t *testing.T) {
	gin.SetMode(gin.TestMode)
	err := &recipe.GenerationError{
		Reason: "model returned an invalid recipe",
		Err:    &recipe.ValidationError{Fields: []recipe.FieldError{{Path: "steps[1].duration", Problem: "must be an integer, got string"}}},
	}
	h := NewHandler(nil, &stubRecipes{err: err}, zap.NewNop())
	r := gin.New()
	r.GET("/recipes/:id", h.GetRecipe)

	rr := httptest.NewRecorder()
	r.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/recipes/abc", nil))
	require.Equal(t, http.StatusBadGateway, rr.Code)

	var body struct {
		Error  string              `json:"error"`
		Fields []recipe.FieldError `json:"fields"`
	}
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &body))
	assert.Equal(t, "model returned an invalid recipe", body.Error)
	assert.Equal(t, []recipe.FieldError{{Path: "steps[1].duration", Problem: "must be an integer, got string"}}, body.Fields)
}

func TestRateLimit(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(RateLimit(rate.NewLimiter(rate.Every(time.Hour), 2)))
	r.GET("/", func(c *gin.Context) { c.Status(http.StatusOK) })

	codes := make([]int, 0, 3)
	for i := 0; i < 3; i++ {
		rr := httptest.NewRecorder()
		r.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/", nil))
		codes = append(codes, rr.Code)
	}
	assert.Equal(t, []int{http.StatusOK, http.StatusOK, http.StatusTooManyRequests}, codes)
}
