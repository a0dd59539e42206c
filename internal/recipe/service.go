package recipe

import (
	"context"
	"strings"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"pantrychef/internal/auth"
)

// Service persists recipes and reads them back, attributing every write to the
// caller found in the request context.
type Service struct {
	store Store
	log   *zap.Logger
}

// NewService creates a new Service.
func NewService(store Store, log *zap.Logger) *Service {
	return &Service{store: store, log: log}
}

func caller(ctx context.Context) (string, error) {
	id, ok := auth.CallerFrom(ctx)
	if !ok {
		return "", ErrUnauthenticated
	}
	return id, nil
}

// validID reports whether id has the shape of a persisted recipe id.
func validID(id string) bool {
	_, err := uuid.Parse(id)
	return err == nil
}

// Save writes the recipe, its ordered steps, their tools and its nutrition in
// one transaction and returns the new recipe id.
func (s *Service) Save(ctx context.Context, r *Recipe, publish bool) (string, error) {
	owner, err := caller(ctx)
	if err != nil {
		return "", err
	}
	if r == nil {
		return "", &ValidationError{Fields: []FieldError{{Path: "$", Problem: "is required"}}}
	}
	rec := *r
	rec.normalize()
	if err := Validate(&rec); err != nil {
		return "", err
	}

	recipeID := uuid.NewString()
	err = s.store.InTx(ctx, func(tx Tx) error {
		row := &Summary{
			ID:          recipeID,
			OwnerID:     owner,
			Title:       rec.Title,
			Description: rec.Description,
			Ingredients: rec.Ingredients,
			IsPublished: publish,
		}
		if err := tx.InsertRecipe(ctx, row); err != nil {
			return err
		}
		for i, step := range rec.Steps {
			stepRow := &StepRow{
				ID:          uuid.NewString(),
				RecipeID:    recipeID,
				Number:      i + 1,
				Title:       step.Title,
				Description: step.Description,
				Duration:    step.Duration,
			}
			if err := tx.InsertStep(ctx, stepRow); err != nil {
				return err
			}
			for _, tool := range step.Tools {
				if err := tx.InsertTool(ctx, stepRow.ID, tool); err != nil {
					return err
				}
			}
		}
		if rec.Nutrition != nil {
			return tx.UpsertNutrition(ctx, recipeID, rec.Nutrition)
		}
		return nil
	})
	if err != nil {
		s.log.Error("failed to save recipe", zap.String("user_id", owner), zap.Error(err))
		return "", storageErr("save recipe", err)
	}

	s.log.Info("saved recipe",
		zap.String("recipe_id", recipeID),
		zap.String("user_id", owner),
		zap.Int("steps", len(rec.Steps)),
		zap.Bool("published", publish),
	)
	return recipeID, nil
}

// Fetch reconstructs a persisted recipe. It returns nil, nil when the recipe
// does not exist or is not visible to the caller. A failed tool or nutrition
// lookup degrades that part only and is logged.
func (s *Service) Fetch(ctx context.Context, id string) (*Recipe, error) {
	if !validID(id) {
		return nil, nil
	}
	viewer, _ := auth.CallerFrom(ctx)

	row, err := s.store.GetRecipe(ctx, viewer, id)
	if err != nil {
		s.log.Error("failed to fetch recipe", zap.String("recipe_id", id), zap.Error(err))
		return nil, storageErr("get recipe", err)
	}
	if row == nil {
		s.log.Debug("recipe not found", zap.String("recipe_id", id))
		return nil, nil
	}

	stepRows, err := s.store.ListSteps(ctx, id)
	if err != nil {
		s.log.Error("failed to fetch recipe steps", zap.String("recipe_id", id), zap.Error(err))
		return nil, storageErr("list steps", err)
	}

	steps := make([]Step, len(stepRows))
	g, gctx := errgroup.WithContext(ctx)
	for i, sr := range stepRows {
		i, sr := i, sr
		g.Go(func() error {
			steps[i] = Step{Title: sr.Title, Description: sr.Description, Tools: []string{}, Duration: sr.Duration}
			tools, err := s.store.ListStepTools(gctx, sr.ID)
			if err != nil {
				if ctxErr := gctx.Err(); ctxErr != nil {
					return ctxErr
				}
				s.log.Warn("degraded step tools to empty",
					zap.String("recipe_id", id),
					zap.String("step_id", sr.ID),
					zap.Int("step_number", sr.Number),
					zap.Error(err),
				)
				return nil
			}
			if tools != nil {
				steps[i].Tools = tools
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	result := &Recipe{
		Title:       row.Title,
		Description: row.Description,
		Ingredients: row.Ingredients,
		Steps:       steps,
	}
	nutrition, err := s.store.GetNutrition(ctx, id)
	if err != nil {
		s.log.Warn("degraded nutrition to none", zap.String("recipe_id", id), zap.Error(err))
	} else {
		result.Nutrition = nutrition
	}
	result.normalize()
	return result, nil
}

// SetPublished flips the visibility of a recipe owned by the caller.
func (s *Service) SetPublished(ctx context.Context, id string, published bool) error {
	owner, err := caller(ctx)
	if err != nil {
		return err
	}
	if !validID(id) {
		return ErrNotFound
	}
	if err := s.store.SetPublished(ctx, owner, id, published); err != nil {
		return storageErr("set published", err)
	}
	s.log.Info("updated recipe visibility", zap.String("recipe_id", id), zap.Bool("published", published))
	return nil
}

// Delete removes a recipe owned by the caller.
func (s *Service) Delete(ctx context.Context, id string) error {
	owner, err := caller(ctx)
	if err != nil {
		return err
	}
	if !validID(id) {
		return ErrNotFound
	}
	if err := s.store.DeleteRecipe(ctx, owner, id); err != nil {
		return storageErr("delete recipe", err)
	}
	s.log.Info("deleted recipe", zap.String("recipe_id", id), zap.String("user_id", owner))
	return nil
}

// ListMine returns the caller's recipes, newest first.
func (s *Service) ListMine(ctx context.Context) ([]*Summary, error) {
	owner, err := caller(ctx)
	if err != nil {
		return nil, err
	}
	list, err := s.store.ListByOwner(ctx, owner)
	if err != nil {
		return nil, storageErr("list recipes", err)
	}
	return list, nil
}

// ListPublished returns the published recipes, newest first.
func (s *Service) ListPublished(ctx context.Context) ([]*Summary, error) {
	list, err := s.store.ListPublished(ctx)
	if err != nil {
		return nil, storageErr("list published recipes", err)
	}
	return list, nil
}

// Bookmark saves a recipe to the caller's bookmarks.
func (s *Service) Bookmark(ctx context.Context, id string) error {
	owner, err := caller(ctx)
	if err != nil {
		return err
	}
	if !validID(id) {
		return ErrNotFound
	}
	if err := s.store.AddBookmark(ctx, owner, id); err != nil {
		return storageErr("add bookmark", err)
	}
	return nil
}

// ListBookmarks returns the caller's bookmarked recipes.
func (s *Service) ListBookmarks(ctx context.Context) ([]*Summary, error) {
	owner, err := caller(ctx)
	if err != nil {
		return nil, err
	}
	list, err := s.store.ListBookmarks(ctx, owner)
	if err != nil {
		return nil, storageErr("list bookmarks", err)
	}
	return list, nil
}

// SaveNutrition attaches or replaces the nutrition of a recipe owned by the caller.
func (s *Service) SaveNutrition(ctx context.Context, id string, n *NutritionInfo) error {
	owner, err := caller(ctx)
	if err != nil {
		return err
	}
	if !validID(id) {
		return ErrNotFound
	}
	if n == nil {
		return &ValidationError{Fields: []FieldError{{Path: "nutrition", Problem: "is required"}}}
	}
	if err := validateNutrition(n); err != nil {
		return err
	}
	if err := s.store.SaveNutrition(ctx, owner, id, n); err != nil {
		return storageErr("save nutrition", err)
	}
	return nil
}

// GetNutrition returns the nutrition of a visible recipe, or nil if none was stored.
func (s *Service) GetNutrition(ctx context.Context, id string) (*NutritionInfo, error) {
	if !validID(id) {
		return nil, ErrNotFound
	}
	viewer, _ := auth.CallerFrom(ctx)
	row, err := s.store.GetRecipe(ctx, viewer, id)
	if err != nil {
		return nil, storageErr("get recipe", err)
	}
	if row == nil {
		return nil, ErrNotFound
	}
	n, err := s.store.GetNutrition(ctx, id)
	if err != nil {
		return nil, storageErr("get nutrition", err)
	}
	return n, nil
}

// Rate records the caller's score for a recipe, replacing an earlier one.
func (s *Service) Rate(ctx context.Context, id string, score int, review string) (*Rating, error) {
	rater, err := caller(ctx)
	if err != nil {
		return nil, err
	}
	if !validID(id) {
		return nil, ErrNotFound
	}
	if score < 1 || score > 5 {
		return nil, &ValidationError{Fields: []FieldError{{Path: "rating", Problem: "must be between 1 and 5"}}}
	}
	r := &Rating{RecipeID: id, UserID: rater, Score: score, Review: strings.TrimSpace(review)}
	if err := s.store.UpsertRating(ctx, r); err != nil {
		return nil, storageErr("save rating", err)
	}
	return r, nil
}

// Ratings returns the ratings of a visible recipe with their average.
func (s *Service) Ratings(ctx context.Context, id string) (*RatingSummary, error) {
	if !validID(id) {
		return nil, ErrNotFound
	}
	viewer, _ := auth.CallerFrom(ctx)
	row, err := s.store.GetRecipe(ctx, viewer, id)
	if err != nil {
		return nil, storageErr("get recipe", err)
	}
	if row == nil {
		return nil, ErrNotFound
	}
	ratings, err := s.store.ListRatings(ctx, id)
	if err != nil {
		return nil, storageErr("list ratings", err)
	}
	summary := &RatingSummary{Count: len(ratings), Ratings: ratings}
	if len(ratings) > 0 {
		total := 0
		for _, r := range ratings {
			total += r.Score
		}
		summary.Average = float64(total) / float64(len(ratings))
	}
	return summary, nil
}
