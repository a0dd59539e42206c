package recipe

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
	"go.uber.org/zap"
)

// StepRow is the stored form of a Step; tools live in their own rows.
type StepRow struct {
	ID          string `db:"id"`
	RecipeID    string `db:"recipe_id"`
	Number      int    `db:"step_number"`
	Title       string `db:"title"`
	Description string `db:"description"`
	Duration    int    `db:"duration_minutes"`
}

// Tx is the set of writes a recipe save fans out into. All of them commit or
// roll back together.
type Tx interface {
	InsertRecipe(ctx context.Context, s *Summary) error
	InsertStep(ctx context.Context, s *StepRow) error
	InsertTool(ctx context.Context, stepID, name string) error
	UpsertNutrition(ctx context.Context, recipeID string, n *NutritionInfo) error
}

// Store defines the interface for recipe data operations. Reads take the viewer
// so that unpublished recipes are only visible to their owner; a missing or
// invisible recipe is reported as nil, nil.
type Store interface {
	InTx(ctx context.Context, fn func(Tx) error) error

	GetRecipe(ctx context.Context, viewer, id string) (*Summary, error)
	ListSteps(ctx context.Context, recipeID string) ([]StepRow, error)
	ListStepTools(ctx context.Context, stepID string) ([]string, error)
	GetNutrition(ctx context.Context, recipeID string) (*NutritionInfo, error)

	SetPublished(ctx context.Context, owner, id string, published bool) error
	DeleteRecipe(ctx context.Context, owner, id string) error
	ListByOwner(ctx context.Context, owner string) ([]*Summary, error)
	ListPublished(ctx context.Context) ([]*Summary, error)

	AddBookmark(ctx context.Context, owner, recipeID string) error
	ListBookmarks(ctx context.Context, owner string) ([]*Summary, error)

	SaveNutrition(ctx context.Context, owner, recipeID string, n *NutritionInfo) error
	UpsertRating(ctx context.Context, r *Rating) error
	ListRatings(ctx context.Context, recipeID string) ([]Rating, error)
}

// PostgresStore implements the Store interface for PostgreSQL.
type PostgresStore struct {
	db *sqlx.DB
}

// NewPostgresStore connects to the database and applies pending migrations.
func NewPostgresStore(dataSourceName string, log *zap.Logger) (*PostgresStore, error) {
	db, err := sqlx.Connect("postgres", dataSourceName)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}
	if err := migrateUp(db.DB, log); err != nil {
		db.Close()
		return nil, err
	}
	return &PostgresStore{db: db}, nil
}

// Close releases the connection pool.
func (s *PostgresStore) Close() error {
	return s.db.Close()
}

// Ping checks that the database is reachable.
func (s *PostgresStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

type pgTx struct {
	tx *sqlx.Tx
}

// InTx runs fn inside a transaction, committing only if fn succeeds.
func (s *PostgresStore) InTx(ctx context.Context, fn func(Tx) error) error {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	if err := fn(&pgTx{tx: tx}); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil {
			return fmt.Errorf("%w (rollback failed: %v)", err, rbErr)
		}
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

func (t *pgTx) InsertRecipe(ctx context.Context, r *Summary) error {
	ingredientsJSON, err := json.Marshal(r.Ingredients)
	if err != nil {
		return fmt.Errorf("failed to marshal ingredients: %w", err)
	}
	err = t.tx.QueryRowxContext(ctx,
		"INSERT INTO recipes (id, user_id, title, description, ingredients, is_published) VALUES ($1, $2, $3, $4, $5, $6) RETURNING created_at",
		r.ID, r.OwnerID, r.Title, r.Description, ingredientsJSON, r.IsPublished,
	).Scan(&r.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to insert recipe: %w", err)
	}
	return nil
}

func (t *pgTx) InsertStep(ctx context.Context, s *StepRow) error {
	_, err := t.tx.ExecContext(ctx,
		"INSERT INTO recipe_steps (id, recipe_id, step_number, title, description, duration_minutes) VALUES ($1, $2, $3, $4, $5, $6)",
		s.ID, s.RecipeID, s.Number, s.Title, s.Description, s.Duration,
	)
	if err != nil {
		return fmt.Errorf("failed to insert step %d: %w", s.Number, err)
	}
	return nil
}

func (t *pgTx) InsertTool(ctx context.Context, stepID, name string) error {
	_, err := t.tx.ExecContext(ctx, "INSERT INTO step_tools (step_id, tool_name) VALUES ($1, $2)", stepID, name)
	if err != nil {
		return fmt.Errorf("failed to insert tool: %w", err)
	}
	return nil
}

const upsertNutrition = `
	INSERT INTO nutrition_info (recipe_id, calories_per_serving, protein_g, carbs_g, fat_g, fiber_g, servings)
	VALUES ($1, $2, $3, $4, $5, $6, $7)
	ON CONFLICT (recipe_id) DO UPDATE SET
		calories_per_serving = EXCLUDED.calories_per_serving,
		protein_g = EXCLUDED.protein_g,
		carbs_g = EXCLUDED.carbs_g,
		fat_g = EXCLUDED.fat_g,
		fiber_g = EXCLUDED.fiber_g,
		servings = EXCLUDED.servings`

func (t *pgTx) UpsertNutrition(ctx context.Context, recipeID string, n *NutritionInfo) error {
	_, err := t.tx.ExecContext(ctx, upsertNutrition,
		recipeID, n.CaloriesPerServing, n.ProteinG, n.CarbsG, n.FatG, n.FiberG, n.Servings)
	if err != nil {
		return fmt.Errorf("failed to save nutrition: %w", err)
	}
	return nil
}

type recipeRecord struct {
	Summary
	IngredientsJSON []byte `db:"ingredients"`
}

func (r *recipeRecord) summary() (*Summary, error) {
	s := r.Summary
	if len(r.IngredientsJSON) > 0 {
		if err := json.Unmarshal(r.IngredientsJSON, &s.Ingredients); err != nil {
			return nil, fmt.Errorf("failed to unmarshal ingredients: %w", err)
		}
	}
	if s.Ingredients == nil {
		s.Ingredients = []string{}
	}
	return &s, nil
}

const recipeColumns = "r.id, r.user_id, r.title, r.description, r.ingredients, r.is_published, r.created_at"

// GetRecipe retrieves a recipe row visible to viewer.
func (s *PostgresStore) GetRecipe(ctx context.Context, viewer, id string) (*Summary, error) {
	var rec recipeRecord
	err := s.db.GetContext(ctx, &rec,
		"SELECT "+recipeColumns+" FROM recipes r WHERE r.id = $1 AND (r.is_published OR r.user_id = $2)", id, viewer)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil // Recipe not found
		}
		return nil, fmt.Errorf("failed to get recipe: %w", err)
	}
	return rec.summary()
}

// ListSteps returns the steps of a recipe ordered by step number.
func (s *PostgresStore) ListSteps(ctx context.Context, recipeID string) ([]StepRow, error) {
	var steps []StepRow
	err := s.db.SelectContext(ctx, &steps,
		"SELECT id, recipe_id, step_number, title, description, COALESCE(duration_minutes, 0) AS duration_minutes FROM recipe_steps WHERE recipe_id = $1 ORDER BY step_number ASC",
		recipeID)
	if err != nil {
		return nil, fmt.Errorf("failed to get steps: %w", err)
	}
	return steps, nil
}

// ListStepTools returns the tool names of one step.
func (s *PostgresStore) ListStepTools(ctx context.Context, stepID string) ([]string, error) {
	tools := []string{}
	if err := s.db.SelectContext(ctx, &tools, "SELECT tool_name FROM step_tools WHERE step_id = $1 ORDER BY id", stepID); err != nil {
		return nil, fmt.Errorf("failed to get step tools: %w", err)
	}
	return tools, nil
}

// GetNutrition returns the nutrition of a recipe, or nil if none was stored.
func (s *PostgresStore) GetNutrition(ctx context.Context, recipeID string) (*NutritionInfo, error) {
	var n NutritionInfo
	err := s.db.GetContext(ctx, &n,
		"SELECT calories_per_serving, protein_g, carbs_g, fat_g, fiber_g, servings FROM nutrition_info WHERE recipe_id = $1", recipeID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get nutrition: %w", err)
	}
	return &n, nil
}

// SetPublished updates the visibility of a recipe owned by owner.
func (s *PostgresStore) SetPublished(ctx context.Context, owner, id string, published bool) error {
	res, err := s.db.ExecContext(ctx, "UPDATE recipes SET is_published = $1 WHERE id = $2 AND user_id = $3", published, id, owner)
	if err != nil {
		return fmt.Errorf("failed to update recipe: %w", err)
	}
	return requireRow(res)
}

// DeleteRecipe deletes a recipe owned by owner; dependent rows cascade.
func (s *PostgresStore) DeleteRecipe(ctx context.Context, owner, id string) error {
	res, err := s.db.ExecContext(ctx, "DELETE FROM recipes WHERE id = $1 AND user_id = $2", id, owner)
	if err != nil {
		return fmt.Errorf("failed to delete recipe: %w", err)
	}
	return requireRow(res)
}

func requireRow(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read affected rows: %w", err)
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *PostgresStore) listSummaries(ctx context.Context, query string, args ...interface{}) ([]*Summary, error) {
	var records []recipeRecord
	if err := s.db.SelectContext(ctx, &records, query, args...); err != nil {
		return nil, fmt.Errorf("failed to list recipes: %w", err)
	}
	summaries := make([]*Summary, 0, len(records))
	for i := range records {
		sum, err := records[i].summary()
		if err != nil {
			return nil, err
		}
		summaries = append(summaries, sum)
	}
	return summaries, nil
}

// ListByOwner returns the recipes created by owner, newest first.
func (s *PostgresStore) ListByOwner(ctx context.Context, owner string) ([]*Summary, error) {
	return s.listSummaries(ctx, "SELECT "+recipeColumns+" FROM recipes r WHERE r.user_id = $1 ORDER BY r.created_at DESC", owner)
}

// ListPublished returns every published recipe, newest first.
func (s *PostgresStore) ListPublished(ctx context.Context) ([]*Summary, error) {
	return s.listSummaries(ctx, "SELECT "+recipeColumns+" FROM recipes r WHERE r.is_published ORDER BY r.created_at DESC")
}

// AddBookmark saves a visible recipe to owner's bookmarks. Repeated calls are no-ops.
func (s *PostgresStore) AddBookmark(ctx context.Context, owner, recipeID string) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO saved_recipes (user_id, recipe_id)
		SELECT $1, r.id FROM recipes r WHERE r.id = $2 AND (r.is_published OR r.user_id = $1)
		ON CONFLICT (user_id, recipe_id) DO NOTHING`,
		owner, recipeID)
	if err != nil {
		return fmt.Errorf("failed to save bookmark: %w", err)
	}
	return nil
}

// ListBookmarks returns the recipes owner bookmarked, most recently saved first.
func (s *PostgresStore) ListBookmarks(ctx context.Context, owner string) ([]*Summary, error) {
	return s.listSummaries(ctx,
		"SELECT "+recipeColumns+" FROM saved_recipes b JOIN recipes r ON r.id = b.recipe_id WHERE b.user_id = $1 AND (r.is_published OR r.user_id = $1) ORDER BY b.created_at DESC",
		owner)
}

// SaveNutrition upserts the nutrition of a recipe owned by owner.
func (s *PostgresStore) SaveNutrition(ctx context.Context, owner, recipeID string, n *NutritionInfo) error {
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO nutrition_info (recipe_id, calories_per_serving, protein_g, carbs_g, fat_g, fiber_g, servings)
		SELECT r.id, $3, $4, $5, $6, $7, $8 FROM recipes r WHERE r.id = $1 AND r.user_id = $2
		ON CONFLICT (recipe_id) DO UPDATE SET
			calories_per_serving = EXCLUDED.calories_per_serving,
			protein_g = EXCLUDED.protein_g,
			carbs_g = EXCLUDED.carbs_g,
			fat_g = EXCLUDED.fat_g,
			fiber_g = EXCLUDED.fiber_g,
			servings = EXCLUDED.servings`,
		recipeID, owner, n.CaloriesPerServing, n.ProteinG, n.CarbsG, n.FatG, n.FiberG, n.Servings)
	if err != nil {
		return fmt.Errorf("failed to save nutrition: %w", err)
	}
	return requireRow(res)
}

// UpsertRating stores r, replacing an earlier rating by the same user.
func (s *PostgresStore) UpsertRating(ctx context.Context, r *Rating) error {
	err := s.db.QueryRowxContext(ctx,
		`INSERT INTO recipe_ratings (recipe_id, user_id, rating, review)
		SELECT rec.id, $2, $3, NULLIF($4, '') FROM recipes rec WHERE rec.id = $1 AND (rec.is_published OR rec.user_id = $2)
		ON CONFLICT (recipe_id, user_id) DO UPDATE SET rating = EXCLUDED.rating, review = EXCLUDED.review, created_at = now()
		RETURNING created_at`,
		r.RecipeID, r.UserID, r.Score, r.Review,
	).Scan(&r.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return ErrNotFound
		}
		return fmt.Errorf("failed to save rating: %w", err)
	}
	return nil
}

// ListRatings returns the ratings of a recipe, newest first.
func (s *PostgresStore) ListRatings(ctx context.Context, recipeID string) ([]Rating, error) {
	ratings := []Rating{}
	err := s.db.SelectContext(ctx, &ratings,
		"SELECT recipe_id, user_id, rating, COALESCE(review, '') AS review, created_at FROM recipe_ratings WHERE recipe_id = $1 ORDER BY created_at DESC",
		recipeID)
	if err != nil {
		return nil, fmt.Errorf("failed to get ratings: %w", err)
	}
	return ratings, nil
}
