package recipe

import (
	"context"
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"
)

// Compile-time interface checks.
var (
	_ Store = (*MemoryStore)(nil)
	_ Store = (*PostgresStore)(nil)
)

type memRecipe struct {
	Summary
	seq int64
}

type toolRow struct {
	StepID string
	Name   string
}

type ratingKey struct {
	recipeID string
	userID   string
}

type memRating struct {
	Rating
	seq int64
}

type bookmark struct {
	owner    string
	recipeID string
	seq      int64
}

// MemoryStore is an in-memory Store used for local runs and tests. Safe for
// concurrent access.
type MemoryStore struct {
	mu        sync.RWMutex
	seq       int64
	recipes   map[string]*memRecipe
	steps     []StepRow
	tools     []toolRow
	nutrition map[string]NutritionInfo
	ratings   map[ratingKey]*memRating
	bookmarks []bookmark
	log       *zap.Logger
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore(log *zap.Logger) *MemoryStore {
	return &MemoryStore{
		recipes:   make(map[string]*memRecipe),
		nutrition: make(map[string]NutritionInfo),
		ratings:   make(map[ratingKey]*memRating),
		log:       log,
	}
}

// memTx stages writes until the transaction function returns.
type memTx struct {
	recipes   []Summary
	steps     []StepRow
	tools     []toolRow
	nutrition map[string]NutritionInfo
}

func (t *memTx) InsertRecipe(ctx context.Context, r *Summary) error {
	r.CreatedAt = time.Now().UTC()
	cp := *r
	cp.Ingredients = append([]string{}, r.Ingredients...)
	t.recipes = append(t.recipes, cp)
	return nil
}

func (t *memTx) InsertStep(ctx context.Context, s *StepRow) error {
	t.steps = append(t.steps, *s)
	return nil
}

func (t *memTx) InsertTool(ctx context.Context, stepID, name string) error {
	t.tools = append(t.tools, toolRow{StepID: stepID, Name: name})
	return nil
}

func (t *memTx) UpsertNutrition(ctx context.Context, recipeID string, n *NutritionInfo) error {
	t.nutrition[recipeID] = *n
	return nil
}

// InTx applies the staged writes of fn only if it returns nil.
func (s *MemoryStore) InTx(ctx context.Context, fn func(Tx) error) error {
	tx := &memTx{nutrition: make(map[string]NutritionInfo)}
	if err := fn(tx); err != nil {
		s.log.Debug("memory transaction rolled back", zap.Error(err))
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	for _, r := range tx.recipes {
		s.seq++
		s.recipes[r.ID] = &memRecipe{Summary: r, seq: s.seq}
	}
	s.steps = append(s.steps, tx.steps...)
	s.tools = append(s.tools, tx.tools...)
	for id, n := range tx.nutrition {
		s.nutrition[id] = n
	}
	return nil
}

func copySummary(r *memRecipe) *Summary {
	cp := r.Summary
	cp.Ingredients = append([]string{}, r.Ingredients...)
	return &cp
}

func visible(r *memRecipe, viewer string) bool {
	return r.IsPublished || (viewer != "" && r.OwnerID == viewer)
}

// GetRecipe retrieves a recipe visible to viewer.
func (s *MemoryStore) GetRecipe(ctx context.Context, viewer, id string) (*Summary, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	r, ok := s.recipes[id]
	if !ok || !visible(r, viewer) {
		return nil, nil
	}
	return copySummary(r), nil
}

// ListSteps returns the steps of a recipe ordered by step number.
func (s *MemoryStore) ListSteps(ctx context.Context, recipeID string) ([]StepRow, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []StepRow
	for _, st := range s.steps {
		if st.RecipeID == recipeID {
			out = append(out, st)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Number < out[j].Number })
	return out, nil
}

// ListStepTools returns the tool names of one step in insertion order.
func (s *MemoryStore) ListStepTools(ctx context.Context, stepID string) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	tools := []string{}
	for _, t := range s.tools {
		if t.StepID == stepID {
			tools = append(tools, t.Name)
		}
	}
	return tools, nil
}

// GetNutrition returns the nutrition of a recipe, or nil if none was stored.
func (s *MemoryStore) GetNutrition(ctx context.Context, recipeID string) (*NutritionInfo, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	n, ok := s.nutrition[recipeID]
	if !ok {
		return nil, nil
	}
	return &n, nil
}

// SetPublished updates the visibility of a recipe owned by owner.
func (s *MemoryStore) SetPublished(ctx context.Context, owner, id string, published bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	r, ok := s.recipes[id]
	if !ok || r.OwnerID != owner {
		return ErrNotFound
	}
	r.IsPublished = published
	return nil
}

// DeleteRecipe removes a recipe owned by owner together with everything that
// references it.
func (s *MemoryStore) DeleteRecipe(ctx context.Context, owner, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	r, ok := s.recipes[id]
	if !ok || r.OwnerID != owner {
		return ErrNotFound
	}
	delete(s.recipes, id)
	delete(s.nutrition, id)

	stepIDs := make(map[string]bool)
	steps := s.steps[:0]
	for _, st := range s.steps {
		if st.RecipeID == id {
			stepIDs[st.ID] = true
			continue
		}
		steps = append(steps, st)
	}
	s.steps = steps

	tools := s.tools[:0]
	for _, t := range s.tools {
		if !stepIDs[t.StepID] {
			tools = append(tools, t)
		}
	}
	s.tools = tools

	for k := range s.ratings {
		if k.recipeID == id {
			delete(s.ratings, k)
		}
	}
	marks := s.bookmarks[:0]
	for _, b := range s.bookmarks {
		if b.recipeID != id {
			marks = append(marks, b)
		}
	}
	s.bookmarks = marks
	s.log.Debug("deleted recipe", zap.String("recipe_id", id))
	return nil
}

func (s *MemoryStore) newestFirst(match func(*memRecipe) bool) []*Summary {
	var rs []*memRecipe
	for _, r := range s.recipes {
		if match(r) {
			rs = append(rs, r)
		}
	}
	sort.Slice(rs, func(i, j int) bool { return rs[i].seq > rs[j].seq })
	out := make([]*Summary, 0, len(rs))
	for _, r := range rs {
		out = append(out, copySummary(r))
	}
	return out
}

// ListByOwner returns the recipes created by owner, newest first.
func (s *MemoryStore) ListByOwner(ctx context.Context, owner string) ([]*Summary, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.newestFirst(func(r *memRecipe) bool { return r.OwnerID == owner }), nil
}

// ListPublished returns every published recipe, newest first.
func (s *MemoryStore) ListPublished(ctx context.Context) ([]*Summary, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.newestFirst(func(r *memRecipe) bool { return r.IsPublished }), nil
}

// AddBookmark saves a visible recipe to owner's bookmarks. Repeated calls are no-ops.
func (s *MemoryStore) AddBookmark(ctx context.Context, owner, recipeID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	r, ok := s.recipes[recipeID]
	if !ok || !visible(r, owner) {
		return nil
	}
	for _, b := range s.bookmarks {
		if b.owner == owner && b.recipeID == recipeID {
			return nil
		}
	}
	s.seq++
	s.bookmarks = append(s.bookmarks, bookmark{owner: owner, recipeID: recipeID, seq: s.seq})
	return nil
}

// ListBookmarks returns the recipes owner bookmarked, most recently saved first.
func (s *MemoryStore) ListBookmarks(ctx context.Context, owner string) ([]*Summary, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var marks []bookmark
	for _, b := range s.bookmarks {
		if b.owner == owner {
			marks = append(marks, b)
		}
	}
	sort.Slice(marks, func(i, j int) bool { return marks[i].seq > marks[j].seq })

	out := make([]*Summary, 0, len(marks))
	for _, b := range marks {
		if r, ok := s.recipes[b.recipeID]; ok && visible(r, owner) {
			out = append(out, copySummary(r))
		}
	}
	return out, nil
}

// SaveNutrition upserts the nutrition of a recipe owned by owner.
func (s *MemoryStore) SaveNutrition(ctx context.Context, owner, recipeID string, n *NutritionInfo) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	r, ok := s.recipes[recipeID]
	if !ok || r.OwnerID != owner {
		return ErrNotFound
	}
	s.nutrition[recipeID] = *n
	return nil
}

// UpsertRating stores r, replacing an earlier rating by the same user.
func (s *MemoryStore) UpsertRating(ctx context.Context, r *Rating) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.recipes[r.RecipeID]
	if !ok || !visible(rec, r.UserID) {
		return ErrNotFound
	}
	s.seq++
	r.CreatedAt = time.Now().UTC()
	s.ratings[ratingKey{recipeID: r.RecipeID, userID: r.UserID}] = &memRating{Rating: *r, seq: s.seq}
	return nil
}

// ListRatings returns the ratings of a recipe, newest first.
func (s *MemoryStore) ListRatings(ctx context.Context, recipeID string) ([]Rating, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var rs []*memRating
	for k, r := range s.ratings {
		if k.recipeID == recipeID {
			rs = append(rs, r)
		}
	}
	sort.Slice(rs, func(i, j int) bool { return rs[i].seq > rs[j].seq })
	out := make([]Rating, 0, len(rs))
	for _, r := range rs {
		out = append(out, r.Rating)
	}
	return out, nil
}
