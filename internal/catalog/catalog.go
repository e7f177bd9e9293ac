// Copyright (c) 2025-2026 Fernando "ferabreu" Mees Abreu
// SPDX-License-Identifier: GPL-2.0-only

// Package catalog manages the hierarchical category tree: slug-path
// resolution, breadcrumbs, descendant collection, and mutations guarded
// against cycles. Every traversal carries a visited-set guard so that a
// tree corrupted into a cycle terminates instead of looping forever.
package catalog

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/ferabreu/classifieds-go/internal/cache"
	"github.com/ferabreu/classifieds-go/internal/model"
	"github.com/ferabreu/classifieds-go/internal/store"
	"github.com/ferabreu/classifieds-go/internal/util"
)

// maxDepth caps upward walks; chains deeper than this are treated as
// cycles.
const maxDepth = 500

// Sentinel errors surfaced to handlers as validation messages.
var (
	ErrNotFound      = errors.New("category not found")
	ErrCycle         = errors.New("category cannot be its own ancestor")
	ErrHasListings   = errors.New("category or one of its subcategories contains listings")
	ErrEmptySlug     = errors.New("name produces an empty slug")
	ErrReservedSlug  = errors.New("slug is reserved for application routes")
	ErrDuplicateName = errors.New("a sibling category with this name already exists")
	ErrDuplicateSlug = errors.New("a sibling category with this slug already exists")
)

// Service provides category tree operations over the store, with the
// full category set cached between mutations.
type Service struct {
	db       *sql.DB
	queries  *store.Queries
	cache    cache.Cache
	cacheTTL time.Duration
}

// NewService creates a catalog service.
func NewService(db *sql.DB, c cache.Cache, cacheTTL time.Duration) *Service {
	return &Service{
		db:       db,
		queries:  store.New(db),
		cache:    c,
		cacheTTL: cacheTTL,
	}
}

// snapshot is an in-memory index of all categories.
type snapshot struct {
	all    []model.Category
	byID   map[int64]model.Category
	bySlug map[int64]map[string]int64 // parent id (0 for roots) -> slug -> id
}

// load returns the current category snapshot, from cache when possible.
func (s *Service) load(ctx context.Context) (*snapshot, error) {
	var categories []model.Category

	if data, ok := s.cache.Get(ctx, cache.KeyCategoryTree); ok {
		if err := json.Unmarshal(data, &categories); err != nil {
			slog.Warn("discarding corrupt category cache entry", "error", err)
			categories = nil
		}
	}

	if categories == nil {
		var err error
		categories, err = s.queries.ListCategories(ctx)
		if err != nil {
			return nil, err
		}
		if data, err := json.Marshal(categories); err == nil {
			s.cache.Set(ctx, cache.KeyCategoryTree, data, s.cacheTTL)
		}
	}

	return buildSnapshot(categories), nil
}

func buildSnapshot(categories []model.Category) *snapshot {
	snap := &snapshot{
		all:    categories,
		byID:   make(map[int64]model.Category, len(categories)),
		bySlug: make(map[int64]map[string]int64),
	}
	for _, c := range categories {
		snap.byID[c.ID] = c
		parent := int64(0)
		if c.ParentID.Valid {
			parent = c.ParentID.Int64
		}
		if snap.bySlug[parent] == nil {
			snap.bySlug[parent] = make(map[string]int64)
		}
		snap.bySlug[parent][c.Slug] = c.ID
	}
	return snap
}

// invalidate drops the cached snapshot after any mutation.
func (s *Service) invalidate(ctx context.Context) {
	s.cache.Delete(ctx, cache.KeyCategoryTree)
	s.cache.Delete(ctx, cache.KeyShowcase)
}

// ResolvePath walks a slash-separated slug path from the forest roots
// and returns the matching category, or ErrNotFound if any segment
// fails to match.
func (s *Service) ResolvePath(ctx context.Context, path string) (model.Category, error) {
	snap, err := s.load(ctx)
	if err != nil {
		return model.Category{}, err
	}

	parent := int64(0)
	var current model.Category
	matched := false

	for _, segment := range strings.Split(path, "/") {
		if segment == "" {
			continue
		}
		id, ok := snap.bySlug[parent][segment]
		if !ok {
			return model.Category{}, ErrNotFound
		}
		current = snap.byID[id]
		parent = id
		matched = true
	}

	if !matched {
		return model.Category{}, ErrNotFound
	}
	return current, nil
}

// Path returns the slash-separated slug path from the root to the
// category, the inverse of ResolvePath.
func (s *Service) Path(ctx context.Context, id int64) (string, error) {
	chain, err := s.Breadcrumb(ctx, id)
	if err != nil {
		return "", err
	}
	segments := make([]string, len(chain))
	for i, c := range chain {
		segments[i] = c.Slug
	}
	return strings.Join(segments, "/"), nil
}

// Breadcrumb returns the chain from the root to the category itself.
// A visited-set guard terminates the upward walk early if the stored
// tree contains a cycle.
func (s *Service) Breadcrumb(ctx context.Context, id int64) ([]model.Category, error) {
	snap, err := s.load(ctx)
	if err != nil {
		return nil, err
	}

	node, ok := snap.byID[id]
	if !ok {
		return nil, ErrNotFound
	}

	visited := map[int64]bool{}
	var chain []model.Category
	for {
		if visited[node.ID] {
			slog.Warn("cycle detected in category ancestry", "category_id", node.ID)
			break
		}
		visited[node.ID] = true
		chain = append(chain, node)

		if !node.ParentID.Valid {
			break
		}
		parent, ok := snap.byID[node.ParentID.Int64]
		if !ok {
			break
		}
		node = parent
	}

	// Reverse to root-first order.
	for i, j := 0, len(chain)-1; i < j; i, j = i+1, j-1 {
		chain[i], chain[j] = chain[j], chain[i]
	}
	return chain, nil
}

// FullPath returns a display label like "Electronics > Computers > Laptops".
func (s *Service) FullPath(ctx context.Context, id int64) (string, error) {
	chain, err := s.Breadcrumb(ctx, id)
	if err != nil {
		return "", err
	}
	names := make([]string, len(chain))
	for i, c := range chain {
		names[i] = c.Name
	}
	return strings.Join(names, " > "), nil
}

// DescendantIDs returns the category's ID plus the IDs of all its
// descendants, visited-set guarded against cycles.
func (s *Service) DescendantIDs(ctx context.Context, id int64) ([]int64, error) {
	snap, err := s.load(ctx)
	if err != nil {
		return nil, err
	}
	if _, ok := snap.byID[id]; !ok {
		return nil, ErrNotFound
	}

	children := make(map[int64][]int64)
	for _, c := range snap.all {
		if c.ParentID.Valid {
			children[c.ParentID.Int64] = append(children[c.ParentID.Int64], c.ID)
		}
	}

	visited := map[int64]bool{}
	var ids []int64
	var collect func(int64)
	collect = func(node int64) {
		if visited[node] {
			return
		}
		visited[node] = true
		ids = append(ids, node)
		for _, child := range children[node] {
			collect(child)
		}
	}
	collect(id)
	return ids, nil
}

// WouldCreateCycle walks upward from the candidate parent; revisiting
// the node itself, revisiting any ID already seen in the walk, or
// exceeding the depth cutoff all report a cycle.
func (s *Service) WouldCreateCycle(ctx context.Context, nodeID int64, newParentID sql.NullInt64) (bool, error) {
	if !newParentID.Valid {
		return false, nil
	}
	if newParentID.Int64 == nodeID {
		return true, nil
	}

	snap, err := s.load(ctx)
	if err != nil {
		return false, err
	}
	return wouldCreateCycle(snap, nodeID, newParentID.Int64), nil
}

func wouldCreateCycle(snap *snapshot, nodeID, candidateID int64) bool {
	visited := map[int64]bool{}
	current := candidateID

	for depth := 0; depth < maxDepth; depth++ {
		if current == nodeID || visited[current] {
			return true
		}
		visited[current] = true

		node, ok := snap.byID[current]
		if !ok || !node.ParentID.Valid {
			return false
		}
		current = node.ParentID.Int64
	}

	// Pathologically deep chains are treated as cycles.
	return true
}

// Input holds the admin-supplied fields for creating or editing a category.
type Input struct {
	Name     string
	Slug     string // Empty to derive from Name
	ParentID sql.NullInt64
	Position int64
}

// validate normalizes the input slug and checks name, slug, and sibling
// uniqueness against the snapshot. selfID is zero for creation.
func validate(snap *snapshot, in *Input, selfID int64) error {
	in.Name = strings.TrimSpace(in.Name)
	if in.Name == "" {
		return fmt.Errorf("category name must not be empty")
	}
	if utf8.RuneCountInString(in.Name) > 64 {
		return fmt.Errorf("category name cannot exceed 64 characters")
	}

	if in.Slug == "" {
		in.Slug = util.Slugify(in.Name)
	}
	if in.Slug == "" {
		return ErrEmptySlug
	}
	if !util.IsValidSlug(in.Slug) {
		return fmt.Errorf("invalid slug: %q", in.Slug)
	}
	if util.IsReservedSlug(in.Slug) {
		return ErrReservedSlug
	}

	if in.ParentID.Valid {
		if _, ok := snap.byID[in.ParentID.Int64]; !ok {
			return ErrNotFound
		}
	}

	// SQLite's unique indexes treat NULL parents as distinct, so
	// sibling uniqueness for roots is enforced here.
	parent := int64(0)
	if in.ParentID.Valid {
		parent = in.ParentID.Int64
	}
	for _, c := range snap.all {
		cParent := int64(0)
		if c.ParentID.Valid {
			cParent = c.ParentID.Int64
		}
		if cParent != parent || c.ID == selfID {
			continue
		}
		if strings.EqualFold(c.Name, in.Name) {
			return ErrDuplicateName
		}
		if c.Slug == in.Slug {
			return ErrDuplicateSlug
		}
	}

	return nil
}

// Create validates the input and inserts a new category.
func (s *Service) Create(ctx context.Context, in Input) (model.Category, error) {
	snap, err := s.load(ctx)
	if err != nil {
		return model.Category{}, err
	}
	if err := validate(snap, &in, 0); err != nil {
		return model.Category{}, err
	}

	now := time.Now()
	category, err := s.queries.CreateCategory(ctx, store.CreateCategoryParams{
		Name:      in.Name,
		Slug:      in.Slug,
		ParentID:  in.ParentID,
		Position:  in.Position,
		CreatedAt: now,
		UpdatedAt: now,
	})
	if err != nil {
		return model.Category{}, err
	}

	s.invalidate(ctx)
	return category, nil
}

// Update validates the input, re-checks the cycle guard inside the
// storage transaction (defense in depth against form bypass), and
// persists the change. A cycle detected at the commit layer aborts the
// transaction.
func (s *Service) Update(ctx context.Context, id int64, in Input) (model.Category, error) {
	snap, err := s.load(ctx)
	if err != nil {
		return model.Category{}, err
	}
	if _, ok := snap.byID[id]; !ok {
		return model.Category{}, ErrNotFound
	}
	if err := validate(snap, &in, id); err != nil {
		return model.Category{}, err
	}
	if in.ParentID.Valid && wouldCreateCycle(snap, id, in.ParentID.Int64) {
		return model.Category{}, ErrCycle
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return model.Category{}, fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	qtx := s.queries.WithTx(tx)

	// Commit-layer cycle check against the freshly read tree, not the
	// cached snapshot.
	fresh, err := qtx.ListCategories(ctx)
	if err != nil {
		return model.Category{}, err
	}
	if in.ParentID.Valid && wouldCreateCycle(buildSnapshot(fresh), id, in.ParentID.Int64) {
		return model.Category{}, ErrCycle
	}

	category, err := qtx.UpdateCategory(ctx, store.UpdateCategoryParams{
		ID:        id,
		Name:      in.Name,
		Slug:      in.Slug,
		ParentID:  in.ParentID,
		Position:  in.Position,
		UpdatedAt: time.Now(),
	})
	if err != nil {
		return model.Category{}, err
	}

	if err := tx.Commit(); err != nil {
		return model.Category{}, fmt.Errorf("commit: %w", err)
	}

	s.invalidate(ctx)
	return category, nil
}

// Delete removes a category and all its descendants. Rejected with
// ErrHasListings while any listing exists in the subtree.
func (s *Service) Delete(ctx context.Context, id int64) error {
	ids, err := s.DescendantIDs(ctx, id)
	if err != nil {
		return err
	}

	count, err := s.queries.CountListingsInCategories(ctx, ids)
	if err != nil {
		return err
	}
	if count > 0 {
		return ErrHasListings
	}

	if err := s.queries.DeleteCategory(ctx, id); err != nil {
		return err
	}

	s.invalidate(ctx)
	return nil
}

// Get returns a single category by ID.
func (s *Service) Get(ctx context.Context, id int64) (model.Category, error) {
	snap, err := s.load(ctx)
	if err != nil {
		return model.Category{}, err
	}
	category, ok := snap.byID[id]
	if !ok {
		return model.Category{}, ErrNotFound
	}
	return category, nil
}

// Children returns the direct children of a category (or the roots for
// id zero), ordered by position then name.
func (s *Service) Children(ctx context.Context, id int64) ([]model.Category, error) {
	snap, err := s.load(ctx)
	if err != nil {
		return nil, err
	}

	var children []model.Category
	for _, c := range snap.all {
		parent := int64(0)
		if c.ParentID.Valid {
			parent = c.ParentID.Int64
		}
		if parent == id {
			children = append(children, c)
		}
	}
	sortCategories(children)
	return children, nil
}

// FlatTree returns all categories depth-first with Depth annotated,
// suitable for indented dropdowns. Traversal is visited-set guarded.
func (s *Service) FlatTree(ctx context.Context) ([]model.Category, error) {
	snap, err := s.load(ctx)
	if err != nil {
		return nil, err
	}

	children := make(map[int64][]model.Category)
	var roots []model.Category
	for _, c := range snap.all {
		if c.ParentID.Valid {
			children[c.ParentID.Int64] = append(children[c.ParentID.Int64], c)
		} else {
			roots = append(roots, c)
		}
	}
	sortCategories(roots)
	for id := range children {
		sortCategories(children[id])
	}

	visited := map[int64]bool{}
	var flat []model.Category
	var walk func(node model.Category, depth int)
	walk = func(node model.Category, depth int) {
		if visited[node.ID] {
			return
		}
		visited[node.ID] = true
		node.Depth = depth
		flat = append(flat, node)
		for _, child := range children[node.ID] {
			walk(child, depth+1)
		}
	}
	for _, root := range roots {
		walk(root, 0)
	}
	return flat, nil
}

func sortCategories(categories []model.Category) {
	sort.SliceStable(categories, func(i, j int) bool {
		if categories[i].Position != categories[j].Position {
			return categories[i].Position < categories[j].Position
		}
		return categories[i].Name < categories[j].Name
	})
}
