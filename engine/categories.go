package engine

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/ahmadzakiakmal/timetrack/repository/models"
)

// CategoryInput carries the writable category fields.
type CategoryInput struct {
	Name        string
	Color       string
	Description string
}

// CreateCategory validates and persists a category. Names are unique
// per owner.
func (e *Engine) CreateCategory(ctx context.Context, ownerID string, in CategoryInput) (*models.Category, error) {
	name := strings.TrimSpace(in.Name)
	if name == "" {
		return nil, validationErr("category name is required")
	}
	if in.Color == "" {
		in.Color = "#007bff"
	}

	now := e.clock.Now()
	category := &models.Category{
		ID:          uuid.NewString(),
		OwnerID:     ownerID,
		Name:        name,
		Color:       in.Color,
		Description: strings.TrimSpace(in.Description),
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	err := e.store.Atomic(ctx, func(tx Store) error {
		if _, err := tx.CategoryByName(ctx, ownerID, name); err == nil {
			return validationErr(fmt.Sprintf("category %q already exists", name))
		}
		if err := tx.InsertCategory(ctx, category); err != nil {
			return wrapErr(err, "failed to create category")
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return category, nil
}

// UpdateCategoryInput is a partial category update.
type UpdateCategoryInput struct {
	Name        *string
	Color       *string
	Description *string
}

func (e *Engine) UpdateCategory(ctx context.Context, ownerID, categoryID string, in UpdateCategoryInput) (*models.Category, error) {
	var updated *models.Category
	err := e.store.Atomic(ctx, func(tx Store) error {
		category, err := tx.CategoryByID(ctx, ownerID, categoryID)
		if err != nil {
			return wrapErr(err, "category not found")
		}
		if in.Name != nil {
			name := strings.TrimSpace(*in.Name)
			if name == "" {
				return validationErr("category name is required")
			}
			if name != category.Name {
				if _, err := tx.CategoryByName(ctx, ownerID, name); err == nil {
					return validationErr(fmt.Sprintf("category %q already exists", name))
				}
				category.Name = name
			}
		}
		if in.Color != nil {
			category.Color = *in.Color
		}
		if in.Description != nil {
			category.Description = strings.TrimSpace(*in.Description)
		}
		category.UpdatedAt = e.clock.Now()
		if err := tx.UpdateCategory(ctx, category); err != nil {
			return wrapErr(err, "failed to update category")
		}
		updated = category
		return nil
	})
	if err != nil {
		return nil, err
	}
	return updated, nil
}

// DeleteCategory removes the category unless any task still references
// it.
func (e *Engine) DeleteCategory(ctx context.Context, ownerID, categoryID string) error {
	return e.store.Atomic(ctx, func(tx Store) error {
		if _, err := tx.CategoryByID(ctx, ownerID, categoryID); err != nil {
			return wrapErr(err, "category not found")
		}
		count, err := tx.CountTasksByCategory(ctx, ownerID, categoryID)
		if err != nil {
			return wrapErr(err, "failed to count referencing tasks")
		}
		if count > 0 {
			return invalidStateErr(fmt.Sprintf("category is referenced by %d task(s)", count))
		}
		if err := tx.DeleteCategory(ctx, ownerID, categoryID); err != nil {
			return wrapErr(err, "failed to delete category")
		}
		return nil
	})
}

func (e *Engine) GetCategory(ctx context.Context, ownerID, categoryID string) (*models.Category, error) {
	category, err := e.store.CategoryByID(ctx, ownerID, categoryID)
	if err != nil {
		return nil, wrapErr(err, "category not found")
	}
	return category, nil
}

// ListCategories returns the owner's categories sorted by name.
func (e *Engine) ListCategories(ctx context.Context, ownerID string) ([]models.Category, error) {
	categories, err := e.store.ListCategories(ctx, ownerID)
	if err != nil {
		return nil, wrapErr(err, "failed to list categories")
	}
	return categories, nil
}
