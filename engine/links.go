package engine

import (
	"context"
	"net/url"
	"strings"

	"github.com/google/uuid"

	"github.com/ahmadzakiakmal/timetrack/repository/models"
)

// CreateLink attaches a reference URL to a task.
func (e *Engine) CreateLink(ctx context.Context, ownerID, taskID, rawURL, title string) (*models.TaskLink, error) {
	rawURL = strings.TrimSpace(rawURL)
	if rawURL == "" {
		return nil, validationErr("link URL is required")
	}
	parsed, err := url.Parse(rawURL)
	if err != nil || parsed.Scheme == "" || parsed.Host == "" {
		return nil, validationErr("invalid URL format")
	}

	link := &models.TaskLink{
		ID:        uuid.NewString(),
		TaskID:    taskID,
		OwnerID:   ownerID,
		URL:       rawURL,
		Title:     strings.TrimSpace(title),
		CreatedAt: e.clock.Now(),
	}
	err = e.store.Atomic(ctx, func(tx Store) error {
		if _, err := tx.TaskByID(ctx, ownerID, taskID); err != nil {
			return wrapErr(err, "task not found")
		}
		if err := tx.InsertLink(ctx, link); err != nil {
			return wrapErr(err, "failed to create link")
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return link, nil
}

// ListLinks returns a task's links in creation order.
func (e *Engine) ListLinks(ctx context.Context, ownerID, taskID string) ([]models.TaskLink, error) {
	if _, err := e.store.TaskByID(ctx, ownerID, taskID); err != nil {
		return nil, wrapErr(err, "task not found")
	}
	links, err := e.store.LinksByTask(ctx, taskID)
	if err != nil {
		return nil, wrapErr(err, "failed to list links")
	}
	return links, nil
}

func (e *Engine) DeleteLink(ctx context.Context, ownerID, linkID string) error {
	return e.store.Atomic(ctx, func(tx Store) error {
		if _, err := tx.LinkByID(ctx, ownerID, linkID); err != nil {
			return wrapErr(err, "link not found")
		}
		if err := tx.DeleteLink(ctx, ownerID, linkID); err != nil {
			return wrapErr(err, "failed to delete link")
		}
		return nil
	})
}
