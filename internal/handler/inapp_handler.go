package handler

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/kursadbilgin/notification-dispatcher/internal/domain"
	"github.com/kursadbilgin/notification-dispatcher/internal/stats"
)

type InboxService interface {
	List(ctx context.Context, userID string, unreadOnly bool, page, pageSize int) ([]domain.InAppNotification, int64, error)
	UnreadCount(ctx context.Context, userID string) (int64, error)
	MarkRead(ctx context.Context, id string) (*domain.InAppNotification, error)
}

// StatsReader exposes per-recipient delivery counters.
type StatsReader interface {
	Snapshot(recipient string) stats.Snapshot
}

type inAppNotificationResponse struct {
	ID        string            `json:"id"`
	LogID     string            `json:"logId,omitempty"`
	UserID    string            `json:"userId"`
	Title     string            `json:"title,omitempty"`
	Message   string            `json:"message"`
	Type      string            `json:"type"`
	Priority  string            `json:"priority"`
	Metadata  map[string]string `json:"metadata,omitempty"`
	IsRead    bool              `json:"isRead"`
	CreatedAt time.Time         `json:"createdAt"`
	ReadAt    *time.Time        `json:"readAt,omitempty"`
}

type listInAppResponse struct {
	Data []inAppNotificationResponse `json:"data"`
	Meta listMeta                    `json:"meta"`
}

func RegisterInboxRoutes(router fiber.Router, inbox InboxService) error {
	if inbox == nil {
		return fmt.Errorf("inbox service is required")
	}

	v1 := router.Group("/v1/inapp")
	v1.Get("/users/:userId", listInbox(inbox))
	v1.Get("/users/:userId/unread-count", unreadCount(inbox))
	v1.Post("/:id/read", markRead(inbox))
	return nil
}

func RegisterStatsRoutes(router fiber.Router, reader StatsReader) error {
	if reader == nil {
		return fmt.Errorf("stats reader is required")
	}

	router.Get("/v1/stats/:recipient", func(c *fiber.Ctx) error {
		recipient := strings.TrimSpace(c.Params("recipient"))
		if recipient == "" {
			return fmt.Errorf("%w: recipient is required", domain.ErrValidation)
		}
		return c.Status(fiber.StatusOK).JSON(reader.Snapshot(recipient))
	})
	return nil
}

func listInbox(inbox InboxService) fiber.Handler {
	return func(c *fiber.Ctx) error {
		page := c.QueryInt("page", defaultPage)
		pageSize := c.QueryInt("pageSize", defaultPageSize)
		if page < 1 {
			return fmt.Errorf("%w: page must be >= 1", domain.ErrValidation)
		}
		if pageSize < 1 || pageSize > maxPageSize {
			return fmt.Errorf("%w: pageSize must be between 1 and %d", domain.ErrValidation, maxPageSize)
		}

		items, total, err := inbox.List(c.Context(), c.Params("userId"), c.QueryBool("unreadOnly", false), page, pageSize)
		if err != nil {
			return err
		}

		data := make([]inAppNotificationResponse, 0, len(items))
		for i := range items {
			data = append(data, toInAppResponse(&items[i]))
		}
		return c.Status(fiber.StatusOK).JSON(listInAppResponse{
			Data: data,
			Meta: listMeta{Page: page, PageSize: pageSize, Total: total},
		})
	}
}

func unreadCount(inbox InboxService) fiber.Handler {
	return func(c *fiber.Ctx) error {
		userID := strings.TrimSpace(c.Params("userId"))
		count, err := inbox.UnreadCount(c.Context(), userID)
		if err != nil {
			return err
		}
		return c.Status(fiber.StatusOK).JSON(fiber.Map{
			"userId": userID,
			"count":  count,
		})
	}
}

func markRead(inbox InboxService) fiber.Handler {
	return func(c *fiber.Ctx) error {
		n, err := inbox.MarkRead(c.Context(), c.Params("id"))
		if err != nil {
			return err
		}
		return c.Status(fiber.StatusOK).JSON(toInAppResponse(n))
	}
}

func toInAppResponse(n *domain.InAppNotification) inAppNotificationResponse {
	return inAppNotificationResponse{
		ID:        n.ID,
		LogID:     n.LogID,
		UserID:    n.UserID,
		Title:     n.Title,
		Message:   n.Message,
		Type:      n.Type.String(),
		Priority:  n.Priority.String(),
		Metadata:  n.Metadata,
		IsRead:    n.IsRead,
		CreatedAt: n.CreatedAt,
		ReadAt:    n.ReadAt,
	}
}
