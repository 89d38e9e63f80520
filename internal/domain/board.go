package domain

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

// Board is the minimal read-side view of a board the worker needs. Board CRUD
// and its optimistic-concurrency model live outside this service.
type Board struct {
	ID    uuid.UUID `json:"id"`
	OrgID uuid.UUID `json:"org_id"`
	Name  string    `json:"name"`
}

// Card is the minimal read-side view of a card the worker needs.
type Card struct {
	ID          uuid.UUID `json:"id"`
	OrgID       uuid.UUID `json:"org_id"`
	BoardID     uuid.UUID `json:"board_id"`
	ListID      uuid.UUID `json:"list_id"`
	Title       string    `json:"title"`
	Description string    `json:"description"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// IndexableContent renders the card's text for document indexing. The title
// always appears so cards with no description still produce a usable chunk.
func (c *Card) IndexableContent() string {
	if strings.TrimSpace(c.Description) == "" {
		return c.Title
	}
	return c.Title + "\n\n" + c.Description
}

// OrgMember links a user to an organization with a role and an optional
// external chat identity (e.g. a Discord user id) used to resolve thread
// participants to internal user ids.
type OrgMember struct {
	OrgID            uuid.UUID `json:"org_id"`
	UserID           uuid.UUID `json:"user_id"`
	Role             Role      `json:"role"`
	ExternalIdentity string    `json:"external_identity,omitempty"`
}
