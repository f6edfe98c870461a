package domain

import (
	"fmt"
	"time"
)

type LeadStatus string

const (
	LeadNew       LeadStatus = "new"
	LeadContacted LeadStatus = "contacted"
	LeadQuoted    LeadStatus = "quoted"
	LeadWon       LeadStatus = "won"
	LeadLost      LeadStatus = "lost"
)

// leadTransitions is the forward pipeline. Any open lead may be lost,
// but won and lost are terminal.
var leadTransitions = map[LeadStatus][]LeadStatus{
	LeadNew:       {LeadContacted, LeadLost},
	LeadContacted: {LeadQuoted, LeadLost},
	LeadQuoted:    {LeadWon, LeadLost},
	LeadWon:       {},
	LeadLost:      {},
}

func ValidLeadStatus(status LeadStatus) bool {
	_, ok := leadTransitions[status]
	return ok
}

func CanTransition(from, to LeadStatus) bool {
	for _, next := range leadTransitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

type Lead struct {
	ID          string     `json:"id"`
	AssignedTo  string     `json:"assigned_to"`
	Name        string     `json:"name"`
	Phone       string     `json:"phone,omitempty"`
	Email       string     `json:"email,omitempty"`
	Address     string     `json:"address,omitempty"`
	Description string     `json:"description,omitempty"`
	Status      LeadStatus `json:"status"`
	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`
}

type Activity struct {
	ID         string     `json:"id"`
	LeadID     string     `json:"lead_id"`
	AssignedTo string     `json:"assigned_to"`
	Kind       string     `json:"kind"`
	Note       string     `json:"note,omitempty"`
	DueAt      time.Time  `json:"due_at"`
	DoneAt     *time.Time `json:"done_at,omitempty"`
	CreatedAt  time.Time  `json:"created_at"`
}

func (a Activity) Overdue(now time.Time) bool {
	return a.DoneAt == nil && a.DueAt.Before(now)
}

const (
	ContentQuote   = "quote"
	ContentPhoto   = "photo"
	ContentComment = "comment"
)

type QuoteContent struct {
	QuoteID    string `json:"quote_id"`
	TotalCents int64  `json:"total_cents"`
}

type PhotoContent struct {
	FileID  string `json:"file_id"`
	Caption string `json:"caption,omitempty"`
}

type CommentContent struct {
	Text string `json:"text"`
}

// DocumentContent is a tagged union. Exactly one payload matching Type
// must be set.
type DocumentContent struct {
	Type    string          `json:"type"`
	Quote   *QuoteContent   `json:"quote,omitempty"`
	Photo   *PhotoContent   `json:"photo,omitempty"`
	Comment *CommentContent `json:"comment,omitempty"`
}

func (c DocumentContent) Validate() error {
	set := 0
	if c.Quote != nil {
		set++
	}
	if c.Photo != nil {
		set++
	}
	if c.Comment != nil {
		set++
	}
	if set != 1 {
		return fmt.Errorf("document content must carry exactly one payload, got %d", set)
	}
	switch c.Type {
	case ContentQuote:
		if c.Quote == nil {
			return fmt.Errorf("content type %q requires a quote payload", c.Type)
		}
	case ContentPhoto:
		if c.Photo == nil {
			return fmt.Errorf("content type %q requires a photo payload", c.Type)
		}
		if c.Photo.FileID == "" {
			return fmt.Errorf("photo content requires a file id")
		}
	case ContentComment:
		if c.Comment == nil {
			return fmt.Errorf("content type %q requires a comment payload", c.Type)
		}
		if c.Comment.Text == "" {
			return fmt.Errorf("comment content requires text")
		}
	default:
		return fmt.Errorf("unknown document content type %q", c.Type)
	}
	return nil
}

type Document struct {
	ID        string          `json:"id"`
	OwnerID   string          `json:"owner_id"`
	LeadID    string          `json:"lead_id,omitempty"`
	Title     string          `json:"title"`
	Content   DocumentContent `json:"content"`
	CreatedAt time.Time       `json:"created_at"`
}

// Brief is the morning summary for one user.
type Brief struct {
	GeneratedAt       time.Time  `json:"generated_at"`
	OverdueActivities []Activity `json:"overdue_activities"`
	StaleLeads        []Lead     `json:"stale_leads"`
}

// StaleLeadAge is how long a lead may sit in an open status before the
// morning brief flags it.
const StaleLeadAge = 7 * 24 * time.Hour
