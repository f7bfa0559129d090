package dto

import (
	"strings"
	"time"

	"github.com/spec-kit/client-roster/internal/domain"
	"github.com/spec-kit/client-roster/internal/roster"
	"github.com/spec-kit/client-roster/internal/service"
	apperrors "github.com/spec-kit/client-roster/pkg/util/errorutil"
)

const reminderDateLayout = "2006-01-02"

// ReminderPayload is the wire form of a client reminder. Date uses YYYY-MM-DD.
type ReminderPayload struct {
	Enabled bool    `json:"enabled"`
	Date    *string `json:"date,omitempty"`
	Time    string  `json:"time,omitempty"`
	Note    string  `json:"note,omitempty"`
}

// CreateClientRequest payload for POST /clients.
type CreateClientRequest struct {
	ID            string           `json:"id,omitempty"`
	FirstName     string           `json:"first_name"`
	LastName      string           `json:"last_name"`
	CompanyName   string           `json:"company_name"`
	TaxID         string           `json:"nip"`
	Phone         string           `json:"phone"`
	Email         string           `json:"email"`
	Website       string           `json:"website"`
	Location      string           `json:"location"`
	Status        string           `json:"status"`
	LastContactAt *time.Time       `json:"last_contact_at,omitempty"`
	Notes         string           `json:"notes"`
	Reminder      *ReminderPayload `json:"reminder,omitempty"`
}

// BatchCreateRequest payload for POST /clients/batch.
type BatchCreateRequest struct {
	Clients []CreateClientRequest `json:"clients"`
}

// UpdateClientRequest payload for PATCH /clients/:id. Omitted fields are kept;
// an empty string clears an optional field.
type UpdateClientRequest struct {
	FirstName        *string          `json:"first_name,omitempty"`
	LastName         *string          `json:"last_name,omitempty"`
	CompanyName      *string          `json:"company_name,omitempty"`
	TaxID            *string          `json:"nip,omitempty"`
	Phone            *string          `json:"phone,omitempty"`
	Email            *string          `json:"email,omitempty"`
	Website          *string          `json:"website,omitempty"`
	Location         *string          `json:"location,omitempty"`
	Status           *string          `json:"status,omitempty"`
	LastContactAt    *time.Time       `json:"last_contact_at,omitempty"`
	ClearLastContact bool             `json:"clear_last_contact,omitempty"`
	Notes            *string          `json:"notes,omitempty"`
	Reminder         *ReminderPayload `json:"reminder,omitempty"`
	ClearReminder    bool             `json:"clear_reminder,omitempty"`
}

// ToDraft converts the request into a service draft.
func (r CreateClientRequest) ToDraft() (service.ClientDraft, error) {
	reminder, err := r.Reminder.toDomain()
	if err != nil {
		return service.ClientDraft{}, err
	}
	return service.ClientDraft{
		ID:            strings.TrimSpace(r.ID),
		FirstName:     r.FirstName,
		LastName:      r.LastName,
		CompanyName:   r.CompanyName,
		TaxID:         r.TaxID,
		Phone:         r.Phone,
		Email:         r.Email,
		Website:       r.Website,
		Location:      r.Location,
		Status:        domain.ClientStatus(strings.TrimSpace(r.Status)),
		LastContactAt: r.LastContactAt,
		Notes:         r.Notes,
		Reminder:      reminder,
	}, nil
}

// ToPatch converts the request into a domain patch.
func (r UpdateClientRequest) ToPatch() (domain.ClientPatch, error) {
	reminder, err := r.Reminder.toDomain()
	if err != nil {
		return domain.ClientPatch{}, err
	}
	patch := domain.ClientPatch{
		FirstName:        r.FirstName,
		LastName:         r.LastName,
		CompanyName:      r.CompanyName,
		TaxID:            r.TaxID,
		Phone:            r.Phone,
		Email:            r.Email,
		Website:          r.Website,
		Location:         r.Location,
		LastContactAt:    r.LastContactAt,
		ClearLastContact: r.ClearLastContact,
		Notes:            r.Notes,
		Reminder:         reminder,
		ClearReminder:    r.ClearReminder,
	}
	if r.Status != nil {
		status := domain.ClientStatus(strings.TrimSpace(*r.Status))
		patch.Status = &status
	}
	if patch.Empty() {
		return patch, apperrors.NewValidationError("no fields to update", nil)
	}
	return patch, nil
}

func (p *ReminderPayload) toDomain() (*domain.Reminder, error) {
	if p == nil {
		return nil, nil
	}
	reminder := &domain.Reminder{Enabled: p.Enabled, Time: strings.TrimSpace(p.Time), Note: strings.TrimSpace(p.Note)}
	if p.Date != nil && strings.TrimSpace(*p.Date) != "" {
		date, err := time.Parse(reminderDateLayout, strings.TrimSpace(*p.Date))
		if err != nil {
			return nil, apperrors.NewValidationError("reminder date must be YYYY-MM-DD", map[string]any{"field": "reminder.date"})
		}
		reminder.Date = &date
	}
	return reminder, nil
}

// ClientResponse is the wire form of a client record.
type ClientResponse struct {
	ID              string           `json:"id"`
	FirstName       *string          `json:"first_name"`
	LastName        *string          `json:"last_name"`
	CompanyName     *string          `json:"company_name"`
	TaxID           *string          `json:"nip"`
	Phone           *string          `json:"phone"`
	Email           *string          `json:"email"`
	Website         *string          `json:"website"`
	Location        *string          `json:"location"`
	Status          string           `json:"status"`
	StatusChangedAt time.Time        `json:"status_changed_at"`
	LastContactAt   *time.Time       `json:"last_contact_at"`
	OwnerID         *string          `json:"owner_id"`
	EditedBy        *string          `json:"edited_by"`
	Notes           string           `json:"notes"`
	Reminder        *ReminderPayload `json:"reminder"`
	CreatedAt       time.Time        `json:"created_at"`
	UpdatedAt       time.Time        `json:"updated_at"`
}

// NewClientResponse renders rec.
func NewClientResponse(rec domain.ClientRecord) ClientResponse {
	resp := ClientResponse{
		ID:              rec.ID,
		FirstName:       rec.FirstName,
		LastName:        rec.LastName,
		CompanyName:     rec.CompanyName,
		TaxID:           rec.TaxID,
		Phone:           rec.Phone,
		Email:           rec.Email,
		Website:         rec.Website,
		Location:        rec.Location,
		Status:          string(rec.Status),
		StatusChangedAt: rec.StatusChangedAt,
		LastContactAt:   rec.LastContactAt,
		OwnerID:         rec.OwnerID,
		EditedBy:        rec.EditedBy,
		Notes:           rec.Notes,
		CreatedAt:       rec.CreatedAt,
		UpdatedAt:       rec.UpdatedAt,
	}
	if rec.Reminder != nil {
		resp.Reminder = &ReminderPayload{Enabled: rec.Reminder.Enabled, Time: rec.Reminder.Time, Note: rec.Reminder.Note}
		if rec.Reminder.Date != nil {
			date := rec.Reminder.Date.Format(reminderDateLayout)
			resp.Reminder.Date = &date
		}
	}
	return resp
}

// OwnerResponse describes who owns a row from the actor's point of view.
type OwnerResponse struct {
	Kind    string  `json:"kind"`
	OwnerID *string `json:"owner_id,omitempty"`
	Name    string  `json:"name,omitempty"`
}

// StalenessResponse is the follow-up urgency of a row.
type StalenessResponse struct {
	Tier string `json:"tier"`
	Hint string `json:"hint,omitempty"`
}

// DisplayFields are contact fields rendered for humans.
type DisplayFields struct {
	CompanyName string `json:"company_name"`
	ContactName string `json:"contact_name"`
	Phone       string `json:"phone"`
	Email       string `json:"email"`
}

// RowResponse is one roster row.
type RowResponse struct {
	Client    ClientResponse    `json:"client"`
	Display   DisplayFields     `json:"display"`
	Owner     OwnerResponse     `json:"owner"`
	Staleness StalenessResponse `json:"staleness"`
	Pending   bool              `json:"pending"`
}

// PageMeta describes the page window.
type PageMeta struct {
	Total     int       `json:"total"`
	Page      int       `json:"page"`
	PageSize  int       `json:"page_size"`
	Sort      string    `json:"sort"`
	Direction string    `json:"direction"`
	FetchedAt time.Time `json:"fetched_at"`
}

// NewRowResponses renders decorated rows.
func NewRowResponses(rows []roster.Row) []RowResponse {
	out := make([]RowResponse, 0, len(rows))
	for _, row := range rows {
		owner := OwnerResponse{Kind: row.Owner.Kind.String()}
		if row.Owner.OwnerID != "" {
			id := row.Owner.OwnerID
			owner.OwnerID = &id
		}
		if row.Owner.User != nil {
			owner.Name = row.Owner.User.Name
		}
		out = append(out, RowResponse{
			Client:    NewClientResponse(row.Record),
			Display:   displayFields(row.Record),
			Owner:     owner,
			Staleness: StalenessResponse{Tier: row.Staleness.Tier.String(), Hint: string(row.Staleness.Hint)},
			Pending:   row.Pending,
		})
	}
	return out
}

// NewPageMeta renders page metadata.
func NewPageMeta(page roster.Page) PageMeta {
	d := page.Descriptor
	return PageMeta{
		Total:     page.TotalCount,
		Page:      d.Page,
		PageSize:  d.PageSize,
		Sort:      string(d.SortField),
		Direction: string(d.SortDirection),
		FetchedAt: page.FetchedAt,
	}
}

func displayFields(rec domain.ClientRecord) DisplayFields {
	name := strings.TrimSpace(domain.StringValue(rec.FirstName) + " " + domain.StringValue(rec.LastName))
	return DisplayFields{
		CompanyName: domain.DisplayText(rec.CompanyName),
		ContactName: domain.DisplayText(domain.OptionalText(name)),
		Phone:       domain.DisplayText(rec.Phone),
		Email:       domain.DisplayText(rec.Email),
	}
}

// BatchItemResponse reports one item of a batch create.
type BatchItemResponse struct {
	Index  int             `json:"index"`
	Client *ClientResponse `json:"client,omitempty"`
	Error  *ErrorBody      `json:"error,omitempty"`
}

// ErrorBody mirrors the error envelope used by the middleware.
type ErrorBody struct {
	Code    string         `json:"code"`
	Message string         `json:"message"`
	Details map[string]any `json:"details,omitempty"`
}

// NewBatchResponse renders per-item batch results.
func NewBatchResponse(results []service.BatchResult) []BatchItemResponse {
	out := make([]BatchItemResponse, 0, len(results))
	for _, res := range results {
		item := BatchItemResponse{Index: res.Index}
		if res.Err != nil {
			derr := apperrors.ToDomainError(res.Err)
			item.Error = &ErrorBody{Code: derr.Code, Message: derr.Message, Details: derr.Details}
		} else if res.Record != nil {
			client := NewClientResponse(*res.Record)
			item.Client = &client
		}
		out = append(out, item)
	}
	return out
}
