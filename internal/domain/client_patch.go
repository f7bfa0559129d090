package domain

import (
	"fmt"
	"strings"
	"time"
)

// ClientPatch is a partial update. Nil fields are left untouched; a pointer to an
// empty string clears an optional text field.
type ClientPatch struct {
	FirstName        *string
	LastName         *string
	CompanyName      *string
	TaxID            *string
	Phone            *string
	Email            *string
	Website          *string
	Location         *string
	Status           *ClientStatus
	StatusChangedAt  *time.Time
	LastContactAt    *time.Time
	ClearLastContact bool
	OwnerID          *string
	EditedBy         *string
	Notes            *string
	Reminder         *Reminder
	ClearReminder    bool
	UpdatedAt        *time.Time
}

// Apply returns a copy of rec with the patch applied. A status change stamps
// StatusChangedAt with now unless the patch carries the server timestamp.
func (p ClientPatch) Apply(rec ClientRecord, now time.Time) ClientRecord {
	out := rec.Clone()
	setText(&out.FirstName, p.FirstName)
	setText(&out.LastName, p.LastName)
	setText(&out.CompanyName, p.CompanyName)
	setText(&out.TaxID, p.TaxID)
	setText(&out.Phone, p.Phone)
	setText(&out.Email, p.Email)
	setText(&out.Website, p.Website)
	setText(&out.Location, p.Location)
	setText(&out.OwnerID, p.OwnerID)
	setText(&out.EditedBy, p.EditedBy)
	if p.Notes != nil {
		out.Notes = *p.Notes
	}
	if p.Status != nil && *p.Status != out.Status {
		out.Status = *p.Status
		out.StatusChangedAt = now
	}
	if p.StatusChangedAt != nil {
		out.StatusChangedAt = *p.StatusChangedAt
	}
	if p.ClearLastContact {
		out.LastContactAt = nil
	} else if p.LastContactAt != nil {
		t := *p.LastContactAt
		out.LastContactAt = &t
	}
	if p.ClearReminder {
		out.Reminder = nil
	} else if p.Reminder != nil {
		r := *p.Reminder
		out.Reminder = &r
	}
	if p.UpdatedAt != nil {
		out.UpdatedAt = *p.UpdatedAt
	} else {
		out.UpdatedAt = now
	}
	return out
}

// Empty reports whether the patch changes nothing.
func (p ClientPatch) Empty() bool {
	return p == ClientPatch{}
}

func setText(dst **string, src *string) {
	if src == nil {
		return
	}
	*dst = OptionalText(*src)
}

// PatchFromChangedFields decodes a change notification payload keyed by column names.
func PatchFromChangedFields(fields map[string]any) (ClientPatch, error) {
	var p ClientPatch
	for key, raw := range fields {
		switch key {
		case "first_name":
			p.FirstName = textValue(raw)
		case "last_name":
			p.LastName = textValue(raw)
		case "company_name":
			p.CompanyName = textValue(raw)
		case "nip", "tax_id":
			p.TaxID = textValue(raw)
		case "phone":
			p.Phone = textValue(raw)
		case "email":
			p.Email = textValue(raw)
		case "website":
			p.Website = textValue(raw)
		case "location":
			p.Location = textValue(raw)
		case "owner_id":
			p.OwnerID = textValue(raw)
		case "edited_by":
			p.EditedBy = textValue(raw)
		case "notes":
			p.Notes = textValue(raw)
		case "status":
			s, ok := raw.(string)
			if !ok || !ClientStatus(s).Valid() {
				return ClientPatch{}, fmt.Errorf("invalid status %v", raw)
			}
			status := ClientStatus(s)
			p.Status = &status
		case "status_changed_at":
			t, err := timeValue(raw)
			if err != nil || t == nil {
				return ClientPatch{}, fmt.Errorf("invalid status_changed_at: %v", raw)
			}
			p.StatusChangedAt = t
		case "last_contact_at":
			t, err := timeValue(raw)
			if err != nil {
				return ClientPatch{}, fmt.Errorf("invalid last_contact_at: %w", err)
			}
			if t == nil {
				p.ClearLastContact = true
			} else {
				p.LastContactAt = t
			}
		case "updated_at":
			t, err := timeValue(raw)
			if err != nil {
				return ClientPatch{}, fmt.Errorf("invalid updated_at: %w", err)
			}
			p.UpdatedAt = t
		}
	}
	return p, nil
}

func textValue(raw any) *string {
	empty := ""
	if raw == nil {
		return &empty
	}
	s, ok := raw.(string)
	if !ok {
		s = fmt.Sprint(raw)
	}
	s = strings.TrimSpace(s)
	return &s
}

func timeValue(raw any) (*time.Time, error) {
	if raw == nil {
		return nil, nil
	}
	s, ok := raw.(string)
	if !ok {
		return nil, fmt.Errorf("expected timestamp string, got %T", raw)
	}
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return nil, err
	}
	return &t, nil
}
