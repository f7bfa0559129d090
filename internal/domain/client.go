package domain

import (
	"strings"
	"time"
)

// ClientStatus enumerates lead lifecycle states.
type ClientStatus string

const (
	StatusCanvas        ClientStatus = "canvas"
	StatusNoContact     ClientStatus = "brak_kontaktu"
	StatusNotInterested ClientStatus = "nie_zainteresowany"
	StatusUpset         ClientStatus = "zdenerwowany"
	StatusAntisale      ClientStatus = "antysale"
	StatusSale          ClientStatus = "sale"
	StatusHighValue     ClientStatus = "$$"
)

// ClientStatuses lists every status in display order.
var ClientStatuses = []ClientStatus{
	StatusCanvas,
	StatusNoContact,
	StatusNotInterested,
	StatusUpset,
	StatusAntisale,
	StatusSale,
	StatusHighValue,
}

// Valid reports whether s is a known status.
func (s ClientStatus) Valid() bool {
	for _, candidate := range ClientStatuses {
		if candidate == s {
			return true
		}
	}
	return false
}

// NoInformation is rendered for contact fields that were never filled in.
const NoInformation = "brak informacji"

// Reminder is the calendar reminder attached to a client.
type Reminder struct {
	Enabled bool
	Date    *time.Time
	Time    string
	Note    string
}

// ClientRecord is a lead or customer.
type ClientRecord struct {
	ID              string
	FirstName       *string
	LastName        *string
	CompanyName     *string
	TaxID           *string
	Phone           *string
	Email           *string
	Website         *string
	Location        *string
	Status          ClientStatus
	StatusChangedAt time.Time
	LastContactAt   *time.Time
	OwnerID         *string
	EditedBy        *string
	Notes           string
	Reminder        *Reminder
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

// Clone returns a deep copy so cached pages never share pointers with callers.
func (c ClientRecord) Clone() ClientRecord {
	out := c
	out.FirstName = cloneString(c.FirstName)
	out.LastName = cloneString(c.LastName)
	out.CompanyName = cloneString(c.CompanyName)
	out.TaxID = cloneString(c.TaxID)
	out.Phone = cloneString(c.Phone)
	out.Email = cloneString(c.Email)
	out.Website = cloneString(c.Website)
	out.Location = cloneString(c.Location)
	out.LastContactAt = cloneTime(c.LastContactAt)
	out.OwnerID = cloneString(c.OwnerID)
	out.EditedBy = cloneString(c.EditedBy)
	if c.Reminder != nil {
		r := *c.Reminder
		r.Date = cloneTime(c.Reminder.Date)
		out.Reminder = &r
	}
	return out
}

// OptionalText normalizes free text: blank input becomes nil.
func OptionalText(s string) *string {
	trimmed := strings.TrimSpace(s)
	if trimmed == "" {
		return nil
	}
	return &trimmed
}

// DisplayText renders an optional field for humans.
func DisplayText(s *string) string {
	if s == nil {
		return NoInformation
	}
	return *s
}

// StringValue returns the value or "" for nil.
func StringValue(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

func cloneString(s *string) *string {
	if s == nil {
		return nil
	}
	v := *s
	return &v
}

func cloneTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	v := *t
	return &v
}
