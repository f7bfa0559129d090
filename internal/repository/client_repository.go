package repository

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/spec-kit/client-roster/internal/domain"
)

// ClientFilter captures roster search parameters. Zero values mean no constraint.
// Search and Location arrive lower-cased and are compared with LOWER(column).
type ClientFilter struct {
	Search       string
	SearchDigits string
	Status       *domain.ClientStatus
	OwnerID      *string
	Unassigned   bool
	Location     string
	// VisibleTo restricts rows to those an employee may see: owned by, last
	// edited by, or not yet owned by this user.
	VisibleTo  *string
	SortColumn string
	Descending bool
	Limit      int
	Offset     int
}

// ClientRepository is the collection store for client records.
type ClientRepository interface {
	Query(ctx context.Context, filter ClientFilter) ([]domain.ClientRecord, int, error)
	GetByID(ctx context.Context, id string) (*domain.ClientRecord, error)
	Insert(ctx context.Context, client *domain.ClientRecord) (*domain.ClientRecord, error)
	Patch(ctx context.Context, id string, patch domain.ClientPatch) (*domain.ClientRecord, error)
	Remove(ctx context.Context, id string) error
	StatusSummary(ctx context.Context, visibleTo *string) (map[domain.ClientStatus]int, error)
	ListByStatus(ctx context.Context, status domain.ClientStatus, visibleTo *string) ([]domain.ClientRecord, error)
}

type clientRepository struct {
	pool *pgxpool.Pool
}

// NewClientRepository returns a Postgres-backed implementation.
func NewClientRepository(pool *pgxpool.Pool) ClientRepository {
	return &clientRepository{pool: pool}
}

const clientColumns = `id, first_name, last_name, company_name, nip, phone, email, website, location,
               status, status_changed_at, last_contact_at, owner_id, edited_by, notes,
               reminder_enabled, reminder_date, reminder_time, reminder_note, created_at, updated_at`

var sortColumns = map[string]string{
	"updated_at":        "updated_at",
	"created_at":        "created_at",
	"first_name":        "LOWER(first_name)",
	"last_name":         "LOWER(last_name)",
	"company_name":      "LOWER(company_name)",
	"status":            "status",
	"status_changed_at": "status_changed_at",
	"last_contact_at":   "last_contact_at",
}

func (r *clientRepository) Query(ctx context.Context, filter ClientFilter) ([]domain.ClientRecord, int, error) {
	where, args := buildClientWhere(filter)

	var total int
	if err := r.pool.QueryRow(ctx, "SELECT COUNT(*) FROM clients WHERE "+where, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count clients: %w", err)
	}

	column, ok := sortColumns[filter.SortColumn]
	if !ok {
		column = sortColumns["updated_at"]
	}
	direction := "ASC"
	if filter.Descending {
		direction = "DESC"
	}
	limit := filter.Limit
	if limit <= 0 {
		limit = 25
	}
	offset := filter.Offset
	if offset < 0 {
		offset = 0
	}

	query := fmt.Sprintf(`SELECT %s FROM clients WHERE %s ORDER BY %s %s NULLS LAST, id ASC LIMIT %d OFFSET %d`,
		clientColumns, where, column, direction, limit, offset)

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("query clients: %w", err)
	}
	defer rows.Close()
	records, err := scanClients(rows)
	if err != nil {
		return nil, 0, err
	}
	return records, total, nil
}

func buildClientWhere(filter ClientFilter) (string, []any) {
	clauses := []string{"1=1"}
	args := []any{}

	if filter.Status != nil {
		args = append(args, *filter.Status)
		clauses = append(clauses, fmt.Sprintf("status=$%d", len(args)))
	}
	if filter.Unassigned {
		clauses = append(clauses, "owner_id IS NULL")
	} else if filter.OwnerID != nil {
		args = append(args, *filter.OwnerID)
		clauses = append(clauses, fmt.Sprintf("owner_id=$%d", len(args)))
	}
	if filter.Location != "" {
		args = append(args, filter.Location)
		clauses = append(clauses, fmt.Sprintf("LOWER(location)=$%d", len(args)))
	}
	if filter.VisibleTo != nil {
		args = append(args, *filter.VisibleTo)
		p := fmt.Sprintf("$%d", len(args))
		clauses = append(clauses, fmt.Sprintf("(owner_id IS NULL OR owner_id=%s OR edited_by=%s)", p, p))
	}
	if search := strings.TrimSpace(filter.Search); search != "" {
		args = append(args, "%"+search+"%")
		p := fmt.Sprintf("$%d", len(args))
		parts := []string{
			"LOWER(first_name) LIKE " + p,
			"LOWER(last_name) LIKE " + p,
			"LOWER(company_name) LIKE " + p,
			"LOWER(email) LIKE " + p,
			"LOWER(phone) LIKE " + p,
		}
		if filter.SearchDigits != "" {
			args = append(args, "%"+filter.SearchDigits+"%")
			parts = append(parts, fmt.Sprintf("regexp_replace(phone, '\\D', '', 'g') LIKE $%d", len(args)))
		}
		clauses = append(clauses, "("+strings.Join(parts, " OR ")+")")
	}
	return strings.Join(clauses, " AND "), args
}

func (r *clientRepository) GetByID(ctx context.Context, id string) (*domain.ClientRecord, error) {
	row := r.pool.QueryRow(ctx, "SELECT "+clientColumns+" FROM clients WHERE id=$1", id)
	return scanClient(row)
}

func (r *clientRepository) Insert(ctx context.Context, client *domain.ClientRecord) (*domain.ClientRecord, error) {
	enabled, date, at, note := reminderColumns(client.Reminder)
	query := `
        INSERT INTO clients (id, first_name, last_name, company_name, nip, phone, email, website, location,
            status, status_changed_at, last_contact_at, owner_id, edited_by, notes,
            reminder_enabled, reminder_date, reminder_time, reminder_note)
        VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17,$18,$19)
        RETURNING ` + clientColumns
	row := r.pool.QueryRow(ctx, query,
		client.ID,
		client.FirstName,
		client.LastName,
		client.CompanyName,
		client.TaxID,
		client.Phone,
		client.Email,
		client.Website,
		client.Location,
		client.Status,
		client.StatusChangedAt,
		client.LastContactAt,
		client.OwnerID,
		client.EditedBy,
		client.Notes,
		enabled,
		date,
		at,
		note,
	)
	return scanClient(row)
}

func (r *clientRepository) Patch(ctx context.Context, id string, patch domain.ClientPatch) (*domain.ClientRecord, error) {
	sets := []string{}
	args := []any{}
	set := func(column string, value any) {
		args = append(args, value)
		sets = append(sets, fmt.Sprintf("%s=$%d", column, len(args)))
	}
	text := func(column string, value *string) {
		if value != nil {
			set(column, domain.OptionalText(*value))
		}
	}

	text("first_name", patch.FirstName)
	text("last_name", patch.LastName)
	text("company_name", patch.CompanyName)
	text("nip", patch.TaxID)
	text("phone", patch.Phone)
	text("email", patch.Email)
	text("website", patch.Website)
	text("location", patch.Location)
	text("owner_id", patch.OwnerID)
	text("edited_by", patch.EditedBy)
	if patch.Notes != nil {
		set("notes", *patch.Notes)
	}
	if patch.Status != nil {
		args = append(args, *patch.Status)
		p := fmt.Sprintf("$%d", len(args))
		sets = append(sets,
			fmt.Sprintf("status_changed_at=CASE WHEN status<>%s THEN NOW() ELSE status_changed_at END", p),
			"status="+p)
	}
	if patch.ClearLastContact {
		sets = append(sets, "last_contact_at=NULL")
	} else if patch.LastContactAt != nil {
		set("last_contact_at", *patch.LastContactAt)
	}
	if patch.ClearReminder {
		sets = append(sets, "reminder_enabled=false", "reminder_date=NULL", "reminder_time=NULL", "reminder_note=NULL")
	} else if patch.Reminder != nil {
		enabled, date, at, note := reminderColumns(patch.Reminder)
		set("reminder_enabled", enabled)
		set("reminder_date", date)
		set("reminder_time", at)
		set("reminder_note", note)
	}
	sets = append(sets, "updated_at=NOW()")

	args = append(args, id)
	query := fmt.Sprintf("UPDATE clients SET %s WHERE id=$%d RETURNING %s", strings.Join(sets, ", "), len(args), clientColumns)
	return scanClient(r.pool.QueryRow(ctx, query, args...))
}

func (r *clientRepository) Remove(ctx context.Context, id string) error {
	cmd, err := r.pool.Exec(ctx, "DELETE FROM clients WHERE id=$1", id)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return pgx.ErrNoRows
	}
	return nil
}

func (r *clientRepository) StatusSummary(ctx context.Context, visibleTo *string) (map[domain.ClientStatus]int, error) {
	where, args := buildClientWhere(ClientFilter{VisibleTo: visibleTo})
	rows, err := r.pool.Query(ctx, "SELECT status, COUNT(*) FROM clients WHERE "+where+" GROUP BY status", args...)
	if err != nil {
		return nil, fmt.Errorf("status summary: %w", err)
	}
	defer rows.Close()

	summary := make(map[domain.ClientStatus]int, len(domain.ClientStatuses))
	for rows.Next() {
		var status domain.ClientStatus
		var count int
		if err := rows.Scan(&status, &count); err != nil {
			return nil, err
		}
		summary[status] = count
	}
	return summary, rows.Err()
}

func (r *clientRepository) ListByStatus(ctx context.Context, status domain.ClientStatus, visibleTo *string) ([]domain.ClientRecord, error) {
	where, args := buildClientWhere(ClientFilter{Status: &status, VisibleTo: visibleTo})
	rows, err := r.pool.Query(ctx, "SELECT "+clientColumns+" FROM clients WHERE "+where+" ORDER BY status_changed_at ASC", args...)
	if err != nil {
		return nil, fmt.Errorf("list clients by status: %w", err)
	}
	defer rows.Close()
	return scanClients(rows)
}

func reminderColumns(reminder *domain.Reminder) (bool, *time.Time, *string, *string) {
	if reminder == nil {
		return false, nil, nil, nil
	}
	return reminder.Enabled, reminder.Date, domain.OptionalText(reminder.Time), domain.OptionalText(reminder.Note)
}

func scanClient(row pgx.Row) (*domain.ClientRecord, error) {
	var (
		client       domain.ClientRecord
		enabled      bool
		reminderDate *time.Time
		reminderTime *string
		reminderNote *string
	)
	if err := row.Scan(
		&client.ID,
		&client.FirstName,
		&client.LastName,
		&client.CompanyName,
		&client.TaxID,
		&client.Phone,
		&client.Email,
		&client.Website,
		&client.Location,
		&client.Status,
		&client.StatusChangedAt,
		&client.LastContactAt,
		&client.OwnerID,
		&client.EditedBy,
		&client.Notes,
		&enabled,
		&reminderDate,
		&reminderTime,
		&reminderNote,
		&client.CreatedAt,
		&client.UpdatedAt,
	); err != nil {
		return nil, err
	}
	if enabled || reminderDate != nil || reminderTime != nil || reminderNote != nil {
		client.Reminder = &domain.Reminder{
			Enabled: enabled,
			Date:    reminderDate,
			Time:    domain.StringValue(reminderTime),
			Note:    domain.StringValue(reminderNote),
		}
	}
	return &client, nil
}

func scanClients(rows pgx.Rows) ([]domain.ClientRecord, error) {
	result := []domain.ClientRecord{}
	for rows.Next() {
		client, err := scanClient(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, *client)
	}
	return result, rows.Err()
}
