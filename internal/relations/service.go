package relations

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/text/cases"

	"github.com/rawdatain/backoffice/internal/audit"
	"github.com/rawdatain/backoffice/internal/auth"
	"github.com/rawdatain/backoffice/internal/shared"
)

// DefaultSort orders listings by popularity.
const DefaultSort = "use_count_desc"

// Invalidator drops cached relation lists.
type Invalidator interface {
	Invalidate()
}

// ListResult is one page of a client listing.
type ListResult struct {
	Items      []Client          `json:"items"`
	Pagination shared.Pagination `json:"pagination"`
}

// Service manages clients and suppliers.
type Service struct {
	repo        Repository
	emitter     audit.Emitter
	invalidator Invalidator
	now         func() time.Time
	newID       func() string
}

// NewService constructs the service. invalidator may be nil.
func NewService(repo Repository, emitter audit.Emitter, invalidator Invalidator) *Service {
	if emitter == nil {
		emitter = audit.NopEmitter{}
	}
	return &Service{
		repo:        repo,
		emitter:     emitter,
		invalidator: invalidator,
		now:         time.Now,
		newID:       func() string { return uuid.NewString() },
	}
}

// List filters, searches, sorts and paginates clients.
func (s *Service) List(ctx context.Context, filters ListFilters) (ListResult, error) {
	rows, err := s.repo.List(ctx, filters)
	if err != nil {
		return ListResult{}, err
	}
	rows = search(rows, filters.Search)
	if err := sortClients(rows, filters.Sort); err != nil {
		return ListResult{}, err
	}
	if rows == nil {
		rows = []Client{}
	}
	if filters.All {
		return ListResult{Items: rows, Pagination: shared.NewPagination(1, shared.MaxPageSize, len(rows))}, nil
	}
	items, page := shared.Page(rows, filters.Page, filters.PerPage)
	return ListResult{Items: items, Pagination: page}, nil
}

// Search returns picker options of active relations matching term.
func (s *Service) Search(ctx context.Context, term string, relationType RelationType) ([]Option, error) {
	rows, err := s.repo.List(ctx, ListFilters{RelationType: relationType})
	if err != nil {
		return nil, err
	}
	rows = search(rows, term)
	if err := sortClients(rows, DefaultSort); err != nil {
		return nil, err
	}
	options := make([]Option, 0, len(rows))
	for _, c := range rows {
		options = append(options, Option{Value: c.ID, Label: c.Name})
	}
	return options, nil
}

// Get returns a single client.
func (s *Service) Get(ctx context.Context, id string) (Client, error) {
	if _, err := uuid.Parse(id); err != nil {
		return Client{}, shared.FieldError("id", "must be a valid id")
	}
	return s.repo.Get(ctx, id)
}

// Create adds one client.
func (s *Service) Create(ctx context.Context, input ClientInput) (Client, error) {
	created, err := s.CreateMany(ctx, []ClientInput{input})
	if err != nil {
		return Client{}, err
	}
	return created[0], nil
}

// CreateMany adds every client or none.
func (s *Service) CreateMany(ctx context.Context, inputs []ClientInput) ([]Client, error) {
	actor, err := auth.Require(ctx)
	if err != nil {
		return nil, err
	}
	if len(inputs) == 0 {
		return nil, shared.NewValidationError("at least one client is required")
	}
	now := s.now().UTC()
	clients := make([]Client, 0, len(inputs))
	for i, input := range inputs {
		c, err := s.build(Client{}, input)
		if err != nil {
			if len(inputs) > 1 {
				return nil, fmt.Errorf("row %d: %w", i+1, err)
			}
			return nil, err
		}
		c.ID = s.newID()
		if c.Code == "" {
			c.Code = generateCode(c.ID)
		}
		c.CreatedBy = actor.UID
		c.CreatedAt = now
		c.UpdatedAt = now
		clients = append(clients, c)
	}
	if err := s.repo.Insert(ctx, clients); err != nil {
		return nil, err
	}
	s.changed()
	for _, c := range clients {
		s.audit(ctx, actor, audit.ActionCreate, c.ID, fmt.Sprintf("Created %s %s", c.RelationType, c.Name))
	}
	return clients, nil
}

// Update replaces the writable fields of a client.
func (s *Service) Update(ctx context.Context, id string, input ClientInput) (Client, error) {
	actor, err := auth.Require(ctx)
	if err != nil {
		return Client{}, err
	}
	current, err := s.Get(ctx, id)
	if err != nil {
		return Client{}, err
	}
	updated, err := s.build(current, input)
	if err != nil {
		return Client{}, err
	}
	if updated.Code == "" {
		updated.Code = current.Code
	}
	updated.UpdatedAt = s.now().UTC()
	if err := s.repo.Update(ctx, updated); err != nil {
		return Client{}, err
	}
	s.changed()
	s.audit(ctx, actor, audit.ActionUpdate, id, fmt.Sprintf("Updated %s %s", updated.RelationType, updated.Name))
	return updated, nil
}

// Delete removes a client that was never used.
func (s *Service) Delete(ctx context.Context, id string) error {
	_, err := s.DeleteMany(ctx, []string{id})
	return err
}

// DeleteMany removes unused clients. The batch is refused when any client is in use.
func (s *Service) DeleteMany(ctx context.Context, ids []string) (int64, error) {
	actor, err := auth.Require(ctx)
	if err != nil {
		return 0, err
	}
	if len(ids) == 0 {
		return 0, shared.NewValidationError("at least one client id is required")
	}
	names := make(map[string]string, len(ids))
	var inUse []string
	for _, id := range ids {
		c, err := s.Get(ctx, id)
		if err != nil {
			return 0, err
		}
		if c.UseCount > 0 {
			inUse = append(inUse, c.Name)
		}
		names[id] = c.Name
	}
	if len(inUse) > 0 {
		return 0, shared.NewValidationError("cannot delete clients in use: " + strings.Join(inUse, ", "))
	}
	deleted, err := s.repo.Delete(ctx, ids)
	if err != nil {
		return 0, err
	}
	s.changed()
	for _, id := range ids {
		s.audit(ctx, actor, audit.ActionDelete, id, "Deleted "+names[id])
	}
	return deleted, nil
}

// MarkUsed increments the use count of the given clients.
func (s *Service) MarkUsed(ctx context.Context, ids []string) error {
	if err := s.repo.IncrementUseCount(ctx, ids); err != nil {
		return err
	}
	s.changed()
	return nil
}

func (s *Service) build(base Client, input ClientInput) (Client, error) {
	if err := shared.ValidateStruct(input); err != nil {
		return Client{}, err
	}
	if _, err := input.SegmentSettings.Table(); err != nil {
		return Client{}, shared.FieldError("segmentSettings", err.Error())
	}
	c := base
	c.Code = strings.ToUpper(strings.TrimSpace(input.Code))
	c.Name = strings.TrimSpace(input.Name)
	c.Type = orDefault(input.Type, TypeCompany)
	c.RelationType = orDefault(input.RelationType, RelationClient)
	c.PaymentType = orDefault(input.PaymentType, PaymentCash)
	c.Status = orDefault(input.Status, StatusActive)
	c.Phone = strings.TrimSpace(input.Phone)
	c.Email = strings.ToLower(strings.TrimSpace(input.Email))
	c.Country = strings.TrimSpace(input.Country)
	c.Province = strings.TrimSpace(input.Province)
	c.SegmentSettings = input.SegmentSettings
	return c, nil
}

func (s *Service) changed() {
	if s.invalidator != nil {
		s.invalidator.Invalidate()
	}
}

func (s *Service) audit(ctx context.Context, actor auth.Identity, action audit.Action, id, description string) {
	s.emitter.Emit(ctx, audit.Event{
		UserID:      actor.UID,
		UserName:    actor.Name,
		Action:      action,
		TargetType:  audit.TargetClient,
		TargetID:    id,
		Description: description,
	})
}

func orDefault[T ~string](value, fallback T) T {
	if value == "" {
		return fallback
	}
	return value
}

func generateCode(id string) string {
	return "REL-" + strings.ToUpper(strings.ReplaceAll(id, "-", "")[:8])
}

func search(rows []Client, term string) []Client {
	term = strings.TrimSpace(term)
	if term == "" {
		return rows
	}
	fold := cases.Fold()
	needle := fold.String(term)
	out := rows[:0:0]
	for _, c := range rows {
		if strings.Contains(fold.String(c.Name), needle) ||
			strings.Contains(c.Phone, term) ||
			strings.Contains(fold.String(c.Code), needle) {
			out = append(out, c)
		}
	}
	return out
}

func sortClients(rows []Client, spec string) error {
	if spec == "" {
		spec = DefaultSort
	}
	idx := strings.LastIndex(spec, "_")
	if idx <= 0 {
		return shared.FieldError("sort", "must look like field_asc or field_desc")
	}
	field, dir := spec[:idx], spec[idx+1:]
	if dir != "asc" && dir != "desc" {
		return shared.FieldError("sort", "direction must be asc or desc")
	}
	var less func(a, b Client) bool
	switch field {
	case "name":
		less = func(a, b Client) bool { return strings.ToLower(a.Name) < strings.ToLower(b.Name) }
	case "code":
		less = func(a, b Client) bool { return a.Code < b.Code }
	case "use_count":
		less = func(a, b Client) bool { return a.UseCount < b.UseCount }
	case "created_at":
		less = func(a, b Client) bool { return a.CreatedAt.Before(b.CreatedAt) }
	case "updated_at":
		less = func(a, b Client) bool { return a.UpdatedAt.Before(b.UpdatedAt) }
	default:
		return shared.FieldError("sort", "unknown sort field "+field)
	}
	sort.SliceStable(rows, func(i, j int) bool {
		if dir == "desc" {
			return less(rows[j], rows[i])
		}
		return less(rows[i], rows[j])
	})
	return nil
}
