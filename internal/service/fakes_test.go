package service

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/bridgedesk/escalation-service/internal/domain"
	"github.com/bridgedesk/escalation-service/internal/repository"
)

// In-memory repository fakes sharing the conditional-update semantics of the
// pgx implementations, so service tests exercise the same race behavior.

type fakeTicketRepo struct {
	mu        sync.Mutex
	tickets   map[string]*domain.Ticket
	byNumber  map[string]string
	sequences map[string]int64
}

func newFakeTicketRepo() *fakeTicketRepo {
	return &fakeTicketRepo{
		tickets:   map[string]*domain.Ticket{},
		byNumber:  map[string]string{},
		sequences: map[string]int64{},
	}
}

func (r *fakeTicketRepo) Create(ctx context.Context, ticket *domain.Ticket) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	ticket.ID = uuid.NewString()
	ticket.CreatedAt = time.Now()
	ticket.UpdatedAt = ticket.CreatedAt
	clone := *ticket
	r.tickets[ticket.ID] = &clone
	r.byNumber[ticket.TicketNumber] = ticket.ID
	return nil
}

func (r *fakeTicketRepo) GetByID(ctx context.Context, id string) (*domain.Ticket, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	ticket, ok := r.tickets[id]
	if !ok {
		return nil, pgx.ErrNoRows
	}
	clone := *ticket
	return &clone, nil
}

func (r *fakeTicketRepo) GetByNumber(ctx context.Context, number string) (*domain.Ticket, error) {
	r.mu.Lock()
	id, ok := r.byNumber[number]
	r.mu.Unlock()
	if !ok {
		return nil, pgx.ErrNoRows
	}
	return r.GetByID(ctx, id)
}

func (r *fakeTicketRepo) Update(ctx context.Context, ticket *domain.Ticket) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	stored, ok := r.tickets[ticket.ID]
	if !ok {
		return pgx.ErrNoRows
	}
	stored.BrandName = ticket.BrandName
	stored.Description = ticket.Description
	stored.IssueType = ticket.IssueType
	stored.ExpectedOutput = ticket.ExpectedOutput
	stored.Priority = ticket.Priority
	stored.UpdatedAt = time.Now()
	return nil
}

func (r *fakeTicketRepo) UpdateStatus(ctx context.Context, ticket *domain.Ticket, expected domain.TicketStatus) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	stored, ok := r.tickets[ticket.ID]
	if !ok {
		return pgx.ErrNoRows
	}
	if stored.Status != expected {
		return repository.ErrStatusConflict
	}
	stored.Status = ticket.Status
	stored.ResolutionRemarks = ticket.ResolutionRemarks
	stored.PrimaryResolutionRemarks = ticket.PrimaryResolutionRemarks
	stored.ReopenReason = ticket.ReopenReason
	stored.AcceptanceRemarks = ticket.AcceptanceRemarks
	stored.LastStatusChangeAt = ticket.LastStatusChangeAt
	stored.ResolvedAt = ticket.ResolvedAt
	stored.UpdatedAt = time.Now()
	return nil
}

func (r *fakeTicketRepo) UpdateAssignee(ctx context.Context, ticketID string, assigneeID *string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	stored, ok := r.tickets[ticketID]
	if !ok {
		return pgx.ErrNoRows
	}
	stored.CurrentAssignee = assigneeID
	stored.UpdatedAt = time.Now()
	return nil
}

func (r *fakeTicketRepo) Delete(ctx context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	stored, ok := r.tickets[id]
	if !ok {
		return pgx.ErrNoRows
	}
	delete(r.byNumber, stored.TicketNumber)
	delete(r.tickets, id)
	return nil
}

func (r *fakeTicketRepo) ListWithFilter(ctx context.Context, filter repository.TicketFilter) ([]domain.Ticket, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []domain.Ticket
	for _, t := range r.tickets {
		if matchesFilter(t, filter) {
			out = append(out, *t)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	return out, nil
}

func (r *fakeTicketRepo) CountWithFilter(ctx context.Context, filter repository.TicketFilter) (int, error) {
	tickets, err := r.ListWithFilter(ctx, filter)
	if err != nil {
		return 0, err
	}
	return len(tickets), nil
}

func (r *fakeTicketRepo) NextTicketNumber(ctx context.Context, prefix string) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sequences[prefix]++
	return r.sequences[prefix], nil
}

func matchesFilter(t *domain.Ticket, filter repository.TicketFilter) bool {
	if filter.CreatedBy != nil && t.CreatedBy != *filter.CreatedBy {
		return false
	}
	if filter.CurrentAssignee != nil && (t.CurrentAssignee == nil || *t.CurrentAssignee != *filter.CurrentAssignee) {
		return false
	}
	if filter.CreatedByTeam != nil && t.CreatorRole != *filter.CreatedByTeam {
		return false
	}
	if filter.Unassigned && t.CurrentAssignee != nil {
		return false
	}
	if len(filter.Statuses) > 0 && !containsStatus(filter.Statuses, t.Status) {
		return false
	}
	if containsStatus(filter.ExcludeStatuses, t.Status) {
		return false
	}
	if filter.BrandName != nil && t.BrandName != *filter.BrandName {
		return false
	}
	return true
}

func containsStatus(statuses []domain.TicketStatus, status domain.TicketStatus) bool {
	for _, s := range statuses {
		if s == status {
			return true
		}
	}
	return false
}

type fakeUserRepo struct {
	mu      sync.Mutex
	users   map[string]*domain.User
	tickets *fakeTicketRepo
}

func newFakeUserRepo(tickets *fakeTicketRepo) *fakeUserRepo {
	return &fakeUserRepo{users: map[string]*domain.User{}, tickets: tickets}
}

func (r *fakeUserRepo) add(user *domain.User) *domain.User {
	r.mu.Lock()
	defer r.mu.Unlock()
	if user.ID == "" {
		user.ID = uuid.NewString()
	}
	if user.CreatedAt.IsZero() {
		user.CreatedAt = time.Now()
	}
	clone := *user
	r.users[user.ID] = &clone
	return user
}

func (r *fakeUserRepo) Create(ctx context.Context, user *domain.User) error {
	user.ID = uuid.NewString()
	user.CreatedAt = time.Now()
	r.add(user)
	return nil
}

func (r *fakeUserRepo) GetByID(ctx context.Context, id string) (*domain.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	user, ok := r.users[id]
	if !ok {
		return nil, pgx.ErrNoRows
	}
	clone := *user
	return &clone, nil
}

func (r *fakeUserRepo) GetByEmail(ctx context.Context, email string) (*domain.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, user := range r.users {
		if user.Email == email {
			clone := *user
			return &clone, nil
		}
	}
	return nil, pgx.ErrNoRows
}

func (r *fakeUserRepo) SetActive(ctx context.Context, id string, active bool) error {
	return r.mutate(id, func(u *domain.User) { u.IsActive = active })
}

func (r *fakeUserRepo) SetAutoAssign(ctx context.Context, id string, enabled bool) error {
	return r.mutate(id, func(u *domain.User) { u.AutoAssignEnabled = enabled })
}

func (r *fakeUserRepo) SetManagerFlag(ctx context.Context, id string, isManager bool) error {
	return r.mutate(id, func(u *domain.User) { u.IsManager = isManager })
}

func (r *fakeUserRepo) TouchLastLogin(ctx context.Context, id string) error {
	now := time.Now()
	return r.mutate(id, func(u *domain.User) { u.LastLoginAt = &now })
}

func (r *fakeUserRepo) mutate(id string, fn func(*domain.User)) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	user, ok := r.users[id]
	if !ok {
		return pgx.ErrNoRows
	}
	fn(user)
	return nil
}

func (r *fakeUserRepo) ListTeamMembers(ctx context.Context, role domain.Role) ([]domain.TeamMember, error) {
	return r.members(role, false), nil
}

func (r *fakeUserRepo) ListAssignmentCandidates(ctx context.Context, role domain.Role) ([]domain.TeamMember, error) {
	return r.members(role, true), nil
}

func (r *fakeUserRepo) members(role domain.Role, activeOnly bool) []domain.TeamMember {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []domain.TeamMember
	for _, user := range r.users {
		if user.Role != role || user.IsManager {
			continue
		}
		if activeOnly && !user.IsActive {
			continue
		}
		out = append(out, domain.TeamMember{User: *user, ActiveTickets: r.activeCount(user.ID)})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].ActiveTickets != out[j].ActiveTickets {
			return out[i].ActiveTickets < out[j].ActiveTickets
		}
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.Before(out[j].CreatedAt)
		}
		return out[i].ID < out[j].ID
	})
	return out
}

func (r *fakeUserRepo) activeCount(userID string) int {
	r.tickets.mu.Lock()
	defer r.tickets.mu.Unlock()
	count := 0
	for _, t := range r.tickets.tickets {
		if t.CurrentAssignee != nil && *t.CurrentAssignee == userID && containsStatus(domain.ActiveStatuses, t.Status) {
			count++
		}
	}
	return count
}

func (r *fakeUserRepo) AutoAssignEnabledForTeam(ctx context.Context, role domain.Role) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, user := range r.users {
		if user.Role == role && user.IsManager && user.IsActive && user.AutoAssignEnabled {
			return true, nil
		}
	}
	return false, nil
}

type fakeActivityRepo struct {
	mu         sync.Mutex
	activities []domain.TicketActivity
	failing    bool
	seq        int
}

func (r *fakeActivityRepo) Create(ctx context.Context, activity *domain.TicketActivity) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.failing {
		return errors.New("activity store unavailable")
	}
	r.seq++
	activity.ID = fmt.Sprintf("act-%04d", r.seq)
	activity.CreatedAt = time.Now().Add(time.Duration(r.seq) * time.Millisecond)
	r.activities = append(r.activities, *activity)
	return nil
}

func (r *fakeActivityRepo) ListByTicket(ctx context.Context, ticketID string) ([]domain.TicketActivity, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []domain.TicketActivity
	for _, a := range r.activities {
		if a.TicketID == ticketID {
			out = append(out, a)
		}
	}
	return out, nil
}

func (r *fakeActivityRepo) actions(ticketID string) []domain.ActivityAction {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []domain.ActivityAction
	for _, a := range r.activities {
		if a.TicketID == ticketID {
			out = append(out, a.Action)
		}
	}
	return out
}

type fakeAttachmentRepo struct {
	mu          sync.Mutex
	attachments map[string]*domain.Attachment
	seq         int
}

func newFakeAttachmentRepo() *fakeAttachmentRepo {
	return &fakeAttachmentRepo{attachments: map[string]*domain.Attachment{}}
}

func (r *fakeAttachmentRepo) Create(ctx context.Context, attachment *domain.Attachment) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.seq++
	attachment.ID = uuid.NewString()
	attachment.CreatedAt = time.Now().Add(time.Duration(r.seq) * time.Millisecond)
	clone := *attachment
	r.attachments[attachment.ID] = &clone
	return nil
}

func (r *fakeAttachmentRepo) GetByID(ctx context.Context, id string) (*domain.Attachment, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	attachment, ok := r.attachments[id]
	if !ok {
		return nil, pgx.ErrNoRows
	}
	clone := *attachment
	return &clone, nil
}

func (r *fakeAttachmentRepo) ListByTicket(ctx context.Context, ticketID string) ([]domain.Attachment, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []domain.Attachment
	for _, a := range r.attachments {
		if a.TicketID == ticketID {
			out = append(out, *a)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

func (r *fakeAttachmentRepo) Delete(ctx context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.attachments[id]; !ok {
		return pgx.ErrNoRows
	}
	delete(r.attachments, id)
	return nil
}

type fakeDeletionRepo struct {
	mu       sync.Mutex
	requests map[string]*domain.DeletionRequest
	seq      int
}

func newFakeDeletionRepo() *fakeDeletionRepo {
	return &fakeDeletionRepo{requests: map[string]*domain.DeletionRequest{}}
}

func (r *fakeDeletionRepo) Create(ctx context.Context, request *domain.DeletionRequest) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.seq++
	request.ID = uuid.NewString()
	request.CreatedAt = time.Now().Add(time.Duration(r.seq) * time.Millisecond)
	clone := *request
	r.requests[request.ID] = &clone
	return nil
}

func (r *fakeDeletionRepo) GetByID(ctx context.Context, id string) (*domain.DeletionRequest, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	request, ok := r.requests[id]
	if !ok {
		return nil, pgx.ErrNoRows
	}
	clone := *request
	return &clone, nil
}

func (r *fakeDeletionRepo) GetOpenByAttachment(ctx context.Context, attachmentID string) (*domain.DeletionRequest, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var latest *domain.DeletionRequest
	for _, request := range r.requests {
		if request.AttachmentID != attachmentID {
			continue
		}
		if request.Status != domain.DeletionStatusPending && request.Status != domain.DeletionStatusApproved {
			continue
		}
		if latest == nil || request.CreatedAt.After(latest.CreatedAt) {
			latest = request
		}
	}
	if latest == nil {
		return nil, pgx.ErrNoRows
	}
	clone := *latest
	return &clone, nil
}

func (r *fakeDeletionRepo) GetLatestByAttachment(ctx context.Context, attachmentID string) (*domain.DeletionRequest, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var latest *domain.DeletionRequest
	for _, request := range r.requests {
		if request.AttachmentID != attachmentID {
			continue
		}
		if latest == nil || request.CreatedAt.After(latest.CreatedAt) {
			latest = request
		}
	}
	if latest == nil {
		return nil, pgx.ErrNoRows
	}
	clone := *latest
	return &clone, nil
}

func (r *fakeDeletionRepo) Approve(ctx context.Context, id, approverID, otpCode string, expiresAt time.Time) error {
	return r.conditional(id, domain.DeletionStatusPending, func(req *domain.DeletionRequest) {
		req.Status = domain.DeletionStatusApproved
		req.ApproverID = &approverID
		req.OTPCode = &otpCode
		req.OTPExpiresAt = &expiresAt
	})
}

func (r *fakeDeletionRepo) Reject(ctx context.Context, id, approverID string, reason *string) error {
	return r.conditional(id, domain.DeletionStatusPending, func(req *domain.DeletionRequest) {
		req.Status = domain.DeletionStatusRejected
		req.ApproverID = &approverID
		req.RejectionReason = reason
	})
}

func (r *fakeDeletionRepo) ClaimUsed(ctx context.Context, id string) error {
	return r.conditional(id, domain.DeletionStatusApproved, func(req *domain.DeletionRequest) {
		req.Status = domain.DeletionStatusUsed
	})
}

func (r *fakeDeletionRepo) conditional(id string, expected domain.DeletionRequestStatus, fn func(*domain.DeletionRequest)) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	request, ok := r.requests[id]
	if !ok || request.Status != expected {
		return repository.ErrRequestConflict
	}
	fn(request)
	return nil
}

func (r *fakeDeletionRepo) ListPendingForRequesterRole(ctx context.Context, requesterRole domain.Role) ([]domain.DeletionRequest, error) {
	return r.filter(func(req *domain.DeletionRequest) bool {
		return req.Status == domain.DeletionStatusPending && req.RequesterRole == requesterRole
	}), nil
}

func (r *fakeDeletionRepo) ListAllPending(ctx context.Context) ([]domain.DeletionRequest, error) {
	return r.filter(func(req *domain.DeletionRequest) bool {
		return req.Status == domain.DeletionStatusPending
	}), nil
}

func (r *fakeDeletionRepo) ListByRequester(ctx context.Context, requesterID string) ([]domain.DeletionRequest, error) {
	return r.filter(func(req *domain.DeletionRequest) bool {
		return req.RequesterID == requesterID
	}), nil
}

func (r *fakeDeletionRepo) filter(keep func(*domain.DeletionRequest) bool) []domain.DeletionRequest {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []domain.DeletionRequest
	for _, request := range r.requests {
		if keep(request) {
			out = append(out, *request)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out
}

type memBlobStore struct {
	mu    sync.Mutex
	blobs map[string][]byte
	fail  error
}

func newMemBlobStore() *memBlobStore {
	return &memBlobStore{blobs: map[string][]byte{}}
}

func (s *memBlobStore) Put(ctx context.Context, key string, data []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.fail != nil {
		return s.fail
	}
	s.blobs[key] = append([]byte(nil), data...)
	return nil
}

func (s *memBlobStore) Get(ctx context.Context, key string) ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	data, ok := s.blobs[key]
	if !ok {
		return nil, errors.New("blob not found")
	}
	return append([]byte(nil), data...), nil
}

func (s *memBlobStore) Delete(ctx context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.blobs, key)
	return nil
}
