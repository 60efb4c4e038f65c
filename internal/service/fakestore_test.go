package service

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/oceanheart-ai/passport/internal/domain"
	"github.com/oceanheart-ai/passport/internal/store"
)

// fakeUserStore is an in-memory store.UserStore for unit tests.
type fakeUserStore struct {
	byID map[uuid.UUID]*domain.User
}

func newFakeUserStore() *fakeUserStore {
	return &fakeUserStore{byID: make(map[uuid.UUID]*domain.User)}
}

func (f *fakeUserStore) Create(_ context.Context, u *domain.User) error {
	for _, existing := range f.byID {
		if existing.Email == u.Email {
			return domain.Conflict("fake.user.create", "email already registered")
		}
	}
	cp := *u
	f.byID[u.ID] = &cp
	return nil
}

func (f *fakeUserStore) FindByID(_ context.Context, id uuid.UUID) (*domain.User, error) {
	u, ok := f.byID[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	cp := *u
	return &cp, nil
}

func (f *fakeUserStore) FindByEmail(_ context.Context, email string) (*domain.User, error) {
	for _, u := range f.byID {
		if u.Email == email {
			cp := *u
			return &cp, nil
		}
	}
	return nil, store.ErrNotFound
}

func (f *fakeUserStore) UpdatePasswordHash(_ context.Context, id uuid.UUID, hash string) error {
	u, ok := f.byID[id]
	if !ok {
		return store.ErrNotFound
	}
	u.PasswordHash = hash
	return nil
}

func (f *fakeUserStore) UpdateRole(_ context.Context, id uuid.UUID, role domain.Role) error {
	u, ok := f.byID[id]
	if !ok {
		return store.ErrNotFound
	}
	u.Role = role
	return nil
}

func (f *fakeUserStore) UpdateEmailVerified(_ context.Context, id uuid.UUID, verifiedAt *time.Time) error {
	u, ok := f.byID[id]
	if !ok {
		return store.ErrNotFound
	}
	u.EmailVerified = true
	u.EmailVerifiedAt = verifiedAt
	return nil
}

func (f *fakeUserStore) Delete(_ context.Context, id uuid.UUID) error {
	if _, ok := f.byID[id]; !ok {
		return store.ErrNotFound
	}
	delete(f.byID, id)
	return nil
}

func (f *fakeUserStore) matches(u *domain.User, filter domain.UserListFilter) bool {
	if filter.Search != "" && !strings.Contains(strings.ToLower(u.Email), strings.ToLower(filter.Search)) {
		return false
	}
	if filter.Role != "" && u.Role != filter.Role {
		return false
	}
	return true
}

func (f *fakeUserStore) List(_ context.Context, filter domain.UserListFilter, limit, offset int) ([]*domain.User, error) {
	var all []*domain.User
	for _, u := range f.byID {
		if !f.matches(u, filter) {
			continue
		}
		cp := *u
		all = append(all, &cp)
	}
	if offset >= len(all) {
		return nil, nil
	}
	end := offset + limit
	if end > len(all) {
		end = len(all)
	}
	return all[offset:end], nil
}

func (f *fakeUserStore) Count(_ context.Context, filter domain.UserListFilter) (int, error) {
	n := 0
	for _, u := range f.byID {
		if f.matches(u, filter) {
			n++
		}
	}
	return n, nil
}

// fakeSessionStore is an in-memory store.SessionStore for unit tests.
type fakeSessionStore struct {
	byHash map[string]*domain.Session
}

func newFakeSessionStore() *fakeSessionStore {
	return &fakeSessionStore{byHash: make(map[string]*domain.Session)}
}

func (f *fakeSessionStore) Create(_ context.Context, s *domain.Session) error {
	cp := *s
	f.byHash[s.TokenHash] = &cp
	return nil
}

func (f *fakeSessionStore) FindByTokenHash(_ context.Context, tokenHash string) (*domain.Session, error) {
	s, ok := f.byHash[tokenHash]
	if !ok || s.IsExpired() {
		return nil, store.ErrNotFound
	}
	cp := *s
	return &cp, nil
}

func (f *fakeSessionStore) Delete(_ context.Context, id uuid.UUID) error {
	for h, s := range f.byHash {
		if s.ID == id {
			delete(f.byHash, h)
			return nil
		}
	}
	return nil
}

func (f *fakeSessionStore) DeleteForUser(_ context.Context, userID uuid.UUID) error {
	for h, s := range f.byHash {
		if s.UserID == userID {
			delete(f.byHash, h)
		}
	}
	return nil
}

func (f *fakeSessionStore) DeleteExpired(_ context.Context) (int64, error) {
	var n int64
	for h, s := range f.byHash {
		if s.IsExpired() {
			delete(f.byHash, h)
			n++
		}
	}
	return n, nil
}

// fakeTokenStore is an in-memory store.TokenStore for unit tests.
type fakeTokenStore struct {
	verify map[string]*domain.EmailVerificationToken
	reset  map[string]*domain.PasswordResetToken
}

func newFakeTokenStore() *fakeTokenStore {
	return &fakeTokenStore{
		verify: make(map[string]*domain.EmailVerificationToken),
		reset:  make(map[string]*domain.PasswordResetToken),
	}
}

func (f *fakeTokenStore) CreateVerificationToken(_ context.Context, t *domain.EmailVerificationToken) error {
	cp := *t
	f.verify[t.TokenHash] = &cp
	return nil
}

func (f *fakeTokenStore) FindVerificationToken(_ context.Context, tokenHash string) (*domain.EmailVerificationToken, error) {
	t, ok := f.verify[tokenHash]
	if !ok {
		return nil, store.ErrNotFound
	}
	cp := *t
	return &cp, nil
}

func (f *fakeTokenStore) DeleteVerificationTokensForUser(_ context.Context, userID uuid.UUID) error {
	for h, t := range f.verify {
		if t.UserID == userID {
			delete(f.verify, h)
		}
	}
	return nil
}

func (f *fakeTokenStore) CreateResetToken(_ context.Context, t *domain.PasswordResetToken) error {
	cp := *t
	f.reset[t.TokenHash] = &cp
	return nil
}

func (f *fakeTokenStore) FindResetToken(_ context.Context, tokenHash string) (*domain.PasswordResetToken, error) {
	t, ok := f.reset[tokenHash]
	if !ok {
		return nil, store.ErrNotFound
	}
	cp := *t
	return &cp, nil
}

func (f *fakeTokenStore) MarkResetTokenUsed(_ context.Context, id uuid.UUID) error {
	for _, t := range f.reset {
		if t.ID == id {
			now := time.Now()
			t.UsedAt = &now
		}
	}
	return nil
}

func (f *fakeTokenStore) DeleteResetTokensForUser(_ context.Context, userID uuid.UUID) error {
	for h, t := range f.reset {
		if t.UserID == userID {
			delete(f.reset, h)
		}
	}
	return nil
}

// fakeEmailService discards every message; tests inspect Sent and the
// captured tokens instead.
type fakeEmailService struct {
	Sent             []string
	LastVerifyToken  string
	LastResetToken   string
}

func (f *fakeEmailService) SendVerificationEmail(_ context.Context, to, _, token string) error {
	f.Sent = append(f.Sent, "verify:"+to)
	f.LastVerifyToken = token
	return nil
}

func (f *fakeEmailService) SendPasswordResetEmail(_ context.Context, to, _, token string) error {
	f.Sent = append(f.Sent, "reset:"+to)
	f.LastResetToken = token
	return nil
}
