package gatewaytest

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/iliyamo/storefront/internal/gateway"
	"github.com/iliyamo/storefront/internal/model"
	"github.com/iliyamo/storefront/internal/repository"
	"github.com/iliyamo/storefront/internal/utils"
)

// Memory holds in-memory versions of the stores behind gateway.Backend,
// with the same error contract as the MySQL repositories.
type Memory struct {
	Users    *MemoryUsers
	Tokens   *MemoryTokens
	Profiles *MemoryProfiles
	Carts    *MemoryCarts
	Products *MemoryProducts
	Orders   *MemoryOrders
	Reviews  *MemoryReviews
	Sessions *gateway.MemorySessionStore
}

// NewMemory returns empty stores.
func NewMemory() *Memory {
	return &Memory{
		Users:    &MemoryUsers{byID: map[string]model.Credential{}},
		Tokens:   &MemoryTokens{rows: map[string]tokenRow{}},
		Profiles: &MemoryProfiles{rows: map[string]model.Profile{}},
		Carts:    &MemoryCarts{products: map[string]model.Product{}},
		Products: &MemoryProducts{},
		Orders:   &MemoryOrders{},
		Reviews:  &MemoryReviews{},
		Sessions: gateway.NewMemorySessionStore(),
	}
}

// Deps wires the stores into gateway.Deps.
func (m *Memory) Deps() gateway.Deps {
	return gateway.Deps{
		Users:    m.Users,
		Tokens:   m.Tokens,
		Profiles: m.Profiles,
		Carts:    m.Carts,
		Products: m.Products,
		Taxonomy: m.Products,
		Orders:   m.Orders,
		Reviews:  m.Reviews,
		Sessions: m.Sessions,
	}
}

// AddProduct puts p in the catalog and makes it available to carts.
func (m *Memory) AddProduct(p model.Product) {
	m.Products.put(p)
	m.Carts.AddProduct(p)
}

type MemoryUsers struct {
	mu   sync.Mutex
	byID map[string]model.Credential
}

func (s *MemoryUsers) Create(_ context.Context, email, password, role string, meta model.Metadata, cost int) (model.Credential, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, c := range s.byID {
		if c.Email == email {
			return model.Credential{}, repository.ErrEmailExists
		}
	}
	hash, err := utils.HashPassword(password, cost)
	if err != nil {
		return model.Credential{}, err
	}
	now := time.Now().UTC()
	c := model.Credential{ID: uuid.NewString(), Email: email, PasswordHash: hash, Role: role, Metadata: meta, IsActive: true, CreatedAt: now, UpdatedAt: now}
	s.byID[c.ID] = c
	return c, nil
}

func (s *MemoryUsers) GetByEmail(_ context.Context, email string) (model.Credential, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, c := range s.byID {
		if c.Email == email {
			return c, nil
		}
	}
	return model.Credential{}, repository.ErrNotFound
}

func (s *MemoryUsers) GetByID(_ context.Context, id string) (model.Credential, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.byID[id]
	if !ok {
		return model.Credential{}, repository.ErrNotFound
	}
	return c, nil
}

func (s *MemoryUsers) UpdateMetadata(_ context.Context, id string, meta model.Metadata) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.byID[id]
	if !ok {
		return repository.ErrNotFound
	}
	c.Metadata = meta
	s.byID[id] = c
	return nil
}

func (s *MemoryUsers) Delete(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.byID[id]; !ok {
		return repository.ErrNotFound
	}
	delete(s.byID, id)
	return nil
}

// SetRole changes a credential's role, as an operator would in the database.
func (s *MemoryUsers) SetRole(id, role string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c := s.byID[id]
	c.Role = role
	s.byID[id] = c
}

// Deactivate marks a credential inactive.
func (s *MemoryUsers) Deactivate(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c := s.byID[id]
	c.IsActive = false
	s.byID[id] = c
}

// Len returns the number of credentials.
func (s *MemoryUsers) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.byID)
}

type tokenRow struct {
	userID  string
	exp     time.Time
	revoked bool
}

type MemoryTokens struct {
	mu   sync.Mutex
	rows map[string]tokenRow
}

func (s *MemoryTokens) StoreRefresh(_ context.Context, userID, tokenHash string, exp time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.rows[tokenHash] = tokenRow{userID: userID, exp: exp}
	return nil
}

func (s *MemoryTokens) ValidateRefresh(_ context.Context, tokenHash string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.rows[tokenHash]
	if !ok || r.revoked || time.Now().After(r.exp) {
		return "", repository.ErrNotFound
	}
	return r.userID, nil
}

func (s *MemoryTokens) RevokeByHash(_ context.Context, tokenHash string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.rows[tokenHash]
	if !ok {
		return repository.ErrNotFound
	}
	r.revoked = true
	s.rows[tokenHash] = r
	return nil
}

func (s *MemoryTokens) RevokeAllForUser(_ context.Context, userID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for h, r := range s.rows {
		if r.userID == userID {
			r.revoked = true
			s.rows[h] = r
		}
	}
	return nil
}

// Active returns the number of valid refresh tokens of userID.
func (s *MemoryTokens) Active(userID string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, r := range s.rows {
		if r.userID == userID && !r.revoked && time.Now().Before(r.exp) {
			n++
		}
	}
	return n
}

type MemoryProfiles struct {
	mu   sync.Mutex
	rows map[string]model.Profile
	Err  error // returned by Upsert when set
}

func (s *MemoryProfiles) Upsert(_ context.Context, id string, f model.ProfileFields) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.Err != nil {
		return s.Err
	}
	p := s.rows[id]
	p.ID = id
	if f.FullName != nil {
		p.FullName = *f.FullName
	}
	if f.AvatarURL != nil {
		p.AvatarURL = *f.AvatarURL
	}
	if f.Email != nil {
		p.Email = *f.Email
	}
	p.UpdatedAt = time.Now().UTC()
	s.rows[id] = p
	return nil
}

func (s *MemoryProfiles) Get(_ context.Context, id string) (model.Profile, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.rows[id]
	if !ok {
		return model.Profile{}, repository.ErrNotFound
	}
	return p, nil
}

func (s *MemoryProfiles) List(_ context.Context, limit, offset int) ([]model.Profile, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]model.Profile, 0, len(s.rows))
	for _, p := range s.rows {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	if offset >= len(out) {
		return []model.Profile{}, nil
	}
	out = out[offset:]
	if limit > 0 && limit < len(out) {
		out = out[:limit]
	}
	return out, nil
}

func (s *MemoryProfiles) Count(_ context.Context) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.rows), nil
}

// MemoryCarts mirrors CartRepo: increment upsert, rows scoped by user,
// newest first.
type MemoryCarts struct {
	mu       sync.Mutex
	products map[string]model.Product
	rows     []model.CartItem
}

// AddProduct makes p available to upserts.
func (s *MemoryCarts) AddProduct(p model.Product) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.products[p.ID] = p
}

func (s *MemoryCarts) ListByUser(_ context.Context, userID string) ([]model.CartItem, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := []model.CartItem{}
	for i := len(s.rows) - 1; i >= 0; i-- {
		if it := s.rows[i]; it.UserID == userID {
			it.Product = s.products[it.ProductID]
			out = append(out, it)
		}
	}
	return out, nil
}

func (s *MemoryCarts) Upsert(_ context.Context, userID, productID string, quantity int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.products[productID]; !ok {
		return repository.ErrNotFound
	}
	for i := range s.rows {
		if s.rows[i].UserID == userID && s.rows[i].ProductID == productID {
			s.rows[i].Quantity += quantity
			return nil
		}
	}
	s.rows = append(s.rows, model.CartItem{ID: uuid.NewString(), UserID: userID, ProductID: productID, Quantity: quantity})
	return nil
}

func (s *MemoryCarts) UpdateQuantity(_ context.Context, userID, itemID string, quantity int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range s.rows {
		if s.rows[i].ID == itemID && s.rows[i].UserID == userID {
			s.rows[i].Quantity = quantity
			return nil
		}
	}
	return repository.ErrNotFound
}

func (s *MemoryCarts) Delete(_ context.Context, userID, itemID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range s.rows {
		if s.rows[i].ID == itemID && s.rows[i].UserID == userID {
			s.rows = append(s.rows[:i], s.rows[i+1:]...)
			return nil
		}
	}
	return repository.ErrNotFound
}

func (s *MemoryCarts) DeleteAllForUser(_ context.Context, userID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	kept := s.rows[:0]
	for _, it := range s.rows {
		if it.UserID != userID {
			kept = append(kept, it)
		}
	}
	s.rows = kept
	return nil
}
