package gatewaytest

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/iliyamo/storefront/internal/model"
	"github.com/iliyamo/storefront/internal/repository"
)

// MemoryProducts serves both the product and the taxonomy side of the
// catalog.  Filters match on category and brand slugs like ProductRepo.
type MemoryProducts struct {
	mu         sync.Mutex
	rows       []model.Product
	Categories []model.Category
	Brands     []model.Brand
}

func (s *MemoryProducts) put(p model.Product) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if p.CreatedAt.IsZero() {
		p.CreatedAt = time.Now().UTC()
	}
	for i := range s.rows {
		if s.rows[i].ID == p.ID {
			s.rows[i] = p
			return
		}
	}
	s.rows = append(s.rows, p)
}

func (s *MemoryProducts) List(_ context.Context, f model.ProductFilter) ([]model.Product, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := []model.Product{}
	search := strings.ToLower(f.Search)
	for i := len(s.rows) - 1; i >= 0; i-- {
		p := s.rows[i]
		if f.Category != "" && (p.Category == nil || p.Category.Slug != f.Category) {
			continue
		}
		if f.Brand != "" && (p.Brand == nil || p.Brand.Slug != f.Brand) {
			continue
		}
		if f.Featured != nil && p.Featured != *f.Featured {
			continue
		}
		if search != "" && !strings.Contains(strings.ToLower(p.Name), search) {
			continue
		}
		out = append(out, p)
	}
	if f.Offset >= len(out) {
		return []model.Product{}, nil
	}
	out = out[f.Offset:]
	if f.Limit > 0 && f.Limit < len(out) {
		out = out[:f.Limit]
	}
	return out, nil
}

func (s *MemoryProducts) GetBySlug(_ context.Context, slug string) (model.Product, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, p := range s.rows {
		if p.Slug == slug {
			return p, nil
		}
	}
	return model.Product{}, repository.ErrNotFound
}

func (s *MemoryProducts) Create(_ context.Context, in model.ProductInput) (model.Product, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, p := range s.rows {
		if p.Slug == in.Slug {
			return model.Product{}, repository.ErrConflict
		}
	}
	now := time.Now().UTC()
	p := model.Product{
		ID: uuid.NewString(), Name: in.Name, Slug: in.Slug, Description: in.Description,
		Price: in.Price, CompareAtPrice: in.CompareAtPrice, CategoryID: in.CategoryID, BrandID: in.BrandID,
		Stock: in.Stock, Featured: in.Featured, CreatedAt: now, UpdatedAt: now,
		Images: images(in.Images),
	}
	s.rows = append(s.rows, p)
	return p, nil
}

func (s *MemoryProducts) Update(_ context.Context, id string, patch model.ProductPatch) (model.Product, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range s.rows {
		p := &s.rows[i]
		if p.ID != id {
			continue
		}
		if patch.Name != nil {
			p.Name = *patch.Name
		}
		if patch.Slug != nil {
			p.Slug = *patch.Slug
		}
		if patch.Price != nil {
			p.Price = *patch.Price
		}
		if patch.Stock != nil {
			p.Stock = *patch.Stock
		}
		if patch.Featured != nil {
			p.Featured = *patch.Featured
		}
		if patch.Images != nil {
			p.Images = images(*patch.Images)
		}
		p.UpdatedAt = time.Now().UTC()
		return *p, nil
	}
	return model.Product{}, repository.ErrNotFound
}

func (s *MemoryProducts) Delete(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range s.rows {
		if s.rows[i].ID == id {
			s.rows = append(s.rows[:i], s.rows[i+1:]...)
			return nil
		}
	}
	return repository.ErrNotFound
}

func (s *MemoryProducts) Count(_ context.Context) (total, lowStock int, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, p := range s.rows {
		if p.Stock < model.LowStockThreshold {
			lowStock++
		}
	}
	return len(s.rows), lowStock, nil
}

func (s *MemoryProducts) ListCategories(context.Context) ([]model.Category, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := append([]model.Category{}, s.Categories...)
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

func (s *MemoryProducts) ListBrands(context.Context) ([]model.Brand, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := append([]model.Brand{}, s.Brands...)
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

func images(in []model.ImageInput) []model.ProductImage {
	out := make([]model.ProductImage, len(in))
	for i, im := range in {
		out[i] = model.ProductImage{ID: uuid.NewString(), URL: im.URL, Alt: im.Alt, Position: i}
	}
	return out
}

// MemoryOrders mirrors OrderRepo without product joins.
type MemoryOrders struct {
	mu   sync.Mutex
	rows []model.Order
}

func (s *MemoryOrders) ListByUser(_ context.Context, userID string) ([]model.Order, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := []model.Order{}
	for i := len(s.rows) - 1; i >= 0; i-- {
		if s.rows[i].UserID == userID {
			out = append(out, s.rows[i])
		}
	}
	return out, nil
}

func (s *MemoryOrders) ListAll(_ context.Context, limit, offset int) ([]model.Order, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if limit <= 0 {
		limit = 50
	}
	out := []model.Order{}
	for i := len(s.rows) - 1 - offset; i >= 0 && len(out) < limit; i-- {
		out = append(out, s.rows[i])
	}
	return out, nil
}

func (s *MemoryOrders) Get(_ context.Context, id, userID string) (model.Order, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, o := range s.rows {
		if o.ID == id && (userID == "" || o.UserID == userID) {
			return o, nil
		}
	}
	return model.Order{}, repository.ErrNotFound
}

func (s *MemoryOrders) Create(_ context.Context, in model.OrderInput) (model.Order, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := time.Now().UTC()
	o := model.Order{
		ID: uuid.NewString(), UserID: in.UserID, Status: model.OrderPending, Total: in.Total,
		ShippingAddress: in.ShippingAddress, BillingAddress: in.BillingAddress,
		CreatedAt: now, UpdatedAt: now,
	}
	for _, it := range in.Items {
		o.Items = append(o.Items, model.OrderItem{ID: uuid.NewString(), OrderID: o.ID, ProductID: it.ProductID, Quantity: it.Quantity, Price: it.Price})
	}
	s.rows = append(s.rows, o)
	return o, nil
}

func (s *MemoryOrders) UpdateStatus(_ context.Context, id, status string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range s.rows {
		if s.rows[i].ID == id {
			s.rows[i].Status = status
			s.rows[i].UpdatedAt = time.Now().UTC()
			return nil
		}
	}
	return repository.ErrNotFound
}

func (s *MemoryOrders) Totals(context.Context) (count int, revenue float64, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, o := range s.rows {
		if o.Status != model.OrderCancelled {
			revenue += o.Total
		}
	}
	return len(s.rows), revenue, nil
}

// MemoryReviews mirrors ReviewRepo's ownership rules.
type MemoryReviews struct {
	mu   sync.Mutex
	rows []model.Review
}

func (s *MemoryReviews) Create(_ context.Context, userID, productID string, rating int, comment string) (model.Review, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := time.Now().UTC()
	r := model.Review{ID: uuid.NewString(), ProductID: productID, UserID: userID, Rating: rating, Comment: comment, CreatedAt: now, UpdatedAt: now}
	s.rows = append(s.rows, r)
	return r, nil
}

func (s *MemoryReviews) Update(_ context.Context, userID, id string, rating int, comment string) (model.Review, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range s.rows {
		if s.rows[i].ID != id {
			continue
		}
		if s.rows[i].UserID != userID {
			return model.Review{}, repository.ErrForbidden
		}
		s.rows[i].Rating, s.rows[i].Comment, s.rows[i].UpdatedAt = rating, comment, time.Now().UTC()
		return s.rows[i], nil
	}
	return model.Review{}, repository.ErrNotFound
}

func (s *MemoryReviews) Delete(_ context.Context, userID, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range s.rows {
		if s.rows[i].ID != id {
			continue
		}
		if s.rows[i].UserID != userID {
			return repository.ErrForbidden
		}
		s.rows = append(s.rows[:i], s.rows[i+1:]...)
		return nil
	}
	return repository.ErrNotFound
}
