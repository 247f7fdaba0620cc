// Package memstore is an in-memory implementation of the storefront
// repositories, used by unit tests and local runs without PostgreSQL.
package memstore

import (
	"maps"
	"slices"
	"sync"
	"time"

	"github.com/xenking/storefront/internal/domain/auth"
	"github.com/xenking/storefront/internal/domain/contact"
	"github.com/xenking/storefront/internal/domain/order"
	"github.com/xenking/storefront/internal/domain/product"
)

type cartKey struct {
	userID    int64
	productID int64
}

type cartLine struct {
	qty int
	seq int64
}

// Hooks lets tests inject failures into transactional writes.
type Hooks struct {
	// AdjustStock runs before a stock change inside an order transaction.
	AdjustStock func(productID int64, delta int) error
	// InsertItem runs before an order item is stored.
	InsertItem func(it *order.Item) error
}

// Store holds all data behind one mutex.
type Store struct {
	mu  sync.Mutex
	seq int64
	now func() time.Time

	Hooks Hooks

	categories  map[int64]product.Category
	products    map[int64]product.Product
	cart        map[cartKey]cartLine
	orders      map[int64]order.Order
	orderItems  map[int64][]order.Item
	orderSeq    int64
	users       map[int64]auth.User
	otps        map[int64]auth.OTP
	messages    []contact.Message
	subscribers map[string]time.Time
	apiKeys     map[string]auth.APIKeyInfo
}

// New creates an empty Store.
func New() *Store {
	return &Store{
		now:         time.Now,
		categories:  map[int64]product.Category{},
		products:    map[int64]product.Product{},
		cart:        map[cartKey]cartLine{},
		orders:      map[int64]order.Order{},
		orderItems:  map[int64][]order.Item{},
		users:       map[int64]auth.User{},
		otps:        map[int64]auth.OTP{},
		subscribers: map[string]time.Time{},
		apiKeys:     map[string]auth.APIKeyInfo{},
	}
}

func (s *Store) nextID() int64 {
	s.seq++
	return s.seq
}

type snapshot struct {
	seq        int64
	orderSeq   int64
	products   map[int64]product.Product
	cart       map[cartKey]cartLine
	orders     map[int64]order.Order
	orderItems map[int64][]order.Item
}

func (s *Store) snapshot() snapshot {
	items := make(map[int64][]order.Item, len(s.orderItems))
	for id, list := range s.orderItems {
		items[id] = slices.Clone(list)
	}
	return snapshot{
		seq:        s.seq,
		orderSeq:   s.orderSeq,
		products:   maps.Clone(s.products),
		cart:       maps.Clone(s.cart),
		orders:     maps.Clone(s.orders),
		orderItems: items,
	}
}

func (s *Store) restore(snap snapshot) {
	s.seq = snap.seq
	s.orderSeq = snap.orderSeq
	s.products = snap.products
	s.cart = snap.cart
	s.orders = snap.orders
	s.orderItems = snap.orderItems
}

// PutCategory inserts or replaces a category, assigning an ID when zero.
func (s *Store) PutCategory(c product.Category) product.Category {
	s.mu.Lock()
	defer s.mu.Unlock()
	if c.ID == 0 {
		c.ID = s.nextID()
	}
	s.categories[c.ID] = c
	return c
}

// PutProduct inserts or replaces a product, assigning an ID when zero.
func (s *Store) PutProduct(p product.Product) product.Product {
	s.mu.Lock()
	defer s.mu.Unlock()
	if p.ID == 0 {
		p.ID = s.nextID()
	}
	if p.CreatedAt.IsZero() {
		p.CreatedAt = s.now()
		p.UpdatedAt = p.CreatedAt
	}
	s.products[p.ID] = p
	return p
}

// Product returns the stored product regardless of its active flag.
func (s *Store) Product(id int64) (product.Product, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.products[id]
	return p, ok
}

// OrderCount returns the number of stored orders.
func (s *Store) OrderCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.orders)
}

// PutAPIKey stores an API key by hash.
func (s *Store) PutAPIKey(k auth.APIKeyInfo) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.apiKeys[k.KeyHash] = k
}

// Messages returns the stored contact messages.
func (s *Store) Messages() []contact.Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	return slices.Clone(s.messages)
}

// Products returns the product repository view.
func (s *Store) Products() *Products { return &Products{s: s} }

// Cart returns the cart repository view.
func (s *Store) Cart() *Cart { return &Cart{s: s} }

// Orders returns the order repository view.
func (s *Store) Orders() *Orders { return &Orders{s: s} }

// Users returns the user repository view.
func (s *Store) Users() *Users { return &Users{s: s} }

// OTPs returns the OTP repository view.
func (s *Store) OTPs() *OTPs { return &OTPs{s: s} }

// Contacts returns the contact repository view.
func (s *Store) Contacts() *Contacts { return &Contacts{s: s} }

// APIKeys returns the API key repository view.
func (s *Store) APIKeys() *APIKeys { return &APIKeys{s: s} }
