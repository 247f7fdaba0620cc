//go:build integration

package postgres

import (
	"context"
	"fmt"
	"log"
	"os"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/xenking/storefront/internal/domain/auth"
	"github.com/xenking/storefront/internal/domain/contact"
	"github.com/xenking/storefront/internal/domain/order"
	"github.com/xenking/storefront/internal/domain/paging"
	"github.com/xenking/storefront/internal/domain/product"
)

var testPool *pgxpool.Pool

func TestMain(m *testing.M) {
	os.Exit(testMain(m))
}

func testMain(m *testing.M) int {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()

	c, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: testcontainers.ContainerRequest{
			Image:        "postgres:16-alpine",
			ExposedPorts: []string{"5432/tcp"},
			Env: map[string]string{
				"POSTGRES_USER":     "store",
				"POSTGRES_PASSWORD": "store",
				"POSTGRES_DB":       "store",
			},
			WaitingFor: wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(time.Minute),
		},
		Started: true,
	})
	if err != nil {
		log.Fatalf("start postgres: %v", err)
	}
	defer func() { _ = c.Terminate(context.Background()) }()

	host, err := c.Host(ctx)
	if err != nil {
		log.Fatalf("host: %v", err)
	}
	port, err := c.MappedPort(ctx, "5432/tcp")
	if err != nil {
		log.Fatalf("mapped port: %v", err)
	}

	dsn := fmt.Sprintf("postgres://store:store@%s:%s/store?sslmode=disable", host, port.Port())
	testPool, err = NewPool(ctx, dsn)
	if err != nil {
		log.Fatalf("pool: %v", err)
	}
	defer testPool.Close()

	if err := RunMigrations(ctx, testPool); err != nil {
		log.Fatalf("migrations: %v", err)
	}
	return m.Run()
}

var slugSeq atomic.Int64

type fixture struct {
	catalog  *CatalogRepository
	products *ProductRepository
	carts    *CartRepository
	orders   *OrderRepository
	users    *UserRepository
	otps     *OTPRepository
	contacts *ContactRepository
	cats     map[string]int64
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{
		catalog:  NewCatalogRepository(testPool),
		products: NewProductRepository(testPool),
		carts:    NewCartRepository(testPool),
		orders:   NewOrderRepository(testPool),
		users:    NewUserRepository(testPool),
		otps:     NewOTPRepository(testPool),
		contacts: NewContactRepository(testPool),
	}
	cats, err := f.catalog.EnsureCategories(context.Background(), []CatalogCategory{{Name: "Spices"}, {Name: "Pulses"}})
	require.NoError(t, err)
	f.cats = cats
	return f
}

func (f *fixture) product(t *testing.T, name, price string, stock int) *product.Product {
	t.Helper()
	ctx := context.Background()
	slug := fmt.Sprintf("%s-%d", name, slugSeq.Add(1))
	require.NoError(t, f.catalog.UpsertProduct(ctx, CatalogProduct{
		Slug:          slug,
		Category:      "Spices",
		Name:          name,
		Price:         decimal.RequireFromString(price),
		Weight:        "100g",
		StockQuantity: stock,
	}, f.cats))

	var id int64
	require.NoError(t, testPool.QueryRow(ctx, `SELECT id FROM products WHERE slug = $1`, slug).Scan(&id))
	p, err := f.products.GetByID(ctx, id)
	require.NoError(t, err)
	return p
}

var mobileSeq atomic.Int64

func (f *fixture) user(t *testing.T) *auth.User {
	t.Helper()
	u := &auth.User{
		Mobile:     fmt.Sprintf("9%09d", mobileSeq.Add(1)),
		Name:       "Test",
		IsVerified: true,
	}
	require.NoError(t, f.users.Create(context.Background(), u))
	return u
}

func (f *fixture) stock(t *testing.T, id int64) int {
	t.Helper()
	var n int
	require.NoError(t, testPool.QueryRow(context.Background(),
		`SELECT stock_quantity FROM products WHERE id = $1`, id).Scan(&n))
	return n
}

func TestUpdateStock_ConcurrentNeverNegative(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	p := f.product(t, "saffron", "500", 10)

	const workers = 25
	var (
		wg        sync.WaitGroup
		succeeded atomic.Int64
		rejected  atomic.Int64
	)
	for range workers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			err := f.products.UpdateStock(ctx, p.ID, -1)
			switch {
			case err == nil:
				succeeded.Add(1)
			case errors.Is(err, product.ErrInsufficientStock):
				rejected.Add(1)
			default:
				t.Errorf("unexpected error: %v", err)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, int64(10), succeeded.Load())
	assert.Equal(t, int64(workers-10), rejected.Load())
	assert.Zero(t, f.stock(t, p.ID))

	require.ErrorIs(t, f.products.UpdateStock(ctx, 987654321, 1), product.ErrNotFound)
}

func TestProducts_ListAndCategories(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	a := f.product(t, "zz-cumin", "50", 5)
	b := f.product(t, "zz-clove", "70", 0)

	res, total, err := f.products.List(ctx, product.Filter{
		Search: "zz-c",
		Sort:   product.SortPriceDesc,
		Page:   paging.New(10, 0),
	})
	require.NoError(t, err)
	assert.Equal(t, 2, total)
	require.Len(t, res, 2)
	assert.Equal(t, b.ID, res[0].ID)
	assert.Equal(t, "Spices", res[0].CategoryName)

	_, total, err = f.products.List(ctx, product.Filter{Search: "zz-c", InStockOnly: true, Page: paging.New(10, 0)})
	require.NoError(t, err)
	assert.Equal(t, 1, total)

	_, total, err = f.products.List(ctx, product.Filter{Search: "100%", Page: paging.New(10, 0)})
	require.NoError(t, err)
	assert.Zero(t, total)

	related, err := f.products.Related(ctx, b, 10)
	require.NoError(t, err)
	require.NotEmpty(t, related)
	assert.NotContains(t, ids(related), b.ID)
	assert.Contains(t, ids(related), a.ID)

	cats, err := f.products.Categories(ctx)
	require.NoError(t, err)
	require.NotEmpty(t, cats)

	_, err = f.products.GetCategory(ctx, 987654321)
	require.ErrorIs(t, err, product.ErrCategoryNotFound)
}

func ids(ps []product.Product) []int64 {
	out := make([]int64, len(ps))
	for i, p := range ps {
		out[i] = p.ID
	}
	return out
}

func TestCart_MergeAndRemove(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	u := f.user(t)
	p := f.product(t, "pepper", "80", 10)

	require.NoError(t, f.carts.Add(ctx, u.ID, p.ID, 2))
	require.NoError(t, f.carts.Add(ctx, u.ID, p.ID, 3))

	qty, err := f.carts.Quantity(ctx, u.ID, p.ID)
	require.NoError(t, err)
	assert.Equal(t, 5, qty)

	items, err := f.carts.Items(ctx, u.ID)
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Equal(t, 5, items[0].Quantity)
	assert.Equal(t, "pepper", items[0].Product.Name)

	ok, err := f.carts.Remove(ctx, u.ID, p.ID)
	require.NoError(t, err)
	assert.True(t, ok)
	ok, err = f.carts.Remove(ctx, u.ID, p.ID)
	require.NoError(t, err)
	assert.False(t, ok)

	n, err := f.carts.Count(ctx, u.ID)
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestOrder_TransactionRollsBack(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	u := f.user(t)
	a := f.product(t, "cardamom", "100", 5)
	b := f.product(t, "nutmeg", "100", 1)
	require.NoError(t, f.carts.Add(ctx, u.ID, a.ID, 2))

	var number string
	err := f.orders.InTx(ctx, func(ctx context.Context, tx order.Tx) error {
		seq, err := tx.NextSequence(ctx)
		require.NoError(t, err)
		o := &order.Order{
			Number:          order.FormatNumber("TST", time.Now(), seq),
			UserID:          u.ID,
			TotalAmount:     decimal.NewFromInt(300),
			DiscountAmount:  decimal.Zero,
			ShippingAmount:  decimal.Zero,
			FinalAmount:     decimal.NewFromInt(300),
			PaymentMethod:   order.PaymentCOD,
			Status:          order.StatusPending,
			PaymentStatus:   order.PaymentPending,
			ShippingAddress: "addr",
		}
		require.NoError(t, tx.Insert(ctx, o))
		number = o.Number
		require.NoError(t, tx.AdjustStock(ctx, a.ID, -2))
		require.NoError(t, tx.ClearCart(ctx, u.ID))
		return tx.AdjustStock(ctx, b.ID, -2)
	})
	require.ErrorIs(t, err, product.ErrInsufficientStock)
	var se *product.StockError
	require.ErrorAs(t, err, &se)
	assert.Equal(t, 1, se.Available)

	_, err = f.orders.GetByNumber(ctx, number)
	require.ErrorIs(t, err, order.ErrNotFound)
	assert.Equal(t, 5, f.stock(t, a.ID))
	assert.Equal(t, 1, f.stock(t, b.ID))
	n, err := f.carts.Count(ctx, u.ID)
	require.NoError(t, err)
	assert.Equal(t, 2, n)
}

func TestOrder_CommitAndRead(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	u := f.user(t)
	a := f.product(t, "mace", "40", 5)

	o := &order.Order{
		UserID:          u.ID,
		TotalAmount:     decimal.RequireFromString("80.00"),
		DiscountAmount:  decimal.Zero,
		ShippingAmount:  decimal.RequireFromString("70.00"),
		FinalAmount:     decimal.RequireFromString("150.00"),
		PaymentMethod:   order.PaymentCOD,
		Status:          order.StatusPending,
		PaymentStatus:   order.PaymentPending,
		ShippingAddress: "addr",
	}
	err := f.orders.InTx(ctx, func(ctx context.Context, tx order.Tx) error {
		seq, err := tx.NextSequence(ctx)
		if err != nil {
			return err
		}
		o.Number = order.FormatNumber("TST", time.Now(), seq)
		if err := tx.Insert(ctx, o); err != nil {
			return err
		}
		return tx.InsertItem(ctx, &order.Item{
			OrderID: o.ID, ProductID: a.ID, ProductName: a.Name, Weight: a.Weight,
			Price: a.Price, Quantity: 2, TotalAmount: a.Price.Mul(decimal.NewFromInt(2)),
		})
	})
	require.NoError(t, err)

	got, err := f.orders.GetByID(ctx, o.ID)
	require.NoError(t, err)
	assert.Equal(t, o.Number, got.Number)
	assert.True(t, got.FinalAmount.Equal(o.FinalAmount))
	require.Len(t, got.Items, 1)
	assert.Equal(t, 1, got.ItemCount)

	err = f.orders.InTx(ctx, func(ctx context.Context, tx order.Tx) error {
		locked, err := tx.Lock(ctx, o.ID)
		if err != nil {
			return err
		}
		return tx.SetStatus(ctx, locked.ID, order.StatusConfirmed, "note")
	})
	require.NoError(t, err)

	list, total, err := f.orders.List(ctx, order.ListFilter{UserID: u.ID, Page: paging.New(10, 0)})
	require.NoError(t, err)
	assert.Equal(t, 1, total)
	require.Len(t, list, 1)
	assert.Equal(t, order.StatusConfirmed, list[0].Status)
	assert.Equal(t, "note", list[0].Notes)
}

func TestUsers_Uniqueness(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	u := f.user(t)

	require.ErrorIs(t, f.users.Create(ctx, &auth.User{Mobile: u.Mobile, Name: "dup"}), auth.ErrMobileTaken)

	u.Email = fmt.Sprintf("u%d@example.com", u.ID)
	require.NoError(t, f.users.Update(ctx, u))

	other := f.user(t)
	other.Email = u.Email
	require.ErrorIs(t, f.users.Update(ctx, other), auth.ErrEmailTaken)

	got, err := f.users.GetByMobile(ctx, u.Mobile)
	require.NoError(t, err)
	assert.Equal(t, u.Email, got.Email)

	got, err = f.users.GetByEmail(ctx, u.Email)
	require.NoError(t, err)
	assert.Equal(t, u.ID, got.ID)
	_, err = f.users.GetByEmail(ctx, "nobody@example.com")
	require.ErrorIs(t, err, auth.ErrUserNotFound)

	_, err = f.users.GetByID(ctx, 987654321)
	require.ErrorIs(t, err, auth.ErrUserNotFound)
}

func TestOTP_SingleUse(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	now := time.Now()
	mobile := fmt.Sprintf("8%09d", mobileSeq.Add(1))

	o := &auth.OTP{Mobile: mobile, Hash: "h", Purpose: auth.PurposeLogin, ExpiresAt: now.Add(time.Minute)}
	require.NoError(t, f.otps.Create(ctx, o))
	require.NoError(t, f.otps.Create(ctx, &auth.OTP{
		Mobile: mobile, Hash: "old", Purpose: auth.PurposeLogin, ExpiresAt: now.Add(-time.Minute),
	}))

	active, err := f.otps.Active(ctx, mobile, auth.PurposeLogin, now)
	require.NoError(t, err)
	require.Len(t, active, 1)

	var wins atomic.Int64
	var wg sync.WaitGroup
	for range 5 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			ok, err := f.otps.MarkUsed(ctx, o.ID)
			assert.NoError(t, err)
			if ok {
				wins.Add(1)
			}
		}()
	}
	wg.Wait()
	assert.Equal(t, int64(1), wins.Load())

	purged, err := f.otps.PurgeExpired(ctx, mobile, now)
	require.NoError(t, err)
	assert.Equal(t, int64(2), purged)
}

func TestContacts(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	m := &contact.Message{Name: "n", Email: "n@example.com", Subject: "s", Message: "m"}
	require.NoError(t, f.contacts.CreateMessage(ctx, m))
	assert.NotZero(t, m.ID)

	email := fmt.Sprintf("news%d@example.com", time.Now().UnixNano())
	require.NoError(t, f.contacts.Subscribe(ctx, email))
	require.ErrorIs(t, f.contacts.Subscribe(ctx, email), contact.ErrAlreadySubscribed)
}
