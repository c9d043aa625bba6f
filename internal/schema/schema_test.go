package schema

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"querygenie/internal/database"
)

func openShop(t *testing.T) *database.DataSource {
	t.Helper()
	ctx := context.Background()
	ds, err := database.Open(ctx, database.Config{DSN: filepath.Join(t.TempDir(), "shop.db")})
	require.NoError(t, err)
	t.Cleanup(func() { _ = ds.Close() })

	for _, stmt := range []string{
		`CREATE TABLE products (id INTEGER PRIMARY KEY, name VARCHAR(100), price DECIMAL(10,2))`,
		`CREATE TABLE orders (id INTEGER PRIMARY KEY, product_id INTEGER, ordered_at DATE)`,
		`INSERT INTO products (name, price) VALUES ('lamp', 12.5), ('desk', 99)`,
	} {
		_, err := ds.DB().ExecContext(ctx, stmt)
		require.NoError(t, err)
	}
	return ds
}

func TestCatalogDescribe(t *testing.T) {
	catalog := NewCatalog(openShop(t), nil)

	desc, err := catalog.Describe(context.Background())
	require.NoError(t, err)

	want := "Table: orders\n" +
		"  - id (INTEGER)\n" +
		"  - product_id (INTEGER)\n" +
		"  - ordered_at (DATE)\n" +
		"Table: products\n" +
		"  - id (INTEGER)\n" +
		"  - name (VARCHAR(100))\n" +
		"  - price (DECIMAL(10,2))\n"
	assert.Equal(t, want, desc)
}

func TestCatalogDescribeEmptyDatabase(t *testing.T) {
	ds, err := database.Open(context.Background(), database.Config{DSN: filepath.Join(t.TempDir(), "empty.db")})
	require.NoError(t, err)
	defer ds.Close()

	_, err = NewCatalog(ds, nil).Describe(context.Background())
	assert.ErrorIs(t, err, ErrSchemaUnavailable)
}

func TestCatalogDescribeClosedDatabase(t *testing.T) {
	ds := openShop(t)
	require.NoError(t, ds.Close())

	_, err := NewCatalog(ds, nil).Describe(context.Background())
	assert.ErrorIs(t, err, ErrSchemaUnavailable)
}

func TestCatalogPreview(t *testing.T) {
	catalog := NewCatalog(openShop(t), nil)
	ctx := context.Background()

	names, err := catalog.ListTables(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"orders", "products"}, names)

	rows, cols, err := catalog.Preview(ctx, "products", 1)
	require.NoError(t, err)
	assert.Equal(t, []string{"id", "name", "price"}, cols)
	require.Len(t, rows, 1)
	assert.Equal(t, "lamp", rows[0]["name"])

	_, _, err = catalog.Preview(ctx, "products; DROP TABLE orders", 5)
	assert.ErrorIs(t, err, ErrUnknownTable)
}

type countingIntrospector struct {
	mu    sync.Mutex
	calls int
	fail  bool
}

func (c *countingIntrospector) Describe(ctx context.Context) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.calls++
	if c.fail {
		return "", errors.New("connection refused")
	}
	return "Table: t\n  - a (INT)\n", nil
}

func TestCachedDescribesOnce(t *testing.T) {
	inner := &countingIntrospector{}
	cached := NewCached(inner)

	for i := 0; i < 3; i++ {
		desc, err := cached.Describe(context.Background())
		require.NoError(t, err)
		assert.Equal(t, "Table: t\n  - a (INT)\n", desc)
	}
	assert.Equal(t, 1, inner.calls)

	cached.Invalidate()
	_, err := cached.Describe(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, inner.calls)
}

func TestCachedDoesNotCacheFailures(t *testing.T) {
	inner := &countingIntrospector{fail: true}
	cached := NewCached(inner)

	_, err := cached.Describe(context.Background())
	require.Error(t, err)

	inner.fail = false
	desc, err := cached.Describe(context.Background())
	require.NoError(t, err)
	assert.NotEmpty(t, desc)
	assert.Equal(t, 2, inner.calls)
}

type gatedIntrospector struct {
	started chan struct{}
	release chan struct{}
}

func (g *gatedIntrospector) Describe(ctx context.Context) (string, error) {
	close(g.started)
	select {
	case <-g.release:
		return "Table: t\n", nil
	case <-ctx.Done():
		return "", ctx.Err()
	}
}

func TestCachedCancelledCallerDoesNotFailOthers(t *testing.T) {
	inner := &gatedIntrospector{started: make(chan struct{}), release: make(chan struct{})}
	cached := NewCached(inner)

	ctxA, cancelA := context.WithCancel(context.Background())
	errA := make(chan error, 1)
	go func() {
		_, err := cached.Describe(ctxA)
		errA <- err
	}()
	<-inner.started

	type result struct {
		desc string
		err  error
	}
	resB := make(chan result, 1)
	go func() {
		desc, err := cached.Describe(context.Background())
		resB <- result{desc, err}
	}()

	cancelA()
	assert.ErrorIs(t, <-errA, context.Canceled)

	close(inner.release)
	got := <-resB
	require.NoError(t, got.err)
	assert.Equal(t, "Table: t\n", got.desc)
}
