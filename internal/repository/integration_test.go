package repository

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sync/errgroup"

	"github.com/mmeshcher/gamecodes-store/internal/codes"
	"github.com/mmeshcher/gamecodes-store/internal/model"
	"github.com/mmeshcher/gamecodes-store/internal/service"
)

type pgFixture struct {
	repo *PostgresRepository
	svc  *service.Service
}

func newPGFixture(t *testing.T) *pgFixture {
	t.Helper()
	repo := newTestRepository(t, Options{LockTimeout: 2 * time.Second, TxTimeout: 5 * time.Second})

	c, err := codes.NewCipher(bytes.Repeat([]byte{1}, 32))
	require.NoError(t, err)

	return &pgFixture{repo: repo, svc: service.NewService(repo, c)}
}

func (f *pgFixture) account(t *testing.T, role model.Role, balance string) model.Principal {
	t.Helper()
	id := uuid.NewString()
	require.NoError(t, f.repo.CreateAccount(context.Background(), model.Account{
		ID:           id,
		Email:        id + "@example.com",
		PasswordHash: []byte("x"),
		Role:         role,
		Balance:      decimal.RequireFromString(balance),
	}))
	return model.Principal{AccountID: id, Role: role}
}

func (f *pgFixture) product(t *testing.T, price string, codesList ...string) string {
	t.Helper()
	admin := model.Principal{AccountID: uuid.NewString(), Role: model.RoleAdmin}
	p, err := f.svc.CreateProduct(context.Background(), admin, service.ProductInput{
		Name:     "PSN " + price,
		Platform: "psn",
		Price:    decimal.RequireFromString(price),
	})
	require.NoError(t, err)
	if len(codesList) > 0 {
		_, err = f.svc.AddInventory(context.Background(), admin, p.ID, codesList)
		require.NoError(t, err)
	}
	return p.ID
}

func credit(productID string, qty int) service.PlaceOrderRequest {
	return service.PlaceOrderRequest{
		Items:         []model.CartItem{{ProductID: productID, Quantity: qty}},
		PaymentMethod: model.PaymentMethodCredit,
	}
}

func TestPostgres_PlaceOrderRoundTrip(t *testing.T) {
	f := newPGFixture(t)
	ctx := context.Background()
	buyer := f.account(t, model.RoleCustomer, "50.00")
	pid := f.product(t, "10.00", "A", "B", "C", "D", "E")

	view, err := f.svc.PlaceOrder(ctx, buyer, credit(pid, 3))
	require.NoError(t, err)
	assert.Equal(t, []string{"A", "B", "C"}, view.Items[0].Codes)
	assert.Equal(t, "30.00", view.TotalAmount.StringFixed(2))

	balance, err := f.repo.GetBalance(ctx, buyer.AccountID)
	require.NoError(t, err)
	assert.Equal(t, "20.00", balance.StringFixed(2))

	n, err := f.repo.CountAvailableUnits(ctx, pid)
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	got, err := f.svc.GetOrder(ctx, view.ID, buyer)
	require.NoError(t, err)
	assert.Equal(t, view.Items, got.Items)
	assert.Equal(t, model.OrderStatusCompleted, got.Status)

	orders, err := f.svc.ListOrders(ctx, buyer)
	require.NoError(t, err)
	require.Len(t, orders, 1)

	assert.ErrorIs(t, f.repo.DeleteProduct(ctx, pid), model.ErrProductHasSales)
}

func TestPostgres_InsufficientCreditRollsBack(t *testing.T) {
	f := newPGFixture(t)
	ctx := context.Background()
	buyer := f.account(t, model.RoleCustomer, "20.00")
	pid := f.product(t, "10.00", "A", "B", "C")

	_, err := f.svc.PlaceOrder(ctx, buyer, credit(pid, 3))
	var creditErr *model.InsufficientCreditError
	require.ErrorAs(t, err, &creditErr)
	assert.Equal(t, "30.00", creditErr.Required.StringFixed(2))
	assert.Equal(t, "20.00", creditErr.Available.StringFixed(2))

	n, err := f.repo.CountAvailableUnits(ctx, pid)
	require.NoError(t, err)
	assert.Equal(t, 3, n)

	orders, err := f.repo.ListOrdersByAccount(ctx, buyer.AccountID)
	require.NoError(t, err)
	assert.Empty(t, orders)
}

func TestPostgres_RollbackOnLateFailure(t *testing.T) {
	f := newPGFixture(t)
	ctx := context.Background()
	buyer := f.account(t, model.RoleCustomer, "100.00")
	pid := f.product(t, "1.00", "A", "B")

	boom := errors.New("boom")
	err := f.repo.WithTx(ctx, func(ctx context.Context) error {
		units, err := f.repo.LockAvailableUnits(ctx, pid, 2)
		require.NoError(t, err)
		require.Len(t, units, 2)

		orderID := uuid.NewString()
		require.NoError(t, f.repo.CreateOrder(ctx, model.Order{
			ID:            orderID,
			AccountID:     buyer.AccountID,
			TotalAmount:   decimal.RequireFromString("2"),
			PaymentMethod: model.PaymentMethodCredit,
			Status:        model.OrderStatusPending,
			CreatedAt:     time.Now(),
		}))
		n, err := f.repo.AllocateUnits(ctx, orderID, []string{units[0].ID, units[1].ID}, time.Now())
		require.NoError(t, err)
		require.Equal(t, int64(2), n)

		ok, err := f.repo.DebitBalance(ctx, buyer.AccountID, decimal.RequireFromString("2"))
		require.NoError(t, err)
		require.True(t, ok)
		return boom
	})
	assert.ErrorIs(t, err, boom)

	n, err := f.repo.CountAvailableUnits(ctx, pid)
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	balance, err := f.repo.GetBalance(ctx, buyer.AccountID)
	require.NoError(t, err)
	assert.Equal(t, "100.00", balance.StringFixed(2))
}

func TestPostgres_SkipLockedLeavesUnitsToOthers(t *testing.T) {
	f := newPGFixture(t)
	ctx := context.Background()
	pid := f.product(t, "1.00", "A", "B", "C")

	holding := make(chan struct{})
	release := make(chan struct{})

	var g errgroup.Group
	g.Go(func() error {
		return f.repo.WithTx(ctx, func(ctx context.Context) error {
			units, err := f.repo.LockAvailableUnits(ctx, pid, 2)
			if err != nil {
				return err
			}
			if len(units) != 2 {
				return fmt.Errorf("locked %d units", len(units))
			}
			close(holding)
			<-release
			return nil
		})
	})

	<-holding
	err := f.repo.WithTx(ctx, func(ctx context.Context) error {
		units, err := f.repo.LockAvailableUnits(ctx, pid, 3)
		if err != nil {
			return err
		}
		assert.Len(t, units, 1)
		return nil
	})
	close(release)

	require.NoError(t, err)
	require.NoError(t, g.Wait())
}

func TestPostgres_ConcurrentBuyersNeverShareUnits(t *testing.T) {
	const (
		stock  = 8
		buyers = 24
	)

	f := newPGFixture(t)
	ctx := context.Background()

	values := make([]string, stock)
	for i := range values {
		values[i] = fmt.Sprintf("CODE-%02d", i)
	}
	pid := f.product(t, "2.50", values...)

	principals := make([]model.Principal, buyers)
	for i := range principals {
		principals[i] = f.account(t, model.RoleCustomer, "10.00")
	}

	views := make([]*model.OrderView, buyers)
	errs := make([]error, buyers)
	var g errgroup.Group
	for i := 0; i < buyers; i++ {
		g.Go(func() error {
			views[i], errs[i] = f.svc.PlaceOrder(ctx, principals[i], credit(pid, 1))
			return nil
		})
	}
	require.NoError(t, g.Wait())

	seen := map[string]bool{}
	successes := 0
	for i := range errs {
		if errs[i] != nil {
			assert.True(t,
				errors.Is(errs[i], model.ErrInsufficientStock) || errors.Is(errs[i], model.ErrAllocationRaceLost),
				"unexpected error: %v", errs[i])

			balance, err := f.repo.GetBalance(ctx, principals[i].AccountID)
			require.NoError(t, err)
			assert.Equal(t, "10.00", balance.StringFixed(2))
			continue
		}
		successes++
		code := views[i].Items[0].Codes[0]
		assert.False(t, seen[code], "code %s delivered twice", code)
		seen[code] = true
	}

	assert.LessOrEqual(t, successes, stock)

	left, err := f.repo.CountAvailableUnits(ctx, pid)
	require.NoError(t, err)
	assert.Equal(t, stock-successes, left)
}

func TestPostgres_CreditRequestApproval(t *testing.T) {
	f := newPGFixture(t)
	ctx := context.Background()
	buyer := f.account(t, model.RoleCustomer, "1.00")
	admin := f.account(t, model.RoleAdmin, "0")

	req, err := f.svc.SubmitCreditRequest(ctx, buyer, decimal.RequireFromString("9.99"), "")
	require.NoError(t, err)

	var g errgroup.Group
	results := make([]error, 2)
	for i := range results {
		g.Go(func() error {
			_, results[i] = f.svc.ReviewCreditRequest(ctx, admin, req.ID, true, "")
			return nil
		})
	}
	require.NoError(t, g.Wait())

	okCount := 0
	for _, err := range results {
		if err == nil {
			okCount++
			continue
		}
		assert.ErrorIs(t, err, model.ErrCreditRequestReviewed)
	}
	assert.Equal(t, 1, okCount)

	balance, err := f.repo.GetBalance(ctx, buyer.AccountID)
	require.NoError(t, err)
	assert.Equal(t, "10.99", balance.StringFixed(2))
}
