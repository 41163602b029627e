package service

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"github.com/mmeshcher/gamecodes-store/internal/model"
)

// memStore реализует Repository в памяти. Транзакции выполняются последовательно
// под одним мьютексом и откатываются восстановлением снимка состояния.
type memStore struct {
	mu sync.Mutex

	state memState

	// skipLocked имитирует строки, заблокированные конкурирующей транзакцией.
	skipLocked int
	// drainOnDebit имитирует параллельную покупку, списавшую баланс после проверки.
	drainOnDebit bool
	// failOn возвращает ошибку из метода с указанным именем.
	failOn map[string]error
}

type memState struct {
	accounts map[string]model.Account
	products map[string]model.Product
	units    []model.InventoryUnit
	orders   map[string]model.Order
	lines    []model.OrderLine
	credit   map[string]model.CreditRequest
}

func newMemStore() *memStore {
	return &memStore{
		state: memState{
			accounts: map[string]model.Account{},
			products: map[string]model.Product{},
			orders:   map[string]model.Order{},
			credit:   map[string]model.CreditRequest{},
		},
		failOn: map[string]error{},
	}
}

func (st memState) clone() memState {
	c := memState{
		accounts: make(map[string]model.Account, len(st.accounts)),
		products: make(map[string]model.Product, len(st.products)),
		units:    make([]model.InventoryUnit, len(st.units)),
		orders:   make(map[string]model.Order, len(st.orders)),
		lines:    make([]model.OrderLine, len(st.lines)),
		credit:   make(map[string]model.CreditRequest, len(st.credit)),
	}
	for k, v := range st.accounts {
		c.accounts[k] = v
	}
	for k, v := range st.products {
		c.products[k] = v
	}
	copy(c.units, st.units)
	for k, v := range st.orders {
		c.orders[k] = v
	}
	copy(c.lines, st.lines)
	for k, v := range st.credit {
		c.credit[k] = v
	}
	return c
}

type memTxKey struct{}

func (m *memStore) lock(ctx context.Context) func() {
	if ctx.Value(memTxKey{}) != nil {
		return func() {}
	}
	m.mu.Lock()
	return m.mu.Unlock
}

func (m *memStore) fail(name string) error {
	return m.failOn[name]
}

func (m *memStore) snapshot() memState {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state.clone()
}

func (m *memStore) Close() error { return nil }

func (m *memStore) WithTx(ctx context.Context, fn func(ctx context.Context) error) error {
	if ctx.Value(memTxKey{}) != nil {
		return fn(ctx)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	saved := m.state.clone()
	if err := fn(context.WithValue(ctx, memTxKey{}, true)); err != nil {
		m.state = saved
		return err
	}
	return nil
}

func (m *memStore) CreateAccount(ctx context.Context, a model.Account) error {
	defer m.lock(ctx)()
	for _, existing := range m.state.accounts {
		if existing.Email == a.Email {
			return model.ErrAccountExists
		}
	}
	m.state.accounts[a.ID] = a
	return nil
}

func (m *memStore) GetAccountByEmail(ctx context.Context, email string) (*model.Account, error) {
	defer m.lock(ctx)()
	for _, a := range m.state.accounts {
		if a.Email == email {
			return &a, nil
		}
	}
	return nil, model.ErrAccountNotFound
}

func (m *memStore) GetAccount(ctx context.Context, id string) (*model.Account, error) {
	defer m.lock(ctx)()
	a, ok := m.state.accounts[id]
	if !ok {
		return nil, model.ErrAccountNotFound
	}
	return &a, nil
}

func (m *memStore) GetBalance(ctx context.Context, accountID string) (decimal.Decimal, error) {
	defer m.lock(ctx)()
	a, ok := m.state.accounts[accountID]
	if !ok {
		return decimal.Zero, model.ErrAccountNotFound
	}
	return a.Balance, nil
}

func (m *memStore) DebitBalance(ctx context.Context, accountID string, amount decimal.Decimal) (bool, error) {
	defer m.lock(ctx)()
	if err := m.fail("DebitBalance"); err != nil {
		return false, err
	}
	a, ok := m.state.accounts[accountID]
	if !ok {
		return false, model.ErrAccountNotFound
	}
	if m.drainOnDebit {
		a.Balance = decimal.Zero
		m.state.accounts[accountID] = a
	}
	if a.Balance.LessThan(amount) {
		return false, nil
	}
	a.Balance = a.Balance.Sub(amount)
	m.state.accounts[accountID] = a
	return true, nil
}

func (m *memStore) CreditBalance(ctx context.Context, accountID string, amount decimal.Decimal) error {
	defer m.lock(ctx)()
	a, ok := m.state.accounts[accountID]
	if !ok {
		return model.ErrAccountNotFound
	}
	a.Balance = a.Balance.Add(amount)
	m.state.accounts[accountID] = a
	return nil
}

func (m *memStore) SetAccountBanned(ctx context.Context, accountID string, banned bool) error {
	defer m.lock(ctx)()
	a, ok := m.state.accounts[accountID]
	if !ok {
		return model.ErrAccountNotFound
	}
	a.Banned = banned
	m.state.accounts[accountID] = a
	return nil
}

func (m *memStore) ListProducts(ctx context.Context, activeOnly bool) ([]model.Product, error) {
	defer m.lock(ctx)()
	var res []model.Product
	for _, p := range m.state.products {
		if activeOnly && !p.Active {
			continue
		}
		p.AvailableCount = m.countAvailable(p.ID)
		res = append(res, p)
	}
	sort.Slice(res, func(i, j int) bool { return res[i].Name < res[j].Name })
	return res, nil
}

func (m *memStore) GetProduct(ctx context.Context, id string) (*model.Product, error) {
	defer m.lock(ctx)()
	p, ok := m.state.products[id]
	if !ok {
		return nil, &model.ProductNotFoundError{ProductID: id}
	}
	return &p, nil
}

func (m *memStore) CreateProduct(ctx context.Context, p model.Product) error {
	defer m.lock(ctx)()
	m.state.products[p.ID] = p
	return nil
}

func (m *memStore) UpdateProductPrice(ctx context.Context, id string, price decimal.Decimal) error {
	defer m.lock(ctx)()
	p, ok := m.state.products[id]
	if !ok {
		return &model.ProductNotFoundError{ProductID: id}
	}
	p.Price = price
	m.state.products[id] = p
	return nil
}

func (m *memStore) SetProductActive(ctx context.Context, id string, active bool) error {
	defer m.lock(ctx)()
	p, ok := m.state.products[id]
	if !ok {
		return &model.ProductNotFoundError{ProductID: id}
	}
	p.Active = active
	m.state.products[id] = p
	return nil
}

func (m *memStore) DeleteProduct(ctx context.Context, id string) error {
	defer m.lock(ctx)()
	if _, ok := m.state.products[id]; !ok {
		return &model.ProductNotFoundError{ProductID: id}
	}
	kept := m.state.units[:0:0]
	for _, u := range m.state.units {
		if u.ProductID != id {
			kept = append(kept, u)
			continue
		}
		if u.Status == model.UnitStatusAllocated {
			return model.ErrProductHasSales
		}
	}
	m.state.units = kept
	delete(m.state.products, id)
	return nil
}

func (m *memStore) countAvailable(productID string) int {
	n := 0
	for _, u := range m.state.units {
		if u.ProductID == productID && u.Status == model.UnitStatusAvailable {
			n++
		}
	}
	return n
}

func (m *memStore) CountAvailableUnits(ctx context.Context, productID string) (int, error) {
	defer m.lock(ctx)()
	return m.countAvailable(productID), nil
}

func (m *memStore) LockAvailableUnits(ctx context.Context, productID string, limit int) ([]model.InventoryUnit, error) {
	defer m.lock(ctx)()

	var available []model.InventoryUnit
	for _, u := range m.state.units {
		if u.ProductID == productID && u.Status == model.UnitStatusAvailable {
			available = append(available, u)
		}
	}
	sort.SliceStable(available, func(i, j int) bool { return available[i].CreatedAt.Before(available[j].CreatedAt) })

	available = available[min(m.skipLocked, len(available)):]
	if len(available) > limit {
		available = available[:limit]
	}
	return available, nil
}

func (m *memStore) AllocateUnits(ctx context.Context, orderID string, unitIDs []string, at time.Time) (int64, error) {
	defer m.lock(ctx)()
	ids := make(map[string]bool, len(unitIDs))
	for _, id := range unitIDs {
		ids[id] = true
	}

	var n int64
	for i, u := range m.state.units {
		if ids[u.ID] && u.Status == model.UnitStatusAvailable {
			oid := orderID
			ts := at
			u.Status = model.UnitStatusAllocated
			u.OrderID = &oid
			u.AllocatedAt = &ts
			m.state.units[i] = u
			n++
		}
	}
	return n, nil
}

func (m *memStore) AddInventoryUnits(ctx context.Context, productID string, payloads [][]byte, at time.Time) (int64, error) {
	defer m.lock(ctx)()
	if _, ok := m.state.products[productID]; !ok {
		return 0, &model.ProductNotFoundError{ProductID: productID}
	}
	for _, p := range payloads {
		m.state.units = append(m.state.units, model.InventoryUnit{
			ID:        newTestID(),
			ProductID: productID,
			Payload:   p,
			Status:    model.UnitStatusAvailable,
			CreatedAt: at,
		})
	}
	return int64(len(payloads)), nil
}

func (m *memStore) DeleteInventoryUnit(ctx context.Context, unitID string) error {
	defer m.lock(ctx)()
	for i, u := range m.state.units {
		if u.ID != unitID {
			continue
		}
		if u.Status == model.UnitStatusAllocated {
			return model.ErrUnitAllocated
		}
		m.state.units = append(m.state.units[:i:i], m.state.units[i+1:]...)
		return nil
	}
	return model.ErrUnitNotFound
}

func (m *memStore) CreateOrder(ctx context.Context, o model.Order) error {
	defer m.lock(ctx)()
	if err := m.fail("CreateOrder"); err != nil {
		return err
	}
	if _, ok := m.state.accounts[o.AccountID]; !ok {
		return model.ErrAccountNotFound
	}
	o.Lines = nil
	m.state.orders[o.ID] = o
	return nil
}

func (m *memStore) CreateOrderLines(ctx context.Context, lines []model.OrderLine) error {
	defer m.lock(ctx)()
	if err := m.fail("CreateOrderLines"); err != nil {
		return err
	}
	for _, l := range lines {
		l.Payload = nil
		m.state.lines = append(m.state.lines, l)
	}
	return nil
}

func (m *memStore) SetOrderStatus(ctx context.Context, orderID string, from, to model.OrderStatus) error {
	defer m.lock(ctx)()
	if err := m.fail("SetOrderStatus"); err != nil {
		return err
	}
	o, ok := m.state.orders[orderID]
	if !ok || o.Status != from {
		return model.ErrOrderNotFound
	}
	o.Status = to
	m.state.orders[orderID] = o
	return nil
}

func (m *memStore) orderWithLines(o model.Order) model.Order {
	payloads := make(map[string][]byte, len(m.state.units))
	for _, u := range m.state.units {
		payloads[u.ID] = u.Payload
	}
	o.Lines = nil
	for _, l := range m.state.lines {
		if l.OrderID == o.ID {
			l.Payload = payloads[l.UnitID]
			l.ProductName = m.state.products[l.ProductID].Name
			o.Lines = append(o.Lines, l)
		}
	}
	return o
}

func (m *memStore) GetOrder(ctx context.Context, orderID, ownerID string) (*model.Order, error) {
	defer m.lock(ctx)()
	o, ok := m.state.orders[orderID]
	if !ok || (ownerID != "" && o.AccountID != ownerID) {
		return nil, model.ErrOrderNotFound
	}
	o = m.orderWithLines(o)
	return &o, nil
}

func (m *memStore) ListOrdersByAccount(ctx context.Context, accountID string) ([]model.Order, error) {
	defer m.lock(ctx)()
	var res []model.Order
	for _, o := range m.state.orders {
		if o.AccountID == accountID {
			res = append(res, m.orderWithLines(o))
		}
	}
	sort.Slice(res, func(i, j int) bool { return res[i].CreatedAt.After(res[j].CreatedAt) })
	return res, nil
}

func (m *memStore) CreateCreditRequest(ctx context.Context, req model.CreditRequest) error {
	defer m.lock(ctx)()
	if _, ok := m.state.accounts[req.AccountID]; !ok {
		return model.ErrAccountNotFound
	}
	m.state.credit[req.ID] = req
	return nil
}

func (m *memStore) GetCreditRequestForUpdate(ctx context.Context, id string) (*model.CreditRequest, error) {
	defer m.lock(ctx)()
	req, ok := m.state.credit[id]
	if !ok {
		return nil, model.ErrCreditRequestNotFound
	}
	return &req, nil
}

func (m *memStore) MarkCreditRequestReviewed(ctx context.Context, id string, status model.CreditRequestStatus, adminNote, reviewerID string, at time.Time) error {
	defer m.lock(ctx)()
	req, ok := m.state.credit[id]
	if !ok || req.Status != model.CreditRequestPending {
		return model.ErrCreditRequestReviewed
	}
	req.Status = status
	req.AdminNote = adminNote
	req.ReviewedBy = &reviewerID
	req.ReviewedAt = &at
	m.state.credit[id] = req
	return nil
}

func (m *memStore) ListCreditRequests(ctx context.Context, status model.CreditRequestStatus) ([]model.CreditRequest, error) {
	defer m.lock(ctx)()
	var res []model.CreditRequest
	for _, req := range m.state.credit {
		if status == "" || req.Status == status {
			res = append(res, req)
		}
	}
	sort.Slice(res, func(i, j int) bool { return res[i].CreatedAt.Before(res[j].CreatedAt) })
	return res, nil
}
