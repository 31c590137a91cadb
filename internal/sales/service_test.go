package sales

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/meridian-pos/meridian-pos/internal/credit"
	"github.com/meridian-pos/meridian-pos/internal/shared"
	"github.com/meridian-pos/meridian-pos/internal/stock"
	"github.com/meridian-pos/meridian-pos/internal/till"
)

// memoryStore backs all four ledgers for the coordinator tests. RunAtomically
// snapshots the whole store and restores it when the callback fails, matching
// the rollback semantics of the real transaction.
type memoryStore struct {
	products  map[int64]stock.Product
	customers map[int64]credit.Customer
	sessions  map[int64]till.Session

	sales       map[int64]Sale
	lines       map[int64]Line
	payments    map[int64]Payment
	stockMoves  []stock.Movement
	creditMoves []credit.Movement
	cashMoves   []till.Movement
	nextID      int64
}

func newMemoryStore() *memoryStore {
	return &memoryStore{
		products:  make(map[int64]stock.Product),
		customers: make(map[int64]credit.Customer),
		sessions:  make(map[int64]till.Session),
		sales:     make(map[int64]Sale),
		lines:     make(map[int64]Line),
		payments:  make(map[int64]Payment),
	}
}

func (s *memoryStore) id() int64 {
	s.nextID++
	return s.nextID
}

func (s *memoryStore) addProduct(p stock.Product) stock.Product {
	p.ID = s.id()
	s.products[p.ID] = p
	return p
}

func (s *memoryStore) addCustomer(c credit.Customer) credit.Customer {
	c.ID = s.id()
	s.customers[c.ID] = c
	return c
}

func (s *memoryStore) addSession(sess till.Session) till.Session {
	sess.ID = s.id()
	s.sessions[sess.ID] = sess
	return sess
}

func (s *memoryStore) snapshot() *memoryStore {
	clone := newMemoryStore()
	for k, v := range s.products {
		clone.products[k] = v
	}
	for k, v := range s.customers {
		clone.customers[k] = v
	}
	for k, v := range s.sessions {
		clone.sessions[k] = v
	}
	for k, v := range s.sales {
		clone.sales[k] = v
	}
	for k, v := range s.lines {
		clone.lines[k] = v
	}
	for k, v := range s.payments {
		clone.payments[k] = v
	}
	clone.stockMoves = append(clone.stockMoves, s.stockMoves...)
	clone.creditMoves = append(clone.creditMoves, s.creditMoves...)
	clone.cashMoves = append(clone.cashMoves, s.cashMoves...)
	clone.nextID = s.nextID
	return clone
}

func (s *memoryStore) restore(from *memoryStore) {
	s.products = from.products
	s.customers = from.customers
	s.sessions = from.sessions
	s.sales = from.sales
	s.lines = from.lines
	s.payments = from.payments
	s.stockMoves = from.stockMoves
	s.creditMoves = from.creditMoves
	s.cashMoves = from.cashMoves
	s.nextID = from.nextID
}

// RunAtomically implements Coordinator.
func (s *memoryStore) RunAtomically(ctx context.Context, fn func(context.Context, TxLedgers) error) error {
	saved := s.snapshot()
	err := fn(ctx, TxLedgers{
		Stock:  (*stockTx)(s),
		Credit: (*creditTx)(s),
		Till:   (*tillTx)(s),
		Sales:  (*salesTx)(s),
	})
	if err != nil {
		s.restore(saved)
	}
	return err
}

// GetSale implements ReaderPort.
func (s *memoryStore) GetSale(ctx context.Context, saleID int64) (Sale, error) {
	sale, ok := s.sales[saleID]
	if !ok {
		return Sale{}, ErrSaleNotFound
	}
	sale.Lines = nil
	sale.Payments = nil
	for _, l := range s.lines {
		if l.SaleID == saleID {
			sale.Lines = append(sale.Lines, l)
		}
	}
	for _, p := range s.payments {
		if p.SaleID == saleID {
			sale.Payments = append(sale.Payments, p)
		}
	}
	return sale, nil
}

type stockTx memoryStore

func (t *stockTx) GetProductForUpdate(ctx context.Context, productID int64) (stock.Product, error) {
	p, ok := t.products[productID]
	if !ok {
		return stock.Product{}, stock.ErrProductNotFound
	}
	return p, nil
}

func (t *stockTx) InsertMovement(ctx context.Context, m stock.Movement) (int64, error) {
	m.ID = (*memoryStore)(t).id()
	t.stockMoves = append(t.stockMoves, m)
	return m.ID, nil
}

func (t *stockTx) UpdateStock(ctx context.Context, productID int64, newQty float64) error {
	p, ok := t.products[productID]
	if !ok {
		return stock.ErrProductNotFound
	}
	p.CurrentStock = newQty
	t.products[productID] = p
	return nil
}

type creditTx memoryStore

func (t *creditTx) GetCustomerForUpdate(ctx context.Context, customerID int64) (credit.Customer, error) {
	c, ok := t.customers[customerID]
	if !ok {
		return credit.Customer{}, credit.ErrCustomerNotFound
	}
	return c, nil
}

func (t *creditTx) InsertMovement(ctx context.Context, m credit.Movement) (int64, error) {
	m.ID = (*memoryStore)(t).id()
	t.creditMoves = append(t.creditMoves, m)
	return m.ID, nil
}

func (t *creditTx) UpdateBalance(ctx context.Context, customerID int64, newBalance float64) error {
	c, ok := t.customers[customerID]
	if !ok {
		return credit.ErrCustomerNotFound
	}
	c.Balance = newBalance
	t.customers[customerID] = c
	return nil
}

type tillTx memoryStore

func (t *tillTx) InsertSession(ctx context.Context, s till.Session) (int64, error) {
	s.ID = (*memoryStore)(t).id()
	t.sessions[s.ID] = s
	return s.ID, nil
}

func (t *tillTx) GetSessionForUpdate(ctx context.Context, sessionID int64) (till.Session, error) {
	s, ok := t.sessions[sessionID]
	if !ok {
		return till.Session{}, till.ErrSessionNotFound
	}
	return s, nil
}

func (t *tillTx) InsertMovement(ctx context.Context, m till.Movement) (int64, error) {
	m.ID = (*memoryStore)(t).id()
	t.cashMoves = append(t.cashMoves, m)
	return m.ID, nil
}

func (t *tillTx) UpdateTotals(ctx context.Context, sessionID int64, balance, salesTotal float64) error {
	s, ok := t.sessions[sessionID]
	if !ok {
		return till.ErrSessionNotFound
	}
	s.Balance = balance
	s.SalesTotal = salesTotal
	t.sessions[sessionID] = s
	return nil
}

func (t *tillTx) CloseSession(ctx context.Context, sessionID int64, closing, variance float64, closedAt time.Time) error {
	s, ok := t.sessions[sessionID]
	if !ok {
		return till.ErrSessionNotFound
	}
	s.Status = till.SessionClosed
	t.sessions[sessionID] = s
	return nil
}

type salesTx memoryStore

func (t *salesTx) InsertSale(ctx context.Context, sale Sale) (int64, error) {
	sale.ID = (*memoryStore)(t).id()
	stored := sale
	stored.Lines = nil
	stored.Payments = nil
	t.sales[sale.ID] = stored
	return sale.ID, nil
}

func (t *salesTx) InsertLine(ctx context.Context, line Line) (int64, error) {
	line.ID = (*memoryStore)(t).id()
	t.lines[line.ID] = line
	return line.ID, nil
}

func (t *salesTx) InsertPayment(ctx context.Context, payment Payment) (int64, error) {
	payment.ID = (*memoryStore)(t).id()
	t.payments[payment.ID] = payment
	return payment.ID, nil
}

func (t *salesTx) GetSaleForUpdate(ctx context.Context, saleID int64) (Sale, error) {
	return (*memoryStore)(t).GetSale(ctx, saleID)
}

func (t *salesTx) UpdateStatus(ctx context.Context, saleID int64, status Status, reason string, closedAt time.Time) error {
	s, ok := t.sales[saleID]
	if !ok {
		return ErrSaleNotFound
	}
	s.Status = status
	s.Reason = &reason
	s.ClosedAt = &closedAt
	t.sales[saleID] = s
	return nil
}

func (t *salesTx) UpdateLineReturned(ctx context.Context, lineID int64, returnedQty float64) error {
	l, ok := t.lines[lineID]
	if !ok {
		return ErrUnknownLine
	}
	l.ReturnedQty = returnedQty
	t.lines[lineID] = l
	return nil
}

type failingNotifier struct {
	calls int
}

func (n *failingNotifier) SaleCompleted(ctx context.Context, sale Sale) error {
	n.calls++
	return errors.New("smtp down")
}

func newTestService(store *memoryStore, notifier Notifier) *Service {
	return NewService(store, store, shared.AllowAll{}, nil, nil, notifier, nil)
}

var cashier = shared.Actor{ID: 7, Role: "cashier"}

func TestCreateSaleCash(t *testing.T) {
	store := newMemoryStore()
	product := store.addProduct(stock.Product{SKU: "SKU-1", UnitPrice: 10, CurrentStock: 20, IsActive: true})
	session := store.addSession(till.Session{RegisterID: 1, Status: till.SessionOpen, Balance: 100})
	svc := newTestService(store, nil)

	sale, err := svc.CreateSale(context.Background(), CreateSaleRequest{
		SessionID: &session.ID,
		Lines:     []CreateLineReq{{ProductID: product.ID, Qty: 2, UnitPrice: 10}},
		Payments:  []CreatePaymentReq{{Method: MethodCash, Amount: 20}},
	}, cashier)
	require.NoError(t, err)
	require.Equal(t, StatusCompleted, sale.Status)
	require.InDelta(t, 20, sale.Total, 0.0001)

	require.InDelta(t, 18, store.products[product.ID].CurrentStock, 0.0001)
	require.InDelta(t, 120, store.sessions[session.ID].Balance, 0.0001)
	require.InDelta(t, 20, store.sessions[session.ID].SalesTotal, 0.0001)
	require.Len(t, store.stockMoves, 1)
	require.Len(t, store.cashMoves, 1)
	require.Equal(t, till.MovementSale, store.cashMoves[0].Kind)
}

func TestCreateSaleCredit(t *testing.T) {
	store := newMemoryStore()
	product := store.addProduct(stock.Product{SKU: "SKU-1", UnitPrice: 50, CurrentStock: 5, IsActive: true})
	customer := store.addCustomer(credit.Customer{Code: "C-1", CreditLimit: 500, IsActive: true})
	svc := newTestService(store, nil)

	sale, err := svc.CreateSale(context.Background(), CreateSaleRequest{
		CustomerID: &customer.ID,
		Lines:      []CreateLineReq{{ProductID: product.ID, Qty: 1, UnitPrice: 50}},
		Payments:   []CreatePaymentReq{{Method: MethodCredit, Amount: 50}},
	}, cashier)
	require.NoError(t, err)
	require.Equal(t, StatusCompleted, sale.Status)
	require.InDelta(t, 50, store.customers[customer.ID].Balance, 0.0001)
	require.Len(t, store.creditMoves, 1)
	require.Equal(t, credit.MovementCharge, store.creditMoves[0].Kind)
}

func TestCreateSaleMixedPayments(t *testing.T) {
	store := newMemoryStore()
	product := store.addProduct(stock.Product{SKU: "SKU-1", UnitPrice: 30, CurrentStock: 10, IsActive: true})
	customer := store.addCustomer(credit.Customer{Code: "C-1", CreditLimit: 500, IsActive: true})
	session := store.addSession(till.Session{RegisterID: 1, Status: till.SessionOpen})
	svc := newTestService(store, nil)

	sale, err := svc.CreateSale(context.Background(), CreateSaleRequest{
		CustomerID: &customer.ID,
		SessionID:  &session.ID,
		Lines:      []CreateLineReq{{ProductID: product.ID, Qty: 2, UnitPrice: 30}},
		Payments: []CreatePaymentReq{
			{Method: MethodCash, Amount: 25},
			{Method: MethodCredit, Amount: 35},
		},
	}, cashier)
	require.NoError(t, err)
	require.InDelta(t, 60, sale.Total, 0.0001)
	require.InDelta(t, 25, store.sessions[session.ID].Balance, 0.0001)
	require.InDelta(t, 35, store.customers[customer.ID].Balance, 0.0001)
}

func TestCreateSaleInsufficientStockRollsBackEverything(t *testing.T) {
	store := newMemoryStore()
	ok := store.addProduct(stock.Product{SKU: "OK", UnitPrice: 10, CurrentStock: 20, IsActive: true})
	scarce := store.addProduct(stock.Product{SKU: "SCARCE", UnitPrice: 10, CurrentStock: 1, IsActive: true})
	session := store.addSession(till.Session{RegisterID: 1, Status: till.SessionOpen, Balance: 100})
	svc := newTestService(store, nil)

	_, err := svc.CreateSale(context.Background(), CreateSaleRequest{
		SessionID: &session.ID,
		Lines: []CreateLineReq{
			{ProductID: ok.ID, Qty: 2, UnitPrice: 10},
			{ProductID: scarce.ID, Qty: 5, UnitPrice: 10},
		},
		Payments: []CreatePaymentReq{{Method: MethodCash, Amount: 70}},
	}, cashier)
	require.ErrorIs(t, err, stock.ErrInsufficientStock)

	// First line's decrement must have been rolled back too.
	require.InDelta(t, 20, store.products[ok.ID].CurrentStock, 0.0001)
	require.InDelta(t, 1, store.products[scarce.ID].CurrentStock, 0.0001)
	require.InDelta(t, 100, store.sessions[session.ID].Balance, 0.0001)
	require.Empty(t, store.stockMoves)
	require.Empty(t, store.sales)
}

func TestCreateSaleCreditLimitRollsBackStock(t *testing.T) {
	store := newMemoryStore()
	product := store.addProduct(stock.Product{SKU: "SKU-1", UnitPrice: 100, CurrentStock: 10, IsActive: true})
	customer := store.addCustomer(credit.Customer{Code: "C-1", CreditLimit: 150, Balance: 100, IsActive: true})
	svc := newTestService(store, nil)

	_, err := svc.CreateSale(context.Background(), CreateSaleRequest{
		CustomerID: &customer.ID,
		Lines:      []CreateLineReq{{ProductID: product.ID, Qty: 1, UnitPrice: 100}},
		Payments:   []CreatePaymentReq{{Method: MethodCredit, Amount: 100}},
	}, cashier)
	require.ErrorIs(t, err, credit.ErrCreditLimitExceeded)

	require.InDelta(t, 10, store.products[product.ID].CurrentStock, 0.0001)
	require.InDelta(t, 100, store.customers[customer.ID].Balance, 0.0001)
	require.Empty(t, store.sales)
}

func TestCreateSalePaymentMismatch(t *testing.T) {
	store := newMemoryStore()
	product := store.addProduct(stock.Product{SKU: "SKU-1", UnitPrice: 121.00, CurrentStock: 10, IsActive: true})
	session := store.addSession(till.Session{RegisterID: 1, Status: till.SessionOpen})
	svc := newTestService(store, nil)

	// One cent short of the 121.00 total.
	_, err := svc.CreateSale(context.Background(), CreateSaleRequest{
		SessionID: &session.ID,
		Lines:     []CreateLineReq{{ProductID: product.ID, Qty: 1, UnitPrice: 121.00}},
		Payments:  []CreatePaymentReq{{Method: MethodCash, Amount: 120.99}},
	}, cashier)
	require.ErrorIs(t, err, ErrPaymentMismatch)
	require.Empty(t, store.stockMoves)
}

func TestCreateSaleEmptyRequestRejected(t *testing.T) {
	store := newMemoryStore()
	svc := newTestService(store, nil)
	ctx := context.Background()

	// 0 paid against a 0 total would slip past the tolerance check alone.
	_, err := svc.CreateSale(ctx, CreateSaleRequest{}, cashier)
	require.ErrorIs(t, err, ErrInvalidRequest)
	require.Empty(t, store.sales)

	product := store.addProduct(stock.Product{SKU: "SKU-1", UnitPrice: 0, CurrentStock: 5, IsActive: true})
	_, err = svc.CreateSale(ctx, CreateSaleRequest{
		Lines: []CreateLineReq{{ProductID: product.ID, Qty: 1, UnitPrice: 0}},
	}, cashier)
	require.ErrorIs(t, err, ErrInvalidRequest)
	require.Empty(t, store.sales)
	require.Empty(t, store.stockMoves)
}

func TestCreateSaleNonPositiveItemsRejected(t *testing.T) {
	store := newMemoryStore()
	product := store.addProduct(stock.Product{SKU: "SKU-1", UnitPrice: 10, CurrentStock: 5, IsActive: true})
	session := store.addSession(till.Session{RegisterID: 1, Status: till.SessionOpen})
	svc := newTestService(store, nil)
	ctx := context.Background()

	_, err := svc.CreateSale(ctx, CreateSaleRequest{
		SessionID: &session.ID,
		Lines:     []CreateLineReq{{ProductID: product.ID, Qty: -2, UnitPrice: 10}},
		Payments:  []CreatePaymentReq{{Method: MethodCash, Amount: -20}},
	}, cashier)
	require.ErrorIs(t, err, ErrInvalidRequest)

	_, err = svc.CreateSale(ctx, CreateSaleRequest{
		SessionID: &session.ID,
		Lines:     []CreateLineReq{{ProductID: product.ID, Qty: 1, UnitPrice: 10}},
		Payments:  []CreatePaymentReq{{Method: MethodCash, Amount: 10}, {Method: MethodCash, Amount: 0}},
	}, cashier)
	require.ErrorIs(t, err, ErrInvalidRequest)
	require.Empty(t, store.stockMoves)
	require.Empty(t, store.cashMoves)
}

func TestCreateSaleToleranceAcceptsSubCentGap(t *testing.T) {
	store := newMemoryStore()
	product := store.addProduct(stock.Product{SKU: "SKU-1", UnitPrice: 0.10, CurrentStock: 10, IsActive: true})
	session := store.addSession(till.Session{RegisterID: 1, Status: till.SessionOpen})
	svc := newTestService(store, nil)

	// 3 * 0.10 accumulates float error well inside the half-cent tolerance.
	_, err := svc.CreateSale(context.Background(), CreateSaleRequest{
		SessionID: &session.ID,
		Lines:     []CreateLineReq{{ProductID: product.ID, Qty: 3, UnitPrice: 0.10}},
		Payments:  []CreatePaymentReq{{Method: MethodCash, Amount: 0.30}},
	}, cashier)
	require.NoError(t, err)
}

func TestCreateSaleCreditWithoutCustomer(t *testing.T) {
	store := newMemoryStore()
	product := store.addProduct(stock.Product{SKU: "SKU-1", UnitPrice: 10, CurrentStock: 10, IsActive: true})
	svc := newTestService(store, nil)

	_, err := svc.CreateSale(context.Background(), CreateSaleRequest{
		Lines:    []CreateLineReq{{ProductID: product.ID, Qty: 1, UnitPrice: 10}},
		Payments: []CreatePaymentReq{{Method: MethodCredit, Amount: 10}},
	}, cashier)
	require.ErrorIs(t, err, ErrCustomerRequired)
}

func TestCreateSaleCashWithoutSession(t *testing.T) {
	store := newMemoryStore()
	product := store.addProduct(stock.Product{SKU: "SKU-1", UnitPrice: 10, CurrentStock: 10, IsActive: true})
	svc := newTestService(store, nil)

	_, err := svc.CreateSale(context.Background(), CreateSaleRequest{
		Lines:    []CreateLineReq{{ProductID: product.ID, Qty: 1, UnitPrice: 10}},
		Payments: []CreatePaymentReq{{Method: MethodCash, Amount: 10}},
	}, cashier)
	require.ErrorIs(t, err, ErrSessionRequired)
}

func TestCreateSaleSkipStockOnlyForNegativeProducts(t *testing.T) {
	store := newMemoryStore()
	service := store.addProduct(stock.Product{SKU: "SVC", UnitPrice: 15, CurrentStock: 0, IsActive: true, AllowNegative: true})
	tracked := store.addProduct(stock.Product{SKU: "TRACKED", UnitPrice: 5, CurrentStock: 10, IsActive: true})
	session := store.addSession(till.Session{RegisterID: 1, Status: till.SessionOpen})
	svc := newTestService(store, nil)

	_, err := svc.CreateSale(context.Background(), CreateSaleRequest{
		SessionID: &session.ID,
		Lines: []CreateLineReq{
			{ProductID: service.ID, Qty: 1, UnitPrice: 15, SkipStock: true},
			{ProductID: tracked.ID, Qty: 1, UnitPrice: 5, SkipStock: true},
		},
		Payments: []CreatePaymentReq{{Method: MethodCash, Amount: 20}},
	}, cashier)
	require.NoError(t, err)

	// The flagged product keeps its projection; the tracked one moves anyway.
	require.InDelta(t, 0, store.products[service.ID].CurrentStock, 0.0001)
	require.InDelta(t, 9, store.products[tracked.ID].CurrentStock, 0.0001)
}

func TestCreateSaleAuthzDenied(t *testing.T) {
	store := newMemoryStore()
	authz := shared.NewStaticAuthorizer(map[string][]string{"cashier": {CapCreate}})
	svc := NewService(store, store, authz, nil, nil, nil, nil)

	_, err := svc.CreateSale(context.Background(), CreateSaleRequest{
		Lines:    []CreateLineReq{{ProductID: 1, Qty: 1, UnitPrice: 1}},
		Payments: []CreatePaymentReq{{Method: MethodOther, Amount: 1}},
	}, shared.Actor{ID: 9, Role: "viewer"})
	require.ErrorIs(t, err, shared.ErrPermissionDenied)
}

func TestCreateSaleNotifierFailureDoesNotBlock(t *testing.T) {
	store := newMemoryStore()
	product := store.addProduct(stock.Product{SKU: "SKU-1", UnitPrice: 10, CurrentStock: 10, IsActive: true})
	session := store.addSession(till.Session{RegisterID: 1, Status: till.SessionOpen})
	notifier := &failingNotifier{}
	svc := newTestService(store, notifier)

	sale, err := svc.CreateSale(context.Background(), CreateSaleRequest{
		SessionID: &session.ID,
		Lines:     []CreateLineReq{{ProductID: product.ID, Qty: 1, UnitPrice: 10}},
		Payments:  []CreatePaymentReq{{Method: MethodCash, Amount: 10}},
	}, cashier)
	require.NoError(t, err)
	require.Equal(t, StatusCompleted, sale.Status)
	require.Equal(t, 1, notifier.calls)
}

func completedSale(t *testing.T, store *memoryStore, svc *Service, customerID, sessionID *int64, lines []CreateLineReq, payments []CreatePaymentReq) Sale {
	t.Helper()
	sale, err := svc.CreateSale(context.Background(), CreateSaleRequest{
		CustomerID: customerID,
		SessionID:  sessionID,
		Lines:      lines,
		Payments:   payments,
	}, cashier)
	require.NoError(t, err)
	return sale
}

func TestCancelSaleRestoresLedgers(t *testing.T) {
	store := newMemoryStore()
	product := store.addProduct(stock.Product{SKU: "SKU-1", UnitPrice: 40, CurrentStock: 10, IsActive: true})
	customer := store.addCustomer(credit.Customer{Code: "C-1", CreditLimit: 500, IsActive: true})
	svc := newTestService(store, nil)

	sale := completedSale(t, store, svc, &customer.ID, nil,
		[]CreateLineReq{{ProductID: product.ID, Qty: 2, UnitPrice: 40}},
		[]CreatePaymentReq{{Method: MethodCredit, Amount: 80}})

	require.InDelta(t, 8, store.products[product.ID].CurrentStock, 0.0001)
	require.InDelta(t, 80, store.customers[customer.ID].Balance, 0.0001)

	cancelled, err := svc.CancelSale(context.Background(), sale.ID, CancelSaleRequest{Reason: "customer changed mind"}, cashier)
	require.NoError(t, err)
	require.Equal(t, StatusCancelled, cancelled.Status)

	require.InDelta(t, 10, store.products[product.ID].CurrentStock, 0.0001)
	require.InDelta(t, 0, store.customers[customer.ID].Balance, 0.0001)
}

func TestCancelSaleTwiceRejected(t *testing.T) {
	store := newMemoryStore()
	product := store.addProduct(stock.Product{SKU: "SKU-1", UnitPrice: 10, CurrentStock: 10, IsActive: true})
	session := store.addSession(till.Session{RegisterID: 1, Status: till.SessionOpen})
	svc := newTestService(store, nil)

	sale := completedSale(t, store, svc, nil, &session.ID,
		[]CreateLineReq{{ProductID: product.ID, Qty: 1, UnitPrice: 10}},
		[]CreatePaymentReq{{Method: MethodCash, Amount: 10}})

	_, err := svc.CancelSale(context.Background(), sale.ID, CancelSaleRequest{Reason: "first"}, cashier)
	require.NoError(t, err)
	_, err = svc.CancelSale(context.Background(), sale.ID, CancelSaleRequest{Reason: "second"}, cashier)
	require.ErrorIs(t, err, ErrInvalidStateTransition)

	// Stock restored exactly once.
	require.InDelta(t, 10, store.products[product.ID].CurrentStock, 0.0001)
}

func TestCancelAfterPartialReturnRestoresRemainder(t *testing.T) {
	store := newMemoryStore()
	product := store.addProduct(stock.Product{SKU: "SKU-1", UnitPrice: 10, CurrentStock: 10, IsActive: true})
	session := store.addSession(till.Session{RegisterID: 1, Status: till.SessionOpen})
	svc := newTestService(store, nil)

	sale := completedSale(t, store, svc, nil, &session.ID,
		[]CreateLineReq{{ProductID: product.ID, Qty: 5, UnitPrice: 10}},
		[]CreatePaymentReq{{Method: MethodCash, Amount: 50}})
	require.InDelta(t, 5, store.products[product.ID].CurrentStock, 0.0001)

	returned, err := svc.ProcessReturn(context.Background(), sale.ID, ReturnRequest{
		Reason: "damaged",
		Lines:  []ReturnLineReq{{LineID: sale.Lines[0].ID, Qty: 2}},
	}, cashier)
	require.NoError(t, err)
	require.Equal(t, StatusCompleted, returned.Status)
	require.InDelta(t, 7, store.products[product.ID].CurrentStock, 0.0001)

	_, err = svc.CancelSale(context.Background(), sale.ID, CancelSaleRequest{Reason: "void"}, cashier)
	require.NoError(t, err)
	// Only the unreturned 3 units come back; 2 were already restocked.
	require.InDelta(t, 10, store.products[product.ID].CurrentStock, 0.0001)
}

func TestProcessReturnFullTransitionsToReturned(t *testing.T) {
	store := newMemoryStore()
	product := store.addProduct(stock.Product{SKU: "SKU-1", UnitPrice: 10, CurrentStock: 10, IsActive: true})
	session := store.addSession(till.Session{RegisterID: 1, Status: till.SessionOpen})
	svc := newTestService(store, nil)

	sale := completedSale(t, store, svc, nil, &session.ID,
		[]CreateLineReq{{ProductID: product.ID, Qty: 3, UnitPrice: 10}},
		[]CreatePaymentReq{{Method: MethodCash, Amount: 30}})

	returned, err := svc.ProcessReturn(context.Background(), sale.ID, ReturnRequest{
		Reason: "full return",
		Lines:  []ReturnLineReq{{LineID: sale.Lines[0].ID, Qty: 3}},
	}, cashier)
	require.NoError(t, err)
	require.Equal(t, StatusReturned, returned.Status)
	require.InDelta(t, 10, store.products[product.ID].CurrentStock, 0.0001)

	// A returned sale can no longer be cancelled.
	_, err = svc.CancelSale(context.Background(), sale.ID, CancelSaleRequest{Reason: "void"}, cashier)
	require.ErrorIs(t, err, ErrInvalidStateTransition)
}

func TestProcessReturnExceedsRemaining(t *testing.T) {
	store := newMemoryStore()
	product := store.addProduct(stock.Product{SKU: "SKU-1", UnitPrice: 10, CurrentStock: 10, IsActive: true})
	session := store.addSession(till.Session{RegisterID: 1, Status: till.SessionOpen})
	svc := newTestService(store, nil)

	sale := completedSale(t, store, svc, nil, &session.ID,
		[]CreateLineReq{{ProductID: product.ID, Qty: 2, UnitPrice: 10}},
		[]CreatePaymentReq{{Method: MethodCash, Amount: 20}})

	_, err := svc.ProcessReturn(context.Background(), sale.ID, ReturnRequest{
		Reason: "too much",
		Lines:  []ReturnLineReq{{LineID: sale.Lines[0].ID, Qty: 3}},
	}, cashier)
	require.ErrorIs(t, err, ErrReturnExceedsQuantity)
	require.InDelta(t, 8, store.products[product.ID].CurrentStock, 0.0001)
}

func TestProcessReturnUnknownLine(t *testing.T) {
	store := newMemoryStore()
	product := store.addProduct(stock.Product{SKU: "SKU-1", UnitPrice: 10, CurrentStock: 10, IsActive: true})
	session := store.addSession(till.Session{RegisterID: 1, Status: till.SessionOpen})
	svc := newTestService(store, nil)

	sale := completedSale(t, store, svc, nil, &session.ID,
		[]CreateLineReq{{ProductID: product.ID, Qty: 1, UnitPrice: 10}},
		[]CreatePaymentReq{{Method: MethodCash, Amount: 10}})

	_, err := svc.ProcessReturn(context.Background(), sale.ID, ReturnRequest{
		Reason: "bad line",
		Lines:  []ReturnLineReq{{LineID: 99999, Qty: 1}},
	}, cashier)
	require.ErrorIs(t, err, ErrUnknownLine)
}

func TestProcessReturnPartialFailureRollsBack(t *testing.T) {
	store := newMemoryStore()
	product := store.addProduct(stock.Product{SKU: "A", UnitPrice: 10, CurrentStock: 10, IsActive: true})
	other := store.addProduct(stock.Product{SKU: "B", UnitPrice: 10, CurrentStock: 10, IsActive: true})
	session := store.addSession(till.Session{RegisterID: 1, Status: till.SessionOpen})
	svc := newTestService(store, nil)

	sale := completedSale(t, store, svc, nil, &session.ID,
		[]CreateLineReq{
			{ProductID: product.ID, Qty: 2, UnitPrice: 10},
			{ProductID: other.ID, Qty: 1, UnitPrice: 10},
		},
		[]CreatePaymentReq{{Method: MethodCash, Amount: 30}})
	require.InDelta(t, 8, store.products[product.ID].CurrentStock, 0.0001)

	var firstLine, secondLine Line
	for _, ln := range sale.Lines {
		if ln.ProductID == product.ID {
			firstLine = ln
		} else {
			secondLine = ln
		}
	}

	// Second position over-returns, so the first position's restock must
	// roll back with it.
	_, err := svc.ProcessReturn(context.Background(), sale.ID, ReturnRequest{
		Reason: "mixed",
		Lines: []ReturnLineReq{
			{LineID: firstLine.ID, Qty: 1},
			{LineID: secondLine.ID, Qty: 5},
		},
	}, cashier)
	require.ErrorIs(t, err, ErrReturnExceedsQuantity)
	require.InDelta(t, 8, store.products[product.ID].CurrentStock, 0.0001)

	reloaded, err := svc.GetSale(context.Background(), sale.ID)
	require.NoError(t, err)
	for _, ln := range reloaded.Lines {
		require.InDelta(t, 0, ln.ReturnedQty, 0.0001)
	}
}

func TestGetSaleNotFound(t *testing.T) {
	store := newMemoryStore()
	svc := newTestService(store, nil)

	_, err := svc.GetSale(context.Background(), 42)
	require.ErrorIs(t, err, ErrSaleNotFound)
}
