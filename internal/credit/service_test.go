package credit

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
)

type memoryRepo struct {
	customers map[int64]Customer
	movements []Movement
	nextCust  int64
	nextMove  int64
}

type memoryTx struct {
	repo *memoryRepo
}

func newMemoryRepo() *memoryRepo {
	return &memoryRepo{customers: make(map[int64]Customer)}
}

func (r *memoryRepo) addCustomer(c Customer) Customer {
	r.nextCust++
	c.ID = r.nextCust
	r.customers[c.ID] = c
	return c
}

func (r *memoryRepo) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	snapshot := make(map[int64]Customer, len(r.customers))
	for id, c := range r.customers {
		snapshot[id] = c
	}
	moves := len(r.movements)
	if err := fn(ctx, &memoryTx{repo: r}); err != nil {
		r.customers = snapshot
		r.movements = r.movements[:moves]
		return err
	}
	return nil
}

func (r *memoryRepo) CreateCustomer(ctx context.Context, c Customer) (int64, error) {
	for _, existing := range r.customers {
		if existing.Code == c.Code {
			return 0, ErrCodeExists
		}
	}
	return r.addCustomer(c).ID, nil
}

func (r *memoryRepo) GetCustomer(ctx context.Context, customerID int64) (Customer, error) {
	c, ok := r.customers[customerID]
	if !ok {
		return Customer{}, ErrCustomerNotFound
	}
	return c, nil
}

func (r *memoryRepo) ListMovements(ctx context.Context, customerID int64, limit int) ([]Movement, error) {
	var out []Movement
	for _, m := range r.movements {
		if m.CustomerID == customerID {
			out = append(out, m)
		}
	}
	return out, nil
}

func (r *memoryRepo) SumMovements(ctx context.Context, customerID int64) (float64, error) {
	var sum float64
	for _, m := range r.movements {
		if m.CustomerID != customerID {
			continue
		}
		if m.Kind == MovementCharge {
			sum += m.Amount
		} else {
			sum -= m.Amount
		}
	}
	return sum, nil
}

func (tx *memoryTx) GetCustomerForUpdate(ctx context.Context, customerID int64) (Customer, error) {
	return tx.repo.GetCustomer(ctx, customerID)
}

func (tx *memoryTx) InsertMovement(ctx context.Context, m Movement) (int64, error) {
	tx.repo.nextMove++
	m.ID = tx.repo.nextMove
	tx.repo.movements = append(tx.repo.movements, m)
	return m.ID, nil
}

func (tx *memoryTx) UpdateBalance(ctx context.Context, customerID int64, newBalance float64) error {
	c, ok := tx.repo.customers[customerID]
	if !ok {
		return ErrCustomerNotFound
	}
	c.Balance = newBalance
	tx.repo.customers[customerID] = c
	return nil
}

func TestChargeWithinLimit(t *testing.T) {
	repo := newMemoryRepo()
	c := repo.addCustomer(Customer{Code: "C-1", CreditLimit: 500, IsActive: true})
	svc := NewService(repo, nil)

	m, err := svc.Charge(context.Background(), c.ID, 200, "SALE-1", 1)
	require.NoError(t, err)
	require.Equal(t, MovementCharge, m.Kind)
	require.InDelta(t, 0, m.PriorBalance, 0.0001)
	require.InDelta(t, 200, m.ResultBalance, 0.0001)

	balance, err := svc.GetBalance(context.Background(), c.ID)
	require.NoError(t, err)
	require.InDelta(t, 200, balance, 0.0001)
}

func TestChargeExceedsLimit(t *testing.T) {
	repo := newMemoryRepo()
	c := repo.addCustomer(Customer{Code: "C-1", CreditLimit: 500, Balance: 400, IsActive: true})
	svc := NewService(repo, nil)

	_, err := svc.Charge(context.Background(), c.ID, 150, "SALE-2", 1)
	require.ErrorIs(t, err, ErrCreditLimitExceeded)

	balance, err := svc.GetBalance(context.Background(), c.ID)
	require.NoError(t, err)
	require.InDelta(t, 400, balance, 0.0001)
	require.Empty(t, repo.movements)
}

func TestChargeExactlyAtLimit(t *testing.T) {
	repo := newMemoryRepo()
	c := repo.addCustomer(Customer{Code: "C-1", CreditLimit: 500, Balance: 400, IsActive: true})
	svc := NewService(repo, nil)

	m, err := svc.Charge(context.Background(), c.ID, 100, "SALE-3", 1)
	require.NoError(t, err)
	require.InDelta(t, 500, m.ResultBalance, 0.0001)
}

func TestChargeWithoutCreditLine(t *testing.T) {
	repo := newMemoryRepo()
	c := repo.addCustomer(Customer{Code: "C-1", CreditLimit: 0, IsActive: true})
	svc := NewService(repo, nil)

	_, err := svc.Charge(context.Background(), c.ID, 10, "SALE-4", 1)
	require.ErrorIs(t, err, ErrCreditNotAllowed)
}

func TestChargeInactiveCustomer(t *testing.T) {
	repo := newMemoryRepo()
	c := repo.addCustomer(Customer{Code: "C-1", CreditLimit: 500, IsActive: false})
	svc := NewService(repo, nil)

	_, err := svc.Charge(context.Background(), c.ID, 10, "SALE-5", 1)
	require.ErrorIs(t, err, ErrCustomerInactive)
}

func TestPaymentMayOverpay(t *testing.T) {
	repo := newMemoryRepo()
	c := repo.addCustomer(Customer{Code: "C-1", CreditLimit: 500, Balance: 50, IsActive: true})
	svc := NewService(repo, nil)

	m, err := svc.Pay(context.Background(), c.ID, PaymentRequest{Amount: 80, Reference: "RCPT-1"}, 1)
	require.NoError(t, err)
	require.Equal(t, MovementPayment, m.Kind)
	require.InDelta(t, -30, m.ResultBalance, 0.0001)
}

func TestInvalidAmountRejected(t *testing.T) {
	repo := newMemoryRepo()
	c := repo.addCustomer(Customer{Code: "C-1", CreditLimit: 500, IsActive: true})
	svc := NewService(repo, nil)

	_, err := svc.Charge(context.Background(), c.ID, 0, "x", 1)
	require.ErrorIs(t, err, ErrInvalidAmount)
	_, err = svc.Pay(context.Background(), c.ID, PaymentRequest{Amount: -5}, 1)
	require.ErrorIs(t, err, ErrInvalidAmount)
}

func TestRecomputeMatchesProjection(t *testing.T) {
	repo := newMemoryRepo()
	c := repo.addCustomer(Customer{Code: "C-1", CreditLimit: 1000, IsActive: true})
	svc := NewService(repo, nil)
	ctx := context.Background()

	_, err := svc.Charge(ctx, c.ID, 300, "SALE-1", 1)
	require.NoError(t, err)
	_, err = svc.Pay(ctx, c.ID, PaymentRequest{Amount: 120, Reference: "RCPT-1"}, 1)
	require.NoError(t, err)

	drift, err := svc.Recompute(ctx, c.ID)
	require.NoError(t, err)
	require.InDelta(t, 0, drift, 0.0001)
}

func TestCreateCustomerDuplicateCode(t *testing.T) {
	repo := newMemoryRepo()
	svc := NewService(repo, nil)
	ctx := context.Background()

	_, err := svc.CreateCustomer(ctx, CreateCustomerRequest{Code: "C-1", Name: "Acme"})
	require.NoError(t, err)
	_, err = svc.CreateCustomer(ctx, CreateCustomerRequest{Code: "C-1", Name: "Acme again"})
	require.ErrorIs(t, err, ErrCodeExists)
}
