package services

import (
	"context"
	"testing"

	"github.com/ispdesk/backend/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

func TestEngine_Reverse(t *testing.T) {
	ctx := context.Background()

	t.Run("transfer reverses both legs", func(t *testing.T) {
		f := newFixture(t)
		f.account(t, "A", "5000")
		f.account(t, "B", "0")

		transfer, err := f.engine.Transfer(ctx, "admin", models.TransferRequest{FromAccountID: "A", ToAccountID: "B", Amount: dec("1000")})
		require.NoError(t, err)

		comps, err := f.engine.Reverse(ctx, "admin", transfer.In.ID, "wrong destination")
		require.NoError(t, err)
		require.Len(t, comps, 2)
		assert.Equal(t, comps[0].CorrelationID, comps[1].CorrelationID)
		assert.NotEqual(t, transfer.CorrelationID, comps[0].CorrelationID)
		for _, c := range comps {
			require.NotNil(t, c.ReversalOf)
			assert.Equal(t, models.StatusSettled, c.Status)
		}

		assertDecimal(t, "5000", f.balance(t, "A"))
		assertDecimal(t, "0", f.balance(t, "B"))

		out, err := f.store.GetEntry(ctx, transfer.Out.ID)
		require.NoError(t, err)
		assert.Equal(t, models.StatusReversed, out.Status)

		_, err = f.engine.Reverse(ctx, "admin", transfer.Out.ID, "again")
		assert.ErrorIs(t, err, ErrNotReversible)
		_, err = f.engine.Reverse(ctx, "admin", comps[0].ID, "undo the undo")
		assert.ErrorIs(t, err, ErrNotReversible)

		assertBalancesMatchLog(t, f)
	})

	t.Run("reversing a credit needs the money", func(t *testing.T) {
		f := newFixture(t)
		f.account(t, "A", "0")
		f.invoices.On("MarkInvoicePaid", mock.Anything, mock.Anything, mock.Anything).Return(nil)

		payment, err := f.engine.RecordCustomerPayment(ctx, "cashier", models.CustomerPaymentRequest{
			InvoiceID: "INV-1", CustomerID: "C-1", Amount: dec("800"),
			PaymentMethod: models.MethodBankTransfer, BankAccountID: "A",
		})
		require.NoError(t, err)
		_, err = f.engine.RecordExpense(ctx, "admin", models.ExpenseRequest{
			ExpenseType: "rent", Amount: dec("500"), PaymentMethod: models.MethodBankTransfer, BankAccountID: "A",
		})
		require.NoError(t, err)

		_, err = f.engine.Reverse(ctx, "admin", payment.ID, "duplicate payment")
		assert.ErrorIs(t, err, ErrInsufficientFunds)

		stored, err := f.store.GetEntry(ctx, payment.ID)
		require.NoError(t, err)
		assert.Equal(t, models.StatusSettled, stored.Status)
		assertDecimal(t, "300", f.balance(t, "A"))
	})

	t.Run("salary payout reversal restores the employee", func(t *testing.T) {
		f := newFixture(t)
		f.account(t, "A", "10000")
		f.employee(t, "E", "3000", "3000")

		expense, err := f.engine.RecordExpense(ctx, "admin", models.ExpenseRequest{
			ExpenseType: "salary", Amount: dec("3000"), PaymentMethod: models.MethodBankTransfer,
			BankAccountID: "A", EmployeeID: "E",
		})
		require.NoError(t, err)
		assertDecimal(t, "0", f.employeeBalance(t, "E"))

		comps, err := f.engine.Reverse(ctx, "admin", expense.ID, "paid to the wrong employee")
		require.NoError(t, err)
		assert.Len(t, comps, 2)
		assertDecimal(t, "3000", f.employeeBalance(t, "E"))
		assertDecimal(t, "10000", f.balance(t, "A"))
		assertBalancesMatchLog(t, f)

		breakdown, err := f.agg.BreakdownByType(ctx, "E")
		require.NoError(t, err)
		assertDecimal(t, "0", breakdown[models.KindEmployeePayout])
	})

	t.Run("pending payments cannot be reversed", func(t *testing.T) {
		f := newFixture(t)
		f.account(t, "X", "0")
		entry := submitPending(t, f, "INV-9", "100")

		_, err := f.engine.Reverse(ctx, "admin", entry.ID, "customer cancelled")
		assert.ErrorIs(t, err, ErrNotReversible)
	})

	t.Run("reason is required", func(t *testing.T) {
		f := newFixture(t)
		_, err := f.engine.Reverse(ctx, "admin", "any", "x")
		assert.ErrorIs(t, err, ErrValidation)

		_, err = f.engine.Reverse(ctx, "admin", "missing", "not there")
		assert.ErrorIs(t, err, ErrNotFound)
	})
}
