package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/shopspring/decimal"

	"github.com/iho/bondtab/internal/domain"
	"github.com/iho/bondtab/internal/usecase"
)

// Vault keeps external balances and allowances in Postgres. It implements
// usecase.Vault; every movement joins the caller's transaction.
type Vault struct {
	db DB
}

// NewVault creates a new Vault.
func NewVault(db DB) *Vault {
	return &Vault{db: db}
}

// For returns the value-transfer capability of custodian.
func (v *Vault) For(custodian common.Address) usecase.ValueTransfer {
	return &custodyAccount{vault: v, custodian: custodian}
}

// BalanceOf returns the balance of addr.
func (v *Vault) BalanceOf(ctx context.Context, addr common.Address) (decimal.Decimal, error) {
	return v.balance(ctx, v.db, addr, "")
}

// Allowance returns how much spender may pull from owner.
func (v *Vault) Allowance(ctx context.Context, owner, spender common.Address) (decimal.Decimal, error) {
	return v.allowance(ctx, v.db, owner, spender, "")
}

// Approve sets the allowance of spender over owner's balance.
func (v *Vault) Approve(ctx context.Context, tx usecase.Transaction, owner, spender common.Address, amount decimal.Decimal) error {
	q, err := pgxTx(tx)
	if err != nil {
		return err
	}
	if amount.IsNegative() || !amount.IsInteger() {
		return fmt.Errorf("%w: allowance %s", domain.ErrInvalidAmount, amount)
	}
	return v.setAllowance(ctx, q, owner, spender, amount)
}

// Mint credits new units to addr.
func (v *Vault) Mint(ctx context.Context, tx usecase.Transaction, to common.Address, amount decimal.Decimal) error {
	q, err := pgxTx(tx)
	if err != nil {
		return err
	}
	if err := domain.ValidateAmount(amount); err != nil {
		return err
	}
	return v.credit(ctx, q, to, amount)
}

func (v *Vault) balance(ctx context.Context, q querier, addr common.Address, lock string) (decimal.Decimal, error) {
	var n pgtype.Numeric
	err := q.QueryRow(ctx, `SELECT balance FROM vault_balances WHERE address = $1`+lock, addr.Bytes()).Scan(&n)
	if errors.Is(err, pgx.ErrNoRows) {
		return decimal.Zero, nil
	}
	if err != nil {
		return decimal.Zero, fmt.Errorf("postgres: get balance: %w", err)
	}
	return numericToDecimal(n), nil
}

func (v *Vault) allowance(ctx context.Context, q querier, owner, spender common.Address, lock string) (decimal.Decimal, error) {
	var n pgtype.Numeric
	const query = `SELECT amount FROM vault_allowances WHERE owner = $1 AND spender = $2`
	err := q.QueryRow(ctx, query+lock, owner.Bytes(), spender.Bytes()).Scan(&n)
	if errors.Is(err, pgx.ErrNoRows) {
		return decimal.Zero, nil
	}
	if err != nil {
		return decimal.Zero, fmt.Errorf("postgres: get allowance: %w", err)
	}
	return numericToDecimal(n), nil
}

func (v *Vault) setAllowance(ctx context.Context, q querier, owner, spender common.Address, amount decimal.Decimal) error {
	const query = `INSERT INTO vault_allowances (owner, spender, amount) VALUES ($1, $2, $3)
		ON CONFLICT (owner, spender) DO UPDATE SET amount = EXCLUDED.amount`
	if _, err := q.Exec(ctx, query, owner.Bytes(), spender.Bytes(), decimalToNumeric(amount)); err != nil {
		return fmt.Errorf("postgres: set allowance: %w", err)
	}
	return nil
}

func (v *Vault) credit(ctx context.Context, q querier, to common.Address, amount decimal.Decimal) error {
	const query = `INSERT INTO vault_balances (address, balance) VALUES ($1, $2)
		ON CONFLICT (address) DO UPDATE SET balance = vault_balances.balance + EXCLUDED.balance`
	if _, err := q.Exec(ctx, query, to.Bytes(), decimalToNumeric(amount)); err != nil {
		return fmt.Errorf("postgres: credit balance: %w", err)
	}
	return nil
}

// move transfers amount between balances, spending spender's allowance when
// spender is not the owner. Both checks run before any row is written.
func (v *Vault) move(ctx context.Context, q querier, spender, from, to common.Address, amount decimal.Decimal) error {
	if err := domain.ValidateAmount(amount); err != nil {
		return err
	}

	var allowed decimal.Decimal
	if spender != from {
		var err error
		allowed, err = v.allowance(ctx, q, from, spender, " FOR UPDATE")
		if err != nil {
			return err
		}
		if allowed.LessThan(amount) {
			return fmt.Errorf("%w: %s allows %s, need %s", domain.ErrInsufficientAllowance, from.Hex(), allowed, amount)
		}
	}

	balance, err := v.balance(ctx, q, from, " FOR UPDATE")
	if err != nil {
		return err
	}
	if balance.LessThan(amount) {
		return fmt.Errorf("%w: %s holds %s, need %s", domain.ErrInsufficientFunds, from.Hex(), balance, amount)
	}

	if spender != from {
		if err := v.setAllowance(ctx, q, from, spender, allowed.Sub(amount)); err != nil {
			return err
		}
	}
	const debit = `UPDATE vault_balances SET balance = $2 WHERE address = $1`
	if _, err := q.Exec(ctx, debit, from.Bytes(), decimalToNumeric(balance.Sub(amount))); err != nil {
		return fmt.Errorf("postgres: debit balance: %w", err)
	}
	return v.credit(ctx, q, to, amount)
}

type custodyAccount struct {
	vault     *Vault
	custodian common.Address
}

func (c *custodyAccount) Deposit(ctx context.Context, tx usecase.Transaction, from common.Address, amount decimal.Decimal) error {
	q, err := pgxTx(tx)
	if err != nil {
		return err
	}
	return c.vault.move(ctx, q, c.custodian, from, c.custodian, amount)
}

func (c *custodyAccount) Withdraw(ctx context.Context, tx usecase.Transaction, to common.Address, amount decimal.Decimal) error {
	q, err := pgxTx(tx)
	if err != nil {
		return err
	}
	return c.vault.move(ctx, q, c.custodian, c.custodian, to, amount)
}

func (c *custodyAccount) Transfer(ctx context.Context, tx usecase.Transaction, from, to common.Address, amount decimal.Decimal) error {
	q, err := pgxTx(tx)
	if err != nil {
		return err
	}
	return c.vault.move(ctx, q, c.custodian, from, to, amount)
}

// Holding reads the custodian's balance. A nil tx reads outside any transaction.
func (c *custodyAccount) Holding(ctx context.Context, tx usecase.Transaction) (decimal.Decimal, error) {
	if tx == nil {
		return c.vault.BalanceOf(ctx, c.custodian)
	}
	q, err := pgxTx(tx)
	if err != nil {
		return decimal.Zero, err
	}
	return c.vault.balance(ctx, q, c.custodian, "")
}
