package memory

import (
	"context"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"

	"github.com/iho/bondtab/internal/domain"
	"github.com/iho/bondtab/internal/usecase"
)

// Vault is an in-memory custody ledger of external balances and allowances.
// It implements usecase.Vault and joins the store's transactions.
type Vault struct {
	store *Store
}

// NewVault creates a vault backed by store.
func NewVault(store *Store) *Vault {
	return &Vault{store: store}
}

// For returns the value-transfer capability of custodian.
func (v *Vault) For(custodian common.Address) usecase.ValueTransfer {
	return &custodyAccount{vault: v, custodian: custodian}
}

// BalanceOf returns the balance of addr.
func (v *Vault) BalanceOf(ctx context.Context, addr common.Address) (decimal.Decimal, error) {
	v.store.mu.RLock()
	defer v.store.mu.RUnlock()
	return v.balance(addr), nil
}

// Allowance returns how much spender may pull from owner.
func (v *Vault) Allowance(ctx context.Context, owner, spender common.Address) (decimal.Decimal, error) {
	v.store.mu.RLock()
	defer v.store.mu.RUnlock()
	return v.allowance(owner, spender), nil
}

// Approve sets the allowance of spender over owner's balance.
func (v *Vault) Approve(ctx context.Context, tx usecase.Transaction, owner, spender common.Address, amount decimal.Decimal) error {
	t, err := open(v.store, tx)
	if err != nil {
		return err
	}
	if amount.IsNegative() || !amount.IsInteger() {
		return fmt.Errorf("%w: allowance %s", domain.ErrInvalidAmount, amount)
	}
	v.setAllowance(t, owner, spender, amount)
	return nil
}

// Mint credits new units to addr.
func (v *Vault) Mint(ctx context.Context, tx usecase.Transaction, to common.Address, amount decimal.Decimal) error {
	t, err := open(v.store, tx)
	if err != nil {
		return err
	}
	if err := domain.ValidateAmount(amount); err != nil {
		return err
	}
	v.setBalance(t, to, v.balance(to).Add(amount))
	return nil
}

func (v *Vault) balance(addr common.Address) decimal.Decimal {
	if b, ok := v.store.balances[addr]; ok {
		return b
	}
	return decimal.Zero
}

func (v *Vault) allowance(owner, spender common.Address) decimal.Decimal {
	if a, ok := v.store.allowances[allowanceKey{owner: owner, spender: spender}]; ok {
		return a
	}
	return decimal.Zero
}

func (v *Vault) setBalance(t *Tx, addr common.Address, amount decimal.Decimal) {
	prev, existed := v.store.balances[addr]
	v.store.balances[addr] = amount
	t.onRollback(func() {
		if existed {
			v.store.balances[addr] = prev
		} else {
			delete(v.store.balances, addr)
		}
	})
}

func (v *Vault) setAllowance(t *Tx, owner, spender common.Address, amount decimal.Decimal) {
	key := allowanceKey{owner: owner, spender: spender}
	prev, existed := v.store.allowances[key]
	v.store.allowances[key] = amount
	t.onRollback(func() {
		if existed {
			v.store.allowances[key] = prev
		} else {
			delete(v.store.allowances, key)
		}
	})
}

// move transfers amount from one balance to another, spending spender's
// allowance when spender is not the owner.
func (v *Vault) move(t *Tx, spender, from, to common.Address, amount decimal.Decimal) error {
	if err := domain.ValidateAmount(amount); err != nil {
		return err
	}
	allowed := v.allowance(from, spender)
	if spender != from && allowed.LessThan(amount) {
		return fmt.Errorf("%w: %s allows %s, need %s", domain.ErrInsufficientAllowance, from.Hex(), allowed, amount)
	}

	balance := v.balance(from)
	if balance.LessThan(amount) {
		return fmt.Errorf("%w: %s holds %s, need %s", domain.ErrInsufficientFunds, from.Hex(), balance, amount)
	}

	if spender != from {
		v.setAllowance(t, from, spender, allowed.Sub(amount))
	}
	v.setBalance(t, from, balance.Sub(amount))
	v.setBalance(t, to, v.balance(to).Add(amount))
	return nil
}

type custodyAccount struct {
	vault     *Vault
	custodian common.Address
}

func (c *custodyAccount) Deposit(ctx context.Context, tx usecase.Transaction, from common.Address, amount decimal.Decimal) error {
	t, err := open(c.vault.store, tx)
	if err != nil {
		return err
	}
	return c.vault.move(t, c.custodian, from, c.custodian, amount)
}

func (c *custodyAccount) Withdraw(ctx context.Context, tx usecase.Transaction, to common.Address, amount decimal.Decimal) error {
	t, err := open(c.vault.store, tx)
	if err != nil {
		return err
	}
	return c.vault.move(t, c.custodian, c.custodian, to, amount)
}

func (c *custodyAccount) Transfer(ctx context.Context, tx usecase.Transaction, from, to common.Address, amount decimal.Decimal) error {
	t, err := open(c.vault.store, tx)
	if err != nil {
		return err
	}
	return c.vault.move(t, c.custodian, from, to, amount)
}

// Holding reads the custodian's balance. A nil tx reads outside any transaction.
func (c *custodyAccount) Holding(ctx context.Context, tx usecase.Transaction) (decimal.Decimal, error) {
	if tx == nil {
		return c.vault.BalanceOf(ctx, c.custodian)
	}
	if _, err := open(c.vault.store, tx); err != nil {
		return decimal.Zero, err
	}
	return c.vault.balance(c.custodian), nil
}
