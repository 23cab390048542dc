package usecase

import (
	"context"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/iho/bondtab/internal/domain"
)

// VaultUseCase exposes the custody vault's account surface: balances,
// allowances and, in development, minting.
type VaultUseCase struct {
	vault       Vault
	stores      Stores
	mintEnabled bool
	logger      zerolog.Logger
}

// NewVaultUseCase creates a new VaultUseCase.
func NewVaultUseCase(vault Vault, deps Dependencies, mintEnabled bool) *VaultUseCase {
	return &VaultUseCase{
		vault:       vault,
		stores:      deps.Stores,
		mintEnabled: mintEnabled,
		logger:      deps.Logger.With().Str("module", "vault").Logger(),
	}
}

// Approve lets spender pull up to amount from owner's balance.
func (uc *VaultUseCase) Approve(ctx context.Context, owner, spender common.Address, amount decimal.Decimal) error {
	if amount.IsNegative() || !amount.IsInteger() {
		return fmt.Errorf("%w: allowance %s", domain.ErrInvalidAmount, amount)
	}

	err := runInTx(ctx, uc.stores, func(ctx context.Context, tx Transaction) error {
		return uc.vault.Approve(ctx, tx, owner, spender, amount)
	})
	if err != nil {
		return err
	}

	uc.logger.Debug().
		Str("owner", owner.Hex()).
		Str("spender", spender.Hex()).
		Str("amount", amount.String()).
		Msg("allowance set")
	return nil
}

// Mint credits amount to addr. Only available when minting is enabled.
func (uc *VaultUseCase) Mint(ctx context.Context, to common.Address, amount decimal.Decimal) error {
	if !uc.mintEnabled {
		return domain.ErrUnauthorized
	}
	if err := domain.ValidateAmount(amount); err != nil {
		return err
	}

	err := runInTx(ctx, uc.stores, func(ctx context.Context, tx Transaction) error {
		return uc.vault.Mint(ctx, tx, to, amount)
	})
	if err != nil {
		return err
	}

	uc.logger.Info().Str("to", to.Hex()).Str("amount", amount.String()).Msg("units minted")
	return nil
}

// BalanceOf returns the external balance of addr.
func (uc *VaultUseCase) BalanceOf(ctx context.Context, addr common.Address) (decimal.Decimal, error) {
	return uc.vault.BalanceOf(ctx, addr)
}

// Allowance returns how much spender may pull from owner.
func (uc *VaultUseCase) Allowance(ctx context.Context, owner, spender common.Address) (decimal.Decimal, error) {
	return uc.vault.Allowance(ctx, owner, spender)
}
