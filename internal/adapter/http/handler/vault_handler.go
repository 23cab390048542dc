package handler

import (
	"context"
	"net/http"

	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"

	"github.com/iho/bondtab/internal/adapter/http/dto"
	"github.com/iho/bondtab/internal/domain"
)

// VaultService defines the behavior needed by VaultHandler.
type VaultService interface {
	Approve(ctx context.Context, owner, spender common.Address, amount decimal.Decimal) error
	Mint(ctx context.Context, to common.Address, amount decimal.Decimal) error
	BalanceOf(ctx context.Context, addr common.Address) (decimal.Decimal, error)
	Allowance(ctx context.Context, owner, spender common.Address) (decimal.Decimal, error)
}

// VaultHandler exposes the development custody vault.
type VaultHandler struct {
	vault VaultService
}

// NewVaultHandler creates a new VaultHandler.
func NewVaultHandler(vault VaultService) *VaultHandler {
	return &VaultHandler{vault: vault}
}

// Approve sets how much a custodian may pull from the caller.
func (h *VaultHandler) Approve(w http.ResponseWriter, r *http.Request) {
	caller, ok := requireCaller(w, r)
	if !ok {
		return
	}

	var req dto.ApproveRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	spender, err := domain.ParseAddress(req.Spender)
	if err != nil {
		writeBadRequest(w, "invalid spender", err)
		return
	}

	if err := h.vault.Approve(r.Context(), caller, spender, req.Amount); err != nil {
		writeDomainError(w, "failed to approve", err)
		return
	}

	writeJSON(w, http.StatusOK, dto.AllowanceResponse{Owner: caller, Spender: spender, Amount: req.Amount})
}

// Mint credits units to an address when minting is enabled.
func (h *VaultHandler) Mint(w http.ResponseWriter, r *http.Request) {
	var req dto.MintRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	to, err := domain.ParseAddress(req.To)
	if err != nil {
		writeBadRequest(w, "invalid recipient", err)
		return
	}

	if err := h.vault.Mint(r.Context(), to, req.Amount); err != nil {
		writeDomainError(w, "failed to mint", err)
		return
	}

	h.writeBalance(w, r, to)
}

// Balance returns an address's external balance.
func (h *VaultHandler) Balance(w http.ResponseWriter, r *http.Request) {
	addr, ok := urlAddress(w, r, "address")
	if !ok {
		return
	}
	h.writeBalance(w, r, addr)
}

// Allowance returns what spender may pull from owner.
func (h *VaultHandler) Allowance(w http.ResponseWriter, r *http.Request) {
	owner, ok := urlAddress(w, r, "owner")
	if !ok {
		return
	}
	spender, ok := urlAddress(w, r, "spender")
	if !ok {
		return
	}

	amount, err := h.vault.Allowance(r.Context(), owner, spender)
	if err != nil {
		writeDomainError(w, "failed to get allowance", err)
		return
	}

	writeJSON(w, http.StatusOK, dto.AllowanceResponse{Owner: owner, Spender: spender, Amount: amount})
}

func (h *VaultHandler) writeBalance(w http.ResponseWriter, r *http.Request, addr common.Address) {
	balance, err := h.vault.BalanceOf(r.Context(), addr)
	if err != nil {
		writeDomainError(w, "failed to get balance", err)
		return
	}
	writeJSON(w, http.StatusOK, dto.BalanceResponse{Address: addr, Balance: balance})
}
