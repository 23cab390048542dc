package domain

import "errors"

var (
	// Membership and authorization errors
	ErrNotMember                 = errors.New("caller is not a group member")
	ErrNotAdmin                  = errors.New("caller is not the group admin")
	ErrCannotChallengeOwnExpense = errors.New("payer cannot challenge own expense")
	ErrAlreadyMember             = errors.New("address is already a group member")
	ErrCannotRemoveAdmin         = errors.New("group admin cannot be removed")
	ErrMissingRole               = errors.New("caller lacks the required capability")
	ErrUnauthorized              = errors.New("unauthorized")
	ErrInvalidToken              = errors.New("invalid token")
	ErrExpiredToken              = errors.New("token has expired")

	// Arithmetic and state validity errors
	ErrAmountZero               = errors.New("amount must be greater than zero")
	ErrInvalidAmount            = errors.New("amount must be a whole number of units")
	ErrInsufficientBond         = errors.New("insufficient bond")
	ErrSplitSumMismatch         = errors.New("splits do not sum to total amount")
	ErrNoMembers                = errors.New("group must have at least one member")
	ErrLengthMismatch           = errors.New("parallel inputs must be non-empty and of equal length")
	ErrDuplicateParticipant     = errors.New("participant listed more than once")
	ErrSettlementExceedsBalance = errors.New("settlement exceeds outstanding balance")
	ErrSameParty                = errors.New("debtor and creditor must differ")
	ErrBondNotWithdrawn         = errors.New("member bond must be withdrawn first")
	ErrOutstandingBalance       = errors.New("member net balance must be zero")
	ErrPendingExpense           = errors.New("member is party to an unresolved expense")
	ErrInvalidParams            = errors.New("invalid group parameters")
	ErrInvalidAddress           = errors.New("invalid address")

	// Bond eligibility
	ErrNoBond = errors.New("proposer does not hold the minimum bond")

	// Timing errors
	ErrChallengeWindowActive = errors.New("challenge window is still active")
	ErrChallengeWindowClosed = errors.New("challenge window has closed")
	ErrVoteWindowActive      = errors.New("vote window is still active")
	ErrVoteWindowClosed      = errors.New("vote window has closed")
	ErrGracePeriodActive     = errors.New("settlement grace period has not elapsed")

	// Voting integrity
	ErrAlreadyVoted    = errors.New("member has already voted")
	ErrDisputeResolved = errors.New("dispute is already resolved")

	// Lookup errors
	ErrGroupNotFound        = errors.New("group not found")
	ErrExpenseNotFound      = errors.New("expense not found")
	ErrDisputeNotFound      = errors.New("dispute not found")
	ErrInvalidExpenseStatus = errors.New("expense is not in a valid status for this operation")

	// Custody errors
	ErrInsufficientFunds     = errors.New("insufficient external balance")
	ErrInsufficientAllowance = errors.New("transfer not authorized by owner")
)

var errorCodes = []struct {
	err  error
	code string
}{
	{ErrNotMember, "not_member"},
	{ErrNotAdmin, "not_admin"},
	{ErrCannotChallengeOwnExpense, "cannot_challenge_own_expense"},
	{ErrAlreadyMember, "already_member"},
	{ErrCannotRemoveAdmin, "cannot_remove_admin"},
	{ErrMissingRole, "missing_role"},
	{ErrUnauthorized, "unauthorized"},
	{ErrInvalidToken, "invalid_token"},
	{ErrExpiredToken, "expired_token"},
	{ErrAmountZero, "amount_zero"},
	{ErrInvalidAmount, "invalid_amount"},
	{ErrInsufficientBond, "insufficient_bond"},
	{ErrSplitSumMismatch, "split_sum_mismatch"},
	{ErrNoMembers, "no_members"},
	{ErrLengthMismatch, "length_mismatch"},
	{ErrDuplicateParticipant, "duplicate_participant"},
	{ErrSettlementExceedsBalance, "settlement_exceeds_balance"},
	{ErrSameParty, "same_party"},
	{ErrBondNotWithdrawn, "bond_not_withdrawn"},
	{ErrOutstandingBalance, "outstanding_balance"},
	{ErrPendingExpense, "pending_expense"},
	{ErrInvalidParams, "invalid_params"},
	{ErrInvalidAddress, "invalid_address"},
	{ErrInvalidGroupName, "invalid_group_name"},
	{ErrAmountTooLarge, "amount_too_large"},
	{ErrExternalRefTooLong, "external_ref_too_long"},
	{ErrNoBond, "no_bond"},
	{ErrChallengeWindowActive, "challenge_window_active"},
	{ErrChallengeWindowClosed, "challenge_window_closed"},
	{ErrVoteWindowActive, "vote_window_active"},
	{ErrVoteWindowClosed, "vote_window_closed"},
	{ErrGracePeriodActive, "grace_period_active"},
	{ErrAlreadyVoted, "already_voted"},
	{ErrDisputeResolved, "dispute_resolved"},
	{ErrGroupNotFound, "group_not_found"},
	{ErrExpenseNotFound, "expense_not_found"},
	{ErrDisputeNotFound, "dispute_not_found"},
	{ErrInvalidExpenseStatus, "invalid_expense_status"},
	{ErrInsufficientFunds, "insufficient_funds"},
	{ErrInsufficientAllowance, "insufficient_allowance"},
}

// ErrorCode returns the stable machine-readable code of err, or "internal"
// when err wraps no domain error.
func ErrorCode(err error) string {
	for _, c := range errorCodes {
		if errors.Is(err, c.err) {
			return c.code
		}
	}
	return "internal"
}
