package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"

	"github.com/iho/bondtab/internal/adapter/http/dto"
	"github.com/iho/bondtab/internal/domain"
	"github.com/iho/bondtab/internal/infrastructure/auth"
)

func main() {
	if err := newRootCmd(os.Stdout).Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// client calls the BondTab HTTP API as one caller.
type client struct {
	baseURL        string
	timeout        time.Duration
	caller         string
	token          string
	idempotencyKey string
	out            io.Writer
}

func newRootCmd(out io.Writer) *cobra.Command {
	c := &client{out: out}

	rootCmd := &cobra.Command{
		Use:           "bondtab-cli",
		Short:         "BondTab CLI tool",
		Long:          `A command line interface for the BondTab group expense ledger API.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	rootCmd.SetOut(out)

	flags := rootCmd.PersistentFlags()
	flags.StringVar(&c.baseURL, "url", envOr("BONDTAB_URL", "http://localhost:8080"), "Base URL of the BondTab API")
	flags.DurationVar(&c.timeout, "timeout", 10*time.Second, "Request timeout")
	flags.StringVar(&c.caller, "caller", os.Getenv("BONDTAB_CALLER"), "Caller address, when the server trusts the caller header")
	flags.StringVar(&c.token, "token", os.Getenv("BONDTAB_TOKEN"), "Bearer token, when the server requires authentication")
	flags.StringVar(&c.idempotencyKey, "idempotency-key", "", "Idempotency key for mutating requests")

	rootCmd.AddCommand(
		tokenCmd(out),
		groupCmd(c),
		memberCmd(c),
		bondCmd(c),
		settleCmd(c),
		expenseCmd(c),
		disputeCmd(c),
		reputationCmd(c),
		vaultCmd(c),
		&cobra.Command{
			Use:   "consistency <group>",
			Short: "Check a group's ledger consistency",
			Args:  cobra.ExactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				return c.do(http.MethodGet, groupPath(args[0], "/consistency"), nil)
			},
		},
		&cobra.Command{
			Use:   "reconcile",
			Short: "Check every group's ledger consistency",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, args []string) error {
				return c.do(http.MethodGet, "/api/v1/reconciliation", nil)
			},
		},
		&cobra.Command{
			Use:   "replay <group>",
			Short: "Rebuild a group from its events and compare with the live ledger",
			Args:  cobra.ExactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				return c.do(http.MethodGet, groupPath(args[0], "/replay"), nil)
			},
		},
		&cobra.Command{
			Use:   "events <group>",
			Short: "List a group's events",
			Args:  cobra.ExactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				return c.do(http.MethodGet, groupPath(args[0], "/events"), nil)
			},
		},
	)

	return rootCmd
}

func tokenCmd(out io.Writer) *cobra.Command {
	var (
		secret string
		ttl    time.Duration
	)
	cmd := &cobra.Command{
		Use:   "token <address>",
		Short: "Issue a bearer token for an address",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if secret == "" {
				return fmt.Errorf("--secret or JWT_SECRET is required")
			}
			addr, err := domain.ParseAddress(args[0])
			if err != nil {
				return err
			}
			token, err := auth.NewJWTManager(secret, ttl).Generate(addr)
			if err != nil {
				return err
			}
			fmt.Fprintln(out, token)
			return nil
		},
	}
	cmd.Flags().StringVar(&secret, "secret", os.Getenv("JWT_SECRET"), "JWT signing secret")
	cmd.Flags().DurationVar(&ttl, "ttl", 24*time.Hour, "Token lifetime")
	return cmd
}

func groupCmd(c *client) *cobra.Command {
	cmd := &cobra.Command{Use: "group", Short: "Group operations"}

	var (
		members []string
		params  dto.GroupParamsRequest
		minBond string
	)
	create := &cobra.Command{
		Use:   "create <name>",
		Short: "Create a group with the caller as admin",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			bond, err := decimal.NewFromString(minBond)
			if err != nil {
				return fmt.Errorf("invalid --min-bond: %w", err)
			}
			params.MinBond = bond
			return c.do(http.MethodPost, "/api/v1/groups", dto.CreateGroupRequest{
				Name:    args[0],
				Members: members,
				Params:  params,
			})
		},
	}
	create.Flags().StringSliceVar(&members, "member", nil, "Initial member address (repeatable)")
	create.Flags().StringVar(&minBond, "min-bond", "0", "Minimum bond to propose expenses")
	create.Flags().Int64Var(&params.ChallengeWindowSec, "challenge-window", 86400, "Challenge window in seconds")
	create.Flags().Int64Var(&params.VoteWindowSec, "vote-window", 86400, "Vote window in seconds")
	create.Flags().Int64Var(&params.SettlementGraceSec, "grace", 7*86400, "Settlement grace period in seconds")
	create.Flags().IntVar(&params.QuorumBps, "quorum-bps", 5000, "Dispute quorum in basis points")
	create.Flags().IntVar(&params.SlashBps, "slash-bps", 1000, "Challenger bond slash in basis points")

	cmd.AddCommand(
		create,
		&cobra.Command{
			Use:   "get <group>",
			Short: "Show a group",
			Args:  cobra.ExactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				return c.do(http.MethodGet, groupPath(args[0], ""), nil)
			},
		},
		&cobra.Command{
			Use:   "list",
			Short: "List groups",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, args []string) error {
				return c.do(http.MethodGet, "/api/v1/groups", nil)
			},
		},
		&cobra.Command{
			Use:   "of <address>",
			Short: "List the groups an address belongs to",
			Args:  cobra.ExactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				return c.do(http.MethodGet, "/api/v1/members/"+args[0]+"/groups", nil)
			},
		},
	)
	return cmd
}

func memberCmd(c *client) *cobra.Command {
	cmd := &cobra.Command{Use: "member", Short: "Membership operations"}
	cmd.AddCommand(
		&cobra.Command{
			Use:   "add <group> <address>",
			Short: "Add a member (admin only)",
			Args:  cobra.ExactArgs(2),
			RunE: func(cmd *cobra.Command, args []string) error {
				return c.do(http.MethodPost, groupPath(args[0], "/members"), dto.MemberRequest{Address: args[1]})
			},
		},
		&cobra.Command{
			Use:   "remove <group> <address>",
			Short: "Remove a settled member (admin only)",
			Args:  cobra.ExactArgs(2),
			RunE: func(cmd *cobra.Command, args []string) error {
				return c.do(http.MethodDelete, groupPath(args[0], "/members/"+args[1]), nil)
			},
		},
		&cobra.Command{
			Use:   "get <group> <address>",
			Short: "Show a member's bond and balance",
			Args:  cobra.ExactArgs(2),
			RunE: func(cmd *cobra.Command, args []string) error {
				return c.do(http.MethodGet, groupPath(args[0], "/members/"+args[1]), nil)
			},
		},
		&cobra.Command{
			Use:   "list <group>",
			Short: "List members",
			Args:  cobra.ExactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				return c.do(http.MethodGet, groupPath(args[0], "/members"), nil)
			},
		},
	)
	return cmd
}

func bondCmd(c *client) *cobra.Command {
	amountCmd := func(use, short, path string) *cobra.Command {
		return &cobra.Command{
			Use:   use + " <group> <amount>",
			Short: short,
			Args:  cobra.ExactArgs(2),
			RunE: func(cmd *cobra.Command, args []string) error {
				amount, err := decimal.NewFromString(args[1])
				if err != nil {
					return fmt.Errorf("invalid amount: %w", err)
				}
				return c.do(http.MethodPost, groupPath(args[0], path), dto.AmountRequest{Amount: amount})
			},
		}
	}

	cmd := &cobra.Command{Use: "bond", Short: "Bond operations"}
	cmd.AddCommand(
		amountCmd("deposit", "Deposit into the caller's bond", "/bond/deposit"),
		amountCmd("withdraw", "Withdraw from the caller's bond", "/bond/withdraw"),
	)
	return cmd
}

func settleCmd(c *client) *cobra.Command {
	cmd := &cobra.Command{Use: "settle", Short: "Settlement operations"}
	cmd.AddCommand(
		&cobra.Command{
			Use:   "batch <group> <debtor:creditor:amount>...",
			Short: "Record payments between members",
			Args:  cobra.MinimumNArgs(2),
			RunE: func(cmd *cobra.Command, args []string) error {
				items := make([]dto.SettlementItem, 0, len(args)-1)
				for _, arg := range args[1:] {
					item, err := parseSettlement(arg)
					if err != nil {
						return err
					}
					items = append(items, item)
				}
				return c.do(http.MethodPost, groupPath(args[0], "/settlements"), dto.SettleBatchRequest{Settlements: items})
			},
		},
		&cobra.Command{
			Use:   "forced <group> <debtor:creditor:amount>",
			Short: "Pay a creditor out of an overdue debtor's bond",
			Args:  cobra.ExactArgs(2),
			RunE: func(cmd *cobra.Command, args []string) error {
				item, err := parseSettlement(args[1])
				if err != nil {
					return err
				}
				return c.do(http.MethodPost, groupPath(args[0], "/settlements/forced"), dto.SettleFromBondRequest{
					Debtor:   item.Debtor,
					Creditor: item.Creditor,
					Amount:   item.Amount,
				})
			},
		},
		&cobra.Command{
			Use:   "suggest <group>",
			Short: "Suggest payments that clear every balance",
			Args:  cobra.ExactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				return c.do(http.MethodGet, groupPath(args[0], "/settlements/suggested"), nil)
			},
		},
	)
	return cmd
}

func expenseCmd(c *client) *cobra.Command {
	cmd := &cobra.Command{Use: "expense", Short: "Expense operations"}

	var (
		participants []string
		splits       []string
		receipt      string
		ref          string
	)
	propose := &cobra.Command{
		Use:   "propose <group> <total>",
		Short: "Propose an expense paid by the caller",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			total, err := decimal.NewFromString(args[1])
			if err != nil {
				return fmt.Errorf("invalid total: %w", err)
			}
			amounts, err := parseAmounts(splits)
			if err != nil {
				return err
			}
			return c.do(http.MethodPost, groupPath(args[0], "/expenses"), dto.ProposeExpenseRequest{
				TotalAmount:  total,
				Participants: participants,
				Splits:       amounts,
				ReceiptHash:  receipt,
				ExternalRef:  ref,
			})
		},
	}
	propose.Flags().StringSliceVar(&participants, "participant", nil, "Participant address (repeatable)")
	propose.Flags().StringSliceVar(&splits, "split", nil, "Share of each participant, in participant order")
	propose.Flags().StringVar(&receipt, "receipt", "", "Receipt hash")
	propose.Flags().StringVar(&ref, "ref", "", "External reference")

	cmd.AddCommand(
		propose,
		expenseIDCmd(c, "finalize", "Finalize an expense after its challenge window", http.MethodPost, "/finalize"),
		expenseIDCmd(c, "get", "Show an expense", http.MethodGet, ""),
		&cobra.Command{
			Use:   "list <group>",
			Short: "List expenses",
			Args:  cobra.ExactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				return c.do(http.MethodGet, groupPath(args[0], "/expenses"), nil)
			},
		},
	)
	return cmd
}

func disputeCmd(c *client) *cobra.Command {
	cmd := &cobra.Command{Use: "dispute", Short: "Dispute operations"}

	var reason, evidence string
	challenge := &cobra.Command{
		Use:   "challenge <group> <expense-id>",
		Short: "Challenge a proposed expense, posting the challenger bond",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.do(http.MethodPost, expensePath(args[0], args[1], "/dispute"), dto.ChallengeRequest{
				Reason:       reason,
				EvidenceHash: evidence,
			})
		},
	}
	challenge.Flags().StringVar(&reason, "reason", "", "Reason code")
	challenge.Flags().StringVar(&evidence, "evidence", "", "Evidence hash")

	var reject bool
	vote := &cobra.Command{
		Use:   "vote <group> <expense-id>",
		Short: "Vote to keep the expense, or to reject it with --reject",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.do(http.MethodPost, expensePath(args[0], args[1], "/dispute/votes"), dto.VoteRequest{Support: !reject})
		},
	}
	vote.Flags().BoolVar(&reject, "reject", false, "Vote to reject the expense")

	cmd.AddCommand(
		challenge,
		vote,
		expenseIDCmd(c, "resolve", "Resolve a dispute after its vote window", http.MethodPost, "/dispute/resolve"),
		expenseIDCmd(c, "get", "Show a dispute", http.MethodGet, "/dispute"),
	)
	return cmd
}

func reputationCmd(c *client) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "reputation [address]",
		Short: "Show an address's reputation, or list all",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(args) == 0 {
				return c.do(http.MethodGet, "/api/v1/reputation", nil)
			}
			return c.do(http.MethodGet, "/api/v1/reputation/"+args[0], nil)
		},
	}
	grant := func(use, path string) *cobra.Command {
		return &cobra.Command{
			Use:   use + " <address>",
			Short: "Grant a registry role (admin only)",
			Args:  cobra.ExactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				return c.do(http.MethodPost, "/api/v1/registry/"+path, dto.GrantRequest{Address: args[0]})
			},
		}
	}
	cmd.AddCommand(grant("grant-factory", "factories"), grant("grant-reporter", "reporters"))
	return cmd
}

func vaultCmd(c *client) *cobra.Command {
	cmd := &cobra.Command{Use: "vault", Short: "Custody vault operations"}
	cmd.AddCommand(
		&cobra.Command{
			Use:   "balance <address>",
			Short: "Show a vault balance",
			Args:  cobra.ExactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				return c.do(http.MethodGet, "/api/v1/vault/balances/"+args[0], nil)
			},
		},
		&cobra.Command{
			Use:   "approve <spender> <amount>",
			Short: "Allow spender to pull the caller's funds",
			Args:  cobra.ExactArgs(2),
			RunE: func(cmd *cobra.Command, args []string) error {
				amount, err := decimal.NewFromString(args[1])
				if err != nil {
					return fmt.Errorf("invalid amount: %w", err)
				}
				return c.do(http.MethodPost, "/api/v1/vault/approve", dto.ApproveRequest{Spender: args[0], Amount: amount})
			},
		},
		&cobra.Command{
			Use:   "mint <address> <amount>",
			Short: "Mint test funds when the server allows it",
			Args:  cobra.ExactArgs(2),
			RunE: func(cmd *cobra.Command, args []string) error {
				amount, err := decimal.NewFromString(args[1])
				if err != nil {
					return fmt.Errorf("invalid amount: %w", err)
				}
				return c.do(http.MethodPost, "/api/v1/vault/mint", dto.MintRequest{To: args[0], Amount: amount})
			},
		},
	)
	return cmd
}

func expenseIDCmd(c *client, use, short, method, suffix string) *cobra.Command {
	return &cobra.Command{
		Use:   use + " <group> <expense-id>",
		Short: short,
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.do(method, expensePath(args[0], args[1], suffix), nil)
		},
	}
}

// do sends one request and pretty-prints the JSON response. Non-2xx
// responses are printed and returned as an error.
func (c *client) do(method, path string, body any) error {
	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return err
		}
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequest(method, strings.TrimRight(c.baseURL, "/")+path, reader)
	if err != nil {
		return err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	} else if c.caller != "" {
		req.Header.Set("X-Caller-Address", c.caller)
	}
	if c.idempotencyKey != "" && method != http.MethodGet {
		req.Header.Set("Idempotency-Key", c.idempotencyKey)
	}

	resp, err := (&http.Client{Timeout: c.timeout}).Do(req)
	if err != nil {
		return fmt.Errorf("error making request: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return err
	}

	var pretty bytes.Buffer
	if len(raw) > 0 && json.Indent(&pretty, raw, "", "  ") == nil {
		raw = pretty.Bytes()
	}
	if len(raw) > 0 {
		fmt.Fprintln(c.out, string(raw))
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("request failed (status %d)", resp.StatusCode)
	}
	return nil
}

func groupPath(group, suffix string) string {
	return "/api/v1/groups/" + group + suffix
}

func expensePath(group, id, suffix string) string {
	return groupPath(group, "/expenses/"+id+suffix)
}

// parseSettlement parses "debtor:creditor:amount".
func parseSettlement(s string) (dto.SettlementItem, error) {
	parts := strings.Split(s, ":")
	if len(parts) != 3 {
		return dto.SettlementItem{}, fmt.Errorf("settlement %q: want debtor:creditor:amount", s)
	}
	for _, p := range parts[:2] {
		if !common.IsHexAddress(p) {
			return dto.SettlementItem{}, fmt.Errorf("settlement %q: %w", s, domain.ErrInvalidAddress)
		}
	}
	amount, err := decimal.NewFromString(parts[2])
	if err != nil {
		return dto.SettlementItem{}, fmt.Errorf("settlement %q: %w", s, err)
	}
	return dto.SettlementItem{Debtor: parts[0], Creditor: parts[1], Amount: amount}, nil
}

func parseAmounts(values []string) ([]decimal.Decimal, error) {
	amounts := make([]decimal.Decimal, len(values))
	for i, v := range values {
		d, err := decimal.NewFromString(v)
		if err != nil {
			return nil, fmt.Errorf("invalid split %q: %w", v, err)
		}
		amounts[i] = d
	}
	return amounts, nil
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
