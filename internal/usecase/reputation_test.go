package usecase_test

import (
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iho/bondtab/internal/domain"
	"github.com/iho/bondtab/internal/usecase"
)

func TestReputationRegistry_DefaultScore(t *testing.T) {
	h := newHarness(t)

	score, err := h.registry.ReliabilityScore(h.ctx, dave)
	require.NoError(t, err)
	assert.Equal(t, domain.BasisPoints, score)

	rep, err := h.registry.Reputation(h.ctx, dave)
	require.NoError(t, err)
	assert.Equal(t, dave, rep.Member)
	assert.True(t, rep.VolumeSettled.IsZero())
}

func TestReputationRegistry_RecordRequiresRole(t *testing.T) {
	h := newHarness(t)
	outsider := common.HexToAddress("0x0000000000000000000000000000000000000bad")

	err := h.registry.RecordSettlement(h.ctx, outsider, bob, units(10), true, time.Hour)
	require.ErrorIs(t, err, domain.ErrMissingRole)

	err = h.registry.RecordDisputeOutcome(h.ctx, outsider, bob, true)
	require.ErrorIs(t, err, domain.ErrMissingRole)

	rep, err := h.registry.Reputation(h.ctx, bob)
	require.NoError(t, err)
	assert.Zero(t, rep.OnTimeSettlements)
	assert.Zero(t, rep.DisputesWon)
}

func TestReputationRegistry_Grants(t *testing.T) {
	h := newHarness(t)
	reporter := common.HexToAddress("0x00000000000000000000000000000000000000e1")

	require.ErrorIs(t, h.registry.GrantFactoryRole(h.ctx, bob, bob), domain.ErrNotAdmin)
	require.ErrorIs(t, h.registry.GrantReporterRole(h.ctx, bob, reporter), domain.ErrMissingRole)

	require.NoError(t, h.registry.GrantReporterRole(h.ctx, factoryAddr, reporter))
	require.NoError(t, h.registry.RecordSettlement(h.ctx, reporter, bob, units(10), true, 90*time.Second))
	require.NoError(t, h.registry.RecordSettlement(h.ctx, reporter, bob, units(5), false, 30*time.Second))
	require.NoError(t, h.registry.RecordDisputeOutcome(h.ctx, reporter, bob, false))

	rep, err := h.registry.Reputation(h.ctx, bob)
	require.NoError(t, err)
	assert.Equal(t, uint64(1), rep.OnTimeSettlements)
	assert.Equal(t, uint64(1), rep.LateSettlements)
	assert.Equal(t, uint64(1), rep.DisputesLost)
	assert.Equal(t, uint64(60), rep.AvgSettleTimeSec())
	requireDecimal(t, 15, rep.VolumeSettled)
	assert.Equal(t, 2500, rep.ReliabilityScore())

	require.NoError(t, h.registry.GrantFactoryRole(h.ctx, registryAdmin, bob))
	caps, err := h.registry.Capabilities(h.ctx, bob)
	require.NoError(t, err)
	assert.True(t, caps.Has(domain.CapabilityFactory))

	caps, err = h.registry.Capabilities(h.ctx, registryAdmin)
	require.NoError(t, err)
	assert.True(t, caps.Has(domain.CapabilityAdmin))
}

func TestReputationRegistry_GroupModulesAreReporters(t *testing.T) {
	h := newHarness(t)
	g := h.threeFriends()

	for _, addr := range []common.Address{g.Group.Address, g.Group.DisputeModule} {
		caps, err := h.registry.Capabilities(h.ctx, addr)
		require.NoError(t, err)
		assert.True(t, caps.Has(domain.CapabilityReporter), addr.Hex())
	}

	caps, err := h.registry.Capabilities(h.ctx, g.Group.ExpenseModule)
	require.NoError(t, err)
	assert.False(t, caps.Has(domain.CapabilityReporter))
}

func TestReputationRegistry_SpansGroups(t *testing.T) {
	h := newHarness(t)
	first := h.threeFriends()
	second := h.threeFriends()
	require.NotEqual(t, first.Group.Address, second.Group.Address)

	for _, g := range []*usecase.GroupHandles{first, second} {
		h.finalizedDinner(g)
		require.NoError(t, g.Ledger.SettleBatch(h.ctx, bob,
			[]common.Address{bob}, []common.Address{alice}, []decimal.Decimal{units(10)}))
	}

	rep, err := h.registry.Reputation(h.ctx, bob)
	require.NoError(t, err)
	assert.Equal(t, uint64(2), rep.OnTimeSettlements)
	requireDecimal(t, 20, rep.VolumeSettled)

	list, err := h.registry.ListReputations(h.ctx, 10, 0)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, bob, list[0].Member)
}
