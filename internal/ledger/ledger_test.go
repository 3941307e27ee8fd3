package ledger

import (
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/suite"

	"github.com/alanyoungcy/signalrelay/internal/domain"
)

type LedgerTestSuite struct {
	suite.Suite
	ledger *Ledger
	now    time.Time
}

func TestLedgerSuite(t *testing.T) {
	suite.Run(t, new(LedgerTestSuite))
}

func (s *LedgerTestSuite) SetupTest() {
	s.ledger = New(decimal.Zero)
	s.now = time.Date(2024, 1, 15, 14, 30, 0, 0, time.UTC)
}

func dec(v string) decimal.NullDecimal {
	return decimal.NewNullDecimal(decimal.RequireFromString(v))
}

func (s *LedgerTestSuite) event(symbol string, kind domain.SignalKind) domain.SignalEvent {
	s.now = s.now.Add(time.Minute)
	return domain.SignalEvent{Symbol: symbol, Kind: kind, SourceKind: kind, ReceivedAt: s.now}
}

func (s *LedgerTestSuite) openEthLong() {
	ev := s.event("ETHUSDT", domain.SignalEntryLong)
	ev.EntryPrice = dec("2000")
	ev.TP1 = dec("2050")
	ev.StopLoss = dec("1950")
	obs := s.ledger.Observe(ev)
	s.Require().Equal(domain.SignalEntryLong, obs.Kind)
}

func (s *LedgerTestSuite) TestOpenFromNoPosition() {
	ev := s.event("BTCUSDT", domain.SignalEntryShort)
	ev.EntryPrice = dec("50000")

	obs := s.ledger.Observe(ev)

	s.Equal(domain.SignalEntryShort, obs.Kind)
	s.False(obs.Reclassified)
	s.Nil(obs.Previous)
	s.Require().NotNil(obs.Current)
	s.Equal(domain.SideShort, obs.Current.Side)
	s.Equal(domain.StateShortOpen, obs.Current.State())
	s.Equal(ev.ReceivedAt, obs.Current.OpenedAt)
}

func (s *LedgerTestSuite) TestReversalThenNoDoubleReverse() {
	s.ledger.Observe(s.event("BTCUSDT", domain.SignalEntryLong))

	obs := s.ledger.Observe(s.event("BTCUSDT", domain.SignalEntryShort))
	s.Equal(domain.SignalEntryShortReverse, obs.Kind)
	s.True(obs.Reclassified)
	s.Equal(domain.SideLong, obs.Previous.Side)
	s.Equal(domain.StateShortOpen, obs.Current.State())

	obs = s.ledger.Observe(s.event("BTCUSDT", domain.SignalEntryShort))
	s.Equal(domain.SignalEntryShort, obs.Kind)
	s.False(obs.Reclassified)
	s.Equal(domain.StateShortOpen, obs.Current.State())
}

func (s *LedgerTestSuite) TestExplicitReverseRelabelled() {
	tests := []struct {
		name string
		open domain.SignalKind
		in   domain.SignalKind
		want domain.SignalKind
	}{
		{"nothing open keeps reverse", "", domain.SignalEntryLongReverse, domain.SignalEntryLongReverse},
		{"same side open becomes refresh", domain.SignalEntryLong, domain.SignalEntryLongReverse, domain.SignalEntryLong},
		{"opposite side open stays reverse", domain.SignalEntryShort, domain.SignalEntryLongReverse, domain.SignalEntryLongReverse},
	}
	for _, tt := range tests {
		s.Run(tt.name, func() {
			s.SetupTest()
			if tt.open != "" {
				s.ledger.Observe(s.event("SOLUSDT", tt.open))
			}
			obs := s.ledger.Observe(s.event("SOLUSDT", tt.in))
			s.Equal(tt.want, obs.Kind)
			s.Equal(domain.SideLong, obs.Current.Side)
		})
	}
}

func (s *LedgerTestSuite) TestRefreshKeepsOpenedAtAndMergesLevels() {
	s.openEthLong()
	opened, ok := s.ledger.Get("ETHUSDT")
	s.Require().True(ok)

	ev := s.event("ETHUSDT", domain.SignalEntryLong)
	ev.TP2 = dec("2100")
	obs := s.ledger.Observe(ev)

	s.Equal(domain.SignalEntryLong, obs.Kind)
	s.Equal(opened.OpenedAt, obs.Current.OpenedAt)
	s.Equal(ev.ReceivedAt, obs.Current.UpdatedAt)
	s.Equal(dec("2000"), obs.Current.EntryPrice)
	s.Equal(dec("2050"), obs.Current.TP1)
	s.Equal(dec("2100"), obs.Current.TP2)
}

func (s *LedgerTestSuite) TestPartialTakeProfitRetainsPosition() {
	s.openEthLong()
	for _, k := range []domain.SignalKind{domain.SignalTP1Hit, domain.SignalTP2Hit} {
		obs := s.ledger.Observe(s.event("ETHUSDT", k))
		s.Equal(k, obs.Kind)
		s.Require().NotNil(obs.Current)
		s.Equal(domain.StateLongOpen, obs.Current.State())
	}
}

func (s *LedgerTestSuite) TestClosingKindsClearPosition() {
	for _, k := range []domain.SignalKind{domain.SignalTP3Hit, domain.SignalStopLossHit, domain.SignalPositionClosed} {
		s.Run(string(k), func() {
			s.SetupTest()
			s.openEthLong()
			obs := s.ledger.Observe(s.event("ETHUSDT", k))
			s.Equal(k, obs.Kind)
			s.NotNil(obs.Previous)
			s.Nil(obs.Current)
			s.Equal(domain.StateNoPosition, obs.Current.State())
			s.Equal(0, s.ledger.Len())
		})
	}
}

func (s *LedgerTestSuite) TestImplicitTakeProfit() {
	s.openEthLong()

	ev := s.event("ETHUSDT", domain.SignalEntryLong)
	ev.ObservedPrice = dec("2049")
	obs := s.ledger.Observe(ev)

	s.Equal(domain.SignalTP1Hit, obs.Kind)
	s.True(obs.Reclassified)
	s.Require().NotNil(obs.Current)
	s.Equal(domain.StateLongOpen, obs.Current.State())
}

func (s *LedgerTestSuite) TestImplicitStopLoss() {
	s.openEthLong()

	ev := s.event("ETHUSDT", domain.SignalEntryLong)
	ev.ObservedPrice = dec("1951")
	obs := s.ledger.Observe(ev)

	s.Equal(domain.SignalStopLossHit, obs.Kind)
	s.Nil(obs.Current)
	_, ok := s.ledger.Get("ETHUSDT")
	s.False(ok)
}

func (s *LedgerTestSuite) TestObservedPriceOutsideToleranceIsEntry() {
	s.openEthLong()

	ev := s.event("ETHUSDT", domain.SignalEntryShort)
	ev.ObservedPrice = dec("2020")
	obs := s.ledger.Observe(ev)

	s.Equal(domain.SignalEntryShortReverse, obs.Kind)
}

func (s *LedgerTestSuite) TestClosestLevelWinsAndTiesGoToFurthestTarget() {
	ev := s.event("BTCUSDT", domain.SignalEntryLong)
	ev.EntryPrice = dec("100")
	ev.TP1 = dec("101")
	ev.TP2 = dec("101.3")
	ev.TP3 = dec("101.5")
	s.ledger.Observe(ev)

	// Tolerance 0.5: TP2 at 0.1 beats TP3 at 0.3 and TP1 at 0.2.
	probe := s.event("BTCUSDT", domain.SignalEntryLong)
	probe.ObservedPrice = dec("101.2")
	s.Equal(domain.SignalTP2Hit, s.ledger.Observe(probe).Kind)

	// 101.4 is 0.1 from both TP2 and TP3; TP3 is tested first.
	probe = s.event("BTCUSDT", domain.SignalEntryLong)
	probe.ObservedPrice = dec("101.4")
	s.Equal(domain.SignalTP3Hit, s.ledger.Observe(probe).Kind)
	s.Equal(0, s.ledger.Len())
}

func (s *LedgerTestSuite) TestToleranceFallsBackToObservedPrice() {
	ev := s.event("XRPUSDT", domain.SignalEntryLong)
	ev.TP1 = dec("1.00")
	s.ledger.Observe(ev)

	probe := s.event("XRPUSDT", domain.SignalEntryLong)
	probe.ObservedPrice = dec("0.996")
	s.Equal(domain.SignalTP1Hit, s.ledger.Observe(probe).Kind)
}

func (s *LedgerTestSuite) TestExitWithoutPositionStaysFlat() {
	obs := s.ledger.Observe(s.event("ADAUSDT", domain.SignalTP1Hit))
	s.Equal(domain.SignalTP1Hit, obs.Kind)
	s.Nil(obs.Previous)
	s.Nil(obs.Current)
}

func (s *LedgerTestSuite) TestSnapshotSortedCopies() {
	s.ledger.Observe(s.event("ETHUSDT", domain.SignalEntryLong))
	s.ledger.Observe(s.event("ADAUSDT", domain.SignalEntryShort))

	snap := s.ledger.Snapshot()
	s.Require().Len(snap, 2)
	s.Equal("ADAUSDT", snap[0].Symbol)
	s.Equal("ETHUSDT", snap[1].Symbol)

	snap[0].Side = domain.SideLong
	rec, _ := s.ledger.Get("ADAUSDT")
	s.Equal(domain.SideShort, rec.Side)
}

func (s *LedgerTestSuite) TestConcurrentSymbols() {
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			s.ledger.Observe(domain.SignalEvent{
				Symbol:     fmt.Sprintf("SYM%d", i),
				Kind:       domain.SignalEntryLong,
				ReceivedAt: time.Now(),
			})
		}(i)
	}
	wg.Wait()
	s.Equal(50, s.ledger.Len())
}
