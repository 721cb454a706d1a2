package client

import (
	"testing"

	"github.com/satcat5/corenet/internal/ptime"
	_ "github.com/satcat5/corenet/internal/testutil/testlog"
)

func TestMeanPathDelayAndOffset(t *testing.T) {
	m := Measurement{
		T1: ptime.New(100, 0),
		T2: ptime.New(105, 0),
		T3: ptime.New(200, 0),
		T4: ptime.New(205, 0),
	}
	if got := m.MeanPathDelay(); got.DeltaSeconds() != 5 {
		t.Errorf("MeanPathDelay = %+v, want 5s", got)
	}
	if got := m.OffsetFromMaster(); got.DeltaSeconds() != 0 {
		t.Errorf("OffsetFromMaster = %+v, want 0", got)
	}
}

func TestExchangeCompletesOnAllFourTimestamps(t *testing.T) {
	var got []Measurement
	c := New(ClockIdentity{1}, 8, func(m Measurement) { got = append(got, m) })

	peer := ClockIdentity{2}
	c.RxSync(1, ptime.New(105, 0), ptime.Zero, peer)
	c.RxFollowUp(1, ptime.New(100, 0), ptime.Zero)

	seq, ok := c.SendDelayReq(ptime.New(200, 0))
	if !ok {
		t.Fatal("SendDelayReq: expected ok, sync pair was ready")
	}
	c.RxDelayResp(seq, ptime.New(205, 0))

	if len(got) != 1 {
		t.Fatalf("got %d measurements, want 1", len(got))
	}
	if got[0].MeanPathDelay().DeltaSeconds() != 5 {
		t.Errorf("delay = %+v, want 5s", got[0].MeanPathDelay())
	}
}

func TestDelayRespWithoutSyncDiscarded(t *testing.T) {
	c := New(ClockIdentity{1}, 8, func(Measurement) { t.Fatal("unexpected measurement") })
	// No RxSync/RxFollowUp at all: SendDelayReq must refuse, and a
	// Delay-Resp arriving anyway must not publish a measurement.
	if _, ok := c.SendDelayReq(ptime.New(10, 0)); ok {
		t.Fatal("SendDelayReq should refuse without a completed Sync pair")
	}
	c.RxDelayResp(0, ptime.New(11, 0))
}

func TestDelayRespUnknownSequenceDiscarded(t *testing.T) {
	fired := false
	c := New(ClockIdentity{1}, 8, func(Measurement) { fired = true })
	c.RxDelayResp(999, ptime.New(1, 0))
	if fired {
		t.Fatal("RxDelayResp for an unknown sequence must not publish a measurement")
	}
}

func TestInFlightWindowEviction(t *testing.T) {
	c := New(ClockIdentity{1}, 8, func(Measurement) {})
	peer := ClockIdentity{2}
	for i := 0; i < 12; i++ {
		c.RxSync(uint16(i), ptime.New(int64(i), 0), ptime.Zero, peer)
		c.RxFollowUp(uint16(i), ptime.New(int64(i)-1, 0), ptime.Zero)
		if _, ok := c.SendDelayReq(ptime.New(int64(i)+50, 0)); !ok {
			t.Fatalf("SendDelayReq(%d) unexpectedly refused", i)
		}
	}
	if c.InFlight() != 8 {
		t.Errorf("InFlight = %d, want 8 (window bound)", c.InFlight())
	}
}
