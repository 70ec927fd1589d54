package mbox

import (
	"errors"
	"testing"
)

func TestDecodeRecordLayout(t *testing.T) {
	var buf [RecordLen]byte
	for i := range buf {
		buf[i] = byte(i)
	}
	r, err := DecodeRecord(buf[:])
	if err != nil {
		t.Fatal(err)
	}
	if r.EventsVector != 0x03020100 {
		t.Errorf("bad vector %#x", r.EventsVector)
	}
	if r.EventsMask != 0x07060504 {
		t.Errorf("bad mask %#x", r.EventsMask)
	}
	if r.RSSISNRTriggerMetric[0] != 22 || r.RSSISNRTriggerMetric[7] != 29 {
		t.Error("bad rssi metrics", r.RSSISNRTriggerMetric)
	}
	if r.StaAgingStatus != 0x2524 {
		t.Errorf("bad aging status %#x", r.StaAgingStatus)
	}
	if r.StaTxRetryExceeded != 0x2726 {
		t.Errorf("bad tx retry bitmap %#x", r.StaTxRetryExceeded)
	}
	if r.RoleID != 44 || r.RxBAAllowed != 45 {
		t.Error("bad rx ba fields", r.RoleID, r.RxBAAllowed)
	}
	if r.ChannelSwitchStatus != 49 || r.ScheduledScanStatus != 31 || r.SoftGeminiSenseInfo != 20 {
		t.Error("bad status fields")
	}
}

func TestRecordPutDecode(t *testing.T) {
	want := Record{
		EventsVector:         Vector(EvBSS_LOSE | EvMAX_TX_RETRY),
		RSSISNRTriggerMetric: [8]int8{-70, 0, 0, 0, 0, 0, 0, -1},
		StaTxRetryExceeded:   1 << 3,
		RoleID:               AnyRole,
		ChannelSwitchStatus:  1,
	}
	var buf [RecordLen]byte
	want.Put(buf[:])
	got, err := DecodeRecord(buf[:])
	if err != nil {
		t.Fatal(err)
	}
	if got != want {
		t.Errorf("got %+v\nwant %+v", got, want)
	}
}

func TestDecodeShort(t *testing.T) {
	_, err := Decode(make([]byte, RecordLen-1))
	if !errors.Is(err, ErrMalformedRecord) {
		t.Fatal("expected malformed record error, got", err)
	}
}

func TestDecodeMask(t *testing.T) {
	tests := []struct {
		name   string
		vector Vector
		mask   Vector
		want   EventSet
	}{
		{name: "all masked", vector: Vector(EvSCAN_COMPLETE | EvBSS_LOSE), mask: Vector(EvSCAN_COMPLETE | EvBSS_LOSE)},
		{name: "full mask", vector: 0xffffffff, mask: 0xffffffff},
		{name: "partial", vector: Vector(EvSCAN_COMPLETE | EvBSS_LOSE), mask: Vector(EvBSS_LOSE), want: 1 << KindScanComplete},
		{name: "reserved bit ignored", vector: Vector(evRESERVED1)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := Record{EventsVector: tt.vector, EventsMask: tt.mask}
			var buf [RecordLen]byte
			r.Put(buf[:])
			got, err := Decode(buf[:])
			if err != nil {
				t.Fatal(err)
			}
			if got.Events != tt.want {
				t.Errorf("got %v, want %v", got.Events, tt.want)
			}
		})
	}
}

func TestVectorEventsRoundTrip(t *testing.T) {
	for k := Kind(0); k < numKinds; k++ {
		if k.Bit() == 0 {
			t.Fatalf("kind %d has no firmware bit", k)
		}
		set := Vector(k.Bit()).Events()
		if set.Len() != 1 || !set.Has(k) {
			t.Errorf("kind %v decoded to %v", k, set)
		}
		got, ok := ParseKind(k.String())
		if !ok || got != k {
			t.Errorf("ParseKind(%q) = %v, %v", k.String(), got, ok)
		}
	}
}

func TestEventSetKinds(t *testing.T) {
	var set EventSet
	set.Add(KindBeaconLoss)
	set.Add(KindScanComplete)
	set.Add(KindDummyPacket)
	var got []Kind
	for k := range set.Kinds() {
		got = append(got, k)
	}
	if len(got) != 3 || got[0] != KindScanComplete || got[1] != KindBeaconLoss || got[2] != KindDummyPacket {
		t.Error("unexpected iteration order", got)
	}
	if set.String() != "{SCAN_COMPLETE,BSS_LOSE,DUMMY_PACKET}" {
		t.Error("bad string", set.String())
	}
	set.Remove(KindBeaconLoss)
	if set.Has(KindBeaconLoss) || set.Len() != 2 {
		t.Error("remove failed")
	}
}
