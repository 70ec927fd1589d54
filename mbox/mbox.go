// package mbox implements the wl12xx firmware event mailbox record format.
package mbox

import (
	"encoding/binary"
	"errors"
	"strconv"
)

// RecordLen is the size of a mailbox record as posted by the firmware.
const RecordLen = 64

// NumRSSITriggers is the number of RSSI/SNR trigger metrics in a record.
const NumRSSITriggers = 8

// AnyRole is the role id meaning "every role" in role-scoped events.
const AnyRole = 0xff

// MaxLinks is the number of HLIDs addressable by the station bitmaps.
const MaxLinks = 16

var ErrMalformedRecord = errors.New("mbox: malformed record")

// Record is the event mailbox descriptor.
type Record struct {
	EventsVector Vector
	EventsMask   Vector

	NumberOfScanResults uint8
	ScanTag             uint8
	CompletedScanStatus uint8

	SoftGeminiSenseInfo      uint8
	SoftGeminiProtectiveInfo uint8
	// Signed metric reported for each RSSI/SNR trigger index.
	RSSISNRTriggerMetric  [NumRSSITriggers]int8
	ChangeAutoModeTimeout uint8
	ScheduledScanStatus   uint8
	// Tuned channel of a remain-on-channel operation.
	ROCChannel uint8

	HLIDRemovedBitmap uint16
	// Bitmap of aged stations by HLID.
	StaAgingStatus uint16
	// Bitmap of stations by HLID that exceeded max tx retries.
	StaTxRetryExceeded uint16

	DiscoveryTag        uint8
	NumberOfPreqResults uint8
	NumberOfPrspResults uint8

	// Role the rx BA constraint applies to. AnyRole means all roles.
	RoleID      uint8
	RxBAAllowed uint8

	ChannelSwitchRoleID uint8
	ChannelSwitchStatus uint8

	PSPollDeliveryFailureRoleIDs uint8
	StoppedRoleIDs               uint8
	StartedRoleIDs               uint8
}

// DecodeRecord decodes the fixed mailbox layout. All multi-byte fields are little-endian.
func DecodeRecord(b []byte) (r Record, err error) {
	if len(b) < RecordLen {
		return r, errors.Join(ErrMalformedRecord, errors.New("short record, len="+strconv.Itoa(len(b))))
	}
	_ = b[RecordLen-1]
	r.EventsVector = Vector(binary.LittleEndian.Uint32(b[0:]))
	r.EventsMask = Vector(binary.LittleEndian.Uint32(b[4:]))
	// 8..15 reserved.
	r.NumberOfScanResults = b[16]
	r.ScanTag = b[17]
	r.CompletedScanStatus = b[18]
	r.SoftGeminiSenseInfo = b[20]
	r.SoftGeminiProtectiveInfo = b[21]
	for i := range r.RSSISNRTriggerMetric {
		r.RSSISNRTriggerMetric[i] = int8(b[22+i])
	}
	r.ChangeAutoModeTimeout = b[30]
	r.ScheduledScanStatus = b[31]
	r.ROCChannel = b[33]
	r.HLIDRemovedBitmap = binary.LittleEndian.Uint16(b[34:])
	r.StaAgingStatus = binary.LittleEndian.Uint16(b[36:])
	r.StaTxRetryExceeded = binary.LittleEndian.Uint16(b[38:])
	r.DiscoveryTag = b[40]
	r.NumberOfPreqResults = b[41]
	r.NumberOfPrspResults = b[42]
	r.RoleID = b[44]
	r.RxBAAllowed = b[45]
	r.ChannelSwitchRoleID = b[48]
	r.ChannelSwitchStatus = b[49]
	r.PSPollDeliveryFailureRoleIDs = b[52]
	r.StoppedRoleIDs = b[53]
	r.StartedRoleIDs = b[54]
	return r, nil
}

// Put puts all RecordLen bytes of the record in dst. Reserved bytes are zeroed.
// Panics if dst is shorter than RecordLen.
func (r *Record) Put(dst []byte) {
	_ = dst[RecordLen-1]
	clear(dst[:RecordLen])
	binary.LittleEndian.PutUint32(dst[0:], uint32(r.EventsVector))
	binary.LittleEndian.PutUint32(dst[4:], uint32(r.EventsMask))
	dst[16] = r.NumberOfScanResults
	dst[17] = r.ScanTag
	dst[18] = r.CompletedScanStatus
	dst[20] = r.SoftGeminiSenseInfo
	dst[21] = r.SoftGeminiProtectiveInfo
	for i, m := range r.RSSISNRTriggerMetric {
		dst[22+i] = byte(m)
	}
	dst[30] = r.ChangeAutoModeTimeout
	dst[31] = r.ScheduledScanStatus
	dst[33] = r.ROCChannel
	binary.LittleEndian.PutUint16(dst[34:], r.HLIDRemovedBitmap)
	binary.LittleEndian.PutUint16(dst[36:], r.StaAgingStatus)
	binary.LittleEndian.PutUint16(dst[38:], r.StaTxRetryExceeded)
	dst[40] = r.DiscoveryTag
	dst[41] = r.NumberOfPreqResults
	dst[42] = r.NumberOfPrspResults
	dst[44] = r.RoleID
	dst[45] = r.RxBAAllowed
	dst[48] = r.ChannelSwitchRoleID
	dst[49] = r.ChannelSwitchStatus
	dst[52] = r.PSPollDeliveryFailureRoleIDs
	dst[53] = r.StoppedRoleIDs
	dst[54] = r.StartedRoleIDs
}

// Active returns the actionable event bits: the events vector with masked-out bits cleared.
func (r *Record) Active() Vector {
	return r.EventsVector &^ r.EventsMask
}

// Payload holds the scalar fields that accompany decoded events.
type Payload struct {
	ScanStatus          uint8
	SchedScanStatus     uint8
	SoftGeminiEnable    bool
	RSSIMetric          [NumRSSITriggers]int8
	RoleID              uint8
	RxBAAllowed         bool
	TxRetryExceeded     uint16
	AgingStatus         uint16
	ChannelSwitchStatus uint8
}

// Decoded is the result of decoding a mailbox record.
type Decoded struct {
	Events EventSet
	Payload
}

// Decode parses a raw mailbox record into the set of actionable events and their payload.
// It fails only if b is shorter than RecordLen.
func Decode(b []byte) (Decoded, error) {
	r, err := DecodeRecord(b)
	if err != nil {
		return Decoded{}, err
	}
	return r.Decoded(), nil
}

// Decoded returns the actionable events of r along with their payload.
func (r *Record) Decoded() Decoded {
	return Decoded{
		Events: r.Active().Events(),
		Payload: Payload{
			ScanStatus:          r.CompletedScanStatus,
			SchedScanStatus:     r.ScheduledScanStatus,
			SoftGeminiEnable:    r.SoftGeminiSenseInfo != 0,
			RSSIMetric:          r.RSSISNRTriggerMetric,
			RoleID:              r.RoleID,
			RxBAAllowed:         r.RxBAAllowed != 0,
			TxRetryExceeded:     r.StaTxRetryExceeded,
			AgingStatus:         r.StaAgingStatus,
			ChannelSwitchStatus: r.ChannelSwitchStatus,
		},
	}
}
