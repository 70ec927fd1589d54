package mbox

// EventID is a bit of the mailbox events vector as written by the firmware.
type EventID uint32

// Event vector bits as defined by the wl12xx firmware.
const (
	EvRSSI_SNR_TRIGGER_0 EventID = 1 << iota
	EvRSSI_SNR_TRIGGER_1
	EvRSSI_SNR_TRIGGER_2
	EvRSSI_SNR_TRIGGER_3
	EvRSSI_SNR_TRIGGER_4
	EvRSSI_SNR_TRIGGER_5
	EvRSSI_SNR_TRIGGER_6
	EvRSSI_SNR_TRIGGER_7
	EvMEASUREMENT_START
	EvMEASUREMENT_COMPLETE
	// scan results are ready or scan was aborted.
	EvSCAN_COMPLETE
	EvWFD_DISCOVERY_COMPLETE
	EvAP_DISCOVERY_COMPLETE
	evRESERVED1
	EvPSPOLL_DELIVERY_FAILURE
	EvROLE_STOP_COMPLETE
	EvRADAR_DETECTED
	// channel switch finished, status in ChannelSwitchStatus.
	EvCHANNEL_SWITCH_COMPLETE
	// beacons lost while beacon filtering is active.
	EvBSS_LOSE
	EvREGAINED_BSS
	// stations in StaTxRetryExceeded ran out of tx retries.
	EvMAX_TX_RETRY
	// firmware requests a keepalive packet to be sent.
	EvDUMMY_PACKET
	EvSOFT_GEMINI_SENSE
	EvCHANGE_AUTO_MODE_TIMEOUT
	EvSOFT_GEMINI_AVALANCHE
	EvPLT_RX_CALIBRATION_COMPLETE
	// stations in StaAgingStatus have been inactive.
	EvINACTIVE_STA
	EvPEER_REMOVE_COMPLETE
	EvPERIODIC_SCAN_COMPLETE
	EvPERIODIC_SCAN_REPORT
	EvBA_SESSION_RX_CONSTRAINT
	EvREMAIN_ON_CHANNEL_COMPLETE
)

// Kind is a decoded event kind. Kinds are independent of firmware bit positions.
type Kind uint8

const (
	KindRSSITrigger0 Kind = iota
	KindRSSITrigger1
	KindRSSITrigger2
	KindRSSITrigger3
	KindRSSITrigger4
	KindRSSITrigger5
	KindRSSITrigger6
	KindRSSITrigger7
	KindMeasurementStart
	KindMeasurementComplete
	KindScanComplete
	KindWFDDiscoveryComplete
	KindAPDiscoveryComplete
	KindPSPollDeliveryFailure
	KindRoleStopComplete
	KindRadarDetected
	KindChannelSwitchComplete
	KindBeaconLoss
	KindRegainedBSS
	KindMaxTxRetry
	KindDummyPacket
	KindSoftGeminiSense
	KindChangeAutoModeTimeout
	KindSoftGeminiAvalanche
	KindPLTRxCalibrationComplete
	KindInactiveStation
	KindPeerRemoveComplete
	KindPeriodicScanComplete
	KindPeriodicScanReport
	KindBARxConstraint
	KindRemainOnChannelComplete
	numKinds
)

// NumKinds is the number of event kinds this package understands.
const NumKinds = int(numKinds)

// kindBits maps each kind to the firmware vector bit that raises it.
var kindBits = [numKinds]EventID{
	KindRSSITrigger0:             EvRSSI_SNR_TRIGGER_0,
	KindRSSITrigger1:             EvRSSI_SNR_TRIGGER_1,
	KindRSSITrigger2:             EvRSSI_SNR_TRIGGER_2,
	KindRSSITrigger3:             EvRSSI_SNR_TRIGGER_3,
	KindRSSITrigger4:             EvRSSI_SNR_TRIGGER_4,
	KindRSSITrigger5:             EvRSSI_SNR_TRIGGER_5,
	KindRSSITrigger6:             EvRSSI_SNR_TRIGGER_6,
	KindRSSITrigger7:             EvRSSI_SNR_TRIGGER_7,
	KindMeasurementStart:         EvMEASUREMENT_START,
	KindMeasurementComplete:      EvMEASUREMENT_COMPLETE,
	KindScanComplete:             EvSCAN_COMPLETE,
	KindWFDDiscoveryComplete:     EvWFD_DISCOVERY_COMPLETE,
	KindAPDiscoveryComplete:      EvAP_DISCOVERY_COMPLETE,
	KindPSPollDeliveryFailure:    EvPSPOLL_DELIVERY_FAILURE,
	KindRoleStopComplete:         EvROLE_STOP_COMPLETE,
	KindRadarDetected:            EvRADAR_DETECTED,
	KindChannelSwitchComplete:    EvCHANNEL_SWITCH_COMPLETE,
	KindBeaconLoss:               EvBSS_LOSE,
	KindRegainedBSS:              EvREGAINED_BSS,
	KindMaxTxRetry:               EvMAX_TX_RETRY,
	KindDummyPacket:              EvDUMMY_PACKET,
	KindSoftGeminiSense:          EvSOFT_GEMINI_SENSE,
	KindChangeAutoModeTimeout:    EvCHANGE_AUTO_MODE_TIMEOUT,
	KindSoftGeminiAvalanche:      EvSOFT_GEMINI_AVALANCHE,
	KindPLTRxCalibrationComplete: EvPLT_RX_CALIBRATION_COMPLETE,
	KindInactiveStation:          EvINACTIVE_STA,
	KindPeerRemoveComplete:       EvPEER_REMOVE_COMPLETE,
	KindPeriodicScanComplete:     EvPERIODIC_SCAN_COMPLETE,
	KindPeriodicScanReport:       EvPERIODIC_SCAN_REPORT,
	KindBARxConstraint:           EvBA_SESSION_RX_CONSTRAINT,
	KindRemainOnChannelComplete:  EvREMAIN_ON_CHANNEL_COMPLETE,
}

var kindNames = [numKinds]string{
	KindRSSITrigger0:             "RSSI_TRIGGER_0",
	KindRSSITrigger1:             "RSSI_TRIGGER_1",
	KindRSSITrigger2:             "RSSI_TRIGGER_2",
	KindRSSITrigger3:             "RSSI_TRIGGER_3",
	KindRSSITrigger4:             "RSSI_TRIGGER_4",
	KindRSSITrigger5:             "RSSI_TRIGGER_5",
	KindRSSITrigger6:             "RSSI_TRIGGER_6",
	KindRSSITrigger7:             "RSSI_TRIGGER_7",
	KindMeasurementStart:         "MEASUREMENT_START",
	KindMeasurementComplete:      "MEASUREMENT_COMPLETE",
	KindScanComplete:             "SCAN_COMPLETE",
	KindWFDDiscoveryComplete:     "WFD_DISCOVERY_COMPLETE",
	KindAPDiscoveryComplete:      "AP_DISCOVERY_COMPLETE",
	KindPSPollDeliveryFailure:    "PSPOLL_DELIVERY_FAILURE",
	KindRoleStopComplete:         "ROLE_STOP_COMPLETE",
	KindRadarDetected:            "RADAR_DETECTED",
	KindChannelSwitchComplete:    "CHANNEL_SWITCH_COMPLETE",
	KindBeaconLoss:               "BSS_LOSE",
	KindRegainedBSS:              "REGAINED_BSS",
	KindMaxTxRetry:               "MAX_TX_RETRY",
	KindDummyPacket:              "DUMMY_PACKET",
	KindSoftGeminiSense:          "SOFT_GEMINI_SENSE",
	KindChangeAutoModeTimeout:    "CHANGE_AUTO_MODE_TIMEOUT",
	KindSoftGeminiAvalanche:      "SOFT_GEMINI_AVALANCHE",
	KindPLTRxCalibrationComplete: "PLT_RX_CALIBRATION_COMPLETE",
	KindInactiveStation:          "INACTIVE_STA",
	KindPeerRemoveComplete:       "PEER_REMOVE_COMPLETE",
	KindPeriodicScanComplete:     "PERIODIC_SCAN_COMPLETE",
	KindPeriodicScanReport:       "PERIODIC_SCAN_REPORT",
	KindBARxConstraint:           "BA_SESSION_RX_CONSTRAINT",
	KindRemainOnChannelComplete:  "REMAIN_ON_CHANNEL_COMPLETE",
}

func (k Kind) String() string {
	if k >= numKinds {
		return "UNKNOWN"
	}
	return kindNames[k]
}

// Bit returns the firmware vector bit of the kind, or 0 for an invalid kind.
func (k Kind) Bit() EventID {
	if k >= numKinds {
		return 0
	}
	return kindBits[k]
}

// ParseKind returns the kind named s as printed by [Kind.String].
func ParseKind(s string) (Kind, bool) {
	for k, name := range kindNames {
		if name == s {
			return Kind(k), true
		}
	}
	return 0, false
}

// Vector is a set of raw firmware event bits. It is used both for the
// events vector and for the mask programmed into the firmware.
type Vector uint32

func (v *Vector) Enable(k Kind) { *v |= Vector(k.Bit()) }

func (v *Vector) Disable(k Kind) { *v &^= Vector(k.Bit()) }

func (v Vector) IsEnabled(k Kind) bool {
	bit := k.Bit()
	return bit != 0 && EventID(v)&bit != 0
}

// Events decodes the recognised bits of v. Unknown and reserved bits are ignored.
func (v Vector) Events() (set EventSet) {
	for k := Kind(0); k < numKinds; k++ {
		if EventID(v)&kindBits[k] != 0 {
			set.Add(k)
		}
	}
	return set
}
