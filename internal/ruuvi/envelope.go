package ruuvi

import (
	"bytes"
	"encoding/hex"
	"encoding/json"
	"time"
)

// TimestampTolerance bounds how far an envelope timestamp may drift from
// wall-clock receipt before it is ignored in favor of receive time.
const TimestampTolerance = 5 * time.Minute

// Ruuvi Innovations Ltd BLE manufacturer ID, little-endian on the wire
const (
	manufacturerIDLo = 0x99
	manufacturerIDHi = 0x04
	adTypeManufacturer = 0xFF
)

// Envelope is the JSON object a Ruuvi Gateway publishes per advertisement.
// Data holds the hex-encoded BLE advertisement; Timestamp is unix seconds
// and may be absent.
type Envelope struct {
	GatewayMAC string `json:"gw_mac"`
	RSSI       int64  `json:"rssi"`
	Timestamp  int64  `json:"ts"`
	Data       string `json:"data"`
}

// ParseEnvelope splits an MQTT message body into envelope metadata and the
// raw advertisement payload. A JSON body is decoded as a gateway envelope;
// anything else is treated as the bare advertisement with no envelope.
func ParseEnvelope(body []byte) (*Envelope, []byte, error) {
	trimmed := bytes.TrimSpace(body)
	if len(trimmed) == 0 || trimmed[0] != '{' {
		return &Envelope{}, body, nil
	}

	var env Envelope
	if err := json.Unmarshal(trimmed, &env); err != nil {
		return nil, nil, &EnvelopeError{Reason: "invalid JSON: " + err.Error()}
	}
	if env.Data == "" {
		return nil, nil, &EnvelopeError{Reason: "envelope has no data field"}
	}

	adv, err := hex.DecodeString(env.Data)
	if err != nil {
		return nil, nil, &EnvelopeError{Reason: "data field is not hex: " + err.Error()}
	}

	return &env, ExtractAdvertisement(adv), nil
}

// ExtractAdvertisement locates the Ruuvi manufacturer payload inside a BLE
// advertisement frame. Gateways forward the whole frame (flags AD structure,
// then the manufacturer-specific AD structure); tags on some firmware post
// the bare payload. Returns the input unchanged when no manufacturer
// structure is found, leaving the format check to the decoder.
func ExtractAdvertisement(b []byte) []byte {
	if len(b) >= dataFormat5Len && b[0] == DataFormat5 {
		return b
	}

	// Walk the AD structures: [length][type][data...]
	i := 0
	for i < len(b) {
		adLen := int(b[i])
		if adLen == 0 || i+1+adLen > len(b) {
			break
		}
		adType := b[i+1]
		if adType == adTypeManufacturer && adLen >= 3 &&
			b[i+2] == manufacturerIDLo && b[i+3] == manufacturerIDHi {
			return b[i+4 : i+1+adLen]
		}
		i += 1 + adLen
	}
	return b
}

// ObservedAt picks the observation timestamp for a reading: the envelope
// timestamp when present and within tolerance of receipt, receive time
// otherwise.
func (e *Envelope) ObservedAt(receivedAt time.Time) time.Time {
	if e.Timestamp == 0 {
		return receivedAt.UTC()
	}
	ts := time.Unix(e.Timestamp, 0).UTC()
	drift := receivedAt.Sub(ts)
	if drift < 0 {
		drift = -drift
	}
	if drift > TimestampTolerance {
		return receivedAt.UTC()
	}
	return ts
}
