package ruuvi

import (
	"encoding/binary"
	"math"
)

// Data format 5 ("RAWv2") is the current Ruuvi advertisement format:
// 24 bytes, big-endian, scaled integers.
// https://docs.ruuvi.com/communication/bluetooth-advertisements/data-format-5-rawv2
const (
	DataFormat5    byte = 5
	dataFormat5Len      = 24
)

// Sentinel raw values mean "not available": all ones for the unsigned fields,
// the minimum value (0x8000) for the signed 16-bit fields
const (
	sentinelI16     = math.MinInt16 // 0x8000
	sentinelU16     = 0xFFFF
	sentinelBattery = 0x7FF // 11-bit battery field
	sentinelTxPower = 0x1F  // 5-bit tx power field
	sentinelU8      = 0xFF
)

// Decode translates a raw advertisement payload into a SensorReading. The
// returned reading carries only payload-derived fields; GatewayMAC, RSSIDBm
// and ObservedAt are zero and must be supplied from the gateway envelope.
//
// hint is the sensor MAC parsed from the MQTT topic. When the payload embeds
// a MAC it must match the hint; a payload MAC of all-FF (not broadcast) is
// ignored and the hint is used.
//
// Decode is pure: no I/O, no shared state. Every failure is returned as a
// DecodeError value.
func Decode(payload []byte, hint MAC) (*SensorReading, error) {
	if len(payload) < dataFormat5Len {
		return nil, &TruncatedPayloadError{Expected: dataFormat5Len, Actual: len(payload)}
	}
	if payload[0] != DataFormat5 {
		return nil, &UnsupportedFormatError{Format: payload[0]}
	}

	rawTemp := int16(binary.BigEndian.Uint16(payload[1:3]))
	rawHumidity := binary.BigEndian.Uint16(payload[3:5])
	rawPressure := binary.BigEndian.Uint16(payload[5:7])
	rawAccelX := int16(binary.BigEndian.Uint16(payload[7:9]))
	rawAccelY := int16(binary.BigEndian.Uint16(payload[9:11]))
	rawAccelZ := int16(binary.BigEndian.Uint16(payload[11:13]))
	rawPower := binary.BigEndian.Uint16(payload[13:15])
	rawMovement := payload[15]
	rawSequence := binary.BigEndian.Uint16(payload[16:18])

	if rawTemp == sentinelI16 {
		return nil, &OutOfRangeError{Field: "temperature_c", Value: float64(rawTemp)}
	}
	if rawHumidity == sentinelU16 {
		return nil, &OutOfRangeError{Field: "humidity_pct", Value: float64(rawHumidity)}
	}
	if rawPressure == sentinelU16 {
		return nil, &OutOfRangeError{Field: "pressure_hpa", Value: float64(rawPressure)}
	}
	if rawAccelX == sentinelI16 {
		return nil, &OutOfRangeError{Field: "acceleration_x_mg", Value: float64(rawAccelX)}
	}
	if rawAccelY == sentinelI16 {
		return nil, &OutOfRangeError{Field: "acceleration_y_mg", Value: float64(rawAccelY)}
	}
	if rawAccelZ == sentinelI16 {
		return nil, &OutOfRangeError{Field: "acceleration_z_mg", Value: float64(rawAccelZ)}
	}

	// Power info packs an 11-bit battery voltage and a 5-bit tx power
	rawBattery := rawPower >> 5
	rawTxPower := rawPower & 0x1F
	if rawBattery == sentinelBattery {
		return nil, &OutOfRangeError{Field: "battery_mv", Value: float64(rawBattery)}
	}
	if rawTxPower == sentinelTxPower {
		return nil, &OutOfRangeError{Field: "tx_power_dbm", Value: float64(rawTxPower)}
	}
	if rawMovement == sentinelU8 {
		return nil, &OutOfRangeError{Field: "movement_counter", Value: float64(rawMovement)}
	}
	if rawSequence == sentinelU16 {
		return nil, &OutOfRangeError{Field: "measurement_sequence", Value: float64(rawSequence)}
	}

	sensorMAC, err := payloadMAC(payload[18:24], hint)
	if err != nil {
		return nil, err
	}

	accelX := int64(rawAccelX)
	accelY := int64(rawAccelY)
	accelZ := int64(rawAccelZ)

	reading := &SensorReading{
		SensorMAC:              sensorMAC,
		TemperatureC:           float64(rawTemp) * 0.005,
		HumidityPct:            float64(rawHumidity) * 0.0025,
		PressureHPa:            (float64(rawPressure) + 50000.0) / 100.0,
		BatteryMV:              int64(rawBattery) + 1600,
		TxPowerDBm:             int64(rawTxPower)*2 - 40,
		MovementCounter:        int64(rawMovement),
		MeasurementSequence:    int64(rawSequence),
		AccelerationXMg:        accelX,
		AccelerationYMg:        accelY,
		AccelerationZMg:        accelZ,
		AccelerationMagnitudeG: math.Sqrt(float64(accelX*accelX+accelY*accelY+accelZ*accelZ)) / 1000.0,
	}

	if err := reading.Validate(); err != nil {
		return nil, err
	}

	return reading, nil
}

// payloadMAC resolves the sensor MAC embedded at the end of a format 5
// payload against the topic-derived hint
func payloadMAC(b []byte, hint MAC) (MAC, error) {
	var raw [6]byte
	copy(raw[:], b)

	notBroadcast := true
	for _, v := range raw {
		if v != 0xFF {
			notBroadcast = false
			break
		}
	}
	if notBroadcast {
		// Tag configured to withhold its MAC; the topic is authoritative
		if hint == "" {
			return "", &EnvelopeError{Reason: "payload carries no MAC and topic gave none"}
		}
		return hint, nil
	}

	embedded := MACFromBytes(raw)
	if hint != "" && embedded != hint {
		return "", &EnvelopeError{Reason: "payload MAC " + string(embedded) + " does not match topic MAC " + string(hint)}
	}
	return embedded, nil
}
