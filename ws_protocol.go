package wesviz

import (
	"encoding/binary"
	"encoding/json"
	"fmt"
	"math"
)

// Protocol constants
const (
	// ProtocolVersion is the current version of the chart frame protocol
	ProtocolVersion byte = 1

	// Message type constants
	MessageTypeChartMount   byte = 0x01
	MessageTypeChartDispose byte = 0x02
	MessageTypeCursor       byte = 0x03
	MessageTypeErrors       byte = 0x04

	// Header size in bytes
	EnvelopeHeaderSize = 8

	// Column length marking an input that failed to resolve.
	unresolvedColumnLength = math.MaxUint32
)

// EnvelopeHeader represents the message envelope header
type EnvelopeHeader struct {
	Version  byte
	Reserved [2]byte // Reserved for future use
	Type     byte
	Length   uint32 // Payload length in bytes
}

// ChartMountMessage represents a CHART_MOUNT message payload (type 0x01). It
// carries everything the web UI needs to construct one chart.
type ChartMountMessage struct {
	// Unique per constructed chart. Cursor messages carry it so that events for a
	// chart that has since been replaced are dropped.
	ChartID uint32
	MountID string
	Options ChartOptions

	// Columns[i] is nil for an input that failed to resolve.
	Columns [][]float64
}

// ChartDisposeMessage represents a CHART_DISPOSE message payload (type 0x02)
type ChartDisposeMessage struct {
	ChartID uint32 `json:"chartId"`
	MountID string `json:"mount"`
}

// CursorMessage represents a CURSOR message payload (type 0x03). Sent by the
// web UI when the pointer moves over a chart, and by the server to mirror it
// onto the other charts of the sync group.
type CursorMessage struct {
	ChartID  uint32         `json:"chartId"`
	MountID  string         `json:"mount"`
	Position CursorPosition `json:"position"`
}

// ErrorsMessage represents an ERRORS message payload (type 0x04): the current
// contents of the error sink.
type ErrorsMessage struct {
	Errors []string `json:"errors"`
}

// WSMessage represents a complete websocket message with header and payload
type WSMessage struct {
	Header  EnvelopeHeader
	Payload interface{} // One of: ChartMountMessage, ChartDisposeMessage, CursorMessage, ErrorsMessage
}

// EncodeEnvelopeHeader encodes the envelope header into a byte slice
func EncodeEnvelopeHeader(env EnvelopeHeader) []byte {
	buf := make([]byte, EnvelopeHeaderSize)
	buf[0] = env.Version
	buf[1] = env.Reserved[0]
	buf[2] = env.Reserved[1]
	buf[3] = env.Type
	binary.LittleEndian.PutUint32(buf[4:8], env.Length)
	return buf
}

// DecodeEnvelopeHeader decodes the envelope header from a byte slice
// Returns the envelope and an error if the buffer is too short
func DecodeEnvelopeHeader(buf []byte) (EnvelopeHeader, error) {
	if len(buf) < EnvelopeHeaderSize {
		return EnvelopeHeader{}, fmt.Errorf("buffer too short: expected at least %d bytes, got %d", EnvelopeHeaderSize, len(buf))
	}

	env := EnvelopeHeader{
		Version: buf[0],
		Type:    buf[3],
		Length:  binary.LittleEndian.Uint32(buf[4:8]),
	}
	env.Reserved[0] = buf[1]
	env.Reserved[1] = buf[2]

	return env, nil
}

type chartMountHeader struct {
	MountID string       `json:"mount"`
	Options ChartOptions `json:"options"`
}

// EncodeChartMountMessage encodes a CHART_MOUNT message payload:
// ChartID(4) + JSON length(4) + JSON {mount, options} + column count(4), then
// per column a length(4) followed by that many little endian float64s. NaN
// samples are sent as is.
func EncodeChartMountMessage(msg ChartMountMessage) ([]byte, error) {
	jsonData, err := json.Marshal(chartMountHeader{MountID: msg.MountID, Options: msg.Options})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal chart options: %w", err)
	}

	payloadSize := 4 + 4 + len(jsonData) + 4
	for _, column := range msg.Columns {
		payloadSize += 4 + len(column)*8
	}

	buf := make([]byte, payloadSize)
	binary.LittleEndian.PutUint32(buf[0:4], msg.ChartID)
	binary.LittleEndian.PutUint32(buf[4:8], uint32(len(jsonData)))
	copy(buf[8:], jsonData)

	offset := 8 + len(jsonData)
	binary.LittleEndian.PutUint32(buf[offset:offset+4], uint32(len(msg.Columns)))
	offset += 4

	for _, column := range msg.Columns {
		if column == nil {
			binary.LittleEndian.PutUint32(buf[offset:offset+4], unresolvedColumnLength)
			offset += 4
			continue
		}

		binary.LittleEndian.PutUint32(buf[offset:offset+4], uint32(len(column)))
		offset += 4

		for _, v := range column {
			binary.LittleEndian.PutUint64(buf[offset:offset+8], math.Float64bits(v))
			offset += 8
		}
	}

	return buf, nil
}

// DecodeChartMountMessage decodes a CHART_MOUNT message payload
func DecodeChartMountMessage(buf []byte) (ChartMountMessage, error) {
	if len(buf) < 8 {
		return ChartMountMessage{}, fmt.Errorf("buffer too short for CHART_MOUNT message: expected at least 8 bytes, got %d", len(buf))
	}

	msg := ChartMountMessage{
		ChartID: binary.LittleEndian.Uint32(buf[0:4]),
	}

	jsonLength := uint64(binary.LittleEndian.Uint32(buf[4:8]))
	if uint64(len(buf)) < 8+jsonLength+4 {
		return ChartMountMessage{}, fmt.Errorf("buffer too short for CHART_MOUNT options: expected at least %d bytes, got %d", 8+jsonLength+4, len(buf))
	}

	var header chartMountHeader
	if err := json.Unmarshal(buf[8:8+jsonLength], &header); err != nil {
		return ChartMountMessage{}, fmt.Errorf("failed to unmarshal chart options: %w", err)
	}
	msg.MountID = header.MountID
	msg.Options = header.Options

	offset := 8 + jsonLength
	columnCount := binary.LittleEndian.Uint32(buf[offset : offset+4])
	offset += 4

	msg.Columns = make([][]float64, 0, Min(columnCount, 1024))
	for i := uint32(0); i < columnCount; i++ {
		if uint64(len(buf)) < offset+4 {
			return ChartMountMessage{}, fmt.Errorf("buffer too short for column %d header", i)
		}

		length := binary.LittleEndian.Uint32(buf[offset : offset+4])
		offset += 4

		if length == unresolvedColumnLength {
			msg.Columns = append(msg.Columns, nil)
			continue
		}

		end := offset + uint64(length)*8
		if uint64(len(buf)) < end {
			return ChartMountMessage{}, fmt.Errorf("buffer size mismatch: column %d expects %d values", i, length)
		}

		column := make([]float64, length)
		for j := range column {
			column[j] = math.Float64frombits(binary.LittleEndian.Uint64(buf[offset : offset+8]))
			offset += 8
		}
		msg.Columns = append(msg.Columns, column)
	}

	if offset != uint64(len(buf)) {
		return ChartMountMessage{}, fmt.Errorf("buffer size mismatch: %d trailing bytes", uint64(len(buf))-offset)
	}

	return msg, nil
}

// encodeJSONPayload encodes a JSON payload prefixed with its length:
// JSON Length (4 bytes) + JSON data
func encodeJSONPayload(v any, name string) ([]byte, error) {
	jsonData, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal %s message: %w", name, err)
	}

	buf := make([]byte, 4+len(jsonData))
	binary.LittleEndian.PutUint32(buf[0:4], uint32(len(jsonData)))
	copy(buf[4:], jsonData)

	return buf, nil
}

func decodeJSONPayload(buf []byte, v any, name string) error {
	if len(buf) < 4 {
		return fmt.Errorf("buffer too short for %s message: expected at least 4 bytes, got %d", name, len(buf))
	}

	jsonLength := binary.LittleEndian.Uint32(buf[0:4])

	// Validate buffer size
	expectedSize := 4 + uint64(jsonLength)
	if uint64(len(buf)) != expectedSize {
		return fmt.Errorf("buffer size mismatch: expected %d bytes, got %d", expectedSize, len(buf))
	}

	if err := json.Unmarshal(buf[4:], v); err != nil {
		return fmt.Errorf("failed to unmarshal %s message: %w", name, err)
	}

	return nil
}

// EncodeChartDisposeMessage encodes a CHART_DISPOSE message payload
func EncodeChartDisposeMessage(msg ChartDisposeMessage) ([]byte, error) {
	return encodeJSONPayload(msg, "chart dispose")
}

// DecodeChartDisposeMessage decodes a CHART_DISPOSE message payload
func DecodeChartDisposeMessage(buf []byte) (ChartDisposeMessage, error) {
	var msg ChartDisposeMessage
	err := decodeJSONPayload(buf, &msg, "chart dispose")
	return msg, err
}

// EncodeCursorMessage encodes a CURSOR message payload
func EncodeCursorMessage(msg CursorMessage) ([]byte, error) {
	return encodeJSONPayload(msg, "cursor")
}

// DecodeCursorMessage decodes a CURSOR message payload
func DecodeCursorMessage(buf []byte) (CursorMessage, error) {
	var msg CursorMessage
	err := decodeJSONPayload(buf, &msg, "cursor")
	return msg, err
}

// EncodeErrorsMessage encodes an ERRORS message payload
func EncodeErrorsMessage(msg ErrorsMessage) ([]byte, error) {
	if msg.Errors == nil {
		msg.Errors = []string{}
	}
	return encodeJSONPayload(msg, "errors")
}

// DecodeErrorsMessage decodes an ERRORS message payload
func DecodeErrorsMessage(buf []byte) (ErrorsMessage, error) {
	var msg ErrorsMessage
	err := decodeJSONPayload(buf, &msg, "errors")
	return msg, err
}

// EncodeWSMessage encodes a WSMessage into a complete message byte slice
// Returns error if payload encoding fails or if payload type is invalid
func EncodeWSMessage(msg WSMessage) ([]byte, error) {
	var payload []byte
	var err error

	// Encode payload based on message type
	switch msg.Header.Type {
	case MessageTypeChartMount:
		mount, ok := msg.Payload.(ChartMountMessage)
		if !ok {
			return nil, fmt.Errorf("payload type mismatch: expected ChartMountMessage for type 0x%02x, got %T", msg.Header.Type, msg.Payload)
		}
		payload, err = EncodeChartMountMessage(mount)
	case MessageTypeChartDispose:
		dispose, ok := msg.Payload.(ChartDisposeMessage)
		if !ok {
			return nil, fmt.Errorf("payload type mismatch: expected ChartDisposeMessage for type 0x%02x, got %T", msg.Header.Type, msg.Payload)
		}
		payload, err = EncodeChartDisposeMessage(dispose)
	case MessageTypeCursor:
		cursor, ok := msg.Payload.(CursorMessage)
		if !ok {
			return nil, fmt.Errorf("payload type mismatch: expected CursorMessage for type 0x%02x, got %T", msg.Header.Type, msg.Payload)
		}
		payload, err = EncodeCursorMessage(cursor)
	case MessageTypeErrors:
		errorsMsg, ok := msg.Payload.(ErrorsMessage)
		if !ok {
			return nil, fmt.Errorf("payload type mismatch: expected ErrorsMessage for type 0x%02x, got %T", msg.Header.Type, msg.Payload)
		}
		payload, err = EncodeErrorsMessage(errorsMsg)
	default:
		return nil, fmt.Errorf("unknown message type: 0x%02x", msg.Header.Type)
	}

	if err != nil {
		return nil, err
	}

	// Update header length to match actual payload size
	msg.Header.Length = uint32(len(payload))

	// Encode header
	header := EncodeEnvelopeHeader(msg.Header)

	// Combine header and payload
	fullMsg := make([]byte, len(header)+len(payload))
	copy(fullMsg, header)
	copy(fullMsg[len(header):], payload)

	return fullMsg, nil
}

// newWSMessage builds a message of the current protocol version.
func newWSMessage(messageType byte, payload interface{}) WSMessage {
	return WSMessage{
		Header: EnvelopeHeader{
			Version: ProtocolVersion,
			Type:    messageType,
		},
		Payload: payload,
	}
}

// DecodeWSMessage decodes a complete message (envelope + payload) into a WSMessage
// Returns error if buffer is too short or payload decoding fails
func DecodeWSMessage(buf []byte) (WSMessage, error) {
	env, err := DecodeEnvelopeHeader(buf)
	if err != nil {
		return WSMessage{}, err
	}

	if env.Version != ProtocolVersion {
		return WSMessage{}, fmt.Errorf("unsupported protocol version: %d", env.Version)
	}

	// Validate full message size
	expectedSize := uint64(EnvelopeHeaderSize) + uint64(env.Length)
	if uint64(len(buf)) < expectedSize {
		return WSMessage{}, fmt.Errorf("buffer too short: expected %d bytes (header + payload), got %d", expectedSize, len(buf))
	}

	payloadBytes := buf[EnvelopeHeaderSize:expectedSize]

	// Decode payload based on message type
	var payload interface{}
	switch env.Type {
	case MessageTypeChartMount:
		payload, err = DecodeChartMountMessage(payloadBytes)
	case MessageTypeChartDispose:
		payload, err = DecodeChartDisposeMessage(payloadBytes)
	case MessageTypeCursor:
		payload, err = DecodeCursorMessage(payloadBytes)
	case MessageTypeErrors:
		payload, err = DecodeErrorsMessage(payloadBytes)
	default:
		return WSMessage{}, fmt.Errorf("unknown message type: 0x%02x", env.Type)
	}

	if err != nil {
		return WSMessage{}, err
	}

	return WSMessage{
		Header:  env,
		Payload: payload,
	}, nil
}
