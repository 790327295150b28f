// Package backend provides the device catalog client, the session stream and
// the wire types for talking to the speech-coaching analysis backend over
// HTTP and WebSocket JSON.
package backend

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
)

// MessageType identifies stream payload variants.
type MessageType string

const (
	TypeAnalysis     MessageType = "analysis"
	TypeDeviceChange MessageType = "device_change"

	// Sent by the backend but not interpreted by the client.
	TypeStatus MessageType = "status"
	TypeError  MessageType = "error"
)

// DeviceKind selects the input or output device list.
type DeviceKind string

const (
	DeviceInput  DeviceKind = "input"
	DeviceOutput DeviceKind = "output"
)

// AudioDevice is one entry of a discovered device list. ID is an opaque
// backend handle, unique within its own list only.
type AudioDevice struct {
	ID         int    `json:"id"`
	Name       string `json:"name"`
	Channels   int    `json:"channels"`
	SampleRate int    `json:"sample_rate,omitempty"`
}

// DeviceList is the discovery endpoint response.
type DeviceList struct {
	Inputs  []AudioDevice `json:"input_devices"`
	Outputs []AudioDevice `json:"output_devices"`
}

// Snapshot is the latest analysis measurement. It is replaced wholesale.
type Snapshot struct {
	FillerWords     int     `json:"filler_words"`
	SpeakingTime    int     `json:"speaking_time"`
	EngagementScore float64 `json:"engagement_score"`
}

// Analysis is the decoded data of one analysis message.
type Analysis struct {
	Snapshot  Snapshot
	Questions []string
}

// Envelope is the common prefix of every stream message.
type Envelope struct {
	Type MessageType     `json:"type"`
	Data json.RawMessage `json:"data,omitempty"`
}

// analysisData mirrors the nested data object of an analysis message.
type analysisData struct {
	FillerWords        int      `json:"filler_words"`
	SpeakingTime       int      `json:"speaking_time"`
	EngagementScore    float64  `json:"engagement_score"`
	SuggestedQuestions []string `json:"suggested_questions"`
}

var errMissingData = errors.New("analysis message has no data object")

func (d analysisData) validate() error {
	switch {
	case d.FillerWords < 0:
		return fmt.Errorf("filler_words %d is negative", d.FillerWords)
	case d.SpeakingTime < 0:
		return fmt.Errorf("speaking_time %d is negative", d.SpeakingTime)
	case math.IsNaN(d.EngagementScore) || d.EngagementScore < 0 || d.EngagementScore > 100:
		return fmt.Errorf("engagement_score %g outside [0, 100]", d.EngagementScore)
	}
	return nil
}

// DeviceChangeCommand is sent to the backend when the user picks a device.
type DeviceChangeCommand struct {
	Type       MessageType `json:"type"`
	DeviceType DeviceKind  `json:"device_type"`
	DeviceID   int         `json:"device_id"`
}

// NewDeviceChange builds a device change command for kind and id.
func NewDeviceChange(kind DeviceKind, id int) DeviceChangeCommand {
	return DeviceChangeCommand{Type: TypeDeviceChange, DeviceType: kind, DeviceID: id}
}

// DecodeMessage parses one inbound payload. It returns ok=false for messages
// of any type other than analysis; those are not errors. Invalid JSON, or an
// analysis message whose data is missing, does not decode or is out of range,
// returns a MalformedPayload StreamError.
func DecodeMessage(payload []byte) (a Analysis, msgType MessageType, ok bool, err error) {
	var env Envelope
	if err := json.Unmarshal(payload, &env); err != nil {
		return Analysis{}, "", false, newStreamError(MalformedPayload, err)
	}
	if env.Type != TypeAnalysis {
		return Analysis{}, env.Type, false, nil
	}

	if len(env.Data) == 0 || string(env.Data) == "null" {
		return Analysis{}, env.Type, false, newStreamError(MalformedPayload, errMissingData)
	}
	var data analysisData
	if err := json.Unmarshal(env.Data, &data); err != nil {
		return Analysis{}, env.Type, false, newStreamError(MalformedPayload, err)
	}
	if err := data.validate(); err != nil {
		return Analysis{}, env.Type, false, newStreamError(MalformedPayload, err)
	}
	questions := data.SuggestedQuestions
	if questions == nil {
		questions = []string{}
	}
	return Analysis{
		Snapshot: Snapshot{
			FillerWords:     data.FillerWords,
			SpeakingTime:    data.SpeakingTime,
			EngagementScore: data.EngagementScore,
		},
		Questions: questions,
	}, env.Type, true, nil
}
