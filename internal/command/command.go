// Package command holds the single validation routine shared by every
// front-end adapter. The HTTP API, the MQTT subscriber, and the serial
// console all parse external input into the types here and apply them
// through the same code path, so acceptance rules cannot diverge between
// interfaces.
package command

import (
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/abreis/heater-control/internal/logic"
	"github.com/abreis/heater-control/internal/state"
)

// SetpointRequest is the setpoint/mode payload accepted by the HTTP API and
// the MQTT command topic. Target is in degrees Celsius.
type SetpointRequest struct {
	Target float64 `json:"target"`
	Mode   string  `json:"mode"`
}

// DecodeSetpoint parses a JSON setpoint payload.
func DecodeSetpoint(data []byte) (SetpointRequest, error) {
	var req SetpointRequest
	if err := json.Unmarshal(data, &req); err != nil {
		return SetpointRequest{}, fmt.Errorf("decode setpoint: %w", err)
	}
	return req, nil
}

// maxTargetDegrees bounds the target before fixed-point conversion. Go
// leaves float-to-int conversion of out-of-range values platform-defined,
// so absurd targets are rejected here rather than relying on the converted
// garbage failing the store's limit check.
const maxTargetDegrees = math.MaxInt32 / 100

// Apply validates the request and writes it to the store. Validation errors
// wrap state.ErrOutOfRange or state.ErrInvalidMode and leave the store
// untouched.
func (r SetpointRequest) Apply(st *state.Store) error {
	mode, err := logic.ParseMode(r.Mode)
	if err != nil {
		return fmt.Errorf("%v: %w", err, state.ErrInvalidMode)
	}
	if math.IsNaN(r.Target) || r.Target < -maxTargetDegrees || r.Target > maxTargetDegrees {
		return fmt.Errorf("target %v not representable: %w", r.Target, state.ErrOutOfRange)
	}
	return st.WriteSetpoint(logic.FromDegrees(r.Target), mode)
}

// ApplyManual parses and applies a manual command: "on", "off", or a duty
// percentage 0..100.
func ApplyManual(st *state.Store, arg string) error {
	duty, err := parseManual(arg)
	if err != nil {
		return err
	}
	return st.WriteManual(duty)
}

func parseManual(arg string) (int, error) {
	switch strings.ToLower(arg) {
	case "on":
		return 100, nil
	case "off":
		return 0, nil
	}
	duty, err := strconv.Atoi(arg)
	if err != nil {
		return 0, fmt.Errorf("manual argument %q: %w", arg, state.ErrInvalidMode)
	}
	if duty < 0 || duty > 100 {
		return 0, fmt.Errorf("manual duty %d outside [0, 100]: %w", duty, state.ErrOutOfRange)
	}
	return duty, nil
}
