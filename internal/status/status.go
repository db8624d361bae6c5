// Package status renders state snapshots into the external representations
// used by the front-end adapters: JSON for the HTTP API and MQTT telemetry,
// plain text for the serial console.
package status

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/abreis/heater-control/internal/state"
)

// StatusJSON is the top-level JSON envelope for status output.
type StatusJSON struct {
	Status StatusInner `json:"status"`
}

// StatusInner contains the controller details.
type StatusInner struct {
	State          string                 `json:"state"`
	Heater         HeaterJSON             `json:"heater"`
	Setpoint       SetpointJSON           `json:"setpoint"`
	Readings       map[string]ReadingJSON `json:"readings"`
	Faults         map[string][]FaultJSON `json:"faults,omitempty"`
	Links          map[string]LinkJSON    `json:"links,omitempty"`
	FailSafeForced bool                   `json:"fail_safe_forced"`
	UptimeSeconds  int64                  `json:"uptime_seconds"`
	Timestamp      string                 `json:"timestamp"`
}

// HeaterJSON is the actuator command representation.
type HeaterJSON struct {
	On        bool   `json:"on"`
	Duty      int    `json:"duty"`
	Cause     string `json:"cause"`
	ChangedAt string `json:"changed_at"`
}

// SetpointJSON is the setpoint configuration representation.
type SetpointJSON struct {
	Target     float64 `json:"target"`
	HystLow    float64 `json:"hysteresis_low"`
	HystHigh   float64 `json:"hysteresis_high"`
	Mode       string  `json:"mode"`
	ManualDuty int     `json:"manual_duty"`
	Version    uint64  `json:"version"`
}

// ReadingJSON is a temperature reading representation.
type ReadingJSON struct {
	Temperature float64 `json:"temperature"`
	At          string  `json:"at"`
	AgeSeconds  int64   `json:"age_seconds"`
	Valid       bool    `json:"valid"`
}

// FaultJSON is a fault record representation.
type FaultJSON struct {
	Kind  string `json:"kind"`
	Count int    `json:"count"`
	First string `json:"first"`
	Last  string `json:"last"`
}

// LinkJSON is a network adapter link representation.
type LinkJSON struct {
	Connected bool   `json:"connected"`
	Since     string `json:"since"`
}

func buildInner(snap state.Snapshot) StatusInner {
	inner := StatusInner{
		State: string(snap.ControlState),
		Heater: HeaterJSON{
			On:        snap.Actuator.On,
			Duty:      snap.Actuator.Duty,
			Cause:     string(snap.Actuator.Cause),
			ChangedAt: stamp(snap.Actuator.ChangedAt),
		},
		Setpoint: SetpointJSON{
			Target:     snap.Setpoint.Target.Degrees(),
			HystLow:    snap.Setpoint.HystLow.Degrees(),
			HystHigh:   snap.Setpoint.HystHigh.Degrees(),
			Mode:       string(snap.Setpoint.Mode),
			ManualDuty: snap.Setpoint.ManualDuty,
			Version:    snap.Setpoint.Version,
		},
		Readings:       make(map[string]ReadingJSON, len(snap.Readings)),
		FailSafeForced: snap.FailSafeForced,
		UptimeSeconds:  int64(snap.Uptime().Truncate(time.Second).Seconds()),
		Timestamp:      stamp(snap.Taken),
	}

	for id, r := range snap.Readings {
		inner.Readings[id] = ReadingJSON{
			Temperature: r.Temperature.Degrees(),
			At:          stamp(r.At),
			AgeSeconds:  int64(snap.Taken.Sub(r.At).Truncate(time.Second).Seconds()),
			Valid:       r.Valid,
		}
	}

	for source, kinds := range snap.Faults {
		if len(kinds) == 0 {
			continue
		}
		var faults []FaultJSON
		for _, rec := range kinds {
			faults = append(faults, FaultJSON{
				Kind:  string(rec.Kind),
				Count: rec.Count,
				First: stamp(rec.First),
				Last:  stamp(rec.Last),
			})
		}
		sort.Slice(faults, func(i, j int) bool { return faults[i].Kind < faults[j].Kind })
		if inner.Faults == nil {
			inner.Faults = make(map[string][]FaultJSON)
		}
		inner.Faults[source] = faults
	}

	if len(snap.Links) > 0 {
		inner.Links = make(map[string]LinkJSON, len(snap.Links))
		for name, link := range snap.Links {
			inner.Links[name] = LinkJSON{Connected: link.Connected, Since: stamp(link.Since)}
		}
	}

	return inner
}

// FormatJSON returns the indented JSON status for the HTTP endpoint.
func FormatJSON(snap state.Snapshot) []byte {
	data, _ := json.MarshalIndent(StatusJSON{Status: buildInner(snap)}, "", "  ")
	return data
}

// FormatEvent returns the compact JSON status published to the state topic.
func FormatEvent(snap state.Snapshot) []byte {
	data, _ := json.Marshal(StatusJSON{Status: buildInner(snap)})
	return data
}

// FormatText renders a snapshot for the serial console.
func FormatText(snap state.Snapshot) string {
	var b strings.Builder
	fmt.Fprintf(&b, "state: %s\n", snap.ControlState)
	onOff := "off"
	if snap.Actuator.On {
		onOff = "on"
	}
	fmt.Fprintf(&b, "heater: %s (duty %d%%, cause %s)\n",
		onOff, snap.Actuator.Duty, snap.Actuator.Cause)
	fmt.Fprintf(&b, "setpoint: %s (band -%s/+%s, mode %s, v%d)\n",
		snap.Setpoint.Target, snap.Setpoint.HystLow, snap.Setpoint.HystHigh,
		snap.Setpoint.Mode, snap.Setpoint.Version)

	ids := make([]string, 0, len(snap.Readings))
	for id := range snap.Readings {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	for _, id := range ids {
		r := snap.Readings[id]
		fmt.Fprintf(&b, "sensor %s: %s (age %ds)\n",
			id, r.Temperature, int64(snap.Taken.Sub(r.At).Seconds()))
	}

	sources := make([]string, 0, len(snap.Faults))
	for source, kinds := range snap.Faults {
		if len(kinds) > 0 {
			sources = append(sources, source)
		}
	}
	sort.Strings(sources)
	for _, source := range sources {
		kinds := make([]string, 0, len(snap.Faults[source]))
		for kind := range snap.Faults[source] {
			kinds = append(kinds, string(kind))
		}
		sort.Strings(kinds)
		for _, kind := range kinds {
			rec := snap.Faults[source][state.FaultKind(kind)]
			fmt.Fprintf(&b, "fault %s/%s: %d\n", source, kind, rec.Count)
		}
	}

	if snap.FailSafeForced {
		b.WriteString("fail-safe override active\n")
	}
	return b.String()
}

func stamp(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(time.RFC3339)
}
