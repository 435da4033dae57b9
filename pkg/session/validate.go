// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package session

import "fmt"

// AnomalyType represents different kinds of implausible status readings
type AnomalyType int

const (
	AnomalyPumpFlag AnomalyType = iota
	AnomalyInvalidTemp
	AnomalyInvalidPower
	AnomalyHeaterCycle
	AnomalyCountdownRise
)

func (a AnomalyType) String() string {
	switch a {
	case AnomalyPumpFlag:
		return "pump flag"
	case AnomalyInvalidTemp:
		return "temperature"
	case AnomalyInvalidPower:
		return "power"
	case AnomalyHeaterCycle:
		return "heater cycle"
	case AnomalyCountdownRise:
		return "countdown rise"
	}
	return fmt.Sprintf("AnomalyType(%d)", int(a))
}

// Plausibility limits
const (
	MaxBoilerTemp = 160.0
	MaxPower      = 1.0
)

// ValidationError describes one implausible field in a status record
type ValidationError struct {
	Type    AnomalyType
	Message string
	Details map[string]interface{}
}

// Error implements the error interface
func (v *ValidationError) Error() string {
	return v.Message
}

// ValidateStatus checks a status record for readings the firmware should
// never produce. prev is the previous record from the same poll loop, or
// nil; it enables the countdown check, which is only meaningful when
// nothing re-armed the pump in between.
func ValidateStatus(st Status, prev *Status) []ValidationError {
	errors := []ValidationError{}

	if st.PumpOn != (st.PumpOnCycle > 0) {
		errors = append(errors, ValidationError{
			Type:    AnomalyPumpFlag,
			Message: fmt.Sprintf("pump_on=%t disagrees with pump_on_cycle=%d", st.PumpOn, st.PumpOnCycle),
			Details: map[string]interface{}{"pump_on": st.PumpOn, "pump_on_cycle": st.PumpOnCycle},
		})
	}

	if st.Temp > MaxBoilerTemp {
		errors = append(errors, ValidationError{
			Type:    AnomalyInvalidTemp,
			Message: fmt.Sprintf("Temperature out of range (%.1f°C, max %.0f°C)", st.Temp, MaxBoilerTemp),
			Details: map[string]interface{}{"value": st.Temp, "max": MaxBoilerTemp},
		})
	}

	if st.Power > MaxPower {
		errors = append(errors, ValidationError{
			Type:    AnomalyInvalidPower,
			Message: fmt.Sprintf("Power out of range (%.3f, max %.1f)", st.Power, MaxPower),
			Details: map[string]interface{}{"value": st.Power, "max": MaxPower},
		})
	}

	// Both heater timers count down within one control period
	if st.DT > 0 && (st.HeaterOnCycle > st.DT || st.HeaterOffCycle > st.DT) {
		errors = append(errors, ValidationError{
			Type:    AnomalyHeaterCycle,
			Message: fmt.Sprintf("Heater cycle exceeds period (on=%d, off=%d, dt=%d)", st.HeaterOnCycle, st.HeaterOffCycle, st.DT),
			Details: map[string]interface{}{"on": st.HeaterOnCycle, "off": st.HeaterOffCycle, "dt": st.DT},
		})
	}

	if prev != nil && st.PumpOnCycle > prev.PumpOnCycle {
		errors = append(errors, ValidationError{
			Type:    AnomalyCountdownRise,
			Message: fmt.Sprintf("Pump countdown rose without a start (%d -> %d ms)", prev.PumpOnCycle, st.PumpOnCycle),
			Details: map[string]interface{}{"previous": prev.PumpOnCycle, "current": st.PumpOnCycle},
		})
	}

	return errors
}
