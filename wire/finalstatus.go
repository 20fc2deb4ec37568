package wire

import (
	"encoding/json"
	"fmt"
	"strings"
)

// FinalStatus is the sorter's terminal outcome for a parcel. Inbound
// payloads may carry either the ordinal (0-3) or the name in any case;
// outbound serialization always uses the name.
type FinalStatus int

// Final statuses in wire ordinal order
const (
	StatusSuccess FinalStatus = iota
	StatusTimeout
	StatusLost
	StatusExecutionError
)

var statusNames = [...]string{
	StatusSuccess:        "Success",
	StatusTimeout:        "Timeout",
	StatusLost:           "Lost",
	StatusExecutionError: "ExecutionError",
}

// String returns the wire name of the status
func (s FinalStatus) String() string {
	if s < 0 || int(s) >= len(statusNames) {
		return fmt.Sprintf("FinalStatus(%d)", int(s))
	}
	return statusNames[s]
}

// Valid reports whether s is a defined status value.
func (s FinalStatus) Valid() bool {
	return s >= 0 && int(s) < len(statusNames)
}

// ParseFinalStatus resolves a case-insensitive status name.
func ParseFinalStatus(name string) (FinalStatus, error) {
	for i, n := range statusNames {
		if strings.EqualFold(n, name) {
			return FinalStatus(i), nil
		}
	}
	return 0, fmt.Errorf("unknown final status %q", name)
}

// MarshalJSON always emits the status name.
func (s FinalStatus) MarshalJSON() ([]byte, error) {
	if !s.Valid() {
		return nil, fmt.Errorf("cannot marshal invalid final status %d", int(s))
	}
	return json.Marshal(s.String())
}

// UnmarshalJSON accepts the ordinal or the case-insensitive name.
func (s *FinalStatus) UnmarshalJSON(data []byte) error {
	var name string
	if err := json.Unmarshal(data, &name); err == nil {
		parsed, perr := ParseFinalStatus(name)
		if perr != nil {
			return perr
		}
		*s = parsed
		return nil
	}

	var ordinal int
	if err := json.Unmarshal(data, &ordinal); err != nil {
		return fmt.Errorf("final status must be a string or integer: %w", err)
	}
	parsed := FinalStatus(ordinal)
	if !parsed.Valid() {
		return fmt.Errorf("final status ordinal %d out of range", ordinal)
	}
	*s = parsed
	return nil
}
