// Package risk scores login and request risk from recent login history.
//
// The engine is stateless: callers pass the history snapshot and the current
// signal. Scores are additive and map to an [Action]:
//
//	score >= 70  require_device_verification (request is blocked)
//	score >= 50  require_otp
//	otherwise    allow
package risk

import (
	"time"

	"github.com/MrEthical07/authgate/store"
)

// Action is the recommendation attached to an assessment.
type Action string

const (
	ActionAllow                     Action = "allow"
	ActionRequireOTP                Action = "require_otp"
	ActionRequireDeviceVerification Action = "require_device_verification"
)

// Levels reported in Assessment.Level.
const (
	LevelLow      = "low"
	LevelMedium   = "medium"
	LevelHigh     = "high"
	LevelCritical = "critical"
)

// Reasons reported in Assessment.Reasons.
const (
	ReasonImpossibleTravel = "impossible_travel"
	ReasonFailedAttempts   = "failed_attempts"
	ReasonManyAddresses    = "many_source_addresses"
)

// Rules configures the heuristics. Zero fields take the defaults.
type Rules struct {
	TravelWindow      time.Duration
	TravelWeight      int
	FailureWindow     time.Duration
	FailureThreshold  int
	FailureWeight     int
	AddressWindow     time.Duration
	AddressThreshold  int
	AddressWeight     int
	OTPScore          int
	DeviceVerifyScore int
}

// DefaultRules returns the stock heuristic weights.
func DefaultRules() Rules {
	return Rules{
		TravelWindow:      2 * time.Hour,
		TravelWeight:      50,
		FailureWindow:     24 * time.Hour,
		FailureThreshold:  5,
		FailureWeight:     30,
		AddressWindow:     7 * 24 * time.Hour,
		AddressThreshold:  10,
		AddressWeight:     20,
		OTPScore:          50,
		DeviceVerifyScore: 70,
	}
}

func (r Rules) withDefaults() Rules {
	d := DefaultRules()
	if r.TravelWindow <= 0 {
		r.TravelWindow = d.TravelWindow
	}
	if r.TravelWeight <= 0 {
		r.TravelWeight = d.TravelWeight
	}
	if r.FailureWindow <= 0 {
		r.FailureWindow = d.FailureWindow
	}
	if r.FailureThreshold <= 0 {
		r.FailureThreshold = d.FailureThreshold
	}
	if r.FailureWeight <= 0 {
		r.FailureWeight = d.FailureWeight
	}
	if r.AddressWindow <= 0 {
		r.AddressWindow = d.AddressWindow
	}
	if r.AddressThreshold <= 0 {
		r.AddressThreshold = d.AddressThreshold
	}
	if r.AddressWeight <= 0 {
		r.AddressWeight = d.AddressWeight
	}
	if r.OTPScore <= 0 {
		r.OTPScore = d.OTPScore
	}
	if r.DeviceVerifyScore <= 0 {
		r.DeviceVerifyScore = d.DeviceVerifyScore
	}
	return r
}

// Signal is what the current request reveals about its origin.
type Signal struct {
	IP       string
	Country  string
	DeviceID string
}

// Assessment is the scorer output.
type Assessment struct {
	Score   int
	Reasons []string
	Level   string
	Action  Action
}

// Blocked reports whether the request must be refused outright.
func (a Assessment) Blocked() bool {
	return a.Action == ActionRequireDeviceVerification
}

// Engine scores signals against history.
type Engine struct {
	rules   Rules
	enabled bool
}

// NewEngine builds a scorer. A disabled engine always allows.
func NewEngine(rules Rules, enabled bool) *Engine {
	return &Engine{rules: rules.withDefaults(), enabled: enabled}
}

// Score evaluates signal against history at now.
func (e *Engine) Score(history []store.LoginAttempt, signal Signal, now time.Time) Assessment {
	if e == nil || !e.enabled {
		return Assessment{Level: LevelLow, Action: ActionAllow}
	}
	r := e.rules

	var out Assessment
	if impossibleTravel(history, signal, now, r.TravelWindow) {
		out.Score += r.TravelWeight
		out.Reasons = append(out.Reasons, ReasonImpossibleTravel)
	}
	if recentFailures(history, now, r.FailureWindow) >= r.FailureThreshold {
		out.Score += r.FailureWeight
		out.Reasons = append(out.Reasons, ReasonFailedAttempts)
	}
	if distinctAddresses(history, signal, now, r.AddressWindow) > r.AddressThreshold {
		out.Score += r.AddressWeight
		out.Reasons = append(out.Reasons, ReasonManyAddresses)
	}

	switch {
	case out.Score >= r.DeviceVerifyScore:
		out.Level = LevelCritical
		out.Action = ActionRequireDeviceVerification
	case out.Score >= r.OTPScore:
		out.Level = LevelHigh
		out.Action = ActionRequireOTP
	case out.Score > 0:
		out.Level = LevelMedium
		out.Action = ActionAllow
	default:
		out.Level = LevelLow
		out.Action = ActionAllow
	}
	return out
}

// impossibleTravel compares against the most recent successful login.
func impossibleTravel(history []store.LoginAttempt, signal Signal, now time.Time, window time.Duration) bool {
	if signal.Country == "" {
		return false
	}
	var last *store.LoginAttempt
	for i := range history {
		h := &history[i]
		if !h.Success || h.At.After(now) {
			continue
		}
		if last == nil || h.At.After(last.At) {
			last = h
		}
	}
	if last == nil || last.Country == "" {
		return false
	}
	return last.Country != signal.Country && now.Sub(last.At) < window
}

func recentFailures(history []store.LoginAttempt, now time.Time, window time.Duration) int {
	n := 0
	for _, h := range history {
		if !h.Success && inWindow(h.At, now, window) {
			n++
		}
	}
	return n
}

func distinctAddresses(history []store.LoginAttempt, signal Signal, now time.Time, window time.Duration) int {
	seen := make(map[string]struct{})
	for _, h := range history {
		if h.IP != "" && inWindow(h.At, now, window) {
			seen[h.IP] = struct{}{}
		}
	}
	if signal.IP != "" {
		seen[signal.IP] = struct{}{}
	}
	return len(seen)
}

func inWindow(at, now time.Time, window time.Duration) bool {
	return !at.After(now) && now.Sub(at) <= window
}
