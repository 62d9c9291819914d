package config

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/spf13/cast"
	"github.com/spf13/viper"
)

// Keys are environment-style; viper.AutomaticEnv maps them straight onto the
// process environment.
const (
	KeyBaseURL         = "BASE_URL"
	KeyDuration        = "DURATION"
	KeyRampUp          = "RAMPUP"
	KeyRateJ1          = "RATE_J1"
	KeyRateJ2          = "RATE_J2"
	KeyRateJ3          = "RATE_J3"
	KeyPreAllocated    = "PREALLOC_VUS"
	KeyMaxWorkers      = "MAX_VUS"
	KeyTimeUnit        = "TIME_UNIT"
	KeyGracefulStop    = "GRACEFUL_STOP"
	KeyQueueTimeout    = "QUEUE_TIMEOUT"
	KeyThinkMin        = "THINK_MIN"
	KeyThinkMax        = "THINK_MAX"
	KeyTimeout         = "TIMEOUT"
	KeyBiasCarrier     = "BIAS_CARRIER"
	KeyBiasProbability = "BIAS_PROBABILITY"
	KeySuccessMarker   = "SUCCESS_MARKER"
	KeyP99Limit        = "P99_LIMIT"
	KeyMaxFailureRate  = "MAX_FAILURE_RATE"
	KeyThresholds      = "THRESHOLDS"

	KeyCardType   = "CARD_TYPE"
	KeyCardNumber = "CARD_NO"
	KeyCardMonth  = "CARD_MM"
	KeyCardYear   = "CARD_YY"
	KeyCardName   = "CARD_NAME"
	KeyName       = "NAME"
	KeyAddress    = "ADDR"
	KeyCity       = "CITY"
	KeyState      = "STATE"
	KeyZip        = "ZIP"
)

// Stage is one leg of an arrival-rate ramp: reach Target over Duration.
type Stage struct {
	Target   float64
	Duration time.Duration
}

// Scenario drives one journey's arrival scheduler.
type Scenario struct {
	Journey      string
	StartRate    float64
	TimeUnit     time.Duration
	Stages       []Stage
	PreAllocated int
	MaxWorkers   int
	GracefulStop time.Duration
	QueueTimeout time.Duration
}

// Route is a fixed origin/destination pair for a journey.
type Route struct {
	From string
	To   string
}

// JourneyConfig names one of the predefined journeys and its route.
type JourneyConfig struct {
	ID              string
	Route           Route
	Rate            float64
	BiasCarrier     string  // empty means uniform selection
	BiasProbability float64 // chance of restricting to BiasCarrier offers
}

type Card struct {
	Type   string
	Number string
	Month  string
	Year   string
	Name   string
}

type Address struct {
	Name    string
	Address string
	City    string
	State   string
	Zip     string
}

// Config is built once at startup and shared read-only by every scheduler
// and worker.
type Config struct {
	BaseURL  string
	Duration time.Duration
	RampUp   time.Duration
	TimeUnit time.Duration

	Journeys []JourneyConfig

	PreAllocated int
	MaxWorkers   int
	GracefulStop time.Duration
	QueueTimeout time.Duration

	ThinkMin       time.Duration
	ThinkMax       time.Duration
	RequestTimeout time.Duration

	SuccessMarker string
	Card          Card
	Address       Address

	// Thresholds maps a metric expression (e.g. "http_req_duration{name:reserve}")
	// to its conditions (e.g. "p(99)<1000").
	Thresholds map[string][]string
}

// SetDefaults registers every key's default on v.
func SetDefaults(v *viper.Viper) {
	v.SetDefault(KeyBaseURL, "https://blazedemo.com")
	v.SetDefault(KeyDuration, "3m")
	v.SetDefault(KeyRampUp, "30s")
	v.SetDefault(KeyRateJ1, 600)
	v.SetDefault(KeyRateJ2, 300)
	v.SetDefault(KeyRateJ3, 300)
	v.SetDefault(KeyPreAllocated, 600)
	v.SetDefault(KeyMaxWorkers, 2000)
	v.SetDefault(KeyTimeUnit, "1s")
	v.SetDefault(KeyGracefulStop, "0s")
	v.SetDefault(KeyQueueTimeout, "0s")
	v.SetDefault(KeyThinkMin, "300ms")
	v.SetDefault(KeyThinkMax, "700ms")
	v.SetDefault(KeyTimeout, "60s")
	v.SetDefault(KeyBiasCarrier, "Singapore Airlines")
	v.SetDefault(KeyBiasProbability, 0.5)
	v.SetDefault(KeySuccessMarker, "Thank you for your purchase today!")
	v.SetDefault(KeyP99Limit, "1s")
	v.SetDefault(KeyMaxFailureRate, 0.01)

	v.SetDefault(KeyCardType, "visa")
	v.SetDefault(KeyCardNumber, "4242424242424242")
	v.SetDefault(KeyCardMonth, "11")
	v.SetDefault(KeyCardYear, "2027")
	v.SetDefault(KeyCardName, "Test User")
	v.SetDefault(KeyName, "test")
	v.SetDefault(KeyAddress, "1 Test Street")
	v.SetDefault(KeyCity, "LA")
	v.SetDefault(KeyState, "CA")
	v.SetDefault(KeyZip, "1234567")
}

// Load reads a Config out of v and validates it. A value that does not parse
// as its key's type is a *ValidationError, never a silent zero.
func Load(v *viper.Viper) (Config, error) {
	r := &reader{v: v}
	cfg := Config{
		BaseURL:  strings.TrimRight(v.GetString(KeyBaseURL), "/"),
		Duration: r.duration(KeyDuration),
		RampUp:   r.duration(KeyRampUp),
		TimeUnit: r.duration(KeyTimeUnit),

		PreAllocated: r.integer(KeyPreAllocated),
		MaxWorkers:   r.integer(KeyMaxWorkers),
		GracefulStop: r.duration(KeyGracefulStop),
		QueueTimeout: r.duration(KeyQueueTimeout),

		ThinkMin:       r.duration(KeyThinkMin),
		ThinkMax:       r.duration(KeyThinkMax),
		RequestTimeout: r.duration(KeyTimeout),

		SuccessMarker: v.GetString(KeySuccessMarker),
		Card: Card{
			Type:   v.GetString(KeyCardType),
			Number: v.GetString(KeyCardNumber),
			Month:  v.GetString(KeyCardMonth),
			Year:   v.GetString(KeyCardYear),
			Name:   v.GetString(KeyCardName),
		},
		Address: Address{
			Name:    v.GetString(KeyName),
			Address: v.GetString(KeyAddress),
			City:    v.GetString(KeyCity),
			State:   v.GetString(KeyState),
			Zip:     v.GetString(KeyZip),
		},
	}

	bias := v.GetString(KeyBiasCarrier)
	biasP := r.number(KeyBiasProbability)
	cfg.Journeys = []JourneyConfig{
		{ID: "journey1", Route: Route{From: "Paris", To: "London"}, Rate: r.number(KeyRateJ1)},
		{ID: "journey2", Route: Route{From: "Mexico City", To: "Berlin"}, Rate: r.number(KeyRateJ2)},
		{ID: "journey3", Route: Route{From: "Portland", To: "Dublin"}, Rate: r.number(KeyRateJ3),
			BiasCarrier: bias, BiasProbability: biasP},
	}
	p99, maxFailureRate := r.duration(KeyP99Limit), r.number(KeyMaxFailureRate)
	if r.err != nil {
		return Config{}, r.err
	}

	if v.IsSet(KeyThresholds) {
		cfg.Thresholds = v.GetStringMapStringSlice(KeyThresholds)
	} else {
		cfg.Thresholds = DefaultThresholds(p99, maxFailureRate)
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// reader converts raw values with the strict cast helpers and keeps the
// first failure.
type reader struct {
	v   *viper.Viper
	err error
}

func (r *reader) fail(key string, raw any, kind string) {
	if r.err == nil {
		r.err = invalid(key, "%q is not a %s", fmt.Sprint(raw), kind)
	}
}

func (r *reader) duration(key string) time.Duration {
	raw := r.v.Get(key)
	d, err := cast.ToDurationE(raw)
	if err != nil {
		r.fail(key, raw, "duration")
	}
	return d
}

func (r *reader) number(key string) float64 {
	raw := r.v.Get(key)
	f, err := cast.ToFloat64E(raw)
	if err != nil {
		r.fail(key, raw, "number")
	}
	return f
}

func (r *reader) integer(key string) int {
	raw := r.v.Get(key)
	n, err := cast.ToIntE(raw)
	if err != nil {
		r.fail(key, raw, "whole number")
	}
	return n
}

// DefaultThresholds returns the p99 rule for each booking step plus the
// overall request failure-rate rule.
func DefaultThresholds(p99 time.Duration, maxFailureRate float64) map[string][]string {
	limit := fmt.Sprintf("p(99)<%d", p99.Milliseconds())
	return map[string][]string{
		"http_req_duration{name:reserve}":  {limit},
		"http_req_duration{name:purchase}": {limit},
		"http_req_duration{name:confirm}":  {limit},
		"http_req_failed":                  {fmt.Sprintf("rate<%g", maxFailureRate)},
	}
}

// Scenario returns the arrival schedule for the journey: ramp from zero to the
// journey's rate over RampUp, then hold it for Duration.
func (c Config) Scenario(j JourneyConfig) Scenario {
	return Scenario{
		Journey:   j.ID,
		StartRate: 0,
		TimeUnit:  c.TimeUnit,
		Stages: []Stage{
			{Target: j.Rate, Duration: c.RampUp},
			{Target: j.Rate, Duration: c.Duration},
		},
		PreAllocated: c.PreAllocated,
		MaxWorkers:   c.MaxWorkers,
		GracefulStop: c.GracefulStop,
		QueueTimeout: c.QueueTimeout,
	}
}

// TotalDuration is the length of the arrival window (ramp plus steady state).
func (c Config) TotalDuration() time.Duration {
	return c.RampUp + c.Duration
}

// ValidationError reports a missing or invalid setting.
type ValidationError struct {
	Key    string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Key, e.Reason)
}

func invalid(key, format string, args ...any) error {
	return &ValidationError{Key: key, Reason: fmt.Sprintf(format, args...)}
}

// Validate checks the configuration before any scheduler starts.
func (c Config) Validate() error {
	u, err := url.Parse(c.BaseURL)
	if err != nil || c.BaseURL == "" {
		return invalid(KeyBaseURL, "%q is not a URL", c.BaseURL)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return invalid(KeyBaseURL, "scheme must be http or https, got %q", u.Scheme)
	}
	if u.Host == "" {
		return invalid(KeyBaseURL, "missing host in %q", c.BaseURL)
	}

	if c.Duration <= 0 {
		return invalid(KeyDuration, "must be positive, got %s", c.Duration)
	}
	if c.RampUp < 0 {
		return invalid(KeyRampUp, "must not be negative, got %s", c.RampUp)
	}
	if c.TimeUnit <= 0 {
		return invalid(KeyTimeUnit, "must be positive, got %s", c.TimeUnit)
	}
	if c.MaxWorkers < 1 {
		return invalid(KeyMaxWorkers, "must be at least 1, got %d", c.MaxWorkers)
	}
	if c.PreAllocated < 0 || c.PreAllocated > c.MaxWorkers {
		return invalid(KeyPreAllocated, "must be between 0 and %s (%d), got %d", KeyMaxWorkers, c.MaxWorkers, c.PreAllocated)
	}
	if c.GracefulStop < 0 {
		return invalid(KeyGracefulStop, "must not be negative, got %s", c.GracefulStop)
	}
	if c.QueueTimeout < 0 {
		return invalid(KeyQueueTimeout, "must not be negative, got %s", c.QueueTimeout)
	}
	if c.ThinkMin < 0 || c.ThinkMax < c.ThinkMin {
		return invalid(KeyThinkMax, "think time range [%s, %s] is empty", c.ThinkMin, c.ThinkMax)
	}
	if c.RequestTimeout <= 0 {
		return invalid(KeyTimeout, "must be positive, got %s", c.RequestTimeout)
	}
	if c.SuccessMarker == "" {
		return invalid(KeySuccessMarker, "must not be empty")
	}

	keys := []string{KeyRateJ1, KeyRateJ2, KeyRateJ3}
	for i, j := range c.Journeys {
		key := j.ID
		if i < len(keys) {
			key = keys[i]
		}
		if j.Rate < 0 {
			return invalid(key, "rate must not be negative, got %g", j.Rate)
		}
		if j.BiasProbability < 0 || j.BiasProbability > 1 {
			return invalid(KeyBiasProbability, "must be within [0, 1], got %g", j.BiasProbability)
		}
	}

	if len(c.Thresholds) == 0 {
		return invalid(KeyThresholds, "no threshold rules configured")
	}
	return nil
}
