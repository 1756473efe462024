package changequeue

import "time"

type Config struct {
	// EarliestExecuteAt is offset by a uniform draw from [JitterMin, JitterMax].
	JitterMin time.Duration `yaml:"jitter_min"`
	JitterMax time.Duration `yaml:"jitter_max"`

	MaxAttempts int           `yaml:"max_attempts" validate:"gte=1"`
	ClaimLease  time.Duration `yaml:"claim_lease"`
	// ExecTimeout must stay below ClaimLease.
	ExecTimeout time.Duration `yaml:"exec_timeout"`

	BackoffBase time.Duration `yaml:"backoff_base"`
	BackoffMax  time.Duration `yaml:"backoff_max"`

	Workers        int           `yaml:"workers" validate:"gte=1"`
	PollInterval   time.Duration `yaml:"poll_interval"`
	RatePerSecond  float64       `yaml:"rate_per_second" validate:"gt=0"`
	RateBurst      int           `yaml:"rate_burst" validate:"gte=1"`
	WorkerIDPrefix string        `yaml:"worker_id_prefix"`
}

const (
	defaultJitterMin      = 2 * time.Second
	defaultJitterMax      = 30 * time.Second
	defaultMaxAttempts    = 5
	defaultClaimLease     = 2 * time.Minute
	defaultExecTimeout    = 30 * time.Second
	defaultBackoffBase    = 10 * time.Second
	defaultBackoffMax     = 10 * time.Minute
	defaultWorkers        = 4
	defaultPollInterval   = 2 * time.Second
	defaultRatePerSecond  = 2.0
	defaultRateBurst      = 1
	defaultWorkerIDPrefix = "worker"
)

func DefaultConfig() Config {
	return Config{
		JitterMin:      defaultJitterMin,
		JitterMax:      defaultJitterMax,
		MaxAttempts:    defaultMaxAttempts,
		ClaimLease:     defaultClaimLease,
		ExecTimeout:    defaultExecTimeout,
		BackoffBase:    defaultBackoffBase,
		BackoffMax:     defaultBackoffMax,
		Workers:        defaultWorkers,
		PollInterval:   defaultPollInterval,
		RatePerSecond:  defaultRatePerSecond,
		RateBurst:      defaultRateBurst,
		WorkerIDPrefix: defaultWorkerIDPrefix,
	}
}

// Normalize fixes inconsistent durations instead of failing at runtime.
func (c Config) Normalize() Config {
	if c.JitterMin < 0 {
		c.JitterMin = 0
	}
	if c.JitterMax < c.JitterMin {
		c.JitterMax = c.JitterMin
	}
	if c.MaxAttempts <= 0 {
		c.MaxAttempts = defaultMaxAttempts
	}
	if c.ClaimLease <= 0 {
		c.ClaimLease = defaultClaimLease
	}
	if c.ExecTimeout <= 0 || c.ExecTimeout >= c.ClaimLease {
		c.ExecTimeout = c.ClaimLease / 2
	}
	if c.BackoffBase <= 0 {
		c.BackoffBase = defaultBackoffBase
	}
	if c.BackoffMax < c.BackoffBase {
		c.BackoffMax = c.BackoffBase
	}
	if c.Workers <= 0 {
		c.Workers = defaultWorkers
	}
	if c.PollInterval <= 0 {
		c.PollInterval = defaultPollInterval
	}
	if c.RatePerSecond <= 0 {
		c.RatePerSecond = defaultRatePerSecond
	}
	if c.RateBurst <= 0 {
		c.RateBurst = defaultRateBurst
	}
	if c.WorkerIDPrefix == "" {
		c.WorkerIDPrefix = defaultWorkerIDPrefix
	}
	return c
}
