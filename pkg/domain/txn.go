package domain

import "time"

// RetryStrategy selects how an aborted transaction is rescheduled.
type RetryStrategy int32

// Transaction retry strategies.
const (
	// RetryNone surfaces the first validation failure to the caller.
	RetryNone RetryStrategy = iota
	// RetryFixedInterval waits a constant delay between attempts.
	RetryFixedInterval
	// RetryExponentialBackoff doubles the delay after every conflict.
	RetryExponentialBackoff
	// RetryCustom delegates the delay computation to BackoffFn.
	RetryCustom
)

// TxnConfig configures one transactional unit of work.
type TxnConfig struct {
	// Kind groups transactions for conflict-rate tracking and fast-path
	// selection. Empty kinds share the default bucket.
	Kind string

	Strategy   RetryStrategy
	MaxRetries int
	// BaseDelay seeds fixed and exponential backoff. Zero uses the manager
	// default.
	BaseDelay time.Duration
	// BackoffFn computes the delay before attempt n (1-based) for
	// RetryCustom. Ignored otherwise.
	BackoffFn func(attempt int) time.Duration

	// AllowFastPath permits the reduced-locking commit when the kind's
	// historical conflict rate is below the manager threshold.
	AllowFastPath bool
}

// DefaultTxnConfig returns the retry configuration used for zero-valued
// configs.
func DefaultTxnConfig() TxnConfig {
	return TxnConfig{
		Strategy:      RetryExponentialBackoff,
		MaxRetries:    3,
		BaseDelay:     time.Millisecond,
		AllowFastPath: true,
	}
}

// ResourceKind separates the two version-tracked resource namespaces.
type ResourceKind uint8

// Version-tracked resource namespaces.
const (
	ResourceZone ResourceKind = iota
	ResourceMaterial
)

// ResourceRef names one version-tracked resource.
type ResourceRef struct {
	Kind ResourceKind
	// Zone is set when Kind is ResourceZone.
	Zone ZoneID
	// Material is set when Kind is ResourceMaterial.
	Material TypeID
}

// ZoneRef builds a zone resource reference.
func ZoneRef(id ZoneID) ResourceRef { return ResourceRef{Kind: ResourceZone, Zone: id} }

// MaterialRef builds a material resource reference.
func MaterialRef(id TypeID) ResourceRef { return ResourceRef{Kind: ResourceMaterial, Material: id} }
