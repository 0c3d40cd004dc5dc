package dispatcher

// Config holds dispatcher tuning loaded from the environment.
type Config struct {
	// MaxConcurrentBatches bounds parallel batch dispatch to respect
	// provider rate limits.
	MaxConcurrentBatches int `env:"NOTIFY_DISPATCH_CONCURRENCY" envDefault:"4"`
	// DefaultBatchSize is the batch size used by periodic due-record
	// sweeps.
	DefaultBatchSize int `env:"NOTIFY_DISPATCH_BATCH_SIZE" envDefault:"100"`
	// DevSenderDir enables the development sender when set: notifications
	// are written there instead of reaching providers.
	DevSenderDir string `env:"NOTIFY_DEV_SENDER_DIR"`
}
