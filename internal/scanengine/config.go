package scanengine

import "time"

// Config holds the scan engine's tunables, all defaulted below. Of these,
// only PollingInterval is taken from the loaded settings file.
type Config struct {
	PollingInterval   time.Duration
	WorkerPoolSize    int
	SmartDeadline     time.Duration
	WatchdogInterval  time.Duration
	WatchdogThreshold time.Duration
	AbsenceEvictN     int
	ShutdownGraceMul  int // shutdown grace = ShutdownGraceMul * SmartDeadline
}

// DefaultConfig returns the documented defaults.
func DefaultConfig() Config {
	return Config{
		PollingInterval:   60 * time.Second,
		WorkerPoolSize:    8,
		SmartDeadline:     15 * time.Second,
		WatchdogInterval:  60 * time.Second,
		WatchdogThreshold: 30 * time.Second,
		AbsenceEvictN:     3,
		ShutdownGraceMul:  2,
	}
}

// workerPoolSize clamps the configured pool size to the number of devices
// currently known, per "min(num_devices, 8)".
func workerPoolSize(configured, deviceCount int) int64 {
	if configured <= 0 {
		configured = 8
	}
	if deviceCount > 0 && deviceCount < configured {
		return int64(deviceCount)
	}
	return int64(configured)
}
