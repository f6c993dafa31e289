package config

import (
	"time"
)

func (g General) CheckInterval() time.Duration {
	return time.Duration(g.CheckIntervalMinutes) * time.Minute
}

func (g General) DelayRange() (time.Duration, time.Duration) {
	return time.Duration(g.RequestDelayMin) * time.Second, time.Duration(g.RequestDelayMax) * time.Second
}

func (g General) Timeout() time.Duration {
	return time.Duration(g.RequestTimeout) * time.Second
}

func (r Retry) Base() time.Duration {
	return time.Duration(r.BackoffBase) * time.Second
}

func (r Retry) Max() time.Duration {
	return time.Duration(r.BackoffMax) * time.Second
}

func (r Retry) NetworkStep() time.Duration {
	return time.Duration(r.NetworkDelay) * time.Second
}
