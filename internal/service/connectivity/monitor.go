// Package connectivity probes network reachability and reports transitions.
package connectivity

import (
	"context"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/go-resty/resty/v2"
	"go.uber.org/zap"
)

// Monitor implements ports.ConnectivityNotifier with an HTTP HEAD probe.
type Monitor struct {
	httpClient *resty.Client
	probeURL   string
	logger     *zap.Logger

	online    atomic.Bool
	mu        sync.Mutex
	listeners []func(bool)
}

// NewMonitor builds a monitor probing probeURL. With no URL the monitor
// reports online until told otherwise.
func NewMonitor(probeURL string, timeout time.Duration, logger *zap.Logger) *Monitor {
	if logger == nil {
		logger = zap.NewNop()
	}
	if timeout <= 0 {
		timeout = 5 * time.Second
	}

	restyClient := resty.New()
	restyClient.
		SetTimeout(timeout).
		SetRetryCount(0).
		SetHeader("User-Agent", "dairysync-probe")

	m := &Monitor{
		httpClient: restyClient,
		probeURL:   probeURL,
		logger:     logger,
	}
	m.online.Store(probeURL == "")
	return m
}

// Check probes the network once and records the result.
func (m *Monitor) Check(ctx context.Context) bool {
	if m.probeURL == "" {
		return m.IsOnline()
	}

	resp, err := m.httpClient.R().SetContext(ctx).Head(m.probeURL)
	online := err == nil && resp.StatusCode() < http.StatusInternalServerError
	if err != nil {
		m.logger.Debug("Connectivity probe failed", zap.String("url", m.probeURL), zap.Error(err))
	}
	m.Set(online)
	return online
}

// Set records the connectivity state and notifies listeners on transitions.
func (m *Monitor) Set(online bool) {
	if m.online.Swap(online) == online {
		return
	}
	m.logger.Info("Connectivity changed", zap.Bool("online", online))

	m.mu.Lock()
	listeners := append([]func(bool){}, m.listeners...)
	m.mu.Unlock()
	for _, fn := range listeners {
		fn(online)
	}
}

// IsOnline reports the last known state.
func (m *Monitor) IsOnline() bool {
	return m.online.Load()
}

// Subscribe registers fn for online/offline transitions.
func (m *Monitor) Subscribe(fn func(online bool)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.listeners = append(m.listeners, fn)
}
