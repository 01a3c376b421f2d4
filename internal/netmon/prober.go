package netmon

import (
	"log/slog"
	"net/http"
	"sync"
	"time"
)

// Prober feeds a Monitor by polling a health endpoint. Any 2xx response
// counts as online; connection errors and non-2xx count as offline.
type Prober struct {
	monitor  *Monitor
	url      string
	interval time.Duration
	client   *http.Client

	stopOnce sync.Once
	stop     chan struct{}
	done     chan struct{}
}

// NewProber starts probing url every interval. The first probe runs
// immediately so the monitor settles without waiting a full period.
func NewProber(m *Monitor, url string, interval time.Duration) *Prober {
	p := &Prober{
		monitor:  m,
		url:      url,
		interval: interval,
		client:   &http.Client{Timeout: 5 * time.Second},
		stop:     make(chan struct{}),
		done:     make(chan struct{}),
	}
	go p.run()
	return p
}

func (p *Prober) run() {
	defer close(p.done)

	p.monitor.SetOnline(p.probe())

	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()
	for {
		select {
		case <-p.stop:
			return
		case <-ticker.C:
			p.monitor.SetOnline(p.probe())
		}
	}
}

func (p *Prober) probe() bool {
	resp, err := p.client.Get(p.url)
	if err != nil {
		slog.Debug("health probe failed", "url", p.url, "err", err)
		return false
	}
	defer resp.Body.Close()
	return resp.StatusCode >= 200 && resp.StatusCode < 300
}

// CheckNow probes once synchronously and pushes the result into the
// monitor. Useful for one-shot commands that cannot wait a period.
func (p *Prober) CheckNow() bool {
	online := p.probe()
	p.monitor.SetOnline(online)
	return online
}

// Stop halts probing and waits for the probe goroutine to exit.
// Safe to call more than once.
func (p *Prober) Stop() {
	p.stopOnce.Do(func() { close(p.stop) })
	<-p.done
}
