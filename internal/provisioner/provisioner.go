// Package provisioner drives the fleet from first SSH contact to fully
// configured. A single background worker walks the inventory once per poll
// interval; each pass discovers new neighbors, registers them, and moves
// every known switch at most one lifecycle step forward.
package provisioner

import (
	"encoding/json"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/icxcommander/icxcommander/internal/config"
	"github.com/icxcommander/icxcommander/internal/identity"
	"github.com/icxcommander/icxcommander/internal/inventory"
	"github.com/icxcommander/icxcommander/internal/ippool"
	"github.com/icxcommander/icxcommander/internal/ops"
	"github.com/icxcommander/icxcommander/internal/terminal"
	"github.com/icxcommander/icxcommander/internal/topology"
)

// EventSink receives provisioning history. Satisfied by database.Store.
type EventSink interface {
	RecordEvent(cycleID, deviceMAC, deviceIP, eventType, detail string, success bool)
	SaveSnapshot(snapshotJSON string, switchCount, apCount int) error
}

// Recorder receives operational metrics. Satisfied by metrics.Metrics.
type Recorder interface {
	RecordPollCycle(duration time.Duration)
	RecordSSHConnect(result string)
	RecordCredentialAttempt(result string)
	RecordConfigOperation(operation, status string, duration time.Duration)
	SetFleetCounts(discovered, configured, aps int)
	SSHSessionOpened()
	SSHSessionClosed()
}

// Provisioner owns the background worker and everything it touches
type Provisioner struct {
	cfg        *config.Config
	transport  terminal.Transport
	inv        *inventory.Inventory
	pool       *ippool.Pool
	ops        *ops.Operations
	disc       *topology.Discoverer
	ident      *identity.Extractor
	events     EventSink
	metrics    Recorder
	logger     *zap.Logger
	baseConfig string

	mu      sync.Mutex
	running bool
	stopCh  chan struct{}
	doneCh  chan struct{}

	stateMu   sync.RWMutex
	lastCycle time.Time
	cycles    int
}

// New creates a provisioner. baseConfig is the raw CLI text applied to
// newly discovered switches; empty means no base config step.
func New(
	cfg *config.Config,
	transport terminal.Transport,
	inv *inventory.Inventory,
	pool *ippool.Pool,
	operations *ops.Operations,
	disc *topology.Discoverer,
	ident *identity.Extractor,
	events EventSink,
	rec Recorder,
	baseConfig string,
	logger *zap.Logger,
) *Provisioner {
	return &Provisioner{
		cfg:        cfg,
		transport:  transport,
		inv:        inv,
		pool:       pool,
		ops:        operations,
		disc:       disc,
		ident:      ident,
		events:     events,
		metrics:    rec,
		baseConfig: baseConfig,
		logger:     logger.With(zap.String("component", "provisioner")),
	}
}

// Start launches the background worker. Returns false if it was already
// running, true if this call started it.
func (p *Provisioner) Start() bool {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.running {
		return false
	}

	p.stopCh = make(chan struct{})
	p.doneCh = make(chan struct{})
	p.running = true

	go p.loop(p.stopCh, p.doneCh)

	p.logger.Info("Provisioner started",
		zap.Duration("poll_interval", p.cfg.Provisioner.PollInterval),
		zap.Strings("seed_switches", p.cfg.Seed.Switches))
	return true
}

// Stop halts the worker. The in-flight pass is allowed to finish up to the
// stop timeout; the next pass never begins. Returns false if the worker
// was not running.
func (p *Provisioner) Stop() bool {
	p.mu.Lock()
	defer p.mu.Unlock()

	if !p.running {
		return false
	}

	close(p.stopCh)

	select {
	case <-p.doneCh:
		p.logger.Info("Provisioner stopped")
	case <-time.After(p.cfg.Provisioner.StopTimeout):
		p.logger.Warn("Provisioner stop timed out with a pass still in flight",
			zap.Duration("timeout", p.cfg.Provisioner.StopTimeout))
	}

	p.running = false
	return true
}

// Running reports whether the background worker is active
func (p *Provisioner) Running() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.running
}

// LastCycle returns when the most recent pass completed; zero before the
// first pass finishes.
func (p *Provisioner) LastCycle() time.Time {
	p.stateMu.RLock()
	defer p.stateMu.RUnlock()
	return p.lastCycle
}

// Status summarizes fleet progress for the API
func (p *Provisioner) Status() inventory.Status {
	return p.inv.Summarize(p.Running())
}

func (p *Provisioner) loop(stopCh, doneCh chan struct{}) {
	defer close(doneCh)

	ticker := time.NewTicker(p.cfg.Provisioner.PollInterval)
	defer ticker.Stop()

	// First pass runs immediately so seed switches are picked up without
	// waiting out a full interval.
	p.runCycle(stopCh)

	for {
		select {
		case <-stopCh:
			return
		case <-ticker.C:
			p.runCycle(stopCh)
		}
	}
}

// runCycle is one complete provisioning pass
func (p *Provisioner) runCycle(stopCh <-chan struct{}) {
	start := time.Now()
	cycleID := uuid.New().String()
	log := p.logger.With(zap.String("cycle_id", cycleID))

	log.Debug("Starting poll cycle")

	p.ensureSeeds(cycleID, log)

	for _, sw := range p.inv.Switches() {
		if stopped(stopCh) {
			log.Info("Poll cycle interrupted by stop")
			return
		}
		p.processSwitch(cycleID, sw, log)
	}

	status := p.inv.Summarize(true)
	p.metrics.SetFleetCounts(status.SwitchesDiscovered, status.SwitchesConfigured, status.APsDiscovered)
	p.metrics.RecordPollCycle(time.Since(start))

	p.stateMu.Lock()
	p.lastCycle = time.Now()
	p.cycles++
	cycles := p.cycles
	p.stateMu.Unlock()

	if every := p.cfg.Provisioner.SnapshotEvery; every > 0 && cycles%every == 0 {
		p.persistSnapshot(log)
	}

	log.Info("Poll cycle complete",
		zap.Duration("duration", time.Since(start)),
		zap.Int("switches", status.SwitchesDiscovered),
		zap.Int("configured", status.SwitchesConfigured),
		zap.Int("aps", status.APsDiscovered),
		zap.Int("errors", status.Errors))
}

// ensureSeeds registers any operator-listed switch not yet in inventory
func (p *Provisioner) ensureSeeds(cycleID string, log *zap.Logger) {
	for _, ip := range p.cfg.Seed.Switches {
		if _, ok := p.inv.GetSwitchByIP(ip); ok {
			continue
		}
		if _, err := p.probeAndRegister(cycleID, ip, true, log); err != nil {
			log.Warn("Seed switch not yet reachable",
				zap.String("ip", ip),
				zap.Error(err))
		}
	}
}

func (p *Provisioner) persistSnapshot(log *zap.Logger) {
	snap := p.inv.TakeSnapshot()
	raw, err := json.Marshal(snap)
	if err != nil {
		log.Error("Failed to encode inventory snapshot", zap.Error(err))
		return
	}
	if err := p.events.SaveSnapshot(string(raw), len(snap.Switches), len(snap.APs)); err != nil {
		log.Error("Failed to persist inventory snapshot", zap.Error(err))
	}
}

func stopped(stopCh <-chan struct{}) bool {
	select {
	case <-stopCh:
		return true
	default:
		return false
	}
}
