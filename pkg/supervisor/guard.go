package supervisor

import "sync"

// Phase is the supervisor's own view of a worker's lifecycle.
// Starting and Stopping are transient; Stopped and Running are stable.
type Phase string

const (
	PhaseStopped  Phase = "stopped"
	PhaseStarting Phase = "starting"
	PhaseRunning  Phase = "running"
	PhaseStopping Phase = "stopping"
)

func (p Phase) Transient() bool {
	return p == PhaseStarting || p == PhaseStopping
}

// workerGuard serializes lifecycle operations on one worker. Only the phase
// check-and-set happens under the mutex; process waits happen outside it.
type workerGuard struct {
	mutex sync.Mutex
	phase Phase

	// watchdog bookkeeping
	crashed      bool
	autoRestarts int
}

func newWorkerGuard() *workerGuard {
	return &workerGuard{phase: PhaseStopped}
}

// begin moves into a transient phase. It fails, returning the current phase,
// if another start or stop is already underway.
func (g *workerGuard) begin(transient Phase) (Phase, bool) {
	g.mutex.Lock()
	defer g.mutex.Unlock()

	if g.phase.Transient() {
		return g.phase, false
	}
	prior := g.phase
	g.phase = transient
	return prior, true
}

func (g *workerGuard) finish(phase Phase) {
	g.mutex.Lock()
	defer g.mutex.Unlock()
	g.phase = phase
}

func (g *workerGuard) current() Phase {
	g.mutex.Lock()
	defer g.mutex.Unlock()
	return g.phase
}

func (g *workerGuard) markCrashed() {
	g.mutex.Lock()
	defer g.mutex.Unlock()
	g.crashed = true
	if g.phase == PhaseRunning {
		g.phase = PhaseStopped
	}
}

// takeCrash consumes the crash flag and counts an automatic restart attempt.
func (g *workerGuard) takeCrash(limit int) (attempt int, crashed bool, allowed bool) {
	g.mutex.Lock()
	defer g.mutex.Unlock()
	if !g.crashed || g.phase.Transient() {
		return g.autoRestarts, false, false
	}
	g.crashed = false
	if g.autoRestarts >= limit {
		return g.autoRestarts, true, false
	}
	g.autoRestarts++
	return g.autoRestarts, true, true
}

func (g *workerGuard) resetRestarts() {
	g.mutex.Lock()
	defer g.mutex.Unlock()
	g.crashed = false
	g.autoRestarts = 0
}

func (g *workerGuard) clearCrash() {
	g.mutex.Lock()
	defer g.mutex.Unlock()
	g.crashed = false
}
