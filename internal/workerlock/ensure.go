package workerlock

import (
	"fmt"
	"os/exec"
)

// MaxRespawns bounds how many times a worker that exits without producing
// work is restarted within one process lifetime (spec §4.7 policy 3).
const MaxRespawns = 2

// SpawnFunc starts a worker subprocess and returns the *exec.Cmd once
// Start() has succeeded (so its Process.Pid is valid).
type SpawnFunc func() (*exec.Cmd, error)

// EnsureRunning claims the lock file for kind, unless a live process already
// holds it, and spawns a fresh worker via spawn. It returns (false, nil)
// when a worker was already running — that is the common, non-error case,
// not a failure.
func EnsureRunning(memDir, kind string, spawn SpawnFunc) (spawned bool, err error) {
	_, spawned, err = EnsureRunningCmd(memDir, kind, spawn)
	return spawned, err
}

// EnsureRunningCmd is EnsureRunning plus the started *exec.Cmd, for callers
// that want to supervise the child (wait on it, decide whether to respawn)
// rather than fire-and-forget it.
func EnsureRunningCmd(memDir, kind string, spawn SpawnFunc) (cmd *exec.Cmd, spawned bool, err error) {
	lock, err := Acquire(memDir, kind)
	if err != nil {
		if IsHeld(err) {
			return nil, false, nil
		}
		return nil, false, fmt.Errorf("acquiring %s worker lock: %w", kind, err)
	}

	cmd, err = spawn()
	if err != nil {
		_ = lock.Release()
		return nil, false, fmt.Errorf("spawning %s worker: %w", kind, err)
	}

	if cmd.Process != nil {
		if setErr := lock.SetPID(cmd.Process.Pid); setErr != nil {
			// The worker is running regardless; losing the PID update just
			// means a future liveness probe checks our own PID instead of
			// the child's until the child exits and cleans up its lock.
			_ = setErr
		}
	}

	return cmd, true, nil
}

// Supervisor tracks respawn attempts for one worker kind across the
// lifetime of a capture-service process, enforcing MaxRespawns.
type Supervisor struct {
	kind      string
	memDir    string
	respawns  int
	exhausted bool
}

// NewSupervisor creates a respawn-bounded supervisor for one worker kind.
func NewSupervisor(memDir, kind string) *Supervisor {
	return &Supervisor{memDir: memDir, kind: kind}
}

// Exhausted reports whether this supervisor has used up its respawn budget.
// Once true, the caller should stop trying to spawn this kind for the rest
// of the process lifetime and resolve pending work with mock fallbacks.
func (s *Supervisor) Exhausted() bool {
	return s.exhausted
}

// NotifyExit is called when a spawned worker exits before producing work
// (i.e. unexpectedly). It returns true if a respawn should be attempted.
func (s *Supervisor) NotifyExit() (shouldRespawn bool) {
	if s.exhausted {
		return false
	}
	if s.respawns >= MaxRespawns {
		s.exhausted = true
		return false
	}
	s.respawns++
	return true
}

// Spawn claims the lock and starts a worker if one isn't already running,
// respecting this supervisor's respawn budget.
func (s *Supervisor) Spawn(spawn SpawnFunc) (spawned bool, err error) {
	if s.exhausted {
		return false, nil
	}
	return EnsureRunning(s.memDir, s.kind, spawn)
}
