package keymanager

import (
	"sync"

	"github.com/signetco/corefw/bip32"
)

// Status mirrors crypto_task_status_t: the async BIP32 derive+sign
// worker is polled rather than blocked on, since signing can take
// long enough (100ms+) to upset NFC frame-waiting-time constraints if
// done inline on the dispatch thread.
type Status int

const (
	StatusWaiting Status = iota
	StatusInProgress
	StatusSuccess
	StatusError
	StatusDerivationFailed
	StatusSigningFailed
	StatusPolicyViolation
)

// Worker runs one derive+sign job at a time on its own goroutine,
// exposing the same poll/claim protocol as crypto_task.c: a caller
// submits a job while status is Waiting, polls Status until it leaves
// InProgress, then claims the result exactly once (the result buffer
// is cleared on claim whether or not the hash/path it expected
// match).
type Worker struct {
	mgr *Manager

	mu        sync.Mutex
	status    Status
	path      bip32.Path
	hash      [32]byte
	signature []byte
	jobs      chan job
}

type job struct {
	path bip32.Path
	hash [32]byte
}

// NewWorker starts the worker's goroutine. Callers should hold a
// single long-lived Worker per Manager, matching the original
// firmware's one crypto_thread per device.
func NewWorker(mgr *Manager) *Worker {
	w := &Worker{mgr: mgr, jobs: make(chan job, 1)}
	go w.run()
	return w
}

func (w *Worker) run() {
	for j := range w.jobs {
		w.execute(j)
	}
}

func (w *Worker) execute(j job) {
	key, err := w.mgr.deriveMaster(j.path)
	var status Status
	var sig []byte
	if err != nil {
		status = StatusDerivationFailed
	} else if priv, perr := key.ECPrivKey(); perr != nil {
		status = StatusDerivationFailed
	} else if s, serr := ecdsaSignCompact(priv.ToECDSA(), j.hash[:]); serr != nil {
		status = StatusSigningFailed
	} else {
		sig = s
		status = StatusSuccess
	}

	w.mu.Lock()
	w.signature = sig
	w.status = status
	w.mu.Unlock()
}

// Submit enqueues a derive+sign job. It returns false without
// enqueuing if a job is already in flight (status must be Waiting,
// matching crypto_task_set_parameters's precondition).
func (w *Worker) Submit(path bip32.Path, hash [32]byte) bool {
	w.mu.Lock()
	if w.status != StatusWaiting {
		w.mu.Unlock()
		return false
	}
	w.path = path
	w.hash = hash
	w.status = StatusInProgress
	w.mu.Unlock()

	select {
	case w.jobs <- job{path: path, hash: hash}:
		return true
	default:
		w.mu.Lock()
		w.status = StatusWaiting
		w.mu.Unlock()
		return false
	}
}

// Status reports the worker's current status.
func (w *Worker) Status() Status {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.status
}

// GetAndClearSignature claims the signature for a completed job,
// verifying it matches the expected path and hash before returning
// it, and resets the worker to Waiting regardless of outcome —
// mirroring crypto_task_get_and_clear_signature's memzero-on-exit
// behavior so a stale signature can never leak to the wrong caller.
func (w *Worker) GetAndClearSignature(expectPath bip32.Path, expectHash [32]byte) ([]byte, bool) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.status != StatusSuccess {
		return nil, false
	}
	matches := expectHash == w.hash && pathsEqual(expectPath, w.path)
	sig := w.signature

	w.signature = nil
	w.hash = [32]byte{}
	w.path = nil
	w.status = StatusWaiting

	if !matches {
		return nil, false
	}
	return sig, true
}

func pathsEqual(a, b bip32.Path) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
