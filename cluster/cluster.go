package cluster

import (
	"context"
	"fmt"
	"net"
	"os"
	"os/exec"
	"strconv"
	"sync"

	"github.com/anyks/awh-sub001/buffer"
	"github.com/anyks/awh-sub001/internal/logger"
)

// sendQueueCapacity bounds the bytes a worker's outbound frames may occupy
// before Broadcast/Send start blocking the caller, matching spec.md §4.6's
// "master->child" path to the same bounded-queue discipline the reactor uses
// for per-broker egress.
const sendQueueCapacity = 4 * 1024 * 1024

// Role mirrors spec.md §3's "a worker's role ∈ {master, child}".
type Role uint8

const (
	RoleMaster Role = iota
	RoleWorker
)

// Event is the cluster(family, sid, pid, event) callback's event kind.
type Event uint8

const (
	EventSpawned Event = iota
	EventExited
	EventRebased
)

// Events collects every application-visible cluster callback (spec.md §6:
// cluster, rebase, exit, message).
type Events struct {
	Cluster func(sid uint64, pid int, ev Event)
	Rebase  func(sid uint64, newPID, oldPID int)
	Exit    func(sid uint64, pid int, status int)
	Message func(sid uint64, pid int, buf []byte)
}

// Env vars a spawned worker uses to find its scheme id and inherited fds.
const (
	EnvWorker = "AWH_CLUSTER_WORKER"
	EnvScheme = "AWH_CLUSTER_SID"
)

// workerProc is one live child process, its IPC pipe pair and its outbound
// send-staging queue.
type workerProc struct {
	pid       int
	cmd       *exec.Cmd
	toChild   *os.File
	fromChild *os.File
	sendQ     *buffer.Queue
	ctx       context.Context
	cancel    context.CancelFunc
}

// Manager is the master-side supervisor for one scheme's worker pool.
type Manager struct {
	log    logger.Logger
	sid    uint64
	cfg    Config
	execPath string
	args   []string
	ln     *os.File // the shared listening socket, duplicated as fd 3 in every child

	ev Events

	ctx    context.Context
	cancel context.CancelFunc

	mu      sync.Mutex
	workers map[int]*workerProc
	closed  bool
}

// New creates a cluster manager for scheme sid. ln is the already-bound
// listening socket's *os.File (via (*net.TCPListener).File() or similar);
// it is shared with every worker.
func New(sid uint64, cfg Config, ln *os.File, execPath string, args []string, ev Events) *Manager {
	ctx, cancel := context.WithCancel(context.Background())
	return &Manager{
		log:      logger.New(nil, logger.LevelInfo),
		sid:      sid,
		cfg:      cfg,
		ln:       ln,
		execPath: execPath,
		args:     args,
		ev:       ev,
		ctx:      ctx,
		cancel:   cancel,
		workers:  make(map[int]*workerProc),
	}
}

// Start forks the configured number of workers (spec.md §4.6 step 2). A
// resolved size of 0 means single-process mode: Start is a no-op and the
// caller keeps serving on the listener itself.
func (m *Manager) Start() error {
	size := m.cfg.ResolvedSize()
	for i := 0; i < size; i++ {
		if _, err := m.spawn(); err != nil {
			return err
		}
	}
	return nil
}

func (m *Manager) spawn() (*workerProc, error) {
	toChildR, toChildW, err := os.Pipe()
	if err != nil {
		return nil, fmt.Errorf("cluster: pipe: %w", err)
	}
	fromChildR, fromChildW, err := os.Pipe()
	if err != nil {
		return nil, fmt.Errorf("cluster: pipe: %w", err)
	}

	cmd := exec.Command(m.execPath, m.args...)
	cmd.ExtraFiles = []*os.File{m.ln, toChildR, fromChildW}
	cmd.Env = append(os.Environ(),
		EnvWorker+"=1",
		EnvScheme+"="+strconv.FormatUint(m.sid, 10),
	)
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr

	if err := cmd.Start(); err != nil {
		_ = toChildR.Close()
		_ = toChildW.Close()
		_ = fromChildR.Close()
		_ = fromChildW.Close()
		return nil, fmt.Errorf("cluster: start worker: %w", err)
	}

	// The child's ends of each pipe were duplicated into its own fd table
	// by exec; the master's copies must close so EOF propagates correctly
	// when the child exits.
	_ = toChildR.Close()
	_ = fromChildW.Close()

	wctx, wcancel := context.WithCancel(m.ctx)
	w := &workerProc{
		pid:       cmd.Process.Pid,
		cmd:       cmd,
		toChild:   toChildW,
		fromChild: fromChildR,
		sendQ:     buffer.NewQueue(sendQueueCapacity),
		ctx:       wctx,
		cancel:    wcancel,
	}

	m.mu.Lock()
	m.workers[w.pid] = w
	m.mu.Unlock()

	if m.ev.Cluster != nil {
		m.ev.Cluster(m.sid, w.pid, EventSpawned)
	}

	go m.readLoop(w)
	go m.writeLoop(w)
	go m.waitLoop(w)

	return w, nil
}

func (m *Manager) readLoop(w *workerProc) {
	for {
		buf, err := readFrame(w.fromChild)
		if err != nil {
			return
		}
		if m.ev.Message != nil {
			m.ev.Message(m.sid, w.pid, buf)
		}
	}
}

// writeLoop drains w's send-staging queue into the pipe one frame at a time,
// so Broadcast/Send only ever block on queue capacity, never on the child's
// read side keeping up.
func (m *Manager) writeLoop(w *workerProc) {
	for {
		buf, ok := w.sendQ.Pop(w.ctx)
		if !ok {
			return
		}
		if err := writeFrame(w.toChild, buf); err != nil {
			return
		}
	}
}

func (m *Manager) waitLoop(w *workerProc) {
	err := w.cmd.Wait()
	status := 0
	if err != nil {
		if ee, ok := err.(*exec.ExitError); ok {
			status = ee.ExitCode()
		} else {
			status = -1
		}
	}

	m.mu.Lock()
	delete(m.workers, w.pid)
	closed := m.closed
	m.mu.Unlock()

	w.cancel()
	_ = w.toChild.Close()
	_ = w.fromChild.Close()

	if m.ev.Exit != nil {
		m.ev.Exit(m.sid, w.pid, status)
	}

	if closed || !m.cfg.AutoRestart {
		return
	}

	nw, err := m.spawn()
	if err != nil {
		m.log.Error("cluster: autoRestart respawn failed", logger.Fields{"error": err.Error()})
		return
	}
	if m.ev.Rebase != nil {
		m.ev.Rebase(m.sid, nw.pid, w.pid)
	}
}

// Broadcast sends buf to every live worker (master -> all children).
func (m *Manager) Broadcast(buf []byte) {
	m.mu.Lock()
	targets := make([]*workerProc, 0, len(m.workers))
	for _, w := range m.workers {
		targets = append(targets, w)
	}
	m.mu.Unlock()

	for _, w := range targets {
		w.sendQ.Push(w.ctx, buf)
	}
}

// Send delivers buf to one specific worker by pid, staging it on the
// worker's send queue rather than writing the pipe inline.
func (m *Manager) Send(pid int, buf []byte) error {
	m.mu.Lock()
	w, ok := m.workers[pid]
	m.mu.Unlock()
	if !ok {
		return fmt.Errorf("cluster: no worker with pid %d", pid)
	}
	if !w.sendQ.Push(w.ctx, buf) {
		return fmt.Errorf("cluster: worker %d send queue closed", pid)
	}
	return nil
}

// Workers returns the pids of every currently live worker.
func (m *Manager) Workers() []int {
	m.mu.Lock()
	defer m.mu.Unlock()
	pids := make([]int, 0, len(m.workers))
	for pid := range m.workers {
		pids = append(pids, pid)
	}
	return pids
}

// Stop cancels every worker's send queue and kills every worker process;
// autoRestart is suppressed during shutdown. It returns without waiting for
// the processes to exit: each worker's waitLoop reaps it and fires Exit.
func (m *Manager) Stop() {
	m.mu.Lock()
	m.closed = true
	targets := make([]*workerProc, 0, len(m.workers))
	for _, w := range m.workers {
		targets = append(targets, w)
	}
	m.mu.Unlock()

	m.cancel()
	for _, w := range targets {
		_ = w.cmd.Process.Kill()
	}
}

// WorkerChannel is called from inside a forked child (detected via
// IsWorker) to recover the inherited listening socket and its IPC pipe
// ends: fd 3 is the shared listener, fd 4 is master->child, fd 5 is
// child->master.
func WorkerChannel() (ln net.Listener, fromMaster *os.File, toMaster *os.File, sid uint64, err error) {
	if !IsWorker() {
		return nil, nil, nil, 0, fmt.Errorf("cluster: not running as a worker")
	}
	sid, err = strconv.ParseUint(os.Getenv(EnvScheme), 10, 64)
	if err != nil {
		return nil, nil, nil, 0, fmt.Errorf("cluster: invalid %s: %w", EnvScheme, err)
	}

	lnFile := os.NewFile(3, "cluster-listener")
	ln, err = net.FileListener(lnFile)
	if err != nil {
		return nil, nil, nil, 0, fmt.Errorf("cluster: recover listener fd: %w", err)
	}

	fromMaster = os.NewFile(4, "cluster-from-master")
	toMaster = os.NewFile(5, "cluster-to-master")
	return ln, fromMaster, toMaster, sid, nil
}

// IsWorker reports whether the current process was forked by a Manager.
func IsWorker() bool {
	return os.Getenv(EnvWorker) == "1"
}
