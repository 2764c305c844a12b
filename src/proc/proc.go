// Package proc implements process lifecycle: creation, fork, exec, wait
// and exit, grounded on userprog/process.c from original_source/
// (process_create_initd, process_fork/__do_fork, process_exec,
// process_wait, process_exit, process_cleanup, get_child_process,
// print_intr_frame). Each process owns its own address space (pgtbl+spt)
// and descriptor table; "threads" are goroutines via sched.Sched_t.
package proc

import (
	"fmt"
	"sync"

	"accnt"
	"defs"
	"elfload"
	"fd"
	"fs"
	"limits"
	"mem"
	"oommsg"
	"pgtbl"
	"sched"
	"spt"
	"stats"
	"ustack"
)

// exitCounters tracks how processes left the table, the same
// zero-cost-when-stats.Stats-is-off pattern spt uses for its fault
// counters.
var exitCounters struct {
	Orphaned stats.Counter_t
	Reaped   stats.Counter_t
}

/// Stats renders the accumulated exit counters, empty when stats.Stats is
/// false.
func Stats() string {
	return stats.Stats2String(exitCounters)
}

/// IntrFrame is the syscall argument/return register file a real
/// interrupt stub would have built on kernel entry, the equivalent of
/// struct intr_frame as seen from syscall_handler: Rax carries the
/// syscall number in and the return value out, Rdi..R9 the first six
/// argument registers per the SysV ABI.
type IntrFrame struct {
	Rax, Rdi, Rsi, Rdx, R10, R8, R9 uint64
	Rip, Rsp                        uint64
}

/// DumpIntrFrame renders f the way print_intr_frame does, kept for the
/// panic/diagnostic path even though this build has no hardware trap to
/// reach it from.
func DumpIntrFrame(f *IntrFrame) string {
	return fmt.Sprintf("rip %#x rsp %#x rax %#x rdi %#x rsi %#x rdx %#x r10 %#x r8 %#x r9 %#x",
		f.Rip, f.Rsp, f.Rax, f.Rdi, f.Rsi, f.Rdx, f.R10, f.R8, f.R9)
}

/// Kernel bundles the system-wide resources every process shares: the
/// physical frame pool, the filesystem, the console device and the
/// thread registry.
type Kernel struct {
	Mem     *mem.Physmem_t
	FS      *fs.FS
	Console fd.Fdops_i
	Sched   *sched.Sched_t
}

/// Proc_t is one user process: its address space, descriptors, parent/
/// child links and the three-semaphore lifecycle handshake, the
/// equivalent of struct thread's userprog-specific fields.
type Proc_t struct {
	Pid    defs.Tid_t
	Thread *sched.Thread

	Pml4 *pgtbl.Pml4_t
	Spt  *spt.Spt_t
	Fdt  *fd.Fdt_t

	EntryRip uintptr
	EntryRsp uintptr

	Accnt *accnt.Accnt_t

	mu        sync.Mutex
	exitCode  int
	orphaned  bool
	execFile  *fs.File

	Parent     *Proc_t
	childrenMu sync.Mutex
	Children   []*Proc_t

	LoadSema *sched.Sema_t
	WaitSema *sched.Sema_t
	ExitSema *sched.Sema_t

	startNs int
}

var procTableMu sync.Mutex
var procTable = make(map[defs.Tid_t]*Proc_t)
var nextPid defs.Tid_t = 1

func allocPid() defs.Tid_t {
	procTableMu.Lock()
	defer procTableMu.Unlock()
	pid := nextPid
	nextPid++
	return pid
}

func register(p *Proc_t) {
	procTableMu.Lock()
	procTable[p.Pid] = p
	procTableMu.Unlock()
}

func unregister(pid defs.Tid_t) {
	procTableMu.Lock()
	delete(procTable, pid)
	procTableMu.Unlock()
}

/// Lookup finds a live process by pid, the equivalent of a raw tid ->
/// thread lookup through the scheduler's all-threads list.
func Lookup(pid defs.Tid_t) (*Proc_t, bool) {
	procTableMu.Lock()
	defer procTableMu.Unlock()
	p, ok := procTable[pid]
	return p, ok
}

func newProc(k *Kernel, parent *Proc_t) (*Proc_t, defs.Err_t) {
	if !limits.Syslimit.Sysprocs.Take() {
		oommsg.Notify(1)
		return nil, defs.ENOMEM
	}
	p := &Proc_t{
		Pid:      allocPid(),
		Parent:   parent,
		Fdt:      &fd.Fdt_t{},
		Accnt:    &accnt.Accnt_t{},
		LoadSema: sched.NewSema(0),
		WaitSema: sched.NewSema(0),
		ExitSema: sched.NewSema(0),
	}
	p.Fdt.InitStd(k.Console)
	p.startNs = p.Accnt.Now()
	return p, 0
}

func (p *Proc_t) park(k *Kernel) {
	p.Thread = k.Sched.Spawn(func(th *sched.Thread) {
		<-th.Killnaps.Killch
	})
}

/// CreateInitd loads path as the very first process, with no parent, the
/// equivalent of process_create_initd.
func CreateInitd(k *Kernel, path string, argv []string) (*Proc_t, defs.Err_t) {
	p, err := newProc(k, nil)
	if err != 0 {
		return nil, err
	}
	p.Pml4 = pgtbl.Create(k.Mem)
	p.Spt = spt.New(p.Pml4, k.Mem)
	if err := execInto(k, p, path, argv); err != 0 {
		limits.Syslimit.Sysprocs.Give()
		return nil, err
	}
	register(p)
	p.park(k)
	p.LoadSema.Up()
	return p, 0
}

/// Fork duplicates parent into a new child process: its address space via
/// spt.Copy, its descriptor table via fd.Fdt_t.Copy, the equivalent of
/// process_fork/__do_fork. Fork has no ELF load step, so the child's
/// LoadSema is posted immediately once duplication succeeds.
func Fork(k *Kernel, parent *Proc_t) (defs.Tid_t, defs.Err_t) {
	child, err := newProc(k, parent)
	if err != 0 {
		return defs.TID_ERROR, err
	}
	child.Pml4 = pgtbl.Create(k.Mem)
	child.Spt = spt.New(child.Pml4, k.Mem)

	if !parent.Spt.Copy(child.Spt) {
		child.Pml4.Destroy()
		limits.Syslimit.Sysprocs.Give()
		return defs.TID_ERROR, defs.ENOMEM
	}
	fdt, err2 := parent.Fdt.Copy()
	if err2 != 0 {
		child.Spt.Kill()
		child.Pml4.Destroy()
		limits.Syslimit.Sysprocs.Give()
		return defs.TID_ERROR, err2
	}
	child.Fdt = fdt
	child.EntryRip = parent.EntryRip
	child.EntryRsp = parent.EntryRsp

	parent.childrenMu.Lock()
	parent.Children = append(parent.Children, child)
	parent.childrenMu.Unlock()

	register(child)
	child.park(k)
	child.LoadSema.Up()
	return child.Pid, 0
}

func execInto(k *Kernel, p *Proc_t, path string, argv []string) defs.Err_t {
	file, err := k.FS.Open(path)
	if err != 0 {
		return err
	}
	file.DenyWrite()

	newPml4 := pgtbl.Create(k.Mem)
	newSpt := spt.New(newPml4, k.Mem)

	loaded, lerr := elfload.Load(file, newSpt)
	if lerr != 0 {
		newSpt.Kill()
		newPml4.Destroy()
		file.AllowWrite()
		file.Close()
		return lerr
	}
	built, serr := ustack.Build(newSpt, argv)
	if serr != 0 {
		newSpt.Kill()
		newPml4.Destroy()
		file.AllowWrite()
		file.Close()
		return serr
	}

	if p.Spt != nil {
		p.Spt.Kill()
	}
	if p.Pml4 != nil {
		p.Pml4.Destroy()
	}
	if p.execFile != nil {
		p.execFile.AllowWrite()
		p.execFile.Close()
	}

	p.Pml4 = newPml4
	p.Spt = newSpt
	p.execFile = file
	p.EntryRip = loaded.Entry
	p.EntryRsp = built.Rsp
	return 0
}

/// Exec replaces p's address space with a fresh load of path, the
/// equivalent of process_exec. On failure p is left fully destroyed in
/// the reference kernel (process_exec calls thread_exit on failure); here
/// the caller (scall) is expected to exit the process on error, since this
/// package does not assume it can end a goroutine from the outside.
func Exec(k *Kernel, p *Proc_t, path string, argv []string) defs.Err_t {
	return execInto(k, p, path, argv)
}

/// Wait blocks until the child process identified by childPid has exited,
/// then reaps it and returns its exit code, the equivalent of
/// process_wait/get_child_process.
func Wait(parent *Proc_t, childPid defs.Tid_t) (int, defs.Err_t) {
	child := parent.getChild(childPid)
	if child == nil {
		return -1, defs.ECHILD
	}
	child.WaitSema.Down()
	code := child.exitCode
	parent.removeChild(childPid)
	child.ExitSema.Up()
	return code, 0
}

func (p *Proc_t) getChild(pid defs.Tid_t) *Proc_t {
	p.childrenMu.Lock()
	defer p.childrenMu.Unlock()
	for _, c := range p.Children {
		if c.Pid == pid {
			return c
		}
	}
	return nil
}

func (p *Proc_t) removeChild(pid defs.Tid_t) {
	p.childrenMu.Lock()
	defer p.childrenMu.Unlock()
	for i, c := range p.Children {
		if c.Pid == pid {
			p.Children = append(p.Children[:i], p.Children[i+1:]...)
			return
		}
	}
}

/// Exit tears p down: its address space is destroyed, its descriptors
/// closed, its exit code recorded for Wait, and every surviving child is
/// released from waiting on a parent that will never come back — exit_sema
/// is raised for every surviving child during parent teardown, a broader
/// guarantee than the reference kernel's own narrower handling gives.
/// Before returning, Exit itself blocks on its own ExitSema: a parent
/// calling Wait raises it once the exit code has been read, and a parent
/// that exits first raises it for every child still in its Children list
/// (marking it orphaned) so neither side can deadlock on the other. The
/// equivalent of process_exit/process_cleanup plus wait_for_die's
/// exit_sema rendezvous.
func (p *Proc_t) Exit(code int) {
	p.Accnt.Finish(p.startNs)
	if p.Spt != nil {
		p.Spt.Kill()
	}
	if p.Pml4 != nil {
		p.Pml4.Destroy()
	}
	if p.execFile != nil {
		p.execFile.AllowWrite()
		p.execFile.Close()
	}
	p.Fdt.CloseAll()

	p.mu.Lock()
	p.exitCode = code
	p.mu.Unlock()

	p.childrenMu.Lock()
	for _, c := range p.Children {
		c.mu.Lock()
		c.orphaned = true
		c.mu.Unlock()
		c.ExitSema.Up()
		exitCounters.Orphaned.Inc()
	}
	p.childrenMu.Unlock()

	unregister(p.Pid)
	limits.Syslimit.Sysprocs.Give()
	if p.Thread != nil {
		p.Thread.Doom(0)
	}
	p.WaitSema.Up()

	// A parent still running raises ExitSema from Wait once it has read
	// exitCode. A parent that already exited raised it preemptively above
	// when it marked us orphaned, so Down below returns immediately in
	// that case; either way this process does not finish exiting until
	// whichever side owed the acknowledgment has given it. The root
	// process has no parent to ever raise it, so it skips the rendezvous
	// entirely rather than blocking forever.
	if p.Parent == nil {
		return
	}
	p.mu.Lock()
	orphaned := p.orphaned
	p.mu.Unlock()
	if !orphaned {
		exitCounters.Reaped.Inc()
	}
	p.ExitSema.Down()
}
