// Copyright 2024 Google Inc. All Rights Reserved.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package tracer attaches to every thread of a target process via ptrace
// and lets the caller execute arbitrary syscalls inside it, the mechanism
// fdrebind uses to swap a target's open file descriptors without it ever
// running a single instruction of its own to do so.
//
// Only linux/amd64's syscall ABI is implemented: argument registers
// rdi/rsi/rdx/r10/r8/r9, syscall opcode 0x0f 0x05 patched in at the
// current instruction pointer, single-stepped once, and the original
// instruction and registers restored before returning control.
package tracer

import (
	"fmt"
	"os"
	"strconv"
	"syscall"

	"golang.org/x/sys/unix"

	"github.com/chaos-mesh/chaosfs/internal/logger"
)

// Process holds ptrace attachments to every thread of a target pid.
type Process struct {
	threads []*Thread
}

// Attach stops and attaches to every thread listed under
// /proc/<pid>/task, the ptrace equivalent of "the whole process", since a
// ptrace attach only affects a single thread (tid) at a time.
func Attach(pid int) (*Process, error) {
	entries, err := os.ReadDir(fmt.Sprintf("/proc/%d/task", pid))
	if err != nil {
		return nil, fmt.Errorf("listing threads of pid %d: %w", pid, err)
	}

	p := &Process{}
	for _, entry := range entries {
		tid, err := strconv.Atoi(entry.Name())
		if err != nil {
			return nil, fmt.Errorf("unexpected task entry %q: %w", entry.Name(), err)
		}

		if err := unix.PtraceAttach(tid); err != nil {
			p.Detach()
			return nil, fmt.Errorf("ptrace attach tid %d: %w", tid, err)
		}
		if _, err := waitStopped(tid); err != nil {
			p.Detach()
			return nil, fmt.Errorf("waiting for tid %d to stop: %w", tid, err)
		}

		p.threads = append(p.threads, &Thread{tid: tid})
	}
	return p, nil
}

// Threads returns every attached thread, to run remote syscalls on any or
// all of them (fdrebind, for instance, must rewrite every thread's fd
// table in turn since they share one).
func (p *Process) Threads() []*Thread { return p.threads }

// Detach releases every attachment this Process holds, best-effort: it
// keeps going even if one thread's detach fails, so a single vanished
// thread doesn't leave the rest of the process stuck under ptrace.
func (p *Process) Detach() {
	for _, t := range p.threads {
		if err := t.Detach(); err != nil {
			logger.Warnf("detach tid %d: %v", t.tid, err)
		}
	}
}

// Thread is one ptrace-attached thread inside the target process.
type Thread struct {
	tid int
}

func (t *Thread) Detach() error {
	return unix.PtraceDetach(t.tid)
}

// Tid returns the Linux thread id this Thread is attached to.
func (t *Thread) Tid() int { return t.tid }

// threadGuard snapshots a thread's registers and the instruction at its
// current rip, and restores both when released — restore runs on every
// exit path via defer, not just the success path, so a remote syscall
// that errors partway through never leaves the thread corrupted.
type threadGuard struct {
	tid    int
	regs   unix.PtraceRegs
	ripIns [8]byte
}

func (t *Thread) protect() (*threadGuard, error) {
	var regs unix.PtraceRegs
	if err := unix.PtraceGetRegs(t.tid, &regs); err != nil {
		return nil, fmt.Errorf("getregs tid %d: %w", t.tid, err)
	}

	var ins [8]byte
	if _, err := unix.PtracePeekText(t.tid, uintptr(regs.Rip), ins[:]); err != nil {
		return nil, fmt.Errorf("peektext tid %d: %w", t.tid, err)
	}

	return &threadGuard{tid: t.tid, regs: regs, ripIns: ins}, nil
}

func (g *threadGuard) release() {
	if _, err := unix.PtracePokeText(g.tid, uintptr(g.regs.Rip), g.ripIns[:]); err != nil {
		logger.Warnf("restoring instruction on tid %d: %v", g.tid, err)
	}
	if err := unix.PtraceSetRegs(g.tid, &g.regs); err != nil {
		logger.Warnf("restoring registers on tid %d: %v", g.tid, err)
	}
}

func waitStopped(tid int) (syscall.WaitStatus, error) {
	var status syscall.WaitStatus
	_, err := syscall.Wait4(tid, &status, 0, nil)
	return status, err
}

// syscallOpcode is the two-byte x86-64 "syscall" instruction.
var syscallOpcode = [2]byte{0x0f, 0x05}

// Syscall executes the given syscall number with up to 6 arguments inside
// the thread, in the linux/amd64 ABI's register order, and returns its
// raw (unsigned) return value — callers translate negative-as-unsigned
// results to errno themselves, matching what the raw syscall instruction
// itself returns.
func (t *Thread) Syscall(nr uint64, args ...uint64) (uint64, error) {
	if len(args) > 6 {
		return 0, fmt.Errorf("too many syscall arguments: %d", len(args))
	}

	guard, err := t.protect()
	if err != nil {
		return 0, err
	}
	defer guard.release()

	regs := guard.regs
	regs.Rax = nr
	argRegs := []*uint64{&regs.Rdi, &regs.Rsi, &regs.Rdx, &regs.R10, &regs.R8, &regs.R9}
	for i, arg := range args {
		*argRegs[i] = arg
	}

	if err := unix.PtraceSetRegs(t.tid, &regs); err != nil {
		return 0, fmt.Errorf("setregs tid %d: %w", t.tid, err)
	}

	var opcode [2]byte
	copy(opcode[:], syscallOpcode[:])
	if _, err := unix.PtracePokeText(t.tid, uintptr(regs.Rip), opcode[:]); err != nil {
		return 0, fmt.Errorf("patching syscall opcode on tid %d: %w", t.tid, err)
	}

	if err := unix.PtraceSingleStep(t.tid); err != nil {
		return 0, fmt.Errorf("singlestep tid %d: %w", t.tid, err)
	}
	if _, err := waitStopped(t.tid); err != nil {
		return 0, fmt.Errorf("waiting for tid %d after singlestep: %w", t.tid, err)
	}

	var after unix.PtraceRegs
	if err := unix.PtraceGetRegs(t.tid, &after); err != nil {
		return 0, fmt.Errorf("getregs after syscall on tid %d: %w", t.tid, err)
	}
	return after.Rax, nil
}

// Errno reinterprets a raw syscall return value as an error, the way a
// normal Go syscall wrapper would: values in [-4095, -1] (as unsigned
// two's complement) are errno, everything else is success.
func Errno(ret uint64) error {
	signed := int64(ret)
	if signed > -4096 && signed < 0 {
		return syscall.Errno(-signed)
	}
	return nil
}
