/*************************************************************************
 * Copyright 2024 Gravwell, Inc. All rights reserved.
 * Contact: <legal@gravwell.io>
 *
 * This software may be modified and distributed under the terms of the
 * BSD 2-clause license. See the LICENSE file for details.
 **************************************************************************/

package service

import (
	"errors"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/gofrs/flock"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sys/unix"
	"golang.org/x/time/rate"

	"github.com/gravwell/detnetd/config"
	"github.com/gravwell/detnetd/ipc"
	"github.com/gravwell/detnetd/log"
	"github.com/gravwell/detnetd/sysconf"
)

const (
	// Test mode PCI ID and rate: an Elkhart Lake mGBE at 1 Gbps.
	testModePCIID = `8086:4B30`
	testModeRate  = 1000 * 1000 * 1000

	// Malformed datagram warnings are throttled to this rate so a chattering
	// peer cannot flood the log.
	malformedLogRate  = 1.0
	malformedLogBurst = 5
)

var (
	ErrAlreadyRunning = errors.New("another detnetd instance holds the lock file")
)

// Service owns the process-wide resources of the daemon: the single
// instance lock, the datagram socket, and the reservation manager. Its
// construction acquires them and Close releases them on every exit path.
type Service struct {
	cfg      *config.Config
	lg       *log.Logger
	manager  *Manager
	fl       *flock.Flock
	sock     int
	sockPath string
	limiter  *rate.Limiter
	done     chan struct{}
}

// New acquires the lock file and service socket. Test mode swaps the system
// configurator for a no-op double so everything downstream runs unprivileged.
func New(cfg *config.Config, lg *log.Logger) (*Service, error) {
	s := &Service{
		cfg:      cfg,
		lg:       lg,
		sock:     -1,
		sockPath: cfg.Global.Socket_Path,
		limiter:  rate.NewLimiter(rate.Limit(malformedLogRate), malformedLogBurst),
		done:     make(chan struct{}),
	}

	if err := s.acquireLock(); err != nil {
		return nil, err
	}
	if err := s.openSocket(); err != nil {
		s.releaseLock()
		return nil, err
	}

	var conf sysconf.SystemConfigurator
	var sysinfo sysconf.SystemInformation
	if cfg.Global.Test_Mode {
		lg.Warn("running in test mode, system configuration is disabled")
		conf = sysconf.NoopConfigurator{}
		sysinfo = sysconf.StaticSysInfo{PCIID: testModePCIID, Rate: testModeRate}
	} else {
		conf = sysconf.NewConfigurator()
		sysinfo = sysconf.SysInfo{}
	}
	s.manager = NewManager(conf, sysinfo, lg)
	return s, nil
}

// Run serves requests until SIGINT or SIGTERM arrives; the in-flight request
// always completes before shutdown.
func (s *Service) Run() error {
	s.lg.Info("service entering main loop", log.KV("socket", s.sockPath))

	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigs)

	var eg errgroup.Group
	eg.Go(func() error {
		select {
		case sig := <-sigs:
			s.lg.Info("terminating on signal", log.KV("signal", sig.String()))
			s.breakLoop()
		case <-s.done:
		}
		return nil
	})
	eg.Go(s.serve)

	err := eg.Wait()
	s.Close()
	return err
}

func (s *Service) serve() error {
	defer s.breakLoop()
	for {
		buf, from, err := ipc.RecvFrom(s.sock)
		select {
		case <-s.done:
			return nil
		default:
		}
		if err != nil {
			if errors.Is(err, unix.EINTR) {
				continue
			}
			return fmt.Errorf("receive failed: %w", err)
		}
		if from == nil {
			continue
		}
		s.handleDatagram(buf, from)
	}
}

// breakLoop makes the blocking receive fail so the serve loop unwinds.
func (s *Service) breakLoop() {
	select {
	case <-s.done:
		return
	default:
		close(s.done)
	}
	if s.sock >= 0 {
		unix.Shutdown(s.sock, unix.SHUT_RDWR)
	}
}

// Close tears down the socket, its inode, and the lock file. Safe to call
// more than once.
func (s *Service) Close() {
	s.breakLoop()
	if s.sock >= 0 {
		unix.Close(s.sock)
		s.sock = -1
	}
	if sysconf.IsValidUnixDomainSocket(s.sockPath) {
		if err := os.Remove(s.sockPath); err != nil {
			s.lg.Error("failed to remove service socket", log.KVErr(err))
		}
	}
	s.releaseLock()
}

// acquireLock takes the single instance lock and stamps it with our PID,
// read-only, the way sysadmins expect a daemon lock file to look.
func (s *Service) acquireLock() error {
	lockPath := s.cfg.Global.Lock_File
	if !sysconf.IsValidPath(lockPath) {
		return fmt.Errorf("invalid lock file path %q", lockPath)
	}
	s.fl = flock.New(lockPath)
	locked, err := s.fl.TryLock()
	if err != nil {
		return fmt.Errorf("failed to acquire %s: %w", lockPath, err)
	}
	if !locked {
		return ErrAlreadyRunning
	}
	if err := os.WriteFile(lockPath, []byte(fmt.Sprintf("%d\n", os.Getpid())), 0600); err != nil {
		s.releaseLock()
		return err
	}
	if err := os.Chmod(lockPath, 0400); err != nil {
		s.releaseLock()
		return err
	}
	return nil
}

func (s *Service) releaseLock() {
	if s.fl == nil {
		return
	}
	lockPath := s.fl.Path()
	s.fl.Unlock()
	s.fl = nil
	if sysconf.IsValidFile(lockPath) {
		if err := os.Remove(lockPath); err != nil {
			s.lg.Error("failed to remove lock file", log.KVErr(err))
		}
	}
}

// openSocket binds the datagram endpoint, replacing a stale socket inode
// from an unclean previous shutdown. The parent directory is private to the
// service uid.
func (s *Service) openSocket() error {
	dir := filepath.Dir(s.sockPath)
	if err := os.MkdirAll(dir, 0700); err != nil {
		return err
	}
	if _, err := os.Lstat(s.sockPath); err == nil {
		if !sysconf.IsValidUnixDomainSocket(s.sockPath) {
			return fmt.Errorf("%s exists and is not a socket", s.sockPath)
		}
		if err := os.Remove(s.sockPath); err != nil {
			return err
		}
	}
	sock, err := unix.Socket(unix.AF_UNIX, unix.SOCK_DGRAM|unix.SOCK_CLOEXEC, 0)
	if err != nil {
		return err
	}
	if err := unix.Bind(sock, &unix.SockaddrUnix{Name: s.sockPath}); err != nil {
		unix.Close(sock)
		return err
	}
	if err := os.Chmod(s.sockPath, 0660); err != nil {
		unix.Close(sock)
		os.Remove(s.sockPath)
		return err
	}
	s.sock = sock
	return nil
}
