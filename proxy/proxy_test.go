/*************************************************************************
 * Copyright 2024 Gravwell, Inc. All rights reserved.
 * Contact: <legal@gravwell.io>
 *
 * This software may be modified and distributed under the terms of the
 * BSD 2-clause license. See the LICENSE file for details.
 **************************************************************************/

package proxy

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"golang.org/x/sys/unix"

	"github.com/gravwell/detnetd/config"
	"github.com/gravwell/detnetd/ipc"
	"github.com/gravwell/detnetd/log"
	"github.com/gravwell/detnetd/schedule"
	"github.com/gravwell/detnetd/service"
)

// startService runs a test mode daemon on a throwaway socket and waits for
// the endpoint to appear.
func startService(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	sockPath := filepath.Join(dir, `detnetd.sock`)
	cfg := &config.Config{
		Global: config.Global{
			Socket_Path: sockPath,
			Lock_File:   filepath.Join(dir, `detnetd.lock`),
			Log_Level:   `OFF`,
			Test_Mode:   true,
		},
	}
	svc, err := service.New(cfg, log.NewDiscardLogger())
	if err != nil {
		t.Fatal(err)
	}
	go svc.Run()
	t.Cleanup(svc.Close)

	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		if _, err := os.Stat(sockPath); err == nil {
			return sockPath
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatal("service socket never appeared")
	return ``
}

func testConfig(t *testing.T, txoffset int64) *schedule.Configuration {
	t.Helper()
	stream, err := schedule.NewStreamConfiguration(`aa:bb:cc:dd:ee:ff`, 3, 6, txoffset, nil)
	if err != nil {
		t.Fatal(err)
	}
	spec, err := schedule.NewTrafficSpecification(20000000, 1522)
	if err != nil {
		t.Fatal(err)
	}
	cfg, err := schedule.NewConfiguration(`eth0`, stream, spec, nil)
	if err != nil {
		t.Fatal(err)
	}
	return cfg
}

func TestAddTalkerEndToEnd(t *testing.T) {
	sockPath := startService(t)

	p, err := New(sockPath)
	if err != nil {
		t.Fatal(err)
	}
	defer p.Close()
	p.Timeout = 5 * time.Second

	res, err := p.AddTalker(testConfig(t, 0))
	if err != nil {
		t.Fatal(err)
	}
	if res.VlanInterface != `eth0.3` {
		t.Fatalf("vlan interface: got %s want eth0.3", res.VlanInterface)
	}
	if res.SocketPriority != 7 {
		t.Fatalf("socket priority: got %d want 7", res.SocketPriority)
	}

	// Second stream draws the next priority from the same pool.
	res, err = p.AddTalker(testConfig(t, 100000))
	if err != nil {
		t.Fatal(err)
	}
	if res.SocketPriority != 8 {
		t.Fatalf("second priority: got %d want 8", res.SocketPriority)
	}
}

func TestConflictRefusedOverIPC(t *testing.T) {
	sockPath := startService(t)

	p, err := New(sockPath)
	if err != nil {
		t.Fatal(err)
	}
	defer p.Close()
	p.Timeout = 5 * time.Second

	if _, err := p.AddTalker(testConfig(t, 0)); err != nil {
		t.Fatal(err)
	}
	if _, err := p.AddTalker(testConfig(t, 5000)); !errors.Is(err, ErrRequestRefused) {
		t.Fatalf("expected refusal, got %v", err)
	}
}

func TestInitInterfaceEndToEnd(t *testing.T) {
	sockPath := startService(t)

	p, err := New(sockPath)
	if err != nil {
		t.Fatal(err)
	}
	defer p.Close()
	p.Timeout = 5 * time.Second

	if err := p.InitInterface(`eth0`, nil); err != nil {
		t.Fatal(err)
	}
}

func TestAddListenerEndToEnd(t *testing.T) {
	sockPath := startService(t)

	p, err := New(sockPath)
	if err != nil {
		t.Fatal(err)
	}
	defer p.Close()
	p.Timeout = 5 * time.Second

	stream, err := schedule.NewStreamConfiguration(`aa:bb:cc:dd:ee:ff`, 3, 6, 0, nil)
	if err != nil {
		t.Fatal(err)
	}
	spec, err := schedule.NewTrafficSpecification(1000000, 128)
	if err != nil {
		t.Fatal(err)
	}
	lcfg, err := schedule.NewListenerConfiguration(`eth0`, stream, spec, nil, `01:00:5e:01:02:03`)
	if err != nil {
		t.Fatal(err)
	}

	res, err := p.AddListener(lcfg)
	if err != nil {
		t.Fatal(err)
	}
	if res.VlanInterface != `eth0.3` || res.SocketPriority != 7 {
		t.Fatalf("unexpected listener reservation: %+v", res)
	}
}

func TestAddTalkerSocketEndToEnd(t *testing.T) {
	if os.Geteuid() != 0 {
		t.Skip("packet socket creation requires root")
	}
	sockPath := startService(t)

	p, err := New(sockPath)
	if err != nil {
		t.Fatal(err)
	}
	defer p.Close()
	p.Timeout = 5 * time.Second

	res, f, err := p.AddTalkerSocket(testConfig(t, 0))
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()
	if res.SocketPriority != 7 {
		t.Fatalf("socket priority: got %d want 7", res.SocketPriority)
	}

	prio, err := unix.GetsockoptInt(int(f.Fd()), unix.SOL_SOCKET, unix.SO_PRIORITY)
	if err != nil {
		t.Fatal(err)
	}
	if prio != res.SocketPriority {
		t.Fatalf("handed socket has priority %d, reservation says %d", prio, res.SocketPriority)
	}
}

func TestMalformedDatagramGetsRefusal(t *testing.T) {
	sockPath := startService(t)

	sock, err := unix.Socket(unix.AF_UNIX, unix.SOCK_DGRAM|unix.SOCK_CLOEXEC, 0)
	if err != nil {
		t.Fatal(err)
	}
	defer unix.Close(sock)
	if err := unix.Bind(sock, &unix.SockaddrUnix{Name: ``}); err != nil {
		t.Fatal(err)
	}
	if err := unix.Sendto(sock, []byte(`garbage`), 0, &unix.SockaddrUnix{Name: sockPath}); err != nil {
		t.Fatal(err)
	}

	tv := unix.NsecToTimeval((5 * time.Second).Nanoseconds())
	if err := unix.SetsockoptTimeval(sock, unix.SOL_SOCKET, unix.SO_RCVTIMEO, &tv); err != nil {
		t.Fatal(err)
	}
	buf := make([]byte, ipc.MaxMessageSize)
	n, _, err := unix.Recvfrom(sock, buf, 0)
	if err != nil {
		t.Fatal(err)
	}
	msg, err := ipc.Decode(buf[:n])
	if err != nil {
		t.Fatal(err)
	}
	resp, ok := msg.(*ipc.StreamQosResponse)
	if !ok || resp.OK {
		t.Fatalf("expected an ok=false refusal, got %+v", msg)
	}
}

func TestProxyRejectsMissingSocket(t *testing.T) {
	if _, err := New(filepath.Join(t.TempDir(), `nope.sock`)); !errors.Is(err, ErrNotAServiceSocket) {
		t.Fatalf("expected ErrNotAServiceSocket, got %v", err)
	}
}
