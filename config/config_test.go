/*************************************************************************
 * Copyright 2024 Gravwell, Inc. All rights reserved.
 * Contact: <legal@gravwell.io>
 *
 * This software may be modified and distributed under the terms of the
 * BSD 2-clause license. See the LICENSE file for details.
 **************************************************************************/

package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	p := filepath.Join(t.TempDir(), `detnetd.conf`)
	if err := os.WriteFile(p, []byte(content), 0640); err != nil {
		t.Fatal(err)
	}
	return p
}

func TestDefaults(t *testing.T) {
	c, err := GetConfig(filepath.Join(t.TempDir(), `missing.conf`))
	if err != nil {
		t.Fatal(err)
	}
	if c.Global.Socket_Path != `/var/run/detnetd/detnetd_service.sock` {
		t.Fatalf("socket path default: %s", c.Global.Socket_Path)
	}
	if c.Global.Lock_File != `/var/lock/detnetd` {
		t.Fatalf("lock file default: %s", c.Global.Lock_File)
	}
	if c.Global.Log_Level != `INFO` {
		t.Fatalf("log level default: %s", c.Global.Log_Level)
	}
	if c.Global.Test_Mode {
		t.Fatal("test mode must default off")
	}
}

func TestParseFile(t *testing.T) {
	p := writeConfig(t, "[global]\n"+
		"Socket-Path=/run/detnetd/svc.sock\n"+
		"Lock-File=/run/lock/detnetd\n"+
		"Log-File=/var/log/detnetd.log\n"+
		"Log-Level=DEBUG\n"+
		"Test-Mode=true\n")
	c, err := GetConfig(p)
	if err != nil {
		t.Fatal(err)
	}
	if c.Global.Socket_Path != `/run/detnetd/svc.sock` {
		t.Fatalf("socket path: %s", c.Global.Socket_Path)
	}
	if c.Global.Lock_File != `/run/lock/detnetd` {
		t.Fatalf("lock file: %s", c.Global.Lock_File)
	}
	if c.Global.Log_File != `/var/log/detnetd.log` {
		t.Fatalf("log file: %s", c.Global.Log_File)
	}
	if c.Global.Log_Level != `DEBUG` {
		t.Fatalf("log level: %s", c.Global.Log_Level)
	}
	if !c.Global.Test_Mode {
		t.Fatal("test mode not parsed")
	}
}

func TestEnvOverrides(t *testing.T) {
	p := writeConfig(t, "[global]\nLog-Level=ERROR\n")
	t.Setenv(`DETNETD_LOG_LEVEL`, `debug`)
	t.Setenv(`DETNETD_TEST_MODE`, `1`)
	t.Setenv(`DETNETD_SOCKET_PATH`, `/tmp/override.sock`)

	c, err := GetConfig(p)
	if err != nil {
		t.Fatal(err)
	}
	if c.Global.Log_Level != `DEBUG` {
		t.Fatalf("env log level not applied: %s", c.Global.Log_Level)
	}
	if !c.Global.Test_Mode {
		t.Fatal("env test mode not applied")
	}
	if c.Global.Socket_Path != `/tmp/override.sock` {
		t.Fatalf("env socket path not applied: %s", c.Global.Socket_Path)
	}
}

func TestVerifyRejectsRelativePaths(t *testing.T) {
	p := writeConfig(t, "[global]\nSocket-Path=relative.sock\n")
	if _, err := GetConfig(p); !errors.Is(err, ErrInvalidSocketPath) {
		t.Fatalf("expected ErrInvalidSocketPath, got %v", err)
	}
}

func TestVerifyRejectsBadLevel(t *testing.T) {
	p := writeConfig(t, "[global]\nLog-Level=NOISY\n")
	if _, err := GetConfig(p); !errors.Is(err, ErrInvalidLogLevel) {
		t.Fatalf("expected ErrInvalidLogLevel, got %v", err)
	}
}

func TestBadEnvBool(t *testing.T) {
	t.Setenv(`DETNETD_TEST_MODE`, `maybe`)
	if _, err := GetConfig(``); err == nil {
		t.Fatal("expected an error for a non-boolean test mode")
	}
}
