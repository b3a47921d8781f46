/*************************************************************************
 * Copyright 2024 Gravwell, Inc. All rights reserved.
 * Contact: <legal@gravwell.io>
 *
 * This software may be modified and distributed under the terms of the
 * BSD 2-clause license. See the LICENSE file for details.
 **************************************************************************/

// Package config loads the detnetd daemon configuration. The daemon takes no
// command line arguments; everything comes from an optional INI file at the
// default path plus environment variable overrides.
//
//	[global]
//	Socket-Path=/var/run/detnetd/detnetd_service.sock
//	Lock-File=/var/lock/detnetd
//	Log-File=/var/log/detnetd.log
//	Log-Level=INFO
//	Test-Mode=false
package config

import (
	"bytes"
	"errors"
	"io"
	"os"
	"path/filepath"

	"github.com/gravwell/gcfg"
)

const (
	DefaultConfigLoc = `/etc/detnetd/detnetd.conf`

	defaultSocketPath = `/var/run/detnetd/detnetd_service.sock`
	defaultLockFile   = `/var/lock/detnetd`
	defaultLogLevel   = `INFO`

	maxConfigSize int64 = 1024 * 1024
)

var (
	ErrConfigFileTooLarge = errors.New("Config file is too large")
	ErrFailedFileRead     = errors.New("Failed to read entire config file")
	ErrInvalidSocketPath  = errors.New("Socket-Path must be an absolute path")
	ErrInvalidLockFile    = errors.New("Lock-File must be an absolute path")
	ErrInvalidLogLevel    = errors.New("Invalid Log-Level")
)

type Global struct {
	Socket_Path string
	Lock_File   string
	Log_File    string
	Log_Level   string
	Test_Mode   bool
}

type Config struct {
	Global Global
}

// GetConfig loads the configuration at p, falling back to built-in defaults
// when the file does not exist. Environment overrides are applied either way.
func GetConfig(p string) (*Config, error) {
	c := &Config{
		Global: Global{
			Socket_Path: defaultSocketPath,
			Lock_File:   defaultLockFile,
			Log_Level:   defaultLogLevel,
		},
	}
	if p != `` {
		if err := loadConfigFile(c, p); err != nil && !os.IsNotExist(err) {
			return nil, err
		}
	}
	if err := c.loadEnv(); err != nil {
		return nil, err
	}
	if err := c.Verify(); err != nil {
		return nil, err
	}
	return c, nil
}

func loadConfigFile(v interface{}, p string) (err error) {
	var fin *os.File
	var fi os.FileInfo
	var n int64
	if fin, err = os.Open(p); err != nil {
		return
	} else if fi, err = fin.Stat(); err != nil {
		fin.Close()
		return
	} else if fi.Size() > maxConfigSize {
		fin.Close()
		err = ErrConfigFileTooLarge
		return
	}

	bb := bytes.NewBuffer(nil)
	if n, err = io.Copy(bb, fin); err != nil {
		fin.Close()
		return
	} else if n != fi.Size() {
		fin.Close()
		err = ErrFailedFileRead
		return
	} else if err = fin.Close(); err != nil {
		return
	}
	return gcfg.ReadStringInto(v, bb.String())
}

func (c *Config) Verify() error {
	if !filepath.IsAbs(c.Global.Socket_Path) {
		return ErrInvalidSocketPath
	}
	if !filepath.IsAbs(c.Global.Lock_File) {
		return ErrInvalidLockFile
	}
	switch c.Global.Log_Level {
	case `OFF`, `DEBUG`, `INFO`, `WARN`, `ERROR`, `CRITICAL`, `FATAL`:
	default:
		return ErrInvalidLogLevel
	}
	return nil
}
