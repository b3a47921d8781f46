/*************************************************************************
 * Copyright 2024 Gravwell, Inc. All rights reserved.
 * Contact: <legal@gravwell.io>
 *
 * This software may be modified and distributed under the terms of the
 * BSD 2-clause license. See the LICENSE file for details.
 **************************************************************************/

package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
)

const (
	envSocketPath = `DETNETD_SOCKET_PATH`
	envLockFile   = `DETNETD_LOCK_FILE`
	envLogFile    = `DETNETD_LOG_FILE`
	envLogLevel   = `DETNETD_LOG_LEVEL`
	envTestMode   = `DETNETD_TEST_MODE`
)

// loadEnv applies environment overrides on top of whatever the config file
// provided. An empty environment variable is ignored rather than clearing the
// file value.
func (c *Config) loadEnv() error {
	loadEnvString(&c.Global.Socket_Path, envSocketPath)
	loadEnvString(&c.Global.Lock_File, envLockFile)
	loadEnvString(&c.Global.Log_File, envLogFile)
	loadEnvString(&c.Global.Log_Level, envLogLevel)
	if err := loadEnvBool(&c.Global.Test_Mode, envTestMode); err != nil {
		return err
	}
	c.Global.Log_Level = strings.ToUpper(strings.TrimSpace(c.Global.Log_Level))
	return nil
}

func loadEnvString(v *string, nm string) {
	if s, ok := os.LookupEnv(nm); ok && s != `` {
		*v = s
	}
}

func loadEnvBool(v *bool, nm string) error {
	s, ok := os.LookupEnv(nm)
	if !ok || s == `` {
		return nil
	}
	b, err := strconv.ParseBool(strings.TrimSpace(s))
	if err != nil {
		return fmt.Errorf("%s is not a boolean: %w", nm, err)
	}
	*v = b
	return nil
}
