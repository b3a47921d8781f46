/*************************************************************************
 * Copyright 2024 Gravwell, Inc. All rights reserved.
 * Contact: <legal@gravwell.io>
 *
 * This software may be modified and distributed under the terms of the
 * BSD 2-clause license. See the LICENSE file for details.
 **************************************************************************/

package main

import (
	"os"

	"github.com/gravwell/detnetd/config"
	"github.com/gravwell/detnetd/log"
	"github.com/gravwell/detnetd/service"
)

const appName = `detnetd`

func main() {
	lg := log.New(os.Stderr) // DO NOT close this, it will prevent backtraces from firing
	lg.SetAppname(appName)

	// The daemon takes no arguments; configuration comes from the fixed path
	// and the environment.
	cfg, err := config.GetConfig(config.DefaultConfigLoc)
	if err != nil {
		lg.FatalCode(1, "failed to load configuration", log.KVErr(err))
		return
	}

	if len(cfg.Global.Log_File) > 0 {
		fout, err := os.OpenFile(cfg.Global.Log_File, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0640)
		if err != nil {
			lg.FatalCode(1, "failed to open log file", log.KV("path", cfg.Global.Log_File), log.KVErr(err))
		}
		if err = lg.AddWriter(fout); err != nil {
			lg.Fatal("failed to add a writer", log.KVErr(err))
		}
	}
	if len(cfg.Global.Log_Level) > 0 {
		if err = lg.SetLevelString(cfg.Global.Log_Level); err != nil {
			lg.FatalCode(1, "invalid log level", log.KV("loglevel", cfg.Global.Log_Level), log.KVErr(err))
		}
	}

	lg.Info("* * * detnetd service starting * * *")

	svc, err := service.New(cfg, lg)
	if err != nil {
		lg.FatalCode(1, "failed to initialize service", log.KVErr(err))
		return
	}
	if err := svc.Run(); err != nil {
		svc.Close()
		lg.FatalCode(1, "service terminated abnormally", log.KVErr(err))
	}
	lg.Info("detnetd service stopped")
}
