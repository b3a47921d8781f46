/*************************************************************************
 * Copyright 2024 Gravwell, Inc. All rights reserved.
 * Contact: <legal@gravwell.io>
 *
 * This software may be modified and distributed under the terms of the
 * BSD 2-clause license. See the LICENSE file for details.
 **************************************************************************/

package sysconf

import (
	"bytes"
	"errors"
	"fmt"
	"os/exec"
	"strings"
)

var ErrEmptyCommand = errors.New("empty command")

// runCommand executes a flat command string, treating any exit status outside
// okCodes as an error carrying the captured output. Command strings are built
// by this package only; nothing client-controlled is ever spliced in raw.
func runCommand(command string, okCodes ...int) error {
	fields := strings.Fields(command)
	if len(fields) == 0 {
		return ErrEmptyCommand
	}
	if len(okCodes) == 0 {
		okCodes = []int{0}
	}
	cmd := exec.Command(fields[0], fields[1:]...)
	var outbuf, errbuf bytes.Buffer
	cmd.Stdout = &outbuf
	cmd.Stderr = &errbuf
	err := cmd.Run()
	if cmd.ProcessState == nil {
		return fmt.Errorf("%q failed to start: %w", fields[0], err)
	}
	code := cmd.ProcessState.ExitCode()
	for _, ok := range okCodes {
		if code == ok {
			return nil
		}
	}
	if err == nil {
		err = fmt.Errorf("exit status %d", code)
	}
	return fmt.Errorf("%q failed: %w (stdout %q stderr %q)",
		fields[0], err, outbuf.String(), errbuf.String())
}
