/*************************************************************************
 * Copyright 2024 Gravwell, Inc. All rights reserved.
 * Contact: <legal@gravwell.io>
 *
 * This software may be modified and distributed under the terms of the
 * BSD 2-clause license. See the LICENSE file for details.
 **************************************************************************/

package log

import (
	"bytes"
	"strings"
	"testing"
)

type bufCloser struct {
	bytes.Buffer
}

func (b *bufCloser) Close() error { return nil }

func TestLevels(t *testing.T) {
	var bb bufCloser
	l := New(&bb)
	if err := l.SetLevel(WARN); err != nil {
		t.Fatal(err)
	}
	if err := l.Debug("quiet"); err != nil {
		t.Fatal(err)
	}
	if err := l.Info("quiet too"); err != nil {
		t.Fatal(err)
	}
	if bb.Len() != 0 {
		t.Fatalf("below-level output leaked: %q", bb.String())
	}
	if err := l.Error("loud", KV("key", "value")); err != nil {
		t.Fatal(err)
	}
	out := bb.String()
	if !strings.Contains(out, `loud`) {
		t.Fatalf("message missing from output: %q", out)
	}
	if !strings.Contains(out, `key="value"`) {
		t.Fatalf("structured data missing from output: %q", out)
	}
}

func TestLevelFromString(t *testing.T) {
	for _, tc := range []struct {
		s    string
		want Level
	}{
		{`OFF`, OFF},
		{`info`, INFO},
		{` WARN `, WARN},
		{`warning`, WARN},
		{`CRITICAL`, CRITICAL},
	} {
		l, err := LevelFromString(tc.s)
		if err != nil {
			t.Fatalf("%q: %v", tc.s, err)
		}
		if l != tc.want {
			t.Fatalf("%q: got %v want %v", tc.s, l, tc.want)
		}
	}
	if _, err := LevelFromString(`noisy`); err == nil {
		t.Fatal("bad level accepted")
	}
}

func TestKVErr(t *testing.T) {
	sd := KVErr(ErrInvalidLevel)
	if sd.Name != `error` || sd.Value != ErrInvalidLevel.Error() {
		t.Fatalf("unexpected param: %+v", sd)
	}
}

func TestMultipleWriters(t *testing.T) {
	var a, b bufCloser
	l := New(&a)
	if err := l.AddWriter(&b); err != nil {
		t.Fatal(err)
	}
	if err := l.Info("both"); err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(a.String(), `both`) || !strings.Contains(b.String(), `both`) {
		t.Fatal("log line did not reach both writers")
	}
}
