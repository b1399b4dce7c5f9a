// Copyright 2024 The Cockroach Authors.
//
// Use of this software is governed by the CockroachDB Software License
// included in the /LICENSE file.

package envutil

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/cockroachdb/oplogrepl/pkg/util/humanizeutil"
)

// All environment knobs read through this package share a common prefix so
// that a stray variable from some other program can never change our
// behavior unnoticed.
const prefix = "OPLOGREPL_"

func checkVarName(name string) {
	if !strings.HasPrefix(name, prefix) {
		panic(fmt.Sprintf("environment variable %q does not start with %q", name, prefix))
	}
	for _, c := range name {
		if c != '_' && !(c >= '0' && c <= '9') && !(c >= 'A' && c <= 'Z') {
			panic(fmt.Sprintf("invalid environment variable name %q", name))
		}
	}
}

// EnvString returns the value set by the specified environment variable. The
// empty string and false are returned if the variable is not set.
func EnvString(name string) (string, bool) {
	checkVarName(name)
	return os.LookupEnv(name)
}

// EnvOrDefaultInt returns the value set by the specified environment
// variable, if any, otherwise the specified default value.
func EnvOrDefaultInt(name string, value int) int {
	if str, present := EnvString(name); present {
		v, err := strconv.ParseInt(str, 0, 0)
		if err != nil {
			panic(fmt.Sprintf("error parsing %s: %v", name, err))
		}
		return int(v)
	}
	return value
}

// EnvOrDefaultInt64 returns the value set by the specified environment
// variable, if any, otherwise the specified default value.
func EnvOrDefaultInt64(name string, value int64) int64 {
	if str, present := EnvString(name); present {
		v, err := strconv.ParseInt(str, 0, 64)
		if err != nil {
			panic(fmt.Sprintf("error parsing %s: %v", name, err))
		}
		return v
	}
	return value
}

// EnvOrDefaultDuration returns the value set by the specified environment
// variable, if any, otherwise the specified default value.
func EnvOrDefaultDuration(name string, value time.Duration) time.Duration {
	if str, present := EnvString(name); present {
		v, err := time.ParseDuration(str)
		if err != nil {
			panic(fmt.Sprintf("error parsing %s: %v", name, err))
		}
		return v
	}
	return value
}

// EnvOrDefaultBytes returns the value set by the specified environment
// variable interpreted as a byte size ("64MiB", "1GB", plain integers), if
// any, otherwise the specified default value.
func EnvOrDefaultBytes(name string, value int64) int64 {
	if str, present := EnvString(name); present {
		v, err := humanizeutil.ParseBytes(str)
		if err != nil {
			panic(fmt.Sprintf("error parsing %s: %v", name, err))
		}
		return v
	}
	return value
}
