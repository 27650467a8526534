// Copyright 2025 Poiesic Systems
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

//go:build linux || darwin

package synth

import (
	"bufio"
	"os"
	"runtime/debug"
	"strconv"
	"strings"

	"golang.org/x/sys/unix"
)

// defaultDataInUse is assumed when the data segment size cannot be read.
const defaultDataInUse = 64 << 20

// limitMemory caps the data segment at its current size plus budget bytes.
// Allocations past the cap make the Go runtime abort the process.
func limitMemory(budget int64) error {
	debug.SetMemoryLimit(budget)

	var cur unix.Rlimit
	if err := unix.Getrlimit(unix.RLIMIT_DATA, &cur); err != nil {
		return err
	}
	limit := dataInUse() + uint64(budget)
	if cur.Max != unix.RLIM_INFINITY && limit > cur.Max {
		limit = cur.Max
	}
	return unix.Setrlimit(unix.RLIMIT_DATA, &unix.Rlimit{Cur: limit, Max: limit})
}

// dataInUse reads VmData from /proc/self/status.
func dataInUse() uint64 {
	f, err := os.Open("/proc/self/status")
	if err != nil {
		return defaultDataInUse
	}
	defer f.Close()
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		fields := strings.Fields(sc.Text())
		if len(fields) == 3 && fields[0] == "VmData:" && fields[2] == "kB" {
			if kb, err := strconv.ParseUint(fields[1], 10, 64); err == nil {
				return kb << 10
			}
		}
	}
	return defaultDataInUse
}
