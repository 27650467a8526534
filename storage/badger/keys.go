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

package badger

import (
	"encoding/binary"
	"math"
	"time"

	"github.com/poiesic/ingestor/core"
)

// Key prefixes for different data types.
// Tenant IDs never contain ':' so they are safe as key segments.
const (
	sourceFilePrefix = "srcf"
	sourceHashPrefix = "srch"
	jobPrefix        = "job"
	jobTenantPrefix  = "jobt"
	handlerPrefix    = "hndl"
	deadLetterPrefix = "dlq"
	vectorPrefix     = "vec"
	vectorDocPrefix  = "vdoc"
)

func join(parts ...string) []byte {
	size := 0
	for _, p := range parts {
		size += len(p) + 1
	}
	buf := make([]byte, 0, size)
	for i, p := range parts {
		if i > 0 {
			buf = append(buf, ':')
		}
		buf = append(buf, p...)
	}
	return buf
}

// makeSourceFileKey generates a key for a source file.
// Format: srcf:tenant:objectKey
func makeSourceFileKey(tenant core.TenantID, objectKey string) []byte {
	return join(sourceFilePrefix, string(tenant), objectKey)
}

// makeSourceFileTenantPrefix generates the prefix for all files of a tenant.
func makeSourceFileTenantPrefix(tenant core.TenantID) []byte {
	return join(sourceFilePrefix, string(tenant), "")
}

// makeSourceHashKey generates the content hash index key.
// Format: srch:tenant:hash -> objectKey
func makeSourceHashKey(tenant core.TenantID, hash string) []byte {
	return join(sourceHashPrefix, string(tenant), hash)
}

// makeJobKey generates a key for a job by ID.
func makeJobKey(id string) []byte {
	return join(jobPrefix, id)
}

// makeJobTenantKey generates the tenant index key for a job.
// Format: jobt:tenant:<inverted start micros>:id, so a prefix scan yields newest first.
func makeJobTenantKey(tenant core.TenantID, started time.Time, id string) []byte {
	prefix := makeJobTenantPrefix(tenant)
	buf := make([]byte, len(prefix), len(prefix)+8+1+len(id))
	copy(buf, prefix)
	buf = binary.BigEndian.AppendUint64(buf, math.MaxUint64-uint64(started.UnixMicro()))
	buf = append(buf, ':')
	return append(buf, id...)
}

func makeJobTenantPrefix(tenant core.TenantID) []byte {
	return join(jobTenantPrefix, string(tenant), "")
}

// makeHandlerKey generates a key for a synthesized handler.
// Format: hndl:tenant:signature
func makeHandlerKey(tenant core.TenantID, signature string) []byte {
	return join(handlerPrefix, string(tenant), signature)
}

func makeHandlerTenantPrefix(tenant core.TenantID) []byte {
	return join(handlerPrefix, string(tenant), "")
}

// makeDeadLetterKey generates a key for a dead letter.
// Format: dlq:tenant:<micros>:sourceFileID, BigEndian so scans are chronological.
func makeDeadLetterKey(tenant core.TenantID, at time.Time, fileID core.ID) []byte {
	prefix := makeDeadLetterTenantPrefix(tenant)
	buf := make([]byte, len(prefix), len(prefix)+16)
	copy(buf, prefix)
	buf = binary.BigEndian.AppendUint64(buf, uint64(at.UnixMicro()))
	return binary.BigEndian.AppendUint64(buf, uint64(fileID))
}

func makeDeadLetterTenantPrefix(tenant core.TenantID) []byte {
	return join(deadLetterPrefix, string(tenant), "")
}

// makeVectorKey generates a key for a chunk vector.
func makeVectorKey(chunkID string) []byte {
	return join(vectorPrefix, chunkID)
}

// makeVectorDocKey indexes a chunk vector under its document.
// Format: vdoc:docID:chunkID
func makeVectorDocKey(docID, chunkID string) []byte {
	return join(vectorDocPrefix, docID, chunkID)
}

func makeVectorDocPrefix(docID string) []byte {
	return join(vectorDocPrefix, docID, "")
}
