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

package storage

import (
	"fmt"
	"slices"
	"time"

	"github.com/mus-format/mus-go/ord"
	"github.com/mus-format/mus-go/raw"
	"github.com/mus-format/mus-go/varint"
	"github.com/poiesic/ingestor/core"
)

// Records are encoded as a version byte followed by MUS-encoded fields in
// declaration order. Times are stored as Unix microseconds, zero meaning unset.
const recordVersion = 1

// fieldSink is implemented by a sizing pass and a writing pass so each record
// layout is described once.
type fieldSink interface {
	str(v string)
	i64(v int64)
	u64(v uint64)
	flag(v bool)
	vec(v []float32)
}

type sizer struct{ n int }

func (s *sizer) str(v string) { s.n += ord.String.Size(v) }
func (s *sizer) i64(v int64)  { s.n += varint.Int64.Size(v) }
func (s *sizer) u64(v uint64) { s.n += varint.Uint64.Size(v) }
func (s *sizer) flag(v bool)  { s.n += ord.Bool.Size(v) }
func (s *sizer) vec(v []float32) {
	s.n += varint.Uint64.Size(uint64(len(v)))
	for _, f := range v {
		s.n += raw.Float32.Size(f)
	}
}

type writer struct {
	bs []byte
	n  int
}

func (w *writer) str(v string) { w.n += ord.String.Marshal(v, w.bs[w.n:]) }
func (w *writer) i64(v int64)  { w.n += varint.Int64.Marshal(v, w.bs[w.n:]) }
func (w *writer) u64(v uint64) { w.n += varint.Uint64.Marshal(v, w.bs[w.n:]) }
func (w *writer) flag(v bool)  { w.n += ord.Bool.Marshal(v, w.bs[w.n:]) }
func (w *writer) vec(v []float32) {
	w.n += varint.Uint64.Marshal(uint64(len(v)), w.bs[w.n:])
	for _, f := range v {
		w.n += raw.Float32.Marshal(f, w.bs[w.n:])
	}
}

// reader decodes fields in order and keeps the first error.
type reader struct {
	bs  []byte
	n   int
	err error
}

func (r *reader) str() string {
	if r.err != nil {
		return ""
	}
	v, n, err := ord.String.Unmarshal(r.bs[r.n:])
	r.n += n
	r.err = err
	return v
}

func (r *reader) i64() int64 {
	if r.err != nil {
		return 0
	}
	v, n, err := varint.Int64.Unmarshal(r.bs[r.n:])
	r.n += n
	r.err = err
	return v
}

func (r *reader) u64() uint64 {
	if r.err != nil {
		return 0
	}
	v, n, err := varint.Uint64.Unmarshal(r.bs[r.n:])
	r.n += n
	r.err = err
	return v
}

func (r *reader) flag() bool {
	if r.err != nil {
		return false
	}
	v, n, err := ord.Bool.Unmarshal(r.bs[r.n:])
	r.n += n
	r.err = err
	return v
}

func (r *reader) vec() []float32 {
	count := r.u64()
	if r.err != nil {
		return nil
	}
	if count > uint64(len(r.bs)-r.n) {
		r.err = ErrTruncatedData
		return nil
	}
	v := make([]float32, count)
	for i := range v {
		if r.err != nil {
			return nil
		}
		var n int
		v[i], n, r.err = raw.Float32.Unmarshal(r.bs[r.n:])
		r.n += n
	}
	return v
}

func (r *reader) int() int              { return int(r.i64()) }
func (r *reader) time() time.Time       { return fromMicros(r.i64()) }
func (r *reader) tenant() core.TenantID { return core.TenantID(r.str()) }

func toMicros(t time.Time) int64 {
	if t.IsZero() {
		return 0
	}
	return t.UnixMicro()
}

func fromMicros(v int64) time.Time {
	if v == 0 {
		return time.Time{}
	}
	return time.UnixMicro(v).UTC()
}

func strMap(s fieldSink, m map[string]string) {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	s.u64(uint64(len(keys)))
	for _, k := range keys {
		s.str(k)
		s.str(m[k])
	}
}

func (r *reader) strMap() map[string]string {
	count := r.u64()
	if r.err != nil || count == 0 {
		return nil
	}
	if count > uint64(len(r.bs)-r.n) {
		r.err = ErrTruncatedData
		return nil
	}
	m := make(map[string]string, count)
	for range count {
		k := r.str()
		m[k] = r.str()
	}
	return m
}

func marshal(encode func(fieldSink)) []byte {
	sz := &sizer{n: 1}
	encode(sz)
	w := &writer{bs: make([]byte, sz.n), n: 1}
	w.bs[0] = recordVersion
	encode(w)
	return w.bs
}

func newReader(data []byte) (*reader, error) {
	if len(data) == 0 {
		return nil, fmt.Errorf("%w: %w", ErrSerializationFailed, ErrTruncatedData)
	}
	if data[0] != recordVersion {
		return nil, fmt.Errorf("%w: unsupported record version %d", ErrSerializationFailed, data[0])
	}
	return &reader{bs: data, n: 1}, nil
}

func finish(r *reader) error {
	if r.err != nil {
		return fmt.Errorf("%w: %w", ErrSerializationFailed, r.err)
	}
	return nil
}

func encodeSourceFile(s fieldSink, f *core.SourceFile) {
	s.u64(uint64(f.Id))
	s.str(string(f.TenantID))
	s.str(f.ObjectKey)
	s.str(f.ContentHash)
	s.i64(f.Size)
	s.str(f.Signature)
	s.i64(int64(f.State))
	s.i64(int64(f.Attempts))
	s.str(f.LastError)
	s.str(f.JobID)
	s.str(f.DocID)
	s.flag(f.Degraded)
	s.flag(f.DeadLettered)
	s.i64(toMicros(f.DiscoveredAt))
	s.i64(toMicros(f.UpdatedAt))
}

// MarshalSourceFile serializes a SourceFile to bytes.
func MarshalSourceFile(f *core.SourceFile) []byte {
	return marshal(func(s fieldSink) { encodeSourceFile(s, f) })
}

// UnmarshalSourceFile deserializes a SourceFile from bytes.
func UnmarshalSourceFile(data []byte) (*core.SourceFile, error) {
	r, err := newReader(data)
	if err != nil {
		return nil, err
	}
	f := &core.SourceFile{
		Id:           core.ID(r.u64()),
		TenantID:     r.tenant(),
		ObjectKey:    r.str(),
		ContentHash:  r.str(),
		Size:         r.i64(),
		Signature:    r.str(),
		State:        core.FileState(r.i64()),
		Attempts:     r.int(),
		LastError:    r.str(),
		JobID:        r.str(),
		DocID:        r.str(),
		Degraded:     r.flag(),
		DeadLettered: r.flag(),
		DiscoveredAt: r.time(),
		UpdatedAt:    r.time(),
	}
	if err := finish(r); err != nil {
		return nil, err
	}
	return f, nil
}

func encodeJob(s fieldSink, j *core.IngestionJob) {
	s.str(j.ID)
	s.str(string(j.TenantID))
	s.str(j.Source.Kind)
	s.str(j.Source.Root)
	s.u64(uint64(len(j.Source.Prefixes)))
	for _, p := range j.Source.Prefixes {
		s.str(p)
	}
	s.flag(j.Source.Recursive)
	s.i64(int64(j.Status))
	c := j.Counts
	for _, v := range []int{c.Discovered, c.Skipped, c.Unreadable, c.Extracted, c.Degraded, c.Failed, c.Loaded, c.DeadLettered, c.FailedAttempts} {
		s.i64(int64(v))
	}
	s.str(j.Error)
	s.i64(toMicros(j.StartedAt))
	s.i64(toMicros(j.CompletedAt))
	s.i64(toMicros(j.UpdatedAt))
}

// MarshalJob serializes an IngestionJob to bytes.
func MarshalJob(j *core.IngestionJob) []byte {
	return marshal(func(s fieldSink) { encodeJob(s, j) })
}

// UnmarshalJob deserializes an IngestionJob from bytes.
func UnmarshalJob(data []byte) (*core.IngestionJob, error) {
	r, err := newReader(data)
	if err != nil {
		return nil, err
	}
	j := &core.IngestionJob{
		ID:       r.str(),
		TenantID: r.tenant(),
	}
	j.Source.Kind = r.str()
	j.Source.Root = r.str()
	if count := r.u64(); r.err == nil && count > 0 {
		if count > uint64(len(data)) {
			return nil, fmt.Errorf("%w: %w", ErrSerializationFailed, ErrTruncatedData)
		}
		j.Source.Prefixes = make([]string, count)
		for i := range j.Source.Prefixes {
			j.Source.Prefixes[i] = r.str()
		}
	}
	j.Source.Recursive = r.flag()
	j.Status = core.JobStatus(r.i64())
	j.Counts = core.JobCounts{
		Discovered:     r.int(),
		Skipped:        r.int(),
		Unreadable:     r.int(),
		Extracted:      r.int(),
		Degraded:       r.int(),
		Failed:         r.int(),
		Loaded:         r.int(),
		DeadLettered:   r.int(),
		FailedAttempts: r.int(),
	}
	j.Error = r.str()
	j.StartedAt = r.time()
	j.CompletedAt = r.time()
	j.UpdatedAt = r.time()
	if err := finish(r); err != nil {
		return nil, err
	}
	return j, nil
}

func encodeHandler(s fieldSink, h *core.HandlerRecord) {
	s.str(string(h.TenantID))
	s.str(h.Signature)
	s.i64(int64(h.Origin))
	s.i64(int64(h.State))
	s.str(h.Code)
	s.i64(int64(h.Version))
	s.str(h.Reason)
	s.i64(toMicros(h.CreatedAt))
	s.i64(toMicros(h.UpdatedAt))
}

// MarshalHandler serializes a HandlerRecord to bytes.
func MarshalHandler(h *core.HandlerRecord) []byte {
	return marshal(func(s fieldSink) { encodeHandler(s, h) })
}

// UnmarshalHandler deserializes a HandlerRecord from bytes.
func UnmarshalHandler(data []byte) (*core.HandlerRecord, error) {
	r, err := newReader(data)
	if err != nil {
		return nil, err
	}
	h := &core.HandlerRecord{
		TenantID:  r.tenant(),
		Signature: r.str(),
		Origin:    core.HandlerOrigin(r.i64()),
		State:     core.SynthesisState(r.i64()),
		Code:      r.str(),
		Version:   r.int(),
		Reason:    r.str(),
		CreatedAt: r.time(),
		UpdatedAt: r.time(),
	}
	if err := finish(r); err != nil {
		return nil, err
	}
	return h, nil
}

func encodeDeadLetter(s fieldSink, d *core.DeadLetter) {
	s.str(string(d.TenantID))
	s.str(d.JobID)
	s.u64(uint64(d.SourceFileID))
	s.str(d.ObjectKey)
	s.i64(int64(d.State))
	s.i64(int64(d.Attempts))
	s.str(d.Error)
	s.i64(toMicros(d.At))
}

// MarshalDeadLetter serializes a DeadLetter to bytes.
func MarshalDeadLetter(d *core.DeadLetter) []byte {
	return marshal(func(s fieldSink) { encodeDeadLetter(s, d) })
}

// UnmarshalDeadLetter deserializes a DeadLetter from bytes.
func UnmarshalDeadLetter(data []byte) (*core.DeadLetter, error) {
	r, err := newReader(data)
	if err != nil {
		return nil, err
	}
	d := &core.DeadLetter{
		TenantID:     r.tenant(),
		JobID:        r.str(),
		SourceFileID: core.ID(r.u64()),
		ObjectKey:    r.str(),
		State:        core.FileState(r.i64()),
		Attempts:     r.int(),
		Error:        r.str(),
		At:           r.time(),
	}
	if err := finish(r); err != nil {
		return nil, err
	}
	return d, nil
}

// MarshalVectorEntry serializes a VectorEntry to bytes.
func MarshalVectorEntry(e *VectorEntry) []byte {
	return marshal(func(s fieldSink) {
		s.str(e.ChunkID)
		s.str(e.DocID)
		s.str(string(e.Category))
		s.vec(e.Vector)
	})
}

// UnmarshalVectorEntry deserializes a VectorEntry from bytes.
func UnmarshalVectorEntry(data []byte) (*VectorEntry, error) {
	r, err := newReader(data)
	if err != nil {
		return nil, err
	}
	e := &VectorEntry{
		ChunkID:  r.str(),
		DocID:    r.str(),
		Category: core.Category(r.str()),
		Vector:   r.vec(),
	}
	if err := finish(r); err != nil {
		return nil, err
	}
	return e, nil
}

// MarshalMetadata serializes a string map with sorted keys.
func MarshalMetadata(m map[string]string) []byte {
	return marshal(func(s fieldSink) { strMap(s, m) })
}

// UnmarshalMetadata deserializes a string map written by MarshalMetadata.
func UnmarshalMetadata(data []byte) (map[string]string, error) {
	r, err := newReader(data)
	if err != nil {
		return nil, err
	}
	m := r.strMap()
	if err := finish(r); err != nil {
		return nil, err
	}
	return m, nil
}
