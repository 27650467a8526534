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

import "errors"

var (
	// ErrNotFound indicates that the requested record was not found.
	ErrNotFound = errors.New("record not found")

	// ErrTransactionFailed wraps a failed control-plane or tenant store transaction.
	ErrTransactionFailed = errors.New("transaction failed")

	// ErrStorageClosed is returned by stores used after Close.
	ErrStorageClosed = errors.New("storage is closed")

	// ErrInvalidQuery indicates invalid query parameters, such as an empty
	// tenant or a non-positive limit.
	ErrInvalidQuery = errors.New("invalid query parameters")

	// ErrSerializationFailed indicates a record that could not be encoded or decoded.
	ErrSerializationFailed = errors.New("serialization failed")

	// ErrTruncatedData indicates a record shorter than its encoded fields claim.
	ErrTruncatedData = errors.New("truncated data")

	// ErrDimensionMismatch indicates a vector whose length differs from the index.
	ErrDimensionMismatch = errors.New("vector dimension mismatch")

	// ErrTenantMismatch indicates a record addressed to a different tenant's store.
	ErrTenantMismatch = errors.New("record belongs to another tenant")
)
