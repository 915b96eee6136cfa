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


package core

import "errors"

// Error taxonomy for the retrieval pipeline
var (
	// ErrInvalidArgument indicates malformed request parameters.
	// Surfaced immediately to the caller, never retried.
	ErrInvalidArgument = errors.New("invalid argument")

	// ErrServiceUnavailable indicates an external backend (embedding,
	// generation) was unreachable after the retry policy was exhausted.
	ErrServiceUnavailable = errors.New("service unavailable")

	// ErrGenerationUnavailable indicates the generation service failed after
	// retries. Retrieval results are still returned alongside it.
	ErrGenerationUnavailable = errors.New("generation unavailable")

	// ErrDimensionMismatch indicates a vector of the wrong dimension reached
	// the index. There is no safe fallback; the request fails.
	ErrDimensionMismatch = errors.New("embedding dimension mismatch")

	// ErrInvalidDocument indicates a Document failed validation.
	ErrInvalidDocument = errors.New("invalid document")

	// ErrEmptyDocumentId indicates the Id field is empty.
	ErrEmptyDocumentId = errors.New("document id cannot be empty")

	// ErrEmptyText indicates the Text field is empty.
	ErrEmptyText = errors.New("document text cannot be empty")

	// ErrInvalidTopK indicates a non-positive top-k request size.
	ErrInvalidTopK = errors.New("top_k must be greater than 0")
)
