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


// Package ai provides abstractions for the external AI services used by
// ScholarQuery.
//
// This package defines interfaces for text embedding, answer generation, and
// secondary relevance scoring. The retrieval pipeline depends on these
// abstractions rather than on concrete providers, so external services can be
// swapped or mocked without touching the core.
//
// # Interfaces
//
//   - Embedder: generates unit-norm vector embeddings from text
//   - Generator: produces grounded answers from assembled prompts
//   - Scorer: computes cross-encoder style relevance scores for reranking
//   - AIProvider: aggregates the services for convenient initialization
//
// # Implementation Packages
//
//   - ai/openai: production implementation using OpenAI-compatible APIs
//   - ai/mock: test doubles for unit testing without external dependencies
//
// Public constructors (openai.NewProvider, openai.NewEmbedder, ...) return
// interface types to enforce abstraction. Mock constructors return concrete
// types so tests can inject behavior and assert call counts.
package ai
