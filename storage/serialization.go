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
	"github.com/poiesic/scholarquery/core"
)

// MarshalDocument serializes a Document to bytes.
func MarshalDocument(doc *core.Document) []byte {
	buf := make([]byte, core.DocumentMUS.Size(*doc))
	core.DocumentMUS.Marshal(*doc, buf)
	return buf
}

// UnmarshalDocument deserializes a Document from bytes.
func UnmarshalDocument(data []byte) (*core.Document, error) {
	doc, _, err := core.DocumentMUS.Unmarshal(data)
	if err != nil {
		return nil, err
	}
	return &doc, nil
}

// MarshalClustering serializes a Clustering to bytes.
func MarshalClustering(clustering *core.Clustering) []byte {
	buf := make([]byte, core.ClusteringMUS.Size(*clustering))
	core.ClusteringMUS.Marshal(*clustering, buf)
	return buf
}

// UnmarshalClustering deserializes a Clustering from bytes.
func UnmarshalClustering(data []byte) (*core.Clustering, error) {
	clustering, _, err := core.ClusteringMUS.Unmarshal(data)
	if err != nil {
		return nil, err
	}
	return &clustering, nil
}
