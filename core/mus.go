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

import (
	"time"

	"github.com/mus-format/mus-go"
	"github.com/mus-format/mus-go/ord"
	"github.com/mus-format/mus-go/raw"
	"github.com/mus-format/mus-go/varint"
)

// Hand-written MUS serializers for the persisted domain types.
// Field order is part of the storage format; append new fields at the end.
var (
	IDMUS         = idSer{}
	DocumentMUS   = documentSer{}
	ClusterMUS    = clusterSer{}
	ClusteringMUS = clusteringSer{}

	vectorMUS   = ord.NewSliceSer[float32](raw.Float32)
	metadataMUS = ord.NewMapSer[string, string](ord.String, ord.String)
	clustersMUS = ord.NewSliceSer[Cluster](ClusterMUS)
	timeMUS     = timeSer{}
)

var (
	_ mus.Serializer[ID]         = IDMUS
	_ mus.Serializer[Document]   = DocumentMUS
	_ mus.Serializer[Cluster]    = ClusterMUS
	_ mus.Serializer[Clustering] = ClusteringMUS
)

type idSer struct{}

func (idSer) Marshal(id ID, bs []byte) int {
	return varint.Uint64.Marshal(uint64(id), bs)
}

func (idSer) Unmarshal(bs []byte) (ID, int, error) {
	v, n, err := varint.Uint64.Unmarshal(bs)
	return ID(v), n, err
}

func (idSer) Size(id ID) int {
	return varint.Uint64.Size(uint64(id))
}

func (idSer) Skip(bs []byte) (int, error) {
	return varint.Uint64.Skip(bs)
}

// timeSer stores timestamps as Unix microseconds.
type timeSer struct{}

func (timeSer) Marshal(t time.Time, bs []byte) int {
	return varint.Int64.Marshal(t.UnixMicro(), bs)
}

func (timeSer) Unmarshal(bs []byte) (time.Time, int, error) {
	us, n, err := varint.Int64.Unmarshal(bs)
	if err != nil {
		return time.Time{}, n, err
	}
	return time.UnixMicro(us).UTC(), n, nil
}

func (timeSer) Size(t time.Time) int {
	return varint.Int64.Size(t.UnixMicro())
}

func (timeSer) Skip(bs []byte) (int, error) {
	return varint.Int64.Skip(bs)
}

type documentSer struct{}

func (documentSer) Marshal(d Document, bs []byte) (n int) {
	n = ord.String.Marshal(d.Id, bs)
	n += ord.String.Marshal(d.Text, bs[n:])
	n += metadataMUS.Marshal(d.Metadata, bs[n:])
	n += varint.Int.Marshal(d.Length, bs[n:])
	n += vectorMUS.Marshal(d.Vector, bs[n:])
	n += varint.Int32.Marshal(d.TopicId, bs[n:])
	n += varint.Uint64.Marshal(d.TopicVersion, bs[n:])
	n += timeMUS.Marshal(d.InsertedAt, bs[n:])
	n += timeMUS.Marshal(d.UpdatedAt, bs[n:])
	return n
}

func (documentSer) Unmarshal(bs []byte) (d Document, n int, err error) {
	var n1 int
	if d.Id, n, err = ord.String.Unmarshal(bs); err != nil {
		return
	}
	if d.Text, n1, err = ord.String.Unmarshal(bs[n:]); err != nil {
		return d, n + n1, err
	}
	n += n1
	if d.Metadata, n1, err = metadataMUS.Unmarshal(bs[n:]); err != nil {
		return d, n + n1, err
	}
	n += n1
	if d.Length, n1, err = varint.Int.Unmarshal(bs[n:]); err != nil {
		return d, n + n1, err
	}
	n += n1
	if d.Vector, n1, err = vectorMUS.Unmarshal(bs[n:]); err != nil {
		return d, n + n1, err
	}
	n += n1
	if d.TopicId, n1, err = varint.Int32.Unmarshal(bs[n:]); err != nil {
		return d, n + n1, err
	}
	n += n1
	if d.TopicVersion, n1, err = varint.Uint64.Unmarshal(bs[n:]); err != nil {
		return d, n + n1, err
	}
	n += n1
	if d.InsertedAt, n1, err = timeMUS.Unmarshal(bs[n:]); err != nil {
		return d, n + n1, err
	}
	n += n1
	if d.UpdatedAt, n1, err = timeMUS.Unmarshal(bs[n:]); err != nil {
		return d, n + n1, err
	}
	n += n1
	return d, n, nil
}

func (documentSer) Size(d Document) (size int) {
	size = ord.String.Size(d.Id)
	size += ord.String.Size(d.Text)
	size += metadataMUS.Size(d.Metadata)
	size += varint.Int.Size(d.Length)
	size += vectorMUS.Size(d.Vector)
	size += varint.Int32.Size(d.TopicId)
	size += varint.Uint64.Size(d.TopicVersion)
	size += timeMUS.Size(d.InsertedAt)
	size += timeMUS.Size(d.UpdatedAt)
	return size
}

func (s documentSer) Skip(bs []byte) (n int, err error) {
	_, n, err = s.Unmarshal(bs)
	return n, err
}

type clusterSer struct{}

func (clusterSer) Marshal(c Cluster, bs []byte) (n int) {
	n = varint.Int32.Marshal(c.Id, bs)
	n += ord.String.Marshal(c.Label, bs[n:])
	n += vectorMUS.Marshal(c.Centroid, bs[n:])
	return n
}

func (clusterSer) Unmarshal(bs []byte) (c Cluster, n int, err error) {
	var n1 int
	if c.Id, n, err = varint.Int32.Unmarshal(bs); err != nil {
		return
	}
	if c.Label, n1, err = ord.String.Unmarshal(bs[n:]); err != nil {
		return c, n + n1, err
	}
	n += n1
	if c.Centroid, n1, err = vectorMUS.Unmarshal(bs[n:]); err != nil {
		return c, n + n1, err
	}
	n += n1
	return c, n, nil
}

func (clusterSer) Size(c Cluster) int {
	return varint.Int32.Size(c.Id) + ord.String.Size(c.Label) + vectorMUS.Size(c.Centroid)
}

func (s clusterSer) Skip(bs []byte) (n int, err error) {
	_, n, err = s.Unmarshal(bs)
	return n, err
}

type clusteringSer struct{}

func (clusteringSer) Marshal(c Clustering, bs []byte) (n int) {
	n = varint.Uint64.Marshal(c.Version, bs)
	n += clustersMUS.Marshal(c.Clusters, bs[n:])
	n += timeMUS.Marshal(c.FittedAt, bs[n:])
	return n
}

func (clusteringSer) Unmarshal(bs []byte) (c Clustering, n int, err error) {
	var n1 int
	if c.Version, n, err = varint.Uint64.Unmarshal(bs); err != nil {
		return
	}
	if c.Clusters, n1, err = clustersMUS.Unmarshal(bs[n:]); err != nil {
		return c, n + n1, err
	}
	n += n1
	if c.FittedAt, n1, err = timeMUS.Unmarshal(bs[n:]); err != nil {
		return c, n + n1, err
	}
	n += n1
	return c, n, nil
}

func (clusteringSer) Size(c Clustering) int {
	return varint.Uint64.Size(c.Version) + clustersMUS.Size(c.Clusters) + timeMUS.Size(c.FittedAt)
}

func (s clusteringSer) Skip(bs []byte) (n int, err error) {
	_, n, err = s.Unmarshal(bs)
	return n, err
}
