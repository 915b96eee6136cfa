package storage

import (
	"testing"
	"time"

	"github.com/poiesic/scholarquery/core"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMarshalUnmarshalDocument(t *testing.T) {
	doc := &core.Document{
		Id:   "miftah-3-112",
		Text: "a passage about rhetoric",
		Metadata: map[string]string{
			"book":   "Miftah al-Ulum",
			"author": "al-Sakkaki",
			"page":   "112",
		},
		Length:       4,
		Vector:       []float32{0.6, 0.8, 0},
		TopicId:      3,
		TopicVersion: 2,
		InsertedAt:   time.Now().UTC().Truncate(time.Microsecond),
		UpdatedAt:    time.Now().UTC().Truncate(time.Microsecond),
	}

	data := MarshalDocument(doc)
	require.NotEmpty(t, data)

	got, err := UnmarshalDocument(data)
	require.NoError(t, err)
	assert.Equal(t, doc, got)
}

func TestUnmarshalDocument_Corrupt(t *testing.T) {
	_, err := UnmarshalDocument([]byte{0xff})
	assert.Error(t, err)
}

func TestMarshalUnmarshalClustering(t *testing.T) {
	clustering := &core.Clustering{
		Version: 5,
		Clusters: []core.Cluster{
			{Id: 0, Label: "rhetoric/grammar", Centroid: []float32{1, 0, 0}},
			{Id: 1, Label: "law", Centroid: []float32{0, 1, 0}},
		},
		FittedAt: time.Now().UTC().Truncate(time.Microsecond),
	}

	data := MarshalClustering(clustering)
	require.NotEmpty(t, data)

	got, err := UnmarshalClustering(data)
	require.NoError(t, err)
	assert.Equal(t, clustering, got)
}
