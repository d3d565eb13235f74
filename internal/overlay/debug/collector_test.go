package debug

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewCollector_InitiallyDisabled(t *testing.T) {
	c := NewCollector()
	assert.False(t, c.IsEnabled())

	c.BeginFrame(1)
	c.RecordAssociation(AssociationRecord{TrackID: 1})
	assert.Nil(t, c.Emit())
	assert.Nil(t, c.Last())
}

func TestCollector_RecordsFrame(t *testing.T) {
	c := NewCollector()
	c.SetEnabled(true)

	c.RecordSpawn(SpawnRecord{DetectionIndex: 9}) // before BeginFrame: ignored
	c.BeginFrame(42)
	c.RecordAssociation(AssociationRecord{TrackID: 3, DetectionIndex: 0, Label: "car", Distance: 0.05, Accepted: true})
	c.RecordAssociation(AssociationRecord{TrackID: 3, DetectionIndex: 1, Label: "car", Distance: 0.4})
	c.RecordSpawn(SpawnRecord{DetectionIndex: 1, Confidence: 0.8, TrackID: 4})
	c.RecordFade(FadeRecord{TrackID: 2, FadeProgress: 0.5, Alpha: 0.5, Smoothed: 0.6})

	f := c.Emit()
	require.NotNil(t, f)
	assert.Equal(t, uint64(42), f.FrameID)
	assert.Len(t, f.Associations, 2)
	assert.True(t, f.Associations[0].Accepted)
	require.Len(t, f.Spawns, 1)
	assert.Equal(t, uint64(4), f.Spawns[0].TrackID)
	assert.Len(t, f.Fades, 1)

	assert.Same(t, f, c.Last())
	assert.Nil(t, c.Emit(), "second Emit without BeginFrame")
	assert.Same(t, f, c.Last(), "Last survives an empty Emit")
}

func TestCollector_ResetAndDisable(t *testing.T) {
	c := NewCollector()
	c.SetEnabled(true)

	c.BeginFrame(1)
	c.Reset()
	assert.Nil(t, c.Emit())

	c.BeginFrame(2)
	c.SetEnabled(false)
	assert.Nil(t, c.Emit())
}
