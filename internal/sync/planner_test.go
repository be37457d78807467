package sync

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/drivesync/drivesync/internal/drive"
	"github.com/drivesync/drivesync/internal/manifest"
)

func projectedDoc(id, path, modified string) Projected {
	return Projected{
		Item: drive.RemoteItem{ID: id, Name: id, Kind: drive.KindDocument, MimeType: drive.MimeGoogleDoc, ModifiedTime: modified},
		Path: path,
	}
}

func entry(id, path, modified string) manifest.Entry {
	return manifest.Entry{Target: "docs", RemoteID: id, LocalPath: path, ModifiedTime: modified}
}

func TestBuildPlan(t *testing.T) {
	tests := []struct {
		name      string
		projected []Projected
		entries   []manifest.Entry
		want      []string
	}{
		{
			name:      "new item is created",
			projected: []Projected{projectedDoc("D1", "guide.md", t1)},
			want:      []string{"create guide.md"},
		},
		{
			name:      "newer remote is updated",
			projected: []Projected{projectedDoc("D1", "guide.md", t2)},
			entries:   []manifest.Entry{entry("D1", "guide.md", t1)},
			want:      []string{"update guide.md"},
		},
		{
			name:      "equal time is skipped",
			projected: []Projected{projectedDoc("D1", "guide.md", t1)},
			entries:   []manifest.Entry{entry("D1", "guide.md", t1)},
			want:      []string{"skip guide.md"},
		},
		{
			name:      "older remote is skipped",
			projected: []Projected{projectedDoc("D1", "guide.md", t1)},
			entries:   []manifest.Entry{entry("D1", "guide.md", t2)},
			want:      []string{"skip guide.md"},
		},
		{
			name:      "same instant in another zone is skipped",
			projected: []Projected{projectedDoc("D1", "guide.md", "2024-03-01T12:00:00+02:00")},
			entries:   []manifest.Entry{entry("D1", "guide.md", "2024-03-01T10:00:00Z")},
			want:      []string{"skip guide.md"},
		},
		{
			name:      "unparsable times compare as strings",
			projected: []Projected{projectedDoc("D1", "guide.md", "v10")},
			entries:   []manifest.Entry{entry("D1", "guide.md", "v09")},
			want:      []string{"update guide.md"},
		},
		{
			name:      "missing remote is deleted",
			projected: []Projected{projectedDoc("D1", "guide.md", t1)},
			entries:   []manifest.Entry{entry("D1", "guide.md", t1), entry("D2", "faq.md", t1)},
			want:      []string{"skip guide.md", "delete faq.md"},
		},
		{
			name:      "rename creates before deleting",
			projected: []Projected{projectedDoc("D1", "handbook.md", t1)},
			entries:   []manifest.Entry{entry("D1", "guide.md", t1)},
			want:      []string{"create handbook.md", "delete guide.md"},
		},
		{
			name:      "swapped names never delete a new file",
			projected: []Projected{projectedDoc("D1", "b.md", t1), projectedDoc("D2", "a.md", t1)},
			entries:   []manifest.Entry{entry("D1", "a.md", t1), entry("D2", "b.md", t1)},
			want:      []string{"create b.md", "create a.md"},
		},
		{
			name:      "empty manifest and empty tree",
			want:      []string{},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			plan := BuildPlan(tt.projected, manifest.NewSnapshot("docs", 3, tt.entries))
			assert.Equal(t, tt.want, actionSummary(plan))
			assert.Equal(t, "docs", plan.Target)
			assert.Equal(t, int64(3), plan.Generation)
		})
	}
}

func TestBuildPlan_WritesPrecedeDeletes(t *testing.T) {
	projected := []Projected{
		projectedDoc("D1", "a.md", t2),
		projectedDoc("D3", "c.md", t1),
		projectedDoc("D4", "moved/d.md", t1),
	}
	entries := []manifest.Entry{
		entry("D1", "a.md", t1),
		entry("D2", "b.md", t1),
		entry("D4", "d.md", t1),
	}

	plan := BuildPlan(projected, manifest.NewSnapshot("docs", 0, entries))

	lastWrite, firstDelete := -1, len(plan.Actions)
	for i, a := range plan.Actions {
		if a.isWrite() {
			lastWrite = i
		}
		if a.Kind == ActionDelete && i < firstDelete {
			firstDelete = i
		}
	}
	assert.Less(t, lastWrite, firstDelete)
	assert.Equal(t, 1, plan.Count(ActionUpdate))
	assert.Equal(t, 2, plan.Count(ActionCreate))
	assert.Equal(t, 2, plan.Count(ActionDelete))
	assert.True(t, plan.HasChanges())
	assert.Len(t, plan.Changes(), 5)
}

func TestBuildPlan_DeleteFlags(t *testing.T) {
	// D1 moved away from guide.md, D2 was removed remotely and D3 now owns
	// its old path
	projected := []Projected{
		projectedDoc("D1", "handbook.md", t1),
		projectedDoc("D3", "faq.md", t1),
	}
	entries := []manifest.Entry{
		entry("D1", "guide.md", t1),
		entry("D2", "faq.md", t1),
	}

	plan := BuildPlan(projected, manifest.NewSnapshot("docs", 0, entries))
	deletes := map[string]Action{}
	for _, a := range plan.Actions {
		if a.Kind == ActionDelete {
			deletes[a.RemoteID()] = a
		}
	}
	require.Len(t, deletes, 2)
	assert.True(t, deletes["D1"].Renamed)
	assert.False(t, deletes["D1"].PathClaimed)
	assert.False(t, deletes["D2"].Renamed)
	assert.True(t, deletes["D2"].PathClaimed)
}

func TestBuildPlan_DeletionDetection(t *testing.T) {
	projected := []Projected{projectedDoc("D1", "a.md", t1), projectedDoc("D3", "c.md", t1)}
	entries := []manifest.Entry{entry("D1", "a.md", t1), entry("D2", "b.md", t1), entry("D3", "c.md", t1)}

	plan := BuildPlan(projected, manifest.NewSnapshot("docs", 0, entries))
	require.Equal(t, 1, plan.Count(ActionDelete))
	assert.Equal(t, []string{"skip a.md", "skip c.md", "delete b.md"}, actionSummary(plan))
}

func TestBuildPlan_AdoptsRebuiltEntries(t *testing.T) {
	projected := []Projected{projectedDoc("D1", "guide.md", t1)}
	entries := []manifest.Entry{entry("D1", "guide.md", t1)}

	plan := BuildPlan(projected, manifest.NewSnapshot("docs", 0, entries))
	require.Len(t, plan.Actions, 1)
	assert.False(t, plan.Actions[0].Adopt)

	rebuilt := manifest.NewSnapshot("docs", 0, entries)
	rebuilt.Rebuilt = true
	plan = BuildPlan(projected, rebuilt)
	require.Len(t, plan.Actions, 1)
	assert.Equal(t, ActionSkip, plan.Actions[0].Kind)
	assert.True(t, plan.Actions[0].Adopt)
}
