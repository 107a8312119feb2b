package overlay

import (
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/BuzzLyutic/task-sync-client/internal/model"
)

func samplePage() model.Page {
	return model.Page{
		Items: []model.Task{
			{ID: "1", Title: "A", Status: model.StatusPending},
			{ID: "2", Title: "B", Status: model.StatusPending},
			{ID: "3", Title: "C", Status: model.StatusCompleted},
		},
		Page:       1,
		TotalPages: 1,
		TotalItems: 3,
	}
}

func ids(p model.Page) []string {
	out := make([]string, 0, len(p.Items))
	for _, t := range p.Items {
		out = append(out, t.ID)
	}
	return out
}

func TestProject_EmptyOverlayIsIdentity(t *testing.T) {
	o := New()
	page := samplePage()

	assert.Equal(t, page, o.Project(page))
}

func TestProject_Tombstone(t *testing.T) {
	for _, victim := range []string{"1", "2", "3"} {
		t.Run(victim, func(t *testing.T) {
			o := New()
			page := samplePage()
			o.Apply(victim, Tombstone())

			got := o.Project(page)
			assert.NotContains(t, ids(got), victim)
			assert.Len(t, got.Items, 2)
			assert.Equal(t, page.TotalItems-1, got.TotalItems)
			assert.Equal(t, samplePage(), page, "cached page untouched")
		})
	}
}

func TestProject_Toggle(t *testing.T) {
	o := New()
	page := samplePage()
	o.Apply("1", ToggleTo(model.StatusCompleted))

	got := o.Project(page)
	require.Len(t, got.Items, 3)
	assert.Equal(t, model.StatusCompleted, got.Items[0].Status)
	assert.Equal(t, 3, got.TotalItems)
	assert.Equal(t, model.StatusPending, page.Items[0].Status, "cached page untouched")
}

func TestProject_IgnoresUnknownIDs(t *testing.T) {
	o := New()
	o.Apply("404", Tombstone())
	o.Apply("405", ToggleTo(model.StatusCompleted))

	page := samplePage()
	assert.Equal(t, page, o.Project(page))
}

func TestProject_Combined(t *testing.T) {
	o := New()
	o.Apply("1", ToggleTo(model.StatusCompleted))
	o.Apply("2", Tombstone())
	o.Apply("3", ToggleTo(model.StatusPending))

	want := model.Page{
		Items: []model.Task{
			{ID: "1", Title: "A", Status: model.StatusCompleted},
			{ID: "3", Title: "C", Status: model.StatusPending},
		},
		Page:       1,
		TotalPages: 1,
		TotalItems: 2,
	}

	diff := cmp.Diff(want, o.Project(samplePage()))
	assert.Empty(t, diff, "projected page mismatch")
}

func TestProject_Deterministic(t *testing.T) {
	o := New()
	o.Apply("2", Tombstone())
	o.Apply("3", ToggleTo(model.StatusPending))

	page := samplePage()
	assert.Equal(t, o.Project(page), o.Project(page))
}

func TestApply_LastWriteWins(t *testing.T) {
	o := New()
	o.Apply("1", ToggleTo(model.StatusCompleted))
	o.Apply("1", Tombstone())

	got := o.Project(samplePage())
	assert.Equal(t, []string{"2", "3"}, ids(got))
	for _, task := range got.Items {
		assert.NotEqual(t, "1", task.ID)
	}

	e, ok := o.Get("1")
	require.True(t, ok)
	assert.Equal(t, KindTombstone, e.Kind)
	assert.Equal(t, 1, o.Len())
}

func TestRelease(t *testing.T) {
	o := New()
	toggle := o.Apply("1", ToggleTo(model.StatusCompleted))
	tomb := o.Apply("1", Tombstone())

	assert.False(t, o.Release("1", toggle), "superseded entry is not released")
	assert.True(t, o.Pending("1"))

	assert.True(t, o.Release("1", tomb))
	assert.False(t, o.Pending("1"))
	assert.False(t, o.Release("1", tomb))
}

func TestConfirmAndSettle(t *testing.T) {
	o := New()
	tomb := o.Apply("2", Tombstone())
	o.Apply("3", ToggleTo(model.StatusPending))

	assert.False(t, o.Confirm("2", tomb+100, 4), "unknown token")
	require.True(t, o.Confirm("2", tomb, 4))
	assert.False(t, o.Pending("2"))
	assert.True(t, o.Pending("3"))
	assert.NotContains(t, ids(o.Project(samplePage())), "2", "confirmed entry still projects")

	assert.Zero(t, o.Settle(3), "page from before the confirmation")
	assert.Equal(t, 2, o.Len())

	assert.Equal(t, 1, o.Settle(4))
	assert.Equal(t, 1, o.Len())
	assert.Contains(t, ids(o.Project(samplePage())), "2")
	assert.True(t, o.Pending("3"), "unconfirmed entries survive Settle")
}

func TestConfirm_Superseded(t *testing.T) {
	o := New()
	toggle := o.Apply("1", ToggleTo(model.StatusCompleted))
	o.Apply("1", Tombstone())

	assert.False(t, o.Confirm("1", toggle, 1))
	assert.True(t, o.Pending("1"))
	assert.Zero(t, o.Settle(10))
}

func TestClear(t *testing.T) {
	o := New()
	o.Apply("2", Tombstone())
	o.Clear("2")

	assert.False(t, o.Pending("2"))
	assert.Equal(t, samplePage(), o.Project(samplePage()))
}
