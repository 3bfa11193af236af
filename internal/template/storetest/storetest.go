// Package storetest holds behaviour tests shared by every template.Store
// backend.
package storetest

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/aspcranes/quotegen/internal/template"
)

// Factory returns an empty store for one subtest.
type Factory func(t *testing.T) template.Store

// Run exercises the Store contract against stores built by newStore.
func Run(t *testing.T, newStore Factory) {
	tests := []struct {
		name string
		fn   func(t *testing.T, s template.Store)
	}{
		{"CreateAndGet", testCreateAndGet},
		{"GetNotFound", testGetNotFound},
		{"UpdateIncrementsVersion", testUpdateIncrementsVersion},
		{"UpdateConflict", testUpdateConflict},
		{"PatchConflictDoesNotWrite", testPatchConflict},
		{"PatchMergesFields", testPatchMergesFields},
		{"SetDefaultUnique", testSetDefaultUnique},
		{"SetDefaultConcurrent", testSetDefaultConcurrent},
		{"SetDefaultInactive", testSetDefaultInactive},
		{"SoftDeleteHidesFromList", testSoftDelete},
		{"ListFilters", testListFilters},
		{"Versions", testVersions},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tt.fn(t, newStore(t))
		})
	}
}

func create(t *testing.T, s template.Store, name, scope string) *template.Template {
	t.Helper()
	tmpl := template.NewBuilder(template.Meta{Name: name, Category: scope}).
		AddElement(template.ElementHeader, &template.HeaderContent{Title: name}).
		AddElement(template.ElementText, &template.TextContent{Text: "{{client.name}}"}).
		Build()
	if err := s.Create(context.Background(), tmpl); err != nil {
		t.Fatalf("Create(%s) error = %v", name, err)
	}
	return tmpl
}

func testCreateAndGet(t *testing.T, s template.Store) {
	ctx := context.Background()
	created := create(t, s, "standard", "")

	if created.ID == "" {
		t.Fatal("Create() did not set ID")
	}
	if created.Version != 1 {
		t.Errorf("Create() version = %d, want 1", created.Version)
	}
	if !created.IsActive {
		t.Error("Create() did not activate template")
	}

	got, err := s.Get(ctx, created.ID)
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if got.Name != "standard" {
		t.Errorf("Get() name = %q, want standard", got.Name)
	}
	if got.Category != template.DefaultScope {
		t.Errorf("Get() category = %q, want %q", got.Category, template.DefaultScope)
	}
	if len(got.Elements) != 2 {
		t.Fatalf("Get() elements = %d, want 2", len(got.Elements))
	}
	header, ok := got.Elements[0].Body().(*template.HeaderContent)
	if !ok || header.Title != "standard" {
		t.Errorf("Get() header content = %#v", got.Elements[0].Content)
	}
	if got.Elements[0].ID == "" {
		t.Error("stored element has no id")
	}
}

func testGetNotFound(t *testing.T, s template.Store) {
	_, err := s.Get(context.Background(), "00000000-0000-0000-0000-000000000000")
	if !errors.Is(err, template.ErrTemplateNotFound) {
		t.Errorf("Get() error = %v, want ErrTemplateNotFound", err)
	}
}

func testUpdateIncrementsVersion(t *testing.T, s template.Store) {
	ctx := context.Background()
	tmpl := create(t, s, "standard", "")
	createdAt := tmpl.CreatedAt

	for want := 2; want <= 4; want++ {
		tmpl.Description = "revision"
		if err := s.Update(ctx, tmpl, tmpl.Version); err != nil {
			t.Fatalf("Update() error = %v", err)
		}
		if tmpl.Version != want {
			t.Errorf("Update() version = %d, want %d", tmpl.Version, want)
		}
	}

	got, err := s.Get(ctx, tmpl.ID)
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if got.Version != 4 {
		t.Errorf("stored version = %d, want 4", got.Version)
	}
	if !got.CreatedAt.Equal(createdAt) {
		t.Errorf("CreatedAt changed from %v to %v", createdAt, got.CreatedAt)
	}
}

func testUpdateConflict(t *testing.T, s template.Store) {
	ctx := context.Background()
	tmpl := create(t, s, "standard", "")

	stale := tmpl.Clone()
	tmpl.Name = "first writer"
	if err := s.Update(ctx, tmpl, 1); err != nil {
		t.Fatalf("Update() error = %v", err)
	}

	stale.Name = "second writer"
	err := s.Update(ctx, stale, 1)
	var conflict *template.VersionConflictError
	if !errors.As(err, &conflict) {
		t.Fatalf("Update() error = %v, want VersionConflictError", err)
	}
	if conflict.Current != 2 || conflict.Expected != 1 {
		t.Errorf("conflict = %+v, want expected 1 current 2", conflict)
	}

	got, _ := s.Get(ctx, tmpl.ID)
	if got.Name != "first writer" || got.Version != 2 {
		t.Errorf("stored = %q v%d, want first writer v2", got.Name, got.Version)
	}
}

func testPatchConflict(t *testing.T, s template.Store) {
	ctx := context.Background()
	tmpl := create(t, s, "standard", "")

	name := "patched"
	_, err := s.Patch(ctx, tmpl.ID, template.Patch{ExpectedVersion: 7, Name: &name})
	if !errors.Is(err, template.ErrVersionConflict) {
		t.Fatalf("Patch() error = %v, want ErrVersionConflict", err)
	}

	got, _ := s.Get(ctx, tmpl.ID)
	if got.Name != "standard" || got.Version != 1 {
		t.Errorf("stored = %q v%d, want unchanged standard v1", got.Name, got.Version)
	}

	if _, err := s.Patch(ctx, tmpl.ID, template.Patch{Name: &name}); !errors.Is(err, template.ErrInvalidTemplate) {
		t.Errorf("Patch() without version error = %v, want ErrInvalidTemplate", err)
	}
}

func testPatchMergesFields(t *testing.T, s template.Store) {
	ctx := context.Background()
	tmpl := create(t, s, "standard", "")

	theme := template.ThemeClassic
	updated, err := s.Patch(ctx, tmpl.ID, template.Patch{
		ExpectedVersion: 1,
		Theme:           &theme,
		Branding:        &template.Branding{PrimaryColor: "#003366"},
	})
	if err != nil {
		t.Fatalf("Patch() error = %v", err)
	}
	if updated.Version != 2 {
		t.Errorf("Patch() version = %d, want 2", updated.Version)
	}
	if updated.Name != "standard" {
		t.Errorf("Patch() changed name to %q", updated.Name)
	}
	if updated.Theme != template.ThemeClassic || updated.Branding.PrimaryColor != "#003366" {
		t.Errorf("Patch() did not apply fields: %+v", updated)
	}
	if len(updated.Elements) != 2 {
		t.Errorf("Patch() elements = %d, want 2", len(updated.Elements))
	}
}

func countDefaults(t *testing.T, s template.Store, scope string) []*template.Template {
	t.Helper()
	all, err := s.List(context.Background(), template.ListFilter{Scope: scope, IncludeInactive: true})
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	var defaults []*template.Template
	for _, tmpl := range all {
		if tmpl.IsDefault {
			defaults = append(defaults, tmpl)
		}
	}
	return defaults
}

func testSetDefaultUnique(t *testing.T, s template.Store) {
	ctx := context.Background()
	a := create(t, s, "a", "")
	b := create(t, s, "b", "")
	other := create(t, s, "rental", "rental")

	if _, err := s.SetDefault(ctx, other.ID); err != nil {
		t.Fatalf("SetDefault(other) error = %v", err)
	}

	sequence := []string{a.ID, b.ID, a.ID, b.ID, b.ID}
	for _, id := range sequence {
		if _, err := s.SetDefault(ctx, id); err != nil {
			t.Fatalf("SetDefault(%s) error = %v", id, err)
		}
		defaults := countDefaults(t, s, template.DefaultScope)
		if len(defaults) != 1 || defaults[0].ID != id {
			t.Fatalf("after SetDefault(%s) defaults = %d", id, len(defaults))
		}
	}

	def, err := s.GetDefault(ctx, "")
	if err != nil {
		t.Fatalf("GetDefault() error = %v", err)
	}
	if def.ID != b.ID {
		t.Errorf("GetDefault() = %s, want %s", def.ID, b.ID)
	}

	rental, err := s.GetDefault(ctx, "rental")
	if err != nil || rental.ID != other.ID {
		t.Errorf("GetDefault(rental) = %v, %v; other scope must keep its default", rental, err)
	}

	got, _ := s.Get(ctx, a.ID)
	// created, set, cleared, set, cleared
	if got.Version != 5 {
		t.Errorf("a version = %d, want 5", got.Version)
	}
}

func testSetDefaultConcurrent(t *testing.T, s template.Store) {
	ctx := context.Background()
	var ids []string
	for _, name := range []string{"a", "b", "c", "d"} {
		ids = append(ids, create(t, s, name, "").ID)
	}

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(id string) {
			defer wg.Done()
			if _, err := s.SetDefault(ctx, id); err != nil {
				t.Errorf("SetDefault() error = %v", err)
			}
		}(ids[i%len(ids)])
	}
	wg.Wait()

	if defaults := countDefaults(t, s, template.DefaultScope); len(defaults) != 1 {
		t.Errorf("defaults after concurrent SetDefault = %d, want 1", len(defaults))
	}
}

func testSetDefaultInactive(t *testing.T, s template.Store) {
	ctx := context.Background()
	tmpl := create(t, s, "retired", "")
	if err := s.SoftDelete(ctx, tmpl.ID); err != nil {
		t.Fatalf("SoftDelete() error = %v", err)
	}
	if _, err := s.SetDefault(ctx, tmpl.ID); !errors.Is(err, template.ErrTemplateNotFound) {
		t.Errorf("SetDefault(inactive) error = %v, want ErrTemplateNotFound", err)
	}
}

func testSoftDelete(t *testing.T, s template.Store) {
	ctx := context.Background()
	keep := create(t, s, "keep", "")
	gone := create(t, s, "gone", "")
	if _, err := s.SetDefault(ctx, gone.ID); err != nil {
		t.Fatalf("SetDefault() error = %v", err)
	}

	if err := s.SoftDelete(ctx, gone.ID); err != nil {
		t.Fatalf("SoftDelete() error = %v", err)
	}

	list, err := s.List(ctx, template.ListFilter{})
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	if len(list) != 1 || list[0].ID != keep.ID {
		t.Errorf("List() = %d templates, want only keep", len(list))
	}

	got, err := s.Get(ctx, gone.ID)
	if err != nil {
		t.Fatalf("Get(inactive) error = %v", err)
	}
	if got.IsActive || got.IsDefault {
		t.Errorf("deleted template active=%v default=%v", got.IsActive, got.IsDefault)
	}
	if got.Version != 3 {
		t.Errorf("deleted template version = %d, want 3", got.Version)
	}

	if _, err := s.GetDefault(ctx, ""); !errors.Is(err, template.ErrTemplateNotFound) {
		t.Errorf("GetDefault() error = %v, want ErrTemplateNotFound", err)
	}
}

func testListFilters(t *testing.T, s template.Store) {
	ctx := context.Background()
	create(t, s, "Crane hire", "")
	create(t, s, "Trailer hire", "")
	create(t, s, "Forklift rental", "rental")

	tests := []struct {
		name   string
		filter template.ListFilter
		want   int
	}{
		{"all", template.ListFilter{}, 3},
		{"scope", template.ListFilter{Scope: template.DefaultScope}, 2},
		{"search", template.ListFilter{Search: "HIRE"}, 2},
		{"limit", template.ListFilter{Limit: 1}, 1},
		{"offset", template.ListFilter{Offset: 2}, 1},
		{"offset past end", template.ListFilter{Offset: 5}, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := s.List(ctx, tt.filter)
			if err != nil {
				t.Fatalf("List() error = %v", err)
			}
			if len(got) != tt.want {
				t.Errorf("List() = %d, want %d", len(got), tt.want)
			}
		})
	}
}

func testVersions(t *testing.T, s template.Store) {
	ctx := context.Background()
	tmpl := create(t, s, "v1", "")
	tmpl.Name = "v2"
	if err := s.Update(ctx, tmpl, 1); err != nil {
		t.Fatalf("Update() error = %v", err)
	}

	revs, err := s.Versions(ctx, tmpl.ID)
	if err != nil {
		t.Fatalf("Versions() error = %v", err)
	}
	if len(revs) != 2 {
		t.Fatalf("Versions() = %d, want 2", len(revs))
	}
	if revs[0].Version != 2 || revs[1].Version != 1 {
		t.Errorf("Versions() order = %d,%d, want 2,1", revs[0].Version, revs[1].Version)
	}

	rev, err := s.Revision(ctx, tmpl.ID, 1)
	if err != nil {
		t.Fatalf("Revision() error = %v", err)
	}
	if rev.Template == nil || rev.Template.Name != "v1" {
		t.Errorf("Revision(1) snapshot = %+v, want name v1", rev.Template)
	}

	if _, err := s.Revision(ctx, tmpl.ID, 9); !errors.Is(err, template.ErrTemplateNotFound) {
		t.Errorf("Revision(9) error = %v, want ErrTemplateNotFound", err)
	}
}
