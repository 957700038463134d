package services

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/google/uuid"

	"github.com/galleria/backend/internal/models"
)

func seedPhoto(t *testing.T, catalog *CatalogService, ownerID uuid.UUID, order int, primary bool) *models.Photo {
	t.Helper()
	score := 80
	photo := &models.Photo{
		OwnerID:          ownerID,
		OriginalFilename: "seed.jpg",
		StoredName:       NewStoredName(".jpg"),
		Extension:        ".jpg",
		SizeBytes:        1024,
		Width:            800,
		Height:           600,
		DisplayOrder:     order,
		IsPrimary:        primary,
		ModerationStatus: models.StatusAutoApproved,
		QualityScore:     &score,
	}
	assertNoError(t, catalog.Create(context.Background(), photo))
	return photo
}

func TestCreateAssignsNextDisplayOrder(t *testing.T) {
	catalog := NewCatalogService(testDB(t), nil)
	ownerID := uuid.New()

	first := seedPhoto(t, catalog, ownerID, 0, false)
	if first.DisplayOrder != 1 {
		t.Errorf("first photo order = %d, want 1", first.DisplayOrder)
	}

	seedPhoto(t, catalog, ownerID, 5, false)
	third := seedPhoto(t, catalog, ownerID, 0, false)
	if third.DisplayOrder != 6 {
		t.Errorf("third photo order = %d, want max+1 = 6", third.DisplayOrder)
	}

	// other owners do not influence the sequence
	other := seedPhoto(t, catalog, uuid.New(), 0, false)
	if other.DisplayOrder != 1 {
		t.Errorf("other owner's first photo order = %d, want 1", other.DisplayOrder)
	}
}

func TestCreateWithPrimaryFlagClearsExisting(t *testing.T) {
	db := testDB(t)
	catalog := NewCatalogService(db, nil)
	ownerID := uuid.New()
	ctx := context.Background()

	old := seedPhoto(t, catalog, ownerID, 1, true)
	fresh := seedPhoto(t, catalog, ownerID, 0, true)

	if n := countPrimaries(t, db, ownerID); n != 1 {
		t.Fatalf("primary count = %d, want exactly 1", n)
	}
	got, err := catalog.GetByID(ctx, fresh.ID, ownerID)
	assertNoError(t, err)
	if !got.IsPrimary {
		t.Error("newly created photo lost its primary flag")
	}
	prev, err := catalog.GetByID(ctx, old.ID, ownerID)
	assertNoError(t, err)
	if prev.IsPrimary {
		t.Error("previous primary was not cleared by the insert")
	}
}

func TestConcurrentCreatePrimaryAndSetPrimary(t *testing.T) {
	db := testDB(t)
	catalog := NewCatalogService(db, nil)
	ownerID := uuid.New()
	ctx := context.Background()

	existing := seedPhoto(t, catalog, ownerID, 1, false)

	// an insert carrying the primary flag races a SetPrimary on an existing
	// photo; whichever commits last wins, but two primaries must never coexist
	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		_, _ = catalog.SetPrimary(ctx, existing.ID, ownerID)
	}()
	go func() {
		defer wg.Done()
		score := 80
		_ = catalog.Create(ctx, &models.Photo{
			OwnerID:          ownerID,
			OriginalFilename: "racer.jpg",
			StoredName:       NewStoredName(".jpg"),
			Extension:        ".jpg",
			SizeBytes:        1024,
			Width:            800,
			Height:           600,
			IsPrimary:        true,
			ModerationStatus: models.StatusAutoApproved,
			QualityScore:     &score,
		})
	}()
	wg.Wait()

	if n := countPrimaries(t, db, ownerID); n > 1 {
		t.Fatalf("primary count = %d, two primaries must never coexist", n)
	}
}

func TestSetPrimaryIsExclusive(t *testing.T) {
	db := testDB(t)
	catalog := NewCatalogService(db, nil)
	ownerID := uuid.New()
	ctx := context.Background()

	a := seedPhoto(t, catalog, ownerID, 1, true)
	b := seedPhoto(t, catalog, ownerID, 2, false)

	ok, err := catalog.SetPrimary(ctx, b.ID, ownerID)
	assertNoError(t, err)
	if !ok {
		t.Fatal("SetPrimary returned false for a valid target")
	}

	if n := countPrimaries(t, db, ownerID); n != 1 {
		t.Errorf("primary count = %d, want exactly 1", n)
	}
	got, err := catalog.GetByID(ctx, b.ID, ownerID)
	assertNoError(t, err)
	if !got.IsPrimary {
		t.Error("target did not become primary")
	}
	old, err := catalog.GetByID(ctx, a.ID, ownerID)
	assertNoError(t, err)
	if old.IsPrimary {
		t.Error("previous primary was not cleared")
	}
}

func TestSetPrimaryRefusals(t *testing.T) {
	db := testDB(t)
	catalog := NewCatalogService(db, nil)
	ownerID := uuid.New()
	ctx := context.Background()

	photo := seedPhoto(t, catalog, ownerID, 1, false)

	// foreign owner
	ok, err := catalog.SetPrimary(ctx, photo.ID, uuid.New())
	assertNoError(t, err)
	if ok {
		t.Error("SetPrimary succeeded for a foreign owner")
	}

	// unknown photo
	ok, err = catalog.SetPrimary(ctx, uuid.New(), ownerID)
	assertNoError(t, err)
	if ok {
		t.Error("SetPrimary succeeded for an unknown photo")
	}

	// deleted photo
	_, err = catalog.Delete(ctx, photo.ID, ownerID)
	assertNoError(t, err)
	ok, err = catalog.SetPrimary(ctx, photo.ID, ownerID)
	assertNoError(t, err)
	if ok {
		t.Error("SetPrimary succeeded for a deleted photo")
	}
}

func TestDeletePromotesNextPrimary(t *testing.T) {
	db := testDB(t)
	catalog := NewCatalogService(db, nil)
	ownerID := uuid.New()
	ctx := context.Background()

	primary := seedPhoto(t, catalog, ownerID, 1, true)
	second := seedPhoto(t, catalog, ownerID, 2, false)
	seedPhoto(t, catalog, ownerID, 3, false)

	ok, err := catalog.Delete(ctx, primary.ID, ownerID)
	assertNoError(t, err)
	if !ok {
		t.Fatal("Delete returned false for a valid target")
	}

	if n := countPrimaries(t, db, ownerID); n != 1 {
		t.Fatalf("primary count after delete = %d, want 1", n)
	}
	promoted, err := catalog.GetByID(ctx, second.ID, ownerID)
	assertNoError(t, err)
	if !promoted.IsPrimary {
		t.Error("lowest-order survivor was not promoted to primary")
	}

	// deleted photo no longer appears in reads
	if _, err := catalog.GetByID(ctx, primary.ID, ownerID); err != ErrNotFound {
		t.Errorf("deleted photo lookup error = %v, want ErrNotFound", err)
	}
}

func TestDeleteLastPhotoLeavesNoPrimary(t *testing.T) {
	db := testDB(t)
	catalog := NewCatalogService(db, nil)
	ownerID := uuid.New()

	only := seedPhoto(t, catalog, ownerID, 1, true)
	ok, err := catalog.Delete(context.Background(), only.ID, ownerID)
	assertNoError(t, err)
	if !ok {
		t.Fatal("Delete returned false")
	}
	if n := countPrimaries(t, db, ownerID); n != 0 {
		t.Errorf("primary count = %d, want 0 when gallery is empty", n)
	}
}

func TestDeleteSetsConsistentTimestampPair(t *testing.T) {
	db := testDB(t)
	catalog := NewCatalogService(db, nil)
	ownerID := uuid.New()

	photo := seedPhoto(t, catalog, ownerID, 1, false)
	_, err := catalog.Delete(context.Background(), photo.ID, ownerID)
	assertNoError(t, err)

	var raw models.Photo
	assertNoError(t, db.Where("id = ?", photo.ID).First(&raw).Error)
	if !raw.IsDeleted || raw.DeletedAt == nil {
		t.Errorf("soft-delete pair inconsistent: is_deleted=%v deleted_at=%v", raw.IsDeleted, raw.DeletedAt)
	}
}

func TestReorderAppliesAllAndSkipsForeign(t *testing.T) {
	catalog := NewCatalogService(testDB(t), nil)
	ownerID := uuid.New()
	ctx := context.Background()

	a := seedPhoto(t, catalog, ownerID, 1, false)
	b := seedPhoto(t, catalog, ownerID, 2, false)
	c := seedPhoto(t, catalog, ownerID, 3, false)
	foreign := seedPhoto(t, catalog, uuid.New(), 1, false)

	err := catalog.Reorder(ctx, ownerID, []OrderAssignment{
		{PhotoID: c.ID, Order: 1},
		{PhotoID: a.ID, Order: 2},
		{PhotoID: b.ID, Order: 3},
		{PhotoID: foreign.ID, Order: 9},  // silently skipped
		{PhotoID: uuid.New(), Order: 10}, // silently skipped
	})
	assertNoError(t, err)

	photos, err := catalog.ListByOwner(ctx, ownerID)
	assertNoError(t, err)
	wantOrder := []uuid.UUID{c.ID, a.ID, b.ID}
	for i, want := range wantOrder {
		if photos[i].ID != want {
			t.Fatalf("position %d = %s, want %s", i, photos[i].ID, want)
		}
	}

	// the foreign photo kept its order
	kept, err := catalog.GetByID(ctx, foreign.ID, foreign.OwnerID)
	assertNoError(t, err)
	if kept.DisplayOrder != 1 {
		t.Errorf("foreign photo order = %d, want untouched 1", kept.DisplayOrder)
	}
}

func TestListByOwnerOrdersAndFiltersDeleted(t *testing.T) {
	catalog := NewCatalogService(testDB(t), nil)
	ownerID := uuid.New()
	ctx := context.Background()

	seedPhoto(t, catalog, ownerID, 3, false)
	seedPhoto(t, catalog, ownerID, 1, false)
	victim := seedPhoto(t, catalog, ownerID, 2, false)
	_, err := catalog.Delete(ctx, victim.ID, ownerID)
	assertNoError(t, err)

	photos, err := catalog.ListByOwner(ctx, ownerID)
	assertNoError(t, err)
	if len(photos) != 2 {
		t.Fatalf("active photos = %d, want 2", len(photos))
	}
	if photos[0].DisplayOrder != 1 || photos[1].DisplayOrder != 3 {
		t.Errorf("orders = %d,%d, want ascending 1,3", photos[0].DisplayOrder, photos[1].DisplayOrder)
	}
}

func TestUpdateModerationStatusLogsTransition(t *testing.T) {
	catalog := NewCatalogService(testDB(t), nil)
	ownerID := uuid.New()
	ctx := context.Background()

	photo := seedPhoto(t, catalog, ownerID, 1, false)

	ok, err := catalog.UpdateModerationStatus(ctx, photo.ID, models.StatusRejected, "blurry", "moderator-1")
	assertNoError(t, err)
	if !ok {
		t.Fatal("moderation update returned false")
	}

	updated, err := catalog.GetByID(ctx, photo.ID, ownerID)
	assertNoError(t, err)
	if updated.ModerationStatus != models.StatusRejected {
		t.Errorf("status = %s, want rejected", updated.ModerationStatus)
	}
	if updated.ModeratedAt == nil {
		t.Error("moderated_at not set")
	}
	if updated.ModerationNotes != "blurry" {
		t.Errorf("notes = %q, want %q", updated.ModerationNotes, "blurry")
	}

	history, err := catalog.ModerationHistory(ctx, photo.ID)
	assertNoError(t, err)
	if len(history) != 1 {
		t.Fatalf("history entries = %d, want 1", len(history))
	}
	entry := history[0]
	if entry.PreviousStatus != models.StatusAutoApproved || entry.NewStatus != models.StatusRejected {
		t.Errorf("transition = %s -> %s, want auto_approved -> rejected", entry.PreviousStatus, entry.NewStatus)
	}
	if entry.Actor != "moderator-1" {
		t.Errorf("actor = %q, want moderator-1", entry.Actor)
	}

	// any status may follow any other under the default policy
	ok, err = catalog.UpdateModerationStatus(ctx, photo.ID, models.StatusPendingReview, "appeal", "moderator-2")
	assertNoError(t, err)
	if !ok {
		t.Error("re-review transition refused under unrestricted policy")
	}
}

func TestModerationPolicyRestrictsTransitions(t *testing.T) {
	policy := &ModerationPolicy{
		Allowed: map[models.ModerationStatus][]models.ModerationStatus{
			models.StatusPendingReview: {models.StatusApproved, models.StatusRejected},
			models.StatusAutoApproved:  {models.StatusRejected},
		},
	}
	catalog := NewCatalogService(testDB(t), policy)
	ownerID := uuid.New()
	ctx := context.Background()

	photo := seedPhoto(t, catalog, ownerID, 1, false)

	// auto_approved -> approved is not in the table; the refusal must be
	// distinguishable from a missing photo
	ok, err := catalog.UpdateModerationStatus(ctx, photo.ID, models.StatusApproved, "", "mod")
	if !errors.Is(err, ErrTransitionNotAllowed) {
		t.Errorf("forbidden transition error = %v, want ErrTransitionNotAllowed", err)
	}
	if ok {
		t.Error("policy-forbidden transition succeeded")
	}

	ok, err = catalog.UpdateModerationStatus(ctx, uuid.New(), models.StatusRejected, "", "mod")
	assertNoError(t, err)
	if ok {
		t.Error("moderating an unknown photo succeeded")
	}

	ok, err = catalog.UpdateModerationStatus(ctx, photo.ID, models.StatusRejected, "", "mod")
	assertNoError(t, err)
	if !ok {
		t.Error("policy-allowed transition refused")
	}
}

func TestListByStatusPaginates(t *testing.T) {
	catalog := NewCatalogService(testDB(t), nil)
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		photo := seedPhoto(t, catalog, uuid.New(), 1, false)
		_, err := catalog.UpdateModerationStatus(ctx, photo.ID, models.StatusPendingReview, "", "seed")
		assertNoError(t, err)
	}

	page, total, err := catalog.ListByStatus(ctx, models.StatusPendingReview, 2, 0)
	assertNoError(t, err)
	if total != 5 {
		t.Errorf("total = %d, want 5", total)
	}
	if len(page) != 2 {
		t.Errorf("page size = %d, want 2", len(page))
	}

	rest, _, err := catalog.ListByStatus(ctx, models.StatusPendingReview, 10, 4)
	assertNoError(t, err)
	if len(rest) != 1 {
		t.Errorf("last page size = %d, want 1", len(rest))
	}
}

func TestConcurrentSetPrimaryKeepsInvariant(t *testing.T) {
	db := testDB(t)
	catalog := NewCatalogService(db, nil)
	ownerID := uuid.New()
	ctx := context.Background()

	a := seedPhoto(t, catalog, ownerID, 1, false)
	b := seedPhoto(t, catalog, ownerID, 2, false)

	var wg sync.WaitGroup
	var mu sync.Mutex
	succeeded := 0
	for _, id := range []uuid.UUID{a.ID, b.ID} {
		wg.Add(1)
		go func(photoID uuid.UUID) {
			defer wg.Done()
			ok, err := catalog.SetPrimary(ctx, photoID, ownerID)
			if err == nil && ok {
				mu.Lock()
				succeeded++
				mu.Unlock()
			}
		}(id)
	}
	wg.Wait()

	primaries := countPrimaries(t, db, ownerID)
	if primaries > 1 {
		t.Fatalf("primary count = %d, two primaries must never coexist", primaries)
	}
	if succeeded > 0 && primaries != 1 {
		t.Fatalf("a SetPrimary call completed but primary count = %d", primaries)
	}
}

func TestTotalActiveBytes(t *testing.T) {
	catalog := NewCatalogService(testDB(t), nil)
	ownerID := uuid.New()
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		seedPhoto(t, catalog, ownerID, i+1, false)
	}
	victim := seedPhoto(t, catalog, ownerID, 4, false)
	_, err := catalog.Delete(ctx, victim.ID, ownerID)
	assertNoError(t, err)

	total, err := catalog.TotalActiveBytes(ctx, ownerID)
	assertNoError(t, err)
	if total != 3*1024 {
		t.Errorf("total bytes = %d, want %d", total, 3*1024)
	}
}
