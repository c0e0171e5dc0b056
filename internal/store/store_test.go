package store

import (
	"errors"
	"testing"
	"time"

	"artisanlink/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func booking(id string, status models.Status) models.Booking {
	return models.Booking{
		ID:                 id,
		Customer:           models.Ref{ID: "c1"},
		Artisan:            models.Ref{ID: "a1"},
		Service:            models.Ref{ID: "svc1"},
		Status:             status,
		ScheduledDate:      "2025-06-01",
		TimeSlot:           models.TimeSlot{Start: "09:00", End: "11:00"},
		ProblemDescription: "leaking tap",
		Location:           models.Location{Address: "123 Main St"},
	}
}

func mustPatch(t *testing.T, raw string) models.BookingPatch {
	t.Helper()
	p, err := models.ParsePatch([]byte(raw))
	require.NoError(t, err)
	return p
}

func ids(list []models.Booking) []string {
	out := make([]string, 0, len(list))
	for _, b := range list {
		out = append(out, b.ID)
	}
	return out
}

func TestUpsertIdempotence(t *testing.T) {
	s := New(PolicyClear, nil)
	require.NoError(t, s.ReplaceAll(models.RoleArtisan, []models.Booking{booking("b1", models.StatusPending), booking("b2", models.StatusPending)}))

	var changes int
	s.Subscribe(func(Change) { changes++ })

	patch := mustPatch(t, `{"_id":"b1","status":"price_proposed"}`)

	res, err := s.ApplyPatch(models.RoleArtisan, patch)
	require.NoError(t, err)
	assert.Equal(t, ResultMerged, res)
	once := s.Bookings(models.RoleArtisan)

	res, err = s.ApplyPatch(models.RoleArtisan, patch)
	require.NoError(t, err)
	assert.Equal(t, ResultUnchanged, res)

	assert.Equal(t, once, s.Bookings(models.RoleArtisan))
	assert.Equal(t, []string{"b1", "b2"}, ids(s.Bookings(models.RoleArtisan)))
	assert.Equal(t, 1, changes, "second identical push must not notify")
}

func TestUpsertInsertion(t *testing.T) {
	s := New(PolicyClear, nil)
	require.NoError(t, s.ReplaceAll(models.RoleArtisan, []models.Booking{booking("b1", models.StatusPending), booking("b2", models.StatusAccepted)}))
	before := s.Bookings(models.RoleArtisan)

	res, err := s.ApplyPatch(models.RoleArtisan, mustPatch(t, `{"_id":"b9","status":"pending","location":{"address":"9 Elm"}}`))
	require.NoError(t, err)
	assert.Equal(t, ResultInserted, res)

	after := s.Bookings(models.RoleArtisan)
	require.Len(t, after, 3)
	assert.Equal(t, "b9", after[0].ID, "new push goes to the front")
	assert.Equal(t, before, after[1:], "other entries unchanged")
}

func TestMergeNotReplace(t *testing.T) {
	s := New(PolicyClear, nil)
	original := booking("b1", models.StatusPending)
	original.ProblemPhotos = []string{"https://img/1.jpg"}
	original.IsEmergency = true
	require.NoError(t, s.ReplaceAll(models.RoleCustomer, []models.Booking{original}))

	_, err := s.ApplyPatch(models.RoleCustomer, mustPatch(t,
		`{"_id":"b1","status":"price_proposed","proposedPrice":{"labor":100,"parts":50,"total":150,"note":"parts + labor"}}`))
	require.NoError(t, err)

	got, ok := s.Get(models.RoleCustomer, "b1")
	require.True(t, ok)
	assert.Equal(t, models.StatusPriceProposed, got.Status)
	require.NotNil(t, got.ProposedPrice)
	assert.Equal(t, 150.0, got.ProposedPrice.Total)

	assert.Equal(t, original.ProblemDescription, got.ProblemDescription)
	assert.Equal(t, original.ProblemPhotos, got.ProblemPhotos)
	assert.Equal(t, original.Location, got.Location)
	assert.Equal(t, original.TimeSlot, got.TimeSlot)
	assert.Equal(t, original.Customer, got.Customer)
	assert.True(t, got.IsEmergency)
}

func TestStalePushDropped(t *testing.T) {
	s := New(PolicyClear, nil)
	newer := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	b := booking("b1", models.StatusAccepted)
	b.UpdatedAt = &newer
	require.NoError(t, s.ReplaceAll(models.RoleCustomer, []models.Booking{b}))

	res, err := s.ApplyPatch(models.RoleCustomer, mustPatch(t, `{"_id":"b1","status":"pending","updatedAt":"2025-06-01T11:00:00Z"}`))
	require.NoError(t, err)
	assert.Equal(t, ResultStale, res)

	got, _ := s.Get(models.RoleCustomer, "b1")
	assert.Equal(t, models.StatusAccepted, got.Status)

	res, err = s.ApplyPatch(models.RoleCustomer, mustPatch(t, `{"_id":"b1","status":"en_route","updatedAt":"2025-06-01T13:00:00Z"}`))
	require.NoError(t, err)
	assert.Equal(t, ResultMerged, res)
	got, _ = s.Get(models.RoleCustomer, "b1")
	assert.Equal(t, models.StatusEnRoute, got.Status)
}

func TestStaleFetchKeepsNewerPush(t *testing.T) {
	s := New(PolicyClear, nil)
	fetchedAt := time.Date(2025, 6, 1, 10, 0, 0, 0, time.UTC)
	b := booking("b1", models.StatusPending)
	b.UpdatedAt = &fetchedAt
	require.NoError(t, s.ReplaceAll(models.RoleCustomer, []models.Booking{b}))

	res, err := s.ApplyPatch(models.RoleCustomer, mustPatch(t, `{"_id":"b1","status":"price_proposed","updatedAt":"2025-06-01T10:01:00Z"}`))
	require.NoError(t, err)
	require.Equal(t, ResultMerged, res)

	require.NoError(t, s.ReplaceAll(models.RoleCustomer, []models.Booking{b, booking("b2", models.StatusPending)}))

	got, ok := s.Get(models.RoleCustomer, "b1")
	require.True(t, ok)
	assert.Equal(t, models.StatusPriceProposed, got.Status)
	assert.Equal(t, []string{"b1", "b2"}, ids(s.Bookings(models.RoleCustomer)))

	t.Run("NewerFetchWins", func(t *testing.T) {
		later := time.Date(2025, 6, 1, 10, 5, 0, 0, time.UTC)
		fresh := booking("b1", models.StatusAccepted)
		fresh.UpdatedAt = &later
		require.NoError(t, s.ReplaceAll(models.RoleCustomer, []models.Booking{fresh}))

		got, _ := s.Get(models.RoleCustomer, "b1")
		assert.Equal(t, models.StatusAccepted, got.Status)
	})

	t.Run("MissingFromFetchIsDropped", func(t *testing.T) {
		require.NoError(t, s.ReplaceAll(models.RoleCustomer, []models.Booking{booking("b3", models.StatusPending)}))
		assert.Equal(t, []string{"b3"}, ids(s.Bookings(models.RoleCustomer)))
	})
}

func TestApplyPatchErrors(t *testing.T) {
	s := New(PolicyClear, nil)

	_, err := s.ApplyPatch(models.RoleCustomer, mustPatch(t, `{"status":"pending"}`))
	assert.ErrorIs(t, err, ErrMissingID)

	_, err = s.ApplyPatch(models.Role("admin"), mustPatch(t, `{"_id":"b1"}`))
	assert.ErrorIs(t, err, ErrUnknownRole)

	_, err = s.ApplyPatch(models.RoleCustomer, mustPatch(t, `{"_id":"b1","status":42}`))
	assert.Error(t, err)
	assert.Equal(t, 0, s.Len(models.RoleCustomer))
}

func TestFetchReplaceSemantics(t *testing.T) {
	s := New(PolicyClear, nil)
	require.NoError(t, s.ReplaceAll(models.RoleCustomer, []models.Booking{booking("old1", models.StatusPending), booking("old2", models.StatusPending)}))

	fetched := []models.Booking{booking("n1", models.StatusPending), booking("n2", models.StatusAccepted), booking("n3", models.StatusCompleted)}
	require.NoError(t, s.ReplaceAll(models.RoleCustomer, fetched))

	assert.Equal(t, []string{"n1", "n2", "n3"}, ids(s.Bookings(models.RoleCustomer)))

	t.Run("DuplicateIDsCollapse", func(t *testing.T) {
		require.NoError(t, s.ReplaceAll(models.RoleCustomer, []models.Booking{booking("d", models.StatusPending), booking("d", models.StatusAccepted)}))
		list := s.Bookings(models.RoleCustomer)
		require.Len(t, list, 1)
		assert.Equal(t, models.StatusAccepted, list[0].Status)
	})

	t.Run("OtherRoleUntouched", func(t *testing.T) {
		assert.Equal(t, 0, s.Len(models.RoleArtisan))
	})
}

func TestFetchFailurePolicy(t *testing.T) {
	seed := []models.Booking{booking("b1", models.StatusPending)}

	t.Run("Clear", func(t *testing.T) {
		s := New(PolicyClear, nil)
		require.NoError(t, s.ReplaceAll(models.RoleArtisan, seed))
		cleared, err := s.FetchFailed(models.RoleArtisan)
		require.NoError(t, err)
		assert.True(t, cleared)
		assert.Empty(t, s.Bookings(models.RoleArtisan))
	})

	t.Run("Preserve", func(t *testing.T) {
		s := New(PolicyPreserve, nil)
		require.NoError(t, s.ReplaceAll(models.RoleArtisan, seed))
		cleared, err := s.FetchFailed(models.RoleArtisan)
		require.NoError(t, err)
		assert.False(t, cleared)
		assert.Equal(t, []string{"b1"}, ids(s.Bookings(models.RoleArtisan)))
	})
}

func TestParseFetchErrorPolicy(t *testing.T) {
	p, err := ParseFetchErrorPolicy("")
	require.NoError(t, err)
	assert.Equal(t, PolicyClear, p)

	p, err = ParseFetchErrorPolicy("preserve")
	require.NoError(t, err)
	assert.Equal(t, PolicyPreserve, p)

	_, err = ParseFetchErrorPolicy("retry")
	assert.Error(t, err)
}

func TestAppendNoDuplicate(t *testing.T) {
	s := New(PolicyClear, nil)
	require.NoError(t, s.ReplaceAll(models.RoleCustomer, []models.Booking{booking("b1", models.StatusPending)}))

	require.NoError(t, s.Append(models.RoleCustomer, booking("b2", models.StatusPending)))
	assert.Equal(t, []string{"b1", "b2"}, ids(s.Bookings(models.RoleCustomer)))

	require.NoError(t, s.Append(models.RoleCustomer, booking("b2", models.StatusPending)))
	assert.Equal(t, []string{"b1", "b2"}, ids(s.Bookings(models.RoleCustomer)))

	assert.ErrorIs(t, s.Append(models.RoleCustomer, models.Booking{}), ErrMissingID)
}

func TestCurrentSlot(t *testing.T) {
	s := New(PolicyClear, nil)
	_, ok := s.Current()
	assert.False(t, ok)

	require.NoError(t, s.SetCurrent(booking("b1", models.StatusPending)))
	cur, ok := s.Current()
	require.True(t, ok)
	assert.Equal(t, "b1", cur.ID)

	t.Run("PushMergesIntoDetail", func(t *testing.T) {
		_, err := s.ApplyPatch(models.RoleCustomer, mustPatch(t, `{"_id":"b1","status":"price_proposed"}`))
		require.NoError(t, err)
		cur, _ := s.Current()
		assert.Equal(t, models.StatusPriceProposed, cur.Status)
		assert.Equal(t, "leaking tap", cur.ProblemDescription)
	})

	t.Run("PushForOtherBookingLeavesDetail", func(t *testing.T) {
		_, err := s.ApplyPatch(models.RoleCustomer, mustPatch(t, `{"_id":"b2","status":"cancelled"}`))
		require.NoError(t, err)
		cur, _ := s.Current()
		assert.Equal(t, "b1", cur.ID)
		assert.Equal(t, models.StatusPriceProposed, cur.Status)
	})

	assert.ErrorIs(t, s.SetCurrent(models.Booking{}), ErrMissingID)

	s.ClearCurrent()
	_, ok = s.Current()
	assert.False(t, ok)
}

func TestOpStateScopedPerOperation(t *testing.T) {
	s := New(PolicyClear, nil)

	s.BeginOp(FetchOp(models.RoleArtisan))
	s.BeginOp(ProposeOp("b1"))
	s.BeginOp(ProposeOp("b2"))
	s.EndOp(ProposeOp("b2"), errors.New("bad price"))

	assert.True(t, s.Op(FetchOp(models.RoleArtisan)).Pending)
	assert.True(t, s.Op(ProposeOp("b1")).Pending)
	assert.NoError(t, s.Op(ProposeOp("b1")).Err)
	assert.False(t, s.Op(ProposeOp("b2")).Pending)
	assert.EqualError(t, s.Op(ProposeOp("b2")).Err, "bad price")
	assert.False(t, s.Op(RespondOp("b1")).Pending)

	s.ClearOpError(ProposeOp("b2"))
	assert.NoError(t, s.Op(ProposeOp("b2")).Err)
}

func TestSubscribeUnsubscribe(t *testing.T) {
	s := New(PolicyClear, nil)
	var got []Change
	cancel := s.Subscribe(func(c Change) { got = append(got, c) })

	require.NoError(t, s.ReplaceAll(models.RoleCustomer, nil))
	cancel()
	cancel()
	require.NoError(t, s.ReplaceAll(models.RoleCustomer, nil))

	require.Len(t, got, 1)
	assert.Equal(t, ChangeReplaced, got[0].Kind)
}

func TestSnapshotRestore(t *testing.T) {
	s := New(PolicyClear, nil)
	require.NoError(t, s.ReplaceAll(models.RoleCustomer, []models.Booking{booking("c1", models.StatusPending)}))
	require.NoError(t, s.ReplaceAll(models.RoleArtisan, []models.Booking{booking("a1", models.StatusAccepted)}))

	snap := s.Snapshot(models.RoleCustomer, "c1")
	assert.Equal(t, "customer:c1", snap.Key())

	restored := New(PolicyClear, nil)
	restored.Restore(snap)
	assert.Equal(t, s.Bookings(models.RoleCustomer), restored.Bookings(models.RoleCustomer))
	assert.Equal(t, s.Bookings(models.RoleArtisan), restored.Bookings(models.RoleArtisan))
}

func TestReadersGetCopies(t *testing.T) {
	s := New(PolicyClear, nil)
	b := booking("b1", models.StatusPending)
	b.ProblemPhotos = []string{"a"}
	require.NoError(t, s.ReplaceAll(models.RoleCustomer, []models.Booking{b}))

	list := s.Bookings(models.RoleCustomer)
	list[0].ProblemPhotos[0] = "mutated"
	list[0].Status = models.StatusCancelled

	got, _ := s.Get(models.RoleCustomer, "b1")
	assert.Equal(t, "a", got.ProblemPhotos[0])
	assert.Equal(t, models.StatusPending, got.Status)
}
