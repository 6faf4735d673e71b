package services

import (
	"context"
	"errors"
	"math"
	"sync"
	"testing"

	"fibo_store/auth"
	"fibo_store/db"
	"fibo_store/db/dbtest"
	"fibo_store/models"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
)

var (
	admin   = auth.Principal{Email: "admin@student.fibo.edu", Name: "Admin", Role: auth.RoleAdmin}
	student = auth.Principal{Email: "kid@student.fibo.edu", Name: "Kid", Role: auth.RoleStudent}
)

type fixture struct {
	repo     *db.Repo
	bookings *BookingService
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	repo := dbtest.Repo(t)
	return &fixture{repo: repo, bookings: NewBookingService(repo, NewInventoryService(nil), nil)}
}

func (f *fixture) item(t *testing.T, name string, qty int) string {
	t.Helper()
	it := &models.Item{ID: uuid.NewString(), Name: name, Category: "Lab", Unit: "pcs", AvailableQuantity: qty}
	it.SetSpecs(nil)
	require.NoError(t, f.repo.CreateItem(context.Background(), it))
	return it.ID
}

func (f *fixture) stock(t *testing.T, id string) int {
	t.Helper()
	it, err := f.repo.FindItemByID(context.Background(), id)
	require.NoError(t, err)
	return it.AvailableQuantity
}

func cart(lines ...BookingLineInput) CreateBookingInput {
	return CreateBookingInput{
		UserName:   "Kid",
		PickupDate: "2026-03-01",
		DueDate:    "2026-03-05",
		Purpose:    "capstone",
		Items:      lines,
	}
}

func TestCreate_ReservesStock(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	id := f.item(t, "Arduino", 10)

	b, err := f.bookings.Create(ctx, student, cart(BookingLineInput{ItemID: id, Quantity: 2}))
	require.NoError(t, err)
	require.Equal(t, models.StatusPending, b.Status)
	require.Equal(t, student.Email, b.UserEmail)
	require.Len(t, b.Lines, 1)
	require.Equal(t, "Arduino", b.Lines[0].Item.Name)
	require.Equal(t, 8, f.stock(t, id))

	b, err = f.bookings.Transition(ctx, admin, b.ID, "Approved", "")
	require.NoError(t, err)
	require.Equal(t, models.StatusApproved, b.Status)
	require.Equal(t, 8, f.stock(t, id))

	b, err = f.bookings.Transition(ctx, admin, b.ID, "Returned", "all back")
	require.NoError(t, err)
	require.Equal(t, models.StatusReturned, b.Status)
	require.NotNil(t, b.ReturnedAt)
	require.Equal(t, 10, f.stock(t, id))

	trail, err := f.bookings.History(ctx, admin, b.ID)
	require.NoError(t, err)
	require.Len(t, trail, 3)
	require.Equal(t, models.StatusReturned, trail[2].ToStatus)
	require.Equal(t, "all back", *trail[2].Note)
}

func TestCreate_OverStockLeavesEverythingUnchanged(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	a := f.item(t, "A", 3)
	b := f.item(t, "B", 10)

	_, err := f.bookings.Create(ctx, student, cart(BookingLineInput{ItemID: a, Quantity: 5}))
	var se *StockError
	require.ErrorAs(t, err, &se)
	require.ErrorIs(t, err, ErrInsufficientStock)
	require.Equal(t, 3, se.Available)
	require.Equal(t, 5, se.Requested)
	require.Equal(t, 3, f.stock(t, a))

	// one short line among good ones: nothing moves
	_, err = f.bookings.Create(ctx, student, cart(
		BookingLineInput{ItemID: b, Quantity: 4},
		BookingLineInput{ItemID: a, Quantity: 4},
	))
	require.ErrorIs(t, err, ErrInsufficientStock)
	require.Equal(t, 3, f.stock(t, a))
	require.Equal(t, 10, f.stock(t, b))

	mine, err := f.bookings.ListMine(ctx, student, "", "")
	require.NoError(t, err)
	require.Empty(t, mine)
}

func TestCreate_MergesDuplicateLines(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	a := f.item(t, "A", 3)

	_, err := f.bookings.Create(ctx, student, cart(
		BookingLineInput{ItemID: a, Quantity: 2},
		BookingLineInput{ItemID: a, Quantity: 2},
	))
	require.ErrorIs(t, err, ErrInsufficientStock)

	b, err := f.bookings.Create(ctx, student, cart(
		BookingLineInput{ItemID: a, Quantity: 1},
		BookingLineInput{ItemID: a, Quantity: 2},
	))
	require.NoError(t, err)
	require.Len(t, b.Lines, 1)
	require.Equal(t, 3, b.Lines[0].Quantity)
	require.Equal(t, 0, f.stock(t, a))
}

func TestCreate_MergedQuantityIsCapped(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	a := f.item(t, "A", 5)

	_, err := f.bookings.Create(ctx, student, cart(
		BookingLineInput{ItemID: a, Quantity: math.MaxInt},
		BookingLineInput{ItemID: a, Quantity: 1},
	))
	var ve *ValidationError
	require.ErrorAs(t, err, &ve)
	require.Equal(t, "items[0].quantity", ve.Fields[0].Field)

	_, err = f.bookings.Create(ctx, student, cart(
		BookingLineInput{ItemID: a, Quantity: MaxLineQuantity},
		BookingLineInput{ItemID: a, Quantity: 1},
	))
	require.ErrorAs(t, err, &ve)
	require.Equal(t, "items", ve.Fields[0].Field)
	require.Equal(t, 5, f.stock(t, a))
}

func TestCreate_Validation(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	a := f.item(t, "A", 3)

	in := cart()
	_, err := f.bookings.Create(ctx, student, in)
	var ve *ValidationError
	require.ErrorAs(t, err, &ve)
	require.Equal(t, "items", ve.Fields[0].Field)

	_, err = f.bookings.Create(ctx, student, cart(BookingLineInput{ItemID: a, Quantity: 0}))
	require.ErrorAs(t, err, &ve)
	require.Equal(t, "items[0].quantity", ve.Fields[0].Field)

	in = cart(BookingLineInput{ItemID: a, Quantity: 1})
	in.DueDate = "2026-02-01"
	_, err = f.bookings.Create(ctx, student, in)
	require.ErrorAs(t, err, &ve)
	require.Equal(t, "due_date", ve.Fields[0].Field)

	in = cart(BookingLineInput{ItemID: a, Quantity: 1})
	in.PickupDate = "tomorrow"
	_, err = f.bookings.Create(ctx, student, in)
	require.ErrorIs(t, err, ErrValidation)

	_, err = f.bookings.Create(ctx, student, cart(BookingLineInput{ItemID: uuid.NewString(), Quantity: 1}))
	require.ErrorIs(t, err, ErrNotFound)
	require.Equal(t, 3, f.stock(t, a))
}

func TestCreate_StudentsBookForThemselves(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	a := f.item(t, "A", 3)

	in := cart(BookingLineInput{ItemID: a, Quantity: 1})
	in.UserEmail = "someone.else@student.fibo.edu"
	_, err := f.bookings.Create(ctx, student, in)
	require.ErrorIs(t, err, ErrForbidden)

	in.UserEmail = "KID@student.fibo.edu"
	_, err = f.bookings.Create(ctx, student, in)
	require.NoError(t, err)

	_, err = f.bookings.ListMine(ctx, student, "someone.else@student.fibo.edu", "")
	require.ErrorIs(t, err, ErrForbidden)
}

func TestTransition_Rules(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	a := f.item(t, "A", 5)
	b, err := f.bookings.Create(ctx, student, cart(BookingLineInput{ItemID: a, Quantity: 2}))
	require.NoError(t, err)

	_, err = f.bookings.Transition(ctx, student, b.ID, "Approved", "")
	require.ErrorIs(t, err, ErrForbidden)

	_, err = f.bookings.Transition(ctx, admin, uuid.NewString(), "Approved", "")
	require.ErrorIs(t, err, ErrNotFound)

	_, err = f.bookings.Transition(ctx, admin, b.ID, "Lost", "")
	require.ErrorIs(t, err, ErrValidation)

	_, err = f.bookings.Transition(ctx, admin, b.ID, "Returned", "")
	var te *TransitionError
	require.ErrorAs(t, err, &te)
	require.Equal(t, models.StatusPending, te.From)

	_, err = f.bookings.Transition(ctx, admin, b.ID, "approved", "")
	require.NoError(t, err)
	_, err = f.bookings.Transition(ctx, admin, b.ID, "Returned", "")
	require.NoError(t, err)
	require.Equal(t, 5, f.stock(t, a))

	_, err = f.bookings.Transition(ctx, admin, b.ID, "Approved", "")
	require.ErrorIs(t, err, ErrInvalidTransition)
	require.Equal(t, 5, f.stock(t, a))
}

func TestTransition_RejectCreditsOnce(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	a := f.item(t, "A", 5)
	b, err := f.bookings.Create(ctx, student, cart(BookingLineInput{ItemID: a, Quantity: 3}))
	require.NoError(t, err)
	require.Equal(t, 2, f.stock(t, a))

	var wg sync.WaitGroup
	errs := make([]error, 4)
	for i := range errs {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = f.bookings.Transition(ctx, admin, b.ID, "Rejected", "")
		}(i)
	}
	wg.Wait()

	ok := 0
	for _, err := range errs {
		if err == nil {
			ok++
			continue
		}
		require.True(t, errors.Is(err, ErrInvalidTransition), "unexpected error: %v", err)
	}
	require.Equal(t, 1, ok)
	require.Equal(t, 5, f.stock(t, a))
}

func TestCreate_ConcurrentReservationsNeverOversell(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	a := f.item(t, "A", 5)

	var wg sync.WaitGroup
	errs := make([]error, 8)
	for i := range errs {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = f.bookings.Create(ctx, student, cart(BookingLineInput{ItemID: a, Quantity: 1}))
		}(i)
	}
	wg.Wait()

	ok := 0
	for _, err := range errs {
		if err == nil {
			ok++
			continue
		}
		require.ErrorIs(t, err, ErrInsufficientStock)
	}
	require.Equal(t, 5, ok)
	require.Equal(t, 0, f.stock(t, a))
}

func TestReads(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	a := f.item(t, "A", 5)
	b, err := f.bookings.Create(ctx, student, cart(BookingLineInput{ItemID: a, Quantity: 1}))
	require.NoError(t, err)

	got, err := f.bookings.Get(ctx, student, b.ID)
	require.NoError(t, err)
	require.Equal(t, b.ID, got.ID)

	other := auth.Principal{Email: "other@student.fibo.edu", Role: auth.RoleStudent}
	_, err = f.bookings.Get(ctx, other, b.ID)
	require.ErrorIs(t, err, ErrForbidden)

	_, err = f.bookings.ListAll(ctx, student, "")
	require.ErrorIs(t, err, ErrForbidden)

	all, err := f.bookings.ListAll(ctx, admin, "pending")
	require.NoError(t, err)
	require.Len(t, all, 1)

	_, err = f.bookings.ListAll(ctx, admin, "bogus")
	require.ErrorIs(t, err, ErrValidation)

	_, err = f.bookings.History(ctx, student, b.ID)
	require.ErrorIs(t, err, ErrForbidden)

	active, err := f.bookings.ListMine(ctx, student, "", "Approved")
	require.NoError(t, err)
	require.Empty(t, active)
}
