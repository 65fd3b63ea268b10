package service

import (
	"context"
	"sync"
	"testing"
	"time"

	"go-gin-flight-booking/internal/external"
	"go-gin-flight-booking/internal/metrics"
	"go-gin-flight-booking/internal/model"
	"go-gin-flight-booking/internal/repository"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
)

type recordingNotifier struct {
	mu        sync.Mutex
	confirmed []*model.Booking
	cancelled []*model.Booking
}

func (n *recordingNotifier) BookingConfirmed(b *model.Booking, _ *model.Flight) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.confirmed = append(n.confirmed, b)
}

func (n *recordingNotifier) BookingCancelled(b *model.Booking, _ *model.Flight) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.cancelled = append(n.cancelled, b)
}

func (n *recordingNotifier) counts() (int, int) {
	n.mu.Lock()
	defer n.mu.Unlock()
	return len(n.confirmed), len(n.cancelled)
}

// voidRecorder 包一層付款閘道，記錄被退回的交易
type voidRecorder struct {
	external.PaymentGateway
	mu     sync.Mutex
	voided []string
}

func (v *voidRecorder) Void(ctx context.Context, txnID string, amount float64) error {
	v.mu.Lock()
	v.voided = append(v.voided, txnID)
	v.mu.Unlock()
	return v.PaymentGateway.Void(ctx, txnID, amount)
}

func (v *voidRecorder) count() int {
	v.mu.Lock()
	defer v.mu.Unlock()
	return len(v.voided)
}

type bookingFixture struct {
	flights       *repository.MemoryFlightRepository
	bookings      *repository.MemoryBookingRepository
	cancellations *repository.MemoryCancellationLogRepository
	scheduler     *LockSchedulerImpl
	payments      *voidRecorder
	notifier      *recordingNotifier
	service       *BookingServiceImpl
}

func approveAll() float64 { return 0 }
func declineAll() float64 { return 1 }

func newBookingFixture(t *testing.T, ttl time.Duration, roll func() float64) *bookingFixture {
	t.Helper()
	f := &bookingFixture{
		flights:       repository.NewMemoryFlightRepository(),
		bookings:      repository.NewMemoryBookingRepository(),
		cancellations: repository.NewMemoryCancellationLogRepository(),
		payments:      &voidRecorder{PaymentGateway: external.NewPaymentSimulatorWithRoll(0.9, roll)},
		notifier:      &recordingNotifier{},
	}
	m := metrics.NewNop()
	f.scheduler = NewLockScheduler(f.flights, ttl, m)
	t.Cleanup(f.scheduler.Shutdown)
	f.service = NewBookingService(f.flights, f.bookings, f.cancellations, f.scheduler, f.payments, f.notifier, m)
	return f
}

func createTestFlight(t *testing.T, repo repository.FlightRepository, seats int, departure time.Time) *model.Flight {
	t.Helper()
	flight, err := model.NewFlight(uuid.NewString(), model.CreateFlightParams{
		FlightNumber:  "BA117",
		Airline:       "British Airways",
		Origin:        "LHR",
		Destination:   "JFK",
		DepartureTime: departure,
		ArrivalTime:   departure.Add(8 * time.Hour),
		BaseFare:      420,
		TotalSeats:    seats,
	})
	require.NoError(t, err)
	created, err := repo.Create(context.Background(), flight)
	require.NoError(t, err)
	return created
}

func passengers(names ...string) []model.Passenger {
	out := make([]model.Passenger, 0, len(names))
	for _, n := range names {
		out = append(out, model.Passenger{Name: n})
	}
	return out
}

// blockingGateway 讓第一筆扣款停在 release 關閉之前，模擬緩慢的付款
type blockingGateway struct {
	external.PaymentGateway
	charging chan struct{}
	release  chan struct{}
	once     sync.Once
}

func newBlockingGateway(inner external.PaymentGateway) *blockingGateway {
	return &blockingGateway{
		PaymentGateway: inner,
		charging:       make(chan struct{}),
		release:        make(chan struct{}),
	}
}

func (g *blockingGateway) Charge(ctx context.Context, amount float64) (external.PaymentResult, error) {
	first := false
	g.once.Do(func() { first = true })
	if first {
		close(g.charging)
		<-g.release
	}
	return g.PaymentGateway.Charge(ctx, amount)
}

// useGateway 換掉 fixture 的付款閘道，仍記錄退款
func (f *bookingFixture) useGateway(g external.PaymentGateway) {
	f.payments = &voidRecorder{PaymentGateway: g}
	f.service.payments = f.payments
}
