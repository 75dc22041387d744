package services

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/Apsistec/fitos-app-sub002/internal/models"
)

type stubRow struct {
	values []any
	err    error
}

func (r stubRow) Scan(dest ...any) error {
	if r.err != nil {
		return r.err
	}
	for i := range dest {
		switch target := dest[i].(type) {
		case *int64:
			*target = r.values[i].(int64)
		case *int:
			*target = r.values[i].(int)
		case *string:
			*target = r.values[i].(string)
		case **string:
			*target = r.values[i].(*string)
		case **int64:
			*target = r.values[i].(*int64)
		case *time.Time:
			*target = r.values[i].(time.Time)
		case *models.PaymentMethod:
			*target = r.values[i].(models.PaymentMethod)
		default:
			return errors.New("unsupported scan target")
		}
	}
	return nil
}

// stubTx satisfies pgx.Tx and the service's transaction starter, so the
// combined commit runs against scripted rows.
type stubTx struct {
	queryRowFn func(ctx context.Context, query string, args ...any) stubRow
	commitErr  error
	commits    int
	rollbacks  int
}

func (tx *stubTx) Begin(_ context.Context) (pgx.Tx, error) { return tx, nil }

func (tx *stubTx) Commit(_ context.Context) error {
	tx.commits++
	return tx.commitErr
}

func (tx *stubTx) Rollback(_ context.Context) error {
	tx.rollbacks++
	return nil
}

func (tx *stubTx) CopyFrom(_ context.Context, _ pgx.Identifier, _ []string, _ pgx.CopyFromSource) (int64, error) {
	return 0, errors.New("not implemented")
}

func (tx *stubTx) SendBatch(_ context.Context, _ *pgx.Batch) pgx.BatchResults { return nil }

func (tx *stubTx) LargeObjects() pgx.LargeObjects { return pgx.LargeObjects{} }

func (tx *stubTx) Prepare(_ context.Context, _, _ string) (*pgconn.StatementDescription, error) {
	return nil, errors.New("not implemented")
}

func (tx *stubTx) Exec(_ context.Context, _ string, _ ...any) (pgconn.CommandTag, error) {
	return pgconn.CommandTag{}, nil
}

func (tx *stubTx) Query(_ context.Context, _ string, _ ...any) (pgx.Rows, error) {
	return nil, errors.New("not implemented")
}

func (tx *stubTx) QueryRow(ctx context.Context, query string, args ...any) pgx.Row {
	return tx.queryRowFn(ctx, query, args...)
}

func (tx *stubTx) Conn() *pgx.Conn { return nil }

var checkoutTestNow = time.Date(2030, 6, 1, 12, 0, 0, 0, time.UTC)

// newSettlementTx scripts the two statements of the combined commit: the
// settle update echoes the appointment with the linked grant, the receipt
// insert echoes its arguments back as the stored row.
func newSettlementTx(appt *models.Appointment) *stubTx {
	return &stubTx{
		queryRowFn: func(_ context.Context, query string, args ...any) stubRow {
			switch {
			case strings.Contains(query, "UPDATE appointments"):
				return stubRow{values: []any{
					appt.ID, appt.TrainerID, appt.ClientID, appt.ServiceTypeID,
					appt.BasePriceCents, models.AppointmentStatusSettled,
					args[1].(*int64), appt.ScheduledAt, appt.CreatedAt, appt.UpdatedAt,
				}}
			case strings.Contains(query, "INSERT INTO receipts"):
				return stubRow{values: []any{
					int64(1), args[0].(int64), args[1].(int64), args[2].(int64),
					args[3].(models.PaymentMethod), args[4].(int64), args[5].(int64),
					args[6].(int64), args[7].(int64), args[8].(*string), checkoutTestNow,
				}}
			}
			return stubRow{err: pgx.ErrNoRows}
		},
	}
}

type stubAppointmentStore struct {
	appt        *models.Appointment
	getErr      error
	claimErr    error
	transitions []string
}

func (s *stubAppointmentStore) GetByID(_ context.Context, _ int64) (*models.Appointment, error) {
	if s.getErr != nil {
		return nil, s.getErr
	}
	appt := *s.appt
	return &appt, nil
}

func (s *stubAppointmentStore) UpdateStatusIfCurrent(_ context.Context, _ int64, currentStatus, nextStatus string) (*models.Appointment, error) {
	s.transitions = append(s.transitions, currentStatus+"->"+nextStatus)
	if s.claimErr != nil {
		return nil, s.claimErr
	}
	appt := *s.appt
	appt.Status = nextStatus
	return &appt, nil
}

type stubLedger struct {
	grant          *models.CreditGrant
	getErr         error
	defaultGrant   *models.CreditGrant
	defaultErr     error
	debitRemaining *int
	debitErr       error
	debits         []int64
	compensated    []int64
	compensateErr  error
}

func (l *stubLedger) GetGrant(_ context.Context, grantID int64) (*models.CreditGrant, error) {
	if l.getErr != nil {
		return nil, l.getErr
	}
	if l.grant == nil || l.grant.ID != grantID {
		return nil, ErrGrantNotFound
	}
	return l.grant, nil
}

func (l *stubLedger) DefaultGrant(_ context.Context, _, _ int64, _ time.Time) (*models.CreditGrant, error) {
	if l.defaultErr != nil {
		return nil, l.defaultErr
	}
	return l.defaultGrant, nil
}

func (l *stubLedger) Debit(_ context.Context, grantID int64) (*int, error) {
	l.debits = append(l.debits, grantID)
	return l.debitRemaining, l.debitErr
}

func (l *stubLedger) CompensateDebit(_ context.Context, grantID int64) error {
	l.compensated = append(l.compensated, grantID)
	return l.compensateErr
}

type stubReceiptReader struct {
	receipt *models.Receipt
	err     error
}

func (r *stubReceiptReader) GetByAppointmentID(_ context.Context, _ int64) (*models.Receipt, error) {
	if r.err != nil {
		return nil, r.err
	}
	return r.receipt, nil
}

type stubGateway struct {
	captureResult    *CaptureResult
	captureErr       error
	captures         []CaptureInput
	refundErr        error
	lastRefundRef    string
	lastRefundAmount int64
	refunds          int
}

func (g *stubGateway) Capture(_ context.Context, input CaptureInput) (*CaptureResult, error) {
	g.captures = append(g.captures, input)
	return g.captureResult, g.captureErr
}

func (g *stubGateway) Refund(_ context.Context, reference string, amountCents int64) error {
	g.refunds++
	g.lastRefundRef = reference
	g.lastRefundAmount = amountCents
	return g.refundErr
}

func testAppointment() *models.Appointment {
	return &models.Appointment{
		ID:             21,
		TrainerID:      7,
		ClientID:       42,
		ServiceTypeID:  3,
		BasePriceCents: 5000,
		Status:         models.AppointmentStatusScheduled,
		ScheduledAt:    checkoutTestNow,
	}
}

func TestSettleWithCreditGrantWritesZeroChargeReceipt(t *testing.T) {
	appt := testAppointment()
	apptStore := &stubAppointmentStore{appt: appt}
	ledger := &stubLedger{
		defaultGrant:   &models.CreditGrant{ID: 11, ClientID: 42},
		debitRemaining: intPtr(9),
	}
	gateway := &stubGateway{}
	service := &CheckoutService{
		db:              newSettlementTx(appt),
		appointmentRepo: apptStore,
		receiptRepo:     &stubReceiptReader{},
		ledger:          ledger,
		gateway:         gateway,
	}

	receipt, err := service.Settle(context.Background(), models.CheckoutRequest{
		AppointmentID: 21,
		Method:        models.PaymentMethodCreditGrant,
	})
	if err != nil {
		t.Fatalf("Settle: %v", err)
	}

	if receipt.ServiceChargeCents != 0 {
		t.Fatalf("credit settlement must zero the service charge, got %d", receipt.ServiceChargeCents)
	}
	if receipt.TotalCents != 0 {
		t.Fatalf("expected zero total, got %d", receipt.TotalCents)
	}
	if len(ledger.debits) != 1 || ledger.debits[0] != 11 {
		t.Fatalf("expected one debit of grant 11, got %v", ledger.debits)
	}
	if len(gateway.captures) != 0 {
		t.Fatalf("credit settlement must not touch the card gateway, got %d captures", len(gateway.captures))
	}
	if len(apptStore.transitions) != 1 || apptStore.transitions[0] != "scheduled->settling" {
		t.Fatalf("unexpected status transitions: %v", apptStore.transitions)
	}
}

func TestSettleCardTotalsAndClamp(t *testing.T) {
	appt := testAppointment()
	gateway := &stubGateway{captureResult: &CaptureResult{Reference: "cap_1"}}
	tx := newSettlementTx(appt)
	service := &CheckoutService{
		db:              tx,
		appointmentRepo: &stubAppointmentStore{appt: appt},
		receiptRepo:     &stubReceiptReader{},
		ledger:          &stubLedger{},
		gateway:         gateway,
	}

	receipt, err := service.Settle(context.Background(), models.CheckoutRequest{
		AppointmentID: 21,
		Method:        models.PaymentMethodCard,
		TipCents:      500,
		DiscountCents: 1000,
	})
	if err != nil {
		t.Fatalf("Settle: %v", err)
	}
	if receipt.ServiceChargeCents != 5000 {
		t.Fatalf("expected full service charge, got %d", receipt.ServiceChargeCents)
	}
	if receipt.TotalCents != 4500 {
		t.Fatalf("expected 5000+500-1000=4500, got %d", receipt.TotalCents)
	}
	if len(gateway.captures) != 1 || gateway.captures[0].AmountCents != 4500 {
		t.Fatalf("expected capture of 4500, got %+v", gateway.captures)
	}
	if gateway.captures[0].IdempotencyKey == "" {
		t.Fatalf("capture must carry an idempotency key")
	}
	if receipt.ExternalReference == nil || *receipt.ExternalReference != "cap_1" {
		t.Fatalf("expected capture reference on receipt, got %+v", receipt.ExternalReference)
	}
	if tx.commits != 1 {
		t.Fatalf("expected exactly one commit, got %d", tx.commits)
	}
}

func TestSettleCardClampsNegativeTotalAndSkipsCapture(t *testing.T) {
	appt := testAppointment()
	gateway := &stubGateway{}
	service := &CheckoutService{
		db:              newSettlementTx(appt),
		appointmentRepo: &stubAppointmentStore{appt: appt},
		receiptRepo:     &stubReceiptReader{},
		ledger:          &stubLedger{},
		gateway:         gateway,
	}

	receipt, err := service.Settle(context.Background(), models.CheckoutRequest{
		AppointmentID: 21,
		Method:        models.PaymentMethodCard,
		TipCents:      500,
		DiscountCents: 6000,
	})
	if err != nil {
		t.Fatalf("Settle: %v", err)
	}
	if receipt.TotalCents != 0 {
		t.Fatalf("expected total clamped to zero, got %d", receipt.TotalCents)
	}
	if len(gateway.captures) != 0 {
		t.Fatalf("zero-total settlement must not capture, got %+v", gateway.captures)
	}
}

func TestSettleRejectsInvalidInput(t *testing.T) {
	service := &CheckoutService{}

	cases := []models.CheckoutRequest{
		{AppointmentID: 21, Method: "barter"},
		{AppointmentID: 21, Method: models.PaymentMethodCard, TipCents: -1},
		{AppointmentID: 21, Method: models.PaymentMethodCard, DiscountCents: -1},
	}
	for _, req := range cases {
		if _, err := service.Settle(context.Background(), req); !errors.Is(err, ErrInvalidInput) {
			t.Fatalf("request %+v: expected ErrInvalidInput, got %v", req, err)
		}
	}
}

func TestSettleIsIdempotentPerAppointment(t *testing.T) {
	for _, status := range []string{models.AppointmentStatusSettled, models.AppointmentStatusSettling} {
		appt := testAppointment()
		appt.Status = status
		ledger := &stubLedger{}
		service := &CheckoutService{
			appointmentRepo: &stubAppointmentStore{appt: appt},
			receiptRepo:     &stubReceiptReader{},
			ledger:          ledger,
			gateway:         &stubGateway{},
		}

		_, err := service.Settle(context.Background(), models.CheckoutRequest{
			AppointmentID: 21,
			Method:        models.PaymentMethodCreditGrant,
		})
		if !errors.Is(err, ErrAlreadyProcessed) {
			t.Fatalf("status %s: expected ErrAlreadyProcessed, got %v", status, err)
		}
		if len(ledger.debits) != 0 {
			t.Fatalf("status %s: repeat settlement must not debit, got %v", status, ledger.debits)
		}
	}
}

func TestSettleRefusesCancelledAppointment(t *testing.T) {
	appt := testAppointment()
	appt.Status = models.AppointmentStatusCancelled
	apptStore := &stubAppointmentStore{appt: appt}
	ledger := &stubLedger{}
	gateway := &stubGateway{}
	service := &CheckoutService{
		appointmentRepo: apptStore,
		receiptRepo:     &stubReceiptReader{},
		ledger:          ledger,
		gateway:         gateway,
	}

	_, err := service.Settle(context.Background(), models.CheckoutRequest{
		AppointmentID: 21,
		Method:        models.PaymentMethodCard,
	})
	if !errors.Is(err, ErrAppointmentCancelled) {
		t.Fatalf("expected ErrAppointmentCancelled, got %v", err)
	}
	if len(apptStore.transitions) != 0 {
		t.Fatalf("cancelled appointment must never be claimed, got %v", apptStore.transitions)
	}
	if len(gateway.captures) != 0 {
		t.Fatalf("cancelled appointment must never be charged, got %+v", gateway.captures)
	}
	if len(ledger.debits) != 0 {
		t.Fatalf("cancelled appointment must never be debited, got %v", ledger.debits)
	}
}

func TestSettleLosesClaimRaceCleanly(t *testing.T) {
	appt := testAppointment()
	apptStore := &stubAppointmentStore{appt: appt, claimErr: pgx.ErrNoRows}
	ledger := &stubLedger{}
	service := &CheckoutService{
		appointmentRepo: apptStore,
		receiptRepo:     &stubReceiptReader{},
		ledger:          ledger,
		gateway:         &stubGateway{},
	}

	_, err := service.Settle(context.Background(), models.CheckoutRequest{
		AppointmentID: 21,
		Method:        models.PaymentMethodCash,
	})
	if !errors.Is(err, ErrAlreadyProcessed) {
		t.Fatalf("expected ErrAlreadyProcessed for lost claim race, got %v", err)
	}
	if len(ledger.debits) != 0 {
		t.Fatalf("losing racer must not debit, got %v", ledger.debits)
	}
}

func TestSettleDeclinedCaptureReleasesClaim(t *testing.T) {
	appt := testAppointment()
	apptStore := &stubAppointmentStore{appt: appt}
	tx := newSettlementTx(appt)
	service := &CheckoutService{
		db:              tx,
		appointmentRepo: apptStore,
		receiptRepo:     &stubReceiptReader{},
		ledger:          &stubLedger{},
		gateway:         &stubGateway{captureErr: ErrPaymentDeclined},
	}

	_, err := service.Settle(context.Background(), models.CheckoutRequest{
		AppointmentID: 21,
		Method:        models.PaymentMethodCard,
	})
	if !errors.Is(err, ErrPaymentDeclined) {
		t.Fatalf("expected ErrPaymentDeclined, got %v", err)
	}
	want := []string{"scheduled->settling", "settling->scheduled"}
	if len(apptStore.transitions) != 2 || apptStore.transitions[0] != want[0] || apptStore.transitions[1] != want[1] {
		t.Fatalf("expected claim release %v, got %v", want, apptStore.transitions)
	}
	if tx.commits != 0 {
		t.Fatalf("declined settlement must not commit, got %d commits", tx.commits)
	}
}

func TestSettleTimeoutCarriesExternalReference(t *testing.T) {
	appt := testAppointment()
	service := &CheckoutService{
		appointmentRepo: &stubAppointmentStore{appt: appt},
		receiptRepo:     &stubReceiptReader{},
		ledger:          &stubLedger{},
		gateway:         &stubGateway{captureErr: &PaymentTimeoutError{ExternalReference: "idem-1"}},
	}

	_, err := service.Settle(context.Background(), models.CheckoutRequest{
		AppointmentID: 21,
		Method:        models.PaymentMethodCard,
	})
	if !errors.Is(err, ErrPaymentTimeout) {
		t.Fatalf("expected ErrPaymentTimeout, got %v", err)
	}
	var timeoutErr *PaymentTimeoutError
	if !errors.As(err, &timeoutErr) || timeoutErr.ExternalReference != "idem-1" {
		t.Fatalf("expected timeout to carry the reconciliation reference, got %v", err)
	}
}

func TestSettleSplitCompensatesDebitWhenCaptureFails(t *testing.T) {
	appt := testAppointment()
	apptStore := &stubAppointmentStore{appt: appt}
	ledger := &stubLedger{
		grant:          &models.CreditGrant{ID: 11, ClientID: 42},
		debitRemaining: intPtr(4),
	}
	service := &CheckoutService{
		appointmentRepo: apptStore,
		receiptRepo:     &stubReceiptReader{},
		ledger:          ledger,
		gateway:         &stubGateway{captureErr: ErrPaymentDeclined},
	}

	grantID := int64(11)
	_, err := service.Settle(context.Background(), models.CheckoutRequest{
		AppointmentID: 21,
		Method:        models.PaymentMethodSplit,
		GrantID:       &grantID,
		TipCents:      1000,
	})
	if !errors.Is(err, ErrPaymentDeclined) {
		t.Fatalf("expected ErrPaymentDeclined, got %v", err)
	}
	if len(ledger.compensated) != 1 || ledger.compensated[0] != 11 {
		t.Fatalf("expected debit of grant 11 compensated, got %v", ledger.compensated)
	}
	if apptStore.transitions[len(apptStore.transitions)-1] != "settling->scheduled" {
		t.Fatalf("expected claim release, got %v", apptStore.transitions)
	}
}

func TestSettleSplitCapturesTipMinusDiscount(t *testing.T) {
	appt := testAppointment()
	ledger := &stubLedger{
		grant:          &models.CreditGrant{ID: 11, ClientID: 42},
		debitRemaining: intPtr(4),
	}
	gateway := &stubGateway{captureResult: &CaptureResult{Reference: "cap_2"}}
	service := &CheckoutService{
		db:              newSettlementTx(appt),
		appointmentRepo: &stubAppointmentStore{appt: appt},
		receiptRepo:     &stubReceiptReader{},
		ledger:          ledger,
		gateway:         gateway,
	}

	grantID := int64(11)
	receipt, err := service.Settle(context.Background(), models.CheckoutRequest{
		AppointmentID: 21,
		Method:        models.PaymentMethodSplit,
		GrantID:       &grantID,
		TipCents:      1000,
		DiscountCents: 200,
	})
	if err != nil {
		t.Fatalf("Settle: %v", err)
	}
	if receipt.ServiceChargeCents != 0 {
		t.Fatalf("split settlement covers the service charge with credit, got %d", receipt.ServiceChargeCents)
	}
	if receipt.TotalCents != 800 {
		t.Fatalf("expected card total 1000-200=800, got %d", receipt.TotalCents)
	}
	if len(gateway.captures) != 1 || gateway.captures[0].AmountCents != 800 {
		t.Fatalf("expected capture of 800, got %+v", gateway.captures)
	}
	if len(ledger.debits) != 1 || ledger.debits[0] != 11 {
		t.Fatalf("expected one debit of grant 11, got %v", ledger.debits)
	}
}

func TestSettleCommitFailureRefundsCaptureAndCompensatesDebit(t *testing.T) {
	appt := testAppointment()
	apptStore := &stubAppointmentStore{appt: appt}
	ledger := &stubLedger{
		grant:          &models.CreditGrant{ID: 11, ClientID: 42},
		debitRemaining: intPtr(4),
	}
	gateway := &stubGateway{captureResult: &CaptureResult{Reference: "cap_3"}}
	tx := newSettlementTx(appt)
	tx.commitErr = errors.New("commit failed")
	service := &CheckoutService{
		db:              tx,
		appointmentRepo: apptStore,
		receiptRepo:     &stubReceiptReader{},
		ledger:          ledger,
		gateway:         gateway,
	}

	grantID := int64(11)
	_, err := service.Settle(context.Background(), models.CheckoutRequest{
		AppointmentID: 21,
		Method:        models.PaymentMethodSplit,
		GrantID:       &grantID,
		TipCents:      1000,
	})
	if err == nil {
		t.Fatalf("expected commit failure to surface")
	}
	if gateway.refunds != 1 || gateway.lastRefundRef != "cap_3" || gateway.lastRefundAmount != 1000 {
		t.Fatalf("expected refund of capture cap_3 for 1000, got %d/%q/%d", gateway.refunds, gateway.lastRefundRef, gateway.lastRefundAmount)
	}
	if len(ledger.compensated) != 1 || ledger.compensated[0] != 11 {
		t.Fatalf("expected debit compensated, got %v", ledger.compensated)
	}
	if apptStore.transitions[len(apptStore.transitions)-1] != "settling->scheduled" {
		t.Fatalf("expected claim release, got %v", apptStore.transitions)
	}
}

func TestSettleRejectsGrantOwnedByAnotherClient(t *testing.T) {
	appt := testAppointment()
	apptStore := &stubAppointmentStore{appt: appt}
	ledger := &stubLedger{grant: &models.CreditGrant{ID: 11, ClientID: 99}}
	service := &CheckoutService{
		appointmentRepo: apptStore,
		receiptRepo:     &stubReceiptReader{},
		ledger:          ledger,
		gateway:         &stubGateway{},
	}

	grantID := int64(11)
	_, err := service.Settle(context.Background(), models.CheckoutRequest{
		AppointmentID: 21,
		Method:        models.PaymentMethodCreditGrant,
		GrantID:       &grantID,
	})
	if !errors.Is(err, ErrGrantNotFound) {
		t.Fatalf("expected ErrGrantNotFound for foreign grant, got %v", err)
	}
	if len(ledger.debits) != 0 {
		t.Fatalf("foreign grant must never be debited, got %v", ledger.debits)
	}
}

func TestGetReceiptMapsMissingRow(t *testing.T) {
	service := &CheckoutService{receiptRepo: &stubReceiptReader{err: pgx.ErrNoRows}}

	if _, err := service.GetReceipt(context.Background(), 21); !errors.Is(err, ErrAppointmentNotFound) {
		t.Fatalf("expected ErrAppointmentNotFound, got %v", err)
	}
}
