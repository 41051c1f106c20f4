package messaging

import (
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
)

func TestDeduplicationKeys_StableForSameIdentifiers(t *testing.T) {
	transferID := uuid.MustParse("6f1f64cb-67f1-4c3b-9a4f-0f9f6f0d2f11")
	reservationID := uuid.MustParse("3a3b1de2-90a7-4d28-bb1e-6de25b3a2b0c")

	tests := []struct {
		msg  Message
		want string
	}{
		{ReserveBalance{TransferID: transferID}, "reserve-balance-" + transferID.String()},
		{CreditAccount{TransferID: transferID}, "credit-account-" + transferID.String()},
		{CommitReservation{TransferID: transferID, ReservationID: reservationID},
			"commit-reservation-" + transferID.String() + "-" + reservationID.String()},
		{ReleaseReservation{TransferID: transferID, ReservationID: reservationID},
			"release-reservation-" + transferID.String() + "-" + reservationID.String()},
		{CancelTransfer{TransferID: transferID}, "cancel-transfer-" + transferID.String()},
		{TransferInitiated{TransferID: transferID}, "transfer-initiated-" + transferID.String()},
		{BalanceReserved{TransferID: transferID, ReservationID: reservationID},
			"balance-reserved-" + transferID.String() + "-" + reservationID.String()},
		{BalanceReservationFailed{TransferID: transferID}, "balance-reservation-failed-" + transferID.String()},
		{DestinationCredited{TransferID: transferID}, "destination-credited-" + transferID.String()},
		{CreditFailed{TransferID: transferID}, "credit-failed-" + transferID.String()},
		{TransferCompleted{TransferID: transferID}, "transfer-completed-" + transferID.String()},
		{TransferCancelled{TransferID: transferID}, "transfer-cancelled-" + transferID.String()},
	}

	seen := map[string]string{}
	for _, tc := range tests {
		assert.Equal(t, tc.want, tc.msg.DeduplicationKey())

		// No two distinct message types may collide on the same key.
		if prev, ok := seen[tc.msg.DeduplicationKey()]; ok {
			t.Fatalf("dedup key collision between %s and %s", prev, tc.msg.RoutingKey())
		}
		seen[tc.msg.DeduplicationKey()] = tc.msg.RoutingKey()
	}
}

func TestRoutingKeys_CommandsAndEventsArePrefixed(t *testing.T) {
	commands := []Message{
		ReserveBalance{}, CreditAccount{}, CommitReservation{}, ReleaseReservation{}, CancelTransfer{},
	}
	events := []Message{
		TransferInitiated{}, BalanceReserved{}, BalanceReservationFailed{},
		DestinationCredited{}, CreditFailed{}, TransferCompleted{}, TransferCancelled{},
	}

	for _, c := range commands {
		assert.Contains(t, c.RoutingKey(), "command.")
	}
	for _, e := range events {
		assert.Contains(t, e.RoutingKey(), "event.")
	}
}
