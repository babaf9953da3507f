package domain

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestResolveStatus(t *testing.T) {
	cases := []struct {
		name    string
		raw     OrderStatus
		payment PaymentStatus
		method  PaymentMethod
		want    StatusBucket
	}{
		{"current to_pay", OrderStatusToPay, PaymentStatusPending, PaymentMethodCard, BucketToPay},
		{"current to_ship", OrderStatusToShip, PaymentStatusPaid, PaymentMethodCard, BucketToShip},
		{"current to_receive", OrderStatusToReceive, PaymentStatusPaid, PaymentMethodGCash, BucketToReceive},
		{"current completed", OrderStatusCompleted, PaymentStatusPaid, PaymentMethodCard, BucketCompleted},
		{"current returned", OrderStatusReturned, PaymentStatusPaid, PaymentMethodGrabPay, BucketReturned},
		{"cancelled", OrderStatusCancelled, PaymentStatusPending, PaymentMethodCard, BucketCancelled},
		{"legacy pending cod unpaid", OrderStatusPending, PaymentStatusPending, PaymentMethodCashOnDelivery, BucketToShip},
		{"legacy pending card unpaid", OrderStatusPending, PaymentStatusPending, PaymentMethodCard, BucketToPay},
		{"legacy pending card paid", OrderStatusPending, PaymentStatusPaid, PaymentMethodCard, BucketToShip},
		{"legacy confirmed", OrderStatusConfirmed, PaymentStatusPending, PaymentMethodCard, BucketToShip},
		{"legacy processing", OrderStatusProcessing, PaymentStatusPaid, PaymentMethodCard, BucketToShip},
		{"legacy shipped", OrderStatusShipped, PaymentStatusPaid, PaymentMethodCard, BucketToReceive},
		{"legacy delivered", OrderStatusDelivered, PaymentStatusPending, PaymentMethodCashOnDelivery, BucketCompleted},
		{"unknown", OrderStatus("on_hold"), PaymentStatusPaid, PaymentMethodCard, BucketUnknown},
		{"empty", OrderStatus(""), PaymentStatusPaid, PaymentMethodCard, BucketUnknown},
		{"to_pay ignores paid flag", OrderStatusToPay, PaymentStatusPaid, PaymentMethodCard, BucketToPay},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := ResolveStatus(tc.raw, tc.payment, tc.method)
			require.Equal(t, tc.want, got)
			// pure: same inputs, same answer
			require.Equal(t, got, ResolveStatus(tc.raw, tc.payment, tc.method))
		})
	}
}

func TestResolveStatusDeterministicAcrossInputs(t *testing.T) {
	statuses := []OrderStatus{
		OrderStatusPending, OrderStatusProcessing, OrderStatusConfirmed, OrderStatusShipped,
		OrderStatusDelivered, OrderStatusCancelled, OrderStatusToPay, OrderStatusToShip,
		OrderStatusToReceive, OrderStatusCompleted, OrderStatusReturned, "bogus",
	}
	payments := []PaymentStatus{PaymentStatusPending, PaymentStatusPaid, ""}
	methods := []PaymentMethod{PaymentMethodCashOnDelivery, PaymentMethodCard, PaymentMethodGCash, PaymentMethodGrabPay, ""}

	for _, s := range statuses {
		for _, p := range payments {
			for _, m := range methods {
				first := ResolveStatus(s, p, m)
				for i := 0; i < 3; i++ {
					if got := ResolveStatus(s, p, m); got != first {
						t.Fatalf("resolve(%q,%q,%q) changed from %q to %q", s, p, m, first, got)
					}
				}
				if s.Valid() && !first.Known() {
					t.Fatalf("valid status %q resolved to unknown bucket", s)
				}
			}
		}
	}
}

func TestParseOrderStatus(t *testing.T) {
	got, ok := ParseOrderStatus("  Completed ")
	require.True(t, ok)
	require.Equal(t, OrderStatusCompleted, got)

	_, ok = ParseOrderStatus("archived")
	require.False(t, ok)
}

func TestBucketTerminal(t *testing.T) {
	require.True(t, BucketCompleted.Terminal())
	require.True(t, BucketReturned.Terminal())
	require.True(t, BucketCancelled.Terminal())
	require.False(t, BucketToPay.Terminal())
	require.False(t, BucketToShip.Terminal())
	require.False(t, BucketToReceive.Terminal())
	require.False(t, BucketUnknown.Terminal())
}

func TestStatusCounts(t *testing.T) {
	orders := []Order{
		{OrderStatus: OrderStatusPending, PaymentStatus: PaymentStatusPending, PaymentMethod: PaymentMethodCard},
		{OrderStatus: OrderStatusPending, PaymentStatus: PaymentStatusPending, PaymentMethod: PaymentMethodCashOnDelivery},
		{OrderStatus: OrderStatusToShip},
		{OrderStatus: "mystery"},
	}
	counts := StatusCounts(orders)
	require.Equal(t, 1, counts[BucketToPay])
	require.Equal(t, 2, counts[BucketToShip])
	require.Equal(t, 0, counts[BucketCompleted])
	require.Equal(t, 1, counts[BucketUnknown])
}

func TestRoleOrdering(t *testing.T) {
	require.True(t, RoleSuperadmin.AtLeast(RoleAdmin))
	require.True(t, RoleAdmin.AtLeast(RoleCreator))
	require.True(t, RoleBuyer.AtLeast(RoleUser))
	require.True(t, RoleUser.AtLeast(RoleBuyer))
	require.False(t, RoleCreator.AtLeast(RoleAdmin))

	role, ok := ParseRole(" SuperAdmin ")
	require.True(t, ok)
	require.Equal(t, RoleSuperadmin, role)
	_, ok = ParseRole("owner")
	require.False(t, ok)
}
