package domain

// StatusBucket is the canonical shipment/payment state shown to operators. Every consumer
// (list filters, counters, detail views) derives it through ResolveStatus.
type StatusBucket string

const (
	BucketToPay     StatusBucket = "to_pay"
	BucketToShip    StatusBucket = "to_ship"
	BucketToReceive StatusBucket = "to_receive"
	BucketCompleted StatusBucket = "completed"
	BucketReturned  StatusBucket = "returned"
	BucketCancelled StatusBucket = "cancelled"
	// BucketUnknown marks a raw status outside both vocabularies. The raw value stays on the
	// order and must be shown as-is.
	BucketUnknown StatusBucket = "unknown"
)

// Buckets lists the known buckets in display order.
var Buckets = []StatusBucket{
	BucketToPay,
	BucketToShip,
	BucketToReceive,
	BucketCompleted,
	BucketReturned,
	BucketCancelled,
}

var currentStatusBuckets = map[OrderStatus]StatusBucket{
	OrderStatusToPay:     BucketToPay,
	OrderStatusToShip:    BucketToShip,
	OrderStatusToReceive: BucketToReceive,
	OrderStatusCompleted: BucketCompleted,
	OrderStatusReturned:  BucketReturned,
	OrderStatusCancelled: BucketCancelled,
}

// pending is absent: it depends on payment state.
var legacyStatusBuckets = map[OrderStatus]StatusBucket{
	OrderStatusConfirmed:  BucketToShip,
	OrderStatusProcessing: BucketToShip,
	OrderStatusShipped:    BucketToReceive,
	OrderStatusDelivered:  BucketCompleted,
	OrderStatusCancelled:  BucketCancelled,
}

// ResolveStatus maps a stored status plus payment state to its canonical bucket.
func ResolveStatus(raw OrderStatus, payment PaymentStatus, method PaymentMethod) StatusBucket {
	if bucket, ok := currentStatusBuckets[raw]; ok {
		return bucket
	}
	if raw == OrderStatusPending {
		if payment == PaymentStatusPaid || method.IsCOD() {
			return BucketToShip
		}
		return BucketToPay
	}
	if bucket, ok := legacyStatusBuckets[raw]; ok {
		return bucket
	}
	return BucketUnknown
}

// Known reports whether the bucket is one of the six canonical buckets.
func (b StatusBucket) Known() bool {
	_, ok := bucketSet[b]
	return ok
}

// Terminal reports whether no further lifecycle transitions are allowed from the bucket.
func (b StatusBucket) Terminal() bool {
	switch b {
	case BucketCompleted, BucketReturned, BucketCancelled:
		return true
	default:
		return false
	}
}

var bucketSet = func() map[StatusBucket]struct{} {
	out := make(map[StatusBucket]struct{}, len(Buckets))
	for _, b := range Buckets {
		out[b] = struct{}{}
	}
	return out
}()

// ParseStatusBucket validates a bucket name supplied by a caller.
func ParseStatusBucket(raw string) (StatusBucket, bool) {
	bucket := StatusBucket(NormalizeOrderStatus(raw))
	if !bucket.Known() {
		return "", false
	}
	return bucket, true
}

// IsLegacy reports whether the status belongs to the legacy vocabulary.
func (s OrderStatus) IsLegacy() bool {
	if s == OrderStatusPending {
		return true
	}
	_, ok := legacyStatusBuckets[s]
	return ok
}

// IsCurrent reports whether the status belongs to the current vocabulary.
func (s OrderStatus) IsCurrent() bool {
	_, ok := currentStatusBuckets[s]
	return ok
}

// Valid reports whether the status belongs to either vocabulary.
func (s OrderStatus) Valid() bool {
	return s.IsLegacy() || s.IsCurrent()
}

// ParseOrderStatus normalises a caller supplied status and rejects values outside both vocabularies.
func ParseOrderStatus(raw string) (OrderStatus, bool) {
	status := NormalizeOrderStatus(raw)
	if !status.Valid() {
		return "", false
	}
	return status, true
}

// StatusCounts tallies orders per bucket. Unknown statuses are counted under BucketUnknown.
func StatusCounts(orders []Order) map[StatusBucket]int {
	counts := make(map[StatusBucket]int, len(Buckets)+1)
	for _, b := range Buckets {
		counts[b] = 0
	}
	for _, order := range orders {
		counts[order.Bucket()]++
	}
	return counts
}
