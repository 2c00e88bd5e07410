package state

import (
	"fmt"
	"slices"

	"github.com/cloudwego/eino/schema"
)

// Policy is how a delta value is folded into the existing state value.
type Policy string

const (
	// Append concatenates new entries after existing ones.
	Append Policy = "append"
	// LastWriteWins overwrites with a provided non-empty value; absence keeps the prior value.
	LastWriteWins Policy = "last_write_wins"
	// ReplaceWhole swaps the entire collection for the provided one.
	ReplaceWhole Policy = "replace_whole"
)

type Field string

const (
	FieldMessages        Field = "messages"
	FieldUserInput       Field = "user_input"
	FieldConversationID  Field = "conversation_id"
	FieldRoutingDecision Field = "routing_decision"
	FieldCustomerID      Field = "customer_id"
	FieldName            Field = "name"
	FieldPhone           Field = "phone"
	FieldEmail           Field = "email"
	FieldPaymentMethod   Field = "payment_method"
	FieldSeenItems       Field = "seen_items"
	FieldCart            Field = "cart"
	FieldOrders          Field = "orders"
)

// Delta is the subset of fields a component proposes to change.
// A nil pointer, nil slice or nil map means the field is absent.
// A non-nil empty map is a valid replacement (it clears the map).
type Delta struct {
	Messages        []*schema.Message
	UserInput       *string
	ConversationID  *string
	RoutingDecision *string

	CustomerID    *int64
	Name          *string
	Phone         *string
	Email         *string
	PaymentMethod *string

	SeenItems map[int64]SeenItem
	Cart      map[int64]CartItem
	Orders    map[int64]Order
}

type fieldPolicy struct {
	Field  Field
	Policy Policy
}

// mergeTable is the single source of merge semantics for ConversationState.
var mergeTable = []fieldPolicy{
	{FieldMessages, Append},
	{FieldUserInput, LastWriteWins},
	{FieldConversationID, LastWriteWins},
	{FieldRoutingDecision, LastWriteWins},
	{FieldCustomerID, LastWriteWins},
	{FieldName, LastWriteWins},
	{FieldPhone, LastWriteWins},
	{FieldEmail, LastWriteWins},
	{FieldPaymentMethod, LastWriteWins},
	{FieldSeenItems, ReplaceWhole},
	{FieldCart, ReplaceWhole},
	{FieldOrders, ReplaceWhole},
}

func init() {
	if err := validateMergeTable(); err != nil {
		panic(err)
	}
}

// PolicyOf returns the merge policy registered for f.
func PolicyOf(f Field) (Policy, bool) {
	for _, fp := range mergeTable {
		if fp.Field == f {
			return fp.Policy, true
		}
	}
	return "", false
}

// Merge applies d on top of st and returns a new state. st is not modified.
func Merge(st *ConversationState, d Delta) *ConversationState {
	if st == nil {
		st = New("")
	}
	out := st.Clone()
	for _, fp := range mergeTable {
		bind(out, &d, fp.Field).merge(fp.Policy)
	}
	return out
}

// Combine folds two successive deltas into one so that
// Merge(Merge(s, a), b) equals Merge(s, Combine(a, b)).
func Combine(a, b Delta) Delta {
	out := a
	if b.Messages != nil {
		out.Messages = append(slices.Clone(a.Messages), b.Messages...)
	}
	out.UserInput = pickString(a.UserInput, b.UserInput)
	out.ConversationID = pickString(a.ConversationID, b.ConversationID)
	out.RoutingDecision = pickString(a.RoutingDecision, b.RoutingDecision)
	out.CustomerID = pickInt64(a.CustomerID, b.CustomerID)
	out.Name = pickString(a.Name, b.Name)
	out.Phone = pickString(a.Phone, b.Phone)
	out.Email = pickString(a.Email, b.Email)
	out.PaymentMethod = pickString(a.PaymentMethod, b.PaymentMethod)
	if b.SeenItems != nil {
		out.SeenItems = b.SeenItems
	}
	if b.Cart != nil {
		out.Cart = b.Cart
	}
	if b.Orders != nil {
		out.Orders = b.Orders
	}
	return out
}

// IsEmpty reports whether d carries no field at all.
func (d Delta) IsEmpty() bool {
	return d.Messages == nil && d.UserInput == nil && d.ConversationID == nil &&
		d.RoutingDecision == nil && d.CustomerID == nil && d.Name == nil &&
		d.Phone == nil && d.Email == nil && d.PaymentMethod == nil &&
		d.SeenItems == nil && d.Cart == nil && d.Orders == nil
}

func String(v string) *string { return &v }

func Int64(v int64) *int64 { return &v }

/* ------------------------------- binding ------------------------------- */

type slot interface {
	supports(Policy) bool
	merge(Policy)
}

func bind(st *ConversationState, d *Delta, f Field) slot {
	switch f {
	case FieldMessages:
		return listSlot[*schema.Message]{dst: &st.Messages, src: d.Messages}
	case FieldUserInput:
		return scalarSlot[string]{dst: &st.UserInput, src: d.UserInput}
	case FieldConversationID:
		return scalarSlot[string]{dst: &st.ConversationID, src: d.ConversationID}
	case FieldRoutingDecision:
		return scalarSlot[string]{dst: &st.RoutingDecision, src: d.RoutingDecision}
	case FieldCustomerID:
		return scalarSlot[int64]{dst: &st.CustomerID, src: d.CustomerID}
	case FieldName:
		return scalarSlot[string]{dst: &st.Name, src: d.Name}
	case FieldPhone:
		return scalarSlot[string]{dst: &st.Phone, src: d.Phone}
	case FieldEmail:
		return scalarSlot[string]{dst: &st.Email, src: d.Email}
	case FieldPaymentMethod:
		return scalarSlot[string]{dst: &st.PaymentMethod, src: d.PaymentMethod}
	case FieldSeenItems:
		return mapSlot[int64, SeenItem]{dst: &st.SeenItems, src: d.SeenItems}
	case FieldCart:
		return mapSlot[int64, CartItem]{dst: &st.Cart, src: d.Cart}
	case FieldOrders:
		return mapSlot[int64, Order]{dst: &st.Orders, src: d.Orders, cloneValue: Order.Clone}
	default:
		return nil
	}
}

func validateMergeTable() error {
	seen := make(map[Field]bool, len(mergeTable))
	for _, fp := range mergeTable {
		if seen[fp.Field] {
			return fmt.Errorf("merge table: duplicate field %q", fp.Field)
		}
		seen[fp.Field] = true
		s := bind(New(""), &Delta{}, fp.Field)
		if s == nil {
			return fmt.Errorf("merge table: field %q has no binding", fp.Field)
		}
		if !s.supports(fp.Policy) {
			return fmt.Errorf("merge table: field %q does not support policy %q", fp.Field, fp.Policy)
		}
	}
	return nil
}

// scalarSlot treats the zero value as null so a merge never clears a set field.
type scalarSlot[T comparable] struct {
	dst *T
	src *T
}

func (s scalarSlot[T]) supports(p Policy) bool { return p == LastWriteWins }

func (s scalarSlot[T]) merge(Policy) {
	var zero T
	if s.src != nil && *s.src != zero {
		*s.dst = *s.src
	}
}

type listSlot[T any] struct {
	dst *[]T
	src []T
}

func (s listSlot[T]) supports(p Policy) bool { return p == Append || p == ReplaceWhole }

func (s listSlot[T]) merge(p Policy) {
	switch p {
	case Append:
		if len(s.src) > 0 {
			*s.dst = append(*s.dst, s.src...)
		}
	case ReplaceWhole:
		if s.src != nil {
			*s.dst = slices.Clone(s.src)
		}
	}
}

type mapSlot[K comparable, V any] struct {
	dst        *map[K]V
	src        map[K]V
	cloneValue func(V) V
}

func (s mapSlot[K, V]) supports(p Policy) bool { return p == ReplaceWhole || p == LastWriteWins }

func (s mapSlot[K, V]) merge(Policy) {
	if s.src == nil {
		return
	}
	out := make(map[K]V, len(s.src))
	for k, v := range s.src {
		if s.cloneValue != nil {
			v = s.cloneValue(v)
		}
		out[k] = v
	}
	*s.dst = out
}

func pickString(a, b *string) *string {
	if b != nil && *b != "" {
		return b
	}
	return a
}

func pickInt64(a, b *int64) *int64 {
	if b != nil && *b != 0 {
		return b
	}
	return a
}
