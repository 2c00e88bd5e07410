package repository

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/uptrace/bun"

	contractx "github.com/tanpawarit/Chative-Course-Concierge/agent/contract"
	statex "github.com/tanpawarit/Chative-Course-Concierge/agent/state"
	errx "github.com/tanpawarit/Chative-Course-Concierge/pkg/errx"
	logx "github.com/tanpawarit/Chative-Course-Concierge/pkg/logger"
)

type Orders struct {
	db *bun.DB
}

func NewOrders(db *bun.DB) *Orders {
	return &Orders{db: db}
}

// CreateOrder inserts the order row and its items in one transaction.
func (r *Orders) CreateOrder(ctx context.Context, in contractx.NewOrder) (statex.Order, error) {
	if len(in.Items) == 0 {
		return statex.Order{}, fmt.Errorf("%w: order has no items", contractx.ErrValidation)
	}

	var created statex.Order
	err := r.db.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		om := orderModel{
			StudentID:     in.StudentID,
			Status:        string(statex.OrderPending),
			Payment:       in.Payment,
			OrderTotal:    in.OrderTotal,
			Discount:      in.Discount,
			GrandTotal:    in.GrandTotal,
			ReceiverName:  in.ReceiverName,
			ReceiverPhone: in.ReceiverPhone,
			ReceiverEmail: in.ReceiverEmail,
			AdmissionDay:  in.AdmissionDay,
		}
		if _, err := tx.NewInsert().Model(&om).Returning("*").Exec(ctx); err != nil {
			return fmt.Errorf("insert order: %w", err)
		}

		items := make([]*orderItemModel, 0, len(in.Items))
		for _, it := range in.Items {
			items = append(items, &orderItemModel{
				OrderID:  om.OrderID,
				CourseID: it.CourseID,
				Price:    it.Price,
				Subtotal: it.Subtotal,
			})
		}
		if _, err := tx.NewInsert().Model(&items).Exec(ctx); err != nil {
			return fmt.Errorf("insert order items: %w", err)
		}

		o, err := loadOrder(ctx, tx, om.OrderID)
		if err != nil {
			return err
		}
		created = o
		return nil
	})
	if err != nil {
		logx.Error().Err(err).Int64("student_id", in.StudentID).Msg("failed to create order")
		return statex.Order{}, errx.WrapDB(err)
	}
	logx.Info().Int64("order_id", created.OrderID).Int64("student_id", in.StudentID).Msg("order created")
	return created, nil
}

func (r *Orders) OrderByID(ctx context.Context, orderID int64) (statex.Order, error) {
	o, err := loadOrder(ctx, r.db, orderID)
	if err != nil {
		logx.Error().Err(err).Int64("order_id", orderID).Msg("failed to load order")
		return statex.Order{}, errx.WrapDB(err)
	}
	return o, nil
}

// ListOpenOrders returns the newest orders whose status still allows changes.
func (r *Orders) ListOpenOrders(ctx context.Context, studentID int64, limit int) ([]statex.Order, error) {
	closed := make([]string, 0, len(statex.ClosedOrderStatuses))
	for _, s := range statex.ClosedOrderStatuses {
		closed = append(closed, string(s))
	}

	var rows []*orderModel
	err := withItems(r.db.NewSelect().Model(&rows)).
		Where("o.student_id = ?", studentID).
		Where("o.status NOT IN (?)", bun.In(closed)).
		Order("o.created_at DESC").
		Limit(limit).
		Scan(ctx)
	if err != nil {
		logx.Error().Err(err).Int64("student_id", studentID).Msg("failed to list open orders")
		return nil, errx.WrapDB(err)
	}
	out := make([]statex.Order, 0, len(rows))
	for _, row := range rows {
		out = append(out, row.toOrder())
	}
	return out, nil
}

func (r *Orders) CancelOrder(ctx context.Context, orderID int64) (bool, error) {
	res, err := r.db.NewUpdate().
		Model((*orderModel)(nil)).
		Set("status = ?", string(statex.OrderCancelled)).
		Where("order_id = ?", orderID).
		Where("status <> ?", string(statex.OrderCancelled)).
		Exec(ctx)
	if err != nil {
		logx.Error().Err(err).Int64("order_id", orderID).Msg("failed to cancel order")
		return false, errx.WrapDB(err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, errx.WrapDB(err)
	}
	return n > 0, nil
}

// SwapItem removes one item, adds the new course and recomputes the totals from the stored items.
func (r *Orders) SwapItem(ctx context.Context, swap contractx.ItemSwap) (statex.Order, error) {
	var out statex.Order
	err := r.db.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		res, err := tx.NewDelete().
			Model((*orderItemModel)(nil)).
			Where("item_id = ?", swap.OldItemID).
			Where("order_id = ?", swap.OrderID).
			Exec(ctx)
		if err != nil {
			return fmt.Errorf("delete order item: %w", err)
		}
		if n, _ := res.RowsAffected(); n == 0 {
			return sql.ErrNoRows
		}

		item := orderItemModel{
			OrderID:  swap.OrderID,
			CourseID: swap.NewCourseID,
			Price:    swap.Price,
			Subtotal: swap.Subtotal,
		}
		if _, err := tx.NewInsert().Model(&item).Exec(ctx); err != nil {
			return fmt.Errorf("insert order item: %w", err)
		}

		current, err := loadOrderModel(ctx, tx, swap.OrderID)
		if err != nil {
			return err
		}
		total, discount, grand := orderTotals(current.Items)
		_, err = tx.NewUpdate().
			Model((*orderModel)(nil)).
			Set("order_total = ?", total).
			Set("discount_voucher = ?", discount).
			Set("grand_total = ?", grand).
			Where("order_id = ?", swap.OrderID).
			Exec(ctx)
		if err != nil {
			return fmt.Errorf("update order totals: %w", err)
		}

		current.OrderTotal, current.Discount, current.GrandTotal = total, discount, grand
		out = current.toOrder()
		return nil
	})
	if err != nil {
		logx.Error().Err(err).Int64("order_id", swap.OrderID).Msg("failed to swap order item")
		return statex.Order{}, errx.WrapDB(err)
	}
	return out, nil
}

func (r *Orders) UpdateReceiver(ctx context.Context, orderID int64, patch contractx.ProfilePatch) (statex.Order, error) {
	if patch.Empty() {
		return statex.Order{}, fmt.Errorf("%w: receiver patch is empty", contractx.ErrValidation)
	}
	q := r.db.NewUpdate().Model((*orderModel)(nil)).Where("order_id = ?", orderID)
	if patch.Name != "" {
		q = q.Set("receiver_name = ?", patch.Name)
	}
	if patch.Phone != "" {
		q = q.Set("receiver_phone_number = ?", patch.Phone)
	}
	if patch.Email != "" {
		q = q.Set("receiver_email = ?", patch.Email)
	}
	return r.updateAndReload(ctx, orderID, q)
}

func (r *Orders) UpdateAdmissionDay(ctx context.Context, orderID int64, day string) (statex.Order, error) {
	q := r.db.NewUpdate().
		Model((*orderModel)(nil)).
		Set("admission_day = ?", day).
		Where("order_id = ?", orderID)
	return r.updateAndReload(ctx, orderID, q)
}

func (r *Orders) updateAndReload(ctx context.Context, orderID int64, q *bun.UpdateQuery) (statex.Order, error) {
	res, err := q.Exec(ctx)
	if err != nil {
		logx.Error().Err(err).Int64("order_id", orderID).Msg("failed to update order")
		return statex.Order{}, errx.WrapDB(err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return statex.Order{}, errx.WrapDB(sql.ErrNoRows)
	}
	return r.OrderByID(ctx, orderID)
}

func withItems(q *bun.SelectQuery) *bun.SelectQuery {
	return q.
		Relation("Items", func(q *bun.SelectQuery) *bun.SelectQuery {
			return q.Order("oi.item_id ASC")
		}).
		Relation("Items.Course")
}

func loadOrderModel(ctx context.Context, db bun.IDB, orderID int64) (*orderModel, error) {
	m := new(orderModel)
	err := withItems(db.NewSelect().Model(m)).
		Where("o.order_id = ?", orderID).
		Scan(ctx)
	if err != nil {
		return nil, err
	}
	return m, nil
}

func loadOrder(ctx context.Context, db bun.IDB, orderID int64) (statex.Order, error) {
	m, err := loadOrderModel(ctx, db, orderID)
	if err != nil {
		return statex.Order{}, err
	}
	return m.toOrder(), nil
}

// orderTotals sums list prices and the promotion discount of the current course rows.
func orderTotals(items []*orderItemModel) (total, discount, grand float64) {
	for _, it := range items {
		if it == nil {
			continue
		}
		total += it.Price
		if it.Course != nil {
			discount += it.Price * it.Course.Promotion
		}
	}
	return total, discount, total - discount
}

var _ contractx.OrderStore = (*Orders)(nil)
