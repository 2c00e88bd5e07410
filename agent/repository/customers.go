package repository

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/uptrace/bun"

	contractx "github.com/tanpawarit/Chative-Course-Concierge/agent/contract"
	errx "github.com/tanpawarit/Chative-Course-Concierge/pkg/errx"
	logx "github.com/tanpawarit/Chative-Course-Concierge/pkg/logger"
)

type Customers struct {
	db bun.IDB
}

func NewCustomers(db bun.IDB) *Customers {
	return &Customers{db: db}
}

// UpsertByChatID returns the student bound to chatID, creating an empty profile on first contact.
func (r *Customers) UpsertByChatID(ctx context.Context, chatID string) (contractx.Customer, error) {
	chatID = strings.TrimSpace(chatID)
	if chatID == "" {
		return contractx.Customer{}, fmt.Errorf("%w: chat id is required", contractx.ErrValidation)
	}

	m := studentModel{ChatID: chatID}
	_, err := r.db.NewInsert().
		Model(&m).
		On("CONFLICT (chat_id) DO UPDATE").
		Set("chat_id = EXCLUDED.chat_id").
		Returning("*").
		Exec(ctx)
	if err != nil {
		logx.Error().Err(err).Str("chat_id", chatID).Msg("failed to upsert student")
		return contractx.Customer{}, errx.WrapDB(err)
	}
	return m.toCustomer(), nil
}

// UpdateProfile writes only the non-empty fields of patch.
func (r *Customers) UpdateProfile(ctx context.Context, studentID int64, patch contractx.ProfilePatch) (contractx.Customer, error) {
	if patch.Empty() {
		return contractx.Customer{}, fmt.Errorf("%w: profile patch is empty", contractx.ErrValidation)
	}

	var m studentModel
	q := r.db.NewUpdate().Model(&m).Where("student_id = ?", studentID)
	if patch.Name != "" {
		q = q.Set("name = ?", patch.Name)
	}
	if patch.Phone != "" {
		q = q.Set("phone_number = ?", patch.Phone)
	}
	if patch.Email != "" {
		q = q.Set("email = ?", patch.Email)
	}
	if _, err := q.Returning("*").Exec(ctx); err != nil {
		logx.Error().Err(err).Int64("student_id", studentID).Msg("failed to update student profile")
		return contractx.Customer{}, errx.WrapDB(err)
	}
	if m.StudentID == 0 {
		return contractx.Customer{}, errx.WrapDB(sql.ErrNoRows)
	}
	return m.toCustomer(), nil
}

var _ contractx.CustomerDirectory = (*Customers)(nil)
